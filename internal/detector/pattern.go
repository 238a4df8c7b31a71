// internal/detector/pattern.go
package detector

import (
	"context"
	"regexp"
)

// ReasonPattern labels verdicts produced by the heuristic detector.
const ReasonPattern = "Pattern Detection"

type rule struct {
	re     *regexp.Regexp
	weight float64
}

// Common scam shapes seen in Discord spam waves: fake nitro giveaways,
// shortened links, prize bait, credential phishing, mass pings with links.
var rules = []rule{
	{regexp.MustCompile(`(?i)free\s+(discord\s+)?nitro`), 0.50},
	{regexp.MustCompile(`(?i)(steam\s+gift|free\s+skins?|robux\s+generator)`), 0.45},
	{regexp.MustCompile(`(?i)\b(bit\.ly|tinyurl\.com|cutt\.ly|t\.co|goo\.gl)/\S+`), 0.35},
	{regexp.MustCompile(`(?i)(congratulations|congrats)\b.{0,60}\b(won|winner|prize)`), 0.30},
	{regexp.MustCompile(`(?i)\bclaim\b.{0,40}\b(gift|prize|nitro|reward|at)\b`), 0.25},
	{regexp.MustCompile(`(?i)(verify\s+your\s+account|account\s+(will\s+be\s+)?(suspended|terminated))`), 0.40},
	{regexp.MustCompile(`(?i)@everyone.{0,120}https?://`), 0.40},
	{regexp.MustCompile(`(?i)(airdrop|crypto\s+giveaway|double\s+your)\b.{0,80}https?://`), 0.40},
}

// PatternDetector scores text against weighted regex rules. It is cheap,
// deterministic and runs before any ML stage.
type PatternDetector struct {
	threshold float64
}

// NewPatternDetector creates a heuristic detector that flags text once the
// summed rule weights reach threshold.
func NewPatternDetector(threshold float64) *PatternDetector {
	return &PatternDetector{threshold: threshold}
}

func (d *PatternDetector) Detect(_ context.Context, text string) (Result, error) {
	var score float64
	for _, r := range rules {
		if r.re.MatchString(text) {
			score += r.weight
		}
	}
	if score > 1 {
		score = 1
	}
	if score < d.threshold {
		return Result{Confidence: score, Reason: ReasonPattern}, nil
	}
	return Result{IsScam: true, Confidence: score, Reason: ReasonPattern}, nil
}
