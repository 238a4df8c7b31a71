// internal/detector/detector.go
package detector

import (
	"context"
)

// Result is a single detection verdict.
type Result struct {
	IsScam     bool
	Confidence float64 // 0.0 to 1.0
	Reason     string  // which detector fired, e.g. "Pattern Detection"
}

// Detector decides whether a piece of message text is a scam. The pipeline
// treats a returned error as a negative verdict and never retries.
type Detector interface {
	Detect(ctx context.Context, text string) (Result, error)
}

// Chain runs detectors in order and returns the first positive verdict.
// A failing stage is skipped so the remaining stages still get a say; the
// chain itself errors only when every stage errored.
type Chain struct {
	stages []Detector
}

// NewChain builds a chain over the given stages.
func NewChain(stages ...Detector) *Chain {
	return &Chain{stages: stages}
}

func (c *Chain) Detect(ctx context.Context, text string) (Result, error) {
	var (
		last     Result
		firstErr error
		failed   int
	)

	for _, stage := range c.stages {
		res, err := stage.Detect(ctx, text)
		if err != nil {
			failed++
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		if res.IsScam {
			return res, nil
		}
		last = res
	}

	if failed > 0 && failed == len(c.stages) {
		return Result{}, firstErr
	}
	return last, nil
}
