// internal/stats/tracker.go
package stats

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Overall is the persistent aggregate record, fully rewritten on every
// increment. Counters only ever grow; FirstStarted is set when the file is
// first created and never touched again.
type Overall struct {
	TotalMessagesAnalyzed int64     `json:"total_messages_analyzed"`
	TotalMessagesFlagged  int64     `json:"total_messages_flagged"`
	TotalFalseAlarms      int64     `json:"total_false_alarms"`
	FirstStarted          time.Time `json:"first_started"`
	LastUpdated           time.Time `json:"last_updated"`
}

// Tracker keeps hybrid statistics: a durable overall record plus session
// counters that reset with the process. Increment methods never return
// errors; a failed flush is logged and the in-memory state stays
// authoritative for the rest of the run.
type Tracker struct {
	path string
	loc  *time.Location
	log  *zap.Logger
	now  func() time.Time

	mu              sync.Mutex
	overall         Overall
	sessionStart    time.Time
	sessionAnalyzed int64
	sessionFlagged  int64
}

// New loads the overall record from path, initializing a fresh one when the
// file is absent or unreadable.
func New(path string, loc *time.Location, log *zap.Logger) *Tracker {
	t := &Tracker{
		path: path,
		loc:  loc,
		log:  log,
		now:  time.Now,
	}
	t.sessionStart = t.now().In(loc)
	t.overall = t.load()

	log.Info("stats tracker initialized",
		zap.Int64("analyzed", t.overall.TotalMessagesAnalyzed),
		zap.Int64("flagged", t.overall.TotalMessagesFlagged),
		zap.Int64("false_alarms", t.overall.TotalFalseAlarms))
	return t
}

func (t *Tracker) load() Overall {
	data, err := os.ReadFile(t.path)
	if os.IsNotExist(err) {
		fresh := Overall{FirstStarted: t.now().In(t.loc), LastUpdated: t.now().In(t.loc)}
		if err := t.save(fresh); err != nil {
			t.log.Error("failed to create stats file", zap.Error(err))
		}
		return fresh
	}
	if err != nil {
		t.log.Error("failed to read stats file", zap.Error(err))
		return Overall{FirstStarted: t.now().In(t.loc)}
	}

	var overall Overall
	if err := json.Unmarshal(data, &overall); err != nil {
		t.log.Error("failed to parse stats file", zap.Error(err))
		return Overall{FirstStarted: t.now().In(t.loc)}
	}
	return overall
}

func (t *Tracker) save(overall Overall) error {
	if err := os.MkdirAll(filepath.Dir(t.path), 0o755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}
	data, err := json.MarshalIndent(overall, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal stats: %w", err)
	}
	if err := os.WriteFile(t.path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write stats file: %w", err)
	}
	return nil
}

// flushLocked stamps LastUpdated and rewrites the file. Callers hold t.mu,
// so each load-mutate-store is one atomic unit.
func (t *Tracker) flushLocked() {
	t.overall.LastUpdated = t.now().In(t.loc)
	if err := t.save(t.overall); err != nil {
		t.log.Error("failed to persist stats, keeping in-memory state", zap.Error(err))
	}
}

// IncrementAnalyzed counts one analyzed message, session and overall.
func (t *Tracker) IncrementAnalyzed() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sessionAnalyzed++
	t.overall.TotalMessagesAnalyzed++
	t.flushLocked()
}

// IncrementFlagged counts one flagged message, session and overall.
func (t *Tracker) IncrementFlagged() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sessionFlagged++
	t.overall.TotalMessagesFlagged++
	t.flushLocked()
}

// IncrementFalseAlarm counts one reported false alarm (overall only).
func (t *Tracker) IncrementFalseAlarm() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.overall.TotalFalseAlarms++
	if t.overall.TotalFalseAlarms > t.overall.TotalMessagesFlagged {
		t.log.Warn("false alarms exceed flagged messages",
			zap.Int64("false_alarms", t.overall.TotalFalseAlarms),
			zap.Int64("flagged", t.overall.TotalMessagesFlagged))
	}
	t.flushLocked()
	t.log.Info("false alarm reported", zap.Int64("total", t.overall.TotalFalseAlarms))
}

// Overall returns a copy of the persistent counters.
func (t *Tracker) Overall() Overall {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.overall
}

// SessionAnalyzed returns the number of messages analyzed this session.
func (t *Tracker) SessionAnalyzed() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.sessionAnalyzed
}

// SessionFlagged returns the number of messages flagged this session.
func (t *Tracker) SessionFlagged() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.sessionFlagged
}

// SessionUptime formats how long this process has been running.
func (t *Tracker) SessionUptime() string {
	return formatDuration(t.now().In(t.loc).Sub(t.sessionStart))
}

// TotalUptime formats the time since the bot first ever started.
func (t *Tracker) TotalUptime() string {
	t.mu.Lock()
	first := t.overall.FirstStarted
	t.mu.Unlock()

	if first.IsZero() {
		return "Unknown"
	}
	return formatDuration(t.now().In(t.loc).Sub(first))
}

// SessionMessagesPerHour is the analyze rate of the current session.
func (t *Tracker) SessionMessagesPerHour() float64 {
	hours := t.now().In(t.loc).Sub(t.sessionStart).Hours()
	if hours < 0.01 {
		return 0
	}
	t.mu.Lock()
	analyzed := t.sessionAnalyzed
	t.mu.Unlock()
	return float64(analyzed) / hours
}

// SessionDetectionRate is flagged/analyzed for this session, as a percentage.
func (t *Tracker) SessionDetectionRate() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return rate(t.sessionFlagged, t.sessionAnalyzed)
}

// OverallDetectionRate is flagged/analyzed across all runs, as a percentage.
func (t *Tracker) OverallDetectionRate() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return rate(t.overall.TotalMessagesFlagged, t.overall.TotalMessagesAnalyzed)
}

// AccuracyEstimate derives accuracy from reported false alarms. With nothing
// flagged yet there is nothing to be wrong about, so it reads 100. True
// positives are floored at zero so the percentage can never go negative.
func (t *Tracker) AccuracyEstimate() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	flagged := t.overall.TotalMessagesFlagged
	if flagged == 0 {
		return 100
	}
	truePositives := flagged - t.overall.TotalFalseAlarms
	if truePositives < 0 {
		truePositives = 0
	}
	return float64(truePositives) / float64(flagged) * 100
}

func rate(flagged, analyzed int64) float64 {
	if analyzed == 0 {
		return 0
	}
	return float64(flagged) / float64(analyzed) * 100
}

// formatDuration renders a coarse days/hours/minutes duration, dropping
// zero components.
func formatDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	days := int(d.Hours()) / 24
	hours := int(d.Hours()) % 24
	minutes := int(d.Minutes()) % 60

	var parts []string
	if days > 0 {
		parts = append(parts, fmt.Sprintf("%d %s", days, plural("day", days)))
	}
	if hours > 0 {
		parts = append(parts, fmt.Sprintf("%d %s", hours, plural("hour", hours)))
	}
	if minutes > 0 {
		parts = append(parts, fmt.Sprintf("%d %s", minutes, plural("minute", minutes)))
	}
	if len(parts) == 0 {
		return "Less than a minute"
	}
	return strings.Join(parts, ", ")
}

func plural(unit string, n int) string {
	if n == 1 {
		return unit
	}
	return unit + "s"
}
