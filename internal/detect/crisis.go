// Package detect implements the sliding-window crisis pattern detector.
//
// Detection is a stateless pure function over a user's recent mood window: it
// performs no I/O and has no side effects, so it is safe to evaluate
// speculatively on every new mood entry and in parallel across users.
//
// The determination exposes independent facets (mean trigger, rapid decline,
// consistent low mood) plus one aggregated severity, rather than a single
// opaque boolean, because distinct risk signatures call for distinct
// escalation handling downstream.
package detect

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/solmere/go-wellness-backend/internal/domain"
)

// Config holds the detector thresholds. The zero value is not usable;
// call DefaultConfig.
type Config struct {
	// Window is the number of most recent entries evaluated. Fewer entries
	// than this never trigger (insufficient evidence beats a false positive).
	Window int
	// MeanThreshold triggers when the window mean is at or below it (1-10).
	MeanThreshold float64
	// DeclineSlope flags rapid decline when the per-entry slope across the
	// window is at or below it (a negative number, e.g. -2).
	DeclineSlope float64
	// LowCeiling flags consistent low mood when every entry in the window is
	// at or below it.
	LowCeiling int
}

// DefaultConfig returns the production thresholds.
func DefaultConfig() Config {
	return Config{
		Window:        3,
		MeanThreshold: 3,
		DeclineSlope:  -2,
		LowCeiling:    4,
	}
}

// Detector evaluates crisis patterns over mood histories.
type Detector struct {
	cfg Config
}

// New returns a Detector for cfg, normalizing degenerate values to defaults.
func New(cfg Config) *Detector {
	def := DefaultConfig()
	if cfg.Window < 1 {
		cfg.Window = def.Window
	}
	if cfg.MeanThreshold <= 0 {
		cfg.MeanThreshold = def.MeanThreshold
	}
	if cfg.DeclineSlope >= 0 {
		cfg.DeclineSlope = def.DeclineSlope
	}
	if cfg.LowCeiling < 1 {
		cfg.LowCeiling = def.LowCeiling
	}
	return &Detector{cfg: cfg}
}

// Window returns the number of entries the detector evaluates, letting
// callers fetch exactly the history that matters.
func (d *Detector) Window() int { return d.cfg.Window }

// Evaluate decides whether userID's mood history exhibits a crisis pattern.
//
// history may arrive in any order; it is sorted by OccurredAt ascending and
// the most recent Window entries form the evaluation window. With fewer than
// Window entries the determination is never triggered. Severity is the window
// mean rounded to the nearest whole unit, clamped to [1,10]; it is reported
// even when not triggered so callers can observe proximity to the threshold.
func (d *Detector) Evaluate(userID string, history []domain.MoodEntry) domain.CrisisDetermination {
	det := domain.CrisisDetermination{
		UserID:      userID,
		EvaluatedAt: time.Now().UTC(),
	}
	if len(history) < d.cfg.Window {
		return det
	}

	ordered := make([]domain.MoodEntry, len(history))
	copy(ordered, history)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].OccurredAt.Before(ordered[j].OccurredAt)
	})
	window := ordered[len(ordered)-d.cfg.Window:]

	sum := 0
	low := true
	for _, e := range window {
		sum += e.Score
		if e.Score > d.cfg.LowCeiling {
			low = false
		}
	}
	mean := float64(sum) / float64(len(window))

	det.TriggerWindow = window
	det.Triggered = mean <= d.cfg.MeanThreshold
	det.ConsistentLow = low
	det.RapidDecline = slope(window) <= d.cfg.DeclineSlope
	det.Severity = clampSeverity(int(math.Round(mean)))
	return det
}

// Describe renders a short audit string for the window that produced det,
// used as the alert trigger pattern.
func Describe(det domain.CrisisDetermination) string {
	scores := make([]int, len(det.TriggerWindow))
	for i, e := range det.TriggerWindow {
		scores[i] = e.Score
	}
	switch {
	case det.RapidDecline && det.ConsistentLow:
		return fmt.Sprintf("rapid decline into consistent low mood %v", scores)
	case det.RapidDecline:
		return fmt.Sprintf("rapid mood decline %v", scores)
	case det.ConsistentLow:
		return fmt.Sprintf("consistent low mood %v", scores)
	default:
		return fmt.Sprintf("low mood average %v", scores)
	}
}

// slope returns the least-squares per-entry slope of the window scores.
// Entries are equally spaced by index; wall-clock gaps are deliberately
// ignored since check-in cadence varies per user.
func slope(window []domain.MoodEntry) float64 {
	n := float64(len(window))
	if n < 2 {
		return 0
	}
	var sumX, sumY, sumXY, sumXX float64
	for i, e := range window {
		x := float64(i)
		y := float64(e.Score)
		sumX += x
		sumY += y
		sumXY += x * y
		sumXX += x * x
	}
	denom := n*sumXX - sumX*sumX
	if denom == 0 {
		return 0
	}
	return (n*sumXY - sumX*sumY) / denom
}

func clampSeverity(v int) int {
	if v < 1 {
		return 1
	}
	if v > 10 {
		return 10
	}
	return v
}
