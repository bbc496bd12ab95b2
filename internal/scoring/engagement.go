// Package scoring implements the engagement scorer and the composite quality
// metric aggregator. Both are pure, deterministic, and order-independent:
// evaluating the same multiset of inputs always yields the same value, so
// they are safe to run in parallel across users and sessions with no
// coordination.
package scoring

import (
	"fmt"
	"time"

	"github.com/solmere/go-wellness-backend/internal/domain"
)

// NeutralScore is returned when a session carries no weighted evidence.
// It avoids a division by zero and expresses "no evidence, no opinion".
const NeutralScore = 0.5

// signalWeights is the exhaustive weight mapping for the closed SignalKind
// enumeration. Positive weights pull the score toward 1, negative toward 0.
var signalWeights = map[domain.SignalKind]float64{
	domain.SignalCompletion: 0.3,
	domain.SignalRetry:      -0.4,
	domain.SignalDuration:   0.2,
	domain.SignalSkip:       -0.3,
	domain.SignalDropoff:    -0.5,
}

// EngagementScorer computes [0,1] engagement scores from weighted signals.
// Construct it with NewEngagementScorer, which verifies the weight table
// covers every recognized kind so no signal can silently contribute zero.
type EngagementScorer struct {
	weights map[domain.SignalKind]float64
}

// NewEngagementScorer returns a scorer backed by the package weight table.
// It fails if any recognized signal kind is missing a weight.
func NewEngagementScorer() (*EngagementScorer, error) {
	for _, k := range domain.AllSignalKinds {
		if _, ok := signalWeights[k]; !ok {
			return nil, fmt.Errorf("scoring: no weight configured for signal kind %q", k)
		}
	}
	w := make(map[domain.SignalKind]float64, len(signalWeights))
	for k, v := range signalWeights {
		w[k] = v
	}
	return &EngagementScorer{weights: w}, nil
}

// Weight returns the configured weight for kind. Unrecognized kinds report
// ok=false; the normalizer rejects them before they reach the scorer.
func (s *EngagementScorer) Weight(kind domain.SignalKind) (float64, bool) {
	w, ok := s.weights[kind]
	return w, ok
}

// Score aggregates a multiset of signals into a single engagement value.
//
// For each signal the absolute weight accumulates into the total and the
// signed weight into the weighted sum; the score is
// clamp(0.5 + weightedSum/totalWeight, 0, 1). An empty (or all-unweighted)
// set yields exactly NeutralScore. Signals of unrecognized kinds are skipped;
// upstream validation makes that unreachable in practice.
func (s *EngagementScorer) Score(userID, sessionID string, signals []domain.Signal) domain.EngagementScore {
	// Accumulate per-kind counts first and sum in the fixed enumeration
	// order, so the result is bit-identical under any permutation of the
	// input (float addition is not associative).
	counts := make(map[domain.SignalKind]int, len(s.weights))
	counted := 0
	for _, sig := range signals {
		if _, ok := s.weights[sig.Kind]; !ok {
			continue
		}
		counts[sig.Kind]++
		counted++
	}

	var totalWeight, weightedSum float64
	for _, k := range domain.AllSignalKinds {
		n := counts[k]
		if n == 0 {
			continue
		}
		w := s.weights[k]
		totalWeight += float64(n) * abs(w)
		weightedSum += float64(n) * w
	}

	value := NeutralScore
	if totalWeight > 0 {
		value = Clamp01(NeutralScore + weightedSum/totalWeight)
	}
	return domain.EngagementScore{
		UserID:      userID,
		SessionID:   sessionID,
		Value:       value,
		SignalCount: counted,
		ComputedAt:  time.Now().UTC(),
	}
}

// Clamp01 clamps v into the closed interval [0,1].
func Clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
