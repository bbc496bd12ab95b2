package scoring

import (
	"sort"
	"time"

	"github.com/solmere/go-wellness-backend/internal/domain"
)

// Composite is the confidence-weighted blend of a set of quality metric
// candidates for one (entity, entityType, metricType) tuple.
//
// Confidence zero with a zero score is the explicit "no data" sentinel; it is
// distinct from a genuine composite of 0, which always carries positive
// confidence.
type Composite struct {
	Score      float64
	Confidence float64
	Samples    int
}

// Aggregate combines candidates into one composite score weighted by each
// candidate's confidence: sum(score*confidence) / sum(confidence).
// Candidates with non-positive confidence contribute nothing; when none carry
// positive confidence the (0, 0) sentinel is returned rather than silently
// dropping the metric. Pure, deterministic, order-independent.
func Aggregate(candidates []domain.QualityMetric) Composite {
	// Sum in a canonical order so permutations of the input cannot perturb
	// the floating-point result.
	ordered := make([]domain.QualityMetric, len(candidates))
	copy(ordered, candidates)
	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].Score != ordered[j].Score {
			return ordered[i].Score < ordered[j].Score
		}
		return ordered[i].Confidence < ordered[j].Confidence
	})

	var weighted, total float64
	samples := 0
	for _, c := range ordered {
		if c.Confidence <= 0 {
			continue
		}
		weighted += Clamp01(c.Score) * c.Confidence
		total += c.Confidence
		samples++
	}
	if total <= 0 {
		return Composite{}
	}
	return Composite{
		Score:      Clamp01(weighted / total),
		Confidence: Clamp01(total / float64(samples)),
		Samples:    samples,
	}
}

// Snapshot materializes a composite as a QualityMetric record for reporting.
// The caller assigns the ID before persisting.
func (c Composite) Snapshot(entityID, entityType, metricType string) domain.QualityMetric {
	return domain.QualityMetric{
		MetricType:   metricType,
		EntityID:     entityID,
		EntityType:   entityType,
		Score:        c.Score,
		Confidence:   c.Confidence,
		CalculatedAt: time.Now().UTC(),
	}
}
