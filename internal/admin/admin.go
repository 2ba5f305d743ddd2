// Package admin exposes read-only operational views over a tenant's memory:
// per-kind counts, a forgettable-count preview, and per-field histograms, in
// the spirit of the teacher's store/stats.go.
package admin

import (
	"context"
	"fmt"
	"time"

	"github.com/tempomem/tempomem/internal/clock"
	"github.com/tempomem/tempomem/internal/config"
	"github.com/tempomem/tempomem/internal/model"
	"github.com/tempomem/tempomem/internal/scoring"
	"github.com/tempomem/tempomem/internal/store"
)

// distributionBatchSize is the page size used when walking a tenant's items
// to build a histogram; it has no bearing on the bucket edges themselves.
const distributionBatchSize = 500

type Service struct {
	store store.Store
	cfg   config.Config
	clock clock.Clock
}

func New(s store.Store, cfg config.Config, c clock.Clock) *Service {
	return &Service{store: s, cfg: cfg, clock: c}
}

// CountReport is the count_items view, per kind and in total.
type CountReport struct {
	Total   int64                `json:"total"`
	PerKind map[model.Kind]int64 `json:"per_kind"`
}

func (s *Service) CountItems(ctx context.Context, tenant model.Tenant) (CountReport, error) {
	dist, err := s.store.Distribution(ctx, tenant)
	if err != nil {
		return CountReport{}, err
	}
	report := CountReport{PerKind: dist}
	for _, n := range dist {
		report.Total += n
	}
	return report, nil
}

// ForgettableCount reports, without deleting anything, how many items per
// kind the decay predicate currently marks for removal.
func (s *Service) ForgettableCount(ctx context.Context, tenant model.Tenant, batchSize int) (map[model.Kind]int64, error) {
	if batchSize <= 0 {
		batchSize = 500
	}
	now := s.clock.Now()
	out := make(map[model.Kind]int64, len(model.AllKinds))

	for _, kind := range model.AllKinds {
		afterID := ""
		afterCreated := time.Unix(0, 0).UTC()
		var count int64

		for {
			batch, err := s.store.ScanTenant(ctx, kind, tenant, afterID, afterCreated, batchSize)
			if err != nil {
				return nil, fmt.Errorf("scan %s: %w", kind, err)
			}
			if len(batch) == 0 {
				break
			}
			for _, item := range batch {
				base := item.Temporal()
				ageDays := scoring.AgeDays(float64(base.CreatedAt.Unix()), float64(now.Unix()))
				hasAccess := base.LastAccessedAt != nil
				var delta float64
				if hasAccess {
					delta = scoring.AgeDays(float64(base.LastAccessedAt.Unix()), float64(now.Unix()))
				}
				in := scoring.Inputs{
					Importance:    base.ImportanceScore,
					AgeDays:       ageDays,
					HasLastAccess: hasAccess,
					AccessDelta:   delta,
					AccessCount:   base.AccessCount,
				}
				temporal := scoring.Temporal(s.cfg, in)
				if del, _ := scoring.ShouldDelete(s.cfg, in, temporal); del {
					count++
				}
			}
			last := batch[len(batch)-1]
			afterID = last.Identity()
			afterCreated = last.Temporal().CreatedAt
			if len(batch) < batchSize {
				break
			}
		}
		out[kind] = count
	}
	return out, nil
}

// histogramEdges gives the fixed bucket lower-bounds per field, per spec
// §6.4's `distribution(tenant, kind, field) -> histogram`. importance_score
// is bucketed in tenths over its [0,1] range; access_count and age_days use
// widening buckets since both are long-tailed in practice.
var histogramEdges = map[string][]float64{
	"importance_score": {0, 0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 1.0},
	"access_count":      {0, 1, 2, 5, 10, 25, 50, 100, 250, 500},
	"age_days":          {0, 1, 7, 30, 90, 180, 365, 730},
}

// HistogramBucket is one bucket's count, labeled by its lower-inclusive,
// upper-exclusive range.
type HistogramBucket struct {
	Label string `json:"label"`
	Count int64  `json:"count"`
}

// Histogram is the result of the distribution(tenant, kind, field) view.
type Histogram struct {
	Kind    model.Kind        `json:"kind"`
	Field   string            `json:"field"`
	Buckets []HistogramBucket `json:"buckets"`
}

func bucketIndex(edges []float64, v float64) int {
	idx := 0
	for i, edge := range edges {
		if v >= edge {
			idx = i
		}
	}
	return idx
}

func bucketLabel(edges []float64, i int) string {
	if i+1 < len(edges) {
		return fmt.Sprintf("[%g,%g)", edges[i], edges[i+1])
	}
	return fmt.Sprintf("[%g,+inf)", edges[i])
}

func fieldValue(field string, base model.Base, now time.Time) (float64, error) {
	switch field {
	case "importance_score":
		return base.ImportanceScore, nil
	case "access_count":
		return float64(base.AccessCount), nil
	case "age_days":
		return scoring.AgeDays(float64(base.CreatedAt.Unix()), float64(now.Unix())), nil
	default:
		return 0, fmt.Errorf("%w: unknown histogram field %q", store.ErrInvalidQuery, field)
	}
}

// Distribution implements spec §6.4's `distribution(tenant, kind, field) ->
// histogram` by walking the tenant's items for kind via ScanTenant and
// bucketing the requested field.
func (s *Service) Distribution(ctx context.Context, tenant model.Tenant, kind model.Kind, field string) (Histogram, error) {
	edges, ok := histogramEdges[field]
	if !ok {
		return Histogram{}, fmt.Errorf("%w: unknown histogram field %q", store.ErrInvalidQuery, field)
	}
	now := s.clock.Now()
	counts := make([]int64, len(edges))

	afterID := ""
	afterCreated := time.Unix(0, 0).UTC()
	for {
		batch, err := s.store.ScanTenant(ctx, kind, tenant, afterID, afterCreated, distributionBatchSize)
		if err != nil {
			return Histogram{}, fmt.Errorf("scan %s: %w", kind, err)
		}
		if len(batch) == 0 {
			break
		}
		for _, item := range batch {
			v, err := fieldValue(field, item.Temporal(), now)
			if err != nil {
				return Histogram{}, err
			}
			counts[bucketIndex(edges, v)]++
		}
		last := batch[len(batch)-1]
		afterID = last.Identity()
		afterCreated = last.Temporal().CreatedAt
		if len(batch) < distributionBatchSize {
			break
		}
	}

	buckets := make([]HistogramBucket, len(edges))
	for i := range edges {
		buckets[i] = HistogramBucket{Label: bucketLabel(edges, i), Count: counts[i]}
	}
	return Histogram{Kind: kind, Field: field, Buckets: buckets}, nil
}
