// Package retrieval implements the scored, multi-kind memory lookup that
// sits in front of the store: per-kind lexical/vector/recency candidate
// fan-out, scoring, ranking, and the access-tracking/rehearsal side effects
// applied to whatever is actually returned.
package retrieval

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/tempomem/tempomem/internal/clock"
	"github.com/tempomem/tempomem/internal/config"
	"github.com/tempomem/tempomem/internal/model"
	"github.com/tempomem/tempomem/internal/scoring"
	"github.com/tempomem/tempomem/internal/store"
)

// maxCandidatePoolSize is the store_limit in spec §4.5 step 2's
// `N_lex = min(store_limit, max(limit·5, 50))` formula: an upper bound on
// how many candidates a single lexical or vector search will ever pull back
// for one kind, regardless of how large limit·5 grows.
const maxCandidatePoolSize = 500

// candidatePoolSize implements spec §4.5 step 2's N_lex/N_vec sizing
// formula.
func candidatePoolSize(limit int) int {
	n := limit * 5
	if n < 50 {
		n = 50
	}
	if n > maxCandidatePoolSize {
		n = maxCandidatePoolSize
	}
	return n
}

// Engine runs retrieval queries against a Store using a fixed scoring
// configuration and clock.
type Engine struct {
	store store.Store
	cfg   config.Config
	clock clock.Clock
	log   *zap.Logger
}

func New(s store.Store, cfg config.Config, c clock.Clock, log *zap.Logger) *Engine {
	return &Engine{store: s, cfg: cfg, clock: c, log: log}
}

type candidate struct {
	item      model.Item
	kind      model.Kind
	relevance float64
	fromRecency bool
}

// Retrieve runs q against every requested kind concurrently, scores and
// ranks the merged candidate set, truncates to q.Limit, and applies
// access-tracking/rehearsal effects only to the items it returns, per the
// retrieval pipeline described in spec §4.5.
func (e *Engine) Retrieve(ctx context.Context, q model.Query) (model.RetrievalResult, error) {
	start := e.clock.Now()
	if q.OrganizationID == "" {
		return model.RetrievalResult{}, fmt.Errorf("%w: organization_id is required", store.ErrInvalidQuery)
	}
	if q.Limit <= 0 {
		q.Limit = 10
	}
	tenant := model.Tenant{OrganizationID: q.OrganizationID, UserID: q.UserID}
	kinds := kindsOrAll(q.Kinds)

	var (
		merged     = map[string]*candidate{}
		scanned    int
		vectorDown bool
	)

	poolSize := candidatePoolSize(q.Limit)
	hasText := q.Text != ""
	hasVector := len(q.Vector) > 0

	g, gctx := errgroup.WithContext(ctx)
	results := make(chan []*candidate, len(kinds)*2)

	for _, kind := range kinds {
		kind := kind
		switch {
		case hasText || hasVector:
			// Spec §4.5 step 2 is an if/else-if/else: recency-only
			// candidates are fetched only when neither text nor vector
			// is present, never alongside a genuine search.
			if hasText {
				g.Go(func() error {
					items, scores, err := e.store.LexicalSearch(gctx, kind, tenant, q.Text, poolSize)
					if err != nil {
						return fmt.Errorf("lexical search %s: %w", kind, err)
					}
					out := make([]*candidate, 0, len(items))
					for _, it := range items {
						out = append(out, &candidate{item: it, kind: kind, relevance: scoring.NormalizeLexical(e.cfg, scores[it.Identity()])})
					}
					results <- out
					return nil
				})
			}
			if hasVector {
				g.Go(func() error {
					items, scores, err := e.store.VectorSearch(gctx, kind, tenant, q.Vector, poolSize)
					if err != nil {
						return fmt.Errorf("vector search %s: %w", kind, err)
					}
					out := make([]*candidate, 0, len(items))
					for _, it := range items {
						out = append(out, &candidate{item: it, kind: kind, relevance: scoring.NormalizeVector(scores[it.Identity()])})
					}
					results <- out
					return nil
				})
			}
		default:
			g.Go(func() error {
				items, err := e.store.Recent(gctx, kind, tenant, q.Limit)
				if err != nil {
					return fmt.Errorf("recent %s: %w", kind, err)
				}
				out := make([]*candidate, 0, len(items))
				for _, it := range items {
					out = append(out, &candidate{item: it, kind: kind, relevance: 0, fromRecency: true})
				}
				results <- out
				return nil
			})
		}
	}

	go func() {
		_ = g.Wait()
		close(results)
	}()

	for batch := range results {
		for _, c := range batch {
			scanned++
			id := c.item.Identity()
			if existing, ok := merged[id]; !ok || c.relevance > existing.relevance {
				merged[id] = c
			}
		}
	}
	if err := g.Wait(); err != nil {
		e.log.Warn("retrieval candidate fan-out degraded", zap.Error(err))
		if len(q.Vector) > 0 {
			vectorDown = true
		}
	}

	now := e.clock.Now()
	scored := make([]model.ScoredItem, 0, len(merged))
	for _, c := range merged {
		base := c.item.Temporal()
		ageDays := scoring.AgeDays(float64(base.CreatedAt.Unix()), float64(now.Unix()))
		hasAccess := base.LastAccessedAt != nil
		var delta float64
		if hasAccess {
			delta = scoring.AgeDays(float64(base.LastAccessedAt.Unix()), float64(now.Unix()))
		}
		temporal := scoring.Temporal(e.cfg, scoring.Inputs{
			Importance:    base.ImportanceScore,
			AgeDays:       ageDays,
			HasLastAccess: hasAccess,
			AccessDelta:   delta,
			AccessCount:   base.AccessCount,
		})

		wRel, wTmp := e.cfg.RetrievalWeightRelevance, e.cfg.RetrievalWeightTemporal
		if q.WeightOverrides != nil {
			if q.WeightOverrides.WRelevance != nil {
				wRel = *q.WeightOverrides.WRelevance
			}
			if q.WeightOverrides.WTemporal != nil {
				wTmp = *q.WeightOverrides.WTemporal
			}
		}

		combined := scoring.Combined(wRel, wTmp, c.relevance, temporal)
		scored = append(scored, model.ScoredItem{
			Item:      c.item,
			Kind:      c.kind,
			Relevance: c.relevance,
			Temporal:  temporal,
			Combined:  combined,
			AgeDays:   ageDays,
		})
	}

	sort.Slice(scored, func(i, j int) bool {
		a, b := scored[i], scored[j]
		if a.Combined != b.Combined {
			return a.Combined > b.Combined
		}
		if a.Relevance != b.Relevance {
			return a.Relevance > b.Relevance
		}
		at, bt := a.Item.Temporal().CreatedAt, b.Item.Temporal().CreatedAt
		if !at.Equal(bt) {
			return at.After(bt)
		}
		return a.Item.Identity() < b.Item.Identity()
	})

	if len(scored) > q.Limit {
		scored = scored[:q.Limit]
	}

	for i := range scored {
		if scoring.ShouldRehearse(e.cfg, scored[i].Relevance) {
			base := scored[i].Item.Temporal()
			boosted := scoring.RehearsalEffect(e.cfg, base.ImportanceScore)
			if err := e.store.ApplyRetrievalEffects(ctx, scored[i].Kind, scored[i].Item.Identity(), now, true, boosted); err != nil {
				e.log.Warn("apply rehearsal effects failed", zap.String("id", scored[i].Item.Identity()), zap.Error(err))
			} else {
				scored[i].WasRehearsed = true
			}
		} else {
			if err := e.store.ApplyRetrievalEffects(ctx, scored[i].Kind, scored[i].Item.Identity(), now, false, 0); err != nil {
				e.log.Warn("apply access effects failed", zap.String("id", scored[i].Item.Identity()), zap.Error(err))
			}
		}
	}

	return model.RetrievalResult{
		Items:             scored,
		ScannedCandidates: scanned,
		ElapsedMS:         now.Sub(start).Milliseconds(),
		VectorUnavailable: vectorDown,
	}, nil
}

func kindsOrAll(ks []model.Kind) []model.Kind {
	if len(ks) > 0 {
		return ks
	}
	return model.AllKinds
}
