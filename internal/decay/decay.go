// Package decay implements the batched forgetting cycle: walk each tenant's
// items oldest-first, score them against a single captured instant, and
// delete whatever the scoring engine marks forgettable.
package decay

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/tempomem/tempomem/internal/clock"
	"github.com/tempomem/tempomem/internal/config"
	"github.com/tempomem/tempomem/internal/model"
	"github.com/tempomem/tempomem/internal/scoring"
	"github.com/tempomem/tempomem/internal/store"
)

const (
	defaultBatchSize = 500
	maxSamplePerKind = 20
)

// Runner executes decay cycles against a Store using a fixed scoring
// configuration and clock.
type Runner struct {
	store store.Store
	cfg   config.Config
	clock clock.Clock
	log   *zap.Logger
}

func New(s store.Store, cfg config.Config, c clock.Clock, log *zap.Logger) *Runner {
	return &Runner{store: s, cfg: cfg, clock: c, log: log}
}

// SampleEntry records one decision made during a cycle, for the report's
// bounded sample.
type SampleEntry struct {
	ID     string               `json:"id"`
	Kind   model.Kind           `json:"kind"`
	Reason scoring.DeletionReason `json:"reason"`
}

// KindReport summarizes one kind's contribution to a cycle, per spec §4.7
// step 6: "per-kind counts of scanned, to_delete, deleted, errors".
type KindReport struct {
	Kind      model.Kind `json:"kind"`
	Scanned   int        `json:"scanned"`
	ToDelete  int        `json:"to_delete"`
	Deleted   int        `json:"deleted"`
	Errors    int        `json:"errors"`
	Remaining int        `json:"remaining,omitempty"`
}

// Report is the outcome of one RunCycle call.
type Report struct {
	DryRun     bool          `json:"dry_run"`
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at"`
	Kinds      []KindReport  `json:"kinds"`
	Sample     []SampleEntry `json:"sample"`
}

// RunCycle walks every requested kind for one tenant, batch by batch, and
// deletes items the scoring engine marks forgettable. All scoring within a
// cycle uses the same `now`, captured once at the start, so a long-running
// cycle doesn't let items drift into or out of eligibility mid-scan.
func (r *Runner) RunCycle(ctx context.Context, tenant model.Tenant, dryRun bool, batchSize int) (Report, error) {
	if !r.cfg.Enabled {
		return Report{}, fmt.Errorf("decay disabled by configuration")
	}
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	now := r.clock.Now()
	report := Report{DryRun: dryRun, StartedAt: now}

	for _, kind := range model.AllKinds {
		kr := KindReport{Kind: kind}
		samplesForKind := 0
		afterID := ""
		afterCreated := time.Unix(0, 0).UTC()

		for {
			batch, err := r.store.ScanTenant(ctx, kind, tenant, afterID, afterCreated, batchSize)
			if err != nil {
				return report, fmt.Errorf("scan %s: %w", kind, err)
			}
			if len(batch) == 0 {
				break
			}

			var toDelete []string
			var toDeleteSamples []SampleEntry
			for _, item := range batch {
				kr.Scanned++
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
				temporal := scoring.Temporal(r.cfg, in)
				del, reason := scoring.ShouldDelete(r.cfg, in, temporal)
				if del {
					kr.ToDelete++
					toDelete = append(toDelete, item.Identity())
					if samplesForKind < maxSamplePerKind {
						toDeleteSamples = append(toDeleteSamples, SampleEntry{ID: item.Identity(), Kind: kind, Reason: reason})
						samplesForKind++
					}
				}
			}

			last := batch[len(batch)-1]
			afterID = last.Identity()
			afterCreated = last.Temporal().CreatedAt

			switch {
			case dryRun:
				report.Sample = append(report.Sample, toDeleteSamples...)
			case len(toDelete) > 0:
				// Per spec §4.7 step 5, a failure deleting one batch does
				// not roll back batches already committed for this or
				// other kinds; it's recorded as a partial-progress error
				// count and the cycle continues with the next batch/kind.
				if err := r.store.DeleteMany(ctx, kind, toDelete); err != nil {
					kr.Errors += len(toDelete)
					r.log.Warn("decay batch delete failed, continuing with partial progress",
						zap.String("organization_id", tenant.OrganizationID),
						zap.String("kind", string(kind)),
						zap.Error(err))
				} else {
					kr.Deleted += len(toDelete)
					report.Sample = append(report.Sample, toDeleteSamples...)
				}
			}

			if len(batch) < batchSize {
				break
			}
		}

		report.Kinds = append(report.Kinds, kr)
	}

	report.FinishedAt = r.clock.Now()
	r.log.Info("decay cycle complete",
		zap.String("organization_id", tenant.OrganizationID),
		zap.Bool("dry_run", dryRun))
	return report, nil
}

// RunForAllTenants runs RunCycle for each tenant in the given list, in order,
// supplementing the spec's single-tenant cycle with the sweep the mirix
// scheduler performs across its whole install. It stops at the first tenant
// whose cycle fails and returns the reports gathered so far.
func (r *Runner) RunForAllTenants(ctx context.Context, tenants []model.Tenant, dryRun bool, batchSize int) ([]Report, error) {
	reports := make([]Report, 0, len(tenants))
	for _, t := range tenants {
		rep, err := r.RunCycle(ctx, t, dryRun, batchSize)
		if err != nil {
			return reports, fmt.Errorf("tenant %s: %w", t.OrganizationID, err)
		}
		reports = append(reports, rep)
	}
	return reports, nil
}
