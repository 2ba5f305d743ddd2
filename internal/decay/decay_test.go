package decay

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/tempomem/tempomem/internal/clock"
	"github.com/tempomem/tempomem/internal/config"
	"github.com/tempomem/tempomem/internal/model"
	"github.com/tempomem/tempomem/internal/store"
)

func newTestStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	dsn := "file:" + t.Name() + "?mode=memory&cache=shared"
	s, err := store.Open(context.Background(), dsn, zap.NewNop())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestRunCycleDeletesLowScoreOldItems(t *testing.T) {
	s := newTestStore(t)
	now := time.Now().UTC()
	old := now.AddDate(0, 0, -40)

	if err := s.Create(context.Background(), &model.SemanticItem{
		Base: model.Base{ID: "forget-me", OrganizationID: "org-1", CreatedAt: old, ImportanceScore: 0.1,
			LastModified: model.LastModified{Timestamp: old, Operation: "create"}},
		Name: "stale", Summary: "low importance, never accessed, 40 days old", Details: "d",
	}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := s.Create(context.Background(), &model.SemanticItem{
		Base: model.Base{ID: "keep-me", OrganizationID: "org-1", CreatedAt: now, ImportanceScore: 0.9,
			LastModified: model.LastModified{Timestamp: now, Operation: "create"}},
		Name: "fresh", Summary: "high importance, brand new", Details: "d",
	}); err != nil {
		t.Fatalf("create: %v", err)
	}

	runner := New(s, config.Default(), clock.Fixed{At: now}, zap.NewNop())
	report, err := runner.RunCycle(context.Background(), model.Tenant{OrganizationID: "org-1"}, false, 100)
	if err != nil {
		t.Fatalf("run cycle: %v", err)
	}

	remaining, err := s.GetByIDs(context.Background(), model.KindSemantic, model.Tenant{OrganizationID: "org-1"}, []string{"forget-me", "keep-me"})
	if err != nil {
		t.Fatalf("get by ids: %v", err)
	}
	if len(remaining) != 1 || remaining[0].Identity() != "keep-me" {
		t.Fatalf("expected only keep-me to survive, got %v", remaining)
	}

	var semReport *KindReport
	for i := range report.Kinds {
		if report.Kinds[i].Kind == model.KindSemantic {
			semReport = &report.Kinds[i]
		}
	}
	if semReport == nil || semReport.Deleted != 1 {
		t.Fatalf("expected semantic_item report to show 1 deletion, got %+v", semReport)
	}
}

func TestRunCycleDryRunDeletesNothing(t *testing.T) {
	s := newTestStore(t)
	now := time.Now().UTC()
	old := now.AddDate(0, 0, -40)

	if err := s.Create(context.Background(), &model.SemanticItem{
		Base: model.Base{ID: "would-forget", OrganizationID: "org-1", CreatedAt: old, ImportanceScore: 0.1,
			LastModified: model.LastModified{Timestamp: old, Operation: "create"}},
		Name: "stale", Summary: "low importance, never accessed", Details: "d",
	}); err != nil {
		t.Fatalf("create: %v", err)
	}

	runner := New(s, config.Default(), clock.Fixed{At: now}, zap.NewNop())
	report, err := runner.RunCycle(context.Background(), model.Tenant{OrganizationID: "org-1"}, true, 100)
	if err != nil {
		t.Fatalf("run cycle: %v", err)
	}
	if len(report.Sample) == 0 {
		t.Error("expected the dry run to still report a sample of what would be deleted")
	}

	var semReport *KindReport
	for i := range report.Kinds {
		if report.Kinds[i].Kind == model.KindSemantic {
			semReport = &report.Kinds[i]
		}
	}
	if semReport == nil || semReport.ToDelete != 1 {
		t.Fatalf("expected to_delete=1 for the planned deletion, got %+v", semReport)
	}
	if semReport.Deleted != 0 {
		t.Errorf("dry run must not report anything as actually deleted, got deleted=%d", semReport.Deleted)
	}

	remaining, err := s.GetByIDs(context.Background(), model.KindSemantic, model.Tenant{OrganizationID: "org-1"}, []string{"would-forget"})
	if err != nil {
		t.Fatalf("get by ids: %v", err)
	}
	if len(remaining) != 1 {
		t.Error("dry run must not delete anything")
	}
}

func TestRunCycleSamplesUpTo20PerKind(t *testing.T) {
	s := newTestStore(t)
	now := time.Now().UTC()
	old := now.AddDate(0, 0, -40)

	for i := 0; i < 25; i++ {
		id := "stale-" + string(rune('a'+i))
		if err := s.Create(context.Background(), &model.SemanticItem{
			Base: model.Base{ID: id, OrganizationID: "org-1", CreatedAt: old, ImportanceScore: 0.1,
				LastModified: model.LastModified{Timestamp: old, Operation: "create"}},
			Name: "stale", Summary: "low importance, never accessed", Details: "d",
		}); err != nil {
			t.Fatalf("create: %v", err)
		}
	}

	runner := New(s, config.Default(), clock.Fixed{At: now}, zap.NewNop())
	report, err := runner.RunCycle(context.Background(), model.Tenant{OrganizationID: "org-1"}, true, 100)
	if err != nil {
		t.Fatalf("run cycle: %v", err)
	}

	var semReport *KindReport
	for i := range report.Kinds {
		if report.Kinds[i].Kind == model.KindSemantic {
			semReport = &report.Kinds[i]
		}
	}
	if semReport == nil || semReport.ToDelete != 25 {
		t.Fatalf("expected to_delete=25, got %+v", semReport)
	}

	var semanticSamples int
	for _, entry := range report.Sample {
		if entry.Kind == model.KindSemantic {
			semanticSamples++
		}
	}
	if semanticSamples != 20 {
		t.Errorf("expected the sample to cap at 20 per kind, got %d", semanticSamples)
	}
}

func TestRunCycleRejectsDisabledConfig(t *testing.T) {
	s := newTestStore(t)
	cfg := config.Default()
	cfg.Enabled = false
	runner := New(s, cfg, clock.Real{}, zap.NewNop())
	if _, err := runner.RunCycle(context.Background(), model.Tenant{OrganizationID: "org-1"}, false, 0); err == nil {
		t.Error("expected an error running decay while disabled")
	}
}
