package writeapi

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

func TestCreateAssignsIDAndDefaults(t *testing.T) {
	s := newTestStore(t)
	api := New(s, config.Default(), clock.Fixed{At: time.Now().UTC()})

	created, err := api.Create(context.Background(), CreateInput{
		OrganizationID: "org-1",
		Item:           &model.SemanticItem{Name: "n", Summary: "s", Details: "d"},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if created.Identity() == "" {
		t.Error("expected a generated ID")
	}
	if created.Temporal().ImportanceScore != 0.5 {
		t.Errorf("expected default importance 0.5, got %v", created.Temporal().ImportanceScore)
	}
}

func TestCreateRequiresOrganizationID(t *testing.T) {
	s := newTestStore(t)
	api := New(s, config.Default(), clock.Real{})
	_, err := api.Create(context.Background(), CreateInput{
		Item: &model.SemanticItem{Name: "n", Summary: "s", Details: "d"},
	})
	if err == nil {
		t.Error("expected an error when organization_id is missing")
	}
}

func TestCreateClampsOutOfRangeImportance(t *testing.T) {
	s := newTestStore(t)
	api := New(s, config.Default(), clock.Fixed{At: time.Now().UTC()})

	tooHigh := 5.0
	created, err := api.Create(context.Background(), CreateInput{
		OrganizationID:  "org-1",
		ImportanceScore: &tooHigh,
		Item:            &model.SemanticItem{Name: "n", Summary: "s", Details: "d"},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if created.Temporal().ImportanceScore != 1.0 {
		t.Errorf("expected importance clamped to 1.0, got %v", created.Temporal().ImportanceScore)
	}

	tooLow := -2.0
	created, err = api.Create(context.Background(), CreateInput{
		OrganizationID:  "org-1",
		ImportanceScore: &tooLow,
		Item:            &model.SemanticItem{Name: "n2", Summary: "s", Details: "d"},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if created.Temporal().ImportanceScore != 0.0 {
		t.Errorf("expected importance clamped to 0.0, got %v", created.Temporal().ImportanceScore)
	}
}

func TestUpdateClampsOutOfRangeImportance(t *testing.T) {
	s := newTestStore(t)
	api := New(s, config.Default(), clock.Fixed{At: time.Now().UTC()})

	created, err := api.Create(context.Background(), CreateInput{
		OrganizationID: "org-1",
		Item:           &model.SemanticItem{Name: "n", Summary: "s", Details: "d"},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	tooHigh := 3.0
	err = api.Update(context.Background(), UpdateInput{
		Kind:            model.KindSemantic,
		ID:              created.Identity(),
		OrganizationID:  "org-1",
		ImportanceScore: &tooHigh,
	}, func(item model.Item) error { return nil })
	if err != nil {
		t.Fatalf("update: %v", err)
	}

	got, err := s.GetByIDs(context.Background(), model.KindSemantic, model.Tenant{OrganizationID: "org-1"}, []string{created.Identity()})
	if err != nil {
		t.Fatalf("get by ids: %v", err)
	}
	if got[0].Temporal().ImportanceScore != 1.0 {
		t.Errorf("expected importance clamped to 1.0, got %v", got[0].Temporal().ImportanceScore)
	}
}

func TestUpdateAppliesContentMutation(t *testing.T) {
	s := newTestStore(t)
	api := New(s, config.Default(), clock.Fixed{At: time.Now().UTC()})

	created, err := api.Create(context.Background(), CreateInput{
		OrganizationID: "org-1",
		Item:           &model.SemanticItem{Name: "n", Summary: "original", Details: "d"},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	err = api.Update(context.Background(), UpdateInput{
		Kind:           model.KindSemantic,
		ID:             created.Identity(),
		OrganizationID: "org-1",
	}, func(item model.Item) error {
		item.(*model.SemanticItem).Summary = "updated"
		return nil
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}

	got, err := s.GetByIDs(context.Background(), model.KindSemantic, model.Tenant{OrganizationID: "org-1"}, []string{created.Identity()})
	if err != nil {
		t.Fatalf("get by ids: %v", err)
	}
	if got[0].(*model.SemanticItem).Summary != "updated" {
		t.Errorf("expected summary updated, got %q", got[0].(*model.SemanticItem).Summary)
	}
}
