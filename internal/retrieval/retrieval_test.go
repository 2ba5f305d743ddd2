package retrieval

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

func TestRetrieveRanksByLexicalRelevance(t *testing.T) {
	s := newTestStore(t)
	now := time.Now().UTC()

	mustCreate(t, s, &model.ChatMessage{
		Base:    model.Base{ID: "m1", OrganizationID: "org-1", CreatedAt: now, ImportanceScore: 0.5, LastModified: model.LastModified{Timestamp: now, Operation: "create"}},
		Role:    "user", Content: "deploying kubernetes clusters with terraform",
	})
	mustCreate(t, s, &model.ChatMessage{
		Base:    model.Base{ID: "m2", OrganizationID: "org-1", CreatedAt: now, ImportanceScore: 0.5, LastModified: model.LastModified{Timestamp: now, Operation: "create"}},
		Role:    "user", Content: "baking sourdough bread at home",
	})

	engine := New(s, config.Default(), clock.Fixed{At: now}, zap.NewNop())
	result, err := engine.Retrieve(context.Background(), model.Query{
		OrganizationID: "org-1", Kinds: []model.Kind{model.KindChatMessage}, Text: "kubernetes terraform", Limit: 5,
	})
	if err != nil {
		t.Fatalf("retrieve: %v", err)
	}
	if len(result.Items) == 0 {
		t.Fatal("expected at least one result")
	}
	if result.Items[0].Item.Identity() != "m1" {
		t.Errorf("expected m1 ranked first, got %s", result.Items[0].Item.Identity())
	}
}

func TestRetrieveAppliesAccessEffects(t *testing.T) {
	s := newTestStore(t)
	now := time.Now().UTC()
	mustCreate(t, s, &model.SemanticItem{
		Base: model.Base{ID: "s1", OrganizationID: "org-1", CreatedAt: now, ImportanceScore: 0.5, LastModified: model.LastModified{Timestamp: now, Operation: "create"}},
		Name: "fact", Summary: "rainfall patterns in the pacific northwest", Details: "seasonal variation",
	})

	engine := New(s, config.Default(), clock.Fixed{At: now}, zap.NewNop())
	_, err := engine.Retrieve(context.Background(), model.Query{
		OrganizationID: "org-1", Kinds: []model.Kind{model.KindSemantic}, Text: "rainfall pacific", Limit: 5,
	})
	if err != nil {
		t.Fatalf("retrieve: %v", err)
	}

	got, err := s.GetByIDs(context.Background(), model.KindSemantic, model.Tenant{OrganizationID: "org-1"}, []string{"s1"})
	if err != nil {
		t.Fatalf("get by ids: %v", err)
	}
	if got[0].Temporal().AccessCount != 1 {
		t.Errorf("expected access_count 1 after retrieval, got %d", got[0].Temporal().AccessCount)
	}
}

func TestRetrieveTextQueryDoesNotMergeRecencyCandidates(t *testing.T) {
	s := newTestStore(t)
	now := time.Now().UTC()
	mustCreate(t, s, &model.ChatMessage{
		Base: model.Base{ID: "match", OrganizationID: "org-1", CreatedAt: now, ImportanceScore: 0.5, LastModified: model.LastModified{Timestamp: now, Operation: "create"}},
		Role: "user", Content: "kubernetes terraform deployment",
	})
	mustCreate(t, s, &model.ChatMessage{
		Base: model.Base{ID: "unrelated", OrganizationID: "org-1", CreatedAt: now, ImportanceScore: 0.5, LastModified: model.LastModified{Timestamp: now, Operation: "create"}},
		Role: "user", Content: "baking sourdough bread at home",
	})

	engine := New(s, config.Default(), clock.Fixed{At: now}, zap.NewNop())
	result, err := engine.Retrieve(context.Background(), model.Query{
		OrganizationID: "org-1", Kinds: []model.Kind{model.KindChatMessage}, Text: "kubernetes terraform", Limit: 5,
	})
	if err != nil {
		t.Fatalf("retrieve: %v", err)
	}
	if result.ScannedCandidates != 1 {
		t.Errorf("expected only the lexical match to be scanned (no merged recency candidates), got %d scanned", result.ScannedCandidates)
	}
	for _, item := range result.Items {
		if item.Item.Identity() == "unrelated" {
			t.Error("zero-relevance recency candidate should not appear in a text query's results")
		}
	}
}

func TestRetrieveRequiresOrganizationID(t *testing.T) {
	s := newTestStore(t)
	engine := New(s, config.Default(), clock.Real{}, zap.NewNop())
	if _, err := engine.Retrieve(context.Background(), model.Query{}); err == nil {
		t.Error("expected an error when organization_id is missing")
	}
}

func mustCreate(t *testing.T, s *store.SQLiteStore, item model.Item) {
	t.Helper()
	if err := s.Create(context.Background(), item); err != nil {
		t.Fatalf("create: %v", err)
	}
}
