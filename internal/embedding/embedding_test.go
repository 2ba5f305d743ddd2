package embedding

import (
	"math"
	"testing"

	"github.com/tempomem/tempomem/internal/model"
)

func TestCosineSimilarity(t *testing.T) {
	tests := []struct {
		name     string
		a, b     Vector
		expected float64
		delta    float64
	}{
		{"identical", Vector{1, 0, 0}, Vector{1, 0, 0}, 1.0, 0.001},
		{"orthogonal", Vector{1, 0, 0}, Vector{0, 1, 0}, 0.0, 0.001},
		{"opposite", Vector{1, 0, 0}, Vector{-1, 0, 0}, -1.0, 0.001},
		{"similar", Vector{1, 1, 0}, Vector{1, 0, 0}, 0.707, 0.01},
		{"empty", Vector{}, Vector{}, 0.0, 0.001},
		{"different lengths", Vector{1, 0}, Vector{1, 0, 0}, 0.0, 0.001},
		{"zero vector", Vector{0, 0, 0}, Vector{1, 0, 0}, 0.0, 0.001},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CosineSimilarity(tt.a, tt.b)
			if math.Abs(got-tt.expected) > tt.delta {
				t.Errorf("CosineSimilarity(%v, %v) = %f, want %f (±%f)", tt.a, tt.b, got, tt.expected, tt.delta)
			}
		})
	}
}

func TestNewFromEnv_Disabled(t *testing.T) {
	e := NewFromEnv()
	if e != nil {
		t.Error("expected nil embedder when no provider configured")
	}
}

func TestParseKindOverrides(t *testing.T) {
	overrides := parseKindOverrides("semantic_item=text-embedding-3-large:3072,knowledge_vault_item=text-embedding-3-large:3072,bogus=whatever,malformed")
	if len(overrides) != 2 {
		t.Fatalf("expected 2 recognized overrides, got %d: %+v", len(overrides), overrides)
	}
	o, ok := overrides[model.KindSemantic]
	if !ok || o.model != "text-embedding-3-large" || o.dims != 3072 {
		t.Errorf("unexpected override for semantic_item: %+v", o)
	}
	if _, ok := overrides[model.Kind("bogus")]; ok {
		t.Error("unrecognized kind should be ignored, not recorded")
	}
}

func TestOllamaEmbedderKindOverrideChangesModelAndDims(t *testing.T) {
	e := NewOllamaEmbedder("nomic-embed-text")
	if e.Dims(model.KindChatMessage) != 768 {
		t.Fatalf("expected default dims 768, got %d", e.Dims(model.KindChatMessage))
	}
	e.WithKindOverride(model.KindVault, "all-minilm", 384)
	if e.Dims(model.KindVault) != 384 {
		t.Errorf("expected overridden dims 384 for knowledge_vault_item, got %d", e.Dims(model.KindVault))
	}
	if e.modelFor(model.KindVault) != "all-minilm" {
		t.Errorf("expected overridden model for knowledge_vault_item, got %q", e.modelFor(model.KindVault))
	}
	if e.modelFor(model.KindChatMessage) != "nomic-embed-text" {
		t.Errorf("expected default model for an un-overridden kind, got %q", e.modelFor(model.KindChatMessage))
	}
}
