// Package embedding provides a pluggable interface for text embedding
// providers, scoped per memory item kind per spec §6.5's
// `embed(text, kind) -> float[d]` external-collaborator contract: vectors
// for the same kind must share a fixed dimension, but different kinds may
// route to different underlying models (e.g. a higher-fidelity model for
// knowledge_vault_item content versus a cheaper one for chat_message turns).
package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/tempomem/tempomem/internal/model"
)

// Vector is a float32 embedding vector.
type Vector = []float32

// Embedder generates embedding vectors from text for a given memory item
// kind. Dims reports the fixed dimension a kind's vectors are produced at,
// which may differ across kinds if the provider routes kinds to different
// underlying models.
type Embedder interface {
	Embed(ctx context.Context, kind model.Kind, text string) (Vector, error)
	Dims(kind model.Kind) int
}

// CosineSimilarity computes cosine similarity between two vectors.
func CosineSimilarity(a, b Vector) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// kindOverride is a per-kind (model name, dimension) pair that takes
// precedence over a provider's default model/dims.
type kindOverride struct {
	model string
	dims  int
}

// --- Ollama Provider ---

// OllamaEmbedder uses a local Ollama instance for embeddings.
type OllamaEmbedder struct {
	baseURL   string
	model     string
	dims      int
	overrides map[model.Kind]kindOverride
	client    *http.Client
}

type ollamaRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type ollamaResponse struct {
	Embedding []float32 `json:"embedding"`
}

// NewOllamaEmbedder creates an embedder using Ollama's API.
// Default model: nomic-embed-text (768 dims), all-minilm (384 dims).
func NewOllamaEmbedder(modelName string) *OllamaEmbedder {
	baseURL := os.Getenv("OLLAMA_HOST")
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	dims := 768 // default for nomic-embed-text
	if modelName == "all-minilm" {
		dims = 384
	}
	return &OllamaEmbedder{
		baseURL: baseURL,
		model:   modelName,
		dims:    dims,
		client:  &http.Client{Timeout: 30 * time.Second},
	}
}

// WithKindOverride routes a specific kind to a different model/dims pair
// than the embedder's default, so e.g. knowledge_vault_item content can use
// a larger embedding model than chat_message turns.
func (e *OllamaEmbedder) WithKindOverride(kind model.Kind, modelName string, dims int) *OllamaEmbedder {
	if e.overrides == nil {
		e.overrides = make(map[model.Kind]kindOverride)
	}
	e.overrides[kind] = kindOverride{model: modelName, dims: dims}
	return e
}

func (e *OllamaEmbedder) modelFor(kind model.Kind) string {
	if o, ok := e.overrides[kind]; ok {
		return o.model
	}
	return e.model
}

func (e *OllamaEmbedder) Embed(ctx context.Context, kind model.Kind, text string) (Vector, error) {
	body, _ := json.Marshal(ollamaRequest{Model: e.modelFor(kind), Prompt: text})
	req, err := http.NewRequestWithContext(ctx, "POST", e.baseURL+"/api/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ollama request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("ollama error %d: %s", resp.StatusCode, string(b))
	}

	var result ollamaResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, err
	}
	return result.Embedding, nil
}

func (e *OllamaEmbedder) Dims(kind model.Kind) int {
	if o, ok := e.overrides[kind]; ok && o.dims > 0 {
		return o.dims
	}
	return e.dims
}

// --- OpenAI-compatible Provider ---

// OpenAIEmbedder uses any OpenAI-compatible embedding API.
type OpenAIEmbedder struct {
	baseURL   string
	apiKey    string
	model     string
	dims      int
	overrides map[model.Kind]kindOverride
	client    *http.Client
}

type openaiEmbedRequest struct {
	Input string `json:"input"`
	Model string `json:"model"`
}

type openaiEmbedResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

// NewOpenAIEmbedder creates an embedder using an OpenAI-compatible API.
func NewOpenAIEmbedder(baseURL, apiKey, modelName string, dims int) *OpenAIEmbedder {
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	if modelName == "" {
		modelName = "text-embedding-3-small"
	}
	if dims == 0 {
		dims = 1536
	}
	return &OpenAIEmbedder{
		baseURL: baseURL,
		apiKey:  apiKey,
		model:   modelName,
		dims:    dims,
		client:  &http.Client{Timeout: 30 * time.Second},
	}
}

// WithKindOverride routes a specific kind to a different model/dims pair
// than the embedder's default.
func (e *OpenAIEmbedder) WithKindOverride(kind model.Kind, modelName string, dims int) *OpenAIEmbedder {
	if e.overrides == nil {
		e.overrides = make(map[model.Kind]kindOverride)
	}
	e.overrides[kind] = kindOverride{model: modelName, dims: dims}
	return e
}

func (e *OpenAIEmbedder) modelFor(kind model.Kind) string {
	if o, ok := e.overrides[kind]; ok {
		return o.model
	}
	return e.model
}

func (e *OpenAIEmbedder) Embed(ctx context.Context, kind model.Kind, text string) (Vector, error) {
	body, _ := json.Marshal(openaiEmbedRequest{Input: text, Model: e.modelFor(kind)})
	req, err := http.NewRequestWithContext(ctx, "POST", e.baseURL+"/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if e.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+e.apiKey)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("openai request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("openai error %d: %s", resp.StatusCode, string(b))
	}

	var result openaiEmbedResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, err
	}
	if len(result.Data) == 0 {
		return nil, fmt.Errorf("no embedding returned")
	}
	return result.Data[0].Embedding, nil
}

func (e *OpenAIEmbedder) Dims(kind model.Kind) int {
	if o, ok := e.overrides[kind]; ok && o.dims > 0 {
		return o.dims
	}
	return e.dims
}

// --- Factory ---

// NewFromEnv creates an embedder from environment variables.
// TEMPOMEM_EMBED_PROVIDER: "ollama" | "openai" | "" (disabled)
// TEMPOMEM_EMBED_MODEL: default model name
// TEMPOMEM_EMBED_URL: base URL override
// TEMPOMEM_EMBED_MODEL_OVERRIDES: "kind=model[:dims],kind=model[:dims],..."
// routes specific kinds to a different model, per spec §6.5.
// OPENAI_API_KEY: for openai provider
func NewFromEnv() Embedder {
	provider := os.Getenv("TEMPOMEM_EMBED_PROVIDER")
	modelName := os.Getenv("TEMPOMEM_EMBED_MODEL")
	overrides := parseKindOverrides(os.Getenv("TEMPOMEM_EMBED_MODEL_OVERRIDES"))

	switch provider {
	case "ollama":
		if modelName == "" {
			modelName = "nomic-embed-text"
		}
		e := NewOllamaEmbedder(modelName)
		for kind, o := range overrides {
			e.WithKindOverride(kind, o.model, o.dims)
		}
		return e
	case "openai":
		url := os.Getenv("TEMPOMEM_EMBED_URL")
		key := os.Getenv("OPENAI_API_KEY")
		e := NewOpenAIEmbedder(url, key, modelName, 0)
		for kind, o := range overrides {
			e.WithKindOverride(kind, o.model, o.dims)
		}
		return e
	default:
		return nil // embeddings disabled
	}
}

// parseKindOverrides parses "kind=model[:dims],..." into per-kind overrides,
// silently skipping malformed entries or kinds that aren't recognized, per
// spec §6.7's "unknown variables are ignored with a warning" posture.
func parseKindOverrides(raw string) map[model.Kind]kindOverride {
	out := map[model.Kind]kindOverride{}
	if raw == "" {
		return out
	}
	for _, entry := range strings.Split(raw, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		kindPart, modelPart, ok := strings.Cut(entry, "=")
		if !ok {
			continue
		}
		kind := model.Kind(strings.TrimSpace(kindPart))
		if !kind.Valid() {
			continue
		}
		modelName, dimsPart, hasDims := strings.Cut(modelPart, ":")
		dims := 0
		if hasDims {
			for _, c := range dimsPart {
				if c < '0' || c > '9' {
					dims = 0
					break
				}
				dims = dims*10 + int(c-'0')
			}
		}
		out[kind] = kindOverride{model: strings.TrimSpace(modelName), dims: dims}
	}
	return out
}
