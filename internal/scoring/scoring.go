// Package scoring implements the pure temporal scoring engine: age, decay,
// recency, frequency, temporal score, combined score, and the rehearsal and
// deletion predicates (spec §4.3). Every function here is deterministic in
// its inputs and performs no I/O — now is always passed in, never read from
// a wall clock.
package scoring

import (
	"math"

	"github.com/tempomem/tempomem/internal/config"
)

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// AgeDays returns max(0, (now-createdAt)/86400), per spec §4.3.1.
func AgeDays(createdAtUnix, nowUnix float64) float64 {
	return math.Max(0, (nowUnix-createdAtUnix)/86400.0)
}

// DecayFactor computes the hybrid exponential/power-law decay, spec §4.3.2.
// w is the (already-clamped) importance score; t is age in days.
func DecayFactor(cfg config.Config, w, t float64) float64 {
	w = clamp(w, cfg.MinImportance, cfg.MaxImportance)
	expTerm := math.Exp(-cfg.DecayLambda * t)
	powerTerm := math.Pow(1+t, -cfg.DecayAlpha)
	decay := (1-w)*expTerm + w*powerTerm
	return clamp(decay, 0, 1)
}

// Recency computes the recency bonus, spec §4.3.3. hasLastAccess is false
// when last_accessed_at is null; deltaDays is (now-last_accessed_at)/86400.
func Recency(cfg config.Config, hasLastAccess bool, deltaDays float64) float64 {
	if !hasLastAccess {
		return 0
	}
	return clamp(math.Exp(-cfg.RecencyHalvingRate*deltaDays), 0, 1)
}

// Frequency computes the frequency score, spec §4.3.4.
func Frequency(cfg config.Config, accessCount int64) float64 {
	if accessCount <= 0 {
		return 0
	}
	f := math.Log2(float64(accessCount)+1) / cfg.FrequencyScale
	if f > 1 {
		return 1
	}
	return f
}

// Inputs bundles the raw attributes the temporal score needs, so callers
// (the store, the retrieval pipeline, the decay task) don't have to thread
// eight positional floats through every call site.
type Inputs struct {
	Importance    float64
	AgeDays       float64
	HasLastAccess bool
	AccessDelta   float64 // days since last access, meaningless if !HasLastAccess
	AccessCount   int64
}

// Temporal computes the temporal score, spec §4.3.5. When cfg.Enabled is
// false, the temporal score collapses to the clamped importance score.
func Temporal(cfg config.Config, in Inputs) float64 {
	if !cfg.Enabled {
		return clamp(in.Importance, 0, 1)
	}
	w := clamp(in.Importance, cfg.MinImportance, cfg.MaxImportance)
	decay := DecayFactor(cfg, w, in.AgeDays)
	recency := Recency(cfg, in.HasLastAccess, in.AccessDelta)
	frequency := Frequency(cfg, in.AccessCount)

	temporal := in.Importance*decay + cfg.RecencyWeight*recency + cfg.FrequencyWeight*frequency
	return clamp(temporal, 0, 1)
}

// NormalizeLexical normalizes a raw BM25 score into [0,1], spec §4.3.6.
func NormalizeLexical(cfg config.Config, bm25Score float64) float64 {
	if cfg.RelevanceNormalizationScale <= 0 {
		return 0
	}
	n := bm25Score / cfg.RelevanceNormalizationScale
	if n > 1 {
		return 1
	}
	if n < 0 {
		return 0
	}
	return n
}

// NormalizeVector normalizes a cosine similarity into [0,1], spec §4.3.6.
func NormalizeVector(cosine float64) float64 {
	return math.Max(0, cosine)
}

// Combined computes the convex combination of relevance and temporal score,
// spec §4.3.7, clamped to [0,1]. Weights are taken from cfg unless
// overridden by the caller (wRel/wTmp directly, not via Config.Enabled —
// combination always applies; the Enabled flag only forces temporal to
// importance upstream in Temporal()).
func Combined(wRel, wTmp, relevance, temporal float64) float64 {
	return clamp(wRel*relevance+wTmp*temporal, 0, 1)
}

// ShouldRehearse implements the rehearsal predicate, spec §4.3.8.
func ShouldRehearse(cfg config.Config, relevance float64) bool {
	if !cfg.Enabled {
		return false
	}
	return relevance >= cfg.RehearsalThreshold
}

// RehearsalEffect computes the post-rehearsal importance score, clamped to
// max_importance, per spec §4.3.8. The caller is responsible for bumping
// rehearsal_count and stamping last_modified.
func RehearsalEffect(cfg config.Config, importance float64) float64 {
	boosted := importance + cfg.RehearsalBoost
	if boosted > cfg.MaxImportance {
		return cfg.MaxImportance
	}
	return boosted
}

// DeletionReason names why an item is eligible for eviction, spec §4.3.9.
type DeletionReason string

const (
	ReasonNone       DeletionReason = ""
	ReasonExceededAge DeletionReason = "exceeded max age"
	ReasonLowScore   DeletionReason = "temporal score below threshold"
)

// ShouldDelete implements the deletion predicate, spec §4.3.9. Age is
// checked first; a tie between the two reasons always reports age, matching
// "the first matching reason is reported."
func ShouldDelete(cfg config.Config, in Inputs, temporalScore float64) (bool, DeletionReason) {
	if !cfg.Enabled {
		return false, ReasonNone
	}
	if in.AgeDays > cfg.MaxAgeDays {
		return true, ReasonExceededAge
	}
	if temporalScore < cfg.DeletionThreshold {
		return true, ReasonLowScore
	}
	return false, ReasonNone
}
