// Package config loads the frozen, validated scoring/eviction parameter
// set described in spec §4.2, bound to environment variables per §6.7.
package config

import (
	"fmt"

	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every recognized environment variable, e.g.
// TEMPOMEM_DECAY_LAMBDA.
const EnvPrefix = "TEMPOMEM"

// Config is the frozen parameter set for the scoring engine and decay task.
// Once Load returns, a Config is never mutated — it is shared, read-only
// state (spec §5).
type Config struct {
	Enabled                     bool
	DecayLambda                 float64
	DecayAlpha                  float64
	RehearsalThreshold          float64
	DeletionThreshold           float64
	MaxAgeDays                  float64
	RetrievalWeightRelevance    float64
	RetrievalWeightTemporal     float64
	RehearsalBoost              float64
	MaxImportance               float64
	MinImportance               float64
	RelevanceNormalizationScale float64
	RecencyHalvingRate          float64
	RecencyWeight               float64
	FrequencyWeight             float64
	FrequencyScale              float64
}

// Default returns the option table from spec §4.2 verbatim.
func Default() Config {
	return Config{
		Enabled:                     true,
		DecayLambda:                 0.05,
		DecayAlpha:                  1.5,
		RehearsalThreshold:          0.7,
		DeletionThreshold:           0.1,
		MaxAgeDays:                  365,
		RetrievalWeightRelevance:    0.6,
		RetrievalWeightTemporal:     0.4,
		RehearsalBoost:              0.05,
		MaxImportance:               1.0,
		MinImportance:               0.0,
		RelevanceNormalizationScale: 10.0,
		RecencyHalvingRate:          0.1,
		RecencyWeight:               0.3,
		FrequencyWeight:             0.2,
		FrequencyScale:              10.0,
	}
}

// Load reads the option table from the process environment via viper,
// falling back to defaults for anything unset, then validates the result.
// Unknown TEMPOMEM_* variables are not rejected — viper simply never binds
// them to a field. Load emits no warning for them.
func Load() (Config, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()

	def := Default()
	keys := map[string]*float64{
		"decay_lambda":                  &def.DecayLambda,
		"decay_alpha":                   &def.DecayAlpha,
		"rehearsal_threshold":           &def.RehearsalThreshold,
		"deletion_threshold":            &def.DeletionThreshold,
		"max_age_days":                  &def.MaxAgeDays,
		"retrieval_weight_relevance":    &def.RetrievalWeightRelevance,
		"retrieval_weight_temporal":     &def.RetrievalWeightTemporal,
		"rehearsal_boost":               &def.RehearsalBoost,
		"max_importance":                &def.MaxImportance,
		"min_importance":                &def.MinImportance,
		"relevance_normalization_scale": &def.RelevanceNormalizationScale,
		"recency_halving_rate":          &def.RecencyHalvingRate,
		"recency_weight":                &def.RecencyWeight,
		"frequency_weight":              &def.FrequencyWeight,
		"frequency_scale":                &def.FrequencyScale,
	}

	for key, dst := range keys {
		v.SetDefault(key, *dst)
		*dst = v.GetFloat64(key)
	}

	v.SetDefault("enabled", def.Enabled)
	def.Enabled = v.GetBool("enabled")

	if err := validate(def); err != nil {
		return Config{}, err
	}
	return def, nil
}

func validate(c Config) error {
	if !c.Enabled {
		return nil
	}
	if c.DecayLambda <= 0 {
		return fmt.Errorf("config: decay_lambda must be > 0 when enabled, got %v", c.DecayLambda)
	}
	if c.DecayAlpha <= 0 {
		return fmt.Errorf("config: decay_alpha must be > 0 when enabled, got %v", c.DecayAlpha)
	}
	if c.RecencyHalvingRate <= 0 {
		return fmt.Errorf("config: recency_halving_rate must be > 0 when enabled, got %v", c.RecencyHalvingRate)
	}
	if c.MinImportance > c.MaxImportance {
		return fmt.Errorf("config: min_importance (%v) must be <= max_importance (%v)", c.MinImportance, c.MaxImportance)
	}
	return nil
}
