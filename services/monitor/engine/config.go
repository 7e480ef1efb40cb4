// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package engine

import (
	"fmt"
	"os"

	"github.com/AleutianAI/osprey/services/monitor/datatypes"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// =============================================================================
// Rule Configuration
// =============================================================================

// Config holds the tunable weights and thresholds of the rule table.
//
// The rule ordering is fixed and part of the engine contract; only the
// numeric constants are configurable. Defaults come from DefaultConfig() and
// an optional YAML file can override individual values.
type Config struct {
	// SchemaWeights maps a schema finding's severity hint to its score
	// contribution.
	SchemaWeights map[datatypes.SeverityHint]int `yaml:"schema_weights" validate:"required"`

	// CategoryWeights maps a semantic finding's category to the weight
	// multiplied by its confidence.
	CategoryWeights map[string]float64 `yaml:"category_weights" validate:"required"`

	// DefaultCategoryWeight applies to semantic categories not listed above.
	DefaultCategoryWeight float64 `yaml:"default_category_weight" validate:"gte=0,lte=100"`

	// EmergencyScore is the score floor for EMERGENCY_PAUSE when both
	// sources detect.
	EmergencyScore int `yaml:"emergency_score" validate:"gte=0,lte=100"`

	// PauseScore is the score floor for PAUSE_AND_ALERT.
	PauseScore int `yaml:"pause_score" validate:"gte=0,lte=100"`

	// TestDataConfidence gates QUARANTINE_AND_PAUSE on test_data findings.
	TestDataConfidence float64 `yaml:"test_data_confidence" validate:"gte=0,lte=1"`

	// QuarantineConfidence gates QUARANTINE_AND_FLAG.
	QuarantineConfidence float64 `yaml:"quarantine_confidence" validate:"gte=0,lte=1"`

	// ReviewConfidence gates FLAG_FOR_REVIEW.
	ReviewConfidence float64 `yaml:"review_confidence" validate:"gte=0,lte=1"`

	// LogConfidence gates LOG_AND_CONTINUE.
	LogConfidence float64 `yaml:"log_confidence" validate:"gte=0,lte=1"`

	// ReviewScoreLow / ReviewScoreHigh bound the non-critical schema change
	// band that maps to FLAG_FOR_REVIEW.
	ReviewScoreLow  int `yaml:"review_score_low" validate:"gte=0,lte=100"`
	ReviewScoreHigh int `yaml:"review_score_high" validate:"gte=0,lte=100,gtefield=ReviewScoreLow"`
}

// DefaultConfig returns the stock rule constants.
func DefaultConfig() *Config {
	return &Config{
		SchemaWeights: map[datatypes.SeverityHint]int{
			datatypes.SeverityCritical: 40,
			datatypes.SeverityHigh:     25,
			datatypes.SeverityMedium:   10,
			datatypes.SeverityLow:      5,
			datatypes.SeverityNone:     0,
		},
		CategoryWeights: map[string]float64{
			"test_data":      50,
			"temporal":       30,
			"invalid_symbol": 15,
			"missing_data":   10,
			"sentiment":      10,
		},
		DefaultCategoryWeight: 10,
		EmergencyScore:        90,
		PauseScore:            80,
		TestDataConfidence:    0.85,
		QuarantineConfidence:  0.80,
		ReviewConfidence:      0.70,
		LogConfidence:         0.50,
		ReviewScoreLow:        30,
		ReviewScoreHigh:       40,
	}
}

// LoadConfig reads a YAML rule-config file layered over the defaults.
//
// Missing keys keep their default value; present keys are validated before
// the config is accepted, so a bad file never reaches the engine.
func LoadConfig(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read rule config %s: %w", path, err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse rule config %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid rule config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks the config invariants via struct tags.
func (c *Config) Validate() error {
	return validator.New().Struct(c)
}

// categoryWeight resolves the score weight for a semantic category.
func (c *Config) categoryWeight(category string) float64 {
	if w, ok := c.CategoryWeights[category]; ok {
		return w
	}
	return c.DefaultCategoryWeight
}
