// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package monitor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestApplyConfigDefaults(t *testing.T) {
	cfg := applyConfigDefaults(Config{})

	assert.Equal(t, 12310, cfg.Port)
	assert.Equal(t, "ollama", cfg.LLMBackend)
	assert.Equal(t, 60*time.Second, cfg.GatherTimeout)
	assert.Equal(t, 1000, cfg.HistoryCapacity)
	assert.Equal(t, "./rollbacks", cfg.RollbackDir)
	assert.Equal(t, 20, cfg.SampleSize)
	// A zero CycleInterval stays zero: scheduling is opt-in.
	assert.Zero(t, cfg.CycleInterval)
}

func TestApplyConfigDefaultsKeepsExplicitValues(t *testing.T) {
	cfg := applyConfigDefaults(Config{
		Port:          9000,
		LLMBackend:    "openai",
		GatherTimeout: 5 * time.Second,
	})

	assert.Equal(t, 9000, cfg.Port)
	assert.Equal(t, "openai", cfg.LLMBackend)
	assert.Equal(t, 5*time.Second, cfg.GatherTimeout)
}

func TestApplyConfigDefaultsHonorsMetricsToggle(t *testing.T) {
	assert.False(t, applyConfigDefaults(Config{}).EnableMetrics)
	assert.True(t, applyConfigDefaults(Config{EnableMetrics: true}).EnableMetrics)
}
