// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSelectsOllama(t *testing.T) {
	t.Setenv("OLLAMA_BASE_URL", "http://localhost:11434")

	for _, provider := range []string{"", "ollama", "Ollama"} {
		client, err := New(provider)
		require.NoError(t, err, "provider=%q", provider)
		assert.IsType(t, &OllamaClient{}, client)
	}
}

func TestNewUnknownProvider(t *testing.T) {
	client, err := New("anthropic")
	assert.Nil(t, client)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "anthropic")
}

func TestNewOllamaRequiresBaseURL(t *testing.T) {
	t.Setenv("OLLAMA_BASE_URL", "")

	_, err := New("ollama")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "OLLAMA_BASE_URL")
}

func TestTemperature0(t *testing.T) {
	params := Temperature0(512)
	require.NotNil(t, params.Temperature)
	assert.Zero(t, *params.Temperature)
	require.NotNil(t, params.MaxTokens)
	assert.Equal(t, 512, *params.MaxTokens)
}
