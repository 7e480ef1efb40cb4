// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package llm abstracts the model backend used by the semantic anomaly
// detector. Both a hosted OpenAI-compatible backend and a local Ollama
// server are supported; selection happens at startup via New.
package llm

import (
	"context"
	"fmt"
	"strings"
)

// GenerationParams carries the per-call sampling knobs. Nil pointers mean
// backend defaults.
type GenerationParams struct {
	Temperature *float32 `json:"temperature"`
	TopK        *int     `json:"top_k"`
	TopP        *float32 `json:"top_p"`
	MaxTokens   *int     `json:"max_tokens"`
	Stop        []string `json:"stop"`
}

// LLMClient defines the standard interface for any LLM backend.
type LLMClient interface {
	Generate(ctx context.Context, prompt string, params GenerationParams) (string, error)
}

// New selects a backend by provider name: "openai", "ollama", or empty
// (defaults to ollama for local-first deployments).
func New(provider string) (LLMClient, error) {
	switch strings.ToLower(provider) {
	case "", "ollama":
		return NewOllamaClient()
	case "openai":
		return NewOpenAIClient()
	default:
		return nil, fmt.Errorf("unknown LLM provider %q (want openai or ollama)", provider)
	}
}

// Temperature0 is a GenerationParams preset for deterministic analysis
// calls: temperature 0 so repeated cycles over the same rows produce stable
// verdicts.
func Temperature0(maxTokens int) GenerationParams {
	temp := float32(0)
	return GenerationParams{
		Temperature: &temp,
		MaxTokens:   &maxTokens,
	}
}
