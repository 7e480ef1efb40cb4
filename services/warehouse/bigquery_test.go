// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package warehouse

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/AleutianAI/osprey/services/monitor/datatypes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/googleapi"
)

func TestStringArrayParam(t *testing.T) {
	// Hostile values ride through untouched; parameterization makes
	// escaping the server's problem.
	p := stringArrayParam("ids", []string{"r1", `x\`, "it's"})

	assert.Equal(t, "ids", p.Name)
	assert.Equal(t, "ARRAY", p.ParameterType.Type)
	assert.Equal(t, "STRING", p.ParameterType.ArrayType.Type)
	require.Len(t, p.ParameterValue.ArrayValues, 3)
	assert.Equal(t, `x\`, p.ParameterValue.ArrayValues[1].Value)
	assert.Equal(t, "it's", p.ParameterValue.ArrayValues[2].Value)
}

func TestStringArrayParamEmpty(t *testing.T) {
	p := stringArrayParam("ids", nil)
	assert.Empty(t, p.ParameterValue.ArrayValues)
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		transient bool
	}{
		{"rate limited", &googleapi.Error{Code: 429}, true},
		{"server error", &googleapi.Error{Code: 503}, true},
		{"forbidden", &googleapi.Error{Code: 403}, false},
		{"not found", &googleapi.Error{Code: 404}, false},
		{"deadline", context.DeadlineExceeded, true},
		{"plain", fmt.Errorf("schema mismatch"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := classify("jobs.query", tt.err)
			assert.Equal(t, tt.transient, datatypes.IsTransient(got))
			assert.True(t, errors.Is(got, tt.err), "classified error must wrap the cause")
		})
	}
}
