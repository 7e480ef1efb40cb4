// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package executor

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// DirRollbackSink writes rollback scripts to a local directory, one file per
// decision, for operator review before execution.
type DirRollbackSink struct {
	dir string
}

var _ RollbackSink = (*DirRollbackSink)(nil)

// NewDirRollbackSink ensures dir exists and returns the sink.
func NewDirRollbackSink(dir string) (*DirRollbackSink, error) {
	if dir == "" {
		dir = "./rollbacks"
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create rollback dir %s: %w", dir, err)
	}
	return &DirRollbackSink{dir: dir}, nil
}

func (s *DirRollbackSink) SaveRollback(ctx context.Context, decisionID, script string) (string, error) {
	path := filepath.Join(s.dir, fmt.Sprintf("rollback_%s.sql", decisionID))
	if err := os.WriteFile(path, []byte(script), 0o644); err != nil {
		return "", fmt.Errorf("failed to write rollback script %s: %w", path, err)
	}
	return path, nil
}
