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
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/AleutianAI/osprey/services/monitor/datatypes"
	"github.com/AleutianAI/osprey/services/monitor/history"
)

// =============================================================================
// Cycle Scheduler
// =============================================================================

// Scheduler triggers monitoring cycles on a fixed interval. Manual triggers
// through the HTTP surface share the Monitor's serialization, so a manual
// cycle colliding with a scheduled one simply makes the latter a no-op.
type Scheduler struct {
	monitor  *Monitor
	interval time.Duration

	mu      sync.Mutex
	done    chan struct{}
	stopped chan struct{}
	running bool
}

// NewScheduler builds a scheduler. interval <= 0 defaults to 15 minutes.
func NewScheduler(m *Monitor, interval time.Duration) *Scheduler {
	if interval <= 0 {
		interval = 15 * time.Minute
	}
	return &Scheduler{monitor: m, interval: interval}
}

// Start launches the background loop. Calling Start on a running scheduler
// is an error.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return fmt.Errorf("scheduler already running")
	}
	s.done = make(chan struct{})
	s.stopped = make(chan struct{})
	s.running = true

	go s.loop(ctx, s.done, s.stopped)
	slog.Info("cycle scheduler started", "interval", s.interval.String())
	return nil
}

// Stop halts the loop and waits for an in-flight cycle to finish.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	close(s.done)
	stopped := s.stopped
	s.running = false
	s.mu.Unlock()

	<-stopped
	slog.Info("cycle scheduler stopped")
	return nil
}

// RunNow triggers one cycle outside the ticker. It shares the Monitor's
// serialization, so it collides with a scheduled cycle the same way two
// manual triggers collide.
func (s *Scheduler) RunNow(ctx context.Context) (history.Record, error) {
	return s.monitor.RunCycle(ctx)
}

func (s *Scheduler) loop(ctx context.Context, done, stopped chan struct{}) {
	defer close(stopped)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if _, err := s.monitor.RunCycle(ctx); err != nil {
				if errors.Is(err, datatypes.ErrCycleInProgress) {
					slog.Debug("scheduled cycle skipped, another cycle in flight")
					continue
				}
				slog.Error("scheduled cycle failed", "error", err)
			}
		case <-done:
			return
		case <-ctx.Done():
			return
		}
	}
}
