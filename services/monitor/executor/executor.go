// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package executor translates Decisions into side effects against the
// connector, the warehouse, and the notification channel.
//
// # Description
//
// The mapping from Action to Effect sequence is static and total: every
// Action the engine can emit has a row here, including the two no-op
// actions. Effects run in sequence, each attempted independently; one
// failing never aborts its siblings, so the Effect list faithfully records
// partial success.
//
// # Assumptions
//
// Callers persist the returned Effects alongside the Decision. The executor
// itself keeps no state between calls; idempotency comes from
// query-before-write on the connector and the per-decision idempotency key,
// not from memory.
package executor

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/AleutianAI/osprey/services/monitor/datatypes"
)

// =============================================================================
// Collaborator Interfaces
// =============================================================================

// SourceController pauses and resumes the upstream ingestion connector.
type SourceController interface {
	// IsPaused reports the connector's current sync state.
	IsPaused(ctx context.Context) (bool, error)
	Pause(ctx context.Context) error
	Resume(ctx context.Context) error
}

// QuarantineSink moves suspect records out of the production table.
type QuarantineSink interface {
	// Quarantine moves the identified records to the quarantine table and
	// returns how many rows moved.
	Quarantine(ctx context.Context, ids []string, reason string) (int, error)
}

// RollbackSink persists a generated rollback script and returns its location.
type RollbackSink interface {
	SaveRollback(ctx context.Context, decisionID, script string) (string, error)
}

// Notifier delivers a Decision to the operator channel.
type Notifier interface {
	Notify(ctx context.Context, d datatypes.Decision) error
}

// =============================================================================
// Executor
// =============================================================================

// Config tunes the executor's retry behavior and rollback synthesis.
type Config struct {
	// RetryBackoff is the wait before the single retry of a transient
	// failure.
	RetryBackoff time.Duration

	// EffectTimeout bounds each attempt of a single Effect.
	EffectTimeout time.Duration

	// ProductionTable and QuarantineTable are the fully qualified table
	// names used in rollback script synthesis.
	ProductionTable string
	QuarantineTable string

	// IDColumn is the record identifier column the rollback script filters
	// on. Must match the column the quarantine move used.
	// Default: record_id
	IDColumn string
}

func (c *Config) applyDefaults() {
	if c.RetryBackoff <= 0 {
		c.RetryBackoff = 2 * time.Second
	}
	if c.EffectTimeout <= 0 {
		c.EffectTimeout = 30 * time.Second
	}
	if c.IDColumn == "" {
		c.IDColumn = "record_id"
	}
}

// Executor carries out the Effect sequence for each Decision.
type Executor struct {
	cfg      Config
	source   SourceController
	sink     QuarantineSink
	rollback RollbackSink
	notifier Notifier
}

// New wires an Executor. All collaborators are required; a nil collaborator
// would turn an operator-facing action into a silent no-op.
func New(cfg Config, source SourceController, sink QuarantineSink, rollback RollbackSink, notifier Notifier) (*Executor, error) {
	if source == nil || sink == nil || rollback == nil || notifier == nil {
		return nil, fmt.Errorf("executor: all collaborators must be non-nil")
	}
	cfg.applyDefaults()
	return &Executor{
		cfg:      cfg,
		source:   source,
		sink:     sink,
		rollback: rollback,
		notifier: notifier,
	}, nil
}

// effectPlan returns the ordered Effect kinds for an Action. EMERGENCY_PAUSE
// pauses before quarantining to close the ingestion window first; the
// ordinary quarantine path stops the bleeding in data before ingestion.
func effectPlan(action datatypes.Action) []datatypes.EffectKind {
	switch action {
	case datatypes.ActionContinue, datatypes.ActionLogAndContinue:
		return nil
	case datatypes.ActionFlagForReview:
		return []datatypes.EffectKind{datatypes.EffectNotify}
	case datatypes.ActionPauseAndAlert:
		return []datatypes.EffectKind{datatypes.EffectPauseSource, datatypes.EffectNotify}
	case datatypes.ActionQuarantineAndFlag:
		return []datatypes.EffectKind{datatypes.EffectQuarantineRecords, datatypes.EffectNotify}
	case datatypes.ActionQuarantineAndPause:
		return []datatypes.EffectKind{
			datatypes.EffectQuarantineRecords,
			datatypes.EffectPauseSource,
			datatypes.EffectGenerateRollback,
			datatypes.EffectNotify,
		}
	case datatypes.ActionEmergencyPause:
		return []datatypes.EffectKind{
			datatypes.EffectPauseSource,
			datatypes.EffectQuarantineRecords,
			datatypes.EffectGenerateRollback,
			datatypes.EffectNotify,
		}
	default:
		return nil
	}
}

// Execute runs the Effect sequence for d and returns one Effect record per
// planned side effect. The returned error is non-nil only when the Action is
// outside the engine's vocabulary, which indicates an engine bug.
func (e *Executor) Execute(ctx context.Context, d datatypes.Decision) ([]datatypes.Effect, error) {
	plan := effectPlan(d.Action)
	if plan == nil && d.RequiresAction() {
		return nil, &datatypes.InvariantViolation{
			Detail: fmt.Sprintf("no effect plan for action %q", d.Action),
		}
	}

	effects := make([]datatypes.Effect, 0, len(plan))
	for _, kind := range plan {
		eff := e.run(ctx, d, kind)
		effects = append(effects, eff)
		slog.Info("effect completed",
			"decision_id", d.ID,
			"kind", eff.Kind,
			"status", eff.Status,
			"attempts", eff.Attempts,
		)
	}
	return effects, nil
}

// run executes one Effect with the transient-retry policy: a transient
// failure gets exactly one retry after the configured backoff; permanent
// failures and second transient failures mark the Effect FAILED.
func (e *Executor) run(ctx context.Context, d datatypes.Decision, kind datatypes.EffectKind) datatypes.Effect {
	eff := datatypes.Effect{
		Kind:           kind,
		Status:         datatypes.EffectPending,
		IdempotencyKey: datatypes.IdempotencyKey(d.ID, kind),
		StartedAt:      time.Now().UTC(),
	}

	for attempt := 1; attempt <= 2; attempt++ {
		eff.Attempts = attempt
		actx, cancel := context.WithTimeout(ctx, e.cfg.EffectTimeout)
		result, err := e.apply(actx, d, kind)
		cancel()
		if err == nil {
			eff.Status = datatypes.EffectSucceeded
			eff.Result = result
			break
		}

		if result == resultSkipped {
			eff.Status = datatypes.EffectSkipped
			eff.Result = err.Error()
			eff.Error = ""
			break
		}

		eff.Error = err.Error()
		if datatypes.IsTransient(err) && attempt == 1 && ctx.Err() == nil {
			slog.Warn("effect transient failure, retrying",
				"decision_id", d.ID, "kind", kind, "error", err)
			select {
			case <-time.After(e.cfg.RetryBackoff):
			case <-ctx.Done():
			}
			continue
		}

		eff.Status = datatypes.EffectFailed
		break
	}

	eff.CompletedAt = time.Now().UTC()
	return eff
}

// resultSkipped distinguishes "nothing to do" from failure in apply's return.
const resultSkipped = "__skipped__"

func (e *Executor) apply(ctx context.Context, d datatypes.Decision, kind datatypes.EffectKind) (string, error) {
	switch kind {
	case datatypes.EffectPauseSource:
		return e.pauseSource(ctx)
	case datatypes.EffectResumeSource:
		return e.resumeSource(ctx)
	case datatypes.EffectQuarantineRecords:
		return e.quarantine(ctx, d)
	case datatypes.EffectGenerateRollback:
		return e.generateRollback(ctx, d)
	case datatypes.EffectNotify:
		if err := e.notifier.Notify(ctx, d); err != nil {
			return "", err
		}
		return "notification delivered", nil
	default:
		return "", &datatypes.PermanentError{
			Op:  "execute",
			Err: fmt.Errorf("unknown effect kind %q", kind),
		}
	}
}

// pauseSource is idempotent by query-before-write: if the connector already
// reports paused, the Effect is skipped rather than re-issued.
func (e *Executor) pauseSource(ctx context.Context) (string, error) {
	paused, err := e.source.IsPaused(ctx)
	if err != nil {
		return "", err
	}
	if paused {
		return resultSkipped, fmt.Errorf("connector already paused")
	}
	if err := e.source.Pause(ctx); err != nil {
		return "", err
	}
	return "connector paused", nil
}

func (e *Executor) resumeSource(ctx context.Context) (string, error) {
	paused, err := e.source.IsPaused(ctx)
	if err != nil {
		return "", err
	}
	if !paused {
		return resultSkipped, fmt.Errorf("connector already running")
	}
	if err := e.source.Resume(ctx); err != nil {
		return "", err
	}
	return "connector resumed", nil
}

// SourcePaused reports the connector's current sync state for status
// endpoints.
func (e *Executor) SourcePaused(ctx context.Context) (bool, error) {
	return e.source.IsPaused(ctx)
}

// Resume re-enables the connector outside the cycle loop, for the operator
// resume endpoint. It reuses the same idempotent query-before-write path.
func (e *Executor) Resume(ctx context.Context) (datatypes.Effect, error) {
	eff := e.run(ctx, datatypes.Decision{ID: "manual-resume"}, datatypes.EffectResumeSource)
	if eff.Status == datatypes.EffectFailed {
		return eff, fmt.Errorf("resume failed: %s", eff.Error)
	}
	return eff, nil
}

func (e *Executor) quarantine(ctx context.Context, d datatypes.Decision) (string, error) {
	ids := affectedIDs(d)
	if len(ids) == 0 {
		return resultSkipped, fmt.Errorf("no affected record ids to quarantine")
	}
	reason := d.RuleID
	if len(d.Reasoning) > 0 {
		reason = d.Reasoning[0]
	}
	moved, err := e.sink.Quarantine(ctx, ids, reason)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("quarantined %d records", moved), nil
}

func (e *Executor) generateRollback(ctx context.Context, d datatypes.Decision) (string, error) {
	ids := affectedIDs(d)
	if len(ids) == 0 {
		return resultSkipped, fmt.Errorf("no affected record ids, nothing to roll back")
	}
	script := SynthesizeRollback(e.cfg.ProductionTable, e.cfg.QuarantineTable, e.cfg.IDColumn, d.ID, ids)
	location, err := e.rollback.SaveRollback(ctx, d.ID, script)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("rollback script saved to %s", location), nil
}

// affectedIDs collects the union of affected record ids across the
// Decision's input Findings, de-duplicated, preserving first-seen order.
func affectedIDs(d datatypes.Decision) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, f := range d.Inputs {
		for _, id := range f.AffectedIDs {
			id = strings.TrimSpace(id)
			if id == "" {
				continue
			}
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			out = append(out, id)
		}
	}
	return out
}
