// Package schema brings the database up to the shape the services expect.
//
// Every step is additive and idempotent: the evolver inspects
// information_schema before creating a table or adding a column, so running
// it against an up-to-date database changes nothing. There is no migration
// history table. A failing step is logged and recorded in the Report, and the
// remaining steps still run.
package schema

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"hr-portal/internal/pkg/db"
)

// StepKind classifies a schema step for logging and reporting.
type StepKind string

// Step kinds.
const (
	KindCreateTable StepKind = "create_table"
	KindAddColumn   StepKind = "add_column"
	KindCreateIndex StepKind = "create_index"
	KindBackfill    StepKind = "backfill"
	KindSeed        StepKind = "seed"
)

// Outcome is what a step ended up doing.
type Outcome string

// Step outcomes.
const (
	OutcomeApplied  Outcome = "applied"
	OutcomeFallback Outcome = "applied_fallback"
	OutcomeSkipped  Outcome = "skipped"
	OutcomeFailed   Outcome = "failed"
)

// StepResult records a single step.
type StepResult struct {
	Name    string
	Kind    StepKind
	Outcome Outcome
	Err     error
}

// Report lists the outcome of every step of a run.
type Report struct {
	Results []StepResult
}

// Failed returns the steps that failed.
func (r *Report) Failed() []StepResult {
	var failed []StepResult
	for _, res := range r.Results {
		if res.Outcome == OutcomeFailed {
			failed = append(failed, res)
		}
	}
	return failed
}

// Count returns how many steps ended with the given outcome.
func (r *Report) Count(o Outcome) int {
	n := 0
	for _, res := range r.Results {
		if res.Outcome == o {
			n++
		}
	}
	return n
}

// Find returns the result for a step name.
func (r *Report) Find(name string) (StepResult, bool) {
	for _, res := range r.Results {
		if res.Name == name {
			return res, true
		}
	}
	return StepResult{}, false
}

// Evolver applies table, column, index, backfill and seed steps in order.
type Evolver struct {
	db               db.Querier
	tables           []Table
	indexes          []Index
	defaultTimeLimit time.Duration
	globalMinimum    float64
}

// Option customizes an Evolver.
type Option func(*Evolver)

// WithTables replaces the target table set.
func WithTables(tables ...Table) Option {
	return func(e *Evolver) { e.tables = tables }
}

// WithIndexes replaces the target index set.
func WithIndexes(indexes ...Index) Option {
	return func(e *Evolver) { e.indexes = indexes }
}

// WithDefaultTimeLimit sets the attempt deadline used by the expires_at backfill.
func WithDefaultTimeLimit(d time.Duration) Option {
	return func(e *Evolver) { e.defaultTimeLimit = d }
}

// WithGlobalMinimum sets the value seeded for global_min_withdrawal_amount.
func WithGlobalMinimum(v float64) Option {
	return func(e *Evolver) { e.globalMinimum = v }
}

// NewEvolver creates an Evolver for the portal schema.
func NewEvolver(q db.Querier, opts ...Option) *Evolver {
	e := &Evolver{
		db:               q,
		tables:           Tables(),
		indexes:          Indexes(),
		defaultTimeLimit: 24 * time.Hour,
		globalMinimum:    50.0,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Run executes every step. It never returns an error: failures are logged
// with the step name and kind and collected in the Report.
func (e *Evolver) Run(ctx context.Context) *Report {
	report := &Report{}

	for _, t := range e.tables {
		e.ensureTable(ctx, report, t)
	}
	for _, t := range e.tables {
		e.ensureColumns(ctx, report, t)
	}
	for _, idx := range e.indexes {
		e.step(ctx, report, "index:"+idx.Name, KindCreateIndex, func(ctx context.Context) (Outcome, error) {
			if _, err := e.db.Exec(ctx, idx.Statement()); err != nil {
				return OutcomeFailed, err
			}
			return OutcomeApplied, nil
		})
	}
	for _, b := range e.backfills() {
		e.step(ctx, report, "backfill:"+b.name, KindBackfill, func(ctx context.Context) (Outcome, error) {
			tag, err := e.db.Exec(ctx, b.sql, b.args...)
			if err != nil {
				return OutcomeFailed, err
			}
			if tag.RowsAffected() == 0 {
				return OutcomeSkipped, nil
			}
			return OutcomeApplied, nil
		})
	}
	e.step(ctx, report, "seed:global_min_withdrawal_amount", KindSeed, e.seedGlobalMinimum)

	log.Info().
		Int("applied", report.Count(OutcomeApplied)).
		Int("fallback", report.Count(OutcomeFallback)).
		Int("skipped", report.Count(OutcomeSkipped)).
		Int("failed", report.Count(OutcomeFailed)).
		Msg("Schema evolution finished")

	return report
}

// step runs fn inside its own failure boundary.
func (e *Evolver) step(ctx context.Context, report *Report, name string, kind StepKind, fn func(context.Context) (Outcome, error)) {
	outcome, err := func() (o Outcome, err error) {
		defer func() {
			if r := recover(); r != nil {
				o, err = OutcomeFailed, fmt.Errorf("panic: %v", r)
			}
		}()
		return fn(ctx)
	}()

	result := StepResult{Name: name, Kind: kind, Outcome: outcome, Err: err}
	if err != nil {
		result.Outcome = OutcomeFailed
		log.Error().
			Err(err).
			Str("step", name).
			Str("kind", string(kind)).
			Msg("Schema step failed, continuing")
	} else if outcome != OutcomeSkipped {
		log.Info().
			Str("step", name).
			Str("kind", string(kind)).
			Str("outcome", string(outcome)).
			Msg("Schema step applied")
	}
	report.Results = append(report.Results, result)
}

func (e *Evolver) ensureTable(ctx context.Context, report *Report, t Table) {
	e.step(ctx, report, "table:"+t.Name, KindCreateTable, func(ctx context.Context) (Outcome, error) {
		exists, err := e.tableExists(ctx, t.Name)
		if err != nil {
			return OutcomeFailed, err
		}
		if exists {
			return OutcomeSkipped, nil
		}

		_, primaryErr := e.db.Exec(ctx, t.CreateStatement())
		if primaryErr == nil {
			return OutcomeApplied, nil
		}
		if t.Fallback == "" {
			return OutcomeFailed, primaryErr
		}

		log.Warn().
			Err(primaryErr).
			Str("table", t.Name).
			Msg("Table creation from definition failed, using fallback DDL")

		if _, err := e.db.Exec(ctx, t.Fallback); err != nil {
			return OutcomeFailed, fmt.Errorf("fallback DDL failed: %w (primary: %v)", err, primaryErr)
		}
		return OutcomeFallback, nil
	})
}

// ensureColumns adds every defined column the table lacks. Each column is its
// own step, so one bad ALTER does not block the others.
func (e *Evolver) ensureColumns(ctx context.Context, report *Report, t Table) {
	existing, err := e.columnNames(ctx, t.Name)
	if err != nil {
		report.Results = append(report.Results, StepResult{
			Name: "columns:" + t.Name, Kind: KindAddColumn, Outcome: OutcomeFailed, Err: err,
		})
		log.Error().Err(err).Str("table", t.Name).Msg("Failed to inspect columns, continuing")
		return
	}
	if len(existing) == 0 {
		// Table is missing and could not be created; nothing to alter.
		return
	}

	for _, c := range t.Columns {
		if c.PrimaryKey {
			continue
		}
		if existing[c.Name] {
			continue
		}
		col := c
		e.step(ctx, report, "column:"+t.Name+"."+col.Name, KindAddColumn, func(ctx context.Context) (Outcome, error) {
			// Re-check right before altering; another instance may have raced us.
			has, err := e.columnExists(ctx, t.Name, col.Name)
			if err != nil {
				return OutcomeFailed, err
			}
			if has {
				return OutcomeSkipped, nil
			}
			if _, err := e.db.Exec(ctx, col.AddStatement(t.Name)); err != nil {
				return OutcomeFailed, err
			}
			return OutcomeApplied, nil
		})
	}
}

func (e *Evolver) tableExists(ctx context.Context, name string) (bool, error) {
	const query = `
		SELECT EXISTS (
			SELECT 1 FROM information_schema.tables
			WHERE table_schema = current_schema() AND table_name = $1
		)
	`
	var exists bool
	if err := e.db.QueryRow(ctx, query, name).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check table %s: %w", name, err)
	}
	return exists, nil
}

func (e *Evolver) columnExists(ctx context.Context, table, column string) (bool, error) {
	const query = `
		SELECT EXISTS (
			SELECT 1 FROM information_schema.columns
			WHERE table_schema = current_schema() AND table_name = $1 AND column_name = $2
		)
	`
	var exists bool
	if err := e.db.QueryRow(ctx, query, table, column).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check column %s.%s: %w", table, column, err)
	}
	return exists, nil
}

func (e *Evolver) columnNames(ctx context.Context, table string) (map[string]bool, error) {
	const query = `
		SELECT column_name FROM information_schema.columns
		WHERE table_schema = current_schema() AND table_name = $1
	`
	rows, err := e.db.Query(ctx, query, table)
	if err != nil {
		return nil, fmt.Errorf("failed to list columns of %s: %w", table, err)
	}
	defer rows.Close()

	names := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan column name: %w", err)
		}
		names[name] = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating columns: %w", err)
	}
	return names, nil
}

type backfill struct {
	name string
	sql  string
	args []any
}

// backfills fills attempt timestamps on rows written before those columns existed.
func (e *Evolver) backfills() []backfill {
	hours := int(e.defaultTimeLimit / time.Hour)
	if hours <= 0 {
		hours = 24
	}
	return []backfill{
		{
			name: "user_tasks.taken_at",
			sql:  `UPDATE user_tasks SET taken_at = NOW() WHERE status = 'taken' AND taken_at IS NULL`,
		},
		{
			name: "user_tasks.expires_at",
			sql: `UPDATE user_tasks SET expires_at = COALESCE(taken_at, NOW()) + make_interval(hours => $1)
				WHERE status = 'taken' AND expires_at IS NULL`,
			args: []any{hours},
		},
		{
			name: "user_tasks.history_timestamps",
			sql: `UPDATE user_tasks
				SET taken_at = COALESCE(taken_at, submitted_at, approved_at, NOW()),
					expires_at = COALESCE(expires_at, COALESCE(taken_at, submitted_at, approved_at, NOW()) + make_interval(hours => $1))
				WHERE status <> 'taken' AND (taken_at IS NULL OR expires_at IS NULL)`,
			args: []any{hours},
		},
	}
}

// seedGlobalMinimum inserts the global minimum withdrawal setting unless a row
// for the key already exists.
func (e *Evolver) seedGlobalMinimum(ctx context.Context) (Outcome, error) {
	const query = `
		INSERT INTO settings (key, value, description, created_at, updated_at)
		SELECT $1, $2, $3, NOW(), NOW()
		WHERE NOT EXISTS (SELECT 1 FROM settings WHERE key = $1)
	`
	value := strings.TrimRight(strings.TrimRight(fmt.Sprintf("%.2f", e.globalMinimum), "0"), ".")
	if !strings.Contains(value, ".") {
		value += ".0"
	}
	tag, err := e.db.Exec(ctx, query,
		"global_min_withdrawal_amount",
		value,
		"Global minimum withdrawal amount for all users",
	)
	if err != nil {
		return OutcomeFailed, err
	}
	if tag.RowsAffected() == 0 {
		return OutcomeSkipped, nil
	}
	return OutcomeApplied, nil
}
