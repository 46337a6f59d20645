// Package postgres implements the plans journal on PostgreSQL with a JSONB
// payload column for the full plan document.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/sawpanic/gerun/internal/store"
)

const uniqueViolation = "23505"

const schema = `
CREATE TABLE IF NOT EXISTS allocation_plans (
	id              BIGSERIAL PRIMARY KEY,
	plan_id         UUID NOT NULL UNIQUE,
	computed_at     TIMESTAMPTZ NOT NULL,
	total_capital   DOUBLE PRECISION NOT NULL,
	total_allocated DOUBLE PRECISION NOT NULL,
	instant_trades  INTEGER NOT NULL,
	patient_trades  INTEGER NOT NULL,
	market_risk     TEXT NOT NULL,
	plan            JSONB NOT NULL,
	created_at      TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_allocation_plans_computed_at
	ON allocation_plans (computed_at DESC);`

// PlansRepo is the PostgreSQL plans journal
type PlansRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

var _ store.PlansRepo = (*PlansRepo)(nil)

// NewPlansRepo wraps an open connection pool. Every call runs under the
// given per-query timeout.
func NewPlansRepo(db *sqlx.DB, timeout time.Duration) *PlansRepo {
	return &PlansRepo{db: db, timeout: timeout}
}

// EnsureSchema creates the journal table and its index when missing
func (r *PlansRepo) EnsureSchema(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	if _, err := r.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("ensure plans schema: %w", err)
	}
	return nil
}

// Insert journals one plan record
func (r *PlansRepo) Insert(ctx context.Context, rec store.PlanRecord) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	planJSON, err := json.Marshal(rec.Plan)
	if err != nil {
		return fmt.Errorf("marshal plan payload: %w", err)
	}

	query := `
		INSERT INTO allocation_plans
			(plan_id, computed_at, total_capital, total_allocated,
			 instant_trades, patient_trades, market_risk, plan)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err = r.db.ExecContext(ctx, query,
		rec.PlanID, rec.ComputedAt, rec.TotalCapital, rec.TotalAllocated,
		rec.InstantTrades, rec.PatientTrades, rec.MarketRisk, planJSON)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return fmt.Errorf("%w: %s", store.ErrDuplicatePlan, rec.PlanID)
		}
		return fmt.Errorf("insert plan: %w", err)
	}
	return nil
}

// Latest returns the most recently computed plans, newest first
func (r *PlansRepo) Latest(ctx context.Context, limit int) ([]store.PlanRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		SELECT id, plan_id, computed_at, total_capital, total_allocated,
		       instant_trades, patient_trades, market_risk, plan, created_at
		FROM allocation_plans
		ORDER BY computed_at DESC
		LIMIT $1`

	rows, err := r.db.QueryxContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("query latest plans: %w", err)
	}
	defer rows.Close()

	return scanRecords(rows)
}

// ListRange returns plans computed within [from, to], newest first
func (r *PlansRepo) ListRange(ctx context.Context, from, to time.Time) ([]store.PlanRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		SELECT id, plan_id, computed_at, total_capital, total_allocated,
		       instant_trades, patient_trades, market_risk, plan, created_at
		FROM allocation_plans
		WHERE computed_at >= $1 AND computed_at <= $2
		ORDER BY computed_at DESC`

	rows, err := r.db.QueryxContext(ctx, query, from, to)
	if err != nil {
		return nil, fmt.Errorf("query plans in range: %w", err)
	}
	defer rows.Close()

	return scanRecords(rows)
}

// Ping tests connectivity for health reporting
func (r *PlansRepo) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	return r.db.PingContext(ctx)
}

func scanRecords(rows *sqlx.Rows) ([]store.PlanRecord, error) {
	var records []store.PlanRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate plan rows: %w", err)
	}
	return records, nil
}

func scanRecord(rows *sqlx.Rows) (store.PlanRecord, error) {
	var rec store.PlanRecord
	var planJSON []byte

	err := rows.Scan(
		&rec.ID, &rec.PlanID, &rec.ComputedAt, &rec.TotalCapital,
		&rec.TotalAllocated, &rec.InstantTrades, &rec.PatientTrades,
		&rec.MarketRisk, &planJSON, &rec.CreatedAt)
	if err != nil {
		return store.PlanRecord{}, fmt.Errorf("scan plan row: %w", err)
	}

	if err := json.Unmarshal(planJSON, &rec.Plan); err != nil {
		return store.PlanRecord{}, fmt.Errorf("decode plan payload: %w", err)
	}
	return rec, nil
}
