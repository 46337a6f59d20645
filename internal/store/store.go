// Package store journals computed allocation plans. The engine keeps its
// working state in memory; the journal exists for audit and for reading
// allocation history back out.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/sawpanic/gerun/internal/alloc"
)

// ErrDuplicatePlan marks inserts that collide with an already journaled plan id
var ErrDuplicatePlan = errors.New("duplicate plan")

// PlanRecord is one journaled allocation plan: summary columns for querying
// plus the full plan document
type PlanRecord struct {
	ID             int64                `json:"id" db:"id"`
	PlanID         string               `json:"plan_id" db:"plan_id"`
	ComputedAt     time.Time            `json:"computed_at" db:"computed_at"`
	TotalCapital   float64              `json:"total_capital" db:"total_capital"`
	TotalAllocated float64              `json:"total_allocated" db:"total_allocated"`
	InstantTrades  int                  `json:"instant_trades" db:"instant_trades"`
	PatientTrades  int                  `json:"patient_trades" db:"patient_trades"`
	MarketRisk     string               `json:"market_risk" db:"market_risk"`
	Plan           alloc.AllocationPlan `json:"plan" db:"plan"`
	CreatedAt      time.Time            `json:"created_at" db:"created_at"`
}

// NewRecord derives the journal record for a computed plan, assigning it a
// fresh plan id
func NewRecord(plan *alloc.AllocationPlan) PlanRecord {
	return PlanRecord{
		PlanID:         uuid.NewString(),
		ComputedAt:     plan.Timestamp,
		TotalCapital:   plan.TotalCapital,
		TotalAllocated: plan.TotalAllocated,
		InstantTrades:  len(plan.InstantFlips.Trades),
		PatientTrades:  len(plan.PatientOffers.Trades),
		MarketRisk:     string(plan.MarketAnalysis.RiskLevel),
		Plan:           *plan,
	}
}

// PlansRepo persists and reads back allocation plans
type PlansRepo interface {
	// Insert journals one plan; ErrDuplicatePlan when the plan id was
	// already written
	Insert(ctx context.Context, rec PlanRecord) error

	// Latest returns the most recently computed plans, newest first
	Latest(ctx context.Context, limit int) ([]PlanRecord, error)

	// ListRange returns plans computed within [from, to], newest first
	ListRange(ctx context.Context, from, to time.Time) ([]PlanRecord, error)
}
