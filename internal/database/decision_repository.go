package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/quantfold/signalforge/internal/models"
)

// DatabasePool is the subset of pgxpool.Pool the repository needs; it
// allows pgxmock to stand in for the real pool in tests.
type DatabasePool interface {
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
}

// DecisionRepository persists published decisions and rolling performance
// samples.
type DecisionRepository struct {
	pool DatabasePool
}

func NewDecisionRepository(pool DatabasePool) *DecisionRepository {
	return &DecisionRepository{pool: pool}
}

// SaveDecision inserts one published decision.
func (r *DecisionRepository) SaveDecision(ctx context.Context, d *models.Decision) error {
	query := `
		INSERT INTO decisions (
			id, symbol, action, strength, confidence, regime,
			entry_price, stop_loss, take_profit, position_size, leverage,
			rationale, models, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`

	_, err := r.pool.Exec(ctx, query,
		d.ID, d.Symbol, string(d.Action), d.Strength, d.Confidence, string(d.Regime),
		d.EntryPrice, d.StopLoss, d.TakeProfit, d.PositionSize, d.Leverage,
		d.Rationale, d.Models, d.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save decision %s: %w", d.ID, err)
	}
	return nil
}

// LatestDecisions returns the most recent decisions, newest first.
func (r *DecisionRepository) LatestDecisions(ctx context.Context, limit int) ([]models.Decision, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `
		SELECT id, symbol, action, strength, confidence, regime,
		       entry_price, stop_loss, take_profit, position_size, leverage,
		       rationale, models, created_at
		FROM decisions
		ORDER BY created_at DESC
		LIMIT $1`

	rows, err := r.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query decisions: %w", err)
	}
	defer rows.Close()

	var out []models.Decision
	for rows.Next() {
		var d models.Decision
		var action, marketRegime string
		if err := rows.Scan(
			&d.ID, &d.Symbol, &action, &d.Strength, &d.Confidence, &marketRegime,
			&d.EntryPrice, &d.StopLoss, &d.TakeProfit, &d.PositionSize, &d.Leverage,
			&d.Rationale, &d.Models, &d.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan decision: %w", err)
		}
		d.Action = models.TradeAction(action)
		d.Regime = models.Regime(marketRegime)
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read decisions: %w", err)
	}
	return out, nil
}

// SavePerformance appends one performance sample.
func (r *DecisionRepository) SavePerformance(ctx context.Context, p *models.PerformanceRecord) error {
	query := `
		INSERT INTO performance_records (
			win_rate, profit_factor, sharpe_ratio, max_drawdown, period, timestamp
		) VALUES ($1, $2, $3, $4, $5, $6)`

	_, err := r.pool.Exec(ctx, query,
		p.WinRate, p.ProfitFactor, p.SharpeRatio, p.MaxDrawdown, p.Period, p.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("failed to save performance record: %w", err)
	}
	return nil
}

// RecentPerformance returns samples newer than since, oldest first.
func (r *DecisionRepository) RecentPerformance(ctx context.Context, since time.Time) ([]models.PerformanceRecord, error) {
	query := `
		SELECT win_rate, profit_factor, sharpe_ratio, max_drawdown, period, timestamp
		FROM performance_records
		WHERE timestamp > $1
		ORDER BY timestamp ASC`

	rows, err := r.pool.Query(ctx, query, since)
	if err != nil {
		return nil, fmt.Errorf("failed to query performance records: %w", err)
	}
	defer rows.Close()

	var out []models.PerformanceRecord
	for rows.Next() {
		var p models.PerformanceRecord
		if err := rows.Scan(
			&p.WinRate, &p.ProfitFactor, &p.SharpeRatio, &p.MaxDrawdown, &p.Period, &p.Timestamp,
		); err != nil {
			return nil, fmt.Errorf("failed to scan performance record: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read performance records: %w", err)
	}
	return out, nil
}
