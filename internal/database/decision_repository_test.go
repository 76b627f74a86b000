package database

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantfold/signalforge/internal/models"
)

// mockPoolAdapter wraps pgxmock.PgxPoolIface to implement DatabasePool.
type mockPoolAdapter struct {
	mock pgxmock.PgxPoolIface
}

func (m *mockPoolAdapter) QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row {
	return m.mock.QueryRow(ctx, sql, args...)
}

func (m *mockPoolAdapter) Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error) {
	return m.mock.Exec(ctx, sql, args...)
}

func (m *mockPoolAdapter) Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error) {
	return m.mock.Query(ctx, sql, args...)
}

func newMockRepo(t *testing.T) (*DecisionRepository, pgxmock.PgxPoolIface) {
	t.Helper()
	mockPool, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mockPool.Close)
	return NewDecisionRepository(&mockPoolAdapter{mock: mockPool}), mockPool
}

func sampleDecision() *models.Decision {
	return &models.Decision{
		ID:           "a2f1c7de-9a1b-4f7e-8a74-3f2d6f0c1b55",
		Symbol:       "BTC/USDT",
		Action:       models.ActionLong,
		Strength:     7.4,
		Confidence:   0.33,
		Regime:       models.RegimeWeakTrend,
		EntryPrice:   decimal.NewFromFloat(64250.5),
		StopLoss:     decimal.NewFromFloat(63100),
		TakeProfit:   decimal.NewFromFloat(67700),
		PositionSize: decimal.NewFromFloat(480),
		Leverage:     4,
		Rationale:    "2 of 6 models agree on LONG",
		Models:       []string{"structure_break", "institutional_flow"},
		CreatedAt:    time.Date(2025, 5, 3, 12, 0, 0, 0, time.UTC),
	}
}

func TestSaveDecision(t *testing.T) {
	repo, mockPool := newMockRepo(t)
	d := sampleDecision()

	mockPool.ExpectExec("INSERT INTO decisions").
		WithArgs(
			d.ID, d.Symbol, string(d.Action), d.Strength, d.Confidence, string(d.Regime),
			d.EntryPrice, d.StopLoss, d.TakeProfit, d.PositionSize, d.Leverage,
			d.Rationale, d.Models, d.CreatedAt,
		).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := repo.SaveDecision(context.Background(), d)
	assert.NoError(t, err)
	assert.NoError(t, mockPool.ExpectationsWereMet())
}

func TestSaveDecisionWrapsError(t *testing.T) {
	repo, mockPool := newMockRepo(t)
	d := sampleDecision()

	mockPool.ExpectExec("INSERT INTO decisions").
		WithArgs(
			d.ID, d.Symbol, string(d.Action), d.Strength, d.Confidence, string(d.Regime),
			d.EntryPrice, d.StopLoss, d.TakeProfit, d.PositionSize, d.Leverage,
			d.Rationale, d.Models, d.CreatedAt,
		).
		WillReturnError(errors.New("connection reset"))

	err := repo.SaveDecision(context.Background(), d)
	require.Error(t, err)
	assert.Contains(t, err.Error(), d.ID)
	assert.Contains(t, err.Error(), "connection reset")
}

func TestLatestDecisions(t *testing.T) {
	repo, mockPool := newMockRepo(t)
	d := sampleDecision()

	rows := pgxmock.NewRows([]string{
		"id", "symbol", "action", "strength", "confidence", "regime",
		"entry_price", "stop_loss", "take_profit", "position_size", "leverage",
		"rationale", "models", "created_at",
	}).AddRow(
		d.ID, d.Symbol, string(d.Action), d.Strength, d.Confidence, string(d.Regime),
		d.EntryPrice, d.StopLoss, d.TakeProfit, d.PositionSize, d.Leverage,
		d.Rationale, d.Models, d.CreatedAt,
	)
	mockPool.ExpectQuery("SELECT (.+) FROM decisions").
		WithArgs(10).
		WillReturnRows(rows)

	out, err := repo.LatestDecisions(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, *d, out[0])
	assert.NoError(t, mockPool.ExpectationsWereMet())
}

func TestLatestDecisionsDefaultLimit(t *testing.T) {
	repo, mockPool := newMockRepo(t)

	mockPool.ExpectQuery("SELECT (.+) FROM decisions").
		WithArgs(50).
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "symbol", "action", "strength", "confidence", "regime",
			"entry_price", "stop_loss", "take_profit", "position_size", "leverage",
			"rationale", "models", "created_at",
		}))

	out, err := repo.LatestDecisions(context.Background(), 0)
	require.NoError(t, err)
	assert.Empty(t, out)
	assert.NoError(t, mockPool.ExpectationsWereMet())
}

func TestSaveAndReadPerformance(t *testing.T) {
	repo, mockPool := newMockRepo(t)
	record := models.PerformanceRecord{
		WinRate:      0.58,
		ProfitFactor: 1.7,
		SharpeRatio:  1.2,
		MaxDrawdown:  0.08,
		Period:       "7d",
		Timestamp:    time.Date(2025, 5, 3, 0, 0, 0, 0, time.UTC),
	}

	mockPool.ExpectExec("INSERT INTO performance_records").
		WithArgs(record.WinRate, record.ProfitFactor, record.SharpeRatio,
			record.MaxDrawdown, record.Period, record.Timestamp).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, repo.SavePerformance(context.Background(), &record))

	since := record.Timestamp.Add(-24 * time.Hour)
	mockPool.ExpectQuery("SELECT (.+) FROM performance_records").
		WithArgs(since).
		WillReturnRows(pgxmock.NewRows([]string{
			"win_rate", "profit_factor", "sharpe_ratio", "max_drawdown", "period", "timestamp",
		}).AddRow(record.WinRate, record.ProfitFactor, record.SharpeRatio,
			record.MaxDrawdown, record.Period, record.Timestamp))

	out, err := repo.RecentPerformance(context.Background(), since)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, record, out[0])
	assert.NoError(t, mockPool.ExpectationsWereMet())
}
