package repository

import (
	"context"
	"errors"
	"path/filepath"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/chucky-1/virtual-trader/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockSQLite(t *testing.T) (*SQLite, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("Failed to create mock DB: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewSQLite(db), mock
}

func q(query string) string {
	return regexp.QuoteMeta(query)
}

func TestSQLite_EnsureAccount(t *testing.T) {
	testTable := []struct {
		name        string
		accountName string
		affected    int64
		rename      bool
		expect      bool
	}{
		{
			name:        "OK if account is new",
			accountName: "ivan",
			affected:    1,
			expect:      true,
		},
		{
			name:        "OK if existing account takes the name",
			accountName: "ivan",
			affected:    0,
			rename:      true,
			expect:      false,
		},
		{
			name:     "OK if account exists and no name is given",
			affected: 0,
			expect:   false,
		},
	}

	for _, testCase := range testTable {
		t.Run(testCase.name, func(t *testing.T) {
			s, mock := newMockSQLite(t)
			mock.ExpectExec(q("INSERT INTO accounts (id, name, balance) VALUES (?, ?, ?) ON CONFLICT (id) DO NOTHING")).
				WithArgs(1, testCase.accountName, 10000.0).
				WillReturnResult(sqlmock.NewResult(0, testCase.affected))
			if testCase.rename {
				mock.ExpectExec(q("UPDATE accounts SET name = ? WHERE id = ? AND name = ''")).
					WithArgs(testCase.accountName, 1).
					WillReturnResult(sqlmock.NewResult(0, 1))
			}

			created, err := s.EnsureAccount(context.Background(), 1, testCase.accountName, 10000)
			assert.NoError(t, err)
			assert.Equal(t, testCase.expect, created)
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestSQLite_AccountNotFound(t *testing.T) {
	s, mock := newMockSQLite(t)
	mock.ExpectQuery(q("SELECT id, name, balance FROM accounts WHERE id = ?")).
		WithArgs(9).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "balance"}))

	_, err := s.Account(context.Background(), 9)
	assert.ErrorIs(t, err, ErrAccountNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLite_WithinAccountCommits(t *testing.T) {
	s, mock := newMockSQLite(t)
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectQuery(q("SELECT balance FROM accounts WHERE id = ?")).
		WithArgs(1).
		WillReturnRows(sqlmock.NewRows([]string{"balance"}).AddRow(10000.0))
	mock.ExpectExec(q("UPDATE accounts SET balance = balance + ? WHERE id = ?")).
		WithArgs(-3134.3, 1).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(q("SELECT quantity FROM positions WHERE account_id = ? AND ticker = ?")).
		WithArgs(1, "SBER").
		WillReturnRows(sqlmock.NewRows([]string{"quantity"}))
	mock.ExpectExec(q("INSERT INTO positions (account_id, ticker, quantity) VALUES (?, ?, 0) ON CONFLICT (account_id, ticker) DO NOTHING")).
		WithArgs(1, "SBER").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(q("UPDATE positions SET quantity = quantity + ? WHERE account_id = ? AND ticker = ?")).
		WithArgs(10, 1, "SBER").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(q("INSERT INTO trades (account_id, ticker, quantity, price, created_at) VALUES (?, ?, ?, ?, ?)")).
		WithArgs(1, "SBER", 10, 313.43, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(7, 1))
	mock.ExpectCommit()

	var trade *model.Trade
	err := s.WithinAccount(ctx, 1, func(tx AccountTx) error {
		if err := tx.AdjustBalance(ctx, -3134.3); err != nil {
			return err
		}
		if err := tx.AdjustPosition(ctx, "sber", 10); err != nil {
			return err
		}
		var err error
		trade, err = tx.AppendTrade(ctx, "sber", 10, 313.43)
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, int64(7), trade.ID)
	assert.Equal(t, "SBER", trade.Ticker)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLite_WithinAccountRollsBack(t *testing.T) {
	s, mock := newMockSQLite(t)
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectQuery(q("SELECT balance FROM accounts WHERE id = ?")).
		WithArgs(1).
		WillReturnRows(sqlmock.NewRows([]string{"balance"}).AddRow(0.0))
	mock.ExpectQuery(q("SELECT quantity FROM positions WHERE account_id = ? AND ticker = ?")).
		WithArgs(1, "GAZP").
		WillReturnRows(sqlmock.NewRows([]string{"quantity"}).AddRow(0))
	mock.ExpectRollback()

	err := s.WithinAccount(ctx, 1, func(tx AccountTx) error {
		return tx.AdjustPosition(ctx, "GAZP", -1)
	})
	assert.ErrorIs(t, err, ErrNegativePosition)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLite_WithinAccountUnknown(t *testing.T) {
	s, mock := newMockSQLite(t)

	mock.ExpectBegin()
	mock.ExpectQuery(q("SELECT balance FROM accounts WHERE id = ?")).
		WithArgs(3).
		WillReturnRows(sqlmock.NewRows([]string{"balance"}))
	mock.ExpectRollback()

	called := false
	err := s.WithinAccount(context.Background(), 3, func(tx AccountTx) error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, ErrAccountNotFound)
	assert.False(t, called)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLite_MarkTriggered(t *testing.T) {
	s, mock := newMockSQLite(t)
	ctx := context.Background()
	query := q("UPDATE alerts SET triggered = TRUE WHERE id = ? AND triggered = FALSE")

	mock.ExpectExec(query).WithArgs(5).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(query).WithArgs(5).WillReturnResult(sqlmock.NewResult(0, 0))

	first, err := s.MarkTriggered(ctx, 5)
	require.NoError(t, err)
	second, err := s.MarkTriggered(ctx, 5)
	require.NoError(t, err)

	assert.True(t, first)
	assert.False(t, second)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLite_AverageCost(t *testing.T) {
	testTable := []struct {
		name    string
		cost    interface{}
		qty     interface{}
		expect  float64
		expectK bool
	}{
		{
			name:    "OK if there are buys",
			cost:    1500.0,
			qty:     int64(10),
			expect:  150,
			expectK: true,
		},
		{
			name: "OK if there are no buys",
			cost: nil,
			qty:  nil,
		},
	}

	for _, testCase := range testTable {
		t.Run(testCase.name, func(t *testing.T) {
			s, mock := newMockSQLite(t)
			mock.ExpectQuery(q("SELECT SUM(quantity * price), SUM(quantity) FROM trades WHERE account_id = ? AND ticker = ? AND quantity > 0")).
				WithArgs(1, "SBER").
				WillReturnRows(sqlmock.NewRows([]string{"cost", "quantity"}).AddRow(testCase.cost, testCase.qty))

			avg, ok, err := s.AverageCost(context.Background(), 1, "sber")
			assert.NoError(t, err)
			assert.Equal(t, testCase.expectK, ok)
			assert.Equal(t, testCase.expect, avg)
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestSQLite_RecordDividend(t *testing.T) {
	s, mock := newMockSQLite(t)
	paid := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectExec(q("UPDATE accounts SET balance = balance + ? WHERE id = ?")).
		WithArgs(1.25, 1).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(q("INSERT INTO dividend_payments (account_id, ticker, quantity, amount, paid_at) VALUES (?, ?, ?, ?, ?)")).
		WithArgs(1, "GAZP", 100, 1.25, paid).
		WillReturnResult(sqlmock.NewResult(11, 1))
	mock.ExpectCommit()

	p := &model.DividendPayment{AccountID: 1, Ticker: "gazp", Quantity: 100, Amount: 1.25, Time: paid}
	require.NoError(t, s.RecordDividend(context.Background(), p))
	assert.Equal(t, int64(11), p.ID)
	assert.Equal(t, "GAZP", p.Ticker)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLite_RecordDividendUnknownAccount(t *testing.T) {
	s, mock := newMockSQLite(t)

	mock.ExpectBegin()
	mock.ExpectExec(q("UPDATE accounts SET balance = balance + ? WHERE id = ?")).
		WithArgs(1.25, 4).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := s.RecordDividend(context.Background(), &model.DividendPayment{AccountID: 4, Ticker: "GAZP", Amount: 1.25})
	assert.ErrorIs(t, err, ErrAccountNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLite_CandleHistory(t *testing.T) {
	s, mock := newMockSQLite(t)
	since := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	rows := sqlmock.NewRows([]string{"id", "ticker", "open", "high", "low", "close", "created_at"}).
		AddRow(1, "SBER", 310.0, 312.0, 310.0, 312.0, since).
		AddRow(2, "SBER", 312.0, 312.0, 309.5, 309.5, since.Add(2*time.Minute))
	mock.ExpectQuery(q("SELECT id, ticker, open, high, low, close, created_at FROM candles WHERE ticker = ? AND created_at >= ? ORDER BY created_at, id")).
		WithArgs("SBER", since).
		WillReturnRows(rows)

	candles, err := s.CandleHistory(context.Background(), "sber", since)
	require.NoError(t, err)
	require.Len(t, candles, 2)
	assert.Equal(t, candles[0].Close, candles[1].Open)
	assert.Equal(t, 309.5, candles[1].Low)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLite_QueryError(t *testing.T) {
	s, mock := newMockSQLite(t)
	mock.ExpectQuery(q("SELECT COALESCE(SUM(amount), 0) FROM dividend_payments WHERE account_id = ?")).
		WithArgs(1).
		WillReturnError(errors.New("disk I/O error"))

	_, err := s.TotalDividends(context.Background(), 1)
	assert.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLite_File(t *testing.T) {
	db, err := OpenSQLite(filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	defer db.Close()
	if err = db.Ping(); err != nil {
		t.Skipf("sqlite is not available: %v", err)
	}

	s := NewSQLite(db)
	ctx := context.Background()
	require.NoError(t, s.Migrate(ctx))
	require.NoError(t, s.Migrate(ctx))

	created, err := s.EnsureAccount(ctx, 1, "ivan", 10000)
	require.NoError(t, err)
	assert.True(t, created)

	for _, trade := range []struct {
		qty   int64
		price float64
	}{{5, 100}, {5, 200}, {-3, 500}} {
		err = s.WithinAccount(ctx, 1, func(tx AccountTx) error {
			if err := tx.AdjustBalance(ctx, -float64(trade.qty)*trade.price); err != nil {
				return err
			}
			if err := tx.AdjustPosition(ctx, "SBER", trade.qty); err != nil {
				return err
			}
			_, err := tx.AppendTrade(ctx, "SBER", trade.qty, trade.price)
			return err
		})
		require.NoError(t, err)
	}

	err = AdjustPosition(ctx, s, 1, "SBER", -8)
	assert.ErrorIs(t, err, ErrNegativePosition)

	positions, err := s.Positions(ctx, 1)
	require.NoError(t, err)
	require.Len(t, positions, 1)
	assert.Equal(t, int64(7), positions[0].Quantity)

	avg, ok, err := s.AverageCost(ctx, 1, "SBER")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 150.0, avg)

	acc, err := s.Account(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 10000.0-500-1000+1500, acc.Balance)

	trades, err := s.RecentTrades(ctx, 1, 2)
	require.NoError(t, err)
	require.Len(t, trades, 2)
	assert.Equal(t, int64(-3), trades[0].Quantity)

	alert := &model.Alert{AccountID: 1, Ticker: "sber", Condition: model.Above, Target: 300}
	require.NoError(t, s.InsertAlert(ctx, alert))
	flipped, err := s.MarkTriggered(ctx, alert.ID)
	require.NoError(t, err)
	assert.True(t, flipped)
	flipped, err = s.MarkTriggered(ctx, alert.ID)
	require.NoError(t, err)
	assert.False(t, flipped)

	start := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		c := &model.Candle{Ticker: "SBER", Open: 1, High: 1, Low: 1, Close: float64(i), Time: start.Add(time.Duration(i) * time.Hour)}
		require.NoError(t, s.AppendCandle(ctx, c))
	}
	candles, err := s.CandleHistory(ctx, "SBER", start.Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, candles, 2)
	assert.Equal(t, 1.0, candles[0].Close)

	require.NoError(t, s.RecordDividend(ctx, &model.DividendPayment{AccountID: 1, Ticker: "SBER", Quantity: 7, Amount: 2.5}))
	total, err := s.TotalDividends(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 2.5, total)
}
