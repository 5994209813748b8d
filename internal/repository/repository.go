// Package repository stores the ledger: accounts, positions, trades, alerts, candles and dividends
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/chucky-1/virtual-trader/internal/model"
	"github.com/chucky-1/virtual-trader/internal/user"
)

var (
	// ErrAccountNotFound is returned when an operation needs an account that was never created
	ErrAccountNotFound = errors.New("account not found")
	// ErrNegativePosition is returned when an adjustment would leave a position below zero
	ErrNegativePosition = user.ErrNegativePosition
)

// AccountTx is a unit of work on one account. All changes made through it
// become visible together when the unit commits and are discarded otherwise.
type AccountTx interface {
	Balance(ctx context.Context) (float64, error)
	AdjustBalance(ctx context.Context, delta float64) error
	Position(ctx context.Context, ticker string) (int64, error)
	// AdjustPosition creates the position at 0 if needed, then adds delta
	AdjustPosition(ctx context.Context, ticker string, delta int64) error
	AppendTrade(ctx context.Context, ticker string, quantity int64, price float64) (*model.Trade, error)
}

// Ledger is durable state of the simulator. Each method is atomic with
// respect to other callers on the same account or alert.
type Ledger interface {
	// EnsureAccount creates the account with the balance unless it exists and reports whether it was created.
	// An existing account with an empty name takes the given name
	EnsureAccount(ctx context.Context, id int64, name string, balance float64) (bool, error)
	Account(ctx context.Context, id int64) (*model.Account, error)
	Accounts(ctx context.Context) ([]*model.Account, error)
	// WithinAccount runs fn as one unit holding the lock of the account
	WithinAccount(ctx context.Context, id int64, fn func(tx AccountTx) error) error

	Position(ctx context.Context, id int64, ticker string) (int64, error)
	// Positions returns positions with positive quantity ordered by ticker
	Positions(ctx context.Context, id int64) ([]*model.Position, error)
	// AverageCost is the quantity weighted price of buy trades, ok is false if there are none
	AverageCost(ctx context.Context, id int64, ticker string) (avg float64, ok bool, err error)
	// RecentTrades returns the last trades, newest first
	RecentTrades(ctx context.Context, id int64, limit int) ([]*model.Trade, error)

	InsertAlert(ctx context.Context, alert *model.Alert) error
	ActiveAlerts(ctx context.Context) ([]*model.Alert, error)
	// MarkTriggered flips the triggered flag and reports whether this call flipped it
	MarkTriggered(ctx context.Context, id int64) (bool, error)

	AppendCandle(ctx context.Context, candle *model.Candle) error
	// CandleHistory returns candles of the ticker since the moment, oldest first
	CandleHistory(ctx context.Context, ticker string, since time.Time) ([]*model.Candle, error)

	// RecordDividend appends the payment and credits the balance as one unit
	RecordDividend(ctx context.Context, payment *model.DividendPayment) error
	RecentDividends(ctx context.Context, id int64, limit int) ([]*model.DividendPayment, error)
	TotalDividends(ctx context.Context, id int64) (float64, error)
}

// AdjustPosition adds delta to the position, creating it at 0 first
func AdjustPosition(ctx context.Context, l Ledger, id int64, ticker string, delta int64) error {
	return l.WithinAccount(ctx, id, func(tx AccountTx) error {
		return tx.AdjustPosition(ctx, ticker, delta)
	})
}
