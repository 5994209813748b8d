package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/chucky-1/virtual-trader/internal/model"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
)

// Postgres works with postgres. Units of one account serialize on the row
// lock of the account, other accounts are not blocked.
type Postgres struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

// NewPostgres is constructor
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool, now: time.Now}
}

// Migrate creates tables and indexes
func (p *Postgres) Migrate(ctx context.Context) error {
	if _, err := p.pool.Exec(ctx, postgresSchema); err != nil {
		return fmt.Errorf("migrate postgres: %w", err)
	}
	return nil
}

// EnsureAccount creates the account unless it exists. An existing account
// without a name takes the given one
func (p *Postgres) EnsureAccount(ctx context.Context, id int64, name string, balance float64) (bool, error) {
	tag, err := p.pool.Exec(ctx,
		"INSERT INTO accounts (id, name, balance) VALUES ($1, $2, $3) ON CONFLICT (id) DO NOTHING",
		id, name, balance)
	if err != nil {
		return false, err
	}
	if tag.RowsAffected() == 0 && name != "" {
		_, err = p.pool.Exec(ctx, "UPDATE accounts SET name = $1 WHERE id = $2 AND name = ''", name, id)
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// Account returns the account
func (p *Postgres) Account(ctx context.Context, id int64) (*model.Account, error) {
	acc := &model.Account{}
	err := p.pool.QueryRow(ctx, "SELECT id, name, balance FROM accounts WHERE id = $1", id).
		Scan(&acc.ID, &acc.Name, &acc.Balance)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrAccountNotFound
	}
	if err != nil {
		return nil, err
	}
	return acc, nil
}

// Accounts returns all accounts ordered by id
func (p *Postgres) Accounts(ctx context.Context) ([]*model.Account, error) {
	rows, err := p.pool.Query(ctx, "SELECT id, name, balance FROM accounts ORDER BY id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var accounts []*model.Account
	for rows.Next() {
		acc := &model.Account{}
		if err = rows.Scan(&acc.ID, &acc.Name, &acc.Balance); err != nil {
			return nil, err
		}
		accounts = append(accounts, acc)
	}
	return accounts, rows.Err()
}

// WithinAccount runs fn in a transaction holding the row lock of the account
func (p *Postgres) WithinAccount(ctx context.Context, id int64, fn func(tx AccountTx) error) error {
	return p.pool.BeginFunc(ctx, func(tx pgx.Tx) error {
		var balance float64
		err := tx.QueryRow(ctx, "SELECT balance FROM accounts WHERE id = $1 FOR UPDATE", id).Scan(&balance)
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrAccountNotFound
		}
		if err != nil {
			return err
		}
		return fn(&postgresTx{tx: tx, id: id, now: p.now})
	})
}

// Position returns the held quantity, 0 if there is no position
func (p *Postgres) Position(ctx context.Context, id int64, ticker string) (int64, error) {
	return postgresPosition(ctx, p.pool, id, ticker, false)
}

// Positions returns positive positions ordered by ticker
func (p *Postgres) Positions(ctx context.Context, id int64) ([]*model.Position, error) {
	rows, err := p.pool.Query(ctx,
		"SELECT ticker, quantity FROM positions WHERE account_id = $1 AND quantity > 0 ORDER BY ticker", id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var positions []*model.Position
	for rows.Next() {
		pos := &model.Position{AccountID: id}
		if err = rows.Scan(&pos.Ticker, &pos.Quantity); err != nil {
			return nil, err
		}
		positions = append(positions, pos)
	}
	return positions, rows.Err()
}

// AverageCost returns the weighted price of buy trades
func (p *Postgres) AverageCost(ctx context.Context, id int64, ticker string) (float64, bool, error) {
	var cost float64
	var quantity int64
	err := p.pool.QueryRow(ctx,
		"SELECT COALESCE(SUM(quantity * price), 0), COALESCE(SUM(quantity), 0)::BIGINT "+
			"FROM trades WHERE account_id = $1 AND ticker = $2 AND quantity > 0",
		id, strings.ToUpper(ticker)).Scan(&cost, &quantity)
	if err != nil {
		return 0, false, err
	}
	if quantity == 0 {
		return 0, false, nil
	}
	return cost / float64(quantity), true, nil
}

// RecentTrades returns the last trades, newest first
func (p *Postgres) RecentTrades(ctx context.Context, id int64, limit int) ([]*model.Trade, error) {
	rows, err := p.pool.Query(ctx,
		"SELECT id, ticker, quantity, price, created_at FROM trades WHERE account_id = $1 ORDER BY created_at DESC, id DESC LIMIT $2",
		id, postgresLimit(limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var trades []*model.Trade
	for rows.Next() {
		t := &model.Trade{AccountID: id}
		if err = rows.Scan(&t.ID, &t.Ticker, &t.Quantity, &t.Price, &t.Time); err != nil {
			return nil, err
		}
		trades = append(trades, t)
	}
	return trades, rows.Err()
}

// InsertAlert stores the alert and sets its id
func (p *Postgres) InsertAlert(ctx context.Context, alert *model.Alert) error {
	ticker := strings.ToUpper(alert.Ticker)
	var id int64
	err := p.pool.QueryRow(ctx,
		"INSERT INTO alerts (account_id, ticker, condition, target, triggered) VALUES ($1, $2, $3, $4, FALSE) RETURNING id",
		alert.AccountID, ticker, alert.Condition, alert.Target).Scan(&id)
	if err != nil {
		return err
	}
	alert.ID = id
	alert.Ticker = ticker
	alert.Triggered = false
	return nil
}

// ActiveAlerts returns alerts that have not fired, oldest first
func (p *Postgres) ActiveAlerts(ctx context.Context) ([]*model.Alert, error) {
	rows, err := p.pool.Query(ctx,
		"SELECT id, account_id, ticker, condition, target FROM alerts WHERE NOT triggered ORDER BY id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var alerts []*model.Alert
	for rows.Next() {
		a := &model.Alert{}
		if err = rows.Scan(&a.ID, &a.AccountID, &a.Ticker, &a.Condition, &a.Target); err != nil {
			return nil, err
		}
		alerts = append(alerts, a)
	}
	return alerts, rows.Err()
}

// MarkTriggered flips the flag once
func (p *Postgres) MarkTriggered(ctx context.Context, id int64) (bool, error) {
	tag, err := p.pool.Exec(ctx, "UPDATE alerts SET triggered = TRUE WHERE id = $1 AND NOT triggered", id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// AppendCandle appends a candle to the history of its ticker
func (p *Postgres) AppendCandle(ctx context.Context, candle *model.Candle) error {
	if candle.Time.IsZero() {
		candle.Time = p.now()
	}
	return p.pool.QueryRow(ctx,
		"INSERT INTO candles (ticker, open, high, low, close, created_at) VALUES ($1, $2, $3, $4, $5, $6) RETURNING id",
		strings.ToUpper(candle.Ticker), candle.Open, candle.High, candle.Low, candle.Close, candle.Time).Scan(&candle.ID)
}

// CandleHistory returns candles since the moment, oldest first
func (p *Postgres) CandleHistory(ctx context.Context, ticker string, since time.Time) ([]*model.Candle, error) {
	rows, err := p.pool.Query(ctx,
		"SELECT id, ticker, open, high, low, close, created_at FROM candles WHERE ticker = $1 AND created_at >= $2 ORDER BY created_at, id",
		strings.ToUpper(ticker), since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var candles []*model.Candle
	for rows.Next() {
		c := &model.Candle{}
		if err = rows.Scan(&c.ID, &c.Ticker, &c.Open, &c.High, &c.Low, &c.Close, &c.Time); err != nil {
			return nil, err
		}
		candles = append(candles, c)
	}
	return candles, rows.Err()
}

// RecordDividend appends the payment and credits the balance in one transaction
func (p *Postgres) RecordDividend(ctx context.Context, payment *model.DividendPayment) error {
	if payment.Time.IsZero() {
		payment.Time = p.now()
	}
	payment.Ticker = strings.ToUpper(payment.Ticker)

	var id int64
	err := p.pool.BeginFunc(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, "UPDATE accounts SET balance = balance + $1 WHERE id = $2", payment.Amount, payment.AccountID)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return ErrAccountNotFound
		}
		return tx.QueryRow(ctx,
			"INSERT INTO dividend_payments (account_id, ticker, quantity, amount, paid_at) VALUES ($1, $2, $3, $4, $5) RETURNING id",
			payment.AccountID, payment.Ticker, payment.Quantity, payment.Amount, payment.Time).Scan(&id)
	})
	if err != nil {
		return err
	}
	payment.ID = id
	return nil
}

// RecentDividends returns the last payments, newest first
func (p *Postgres) RecentDividends(ctx context.Context, id int64, limit int) ([]*model.DividendPayment, error) {
	rows, err := p.pool.Query(ctx,
		"SELECT id, ticker, quantity, amount, paid_at FROM dividend_payments WHERE account_id = $1 ORDER BY paid_at DESC, id DESC LIMIT $2",
		id, postgresLimit(limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var payments []*model.DividendPayment
	for rows.Next() {
		d := &model.DividendPayment{AccountID: id}
		if err = rows.Scan(&d.ID, &d.Ticker, &d.Quantity, &d.Amount, &d.Time); err != nil {
			return nil, err
		}
		payments = append(payments, d)
	}
	return payments, rows.Err()
}

// TotalDividends returns the lifetime sum of payments
func (p *Postgres) TotalDividends(ctx context.Context, id int64) (float64, error) {
	var total float64
	err := p.pool.QueryRow(ctx,
		"SELECT COALESCE(SUM(amount), 0) FROM dividend_payments WHERE account_id = $1", id).Scan(&total)
	return total, err
}

type postgresTx struct {
	tx  pgx.Tx
	id  int64
	now func() time.Time
}

func (t *postgresTx) Balance(ctx context.Context) (float64, error) {
	var balance float64
	err := t.tx.QueryRow(ctx, "SELECT balance FROM accounts WHERE id = $1", t.id).Scan(&balance)
	return balance, err
}

func (t *postgresTx) AdjustBalance(ctx context.Context, delta float64) error {
	_, err := t.tx.Exec(ctx, "UPDATE accounts SET balance = balance + $1 WHERE id = $2", delta, t.id)
	return err
}

func (t *postgresTx) Position(ctx context.Context, ticker string) (int64, error) {
	return postgresPosition(ctx, t.tx, t.id, ticker, false)
}

func (t *postgresTx) AdjustPosition(ctx context.Context, ticker string, delta int64) error {
	ticker = strings.ToUpper(ticker)
	_, err := t.tx.Exec(ctx,
		"INSERT INTO positions (account_id, ticker, quantity) VALUES ($1, $2, 0) ON CONFLICT (account_id, ticker) DO NOTHING",
		t.id, ticker)
	if err != nil {
		return err
	}
	held, err := postgresPosition(ctx, t.tx, t.id, ticker, true)
	if err != nil {
		return err
	}
	if held+delta < 0 {
		return ErrNegativePosition
	}
	_, err = t.tx.Exec(ctx,
		"UPDATE positions SET quantity = quantity + $1 WHERE account_id = $2 AND ticker = $3",
		delta, t.id, ticker)
	return err
}

func (t *postgresTx) AppendTrade(ctx context.Context, ticker string, quantity int64, price float64) (*model.Trade, error) {
	trade := &model.Trade{
		AccountID: t.id,
		Ticker:    strings.ToUpper(ticker),
		Quantity:  quantity,
		Price:     price,
		Time:      t.now(),
	}
	err := t.tx.QueryRow(ctx,
		"INSERT INTO trades (account_id, ticker, quantity, price, created_at) VALUES ($1, $2, $3, $4, $5) RETURNING id",
		trade.AccountID, trade.Ticker, trade.Quantity, trade.Price, trade.Time).Scan(&trade.ID)
	if err != nil {
		return nil, err
	}
	return trade, nil
}

type pgQueryRower interface {
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

func postgresPosition(ctx context.Context, q pgQueryRower, id int64, ticker string, lock bool) (int64, error) {
	query := "SELECT quantity FROM positions WHERE account_id = $1 AND ticker = $2"
	if lock {
		query += " FOR UPDATE"
	}
	var quantity int64
	err := q.QueryRow(ctx, query, id, strings.ToUpper(ticker)).Scan(&quantity)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	return quantity, err
}

// postgresLimit maps "no limit" to NULL
func postgresLimit(limit int) interface{} {
	if limit <= 0 {
		return nil
	}
	return limit
}
