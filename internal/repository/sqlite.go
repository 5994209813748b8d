package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/chucky-1/virtual-trader/internal/model"
	_ "github.com/mattn/go-sqlite3" // driver
	log "github.com/sirupsen/logrus"
)

// OpenSQLite opens the database file. Write transactions take the database
// lock at BEGIN, so concurrent units wait for each other instead of failing.
func OpenSQLite(path string) (*sql.DB, error) {
	dsn := fmt.Sprintf("file:%s?_txlock=immediate&_busy_timeout=5000&_foreign_keys=on", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, err
	}
	if path == ":memory:" {
		db.SetMaxOpenConns(1)
	}
	return db, nil
}

// SQLite works with sqlite
type SQLite struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLite is constructor
func NewSQLite(db *sql.DB) *SQLite {
	return &SQLite{db: db, now: time.Now}
}

// Migrate creates tables and indexes
func (s *SQLite) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, sqliteSchema); err != nil {
		return fmt.Errorf("migrate sqlite: %w", err)
	}
	return nil
}

// EnsureAccount creates the account unless it exists. An existing account
// without a name takes the given one
func (s *SQLite) EnsureAccount(ctx context.Context, id int64, name string, balance float64) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		"INSERT INTO accounts (id, name, balance) VALUES (?, ?, ?) ON CONFLICT (id) DO NOTHING",
		id, name, balance)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n == 0 && name != "" {
		_, err = s.db.ExecContext(ctx, "UPDATE accounts SET name = ? WHERE id = ? AND name = ''", name, id)
		return false, err
	}
	return n == 1, nil
}

// Account returns the account
func (s *SQLite) Account(ctx context.Context, id int64) (*model.Account, error) {
	acc := &model.Account{}
	err := s.db.QueryRowContext(ctx, "SELECT id, name, balance FROM accounts WHERE id = ?", id).
		Scan(&acc.ID, &acc.Name, &acc.Balance)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrAccountNotFound
	}
	if err != nil {
		return nil, err
	}
	return acc, nil
}

// Accounts returns all accounts ordered by id
func (s *SQLite) Accounts(ctx context.Context) ([]*model.Account, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT id, name, balance FROM accounts ORDER BY id")
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

// WithinAccount runs fn in a transaction
func (s *SQLite) WithinAccount(ctx context.Context, id int64, fn func(tx AccountTx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
			log.Error(err)
		}
	}()

	var balance float64
	err = tx.QueryRowContext(ctx, "SELECT balance FROM accounts WHERE id = ?", id).Scan(&balance)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrAccountNotFound
	}
	if err != nil {
		return err
	}

	if err = fn(&sqliteTx{tx: tx, id: id, now: s.now}); err != nil {
		return err
	}
	return tx.Commit()
}

// Position returns the held quantity, 0 if there is no position
func (s *SQLite) Position(ctx context.Context, id int64, ticker string) (int64, error) {
	return sqlitePosition(ctx, s.db, id, ticker)
}

// Positions returns positive positions ordered by ticker
func (s *SQLite) Positions(ctx context.Context, id int64) ([]*model.Position, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT ticker, quantity FROM positions WHERE account_id = ? AND quantity > 0 ORDER BY ticker", id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var positions []*model.Position
	for rows.Next() {
		p := &model.Position{AccountID: id}
		if err = rows.Scan(&p.Ticker, &p.Quantity); err != nil {
			return nil, err
		}
		positions = append(positions, p)
	}
	return positions, rows.Err()
}

// AverageCost returns the weighted price of buy trades
func (s *SQLite) AverageCost(ctx context.Context, id int64, ticker string) (float64, bool, error) {
	var cost sql.NullFloat64
	var quantity sql.NullInt64
	err := s.db.QueryRowContext(ctx,
		"SELECT SUM(quantity * price), SUM(quantity) FROM trades WHERE account_id = ? AND ticker = ? AND quantity > 0",
		id, strings.ToUpper(ticker)).Scan(&cost, &quantity)
	if err != nil {
		return 0, false, err
	}
	if !cost.Valid || !quantity.Valid || quantity.Int64 == 0 {
		return 0, false, nil
	}
	return cost.Float64 / float64(quantity.Int64), true, nil
}

// RecentTrades returns the last trades, newest first
func (s *SQLite) RecentTrades(ctx context.Context, id int64, limit int) ([]*model.Trade, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, ticker, quantity, price, created_at FROM trades WHERE account_id = ? ORDER BY created_at DESC, id DESC LIMIT ?",
		id, sqliteLimit(limit))
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
func (s *SQLite) InsertAlert(ctx context.Context, alert *model.Alert) error {
	ticker := strings.ToUpper(alert.Ticker)
	res, err := s.db.ExecContext(ctx,
		"INSERT INTO alerts (account_id, ticker, condition, target, triggered) VALUES (?, ?, ?, ?, FALSE)",
		alert.AccountID, ticker, alert.Condition, alert.Target)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	alert.ID = id
	alert.Ticker = ticker
	alert.Triggered = false
	return nil
}

// ActiveAlerts returns alerts that have not fired, oldest first
func (s *SQLite) ActiveAlerts(ctx context.Context) ([]*model.Alert, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, account_id, ticker, condition, target FROM alerts WHERE triggered = FALSE ORDER BY id")
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
func (s *SQLite) MarkTriggered(ctx context.Context, id int64) (bool, error) {
	res, err := s.db.ExecContext(ctx, "UPDATE alerts SET triggered = TRUE WHERE id = ? AND triggered = FALSE", id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// AppendCandle appends a candle to the history of its ticker
func (s *SQLite) AppendCandle(ctx context.Context, candle *model.Candle) error {
	if candle.Time.IsZero() {
		candle.Time = s.now()
	}
	res, err := s.db.ExecContext(ctx,
		"INSERT INTO candles (ticker, open, high, low, close, created_at) VALUES (?, ?, ?, ?, ?, ?)",
		strings.ToUpper(candle.Ticker), candle.Open, candle.High, candle.Low, candle.Close, candle.Time.UTC())
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	candle.ID = id
	return nil
}

// CandleHistory returns candles since the moment, oldest first
func (s *SQLite) CandleHistory(ctx context.Context, ticker string, since time.Time) ([]*model.Candle, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, ticker, open, high, low, close, created_at FROM candles WHERE ticker = ? AND created_at >= ? ORDER BY created_at, id",
		strings.ToUpper(ticker), since.UTC())
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
func (s *SQLite) RecordDividend(ctx context.Context, payment *model.DividendPayment) error {
	if payment.Time.IsZero() {
		payment.Time = s.now()
	}
	payment.Ticker = strings.ToUpper(payment.Ticker)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
			log.Error(err)
		}
	}()

	res, err := tx.ExecContext(ctx, "UPDATE accounts SET balance = balance + ? WHERE id = ?", payment.Amount, payment.AccountID)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err != nil {
		return err
	} else if n == 0 {
		return ErrAccountNotFound
	}

	res, err = tx.ExecContext(ctx,
		"INSERT INTO dividend_payments (account_id, ticker, quantity, amount, paid_at) VALUES (?, ?, ?, ?, ?)",
		payment.AccountID, payment.Ticker, payment.Quantity, payment.Amount, payment.Time.UTC())
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return err
	}
	payment.ID = id
	return nil
}

// RecentDividends returns the last payments, newest first
func (s *SQLite) RecentDividends(ctx context.Context, id int64, limit int) ([]*model.DividendPayment, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, ticker, quantity, amount, paid_at FROM dividend_payments WHERE account_id = ? ORDER BY paid_at DESC, id DESC LIMIT ?",
		id, sqliteLimit(limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var payments []*model.DividendPayment
	for rows.Next() {
		p := &model.DividendPayment{AccountID: id}
		if err = rows.Scan(&p.ID, &p.Ticker, &p.Quantity, &p.Amount, &p.Time); err != nil {
			return nil, err
		}
		payments = append(payments, p)
	}
	return payments, rows.Err()
}

// TotalDividends returns the lifetime sum of payments
func (s *SQLite) TotalDividends(ctx context.Context, id int64) (float64, error) {
	var total float64
	err := s.db.QueryRowContext(ctx,
		"SELECT COALESCE(SUM(amount), 0) FROM dividend_payments WHERE account_id = ?", id).Scan(&total)
	return total, err
}

type sqliteTx struct {
	tx  *sql.Tx
	id  int64
	now func() time.Time
}

func (t *sqliteTx) Balance(ctx context.Context) (float64, error) {
	var balance float64
	err := t.tx.QueryRowContext(ctx, "SELECT balance FROM accounts WHERE id = ?", t.id).Scan(&balance)
	return balance, err
}

func (t *sqliteTx) AdjustBalance(ctx context.Context, delta float64) error {
	_, err := t.tx.ExecContext(ctx, "UPDATE accounts SET balance = balance + ? WHERE id = ?", delta, t.id)
	return err
}

func (t *sqliteTx) Position(ctx context.Context, ticker string) (int64, error) {
	return sqlitePosition(ctx, t.tx, t.id, ticker)
}

func (t *sqliteTx) AdjustPosition(ctx context.Context, ticker string, delta int64) error {
	ticker = strings.ToUpper(ticker)
	held, err := sqlitePosition(ctx, t.tx, t.id, ticker)
	if err != nil {
		return err
	}
	if held+delta < 0 {
		return ErrNegativePosition
	}
	// the row is created at 0 first, sqlite checks constraints on the inserted
	// values before it resolves the conflict
	if _, err = t.tx.ExecContext(ctx,
		"INSERT INTO positions (account_id, ticker, quantity) VALUES (?, ?, 0) "+
			"ON CONFLICT (account_id, ticker) DO NOTHING",
		t.id, ticker); err != nil {
		return err
	}
	_, err = t.tx.ExecContext(ctx,
		"UPDATE positions SET quantity = quantity + ? WHERE account_id = ? AND ticker = ?",
		delta, t.id, ticker)
	return err
}

func (t *sqliteTx) AppendTrade(ctx context.Context, ticker string, quantity int64, price float64) (*model.Trade, error) {
	trade := &model.Trade{
		AccountID: t.id,
		Ticker:    strings.ToUpper(ticker),
		Quantity:  quantity,
		Price:     price,
		Time:      t.now().UTC(),
	}
	res, err := t.tx.ExecContext(ctx,
		"INSERT INTO trades (account_id, ticker, quantity, price, created_at) VALUES (?, ?, ?, ?, ?)",
		trade.AccountID, trade.Ticker, trade.Quantity, trade.Price, trade.Time)
	if err != nil {
		return nil, err
	}
	if trade.ID, err = res.LastInsertId(); err != nil {
		return nil, err
	}
	return trade, nil
}

type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

func sqlitePosition(ctx context.Context, q queryRower, id int64, ticker string) (int64, error) {
	var quantity int64
	err := q.QueryRowContext(ctx,
		"SELECT quantity FROM positions WHERE account_id = ? AND ticker = ?",
		id, strings.ToUpper(ticker)).Scan(&quantity)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	return quantity, err
}

// sqliteLimit maps "no limit" to -1, which sqlite reads as unbounded
func sqliteLimit(limit int) int {
	if limit <= 0 {
		return -1
	}
	return limit
}
