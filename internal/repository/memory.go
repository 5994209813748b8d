package repository

import (
	"context"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/chucky-1/virtual-trader/internal/model"
	"github.com/chucky-1/virtual-trader/internal/user"
)

// Memory keeps the ledger in process memory. Each account is guarded by its
// own lock, accounts don't block each other.
type Memory struct {
	seq int64
	now func() time.Time

	muUsers sync.RWMutex
	users   map[int64]*user.User // map[account.ID]*user

	muAlerts sync.Mutex
	alerts   map[int64]*model.Alert
	order    []int64

	muCandles sync.RWMutex
	candles   map[string][]*model.Candle // map[ticker]candles
}

// NewMemory is constructor
func NewMemory() *Memory {
	return &Memory{
		now:     time.Now,
		users:   make(map[int64]*user.User),
		alerts:  make(map[int64]*model.Alert),
		candles: make(map[string][]*model.Candle),
	}
}

func (m *Memory) nextID() int64 {
	return atomic.AddInt64(&m.seq, 1)
}

func (m *Memory) user(id int64) (*user.User, error) {
	m.muUsers.RLock()
	u, ok := m.users[id]
	m.muUsers.RUnlock()
	if !ok {
		return nil, ErrAccountNotFound
	}
	return u, nil
}

// EnsureAccount creates the account unless it exists. An existing account
// without a name takes the given one
func (m *Memory) EnsureAccount(_ context.Context, id int64, name string, balance float64) (bool, error) {
	m.muUsers.Lock()
	defer m.muUsers.Unlock()
	if u, ok := m.users[id]; ok {
		u.FillName(name)
		return false, nil
	}
	m.users[id] = user.NewUser(id, name, balance)
	return true, nil
}

// Account returns the account
func (m *Memory) Account(_ context.Context, id int64) (*model.Account, error) {
	u, err := m.user(id)
	if err != nil {
		return nil, err
	}
	return u.Account(), nil
}

// Accounts returns all accounts ordered by id
func (m *Memory) Accounts(_ context.Context) ([]*model.Account, error) {
	m.muUsers.RLock()
	users := make([]*user.User, 0, len(m.users))
	for _, u := range m.users {
		users = append(users, u)
	}
	m.muUsers.RUnlock()

	accounts := make([]*model.Account, 0, len(users))
	for _, u := range users {
		accounts = append(accounts, u.Account())
	}
	sort.Slice(accounts, func(i, j int) bool {
		return accounts[i].ID < accounts[j].ID
	})
	return accounts, nil
}

// WithinAccount runs fn holding the lock of the account
func (m *Memory) WithinAccount(ctx context.Context, id int64, fn func(tx AccountTx) error) error {
	u, err := m.user(id)
	if err != nil {
		return err
	}
	return u.Update(func(tx *user.Tx) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		return fn(&memoryTx{m: m, id: id, tx: tx})
	})
}

// Position returns the held quantity, 0 if there is no position
func (m *Memory) Position(_ context.Context, id int64, ticker string) (int64, error) {
	u, err := m.user(id)
	if err != nil {
		return 0, err
	}
	return u.Quantity(strings.ToUpper(ticker)), nil
}

// Positions returns positive positions ordered by ticker
func (m *Memory) Positions(_ context.Context, id int64) ([]*model.Position, error) {
	u, err := m.user(id)
	if err != nil {
		return nil, err
	}
	return u.Positions(), nil
}

// AverageCost returns the weighted price of buy trades
func (m *Memory) AverageCost(_ context.Context, id int64, ticker string) (float64, bool, error) {
	u, err := m.user(id)
	if err != nil {
		return 0, false, err
	}
	avg, ok := u.AverageCost(strings.ToUpper(ticker))
	return avg, ok, nil
}

// RecentTrades returns the last trades, newest first
func (m *Memory) RecentTrades(_ context.Context, id int64, limit int) ([]*model.Trade, error) {
	u, err := m.user(id)
	if err != nil {
		return nil, err
	}
	return u.RecentTrades(limit), nil
}

// InsertAlert stores the alert and sets its id
func (m *Memory) InsertAlert(_ context.Context, alert *model.Alert) error {
	if _, err := m.user(alert.AccountID); err != nil {
		return err
	}
	stored := *alert
	stored.ID = m.nextID()
	stored.Ticker = strings.ToUpper(stored.Ticker)
	stored.Triggered = false

	m.muAlerts.Lock()
	m.alerts[stored.ID] = &stored
	m.order = append(m.order, stored.ID)
	m.muAlerts.Unlock()

	*alert = stored
	return nil
}

// ActiveAlerts returns alerts that have not fired, oldest first
func (m *Memory) ActiveAlerts(_ context.Context) ([]*model.Alert, error) {
	m.muAlerts.Lock()
	defer m.muAlerts.Unlock()
	var active []*model.Alert
	for _, id := range m.order {
		a := m.alerts[id]
		if !a.Triggered {
			c := *a
			active = append(active, &c)
		}
	}
	return active, nil
}

// MarkTriggered flips the flag once
func (m *Memory) MarkTriggered(_ context.Context, id int64) (bool, error) {
	m.muAlerts.Lock()
	defer m.muAlerts.Unlock()
	a, ok := m.alerts[id]
	if !ok || a.Triggered {
		return false, nil
	}
	a.Triggered = true
	return true, nil
}

// AppendCandle appends a candle to the history of its ticker
func (m *Memory) AppendCandle(_ context.Context, candle *model.Candle) error {
	c := *candle
	c.ID = m.nextID()
	c.Ticker = strings.ToUpper(c.Ticker)
	if c.Time.IsZero() {
		c.Time = m.now()
	}
	m.muCandles.Lock()
	m.candles[c.Ticker] = append(m.candles[c.Ticker], &c)
	m.muCandles.Unlock()
	candle.ID = c.ID
	return nil
}

// CandleHistory returns candles since the moment, oldest first
func (m *Memory) CandleHistory(_ context.Context, ticker string, since time.Time) ([]*model.Candle, error) {
	m.muCandles.RLock()
	defer m.muCandles.RUnlock()
	var out []*model.Candle
	for _, c := range m.candles[strings.ToUpper(ticker)] {
		if !c.Time.Before(since) {
			cp := *c
			out = append(out, &cp)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Time.Before(out[j].Time)
	})
	return out, nil
}

// RecordDividend appends the payment and credits the balance
func (m *Memory) RecordDividend(_ context.Context, payment *model.DividendPayment) error {
	u, err := m.user(payment.AccountID)
	if err != nil {
		return err
	}
	payment.ID = m.nextID()
	payment.Ticker = strings.ToUpper(payment.Ticker)
	if payment.Time.IsZero() {
		payment.Time = m.now()
	}
	stored := *payment
	u.RecordDividend(&stored)
	return nil
}

// RecentDividends returns the last payments, newest first
func (m *Memory) RecentDividends(_ context.Context, id int64, limit int) ([]*model.DividendPayment, error) {
	u, err := m.user(id)
	if err != nil {
		return nil, err
	}
	return u.RecentDividends(limit), nil
}

// TotalDividends returns the lifetime sum of payments
func (m *Memory) TotalDividends(_ context.Context, id int64) (float64, error) {
	u, err := m.user(id)
	if err != nil {
		return 0, err
	}
	return u.TotalDividends(), nil
}

type memoryTx struct {
	m  *Memory
	id int64
	tx *user.Tx
}

func (t *memoryTx) Balance(_ context.Context) (float64, error) {
	return t.tx.GetBalance(), nil
}

func (t *memoryTx) AdjustBalance(_ context.Context, delta float64) error {
	t.tx.ChangeBalance(delta)
	return nil
}

func (t *memoryTx) Position(_ context.Context, ticker string) (int64, error) {
	return t.tx.Quantity(strings.ToUpper(ticker)), nil
}

func (t *memoryTx) AdjustPosition(_ context.Context, ticker string, delta int64) error {
	return t.tx.ChangePosition(strings.ToUpper(ticker), delta)
}

func (t *memoryTx) AppendTrade(_ context.Context, ticker string, quantity int64, price float64) (*model.Trade, error) {
	trade := &model.Trade{
		ID:        t.m.nextID(),
		AccountID: t.id,
		Ticker:    strings.ToUpper(ticker),
		Quantity:  quantity,
		Price:     price,
		Time:      t.m.now(),
	}
	t.tx.AppendTrade(trade)
	return trade, nil
}
