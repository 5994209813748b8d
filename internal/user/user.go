// Package user keeps the ledger state of each account in memory
package user

import (
	"github.com/chucky-1/virtual-trader/internal/model"

	"errors"
	"sort"
	"sync"
)

// ErrNegativePosition is returned when a change would leave a position below zero
var ErrNegativePosition = errors.New("position can't be negative")

// User keeps state each user
type User struct {
	id        int64
	name      string
	mu        sync.Mutex
	balance   float64
	positions map[string]int64 // map[ticker]quantity
	trades    []*model.Trade
	dividends []*model.DividendPayment
}

// NewUser is constructor
func NewUser(id int64, name string, balance float64) *User {
	return &User{
		id:        id,
		name:      name,
		balance:   balance,
		positions: make(map[string]int64),
	}
}

// FillName sets the name unless the user already has one
func (u *User) FillName(name string) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.name == "" {
		u.name = name
	}
}

// Account returns a copy of the account row
func (u *User) Account() *model.Account {
	u.mu.Lock()
	defer u.mu.Unlock()
	return &model.Account{ID: u.id, Name: u.name, Balance: u.balance}
}

// GetBalance returns balance
func (u *User) GetBalance() float64 {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.balance
}

// Quantity returns the held quantity of the ticker
func (u *User) Quantity(ticker string) int64 {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.positions[ticker]
}

// Positions returns positions with positive quantity ordered by ticker
func (u *User) Positions() []*model.Position {
	u.mu.Lock()
	defer u.mu.Unlock()
	positions := make([]*model.Position, 0, len(u.positions))
	for ticker, quantity := range u.positions {
		if quantity > 0 {
			positions = append(positions, &model.Position{AccountID: u.id, Ticker: ticker, Quantity: quantity})
		}
	}
	sort.Slice(positions, func(i, j int) bool {
		return positions[i].Ticker < positions[j].Ticker
	})
	return positions
}

// AverageCost returns the quantity weighted price of the buy trades of the ticker
func (u *User) AverageCost(ticker string) (float64, bool) {
	u.mu.Lock()
	defer u.mu.Unlock()
	var quantity int64
	var cost float64
	for _, t := range u.trades {
		if t.Ticker != ticker || !t.IsBuy() {
			continue
		}
		quantity += t.Quantity
		cost += float64(t.Quantity) * t.Price
	}
	if quantity == 0 {
		return 0, false
	}
	return cost / float64(quantity), true
}

// RecentTrades returns the last trades, newest first
func (u *User) RecentTrades(limit int) []*model.Trade {
	u.mu.Lock()
	defer u.mu.Unlock()
	return lastReversed(u.trades, limit)
}

// RecordDividend appends the payment and credits the balance
func (u *User) RecordDividend(payment *model.DividendPayment) {
	u.mu.Lock()
	u.dividends = append(u.dividends, payment)
	u.balance += payment.Amount
	u.mu.Unlock()
}

// RecentDividends returns the last payments, newest first
func (u *User) RecentDividends(limit int) []*model.DividendPayment {
	u.mu.Lock()
	defer u.mu.Unlock()
	return lastReversed(u.dividends, limit)
}

// TotalDividends returns the lifetime sum of payments
func (u *User) TotalDividends() float64 {
	u.mu.Lock()
	defer u.mu.Unlock()
	var total float64
	for _, d := range u.dividends {
		total += d.Amount
	}
	return total
}

// Update runs fn holding the lock of the user. Changes staged in the Tx
// are applied only if fn returns nil.
func (u *User) Update(fn func(tx *Tx) error) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	tx := &Tx{u: u, positions: make(map[string]int64)}
	if err := fn(tx); err != nil {
		return err
	}
	u.balance += tx.balance
	for ticker, delta := range tx.positions {
		u.positions[ticker] += delta
	}
	u.trades = append(u.trades, tx.trades...)
	return nil
}

// Tx is a staged change of a user. It must not be used after Update returns
type Tx struct {
	u         *User
	balance   float64
	positions map[string]int64
	trades    []*model.Trade
}

// GetBalance returns balance including staged changes
func (tx *Tx) GetBalance() float64 {
	return tx.u.balance + tx.balance
}

// ChangeBalance stages sum to be added to the balance
func (tx *Tx) ChangeBalance(sum float64) {
	tx.balance += sum
}

// Quantity returns the held quantity including staged changes
func (tx *Tx) Quantity(ticker string) int64 {
	return tx.u.positions[ticker] + tx.positions[ticker]
}

// ChangePosition stages delta to be added to the position
func (tx *Tx) ChangePosition(ticker string, delta int64) error {
	if tx.Quantity(ticker)+delta < 0 {
		return ErrNegativePosition
	}
	tx.positions[ticker] += delta
	return nil
}

// AppendTrade stages a trade
func (tx *Tx) AppendTrade(trade *model.Trade) {
	tx.trades = append(tx.trades, trade)
}

func lastReversed[T any](rows []T, limit int) []T {
	if limit <= 0 || limit > len(rows) {
		limit = len(rows)
	}
	out := make([]T, 0, limit)
	for i := len(rows) - 1; i >= len(rows)-limit; i-- {
		out = append(out, rows[i])
	}
	return out
}
