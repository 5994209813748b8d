// Package model has the entities shared by the market, the ledger and the engines
package model

import "time"

// Conditions of an alert
const (
	Above = ">"
	Below = "<"
)

// Instrument is a tradable ticker with static reference attributes
type Instrument struct {
	Ticker        string  `json:"ticker"`
	Name          string  `json:"name"`
	BasePrice     float64 `json:"basePrice"`
	Volatility    float64 `json:"volatility"`
	DividendYield float64 `json:"dividendYield"` // annual, percent
}

// Account is struct of client
type Account struct {
	ID      int64   `json:"id"`
	Name    string  `json:"name"`
	Balance float64 `json:"balance"`
}

// Position is a held quantity of an instrument for one account
type Position struct {
	AccountID int64  `json:"accountId"`
	Ticker    string `json:"ticker"`
	Quantity  int64  `json:"quantity"`
}

// Trade is a row of the trade log. Quantity > 0 is a buy, < 0 is a sell
type Trade struct {
	ID        int64     `json:"id"`
	AccountID int64     `json:"accountId"`
	Ticker    string    `json:"ticker"`
	Quantity  int64     `json:"quantity"`
	Price     float64   `json:"price"`
	Time      time.Time `json:"time"`
}

// IsBuy reports whether the trade added to the position
func (t *Trade) IsBuy() bool {
	return t.Quantity > 0
}

// Candle is one simulated open/high/low/close sample taken at a refresh tick
type Candle struct {
	ID     int64     `json:"id"`
	Ticker string    `json:"ticker"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Time   time.Time `json:"time"`
}

// Alert is a one-shot threshold watch on the price of an instrument
type Alert struct {
	ID        int64   `json:"id"`
	AccountID int64   `json:"accountId"`
	Ticker    string  `json:"ticker"`
	Condition string  `json:"condition"`
	Target    float64 `json:"target"`
	Triggered bool    `json:"triggered"`
}

// Fires reports whether price satisfies the condition of the alert
func (a *Alert) Fires(price float64) bool {
	switch a.Condition {
	case Above:
		return price > a.Target
	case Below:
		return price < a.Target
	}
	return false
}

// DividendPayment is a payout credited to an account
type DividendPayment struct {
	ID        int64     `json:"id"`
	AccountID int64     `json:"accountId"`
	Ticker    string    `json:"ticker"`
	Quantity  int64     `json:"quantity"`
	Amount    float64   `json:"amount"`
	Time      time.Time `json:"time"`
}

// PortfolioItem is a positive position with its average buy price.
// AvgCost is nil when the account has no buy rows for the ticker.
type PortfolioItem struct {
	Ticker   string   `json:"ticker"`
	Quantity int64    `json:"quantity"`
	AvgCost  *float64 `json:"avgCost"`
}

// Quote is the current price of an instrument
type Quote struct {
	Ticker string    `json:"ticker"`
	Price  float64   `json:"price"`
	Time   time.Time `json:"time"`
}

// RankEntry is the unrealized profit of one account
type RankEntry struct {
	AccountID int64   `json:"accountId"`
	Name      string  `json:"name"`
	Profit    float64 `json:"profit"`
	Percent   float64 `json:"percent"`
}

// Ranking splits accounts into gainers, best first, and losers, worst first
type Ranking struct {
	Gainers []RankEntry `json:"gainers"`
	Losers  []RankEntry `json:"losers"`
}
