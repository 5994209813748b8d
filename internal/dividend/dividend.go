// Package dividend pays periodic dividends on held positions
package dividend

import (
	"context"
	"fmt"
	"time"

	"github.com/chucky-1/virtual-trader/internal/model"
	"github.com/chucky-1/virtual-trader/internal/notify"
	"github.com/chucky-1/virtual-trader/internal/repository"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
)

// Market gives current prices and reference data
type Market interface {
	Price(ticker string) (float64, bool)
	Instrument(ticker string) (model.Instrument, bool)
}

// Engine distributes dividends to every account holding a paying instrument
type Engine struct {
	ledger         repository.Ledger
	market         Market
	notifier       notify.Notifier
	periodsPerYear decimal.Decimal
	minimumPayout  float64
}

// NewEngine is constructor. The payout period is derived from the price
// refresh interval, not from how often Sweep runs.
func NewEngine(ledger repository.Ledger, market Market, notifier notify.Notifier,
	refreshInterval time.Duration, minimumPayout float64) *Engine {
	return &Engine{
		ledger:         ledger,
		market:         market,
		notifier:       notifier,
		periodsPerYear: decimal.NewFromFloat(PeriodsPerYear(refreshInterval)),
		minimumPayout:  minimumPayout,
	}
}

// PeriodsPerYear is (60 / refresh seconds) periods a month, 12 months a year
func PeriodsPerYear(refreshInterval time.Duration) float64 {
	return 60 / refreshInterval.Seconds() * 12
}

// Amount is the payout of one period for quantity shares at price
func (e *Engine) Amount(price float64, quantity int64, dividendYield float64) float64 {
	rate := decimal.NewFromFloat(dividendYield).Div(decimal.NewFromInt(100)).Div(e.periodsPerYear)
	return decimal.NewFromFloat(price).Mul(decimal.NewFromInt(quantity)).Mul(rate).InexactFloat64()
}

// Sweep pays one period of dividends and returns how many payments were made.
// A failed payment is logged and the sweep goes on with the next one.
func (e *Engine) Sweep(ctx context.Context) (int, error) {
	accounts, err := e.ledger.Accounts(ctx)
	if err != nil {
		return 0, fmt.Errorf("accounts: %w", err)
	}

	paid := 0
	for _, acc := range accounts {
		if err = ctx.Err(); err != nil {
			return paid, err
		}
		positions, err := e.ledger.Positions(ctx, acc.ID)
		if err != nil {
			log.WithField("account", acc.ID).Error(err)
			continue
		}
		for _, p := range positions {
			if e.pay(ctx, acc.ID, p) {
				paid++
			}
		}
	}
	log.Infof("dividends paid: %d", paid)
	return paid, nil
}

func (e *Engine) pay(ctx context.Context, accountID int64, p *model.Position) bool {
	if p.Quantity <= 0 {
		return false
	}
	in, ok := e.market.Instrument(p.Ticker)
	if !ok || in.DividendYield <= 0 {
		return false
	}
	price, ok := e.market.Price(p.Ticker)
	if !ok {
		return false
	}
	amount := e.Amount(price, p.Quantity, in.DividendYield)
	if amount <= e.minimumPayout {
		return false
	}

	payment := &model.DividendPayment{AccountID: accountID, Ticker: p.Ticker, Quantity: p.Quantity, Amount: amount}
	fields := log.Fields{"account": accountID, "ticker": p.Ticker, "amount": amount}
	if err := e.ledger.RecordDividend(ctx, payment); err != nil {
		log.WithFields(fields).Error(err)
		return false
	}
	if err := e.notifier.Send(ctx, accountID, notify.DividendPaid(payment, in, price)); err != nil {
		log.WithFields(fields).Errorf("dividend notification failed: %v", err)
	}
	return true
}
