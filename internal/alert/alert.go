// Package alert fires one-shot price alerts
package alert

import (
	"context"
	"fmt"

	"github.com/chucky-1/virtual-trader/internal/notify"
	"github.com/chucky-1/virtual-trader/internal/repository"
	log "github.com/sirupsen/logrus"
)

// Prices gives the current price of a ticker
type Prices interface {
	Price(ticker string) (float64, bool)
}

// Engine checks active alerts against current prices
type Engine struct {
	ledger   repository.Ledger
	prices   Prices
	notifier notify.Notifier
}

// NewEngine is constructor
func NewEngine(ledger repository.Ledger, prices Prices, notifier notify.Notifier) *Engine {
	return &Engine{ledger: ledger, prices: prices, notifier: notifier}
}

// Scan fires every active alert whose condition holds and returns how many fired.
// An alert is marked triggered before its owner is notified, only the caller
// that marked it sends the notification. A failed notification is not retried.
func (e *Engine) Scan(ctx context.Context) (int, error) {
	alerts, err := e.ledger.ActiveAlerts(ctx)
	if err != nil {
		return 0, fmt.Errorf("active alerts: %w", err)
	}

	fired := 0
	for _, a := range alerts {
		if err = ctx.Err(); err != nil {
			return fired, err
		}
		price, ok := e.prices.Price(a.Ticker)
		if !ok || !a.Fires(price) {
			continue
		}
		flipped, err := e.ledger.MarkTriggered(ctx, a.ID)
		if err != nil {
			log.WithField("alert", a.ID).Error(err)
			continue
		}
		if !flipped {
			continue
		}
		fired++
		fields := log.Fields{"alert": a.ID, "account": a.AccountID, "ticker": a.Ticker, "price": price}
		if err = e.notifier.Send(ctx, a.AccountID, notify.AlertTriggered(a, price)); err != nil {
			log.WithFields(fields).Errorf("alert notification failed: %v", err)
			continue
		}
		log.WithFields(fields).Info("alert triggered")
	}
	return fired, nil
}
