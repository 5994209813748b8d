// Package notify delivers short texts to account owners
package notify

import (
	"context"
	"fmt"

	"github.com/Rhymond/go-money"
	"github.com/chucky-1/virtual-trader/internal/model"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
)

// Currency of all balances and prices
const Currency = money.RUB

// PricesUpdated is sent to every account after a refresh
const PricesUpdated = "Prices updated. Check your portfolio"

// Notifier sends a text to the owner of the account. Delivery is best effort
type Notifier interface {
	Send(ctx context.Context, accountID int64, text string) error
}

// Log writes notifications to the log
type Log struct{}

// Send logs the text
func (Log) Send(_ context.Context, accountID int64, text string) error {
	log.WithField("account", accountID).Info(text)
	return nil
}

// Multi sends each text to every notifier
type Multi []Notifier

// Send tries all notifiers and returns the first error
func (m Multi) Send(ctx context.Context, accountID int64, text string) error {
	var firstErr error
	for _, n := range m {
		if err := n.Send(ctx, accountID, text); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Money formats an amount in Currency, rounded to its minor unit
func Money(amount float64) string {
	cur := money.GetCurrency(Currency)
	minor := decimal.NewFromFloat(amount).Shift(int32(cur.Fraction)).Round(0)
	return money.New(minor.IntPart(), Currency).Display()
}

// AlertTriggered is the text of a fired alert
func AlertTriggered(alert *model.Alert, price float64) string {
	direction := "above"
	if alert.Condition == model.Below {
		direction = "below"
	}
	return fmt.Sprintf("Alert triggered: %s went %s %s\nCurrent price: %s",
		alert.Ticker, direction, Money(alert.Target), Money(price))
}

// DividendPaid is the text of a dividend payment
func DividendPaid(payment *model.DividendPayment, in model.Instrument, price float64) string {
	return fmt.Sprintf("Dividends on %s (%s)\n%d x %s x %s%% = %s",
		payment.Ticker, in.Name, payment.Quantity, Money(price),
		decimal.NewFromFloat(in.DividendYield).String(), Money(payment.Amount))
}
