// Package service have business logic of trading
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/chucky-1/virtual-trader/internal/model"
	"github.com/chucky-1/virtual-trader/internal/repository"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
)

// Default limits of history queries
const (
	DefaultTradeLimit    = 15
	DefaultDividendLimit = 15
	DefaultCandleDays    = 7
)

// Market gives current prices. Refresh is rate limited by the implementation
type Market interface {
	Refresh(ctx context.Context) (bool, error)
	Price(ticker string) (float64, bool)
	Instrument(ticker string) (model.Instrument, bool)
}

// Service implements business logic
type Service struct {
	ledger          repository.Ledger
	market          Market
	startingBalance float64
	now             func() time.Time
}

// NewService is constructor
func NewService(ledger repository.Ledger, market Market, startingBalance float64) *Service {
	return &Service{
		ledger:          ledger,
		market:          market,
		startingBalance: startingBalance,
		now:             time.Now,
	}
}

// Register creates the account with the starting balance. It reports whether the account is new
func (s *Service) Register(ctx context.Context, accountID int64, name string) (bool, error) {
	created, err := s.ledger.EnsureAccount(ctx, accountID, name, s.startingBalance)
	if err != nil {
		return false, fmt.Errorf("register account %d: %w", accountID, err)
	}
	if created {
		log.WithField("account", accountID).Info("account created")
	}
	return created, nil
}

// ensure creates the account on first interaction
func (s *Service) ensure(ctx context.Context, accountID int64) error {
	_, err := s.Register(ctx, accountID, "")
	return err
}

// RefreshPrices refreshes prices unless the interval hasn't passed yet
func (s *Service) RefreshPrices(ctx context.Context) bool {
	ok, err := s.market.Refresh(ctx)
	if err != nil {
		log.Error(err)
	}
	return ok
}

// Price returns the current price of the ticker
func (s *Service) Price(ticker string) (float64, bool) {
	return s.market.Price(ticker)
}

// Instrument returns reference data of the ticker
func (s *Service) Instrument(ticker string) (model.Instrument, bool) {
	return s.market.Instrument(ticker)
}

// Buy buys quantity of the ticker at the current price
func (s *Service) Buy(ctx context.Context, accountID int64, ticker string, quantity int64) (*model.Trade, error) {
	if quantity <= 0 {
		return nil, &ValidationError{Field: "quantity", Reason: "must be greater than 0"}
	}
	ticker = strings.ToUpper(ticker)
	s.RefreshPrices(ctx)
	price, ok := s.market.Price(ticker)
	if !ok {
		return nil, &NotFoundError{Ticker: ticker}
	}
	if err := s.ensure(ctx, accountID); err != nil {
		return nil, err
	}
	cost := decimal.NewFromFloat(price).Mul(decimal.NewFromInt(quantity))

	var trade *model.Trade
	err := s.ledger.WithinAccount(ctx, accountID, func(tx repository.AccountTx) error {
		balance, err := tx.Balance(ctx)
		if err != nil {
			return err
		}
		if bal := decimal.NewFromFloat(balance); bal.LessThan(cost) {
			return &InsufficientFundsError{
				Cost:      cost.InexactFloat64(),
				Balance:   balance,
				Shortfall: cost.Sub(bal).InexactFloat64(),
			}
		}
		if err = tx.AdjustBalance(ctx, -cost.InexactFloat64()); err != nil {
			return err
		}
		if err = tx.AdjustPosition(ctx, ticker, quantity); err != nil {
			return err
		}
		trade, err = tx.AppendTrade(ctx, ticker, quantity, price)
		return err
	})
	if err != nil {
		return nil, wrap(err, "buy %d %s", quantity, ticker)
	}
	log.WithFields(log.Fields{"account": accountID, "ticker": ticker, "quantity": quantity, "price": price}).Info("bought")
	return trade, nil
}

// Sell sells quantity of the ticker at the current price
func (s *Service) Sell(ctx context.Context, accountID int64, ticker string, quantity int64) (*model.Trade, error) {
	if quantity <= 0 {
		return nil, &ValidationError{Field: "quantity", Reason: "must be greater than 0"}
	}
	ticker = strings.ToUpper(ticker)
	s.RefreshPrices(ctx)
	price, ok := s.market.Price(ticker)
	if !ok {
		return nil, &NotFoundError{Ticker: ticker}
	}
	if err := s.ensure(ctx, accountID); err != nil {
		return nil, err
	}
	revenue := decimal.NewFromFloat(price).Mul(decimal.NewFromInt(quantity)).InexactFloat64()

	var trade *model.Trade
	err := s.ledger.WithinAccount(ctx, accountID, func(tx repository.AccountTx) error {
		held, err := tx.Position(ctx, ticker)
		if err != nil {
			return err
		}
		if held < quantity {
			return &InsufficientHoldingsError{Ticker: ticker, Requested: quantity, Held: held}
		}
		if err = tx.AdjustBalance(ctx, revenue); err != nil {
			return err
		}
		if err = tx.AdjustPosition(ctx, ticker, -quantity); err != nil {
			return err
		}
		trade, err = tx.AppendTrade(ctx, ticker, -quantity, price)
		return err
	})
	if err != nil {
		return nil, wrap(err, "sell %d %s", quantity, ticker)
	}
	log.WithFields(log.Fields{"account": accountID, "ticker": ticker, "quantity": quantity, "price": price}).Info("sold")
	return trade, nil
}

// Balance returns cash of the account
func (s *Service) Balance(ctx context.Context, accountID int64) (float64, error) {
	if err := s.ensure(ctx, accountID); err != nil {
		return 0, err
	}
	acc, err := s.ledger.Account(ctx, accountID)
	if err != nil {
		return 0, fmt.Errorf("balance of %d: %w", accountID, err)
	}
	return acc.Balance, nil
}

// Portfolio returns positive positions with their average buy price
func (s *Service) Portfolio(ctx context.Context, accountID int64) ([]*model.PortfolioItem, error) {
	if err := s.ensure(ctx, accountID); err != nil {
		return nil, err
	}
	s.RefreshPrices(ctx)
	return s.portfolio(ctx, accountID)
}

func (s *Service) portfolio(ctx context.Context, accountID int64) ([]*model.PortfolioItem, error) {
	positions, err := s.ledger.Positions(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("positions of %d: %w", accountID, err)
	}
	items := make([]*model.PortfolioItem, 0, len(positions))
	for _, p := range positions {
		item := &model.PortfolioItem{Ticker: p.Ticker, Quantity: p.Quantity}
		avg, ok, err := s.ledger.AverageCost(ctx, accountID, p.Ticker)
		if err != nil {
			return nil, fmt.Errorf("average cost of %s: %w", p.Ticker, err)
		}
		if ok {
			item.AvgCost = &avg
		}
		items = append(items, item)
	}
	return items, nil
}

// PortfolioValue is cash plus current value of all positions
func (s *Service) PortfolioValue(ctx context.Context, accountID int64) (float64, error) {
	balance, err := s.Balance(ctx, accountID)
	if err != nil {
		return 0, err
	}
	positions, err := s.ledger.Positions(ctx, accountID)
	if err != nil {
		return 0, fmt.Errorf("positions of %d: %w", accountID, err)
	}
	value := decimal.NewFromFloat(balance)
	for _, p := range positions {
		price, ok := s.market.Price(p.Ticker)
		if !ok {
			continue
		}
		value = value.Add(decimal.NewFromFloat(price).Mul(decimal.NewFromInt(p.Quantity)))
	}
	return value.InexactFloat64(), nil
}

// UnrealizedProfit compares current value of priced items with the money
// invested, which counts only items with a known average cost. Percent is 0
// when nothing was invested
func (s *Service) UnrealizedProfit(items []*model.PortfolioItem) (profit, percent float64) {
	value := decimal.Zero
	investment := decimal.Zero
	for _, item := range items {
		price, ok := s.market.Price(item.Ticker)
		if !ok {
			continue
		}
		qty := decimal.NewFromInt(item.Quantity)
		value = value.Add(decimal.NewFromFloat(price).Mul(qty))
		if item.AvgCost != nil {
			investment = investment.Add(decimal.NewFromFloat(*item.AvgCost).Mul(qty))
		}
	}
	p := value.Sub(investment)
	if investment.IsZero() {
		return p.InexactFloat64(), 0
	}
	return p.InexactFloat64(), p.Div(investment).Mul(decimal.NewFromInt(100)).InexactFloat64()
}

// TradeHistory returns the last trades, newest first
func (s *Service) TradeHistory(ctx context.Context, accountID int64, limit int) ([]*model.Trade, error) {
	if err := s.ensure(ctx, accountID); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = DefaultTradeLimit
	}
	trades, err := s.ledger.RecentTrades(ctx, accountID, limit)
	if err != nil {
		return nil, fmt.Errorf("trades of %d: %w", accountID, err)
	}
	return trades, nil
}

// DividendHistory returns the last payments, newest first
func (s *Service) DividendHistory(ctx context.Context, accountID int64, limit int) ([]*model.DividendPayment, error) {
	if err := s.ensure(ctx, accountID); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = DefaultDividendLimit
	}
	payments, err := s.ledger.RecentDividends(ctx, accountID, limit)
	if err != nil {
		return nil, fmt.Errorf("dividends of %d: %w", accountID, err)
	}
	return payments, nil
}

// TotalDividends returns everything the account has been paid
func (s *Service) TotalDividends(ctx context.Context, accountID int64) (float64, error) {
	if err := s.ensure(ctx, accountID); err != nil {
		return 0, err
	}
	total, err := s.ledger.TotalDividends(ctx, accountID)
	if err != nil {
		return 0, fmt.Errorf("total dividends of %d: %w", accountID, err)
	}
	return total, nil
}

// SetAlert registers a one-shot alert on the price of the ticker
func (s *Service) SetAlert(ctx context.Context, accountID int64, ticker, condition string, target float64) (*model.Alert, error) {
	if condition != model.Above && condition != model.Below {
		return nil, &ValidationError{Field: "condition", Reason: "must be > or <"}
	}
	if target <= 0 {
		return nil, &ValidationError{Field: "target", Reason: "must be greater than 0"}
	}
	ticker = strings.ToUpper(ticker)
	if _, ok := s.market.Instrument(ticker); !ok {
		return nil, &NotFoundError{Ticker: ticker}
	}
	if err := s.ensure(ctx, accountID); err != nil {
		return nil, err
	}
	alert := &model.Alert{AccountID: accountID, Ticker: ticker, Condition: condition, Target: target}
	if err := s.ledger.InsertAlert(ctx, alert); err != nil {
		return nil, fmt.Errorf("insert alert: %w", err)
	}
	return alert, nil
}

// Candles returns candles of the ticker for the last days, oldest first
func (s *Service) Candles(ctx context.Context, ticker string, days int) ([]*model.Candle, error) {
	ticker = strings.ToUpper(ticker)
	if _, ok := s.market.Instrument(ticker); !ok {
		return nil, &NotFoundError{Ticker: ticker}
	}
	if days <= 0 {
		days = DefaultCandleDays
	}
	since := s.now().Add(-time.Duration(days) * 24 * time.Hour)
	candles, err := s.ledger.CandleHistory(ctx, ticker, since)
	if err != nil {
		return nil, fmt.Errorf("candles of %s: %w", ticker, err)
	}
	return candles, nil
}

// wrap keeps domain errors as they are and adds context to storage errors
func wrap(err error, format string, args ...interface{}) error {
	var (
		validation *ValidationError
		notFound   *NotFoundError
		funds      *InsufficientFundsError
		holdings   *InsufficientHoldingsError
	)
	if errors.As(err, &validation) || errors.As(err, &notFound) || errors.As(err, &funds) || errors.As(err, &holdings) {
		return err
	}
	return fmt.Errorf(format+": %w", append(args, err)...)
}
