// Package market simulates prices of the instruments of the catalog
package market

import (
	"context"
	"fmt"
	"math/rand"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/chucky-1/virtual-trader/internal/catalog"
	"github.com/chucky-1/virtual-trader/internal/model"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
)

// CandleSink stores candles produced by a refresh
type CandleSink interface {
	AppendCandle(ctx context.Context, candle *model.Candle) error
}

// Option configures the engine
type Option func(*Engine)

// WithClock replaces time.Now
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

// WithRand replaces the source of price changes
func WithRand(rnd *rand.Rand) Option {
	return func(e *Engine) {
		e.rnd = rnd
	}
}

// Engine holds the current price of every instrument.
// Refresh is the only writer; readers always see a complete price map.
type Engine struct {
	catalog  *catalog.Catalog
	candles  CandleSink
	interval time.Duration
	now      func() time.Time

	// muRefresh serializes refreshes and guards rnd and hooks
	muRefresh sync.Mutex
	rnd       *rand.Rand
	hooks     []func(ctx context.Context, quotes []model.Quote)

	mu          sync.RWMutex
	prices      map[string]float64
	updated     time.Time
	lastRefresh time.Time
}

// New is constructor. Every ticker gets a starting price right away, the
// first Refresh is not rate limited.
func New(c *catalog.Catalog, candles CandleSink, interval time.Duration, opts ...Option) *Engine {
	e := &Engine{
		catalog:  c,
		candles:  candles,
		interval: interval,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.rnd == nil {
		e.rnd = rand.New(rand.NewSource(e.now().UnixNano()))
	}

	prices := make(map[string]float64, c.Len())
	for _, in := range c.All() {
		prices[in.Ticker] = e.sample(in)
	}
	e.prices = prices
	e.updated = e.now()
	log.Infof("starting prices initialized for %d instruments", len(prices))
	return e
}

// Refresh samples new prices for all instruments and records a candle for
// each. It returns false without doing anything if less than the refresh
// interval passed since the previous refresh. A candle that could not be
// stored does not cancel the refresh, the first such error is returned
// together with true.
func (e *Engine) Refresh(ctx context.Context) (bool, error) {
	e.muRefresh.Lock()
	defer e.muRefresh.Unlock()

	now := e.now()
	e.mu.RLock()
	last := e.lastRefresh
	current := e.prices
	e.mu.RUnlock()
	if !last.IsZero() && now.Sub(last) < e.interval {
		return false, nil
	}

	instruments := e.catalog.All()
	next := make(map[string]float64, len(instruments))
	candles := make([]*model.Candle, 0, len(instruments))
	for _, in := range instruments {
		price := e.sample(in)
		open, ok := current[in.Ticker]
		if !ok {
			open = in.BasePrice
		}
		candles = append(candles, NewCandle(in.Ticker, open, price, now))
		next[in.Ticker] = price
	}

	e.mu.Lock()
	e.prices = next
	e.updated = now
	e.lastRefresh = now
	e.mu.Unlock()

	var firstErr error
	for _, candle := range candles {
		if err := e.candles.AppendCandle(ctx, candle); err != nil {
			log.WithField("ticker", candle.Ticker).Error(err)
			if firstErr == nil {
				firstErr = fmt.Errorf("append candle %s: %w", candle.Ticker, err)
			}
		}
	}
	log.Infof("prices refreshed for %d instruments", len(next))

	if len(e.hooks) > 0 {
		quotes := e.Quotes()
		for _, hook := range e.hooks {
			hook(ctx, quotes)
		}
	}
	return true, firstErr
}

// OnRefresh registers a hook called with the new quotes after every refresh
// that ran, whoever triggered it. Hooks run before the next refresh can start
func (e *Engine) OnRefresh(hook func(ctx context.Context, quotes []model.Quote)) {
	e.muRefresh.Lock()
	defer e.muRefresh.Unlock()
	e.hooks = append(e.hooks, hook)
}

// Price returns the current price. Unknown ticker is not an error
func (e *Engine) Price(ticker string) (float64, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	price, ok := e.prices[strings.ToUpper(ticker)]
	return price, ok
}

// Instrument returns reference data of the ticker
func (e *Engine) Instrument(ticker string) (model.Instrument, bool) {
	return e.catalog.Get(ticker)
}

// Quotes returns the current prices ordered by ticker
func (e *Engine) Quotes() []model.Quote {
	e.mu.RLock()
	defer e.mu.RUnlock()
	quotes := make([]model.Quote, 0, len(e.prices))
	for ticker, price := range e.prices {
		quotes = append(quotes, model.Quote{Ticker: ticker, Price: price, Time: e.updated})
	}
	sort.Slice(quotes, func(i, j int) bool {
		return quotes[i].Ticker < quotes[j].Ticker
	})
	return quotes
}

// NextRefreshIn returns how long the limiter will still reject Refresh
func (e *Engine) NextRefreshIn() time.Duration {
	e.mu.RLock()
	last := e.lastRefresh
	e.mu.RUnlock()
	if last.IsZero() {
		return 0
	}
	left := e.interval - e.now().Sub(last)
	if left < 0 {
		return 0
	}
	return left
}

// Interval returns the refresh interval
func (e *Engine) Interval() time.Duration {
	return e.interval
}

// sample draws basePrice * (1 + U(-volatility, +volatility))
func (e *Engine) sample(in model.Instrument) float64 {
	change := (e.rnd.Float64()*2 - 1) * in.Volatility
	return Round(in.BasePrice * (1 + change))
}

// NewCandle builds a single-tick candle that moved from open to price
func NewCandle(ticker string, open, price float64, t time.Time) *model.Candle {
	high, low := open, open
	if price > high {
		high = price
	}
	if price < low {
		low = price
	}
	return &model.Candle{
		Ticker: ticker,
		Open:   open,
		High:   high,
		Low:    low,
		Close:  price,
		Time:   t,
	}
}

// Round rounds a price to 4 decimals
func Round(v float64) float64 {
	return decimal.NewFromFloat(v).Round(4).InexactFloat64()
}
