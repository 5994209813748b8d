// Package scheduler runs the background work: price refresh, alert scan and dividend sweep
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/chucky-1/virtual-trader/internal/model"
	"github.com/chucky-1/virtual-trader/internal/notify"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

// Market is refreshed by the price loop. Every refresh that ran, including
// those triggered by requests, is reported to the OnRefresh hooks
type Market interface {
	Refresh(ctx context.Context) (bool, error)
	NextRefreshIn() time.Duration
	OnRefresh(hook func(ctx context.Context, quotes []model.Quote))
}

// Scanner checks price alerts
type Scanner interface {
	Scan(ctx context.Context) (int, error)
}

// Sweeper pays dividends
type Sweeper interface {
	Sweep(ctx context.Context) (int, error)
}

// Accounts lists everyone who gets the prices updated notification
type Accounts interface {
	Accounts(ctx context.Context) ([]*model.Account, error)
}

// Sink receives fresh quotes after every refresh
type Sink interface {
	Publish(ctx context.Context, quotes []model.Quote) error
}

// SinkFunc adapts a function to Sink
type SinkFunc func(ctx context.Context, quotes []model.Quote) error

// Publish calls f
func (f SinkFunc) Publish(ctx context.Context, quotes []model.Quote) error {
	return f(ctx, quotes)
}

// Intervals of the loops. Timeout bounds a single iteration
type Intervals struct {
	Alert    time.Duration
	Dividend time.Duration
	Timeout  time.Duration
	// Retry is the shortest wait of the price loop, used after a failed refresh
	Retry time.Duration
}

// Option configures the scheduler
type Option func(*Scheduler)

// WithSink adds a named quote sink
func WithSink(name string, sink Sink) Option {
	return func(s *Scheduler) {
		s.sinks = append(s.sinks, namedSink{name: name, sink: sink})
	}
}

// WithPricesUpdated sends notify.PricesUpdated to every account after a refresh
func WithPricesUpdated(accounts Accounts, notifier notify.Notifier) Option {
	return func(s *Scheduler) {
		s.accounts = accounts
		s.notifier = notifier
	}
}

type namedSink struct {
	name string
	sink Sink
}

// Scheduler runs three independent loops
type Scheduler struct {
	market    Market
	alerts    Scanner
	dividends Sweeper
	intervals Intervals
	sinks     []namedSink
	accounts  Accounts
	notifier  notify.Notifier
}

// NewScheduler is constructor
func NewScheduler(market Market, alerts Scanner, dividends Sweeper, intervals Intervals, opts ...Option) *Scheduler {
	if intervals.Retry <= 0 {
		intervals.Retry = time.Second
	}
	s := &Scheduler{
		market:    market,
		alerts:    alerts,
		dividends: dividends,
		intervals: intervals,
	}
	for _, opt := range opts {
		opt(s)
	}
	market.OnRefresh(s.Publish)
	return s
}

// Run blocks until ctx is cancelled and every loop has returned
func (s *Scheduler) Run(ctx context.Context) {
	var wg sync.WaitGroup
	wg.Add(3)
	go func() {
		defer wg.Done()
		s.prices(ctx)
	}()
	go func() {
		defer wg.Done()
		s.every(ctx, "alerts", s.intervals.Alert, s.scanAlerts)
	}()
	go func() {
		defer wg.Done()
		s.every(ctx, "dividends", s.intervals.Dividend, s.sweepDividends)
	}()
	wg.Wait()
	log.Info("scheduler stopped")
}

// prices waits for the limiter instead of a fixed ticker, so refreshes made by
// requests move the next one
func (s *Scheduler) prices(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		s.run(ctx, "prices", s.refresh)

		wait := s.market.NextRefreshIn()
		if wait < s.intervals.Retry {
			wait = s.intervals.Retry
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

func (s *Scheduler) every(ctx context.Context, name string, interval time.Duration, task func(ctx context.Context, logger *log.Entry) error) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if ctx.Err() != nil {
				return
			}
			s.run(ctx, name, task)
		}
	}
}

// run executes one iteration. Errors and panics are logged, the loop goes on
func (s *Scheduler) run(ctx context.Context, name string, task func(ctx context.Context, logger *log.Entry) error) {
	logger := log.WithFields(log.Fields{"task": name, "run": uuid.New().String()})
	defer func() {
		if r := recover(); r != nil {
			logger.Errorf("panic: %v", r)
		}
	}()
	if s.intervals.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.intervals.Timeout)
		defer cancel()
	}
	if err := task(ctx, logger); err != nil {
		logger.Error(err)
	}
}

func (s *Scheduler) refresh(ctx context.Context, logger *log.Entry) error {
	ok, err := s.market.Refresh(ctx)
	if !ok {
		if err != nil {
			return fmt.Errorf("refresh prices: %w", err)
		}
		logger.Debug("refresh skipped")
		return nil
	}
	if err != nil {
		logger.Warn(err)
	}
	return nil
}

// Publish hands fresh quotes to every sink and tells every account that prices changed
func (s *Scheduler) Publish(ctx context.Context, quotes []model.Quote) {
	s.run(ctx, "publish", func(ctx context.Context, logger *log.Entry) error {
		return s.publish(ctx, logger, quotes)
	})
}

func (s *Scheduler) publish(ctx context.Context, logger *log.Entry, quotes []model.Quote) error {
	for _, sink := range s.sinks {
		if err := sink.sink.Publish(ctx, quotes); err != nil {
			logger.WithField("sink", sink.name).Error(err)
		}
	}
	if s.accounts == nil {
		return nil
	}
	accounts, err := s.accounts.Accounts(ctx)
	if err != nil {
		return fmt.Errorf("accounts: %w", err)
	}
	for _, acc := range accounts {
		if err := s.notifier.Send(ctx, acc.ID, notify.PricesUpdated); err != nil {
			logger.WithField("account", acc.ID).Warn(err)
		}
	}
	logger.WithField("notified", len(accounts)).Debug("prices published")
	return nil
}

func (s *Scheduler) scanAlerts(ctx context.Context, logger *log.Entry) error {
	fired, err := s.alerts.Scan(ctx)
	if fired > 0 {
		logger.WithField("fired", fired).Info("alerts triggered")
	}
	return err
}

func (s *Scheduler) sweepDividends(ctx context.Context, logger *log.Entry) error {
	paid, err := s.dividends.Sweep(ctx)
	if paid > 0 {
		logger.WithField("paid", paid).Info("dividends paid")
	}
	return err
}
