package market

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/chucky-1/virtual-trader/internal/catalog"
	"github.com/chucky-1/virtual-trader/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type candleRecorder struct {
	mu      sync.Mutex
	candles []*model.Candle
	err     error
}

func (r *candleRecorder) AppendCandle(_ context.Context, candle *model.Candle) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.candles = append(r.candles, candle)
	return nil
}

func (r *candleRecorder) byTicker(ticker string) []*model.Candle {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.Candle
	for _, c := range r.candles {
		if c.Ticker == ticker {
			out = append(out, c)
		}
	}
	return out
}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestEngine(t *testing.T, rec *candleRecorder) (*Engine, *clock) {
	t.Helper()
	clk := &clock{now: time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)}
	e := New(catalog.Default(), rec, 2*time.Minute, WithClock(clk.Now), WithRand(rand.New(rand.NewSource(42))))
	return e, clk
}

func TestEngine_SeedsPricesOnConstruction(t *testing.T) {
	rec := &candleRecorder{}
	e, _ := newTestEngine(t, rec)

	for _, in := range catalog.Default().All() {
		price, ok := e.Price(in.Ticker)
		require.True(t, ok, in.Ticker)
		assert.InDelta(t, in.BasePrice, price, in.BasePrice*in.Volatility+0.0001, in.Ticker)
	}
	assert.Empty(t, rec.candles)
	assert.Equal(t, time.Duration(0), e.NextRefreshIn())
}

func TestEngine_RefreshIsRateLimited(t *testing.T) {
	rec := &candleRecorder{}
	e, clk := newTestEngine(t, rec)
	ctx := context.Background()

	first, err := e.Refresh(ctx)
	require.NoError(t, err)
	second, err := e.Refresh(ctx)
	require.NoError(t, err)
	assert.True(t, first)
	assert.False(t, second)
	assert.Equal(t, 2*time.Minute, e.NextRefreshIn())

	clk.Advance(time.Minute)
	again, err := e.Refresh(ctx)
	require.NoError(t, err)
	assert.False(t, again)
	assert.Equal(t, time.Minute, e.NextRefreshIn())

	clk.Advance(time.Minute)
	third, err := e.Refresh(ctx)
	require.NoError(t, err)
	assert.True(t, third)
	assert.Len(t, rec.candles, 2*catalog.Default().Len())
}

func TestEngine_OnRefreshSeesEveryRefresh(t *testing.T) {
	e, clk := newTestEngine(t, &candleRecorder{})
	ctx := context.Background()

	var calls [][]model.Quote
	e.OnRefresh(func(_ context.Context, quotes []model.Quote) {
		calls = append(calls, quotes)
	})

	_, err := e.Refresh(ctx)
	require.NoError(t, err)
	_, err = e.Refresh(ctx)
	require.NoError(t, err)
	require.Len(t, calls, 1)

	clk.Advance(2 * time.Minute)
	_, err = e.Refresh(ctx)
	require.NoError(t, err)
	require.Len(t, calls, 2)

	latest := calls[1]
	assert.Len(t, latest, catalog.Default().Len())
	for _, quote := range latest {
		price, ok := e.Price(quote.Ticker)
		require.True(t, ok)
		assert.Equal(t, price, quote.Price)
		assert.True(t, clk.Now().Equal(quote.Time))
	}
}

func TestEngine_CandlesChainOpenToPreviousClose(t *testing.T) {
	rec := &candleRecorder{}
	e, clk := newTestEngine(t, rec)
	ctx := context.Background()

	seed, _ := e.Price("SBER")
	for i := 0; i < 5; i++ {
		ok, err := e.Refresh(ctx)
		require.NoError(t, err)
		require.True(t, ok)
		clk.Advance(2 * time.Minute)
	}

	candles := rec.byTicker("SBER")
	require.Len(t, candles, 5)
	assert.Equal(t, seed, candles[0].Open)
	for i, c := range candles {
		if i > 0 {
			assert.Equal(t, candles[i-1].Close, c.Open)
		}
		assert.Equal(t, maxf(c.Open, c.Close), c.High)
		assert.Equal(t, minf(c.Open, c.Close), c.Low)
		assert.InDelta(t, 313.43, c.Close, 313.43*0.03+0.0001)
		assert.Equal(t, c.Close, Round(c.Close))
	}
	last, _ := e.Price("SBER")
	assert.Equal(t, candles[4].Close, last)
}

func TestEngine_ConcurrentRefreshRunsOnce(t *testing.T) {
	rec := &candleRecorder{}
	e, _ := newTestEngine(t, rec)

	var wins int32
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := e.Refresh(context.Background())
			assert.NoError(t, err)
			if ok {
				atomic.AddInt32(&wins, 1)
			}
		}()
	}
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, ok := e.Price("GAZP")
			assert.True(t, ok)
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), wins)
	assert.Len(t, rec.candles, catalog.Default().Len())
}

func TestEngine_CandleFailureDoesNotCancelRefresh(t *testing.T) {
	rec := &candleRecorder{err: errors.New("disk full")}
	e, _ := newTestEngine(t, rec)
	before := e.Quotes()

	ok, err := e.Refresh(context.Background())
	assert.True(t, ok)
	assert.Error(t, err)
	assert.NotEqual(t, before, e.Quotes())
}

func TestEngine_PriceUnknownTicker(t *testing.T) {
	e, _ := newTestEngine(t, &candleRecorder{})

	_, ok := e.Price("AAPL")
	assert.False(t, ok)

	_, ok = e.Price("sber")
	assert.True(t, ok)
}

func TestNewCandle(t *testing.T) {
	testTable := []struct {
		name   string
		open   float64
		price  float64
		expect model.Candle
	}{
		{
			name:   "OK if price went up",
			open:   100,
			price:  105,
			expect: model.Candle{Open: 100, High: 105, Low: 100, Close: 105},
		},
		{
			name:   "OK if price went down",
			open:   100,
			price:  95,
			expect: model.Candle{Open: 100, High: 100, Low: 95, Close: 95},
		},
		{
			name:   "OK if price did not move",
			open:   100,
			price:  100,
			expect: model.Candle{Open: 100, High: 100, Low: 100, Close: 100},
		},
	}

	for _, testCase := range testTable {
		t.Run(testCase.name, func(t *testing.T) {
			c := NewCandle("SBER", testCase.open, testCase.price, time.Time{})
			assert.Equal(t, testCase.expect.Open, c.Open)
			assert.Equal(t, testCase.expect.High, c.High)
			assert.Equal(t, testCase.expect.Low, c.Low)
			assert.Equal(t, testCase.expect.Close, c.Close)
		})
	}
}

func TestRound(t *testing.T) {
	assert.Equal(t, 313.4312, Round(313.43124))
	assert.Equal(t, 0.0065, Round(0.006468))
	assert.Equal(t, 1.0, Round(0.99999))
}

func maxf(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

func minf(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}
