package alert

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/chucky-1/virtual-trader/internal/model"
	"github.com/chucky-1/virtual-trader/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type prices struct {
	mu sync.Mutex
	m  map[string]float64
}

func (p *prices) Price(ticker string) (float64, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	v, ok := p.m[ticker]
	return v, ok
}

func (p *prices) set(ticker string, v float64) {
	p.mu.Lock()
	p.m[ticker] = v
	p.mu.Unlock()
}

type notifier struct {
	mu   sync.Mutex
	sent map[int64][]string
	err  error
}

func (n *notifier) Send(_ context.Context, accountID int64, text string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.sent == nil {
		n.sent = make(map[int64][]string)
	}
	n.sent[accountID] = append(n.sent[accountID], text)
	return n.err
}

func (n *notifier) count(accountID int64) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.sent[accountID])
}

func setup(t *testing.T, alerts ...*model.Alert) (*repository.Memory, *prices, *notifier, *Engine) {
	t.Helper()
	ctx := context.Background()
	ledger := repository.NewMemory()
	for _, a := range alerts {
		_, err := ledger.EnsureAccount(ctx, a.AccountID, "", 0)
		require.NoError(t, err)
		require.NoError(t, ledger.InsertAlert(ctx, a))
	}
	p := &prices{m: map[string]float64{}}
	n := &notifier{}
	return ledger, p, n, NewEngine(ledger, p, n)
}

func TestEngine_ScanFiresOnce(t *testing.T) {
	ledger, p, n, e := setup(t, &model.Alert{AccountID: 1, Ticker: "SBER", Condition: model.Above, Target: 100})
	ctx := context.Background()

	p.set("SBER", 105)
	fired, err := e.Scan(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, fired)

	p.set("SBER", 110)
	fired, err = e.Scan(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, fired)

	assert.Equal(t, 1, n.count(1))
	active, err := ledger.ActiveAlerts(ctx)
	require.NoError(t, err)
	assert.Empty(t, active)
}

func TestEngine_ScanConditions(t *testing.T) {
	testTable := []struct {
		name      string
		condition string
		target    float64
		price     float64
		expect    int
	}{
		{
			name:      "OK if price is above target",
			condition: model.Above,
			target:    100,
			price:     100.01,
			expect:    1,
		},
		{
			name:      "Failed if price equals target",
			condition: model.Above,
			target:    100,
			price:     100,
			expect:    0,
		},
		{
			name:      "OK if price is below target",
			condition: model.Below,
			target:    130,
			price:     129.99,
			expect:    1,
		},
		{
			name:      "Failed if price is above target",
			condition: model.Below,
			target:    130,
			price:     131,
			expect:    0,
		},
	}

	for _, testCase := range testTable {
		t.Run(testCase.name, func(t *testing.T) {
			_, p, n, e := setup(t, &model.Alert{AccountID: 1, Ticker: "GAZP", Condition: testCase.condition, Target: testCase.target})
			p.set("GAZP", testCase.price)

			fired, err := e.Scan(context.Background())
			require.NoError(t, err)
			assert.Equal(t, testCase.expect, fired)
			assert.Equal(t, testCase.expect, n.count(1))
		})
	}
}

func TestEngine_ScanSkipsUnknownPrice(t *testing.T) {
	ledger, _, n, e := setup(t, &model.Alert{AccountID: 1, Ticker: "YNDX", Condition: model.Below, Target: 1e9})

	fired, err := e.Scan(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, fired)
	assert.Equal(t, 0, n.count(1))

	active, err := ledger.ActiveAlerts(context.Background())
	require.NoError(t, err)
	assert.Len(t, active, 1)
}

func TestEngine_NotificationFailureKeepsTrigger(t *testing.T) {
	ledger, p, n, e := setup(t, &model.Alert{AccountID: 1, Ticker: "SBER", Condition: model.Above, Target: 100})
	n.err = errors.New("bot was blocked by the user")
	p.set("SBER", 200)
	ctx := context.Background()

	fired, err := e.Scan(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, fired)

	fired, err = e.Scan(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, fired)
	assert.Equal(t, 1, n.count(1))

	active, err := ledger.ActiveAlerts(ctx)
	require.NoError(t, err)
	assert.Empty(t, active)
}

func TestEngine_ConcurrentScansNotifyOnce(t *testing.T) {
	_, p, n, e := setup(t,
		&model.Alert{AccountID: 1, Ticker: "SBER", Condition: model.Above, Target: 100},
		&model.Alert{AccountID: 2, Ticker: "SBER", Condition: model.Above, Target: 100},
	)
	p.set("SBER", 101)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := e.Scan(context.Background())
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, n.count(1))
	assert.Equal(t, 1, n.count(2))
}

func TestEngine_ScanStopsOnCancel(t *testing.T) {
	_, p, n, e := setup(t, &model.Alert{AccountID: 1, Ticker: "SBER", Condition: model.Above, Target: 100})
	p.set("SBER", 101)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := e.Scan(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, n.count(1))
}
