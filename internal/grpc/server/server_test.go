package server

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/chucky-1/virtual-trader/internal/model"
	"github.com/chucky-1/virtual-trader/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/emptypb"
)

var updated = time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

func startFeed(t *testing.T, feed *PriceFeed) protocol.PricesClient {
	t.Helper()
	lis := bufconn.Listen(1024 * 1024)
	s := grpc.NewServer()
	protocol.RegisterPricesServer(s, feed)
	go func() {
		_ = s.Serve(lis)
	}()

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = conn.Close()
		s.Stop()
	})
	return protocol.NewPricesClient(conn)
}

func recvQuote(t *testing.T, stream protocol.Prices_SubscribeClient) model.Quote {
	t.Helper()
	msg, err := stream.Recv()
	require.NoError(t, err)
	q, err := StructQuote(msg)
	require.NoError(t, err)
	return q
}

func TestPriceFeed_Subscribe(t *testing.T) {
	feed := NewPriceFeed(func() []model.Quote {
		return []model.Quote{{Ticker: "GAZP", Price: 134.24, Time: updated}}
	})
	client := startFeed(t, feed)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	stream, err := client.Subscribe(ctx, &emptypb.Empty{})
	require.NoError(t, err)

	first := recvQuote(t, stream)
	assert.Equal(t, "GAZP", first.Ticker)
	assert.Equal(t, 134.24, first.Price)
	assert.True(t, updated.Equal(first.Time))

	require.Eventually(t, func() bool { return feed.Len() == 1 }, 2*time.Second, 10*time.Millisecond)
	require.NoError(t, feed.Publish(ctx, []model.Quote{
		{Ticker: "SBER", Price: 313.43, Time: updated.Add(2 * time.Minute)},
	}))

	next := recvQuote(t, stream)
	assert.Equal(t, "SBER", next.Ticker)
	assert.Equal(t, 313.43, next.Price)
}

func TestPriceFeed_UnsubscribeOnCancel(t *testing.T) {
	feed := NewPriceFeed(nil)
	client := startFeed(t, feed)
	ctx, cancel := context.WithCancel(context.Background())

	_, err := client.Subscribe(ctx, &emptypb.Empty{})
	require.NoError(t, err)
	require.Eventually(t, func() bool { return feed.Len() == 1 }, 2*time.Second, 10*time.Millisecond)

	cancel()
	assert.Eventually(t, func() bool { return feed.Len() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestPriceFeed_DropsSlowSubscriber(t *testing.T) {
	feed := NewPriceFeed(nil)
	_, ch := feed.add()

	for i := 0; i < subscriberBuffer; i++ {
		require.NoError(t, feed.Publish(context.Background(), nil))
	}
	assert.Equal(t, 1, feed.Len())

	require.NoError(t, feed.Publish(context.Background(), nil))
	assert.Equal(t, 0, feed.Len())

	for range ch {
	}
}

func TestQuoteStruct(t *testing.T) {
	testTable := []struct {
		name  string
		quote model.Quote
	}{
		{
			name:  "OK if quote has time",
			quote: model.Quote{Ticker: "SBER", Price: 313.4312, Time: updated},
		},
		{
			name:  "OK if quote has no time",
			quote: model.Quote{Ticker: "ELMT", Price: 0.14105},
		},
	}

	for _, testCase := range testTable {
		t.Run(testCase.name, func(t *testing.T) {
			s, err := QuoteStruct(testCase.quote)
			require.NoError(t, err)
			q, err := StructQuote(s)
			require.NoError(t, err)
			assert.Equal(t, testCase.quote.Ticker, q.Ticker)
			assert.Equal(t, testCase.quote.Price, q.Price)
			assert.True(t, testCase.quote.Time.Equal(q.Time))
		})
	}
}
