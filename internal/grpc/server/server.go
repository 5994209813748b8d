// Package server implements the server side of grpc
package server

import (
	"context"
	"sync"
	"time"

	"github.com/chucky-1/virtual-trader/internal/model"
	"github.com/chucky-1/virtual-trader/protocol"
	log "github.com/sirupsen/logrus"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

const subscriberBuffer = 16

// Snapshot returns current quotes
type Snapshot func() []model.Quote

// PriceFeed streams quotes to grpc subscribers. A subscriber that doesn't
// read fast enough is dropped, Publish never blocks.
type PriceFeed struct {
	snapshot Snapshot

	mu          sync.Mutex
	seq         int64
	subscribers map[int64]chan []model.Quote // map[subscriber.ID]chan
}

// NewPriceFeed is constructor
func NewPriceFeed(snapshot Snapshot) *PriceFeed {
	return &PriceFeed{
		snapshot:    snapshot,
		subscribers: make(map[int64]chan []model.Quote),
	}
}

// Publish hands quotes to every subscriber
func (f *PriceFeed) Publish(_ context.Context, quotes []model.Quote) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for id, ch := range f.subscribers {
		select {
		case ch <- quotes:
		default:
			close(ch)
			delete(f.subscribers, id)
			log.WithField("subscriber", id).Warn("slow price subscriber dropped")
		}
	}
	return nil
}

// Len returns the number of subscribers
func (f *PriceFeed) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subscribers)
}

func (f *PriceFeed) add() (int64, chan []model.Quote) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	ch := make(chan []model.Quote, subscriberBuffer)
	f.subscribers[f.seq] = ch
	return f.seq, ch
}

func (f *PriceFeed) remove(id int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if ch, ok := f.subscribers[id]; ok {
		close(ch)
		delete(f.subscribers, id)
	}
}

// Subscribe sends current quotes, then every published update
func (f *PriceFeed) Subscribe(_ *emptypb.Empty, stream protocol.Prices_SubscribeServer) error {
	id, ch := f.add()
	defer f.remove(id)

	if f.snapshot != nil {
		if err := send(stream, f.snapshot()); err != nil {
			return err
		}
	}
	for {
		select {
		case <-stream.Context().Done():
			return stream.Context().Err()
		case quotes, ok := <-ch:
			if !ok {
				return status.Error(codes.ResourceExhausted, "subscriber is too slow")
			}
			if err := send(stream, quotes); err != nil {
				return err
			}
		}
	}
}

func send(stream protocol.Prices_SubscribeServer, quotes []model.Quote) error {
	for _, q := range quotes {
		msg, err := QuoteStruct(q)
		if err != nil {
			return err
		}
		if err = stream.Send(msg); err != nil {
			return err
		}
	}
	return nil
}

// QuoteStruct converts a quote to its wire form
func QuoteStruct(q model.Quote) (*structpb.Struct, error) {
	return structpb.NewStruct(map[string]interface{}{
		"ticker": q.Ticker,
		"price":  q.Price,
		"time":   q.Time.UTC().Format(time.RFC3339Nano),
	})
}

// StructQuote converts a wire message back to a quote
func StructQuote(s *structpb.Struct) (model.Quote, error) {
	fields := s.GetFields()
	q := model.Quote{
		Ticker: fields["ticker"].GetStringValue(),
		Price:  fields["price"].GetNumberValue(),
	}
	if raw := fields["time"].GetStringValue(); raw != "" {
		t, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			return model.Quote{}, err
		}
		q.Time = t
	}
	return q, nil
}
