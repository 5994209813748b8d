package repository

import (
	"context"
	"strings"
	"time"

	"github.com/chucky-1/virtual-trader/internal/model"
	"github.com/go-redis/cache/v8"
	log "github.com/sirupsen/logrus"
)

const quoteKeyPrefix = "quote:"

// Cache publishes the latest quotes to redis for other processes
type Cache struct {
	cache *cache.Cache
	ttl   time.Duration
}

// NewCache is constructor. Quotes expire after ttl
func NewCache(cache *cache.Cache, ttl time.Duration) *Cache {
	return &Cache{cache: cache, ttl: ttl}
}

// Set stores the quote under its ticker
func (c *Cache) Set(ctx context.Context, quote model.Quote) error {
	ctx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	return c.cache.Set(&cache.Item{
		Ctx:   ctx,
		Key:   quoteKeyPrefix + strings.ToUpper(quote.Ticker),
		Value: quote,
		TTL:   c.ttl,
	})
}

// Get returns the last published quote of the ticker
func (c *Cache) Get(ctx context.Context, ticker string) (*model.Quote, error) {
	ctx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	var quote model.Quote
	if err := c.cache.Get(ctx, quoteKeyPrefix+strings.ToUpper(ticker), &quote); err != nil {
		return nil, err
	}
	return &quote, nil
}

// PublishQuotes stores every quote. A failed quote is logged and the rest are still stored
func (c *Cache) PublishQuotes(ctx context.Context, quotes []model.Quote) error {
	var firstErr error
	for _, quote := range quotes {
		if err := c.Set(ctx, quote); err != nil {
			log.WithField("ticker", quote.Ticker).Error(err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}
