// Package nav reads basket NAV and asset mark prices from Redis.
//
// The pricing service maintains one hash per baskt and per asset; this
// engine only reads them. Prices are fixed-point at event.PriceScale, the
// same representation the on-chain program uses.
package nav

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// Key schema:
//
//	nav:{basktID}     - hash with "nav" (fixed-point) and "ts" (unix ms)
//	price:{ticker}    - hash with "price" (fixed-point) and "ts" (unix ms)
func navKey(basktID string) string  { return "nav:" + basktID }
func priceKey(ticker string) string { return "price:" + ticker }

// maxStaleness guards against trading on a dead pricing feed.
const maxStaleness = 30 * time.Second

// Source reads NAV and mark prices maintained by the pricing service.
type Source struct {
	rdb *redis.Client
}

func NewSource(rdb *redis.Client) *Source {
	return &Source{rdb: rdb}
}

// Connect dials Redis and verifies the connection.
func Connect(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("nav: redis ping: %w", err)
	}
	return rdb, nil
}

// GetNav returns the current NAV for a baskt, rejecting stale quotes.
func (s *Source) GetNav(ctx context.Context, basktID string) (int64, error) {
	return s.readQuote(ctx, navKey(basktID), "nav")
}

// GetAssetPrice returns the current mark price for an asset ticker.
func (s *Source) GetAssetPrice(ctx context.Context, ticker string) (int64, error) {
	return s.readQuote(ctx, priceKey(ticker), "price")
}

func (s *Source) readQuote(ctx context.Context, key, field string) (int64, error) {
	vals, err := s.rdb.HMGet(ctx, key, field, "ts").Result()
	if err != nil {
		return 0, fmt.Errorf("nav: read %s: %w", key, err)
	}
	if vals[0] == nil {
		return 0, fmt.Errorf("nav: no quote at %s", key)
	}

	quote, err := strconv.ParseInt(vals[0].(string), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("nav: malformed quote at %s: %w", key, err)
	}
	if quote <= 0 {
		return 0, fmt.Errorf("nav: non-positive quote %d at %s", quote, key)
	}

	if vals[1] != nil {
		tsMs, err := strconv.ParseInt(vals[1].(string), 10, 64)
		if err != nil {
			return 0, fmt.Errorf("nav: malformed timestamp at %s: %w", key, err)
		}
		age := time.Since(time.UnixMilli(tsMs))
		if age > maxStaleness {
			return 0, fmt.Errorf("nav: quote at %s is stale (%s old)", key, age.Truncate(time.Millisecond))
		}
	}

	return quote, nil
}
