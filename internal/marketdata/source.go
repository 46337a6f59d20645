// Package marketdata supplies Grand Exchange price ticks and item metadata
// from the public prices API, with in-process and Redis caching layered in
// front of it.
package marketdata

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrItemUnknown marks item ids absent from the exchange mapping
	ErrItemUnknown = errors.New("unknown item id")

	// ErrCacheMiss marks cache reads that found no live snapshot
	ErrCacheMiss = errors.New("tick cache miss")
)

// Tick is the latest observed trade pair for one item. High is the most
// recent instant-buy price, Low the most recent instant-sell price; a flip
// buys at Low and exits at High. A missing side is zero with a zero time.
type Tick struct {
	ItemID   int       `json:"item_id"`
	High     int64     `json:"high"`
	HighTime time.Time `json:"high_time"`
	Low      int64     `json:"low"`
	LowTime  time.Time `json:"low_time"`
}

// Complete reports whether both sides of the pair have been observed
func (t Tick) Complete() bool {
	return t.High > 0 && t.Low > 0
}

// NetMargin returns the after-tax profit of buying at Low and selling at
// High, 0 for incomplete ticks
func (t Tick) NetMargin() int64 {
	if !t.Complete() {
		return 0
	}
	return NetProfit(t.Low, t.High)
}

// Age returns the staleness of the older side of the pair
func (t Tick) Age(now time.Time) time.Duration {
	oldest := t.HighTime
	if t.LowTime.Before(oldest) {
		oldest = t.LowTime
	}
	return now.Sub(oldest)
}

// Meta is the exchange-level item record from the mapping endpoint
type Meta struct {
	ItemID   int    `json:"item_id"`
	Name     string `json:"name"`
	Members  bool   `json:"members"`
	BuyLimit int    `json:"buy_limit"` // GE 4-hour purchase cap, 0 when unpublished
	Value    int64  `json:"value"`
	HighAlch int64  `json:"high_alch"`
	Examine  string `json:"examine,omitempty"`
}

// Source provides exchange market data. Implementations are safe for
// concurrent use.
type Source interface {
	// LatestTicks returns the newest tick per item id
	LatestTicks(ctx context.Context) (map[int]Tick, error)

	// ItemMeta returns exchange metadata for one item;
	// ErrItemUnknown when the id is not listed
	ItemMeta(ctx context.Context, itemID int) (Meta, error)

	// Healthy reports whether the source can currently serve data
	Healthy(ctx context.Context) bool
}

// CacheMetrics records cache outcomes. The HTTP layer's metrics registry
// satisfies it; nopMetrics is used when nothing is wired.
type CacheMetrics interface {
	RecordCacheHit(cache string)
	RecordCacheMiss(cache string)
}

type nopMetrics struct{}

func (nopMetrics) RecordCacheHit(string)  {}
func (nopMetrics) RecordCacheMiss(string) {}
