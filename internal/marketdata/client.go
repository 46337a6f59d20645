package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"

	"github.com/sawpanic/gerun/infra/breakers"
	"github.com/sawpanic/gerun/internal/data/cache"
	"github.com/sawpanic/gerun/internal/net/ratelimit"
)

const (
	latestPath  = "/latest"
	mappingPath = "/mapping"

	// Latest prices refresh upstream every minute at most; the mapping is
	// effectively static between game updates.
	latestTTL  = 30 * time.Second
	mappingTTL = 24 * time.Hour

	latestCacheKey  = "latest"
	mappingCacheKey = "mapping"
)

// PricesConfig configures the upstream prices API client
type PricesConfig struct {
	BaseURL string `yaml:"base_url"`
	// UserAgent identifies this consumer to the API operators; the
	// endpoint is community-run and rejects anonymous clients
	UserAgent    string        `yaml:"user_agent"`
	Timeout      time.Duration `yaml:"timeout"`
	PollInterval time.Duration `yaml:"poll_interval"`
	Burst        int           `yaml:"burst"`
}

// DefaultPricesConfig returns the production client settings
func DefaultPricesConfig() PricesConfig {
	return PricesConfig{
		BaseURL:      "https://prices.runescape.wiki/api/v1/osrs",
		UserAgent:    "gerun-capital-allocator (github.com/sawpanic/gerun)",
		Timeout:      10 * time.Second,
		PollInterval: 10 * time.Second,
		Burst:        2,
	}
}

// PricesClient fetches ticks and item metadata from the prices API. Every
// request is rate limited per endpoint and routed through a circuit breaker;
// responses are held in a small in-process TTL cache so repeated reads inside
// a snapshot window cost nothing upstream.
type PricesClient struct {
	baseURL   string
	userAgent string
	http      *http.Client
	limiter   *ratelimit.Limiter
	breaker   *breakers.Breaker
	cache     *cache.TTLCache
	metrics   CacheMetrics
}

var _ Source = (*PricesClient)(nil)

// NewPricesClient creates a client for the given upstream. A nil metrics
// sink is replaced with a no-op.
func NewPricesClient(cfg PricesConfig, metrics CacheMetrics) *PricesClient {
	if metrics == nil {
		metrics = nopMetrics{}
	}
	return &PricesClient{
		baseURL:   cfg.BaseURL,
		userAgent: cfg.UserAgent,
		http:      &http.Client{Timeout: cfg.Timeout},
		limiter:   ratelimit.New(cfg.PollInterval, cfg.Burst),
		breaker:   breakers.New("prices-api"),
		cache:     cache.New(8),
		metrics:   metrics,
	}
}

// Close stops the client's cache sweep goroutine
func (c *PricesClient) Close() {
	c.cache.Stop()
}

// latestResponse mirrors the /latest wire shape: item ids as string keys,
// price sides null when never observed
type latestResponse struct {
	Data map[string]latestEntry `json:"data"`
}

type latestEntry struct {
	High     *int64 `json:"high"`
	HighTime int64  `json:"highTime"`
	Low      *int64 `json:"low"`
	LowTime  int64  `json:"lowTime"`
}

// mappingEntry mirrors one /mapping array element
type mappingEntry struct {
	ID       int    `json:"id"`
	Name     string `json:"name"`
	Members  bool   `json:"members"`
	Limit    int    `json:"limit"`
	Value    int64  `json:"value"`
	HighAlch int64  `json:"highalch"`
	Examine  string `json:"examine"`
}

// LatestTicks returns the newest tick per item id, served from the
// in-process cache when the snapshot is under 30 seconds old
func (c *PricesClient) LatestTicks(ctx context.Context) (map[int]Tick, error) {
	if cached, ok := c.cache.Get(latestCacheKey); ok {
		c.metrics.RecordCacheHit("prices_latest")
		return cached.(map[int]Tick), nil
	}
	c.metrics.RecordCacheMiss("prices_latest")

	var payload latestResponse
	if err := c.fetch(ctx, latestPath, &payload); err != nil {
		return nil, fmt.Errorf("latest ticks: %w", err)
	}

	ticks := make(map[int]Tick, len(payload.Data))
	for key, entry := range payload.Data {
		itemID, err := strconv.Atoi(key)
		if err != nil {
			log.Warn().Str("key", key).Msg("non-numeric item id in latest payload")
			continue
		}
		tick := Tick{ItemID: itemID}
		if entry.High != nil {
			tick.High = *entry.High
			tick.HighTime = time.Unix(entry.HighTime, 0).UTC()
		}
		if entry.Low != nil {
			tick.Low = *entry.Low
			tick.LowTime = time.Unix(entry.LowTime, 0).UTC()
		}
		ticks[itemID] = tick
	}

	c.cache.Set(latestCacheKey, ticks, latestTTL)
	log.Debug().Int("items", len(ticks)).Msg("latest ticks fetched")
	return ticks, nil
}

// ItemMeta returns exchange metadata for one item from the cached mapping
func (c *PricesClient) ItemMeta(ctx context.Context, itemID int) (Meta, error) {
	mapping, err := c.Mapping(ctx)
	if err != nil {
		return Meta{}, err
	}
	meta, ok := mapping[itemID]
	if !ok {
		return Meta{}, fmt.Errorf("%w: %d", ErrItemUnknown, itemID)
	}
	return meta, nil
}

// Mapping returns the full item metadata table, cached for a day
func (c *PricesClient) Mapping(ctx context.Context) (map[int]Meta, error) {
	if cached, ok := c.cache.Get(mappingCacheKey); ok {
		c.metrics.RecordCacheHit("prices_mapping")
		return cached.(map[int]Meta), nil
	}
	c.metrics.RecordCacheMiss("prices_mapping")

	var payload []mappingEntry
	if err := c.fetch(ctx, mappingPath, &payload); err != nil {
		return nil, fmt.Errorf("item mapping: %w", err)
	}

	mapping := make(map[int]Meta, len(payload))
	for _, entry := range payload {
		mapping[entry.ID] = Meta{
			ItemID:   entry.ID,
			Name:     entry.Name,
			Members:  entry.Members,
			BuyLimit: entry.Limit,
			Value:    entry.Value,
			HighAlch: entry.HighAlch,
			Examine:  entry.Examine,
		}
	}

	c.cache.Set(mappingCacheKey, mapping, mappingTTL)
	log.Debug().Int("items", len(mapping)).Msg("item mapping fetched")
	return mapping, nil
}

// Healthy reports whether the breaker still admits upstream calls
func (c *PricesClient) Healthy(ctx context.Context) bool {
	return c.breaker.State() != gobreaker.StateOpen
}

// CacheStats exposes the in-process cache counters for health reporting
func (c *PricesClient) CacheStats() cache.Stats {
	return c.cache.Stats()
}

// fetch performs one rate-limited, breaker-guarded GET and decodes the JSON
// body into out
func (c *PricesClient) fetch(ctx context.Context, path string, out any) error {
	if err := c.limiter.Wait(ctx, path); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}

	_, err := c.breaker.Execute(func() (any, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("User-Agent", c.userAgent)
		req.Header.Set("Accept", "application/json")

		resp, err := c.http.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("GET %s: unexpected status %d", path, resp.StatusCode)
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return nil, fmt.Errorf("GET %s: decode: %w", path, err)
		}
		return nil, nil
	})
	return err
}
