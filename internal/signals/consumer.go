// Package signals consumes opportunity records published by the external
// signal generator on a Redis Stream, validates them, and hands batches to
// the allocation side.
package signals

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/sawpanic/gerun/internal/alloc"
	"github.com/sawpanic/gerun/internal/marketdata"
)

// Ingest outcome labels reported to metrics
const (
	IngestAccepted  = "accepted"
	IngestRejected  = "rejected"
	IngestMalformed = "malformed"
)

// IngestMetrics counts stream records by outcome; satisfied by the HTTP
// layer's metrics registry
type IngestMetrics interface {
	RecordIngest(result string)
}

type nopIngestMetrics struct{}

func (nopIngestMetrics) RecordIngest(string) {}

// ConsumerConfig configures the stream consumer group membership
type ConsumerConfig struct {
	Stream   string        `yaml:"stream"`   // Default: gerun:opportunities
	Group    string        `yaml:"group"`    // Default: gerun-alloc
	Consumer string        `yaml:"consumer"` // Instance name within the group
	Count    int64         `yaml:"count"`    // Max records per read
	Block    time.Duration `yaml:"block"`    // XREADGROUP block timeout
}

// DefaultConsumerConfig returns production consumer settings
func DefaultConsumerConfig() ConsumerConfig {
	return ConsumerConfig{
		Stream:   "gerun:opportunities",
		Group:    "gerun-alloc",
		Consumer: "gerun-1",
		Count:    64,
		Block:    5 * time.Second,
	}
}

// Consumer reads opportunity records from the stream, validates each one and
// feeds the accepted records to a batcher. Malformed records are acknowledged
// and counted so they never wedge the group's pending list.
type Consumer struct {
	client  redis.Cmdable
	cfg     ConsumerConfig
	batcher *Batcher
	metrics IngestMetrics
}

// NewConsumer wires a consumer onto an existing Redis client. A nil metrics
// sink is replaced with a no-op.
func NewConsumer(client redis.Cmdable, cfg ConsumerConfig, batcher *Batcher, metrics IngestMetrics) *Consumer {
	if metrics == nil {
		metrics = nopIngestMetrics{}
	}
	return &Consumer{
		client:  client,
		cfg:     cfg,
		batcher: batcher,
		metrics: metrics,
	}
}

// EnsureGroup creates the consumer group at the stream head, creating the
// stream itself if needed. An already existing group is not an error.
func (c *Consumer) EnsureGroup(ctx context.Context) error {
	err := c.client.XGroupCreateMkStream(ctx, c.cfg.Stream, c.cfg.Group, "0").Err()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("create consumer group %s on %s: %w", c.cfg.Group, c.cfg.Stream, err)
	}
	return nil
}

// Run consumes until the context is cancelled. Each read delivers only
// records never seen by this group; every record is acknowledged exactly
// once, whether accepted or rejected.
func (c *Consumer) Run(ctx context.Context) error {
	if err := c.EnsureGroup(ctx); err != nil {
		return err
	}

	log.Info().
		Str("stream", c.cfg.Stream).
		Str("group", c.cfg.Group).
		Str("consumer", c.cfg.Consumer).
		Msg("signal consumer started")

	for {
		select {
		case <-ctx.Done():
			c.batcher.Flush(context.WithoutCancel(ctx))
			log.Info().Str("stream", c.cfg.Stream).Msg("signal consumer stopped")
			return ctx.Err()
		default:
		}

		streams, err := c.client.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    c.cfg.Group,
			Consumer: c.cfg.Consumer,
			Streams:  []string{c.cfg.Stream, ">"},
			Count:    c.cfg.Count,
			Block:    c.cfg.Block,
		}).Result()

		if err != nil {
			if errors.Is(err, redis.Nil) || errors.Is(err, context.DeadlineExceeded) {
				continue // Block timeout, nothing published
			}
			if ctx.Err() != nil {
				continue // Cancellation surfaces on the next loop entry
			}
			log.Error().Err(err).Str("stream", c.cfg.Stream).Msg("stream read failed")
			time.Sleep(time.Second)
			continue
		}

		for _, stream := range streams {
			for _, msg := range stream.Messages {
				c.handleMessage(ctx, msg)
			}
		}
	}
}

// handleMessage decodes, validates and routes one stream record, then ACKs it
func (c *Consumer) handleMessage(ctx context.Context, msg redis.XMessage) {
	opp, err := decodeRecord(msg)
	switch {
	case err != nil:
		c.metrics.RecordIngest(IngestMalformed)
		log.Warn().Err(err).Str("message_id", msg.ID).Msg("malformed opportunity record")
	default:
		if verr := opp.Validate(); verr != nil {
			c.metrics.RecordIngest(IngestRejected)
			log.Warn().Err(verr).Str("message_id", msg.ID).Int("item_id", opp.ItemID).
				Msg("opportunity record rejected")
		} else {
			c.metrics.RecordIngest(IngestAccepted)
			c.batcher.Add(ctx, opp.Normalized())
		}
	}

	if err := c.client.XAck(ctx, c.cfg.Stream, c.cfg.Group, msg.ID).Err(); err != nil {
		log.Error().Err(err).Str("message_id", msg.ID).Msg("ack failed")
	}
}

// decodeRecord extracts the opportunity JSON from the record's data field and
// fills the fee-derived fields the generator may omit
func decodeRecord(msg redis.XMessage) (alloc.Opportunity, error) {
	raw, ok := msg.Values["data"]
	if !ok {
		return alloc.Opportunity{}, fmt.Errorf("record %s has no data field", msg.ID)
	}
	text, ok := raw.(string)
	if !ok {
		return alloc.Opportunity{}, fmt.Errorf("record %s data field is %T, want string", msg.ID, raw)
	}

	var opp alloc.Opportunity
	if err := json.Unmarshal([]byte(text), &opp); err != nil {
		return alloc.Opportunity{}, fmt.Errorf("record %s: %w", msg.ID, err)
	}

	deriveFees(&opp)
	return opp, nil
}

// deriveFees fills NetProfitGP and MarginPercent from the buy/sell pair when
// the generator left them out, using the exchange tax rules
func deriveFees(opp *alloc.Opportunity) {
	if opp.BuyPrice <= 0 || opp.SellPrice <= 0 {
		return
	}
	buy, sell := int64(opp.BuyPrice), int64(opp.SellPrice)
	if opp.NetProfitGP == 0 {
		opp.NetProfitGP = float64(marketdata.NetProfit(buy, sell))
	}
	if opp.MarginPercent == 0 {
		margin := marketdata.MarginPercent(buy, sell)
		if margin > 0 {
			opp.MarginPercent = margin
		}
	}
}
