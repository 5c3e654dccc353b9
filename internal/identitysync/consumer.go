package identitysync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// Handler applies one envelope. Returning an error leaves the message
// pending so it is redelivered after MinIdle.
type Handler func(ctx context.Context, env Envelope) error

type ConsumerConfig struct {
	Prefix   string
	Group    string        // default "auth"
	Consumer string        // default hostname
	Count    int64         // entries per read, default 16
	Block    time.Duration // XREADGROUP block, default 2s
	MinIdle  time.Duration // pending age before reclaim, default 30s
}

func (c *ConsumerConfig) setDefaults() {
	if c.Prefix == "" {
		c.Prefix = DefaultPrefix
	}
	if c.Group == "" {
		c.Group = "auth"
	}
	if c.Consumer == "" {
		host, err := os.Hostname()
		if err != nil || host == "" {
			host = "auth"
		}
		c.Consumer = host
	}
	if c.Count <= 0 {
		c.Count = 16
	}
	if c.Block <= 0 {
		c.Block = 2 * time.Second
	}
	if c.MinIdle <= 0 {
		c.MinIdle = 30 * time.Second
	}
}

// StreamConsumer reads one destination stream in a consumer group.
type StreamConsumer struct {
	client  redis.UniversalClient
	op      Op
	stream  string
	cfg     ConsumerConfig
	handler Handler
	logger  *slog.Logger

	cancel context.CancelFunc
	doneCh chan struct{}
}

func NewStreamConsumer(client redis.UniversalClient, op Op, handler Handler, logger *slog.Logger, cfg ConsumerConfig) *StreamConsumer {
	cfg.setDefaults()
	return &StreamConsumer{
		client:  client,
		op:      op,
		stream:  StreamName(cfg.Prefix, op),
		cfg:     cfg,
		handler: handler,
		logger:  logger.With("module", "identitysync", "destination", op.Destination()),
	}
}

// EnsureGroup creates the stream and consumer group if missing.
func (c *StreamConsumer) EnsureGroup(ctx context.Context) error {
	err := c.client.XGroupCreateMkStream(ctx, c.stream, c.cfg.Group, "0").Err()
	if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("identitysync: create group %s on %s: %w", c.cfg.Group, c.stream, err)
	}
	return nil
}

// Start creates the group and polls in the background until Stop.
func (c *StreamConsumer) Start(ctx context.Context) error {
	if err := c.EnsureGroup(ctx); err != nil {
		return err
	}

	ctx, c.cancel = context.WithCancel(context.WithoutCancel(ctx))
	c.doneCh = make(chan struct{})
	go c.run(ctx)

	c.logger.Info("consumer started", "stream", c.stream, "group", c.cfg.Group, "consumer", c.cfg.Consumer)
	return nil
}

// Stop cancels polling and waits for the in-flight batch to finish.
func (c *StreamConsumer) Stop() {
	if c.cancel == nil {
		return
	}
	c.cancel()
	<-c.doneCh
	c.logger.Info("consumer stopped")
}

func (c *StreamConsumer) run(ctx context.Context) {
	defer close(c.doneCh)

	for ctx.Err() == nil {
		if _, err := c.Poll(ctx); err != nil && ctx.Err() == nil {
			c.logger.Error("poll failed", "event", "poll", "error", err)
			select {
			case <-time.After(time.Second):
			case <-ctx.Done():
			}
		}
	}
}

// Poll reclaims stale pending entries, then reads new ones, and returns how
// many messages were acked.
func (c *StreamConsumer) Poll(ctx context.Context) (int, error) {
	acked := 0

	claimed, _, err := c.client.XAutoClaim(ctx, &redis.XAutoClaimArgs{
		Stream:   c.stream,
		Group:    c.cfg.Group,
		Consumer: c.cfg.Consumer,
		MinIdle:  c.cfg.MinIdle,
		Start:    "0-0",
		Count:    c.cfg.Count,
	}).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return 0, fmt.Errorf("identitysync: xautoclaim: %w", err)
	}
	for _, msg := range claimed {
		if c.process(ctx, msg) {
			acked++
		}
	}

	streams, err := c.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    c.cfg.Group,
		Consumer: c.cfg.Consumer,
		Streams:  []string{c.stream, ">"},
		Count:    c.cfg.Count,
		Block:    c.cfg.Block,
	}).Result()
	if errors.Is(err, redis.Nil) {
		return acked, nil
	}
	if err != nil {
		return acked, fmt.Errorf("identitysync: xreadgroup: %w", err)
	}

	for _, s := range streams {
		for _, msg := range s.Messages {
			if c.process(ctx, msg) {
				acked++
			}
		}
	}
	return acked, nil
}

// process applies msg and acks it when applied or undecodable.
func (c *StreamConsumer) process(ctx context.Context, msg redis.XMessage) bool {
	log := c.logger.With("stream_id", msg.ID)

	env, err := decode(msg)
	if err == nil && env.Op != c.op {
		err = fmt.Errorf("%w: op %q on %s", ErrInvalidEnvelope, env.Op, c.op.Destination())
	}
	if err != nil {
		log.Error("dropping undecodable message", "event", "poison", "error", err)
		return c.ack(ctx, msg.ID, log)
	}

	log = log.With("identity_id", env.IdentityID, "version", env.Version, "message_id", env.MessageID)
	if err := c.handler(ctx, env); err != nil {
		log.Warn("apply failed, leaving pending", "event", "apply", "error", err)
		return false
	}

	log.Debug("applied", "event", "apply")
	return c.ack(ctx, msg.ID, log)
}

func (c *StreamConsumer) ack(ctx context.Context, id string, log *slog.Logger) bool {
	if err := c.client.XAck(context.WithoutCancel(ctx), c.stream, c.cfg.Group, id).Err(); err != nil {
		log.Error("ack failed", "event", "ack", "error", err)
		return false
	}
	return true
}

func decode(msg redis.XMessage) (Envelope, error) {
	raw, ok := msg.Values[envelopeField].(string)
	if !ok {
		return Envelope{}, fmt.Errorf("%w: missing %s field", ErrInvalidEnvelope, envelopeField)
	}

	var env Envelope
	if err := json.Unmarshal([]byte(raw), &env); err != nil {
		return Envelope{}, fmt.Errorf("%w: %w", ErrInvalidEnvelope, err)
	}
	return env, env.Validate()
}

// ConsumerSet runs one StreamConsumer per operation against a single
// handler.
type ConsumerSet struct {
	consumers []*StreamConsumer
}

func NewConsumerSet(client redis.UniversalClient, handler Handler, logger *slog.Logger, cfg ConsumerConfig) *ConsumerSet {
	set := &ConsumerSet{}
	for _, op := range Ops() {
		set.consumers = append(set.consumers, NewStreamConsumer(client, op, handler, logger, cfg))
	}
	return set
}

func (s *ConsumerSet) Start(ctx context.Context) error {
	for i, c := range s.consumers {
		if err := c.Start(ctx); err != nil {
			for _, started := range s.consumers[:i] {
				started.Stop()
			}
			return err
		}
	}
	return nil
}

func (s *ConsumerSet) Stop() {
	for _, c := range s.consumers {
		c.Stop()
	}
}
