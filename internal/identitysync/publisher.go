package identitysync

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

const (
	DefaultPrefix = "sync"

	// DefaultMaxLen trims each stream approximately. Consumers ack well
	// before this many entries pile up.
	DefaultMaxLen = 100_000

	envelopeField = "envelope"
)

// Publisher delivers one envelope to its destination.
type Publisher interface {
	Publish(ctx context.Context, env Envelope) error
}

// StreamName is the Redis key for op's destination under prefix.
func StreamName(prefix string, op Op) string {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return prefix + ":" + op.Destination()
}

type StreamPublisher struct {
	client redis.Cmdable
	prefix string
	maxLen int64
}

var _ Publisher = (*StreamPublisher)(nil)

func NewStreamPublisher(client redis.Cmdable, prefix string) *StreamPublisher {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &StreamPublisher{client: client, prefix: prefix, maxLen: DefaultMaxLen}
}

func (p *StreamPublisher) Publish(ctx context.Context, env Envelope) error {
	if err := env.Validate(); err != nil {
		return err
	}

	payload, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("identitysync: encode envelope: %w", err)
	}

	err = p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: StreamName(p.prefix, env.Op),
		MaxLen: p.maxLen,
		Approx: true,
		Values: map[string]any{
			envelopeField: string(payload),
			"identity_id": env.IdentityID,
			"version":     env.Version,
		},
	}).Err()
	if err != nil {
		return fmt.Errorf("identitysync: xadd %s: %w", env.Op.Destination(), err)
	}
	return nil
}
