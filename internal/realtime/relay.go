package realtime

import (
	"context"

	goredis "github.com/redis/go-redis/v9"

	"github.com/angelmondragon/splitpay-backend/pkg/redis"
	"github.com/angelmondragon/splitpay-backend/pkg/types"
)

// Relay fans table messages out across API instances.
type Relay interface {
	Publish(ctx context.Context, tableID string, payload []byte) error
	// Listen blocks, handing every relayed payload to deliver, until ctx is
	// done or the subscription fails.
	Listen(ctx context.Context, deliver func(payload []byte)) error
}

type relayEnvelope struct {
	Origin  string        `json:"origin"`
	Message types.Message `json:"message"`
}

// RedisRelay relays through Redis pub/sub on one channel per table.
type RedisRelay struct {
	client *redis.Client
}

func NewRedisRelay(client *redis.Client) *RedisRelay {
	return &RedisRelay{client: client}
}

func (r *RedisRelay) Publish(ctx context.Context, tableID string, payload []byte) error {
	return r.client.Publish(ctx, r.client.TableChannel(tableID), payload)
}

func (r *RedisRelay) Listen(ctx context.Context, deliver func(payload []byte)) error {
	sub, err := r.client.PSubscribe(ctx, r.client.TableChannelPattern())
	if err != nil {
		return err
	}
	defer sub.Close()

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return goredis.ErrClosed
			}
			deliver([]byte(msg.Payload))
		}
	}
}
