package idgen

import (
	"context"
	"fmt"

	"github.com/go-redis/redis/v8"

	"github.com/Siddarth2230/tag-registry/pkg/tagcodec"
)

// DefaultCounterKey is the Redis key holding the reservation counter.
const DefaultCounterKey = "tag_counter"

// Incrementer is the part of the Redis client the counter needs.
// *redis.Client satisfies it.
type Incrementer interface {
	Incr(ctx context.Context, key string) *redis.IntCmd
}

type CounterGenerator struct {
	redis Incrementer
	key   string
}

func NewCounterGenerator(redisClient Incrementer, key string) *CounterGenerator {
	if key == "" {
		key = DefaultCounterKey
	}
	return &CounterGenerator{redis: redisClient, key: key}
}

// Generate returns the next tag id using Redis INCR (atomic counter)
func (g *CounterGenerator) Generate(ctx context.Context) (tagcodec.ID, error) {
	val, err := g.redis.Incr(ctx, g.key).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to increment counter: %w", err)
	}
	if val < 1 || val > int64(LastSequence-FirstSequence+1) {
		return 0, fmt.Errorf("%w: counter %s at %d", ErrSequenceExhausted, g.key, val)
	}

	// INCR starts at 1, the first reservation gets FirstSequence
	return FiveLetter(FirstSequence + uint32(val-1))
}
