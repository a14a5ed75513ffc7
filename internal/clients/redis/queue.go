package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// Queue is the named-tube work queue the pipeline stages hand tasks through.
// A tube is a ready list plus a delayed zset; delayed puts become visible
// once their due time passes. Reservation hands full ownership of the
// message to the caller; redelivery on consumer crash is the broker
// deployment's concern, not this client's.
type Queue interface {
	Put(ctx context.Context, tube string, payload any, delay time.Duration) error
	// Reserve blocks up to timeout for the next ready message. Returns
	// (nil, nil) when the tube stayed empty.
	Reserve(ctx context.Context, tube string, timeout time.Duration) ([]byte, error)
}

func readyKey(tube string) string   { return "tube:{" + tube + "}:ready" }
func delayedKey(tube string) string { return "tube:{" + tube + "}:delayed" }

// promoteScript atomically moves due delayed entries onto the ready list, so
// two reserving workers can never promote the same message twice.
var promoteScript = goredis.NewScript(`
local due = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', ARGV[1], 'LIMIT', 0, 100)
for i, v in ipairs(due) do
  redis.call('ZREM', KEYS[1], v)
  redis.call('LPUSH', KEYS[2], v)
end
return #due
`)

func (c *Client) Put(ctx context.Context, tube string, payload any, delay time.Duration) error {
	if c == nil || c.rdb == nil {
		return fmt.Errorf("redis queue not initialized")
	}
	if tube == "" {
		return fmt.Errorf("tube name required")
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	if delay <= 0 {
		return c.rdb.LPush(ctx, readyKey(tube), raw).Err()
	}
	due := float64(time.Now().Add(delay).UnixMilli())
	return c.rdb.ZAdd(ctx, delayedKey(tube), goredis.Z{Score: due, Member: raw}).Err()
}

func (c *Client) Reserve(ctx context.Context, tube string, timeout time.Duration) ([]byte, error) {
	if c == nil || c.rdb == nil {
		return nil, fmt.Errorf("redis queue not initialized")
	}
	if tube == "" {
		return nil, fmt.Errorf("tube name required")
	}

	now := fmt.Sprintf("%d", time.Now().UnixMilli())
	if err := promoteScript.Run(ctx, c.rdb, []string{delayedKey(tube), readyKey(tube)}, now).Err(); err != nil && !errors.Is(err, goredis.Nil) {
		return nil, fmt.Errorf("promote delayed: %w", err)
	}

	res, err := c.rdb.BRPop(ctx, timeout, readyKey(tube)).Result()
	if errors.Is(err, goredis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	// BRPOP returns [key, value].
	if len(res) != 2 {
		return nil, fmt.Errorf("unexpected BRPOP reply length %d", len(res))
	}
	return []byte(res[1]), nil
}
