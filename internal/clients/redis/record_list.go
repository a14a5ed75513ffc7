package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
)

// RecordListCache is the short-lived handoff between the synchronous export
// request and the asynchronous pipeline: the search collaborator stashes the
// permission-filtered record-id list under a token, and the initiator
// consumes it exactly once. Entries expire on their own if never claimed.
type RecordListCache interface {
	PutRecordList(ctx context.Context, ids []uuid.UUID, ttl time.Duration) (string, error)
	// TakeRecordList returns the list and deletes it in one step (GETDEL),
	// so the ids cannot be replayed into a second job. Returns (nil, nil)
	// when the token is unknown or already consumed.
	TakeRecordList(ctx context.Context, token string) ([]uuid.UUID, error)
}

func recordListKey(token string) string { return "export:recordlist:" + token }

func (c *Client) PutRecordList(ctx context.Context, ids []uuid.UUID, ttl time.Duration) (string, error) {
	if c == nil || c.rdb == nil {
		return "", fmt.Errorf("redis cache not initialized")
	}
	raw, err := json.Marshal(ids)
	if err != nil {
		return "", err
	}
	token := uuid.NewString()
	if err := c.rdb.Set(ctx, recordListKey(token), raw, ttl).Err(); err != nil {
		return "", err
	}
	return token, nil
}

func (c *Client) TakeRecordList(ctx context.Context, token string) ([]uuid.UUID, error) {
	if c == nil || c.rdb == nil {
		return nil, fmt.Errorf("redis cache not initialized")
	}
	if token == "" {
		return nil, nil
	}
	raw, err := c.rdb.GetDel(ctx, recordListKey(token)).Result()
	if errors.Is(err, goredis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var ids []uuid.UUID
	if err := json.Unmarshal([]byte(raw), &ids); err != nil {
		return nil, fmt.Errorf("bad record list payload: %w", err)
	}
	return ids, nil
}
