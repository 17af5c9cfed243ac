package auth

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"attendance/internal/store"
)

// Denylist tracks revoked token ids until their natural expiry. Logout is
// best-effort: a Redis outage fails open rather than locking everyone out.
type Denylist struct {
	client *redis.Client
}

// NewDenylist wraps a redis client.
func NewDenylist(client *redis.Client) *Denylist {
	return &Denylist{client: client}
}

func (d *Denylist) key(jti string) string {
	return store.Key("auth", "revoked", jti)
}

// Revoke marks a token id revoked until its expiry.
func (d *Denylist) Revoke(ctx context.Context, jti string, until time.Time) error {
	if d == nil || d.client == nil || jti == "" {
		return nil
	}
	ttl := time.Until(until)
	if ttl <= 0 {
		return nil
	}
	return d.client.Set(ctx, d.key(jti), "1", ttl).Err()
}

// Revoked reports whether a token id has been revoked.
func (d *Denylist) Revoked(ctx context.Context, jti string) bool {
	if d == nil || d.client == nil || jti == "" {
		return false
	}
	n, err := d.client.Exists(ctx, d.key(jti)).Result()
	return err == nil && n > 0
}
