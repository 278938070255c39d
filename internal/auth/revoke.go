package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const blacklistPrefix = "jwt:blacklist:"

// Revoker keeps a blacklist of token IDs in Redis until the tokens expire.
// With a nil client revocation is disabled and every token stays valid until
// its expiry.
type Revoker struct {
	rdb *redis.Client
}

// NewRevoker creates a Revoker. rdb may be nil.
func NewRevoker(rdb *redis.Client) *Revoker {
	return &Revoker{rdb: rdb}
}

// Enabled reports whether a Redis client is configured.
func (r *Revoker) Enabled() bool {
	return r != nil && r.rdb != nil
}

// Revoke blacklists the token until its expiry.
func (r *Revoker) Revoke(ctx context.Context, claims *Claims) error {
	if !r.Enabled() || claims.ID == "" {
		return nil
	}
	ttl := time.Minute
	if claims.ExpiresAt != nil {
		ttl = time.Until(claims.ExpiresAt.Time)
	}
	if ttl <= 0 {
		return nil
	}
	if err := r.rdb.Set(ctx, blacklistPrefix+claims.ID, "1", ttl).Err(); err != nil {
		return fmt.Errorf("failed to revoke token: %w", err)
	}
	return nil
}

// IsRevoked reports whether the token ID is blacklisted.
func (r *Revoker) IsRevoked(ctx context.Context, jti string) (bool, error) {
	if !r.Enabled() || jti == "" {
		return false, nil
	}
	err := r.rdb.Get(ctx, blacklistPrefix+jti).Err()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check token revocation: %w", err)
	}
	return true, nil
}
