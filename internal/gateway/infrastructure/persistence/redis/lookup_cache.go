package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// CachedSecurity is the cached row of a security lookup result.
type CachedSecurity struct {
	SecurityID   int64  `json:"security_id"`
	SecurityCode string `json:"security_code"`
	BoardCode    string `json:"board_code"`
	Name         string `json:"name"`
}

// LookupCache keeps lookup results warm so repeated lookups resolve without
// a venue round trip. Entries expire; the venue remains the source of truth.
type LookupCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewLookupCache(client *redis.Client, ttl time.Duration) *LookupCache {
	return &LookupCache{client: client, ttl: ttl}
}

func securityKey(code, board string) string {
	return fmt.Sprintf("gateway:lookup:security:%s:%s", strings.ToLower(code), strings.ToLower(board))
}

// SaveSecurities stores the securities collected for one lookup.
func (c *LookupCache) SaveSecurities(ctx context.Context, code, board string, rows []CachedSecurity) error {
	data, err := json.Marshal(rows)
	if err != nil {
		return fmt.Errorf("failed to marshal securities: %w", err)
	}
	return c.client.Set(ctx, securityKey(code, board), data, c.ttl).Err()
}

// GetSecurities returns the cached rows for a lookup, or ok=false on miss.
func (c *LookupCache) GetSecurities(ctx context.Context, code, board string) ([]CachedSecurity, bool, error) {
	data, err := c.client.Get(ctx, securityKey(code, board)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	var rows []CachedSecurity
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, false, fmt.Errorf("failed to unmarshal securities: %w", err)
	}
	return rows, true, nil
}

// Invalidate drops one cached lookup.
func (c *LookupCache) Invalidate(ctx context.Context, code, board string) error {
	return c.client.Del(ctx, securityKey(code, board)).Err()
}
