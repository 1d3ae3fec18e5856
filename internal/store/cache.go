package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
)

const cacheTable = "cache"

// CacheEntry is one cached value
type CacheEntry struct {
	Key       string
	Value     string
	Timestamp time.Time
	ExpiresAt time.Time
}

type cacheRow struct {
	Key       string `db:"key"`
	Value     string `db:"value"`
	Timestamp int64  `db:"timestamp"`
	ExpiresAt int64  `db:"expires_at"`
}

// CacheRepo is a key/value cache with per-entry expiry. Expired rows stay
// on disk until Purge; Get simply stops returning them.
type CacheRepo struct {
	s *Store
}

// Get returns the value for key if it has not expired
func (r *CacheRepo) Get(ctx context.Context, key string) (string, bool, error) {
	var row cacheRow
	err := r.s.get(ctx, &row, r.s.sql.
		Select("key", "value", "timestamp", "expires_at").
		From(cacheTable).
		Where(sq.Eq{"key": key}))
	if errors.Is(err, ErrNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fail("cache.get", err)
	}

	if toMillis(r.s.now()) >= row.ExpiresAt {
		return "", false, nil
	}
	return row.Value, true, nil
}

// Put stores value under key for ttl, replacing any previous entry
func (r *CacheRepo) Put(ctx context.Context, key, value string, ttl time.Duration) error {
	if ttl <= 0 {
		return fail("cache.put", fmt.Errorf("ttl must be positive, got %s", ttl))
	}
	now := r.s.now()
	_, err := r.s.exec(ctx, r.s.sql.
		Insert(cacheTable).
		Columns("key", "value", "timestamp", "expires_at").
		Values(key, value, toMillis(now), toMillis(now.Add(ttl))).
		Suffix("ON CONFLICT(key) DO UPDATE SET value=excluded.value, timestamp=excluded.timestamp, expires_at=excluded.expires_at"))
	if err != nil {
		return fail("cache.put", err)
	}
	return nil
}

// Entry returns the raw row for key, expired or not
func (r *CacheRepo) Entry(ctx context.Context, key string) (*CacheEntry, error) {
	var row cacheRow
	err := r.s.get(ctx, &row, r.s.sql.
		Select("key", "value", "timestamp", "expires_at").
		From(cacheTable).
		Where(sq.Eq{"key": key}))
	if errors.Is(err, ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fail("cache.entry", err)
	}
	return &CacheEntry{
		Key:       row.Key,
		Value:     row.Value,
		Timestamp: fromMillis(row.Timestamp),
		ExpiresAt: fromMillis(row.ExpiresAt),
	}, nil
}

// Purge deletes every expired entry and returns how many were removed
func (r *CacheRepo) Purge(ctx context.Context) (int64, error) {
	res, err := r.s.exec(ctx, r.s.sql.
		Delete(cacheTable).
		Where(sq.LtOrEq{"expires_at": toMillis(r.s.now())}))
	if err != nil {
		return 0, fail("cache.purge", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fail("cache.purge", err)
	}
	return n, nil
}
