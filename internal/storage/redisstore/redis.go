// Package redisstore implements storage.Store on Redis hashes.
//
// Each paste lives in one hash at <prefix><id>. Creation and view counting run
// as Lua scripts so every mutation is a single atomic server-side step.
package redisstore

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"ephemeral-paste/internal/storage"
)

// DefaultKeyPrefix namespaces paste hashes.
const DefaultKeyPrefix = "paste:"

const (
	fieldID         = "id"
	fieldContent    = "content"
	fieldCreatedAt  = "createdAt"
	fieldTTLSeconds = "ttlSeconds"
	fieldExpiresAt  = "expiresAt"
	fieldMaxViews   = "maxViews"
	fieldViewsCount = "viewsCount"
)

// createScript writes the hash only if the key is absent and arms EXPIRE in
// the same step. ARGV[1] is the ttl in seconds (0 for none), the rest are
// field/value pairs.
var createScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 1 then
  return 0
end
redis.call('HSET', KEYS[1], unpack(ARGV, 2))
local ttl = tonumber(ARGV[1])
if ttl > 0 then
  redis.call('EXPIRE', KEYS[1], ttl)
end
return 1
`)

// incrScript bumps viewsCount unless the key is gone (-1) or maxViews has been
// reached (-2). HINCRBY alone would resurrect a purged key.
var incrScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
  return -1
end
local max = redis.call('HGET', KEYS[1], 'maxViews')
if max then
  local views = tonumber(redis.call('HGET', KEYS[1], 'viewsCount') or '0')
  if views >= tonumber(max) then
    return -2
  end
end
return redis.call('HINCRBY', KEYS[1], 'viewsCount', 1)
`)

// Store implements storage.Store backed by Redis.
type Store struct {
	client redis.UniversalClient
	prefix string
}

// Open connects to Redis using cfg and verifies the connection with PING.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	opts, err := cfg.options()
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	s := New(client, cfg.KeyPrefix)
	if err := s.Ping(ctx); err != nil {
		_ = client.Close()
		return nil, err
	}
	return s, nil
}

// New wraps an existing client. An empty prefix selects DefaultKeyPrefix.
func New(client redis.UniversalClient, prefix string) *Store {
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	return &Store{client: client, prefix: prefix}
}

func (s *Store) key(id string) string {
	return s.prefix + id
}

// Create stores a new paste hash and arms its expiry.
func (s *Store) Create(ctx context.Context, paste *storage.Paste) error {
	if paste == nil {
		return errors.New("paste is nil")
	}
	var ttl int64
	if paste.TTLSeconds != nil {
		ttl = *paste.TTLSeconds
	}
	args := append([]any{ttl}, encode(paste)...)
	created, err := createScript.Run(ctx, s.client, []string{s.key(paste.ID)}, args...).Int64()
	if err != nil {
		return fmt.Errorf("create paste: %w", err)
	}
	if created == 0 {
		return storage.ErrExists
	}
	return nil
}

// Get retrieves a paste by id.
func (s *Store) Get(ctx context.Context, id string) (*storage.Paste, error) {
	fields, err := s.client.HGetAll(ctx, s.key(id)).Result()
	if err != nil {
		return nil, fmt.Errorf("get paste: %w", err)
	}
	if len(fields) == 0 {
		return nil, storage.ErrNotFound
	}
	paste, err := decode(fields)
	if err != nil {
		return nil, fmt.Errorf("decode paste %s: %w", id, err)
	}
	return paste, nil
}

// IncrementViews atomically records one view.
func (s *Store) IncrementViews(ctx context.Context, id string) (int64, error) {
	n, err := incrScript.Run(ctx, s.client, []string{s.key(id)}).Int64()
	if err != nil {
		return 0, fmt.Errorf("increment views: %w", err)
	}
	switch n {
	case -1:
		return 0, storage.ErrNotFound
	case -2:
		return 0, storage.ErrViewLimitReached
	}
	return n, nil
}

// Ping checks the server answers PONG.
func (s *Store) Ping(ctx context.Context) error {
	pong, err := s.client.Ping(ctx).Result()
	if err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}
	if pong != "PONG" {
		return fmt.Errorf("redis ping: unexpected reply %q", pong)
	}
	return nil
}

// Close releases the client connections.
func (s *Store) Close() error {
	if s == nil || s.client == nil {
		return nil
	}
	return s.client.Close()
}

func encode(p *storage.Paste) []any {
	out := []any{
		fieldID, p.ID,
		fieldContent, p.Content,
		fieldCreatedAt, p.CreatedAt.UTC().Format(time.RFC3339Nano),
		fieldViewsCount, p.ViewsCount,
	}
	if p.TTLSeconds != nil {
		out = append(out, fieldTTLSeconds, *p.TTLSeconds)
	}
	if p.ExpiresAt != nil {
		out = append(out, fieldExpiresAt, p.ExpiresAt.UTC().Format(time.RFC3339Nano))
	}
	if p.MaxViews != nil {
		out = append(out, fieldMaxViews, *p.MaxViews)
	}
	return out
}

func decode(fields map[string]string) (*storage.Paste, error) {
	id, ok := fields[fieldID]
	if !ok {
		return nil, errors.New("missing id field")
	}
	content, ok := fields[fieldContent]
	if !ok {
		return nil, errors.New("missing content field")
	}
	p := &storage.Paste{ID: id, Content: content}

	createdAt, err := time.Parse(time.RFC3339Nano, fields[fieldCreatedAt])
	if err != nil {
		return nil, fmt.Errorf("parse createdAt: %w", err)
	}
	p.CreatedAt = createdAt.UTC()

	if v, ok := fields[fieldViewsCount]; ok {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parse viewsCount: %w", err)
		}
		p.ViewsCount = n
	}
	if v, ok := fields[fieldTTLSeconds]; ok {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parse ttlSeconds: %w", err)
		}
		p.TTLSeconds = &n
	}
	if v, ok := fields[fieldMaxViews]; ok {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parse maxViews: %w", err)
		}
		p.MaxViews = &n
	}
	if v, ok := fields[fieldExpiresAt]; ok {
		t, err := time.Parse(time.RFC3339Nano, v)
		if err != nil {
			return nil, fmt.Errorf("parse expiresAt: %w", err)
		}
		t = t.UTC()
		p.ExpiresAt = &t
	}
	return p, nil
}
