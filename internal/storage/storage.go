package storage

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when a paste does not exist.
	ErrNotFound = errors.New("paste not found")
	// ErrExists is returned by Create when the id is already taken.
	ErrExists = errors.New("paste already exists")
	// ErrViewLimitReached is returned by IncrementViews when the paste has no views left.
	ErrViewLimitReached = errors.New("paste view limit reached")
)

// Paste represents a stored paste entry.
type Paste struct {
	ID         string     `json:"id"`
	Content    string     `json:"content"`
	CreatedAt  time.Time  `json:"created_at"`
	TTLSeconds *int64     `json:"ttl_seconds,omitempty"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty"`
	MaxViews   *int64     `json:"max_views,omitempty"`
	ViewsCount int64      `json:"views_count"`
}

// HasExpiration reports whether the paste has an expiry set.
func (p Paste) HasExpiration() bool {
	return p.ExpiresAt != nil && !p.ExpiresAt.IsZero()
}

// HasViewLimit reports whether the paste has a maximum view count.
func (p Paste) HasViewLimit() bool {
	return p.MaxViews != nil
}

// Store defines the storage backend contract.
//
// Create must write every field and arm the physical expiry in one atomic step,
// failing with ErrExists instead of overwriting. IncrementViews must be atomic:
// it adds one to ViewsCount only while ViewsCount is below MaxViews and returns
// the new count.
type Store interface {
	Create(ctx context.Context, paste *Paste) error
	Get(ctx context.Context, id string) (*Paste, error)
	IncrementViews(ctx context.Context, id string) (int64, error)
	Ping(ctx context.Context) error
	Close() error
}

// Purger is implemented by backends without native key expiry. The janitor
// calls DeleteExpired periodically to reclaim space.
type Purger interface {
	DeleteExpired(ctx context.Context, before time.Time) (int, error)
}
