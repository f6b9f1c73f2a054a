package paste

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"ephemeral-paste/internal/clock"
	"ephemeral-paste/internal/storage"
)

const (
	// createAttempts bounds retries when a generated id collides with an existing paste.
	createAttempts = 3
	// MaxTTLSeconds keeps createdAt+ttl inside time.Duration range (about 100 years).
	MaxTTLSeconds int64 = 100 * 365 * 24 * 60 * 60
)

// IDGenerator produces paste ids.
type IDGenerator interface {
	Generate(ctx context.Context) (string, error)
}

// CreateParams carries the client-supplied fields of a new paste.
type CreateParams struct {
	Content    string
	TTLSeconds *int64
	MaxViews   *int64
}

// Validate checks the creation constraints without touching the store.
func (p CreateParams) Validate() error {
	if strings.TrimSpace(p.Content) == "" {
		return &ValidationError{Field: "content", Message: "content must be a non-empty string"}
	}
	if p.TTLSeconds != nil && *p.TTLSeconds < 1 {
		return &ValidationError{Field: "ttl_seconds", Message: "ttl_seconds must be an integer >= 1"}
	}
	if p.TTLSeconds != nil && *p.TTLSeconds > MaxTTLSeconds {
		return &ValidationError{Field: "ttl_seconds", Message: fmt.Sprintf("ttl_seconds must be at most %d", MaxTTLSeconds)}
	}
	if p.MaxViews != nil && *p.MaxViews < 1 {
		return &ValidationError{Field: "max_views", Message: "max_views must be an integer >= 1"}
	}
	return nil
}

// Repository owns the persisted paste records.
type Repository struct {
	store storage.Store
	ids   IDGenerator
	clock clock.Clock
}

// NewRepository wires a Repository. A nil clock selects the wall clock.
func NewRepository(store storage.Store, ids IDGenerator, clk clock.Clock) *Repository {
	if clk == nil {
		clk = clock.Real{}
	}
	return &Repository{store: store, ids: ids, clock: clk}
}

// Create validates params and persists a new paste with a fresh id.
func (r *Repository) Create(ctx context.Context, params CreateParams) (*storage.Paste, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}

	for attempt := 0; attempt < createAttempts; attempt++ {
		id, err := r.ids.Generate(ctx)
		if err != nil {
			return nil, fmt.Errorf("generate id: %w", err)
		}

		now := r.clock.Now().UTC()
		p := &storage.Paste{
			ID:         id,
			Content:    params.Content,
			CreatedAt:  now,
			TTLSeconds: copyInt(params.TTLSeconds),
			MaxViews:   copyInt(params.MaxViews),
		}
		if p.TTLSeconds != nil {
			exp := now.Add(time.Duration(*p.TTLSeconds) * time.Second)
			p.ExpiresAt = &exp
		}

		err = r.store.Create(ctx, p)
		if errors.Is(err, storage.ErrExists) {
			continue
		}
		if err != nil {
			return nil, unavailable("create paste", err)
		}
		return p, nil
	}
	return nil, unavailable("create paste", fmt.Errorf("no free id after %d attempts", createAttempts))
}

// Get looks a paste up by id. It applies no visibility rules.
func (r *Repository) Get(ctx context.Context, id string) (*storage.Paste, error) {
	p, err := r.store.Get(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, unavailable("get paste", err)
	}
	return p, nil
}

// RecordView atomically adds one view and returns the new count. It fails
// with ErrViewLimitReached instead of pushing the count past MaxViews.
func (r *Repository) RecordView(ctx context.Context, id string) (int64, error) {
	views, err := r.store.IncrementViews(ctx, id)
	switch {
	case err == nil:
		return views, nil
	case errors.Is(err, storage.ErrNotFound):
		return 0, ErrNotFound
	case errors.Is(err, storage.ErrViewLimitReached):
		return 0, ErrViewLimitReached
	default:
		return 0, unavailable("record view", err)
	}
}

// HealthCheck round-trips to the store.
func (r *Repository) HealthCheck(ctx context.Context) error {
	if err := r.store.Ping(ctx); err != nil {
		return unavailable("health check", err)
	}
	return nil
}

func copyInt(v *int64) *int64 {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}
