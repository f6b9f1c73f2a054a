package paste

import (
	"context"
	"errors"
	"time"

	"ephemeral-paste/internal/storage"
)

// View is the result of a successful retrieval.
type View struct {
	Paste *storage.Paste
	// RemainingViews is nil when the paste has no view limit.
	RemainingViews *int64
}

// ExpiresAt returns the paste expiry, or nil when it never expires.
func (v *View) ExpiresAt() *time.Time {
	return v.Paste.ExpiresAt
}

// Service runs the retrieval protocol on top of a Repository.
type Service struct {
	repo *Repository
}

// NewService returns a Service backed by repo.
func NewService(repo *Repository) *Service {
	return &Service{repo: repo}
}

// Create stores a new paste.
func (s *Service) Create(ctx context.Context, params CreateParams) (*storage.Paste, error) {
	return s.repo.Create(ctx, params)
}

// Retrieve fetches id, checks visibility at now, records the view and
// reports the views left after it. Missing and expired pastes both yield
// ErrNotFound.
func (s *Service) Retrieve(ctx context.Context, id string, now time.Time) (*View, error) {
	p, err := s.Peek(ctx, id, now)
	if err != nil {
		return nil, err
	}

	views, err := s.repo.RecordView(ctx, id)
	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrViewLimitReached) {
		// Purged or exhausted by a concurrent reader after the visibility check.
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	p.ViewsCount = views

	return &View{Paste: p, RemainingViews: RemainingViews(p)}, nil
}

// Peek returns the paste if it is visible at now without recording a view.
func (s *Service) Peek(ctx context.Context, id string, now time.Time) (*storage.Paste, error) {
	p, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !IsVisible(p, now) {
		return nil, ErrNotFound
	}
	return p, nil
}

// HealthCheck reports whether the store is reachable.
func (s *Service) HealthCheck(ctx context.Context) error {
	return s.repo.HealthCheck(ctx)
}
