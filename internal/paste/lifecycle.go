package paste

import (
	"time"

	"ephemeral-paste/internal/storage"
)

// IsVisible reports whether p may be served at now. A paste is hidden once
// now reaches ExpiresAt or once ViewsCount reaches MaxViews, whichever comes
// first. The view check runs against the count before the current retrieval
// is recorded.
func IsVisible(p *storage.Paste, now time.Time) bool {
	if p == nil {
		return false
	}
	if p.ExpiresAt != nil && !now.Before(*p.ExpiresAt) {
		return false
	}
	if p.MaxViews != nil && p.ViewsCount >= *p.MaxViews {
		return false
	}
	return true
}

// RemainingViews returns MaxViews - ViewsCount, or nil when views are unlimited.
func RemainingViews(p *storage.Paste) *int64 {
	if p == nil || p.MaxViews == nil {
		return nil
	}
	left := *p.MaxViews - p.ViewsCount
	if left < 0 {
		left = 0
	}
	return &left
}
