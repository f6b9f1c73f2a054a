package storagetest

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ephemeral-paste/internal/storage"
)

// Factory opens a fresh, empty store for one subtest. The factory is
// responsible for registering cleanup with t.
type Factory func(t *testing.T) storage.Store

// Int64 returns a pointer to v.
func Int64(v int64) *int64 { return &v }

// NewPaste builds a paste created at createdAt with the optional limits applied.
func NewPaste(id, content string, createdAt time.Time, ttlSeconds, maxViews *int64) *storage.Paste {
	p := &storage.Paste{
		ID:        id,
		Content:   content,
		CreatedAt: createdAt.UTC(),
		MaxViews:  maxViews,
	}
	if ttlSeconds != nil {
		p.TTLSeconds = ttlSeconds
		exp := p.CreatedAt.Add(time.Duration(*ttlSeconds) * time.Second)
		p.ExpiresAt = &exp
	}
	return p
}

// RunContract exercises the storage.Store contract against stores produced by f.
func RunContract(t *testing.T, f Factory) {
	t.Helper()
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)

	t.Run("create and get", func(t *testing.T) {
		s := f(t)
		in := NewPaste("full", "hello\nworld", now, Int64(60), Int64(3))
		require.NoError(t, s.Create(ctx, in))

		out, err := s.Get(ctx, "full")
		require.NoError(t, err)
		assert.Equal(t, "full", out.ID)
		assert.Equal(t, "hello\nworld", out.Content)
		assert.True(t, out.CreatedAt.Equal(now), "created_at %v != %v", out.CreatedAt, now)
		require.NotNil(t, out.TTLSeconds)
		assert.Equal(t, int64(60), *out.TTLSeconds)
		require.NotNil(t, out.ExpiresAt)
		assert.True(t, out.ExpiresAt.Equal(now.Add(time.Minute)))
		require.NotNil(t, out.MaxViews)
		assert.Equal(t, int64(3), *out.MaxViews)
		assert.Equal(t, int64(0), out.ViewsCount)
	})

	t.Run("optional fields absent", func(t *testing.T) {
		s := f(t)
		require.NoError(t, s.Create(ctx, NewPaste("bare", "x", now, nil, nil)))

		out, err := s.Get(ctx, "bare")
		require.NoError(t, err)
		assert.Nil(t, out.TTLSeconds)
		assert.Nil(t, out.ExpiresAt)
		assert.Nil(t, out.MaxViews)
	})

	t.Run("create refuses to overwrite", func(t *testing.T) {
		s := f(t)
		require.NoError(t, s.Create(ctx, NewPaste("dup", "first", now, nil, nil)))
		err := s.Create(ctx, NewPaste("dup", "second", now, nil, nil))
		assert.ErrorIs(t, err, storage.ErrExists)

		out, err := s.Get(ctx, "dup")
		require.NoError(t, err)
		assert.Equal(t, "first", out.Content)
	})

	t.Run("get missing", func(t *testing.T) {
		s := f(t)
		_, err := s.Get(ctx, "nope")
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})

	t.Run("increment missing", func(t *testing.T) {
		s := f(t)
		_, err := s.IncrementViews(ctx, "nope")
		assert.ErrorIs(t, err, storage.ErrNotFound)
		_, err = s.Get(ctx, "nope")
		assert.ErrorIs(t, err, storage.ErrNotFound, "increment must not create a record")
	})

	t.Run("increment sequential", func(t *testing.T) {
		s := f(t)
		require.NoError(t, s.Create(ctx, NewPaste("seq", "x", now, nil, nil)))
		for want := int64(1); want <= 5; want++ {
			got, err := s.IncrementViews(ctx, "seq")
			require.NoError(t, err)
			assert.Equal(t, want, got)
		}
		out, err := s.Get(ctx, "seq")
		require.NoError(t, err)
		assert.Equal(t, int64(5), out.ViewsCount)
	})

	t.Run("increment stops at max views", func(t *testing.T) {
		s := f(t)
		require.NoError(t, s.Create(ctx, NewPaste("lim", "x", now, nil, Int64(2))))
		n, err := s.IncrementViews(ctx, "lim")
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)
		n, err = s.IncrementViews(ctx, "lim")
		require.NoError(t, err)
		assert.Equal(t, int64(2), n)
		_, err = s.IncrementViews(ctx, "lim")
		assert.ErrorIs(t, err, storage.ErrViewLimitReached)

		out, err := s.Get(ctx, "lim")
		require.NoError(t, err)
		assert.Equal(t, int64(2), out.ViewsCount)
	})

	t.Run("concurrent increments are not lost", func(t *testing.T) {
		s := f(t)
		require.NoError(t, s.Create(ctx, NewPaste("race", "x", now, nil, nil)))
		const workers = 40
		var wg sync.WaitGroup
		errs := make(chan error, workers)
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if _, err := s.IncrementViews(ctx, "race"); err != nil {
					errs <- err
				}
			}()
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			require.NoError(t, err)
		}
		out, err := s.Get(ctx, "race")
		require.NoError(t, err)
		assert.Equal(t, int64(workers), out.ViewsCount)
	})

	t.Run("concurrent increments respect max views", func(t *testing.T) {
		s := f(t)
		require.NoError(t, s.Create(ctx, NewPaste("racelim", "x", now, nil, Int64(5))))
		const workers = 40
		var (
			wg      sync.WaitGroup
			ok      atomic.Int64
			limited atomic.Int64
		)
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := s.IncrementViews(ctx, "racelim")
				switch {
				case err == nil:
					ok.Add(1)
				case errors.Is(err, storage.ErrViewLimitReached):
					limited.Add(1)
				}
			}()
		}
		wg.Wait()
		assert.Equal(t, int64(5), ok.Load())
		assert.Equal(t, int64(workers-5), limited.Load())
	})

	t.Run("ping", func(t *testing.T) {
		s := f(t)
		assert.NoError(t, s.Ping(ctx))
	})
}
