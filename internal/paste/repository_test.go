package paste

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ephemeral-paste/internal/clock"
	"ephemeral-paste/internal/id"
	"ephemeral-paste/internal/storage"
	"ephemeral-paste/internal/storage/storagetest"
)

// seqIDs hands out ids from a fixed list.
type seqIDs struct {
	mu  sync.Mutex
	ids []string
}

func (s *seqIDs) Generate(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.ids) == 0 {
		return "", errors.New("out of ids")
	}
	next := s.ids[0]
	s.ids = s.ids[1:]
	return next, nil
}

// brokenStore fails every operation.
type brokenStore struct{ err error }

func (b brokenStore) Create(context.Context, *storage.Paste) error { return b.err }
func (b brokenStore) Get(context.Context, string) (*storage.Paste, error) {
	return nil, b.err
}
func (b brokenStore) IncrementViews(context.Context, string) (int64, error) { return 0, b.err }
func (b brokenStore) Ping(context.Context) error                           { return b.err }
func (b brokenStore) Close() error                                         { return nil }

func newTestRepo(t *testing.T) (*Repository, *storagetest.MemoryStore, *clock.Fixed) {
	t.Helper()
	store := storagetest.NewMemoryStore()
	clk := clock.NewFixed(epoch)
	return NewRepository(store, id.New(0), clk), store, clk
}

func TestCreateValidation(t *testing.T) {
	tests := []struct {
		name   string
		params CreateParams
		field  string
	}{
		{name: "empty content", params: CreateParams{Content: ""}, field: "content"},
		{name: "blank content", params: CreateParams{Content: " \n\t"}, field: "content"},
		{name: "empty content with valid limits", params: CreateParams{Content: "", TTLSeconds: storagetest.Int64(60), MaxViews: storagetest.Int64(2)}, field: "content"},
		{name: "zero ttl", params: CreateParams{Content: "x", TTLSeconds: storagetest.Int64(0)}, field: "ttl_seconds"},
		{name: "negative ttl", params: CreateParams{Content: "x", TTLSeconds: storagetest.Int64(-5)}, field: "ttl_seconds"},
		{name: "ttl beyond range", params: CreateParams{Content: "x", TTLSeconds: storagetest.Int64(MaxTTLSeconds + 1)}, field: "ttl_seconds"},
		{name: "zero max views", params: CreateParams{Content: "x", MaxViews: storagetest.Int64(0)}, field: "max_views"},
		{name: "negative max views", params: CreateParams{Content: "x", MaxViews: storagetest.Int64(-1)}, field: "max_views"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo, _, _ := newTestRepo(t)
			_, err := repo.Create(context.Background(), tt.params)
			require.Error(t, err)
			var ve *ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, tt.field, ve.Field)
			assert.True(t, strings.Contains(ve.Error(), tt.field), "message %q should name %s", ve.Error(), tt.field)
		})
	}
}

func TestCreateValidationSkipsStore(t *testing.T) {
	repo := NewRepository(brokenStore{err: errors.New("down")}, id.New(0), nil)
	_, err := repo.Create(context.Background(), CreateParams{Content: ""})
	assert.True(t, IsValidation(err))
	assert.False(t, IsUnavailable(err))
}

func TestCreatePersistsRecord(t *testing.T) {
	repo, store, _ := newTestRepo(t)
	ctx := context.Background()

	p, err := repo.Create(ctx, CreateParams{Content: "Hello World", TTLSeconds: storagetest.Int64(60), MaxViews: storagetest.Int64(2)})
	require.NoError(t, err)
	assert.Len(t, p.ID, id.DefaultLength)
	assert.Equal(t, epoch, p.CreatedAt)
	require.NotNil(t, p.ExpiresAt)
	assert.Equal(t, epoch.Add(time.Minute), *p.ExpiresAt)
	assert.Equal(t, int64(0), p.ViewsCount)

	stored, err := store.Get(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, p, stored)
}

func TestCreateWithoutLimits(t *testing.T) {
	repo, _, _ := newTestRepo(t)
	p, err := repo.Create(context.Background(), CreateParams{Content: "x"})
	require.NoError(t, err)
	assert.Nil(t, p.TTLSeconds)
	assert.Nil(t, p.ExpiresAt)
	assert.Nil(t, p.MaxViews)
}

func TestCreateDoesNotAliasParams(t *testing.T) {
	repo, _, _ := newTestRepo(t)
	ttl := int64(30)
	p, err := repo.Create(context.Background(), CreateParams{Content: "x", TTLSeconds: &ttl})
	require.NoError(t, err)
	ttl = 9999
	assert.Equal(t, int64(30), *p.TTLSeconds)
}

func TestCreateRetriesOnCollision(t *testing.T) {
	store := storagetest.NewMemoryStore()
	store.Put(storagetest.NewPaste("taken", "old", epoch, nil, nil))
	repo := NewRepository(store, &seqIDs{ids: []string{"taken", "taken", "fresh"}}, clock.NewFixed(epoch))

	p, err := repo.Create(context.Background(), CreateParams{Content: "new"})
	require.NoError(t, err)
	assert.Equal(t, "fresh", p.ID)

	old, err := store.Get(context.Background(), "taken")
	require.NoError(t, err)
	assert.Equal(t, "old", old.Content)
}

func TestCreateGivesUpAfterRepeatedCollisions(t *testing.T) {
	store := storagetest.NewMemoryStore()
	store.Put(storagetest.NewPaste("taken", "old", epoch, nil, nil))
	repo := NewRepository(store, &seqIDs{ids: []string{"taken", "taken", "taken"}}, clock.NewFixed(epoch))

	_, err := repo.Create(context.Background(), CreateParams{Content: "new"})
	assert.True(t, IsUnavailable(err))
}

func TestGetNotFound(t *testing.T) {
	repo, _, _ := newTestRepo(t)
	_, err := repo.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.True(t, IsNotFound(err))
}

func TestGetHasNoSideEffects(t *testing.T) {
	repo, _, _ := newTestRepo(t)
	ctx := context.Background()
	p, err := repo.Create(ctx, CreateParams{Content: "x", MaxViews: storagetest.Int64(1)})
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		got, err := repo.Get(ctx, p.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(0), got.ViewsCount)
	}
}

func TestRecordView(t *testing.T) {
	repo, _, _ := newTestRepo(t)
	ctx := context.Background()
	p, err := repo.Create(ctx, CreateParams{Content: "x", MaxViews: storagetest.Int64(2)})
	require.NoError(t, err)

	n, err := repo.RecordView(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	n, err = repo.RecordView(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	_, err = repo.RecordView(ctx, p.ID)
	assert.ErrorIs(t, err, ErrViewLimitReached)

	_, err = repo.RecordView(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRecordViewConcurrent(t *testing.T) {
	repo, _, _ := newTestRepo(t)
	ctx := context.Background()
	p, err := repo.Create(ctx, CreateParams{Content: "x"})
	require.NoError(t, err)

	const n = 64
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := repo.RecordView(ctx, p.ID)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	got, err := repo.Get(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(n), got.ViewsCount)
}

func TestStoreFailuresAreUnavailable(t *testing.T) {
	down := errors.New("connection refused")
	repo := NewRepository(brokenStore{err: down}, id.New(0), nil)
	ctx := context.Background()

	_, err := repo.Create(ctx, CreateParams{Content: "x"})
	assert.True(t, IsUnavailable(err))
	assert.ErrorIs(t, err, down)

	_, err = repo.Get(ctx, "any")
	assert.True(t, IsUnavailable(err))
	assert.False(t, IsNotFound(err))

	_, err = repo.RecordView(ctx, "any")
	assert.True(t, IsUnavailable(err))

	err = repo.HealthCheck(ctx)
	var ue *UnavailableError
	require.ErrorAs(t, err, &ue)
	assert.Equal(t, "health check", ue.Op)
}

func TestHealthCheck(t *testing.T) {
	repo, store, _ := newTestRepo(t)
	require.NoError(t, repo.HealthCheck(context.Background()))

	store.FailPing(errors.New("no pong"))
	assert.True(t, IsUnavailable(repo.HealthCheck(context.Background())))
}
