package filestore

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saturnino-fabrica-de-software/ponto/internal/domain"
)

func newIdentityRepo(t *testing.T) (*IdentityRepository, string) {
	t.Helper()
	dir := t.TempDir()
	repo, err := NewIdentityRepository(dir)
	require.NoError(t, err)
	return repo, dir
}

func TestIdentityRepository_CreateAndList(t *testing.T) {
	repo, dir := newIdentityRepo(t)
	ctx := context.Background()

	for _, key := range []string{"b@x.com", "A@x.com"} {
		id := &domain.Identity{Key: key, Name: "User", Phone: "1", Class: "10", Division: "A", ImageRef: "img"}
		require.NoError(t, repo.Create(ctx, id, domain.Embedding{0.5, 0.25}))
		assert.Equal(t, filepath.Join(dir, domain.NormalizeKey(key)+".json"), id.EmbeddingRef)
		assert.False(t, id.CreatedAt.IsZero())
	}

	entries, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "a@x.com", entries[0].Identity.Key)
	assert.Equal(t, "b@x.com", entries[1].Identity.Key)
	assert.Equal(t, domain.Embedding{0.5, 0.25}, entries[0].Embedding)

	roster, err := os.ReadFile(filepath.Join(dir, RosterFile))
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(roster)), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "Name,Email,Phone Number,Class,Division,Image Path,Embeddings Path", lines[0])
}

func TestIdentityRepository_Duplicate(t *testing.T) {
	repo, dir := newIdentityRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, &domain.Identity{Key: "ana@x.com", Name: "Ana"}, domain.Embedding{1}))
	err := repo.Create(ctx, &domain.Identity{Key: " ANA@x.com", Name: "Other"}, domain.Embedding{2})
	assert.ErrorIs(t, err, domain.ErrAlreadyRegistered)

	roster, err := os.ReadFile(filepath.Join(dir, RosterFile))
	require.NoError(t, err)
	assert.Equal(t, 1, strings.Count(string(roster), "ana@x.com,"))

	exists, err := repo.Exists(ctx, "Ana@X.com")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestIdentityRepository_Get(t *testing.T) {
	repo, dir := newIdentityRepo(t)
	ctx := context.Background()

	_, err := repo.Get(ctx, "nobody@x.com")
	assert.ErrorIs(t, err, domain.ErrUnregisteredIdentity)

	require.NoError(t, repo.Create(ctx, &domain.Identity{Key: "ana@x.com", Name: "Ana"}, domain.Embedding{1}))
	got, err := repo.Get(ctx, "ANA@x.com")
	require.NoError(t, err)
	assert.Equal(t, "Ana", got.Name)

	// later enrollments append rows below the single header
	require.NoError(t, repo.Create(ctx, &domain.Identity{Key: "bo@x.com", Name: "Bo"}, domain.Embedding{1}))
	roster, err := os.ReadFile(filepath.Join(dir, RosterFile))
	require.NoError(t, err)
	assert.Equal(t, 1, strings.Count(string(roster), "Name,Email"))
}

func TestIdentityRepository_RejectsUnsafeKeys(t *testing.T) {
	repo, _ := newIdentityRepo(t)
	for _, key := range []string{"", "../evil", `a\b`, ".."} {
		err := repo.Create(context.Background(), &domain.Identity{Key: key}, domain.Embedding{1})
		assert.ErrorIs(t, err, domain.ErrValidationFailed, key)
	}
}

func TestIdentityRepository_EmptyEmbedding(t *testing.T) {
	repo, _ := newIdentityRepo(t)
	err := repo.Create(context.Background(), &domain.Identity{Key: "a@x.com"}, nil)
	assert.ErrorIs(t, err, domain.ErrValidationFailed)
}

func TestIdentityRepository_RosterFailureRemovesEmbedding(t *testing.T) {
	repo, dir := newIdentityRepo(t)
	// a directory where the roster should be makes the append fail
	require.NoError(t, os.Mkdir(filepath.Join(dir, RosterFile), 0o755))

	err := repo.Create(context.Background(), &domain.Identity{Key: "ana@x.com"}, domain.Embedding{1})
	require.Error(t, err)

	_, statErr := os.Stat(filepath.Join(dir, "ana@x.com.json"))
	assert.True(t, os.IsNotExist(statErr))
}

func TestAttendanceRepository(t *testing.T) {
	loc := time.FixedZone("IST", 5*3600+1800)
	dir := t.TempDir()
	repo, err := NewAttendanceRepository(dir, loc)
	require.NoError(t, err)
	ctx := context.Background()

	events, err := repo.ListDay(ctx, "2024-03-01")
	require.NoError(t, err)
	assert.Empty(t, events)

	in := time.Date(2024, 3, 1, 9, 30, 0, 0, loc)
	require.NoError(t, repo.Append(ctx, domain.AttendanceEvent{Key: "ana@x.com", Time: in, Direction: domain.DirectionIn}))
	require.NoError(t, repo.Append(ctx, domain.AttendanceEvent{Key: "ana@x.com", Time: in.Add(8 * time.Hour), Direction: domain.DirectionOut}))
	// 20:00 UTC on the 1st is the 2nd in IST
	require.NoError(t, repo.Append(ctx, domain.AttendanceEvent{Key: "bo@x.com", Time: time.Date(2024, 3, 1, 20, 0, 0, 0, time.UTC), Direction: domain.DirectionIn}))

	raw, err := os.ReadFile(filepath.Join(dir, "2024-03-01.csv"))
	require.NoError(t, err)
	assert.Equal(t, "ana@x.com,09:30:00,IN\nana@x.com,17:30:00,OUT\n", string(raw))

	events, err = repo.ListDay(ctx, "2024-03-01")
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.True(t, in.Equal(events[0].Time))
	assert.Equal(t, domain.CheckedOut, domain.Replay(events)["ana@x.com"].Status)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.csv"), []byte("x"), 0o644))
	days, err := repo.Days(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"2024-03-01", "2024-03-02"}, days)
}

func TestAttendanceRepository_ConcurrentAppends(t *testing.T) {
	dir := t.TempDir()
	repo, err := NewAttendanceRepository(dir, time.UTC)
	require.NoError(t, err)

	ts := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = repo.Append(context.Background(), domain.AttendanceEvent{Key: "ana@x.com", Time: ts, Direction: domain.DirectionIn})
		}()
	}
	wg.Wait()

	events, err := repo.ListDay(context.Background(), "2024-03-01")
	require.NoError(t, err)
	assert.Len(t, events, 50)
}

func TestImageStore(t *testing.T) {
	dir := t.TempDir()
	store, err := NewImageStore(dir)
	require.NoError(t, err)
	ctx := context.Background()

	ref, err := store.Put(ctx, "ana@x.com", []byte("png-bytes"), "image/png")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "ana@x.com.png"), ref)

	data, err := os.ReadFile(ref)
	require.NoError(t, err)
	assert.Equal(t, "png-bytes", string(data))

	require.NoError(t, store.Delete(ctx, ref))
	require.NoError(t, store.Delete(ctx, ref))

	_, err = store.Put(ctx, "../escape", []byte("x"), "image/jpeg")
	assert.ErrorIs(t, err, domain.ErrValidationFailed)
}
