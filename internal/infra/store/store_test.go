package store

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osa030/groovebox/internal/domain/track"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), Config{
		Path:        filepath.Join(t.TempDir(), "queue.db"),
		BusyTimeout: 5 * time.Second,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func entry(guildID, title string) track.QueueEntry {
	return track.QueueEntry{
		GuildID: guildID,
		Track: track.Track{
			Title:        title,
			CanonicalURL: "https://example.com/" + title,
		},
		Requester: track.Requester{UserID: "user-1", Name: "tester", NotifyTargetID: "chan-1"},
	}
}

func titles(entries []track.QueueEntry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.Track.Title
	}
	return out
}

func TestStore_EnqueuePeekOrder(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	for _, title := range []string{"a", "b", "c", "d"} {
		_, err := s.Enqueue(ctx, entry("g1", title))
		require.NoError(t, err)
	}

	all, err := s.Peek(ctx, "g1", 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c", "d"}, titles(all))

	firstTwo, err := s.Peek(ctx, "g1", 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, titles(firstTwo))

	// Peek does not mutate
	n, err := s.Count(ctx, "g1")
	require.NoError(t, err)
	assert.Equal(t, 4, n)
}

func TestStore_EnqueueAssignsIncreasingPositions(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	first, err := s.Enqueue(ctx, entry("g1", "a"))
	require.NoError(t, err)
	second, err := s.Enqueue(ctx, entry("g1", "b"))
	require.NoError(t, err)
	other, err := s.Enqueue(ctx, entry("g2", "x"))
	require.NoError(t, err)

	assert.Equal(t, int64(1), first.Position)
	assert.Equal(t, int64(2), second.Position)
	assert.Equal(t, int64(1), other.Position, "positions are scoped per guild")
	assert.Greater(t, second.ID, first.ID)
	assert.Greater(t, other.ID, second.ID)
}

func TestStore_RoundTripsMetadata(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	e := entry("g1", "song")
	e.Track.ThumbnailURL = "https://img.example.com/1.jpg"
	e.Track.Duration = 215 * time.Second
	e.Track.Artists = []string{"Artist One", "Artist Two"}
	e.Track.Platform = "youtube"

	stored, err := s.Enqueue(ctx, e)
	require.NoError(t, err)

	got, err := s.DequeueFront(ctx, "g1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, stored.ID, got.ID)
	assert.Equal(t, e.Track, got.Track)
	assert.Equal(t, e.Requester, got.Requester)
}

func TestStore_DequeueFront(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	empty, err := s.DequeueFront(ctx, "g1")
	require.NoError(t, err, "empty queue is not an error")
	assert.Nil(t, empty)

	a, err := s.Enqueue(ctx, entry("g1", "a"))
	require.NoError(t, err)
	b, err := s.Enqueue(ctx, entry("g1", "b"))
	require.NoError(t, err)

	got, err := s.DequeueFront(ctx, "g1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, a.ID, got.ID)

	got, err = s.DequeueFront(ctx, "g1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, b.ID, got.ID)

	got, err = s.DequeueFront(ctx, "g1")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestStore_ConcurrentEnqueue(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	const n = 32
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if _, err := s.Enqueue(ctx, entry("g1", fmt.Sprintf("t%d", i))); err != nil {
				errs <- err
			}
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	all, err := s.Peek(ctx, "g1", 0)
	require.NoError(t, err)
	require.Len(t, all, n)

	positions := make([]int64, len(all))
	for i, e := range all {
		positions[i] = e.Position
	}
	for i := range positions {
		assert.Equal(t, int64(i+1), positions[i], "positions must be distinct and gap free")
	}
}

func TestStore_RemoveByID(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	a, err := s.Enqueue(ctx, entry("g1", "a"))
	require.NoError(t, err)
	_, err = s.Enqueue(ctx, entry("g1", "b"))
	require.NoError(t, err)

	removed, err := s.RemoveByID(ctx, "g1", a.ID)
	require.NoError(t, err)
	assert.True(t, removed)

	removed, err = s.RemoveByID(ctx, "g1", a.ID)
	require.NoError(t, err, "removing an absent id is a no-op")
	assert.False(t, removed)

	removed, err = s.RemoveByID(ctx, "other-guild", 9999)
	require.NoError(t, err)
	assert.False(t, removed)

	all, err := s.Peek(ctx, "g1", 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, titles(all))
}

func TestStore_RemoveByIDScopedToGuild(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	a, err := s.Enqueue(ctx, entry("g1", "a"))
	require.NoError(t, err)

	removed, err := s.RemoveByID(ctx, "g2", a.ID)
	require.NoError(t, err)
	assert.False(t, removed)

	n, err := s.Count(ctx, "g1")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestStore_Shuffle(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	const n = 20
	var ids []int64
	for i := 0; i < n; i++ {
		e, err := s.Enqueue(ctx, entry("g1", fmt.Sprintf("t%d", i)))
		require.NoError(t, err)
		ids = append(ids, e.ID)
	}
	// Create a gap so reassignment has to densify.
	removed, err := s.RemoveByID(ctx, "g1", ids[3])
	require.NoError(t, err)
	require.True(t, removed)
	ids = append(ids[:3], ids[4:]...)

	require.NoError(t, s.Shuffle(ctx, "g1"))

	all, err := s.Peek(ctx, "g1", 0)
	require.NoError(t, err)
	require.Len(t, all, n-1)

	gotIDs := make([]int64, len(all))
	for i, e := range all {
		assert.Equal(t, int64(i+1), e.Position)
		gotIDs[i] = e.ID
	}
	sort.Slice(gotIDs, func(i, j int) bool { return gotIDs[i] < gotIDs[j] })
	assert.Equal(t, ids, gotIDs, "shuffle must preserve the set of ids")
}

func TestStore_ShuffleEmpty(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Shuffle(context.Background(), "g1"))
}

func TestStore_EnqueueAfterShuffleAppendsAtTail(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	for _, title := range []string{"a", "b", "c"} {
		_, err := s.Enqueue(ctx, entry("g1", title))
		require.NoError(t, err)
	}
	require.NoError(t, s.Shuffle(ctx, "g1"))

	d, err := s.Enqueue(ctx, entry("g1", "d"))
	require.NoError(t, err)
	assert.Equal(t, int64(4), d.Position)

	all, err := s.Peek(ctx, "g1", 0)
	require.NoError(t, err)
	assert.Equal(t, "d", all[len(all)-1].Track.Title)
}

func TestStore_Clear(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	for _, title := range []string{"a", "b"} {
		_, err := s.Enqueue(ctx, entry("g1", title))
		require.NoError(t, err)
	}
	_, err := s.Enqueue(ctx, entry("g2", "keep"))
	require.NoError(t, err)

	require.NoError(t, s.Clear(ctx, "g1"))

	n, err := s.Count(ctx, "g1")
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	n, err = s.Count(ctx, "g2")
	require.NoError(t, err)
	assert.Equal(t, 1, n, "clear must not touch other guilds")

	guilds, err := s.Guilds(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"g2"}, guilds)
}

func TestStore_IdsNeverReused(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	a, err := s.Enqueue(ctx, entry("g1", "a"))
	require.NoError(t, err)
	require.NoError(t, s.Clear(ctx, "g1"))

	b, err := s.Enqueue(ctx, entry("g1", "b"))
	require.NoError(t, err)
	assert.Greater(t, b.ID, a.ID)
}

func TestStore_ErrorsAreMarked(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Close())

	_, err := s.Enqueue(context.Background(), entry("g1", "a"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrStore))

	_, err = s.Peek(context.Background(), "g1", 1)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrStore))
}
