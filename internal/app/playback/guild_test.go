package playback

import (
	"context"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osa030/groovebox/internal/domain/track"
)

func requireCode(t *testing.T, err error, code string) {
	t.Helper()
	require.Error(t, err)
	var f *Failure
	require.True(t, errors.As(err, &f), "expected *Failure, got %T: %v", err, err)
	assert.Equal(t, code, f.Code)
}

func TestGuild_PlayWhenIdleStartsPlayback(t *testing.T) {
	h := newHarness(t, nil)
	g := h.reg.Guild("g1")

	res := h.play(t, g, "songA")
	assert.True(t, res.Started)
	assert.Equal(t, 1, res.Position)
	assert.Equal(t, "songA", res.Entry.Track.Title)

	s := waitFor(t, g, playing("songA"))
	assert.Empty(t, s.Queue)
	assert.Equal(t, "playing", s.State)
	assert.Equal(t, 1, h.connector.count())

	require.Eventually(t, func() bool {
		for _, m := range h.notifier.all() {
			if m == "text-1|Now playing **songA**" {
				return true
			}
		}
		return false
	}, time.Second, 5*time.Millisecond)
}

func TestGuild_PlayThenSkip(t *testing.T) {
	h := newHarness(t, nil)
	g := h.reg.Guild("g1")

	h.play(t, g, "songA")
	waitFor(t, g, playing("songA"))
	first := h.backend.last()

	res := h.play(t, g, "songB")
	assert.False(t, res.Started)
	assert.Equal(t, 1, res.Position)

	s, err := g.Snapshot(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "songA", s.CurrentTrack.Title)
	assert.Equal(t, []string{"songB"}, queueTitles(s))

	skipped, err := g.Skip(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "songA", skipped.Track.Title)

	s = waitFor(t, g, playing("songB"))
	assert.Empty(t, s.Queue)
	assert.Contains(t, h.backend.stoppedHandles(), first)
}

func TestGuild_LoopRequeuesFinishedTrack(t *testing.T) {
	tests := []struct {
		name string
		end  func(t *testing.T, h *harness, g *Guild, handle Handle)
	}{
		{
			name: "natural completion",
			end: func(t *testing.T, h *harness, g *Guild, handle Handle) {
				h.backend.finish(handle)
			},
		},
		{
			name: "skip",
			end: func(t *testing.T, h *harness, g *Guild, handle Handle) {
				_, err := g.Skip(context.Background())
				require.NoError(t, err)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, nil)
			g := h.reg.Guild("g1")

			h.play(t, g, "A")
			waitFor(t, g, playing("A"))
			h.play(t, g, "B")
			require.NoError(t, g.SetLoop(context.Background(), true))

			tt.end(t, h, g, h.backend.last())

			s := waitFor(t, g, playing("B"))
			assert.Equal(t, []string{"A"}, queueTitles(s))
			assert.True(t, s.Looping)
		})
	}
}

func TestGuild_CompletionWithoutLoopEmptiesToIdle(t *testing.T) {
	h := newHarness(t, nil)
	g := h.reg.Guild("g1")

	h.play(t, g, "A")
	waitFor(t, g, playing("A"))
	h.backend.finish(h.backend.last())

	s := waitFor(t, g, func(s Snapshot) bool { return s.State == "idle" })
	assert.Nil(t, s.CurrentTrack)
	assert.Empty(t, s.Queue)
}

func TestGuild_StaleCompletionIgnored(t *testing.T) {
	h := newHarness(t, nil)
	g := h.reg.Guild("g1")

	h.play(t, g, "A")
	waitFor(t, g, playing("A"))

	h.reg.Bridge().Post(Completion{GuildID: "g1", Handle: h.backend.last() + 100})
	h.reg.Bridge().Post(Completion{GuildID: "unknown", Handle: 1})

	require.Never(t, func() bool {
		s, err := g.Snapshot(context.Background())
		return err != nil || !s.IsPlaying || s.CurrentTrack.Title != "A"
	}, 100*time.Millisecond, 10*time.Millisecond)
}

func TestGuild_PauseResume(t *testing.T) {
	h := newHarness(t, nil)
	g := h.reg.Guild("g1")
	ctx := context.Background()

	requireCode(t, g.Pause(ctx), CodeNotPlaying)
	requireCode(t, g.Resume(ctx), CodeNotPaused)

	h.play(t, g, "A")
	waitFor(t, g, playing("A"))

	require.NoError(t, g.Pause(ctx))
	s, err := g.Snapshot(ctx)
	require.NoError(t, err)
	assert.True(t, s.IsPaused)
	assert.False(t, s.IsPlaying)

	requireCode(t, g.Pause(ctx), CodeNotPlaying)

	require.NoError(t, g.Resume(ctx))
	requireCode(t, g.Resume(ctx), CodeNotPaused)
	waitFor(t, g, playing("A"))
}

func TestGuild_SkipWhenIdle(t *testing.T) {
	h := newHarness(t, nil)
	g := h.reg.Guild("g1")

	_, err := g.Skip(context.Background())
	requireCode(t, err, CodeNotPlaying)
	assert.ErrorIs(t, err, ErrNoTrack)
}

func TestGuild_StopIsIdempotent(t *testing.T) {
	h := newHarness(t, nil)
	g := h.reg.Guild("g1")
	ctx := context.Background()

	require.NoError(t, g.Stop(ctx, false))

	h.play(t, g, "A")
	waitFor(t, g, playing("A"))
	h.play(t, g, "B")
	h.play(t, g, "C")
	require.NoError(t, g.SetLoop(ctx, true))
	handle := h.backend.last()

	require.NoError(t, g.Stop(ctx, true))
	require.NoError(t, g.Stop(ctx, true))

	s, err := g.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, "idle", s.State)
	assert.Nil(t, s.CurrentTrack)
	assert.Empty(t, s.Queue)
	assert.False(t, s.Looping)
	assert.Contains(t, h.backend.stoppedHandles(), handle)

	require.Eventually(t, func() bool {
		h.connector.mu.Lock()
		defer h.connector.mu.Unlock()
		return len(h.connector.disconnected) == 1
	}, time.Second, 5*time.Millisecond)

	// The completion of the stopped stream must not restart anything.
	s = waitFor(t, g, func(s Snapshot) bool { return s.State == "idle" })
	assert.Nil(t, s.CurrentTrack)
}

func TestGuild_SetVolume(t *testing.T) {
	tests := []struct {
		name    string
		percent float64
		want    float64
	}{
		{name: "above range", percent: 150, want: 1.0},
		{name: "below range", percent: -20, want: 0.0},
		{name: "in range", percent: 30, want: 0.3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, nil)
			g := h.reg.Guild("g1")
			h.play(t, g, "A")
			waitFor(t, g, playing("A"))

			got, err := g.SetVolume(context.Background(), VolumeFromPercent(tt.percent))
			require.NoError(t, err)
			assert.InDelta(t, tt.want, got, 1e-9)
			assert.InDelta(t, tt.want, h.backend.volume(h.backend.last()), 1e-9)

			s, err := g.Snapshot(context.Background())
			require.NoError(t, err)
			assert.InDelta(t, tt.want, s.Volume, 1e-9)
		})
	}
}

func TestGuild_VolumeCarriesToNextTrack(t *testing.T) {
	h := newHarness(t, nil)
	g := h.reg.Guild("g1")

	got, err := g.SetVolume(context.Background(), 2)
	require.NoError(t, err)
	assert.Equal(t, 1.0, got)

	h.play(t, g, "A")
	waitFor(t, g, playing("A"))
	assert.Equal(t, 1.0, h.backend.volume(h.backend.last()))
}

func TestGuild_PlayFailures(t *testing.T) {
	tests := []struct {
		name    string
		tweak   func(h *harness)
		channel string
		code    string
	}{
		{
			name:    "nothing found",
			tweak:   func(h *harness) { h.resolver.unknown["nothing"] = true },
			channel: "voice-1",
			code:    CodeResolutionFailed,
		},
		{
			name:    "voice join fails",
			tweak:   func(h *harness) { h.connector.fail = true },
			channel: "voice-1",
			code:    CodeConnectionFailed,
		},
		{
			name:    "requester outside voice",
			tweak:   func(h *harness) {},
			channel: "",
			code:    CodeConnectionFailed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, nil)
			tt.tweak(h)
			g := h.reg.Guild("g1")

			_, err := g.Play(context.Background(), PlayRequest{Query: "nothing", Requester: requester(), ChannelID: tt.channel})
			requireCode(t, err, tt.code)

			s, err := g.Snapshot(context.Background())
			require.NoError(t, err)
			assert.Equal(t, "idle", s.State)
			assert.Empty(t, s.Queue)
		})
	}
}

func TestGuild_PlayRejectedByAdmission(t *testing.T) {
	h := newHarness(t, func(cfg *Config, deps *Deps) {
		deps.Admission = rejectAll{code: "duplicate_track"}
	})
	g := h.reg.Guild("g1")

	_, err := g.Play(context.Background(), PlayRequest{Query: "A", Requester: requester(), ChannelID: "voice-1"})
	requireCode(t, err, "rejected:duplicate_track")
	assert.ErrorIs(t, err, ErrRejected)

	var f *Failure
	require.True(t, errors.As(err, &f))
	code, ok := f.Rejected()
	assert.True(t, ok)
	assert.Equal(t, "duplicate_track", code)

	n, err := h.queue.Count(context.Background(), "g1")
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestGuild_StreamFailureAdvances(t *testing.T) {
	h := newHarness(t, nil)
	g := h.reg.Guild("g1")
	h.resolver.breakStream("broken")

	_, err := h.queue.Enqueue(context.Background(), track.QueueEntry{
		GuildID:   "g1",
		Track:     track.Track{Title: "broken", CanonicalURL: urlFor("broken")},
		Requester: requester(),
	})
	require.NoError(t, err)

	h.play(t, g, "good")
	s := waitFor(t, g, playing("good"))
	assert.Empty(t, s.Queue)

	require.Eventually(t, func() bool {
		for _, m := range h.notifier.all() {
			if m == "text-1|Could not play **broken**" {
				return true
			}
		}
		return false
	}, time.Second, 5*time.Millisecond)
}

func TestGuild_FailureBreaker(t *testing.T) {
	h := newHarness(t, func(cfg *Config, deps *Deps) {
		cfg.MaxConsecutiveFailures = 3
	})
	g := h.reg.Guild("g1")

	for _, title := range []string{"t1", "t2", "t3", "t4", "t5"} {
		h.resolver.breakStream(title)
	}
	for _, title := range []string{"t1", "t2", "t3", "t4"} {
		_, err := h.queue.Enqueue(context.Background(), track.QueueEntry{
			GuildID:   "g1",
			Track:     track.Track{Title: title, CanonicalURL: urlFor(title)},
			Requester: requester(),
		})
		require.NoError(t, err)
	}

	res := h.play(t, g, "t5")
	assert.True(t, res.Started)

	var tripped []string
	require.Eventually(t, func() bool {
		tripped = tripped[:0]
		for _, m := range h.notifier.all() {
			if strings.Contains(m, "consecutive failures") {
				tripped = append(tripped, m)
			}
		}
		return len(tripped) == 1
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, "text-1|Stopped playback after 3 consecutive failures", tripped[0])

	s := waitFor(t, g, func(s Snapshot) bool { return s.State == "idle" })
	assert.Nil(t, s.CurrentTrack)
	assert.Equal(t, []string{"t4", "t5"}, queueTitles(s))

	// The next play starts a fresh attempt rather than staying tripped.
	res = h.play(t, g, "fine")
	assert.True(t, res.Started)
	s = waitFor(t, g, playing("fine"))
	assert.Empty(t, s.Queue)
}

func hasMessage(h *harness, want string) bool {
	return slices.Contains(h.notifier.all(), want)
}

func TestGuild_DeadStreamCountsTowardBreaker(t *testing.T) {
	h := newHarness(t, func(cfg *Config, deps *Deps) {
		cfg.MaxConsecutiveFailures = 3
	})
	g := h.reg.Guild("g1")
	ctx := context.Background()

	for _, title := range []string{"d1", "d2", "d3", "d4"} {
		h.backend.kill(title)
	}
	for _, title := range []string{"d2", "d3", "d4"} {
		_, err := h.queue.Enqueue(ctx, track.QueueEntry{
			GuildID:   "g1",
			Track:     track.Track{Title: title, CanonicalURL: urlFor(title)},
			Requester: requester(),
		})
		require.NoError(t, err)
	}
	require.NoError(t, g.SetLoop(ctx, true))

	res := h.play(t, g, "d1")
	assert.True(t, res.Started)

	require.Eventually(t, func() bool {
		return hasMessage(h, "text-1|Stopped playback after 3 consecutive failures")
	}, time.Second, 5*time.Millisecond)
	assert.True(t, hasMessage(h, "text-1|Could not play **d2**"))

	s := waitFor(t, g, func(s Snapshot) bool { return s.State == "idle" })
	assert.Nil(t, s.CurrentTrack)
	assert.True(t, s.Looping)
	assert.Equal(t, []string{"d1"}, queueTitles(s))
	assert.Equal(t, 3, h.backend.startCount())
	assert.Equal(t, 3, h.resolver.streamCount())
}

func TestGuild_DeadStreamIsNotLooped(t *testing.T) {
	h := newHarness(t, nil)
	g := h.reg.Guild("g1")
	ctx := context.Background()

	h.backend.kill("dead")
	require.NoError(t, g.SetLoop(ctx, true))
	h.play(t, g, "dead")

	require.Eventually(t, func() bool {
		return hasMessage(h, "text-1|Could not play **dead**")
	}, time.Second, 5*time.Millisecond)

	s := waitFor(t, g, func(s Snapshot) bool { return s.State == "idle" })
	assert.Empty(t, s.Queue)
	require.Never(t, func() bool {
		return h.backend.startCount() > 1
	}, 100*time.Millisecond, 10*time.Millisecond)
}

func TestGuild_CompletionBeforeLoadResult(t *testing.T) {
	h := newHarness(t, nil)
	g := h.reg.Guild("g1")
	ctx := context.Background()

	release := h.resolver.hold(t)
	h.play(t, g, "A")

	// The backend hands out handle 1 next; its failure arrives before the load result.
	g.post(Completion{GuildID: "g1", Handle: 1, Err: errors.Mark(errors.New("exit status 1"), ErrBackendStartFailed)})
	s, err := g.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, "loading", s.State)

	release()
	require.Eventually(t, func() bool {
		return hasMessage(h, "text-1|Could not play **A**")
	}, time.Second, 5*time.Millisecond)

	s = waitFor(t, g, func(s Snapshot) bool { return s.State == "idle" })
	assert.Nil(t, s.CurrentTrack)
	assert.Equal(t, Handle(1), h.backend.last())
	assert.False(t, hasMessage(h, "text-1|Now playing **A**"))
}

func TestGuild_StopWhileLoadingDiscardsLateStream(t *testing.T) {
	h := newHarness(t, nil)
	g := h.reg.Guild("g1")
	ctx := context.Background()

	release := h.resolver.hold(t)
	h.play(t, g, "A")

	s, err := g.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, "loading", s.State)

	_, err = g.Skip(ctx)
	requireCode(t, err, CodeNotPlaying)
	assert.ErrorIs(t, err, ErrNotPlaying)

	require.NoError(t, g.Stop(ctx, false))
	release()

	require.Eventually(t, func() bool {
		return h.backend.startCount() == 1 && slices.Contains(h.backend.stoppedHandles(), h.backend.last())
	}, time.Second, 5*time.Millisecond)

	s, err = g.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, "idle", s.State)
	assert.Nil(t, s.CurrentTrack)
	assert.False(t, s.IsPlaying)
}

func TestGuild_PlayAfterStopWaitsForDisconnect(t *testing.T) {
	h := newHarness(t, nil)
	g := h.reg.Guild("g1")
	ctx := context.Background()

	h.play(t, g, "A")
	waitFor(t, g, playing("A"))

	hold := make(chan struct{})
	var once sync.Once
	release := func() { once.Do(func() { close(hold) }) }
	t.Cleanup(release)
	h.connector.mu.Lock()
	h.connector.hold = hold
	h.connector.mu.Unlock()

	require.NoError(t, g.Stop(ctx, true))

	played := make(chan error, 1)
	go func() {
		_, err := g.Play(ctx, PlayRequest{Query: "B", Requester: requester(), ChannelID: "voice-1"})
		played <- err
	}()

	require.Never(t, func() bool {
		return h.connector.count() > 1
	}, 100*time.Millisecond, 10*time.Millisecond)

	release()
	select {
	case err := <-played:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("play did not return after the disconnect finished")
	}

	waitFor(t, g, playing("B"))
	assert.Equal(t, []string{"connect", "disconnect", "connect"}, h.connector.callLog())
}

func TestGuild_NotResponsive(t *testing.T) {
	bq := &blockingQueue{memQueue: &memQueue{}, release: make(chan struct{})}
	h := newHarness(t, func(cfg *Config, deps *Deps) {
		cfg.CommandTimeout = 50 * time.Millisecond
		deps.Queue = bq
	})
	t.Cleanup(func() { close(bq.release) })
	g := h.reg.Guild("g1")

	err := g.Shuffle(context.Background())
	requireCode(t, err, CodeNotResponsive)
	assert.ErrorIs(t, err, ErrNotResponsive)

	// The actor is still stuck, so the next command times out too.
	requireCode(t, g.Pause(context.Background()), CodeNotResponsive)
}

func TestGuild_RemoveAndList(t *testing.T) {
	h := newHarness(t, nil)
	g := h.reg.Guild("g1")
	ctx := context.Background()

	h.play(t, g, "A")
	waitFor(t, g, playing("A"))
	b := h.play(t, g, "B")
	h.play(t, g, "C")

	list, err := g.List(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, StatePlaying, list.State)
	require.NotNil(t, list.Current)
	assert.Equal(t, "A", list.Current.Track.Title)
	require.Len(t, list.Entries, 1)
	assert.Equal(t, "B", list.Entries[0].Track.Title)
	assert.Equal(t, 2, list.Total)

	removed, err := g.Remove(ctx, b.Entry.ID)
	require.NoError(t, err)
	assert.True(t, removed)

	removed, err = g.Remove(ctx, 9999)
	require.NoError(t, err)
	assert.False(t, removed)

	s, err := g.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"C"}, queueTitles(s))
}

func TestGuild_ShuffleKeepsEntries(t *testing.T) {
	h := newHarness(t, nil)
	g := h.reg.Guild("g1")
	ctx := context.Background()

	h.play(t, g, "A")
	waitFor(t, g, playing("A"))
	for _, q := range []string{"B", "C", "D", "E"} {
		h.play(t, g, q)
	}

	require.NoError(t, g.Shuffle(ctx))

	list, err := g.List(ctx, 0)
	require.NoError(t, err)
	require.Len(t, list.Entries, 4)
	titles := make([]string, 0, 4)
	for i, e := range list.Entries {
		assert.Equal(t, int64(i+1), e.Position)
		titles = append(titles, e.Track.Title)
	}
	assert.ElementsMatch(t, []string{"B", "C", "D", "E"}, titles)
}

func TestGuild_Events(t *testing.T) {
	h := newHarness(t, nil)
	g := h.reg.Guild("g1")

	h.play(t, g, "A")

	var seen []EventType
	require.Eventually(t, func() bool {
		for {
			select {
			case ev := <-h.reg.Events():
				assert.Equal(t, "g1", ev.GuildID)
				seen = append(seen, ev.Type)
			default:
				for _, et := range seen {
					if et == EventTrackStarted {
						return true
					}
				}
				return false
			}
		}
	}, time.Second, 5*time.Millisecond)
	assert.Contains(t, seen, EventQueueChanged)
}
