package playback

import (
	"context"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/groovebox/internal/domain/track"
)

// PlayRequest asks the driver to resolve and queue a track.
type PlayRequest struct {
	Query     string
	Requester track.Requester
	ChannelID string // Requester's voice channel; empty keeps the current connection
}

// PlayResult describes a queued track.
type PlayResult struct {
	Entry    track.QueueEntry
	Position int  // 1-based place in the queue at insertion
	Started  bool // The guild was idle, so playback starts now
}

// ListResult is a view of the current track and the head of the queue.
type ListResult struct {
	State   State
	Current *track.QueueEntry
	Entries []track.QueueEntry
	Total   int
	Looping bool
	Volume  float64
}

// VolumeFromPercent converts a 0-100 control value to a clamped volume.
func VolumeFromPercent(percent float64) float64 {
	return clampVolume(percent / 100)
}

// Play resolves req.Query, queues the result and starts playback when idle.
// Handing the request to the actor is bounded by the command timeout; the
// resolution itself is bounded only by ctx.
func (g *Guild) Play(ctx context.Context, req PlayRequest) (PlayResult, error) {
	m := &playRequest{ctx: ctx, req: req, reply: make(chan result, 1)}

	accept, cancel := context.WithTimeout(ctx, g.cfg.CommandTimeout)
	defer cancel()
	select {
	case g.inbox <- m:
	case <-accept.Done():
		return PlayResult{}, g.notResponsive("play", accept.Err())
	}

	select {
	case r := <-m.reply:
		if r.err != nil {
			return PlayResult{}, failure(r.err)
		}
		return r.value.(PlayResult), nil
	case <-ctx.Done():
		return PlayResult{}, g.notResponsive("play", ctx.Err())
	}
}

// Pause pauses the current track. Only valid while playing.
func (g *Guild) Pause(ctx context.Context) error {
	_, err := g.submit(ctx, "pause", func(ctx context.Context) (any, error) {
		if g.state != StatePlaying {
			return nil, errors.Wrapf(ErrNotPlaying, "pause in state %s", g.state)
		}
		if err := g.deps.Backend.Pause(g.handle); err != nil {
			return nil, errors.Mark(errors.Wrap(err, "backend pause"), ErrBackendStartFailed)
		}
		g.state = StatePaused
		zlog.Info().Msgf("playback: paused: guild=%s title=%s", g.id, g.current.Track.Title)
		g.emit(EventStateChanged, g.current)
		return nil, nil
	})
	return err
}

// Resume resumes a paused track. Only valid while paused.
func (g *Guild) Resume(ctx context.Context) error {
	_, err := g.submit(ctx, "resume", func(ctx context.Context) (any, error) {
		if g.state != StatePaused {
			return nil, errors.Wrapf(ErrNotPaused, "resume in state %s", g.state)
		}
		if err := g.deps.Backend.Resume(g.handle); err != nil {
			return nil, errors.Mark(errors.Wrap(err, "backend resume"), ErrBackendStartFailed)
		}
		g.state = StatePlaying
		zlog.Info().Msgf("playback: resumed: guild=%s title=%s", g.id, g.current.Track.Title)
		g.emit(EventStateChanged, g.current)
		return nil, nil
	})
	return err
}

// Skip stops the current track and advances. A looped track rejoins the tail.
// It returns the skipped entry.
func (g *Guild) Skip(ctx context.Context) (*track.QueueEntry, error) {
	v, err := g.submit(ctx, "skip", func(ctx context.Context) (any, error) {
		switch g.state {
		case StatePlaying, StatePaused:
		case StateLoading:
			return nil, errors.Wrap(ErrNotPlaying, "skip while loading")
		default:
			return nil, errors.Wrap(ErrNoTrack, "skip")
		}
		skipped := *g.current
		zlog.Info().Msgf("playback: skipped: guild=%s title=%s", g.id, skipped.Track.Title)
		// The backend's own completion for this handle arrives later and is ignored as stale.
		g.deps.Backend.Stop(g.handle)
		g.finish()
		return &skipped, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*track.QueueEntry), nil
}

// Stop halts playback, clears looping and empties the queue. Safe in any state.
// With disconnect set the voice connection is released too.
func (g *Guild) Stop(ctx context.Context, disconnect bool) error {
	_, err := g.submit(ctx, "stop", func(ctx context.Context) (any, error) {
		wasIdle := g.state == StateIdle
		if g.current != nil {
			g.deps.Backend.Stop(g.handle)
		}
		g.loadSeq++
		g.looping = false
		g.failures = 0
		g.toIdle()

		if disconnect && g.conn != nil {
			g.conn = nil
			guildID := g.id
			done := make(chan struct{})
			g.disconnected = done
			g.pool.Go(func() {
				defer close(done)
				if err := g.deps.Connector.Disconnect(ctx, guildID); err != nil {
					zlog.Warn().Msgf("playback: disconnect failed: guild=%s error=%v", guildID, err)
				}
			})
		}

		zlog.Info().Msgf("playback: stopped: guild=%s was_idle=%t disconnect=%t", g.id, wasIdle, disconnect)
		g.emit(EventStopped, nil)
		return nil, g.deps.Queue.Clear(ctx, g.id)
	})
	return err
}

// SetLoop turns looping on or off.
func (g *Guild) SetLoop(ctx context.Context, enabled bool) error {
	_, err := g.submit(ctx, "loop", func(ctx context.Context) (any, error) {
		g.looping = enabled
		zlog.Info().Msgf("playback: looping: guild=%s enabled=%t", g.id, enabled)
		g.emit(EventStateChanged, g.current)
		return nil, nil
	})
	return err
}

// Shuffle randomly reorders the queue.
func (g *Guild) Shuffle(ctx context.Context) error {
	_, err := g.submit(ctx, "shuffle", func(ctx context.Context) (any, error) {
		if err := g.deps.Queue.Shuffle(ctx, g.id); err != nil {
			return nil, err
		}
		zlog.Info().Msgf("playback: shuffled: guild=%s", g.id)
		g.emit(EventQueueChanged, nil)
		return nil, nil
	})
	return err
}

// SetVolume clamps v to [0, 1], applies it live when a stream is attached and
// keeps it for the next play. It returns the applied volume.
func (g *Guild) SetVolume(ctx context.Context, v float64) (float64, error) {
	out, err := g.submit(ctx, "volume", func(ctx context.Context) (any, error) {
		g.volume = clampVolume(v)
		if g.current != nil {
			g.deps.Backend.SetVolume(g.handle, g.volume)
		}
		zlog.Info().Msgf("playback: volume: guild=%s volume=%.2f live=%t", g.id, g.volume, g.current != nil)
		g.emit(EventStateChanged, g.current)
		return g.volume, nil
	})
	if err != nil {
		return 0, err
	}
	return out.(float64), nil
}

// Remove deletes a queued entry. Removing an absent id is a no-op that reports false.
func (g *Guild) Remove(ctx context.Context, id int64) (bool, error) {
	out, err := g.submit(ctx, "remove", func(ctx context.Context) (any, error) {
		removed, err := g.deps.Queue.RemoveByID(ctx, g.id, id)
		if err != nil {
			return false, err
		}
		if removed {
			zlog.Info().Msgf("playback: removed: guild=%s id=%d", g.id, id)
			g.emit(EventQueueChanged, nil)
		}
		return removed, nil
	})
	if err != nil {
		return false, err
	}
	return out.(bool), nil
}

// List returns the current track and up to limit queued entries (all when limit <= 0).
func (g *Guild) List(ctx context.Context, limit int) (ListResult, error) {
	out, err := g.submit(ctx, "list", func(ctx context.Context) (any, error) {
		entries, err := g.deps.Queue.Peek(ctx, g.id, limit)
		if err != nil {
			return nil, err
		}
		total, err := g.deps.Queue.Count(ctx, g.id)
		if err != nil {
			return nil, err
		}
		res := ListResult{
			State:   g.state,
			Entries: entries,
			Total:   total,
			Looping: g.looping,
			Volume:  g.volume,
		}
		if g.current != nil {
			current := *g.current
			res.Current = &current
		}
		return res, nil
	})
	if err != nil {
		return ListResult{}, err
	}
	return out.(ListResult), nil
}

// Snapshot returns the dashboard view of the guild.
func (g *Guild) Snapshot(ctx context.Context) (Snapshot, error) {
	out, err := g.submit(ctx, "snapshot", func(ctx context.Context) (any, error) {
		entries, err := g.deps.Queue.Peek(ctx, g.id, 0)
		if err != nil {
			return nil, err
		}
		return newSnapshot(g.id, g.state, g.current, entries, g.volume, g.looping), nil
	})
	if err != nil {
		return Snapshot{}, err
	}
	return out.(Snapshot), nil
}
