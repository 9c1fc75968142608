package playback

import (
	"context"
	"fmt"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/groovebox/internal/app/filter"
	"github.com/osa030/groovebox/internal/app/resolver"
	"github.com/osa030/groovebox/internal/domain/track"
)

// Guild is the playback driver for one guild.
// All fields below the mailbox are owned by the run goroutine.
type Guild struct {
	id     string
	cfg    Config
	deps   Deps
	pool   *Pool
	events chan<- Event
	ctx    context.Context
	inbox  chan any

	state      State
	current    *track.QueueEntry // Bound to the attached backend handle
	loading    *track.QueueEntry // Popped entry waiting for its stream
	handle     Handle
	loadSeq    uint64 // Bumped on every load and on stop; stale loads are discarded
	looping    bool
	volume     float64
	conn       Connection
	failures   int    // Consecutive advancement failures
	lastNotify string // Last known notify target

	early        map[Handle]Completion // Completions that beat their load result
	disconnected chan struct{}         // Closed once the last requested disconnect returns
}

type command struct {
	name  string
	fn    func(ctx context.Context) (any, error)
	reply chan result
}

type result struct {
	value any
	err   error
}

type playRequest struct {
	ctx   context.Context
	req   PlayRequest
	reply chan result
}

type playResolved struct {
	ctx   context.Context
	req   PlayRequest
	conn  Connection
	track *track.Track
	err   error
	reply chan result
}

type loaded struct {
	seq    uint64
	entry  track.QueueEntry
	stream *track.StreamHandle
	handle Handle
	volume float64
	err    error
}

func newGuild(ctx context.Context, id string, cfg Config, deps Deps, pool *Pool, events chan<- Event) *Guild {
	return &Guild{
		id:     id,
		cfg:    cfg,
		deps:   deps,
		pool:   pool,
		events: events,
		ctx:    ctx,
		inbox:  make(chan any, 16),
		state:  StateIdle,
		volume: clampVolume(cfg.DefaultVolume),
		early:  make(map[Handle]Completion),
	}
}

// ID returns the guild id.
func (g *Guild) ID() string {
	return g.id
}

func (g *Guild) run() {
	zlog.Debug().Msgf("playback: guild actor started: guild=%s", g.id)
	for {
		select {
		case <-g.ctx.Done():
			zlog.Debug().Msgf("playback: guild actor stopped: guild=%s", g.id)
			return
		case m := <-g.inbox:
			g.dispatch(m)
		}
	}
}

func (g *Guild) dispatch(m any) {
	switch m := m.(type) {
	case *command:
		v, err := m.fn(g.ctx)
		m.reply <- result{value: v, err: err}
	case *playRequest:
		g.handlePlay(m)
	case *playResolved:
		g.handlePlayResolved(m)
	case *loaded:
		g.handleLoaded(m)
	case Completion:
		g.handleCompletion(m)
	default:
		zlog.Error().Msgf("playback: unknown message: guild=%s type=%T", g.id, m)
	}
}

// post re-enters the actor from a worker or the bridge consumer.
func (g *Guild) post(m any) {
	select {
	case g.inbox <- m:
	case <-g.ctx.Done():
	}
}

// submit runs fn on the actor and waits for its reply, bounded by the command timeout.
func (g *Guild) submit(ctx context.Context, name string, fn func(ctx context.Context) (any, error)) (any, error) {
	ctx, cancel := context.WithTimeout(ctx, g.cfg.CommandTimeout)
	defer cancel()

	cmd := &command{name: name, fn: fn, reply: make(chan result, 1)}
	select {
	case g.inbox <- cmd:
	case <-ctx.Done():
		return nil, g.notResponsive(name, ctx.Err())
	}

	select {
	case r := <-cmd.reply:
		return r.value, failure(r.err)
	case <-ctx.Done():
		return nil, g.notResponsive(name, ctx.Err())
	}
}

func (g *Guild) notResponsive(name string, cause error) error {
	zlog.Warn().Msgf("playback: command timed out: guild=%s command=%s error=%v", g.id, name, cause)
	return NewFailure(errors.Mark(errors.Wrapf(cause, "%s", name), ErrNotResponsive))
}

// failure tags err for control surfaces, keeping nil as a nil interface.
func failure(err error) error {
	if err == nil {
		return nil
	}
	return NewFailure(err)
}

// emit sends an event without blocking.
func (g *Guild) emit(t EventType, e *track.QueueEntry) {
	if g.events == nil {
		return
	}
	select {
	case g.events <- Event{Type: t, GuildID: g.id, Entry: e, State: g.state}:
	default:
		zlog.Debug().Msgf("playback: event dropped: guild=%s type=%s", g.id, t)
	}
}

// notify sends a chat message off the actor.
func (g *Guild) notify(targetID, message string) {
	if g.deps.Notifier == nil || targetID == "" {
		return
	}
	ctx := g.ctx
	g.pool.Go(func() {
		if err := g.deps.Notifier.Notify(ctx, targetID, message); err != nil {
			zlog.Warn().Msgf("playback: notify failed: guild=%s target=%s error=%v", g.id, targetID, err)
		}
	})
}

func (g *Guild) handlePlay(m *playRequest) {
	req := m.req
	conn := g.conn
	needConnect := req.ChannelID != "" && (conn == nil || conn.ChannelID() != req.ChannelID)
	if !needConnect && conn == nil {
		m.reply <- result{err: errors.Mark(errors.New("requester is not in a voice channel"), ErrConnectionFailed)}
		return
	}

	ctx := m.ctx
	// A join must not overtake a disconnect requested by an earlier stop.
	g.pool.After(g.disconnected, func() {
		out := &playResolved{ctx: ctx, req: req, reply: m.reply}
		if needConnect {
			c, err := g.deps.Connector.Connect(ctx, g.id, req.ChannelID)
			if err != nil {
				out.err = errors.Mark(errors.Wrapf(err, "failed to join channel %s", req.ChannelID), ErrConnectionFailed)
				g.post(out)
				return
			}
			out.conn = c
		}
		out.track, out.err = g.deps.Resolver.Resolve(ctx, req.Query)
		g.post(out)
	})
}

func (g *Guild) handlePlayResolved(m *playResolved) {
	if m.conn != nil {
		g.conn = m.conn
		zlog.Info().Msgf("playback: voice attached: guild=%s channel=%s", g.id, m.conn.ChannelID())
	}
	if m.err == nil && m.track == nil {
		m.err = errors.Mark(errors.Newf("nothing found for %q", m.req.Query), resolver.ErrResolutionFailed)
	}
	if m.err != nil {
		zlog.Info().Msgf("playback: play failed: guild=%s query=%q error=%v", g.id, m.req.Query, m.err)
		m.reply <- result{err: m.err}
		return
	}

	queued, err := g.deps.Queue.Peek(g.ctx, g.id, 0)
	if err != nil {
		m.reply <- result{err: err}
		return
	}

	if g.deps.Admission != nil {
		current := g.current
		if current == nil {
			current = g.loading
		}
		res := g.deps.Admission.Execute(m.ctx, filter.Request{
			GuildID:   g.id,
			Requester: m.req.Requester,
			Track:     *m.track,
			Current:   current,
			Queued:    queued,
		})
		if !res.Accepted {
			m.reply <- result{err: rejection(res.Code)}
			return
		}
	}

	entry, err := g.deps.Queue.Enqueue(g.ctx, track.QueueEntry{
		GuildID:   g.id,
		Track:     *m.track,
		Requester: m.req.Requester,
		AddedAt:   time.Now(),
	})
	if err != nil {
		m.reply <- result{err: err}
		return
	}
	g.lastNotify = m.req.Requester.NotifyTargetID

	res := PlayResult{
		Entry:    entry,
		Position: len(queued) + 1,
		Started:  g.state == StateIdle,
	}
	zlog.Info().Msgf("playback: queued: guild=%s id=%d title=%s position=%d state=%s",
		g.id, entry.ID, entry.Track.Title, res.Position, g.state)
	g.emit(EventQueueChanged, &entry)

	if res.Started {
		g.failures = 0
		g.advance(nil)
	}
	m.reply <- result{value: res}
}

// advance moves to the next entry. finished is the entry whose stream just ended, if any.
// Each call pops at most one entry; load failures re-enter through handleLoaded.
func (g *Guild) advance(finished *track.QueueEntry) {
	if g.looping && finished != nil {
		again := *finished
		again.ID = 0
		again.Position = 0
		again.AddedAt = time.Now()
		if _, err := g.deps.Queue.Enqueue(g.ctx, again); err != nil {
			zlog.Warn().Msgf("playback: loop re-enqueue failed: guild=%s title=%s error=%v", g.id, finished.Track.Title, err)
		}
	}

	next, err := g.deps.Queue.DequeueFront(g.ctx, g.id)
	if err != nil {
		zlog.Error().Msgf("playback: dequeue failed: guild=%s error=%v", g.id, err)
		g.toIdle()
		g.notify(g.lastNotify, "The queue is unavailable right now.")
		return
	}
	if next == nil {
		zlog.Info().Msgf("playback: queue empty, going idle: guild=%s", g.id)
		g.toIdle()
		g.emit(EventQueueChanged, nil)
		return
	}

	if next.Requester.NotifyTargetID != "" {
		g.lastNotify = next.Requester.NotifyTargetID
	}
	g.state = StateLoading
	g.loading = next
	g.loadSeq++
	g.emit(EventQueueChanged, next)
	g.load(g.loadSeq, *next)
}

// load resolves a fresh stream and starts the backend on the pool.
func (g *Guild) load(seq uint64, entry track.QueueEntry) {
	ctx := g.ctx
	conn := g.conn
	volume := g.volume
	zlog.Debug().Msgf("playback: loading: guild=%s id=%d title=%s", g.id, entry.ID, entry.Track.Title)

	g.pool.Go(func() {
		out := &loaded{seq: seq, entry: entry, volume: volume}
		defer func() { g.post(out) }()

		stream, err := g.deps.Resolver.ResolveStream(ctx, entry.Track.CanonicalURL)
		if err != nil {
			out.err = err
			return
		}
		out.stream = stream
		if conn == nil {
			out.err = errors.Mark(errors.New("no voice connection"), ErrConnectionFailed)
			return
		}
		h, err := g.deps.Backend.Start(ctx, conn, stream.StreamURL, volume)
		if err != nil {
			out.err = errors.Mark(errors.Wrap(err, "backend start"), ErrBackendStartFailed)
			return
		}
		out.handle = h
	})
}

func (g *Guild) handleLoaded(m *loaded) {
	if m.seq != g.loadSeq || g.state != StateLoading {
		if m.err == nil {
			g.deps.Backend.Stop(m.handle)
			delete(g.early, m.handle)
		}
		zlog.Debug().Msgf("playback: discarded stale load: guild=%s id=%d", g.id, m.entry.ID)
		return
	}
	g.loading = nil

	if m.err != nil {
		g.fail(m.entry, m.err)
		return
	}

	entry := m.entry
	if m.stream != nil {
		if !entry.Track.HasDuration() && m.stream.Duration > 0 {
			entry.Track.Duration = m.stream.Duration
		}
		if entry.Track.ThumbnailURL == "" {
			entry.Track.ThumbnailURL = m.stream.ThumbnailURL
		}
	}

	g.current = &entry
	g.handle = m.handle
	g.state = StatePlaying
	zlog.Info().Msgf("playback: started: guild=%s id=%d title=%s handle=%d", g.id, entry.ID, entry.Track.Title, g.handle)

	c, ended := g.early[m.handle]
	clear(g.early)
	if ended {
		g.complete(c)
		return
	}
	if g.volume != m.volume {
		g.deps.Backend.SetVolume(g.handle, g.volume)
	}
	g.emit(EventTrackStarted, &entry)
	g.notify(entry.Requester.NotifyTargetID, fmt.Sprintf("Now playing **%s**", entry.Track.Title))
}

func (g *Guild) handleCompletion(c Completion) {
	if g.current == nil || c.Handle != g.handle {
		if g.state == StateLoading {
			// The stream may end before its load result arrives.
			g.early[c.Handle] = c
		}
		zlog.Debug().Msgf("playback: ignored stale completion: guild=%s handle=%d attached=%d", g.id, c.Handle, g.handle)
		return
	}
	g.complete(c)
}

// complete handles the end of the attached stream. A stream that never produced
// audio counts as an advancement failure and is not looped.
func (g *Guild) complete(c Completion) {
	if errors.Is(c.Err, ErrBackendStartFailed) {
		failed := *g.current
		g.current = nil
		g.handle = 0
		g.fail(failed, c.Err)
		return
	}
	if c.Err != nil {
		zlog.Warn().Msgf("playback: stream ended with error: guild=%s title=%s error=%v", g.id, g.current.Track.Title, c.Err)
	}
	g.failures = 0
	g.finish()
}

// fail drops entry after a failed advancement and moves on, going idle once
// MaxConsecutiveFailures is reached.
func (g *Guild) fail(entry track.QueueEntry, err error) {
	g.failures++
	zlog.Warn().Msgf("playback: advance failed: guild=%s id=%d title=%s failures=%d/%d error=%v",
		g.id, entry.ID, entry.Track.Title, g.failures, g.cfg.MaxConsecutiveFailures, err)
	g.emit(EventTrackFailed, &entry)
	g.notify(entry.Requester.NotifyTargetID, fmt.Sprintf("Could not play **%s**", entry.Track.Title))

	if g.failures >= g.cfg.MaxConsecutiveFailures {
		zlog.Error().Msgf("playback: too many consecutive failures, going idle: guild=%s failures=%d", g.id, g.failures)
		g.toIdle()
		g.emit(EventBreakerTripped, nil)
		g.notify(g.lastNotify, fmt.Sprintf("Stopped playback after %d consecutive failures", g.failures))
		g.failures = 0
		return
	}
	g.advance(nil)
}

// finish detaches the current entry and advances.
func (g *Guild) finish() {
	finished := g.current
	g.current = nil
	g.handle = 0
	zlog.Debug().Msgf("playback: finished: guild=%s title=%s looping=%t", g.id, finished.Track.Title, g.looping)
	g.emit(EventTrackEnded, finished)
	g.advance(finished)
}

func (g *Guild) toIdle() {
	g.state = StateIdle
	g.current = nil
	g.loading = nil
	g.handle = 0
	clear(g.early)
}

func clampVolume(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
