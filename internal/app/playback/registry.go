package playback

import (
	"context"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/groovebox/internal/infra/config"
)

// Registry owns one Guild actor per guild, created lazily on first use.
type Registry struct {
	mu     sync.Mutex
	guilds map[string]*Guild

	cfg    Config
	deps   Deps
	pool   *Pool
	bridge *Bridge
	events chan Event
	ready  atomic.Bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// ConfigFromSettings maps the playback settings onto a driver Config.
func ConfigFromSettings(p config.PlaybackConfig) Config {
	return Config{
		DefaultVolume:          p.DefaultVolume,
		MaxConsecutiveFailures: p.MaxConsecutiveFailures,
		CommandTimeout:         p.CommandTimeout(),
		Workers:                p.Workers,
		CompletionBuffer:       p.CompletionBuffer,
		EventBuffer:            64,
	}
}

// NewRegistry creates a registry and starts the completion consumer.
func NewRegistry(cfg Config, deps Deps) *Registry {
	if cfg.MaxConsecutiveFailures < 1 {
		cfg.MaxConsecutiveFailures = 5
	}
	if cfg.CommandTimeout <= 0 {
		cfg.CommandTimeout = 5 * time.Second
	}
	if cfg.EventBuffer < 1 {
		cfg.EventBuffer = 64
	}

	bridge := deps.Bridge
	if bridge == nil {
		bridge = NewBridge(cfg.CompletionBuffer)
	}

	ctx, cancel := context.WithCancel(context.Background())
	r := &Registry{
		guilds: make(map[string]*Guild),
		cfg:    cfg,
		deps:   deps,
		pool:   NewPool(cfg.Workers),
		bridge: bridge,
		events: make(chan Event, cfg.EventBuffer),
		ctx:    ctx,
		cancel: cancel,
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.bridge.Run(ctx, r.route)
	}()
	return r
}

// Bridge returns the completion bridge backends post to.
func (r *Registry) Bridge() *Bridge {
	return r.bridge
}

// Events returns the event channel.
func (r *Registry) Events() <-chan Event {
	return r.events
}

// SetReady records whether the chat gateway is connected.
func (r *Registry) SetReady(ready bool) {
	r.ready.Store(ready)
}

// Ready reports whether the chat gateway is connected.
func (r *Registry) Ready() bool {
	return r.ready.Load()
}

// Guild returns the actor for guildID, creating it on first use.
func (r *Registry) Guild(guildID string) *Guild {
	r.mu.Lock()
	defer r.mu.Unlock()

	if g, ok := r.guilds[guildID]; ok {
		return g
	}
	g := newGuild(r.ctx, guildID, r.cfg, r.deps, r.pool, r.events)
	r.guilds[guildID] = g
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		g.run()
	}()
	zlog.Info().Msgf("playback: guild registered: guild=%s", guildID)
	return g
}

// Lookup returns the actor for guildID if it exists.
func (r *Registry) Lookup(guildID string) (*Guild, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	g, ok := r.guilds[guildID]
	return g, ok
}

// GuildIDs returns the known guild ids in sorted order.
func (r *Registry) GuildIDs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]string, 0, len(r.guilds))
	for id := range r.guilds {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Snapshot returns the dashboard state of a guild, including gateway readiness.
// A guild without an actor reads as idle and is not created.
func (r *Registry) Snapshot(ctx context.Context, guildID string) (Snapshot, error) {
	var (
		s   Snapshot
		err error
	)
	if g, ok := r.Lookup(guildID); ok {
		s, err = g.Snapshot(ctx)
	} else {
		s, err = r.idleSnapshot(ctx, guildID)
	}
	if err != nil {
		return Snapshot{}, err
	}
	s.BotReady = r.Ready()
	return s, nil
}

func (r *Registry) idleSnapshot(ctx context.Context, guildID string) (Snapshot, error) {
	entries, err := r.deps.Queue.Peek(ctx, guildID, 0)
	if err != nil {
		return Snapshot{}, failure(err)
	}
	return newSnapshot(guildID, StateIdle, nil, entries, clampVolume(r.cfg.DefaultVolume), false), nil
}

// idleList is List for a guild without an actor.
func (r *Registry) idleList(ctx context.Context, guildID string, limit int) (ListResult, error) {
	entries, err := r.deps.Queue.Peek(ctx, guildID, limit)
	if err != nil {
		return ListResult{}, failure(err)
	}
	total, err := r.deps.Queue.Count(ctx, guildID)
	if err != nil {
		return ListResult{}, failure(err)
	}
	return ListResult{
		State:   StateIdle,
		Entries: entries,
		Total:   total,
		Volume:  clampVolume(r.cfg.DefaultVolume),
	}, nil
}

// route delivers a completion into its guild's mailbox.
func (r *Registry) route(c Completion) {
	g, ok := r.Lookup(c.GuildID)
	if !ok {
		zlog.Warn().Msgf("playback: completion for unknown guild: guild=%s handle=%d", c.GuildID, c.Handle)
		return
	}
	g.post(c)
}

// Close stops every actor and the completion consumer and waits for them.
func (r *Registry) Close() {
	r.cancel()
	r.wg.Wait()
	r.pool.Wait()
}
