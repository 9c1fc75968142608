package playback

import (
	"context"
	"math/rand/v2"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/require"

	"github.com/osa030/groovebox/internal/app/filter"
	"github.com/osa030/groovebox/internal/app/resolver"
	"github.com/osa030/groovebox/internal/domain/track"
)

// memQueue is an in-memory Queue.
type memQueue struct {
	mu      sync.Mutex
	nextID  int64
	entries []track.QueueEntry
}

func (q *memQueue) Enqueue(ctx context.Context, e track.QueueEntry) (track.QueueEntry, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.nextID++
	e.ID = q.nextID
	e.Position = 1
	for _, x := range q.entries {
		if x.GuildID == e.GuildID && x.Position >= e.Position {
			e.Position = x.Position + 1
		}
	}
	q.entries = append(q.entries, e)
	return e, nil
}

func (q *memQueue) sorted(guildID string) []track.QueueEntry {
	var out []track.QueueEntry
	for _, e := range q.entries {
		if e.GuildID == guildID {
			out = append(out, e)
		}
	}
	slices.SortFunc(out, func(a, b track.QueueEntry) int { return int(a.Position - b.Position) })
	return out
}

func (q *memQueue) DequeueFront(ctx context.Context, guildID string) (*track.QueueEntry, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	s := q.sorted(guildID)
	if len(s) == 0 {
		return nil, nil
	}
	front := s[0]
	q.entries = slices.DeleteFunc(q.entries, func(e track.QueueEntry) bool { return e.ID == front.ID })
	return &front, nil
}

func (q *memQueue) Peek(ctx context.Context, guildID string, n int) ([]track.QueueEntry, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	s := q.sorted(guildID)
	if n > 0 && len(s) > n {
		s = s[:n]
	}
	return s, nil
}

func (q *memQueue) Count(ctx context.Context, guildID string) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.sorted(guildID)), nil
}

func (q *memQueue) RemoveByID(ctx context.Context, guildID string, id int64) (bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	before := len(q.entries)
	q.entries = slices.DeleteFunc(q.entries, func(e track.QueueEntry) bool { return e.GuildID == guildID && e.ID == id })
	return len(q.entries) < before, nil
}

func (q *memQueue) Shuffle(ctx context.Context, guildID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	s := q.sorted(guildID)
	perm := rand.Perm(len(s))
	for i := range q.entries {
		if q.entries[i].GuildID != guildID {
			continue
		}
		idx := slices.IndexFunc(s, func(e track.QueueEntry) bool { return e.ID == q.entries[i].ID })
		q.entries[i].Position = int64(perm[idx] + 1)
	}
	return nil
}

func (q *memQueue) Clear(ctx context.Context, guildID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.entries = slices.DeleteFunc(q.entries, func(e track.QueueEntry) bool { return e.GuildID == guildID })
	return nil
}

// blockingQueue stalls Shuffle until released.
type blockingQueue struct {
	*memQueue
	release chan struct{}
}

func (q *blockingQueue) Shuffle(ctx context.Context, guildID string) error {
	<-q.release
	return nil
}

// fakeResolver turns a query into a track titled by the query.
type fakeResolver struct {
	mu         sync.Mutex
	unknown    map[string]bool // Queries with no result
	badStreams map[string]bool // Canonical URLs without a playable stream
	streams    int
	gate       chan struct{} // When set, ResolveStream waits for it to close
}

func newFakeResolver() *fakeResolver {
	return &fakeResolver{unknown: map[string]bool{}, badStreams: map[string]bool{}}
}

func urlFor(title string) string {
	return "https://media.example/" + title
}

func (r *fakeResolver) Resolve(ctx context.Context, query string) (*track.Track, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.unknown[query] {
		return nil, errors.Mark(errors.Newf("nothing for %q", query), resolver.ErrResolutionFailed)
	}
	return &track.Track{Title: query, CanonicalURL: urlFor(query), Duration: 3 * time.Minute}, nil
}

func (r *fakeResolver) ResolveStream(ctx context.Context, canonicalURL string) (*track.StreamHandle, error) {
	r.mu.Lock()
	gate := r.gate
	r.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.streams++
	if r.badStreams[canonicalURL] {
		return nil, errors.Mark(errors.Newf("gone: %s", canonicalURL), resolver.ErrStreamResolutionFailed)
	}
	return &track.StreamHandle{StreamURL: canonicalURL + "?stream"}, nil
}

// hold makes ResolveStream block until the returned func is called.
func (r *fakeResolver) hold(t *testing.T) (release func()) {
	gate := make(chan struct{})
	r.mu.Lock()
	r.gate = gate
	r.mu.Unlock()
	var once sync.Once
	release = func() { once.Do(func() { close(gate) }) }
	t.Cleanup(release)
	return release
}

func (r *fakeResolver) streamCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.streams
}

func (r *fakeResolver) breakStream(title string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.badStreams[urlFor(title)] = true
}

// fakeBackend hands out handles and, like a real backend, reports a completion when stopped.
type fakeBackend struct {
	mu      sync.Mutex
	bridge  *Bridge
	next    Handle
	guilds  map[Handle]string
	started []string
	stopped []Handle
	paused  []Handle
	volumes map[Handle]float64
	dead    map[string]bool // Stream URLs that end before producing audio
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{guilds: map[Handle]string{}, volumes: map[Handle]float64{}, dead: map[string]bool{}}
}

func (b *fakeBackend) Start(ctx context.Context, conn Connection, streamURL string, volume float64) (Handle, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.next++
	b.guilds[b.next] = conn.GuildID()
	b.started = append(b.started, streamURL)
	b.volumes[b.next] = volume
	if b.dead[streamURL] && b.bridge != nil {
		h, guildID, bridge := b.next, conn.GuildID(), b.bridge
		go bridge.Post(Completion{GuildID: guildID, Handle: h, Err: errors.Mark(errors.New("exit status 1"), ErrBackendStartFailed)})
	}
	return b.next, nil
}

// kill makes the stream for title end before its first frame.
func (b *fakeBackend) kill(title string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.dead[urlFor(title)+"?stream"] = true
}

func (b *fakeBackend) startCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.started)
}

func (b *fakeBackend) Stop(h Handle) {
	b.mu.Lock()
	b.stopped = append(b.stopped, h)
	guildID := b.guilds[h]
	bridge := b.bridge
	b.mu.Unlock()
	if bridge != nil && guildID != "" {
		go bridge.Post(Completion{GuildID: guildID, Handle: h})
	}
}

func (b *fakeBackend) Pause(h Handle) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.paused = append(b.paused, h)
	return nil
}

func (b *fakeBackend) Resume(h Handle) error {
	return nil
}

func (b *fakeBackend) SetVolume(h Handle, volume float64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.volumes[h] = volume
}

// finish simulates the natural end of the stream behind h.
func (b *fakeBackend) finish(h Handle) {
	b.mu.Lock()
	guildID := b.guilds[h]
	bridge := b.bridge
	b.mu.Unlock()
	bridge.Post(Completion{GuildID: guildID, Handle: h})
}

func (b *fakeBackend) last() Handle {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.next
}

func (b *fakeBackend) stoppedHandles() []Handle {
	b.mu.Lock()
	defer b.mu.Unlock()
	return slices.Clone(b.stopped)
}

func (b *fakeBackend) volume(h Handle) float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.volumes[h]
}

type fakeConn struct {
	guildID   string
	channelID string
}

func (c *fakeConn) GuildID() string   { return c.guildID }
func (c *fakeConn) ChannelID() string { return c.channelID }

type fakeConnector struct {
	mu           sync.Mutex
	fail         bool
	connects     int
	disconnected []string
	calls        []string
	hold         chan struct{} // When set, Disconnect waits for it to close
}

func (c *fakeConnector) Connect(ctx context.Context, guildID, channelID string) (Connection, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fail {
		return nil, errors.New("missing permissions")
	}
	c.connects++
	c.calls = append(c.calls, "connect")
	return &fakeConn{guildID: guildID, channelID: channelID}, nil
}

func (c *fakeConnector) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connects
}

func (c *fakeConnector) Disconnect(ctx context.Context, guildID string) error {
	c.mu.Lock()
	hold := c.hold
	c.mu.Unlock()
	if hold != nil {
		<-hold
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.disconnected = append(c.disconnected, guildID)
	c.calls = append(c.calls, "disconnect")
	return nil
}

func (c *fakeConnector) callLog() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.calls)
}

type fakeNotifier struct {
	mu       sync.Mutex
	messages []string
}

func (n *fakeNotifier) Notify(ctx context.Context, targetID, message string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.messages = append(n.messages, targetID+"|"+message)
	return nil
}

func (n *fakeNotifier) all() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return slices.Clone(n.messages)
}

type rejectAll struct{ code string }

func (r rejectAll) Execute(ctx context.Context, req filter.Request) filter.Result {
	return filter.Reject(r.code)
}

type harness struct {
	reg       *Registry
	queue     *memQueue
	resolver  *fakeResolver
	backend   *fakeBackend
	connector *fakeConnector
	notifier  *fakeNotifier
}

func newHarness(t *testing.T, tweak func(cfg *Config, deps *Deps)) *harness {
	t.Helper()
	h := &harness{
		queue:     &memQueue{},
		resolver:  newFakeResolver(),
		backend:   newFakeBackend(),
		connector: &fakeConnector{},
		notifier:  &fakeNotifier{},
	}
	cfg := Config{
		DefaultVolume:          0.5,
		MaxConsecutiveFailures: 5,
		CommandTimeout:         time.Second,
		Workers:                4,
		CompletionBuffer:       16,
	}
	deps := Deps{
		Queue:     h.queue,
		Resolver:  h.resolver,
		Backend:   h.backend,
		Connector: h.connector,
		Notifier:  h.notifier,
	}
	if tweak != nil {
		tweak(&cfg, &deps)
	}
	h.reg = NewRegistry(cfg, deps)
	h.backend.bridge = h.reg.Bridge()
	t.Cleanup(h.reg.Close)
	return h
}

func requester() track.Requester {
	return track.Requester{UserID: "u1", Name: "alice", NotifyTargetID: "text-1"}
}

func (h *harness) play(t *testing.T, g *Guild, query string) PlayResult {
	t.Helper()
	res, err := g.Play(context.Background(), PlayRequest{Query: query, Requester: requester(), ChannelID: "voice-1"})
	require.NoError(t, err)
	return res
}

// waitFor polls the guild snapshot until cond holds.
func waitFor(t *testing.T, g *Guild, cond func(s Snapshot) bool) Snapshot {
	t.Helper()
	var last Snapshot
	require.Eventually(t, func() bool {
		s, err := g.Snapshot(context.Background())
		if err != nil {
			return false
		}
		last = s
		return cond(s)
	}, 2*time.Second, 5*time.Millisecond)
	return last
}

func playing(title string) func(s Snapshot) bool {
	return func(s Snapshot) bool {
		return s.IsPlaying && s.CurrentTrack != nil && s.CurrentTrack.Title == title
	}
}

func queueTitles(s Snapshot) []string {
	titles := make([]string, 0, len(s.Queue))
	for _, v := range s.Queue {
		titles = append(titles, v.Title)
	}
	return titles
}
