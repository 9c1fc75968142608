// Package notification fans guild state updates out to dashboard subscribers.
package notification

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/groovebox/internal/app/playback"
)

// sendTimeout bounds a single subscriber send during Broadcast.
const sendTimeout = 500 * time.Millisecond

// Update is one state change pushed to subscribers.
type Update struct {
	SequenceNo uint64            `json:"sequenceNo"`
	GuildID    string            `json:"guildId"`
	Event      string            `json:"event"`
	Snapshot   playback.Snapshot `json:"snapshot"`
}

// Stream represents a notification stream for a subscriber.
type Stream interface {
	Send(ctx context.Context, u *Update) error
}

// subscription represents a subscriber's subscription.
type subscription struct {
	id      string
	guildID string // Empty receives every guild
	stream  Stream
}

// SnapshotFunc reads the current state of a guild.
type SnapshotFunc func(ctx context.Context, guildID string) (playback.Snapshot, error)

// Manager manages notification subscriptions and broadcasting.
type Manager struct {
	mu            sync.RWMutex
	subscriptions map[string]*subscription
	sequenceNo    uint64
	sequenceNoMu  sync.Mutex
}

// NewManager creates a new notification manager.
func NewManager() *Manager {
	return &Manager{
		subscriptions: make(map[string]*subscription),
	}
}

// Subscribe adds a subscription for guildID and returns the subscription ID.
func (m *Manager) Subscribe(guildID string, stream Stream) string {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := uuid.New().String()
	m.subscriptions[id] = &subscription{
		id:      id,
		guildID: guildID,
		stream:  stream,
	}
	zlog.Debug().Msgf("notification: subscribed: id=%s guild=%s", id, guildID)
	return id
}

// Unsubscribe removes a subscription.
func (m *Manager) Unsubscribe(subscriptionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.subscriptions, subscriptionID)
}

func (m *Manager) nextSequenceNo() uint64 {
	m.sequenceNoMu.Lock()
	defer m.sequenceNoMu.Unlock()
	m.sequenceNo++
	return m.sequenceNo
}

// Broadcast sends an update to every subscriber of its guild.
// Each send runs in its own goroutine and is abandoned after sendTimeout.
func (m *Manager) Broadcast(ctx context.Context, u *Update) {
	u.SequenceNo = m.nextSequenceNo()

	m.mu.RLock()
	subs := make([]*subscription, 0, len(m.subscriptions))
	for _, sub := range m.subscriptions {
		if sub.guildID == "" || sub.guildID == u.GuildID {
			subs = append(subs, sub)
		}
	}
	m.mu.RUnlock()

	var wg sync.WaitGroup
	for _, sub := range subs {
		wg.Add(1)
		go func(s *subscription) {
			defer wg.Done()
			ctx, cancel := context.WithTimeout(ctx, sendTimeout)
			defer cancel()

			done := make(chan error, 1)
			go func() {
				done <- s.stream.Send(ctx, u)
			}()

			select {
			case err := <-done:
				if err != nil {
					zlog.Debug().Msgf("notification: send failed: id=%s error=%v", s.id, err)
				}
			case <-ctx.Done():
				zlog.Debug().Msgf("notification: send timed out: id=%s", s.id)
			}
		}(sub)
	}
	wg.Wait()
}

// Run turns playback events into snapshot updates until ctx is done or events is closed.
func (m *Manager) Run(ctx context.Context, events <-chan playback.Event, snapshot SnapshotFunc) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if m.SubscriberCount() == 0 {
				continue
			}
			s, err := snapshot(ctx, ev.GuildID)
			if err != nil {
				zlog.Warn().Msgf("notification: snapshot failed: guild=%s event=%s error=%v", ev.GuildID, ev.Type, err)
				continue
			}
			m.Broadcast(ctx, &Update{GuildID: ev.GuildID, Event: ev.Type.String(), Snapshot: s})
		}
	}
}

// SubscriberCount returns the number of active subscribers.
func (m *Manager) SubscriberCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.subscriptions)
}

// Close closes the manager and removes all subscriptions.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subscriptions = make(map[string]*subscription)
}
