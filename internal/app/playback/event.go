package playback

import "github.com/osa030/groovebox/internal/domain/track"

// EventType represents a playback event type.
type EventType int

const (
	EventTrackStarted   EventType = iota // Track started playing
	EventTrackEnded                      // Track finished or was skipped
	EventTrackFailed                     // Track dropped during advancement
	EventStateChanged                    // Playback state changed (pause/resume/loop/volume)
	EventQueueChanged                    // Queue contents changed
	EventStopped                         // Playback stopped and queue cleared
	EventBreakerTripped                  // Too many consecutive failures, guild forced idle
)

// String returns the string representation of the event type.
func (e EventType) String() string {
	switch e {
	case EventTrackStarted:
		return "track_started"
	case EventTrackEnded:
		return "track_ended"
	case EventTrackFailed:
		return "track_failed"
	case EventStateChanged:
		return "state_changed"
	case EventQueueChanged:
		return "queue_changed"
	case EventStopped:
		return "stopped"
	case EventBreakerTripped:
		return "breaker_tripped"
	default:
		return "unknown"
	}
}

// Event represents a playback event.
type Event struct {
	Type    EventType
	GuildID string
	Entry   *track.QueueEntry // Entry concerned (nil for some events)
	State   State             // Playback state after the event
}
