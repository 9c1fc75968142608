// Package track provides the Track and QueueEntry domain entities.
package track

import (
	"fmt"
	"strings"
	"time"
)

// Track is a resolved, stable track record.
// It never carries a stream URL; those expire and are fetched per play.
type Track struct {
	CanonicalURL string        // Stable page URL of the track
	Title        string        // Track title
	ThumbnailURL string        // Thumbnail URL (optional)
	Duration     time.Duration // Track duration (zero if unknown)
	Artists      []string      // Artist or uploader names (optional)
	Platform     string        // Name of the platform that produced the record
}

// HasDuration reports whether the duration is known.
func (t *Track) HasDuration() bool {
	return t.Duration > 0
}

// SearchQuery returns a free-text query describing the track,
// used when another platform has to locate a playable copy.
func (t *Track) SearchQuery() string {
	if len(t.Artists) == 0 {
		return t.Title
	}
	return strings.Join(t.Artists, ", ") + " - " + t.Title
}

// Requester represents the person who requested the track.
type Requester struct {
	UserID         string // Chat user id
	Name           string // Display name
	NotifyTargetID string // Channel that receives result messages
}

// QueueEntry represents one pending track request in a guild queue.
type QueueEntry struct {
	ID        int64     // Store-assigned id, never reused
	GuildID   string    // Owning guild
	Track     Track     // Stable track metadata
	Requester Requester // Provenance
	Position  int64     // FIFO order within the guild
	AddedAt   time.Time // Time when added to queue
}

// StreamHandle is a short-lived playable locator for a track.
// It is fetched immediately before each play and never persisted.
type StreamHandle struct {
	StreamURL    string
	Title        string
	ThumbnailURL string
	Duration     time.Duration
}

// FormatDuration renders a duration as m:ss or h:mm:ss.
// Unknown durations render as "--:--".
func FormatDuration(d time.Duration) string {
	if d <= 0 {
		return "--:--"
	}
	total := int(d.Round(time.Second).Seconds())
	h := total / 3600
	m := (total % 3600) / 60
	s := total % 60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%d:%02d", m, s)
}
