package playback

import (
	"github.com/osa030/groovebox/internal/domain/track"
)

// TrackView is a track as shown on the dashboard.
type TrackView struct {
	ID              int64    `json:"id"`
	Title           string   `json:"title"`
	URL             string   `json:"url"`
	ThumbnailURL    string   `json:"thumbnailUrl,omitempty"`
	DurationSeconds float64  `json:"durationSeconds"`
	Duration        string   `json:"duration"`
	Artists         []string `json:"artists,omitempty"`
	Platform        string   `json:"platform,omitempty"`
	Requester       string   `json:"requester"`
	Position        int64    `json:"position,omitempty"`
}

// Snapshot is the read-only dashboard state of one guild.
type Snapshot struct {
	GuildID      string      `json:"guildId"`
	BotReady     bool        `json:"botReady"`
	State        string      `json:"state"`
	CurrentTrack *TrackView  `json:"currentTrack"`
	Queue        []TrackView `json:"queue"`
	IsPlaying    bool        `json:"isPlaying"`
	IsPaused     bool        `json:"isPaused"`
	Volume       float64     `json:"volume"`
	Looping      bool        `json:"looping"`
}

func newSnapshot(guildID string, state State, current *track.QueueEntry, queued []track.QueueEntry, volume float64, looping bool) Snapshot {
	s := Snapshot{
		GuildID:   guildID,
		State:     state.String(),
		Queue:     make([]TrackView, 0, len(queued)),
		IsPlaying: state == StatePlaying,
		IsPaused:  state == StatePaused,
		Volume:    volume,
		Looping:   looping,
	}
	if current != nil {
		v := viewOf(*current)
		v.Position = 0
		s.CurrentTrack = &v
	}
	for _, e := range queued {
		s.Queue = append(s.Queue, viewOf(e))
	}
	return s
}

func viewOf(e track.QueueEntry) TrackView {
	return TrackView{
		ID:              e.ID,
		Title:           e.Track.Title,
		URL:             e.Track.CanonicalURL,
		ThumbnailURL:    e.Track.ThumbnailURL,
		DurationSeconds: e.Track.Duration.Seconds(),
		Duration:        track.FormatDuration(e.Track.Duration),
		Artists:         e.Track.Artists,
		Platform:        e.Track.Platform,
		Requester:       e.Requester.Name,
		Position:        e.Position,
	}
}
