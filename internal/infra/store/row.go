package store

import (
	"database/sql"
	"strings"
	"time"

	"github.com/osa030/groovebox/internal/domain/track"
)

const selectColumns = `SELECT id, guild_id, title, canonical_url, thumbnail_url, duration_seconds,
	artists, platform, requester_id, requester_name, notify_target_id, position, added_at FROM queue_entries`

// artistSeparator joins artist names in a single column.
const artistSeparator = "\x1f"

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(row scanner) (track.QueueEntry, error) {
	var (
		e         track.QueueEntry
		thumbnail sql.NullString
		seconds   sql.NullFloat64
		artists   string
		addedAt   int64
	)
	err := row.Scan(&e.ID, &e.GuildID, &e.Track.Title, &e.Track.CanonicalURL, &thumbnail, &seconds,
		&artists, &e.Track.Platform, &e.Requester.UserID,
		&e.Requester.Name, &e.Requester.NotifyTargetID, &e.Position, &addedAt)
	if err != nil {
		return track.QueueEntry{}, err
	}
	e.Track.ThumbnailURL = thumbnail.String
	if seconds.Valid {
		e.Track.Duration = time.Duration(seconds.Float64 * float64(time.Second))
	}
	e.Track.Artists = splitArtists(artists)
	e.AddedAt = time.UnixMilli(addedAt)
	return e, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullSeconds(d time.Duration) sql.NullFloat64 {
	return sql.NullFloat64{Float64: d.Seconds(), Valid: d > 0}
}

func joinArtists(artists []string) string {
	return strings.Join(artists, artistSeparator)
}

func splitArtists(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, artistSeparator)
}
