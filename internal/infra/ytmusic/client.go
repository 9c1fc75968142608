// Package ytmusic provides YouTube Music track search.
package ytmusic

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/raitonoberu/ytmusic"

	"github.com/osa030/groovebox/internal/domain/track"
	"github.com/osa030/groovebox/internal/infra/youtube"
)

// Client searches the YouTube Music catalog.
type Client struct {
	platform string
}

// New creates a new YouTube Music client.
func New(platform string) *Client {
	return &Client{platform: platform}
}

// Search returns up to limit tracks matching the query.
func (c *Client) Search(ctx context.Context, query string, limit int) ([]track.Track, error) {
	if limit <= 0 {
		limit = 1
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	res, err := ytmusic.TrackSearch(query).Next()
	if err != nil {
		return nil, errors.Wrap(err, "ytmusic search failed")
	}

	tracks := make([]track.Track, 0, limit)
	for _, v := range res.Tracks {
		if v.VideoID == "" {
			continue
		}
		t := track.Track{
			CanonicalURL: youtube.MusicWatchURL(v.VideoID),
			Title:        v.Title,
			Platform:     c.platform,
		}
		for _, a := range v.Artists {
			t.Artists = append(t.Artists, a.Name)
		}
		tracks = append(tracks, t)
		if len(tracks) == limit {
			break
		}
	}
	return tracks, nil
}
