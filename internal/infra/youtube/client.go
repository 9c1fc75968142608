// Package youtube provides YouTube lookups, searches and stream extraction.
package youtube

import (
	"context"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/kkdai/youtube/v2"

	"github.com/osa030/groovebox/internal/domain/track"
)

// opusItag is the 160kbps Opus/WebM audio format.
const opusItag = 251

// Client extracts metadata and stream URLs directly from YouTube.
type Client struct {
	client   youtube.Client
	platform string
}

// New creates a new YouTube extraction client.
// platform is stamped on produced tracks.
func New(platform string) *Client {
	return &Client{platform: platform}
}

// Lookup resolves a watch URL to track metadata.
func (c *Client) Lookup(ctx context.Context, rawURL string) (*track.Track, error) {
	video, err := c.client.GetVideoContext(ctx, rawURL)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get video")
	}

	t := &track.Track{
		CanonicalURL: WatchURL(video.ID),
		Title:        video.Title,
		ThumbnailURL: bestThumbnail(video.Thumbnails),
		Duration:     video.Duration,
		Platform:     c.platform,
	}
	if video.Author != "" {
		t.Artists = []string{video.Author}
	}
	return t, nil
}

// Stream returns a fresh audio stream URL, preferring Opus.
func (c *Client) Stream(ctx context.Context, rawURL string) (*track.StreamHandle, error) {
	video, err := c.client.GetVideoContext(ctx, rawURL)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get video")
	}

	formats := video.Formats.WithAudioChannels().Type("audio")
	f := selectFormat(formats)
	if f == nil {
		return nil, errors.New("no audio formats found for video")
	}

	streamURL, err := c.client.GetStreamURLContext(ctx, video, f)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get stream url")
	}

	return &track.StreamHandle{
		StreamURL:    streamURL,
		Title:        video.Title,
		ThumbnailURL: bestThumbnail(video.Thumbnails),
		Duration:     video.Duration,
	}, nil
}

// selectFormat picks itag 251 first, then any Opus format, then the best remaining audio.
func selectFormat(formats youtube.FormatList) *youtube.Format {
	if len(formats) == 0 {
		return nil
	}
	for i := range formats {
		if formats[i].ItagNo == opusItag {
			return &formats[i]
		}
	}
	for i := range formats {
		if strings.Contains(formats[i].MimeType, "opus") {
			return &formats[i]
		}
	}
	formats.Sort()
	return &formats[0]
}

func bestThumbnail(thumbs youtube.Thumbnails) string {
	var best youtube.Thumbnail
	for _, t := range thumbs {
		if t.Width >= best.Width {
			best = t
		}
	}
	return best.URL
}

// WatchURL returns the canonical watch URL for a video id.
func WatchURL(videoID string) string {
	return "https://www.youtube.com/watch?v=" + videoID
}

// MusicWatchURL returns the YouTube Music watch URL for a video id.
func MusicWatchURL(videoID string) string {
	return "https://music.youtube.com/watch?v=" + videoID
}
