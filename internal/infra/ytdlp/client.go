// Package ytdlp provides a media client backed by the yt-dlp executable.
package ytdlp

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/lrstanley/go-ytdlp"

	"github.com/osa030/groovebox/internal/domain/track"
)

// Options configures how yt-dlp is invoked for one platform.
type Options struct {
	Platform      string // Platform name stamped on produced tracks
	SearchVerb    string // e.g. "ytsearch", "scsearch", "ytmsearch"
	Format        string // Format selector for stream extraction
	CookiesFile   string // Netscape cookies file (optional)
	ExtractorArgs string // e.g. "youtube:player_client=android,ios,web"
	Proxy         string // Proxy URL (optional)
}

// Client runs yt-dlp searches, lookups and stream extractions.
type Client struct {
	opts Options
}

const (
	// Flat entries only carry page metadata.
	searchTemplate = "%(url)s\t%(title)s\t%(thumbnails.-1.url)s\t%(uploader)s\t%(duration)s"
	lookupTemplate = "%(webpage_url)s\t%(title)s\t%(thumbnail)s\t%(uploader)s\t%(duration)s"
	streamTemplate = "%(url)s\t%(title)s\t%(thumbnail)s\t%(uploader)s\t%(duration)s"
)

// New creates a new yt-dlp client.
func New(opts Options) *Client {
	if opts.Format == "" {
		opts.Format = "bestaudio/best"
	}
	return &Client{opts: opts}
}

// command returns a yt-dlp command with the options shared by every call.
func (c *Client) command() *ytdlp.Command {
	cmd := ytdlp.New().
		NoWarnings().
		IgnoreConfig().
		NoCheckCertificates()
	if c.opts.CookiesFile != "" {
		cmd.Cookies(c.opts.CookiesFile)
	}
	if c.opts.ExtractorArgs != "" {
		cmd.ExtractorArgs(c.opts.ExtractorArgs)
	}
	if c.opts.Proxy != "" {
		cmd.Proxy(c.opts.Proxy)
	}
	return cmd
}

// Search runs "<verb><limit>:<query>" and returns the flat results.
func (c *Client) Search(ctx context.Context, query string, limit int) ([]track.Track, error) {
	if c.opts.SearchVerb == "" {
		return nil, errors.New("search is not configured for this platform")
	}
	if limit <= 0 {
		limit = 1
	}

	res, err := c.command().
		FlatPlaylist().
		Print(searchTemplate).
		PlaylistItems(fmt.Sprintf("1-%d", limit)).
		Run(ctx, fmt.Sprintf("%s%d:%s", c.opts.SearchVerb, limit, query))
	if err != nil {
		return nil, errors.Wrap(err, "yt-dlp search failed")
	}

	lines := strings.Split(strings.TrimSpace(res.Stdout), "\n")
	tracks := make([]track.Track, 0, len(lines))
	for _, l := range lines {
		r, ok := parseLine(l)
		if !ok || r.URL == "" {
			continue
		}
		tracks = append(tracks, c.toTrack(r))
	}
	return tracks, nil
}

// Lookup resolves a single page URL to track metadata.
func (c *Client) Lookup(ctx context.Context, rawURL string) (*track.Track, error) {
	res, err := c.command().
		Print(lookupTemplate).
		NoPlaylist().
		Run(ctx, "--skip-download", rawURL)
	if err != nil {
		return nil, errors.Wrap(err, "yt-dlp lookup failed")
	}

	r, ok := firstResult(res.Stdout)
	if !ok {
		return nil, errors.New("failed to parse yt-dlp metadata")
	}
	if r.URL == "" {
		r.URL = rawURL
	}
	t := c.toTrack(r)
	return &t, nil
}

// Stream extracts a fresh stream URL honoring the format constraint.
func (c *Client) Stream(ctx context.Context, rawURL string) (*track.StreamHandle, error) {
	res, err := c.command().
		Print(streamTemplate).
		Format(c.opts.Format).
		NoPlaylist().
		Run(ctx, "--skip-download", rawURL)
	if err != nil {
		if res != nil && strings.Contains(strings.ToLower(res.Stderr), "drm") {
			return nil, errors.Wrap(err, "media is DRM protected")
		}
		return nil, errors.Wrap(err, "yt-dlp stream extraction failed")
	}

	r, ok := firstResult(res.Stdout)
	if !ok || r.URL == "" {
		return nil, errors.New("yt-dlp returned no stream url")
	}
	return &track.StreamHandle{
		StreamURL:    r.URL,
		Title:        r.Title,
		ThumbnailURL: r.Thumbnail,
		Duration:     r.Duration,
	}, nil
}

func (c *Client) toTrack(r result) track.Track {
	t := track.Track{
		CanonicalURL: r.URL,
		Title:        r.Title,
		ThumbnailURL: r.Thumbnail,
		Duration:     r.Duration,
		Platform:     c.opts.Platform,
	}
	if r.Uploader != "" {
		t.Artists = []string{r.Uploader}
	}
	return t
}

// result is one tab separated line of yt-dlp --print output.
type result struct {
	URL, Title, Thumbnail, Uploader string
	Duration                        time.Duration
}

func firstResult(stdout string) (result, bool) {
	for _, l := range strings.Split(strings.TrimSpace(stdout), "\n") {
		if r, ok := parseLine(l); ok {
			return r, true
		}
	}
	return result{}, false
}

// parseLine parses "url\ttitle\tthumbnail\tuploader\tduration".
// yt-dlp prints "NA" for missing fields.
func parseLine(line string) (result, bool) {
	ps := strings.Split(line, "\t")
	if len(ps) < 5 {
		return result{}, false
	}
	for i := range ps {
		ps[i] = strings.TrimSpace(ps[i])
		if ps[i] == "NA" {
			ps[i] = ""
		}
	}
	r := result{URL: ps[0], Title: ps[1], Thumbnail: ps[2], Uploader: ps[3]}
	if r.Title == "" {
		r.Title = "Untitled"
	}
	if secs, err := strconv.ParseFloat(ps[4], 64); err == nil && secs > 0 {
		r.Duration = time.Duration(secs * float64(time.Second))
	}
	return r, true
}
