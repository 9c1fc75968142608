package youtube

import (
	"context"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/sosodev/duration"
	"google.golang.org/api/option"
	yt "google.golang.org/api/youtube/v3"

	"github.com/osa030/groovebox/internal/domain/track"
)

// DataAPI searches YouTube through the official Data API v3.
type DataAPI struct {
	service  *yt.Service
	platform string
}

// NewDataAPI creates a Data API searcher authenticated with an API key.
func NewDataAPI(ctx context.Context, apiKey, platform string, opts ...option.ClientOption) (*DataAPI, error) {
	if apiKey == "" {
		return nil, errors.New("youtube api key is required")
	}
	opts = append([]option.ClientOption{option.WithAPIKey(apiKey)}, opts...)
	service, err := yt.NewService(ctx, opts...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create youtube service")
	}
	return &DataAPI{service: service, platform: platform}, nil
}

// Search returns videos matching the query with durations filled in.
func (d *DataAPI) Search(ctx context.Context, query string, limit int) ([]track.Track, error) {
	if limit <= 0 {
		limit = 1
	}

	resp, err := d.service.Search.List([]string{"id", "snippet"}).
		Q(query).
		Type("video").
		MaxResults(int64(limit)).
		Context(ctx).
		Do()
	if err != nil {
		return nil, errors.Wrap(err, "youtube search failed")
	}

	ids := make([]string, 0, len(resp.Items))
	tracks := make([]track.Track, 0, len(resp.Items))
	for _, item := range resp.Items {
		if item.Id == nil || item.Id.VideoId == "" || item.Snippet == nil {
			continue
		}
		ids = append(ids, item.Id.VideoId)
		t := track.Track{
			CanonicalURL: WatchURL(item.Id.VideoId),
			Title:        item.Snippet.Title,
			ThumbnailURL: snippetThumbnail(item.Snippet.Thumbnails),
			Platform:     d.platform,
		}
		if item.Snippet.ChannelTitle != "" {
			t.Artists = []string{item.Snippet.ChannelTitle}
		}
		tracks = append(tracks, t)
	}
	if len(ids) == 0 {
		return tracks, nil
	}

	durations, err := d.durations(ctx, ids)
	if err != nil {
		// Durations are optional metadata.
		return tracks, nil
	}
	for i := range tracks {
		tracks[i].Duration = durations[ids[i]]
	}
	return tracks, nil
}

// durations looks up content durations for the given video ids.
func (d *DataAPI) durations(ctx context.Context, ids []string) (map[string]time.Duration, error) {
	resp, err := d.service.Videos.List([]string{"contentDetails"}).
		Id(strings.Join(ids, ",")).
		Context(ctx).
		Do()
	if err != nil {
		return nil, errors.Wrap(err, "youtube videos lookup failed")
	}

	out := make(map[string]time.Duration, len(resp.Items))
	for _, item := range resp.Items {
		if item.ContentDetails == nil {
			continue
		}
		dur, err := parseISODuration(item.ContentDetails.Duration)
		if err != nil {
			continue
		}
		out[item.Id] = dur
	}
	return out, nil
}

// parseISODuration parses an ISO-8601 duration such as "PT3M35S".
func parseISODuration(s string) (time.Duration, error) {
	d, err := duration.Parse(s)
	if err != nil {
		return 0, errors.Wrapf(err, "invalid duration %q", s)
	}
	return d.ToTimeDuration(), nil
}

func snippetThumbnail(t *yt.ThumbnailDetails) string {
	if t == nil {
		return ""
	}
	for _, th := range []*yt.Thumbnail{t.Maxres, t.High, t.Medium, t.Default} {
		if th != nil && th.Url != "" {
			return th.Url
		}
	}
	return ""
}
