package youtube

import (
	"context"
	"net/http"

	"github.com/cockroachdb/errors"
	"github.com/ppalone/ytsearch"

	"github.com/osa030/groovebox/internal/domain/track"
)

// Scraper searches YouTube without an API key.
type Scraper struct {
	client   *ytsearch.Client
	platform string
}

// NewScraper creates a scraping searcher. A nil httpClient uses the default.
func NewScraper(httpClient *http.Client, platform string) *Scraper {
	return &Scraper{
		client:   ytsearch.NewClient(httpClient),
		platform: platform,
	}
}

// Search returns up to limit videos matching the query.
func (s *Scraper) Search(ctx context.Context, query string, limit int) ([]track.Track, error) {
	if limit <= 0 {
		limit = 1
	}

	res, err := s.client.Search(ctx, query)
	if err != nil {
		return nil, errors.Wrap(err, "youtube scrape search failed")
	}

	tracks := make([]track.Track, 0, limit)
	for _, v := range res.Results {
		if v.VideoID == "" {
			continue
		}
		tracks = append(tracks, track.Track{
			CanonicalURL: WatchURL(v.VideoID),
			Title:        v.Title,
			Platform:     s.platform,
		})
		if len(tracks) == limit {
			break
		}
	}
	return tracks, nil
}
