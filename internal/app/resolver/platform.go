// Package resolver turns free-text queries and URLs into stable track records,
// and stable records into short-lived stream handles.
package resolver

import (
	"context"
	"net/url"
	"strings"

	"github.com/osa030/groovebox/internal/domain/track"
)

// Platform is a single media platform the resolver can query.
type Platform interface {
	// Name returns the configured platform name.
	Name() string
	// Owns reports whether the URL belongs to this platform.
	Owns(u *url.URL) bool
	// Search returns tracks matching the query in relevance order.
	Search(ctx context.Context, query string) ([]track.Track, error)
	// Lookup resolves a URL owned by this platform.
	Lookup(ctx context.Context, rawURL string) (*track.Track, error)
	// Stream produces a fresh playable handle for a canonical URL.
	Stream(ctx context.Context, canonicalURL string) (*track.StreamHandle, error)
}

// Strategy describes how a platform is queried.
// Per-platform differences live here as data, not as branches in the resolver.
type Strategy struct {
	SearchVerb    string   `yaml:"search_verb" mapstructure:"search_verb"`
	SearchLimit   int      `yaml:"search_limit" mapstructure:"search_limit" default:"1" validate:"gte=1,lte=25"`
	Format        string   `yaml:"format" mapstructure:"format" default:"bestaudio/best"`
	CookiesFile   string   `yaml:"cookies_file" mapstructure:"cookies_file"`
	RequiresAuth  bool     `yaml:"requires_auth" mapstructure:"requires_auth"`
	APIKey        string   `yaml:"api_key" mapstructure:"api_key"`
	ExtractorArgs string   `yaml:"extractor_args" mapstructure:"extractor_args"`
	Hosts         []string `yaml:"hosts" mapstructure:"hosts"`
	StreamVia     string   `yaml:"stream_via" mapstructure:"stream_via"`
	RatePerSecond float64  `yaml:"rate_per_second" mapstructure:"rate_per_second" default:"2" validate:"gte=0"`
	Burst         int      `yaml:"burst" mapstructure:"burst" default:"2" validate:"gte=1"`
}

// OwnsHost reports whether the URL host matches one of the strategy hosts.
// A "*" entry owns every http(s) URL.
func (s *Strategy) OwnsHost(u *url.URL) bool {
	host := strings.ToLower(strings.TrimPrefix(u.Hostname(), "www."))
	for _, h := range s.Hosts {
		h = strings.ToLower(h)
		if h == "*" || host == h || strings.HasSuffix(host, "."+h) {
			return true
		}
	}
	return false
}

// parseURL returns the parsed query when it is a well-formed http(s) URL.
func parseURL(query string) (*url.URL, bool) {
	query = strings.TrimSpace(query)
	if !strings.HasPrefix(query, "http://") && !strings.HasPrefix(query, "https://") {
		return nil, false
	}
	u, err := url.Parse(query)
	if err != nil || u.Host == "" {
		return nil, false
	}
	return u, true
}
