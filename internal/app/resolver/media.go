package resolver

import (
	"context"
	"net/url"

	"github.com/cockroachdb/errors"

	"github.com/osa030/groovebox/internal/domain/track"
)

// Searcher finds tracks for a free-text query.
type Searcher interface {
	Search(ctx context.Context, query string, limit int) ([]track.Track, error)
}

// Extractor resolves page URLs to metadata and fresh stream handles.
type Extractor interface {
	Lookup(ctx context.Context, rawURL string) (*track.Track, error)
	Stream(ctx context.Context, rawURL string) (*track.StreamHandle, error)
}

// MediaPlatform composes a searcher and an extractor under one strategy.
// Every configured platform type is a MediaPlatform; they differ only in
// the clients plugged in and in their Strategy.
type MediaPlatform struct {
	name      string
	strategy  Strategy
	searcher  Searcher
	extractor Extractor
}

// NewMediaPlatform creates a platform. searcher may be nil for lookup-only platforms.
func NewMediaPlatform(name string, strategy Strategy, searcher Searcher, extractor Extractor) *MediaPlatform {
	return &MediaPlatform{
		name:      name,
		strategy:  strategy,
		searcher:  searcher,
		extractor: extractor,
	}
}

// Name returns the platform name.
func (p *MediaPlatform) Name() string {
	return p.name
}

// Strategy returns the platform strategy descriptor.
func (p *MediaPlatform) Strategy() Strategy {
	return p.strategy
}

// Owns reports whether the URL host is one of the strategy hosts.
func (p *MediaPlatform) Owns(u *url.URL) bool {
	return p.strategy.OwnsHost(u)
}

// Search queries the platform searcher.
func (p *MediaPlatform) Search(ctx context.Context, query string) ([]track.Track, error) {
	if p.searcher == nil {
		return nil, errors.Newf("platform %s does not support search", p.name)
	}
	return p.searcher.Search(ctx, query, p.strategy.SearchLimit)
}

// Lookup resolves a URL owned by the platform.
func (p *MediaPlatform) Lookup(ctx context.Context, rawURL string) (*track.Track, error) {
	return p.extractor.Lookup(ctx, rawURL)
}

// Stream produces a fresh stream handle.
func (p *MediaPlatform) Stream(ctx context.Context, canonicalURL string) (*track.StreamHandle, error) {
	return p.extractor.Stream(ctx, canonicalURL)
}

// DelegatingExtractor serves metadata from a catalog that has no streams of its own,
// and locates a playable copy on another platform by searching for the track.
type DelegatingExtractor struct {
	catalog Catalog
	via     Platform
}

// Catalog is a metadata-only source.
type Catalog interface {
	Lookup(ctx context.Context, rawURL string) (*track.Track, error)
}

// NewDelegatingExtractor creates an extractor that streams through via.
func NewDelegatingExtractor(catalog Catalog, via Platform) *DelegatingExtractor {
	return &DelegatingExtractor{catalog: catalog, via: via}
}

// Lookup returns catalog metadata.
func (d *DelegatingExtractor) Lookup(ctx context.Context, rawURL string) (*track.Track, error) {
	return d.catalog.Lookup(ctx, rawURL)
}

// Stream looks the track up in the catalog, finds it on the delegate platform and
// returns the delegate's stream. Catalog metadata wins over the delegate's.
func (d *DelegatingExtractor) Stream(ctx context.Context, rawURL string) (*track.StreamHandle, error) {
	t, err := d.catalog.Lookup(ctx, rawURL)
	if err != nil {
		return nil, errors.Wrap(err, "catalog lookup failed")
	}

	results, err := d.via.Search(ctx, t.SearchQuery())
	if err != nil {
		return nil, errors.Wrapf(err, "search on %s failed", d.via.Name())
	}
	if len(results) == 0 {
		return nil, errors.Newf("%s has no playable copy of %q", d.via.Name(), t.SearchQuery())
	}

	h, err := d.via.Stream(ctx, results[0].CanonicalURL)
	if err != nil {
		return nil, errors.Wrapf(err, "stream on %s failed", d.via.Name())
	}
	h.Title = t.Title
	if t.ThumbnailURL != "" {
		h.ThumbnailURL = t.ThumbnailURL
	}
	if t.Duration > 0 {
		h.Duration = t.Duration
	}
	return h, nil
}
