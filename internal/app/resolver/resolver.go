package resolver

import (
	"context"
	"strings"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/groovebox/internal/domain/track"
)

// Errors
var (
	ErrResolutionFailed       = errors.New("resolution failed")
	ErrStreamResolutionFailed = errors.New("stream resolution failed")
)

// Resolver tries platforms in priority order until one yields a track.
// It holds no per-request state.
type Resolver struct {
	platforms []Platform
}

// New creates a resolver over platforms in priority order.
func New(platforms ...Platform) *Resolver {
	return &Resolver{
		platforms: platforms,
	}
}

// Platforms returns the configured platforms in priority order.
func (r *Resolver) Platforms() []Platform {
	return r.platforms
}

// Resolve turns a query or URL into a stable track.
// URLs go straight to their owning platform; free text walks the chain and
// returns the first non-empty result. Platform failures are logged, never returned.
func (r *Resolver) Resolve(ctx context.Context, query string) (*track.Track, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, errors.Mark(errors.New("empty query"), ErrResolutionFailed)
	}

	if u, ok := parseURL(query); ok {
		p := r.owner(u.String())
		if p == nil {
			return nil, errors.Mark(errors.Newf("no platform owns url: %s", query), ErrResolutionFailed)
		}
		zlog.Debug().Msgf("resolver: direct lookup: platform=%s url=%s", p.Name(), query)
		t, err := p.Lookup(ctx, query)
		if err != nil {
			return nil, errors.Mark(errors.Wrapf(err, "lookup on %s failed", p.Name()), ErrResolutionFailed)
		}
		if t == nil {
			return nil, errors.Mark(errors.Newf("lookup on %s returned nothing", p.Name()), ErrResolutionFailed)
		}
		return t, nil
	}

	for i, p := range r.platforms {
		zlog.Debug().Msgf("resolver: trying platform: index=%d total=%d name=%s", i+1, len(r.platforms), p.Name())

		results, err := p.Search(ctx, query)
		if err != nil {
			zlog.Warn().Msgf("platform failed, trying next: platform=%s error=%v", p.Name(), err)
			continue
		}
		if len(results) == 0 {
			zlog.Debug().Msgf("platform returned no results: platform=%s", p.Name())
			continue
		}

		t := results[0]
		zlog.Info().Msgf("resolver: resolved: platform=%s query=%q title=%s", p.Name(), query, t.Title)
		return &t, nil
	}

	return nil, errors.Mark(errors.Newf("all platforms failed for query %q", query), ErrResolutionFailed)
}

// ResolveStream fetches a fresh stream handle for a canonical URL.
// Callers must invoke it anew before every play.
func (r *Resolver) ResolveStream(ctx context.Context, canonicalURL string) (*track.StreamHandle, error) {
	p := r.owner(canonicalURL)
	if p == nil {
		return nil, errors.Mark(errors.Newf("no platform owns url: %s", canonicalURL), ErrStreamResolutionFailed)
	}

	h, err := p.Stream(ctx, canonicalURL)
	if err != nil {
		return nil, errors.Mark(errors.Wrapf(err, "stream on %s failed", p.Name()), ErrStreamResolutionFailed)
	}
	if h == nil || h.StreamURL == "" {
		return nil, errors.Mark(errors.Newf("%s returned no stream url", p.Name()), ErrStreamResolutionFailed)
	}
	return h, nil
}

// owner returns the first platform owning the URL, or nil.
func (r *Resolver) owner(rawURL string) Platform {
	u, ok := parseURL(rawURL)
	if !ok {
		return nil
	}
	for _, p := range r.platforms {
		if p.Owns(u) {
			return p
		}
	}
	return nil
}

// Find returns the platform with the given name, or nil.
func (r *Resolver) Find(name string) Platform {
	for _, p := range r.platforms {
		if p.Name() == name {
			return p
		}
	}
	return nil
}
