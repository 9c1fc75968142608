package resolver

import (
	"context"

	"github.com/cockroachdb/errors"
	"golang.org/x/time/rate"

	"github.com/osa030/groovebox/internal/domain/track"
)

// limitedPlatform throttles calls to a platform with a token bucket.
type limitedPlatform struct {
	Platform
	limiter *rate.Limiter
}

// WithRateLimit wraps p so that outbound calls respect the strategy rate.
// A non-positive rate returns p unchanged.
func WithRateLimit(p Platform, s Strategy) Platform {
	if s.RatePerSecond <= 0 {
		return p
	}
	burst := s.Burst
	if burst < 1 {
		burst = 1
	}
	return &limitedPlatform{
		Platform: p,
		limiter:  rate.NewLimiter(rate.Limit(s.RatePerSecond), burst),
	}
}

func (l *limitedPlatform) wait(ctx context.Context) error {
	if err := l.limiter.Wait(ctx); err != nil {
		return errors.Wrapf(err, "rate limit wait on %s", l.Name())
	}
	return nil
}

func (l *limitedPlatform) Search(ctx context.Context, query string) ([]track.Track, error) {
	if err := l.wait(ctx); err != nil {
		return nil, err
	}
	return l.Platform.Search(ctx, query)
}

func (l *limitedPlatform) Lookup(ctx context.Context, rawURL string) (*track.Track, error) {
	if err := l.wait(ctx); err != nil {
		return nil, err
	}
	return l.Platform.Lookup(ctx, rawURL)
}

func (l *limitedPlatform) Stream(ctx context.Context, canonicalURL string) (*track.StreamHandle, error) {
	if err := l.wait(ctx); err != nil {
		return nil, err
	}
	return l.Platform.Stream(ctx, canonicalURL)
}
