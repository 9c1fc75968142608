package resolver

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/groovebox/internal/infra/config"
	"github.com/osa030/groovebox/internal/infra/spotify"
	"github.com/osa030/groovebox/internal/infra/youtube"
	"github.com/osa030/groovebox/internal/infra/ytdlp"
	"github.com/osa030/groovebox/internal/infra/ytmusic"
)

// defaultHosts are the URL hosts a platform type owns when none are configured.
var defaultHosts = map[string][]string{
	config.PlatformYtdlp:      {"youtube.com", "youtu.be"},
	config.PlatformYouTubeAPI: {"youtube.com", "youtu.be"},
	config.PlatformYtsearch:   {"youtube.com", "youtu.be"},
	config.PlatformYTMusic:    {"music.youtube.com"},
	config.PlatformSpotify:    {"open.spotify.com"},
}

// defaultYouTubeExtractorArgs selects player clients that keep serving audio formats.
const defaultYouTubeExtractorArgs = "youtube:player_client=android,ios,web"

// DecodeStrategy builds a strategy from free-form platform settings.
func DecodeStrategy(platformType string, settings map[string]any) (Strategy, error) {
	var s Strategy
	if err := mapstructure.Decode(settings, &s); err != nil {
		return s, errors.Wrap(err, "failed to decode settings")
	}
	if err := defaults.Set(&s); err != nil {
		return s, errors.Wrap(err, "failed to set defaults")
	}
	if len(s.Hosts) == 0 {
		s.Hosts = defaultHosts[platformType]
	}
	if platformType == config.PlatformYtdlp {
		if s.SearchVerb == "" {
			s.SearchVerb = "ytsearch"
		}
		if s.ExtractorArgs == "" && strings.HasPrefix(s.SearchVerb, "yt") {
			s.ExtractorArgs = defaultYouTubeExtractorArgs
		}
	}
	zlog.Debug().Msgf("platform strategy: type=%s strategy=%+v", platformType, s)
	if err := validator.New().Struct(s); err != nil {
		return s, errors.Wrap(err, "validation failed")
	}
	if s.RequiresAuth && s.CookiesFile == "" && s.APIKey == "" {
		return s, errors.New("requires_auth is set but neither cookies_file nor api_key is configured")
	}
	return s, nil
}

// NewFromConfig creates a resolver from the configured platform chain.
// Chain order is the configuration order.
func NewFromConfig(ctx context.Context, cfg *config.Config) (*Resolver, error) {
	if len(cfg.Resolver.Platforms) == 0 {
		return nil, errors.New("no resolver platforms configured")
	}

	type pending struct {
		index    int
		pcfg     config.PlatformConfig
		strategy Strategy
		catalog  Catalog
	}

	byName := make(map[string]Platform)
	slots := make([]Platform, len(cfg.Resolver.Platforms))
	var delegating []pending

	for i, pcfg := range cfg.Resolver.Platforms {
		zlog.Debug().Msgf("creating platform: index=%d type=%s name=%s", i+1, pcfg.Type, pcfg.Name)

		strategy, err := DecodeStrategy(pcfg.Type, pcfg.Settings)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to create platform (index %d, type %s)", i, pcfg.Type)
		}

		var p Platform
		switch pcfg.Type {
		case config.PlatformYtdlp:
			client := ytdlp.New(ytdlp.Options{
				Platform:      pcfg.Name,
				SearchVerb:    strategy.SearchVerb,
				Format:        strategy.Format,
				CookiesFile:   strategy.CookiesFile,
				ExtractorArgs: strategy.ExtractorArgs,
			})
			p = NewMediaPlatform(pcfg.Name, strategy, client, client)

		case config.PlatformYouTubeAPI:
			key := strategy.APIKey
			if key == "" {
				key = cfg.YouTube.APIKey
			}
			api, err := youtube.NewDataAPI(ctx, key, pcfg.Name)
			if err != nil {
				return nil, errors.Wrapf(err, "failed to create platform (index %d, type %s)", i, pcfg.Type)
			}
			p = NewMediaPlatform(pcfg.Name, strategy, api, youtube.New(pcfg.Name))

		case config.PlatformYtsearch:
			scraper := youtube.NewScraper(&http.Client{Timeout: 15 * time.Second}, pcfg.Name)
			p = NewMediaPlatform(pcfg.Name, strategy, scraper, youtube.New(pcfg.Name))

		case config.PlatformYTMusic:
			p = NewMediaPlatform(pcfg.Name, strategy, ytmusic.New(pcfg.Name), youtube.New(pcfg.Name))

		case config.PlatformSpotify:
			if strategy.StreamVia == "" {
				return nil, errors.Newf("platform %s requires stream_via (platform index %d)", pcfg.Name, i)
			}
			client, err := spotify.New(ctx, spotify.Config{
				ClientID:     cfg.Spotify.ClientID,
				ClientSecret: cfg.Spotify.ClientSecret,
				Market:       cfg.Spotify.Market,
				Platform:     pcfg.Name,
			})
			if err != nil {
				return nil, errors.Wrapf(err, "failed to create platform (index %d, type %s)", i, pcfg.Type)
			}
			// Streams are delegated, so the platform is finished once every name is known.
			delegating = append(delegating, pending{index: i, pcfg: pcfg, strategy: strategy, catalog: client})
			continue

		default:
			return nil, errors.Newf("unsupported platform type: %s (platform index %d)", pcfg.Type, i)
		}

		p = WithRateLimit(p, strategy)
		slots[i] = p
		byName[pcfg.Name] = p
		zlog.Info().Msgf("registered platform: index=%d type=%s name=%s hosts=%v", i+1, pcfg.Type, pcfg.Name, strategy.Hosts)
	}

	for _, d := range delegating {
		via, ok := byName[d.strategy.StreamVia]
		if !ok {
			return nil, errors.Newf("platform %s streams via unknown platform %q (platform index %d)",
				d.pcfg.Name, d.strategy.StreamVia, d.index)
		}
		searcher, _ := d.catalog.(Searcher)
		p := WithRateLimit(NewMediaPlatform(d.pcfg.Name, d.strategy, searcher, NewDelegatingExtractor(d.catalog, via)), d.strategy)
		slots[d.index] = p
		byName[d.pcfg.Name] = p
		zlog.Info().Msgf("registered platform: index=%d type=%s name=%s stream_via=%s", d.index+1, d.pcfg.Type, d.pcfg.Name, via.Name())
	}

	return New(slots...), nil
}
