package dashboard

import (
	"context"

	"github.com/osa030/groovebox/internal/app/playback"
	"github.com/osa030/groovebox/internal/domain/track"
)

// Player is the playback surface the dashboard controls, addressed by guild id.
// *playback.Registry implements it.
type Player interface {
	GuildIDs() []string
	Snapshot(ctx context.Context, guildID string) (playback.Snapshot, error)
	Pause(ctx context.Context, guildID string) error
	Resume(ctx context.Context, guildID string) error
	Skip(ctx context.Context, guildID string) (*track.QueueEntry, error)
	Stop(ctx context.Context, guildID string, disconnect bool) error
	Shuffle(ctx context.Context, guildID string) error
	SetLoop(ctx context.Context, guildID string, enabled bool) error
	SetVolume(ctx context.Context, guildID string, volume float64) (float64, error)
	Remove(ctx context.Context, guildID string, id int64) (bool, error)
}

var _ Player = (*playback.Registry)(nil)
