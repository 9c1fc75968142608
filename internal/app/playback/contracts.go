package playback

import (
	"context"
	"time"

	"github.com/osa030/groovebox/internal/app/filter"
	"github.com/osa030/groovebox/internal/domain/track"
)

// Queue is the persistent per-guild queue.
type Queue interface {
	Enqueue(ctx context.Context, e track.QueueEntry) (track.QueueEntry, error)
	DequeueFront(ctx context.Context, guildID string) (*track.QueueEntry, error)
	Peek(ctx context.Context, guildID string, n int) ([]track.QueueEntry, error)
	Count(ctx context.Context, guildID string) (int, error)
	RemoveByID(ctx context.Context, guildID string, id int64) (bool, error)
	Shuffle(ctx context.Context, guildID string) error
	Clear(ctx context.Context, guildID string) error
}

// Resolver turns queries into tracks and tracks into fresh streams.
type Resolver interface {
	Resolve(ctx context.Context, query string) (*track.Track, error)
	ResolveStream(ctx context.Context, canonicalURL string) (*track.StreamHandle, error)
}

// Handle identifies one started backend stream.
type Handle uint64

// Connection is a guild's voice transport. The driver holds it but never recreates it.
type Connection interface {
	GuildID() string
	ChannelID() string
}

// Connector attaches the bot to a voice channel, joining or moving as needed.
type Connector interface {
	Connect(ctx context.Context, guildID, channelID string) (Connection, error)
	Disconnect(ctx context.Context, guildID string) error
}

// Backend plays one stream per handle and reports its end through the Bridge.
type Backend interface {
	Start(ctx context.Context, conn Connection, streamURL string, volume float64) (Handle, error)
	Stop(h Handle)
	Pause(h Handle) error
	Resume(h Handle) error
	SetVolume(h Handle, volume float64)
}

// Notifier delivers a chat message to a notify target.
type Notifier interface {
	Notify(ctx context.Context, targetID, message string) error
}

// Admission decides whether a resolved track may be queued.
type Admission interface {
	Execute(ctx context.Context, req filter.Request) filter.Result
}

// Config holds driver configuration.
type Config struct {
	DefaultVolume          float64
	MaxConsecutiveFailures int           // Breaker threshold for advancement failures
	CommandTimeout         time.Duration // Bounded wait for submitted commands
	Workers                int           // Concurrent network operations across guilds
	CompletionBuffer       int
	EventBuffer            int
}

// Deps are the collaborators shared by every guild.
type Deps struct {
	Queue     Queue
	Resolver  Resolver
	Backend   Backend
	Connector Connector
	Notifier  Notifier
	Admission Admission // Optional
	Bridge    *Bridge   // Optional; backends built before the registry post here
}
