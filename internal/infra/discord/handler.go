package discord

import (
	"context"
	"fmt"
	"strings"

	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/groovebox/internal/app/playback"
	"github.com/osa030/groovebox/internal/domain/track"
	"github.com/osa030/groovebox/internal/infra/config"
)

// Player is the playback surface driven by chat commands.
// *playback.Registry implements it.
type Player interface {
	Play(ctx context.Context, guildID string, req playback.PlayRequest) (playback.PlayResult, error)
	Pause(ctx context.Context, guildID string) error
	Resume(ctx context.Context, guildID string) error
	Skip(ctx context.Context, guildID string) (*track.QueueEntry, error)
	Stop(ctx context.Context, guildID string, disconnect bool) error
	Shuffle(ctx context.Context, guildID string) error
	SetLoop(ctx context.Context, guildID string, enabled bool) error
	SetVolume(ctx context.Context, guildID string, volume float64) (float64, error)
	Remove(ctx context.Context, guildID string, id int64) (bool, error)
	List(ctx context.Context, guildID string, limit int) (playback.ListResult, error)
}

var _ Player = (*playback.Registry)(nil)

// VoiceLookup returns the voice channel a user is in, if any.
type VoiceLookup func(guildID, userID string) (string, bool)

// Invocation is one slash command call.
type Invocation struct {
	Name      string
	GuildID   string
	Requester track.Requester
	Options   map[string]any // Option values as delivered by the gateway
}

// Handler turns slash commands into driver calls and reply text.
type Handler struct {
	cfg    *config.Config
	player Player
	voice  VoiceLookup
}

// NewHandler creates a command handler.
func NewHandler(cfg *config.Config, player Player, voice VoiceLookup) *Handler {
	return &Handler{cfg: cfg, player: player, voice: voice}
}

// Execute runs inv and returns the reply.
func (h *Handler) Execute(ctx context.Context, inv Invocation) string {
	if inv.GuildID == "" {
		return "This command can only be used in servers."
	}
	zlog.Debug().Msgf("discord: command: guild=%s user=%s name=%s options=%v",
		inv.GuildID, inv.Requester.UserID, inv.Name, inv.Options)

	switch inv.Name {
	case cmdPlay:
		return h.play(ctx, inv)
	case cmdPause:
		return h.reply(h.player.Pause(ctx, inv.GuildID), "Paused the music.")
	case cmdResume:
		return h.reply(h.player.Resume(ctx, inv.GuildID), "Resumed the music.")
	case cmdSkip:
		_, err := h.player.Skip(ctx, inv.GuildID)
		return h.reply(err, "Skipped the song.")
	case cmdStop:
		return h.reply(h.player.Stop(ctx, inv.GuildID, true), "Stopped the music and disconnected.")
	case cmdShuffle:
		return h.reply(h.player.Shuffle(ctx, inv.GuildID), "Shuffled the queue.")
	case cmdLoop:
		enabled := optBool(inv.Options, "enabled")
		msg := "Looping disabled."
		if enabled {
			msg = "Looping enabled."
		}
		return h.reply(h.player.SetLoop(ctx, inv.GuildID, enabled), msg)
	case cmdVolume:
		v, err := h.player.SetVolume(ctx, inv.GuildID, playback.VolumeFromPercent(optFloat(inv.Options, "percent")))
		return h.reply(err, fmt.Sprintf("Volume set to %.0f%%.", v*100))
	case cmdRemove:
		return h.remove(ctx, inv)
	case cmdQueue:
		return h.queue(ctx, inv)
	default:
		zlog.Warn().Msgf("discord: unknown command: %s", inv.Name)
		return h.cfg.GetMessage("")
	}
}

// reply returns ok, or the configured message for err.
func (h *Handler) reply(err error, ok string) string {
	if err == nil {
		return ok
	}
	f := playback.NewFailure(err)
	if f.Code == playback.CodeInternal || f.Code == playback.CodeStoreError {
		zlog.Error().Msgf("discord: command failed: code=%s error=%v", f.Code, f.Err)
	}
	return h.cfg.GetMessage(f.MessageCode())
}

func (h *Handler) play(ctx context.Context, inv Invocation) string {
	query := strings.TrimSpace(optString(inv.Options, "song_query"))
	if query == "" {
		return h.cfg.GetMessage(playback.CodeResolutionFailed)
	}
	channelID, ok := h.voice(inv.GuildID, inv.Requester.UserID)
	if !ok {
		return h.cfg.GetMessage(playback.CodeConnectionFailed)
	}

	res, err := h.player.Play(ctx, inv.GuildID, playback.PlayRequest{
		Query:     query,
		Requester: inv.Requester,
		ChannelID: channelID,
	})
	if err != nil {
		return h.reply(err, "")
	}
	title := res.Entry.Track.Title
	if res.Started {
		return fmt.Sprintf("Queued **%s**. Starting playback...", title)
	}
	return fmt.Sprintf("Added **%s** to the queue. (#%d, %s)",
		title, res.Position, track.FormatDuration(res.Entry.Track.Duration))
}

func (h *Handler) remove(ctx context.Context, inv Invocation) string {
	id := int64(optFloat(inv.Options, "id"))
	removed, err := h.player.Remove(ctx, inv.GuildID, id)
	if err != nil {
		return h.reply(err, "")
	}
	if !removed {
		return fmt.Sprintf("No queued track with id %d.", id)
	}
	return fmt.Sprintf("Removed track %d from the queue.", id)
}

func (h *Handler) queue(ctx context.Context, inv Invocation) string {
	list, err := h.player.List(ctx, inv.GuildID, h.cfg.Playback.ListLimit)
	if err != nil {
		return h.reply(err, "")
	}
	return formatQueue(list)
}

func formatQueue(list playback.ListResult) string {
	var b strings.Builder
	if list.Current != nil {
		fmt.Fprintf(&b, "Now playing: **%s** (%s)", list.Current.Track.Title, track.FormatDuration(list.Current.Track.Duration))
		if list.State == playback.StatePaused {
			b.WriteString(" [paused]")
		}
		b.WriteString("\n")
	} else {
		b.WriteString("Nothing is playing right now.\n")
	}
	if list.Looping {
		b.WriteString("Looping is on.\n")
	}
	if len(list.Entries) == 0 {
		b.WriteString("The queue is empty.")
		return b.String()
	}
	for i, e := range list.Entries {
		fmt.Fprintf(&b, "%d. **%s** (%s) requested by %s [id %d]\n",
			i+1, e.Track.Title, track.FormatDuration(e.Track.Duration), e.Requester.Name, e.ID)
	}
	if rest := list.Total - len(list.Entries); rest > 0 {
		fmt.Fprintf(&b, "...and %d more.", rest)
	}
	return strings.TrimRight(b.String(), "\n")
}

func optString(opts map[string]any, name string) string {
	s, _ := opts[name].(string)
	return s
}

func optBool(opts map[string]any, name string) bool {
	v, _ := opts[name].(bool)
	return v
}

// optFloat reads a numeric option; the gateway delivers integers as float64.
func optFloat(opts map[string]any, name string) float64 {
	switch v := opts[name].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case int64:
		return float64(v)
	default:
		return 0
	}
}
