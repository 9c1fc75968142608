package discord

import (
	"context"
	"sync"

	"github.com/bwmarrin/discordgo"
	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/groovebox/internal/app/playback"
	"github.com/osa030/groovebox/internal/infra/audio"
)

// VoiceConn is a joined voice channel. It carries Opus frames for the audio backend.
type VoiceConn struct {
	vc *discordgo.VoiceConnection
}

var (
	_ playback.Connection = (*VoiceConn)(nil)
	_ audio.Sink          = (*VoiceConn)(nil)
)

func (c *VoiceConn) GuildID() string              { return c.vc.GuildID }
func (c *VoiceConn) ChannelID() string            { return c.vc.ChannelID }
func (c *VoiceConn) Frames() chan<- []byte        { return c.vc.OpusSend }
func (c *VoiceConn) Speaking(speaking bool) error { return c.vc.Speaking(speaking) }

// Connector joins voice channels through a gateway session.
type Connector struct {
	mu      sync.Mutex
	session *discordgo.Session
}

var _ playback.Connector = (*Connector)(nil)

// NewConnector creates a connector on session.
func NewConnector(session *discordgo.Session) *Connector {
	return &Connector{session: session}
}

// Connect joins channelID, moving an existing connection in the guild when needed.
func (c *Connector) Connect(ctx context.Context, guildID, channelID string) (playback.Connection, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	vc, err := c.session.ChannelVoiceJoin(guildID, channelID, false, true)
	if err != nil {
		return nil, errors.Wrapf(err, "join voice channel %s", channelID)
	}
	zlog.Info().Msgf("discord: voice joined: guild=%s channel=%s", guildID, channelID)
	return &VoiceConn{vc: vc}, nil
}

// Disconnect leaves the guild's voice channel. Not being connected is not an error.
func (c *Connector) Disconnect(ctx context.Context, guildID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.session.RLock()
	vc, ok := c.session.VoiceConnections[guildID]
	c.session.RUnlock()
	if !ok {
		return nil
	}
	if err := vc.Disconnect(); err != nil {
		return errors.Wrapf(err, "leave voice in guild %s", guildID)
	}
	zlog.Info().Msgf("discord: voice left: guild=%s", guildID)
	return nil
}

// VoiceChannelOf returns a VoiceLookup backed by the session's state cache.
func VoiceChannelOf(session *discordgo.Session) VoiceLookup {
	return func(guildID, userID string) (string, bool) {
		vs, err := session.State.VoiceState(guildID, userID)
		if err != nil || vs.ChannelID == "" {
			return "", false
		}
		return vs.ChannelID, true
	}
}
