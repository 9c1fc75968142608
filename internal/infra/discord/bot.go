// Package discord connects the playback registry to the Discord gateway.
package discord

import (
	"context"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/groovebox/internal/domain/track"
	"github.com/osa030/groovebox/internal/infra/config"
)

// ReadyTracker records gateway readiness and learns guilds as they appear.
type ReadyTracker interface {
	SetReady(ready bool)
}

// Bot owns the gateway session and routes slash commands to the handler.
type Bot struct {
	cfg     *config.Config
	session *discordgo.Session
	handler *Handler
	tracker ReadyTracker
	timeout time.Duration
}

// NewSession creates a gateway session with the intents the bot needs.
func NewSession(token string) (*discordgo.Session, error) {
	s, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, errors.Wrap(err, "create discord session")
	}
	s.Identify.Intents = discordgo.IntentsGuilds | discordgo.IntentsGuildVoiceStates
	return s, nil
}

// NewBot creates a bot on session. Commands are answered within timeout.
func NewBot(cfg *config.Config, session *discordgo.Session, handler *Handler, tracker ReadyTracker, timeout time.Duration) *Bot {
	b := &Bot{
		cfg:     cfg,
		session: session,
		handler: handler,
		tracker: tracker,
		timeout: timeout,
	}
	session.AddHandler(b.onReady)
	session.AddHandler(b.onDisconnect)
	session.AddHandler(b.onResumed)
	session.AddHandler(b.onInteractionCreate)
	return b
}

// Open connects to the gateway.
func (b *Bot) Open() error {
	if err := b.session.Open(); err != nil {
		return errors.Wrap(err, "open discord session")
	}
	return nil
}

// Close leaves every voice channel and closes the gateway.
func (b *Bot) Close() error {
	b.tracker.SetReady(false)
	b.session.RLock()
	conns := make([]*discordgo.VoiceConnection, 0, len(b.session.VoiceConnections))
	for _, vc := range b.session.VoiceConnections {
		conns = append(conns, vc)
	}
	b.session.RUnlock()
	for _, vc := range conns {
		if err := vc.Disconnect(); err != nil {
			zlog.Warn().Msgf("discord: voice disconnect failed: guild=%s error=%v", vc.GuildID, err)
		}
	}
	return b.session.Close()
}

func (b *Bot) onReady(s *discordgo.Session, r *discordgo.Ready) {
	zlog.Info().Msgf("discord: ready: user=%s guilds=%d", r.User.Username, len(r.Guilds))
	if err := s.UpdateCustomStatus(b.cfg.Discord.Status); err != nil {
		zlog.Warn().Msgf("discord: status update failed: error=%v", err)
	}

	guildIDs := b.cfg.Discord.GuildIDs
	if len(guildIDs) == 0 {
		// Global registration.
		guildIDs = []string{""}
	}
	for _, guildID := range guildIDs {
		if _, err := s.ApplicationCommandBulkOverwrite(r.User.ID, guildID, commandDefinitions()); err != nil {
			zlog.Error().Msgf("discord: command registration failed: guild=%s error=%v", guildID, err)
			continue
		}
		zlog.Info().Msgf("discord: commands registered: guild=%s", guildID)
	}
	b.tracker.SetReady(true)
}

func (b *Bot) onDisconnect(s *discordgo.Session, _ *discordgo.Disconnect) {
	zlog.Warn().Msg("discord: gateway disconnected")
	b.tracker.SetReady(false)
}

func (b *Bot) onResumed(s *discordgo.Session, _ *discordgo.Resumed) {
	zlog.Info().Msg("discord: gateway resumed")
	b.tracker.SetReady(true)
}

func (b *Bot) onInteractionCreate(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if i.Type != discordgo.InteractionApplicationCommand {
		return
	}

	// Resolution can outlast the interaction deadline, so acknowledge first.
	if err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
	}); err != nil {
		zlog.Error().Msgf("discord: defer failed: error=%v", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), b.timeout)
	defer cancel()
	reply := b.handler.Execute(ctx, invocationOf(i))

	if _, err := s.FollowupMessageCreate(i.Interaction, false, &discordgo.WebhookParams{
		Content: reply,
	}); err != nil {
		zlog.Error().Msgf("discord: reply failed: error=%v", err)
	}
}

// invocationOf flattens an interaction into an Invocation.
func invocationOf(i *discordgo.InteractionCreate) Invocation {
	data := i.ApplicationCommandData()
	opts := make(map[string]any, len(data.Options))
	for _, o := range data.Options {
		opts[o.Name] = o.Value
	}

	user := i.User
	name := ""
	if i.Member != nil {
		user = i.Member.User
		name = i.Member.Nick
	}
	req := track.Requester{NotifyTargetID: i.ChannelID}
	if user != nil {
		req.UserID = user.ID
		if name == "" {
			name = user.GlobalName
		}
		if name == "" {
			name = user.Username
		}
	}
	req.Name = name

	return Invocation{
		Name:      data.Name,
		GuildID:   i.GuildID,
		Requester: req,
		Options:   opts,
	}
}
