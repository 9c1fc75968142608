package discord

import (
	"context"

	"github.com/bwmarrin/discordgo"
	"github.com/cockroachdb/errors"

	"github.com/osa030/groovebox/internal/app/playback"
)

// Notifier posts driver notices to text channels.
type Notifier struct {
	session *discordgo.Session
}

var _ playback.Notifier = (*Notifier)(nil)

// NewNotifier creates a notifier on session.
func NewNotifier(session *discordgo.Session) *Notifier {
	return &Notifier{session: session}
}

// Notify sends message to the text channel targetID.
func (n *Notifier) Notify(ctx context.Context, targetID, message string) error {
	if targetID == "" {
		return nil
	}
	if _, err := n.session.ChannelMessageSend(targetID, message, discordgo.WithContext(ctx)); err != nil {
		return errors.Wrapf(err, "send message to %s", targetID)
	}
	return nil
}
