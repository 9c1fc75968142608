package discord

import "github.com/bwmarrin/discordgo"

// Slash command names.
const (
	cmdPlay    = "play"
	cmdPause   = "pause"
	cmdResume  = "resume"
	cmdSkip    = "skip"
	cmdStop    = "stop"
	cmdLoop    = "loop"
	cmdShuffle = "shuffle"
	cmdVolume  = "volume"
	cmdRemove  = "remove"
	cmdQueue   = "queue"
)

var minVolume = 0.0

// commandDefinitions returns the slash commands registered in every guild.
func commandDefinitions() []*discordgo.ApplicationCommand {
	return []*discordgo.ApplicationCommand{
		{
			Name:        cmdPlay,
			Description: "Play a song or add it to the queue.",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "song_query",
					Description: "search query",
					Required:    true,
				},
			},
		},
		{Name: cmdPause, Description: "Pause the current song."},
		{Name: cmdResume, Description: "Resume the paused song."},
		{Name: cmdSkip, Description: "Skip the current song."},
		{Name: cmdStop, Description: "Stop the music and disconnect."},
		{
			Name:        cmdLoop,
			Description: "Loop the queue.",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionBoolean,
					Name:        "enabled",
					Description: "Turn looping on or off",
					Required:    true,
				},
			},
		},
		{Name: cmdShuffle, Description: "Shuffle the queue."},
		{
			Name:        cmdVolume,
			Description: "Set the playback volume.",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionInteger,
					Name:        "percent",
					Description: "Volume from 0 to 100",
					Required:    true,
					MinValue:    &minVolume,
					MaxValue:    100,
				},
			},
		},
		{
			Name:        cmdRemove,
			Description: "Remove a track from the queue.",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionInteger,
					Name:        "id",
					Description: "Queue entry id, as shown by /queue",
					Required:    true,
				},
			},
		},
		{Name: cmdQueue, Description: "Show the current song and the queue."},
	}
}
