// Package main provides a read-only dashboard client.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kingpin/v2"
	"github.com/joho/godotenv"

	"github.com/osa030/groovebox/internal/api/dashboard"
	"github.com/osa030/groovebox/internal/app/notification"
)

var (
	app    = kingpin.New("groovebox-usercli", "groovebox read-only client")
	server = app.Flag("server", "Dashboard address").Default("http://localhost:5000").String()

	// guilds command
	guildsCmd = app.Command("guilds", "List guilds with playback state").Default()

	// watch command
	watchCmd   = app.Command("watch", "Stream a guild's updates")
	watchGuild = watchCmd.Arg("guild-id", "Guild ID").Required().String()
)

func main() {
	// Load .env file if it exists (errors are ignored)
	_ = godotenv.Load()

	// Parse command
	command := kingpin.MustParse(app.Parse(os.Args[1:]))

	client := dashboard.NewClient(*server, "", nil)

	// Cancel on Ctrl-C
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Execute command
	switch command {
	case guildsCmd.FullCommand():
		listGuilds(ctx, client)
	case watchCmd.FullCommand():
		watch(ctx, client, *watchGuild)
	}
}

func listGuilds(ctx context.Context, client *dashboard.Client) {
	guilds, err := client.Guilds(ctx)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Guilds (%d):\n", len(guilds))
	for _, g := range guilds {
		current := "-"
		if g.CurrentTrack != nil {
			current = g.CurrentTrack.Title
		}
		fmt.Printf("  %s: %s (queue: %d, volume: %.0f%%, now: %s)\n",
			g.GuildID, g.State, len(g.Queue), g.Volume*100, current)
	}
}

func watch(ctx context.Context, client *dashboard.Client, guildID string) {
	fmt.Printf("Watching guild %s (Ctrl-C to stop)\n", guildID)
	err := client.Watch(ctx, guildID, func(u notification.Update) {
		s := u.Snapshot
		current := "nothing"
		if s.CurrentTrack != nil {
			current = s.CurrentTrack.Title
		}
		fmt.Printf("[#%d] %s: state=%s now=%s queue=%d volume=%.0f%% loop=%v\n",
			u.SequenceNo, u.Event, s.State, current, len(s.Queue), s.Volume*100, s.Looping)
	})
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
}
