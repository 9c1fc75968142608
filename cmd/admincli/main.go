// Package main provides the admin CLI entry point.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"github.com/joho/godotenv"

	"github.com/osa030/groovebox/internal/api/dashboard"
)

var (
	app     = kingpin.New("groovebox-admincli", "groovebox admin client")
	server  = app.Flag("server", "Dashboard address").Default("http://localhost:5000").String()
	token   = app.Flag("token", "Admin token (or set ADMIN_TOKEN env)").Envar("ADMIN_TOKEN").String()
	timeout = app.Flag("timeout", "Request timeout").Default("15s").Duration()

	// status command
	statusCmd   = app.Command("status", "Show a guild's playback state and queue").Alias("queue")
	statusGuild = statusCmd.Arg("guild-id", "Guild ID").Required().String()

	// pause command
	pauseCmd   = app.Command("pause", "Pause playback")
	pauseGuild = pauseCmd.Arg("guild-id", "Guild ID").Required().String()

	// resume command
	resumeCmd   = app.Command("resume", "Resume playback")
	resumeGuild = resumeCmd.Arg("guild-id", "Guild ID").Required().String()

	// skip command
	skipCmd   = app.Command("skip", "Skip the current track")
	skipGuild = skipCmd.Arg("guild-id", "Guild ID").Required().String()

	// stop command
	stopCmd   = app.Command("stop", "Stop playback and clear the queue")
	stopGuild = stopCmd.Arg("guild-id", "Guild ID").Required().String()

	// shuffle command
	shuffleCmd   = app.Command("shuffle", "Shuffle the queue")
	shuffleGuild = shuffleCmd.Arg("guild-id", "Guild ID").Required().String()

	// loop command
	loopCmd   = app.Command("loop", "Turn looping on or off")
	loopGuild = loopCmd.Arg("guild-id", "Guild ID").Required().String()
	loopMode  = loopCmd.Arg("mode", "on or off").Required().Enum("on", "off")

	// volume command
	volumeCmd     = app.Command("volume", "Set the volume")
	volumeGuild   = volumeCmd.Arg("guild-id", "Guild ID").Required().String()
	volumePercent = volumeCmd.Arg("percent", "Volume from 0 to 100").Required().Float64()

	// remove command
	removeCmd   = app.Command("remove", "Remove a queued track")
	removeGuild = removeCmd.Arg("guild-id", "Guild ID").Required().String()
	removeID    = removeCmd.Arg("id", "Queue entry ID").Required().Int64()
)

func main() {
	// Load .env file if it exists (errors are ignored)
	_ = godotenv.Load()

	// Parse command
	command := kingpin.MustParse(app.Parse(os.Args[1:]))

	// Check admin token
	if *token == "" {
		fmt.Println("Error: admin token is required (use --token or ADMIN_TOKEN env)")
		os.Exit(1)
	}

	client := dashboard.NewClient(*server, *token, nil)
	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	// Execute command
	var (
		resp dashboard.ActionResponse
		err  error
	)
	switch command {
	case statusCmd.FullCommand():
		status(ctx, client, *statusGuild)
		return
	case pauseCmd.FullCommand():
		resp, err = client.Pause(ctx, *pauseGuild)
	case resumeCmd.FullCommand():
		resp, err = client.Resume(ctx, *resumeGuild)
	case skipCmd.FullCommand():
		resp, err = client.Skip(ctx, *skipGuild)
	case stopCmd.FullCommand():
		resp, err = client.Stop(ctx, *stopGuild)
	case shuffleCmd.FullCommand():
		resp, err = client.Shuffle(ctx, *shuffleGuild)
	case loopCmd.FullCommand():
		resp, err = client.SetLoop(ctx, *loopGuild, *loopMode == "on")
	case volumeCmd.FullCommand():
		resp, err = client.SetVolume(ctx, *volumeGuild, *volumePercent)
	case removeCmd.FullCommand():
		resp, err = client.Remove(ctx, *removeGuild, *removeID)
	}
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(resp.Message)
}

func status(ctx context.Context, client *dashboard.Client, guildID string) {
	s, err := client.State(ctx, guildID)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("\n=== GUILD STATUS ===")
	fmt.Printf("Guild: %s\n", s.GuildID)
	fmt.Printf("Bot Connected: %v\n", s.BotReady)
	fmt.Printf("State: %s\n", s.State)
	fmt.Printf("Volume: %.0f%%\n", s.Volume*100)
	fmt.Printf("Looping: %v\n", s.Looping)

	if s.CurrentTrack != nil {
		fmt.Printf("\nCurrently Playing:\n")
		fmt.Printf("  Title: %s\n", s.CurrentTrack.Title)
		fmt.Printf("  URL: %s\n", s.CurrentTrack.URL)
		fmt.Printf("  Duration: %s\n", s.CurrentTrack.Duration)
		fmt.Printf("  Requested by: %s\n", s.CurrentTrack.Requester)
	} else {
		fmt.Println("\nNo track currently playing")
	}

	fmt.Printf("\nQueue (%d):\n", len(s.Queue))
	for i, t := range s.Queue {
		fmt.Printf("  %d. [%d] %s (%s) - %s\n", i+1, t.ID, t.Title, t.Duration, t.Requester)
	}
	fmt.Printf("\nFetched at %s\n\n", time.Now().Format(time.TimeOnly))
}
