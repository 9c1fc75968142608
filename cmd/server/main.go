// Package main provides the server entry point.
package main

import (
	"context"
	"fmt"
	"maps"
	"net/http"
	"os"
	"os/signal"
	"slices"
	"strings"
	"syscall"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"github.com/joho/godotenv"
	zlog "github.com/rs/zerolog/log"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/osa030/groovebox/internal/api/dashboard"
	"github.com/osa030/groovebox/internal/app/filter"
	"github.com/osa030/groovebox/internal/app/notification"
	"github.com/osa030/groovebox/internal/app/playback"
	"github.com/osa030/groovebox/internal/app/resolver"
	"github.com/osa030/groovebox/internal/infra/audio"
	"github.com/osa030/groovebox/internal/infra/config"
	"github.com/osa030/groovebox/internal/infra/discord"
	"github.com/osa030/groovebox/internal/infra/logger"
	"github.com/osa030/groovebox/internal/infra/store"
)

var (
	app        = kingpin.New("groovebox-server", "groovebox music bot server")
	configPath = app.Flag("config", "Path to config file").Default("config/server.yaml").String()
	verbose    = app.Flag("verbose", "Enable verbose (DEBUG) logging").Short('v').Bool()
	logfile    = app.Flag("logfile", "Path to log file (overrides log.file)").String()

	// list-filters command
	listFiltersCmd = app.Command("list-filters", "List available filters and exit")
)

func init() {
	// start command (default) - no need to store the command
	app.Command("start", "Start the server (default)").Default()
}

func main() {
	// Load .env file if it exists (errors are ignored)
	_ = godotenv.Load()

	// Parse command
	command := kingpin.MustParse(app.Parse(os.Args[1:]))

	// Handle list-filters command
	if command == listFiltersCmd.FullCommand() {
		printFilters()
		return
	}

	// Console logging until the config says otherwise
	if err := logger.Init(logger.Config{Level: "info"}); err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}

	// Load config
	zlog.Info().Msgf("Loading config from %s", *configPath)
	cfg, err := config.Load(*configPath)
	if err != nil {
		zlog.Fatal().Msgf("Failed to load config: %v", err)
	}

	// Override with command-line flags if specified
	if *verbose {
		cfg.Log.Level = "debug"
	}
	if *logfile != "" {
		cfg.Log.File = *logfile
	}
	if err := logger.Init(logger.Config{
		Level:      cfg.Log.Level,
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
	}); err != nil {
		zlog.Fatal().Msgf("Failed to initialize logger: %v", err)
	}

	if err := run(cfg); err != nil {
		zlog.Error().Msgf("Server error: %v", err)
		os.Exit(1)
	}
}

// run executes the main server logic. Using a separate function ensures
// defer statements are executed even when returning with an error.
func run(cfg *config.Config) error {
	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	// Open the queue store
	queue, err := store.Open(ctx, store.Config{
		Path:        cfg.Store.Path,
		BusyTimeout: cfg.Store.BusyTimeout(),
	})
	if err != nil {
		return fmt.Errorf("failed to open queue store: %w", err)
	}
	defer func() {
		if err := queue.Close(); err != nil {
			zlog.Error().Msgf("Failed to close queue store: %v", err)
		}
	}()

	// Build the resolver chain
	res, err := resolver.NewFromConfig(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to create resolver: %w", err)
	}

	// Gateway session; the voice and chat adapters share it
	session, err := discord.NewSession(cfg.Discord.Token)
	if err != nil {
		return err
	}

	playbackCfg := playback.ConfigFromSettings(cfg.Playback)
	bridge := playback.NewBridge(playbackCfg.CompletionBuffer)
	backend := audio.NewBackend(audio.ConfigFromSettings(cfg.Audio), bridge)

	registry := playback.NewRegistry(playbackCfg, playback.Deps{
		Queue:     queue,
		Resolver:  res,
		Backend:   backend,
		Connector: discord.NewConnector(session),
		Notifier:  discord.NewNotifier(session),
		Admission: filter.NewChainFromConfig(cfg),
		Bridge:    bridge,
	})
	defer registry.Close()
	defer backend.Close()

	// Dashboard notifications
	notifyMgr := notification.NewManager()
	defer notifyMgr.Close()
	go notifyMgr.Run(ctx, registry.Events(), registry.Snapshot)

	// Chat commands; a play may wait on resolution, so allow it well past the command timeout
	handler := discord.NewHandler(cfg, registry, discord.VoiceChannelOf(session))
	bot := discord.NewBot(cfg, session, handler, registry, 4*playbackCfg.CommandTimeout)
	if err := bot.Open(); err != nil {
		return err
	}
	defer func() {
		if err := bot.Close(); err != nil {
			zlog.Error().Msgf("Failed to close discord session: %v", err)
		}
	}()

	// Create server with h2c (HTTP/2 cleartext) support
	serverAddr := cfg.Server.Addr
	server := &http.Server{
		Addr:              serverAddr,
		Handler:           h2c.NewHandler(dashboard.New(cfg, registry, notifyMgr), &http2.Server{}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Channel to capture server startup errors
	serverErrCh := make(chan error, 1)

	// Start server
	go func() {
		zlog.Info().Msgf("Starting server: addr=%s", serverAddr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrCh <- err
		}
	}()

	// Wait for shutdown signal or server error
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-sigCh:
		zlog.Info().Msg("Received shutdown signal...")
	case err := <-serverErrCh:
		return fmt.Errorf("server error: %w", err)
	}

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Stop pushing updates so dashboard sockets can drain
	stop()

	if err := server.Shutdown(shutdownCtx); err != nil {
		zlog.Error().Msgf("Failed to shutdown server: %v", err)
	}

	zlog.Info().Msg("Server stopped")
	return nil
}

// printFilters prints available filters.
func printFilters() {
	fmt.Println("Available Filters:")
	registered := filter.GetRegistered()
	for _, name := range slices.Sorted(maps.Keys(registered)) {
		f := registered[name]()
		codes := strings.Join(f.ReturnCodes(), ", ")
		fmt.Printf("  %-30s - %s [codes: %s]\n", name, f.Description(), codes)
	}
}
