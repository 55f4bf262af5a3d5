package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/Netflix/go-env"
	"github.com/dgraph-io/badger/v4"
	"github.com/joho/godotenv"
	"github.com/mama165/sdk-go/logs"

	"chat-relay/moderation"
	"chat-relay/observability"
	"chat-relay/repositories"
	"chat-relay/runtime"
	"chat-relay/runtime/workers"
	"chat-relay/ws"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Fatal error: %v\n", err)
		os.Exit(1)
	}
}

// run wires every component together and owns the shutdown order, so all
// defers (database close in particular) execute before main exits.
func run() error {
	// Optional .env for local runs; real deployments set the environment.
	_ = godotenv.Load()

	var config Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	log := logs.GetLoggerFromString(config.LogLevel)

	db, err := badger.Open(badger.DefaultOptions(config.BadgerFilepath).
		WithLoggingLevel(badger.WARNING))
	if err != nil {
		return fmt.Errorf("database opening failed: %w", err)
	}
	defer func() {
		log.Info("Closing BadgerDB...")
		_ = db.Close()
	}()

	var moderator *moderation.Moderator
	if words := splitWords(config.CensoredWords); len(words) > 0 {
		replacement, err := config.CharacterRune()
		if err != nil {
			return fmt.Errorf("config error: %w", err)
		}
		if moderator, err = moderation.NewModerator(words, replacement); err != nil {
			return fmt.Errorf("moderation setup failed: %w", err)
		}
		log.Info("Moderation enabled", "words", len(words))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	monitor := observability.NewMonitor()
	sup := workers.NewSupervisor(log, config.RestartInterval)
	history := repositories.NewHistoryRepository(db, log)
	limiters := runtime.NewLimiterRegistry(ctx,
		config.RateLimitInterval, config.RateLimitGrace, config.LimiterIdleTTL, log)
	rooms := runtime.NewRoomRegistry(ctx, sup, history, limiters, moderator,
		monitor, config.HistoryLimit, config.BufferSize, log)

	server := ws.NewServer(config.Host, config.Port, rooms, config.ConnectionBufferSize, log)
	sup.Add(server, workers.NewHeartbeatWorker(log, config.HeartbeatInterval, monitor))

	// Blocks until the signal context cancels and every worker, room actor
	// included, has wound down.
	sup.Run(ctx)

	log.Info("Program stopped cleanly")
	return nil
}

func splitWords(raw string) []string {
	var words []string
	for _, w := range strings.Split(raw, ",") {
		if w = strings.TrimSpace(w); w != "" {
			words = append(words, w)
		}
	}
	return words
}
