// Command mintcast runs the AI-character chat relay.
// It:
//   - Loads configuration and initializes structured logging.
//   - Connects to Postgres, migrates the schema, and seeds the forwarder list.
//   - Attaches to the initial chat room and runs the filter/queue/AI/TTS
//     pipeline, broadcasting results to viewers over WebSocket.
//   - Exposes an HTTP server with /healthz, /readyz, /status, /metrics, /ws,
//     and the /admin surface for room switching and forwarder management.
//
// Shutdown is graceful on SIGINT/SIGTERM.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/onnwee/mintcast/ai"
	"github.com/onnwee/mintcast/broadcast"
	"github.com/onnwee/mintcast/config"
	"github.com/onnwee/mintcast/db"
	"github.com/onnwee/mintcast/forwarder"
	"github.com/onnwee/mintcast/pipeline"
	"github.com/onnwee/mintcast/server"
	"github.com/onnwee/mintcast/session"
	"github.com/onnwee/mintcast/telemetry"
	"github.com/onnwee/mintcast/tts"
)

func main() {
	// Load .env file if present (local dev convenience only; production relies on real env)
	_ = godotenv.Load()

	// Configure logging (level + format). Defaults: level=info, format=text.
	lvl := slog.LevelInfo
	switch strings.ToLower(os.Getenv("LOG_LEVEL")) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	case "info", "":
		// keep default
	default:
		tmp := slog.New(slog.NewTextHandler(os.Stdout, nil))
		tmp.Warn("unknown LOG_LEVEL, using info", slog.String("value", os.Getenv("LOG_LEVEL")))
	}
	var handler slog.Handler
	if strings.ToLower(os.Getenv("LOG_FORMAT")) == "json" {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	} else {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	}
	slog.SetDefault(slog.New(handler))

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", slog.Any("err", err))
		os.Exit(1)
	}

	telemetry.Init()

	// OpenTelemetry tracing (optional; requires OTEL_EXPORTER_OTLP_ENDPOINT)
	shutdownTracing, err := telemetry.InitTracing("mintcast", "1.0.0")
	if err != nil {
		slog.Error("tracing initialization failed", slog.Any("err", err))
		os.Exit(1)
	}
	defer shutdownTracing()

	database, err := db.Connect()
	if err != nil {
		slog.Error("failed to open db", slog.Any("err", err))
		os.Exit(1)
	}
	defer func() {
		if err := database.Close(); err != nil {
			slog.Error("failed to close database", slog.Any("err", err))
		}
	}()

	migrateCtx := context.Background()
	if err := db.Migrate(migrateCtx, database); err != nil {
		slog.Error("failed to migrate db", slog.Any("err", err))
		os.Exit(1)
	}

	// Root context with graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Forwarder registry, persisted in Postgres. FORWARDER_URLS seeds an empty
	// list; a populated one is left alone so operator edits survive restarts.
	registry := forwarder.NewRegistry(&forwarder.PostgresStore{DB: database})
	var seedURLs []string
	for _, u := range strings.Split(os.Getenv("FORWARDER_URLS"), ",") {
		if u = strings.TrimSpace(u); u != "" {
			seedURLs = append(seedURLs, u)
		}
	}
	if err := registry.EnsureSeed(ctx, seedURLs); err != nil {
		slog.Error("forwarder seed failed", slog.Any("err", err))
		os.Exit(1)
	}

	// Pipeline wiring
	hub := broadcast.NewHub()
	gate := pipeline.NewGate(pipeline.FilterPolicy{
		MinLen:       cfg.FilterMinLen,
		MaxLen:       cfg.FilterMaxLen,
		Keywords:     cfg.FilterKeywords,
		PromoEnabled: cfg.FilterPromoEnabled,
		RequireAlnum: cfg.FilterRequireAlnum,
		SeenCapacity: cfg.SeenCapacity,
	})
	history := pipeline.NewWindow(cfg.HistoryCapacity)

	pollyCfg := tts.PollyConfigFromEnv()
	pollyCfg.VoiceID = cfg.TTSVoice
	pollyCfg.Engine = cfg.TTSEngine

	proc := &pipeline.Processor{
		Responder:     ai.NewClient(cfg.AISystemInstruction, cfg.AITimeout),
		Registry:      registry,
		Speech:        tts.NewPolly(pollyCfg),
		History:       history,
		Sink:          hub,
		DB:            database,
		FallbackReply: cfg.FallbackReply,
		DiscardStale:  cfg.DiscardStaleBroadcasts,
	}
	queue := pipeline.NewQueue(ctx, proc.Process)
	proc.CurrentGen = queue.Generation

	// Session controller over the Twitch feed. The attached room is journaled
	// to the kv table so a restart rejoins where it left off.
	feed := &session.TwitchFeed{Username: cfg.TwitchBotUsername, OAuthToken: cfg.TwitchOAuthToken}
	controller := session.NewController(feed, gate, history, queue)
	controller.Journal = func(jctx context.Context, roomID string) {
		if err := db.SetKV(jctx, database, "current_room", roomID); err != nil {
			slog.Warn("room journal write failed", slog.Any("err", err))
		}
	}
	proc.Room = controller.CurrentRoom

	if err := cfg.ValidateFeedReady(); err != nil {
		slog.Info("twitch feed connecting anonymously", slog.Any("reason", err))
	}
	initialRoom := cfg.InitialRoom
	if initialRoom == "" {
		if journaled, err := db.GetKV(ctx, database, "current_room"); err != nil {
			slog.Warn("room journal read failed", slog.Any("err", err))
		} else if journaled != "" {
			initialRoom = journaled
			slog.Info("resuming journaled room", slog.String("room", journaled))
		}
	}
	if initialRoom != "" {
		if err := controller.SwitchRoom(ctx, initialRoom); err != nil {
			slog.Error("initial room attach failed", slog.Any("err", err), slog.String("room", initialRoom))
		}
	} else {
		slog.Info("no INITIAL_ROOM configured, starting idle")
	}

	// HTTP server
	addr := os.Getenv("HTTP_ADDR")
	if addr == "" {
		addr = ":8080"
	}
	handlers := server.NewHandlers(database, registry, controller, hub, queue)
	go func() {
		if err := server.Start(ctx, handlers, addr); err != nil {
			slog.Error("http server exited with error", slog.Any("err", err))
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down")
}
