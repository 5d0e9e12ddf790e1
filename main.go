package main

import (
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/BugBridge/BugBridge/internal/bugs"
	"github.com/BugBridge/BugBridge/internal/config"
	"github.com/BugBridge/BugBridge/internal/database"
	"github.com/BugBridge/BugBridge/internal/domain"
	"github.com/BugBridge/BugBridge/internal/events"
	"github.com/BugBridge/BugBridge/internal/http"
	"github.com/BugBridge/BugBridge/internal/logger"
	"github.com/BugBridge/BugBridge/internal/scheduler"
	"github.com/BugBridge/BugBridge/internal/server"
	"github.com/BugBridge/BugBridge/internal/signature"
	"github.com/BugBridge/BugBridge/internal/sync"
	"github.com/BugBridge/BugBridge/internal/upstream"
	"github.com/asaskevich/EventBus"
	"github.com/joho/godotenv"
	"github.com/r3labs/sse/v2"
	"github.com/spf13/pflag"
)

var (
	version = "dev"
	commit  = ""
	date    = ""
)

func main() {
	var configPath string
	pflag.StringVar(&configPath, "config", "", "path to configuration file")
	pflag.Parse()

	// optional .env next to the binary, environment wins over config file
	_ = godotenv.Load()

	// read config
	cfg := config.New(configPath, version)

	// init new logger
	log := logger.New(cfg.Config)

	// init dynamic config
	cfg.DynamicReload(log)

	// setup server-sent-events
	serverEvents := sse.New()
	serverEvents.CreateStreamWithOpts("logs", sse.StreamOpts{MaxEntries: 1000, AutoReplay: true})

	// register SSE writer
	log.RegisterSSEWriter(serverEvents)

	// setup internal eventbus
	bus := EventBus.New()

	// open database connection
	db, err := database.NewDB(cfg.Config, log)
	if err != nil {
		log.Fatal().Err(err).Msg("could not create new db")
	}

	if err := db.Open(); err != nil {
		log.Fatal().Err(err).Msg("could not open db connection")
	}

	log.Info().Msgf("Starting BugBridge")
	log.Info().Msgf("Version: %s", version)
	log.Info().Msgf("Commit: %s", commit)
	log.Info().Msgf("Build date: %s", date)
	log.Info().Msgf("Log-level: %s", cfg.Config.Logging.Level)
	log.Info().Msgf("Using database: %s", db.Driver)

	// setup repos
	var (
		bugRepo        = database.NewBugRepo(log, db)
		syncRecordRepo = database.NewSyncRecordRepo(log, db)
		checkpointRepo = database.NewCheckpointRepo(log, db)
	)

	// signed transport to the primary system
	drift := time.Duration(cfg.Config.Webhook.SignatureDriftMs) * time.Millisecond
	upstreamCodec := signature.NewCodec(cfg.Config.Upstream.SecretKey, drift)
	webhookCodec := signature.NewCodec(cfg.Config.Webhook.SecretKey, drift)

	classifier := upstream.NewClassifier(log, upstream.NoopSink{})
	upstreamClient := upstream.NewClient(log, cfg.Config.Upstream, upstreamCodec, classifier)
	bugService := bugs.NewService(log, upstreamClient)

	schedulingService := scheduler.NewService(log)

	// sync strategies and managers
	pollingCfg := domain.SyncConfig{
		Interval:         time.Duration(cfg.Config.Sync.PollingIntervalMs) * time.Millisecond,
		BatchSize:        cfg.Config.Sync.PollingBatchSize,
		MaxRetries:       cfg.Config.Sync.MaxRetries,
		EnabledEntities:  cfg.Config.Sync.EnabledEntities,
		StrictCheckpoint: cfg.Config.Sync.StrictCheckpoint,
	}

	var (
		pollingSync     = sync.NewPollingSync(log, schedulingService, bugService, bugRepo, checkpointRepo, pollingCfg, sync.PollingJobID)
		incrementalSync = sync.NewIncrementalSync(log, schedulingService, bugService, bugRepo, checkpointRepo, syncRecordRepo, cfg.Config.Sync.Incremental, cfg.Config.Sync.StrictCheckpoint)
		webhookSync     = sync.NewWebHookSync(log, webhookCodec, cfg.Config.Webhook, bugRepo)
		syncManager     = sync.NewSyncManager(log, cfg.Config.Sync, cfg.Config.Webhook, schedulingService, bus, pollingSync, incrementalSync, webhookSync)

		bugPollingSync = sync.NewPollingSync(log, schedulingService, bugService, bugRepo, checkpointRepo, pollingCfg, "sync-bugs-polling")
		bugWebhookSync = sync.NewWebHookSync(log, webhookCodec, cfg.Config.Webhook, bugRepo)
		bugSyncManager = sync.NewBugSyncManager(log, cfg.Config.Sync, cfg.Config.Webhook, bugPollingSync, bugWebhookSync, schedulingService)
	)

	// register event subscribers
	events.NewSubscribers(log, bus)

	errorChannel := make(chan error)

	go func() {
		httpServer := http.NewServer(
			log,
			cfg,
			serverEvents,
			db,
			version,
			commit,
			date,
			syncManager,
			bugSyncManager,
			syncRecordRepo,
		)
		errorChannel <- httpServer.Open()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGHUP, syscall.SIGINT, syscall.SIGQUIT, syscall.SIGTERM)

	srv := server.NewServer(log, cfg.Config, schedulingService, syncManager, bugSyncManager)
	if err := srv.Start(); err != nil {
		log.Fatal().Stack().Err(err).Msg("could not start server")
		return
	}

	for sig := range sigCh {
		switch sig {
		case syscall.SIGHUP:
			log.Log().Msg("shutting down server sighup")
			srv.Shutdown()
			if err := db.Close(); err != nil {
				log.Error().Stack().Err(err).Msg("could not close db connection")
			}
			os.Exit(1)
		case syscall.SIGINT, syscall.SIGQUIT, syscall.SIGTERM:
			log.Info().Msg("Shutting down server...")
			srv.Shutdown()
			if err := db.Close(); err != nil {
				log.Error().Stack().Err(err).Msg("could not close db connection")
			}
			os.Exit(0)
		}
	}
}
