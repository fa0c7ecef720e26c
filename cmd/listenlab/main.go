package main

import (
	"context"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/snarg/listenlab"
	"github.com/snarg/listenlab/internal/api"
	"github.com/snarg/listenlab/internal/config"
	"github.com/snarg/listenlab/internal/database"
	"github.com/snarg/listenlab/internal/ingest"
	"github.com/snarg/listenlab/internal/lesson"
	"github.com/snarg/listenlab/internal/metrics"
	"github.com/snarg/listenlab/internal/mqttclient"
	"github.com/snarg/listenlab/internal/source"
	"github.com/snarg/listenlab/internal/storage"
	"github.com/snarg/listenlab/internal/transcribe"
)

var version = "dev"

func main() {
	startTime := time.Now()

	var overrides config.Overrides
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.StringVar(&overrides.EnvFile, "env-file", "", "path to .env file (default .env)")
	flag.StringVar(&overrides.HTTPAddr, "listen", "", "HTTP listen address (overrides HTTP_ADDR)")
	flag.StringVar(&overrides.LogLevel, "log-level", "", "log level (overrides LOG_LEVEL)")
	flag.StringVar(&overrides.DatabaseURL, "database-url", "", "Postgres archive URL (overrides DATABASE_URL)")
	flag.StringVar(&overrides.AudioDir, "audio-dir", "", "audio storage directory (overrides AUDIO_DIR)")
	flag.StringVar(&overrides.WatchDir, "watch-dir", "", "drop folder for audio files (overrides WATCH_DIR)")
	flag.StringVar(&overrides.WhisperURL, "whisper-url", "", "Whisper transcription endpoint (overrides WHISPER_URL)")
	flag.Parse()

	if *showVersion {
		fmt.Println("listenlab", version)
		return
	}

	// Config
	cfg, err := config.Load(overrides)
	if err != nil {
		early := zerolog.New(os.Stderr).With().Timestamp().Logger()
		early.Fatal().Err(err).Msg("failed to load config")
	}

	// Logger
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	log := zerolog.New(os.Stdout).With().Timestamp().Logger().Level(level)
	log.Info().Str("version", version).Str("stt_provider", cfg.STTProvider).Msg("listenlab starting")

	// Context for graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := os.MkdirAll(cfg.AudioDir, 0o755); err != nil {
		log.Fatal().Err(err).Str("dir", cfg.AudioDir).Msg("failed to create audio directory")
	}

	// Database (optional archive)
	var db *database.DB
	if cfg.DatabaseURL != "" {
		db, err = database.Connect(ctx, cfg.DatabaseURL, log)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to database")
		}
		defer db.Close()
		if err := db.InitSchema(ctx); err != nil {
			log.Fatal().Err(err).Msg("failed to initialize schema")
		}
		if err := db.Migrate(ctx); err != nil {
			log.Fatal().Err(err).Msg("failed to run migrations")
		}
	} else {
		log.Info().Msg("DATABASE_URL not set, lesson archive disabled")
	}

	// Audio storage
	storeLog := log.With().Str("component", "storage").Logger()
	store, services, err := storage.New(cfg.S3, cfg.AudioDir, cfg.LessonTTL, storeLog)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize audio storage")
	}
	for _, svc := range services {
		svc.Start()
		defer svc.Stop()
	}

	// Audio source and recognizer
	ffmpeg := source.FFmpeg{Path: cfg.FFmpegPath}
	if !ffmpeg.Available() {
		log.Warn().Str("path", cfg.FFmpegPath).Msg("ffmpeg not found, lessons will fail until it is installed")
	}
	fetcher := source.NewFetcher(source.FetcherOptions{
		Downloader: source.NewYouTube(),
		Transcoder: ffmpeg,
		WorkDir:    filepath.Join(cfg.AudioDir, "work"),
		Log:        log.With().Str("component", "source").Logger(),
	})

	provider, err := transcribe.NewProvider(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create speech-to-text provider")
	}
	recognizer := transcribe.NewRecognizer(provider, log.With().Str("component", "transcribe").Logger())

	// Lessons
	lessonLog := log.With().Str("component", "lesson").Logger()
	registry := lesson.NewRegistry(cfg.LessonTTL, store, lessonLog)
	registry.Start()
	defer registry.Stop()

	events := lesson.NewEventBus(256)

	var archive lesson.ArchiveFunc
	if db != nil {
		archive = archiveLesson(db)
	}
	pipeline := lesson.NewPipeline(lesson.PipelineOptions{
		Registry:   registry,
		Source:     fetcher,
		Recognizer: recognizer,
		Store:      store,
		Events:     events,
		Archive:    archive,
		Workers:    cfg.LessonWorkers,
		QueueSize:  cfg.LessonQueueSize,
		Timeout:    cfg.FetchTimeout + cfg.WhisperTimeout,
		Log:        lessonLog,
	})
	pipeline.Start()
	defer pipeline.Stop()

	defaults := ingest.Defaults{Speed: cfg.DefaultSpeed, Language: cfg.DefaultLanguage}

	// MQTT (optional)
	var mqtt *mqttclient.Client
	var bridge *ingest.MQTTBridge
	if cfg.MQTTBrokerURL != "" {
		mqttLog := log.With().Str("component", "mqtt").Logger()
		requestTopic := mqttclient.Topic(cfg.MQTTTopicPrefix, "lessons", "request")
		mqtt, err = mqttclient.Connect(mqttclient.Options{
			BrokerURL: cfg.MQTTBrokerURL,
			ClientID:  cfg.MQTTClientID,
			Topics:    []string{requestTopic},
			QoS:       1,
			Username:  cfg.MQTTUsername,
			Password:  cfg.MQTTPassword,
			Log:       mqttLog,
		})
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to mqtt broker")
		}
		defer mqtt.Close()

		bridge = ingest.NewMQTTBridge(ingest.BridgeOptions{
			Prefix:    cfg.MQTTTopicPrefix,
			Defaults:  defaults,
			Submitter: pipeline,
			Publisher: mqtt,
			Events:    events,
			Log:       log,
		})
		mqtt.SetMessageHandler(bridge.HandleMessage)
		bridge.Start()
		defer bridge.Stop()
	}

	// Watch folder (optional)
	var watcher *ingest.FileWatcher
	if cfg.WatchDir != "" {
		watcher = ingest.NewFileWatcher(ingest.WatcherOptions{
			Dir:       cfg.WatchDir,
			Defaults:  defaults,
			Submitter: pipeline,
			Log:       log,
		})
		if err := watcher.Start(); err != nil {
			log.Fatal().Err(err).Str("dir", cfg.WatchDir).Msg("failed to start file watcher")
		}
		defer watcher.Stop()
	}

	// HTTP Server
	health := api.HealthDeps{
		Lessons:  pipeline,
		FFmpeg:   ffmpeg.Available,
		Provider: provider.Name(),
	}
	var archiveReader api.Archive
	if db != nil {
		health.DB = db
		archiveReader = db
	}
	if mqtt != nil {
		health.MQTT = mqtt
	}
	if watcher != nil {
		health.Watcher = watcher
	}

	webFiles, err := fs.Sub(listenlab.WebFiles, "web")
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open embedded web files")
	}

	httpLog := log.With().Str("component", "http").Logger()
	srv := api.NewServer(api.ServerOptions{
		Config:      cfg,
		Registry:    registry,
		Lessons:     pipeline,
		Events:      events,
		Store:       store,
		Archive:     archiveReader,
		Health:      health,
		WebFiles:    webFiles,
		OpenAPISpec: listenlab.OpenAPISpec,
		Version:     version,
		StartTime:   startTime,
		Log:         httpLog,
	})

	// Metrics collector reads live state at scrape time.
	var pool *pgxpool.Pool
	if db != nil {
		pool = db.Pool
	}
	prometheus.MustRegister(metrics.NewCollector(pool, liveStats{
		registry: registry,
		pipeline: pipeline,
		events:   events,
		server:   srv,
	}))

	// Start HTTP server in background
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	// Wait for shutdown signal or server error
	select {
	case <-ctx.Done():
		log.Info().Msg("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			log.Error().Err(err).Msg("http server error")
		}
	}

	// Graceful shutdown with 10s timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http server shutdown error")
	}

	log.Info().Msg("listenlab stopped")
}

// archiveLesson stores ready lessons in the Postgres archive.
func archiveLesson(db *database.DB) lesson.ArchiveFunc {
	return func(ctx context.Context, l lesson.Lesson) error {
		row := &database.LessonRow{
			ID:         l.ID,
			Source:     l.Source,
			Title:      l.Title,
			Speed:      l.Speed,
			Language:   l.Language,
			Provider:   l.Provider,
			Model:      l.Model,
			Duration:   l.Duration,
			WordCount:  l.WordCount,
			IssueCount: l.IssueCount,
			CreatedAt:  l.CreatedAt,
		}
		if l.Transcript != nil {
			row.Text = l.Transcript.Text()
			row.Tokens = l.Transcript.Tokens()
		}
		return db.InsertLesson(ctx, row)
	}
}

type liveStats struct {
	registry *lesson.Registry
	pipeline *lesson.Pipeline
	events   *lesson.EventBus
	server   *api.Server
}

func (s liveStats) StatusCounts() map[string]int { return s.registry.StatusCounts() }
func (s liveStats) QueuePending() int            { return s.pipeline.QueuePending() }
func (s liveStats) SSESubscriberCount() int      { return s.events.SubscriberCount() }
func (s liveStats) SyncSessionCount() int        { return s.server.SyncSessionCount() }
