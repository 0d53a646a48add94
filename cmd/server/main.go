package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/option"
	"google.golang.org/api/youtube/v3"

	"github.com/codebuildervaibhav/podcast-summarizer/internal/cleanup"
	"github.com/codebuildervaibhav/podcast-summarizer/internal/googleauth"
	"github.com/codebuildervaibhav/podcast-summarizer/internal/handlers"
	"github.com/codebuildervaibhav/podcast-summarizer/internal/logging"
	"github.com/codebuildervaibhav/podcast-summarizer/internal/matcher"
	"github.com/codebuildervaibhav/podcast-summarizer/internal/platform"
	"github.com/codebuildervaibhav/podcast-summarizer/internal/queue"
	"github.com/codebuildervaibhav/podcast-summarizer/internal/storage"
	"github.com/codebuildervaibhav/podcast-summarizer/internal/summary"
	"github.com/codebuildervaibhav/podcast-summarizer/internal/transcript"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to the YAML config file")
	flag.Parse()

	config, err := loadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logBuffer := logging.NewBuffer(config.Logging.BufferLines)
	zl, err := logging.New(logging.Options{
		Level:       config.Logging.Level,
		Format:      config.Logging.Format,
		Development: config.Environment != transcript.EnvProduction,
		Buffer:      logBuffer,
	})
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer zl.Sync()

	if err := run(config, zl, logBuffer); err != nil {
		zl.Fatal("server failed", zap.Error(err))
	}
}

func run(config *Config, zl *zap.Logger, logBuffer *logging.Buffer) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	zl.Info("initializing components", zap.String("environment", config.Environment))

	// Database
	if config.Storage.Driver == storage.DriverSQLite {
		if err := ensureParentDir(config.Storage.DSN); err != nil {
			return err
		}
	}
	db, err := storage.NewDB(config.Storage.Driver, config.Storage.DSN)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer db.Close()

	// Google OAuth client shared by the captions source and the Drive archive
	var googleClient *http.Client
	if config.googleConfigured() {
		googleClient, err = googleauth.Client(ctx, config.GoogleDrive.CredentialsFile, config.GoogleDrive.TokenFile,
			youtube.YoutubeForceSslScope, drive.DriveFileScope)
		if err != nil {
			zl.Warn("google oauth not available, run cmd/authorize", zap.Error(err))
			googleClient = nil
		}
	}

	// Platform clients
	var (
		youtubeInfo   platform.InfoGetter
		spotifyInfo   platform.InfoGetter
		youtubeClient *platform.YouTubeClient
	)
	if config.YouTube.APIKey != "" {
		youtubeClient, err = platform.NewYouTubeClient(ctx, platform.YouTubeConfig{
			APIKey:            config.YouTube.APIKey,
			RequestsPerSecond: config.YouTube.RequestsPerSecond,
			Burst:             config.YouTube.Burst,
		})
		if err != nil {
			return err
		}
		youtubeInfo = youtubeClient
	} else {
		zl.Warn("youtube api key not set, youtube submissions are disabled")
	}
	if config.Spotify.ClientID != "" && config.Spotify.ClientSecret != "" {
		spotifyInfo = platform.NewSpotifyClient(ctx, platform.SpotifyConfig{
			ClientID:     config.Spotify.ClientID,
			ClientSecret: config.Spotify.ClientSecret,
			Market:       config.Spotify.Market,
		})
	} else {
		zl.Warn("spotify credentials not set, spotify submissions are disabled")
	}
	metadata := platform.NewMetadataService(youtubeInfo, spotifyInfo)

	// Transcript sources
	httpClient := &http.Client{Timeout: time.Duration(config.Transcripts.HTTPTimeoutSeconds) * time.Second}
	var sources []transcript.Source
	if config.Transcripts.SupadataAPIKey != "" {
		sources = append(sources, transcript.NewSupadataSource(config.Transcripts.SupadataAPIKey, config.Transcripts.SupadataBaseURL, httpClient))
	}
	if config.Transcripts.ScrapeEnabled {
		sources = append(sources, transcript.NewScrapeSource("", httpClient))
	}
	if config.Transcripts.BrowserEnabled {
		sources = append(sources, transcript.NewBrowserSource("", time.Duration(config.Transcripts.BrowserTimeoutSeconds)*time.Second))
	}
	if googleClient != nil {
		official, err := transcript.NewOfficialAPISource(ctx, option.WithHTTPClient(googleClient))
		if err != nil {
			zl.Warn("captions source not available", zap.Error(err))
		} else {
			sources = append(sources, official)
		}
	}
	var spotifySource transcript.Source
	if spotifyInfo != nil {
		spotifySource = transcript.NewSpotifySource(spotifyInfo)
	}
	resolver := transcript.NewResolver(config.Environment, sources, spotifySource, zl)
	zl.Info("transcript sources configured", zap.Any("order", resolver.Sources()))

	// Spotify to YouTube matcher, only when both platforms are available
	var videoMatcher queue.VideoMatcher
	if youtubeClient != nil && spotifyInfo != nil {
		videoMatcher = matcher.New(spotifyInfo, youtubeClient, db, zl)
	}

	// Summary generation
	llm := summary.NewClient(summary.Config{
		APIKey:      config.LLM.APIKey,
		BaseURL:     config.LLM.BaseURL,
		Model:       config.LLM.Model,
		Temperature: config.LLM.Temperature,
		MaxTokens:   config.LLM.MaxTokens,
	})
	generator := summary.NewGenerator(llm, config.LLM.MaxTranscriptChars, zl)

	// Archives
	if err := os.MkdirAll(config.Archive.OutputDir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	archivers := []queue.Archiver{storage.NewLocalArchive(config.Archive.OutputDir)}
	if config.Archive.Drive {
		if googleClient == nil {
			zl.Warn("drive archive requested but google oauth is not configured, saving locally only")
		} else if driveArchive, err := storage.NewDriveArchive(ctx, googleClient, config.GoogleDrive.FolderName); err != nil {
			zl.Warn("google drive not available, saving locally only", zap.Error(err))
		} else {
			archivers = append(archivers, driveArchive)
			zl.Info("google drive archive enabled", zap.String("folder", config.GoogleDrive.FolderName))
		}
	}

	// Broker
	broker, closeBroker, err := newBroker(ctx, config, zl)
	if err != nil {
		return err
	}
	defer closeBroker()

	// Worker pool
	processor := queue.NewProcessor(db, resolver, videoMatcher, generator, archivers, zl)
	workerCtx, stopWorkers := context.WithCancel(context.Background())
	workerPool := queue.NewWorkerPool(config.Workers.Count, broker, processor, zl)
	workerPool.Start(workerCtx)

	submitter := queue.NewSubmitter(db, metadata, broker, zl)

	// Timeout sweeper
	sweeper := cleanup.NewSweeper(db, config.thresholds(), time.Duration(config.Cleanup.IntervalMinutes)*time.Minute, zl)
	sweeper.Start(ctx)

	// Create Fiber app
	app := fiber.New(fiber.Config{
		BodyLimit:             config.Server.BodyLimitKB * 1024,
		DisableStartupMessage: true,
	})

	// Middleware
	app.Use(recover.New())
	app.Use(logger.New(logger.Config{Output: io.MultiWriter(os.Stdout, logBuffer)}))
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowHeaders: "Origin, Content-Type, Accept",
	}))

	handlers.Register(app,
		handlers.NewSummaryHandler(submitter, db, zl),
		handlers.NewStreamHandler(db, zl),
		handlers.NewHealthHandler(sweeper, broker, logBuffer, zl),
	)

	// Graceful shutdown
	go func() {
		<-ctx.Done()
		zl.Info("shutting down gracefully")
		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			zl.Warn("http shutdown", zap.Error(err))
		}
	}()

	addr := fmt.Sprintf("%s:%d", config.Server.Host, config.Server.Port)
	zl.Info("server starting",
		zap.String("addr", addr),
		zap.String("broker", config.Queue.Broker),
		zap.String("database", config.Storage.Driver),
		zap.Int("workers", config.Workers.Count))

	listenErr := app.Listen(addr)

	// In-flight jobs stay unacknowledged and are redelivered on the next start.
	sweeper.Stop()
	stopWorkers()
	workerPool.Wait()

	if listenErr != nil {
		return fmt.Errorf("server failed: %w", listenErr)
	}
	return nil
}

// newBroker builds the configured broker and a func that releases it
func newBroker(ctx context.Context, config *Config, zl *zap.Logger) (queue.Broker, func(), error) {
	if config.Queue.Broker != brokerRedis {
		broker := queue.NewMemoryBroker(config.Queue.Capacity)
		return broker, func() { broker.Close() }, nil
	}

	opts, err := redis.ParseURL(config.Queue.RedisURL)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid redis url: %w", err)
	}
	client := redis.NewClient(opts)
	broker, err := queue.NewRedisBroker(ctx, client, config.Queue.Prefix, zl)
	if err != nil {
		client.Close()
		return nil, nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return broker, func() {
		broker.Close()
		client.Close()
	}, nil
}

func ensureParentDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "" || dir == "." {
		return nil
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create database directory: %w", err)
	}
	return nil
}
