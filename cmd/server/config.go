package main

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/codebuildervaibhav/podcast-summarizer/internal/cleanup"
	"github.com/codebuildervaibhav/podcast-summarizer/internal/storage"
	"github.com/codebuildervaibhav/podcast-summarizer/internal/transcript"
)

// Broker kinds
const (
	brokerMemory = "memory"
	brokerRedis  = "redis"
)

// Config represents the application configuration
type Config struct {
	Server struct {
		Port        int    `yaml:"port"`
		Host        string `yaml:"host"`
		BodyLimitKB int    `yaml:"body_limit_kb"`
	} `yaml:"server"`

	// Environment selects the transcript source order: production or development
	Environment string `yaml:"environment"`

	Workers struct {
		Count int `yaml:"count"`
	} `yaml:"workers"`

	Logging struct {
		Level       string `yaml:"level"`
		Format      string `yaml:"format"`
		BufferLines int    `yaml:"buffer_lines"`
	} `yaml:"logging"`

	Storage struct {
		Driver string `yaml:"driver"`
		DSN    string `yaml:"dsn"`
	} `yaml:"storage"`

	Queue struct {
		Broker   string `yaml:"broker"`
		Capacity int    `yaml:"capacity"`
		RedisURL string `yaml:"redis_url"`
		Prefix   string `yaml:"prefix"`
	} `yaml:"queue"`

	Cleanup struct {
		IntervalMinutes           int `yaml:"interval_minutes"`
		InQueueMinutes            int `yaml:"in_queue_minutes"`
		FetchingTranscriptMinutes int `yaml:"fetching_transcript_minutes"`
		GeneratingSummaryMinutes  int `yaml:"generating_summary_minutes"`
		DefaultMinutes            int `yaml:"default_minutes"`
	} `yaml:"cleanup"`

	YouTube struct {
		APIKey            string  `yaml:"api_key"`
		RequestsPerSecond float64 `yaml:"requests_per_second"`
		Burst             int     `yaml:"burst"`
	} `yaml:"youtube"`

	Spotify struct {
		ClientID     string `yaml:"client_id"`
		ClientSecret string `yaml:"client_secret"`
		Market       string `yaml:"market"`
	} `yaml:"spotify"`

	Transcripts struct {
		SupadataAPIKey        string `yaml:"supadata_api_key"`
		SupadataBaseURL       string `yaml:"supadata_base_url"`
		ScrapeEnabled         bool   `yaml:"scrape_enabled"`
		BrowserEnabled        bool   `yaml:"browser_enabled"`
		BrowserTimeoutSeconds int    `yaml:"browser_timeout_seconds"`
		HTTPTimeoutSeconds    int    `yaml:"http_timeout_seconds"`
	} `yaml:"transcripts"`

	LLM struct {
		APIKey             string  `yaml:"api_key"`
		BaseURL            string  `yaml:"base_url"`
		Model              string  `yaml:"model"`
		Temperature        float64 `yaml:"temperature"`
		MaxTokens          int     `yaml:"max_tokens"`
		MaxTranscriptChars int     `yaml:"max_transcript_chars"`
	} `yaml:"llm"`

	GoogleDrive struct {
		CredentialsFile string `yaml:"credentials_file"`
		TokenFile       string `yaml:"token_file"`
		FolderName      string `yaml:"folder_name"`
	} `yaml:"google_drive"`

	Archive struct {
		OutputDir string `yaml:"output_dir"`
		Drive     bool   `yaml:"drive"`
	} `yaml:"archive"`
}

// loadConfig loads configuration from a YAML file. A missing file leaves every
// setting to its default and the environment.
func loadConfig(path string) (*Config, error) {
	var config Config
	config.Transcripts.ScrapeEnabled = true

	file, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(file, &config); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return nil, err
	}

	config.applyEnv(os.LookupEnv)
	config.applyDefaults()
	if err := config.validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// applyEnv overrides secrets and deployment settings from the environment
func (c *Config) applyEnv(lookup func(string) (string, bool)) {
	set := func(key string, dst *string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}

	set("APP_ENV", &c.Environment)
	set("YOUTUBE_API_KEY", &c.YouTube.APIKey)
	set("SPOTIFY_CLIENT_ID", &c.Spotify.ClientID)
	set("SPOTIFY_CLIENT_SECRET", &c.Spotify.ClientSecret)
	set("LLM_API_KEY", &c.LLM.APIKey)
	set("SUPADATA_API_KEY", &c.Transcripts.SupadataAPIKey)

	if v, ok := lookup("DATABASE_URL"); ok && v != "" {
		c.Storage.DSN = v
		if strings.HasPrefix(v, "postgres://") || strings.HasPrefix(v, "postgresql://") {
			c.Storage.Driver = storage.DriverPostgres
		}
	}
	if v, ok := lookup("REDIS_URL"); ok && v != "" {
		c.Queue.RedisURL = v
		c.Queue.Broker = brokerRedis
	}
}

func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.BodyLimitKB == 0 {
		c.Server.BodyLimitKB = 64
	}
	c.Environment = strings.ToLower(strings.TrimSpace(c.Environment))
	if c.Environment == "" {
		c.Environment = transcript.EnvDevelopment
	}
	if c.Workers.Count <= 0 {
		c.Workers.Count = 2
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.BufferLines <= 0 {
		c.Logging.BufferLines = 1000
	}
	if c.Storage.Driver == "" {
		c.Storage.Driver = storage.DriverSQLite
	}
	if c.Storage.DSN == "" && c.Storage.Driver == storage.DriverSQLite {
		c.Storage.DSN = "data/summaries.db"
	}
	if c.Queue.Broker == "" {
		c.Queue.Broker = brokerMemory
	}
	if c.Queue.Prefix == "" {
		c.Queue.Prefix = "podcast-summarizer"
	}
	if c.Cleanup.IntervalMinutes <= 0 {
		c.Cleanup.IntervalMinutes = 5
	}
	if c.Transcripts.BrowserTimeoutSeconds <= 0 {
		c.Transcripts.BrowserTimeoutSeconds = 90
	}
	if c.Transcripts.HTTPTimeoutSeconds <= 0 {
		c.Transcripts.HTTPTimeoutSeconds = 30
	}
	if c.GoogleDrive.FolderName == "" {
		c.GoogleDrive.FolderName = "Podcast Summaries"
	}
	if c.Archive.OutputDir == "" {
		c.Archive.OutputDir = "summaries"
	}
}

func (c *Config) validate() error {
	var problems []string
	switch c.Environment {
	case transcript.EnvProduction, transcript.EnvDevelopment:
	default:
		problems = append(problems, fmt.Sprintf("environment must be %s or %s, got %q", transcript.EnvProduction, transcript.EnvDevelopment, c.Environment))
	}
	switch c.Storage.Driver {
	case storage.DriverSQLite, storage.DriverPostgres:
	default:
		problems = append(problems, fmt.Sprintf("storage.driver %q is not supported", c.Storage.Driver))
	}
	if c.Storage.Driver == storage.DriverPostgres && c.Storage.DSN == "" {
		problems = append(problems, "storage.dsn is required for postgres")
	}
	switch c.Queue.Broker {
	case brokerMemory:
	case brokerRedis:
		if c.Queue.RedisURL == "" {
			problems = append(problems, "queue.redis_url is required for the redis broker")
		}
	default:
		problems = append(problems, fmt.Sprintf("queue.broker %q is not supported", c.Queue.Broker))
	}
	if c.LLM.APIKey == "" {
		problems = append(problems, "llm.api_key (or LLM_API_KEY) is required")
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid config: %s", strings.Join(problems, "; "))
	}
	return nil
}

// thresholds converts the cleanup section to sweeper timeouts, keeping the
// defaults for unset values
func (c *Config) thresholds() cleanup.Thresholds {
	t := cleanup.DefaultThresholds()
	minutes := func(n int, dst *time.Duration) {
		if n > 0 {
			*dst = time.Duration(n) * time.Minute
		}
	}
	minutes(c.Cleanup.InQueueMinutes, &t.InQueue)
	minutes(c.Cleanup.FetchingTranscriptMinutes, &t.FetchingTranscript)
	minutes(c.Cleanup.GeneratingSummaryMinutes, &t.GeneratingSummary)
	minutes(c.Cleanup.DefaultMinutes, &t.Default)
	return t
}

func (c *Config) googleConfigured() bool {
	if c.GoogleDrive.CredentialsFile == "" || c.GoogleDrive.TokenFile == "" {
		return false
	}
	_, err := os.Stat(c.GoogleDrive.CredentialsFile)
	return err == nil
}
