package cfg

import (
	"cmp"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/jessevdk/go-flags"
)

// Version is set at build time via -ldflags
var Version = "dev"

func GetVersion() string {
	return cmp.Or(Version, "unknown")
}

type rawCfg struct {
	// Priority store configuration
	StorePath     string `long:"store-path" env:"STORE_PATH" default:"./config/priority_queue.json" description:"Path of the shared priority queue JSON file"`
	RulesPath     string `long:"rules-path" env:"RULES_PATH" default:"./config/rules.json" description:"Path of the rule table JSON file"`
	ScoringPath   string `long:"scoring-path" env:"SCORING_PATH" default:"./config/scoring.json" description:"Path of the scoring rule spec JSON file"`
	FlushInterval int    `long:"flush-interval" env:"FLUSH_INTERVAL" default:"60" description:"Consumer flush interval in seconds"`
	LockWarnAfter int    `long:"lock-warn-after" env:"LOCK_WARN_AFTER" default:"300" description:"Seconds of lock wait before an orphaned-lock warning is logged"`

	// Consumer configuration
	Port         string `long:"port" env:"PORT" default:"8080" description:"HTTP server port"`
	BaseUrl      string `long:"base-url" env:"BASE_URL" description:"Public base URL for the service (e.g., https://queue.example.com)"`
	APIAccessKey string `long:"api-key" env:"API_ACCESS_KEY" description:"API access key for authentication (optional)"`

	// Producer configuration
	FeedsDir          string `long:"feeds-dir" env:"FEEDS_DIR" default:"./feeds" description:"Directory containing feed configuration files"`
	DBPath            string `long:"db-path" env:"DB_PATH" default:"./data/rss-priority.db" description:"SQLite database path for producer bookkeeping"`
	WorkerCount       int    `long:"worker-count" env:"WORKER_COUNT" default:"5" description:"Number of background workers for feed processing"`
	SchedulerInterval int    `long:"scheduler-interval" env:"SCHEDULER_INTERVAL" default:"300" description:"Scheduler interval in seconds"`
	Once              bool   `long:"once" env:"ONCE" description:"Fetch every feed once, ingest, and exit"`
	MetricsPort       string `long:"metrics-port" env:"METRICS_PORT" description:"Expose producer metrics on this port (optional)"`

	// Extraction configuration
	AnthropicAPIKey  string `long:"anthropic-api-key" env:"ANTHROPIC_API_KEY" description:"Anthropic API key used for characteristic extraction"`
	ExtractModel     string `long:"extract-model" env:"EXTRACT_MODEL" default:"claude-3-5-haiku-latest" description:"Model used for characteristic extraction"`
	ExtractMaxTokens int    `long:"extract-max-tokens" env:"EXTRACT_MAX_TOKENS" default:"256" description:"Maximum tokens in an extraction response"`
	ContentMaxChars  int    `long:"content-max-chars" env:"CONTENT_MAX_CHARS" default:"8000" description:"Article text is truncated to this many characters before extraction"`

	// Application metadata
	UserAgent string `long:"user-agent" env:"USER_AGENT" default:"RSS Priority/1.0" description:"User agent string for HTTP requests"`
	Timezone  string `long:"timezone" env:"TZ" default:"UTC" description:"Timezone for timestamps (e.g., UTC, America/New_York)"`
	Debug     bool   `long:"debug" env:"DEBUG" description:"Enable debug logging"`
}

// Load parses flags and environment. It returns nil, nil when help was requested.
func Load() (*Cfg, error) {
	return LoadArgs(os.Args[1:])
}

func LoadArgs(args []string) (*Cfg, error) {
	var raw rawCfg

	parser := flags.NewParser(&raw, flags.Default)

	if _, err := parser.ParseArgs(args); err != nil {
		var flagsErr *flags.Error
		if errors.As(err, &flagsErr) && flagsErr.Type == flags.ErrHelp {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to parse configuration: %w", err)
	}

	cfg := &Cfg{
		StorePath:         raw.StorePath,
		RulesPath:         raw.RulesPath,
		ScoringPath:       raw.ScoringPath,
		FlushInterval:     time.Duration(raw.FlushInterval) * time.Second,
		LockWarnAfter:     time.Duration(raw.LockWarnAfter) * time.Second,
		Port:              raw.Port,
		BaseUrl:           raw.BaseUrl,
		APIAccessKey:      raw.APIAccessKey,
		FeedsDir:          raw.FeedsDir,
		DBPath:            raw.DBPath,
		WorkerCount:       raw.WorkerCount,
		SchedulerInterval: time.Duration(raw.SchedulerInterval) * time.Second,
		Once:              raw.Once,
		MetricsPort:       raw.MetricsPort,
		AnthropicAPIKey:   raw.AnthropicAPIKey,
		ExtractModel:      raw.ExtractModel,
		ExtractMaxTokens:  raw.ExtractMaxTokens,
		ContentMaxChars:   raw.ContentMaxChars,
		UserAgent:         raw.UserAgent,
		Timezone:          raw.Timezone,
		Debug:             raw.Debug,
		Version:           GetVersion(),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	if err := applyTimezone(cfg.Timezone); err != nil {
		fmt.Printf("Warning: Invalid timezone '%s', using system default: %v\n", cfg.Timezone, err)
	}

	return cfg, nil
}

// SetupLogger installs the process-wide slog handler.
func (c *Cfg) SetupLogger() {
	level := slog.LevelInfo
	if c.Debug {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level})))
}

// PublicURL is the externally reachable base of the consumer.
func (c *Cfg) PublicURL() string {
	if c.BaseUrl != "" {
		return c.BaseUrl
	}
	return fmt.Sprintf("http://localhost:%s", c.Port)
}

func (c *Cfg) validate() error {
	switch {
	case c.FlushInterval <= 0:
		return fmt.Errorf("flush interval must be positive")
	case c.SchedulerInterval <= 0:
		return fmt.Errorf("scheduler interval must be positive")
	case c.WorkerCount < 1:
		return fmt.Errorf("worker count must be at least 1")
	case c.ContentMaxChars < 1:
		return fmt.Errorf("content max chars must be at least 1")
	}
	return nil
}

func applyTimezone(timezone string) error {
	if timezone == "" {
		return nil
	}

	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return err
	}
	time.Local = loc
	return nil
}
