package cfg

import "time"

type Cfg struct {
	// Priority store configuration
	StorePath     string
	RulesPath     string
	ScoringPath   string
	FlushInterval time.Duration
	LockWarnAfter time.Duration

	// Consumer configuration
	Port         string
	BaseUrl      string
	APIAccessKey string

	// Producer configuration
	FeedsDir          string
	DBPath            string
	WorkerCount       int
	SchedulerInterval time.Duration
	Once              bool
	MetricsPort       string

	// Extraction configuration
	AnthropicAPIKey  string
	ExtractModel     string
	ExtractMaxTokens int
	ContentMaxChars  int

	// Application metadata
	UserAgent string
	Timezone  string
	Debug     bool
	Version   string
}
