// internal/common/config/config.go
package config

import "fmt"

// Config is the main application configuration struct.
type Config struct {
	App      AppConfig               `mapstructure:"app"`
	Camunda  CamundaConfig           `mapstructure:"camunda"`
	Database DatabaseConfig          `mapstructure:"database"`
	Workers  map[string]WorkerConfig `mapstructure:"workers"`
	Server   ServerConfig            `mapstructure:"server"`
	Rankings RankingsConfig          `mapstructure:"rankings"`
	Backfill BackfillConfig          `mapstructure:"backfill"`
	TMDB     TMDBConfig              `mapstructure:"tmdb"`
	Events   EventsConfig            `mapstructure:"events"`
	Search   SearchConfig            `mapstructure:"search"`
	Logging  LoggingConfig           `mapstructure:"logging"`
}

// --- Core App/Infrastructure Config ---
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
}

type CamundaConfig struct {
	Enabled        bool   `mapstructure:"enabled"`
	BrokerAddress  string `mapstructure:"broker_address"`
	MaxJobsActive  int    `mapstructure:"max_jobs_active"`
	Timeout        int    `mapstructure:"timeout"`         // milliseconds
	RequestTimeout int    `mapstructure:"request_timeout"` // milliseconds
}

type DatabaseConfig struct {
	Postgres      PostgresConfig      `mapstructure:"postgres"`
	Elasticsearch ElasticsearchConfig `mapstructure:"elasticsearch"`
	Redis         RedisConfig         `mapstructure:"redis"`
}

type PostgresConfig struct {
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	Database       string `mapstructure:"database"`
	User           string `mapstructure:"user"`
	Password       string `mapstructure:"password"`
	MaxConnections int    `mapstructure:"max_connections"`
	MaxIdle        int    `mapstructure:"max_idle"`
	SSLMode        string `mapstructure:"sslmode"`
}

// GetDSN returns the PostgreSQL connection string
func (p PostgresConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

type ElasticsearchConfig struct {
	Addresses []string `mapstructure:"addresses"`
	Username  string   `mapstructure:"username"`
	Password  string   `mapstructure:"password"`
	URL       string   `mapstructure:"url"`
}

// GetURL returns the first address or the URL field
func (e ElasticsearchConfig) GetURL() string {
	if e.URL != "" {
		return e.URL
	}
	if len(e.Addresses) > 0 {
		return e.Addresses[0]
	}
	return ""
}

type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// WorkerConfig holds the core settings applicable to every worker.
type WorkerConfig struct {
	Enabled       bool `mapstructure:"enabled"`
	MaxJobsActive int  `mapstructure:"max_jobs_active"`
	Timeout       int  `mapstructure:"timeout"`     // milliseconds
	MaxRetries    int  `mapstructure:"max_retries"` // For error handling
}

// --- Domain Configuration ---

// ServerConfig holds the HTTP listener for worker endpoints and health checks.
type ServerConfig struct {
	Address      string `mapstructure:"address"`
	WorkerSecret string `mapstructure:"worker_secret"`
	// RequireSecretForRecalc extends the shared-secret check to the recalculation endpoint.
	RequireSecretForRecalc bool `mapstructure:"require_secret_for_recalc"`
	ShutdownTimeout        int  `mapstructure:"shutdown_timeout"` // milliseconds
	// Per-IP limit on the worker endpoints. Zero requests disables it.
	RateLimitRequests int `mapstructure:"rate_limit_requests"`
	RateLimitWindow   int `mapstructure:"rate_limit_window"` // milliseconds
}

// RankingsConfig holds aggregation and persistence settings.
type RankingsConfig struct {
	BatchSize  int  `mapstructure:"batch_size"`
	CastLimit  int  `mapstructure:"cast_limit"`
	CacheTTL   int  `mapstructure:"cache_ttl"` // seconds
	PruneStale bool `mapstructure:"prune_stale"`
}

// BackfillConfig holds the time-budget worker settings.
type BackfillConfig struct {
	PageSize            int `mapstructure:"page_size"`
	SubBatchSize        int `mapstructure:"sub_batch_size"`
	SubBatchDelay       int `mapstructure:"sub_batch_delay"`      // milliseconds
	TimeBudget          int `mapstructure:"time_budget"`          // milliseconds
	ContinuationTimeout int `mapstructure:"continuation_timeout"` // milliseconds
}

// TMDBConfig holds the movie metadata API settings.
type TMDBConfig struct {
	BaseURL      string `mapstructure:"base_url"`
	APIKey       string `mapstructure:"api_key"`
	ImageBaseURL string `mapstructure:"image_base_url"`
	Timeout      int    `mapstructure:"timeout"` // milliseconds
	MaxRetries   int    `mapstructure:"max_retries"`
	// RateLimit caps outgoing requests per second. Zero disables the limiter.
	RateLimit float64 `mapstructure:"rate_limit"`
	RateBurst int     `mapstructure:"rate_burst"`
}

// EventsConfig holds SNS publishing settings.
type EventsConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Region   string `mapstructure:"region"`
	TopicARN string `mapstructure:"topic_arn"`
}

// SearchConfig holds the Elasticsearch mirror settings.
type SearchConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Index   string `mapstructure:"index"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}
