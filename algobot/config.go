//nolint:lll // struct tags can't be split
package algobot

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

const (
	DefaultDatabaseType    = "sqlite"
	DefaultDatabase        = "algobot.sqlite3"
	DefaultDataDir         = "data"
	DefaultLogLevel        = slog.LevelInfo
	DefaultPostTime        = "00:00"
	DefaultTimezone        = "UTC"
	DefaultMisfireGrace    = 5 * time.Minute
	DefaultJobTimeout      = 5 * time.Minute
	DefaultStartupTimeout  = 30 * time.Second
	DefaultShutdownTimeout = 60 * time.Second

	DefaultFetchMaxRetries         = 3
	DefaultFetchRetryDelay         = time.Second
	DefaultFetchTimeout            = 30 * time.Second
	DefaultRatingsTTL              = time.Hour
	DefaultRatingsMinInterval      = time.Second
	DefaultMonthlyFetchDelay       = 500 * time.Millisecond
	DefaultMonthlyFetchConcurrency = 5

	DefaultSubmissionLimit = 15
	MaxSubmissionLimit     = 50

	DefaultTranslationTTL = 7 * 24 * time.Hour
	DefaultInspirationTTL = 7 * 24 * time.Hour
	DefaultOpenAIModel    = "gpt-4o-mini"

	DefaultDatabaseSlowThreshold = 200 * time.Millisecond
	DefaultDatabaseLogLevel      = slog.LevelInfo
	DefaultDiscordLogLevel       = slog.LevelWarn
	DefaultDiscordgoLogLevel     = slog.LevelWarn
	DefaultLeetCodeLogLevel      = slog.LevelInfo
	DefaultSchedulerLogLevel     = slog.LevelInfo
	DefaultOpenAILogLevel        = slog.LevelInfo

	// DefaultEnvPrefix prefixes environment variables read as config
	// (e.g. ALGOBOT_DATABASE). EnvvarSetEnvPrefix overrides the prefix.
	DefaultEnvPrefix   = "ALGOBOT"
	EnvvarSetEnvPrefix = "ALGOBOT_SET_ENV_PREFIX"

	ratingsFeedURL = "https://raw.githubusercontent.com/zerotrac/leetcode_problem_rating/refs/heads/main/ratings.txt"
)

var structValidator = validator.New()

//nolint:gochecknoinits // gotta register the validators
func init() {
	structValidator.SetTagName("binding")
	_ = structValidator.RegisterValidation("posttime", validatePostTimeField)
}

func validatePostTimeField(fl validator.FieldLevel) bool {
	_, _, err := parsePostTime(fl.Field().String())
	return err == nil
}

// parsePostTime parses an "HH:MM" (24h) string into hour and minute.
func parsePostTime(s string) (hour int, minute int, err error) {
	hh, mm, found := strings.Cut(s, ":")
	if !found {
		return 0, 0, fmt.Errorf("post time must be in HH:MM format, got %q", s)
	}
	hour, herr := strconv.Atoi(hh)
	minute, merr := strconv.Atoi(mm)
	if herr != nil || merr != nil || hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return 0, 0, fmt.Errorf("post time must be in HH:MM format, got %q", s)
	}
	return hour, minute, nil
}

// validateTimezone checks that a string names a loadable IANA timezone.
func validateTimezone(s string) error {
	if s == "" {
		return fmt.Errorf("timezone must not be empty")
	}
	if _, err := time.LoadLocation(s); err != nil {
		return fmt.Errorf("invalid timezone %q: %w", s, err)
	}
	return nil
}

// Config is the top-level bot configuration.
type Config struct {
	// Database connection string, or SQLite file path
	Database string `yaml:"database" mapstructure:"database" json:"database"`

	// DatabaseType specifies the type of database, either 'sqlite' or 'postgres'
	DatabaseType string `yaml:"database_type" mapstructure:"database_type" json:"database_type" binding:"oneof=sqlite postgres"`

	// DatabaseLogLevel sets the log level for database operations
	DatabaseLogLevel *slog.LevelVar `yaml:"database_log_level" mapstructure:"database_log_level" json:"database_log_level"`

	// DatabaseSlowThreshold is the duration threshold for identifying slow database queries
	DatabaseSlowThreshold time.Duration `yaml:"database_slow_threshold" mapstructure:"database_slow_threshold" json:"database_slow_threshold"`

	// LogLevel is the base log level, for the default logger
	LogLevel *slog.LevelVar `yaml:"log_level" mapstructure:"log_level" json:"log_level"`

	// StartupTimeout limits how long the bot has to initialize.
	StartupTimeout time.Duration `yaml:"startup_timeout" mapstructure:"startup_timeout" json:"startup_timeout"`

	// ShutdownTimeout is the time to allow for a graceful shutdown. After
	// this elapses, background work is abandoned and connections closed.
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" mapstructure:"shutdown_timeout" json:"shutdown_timeout"`

	// LeetCode configures the problem sync clients (both domains)
	LeetCode *LeetCodeConfig `yaml:"leetcode" mapstructure:"leetcode" json:"leetcode"`

	// Discord configures the Discord bot itself
	Discord *DiscordConfig `yaml:"discord" mapstructure:"discord" json:"discord"`

	// OpenAI configures the translation/inspiration LLM integration.
	// Leave the token empty to disable LLM features.
	OpenAI *OpenAIConfig `yaml:"openai" mapstructure:"openai" json:"openai"`

	// Schedule holds the process-wide defaults for guild schedules
	Schedule *ScheduleConfig `yaml:"schedule" mapstructure:"schedule" json:"schedule"`

	HTTPClient *http.Client `log:"[redacted]"`
}

// LeetCodeConfig configures fetch/retry/cache behavior shared by both
// LeetCode domain clients.
type LeetCodeConfig struct {
	// DataDir is the directory holding legacy per-day challenge JSON files
	DataDir string `yaml:"data_dir" mapstructure:"data_dir" json:"data_dir"`

	// MaxRetries is the number of attempts for each network call
	MaxRetries int `yaml:"max_retries" mapstructure:"max_retries" json:"max_retries" binding:"gte=1"`

	// RetryDelay is the fixed delay between retry attempts
	RetryDelay time.Duration `yaml:"retry_delay" mapstructure:"retry_delay" json:"retry_delay"`

	// RequestTimeout bounds each individual network call
	RequestTimeout time.Duration `yaml:"request_timeout" mapstructure:"request_timeout" json:"request_timeout"`

	// RatingsTTL is the time-to-live for the in-memory ratings cache
	RatingsTTL time.Duration `yaml:"ratings_ttl" mapstructure:"ratings_ttl" json:"ratings_ttl"`

	// MonthlyFetchDelay is the pause between per-day enrichments in the
	// background monthly backfill
	MonthlyFetchDelay time.Duration `yaml:"monthly_fetch_delay" mapstructure:"monthly_fetch_delay" json:"monthly_fetch_delay"`

	// MonthlyFetchConcurrency caps simultaneous detail fetches in the
	// background monthly backfill
	MonthlyFetchConcurrency int64 `yaml:"monthly_fetch_concurrency" mapstructure:"monthly_fetch_concurrency" json:"monthly_fetch_concurrency" binding:"gte=1"`

	// LogLevel sets the log level for the LeetCode clients
	LogLevel *slog.LevelVar `yaml:"log_level" mapstructure:"log_level" json:"log_level"`
}

// DiscordConfig configures the Discord session and delivery.
type DiscordConfig struct {
	Token string `yaml:"token" mapstructure:"token" json:"-"`

	// GatewayIntents specifies the Discord gateway intents to use
	GatewayIntents int `yaml:"gateway_intents" mapstructure:"gateway_intents" json:"gateway_intents"`

	// LogLevel sets the log level for bot-side Discord operations
	LogLevel *slog.LevelVar `yaml:"log_level" mapstructure:"log_level" json:"log_level"`

	// DiscordGoLogLevel sets the log level for the discordgo library
	DiscordGoLogLevel *slog.LevelVar `yaml:"discordgo_log_level" mapstructure:"discordgo_log_level" json:"discordgo_log_level"`
}

// OpenAIConfig configures the LLM integration.
type OpenAIConfig struct {
	Token string `yaml:"token" mapstructure:"token" json:"-"`

	// Model is the chat-completion model used for translation and hints
	Model string `yaml:"model" mapstructure:"model" json:"model"`

	// TranslationTTL is how long cached translations stay valid
	TranslationTTL time.Duration `yaml:"translation_ttl" mapstructure:"translation_ttl" json:"translation_ttl"`

	// InspirationTTL is how long cached inspiration hints stay valid
	InspirationTTL time.Duration `yaml:"inspiration_ttl" mapstructure:"inspiration_ttl" json:"inspiration_ttl"`

	// LogLevel sets the log level for LLM operations
	LogLevel *slog.LevelVar `yaml:"log_level" mapstructure:"log_level" json:"log_level"`
}

// ScheduleConfig holds process-wide scheduling defaults, used for guilds
// whose settings omit a post time or timezone.
type ScheduleConfig struct {
	// PostTime is the default daily post time (HH:MM, 24h)
	PostTime string `yaml:"post_time" mapstructure:"post_time" json:"post_time" binding:"posttime"`

	// Timezone is the default IANA timezone name
	Timezone string `yaml:"timezone" mapstructure:"timezone" json:"timezone" binding:"timezone"`

	// MisfireGrace tolerates brief scheduler downtime: a trigger that
	// should have fired within this window still fires once on startup
	MisfireGrace time.Duration `yaml:"misfire_grace" mapstructure:"misfire_grace" json:"misfire_grace"`

	// JobTimeout bounds a single daily-post job execution
	JobTimeout time.Duration `yaml:"job_timeout" mapstructure:"job_timeout" json:"job_timeout"`

	// LogLevel sets the log level for the scheduler
	LogLevel *slog.LevelVar `yaml:"log_level" mapstructure:"log_level" json:"log_level"`
}

func (c Config) LogValue() slog.Value {
	return structToSlogValue(c)
}

// Validate checks the configuration, returning the first problem found.
func (c *Config) Validate() error {
	if err := structValidator.Struct(c); err != nil {
		return err
	}
	return nil
}

// DefaultConfig returns a Config with every field set to its default.
func DefaultConfig() *Config {
	mainLogLevel := &slog.LevelVar{}
	dbLogLevel := &slog.LevelVar{}
	discordLogLevel := &slog.LevelVar{}
	discordgoLogLevel := &slog.LevelVar{}
	leetcodeLogLevel := &slog.LevelVar{}
	schedulerLogLevel := &slog.LevelVar{}
	openaiLogLevel := &slog.LevelVar{}

	mainLogLevel.Set(DefaultLogLevel)
	dbLogLevel.Set(DefaultDatabaseLogLevel)
	discordLogLevel.Set(DefaultDiscordLogLevel)
	discordgoLogLevel.Set(DefaultDiscordgoLogLevel)
	leetcodeLogLevel.Set(DefaultLeetCodeLogLevel)
	schedulerLogLevel.Set(DefaultSchedulerLogLevel)
	openaiLogLevel.Set(DefaultOpenAILogLevel)

	return &Config{
		Database:              DefaultDatabase,
		DatabaseType:          DefaultDatabaseType,
		DatabaseLogLevel:      dbLogLevel,
		DatabaseSlowThreshold: DefaultDatabaseSlowThreshold,
		LogLevel:              mainLogLevel,
		StartupTimeout:        DefaultStartupTimeout,
		ShutdownTimeout:       DefaultShutdownTimeout,
		LeetCode: &LeetCodeConfig{
			DataDir:                 DefaultDataDir,
			MaxRetries:              DefaultFetchMaxRetries,
			RetryDelay:              DefaultFetchRetryDelay,
			RequestTimeout:          DefaultFetchTimeout,
			RatingsTTL:              DefaultRatingsTTL,
			MonthlyFetchDelay:       DefaultMonthlyFetchDelay,
			MonthlyFetchConcurrency: DefaultMonthlyFetchConcurrency,
			LogLevel:                leetcodeLogLevel,
		},
		Discord: &DiscordConfig{
			GatewayIntents:    DefaultGatewayIntents,
			LogLevel:          discordLogLevel,
			DiscordGoLogLevel: discordgoLogLevel,
		},
		OpenAI: &OpenAIConfig{
			Model:          DefaultOpenAIModel,
			TranslationTTL: DefaultTranslationTTL,
			InspirationTTL: DefaultInspirationTTL,
			LogLevel:       openaiLogLevel,
		},
		Schedule: &ScheduleConfig{
			PostTime:     DefaultPostTime,
			Timezone:     DefaultTimezone,
			MisfireGrace: DefaultMisfireGrace,
			JobTimeout:   DefaultJobTimeout,
			LogLevel:     schedulerLogLevel,
		},
	}
}
