package cmd

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"reflect"
	"strings"
	"syscall"

	"github.com/algobotdev/algobot/algobot"
	"github.com/joho/godotenv"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfg        = algobot.DefaultConfig()
	configFile string
)

var rootCmd = &cobra.Command{
	Use: "algobot [flags]",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		err := viper.Unmarshal(
			cfg,
			viper.DecodeHook(
				mapstructure.ComposeDecodeHookFunc(
					mapstructure.StringToTimeDurationHookFunc(),
					LevelToStringHookFunc(),
				),
			),
		)
		if err != nil {
			log.Fatalln(err)
		}
	},
}

func getLogLevel(level string) (slog.Level, error) {
	switch level {
	case slog.LevelDebug.String():
		return slog.LevelDebug, nil
	case slog.LevelInfo.String():
		return slog.LevelInfo, nil
	case slog.LevelWarn.String():
		return slog.LevelWarn, nil
	case slog.LevelError.String():
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("invalid log level: %s", level)
	}
}

// LevelToStringHookFunc decodes "INFO"-style strings into *slog.LevelVar
// config fields.
func LevelToStringHookFunc() mapstructure.DecodeHookFuncType {
	return func(
		f reflect.Type,
		t reflect.Type,
		data any,
	) (any, error) {
		if f.Kind() != reflect.String {
			return data, nil
		}
		if t.Kind() != reflect.Ptr {
			return data, nil
		}

		typ := t.Elem()

		if typ != reflect.TypeOf(slog.LevelVar{}) {
			return data, nil
		}
		lvl, err := getLogLevel(data.(string))
		if err != nil {
			return nil, fmt.Errorf("invalid log level: %s", data)
		}
		lvlVar := &slog.LevelVar{}
		lvlVar.Set(lvl)
		return lvlVar, nil
	}
}

// Execute runs the root command, cancelling its context on SIGINT,
// SIGTERM or SIGHUP.
func Execute() {
	ctx, cancel := context.WithCancel(context.Background())
	rootCmd.SetContext(ctx)
	signals := make(chan os.Signal, 1)
	signal.Notify(
		signals,
		os.Interrupt,
		syscall.SIGHUP,
		syscall.SIGTERM,
		syscall.SIGINT,
	)
	defer func() {
		signal.Stop(signals)
		cancel()
	}()
	go func() {
		select {
		case <-signals:
			cancel()
		case <-ctx.Done():
			//
		}
	}()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func initConfig() {
	if configFile == "" {
		if err := godotenv.Load(); err != nil {
			log.Println("No .env file found")
		}
	} else {
		fmt.Println("loading env from file", configFile)
		if err := godotenv.Load(configFile); err != nil {
			log.Println("No .env file found")
		}
	}

	viper.SetDefault("database", algobot.DefaultDatabase)
	viper.SetDefault("database_type", algobot.DefaultDatabaseType)
	viper.SetDefault(
		"database_slow_threshold",
		algobot.DefaultDatabaseSlowThreshold,
	)
	viper.SetDefault(
		"database_log_level",
		algobot.DefaultDatabaseLogLevel.String(),
	)

	viper.SetDefault("log_level", algobot.DefaultLogLevel.String())
	viper.SetDefault("startup_timeout", algobot.DefaultStartupTimeout)
	viper.SetDefault("shutdown_timeout", algobot.DefaultShutdownTimeout)

	// LeetCode clients
	viper.SetDefault("leetcode.data_dir", algobot.DefaultDataDir)
	viper.SetDefault("leetcode.max_retries", algobot.DefaultFetchMaxRetries)
	viper.SetDefault("leetcode.retry_delay", algobot.DefaultFetchRetryDelay)
	viper.SetDefault("leetcode.request_timeout", algobot.DefaultFetchTimeout)
	viper.SetDefault("leetcode.ratings_ttl", algobot.DefaultRatingsTTL)
	viper.SetDefault(
		"leetcode.monthly_fetch_delay",
		algobot.DefaultMonthlyFetchDelay,
	)
	viper.SetDefault(
		"leetcode.monthly_fetch_concurrency",
		algobot.DefaultMonthlyFetchConcurrency,
	)
	viper.SetDefault("leetcode.log_level", algobot.DefaultLeetCodeLogLevel.String())

	// Discord config
	viper.SetDefault("discord.token", "")
	viper.SetDefault("discord.gateway_intents", algobot.DefaultGatewayIntents)
	viper.SetDefault(
		"discord.log_level",
		algobot.DefaultDiscordLogLevel.String(),
	)
	viper.SetDefault(
		"discord.discordgo_log_level",
		algobot.DefaultDiscordgoLogLevel.String(),
	)

	// OpenAI config
	viper.SetDefault("openai.token", "")
	viper.SetDefault("openai.model", algobot.DefaultOpenAIModel)
	viper.SetDefault("openai.translation_ttl", algobot.DefaultTranslationTTL)
	viper.SetDefault("openai.inspiration_ttl", algobot.DefaultInspirationTTL)
	viper.SetDefault("openai.log_level", algobot.DefaultOpenAILogLevel.String())

	// Schedule defaults
	viper.SetDefault("schedule.post_time", algobot.DefaultPostTime)
	viper.SetDefault("schedule.timezone", algobot.DefaultTimezone)
	viper.SetDefault("schedule.misfire_grace", algobot.DefaultMisfireGrace)
	viper.SetDefault("schedule.job_timeout", algobot.DefaultJobTimeout)
	viper.SetDefault(
		"schedule.log_level",
		algobot.DefaultSchedulerLogLevel.String(),
	)

	envPrefix := os.Getenv(algobot.EnvvarSetEnvPrefix)
	if envPrefix == "" {
		envPrefix = algobot.DefaultEnvPrefix
	}
	viper.SetEnvPrefix(envPrefix)

	replacer := strings.NewReplacer(".", "_")
	viper.SetEnvKeyReplacer(replacer)
	viper.AutomaticEnv()

	for _, key := range []string{
		"log_level",
		"database_log_level",
		"leetcode.log_level",
		"discord.log_level",
		"discord.discordgo_log_level",
		"openai.log_level",
		"schedule.log_level",
	} {
		logLevelVar, err := levelStringToLevelVar(viper.GetString(key))
		if err != nil {
			log.Fatalf("error parsing %s: %v", key, err)
		}
		viper.Set(key, logLevelVar)
	}
}

func levelStringToLevelVar(lvl string) (*slog.LevelVar, error) {
	level := &slog.LevelVar{}
	err := level.UnmarshalText([]byte(lvl))
	return level, err
}

//nolint:gochecknoinits
func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(
		&configFile,
		"config",
		"",
		"Config file to use",
	)
}
