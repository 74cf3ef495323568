// Package util initializes the logger and the layered service configuration.
package util

import (
	"log/slog"
	"os"
	"strings"

	"github.com/kamikazechaser/common/logg"
	"github.com/redis/go-redis/v9"
	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const (
	envDebug = "DEBUG"
	envDev   = "DEV"

	envPrefix          = "AYUR_"
	envSeparator       = " "
	envNestedSeparator = "__"
)

// InitLogger returns a logfmt logger at info level. DEBUG lowers the level to
// debug; DEV additionally switches to the human readable format.
func InitLogger() *slog.Logger {
	loggOpts := logg.LoggOpts{
		FormatType: logg.Logfmt,
		LogLevel:   slog.LevelInfo,
	}

	if os.Getenv(envDebug) != "" {
		loggOpts.LogLevel = slog.LevelDebug
	}

	if os.Getenv(envDev) != "" {
		loggOpts.LogLevel = slog.LevelDebug
		loggOpts.FormatType = logg.Human
	}

	return logg.NewLogg(loggOpts)
}

// InitConfig loads configuration from a TOML file and environment variables.
// Environment variables prefixed with AYUR_ override file values, with double
// underscores for nesting (AYUR_CACHE__CHAIN_TTL_SECS) and spaces separating
// array values.
func InitConfig(lo *slog.Logger, confFilePath string) *koanf.Koanf {
	ko := koanf.New(".")

	confFile := file.Provider(confFilePath)
	if err := ko.Load(confFile, toml.Parser()); err != nil {
		lo.Error("failed to load configuration file", "file", confFilePath, "error", err)
		os.Exit(1)
	}

	err := ko.Load(env.ProviderWithValue(envPrefix, ".", func(s string, v string) (string, interface{}) {
		key := strings.ReplaceAll(
			strings.ToLower(strings.TrimPrefix(s, envPrefix)),
			envNestedSeparator,
			".",
		)

		if strings.Contains(v, envSeparator) {
			return key, strings.Split(v, envSeparator)
		}

		return key, v
	}), nil)

	if err != nil {
		lo.Error("failed to load environment variable overrides", "error", err)
		os.Exit(1)
	}

	if os.Getenv(envDebug) != "" {
		ko.Print()
	}

	return ko
}

// InitRedis returns a client for the redis.dsn setting when the caches are
// configured to use Redis, and nil otherwise.
func InitRedis(lo *slog.Logger, ko *koanf.Koanf) *redis.Client {
	if ko.String("cache.cache_type") != "redis" {
		return nil
	}

	opts, err := redis.ParseURL(ko.MustString("redis.dsn"))
	if err != nil {
		lo.Error("failed to parse redis dsn", "error", err)
		os.Exit(1)
	}

	lo.Debug("loaded redis client", "addr", opts.Addr, "db", opts.DB)
	return redis.NewClient(opts)
}
