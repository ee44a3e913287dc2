// Package config resolves run settings from flags, environment variables and
// an optional YAML file.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/daniel-butler/entity-meta/pkg/aggregate"
	"github.com/daniel-butler/entity-meta/pkg/chunker"
	"github.com/daniel-butler/entity-meta/pkg/metadata"
	"github.com/daniel-butler/entity-meta/pkg/ner"
)

// EnvPrefix prefixes environment variables, e.g. ENTITY_META_MIN_SCORE.
const EnvPrefix = "ENTITY_META"

// Recognizer backends.
const (
	BackendComprehend = "comprehend"
	BackendOpenAI     = "openai"
	BackendProse      = "prose"
)

// Config holds the settings for one run.
type Config struct {
	Backend       string
	Language      string
	ChunkSize     int
	MinScore      float64
	MaxEntities   int
	SourceBaseURL string
	ASCII         bool

	Region        string
	OpenAIModel   string
	OpenAIBaseURL string
	OpenAIAPIKey  string

	Cache       string
	MetricsFile string

	LogLevel string
	LogFile  string
	LogJSON  bool

	ConfigFile string
	EnvFile    string
}

// RegisterFlags defines every setting as a flag on fs.
func RegisterFlags(fs *pflag.FlagSet) {
	chunks := chunker.DefaultConfig()
	limits := aggregate.DefaultConfig()

	fs.String("backend", BackendComprehend, "Entity recognizer: comprehend, openai or prose")
	fs.String("language", "en", "Language code sent with each request")
	fs.Int("chunk-size", chunks.Size, "Maximum characters per request")
	fs.Float64("min-score", limits.MinScore, "Confidence an entity must exceed to be accepted")
	fs.Int("max-entities", limits.MaxEntities, "Maximum entities kept per category")
	fs.String("source-base-url", metadata.DefaultSourceBaseURL, "Prefix for the _source_uri attribute")
	fs.Bool("ascii", true, "Escape non-ASCII characters in the output")
	fs.String("region", "", "AWS region for Comprehend (default: SDK resolution)")
	fs.String("openai-model", ner.DefaultOpenAIModel, "Model for the openai backend")
	fs.String("openai-base-url", "", "OpenAI-compatible endpoint for the openai backend")
	fs.String("cache", "", "SQLite file caching recognizer responses (disabled if empty)")
	fs.String("metrics-file", "", "Write prometheus metrics to this file")
	fs.String("log-level", "warn", "Log level (debug, info, warn, error)")
	fs.String("log-file", "", "Also write logs to this rotated file")
	fs.Bool("log-json", false, "Log in JSON format")
	fs.String("config", "", "YAML config file")
	fs.String("env-file", ".env", "Load environment variables from this file if it exists")
}

// Load resolves the configuration. Precedence: explicitly set flags, then
// environment variables, then the config file, then flag defaults.
func Load(fs *pflag.FlagSet) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if err := v.BindPFlags(fs); err != nil {
		return Config{}, fmt.Errorf("binding flags: %w", err)
	}

	envFile := v.GetString("env-file")
	if err := loadEnvFile(envFile); err != nil {
		return Config{}, fmt.Errorf("loading env file %s: %w", envFile, err)
	}

	// Conventional names, not prefixed.
	_ = v.BindEnv("openai-api-key", "OPENAI_API_KEY")
	_ = v.BindEnv("openai-base-url", EnvPrefix+"_OPENAI_BASE_URL", "OPENAI_BASE_URL")

	configFile := v.GetString("config")
	if configFile != "" {
		v.SetConfigFile(configFile)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("reading config %s: %w", configFile, err)
		}
	}

	cfg := Config{
		Backend:       strings.ToLower(v.GetString("backend")),
		Language:      v.GetString("language"),
		ChunkSize:     v.GetInt("chunk-size"),
		MinScore:      v.GetFloat64("min-score"),
		MaxEntities:   v.GetInt("max-entities"),
		SourceBaseURL: v.GetString("source-base-url"),
		ASCII:         v.GetBool("ascii"),
		Region:        v.GetString("region"),
		OpenAIModel:   v.GetString("openai-model"),
		OpenAIBaseURL: v.GetString("openai-base-url"),
		OpenAIAPIKey:  v.GetString("openai-api-key"),
		Cache:         v.GetString("cache"),
		MetricsFile:   v.GetString("metrics-file"),
		LogLevel:      v.GetString("log-level"),
		LogFile:       v.GetString("log-file"),
		LogJSON:       v.GetBool("log-json"),
		ConfigFile:    configFile,
		EnvFile:       envFile,
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// loadEnvFile sets variables from a dotenv file without overriding the
// environment. A missing file is not an error.
func loadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// Validate checks if the configuration is valid.
func (c Config) Validate() error {
	switch c.Backend {
	case BackendComprehend, BackendOpenAI, BackendProse:
	default:
		return fmt.Errorf("unknown backend %q", c.Backend)
	}
	if c.Language == "" {
		return fmt.Errorf("language must not be empty")
	}
	if err := c.ChunkerConfig().Validate(); err != nil {
		return err
	}
	return c.AggregateConfig().Validate()
}

// ChunkerConfig returns the chunking part of the configuration.
func (c Config) ChunkerConfig() chunker.Config {
	return chunker.Config{Size: c.ChunkSize}
}

// AggregateConfig returns the filter and ranking part of the configuration.
func (c Config) AggregateConfig() aggregate.Config {
	return aggregate.Config{
		MinScore:    c.MinScore,
		MaxEntities: c.MaxEntities,
	}
}
