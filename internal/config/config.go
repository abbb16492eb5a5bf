package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	App        App        `mapstructure:"app"`
	Gemini     Gemini     `mapstructure:"gemini"`
	Generation Generation `mapstructure:"generation"`
	Cache      Cache      `mapstructure:"cache"`
}

// App holds general application configuration
type App struct {
	Debug    bool   `mapstructure:"debug"`
	LogLevel string `mapstructure:"log_level"`
	DataDir  string `mapstructure:"data_dir"`
}

// Gemini holds text-generation service configuration
type Gemini struct {
	APIKey      string  `mapstructure:"api_key"`
	Model       string  `mapstructure:"model"`
	Timeout     string  `mapstructure:"timeout"`
	MaxTokens   int32   `mapstructure:"max_tokens"`
	Temperature float32 `mapstructure:"temperature"`
}

// Generation holds story generation policy configuration
type Generation struct {
	WindowHours         int     `mapstructure:"window_hours"`
	MinArticlesPerStory int     `mapstructure:"min_articles_per_story"`
	SimilarityThreshold float64 `mapstructure:"similarity_threshold"`
	OverlapThreshold    float64 `mapstructure:"overlap_threshold"`
	MaxWorkers          int     `mapstructure:"max_workers"`
	FreshnessHorizon    string  `mapstructure:"freshness_horizon"`
	ArchiveAfter        string  `mapstructure:"archive_after"`
}

// Cache holds cache configuration
type Cache struct {
	EntityCacheSize int    `mapstructure:"entity_cache_size"`
	SynthesisTTL    string `mapstructure:"synthesis_ttl"`
}

var globalConfig *Config

// Load loads the configuration from defaults, an optional config file,
// and environment variables.
func Load(configFile string) (*Config, error) {
	if globalConfig != nil {
		return globalConfig, nil
	}

	// Load .env file if it exists
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(".env"); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: error loading .env file: %v\n", err)
		}
	}

	if configFile != "" {
		viper.SetConfigFile(configFile)
	} else {
		viper.AddConfigPath(".")
		viper.AddConfigPath("$HOME")
		viper.SetConfigName(".newsloom")
		viper.SetConfigType("yaml")
	}

	setDefaults()

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	_ = viper.BindEnv("gemini.api_key", "GEMINI_API_KEY", "GOOGLE_GEMINI_API_KEY")

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	config := &Config{}
	if err := viper.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	config.App.DataDir = expandPath(config.App.DataDir)

	if err := validateConfig(config); err != nil {
		return nil, err
	}

	globalConfig = config
	return config, nil
}

// Get returns the global configuration, loading it if necessary.
func Get() *Config {
	if globalConfig == nil {
		config, err := Load("")
		if err != nil {
			panic(fmt.Sprintf("Failed to load configuration: %v", err))
		}
		return config
	}
	return globalConfig
}

// Reset clears the cached global configuration. Intended for tests.
func Reset() {
	globalConfig = nil
	viper.Reset()
}

func setDefaults() {
	viper.SetDefault("app.debug", false)
	viper.SetDefault("app.log_level", "info")
	viper.SetDefault("app.data_dir", ".newsloom")

	viper.SetDefault("gemini.model", "gemini-flash-lite-latest")
	viper.SetDefault("gemini.timeout", "45s")
	viper.SetDefault("gemini.max_tokens", 4096)
	viper.SetDefault("gemini.temperature", 0.3)

	viper.SetDefault("generation.window_hours", 24)
	viper.SetDefault("generation.min_articles_per_story", 2)
	viper.SetDefault("generation.similarity_threshold", 0.35)
	viper.SetDefault("generation.overlap_threshold", 0.5)
	viper.SetDefault("generation.max_workers", 4)
	viper.SetDefault("generation.freshness_horizon", "48h")
	viper.SetDefault("generation.archive_after", "168h")

	viper.SetDefault("cache.entity_cache_size", 2048)
	viper.SetDefault("cache.synthesis_ttl", "72h")
}

func validateConfig(config *Config) error {
	if config.Generation.WindowHours <= 0 {
		return fmt.Errorf("generation.window_hours must be positive, got %d", config.Generation.WindowHours)
	}
	if config.Generation.MinArticlesPerStory < 1 {
		return fmt.Errorf("generation.min_articles_per_story must be at least 1, got %d", config.Generation.MinArticlesPerStory)
	}
	if t := config.Generation.SimilarityThreshold; t <= 0 || t >= 1 {
		return fmt.Errorf("generation.similarity_threshold must be in (0,1), got %f", t)
	}
	if t := config.Generation.OverlapThreshold; t <= 0 || t > 1 {
		return fmt.Errorf("generation.overlap_threshold must be in (0,1], got %f", t)
	}
	if config.Generation.MaxWorkers < 1 {
		return fmt.Errorf("generation.max_workers must be at least 1, got %d", config.Generation.MaxWorkers)
	}
	for key, val := range map[string]string{
		"gemini.timeout":               config.Gemini.Timeout,
		"generation.freshness_horizon": config.Generation.FreshnessHorizon,
		"generation.archive_after":     config.Generation.ArchiveAfter,
		"cache.synthesis_ttl":          config.Cache.SynthesisTTL,
	} {
		if _, err := time.ParseDuration(val); err != nil {
			return fmt.Errorf("%s is not a valid duration: %q", key, val)
		}
	}
	return nil
}

func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, path[2:])
		}
	}
	return path
}

// Duration helpers for the string-typed duration fields. Validation at load
// time guarantees these parse.

// GeminiTimeout returns the per-call generation timeout.
func (c *Config) GeminiTimeout() time.Duration {
	d, _ := time.ParseDuration(c.Gemini.Timeout)
	return d
}

// FreshnessHorizon returns the horizon over which freshness decays to zero.
func (c *Config) FreshnessHorizon() time.Duration {
	d, _ := time.ParseDuration(c.Generation.FreshnessHorizon)
	return d
}

// ArchiveAfter returns the age past which active stories are archived.
func (c *Config) ArchiveAfter() time.Duration {
	d, _ := time.ParseDuration(c.Generation.ArchiveAfter)
	return d
}

// SynthesisTTL returns the time-to-live for cached synthesis results.
func (c *Config) SynthesisTTL() time.Duration {
	d, _ := time.ParseDuration(c.Cache.SynthesisTTL)
	return d
}
