// This file defines the configuration structure for the application.
package config

import (
	// use Viper for loading the config.yml file.
	"log"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// Config holds all configuration settings for the application.
// It maps directly to the structure of config.yml.
type Config struct {
	Port     int `mapstructure:"port"`
	Database struct {
		Path string `mapstructure:"path"`
	} `mapstructure:"database"`
	Origin struct {
		BaseURL        string  `mapstructure:"base_url"`
		TimeoutSeconds int     `mapstructure:"timeout_seconds"`
		MaxRetries     int     `mapstructure:"max_retries"`
		RatePerSecond  float64 `mapstructure:"rate_per_second"`
		BanLogPath     string  `mapstructure:"ban_log_path"`
		PageLimit      int     `mapstructure:"page_limit"`
	} `mapstructure:"origin"`
	Blob struct {
		BaseURL string `mapstructure:"base_url"`
		Token   string `mapstructure:"token"`
	} `mapstructure:"blob"`
	Publish struct {
		BaseURL string `mapstructure:"base_url"`
		Author  string `mapstructure:"author"`
	} `mapstructure:"publish"`
	Cache struct {
		SearchTTLHours      int `mapstructure:"search_ttl_hours"`
		MetadataMaxAgeHours int `mapstructure:"metadata_max_age_hours"`
		SweepIntervalHours  int `mapstructure:"sweep_interval_hours"`
	} `mapstructure:"cache"`
	Pipeline struct {
		MaxArtifactMB int `mapstructure:"max_artifact_mb"`
		JPEGQuality   int `mapstructure:"jpeg_quality"`
		MaxPageWidth  int `mapstructure:"max_page_width"`
	} `mapstructure:"pipeline"`
	Quota struct {
		StandardDaily   int `mapstructure:"standard_daily"`
		StandardMonthly int `mapstructure:"standard_monthly"`
		PremiumDaily    int `mapstructure:"premium_daily"`
		PremiumMonthly  int `mapstructure:"premium_monthly"`
	} `mapstructure:"quota"`
}

// Load reads configuration from a file named "config.yml" in the
// current directory and unmarshals it into a Config struct.
func Load() (*Config, error) {
	viper.SetConfigName("config") // name of config file (without extension)
	viper.SetConfigType("yml")    // or "yaml"
	viper.AddConfigPath(".")      // looking for config in the current directory

	// --- Environment Variable Overrides ---
	// e.g., MANGAPIPE_DATABASE_PATH overrides the `database.path` key.
	viper.SetEnvPrefix("MANGAPIPE")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			// Config file not found; ignore error and use defaults
		} else {
			// Config file was found but another error was produced
			return nil, err
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

// Watch re-reads config.yml on change and hands the fresh Config to
// onChange. Keys read once at startup (port, database path) are not
// re-applied; tunables like quota limits and TTLs are.
func Watch(onChange func(*Config)) {
	viper.OnConfigChange(func(e fsnotify.Event) {
		var config Config
		if err := viper.Unmarshal(&config); err != nil {
			log.Printf("Ignoring config change, unmarshal failed: %v", err)
			return
		}
		log.Printf("Config file changed: %s", e.Name)
		onChange(&config)
	})
	viper.WatchConfig()
}

func setDefaults() {
	viper.SetDefault("port", 8080)
	viper.SetDefault("database.path", "./mangapipe.db")

	viper.SetDefault("origin.base_url", "https://desu.city/manga/api")
	viper.SetDefault("origin.timeout_seconds", 15)
	viper.SetDefault("origin.max_retries", 3)
	viper.SetDefault("origin.rate_per_second", 2.0)
	viper.SetDefault("origin.ban_log_path", "./ban_alerts.log")
	viper.SetDefault("origin.page_limit", 50)

	viper.SetDefault("blob.base_url", "")
	viper.SetDefault("blob.token", "")

	viper.SetDefault("publish.base_url", "https://api.telegra.ph")
	viper.SetDefault("publish.author", "mangapipe")

	viper.SetDefault("cache.search_ttl_hours", 24)
	viper.SetDefault("cache.metadata_max_age_hours", 24)
	viper.SetDefault("cache.sweep_interval_hours", 24)

	viper.SetDefault("pipeline.max_artifact_mb", 50)
	viper.SetDefault("pipeline.jpeg_quality", 85)
	viper.SetDefault("pipeline.max_page_width", 1600)

	viper.SetDefault("quota.standard_daily", 10)
	viper.SetDefault("quota.standard_monthly", 300)
	viper.SetDefault("quota.premium_daily", 100)
	viper.SetDefault("quota.premium_monthly", 3000)
}
