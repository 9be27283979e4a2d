package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/viper"
)

// Load reads configuration from file and environment.
// Priority (highest to lowest): env vars > config file > defaults.
// CLI flags are applied on top by the caller.
func Load(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	v := viper.New()
	v.SetConfigType("yaml")

	setDefaults(v, cfg)

	v.SetEnvPrefix("CARSCOUT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("carscout")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		home, err := os.UserHomeDir()
		if err == nil {
			v.AddConfigPath(filepath.Join(home, ".carscout"))
		}
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok || configPath != "" {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found is okay if not explicitly specified
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return cfg, nil
}

// setDefaults registers default values in viper so env overrides resolve
// for every key, not only those present in a config file.
func setDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("engine.sample_size", cfg.Engine.SampleSize)
	v.SetDefault("engine.page_size", cfg.Engine.PageSize)
	v.SetDefault("engine.url_template", cfg.Engine.URLTemplate)
	v.SetDefault("engine.min_delay", cfg.Engine.MinDelay)
	v.SetDefault("engine.max_delay", cfg.Engine.MaxDelay)
	v.SetDefault("engine.request_timeout", cfg.Engine.RequestTimeout)
	v.SetDefault("engine.max_retries", cfg.Engine.MaxRetries)
	v.SetDefault("engine.retry_delay", cfg.Engine.RetryDelay)
	v.SetDefault("engine.on_page_error", cfg.Engine.OnPageError)

	v.SetDefault("fetcher.type", cfg.Fetcher.Type)
	v.SetDefault("fetcher.user_agent", cfg.Fetcher.UserAgent)
	v.SetDefault("fetcher.accept_language", cfg.Fetcher.AcceptLanguage)
	v.SetDefault("fetcher.follow_redirects", cfg.Fetcher.FollowRedirects)
	v.SetDefault("fetcher.max_redirects", cfg.Fetcher.MaxRedirects)
	v.SetDefault("fetcher.max_body_size", cfg.Fetcher.MaxBodySize)
	v.SetDefault("fetcher.tls_insecure", cfg.Fetcher.TLSInsecure)
	v.SetDefault("fetcher.idle_conn_timeout", cfg.Fetcher.IdleConnTimeout)
	v.SetDefault("fetcher.max_idle_conns", cfg.Fetcher.MaxIdleConns)
	v.SetDefault("fetcher.stealth", cfg.Fetcher.Stealth)

	v.SetDefault("proxy.enabled", cfg.Proxy.Enabled)
	v.SetDefault("proxy.rotation", cfg.Proxy.Rotation)

	v.SetDefault("parser.engine", cfg.Parser.Engine)
	v.SetDefault("parser.listing_class", cfg.Parser.ListingClass)
	v.SetDefault("parser.title_class", cfg.Parser.TitleClass)
	v.SetDefault("parser.pricing_class", cfg.Parser.PricingClass)
	v.SetDefault("parser.year_label", cfg.Parser.YearLabel)
	v.SetDefault("parser.fuel_label", cfg.Parser.FuelLabel)
	v.SetDefault("parser.gearbox_label", cfg.Parser.GearboxLabel)
	v.SetDefault("parser.power_label", cfg.Parser.PowerLabel)
	v.SetDefault("parser.mileage_label", cfg.Parser.MileageLabel)

	v.SetDefault("pipeline.null_marque", cfg.Pipeline.NullMarque)

	v.SetDefault("storage.type", cfg.Storage.Type)
	v.SetDefault("storage.output_path", cfg.Storage.OutputPath)
	v.SetDefault("storage.schema", cfg.Storage.Schema)
	v.SetDefault("storage.delimiter", cfg.Storage.Delimiter)
	v.SetDefault("storage.mongo.enabled", cfg.Storage.Mongo.Enabled)
	v.SetDefault("storage.mongo.uri", cfg.Storage.Mongo.URI)
	v.SetDefault("storage.mongo.database", cfg.Storage.Mongo.Database)
	v.SetDefault("storage.mongo.collection", cfg.Storage.Mongo.Collection)
	v.SetDefault("storage.postgres.enabled", cfg.Storage.Postgres.Enabled)
	v.SetDefault("storage.postgres.dsn", cfg.Storage.Postgres.DSN)
	v.SetDefault("storage.postgres.table", cfg.Storage.Postgres.Table)

	v.SetDefault("logging.level", cfg.Logging.Level)
	v.SetDefault("logging.format", cfg.Logging.Format)
	v.SetDefault("logging.output", cfg.Logging.Output)

	v.SetDefault("metrics.enabled", cfg.Metrics.Enabled)
	v.SetDefault("metrics.port", cfg.Metrics.Port)
	v.SetDefault("metrics.path", cfg.Metrics.Path)
}

func replacePage(template string, page int) string {
	return strings.ReplaceAll(template, PagePlaceholder, strconv.Itoa(page))
}
