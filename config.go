package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config holds everything read from moviedb.yaml and MOVIEDB_* variables.
type Config struct {
	DataFile string        `mapstructure:"data_file"`
	Logging  LoggingConfig `mapstructure:"logging"`
	Website  WebsiteConfig `mapstructure:"website"`
	Cache    CacheConfig   `mapstructure:"cache"`
	Scan     ScanConfig    `mapstructure:"scan"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format"` // console, json
}

type WebsiteConfig struct {
	Title    string `mapstructure:"title"`
	Template string `mapstructure:"template"`
	Output   string `mapstructure:"output"`
}

// CacheConfig enables the metadata response cache when Dir is set.
type CacheConfig struct {
	Dir string `mapstructure:"dir"`
}

type ScanConfig struct {
	Workers    int      `mapstructure:"workers"`
	Extensions []string `mapstructure:"extensions"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("data_file", "data/data.json")
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
	v.SetDefault("website.title", "My Movie Collection")
	v.SetDefault("website.template", "")
	v.SetDefault("website.output", "static/index.html")
	v.SetDefault("cache.dir", "")
	v.SetDefault("scan.workers", runtime.NumCPU())
	v.SetDefault("scan.extensions", defaultScanExtensions)
}

// LoadConfig reads configFile, or moviedb.yaml from the working directory or
// ~/.config/moviedb when configFile is empty. A missing default file is not
// an error. The --file flag, when set, overrides data_file.
func LoadConfig(configFile string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("moviedb")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".config", "moviedb"))
		}
	}

	v.SetEnvPrefix("MOVIEDB")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	if flags != nil {
		if f := flags.Lookup("file"); f != nil {
			if err := v.BindPFlag("data_file", f); err != nil {
				return nil, fmt.Errorf("bind --file: %w", err)
			}
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if strings.TrimSpace(c.DataFile) == "" {
		return errors.New("data_file must not be empty")
	}
	switch strings.ToLower(c.Logging.Format) {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format must be console or json, got %q", c.Logging.Format)
	}
	if c.Scan.Workers < 1 {
		c.Scan.Workers = 1
	}
	return nil
}
