// Package config loads empathy settings from defaults, an optional YAML
// file, EMPATHY_* environment variables and command-line flags, in
// increasing order of precedence.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	// AppName is the application name.
	AppName = "empathy"
	// FileName is the project-local config file looked up in the working directory.
	FileName = ".empathy.yaml"
	// EnvPrefix prefixes environment variable overrides.
	EnvPrefix = "EMPATHY"
)

// Config holds every empathy setting.
type Config struct {
	AssetsDirectory string        `mapstructure:"assets-directory" yaml:"assets-directory"`
	DistDirectory   string        `mapstructure:"dist-directory" yaml:"dist-directory"`
	Only            []string      `mapstructure:"only" yaml:"only,omitempty"`
	Ignore          []string      `mapstructure:"ignore" yaml:"ignore,omitempty"`
	Sources         []string      `mapstructure:"sources" yaml:"sources,omitempty"`
	Workers         int           `mapstructure:"workers" yaml:"workers"`
	NPMCommand      string        `mapstructure:"npm-command" yaml:"npm-command"`
	InstallTimeout  time.Duration `mapstructure:"install-timeout" yaml:"install-timeout"`
	Report          bool          `mapstructure:"report" yaml:"report"`
	Verbose         bool          `mapstructure:"verbose" yaml:"verbose"`
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() Config {
	return Config{
		AssetsDirectory: "assets",
		DistDirectory:   "dist",
		Workers:         runtime.GOMAXPROCS(0),
		NPMCommand:      "npm",
		InstallTimeout:  5 * time.Minute,
	}
}

// LoadOptions controls where Load looks for settings.
type LoadOptions struct {
	Dir            string         // Working directory; relative paths resolve against it
	ConfigFilePath string         // Explicit config file; must exist when set
	Flags          *pflag.FlagSet // Optional flag overrides
}

// Load merges every configuration source and resolves directory settings
// to absolute paths.
func Load(opts LoadOptions) (*Config, error) {
	v := viper.New()

	defaults := DefaultConfig()
	v.SetDefault("assets-directory", defaults.AssetsDirectory)
	v.SetDefault("dist-directory", defaults.DistDirectory)
	v.SetDefault("only", defaults.Only)
	v.SetDefault("ignore", defaults.Ignore)
	v.SetDefault("sources", defaults.Sources)
	v.SetDefault("workers", defaults.Workers)
	v.SetDefault("npm-command", defaults.NPMCommand)
	v.SetDefault("install-timeout", defaults.InstallTimeout)
	v.SetDefault("report", defaults.Report)
	v.SetDefault("verbose", defaults.Verbose)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	path := opts.ConfigFilePath
	if path != "" && !filepath.IsAbs(path) {
		path = filepath.Join(opts.Dir, path)
	}
	switch {
	case path != "":
		if !fileExists(path) {
			return nil, fmt.Errorf("config file not found: %s", path)
		}
	case fileExists(filepath.Join(opts.Dir, FileName)):
		path = filepath.Join(opts.Dir, FileName)
	}
	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	}

	if opts.Flags != nil {
		if err := v.BindPFlags(opts.Flags); err != nil {
			return nil, fmt.Errorf("binding flags: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if cfg.Workers <= 0 {
		cfg.Workers = defaults.Workers
	}

	cfg.AssetsDirectory = absolute(opts.Dir, cfg.AssetsDirectory)
	cfg.DistDirectory = absolute(opts.Dir, cfg.DistDirectory)
	return &cfg, nil
}

func absolute(dir, path string) string {
	if filepath.IsAbs(path) {
		return filepath.Clean(path)
	}
	return filepath.Join(dir, path)
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
