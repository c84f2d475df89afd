package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/adrg/xdg"
	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"github.com/subsh-org/subsh/internal/build"
)

// Interactive/TTY programs that take over the terminal. Commands matching
// these patterns run on the launching thread and are never captured.
var defaultUnthreadable = []string{
	"vi", "vim", "nvim", "gvim", "view", "emacs", "nano", "mc", "ranger",
	"less", "more", "man", "top", "htop", "watch",
	"ssh", "telnet", "tmux", "screen", "fzf",
}

var defaultUncapturable = []string{
	"vi", "vim", "nvim", "gvim", "emacs", "nano",
	"less", "more", "man", "top", "htop",
}

// Load creates a new configuration by instantiating a Loader with the
// provided options and invoking its Load method.
func Load(opts ...LoaderOption) (*Config, error) {
	loader := NewLoader(opts...)
	cfg, err := loader.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

// Loader reads and merges configuration from file and environment.
// The internal mutex makes Load safe for concurrent use.
type Loader struct {
	lock       sync.Mutex
	configFile string
	warnings   []string
}

// LoaderOption defines a functional option for configuring a Loader.
type LoaderOption func(*Loader)

// WithConfigFile sets an explicit configuration file path.
func WithConfigFile(configFile string) LoaderOption {
	return func(l *Loader) {
		l.configFile = configFile
	}
}

// NewLoader creates a new Loader instance and applies all given options.
func NewLoader(options ...LoaderOption) *Loader {
	loader := &Loader{}
	for _, option := range options {
		option(loader)
	}
	return loader
}

// Load initializes viper, reads the configuration file if present, and
// returns a built and validated Config.
func (l *Loader) Load() (*Config, error) {
	l.lock.Lock()
	defer l.lock.Unlock()

	v := viper.New()
	l.configureViper(v)
	l.bindEnvironmentVariables(v)
	l.setDefaultValues(v)

	// A missing config file is fine; the defaults and environment rule.
	if err := v.ReadInConfig(); err != nil {
		_, notFound := err.(viper.ConfigFileNotFoundError)
		if !notFound && !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var def Definition
	if err := v.Unmarshal(&def, viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg, err := l.buildConfig(def)
	if err != nil {
		return nil, fmt.Errorf("failed to build config: %w", err)
	}

	cfg.Warnings = l.warnings
	cfg.Global.ConfigPath = v.ConfigFileUsed()

	return cfg, nil
}

// buildConfig transforms the raw Definition into the final Config.
func (l *Loader) buildConfig(def Definition) (*Config, error) {
	cfg := &Config{
		Global: Global{
			Debug:     def.Debug,
			LogFormat: def.LogFormat,
		},
		Exec: Exec{
			CaptureAlways: def.CaptureAlways,
			StoreStdout:   def.StoreStdout,
			RaiseOnError:  def.RaiseOnError,
			PollInterval:  def.PollInterval,
			PtyReadDelay:  def.PtyReadDelay,
			Unthreadable:  def.Unthreadable,
			Uncapturable:  def.Uncapturable,
		},
		Jobs: Jobs{
			AutoContinue: def.AutoContinue,
		},
		Paths: Paths{
			AliasFile: def.AliasFile,
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func (l *Loader) configureViper(v *viper.Viper) {
	if l.configFile == "" {
		v.AddConfigPath(filepath.Join(xdg.ConfigHome, build.Slug))
		v.SetConfigName("config")
	} else {
		v.SetConfigFile(l.configFile)
	}
	v.SetConfigType("yaml")
	v.SetEnvPrefix(strings.ToUpper(build.Slug))
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
}

func (l *Loader) setDefaultValues(v *viper.Viper) {
	v.SetDefault("debug", false)
	v.SetDefault("logFormat", "text")

	v.SetDefault("captureAlways", false)
	v.SetDefault("storeStdout", false)
	v.SetDefault("raiseOnError", false)
	v.SetDefault("pollInterval", 100*time.Microsecond)
	v.SetDefault("ptyReadDelay", time.Duration(0))
	v.SetDefault("unthreadable", defaultUnthreadable)
	v.SetDefault("uncapturable", defaultUncapturable)

	v.SetDefault("autoContinue", false)

	v.SetDefault("aliasFile", filepath.Join(xdg.ConfigHome, build.Slug, "aliases.yaml"))
}

func (l *Loader) bindEnvironmentVariables(v *viper.Viper) {
	l.bindEnv(v, "logFormat", "LOG_FORMAT")
	l.bindEnv(v, "debug", "DEBUG")

	l.bindEnv(v, "captureAlways", "CAPTURE_ALWAYS")
	l.bindEnv(v, "storeStdout", "STORE_STDOUT")
	l.bindEnv(v, "raiseOnError", "RAISE_ON_ERROR")
	l.bindEnv(v, "pollInterval", "POLL_INTERVAL")
	l.bindEnv(v, "ptyReadDelay", "PTY_READ_DELAY")
	l.bindEnv(v, "unthreadable", "UNTHREADABLE")
	l.bindEnv(v, "uncapturable", "UNCAPTURABLE")

	l.bindEnv(v, "autoContinue", "AUTO_CONTINUE")

	l.bindEnv(v, "aliasFile", "ALIAS_FILE")
}

// bindEnv joins the app prefix and the suffix and binds it to the key.
func (l *Loader) bindEnv(v *viper.Viper, key, env string) {
	prefix := strings.ToUpper(build.Slug) + "_"
	_ = v.BindEnv(key, prefix+env)
}
