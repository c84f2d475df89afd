package config

import "time"

// Definition is the raw configuration shape read from the config file and
// environment. The Loader turns it into a Config. Duration fields accept
// strings like "100us" via the decode hook.
type Definition struct {
	Debug     bool   `mapstructure:"debug"`
	LogFormat string `mapstructure:"logFormat"`

	CaptureAlways bool          `mapstructure:"captureAlways"`
	StoreStdout   bool          `mapstructure:"storeStdout"`
	RaiseOnError  bool          `mapstructure:"raiseOnError"`
	PollInterval  time.Duration `mapstructure:"pollInterval"`
	PtyReadDelay  time.Duration `mapstructure:"ptyReadDelay"`

	Unthreadable []string `mapstructure:"unthreadable"`
	Uncapturable []string `mapstructure:"uncapturable"`

	AutoContinue bool `mapstructure:"autoContinue"`

	AliasFile string `mapstructure:"aliasFile"`
}
