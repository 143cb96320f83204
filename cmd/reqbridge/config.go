package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	reqbridge "github.com/joeycumines/go-reqbridge"
	gojareqbridge "github.com/joeycumines/go-reqbridge/goja-reqbridge"
	"github.com/joeycumines/logiface"
)

type (
	// config is the resolved configuration, file values overridden by flags.
	config struct {
		RateLimits      map[time.Duration]int
		UserAgent       string
		LogLevel        string
		Timeout         time.Duration
		PollInterval    time.Duration
		ShutdownTimeout time.Duration
		MaxConcurrency  int
	}

	// fileConfig models the TOML config file.
	fileConfig struct {
		RateLimits      map[string]int `toml:"rate_limits"`
		UserAgent       string         `toml:"user_agent"`
		LogLevel        string         `toml:"log_level"`
		Timeout         time.Duration  `toml:"timeout"`
		PollInterval    time.Duration  `toml:"poll_interval"`
		ShutdownTimeout time.Duration  `toml:"shutdown_timeout"`
		MaxConcurrency  int            `toml:"max_concurrency"`
	}
)

func defaultConfig() *config {
	return &config{
		UserAgent:       reqbridge.DefaultUserAgent,
		LogLevel:        logiface.LevelInformational.String(),
		Timeout:         reqbridge.DefaultTimeout,
		PollInterval:    gojareqbridge.DefaultPollInterval,
		ShutdownTimeout: time.Second * 5,
	}
}

// loadFile applies a TOML config file. Unknown keys are rejected.
func (c *config) loadFile(path string) error {
	var file fileConfig
	md, err := toml.DecodeFile(path, &file)
	if err != nil {
		return fmt.Errorf("config %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) != 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return fmt.Errorf("config %s: unknown keys: %s", path, strings.Join(keys, ", "))
	}

	if md.IsDefined("user_agent") {
		c.UserAgent = file.UserAgent
	}
	if md.IsDefined("log_level") {
		c.LogLevel = file.LogLevel
	}
	if md.IsDefined("timeout") {
		c.Timeout = file.Timeout
	}
	if md.IsDefined("poll_interval") {
		c.PollInterval = file.PollInterval
	}
	if md.IsDefined("shutdown_timeout") {
		c.ShutdownTimeout = file.ShutdownTimeout
	}
	if md.IsDefined("max_concurrency") {
		c.MaxConcurrency = file.MaxConcurrency
	}
	if len(file.RateLimits) != 0 {
		c.RateLimits = make(map[time.Duration]int, len(file.RateLimits))
		for k, v := range file.RateLimits {
			d, err := time.ParseDuration(k)
			if err != nil {
				return fmt.Errorf("config %s: rate_limits: %w", path, err)
			}
			c.RateLimits[d] = v
		}
	}

	return nil
}

// dispatcherOptions builds the options for the dispatcher, validation is
// left to the dispatcher.
func (c *config) dispatcherOptions() []reqbridge.Option {
	opts := []reqbridge.Option{
		reqbridge.WithUserAgent(c.UserAgent),
		reqbridge.WithDefaultTimeout(c.Timeout),
		reqbridge.WithMaxConcurrency(c.MaxConcurrency),
	}
	if len(c.RateLimits) != 0 {
		opts = append(opts, reqbridge.WithRateLimit(c.RateLimits))
	}
	return opts
}

// parseLevel accepts the short syslog keywords, as well as a few common
// aliases.
func parseLevel(s string) (logiface.Level, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	switch s {
	case "error":
		return logiface.LevelError, nil
	case "warn":
		return logiface.LevelWarning, nil
	case "information", "informational":
		return logiface.LevelInformational, nil
	case "critical":
		return logiface.LevelCritical, nil
	}
	for level := logiface.LevelDisabled; level <= logiface.LevelTrace; level++ {
		if level.String() == s {
			return level, nil
		}
	}
	return logiface.LevelDisabled, fmt.Errorf("invalid log level: %q", s)
}
