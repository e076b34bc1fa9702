// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the benchmark harness. Durations
// are stored in the units the CLI and environment expose: seconds for
// phase lengths, milliseconds for the filter-update interval.
type Config struct {
	Host                 string `yaml:"ws_host"`
	Port                 int    `yaml:"ws_port"`
	AppKey               string `yaml:"app_key"`
	Channel              string `yaml:"channel"`
	Scenario             int    `yaml:"scenario"`
	TokenFile            string `yaml:"token_file"`
	FilterUpdateInterval int64  `yaml:"filter_update_interval"` // milliseconds
	NumClients           int    `yaml:"num_clients"`
	RampDuration         int64  `yaml:"ramp_duration"`      // seconds
	HoldDuration         int64  `yaml:"hold_duration"`      // seconds
	RampDownDuration     int64  `yaml:"ramp_down_duration"` // seconds
	WarmupDuration       int64  `yaml:"warmup_duration"`    // seconds
	ClientIDOffset       int    `yaml:"client_id_offset"`

	Log LogConfig `yaml:"log"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text, json
}

// Default returns a configuration with sensible defaults.
func Default() *Config {
	return &Config{
		Host:                 "stream-v2.projectscylla.com",
		Port:                 443,
		AppKey:               "knife-library-likely",
		Channel:              "trident_filter_tokens_v1",
		Scenario:             1,
		TokenFile:            "token-addresses.json",
		FilterUpdateInterval: 5000,
		NumClients:           1000,
		RampDuration:         30,
		HoldDuration:         60,
		RampDownDuration:     10,
		WarmupDuration:       0,
		ClientIDOffset:       0,
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load loads configuration from a YAML file over the defaults.
// If the file doesn't exist, returns default configuration.
func Load(filename string) (*Config, error) {
	if filename == "" {
		return Default(), nil
	}

	data, err := os.ReadFile(filename)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return cfg, nil
}

// ApplyEnv overlays environment variables onto the configuration.
// Unset variables leave the current value untouched.
func (c *Config) ApplyEnv() error {
	c.Host = envString("WS_HOST", c.Host)
	c.AppKey = envString("APP_KEY", c.AppKey)
	c.Channel = envString("CHANNEL", c.Channel)
	c.TokenFile = envString("TOKEN_FILE", c.TokenFile)
	c.Log.Level = envString("LOG_LEVEL", c.Log.Level)
	c.Log.Format = envString("LOG_FORMAT", c.Log.Format)

	var err error
	if c.Port, err = envInt("WS_PORT", c.Port); err != nil {
		return err
	}
	if c.Scenario, err = envInt("SCENARIO", c.Scenario); err != nil {
		return err
	}
	if c.NumClients, err = envInt("NUM_CLIENTS", c.NumClients); err != nil {
		return err
	}
	if c.ClientIDOffset, err = envInt("CLIENT_ID_OFFSET", c.ClientIDOffset); err != nil {
		return err
	}
	if c.FilterUpdateInterval, err = envInt64("FILTER_UPDATE_INTERVAL", c.FilterUpdateInterval); err != nil {
		return err
	}
	if c.RampDuration, err = envInt64("RAMP_DURATION", c.RampDuration); err != nil {
		return err
	}
	if c.HoldDuration, err = envInt64("HOLD_DURATION", c.HoldDuration); err != nil {
		return err
	}
	if c.RampDownDuration, err = envInt64("RAMP_DOWN_DURATION", c.RampDownDuration); err != nil {
		return err
	}
	if c.WarmupDuration, err = envInt64("WARMUP_DURATION", c.WarmupDuration); err != nil {
		return err
	}

	return nil
}

// RegisterFlags binds every option to fs. The current field values
// serve as flag defaults, so precedence is defaults, then config
// file, then environment, then command line.
func (c *Config) RegisterFlags(fs *flag.FlagSet) {
	fs.StringVar(&c.Host, "ws-host", c.Host, "WebSocket host")
	fs.IntVar(&c.Port, "ws-port", c.Port, "WebSocket port")
	fs.StringVar(&c.AppKey, "app-key", c.AppKey, "Application key")
	fs.StringVar(&c.Channel, "channel", c.Channel, "Channel name")
	fs.IntVar(&c.Scenario, "scenario", c.Scenario, "Scenario (1-5)")
	fs.StringVar(&c.TokenFile, "token-file", c.TokenFile, "Token addresses JSON file")
	fs.Int64Var(&c.FilterUpdateInterval, "filter-update-interval", c.FilterUpdateInterval, "Filter update interval in milliseconds (scenario 2)")
	fs.IntVar(&c.NumClients, "num-clients", c.NumClients, "Target number of clients")
	fs.Int64Var(&c.RampDuration, "ramp-duration", c.RampDuration, "Ramp-up duration in seconds")
	fs.Int64Var(&c.HoldDuration, "hold-duration", c.HoldDuration, "Hold duration in seconds")
	fs.Int64Var(&c.RampDownDuration, "ramp-down-duration", c.RampDownDuration, "Ramp-down duration in seconds")
	fs.Int64Var(&c.WarmupDuration, "warmup-duration", c.WarmupDuration, "Warm-up duration in seconds (metrics discarded)")
	fs.IntVar(&c.ClientIDOffset, "client-id-offset", c.ClientIDOffset, "Client ID offset for multi-machine benchmarking")
	fs.StringVar(&c.Log.Level, "log-level", c.Log.Level, "Log level (debug, info, warn, error)")
	fs.StringVar(&c.Log.Format, "log-format", c.Log.Format, "Log format (text, json)")
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Host == "" {
		return fmt.Errorf("ws_host cannot be empty")
	}
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("ws_port must be in 1..65535")
	}
	if c.AppKey == "" {
		return fmt.Errorf("app_key cannot be empty")
	}
	if c.Channel == "" {
		return fmt.Errorf("channel cannot be empty")
	}
	if c.Scenario < 1 || c.Scenario > 5 {
		return fmt.Errorf("scenario must be in 1..5")
	}
	if c.Scenario == 2 && c.FilterUpdateInterval < 1 {
		return fmt.Errorf("filter_update_interval must be at least 1ms for scenario 2")
	}
	if c.NumClients < 1 {
		return fmt.Errorf("num_clients must be at least 1")
	}
	if c.RampDuration < 1 {
		return fmt.Errorf("ramp_duration must be at least 1 second")
	}
	if c.HoldDuration < 0 || c.RampDownDuration < 0 || c.WarmupDuration < 0 {
		return fmt.Errorf("phase durations cannot be negative")
	}
	if c.ClientIDOffset < 0 {
		return fmt.Errorf("client_id_offset cannot be negative")
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Log.Level] {
		return fmt.Errorf("log.level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"text": true, "json": true}
	if !validFormats[c.Log.Format] {
		return fmt.Errorf("log.format must be one of: text, json")
	}

	return nil
}

// URL returns the connection URL, wss when the port is 443 and ws
// otherwise.
func (c *Config) URL() string {
	scheme := "ws"
	if c.Port == 443 {
		scheme = "wss"
	}
	return fmt.Sprintf("%s://%s:%d/app/%s", scheme, c.Host, c.Port, c.AppKey)
}

// Duration accessors for the integer-typed wire options.

func (c *Config) FilterUpdateTick() time.Duration {
	return time.Duration(c.FilterUpdateInterval) * time.Millisecond
}

func (c *Config) RampTime() time.Duration {
	return time.Duration(c.RampDuration) * time.Second
}

func (c *Config) HoldTime() time.Duration {
	return time.Duration(c.HoldDuration) * time.Second
}

func (c *Config) RampDownTime() time.Duration {
	return time.Duration(c.RampDownDuration) * time.Second
}

func (c *Config) WarmupTime() time.Duration {
	return time.Duration(c.WarmupDuration) * time.Second
}

func envString(key, cur string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return cur
}

func envInt(key string, cur int) (int, error) {
	v, ok := os.LookupEnv(key)
	if !ok {
		return cur, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func envInt64(key string, cur int64) (int64, error) {
	v, ok := os.LookupEnv(key)
	if !ok {
		return cur, nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}
