package config

import (
	"fmt"

	"github.com/spf13/viper"
)

// Load reads the JSON configuration document at path and validates its
// required fields. Unlike a service with sensible network defaults, a relay
// has no safe default bind address or thread count, so a missing or
// malformed file is always a fatal error rather than something to paper
// over with a generated default.
func Load(path string) (Config, error) {
	cfg := Default()

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("json")

	if err := v.ReadInConfig(); err != nil {
		return cfg, fmt.Errorf("read config %q: %w", path, err)
	}
	for _, key := range []string{"number_of_additional_threads", "listener.interface", "listener.port", "listener.max_queued_connections"} {
		if !v.IsSet(key) {
			return cfg, fmt.Errorf("%s is required", key)
		}
	}
	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("unmarshal config %q: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate checks the fields the listener cannot safely start without.
func (c Config) Validate() error {
	if c.NumberOfAdditionalThreads < 0 {
		return fmt.Errorf("number_of_additional_threads must be >= 0")
	}
	if c.Listener.Interface == "" {
		return fmt.Errorf("listener.interface is required")
	}
	if c.Listener.Port == 0 {
		return fmt.Errorf("listener.port is required")
	}
	if c.Listener.MaxQueuedConnections < 0 {
		return fmt.Errorf("listener.max_queued_connections must be >= 0")
	}
	return nil
}
