package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
	"github.com/rs/zerolog/log"
)

// EnvOverrides lists the settings that may come from the environment
// instead of config.json. The bot token usually does.
type EnvOverrides struct {
	DiscordToken  string `env:"DISCORD_ECHO_TOKEN"`
	MapServerHost string `env:"DISCORD_ECHO_MAP_HOST"`
	MapServerPort int    `env:"DISCORD_ECHO_MAP_PORT"`
	LogLevel      string `env:"DISCORD_ECHO_LOG_LEVEL"`
}

// ParseEnvOverrides reads EnvOverrides from the process environment.
func ParseEnvOverrides() (EnvOverrides, error) {
	var o EnvOverrides
	if err := env.Parse(&o); err != nil {
		return EnvOverrides{}, fmt.Errorf("parse env: %w", err)
	}
	return o, nil
}

// ApplyEnv overlays non-empty environment values onto the configuration.
// Overrides live in memory; a later Save writes them to config.json.
func (c *Config) ApplyEnv(o EnvOverrides) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if o.DiscordToken != "" {
		c.BridgeData.DiscordToken = o.DiscordToken
		log.Debug().Msg("discord token taken from environment")
	}
	if o.MapServerHost != "" {
		c.BridgeData.MapServerHost = o.MapServerHost
	}
	if o.MapServerPort != 0 {
		c.BridgeData.MapServerPort = o.MapServerPort
	}
	if o.LogLevel != "" {
		c.ApplicationData.Logging.Level = o.LogLevel
	}
}
