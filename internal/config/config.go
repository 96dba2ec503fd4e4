// Package config handles configuration loading, validation, and persistence
// for the Discord echo bridge.
package config

import (
	"encoding/json"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	DefaultConfigDir    = "config"
	DefaultConfigFile   = "config.json"
	DefaultMapPort      = 5121
	DefaultAPIPort      = 5122
	DefaultSinkPort     = 5121
	DefaultDatabasePath = "data/relay.db"
)

// Config is the root configuration structure.
type Config struct {
	mu   sync.RWMutex
	path string

	BridgeData      BridgeData      `json:"bridge_data"`
	ApplicationData ApplicationData `json:"application_data"`
}

// BridgeData configures the relay itself: where packets go, which Discord
// channels feed which in-game channels, and the Discord credentials.
type BridgeData struct {
	// Map server
	MapServerHost     string `json:"map_server_host"`
	MapServerPort     int    `json:"map_server_port"`
	ConnectTimeoutSec int    `json:"connect_timeout_sec"`
	WriteTimeoutSec   int    `json:"write_timeout_sec"`

	// Discord
	DiscordToken string `json:"discord_bot_token"`

	// In-game channel name -> Discord channel ID
	Channels map[string]uint64 `json:"channels"`

	// Unmapped Discord channels: "drop" or "placeholder"
	UnmappedPolicy     string `json:"unmapped_policy"`
	PlaceholderChannel string `json:"placeholder_channel"`
}

// ApplicationData contains the bridge's supporting services.
type ApplicationData struct {
	API      APIConfig      `json:"api"`
	Sink     SinkConfig     `json:"sink"`
	MQTT     MQTTConfig     `json:"mqtt"`
	Database DatabaseConfig `json:"database"`
	Logging  LoggingConfig  `json:"logging"`
	Console  ConsoleConfig  `json:"console"`
	Health   HealthConfig   `json:"health"`
}

// APIConfig holds the local status API settings.
type APIConfig struct {
	Enabled        bool     `json:"enabled"`
	BindAddress    string   `json:"bind_address"`
	Port           int      `json:"port"`
	AllowedOrigins []string `json:"allowed_origins"`
	RateLimitRPS   int      `json:"rate_limit_rps"`
}

// SinkConfig holds the local packet sink settings. With the sink enabled
// and the map server address pointed at it, the bridge runs without a game.
type SinkConfig struct {
	Enabled     bool   `json:"enabled"`
	BindAddress string `json:"bind_address"`
	Port        int    `json:"port"`
}

// MQTTConfig holds MQTT telemetry settings.
type MQTTConfig struct {
	Enabled   bool   `json:"enabled"`
	BrokerURL string `json:"broker_url"`
	Port      int    `json:"port"`
	UseTLS    bool   `json:"use_tls"`
	CertFile  string `json:"cert_file"`
	KeyFile   string `json:"key_file"`
	ClientID  string `json:"client_id"`
	Username  string `json:"username"`
	Password  string `json:"password"`
}

// DatabaseConfig holds relay history settings.
type DatabaseConfig struct {
	Enabled       bool   `json:"enabled"`
	Path          string `json:"path"`
	RetentionDays int    `json:"retention_days"`
	CleanupTime   string `json:"cleanup_time"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `json:"level"`
	Directory  string `json:"directory"`
	MaxSizeMB  int    `json:"max_size_mb"`
	MaxBackups int    `json:"max_backups"`
}

// HealthConfig controls the periodic health checks. An interval of 0
// disables them.
type HealthConfig struct {
	IntervalSec        int     `json:"interval_sec"`
	DiskWarningPercent float64 `json:"disk_warning_percent"`
}

// ConsoleConfig toggles the interactive console.
type ConsoleConfig struct {
	Enabled bool `json:"enabled"`
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		BridgeData: BridgeData{
			MapServerHost:     "127.0.0.1",
			MapServerPort:     DefaultMapPort,
			ConnectTimeoutSec: 5,
			WriteTimeoutSec:   5,
			Channels: map[string]uint64{
				"main":    1205170163368984597,
				"trade":   1205170179923775550,
				"support": 1205170214199894017,
			},
			UnmappedPolicy: "drop",
		},
		ApplicationData: ApplicationData{
			API: APIConfig{
				Enabled:      true,
				BindAddress:  "127.0.0.1",
				Port:         DefaultAPIPort,
				RateLimitRPS: 20,
			},
			Sink: SinkConfig{
				Enabled:     false,
				BindAddress: "127.0.0.1",
				Port:        DefaultSinkPort,
			},
			MQTT: MQTTConfig{
				Enabled: false,
				Port:    8883,
				UseTLS:  true,
			},
			Database: DatabaseConfig{
				Enabled:       true,
				Path:          DefaultDatabasePath,
				RetentionDays: 30,
				CleanupTime:   "04:00",
			},
			Logging: LoggingConfig{
				Level:      "info",
				Directory:  "logs",
				MaxSizeMB:  10,
				MaxBackups: 5,
			},
			Console: ConsoleConfig{
				Enabled: true,
			},
			Health: HealthConfig{
				IntervalSec:        60,
				DiskWarningPercent: 90,
			},
		},
	}
}

// Load reads configuration from a JSON file, creating a default one on first run.
func Load(configDir string) (*Config, error) {
	configPath := filepath.Join(configDir, DefaultConfigFile)

	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			log.Info().Str("path", configPath).Msg("config file not found, creating default")
			cfg := DefaultConfig()
			cfg.path = configPath
			if saveErr := cfg.Save(); saveErr != nil {
				return nil, fmt.Errorf("failed to save default config: %w", saveErr)
			}
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
	}

	cfg := DefaultConfig()
	// A channels table in the file replaces the defaults instead of merging into them.
	cfg.BridgeData.Channels = nil
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", configPath, err)
	}
	if cfg.BridgeData.Channels == nil {
		cfg.BridgeData.Channels = DefaultConfig().BridgeData.Channels
	}

	cfg.path = configPath
	log.Info().Str("path", configPath).Msg("configuration loaded")

	// Re-save so config.json picks up fields added since it was written.
	if saveErr := cfg.Save(); saveErr != nil {
		log.Warn().Err(saveErr).Msg("failed to re-save config with updated defaults")
	}

	return cfg, nil
}

// Save writes the current configuration to disk.
func (c *Config) Save() error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	dir := filepath.Dir(c.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	// The file holds the bot token.
	if err := os.WriteFile(c.path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	log.Debug().Str("path", c.path).Msg("configuration saved")
	return nil
}

// GetBridgeData returns a copy of the bridge configuration. The channel
// table is copied too.
func (c *Config) GetBridgeData() BridgeData {
	c.mu.RLock()
	defer c.mu.RUnlock()

	data := c.BridgeData
	data.Channels = make(map[string]uint64, len(c.BridgeData.Channels))
	for name, id := range c.BridgeData.Channels {
		data.Channels[name] = id
	}
	return data
}

// SetBridgeData updates the bridge configuration.
func (c *Config) SetBridgeData(data BridgeData) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.BridgeData = data
}

// GetApplicationData returns a copy of the application configuration.
func (c *Config) GetApplicationData() ApplicationData {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.ApplicationData
}

// MapServerAddr returns the map server address as host:port.
func (c *Config) MapServerAddr() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return net.JoinHostPort(c.BridgeData.MapServerHost, strconv.Itoa(c.BridgeData.MapServerPort))
}

// ConnectTimeout returns the map server connect timeout.
func (c *Config) ConnectTimeout() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return time.Duration(c.BridgeData.ConnectTimeoutSec) * time.Second
}

// WriteTimeout returns the map server write timeout.
func (c *Config) WriteTimeout() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return time.Duration(c.BridgeData.WriteTimeoutSec) * time.Second
}

// Path returns the config file path.
func (c *Config) Path() string {
	return c.path
}

// IsFirstRun returns true if no Discord token has been configured yet.
func (c *Config) IsFirstRun() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.BridgeData.DiscordToken == ""
}
