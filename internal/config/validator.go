package config

import (
	"fmt"
	"net"
	"strings"

	"github.com/energizer-project/discord-echo/internal/channel"
	"github.com/energizer-project/discord-echo/internal/protocol"
	"github.com/energizer-project/discord-echo/internal/relay"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("config validation error [%s]: %s", e.Field, e.Message)
}

// ValidationResult holds the results of configuration validation.
type ValidationResult struct {
	Errors   []ValidationError
	Warnings []ValidationError
}

// IsValid returns true if there are no validation errors.
func (r *ValidationResult) IsValid() bool {
	return len(r.Errors) == 0
}

// AddError adds a validation error.
func (r *ValidationResult) AddError(field, message string) {
	r.Errors = append(r.Errors, ValidationError{Field: field, Message: message})
}

// AddWarning adds a validation warning.
func (r *ValidationResult) AddWarning(field, message string) {
	r.Warnings = append(r.Warnings, ValidationError{Field: field, Message: message})
}

// Validate checks the configuration for errors and likely mistakes.
func Validate(cfg *Config) *ValidationResult {
	result := &ValidationResult{}

	bridge := cfg.GetBridgeData()
	app := cfg.GetApplicationData()

	validateBridgeData(&bridge, result)
	validateApplicationData(&app, result)

	if app.API.Enabled && app.Sink.Enabled && app.API.Port == app.Sink.Port {
		result.AddError("application_data.sink.port",
			fmt.Sprintf("sink port %d conflicts with the status API port", app.Sink.Port))
	}

	return result
}

func validateBridgeData(data *BridgeData, result *ValidationResult) {
	if strings.TrimSpace(data.DiscordToken) == "" {
		result.AddError("bridge_data.discord_bot_token", "Discord bot token is required (or set DISCORD_ECHO_TOKEN)")
	}

	if strings.TrimSpace(data.MapServerHost) == "" {
		result.AddError("bridge_data.map_server_host", "map server host is required")
	}
	validatePort(data.MapServerPort, "bridge_data.map_server_port", result)

	if data.ConnectTimeoutSec < 1 {
		result.AddError("bridge_data.connect_timeout_sec", "must be at least 1 second")
	}
	if data.WriteTimeoutSec < 1 {
		result.AddError("bridge_data.write_timeout_sec", "must be at least 1 second")
	}

	if len(data.Channels) == 0 {
		result.AddError("bridge_data.channels", "at least one channel mapping is required")
	}
	for name, id := range data.Channels {
		field := "bridge_data.channels." + name
		if len(name) > protocol.ChannelFieldSize {
			result.AddWarning(field,
				fmt.Sprintf("channel name is %d bytes and will be truncated to %d on the wire", len(name), protocol.ChannelFieldSize))
		}
		if id == 0 {
			result.AddError(field, "Discord channel ID must not be 0")
		}
	}
	for id, names := range channel.DuplicateIDs(data.Channels) {
		result.AddWarning("bridge_data.channels",
			fmt.Sprintf("Discord channel %d is mapped by %s; only one of them will receive messages", id, strings.Join(names, ", ")))
	}

	policy, err := relay.ParseUnmappedPolicy(data.UnmappedPolicy)
	if err != nil {
		result.AddError("bridge_data.unmapped_policy", err.Error())
	}
	if policy == relay.UnmappedPlaceholder && len(data.PlaceholderChannel) > protocol.ChannelFieldSize {
		result.AddWarning("bridge_data.placeholder_channel", "placeholder channel name will be truncated on the wire")
	}
}

func validateApplicationData(data *ApplicationData, result *ValidationResult) {
	if data.API.Enabled {
		validatePort(data.API.Port, "application_data.api.port", result)
		if ip := net.ParseIP(data.API.BindAddress); ip == nil || !ip.IsLoopback() {
			result.AddWarning("application_data.api.bind_address",
				"status API is reachable from other hosts; bind it to 127.0.0.1 unless that is intended")
		}
		if data.API.RateLimitRPS < 1 {
			result.AddWarning("application_data.api.rate_limit_rps", "rate limiting is disabled")
		}
	}

	if data.Sink.Enabled {
		validatePort(data.Sink.Port, "application_data.sink.port", result)
	}

	if data.MQTT.Enabled {
		if strings.TrimSpace(data.MQTT.BrokerURL) == "" {
			result.AddError("application_data.mqtt.broker_url", "MQTT broker URL is required when MQTT is enabled")
		}
		validatePort(data.MQTT.Port, "application_data.mqtt.port", result)
		if (data.MQTT.CertFile == "") != (data.MQTT.KeyFile == "") {
			result.AddError("application_data.mqtt.cert_file", "cert_file and key_file must be set together")
		}
	}

	if data.Database.Enabled {
		if strings.TrimSpace(data.Database.Path) == "" {
			result.AddError("application_data.database.path", "database path is required when the database is enabled")
		}
		if data.Database.RetentionDays < 1 {
			result.AddWarning("application_data.database.retention_days", "relay history will never be pruned")
		}
		if !validClock(data.Database.CleanupTime) {
			result.AddError("application_data.database.cleanup_time",
				fmt.Sprintf("invalid time %q (want HH:MM)", data.Database.CleanupTime))
		}
	}

	if data.Health.IntervalSec < 0 {
		result.AddError("application_data.health.interval_sec", "must not be negative")
	}
	if data.Health.DiskWarningPercent <= 0 || data.Health.DiskWarningPercent > 100 {
		result.AddWarning("application_data.health.disk_warning_percent", "disk usage alerts are disabled")
	}

	switch strings.ToLower(data.Logging.Level) {
	case "trace", "debug", "info", "warn", "error":
	default:
		result.AddWarning("application_data.logging.level",
			fmt.Sprintf("unknown log level %q, falling back to info", data.Logging.Level))
	}
}

func validatePort(port int, field string, result *ValidationResult) {
	if port < 1 || port > 65535 {
		result.AddError(field, fmt.Sprintf("invalid port %d (must be 1-65535)", port))
	}
}

func validClock(s string) bool {
	var hour, minute int
	if n, err := fmt.Sscanf(s, "%d:%d", &hour, &minute); err != nil || n != 2 {
		return false
	}
	return hour >= 0 && hour < 24 && minute >= 0 && minute < 60
}
