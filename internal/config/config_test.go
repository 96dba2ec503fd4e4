package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func validConfig() *Config {
	cfg := DefaultConfig()
	cfg.BridgeData.DiscordToken = "token"
	return cfg
}

func hasField(errs []ValidationError, field string) bool {
	for _, e := range errs {
		if e.Field == field {
			return true
		}
	}
	return false
}

func TestLoad_CreatesDefault(t *testing.T) {
	dir := t.TempDir()

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, DefaultConfigFile)); err != nil {
		t.Fatalf("default config not written: %v", err)
	}
	if cfg.MapServerAddr() != "127.0.0.1:5121" {
		t.Fatalf("MapServerAddr = %q", cfg.MapServerAddr())
	}
	if len(cfg.GetBridgeData().Channels) != 3 {
		t.Fatalf("default channels = %v", cfg.GetBridgeData().Channels)
	}
	if !cfg.IsFirstRun() {
		t.Fatal("expected first run without a token")
	}
}

func TestLoad_OverlaysFileAndReplacesChannels(t *testing.T) {
	dir := t.TempDir()
	body := `{
  "bridge_data": {
    "map_server_host": "10.0.0.5",
    "discord_bot_token": "abc",
    "channels": {"global": 42}
  }
}`
	if err := os.WriteFile(filepath.Join(dir, DefaultConfigFile), []byte(body), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	bridge := cfg.GetBridgeData()
	if bridge.MapServerHost != "10.0.0.5" || bridge.MapServerPort != DefaultMapPort {
		t.Fatalf("bridge = %+v", bridge)
	}
	if len(bridge.Channels) != 1 || bridge.Channels["global"] != 42 {
		t.Fatalf("channels = %v", bridge.Channels)
	}
	if cfg.ConnectTimeout() != 5*time.Second {
		t.Fatalf("ConnectTimeout = %v", cfg.ConnectTimeout())
	}
	if cfg.IsFirstRun() {
		t.Fatal("token was configured")
	}
}

func TestLoad_InvalidJSON(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, DefaultConfigFile), []byte("{"), 0600); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(dir); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestGetBridgeData_CopiesChannels(t *testing.T) {
	cfg := validConfig()
	bridge := cfg.GetBridgeData()
	bridge.Channels["main"] = 1

	if cfg.GetBridgeData().Channels["main"] == 1 {
		t.Fatal("GetBridgeData leaked the channel table")
	}
}

func TestApplyEnv(t *testing.T) {
	t.Setenv("DISCORD_ECHO_TOKEN", "from-env")
	t.Setenv("DISCORD_ECHO_MAP_PORT", "6121")

	o, err := ParseEnvOverrides()
	if err != nil {
		t.Fatalf("ParseEnvOverrides: %v", err)
	}

	cfg := DefaultConfig()
	cfg.ApplyEnv(o)

	if cfg.GetBridgeData().DiscordToken != "from-env" {
		t.Fatal("token not applied")
	}
	if cfg.MapServerAddr() != "127.0.0.1:6121" {
		t.Fatalf("MapServerAddr = %q", cfg.MapServerAddr())
	}
}

func TestParseEnvOverrides_BadPort(t *testing.T) {
	t.Setenv("DISCORD_ECHO_MAP_PORT", "not-a-port")
	if _, err := ParseEnvOverrides(); err == nil {
		t.Fatal("expected error")
	}
}

func TestValidate_Defaults(t *testing.T) {
	result := Validate(validConfig())
	if !result.IsValid() {
		t.Fatalf("errors = %v", result.Errors)
	}
}

func TestValidate_Errors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"missing token", func(c *Config) { c.BridgeData.DiscordToken = "" }, "bridge_data.discord_bot_token"},
		{"bad port", func(c *Config) { c.BridgeData.MapServerPort = 70000 }, "bridge_data.map_server_port"},
		{"no channels", func(c *Config) { c.BridgeData.Channels = map[string]uint64{} }, "bridge_data.channels"},
		{"zero id", func(c *Config) { c.BridgeData.Channels["main"] = 0 }, "bridge_data.channels.main"},
		{"bad policy", func(c *Config) { c.BridgeData.UnmappedPolicy = "forward" }, "bridge_data.unmapped_policy"},
		{"bad cleanup time", func(c *Config) { c.ApplicationData.Database.CleanupTime = "25:00" }, "application_data.database.cleanup_time"},
		{"mqtt without broker", func(c *Config) { c.ApplicationData.MQTT.Enabled = true }, "application_data.mqtt.broker_url"},
		{"sink on api port", func(c *Config) {
			c.ApplicationData.Sink.Enabled = true
			c.ApplicationData.Sink.Port = c.ApplicationData.API.Port
		}, "application_data.sink.port"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			result := Validate(cfg)
			if !hasField(result.Errors, tt.field) {
				t.Fatalf("expected error on %s, got %v", tt.field, result.Errors)
			}
		})
	}
}

func TestValidate_Warnings(t *testing.T) {
	cfg := validConfig()
	cfg.BridgeData.Channels["lobby"] = cfg.BridgeData.Channels["main"]
	cfg.BridgeData.Channels[strings.Repeat("n", 30)] = 77
	cfg.ApplicationData.API.BindAddress = "0.0.0.0"

	result := Validate(cfg)
	if !result.IsValid() {
		t.Fatalf("unexpected errors: %v", result.Errors)
	}
	if !hasField(result.Warnings, "bridge_data.channels") {
		t.Errorf("missing duplicate id warning: %v", result.Warnings)
	}
	if !hasField(result.Warnings, "bridge_data.channels."+strings.Repeat("n", 30)) {
		t.Errorf("missing long name warning: %v", result.Warnings)
	}
	if !hasField(result.Warnings, "application_data.api.bind_address") {
		t.Errorf("missing bind address warning: %v", result.Warnings)
	}
}
