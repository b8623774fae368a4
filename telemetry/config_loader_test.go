package telemetry

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// ---------------------------------------------------------------------------
// helpers
// ---------------------------------------------------------------------------

func validConfigYAML() string {
	return `endpointUrl: http://192.168.4.1/getData
pollIntervalMs: 1000
progressIntervalMs: 500
variant: tof-short
progressPolicy: authoritative
strictOrdering: true
initialCleaningPercent: 25
mqtt:
  broker: tcp://localhost:1883
  publishPrefix: roof
http:
  port: 9090
`
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatalf("write config fixture: %v", err)
	}
	return path
}

// ---------------------------------------------------------------------------
// LoadConfig
// ---------------------------------------------------------------------------

func TestLoadConfig_NotExists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nope.yaml")
	_, err := LoadConfig(path)
	if err == nil {
		t.Fatal("expected error for missing config file, got nil")
	}
	if !strings.Contains(err.Error(), "config file not found") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestLoadConfig_ValidYAML(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, validConfigYAML()))
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.EndpointURL != "http://192.168.4.1/getData" {
		t.Errorf("EndpointURL = %q", cfg.EndpointURL)
	}
	if cfg.PollInterval() != time.Second {
		t.Errorf("PollInterval = %v, want 1s", cfg.PollInterval())
	}
	if cfg.ProgressInterval() != 500*time.Millisecond {
		t.Errorf("ProgressInterval = %v, want 500ms", cfg.ProgressInterval())
	}
	if cfg.Variant != VariantTOFShort {
		t.Errorf("Variant = %q", cfg.Variant)
	}
	if !cfg.StrictOrdering {
		t.Error("StrictOrdering should be true")
	}
	if cfg.InitialCleaningPercent != 25 {
		t.Errorf("InitialCleaningPercent = %d, want 25", cfg.InitialCleaningPercent)
	}
	if cfg.MQTT.PublishPrefix != "roof" {
		t.Errorf("PublishPrefix = %q, want roof", cfg.MQTT.PublishPrefix)
	}
	if cfg.HTTP.Port != 9090 {
		t.Errorf("HTTP.Port = %d, want 9090", cfg.HTTP.Port)
	}
}

func TestLoadConfig_DefaultsFillGaps(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, "endpointUrl: https://bot.local/getData\n"))
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.PollInterval() != DefaultPollInterval {
		t.Errorf("PollInterval = %v, want default", cfg.PollInterval())
	}
	if cfg.RequestTimeout() != DefaultFetchTimeout {
		t.Errorf("RequestTimeout = %v, want default", cfg.RequestTimeout())
	}
	if cfg.Variant != VariantTOF || cfg.ProgressPolicy != string(PolicySaturate) {
		t.Errorf("Variant/Policy = %q/%q", cfg.Variant, cfg.ProgressPolicy)
	}
	if cfg.MQTT.ClientID != "solarbot" {
		t.Errorf("ClientID = %q, want solarbot", cfg.MQTT.ClientID)
	}
}

func TestLoadConfig_CustomFields(t *testing.T) {
	body := `fields:
  - key: FRONT
    field: distances.front
  - key: HOT
    field: temperatures.t1
`
	cfg, err := LoadConfig(writeConfig(t, body))
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	table, err := cfg.FieldTable()
	if err != nil {
		t.Fatalf("FieldTable: %v", err)
	}
	if len(table) != 2 || table[1].Field != FieldTemperature1 {
		t.Errorf("unexpected table %+v", table)
	}
}

func TestLoadConfig_InvalidYAML(t *testing.T) {
	_, err := LoadConfig(writeConfig(t, "endpointUrl: [unclosed"))
	if err == nil || !strings.Contains(err.Error(), "parsing config YAML") {
		t.Fatalf("expected parse error, got %v", err)
	}
}

// ---------------------------------------------------------------------------
// Validate
// ---------------------------------------------------------------------------

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"defaults", func(c *Config) {}, ""},
		{"empty endpoint", func(c *Config) { c.EndpointURL = "" }, "endpointUrl is required"},
		{"bad scheme", func(c *Config) { c.EndpointURL = "ftp://bot/getData" }, "must be http or https"},
		{"no host", func(c *Config) { c.EndpointURL = "http:///getData" }, "no host"},
		{"zero poll interval", func(c *Config) { c.PollIntervalMs = 0 }, "pollIntervalMs"},
		{"negative progress interval", func(c *Config) { c.ProgressIntervalMs = -1 }, "progressIntervalMs"},
		{"negative timeout", func(c *Config) { c.RequestTimeoutMs = -1 }, "requestTimeoutMs"},
		{"percent over 100", func(c *Config) { c.InitialCleaningPercent = 101 }, "initialCleaningPercent"},
		{"unknown policy", func(c *Config) { c.ProgressPolicy = "linear" }, "progressPolicy"},
		{"unknown variant", func(c *Config) { c.Variant = "lidar" }, "variant"},
		{"bad field", func(c *Config) { c.Fields = []FieldMapping{{Key: "X", Field: "nope"}} }, "not a known field"},
		{"port out of range", func(c *Config) { c.HTTP.Port = 70000 }, "http.port"},
		{"qos out of range", func(c *Config) { c.MQTT.QoS = 3 }, "mqtt.qos"},
		{"qos 2", func(c *Config) { c.MQTT.QoS = 2 }, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := DefaultConfig()
			tt.mutate(c)
			err := c.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate() = %v, want nil", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("Validate() = %v, want error containing %q", err, tt.wantErr)
			}
		})
	}
}

// ---------------------------------------------------------------------------
// MQTT publish settings
// ---------------------------------------------------------------------------

func TestLoadConfig_MQTTPublishSettings(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, "mqtt:\n  broker: tcp://broker:1883\n  qos: 1\n  retain: false\n"))
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.MQTT.QoS != 1 {
		t.Errorf("QoS = %d, want 1", cfg.MQTT.QoS)
	}
	if cfg.MQTT.RetainSnapshots() {
		t.Error("retain: false should disable retained snapshots")
	}
	if cfg.MQTT.PublishPrefix != "solarbot" {
		t.Errorf("PublishPrefix = %q, want default solarbot", cfg.MQTT.PublishPrefix)
	}

	if !DefaultConfig().MQTT.RetainSnapshots() {
		t.Error("snapshots are retained by default")
	}
}
