package telemetry

import (
	"fmt"
	"net/url"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// DefaultEndpointURL is the status endpoint of the robot bridge
	DefaultEndpointURL = "http://localhost:8000/getData"

	// DefaultHTTPPort is the port the snapshot server listens on
	DefaultHTTPPort = 8080

	defaultPublishPrefix = "solarbot"
	defaultClientID      = "solarbot"
)

// DefaultConfig returns the configuration used when no file is given.
//
// The default variant is tof. A bridge on DefaultEndpointURL that relays the
// thermal board (T1 T2 AX.. C, space separated) needs variant: thermal; with
// the wrong variant no key maps, Active stays false and progress never
// advances. The poller logs that mismatch once.
func DefaultConfig() *Config {
	return &Config{
		EndpointURL:        DefaultEndpointURL,
		PollIntervalMs:     int(DefaultPollInterval / time.Millisecond),
		ProgressIntervalMs: int(DefaultProgressInterval / time.Millisecond),
		RequestTimeoutMs:   int(DefaultFetchTimeout / time.Millisecond),
		Variant:            VariantTOF,
		Delimiters:         DefaultDelimiters,
		ProgressPolicy:     string(PolicySaturate),
		MQTT: MQTTConfig{
			PublishPrefix: defaultPublishPrefix,
			ClientID:      defaultClientID,
		},
		HTTP: HTTPConfig{Port: DefaultHTTPPort},
	}
}

// LoadConfig loads the configuration from a YAML file. Keys missing from the
// file keep their DefaultConfig values.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config file not found: %s", path)
		}
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	config := DefaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("parsing config YAML: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// Validate checks every field the engine depends on
func (c *Config) Validate() error {
	if c.EndpointURL == "" {
		return fmt.Errorf("endpointUrl is required")
	}
	u, err := url.Parse(c.EndpointURL)
	if err != nil {
		return fmt.Errorf("endpointUrl: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("endpointUrl must be http or https, got %q", c.EndpointURL)
	}
	if u.Host == "" {
		return fmt.Errorf("endpointUrl has no host: %q", c.EndpointURL)
	}

	if c.PollIntervalMs <= 0 {
		return fmt.Errorf("pollIntervalMs must be > 0")
	}
	if c.ProgressIntervalMs <= 0 {
		return fmt.Errorf("progressIntervalMs must be > 0")
	}
	if c.RequestTimeoutMs < 0 {
		return fmt.Errorf("requestTimeoutMs must be >= 0")
	}
	if c.InitialCleaningPercent < 0 || c.InitialCleaningPercent > 100 {
		return fmt.Errorf("initialCleaningPercent must be within [0,100]")
	}

	if _, err := ParseProgressPolicy(c.ProgressPolicy); err != nil {
		return fmt.Errorf("progressPolicy: %w", err)
	}
	if _, err := c.FieldTable(); err != nil {
		return err
	}

	if c.MQTT.QoS > 2 {
		return fmt.Errorf("mqtt.qos must be 0, 1 or 2, got %d", c.MQTT.QoS)
	}
	if c.HTTP.Port < 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port %d out of range", c.HTTP.Port)
	}
	return nil
}

// FieldTable returns the custom table when fields are configured, otherwise the variant's table
func (c *Config) FieldTable() (FieldTable, error) {
	if len(c.Fields) > 0 {
		return TableFromMappings(c.Fields)
	}
	variant := c.Variant
	if variant == "" {
		variant = VariantTOF
	}
	t, err := VariantTable(variant)
	if err != nil {
		return nil, fmt.Errorf("variant: %w", err)
	}
	return t, nil
}
