package telemetry

import "time"

// Vec3 is a three-axis inertial reading
type Vec3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Distances holds the time-of-flight sensor readings in the units the robot reports
type Distances struct {
	Front float64 `json:"front"`
	Rear  float64 `json:"rear"`
}

// Temperatures holds the two temperature probes of the thermal deployment
type Temperatures struct {
	T1 float64 `json:"t1"`
	T2 float64 `json:"t2"`
}

// Motion holds the last known accelerometer and gyroscope vectors
type Motion struct {
	Accel Vec3 `json:"accel"`
	Gyro  Vec3 `json:"gyro"`
}

// Flags holds the discrete robot states
type Flags struct {
	Drive       bool `json:"drive"`
	Brush       bool `json:"brush"`
	Disoriented bool `json:"disoriented"`
}

// Snapshot is the last known state of the robot as presented to renderers.
//
// Readings (distances, temperatures, motion, flags, signal strength) are
// never reset by a failed or partial poll: a field absent from an update
// keeps its previous value.
type Snapshot struct {
	Connected       bool         `json:"connected"`
	Active          bool         `json:"active"`
	CleaningPercent int          `json:"cleaningPercent"`
	Distances       Distances    `json:"distances"`
	Temperatures    Temperatures `json:"temperatures"`
	Motion          Motion       `json:"motion"`
	Flags           Flags        `json:"flags"`
	Counter         float64      `json:"counter"`
	SignalStrength  int          `json:"signalStrength"` // dBm
	Errors          []string     `json:"errors"`

	UpdatedAt time.Time `json:"updatedAt"`
	Seq       uint64    `json:"seq"`
}

const (
	// DisorientedWarning is the fault message raised by the DISORIENTED flag.
	DisorientedWarning = "Warning: Bot may be disoriented."

	// waitingMessage keeps the disconnected snapshot explained before the first poll completes.
	waitingMessage = "Waiting for first telemetry..."

	// initialSignalStrength is the weakest signal the dashboard displays.
	initialSignalStrength = -120
)

// NewSnapshot returns the start-of-process snapshot: disconnected, all readings zero.
func NewSnapshot() Snapshot {
	return Snapshot{
		SignalStrength: initialSignalStrength,
		Errors:         []string{waitingMessage},
	}
}

// Clone returns a deep copy of the snapshot
func (s Snapshot) Clone() Snapshot {
	c := s
	if s.Errors != nil {
		c.Errors = make([]string, len(s.Errors))
		copy(c.Errors, s.Errors)
	}
	return c
}

// Banner returns the single error a renderer should display, or "" if there is none.
func (s Snapshot) Banner() string {
	if len(s.Errors) == 0 {
		return ""
	}
	return s.Errors[0]
}

// Envelope is the JSON document returned by the telemetry endpoint.
// RSSI is any JSON number; the poller rounds it to whole dBm.
type Envelope struct {
	Data *string  `json:"data,omitempty"`
	RSSI *float64 `json:"rssi,omitempty"`
}

// HasData reports whether the envelope carries a non-empty telemetry string
func (e *Envelope) HasData() bool {
	return e != nil && e.Data != nil && *e.Data != ""
}

// FieldMapping binds a telemetry key to a snapshot field in a custom table
type FieldMapping struct {
	Key   string `yaml:"key" json:"key"`
	Field string `yaml:"field" json:"field"`
}

// HTTPConfig holds settings for the snapshot HTTP server
type HTTPConfig struct {
	Port int `yaml:"port" json:"port"`
}

// MQTTConfig holds MQTT connection settings
type MQTTConfig struct {
	Broker        string `yaml:"broker" json:"broker"`
	PublishPrefix string `yaml:"publishPrefix" json:"publishPrefix"`
	ClientID      string `yaml:"clientId" json:"clientId"`
	Username      string `yaml:"username,omitempty" json:"username,omitempty"`
	Password      string `yaml:"password,omitempty" json:"password,omitempty"`
	QoS           byte   `yaml:"qos" json:"qos"`
	Retain        *bool  `yaml:"retain,omitempty" json:"retain,omitempty"`
}

// RetainSnapshots reports whether snapshots are published retained (default true)
func (m MQTTConfig) RetainSnapshots() bool {
	return m.Retain == nil || *m.Retain
}

// Config represents the full configuration file.
//
// Variant selects a built-in field table (tof, tof-short, thermal); a
// non-empty Fields list replaces it. ProgressPolicy is one of saturate,
// wrap or authoritative.
type Config struct {
	EndpointURL            string         `yaml:"endpointUrl" json:"endpointUrl"`
	PollIntervalMs         int            `yaml:"pollIntervalMs" json:"pollIntervalMs"`
	ProgressIntervalMs     int            `yaml:"progressIntervalMs" json:"progressIntervalMs"`
	RequestTimeoutMs       int            `yaml:"requestTimeoutMs" json:"requestTimeoutMs"`
	Variant                string         `yaml:"variant" json:"variant"`
	Fields                 []FieldMapping `yaml:"fields,omitempty" json:"fields,omitempty"`
	Delimiters             string         `yaml:"delimiters" json:"delimiters"`
	ProgressPolicy         string         `yaml:"progressPolicy" json:"progressPolicy"`
	StrictOrdering         bool           `yaml:"strictOrdering" json:"strictOrdering"`
	InitialCleaningPercent int            `yaml:"initialCleaningPercent" json:"initialCleaningPercent"`
	MQTT                   MQTTConfig     `yaml:"mqtt" json:"mqtt"`
	HTTP                   HTTPConfig     `yaml:"http" json:"http"`
}

// PollInterval returns the poll period as a duration
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalMs) * time.Millisecond
}

// ProgressInterval returns the simulator period as a duration
func (c *Config) ProgressInterval() time.Duration {
	return time.Duration(c.ProgressIntervalMs) * time.Millisecond
}

// RequestTimeout returns the per-request HTTP timeout
func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutMs) * time.Millisecond
}
