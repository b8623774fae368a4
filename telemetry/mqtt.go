package telemetry

import (
	"fmt"
	"log"
	"os"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// MQTTClient manages the broker connection used to publish snapshots
type MQTTClient struct {
	client      mqtt.Client
	prefix      string
	isConnected bool
	mu          sync.RWMutex
	done        chan struct{}
	closeOnce   sync.Once
	onConnect   []func()
}

// resolveMQTT merges environment overrides over the config file settings.
// Environment variables win.
func resolveMQTT(cfg MQTTConfig) MQTTConfig {
	out := cfg
	if v := os.Getenv("MQTT_BROKER"); v != "" {
		out.Broker = v
	}
	if v := os.Getenv("MQTT_CLIENT_ID"); v != "" {
		out.ClientID = v
	}
	if v := os.Getenv("MQTT_USERNAME"); v != "" {
		out.Username = v
	}
	if v := os.Getenv("MQTT_PASSWORD"); v != "" {
		out.Password = v
	}
	if v := os.Getenv("MQTT_PUBLISH_PREFIX"); v != "" {
		out.PublishPrefix = v
	}
	if out.ClientID == "" {
		out.ClientID = defaultClientID
	}
	if out.PublishPrefix == "" {
		out.PublishPrefix = defaultPublishPrefix
	}
	return out
}

// InitMQTT creates an MQTT client for the given settings and starts connecting in the background.
// If no broker is configured (config or MQTT_BROKER), MQTT is disabled and this returns nil.
func InitMQTT(cfg MQTTConfig) (*MQTTClient, error) {
	settings := resolveMQTT(cfg)
	if settings.Broker == "" {
		log.Println("[MQTT] disabled: no broker configured")
		return nil, nil
	}
	if strings.ContainsAny(settings.PublishPrefix, "#+") {
		return nil, fmt.Errorf("MQTT publish prefix %q must not contain wildcards", settings.PublishPrefix)
	}

	c := &MQTTClient{
		prefix: settings.PublishPrefix,
		done:   make(chan struct{}),
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(settings.Broker)
	opts.SetClientID(settings.ClientID)
	if settings.Username != "" {
		opts.SetUsername(settings.Username)
		opts.SetPassword(settings.Password)
	}

	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(5 * time.Second)
	opts.SetMaxReconnectInterval(60 * time.Second)
	opts.SetKeepAlive(60 * time.Second)
	opts.SetPingTimeout(10 * time.Second)

	// The broker marks the bridge offline if this process disappears.
	opts.SetWill(c.ConnectionTopic(), ConnectionOffline, 1, true)

	opts.SetOnConnectHandler(c.handleConnect)
	opts.SetConnectionLostHandler(c.onConnectionLost)
	opts.SetReconnectingHandler(c.onReconnecting)

	c.client = mqtt.NewClient(opts)
	go c.connectWithRetry()

	return c, nil
}

// connectWithRetry attempts to connect to the broker with exponential backoff until Disconnect is called
func (c *MQTTClient) connectWithRetry() {
	retryDelay := 1 * time.Second
	maxRetryDelay := 60 * time.Second

	for {
		log.Println("[MQTT] connecting to broker...")

		token := c.client.Connect()
		if token.WaitTimeout(10 * time.Second) {
			if token.Error() == nil {
				log.Println("[MQTT] connected to broker")
				c.setConnected(true)
				return
			}
			log.Printf("[MQTT] connection failed: %v", token.Error())
		} else {
			log.Println("[MQTT] connection timeout")
		}

		log.Printf("[MQTT] retrying connection in %v...", retryDelay)
		select {
		case <-c.done:
			return
		case <-time.After(retryDelay):
		}
		retryDelay = min(retryDelay*2, maxRetryDelay)
	}
}

func (c *MQTTClient) handleConnect(client mqtt.Client) {
	log.Printf("[MQTT] connected, publishing under %s/", c.prefix)
	c.setConnected(true)

	c.mu.RLock()
	hooks := append([]func(){}, c.onConnect...)
	c.mu.RUnlock()
	for _, fn := range hooks {
		fn()
	}
}

// AddOnConnect registers fn to run after every successful (re)connect
func (c *MQTTClient) AddOnConnect(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onConnect = append(c.onConnect, fn)
}

// onConnectionLost is typically transient; auto-reconnect will retry
func (c *MQTTClient) onConnectionLost(client mqtt.Client, err error) {
	log.Printf("[MQTT] connection interrupted (%v), auto-reconnect will retry", err)
	c.setConnected(false)
}

func (c *MQTTClient) onReconnecting(client mqtt.Client, opts *mqtt.ClientOptions) {
	log.Println("[MQTT] reconnecting...")
}

// Prefix returns the topic prefix
func (c *MQTTClient) Prefix() string {
	return c.prefix
}

// SnapshotTopic is where the retained JSON snapshot is published
func (c *MQTTClient) SnapshotTopic() string {
	return c.prefix + "/snapshot"
}

// ConnectionTopic is where online/offline is published
func (c *MQTTClient) ConnectionTopic() string {
	return c.prefix + "/connection"
}

// IsConnected returns true if the MQTT client is connected
func (c *MQTTClient) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.isConnected
}

func (c *MQTTClient) setConnected(connected bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.isConnected = connected
}

// Disconnect stops any pending connection attempt and closes the connection
func (c *MQTTClient) Disconnect() {
	c.closeOnce.Do(func() { close(c.done) })
	if c.client != nil && c.client.IsConnected() {
		log.Println("[MQTT] disconnecting from broker...")
		c.client.Disconnect(250)
	}
	c.setConnected(false)
}

// GetClient returns the underlying MQTT client for publishing
func (c *MQTTClient) GetClient() mqtt.Client {
	return c.client
}

// newMQTTClientWithMock wraps a provided mqtt.Client, for tests
func newMQTTClientWithMock(client mqtt.Client, prefix string) *MQTTClient {
	return &MQTTClient{
		client: client,
		prefix: prefix,
		done:   make(chan struct{}),
	}
}
