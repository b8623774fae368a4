package telemetry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// Payloads of the connection topic
const (
	ConnectionOnline  = "online"
	ConnectionOffline = "offline"
)

// ErrNotConnected is returned while the broker connection is down
var ErrNotConnected = errors.New("MQTT client not connected")

// Publisher mirrors the snapshot store to MQTT
type Publisher struct {
	client          mqtt.Client
	snapshotTopic   string
	connectionTopic string
	qos             byte
	retain          bool

	mu            sync.Mutex
	lastConnected *bool
	published     uint64
}

// NewPublisher creates a publisher writing under prefix.
// If client is nil, publishing is disabled (for testing).
func NewPublisher(client mqtt.Client, prefix string) *Publisher {
	if prefix == "" {
		prefix = defaultPublishPrefix
	}
	return &Publisher{
		client:          client,
		snapshotTopic:   prefix + "/snapshot",
		connectionTopic: prefix + "/connection",
		qos:             0,    // snapshots are superseded every few seconds
		retain:          true, // new subscribers get the latest state
	}
}

// NewPublisherFor creates a publisher for an initialized MQTT client.
// Every (re)connect republishes the connection status, since the broker
// may have delivered the offline will in between.
func NewPublisherFor(c *MQTTClient) *Publisher {
	p := NewPublisher(c.GetClient(), c.Prefix())
	c.AddOnConnect(p.ResetConnection)
	return p
}

// ResetConnection forgets the last published connection status
func (p *Publisher) ResetConnection() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.lastConnected = nil
}

// PublishSnapshot publishes s as JSON to the snapshot topic, and to the
// connection topic when Connected differs from the last published value.
func (p *Publisher) PublishSnapshot(s Snapshot) error {
	if p.client == nil || !p.client.IsConnected() {
		return ErrNotConnected
	}

	payload, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshaling snapshot: %w", err)
	}
	if err := p.publish(p.snapshotTopic, payload); err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.published++

	if p.lastConnected != nil && *p.lastConnected == s.Connected {
		return nil
	}
	status := ConnectionOffline
	if s.Connected {
		status = ConnectionOnline
	}
	if err := p.publish(p.connectionTopic, []byte(status)); err != nil {
		return err
	}
	connected := s.Connected
	p.lastConnected = &connected
	log.Printf("[MQTT] robot %s", status)
	return nil
}

func (p *Publisher) publish(topic string, payload []byte) error {
	token := p.client.Publish(topic, p.qos, p.retain, payload)
	if token.WaitTimeout(2*time.Second) && token.Error() != nil {
		return fmt.Errorf("publishing to %s: %w", topic, token.Error())
	}
	return nil
}

// Published returns the number of snapshots published so far
func (p *Publisher) Published() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.published
}

// SetQoS sets the Quality of Service level for publishing (0, 1, or 2)
func (p *Publisher) SetQoS(qos byte) {
	if qos <= 2 {
		p.qos = qos
	}
}

// SetRetain sets whether published messages should be retained by the broker
func (p *Publisher) SetRetain(retain bool) {
	p.retain = retain
}

// Run publishes the current snapshot and then every change until ctx is done.
// Publish failures are logged and the next change is tried again.
func (p *Publisher) Run(ctx context.Context, store *Store) {
	updates, cancel := store.Subscribe()
	defer cancel()

	p.publishLogged(store.Read())
	for {
		select {
		case <-ctx.Done():
			return
		case snap, ok := <-updates:
			if !ok {
				return
			}
			p.publishLogged(snap)
		}
	}
}

func (p *Publisher) publishLogged(s Snapshot) {
	// Skipped while disconnected; the next change republishes.
	if err := p.PublishSnapshot(s); err != nil && !errors.Is(err, ErrNotConnected) {
		log.Printf("[MQTT] publish snapshot %d: %v", s.Seq, err)
	}
}
