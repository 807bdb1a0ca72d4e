// Package emitter publishes detection events to an MQTT broker.
package emitter

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/visiona/crowdsense/internal/config"
	"github.com/visiona/crowdsense/internal/event"
)

const publishTimeout = 2 * time.Second

// MQTTEmitter publishes detection events to an MQTT broker. Publishing
// never blocks the detector loop beyond the token wait timeout; events
// that cannot be delivered are counted and dropped.
type MQTTEmitter struct {
	cfg    *config.Config
	client mqtt.Client

	mu        sync.RWMutex
	published map[string]uint64 // count per topic
	dropped   uint64
	connected bool
}

// Stats is a snapshot of emitter counters.
type Stats struct {
	Published map[string]uint64
	Dropped   uint64
	Connected bool
}

// NewMQTTEmitter creates a new MQTT emitter
func NewMQTTEmitter(cfg *config.Config) *MQTTEmitter {
	return &MQTTEmitter{
		cfg:       cfg,
		published: make(map[string]uint64),
	}
}

// Connect establishes connection to the MQTT broker
func (e *MQTTEmitter) Connect(ctx context.Context) error {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s", e.cfg.MQTT.Broker))
	opts.SetClientID(e.cfg.InstanceID)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(2 * time.Second)
	opts.SetMaxReconnectInterval(30 * time.Second)

	opts.OnConnect = func(c mqtt.Client) {
		e.mu.Lock()
		e.connected = true
		e.mu.Unlock()
		slog.Info("mqtt connection established",
			"broker", e.cfg.MQTT.Broker,
			"client_id", e.cfg.InstanceID,
		)
	}

	opts.OnConnectionLost = func(c mqtt.Client, err error) {
		e.mu.Lock()
		e.connected = false
		e.mu.Unlock()
		slog.Warn("mqtt connection lost, will auto-reconnect",
			"error", err,
			"broker", e.cfg.MQTT.Broker,
		)
	}

	e.client = mqtt.NewClient(opts)

	slog.Info("connecting to mqtt broker", "broker", e.cfg.MQTT.Broker)

	token := e.client.Connect()
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("mqtt connection timeout")
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt connection failed: %w", err)
	}

	e.mu.Lock()
	e.connected = true
	e.mu.Unlock()
	return nil
}

// PublishDetection publishes one detection event.
func (e *MQTTEmitter) PublishDetection(ev *event.DetectionEvent) {
	e.publish(e.cfg.MQTT.Topics.Detections, ev)
}

// PublishAutoSensitivity publishes a calibration outcome.
func (e *MQTTEmitter) PublishAutoSensitivity(ev *event.AutoSensitivityEvent) {
	e.publish(e.cfg.MQTT.Topics.AutoSensitivity, ev)
}

func (e *MQTTEmitter) publish(topic string, v any) {
	e.mu.RLock()
	connected := e.connected
	e.mu.RUnlock()
	if e.client == nil || !connected {
		e.drop(topic, nil)
		return
	}

	payload, err := msgpack.Marshal(v)
	if err != nil {
		e.drop(topic, err)
		return
	}

	token := e.client.Publish(topic, e.cfg.MQTT.QoS, false, payload)
	if !token.WaitTimeout(publishTimeout) {
		e.drop(topic, fmt.Errorf("publish timeout"))
		return
	}
	if err := token.Error(); err != nil {
		e.drop(topic, err)
		return
	}

	e.mu.Lock()
	e.published[topic]++
	e.mu.Unlock()
}

func (e *MQTTEmitter) drop(topic string, err error) {
	e.mu.Lock()
	e.dropped++
	e.mu.Unlock()
	if err != nil {
		slog.Warn("dropping event", "topic", topic, "error", err)
	}
}

// Stats returns a snapshot of the emitter counters.
func (e *MQTTEmitter) Stats() Stats {
	e.mu.RLock()
	defer e.mu.RUnlock()
	published := make(map[string]uint64, len(e.published))
	for k, v := range e.published {
		published[k] = v
	}
	return Stats{Published: published, Dropped: e.dropped, Connected: e.connected}
}

// Disconnect closes the broker connection.
func (e *MQTTEmitter) Disconnect() {
	if e.client != nil && e.client.IsConnected() {
		e.client.Disconnect(250)
	}
	e.mu.Lock()
	e.connected = false
	e.mu.Unlock()
}
