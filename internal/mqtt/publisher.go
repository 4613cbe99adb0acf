package mqtt

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/eclipse/paho.golang/autopaho"
	"github.com/eclipse/paho.golang/paho"

	"github.com/nugget/netroster/internal/config"
	"github.com/nugget/netroster/internal/roster"
)

// Publisher manages the MQTT connection and republishes resolved
// roster rows. Discovery configs are published once per client and
// retained locally so they can be replayed after a reconnect.
type Publisher struct {
	cfg        config.MQTTConfig
	instanceID string
	logger     *slog.Logger
	cm         *autopaho.ConnectionManager

	// Retained discovery payloads keyed by topic, replayed on
	// (re-)connect.
	discoveredMu sync.Mutex
	discovered   map[string][]byte
}

// New creates a Publisher but does not connect. Call [Publisher.Start]
// to begin connection management.
func New(cfg config.MQTTConfig, instanceID string, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{
		cfg:        cfg,
		instanceID: instanceID,
		logger:     logger,
		discovered: make(map[string][]byte),
	}
}

// Start connects to the MQTT broker. It returns once the connection
// manager is running; autopaho reconnects in the background for the
// life of ctx. On every (re-)connect the retained discovery configs
// and a birth message are republished.
func (p *Publisher) Start(ctx context.Context) error {
	brokerURL, err := url.Parse(p.cfg.Broker)
	if err != nil {
		return fmt.Errorf("parse mqtt broker URL: %w", err)
	}

	availTopic := p.availabilityTopic()

	pahoCfg := autopaho.ClientConfig{
		ServerUrls:      []*url.URL{brokerURL},
		KeepAlive:       30,
		ConnectUsername: p.cfg.Username,
		ConnectPassword: []byte(p.cfg.Password),
		WillMessage: &paho.WillMessage{
			Topic:   availTopic,
			Payload: []byte("offline"),
			QoS:     1,
			Retain:  true,
		},
		OnConnectionUp: func(cm *autopaho.ConnectionManager, _ *paho.Connack) {
			p.logger.Info("mqtt connected to broker", "broker", p.cfg.Broker)
			p.replayDiscovery(ctx, cm)
			p.publishAvailability(ctx, cm, "online")
		},
		OnConnectError: func(err error) {
			p.logger.Warn("mqtt connection error", "error", err)
		},
		ClientConfig: paho.ClientConfig{
			ClientID: "netroster-" + p.cfg.DeviceName,
		},
	}

	// Enable TLS for mqtts:// or ssl:// schemes.
	if brokerURL.Scheme == "mqtts" || brokerURL.Scheme == "ssl" {
		pahoCfg.TlsCfg = &tls.Config{
			MinVersion: tls.VersionTLS12,
		}
	}

	cm, err := autopaho.NewConnection(ctx, pahoCfg)
	if err != nil {
		return fmt.Errorf("mqtt connect: %w", err)
	}
	p.cm = cm

	// Wait for the initial connection. autopaho keeps retrying in the
	// background on timeout, so this is best effort.
	connCtx, connCancel := context.WithTimeout(ctx, 30*time.Second)
	defer connCancel()
	if err := cm.AwaitConnection(connCtx); err != nil {
		p.logger.Warn("mqtt initial connection timed out, will retry in background", "error", err)
	}

	return nil
}

// Stop gracefully disconnects by publishing an "offline" availability
// message before closing the MQTT connection.
func (p *Publisher) Stop(ctx context.Context) error {
	if p.cm == nil {
		return nil
	}
	p.publishAvailability(ctx, p.cm, "offline")
	return p.cm.Disconnect(ctx)
}

// AwaitConnection blocks until the MQTT broker connection is
// established or ctx expires.
func (p *Publisher) AwaitConnection(ctx context.Context) error {
	if p.cm == nil {
		return fmt.Errorf("mqtt publisher not started")
	}
	return p.cm.AwaitConnection(ctx)
}

// PublishRows publishes discovery configs for newly seen clients, then
// the state and attribute payloads of every row.
func (p *Publisher) PublishRows(ctx context.Context, rows []roster.CanonicalRow) error {
	if p.cm == nil {
		return fmt.Errorf("mqtt publisher not started")
	}

	for _, row := range rows {
		key := clientKey(row)
		p.ensureDiscovery(ctx, row, key)
		p.publishState(ctx, row, key)
	}

	p.logger.Debug("mqtt roster published", "rows", len(rows))
	return nil
}

// --- Topic helpers ---

func (p *Publisher) baseTopic() string {
	return p.cfg.TopicPrefix + "/" + p.cfg.DeviceName
}

func (p *Publisher) availabilityTopic() string {
	return p.baseTopic() + "/availability"
}

func (p *Publisher) stateTopic(key, entity string) string {
	return p.baseTopic() + "/clients/" + key + "/" + entity
}

func (p *Publisher) discoveryTopic(component, key, entity string) string {
	return p.cfg.DiscoveryPrefix + "/" + component + "/netroster_" + key + "/" + entity + "/config"
}

// clientKey returns the topic-safe stable key for a row: the
// normalized MAC when known, else the entity ID with separators
// flattened.
func clientKey(row roster.CanonicalRow) string {
	if row.MACNormalized != "" {
		return row.MACNormalized
	}
	return strings.NewReplacer(".", "_", "-", "_", " ", "_").Replace(strings.ToLower(row.EntityID))
}

// --- Discovery ---

// ensureDiscovery publishes the discovery configs for a client the
// first time it is seen and retains the payloads for reconnect replay.
func (p *Publisher) ensureDiscovery(ctx context.Context, row roster.CanonicalRow, key string) {
	avail := p.availabilityTopic()
	name := row.NameDisplay
	if name == roster.Unknown {
		name = row.EntityID
	}
	model := row.DeviceModel
	if model == roster.Unknown {
		model = ""
	}
	device := clientDeviceInfo(p.instanceID, key, name, model)

	configs := map[string]any{
		p.discoveryTopic("device_tracker", key, "presence"): TrackerConfig{
			Name:                name,
			UniqueID:            "netroster_" + key + "_presence",
			StateTopic:          p.stateTopic(key, "presence"),
			AvailabilityTopic:   avail,
			JsonAttributesTopic: p.stateTopic(key, "attributes"),
			PayloadHome:         "home",
			PayloadNotHome:      "not_home",
			SourceType:          "router",
			Device:              device,
		},
		p.discoveryTopic("sensor", key, "signal"): SensorConfig{
			Name:              name + " Signal",
			UniqueID:          "netroster_" + key + "_signal",
			StateTopic:        p.stateTopic(key, "signal"),
			AvailabilityTopic: avail,
			Device:            device,
			DeviceClass:       "signal_strength",
			UnitOfMeasurement: "dBm",
			StateClass:        "measurement",
			EntityCategory:    "diagnostic",
		},
		p.discoveryTopic("sensor", key, "down_speed"): SensorConfig{
			Name:              name + " Down Speed",
			UniqueID:          "netroster_" + key + "_down_speed",
			StateTopic:        p.stateTopic(key, "down_speed"),
			AvailabilityTopic: avail,
			Device:            device,
			DeviceClass:       "data_rate",
			UnitOfMeasurement: "Mbit/s",
			StateClass:        "measurement",
		},
	}

	for topic, cfg := range configs {
		payload, err := json.Marshal(cfg)
		if err != nil {
			p.logger.Error("mqtt marshal discovery payload", "topic", topic, "error", err)
			continue
		}

		p.discoveredMu.Lock()
		seen := string(p.discovered[topic]) == string(payload)
		p.discovered[topic] = payload
		p.discoveredMu.Unlock()
		if seen {
			continue
		}

		p.publishRetained(ctx, p.cm, topic, payload)
	}
}

// replayDiscovery republishes every retained discovery payload after a
// (re-)connect.
func (p *Publisher) replayDiscovery(ctx context.Context, cm *autopaho.ConnectionManager) {
	p.discoveredMu.Lock()
	topics := make(map[string][]byte, len(p.discovered))
	for t, payload := range p.discovered {
		topics[t] = payload
	}
	p.discoveredMu.Unlock()

	for topic, payload := range topics {
		p.publishRetained(ctx, cm, topic, payload)
	}
	if len(topics) > 0 {
		p.logger.Debug("mqtt discovery replayed", "configs", len(topics))
	}
}

func (p *Publisher) publishRetained(ctx context.Context, cm *autopaho.ConnectionManager, topic string, payload []byte) {
	if _, err := cm.Publish(ctx, &paho.Publish{
		Topic:   topic,
		Payload: payload,
		QoS:     1,
		Retain:  true,
	}); err != nil {
		p.logger.Warn("mqtt retained publish failed", "topic", topic, "error", err)
	}
}

func (p *Publisher) publishAvailability(ctx context.Context, cm *autopaho.ConnectionManager, status string) {
	if _, err := cm.Publish(ctx, &paho.Publish{
		Topic:   p.availabilityTopic(),
		Payload: []byte(status),
		QoS:     1,
		Retain:  true,
	}); err != nil {
		p.logger.Warn("mqtt availability publish failed", "status", status, "error", err)
	} else {
		p.logger.Info("mqtt availability published", "status", status)
	}
}

// --- Row state ---

func (p *Publisher) publishState(ctx context.Context, row roster.CanonicalRow, key string) {
	presence := "not_home"
	if row.Online {
		presence = "home"
	}

	states := map[string]string{
		"presence": presence,
	}
	if row.SignalDbm != nil {
		states["signal"] = fmt.Sprintf("%.0f", *row.SignalDbm)
	}
	if row.DownSpeedMbps != nil {
		states["down_speed"] = fmt.Sprintf("%.2f", *row.DownSpeedMbps)
	}

	attrs := map[string]any{
		"entity_id":       row.EntityID,
		"name":            row.NameDisplay,
		"mac":             row.MAC,
		"ip":              row.IP,
		"hostname":        row.Hostname,
		"connection":      row.Connection,
		"connection_type": string(row.ConnectionType),
		"band":            row.Band,
		"online_time":     row.OnlineTime,
		"traffic_usage":   row.TrafficUsage,
	}
	if payload, err := json.Marshal(attrs); err == nil {
		states["attributes"] = string(payload)
	}

	for entity, value := range states {
		if _, err := p.cm.Publish(ctx, &paho.Publish{
			Topic:   p.stateTopic(key, entity),
			Payload: []byte(value),
			QoS:     0,
			Retain:  true,
		}); err != nil {
			p.logger.Debug("mqtt state publish failed",
				"client", key, "entity", entity, "error", err)
		}
	}
}
