// Package telemetry publishes relay activity to an MQTT broker.
package telemetry

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog/log"

	"github.com/energizer-project/discord-echo/internal/config"
	"github.com/energizer-project/discord-echo/internal/events"
	"github.com/energizer-project/discord-echo/internal/util"
)

// MQTT topics
const (
	TopicRelay   = "discord_echo/relay"
	TopicDropped = "discord_echo/dropped"
	TopicErrors  = "discord_echo/errors"
	TopicStatus  = "discord_echo/status"
)

// MQTTHandler forwards bus events to MQTT.
type MQTTHandler struct {
	cfg      config.MQTTConfig
	eventBus *events.EventBus
	client   mqtt.Client
	now      func() time.Time

	// Metadata included in every message
	metadata map[string]interface{}
}

// NewMQTTHandler builds an MQTT client from the configuration. It does not connect.
func NewMQTTHandler(cfg config.MQTTConfig, eventBus *events.EventBus) (*MQTTHandler, error) {
	if !cfg.Enabled {
		return nil, fmt.Errorf("MQTT is disabled")
	}

	sysInfo := util.GetSystemInfo()
	handler := &MQTTHandler{
		cfg:      cfg,
		eventBus: eventBus,
		now:      time.Now,
		metadata: map[string]interface{}{
			"hostname":    sysInfo.Hostname,
			"platform":    sysInfo.Platform,
			"app_version": util.Version,
		},
	}

	scheme := "tcp"
	if cfg.UseTLS {
		scheme = "ssl"
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("%s://%s:%d", scheme, cfg.BrokerURL, cfg.Port))

	if cfg.ClientID != "" {
		opts.SetClientID(cfg.ClientID)
	} else {
		opts.SetClientID(fmt.Sprintf("discord-echo-%s", sysInfo.Hostname))
	}
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}

	opts.SetAutoReconnect(true)
	opts.SetMaxReconnectInterval(30 * time.Second)
	opts.SetKeepAlive(60 * time.Second)
	opts.SetCleanSession(true)

	if cfg.UseTLS {
		tlsConfig := &tls.Config{MinVersion: tls.VersionTLS12}
		if cfg.CertFile != "" && cfg.KeyFile != "" {
			cert, err := tls.LoadX509KeyPair(cfg.CertFile, cfg.KeyFile)
			if err != nil {
				return nil, fmt.Errorf("failed to load MQTT TLS certificate: %w", err)
			}
			tlsConfig.Certificates = []tls.Certificate{cert}
		}
		opts.SetTLSConfig(tlsConfig)
	}

	opts.SetOnConnectHandler(func(client mqtt.Client) {
		log.Info().Msg("MQTT connected")
	})
	opts.SetConnectionLostHandler(func(client mqtt.Client, err error) {
		log.Warn().Err(err).Msg("MQTT connection lost")
	})

	handler.client = mqtt.NewClient(opts)
	return handler, nil
}

// Start connects, subscribes to the bus and blocks until ctx is done.
func (h *MQTTHandler) Start(ctx context.Context) error {
	log.Info().
		Str("broker", h.cfg.BrokerURL).
		Int("port", h.cfg.Port).
		Msg("connecting to MQTT broker")

	token := h.client.Connect()
	if token.Wait() && token.Error() != nil {
		return fmt.Errorf("MQTT connect failed: %w", token.Error())
	}

	h.subscribeEvents()
	h.publish(TopicStatus, map[string]interface{}{"event": "startup"})

	<-ctx.Done()

	h.PublishShutdown()
	h.client.Disconnect(5000)
	log.Info().Msg("MQTT disconnected")
	return nil
}

func (h *MQTTHandler) subscribeEvents() {
	h.eventBus.Subscribe(events.EventMessageRelayed, "mqtt.relayed", h.forward(TopicRelay))
	h.eventBus.Subscribe(events.EventMessageDropped, "mqtt.dropped", h.forward(TopicDropped))
	h.eventBus.Subscribe(events.EventSendFailed, "mqtt.sendFailed", h.forward(TopicErrors))
	h.eventBus.Subscribe(events.EventHealthAlert, "mqtt.health", h.forward(TopicStatus))
}

func (h *MQTTHandler) forward(topic string) events.HandlerFunc {
	return func(ctx context.Context, event events.Event) error {
		h.publish(topic, event.Payload)
		return nil
	}
}

// publish sends a JSON message at QoS 1 without waiting for the broker.
func (h *MQTTHandler) publish(topic string, payload interface{}) {
	if !h.client.IsConnected() {
		return
	}

	data, err := json.Marshal(h.buildMessage(payload))
	if err != nil {
		log.Warn().Err(err).Str("topic", topic).Msg("failed to marshal MQTT message")
		return
	}

	token := h.client.Publish(topic, 1, false, data)
	go func() {
		token.Wait()
		if token.Error() != nil {
			log.Warn().Err(token.Error()).Str("topic", topic).Msg("MQTT publish failed")
		}
	}()
}

// buildMessage combines metadata with the event payload.
func (h *MQTTHandler) buildMessage(payload interface{}) map[string]interface{} {
	msg := make(map[string]interface{}, len(h.metadata)+2)
	for k, v := range h.metadata {
		msg[k] = v
	}
	msg["payload"] = payload
	msg["timestamp"] = h.now().UTC().Format(time.RFC3339)
	return msg
}

// PublishShutdown announces that the bridge is going away.
func (h *MQTTHandler) PublishShutdown() {
	h.publish(TopicStatus, map[string]interface{}{"event": "shutdown"})
}
