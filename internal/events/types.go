// Package events defines the event types published by the relay pipeline.
package events

import "time"

// EventType represents the type of event emitted through the EventBus.
type EventType string

const (
	// Relay pipeline
	EventMessageReceived EventType = "message_received"
	EventMessageRelayed  EventType = "message_relayed"
	EventMessageDropped  EventType = "message_dropped"

	// Transport
	EventPacketSent EventType = "packet_sent"
	EventSendFailed EventType = "send_failed"

	// Local sink
	EventPacketReceived EventType = "packet_received"

	// System
	EventHealthAlert EventType = "health_alert"
	EventShutdown    EventType = "shutdown"
)

// DropReason explains why a chat message was not relayed.
type DropReason string

const (
	DropBot      DropReason = "bot"
	DropUnmapped DropReason = "unmapped"
)

// Event is a single event flowing through the EventBus.
type Event struct {
	Type    EventType   `json:"type"`
	Source  string      `json:"source"`
	Payload interface{} `json:"payload,omitempty"`
}

// MessageReceivedPayload is attached to EventMessageReceived.
type MessageReceivedPayload struct {
	Author    string `json:"author"`
	ChannelID uint64 `json:"channel_id"`
	IsBot     bool   `json:"is_bot"`
}

// MessageRelayedPayload is attached to EventMessageRelayed.
type MessageRelayedPayload struct {
	Channel     string `json:"channel"`
	Username    string `json:"username"`
	ChannelID   uint64 `json:"channel_id"`
	Placeholder bool   `json:"placeholder"`
	Length      int    `json:"length"`
}

// MessageDroppedPayload is attached to EventMessageDropped.
type MessageDroppedPayload struct {
	Author    string     `json:"author"`
	ChannelID uint64     `json:"channel_id"`
	Reason    DropReason `json:"reason"`
}

// PacketSentPayload is attached to EventPacketSent.
type PacketSentPayload struct {
	Addr     string        `json:"addr"`
	Bytes    int           `json:"bytes"`
	Duration time.Duration `json:"duration"`
}

// SendFailedPayload is attached to EventSendFailed.
type SendFailedPayload struct {
	Addr  string `json:"addr"`
	Stage string `json:"stage"`
	Error string `json:"error"`
}

// PacketReceivedPayload is attached to EventPacketReceived.
type PacketReceivedPayload struct {
	Remote   string `json:"remote"`
	Channel  string `json:"channel"`
	Username string `json:"username"`
	Message  string `json:"message"`
}

// HealthAlertPayload is attached to EventHealthAlert.
type HealthAlertPayload struct {
	Check   string `json:"check"`
	Level   string `json:"level"`
	Message string `json:"message"`
}
