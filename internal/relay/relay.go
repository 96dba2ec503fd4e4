// Package relay turns Discord chat events into map-server packets.
package relay

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/energizer-project/discord-echo/internal/channel"
	"github.com/energizer-project/discord-echo/internal/events"
	"github.com/energizer-project/discord-echo/internal/protocol"
)

// NoDiscriminator is the discriminator Discord reports for accounts that
// no longer have one.
const NoDiscriminator = "0"

// Event is one inbound chat message as delivered by the chat platform.
type Event struct {
	AuthorName          string
	AuthorDiscriminator string
	IsBot               bool
	SourceChannelID     uint64
	Text                string
}

// Sender delivers an encoded packet. It reports nothing back to the relay.
type Sender interface {
	Send(buf []byte)
}

// UnmappedPolicy decides what happens to messages from unmapped channels.
type UnmappedPolicy string

const (
	// UnmappedDrop discards the message.
	UnmappedDrop UnmappedPolicy = "drop"
	// UnmappedPlaceholder forwards it with the placeholder channel name.
	UnmappedPlaceholder UnmappedPolicy = "placeholder"
)

// ParseUnmappedPolicy validates a policy name from configuration.
func ParseUnmappedPolicy(s string) (UnmappedPolicy, error) {
	switch p := UnmappedPolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case UnmappedDrop, UnmappedPlaceholder:
		return p, nil
	case "":
		return UnmappedDrop, nil
	default:
		return "", fmt.Errorf("unknown unmapped channel policy %q (want %q or %q)", s, UnmappedDrop, UnmappedPlaceholder)
	}
}

// ErrUnknownChannel is returned by Inject for channel names with no mapping.
var ErrUnknownChannel = errors.New("unknown game channel")

// Option configures a Relay.
type Option func(*Relay)

// WithUnmappedPolicy sets the unmapped-channel policy and placeholder name.
func WithUnmappedPolicy(policy UnmappedPolicy, placeholder string) Option {
	return func(r *Relay) {
		r.policy = policy
		r.placeholder = placeholder
	}
}

// WithEventBus publishes relay outcomes on bus.
func WithEventBus(bus *events.EventBus) Option {
	return func(r *Relay) {
		r.eventBus = bus
	}
}

// Stats is a snapshot of relay counters.
type Stats struct {
	Received        uint64 `json:"received"`
	Relayed         uint64 `json:"relayed"`
	Injected        uint64 `json:"injected"`
	DroppedBot      uint64 `json:"dropped_bot"`
	DroppedUnmapped uint64 `json:"dropped_unmapped"`
}

// Relay applies the relay policy to each event and hands the packet to a Sender.
// It keeps no per-event state; the channel map is read-only.
type Relay struct {
	channels    *channel.Map
	sender      Sender
	policy      UnmappedPolicy
	placeholder string
	eventBus    *events.EventBus
	logger      zerolog.Logger

	received        atomic.Uint64
	relayed         atomic.Uint64
	injected        atomic.Uint64
	droppedBot      atomic.Uint64
	droppedUnmapped atomic.Uint64
}

// New creates a relay. Messages from unmapped channels are dropped unless
// WithUnmappedPolicy says otherwise.
func New(channels *channel.Map, sender Sender, opts ...Option) *Relay {
	r := &Relay{
		channels: channels,
		sender:   sender,
		policy:   UnmappedDrop,
		logger:   log.With().Str("component", "relay").Logger(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Handle relays one chat event. The send happens synchronously, so Handle
// returns only after the packet was delivered or dropped.
func (r *Relay) Handle(ctx context.Context, ev Event) {
	r.received.Add(1)
	r.emit(ctx, events.EventMessageReceived, events.MessageReceivedPayload{
		Author:    ev.AuthorName,
		ChannelID: ev.SourceChannelID,
		IsBot:     ev.IsBot,
	})

	// Bots are ignored so the bridge never echoes its own or other bots' output.
	if ev.IsBot {
		r.droppedBot.Add(1)
		r.drop(ctx, ev, events.DropBot)
		return
	}

	gameChannel, ok := r.channels.ResolveGameChannel(ev.SourceChannelID)
	placeholder := false
	if !ok {
		if r.policy != UnmappedPlaceholder {
			r.droppedUnmapped.Add(1)
			r.drop(ctx, ev, events.DropUnmapped)
			return
		}
		gameChannel = r.placeholder
		placeholder = true
	}

	username := FormatUsername(ev.AuthorName, ev.AuthorDiscriminator)
	r.sender.Send(protocol.EncodeDiscordMessage(gameChannel, username, ev.Text))
	r.relayed.Add(1)

	r.logger.Debug().
		Str("channel", gameChannel).
		Str("username", username).
		Uint64("discord_channel", ev.SourceChannelID).
		Bool("placeholder", placeholder).
		Msg("message relayed")

	r.emit(ctx, events.EventMessageRelayed, events.MessageRelayedPayload{
		Channel:     gameChannel,
		Username:    username,
		ChannelID:   ev.SourceChannelID,
		Placeholder: placeholder,
		Length:      len(ev.Text),
	})
}

// Inject sends an operator-authored message to a mapped game channel,
// bypassing Discord. The username is formatted like a Discord author's.
func (r *Relay) Inject(ctx context.Context, gameChannel, username, text string) error {
	id, ok := r.channels.ResolveChatChannel(gameChannel)
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownChannel, gameChannel)
	}

	formatted := FormatUsername(username, "")
	r.sender.Send(protocol.EncodeDiscordMessage(gameChannel, formatted, text))
	r.injected.Add(1)

	r.logger.Info().
		Str("channel", gameChannel).
		Str("username", formatted).
		Msg("message injected")

	r.emit(ctx, events.EventMessageRelayed, events.MessageRelayedPayload{
		Channel:   gameChannel,
		Username:  formatted,
		ChannelID: id,
		Length:    len(text),
	})
	return nil
}

func (r *Relay) drop(ctx context.Context, ev Event, reason events.DropReason) {
	r.logger.Debug().
		Str("author", ev.AuthorName).
		Uint64("discord_channel", ev.SourceChannelID).
		Str("reason", string(reason)).
		Msg("message dropped")

	r.emit(ctx, events.EventMessageDropped, events.MessageDroppedPayload{
		Author:    ev.AuthorName,
		ChannelID: ev.SourceChannelID,
		Reason:    reason,
	})
}

func (r *Relay) emit(ctx context.Context, eventType events.EventType, payload interface{}) {
	if r.eventBus == nil {
		return
	}
	// Subscribers record the outcome even when the caller is shutting down.
	r.eventBus.Emit(context.WithoutCancel(ctx), events.Event{
		Type:    eventType,
		Source:  "relay",
		Payload: payload,
	})
}

// Stats returns the relay counters.
func (r *Relay) Stats() Stats {
	return Stats{
		Received:        r.received.Load(),
		Relayed:         r.relayed.Load(),
		Injected:        r.injected.Load(),
		DroppedBot:      r.droppedBot.Load(),
		DroppedUnmapped: r.droppedUnmapped.Load(),
	}
}

// Policy returns the unmapped-channel policy in effect.
func (r *Relay) Policy() UnmappedPolicy {
	return r.policy
}

// FormatUsername renders the in-game display name: <name> or <name#discriminator>.
// The "0" discriminator is treated as absent.
func FormatUsername(name, discriminator string) string {
	if discriminator == "" || discriminator == NoDiscriminator {
		return "<" + name + ">"
	}
	return "<" + name + "#" + discriminator + ">"
}
