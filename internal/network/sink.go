package network

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/energizer-project/discord-echo/internal/events"
	"github.com/energizer-project/discord-echo/internal/protocol"
)

const (
	// SinkReadTimeout bounds how long the sink waits for a packet on a new connection.
	SinkReadTimeout = 10 * time.Second
)

// Sink accepts Discord message packets the way the map-server plugin does:
// one fixed-size packet per connection. It lets the bridge run without a
// game server and is the receiving end in integration tests.
type Sink struct {
	addr     string
	eventBus *events.EventBus
	listener net.Listener
	ready    chan struct{}

	// OnMessage, if set, is called for every decoded packet.
	OnMessage func(remote string, msg protocol.DiscordMessage)
}

// NewSink creates a sink that will listen on addr.
func NewSink(addr string, eventBus *events.EventBus) *Sink {
	return &Sink{
		addr:     addr,
		eventBus: eventBus,
		ready:    make(chan struct{}),
	}
}

// Start listens and serves until ctx is cancelled.
func (s *Sink) Start(ctx context.Context) error {
	lc := ReuseAddrListenConfig()
	ln, err := lc.Listen(ctx, "tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to start packet sink on %s: %w", s.addr, err)
	}
	s.listener = ln
	close(s.ready)

	log.Info().Str("addr", ln.Addr().String()).Msg("packet sink started")

	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				log.Info().Msg("packet sink stopping")
				return nil
			default:
				log.Error().Err(err).Msg("failed to accept connection")
				continue
			}
		}

		go s.handleConnection(ctx, conn)
	}
}

// Addr blocks until the sink is listening and returns its bound address.
func (s *Sink) Addr(ctx context.Context) (string, error) {
	select {
	case <-s.ready:
		return s.listener.Addr().String(), nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (s *Sink) handleConnection(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	remote := conn.RemoteAddr().String()
	logger := log.With().
		Str("component", "sink").
		Str("remote", remote).
		Logger()

	conn.SetReadDeadline(time.Now().Add(SinkReadTimeout))

	msg, err := protocol.ReadDiscordMessage(conn)
	if err != nil {
		logger.Warn().Err(err).Msg("failed to read packet")
		return
	}

	logger.Info().
		Str("channel", msg.Channel).
		Str("username", msg.Username).
		Str("message", msg.Message).
		Msg("discord message received")

	if s.OnMessage != nil {
		s.OnMessage(remote, msg)
	}

	if s.eventBus != nil {
		s.eventBus.Emit(ctx, events.Event{
			Type:   events.EventPacketReceived,
			Source: "sink",
			Payload: events.PacketReceivedPayload{
				Remote:   remote,
				Channel:  msg.Channel,
				Username: msg.Username,
				Message:  msg.Message,
			},
		})
	}
}
