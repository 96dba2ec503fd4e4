// Package network implements the outbound TCP transport to the map server
// and a local sink listener that speaks the receiving side of the protocol.
package network

import (
	"context"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/energizer-project/discord-echo/internal/events"
)

const (
	DefaultConnectTimeout = 5 * time.Second
	DefaultWriteTimeout   = 5 * time.Second
)

// Dialer opens outbound connections. *net.Dialer satisfies it.
type Dialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

// TransportOptions configures a Transport. Zero values select defaults.
type TransportOptions struct {
	ConnectTimeout time.Duration
	WriteTimeout   time.Duration
	Dialer         Dialer
}

// TransportStats is a snapshot of transport counters.
type TransportStats struct {
	Sent   uint64 `json:"sent"`
	Failed uint64 `json:"failed"`
}

// Transport delivers each packet over its own short-lived TCP connection:
// dial, write the whole buffer, close. Sends are serialized by mu, so at
// most one connection to the map server is open at any time.
type Transport struct {
	mu sync.Mutex

	addr     string
	opts     TransportOptions
	eventBus *events.EventBus
	logger   zerolog.Logger

	sent   atomic.Uint64
	failed atomic.Uint64
}

// NewTransport creates a transport targeting addr (host:port).
// eventBus may be nil.
func NewTransport(addr string, opts TransportOptions, eventBus *events.EventBus) *Transport {
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = DefaultConnectTimeout
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = DefaultWriteTimeout
	}
	if opts.Dialer == nil {
		opts.Dialer = &net.Dialer{}
	}

	return &Transport{
		addr:     addr,
		opts:     opts,
		eventBus: eventBus,
		logger:   log.With().Str("component", "transport").Str("addr", addr).Logger(),
	}
}

// Send delivers buf to the map server and blocks until the connection is
// closed again. Failures are logged and the packet is dropped; the caller
// gets no error and nothing is retried.
func (t *Transport) Send(buf []byte) {
	t.mu.Lock()
	defer t.mu.Unlock()

	start := time.Now()
	stage, err := t.send(buf)
	if err != nil {
		t.failed.Add(1)
		t.logger.Error().
			Err(err).
			Str("stage", stage).
			Int("bytes", len(buf)).
			Msg("failed to deliver packet, dropping")
		t.emit(events.Event{
			Type:   events.EventSendFailed,
			Source: "transport",
			Payload: events.SendFailedPayload{
				Addr:  t.addr,
				Stage: stage,
				Error: err.Error(),
			},
		})
		return
	}

	t.sent.Add(1)
	elapsed := time.Since(start)
	t.logger.Debug().
		Int("bytes", len(buf)).
		Dur("duration", elapsed).
		Msg("packet delivered")
	t.emit(events.Event{
		Type:   events.EventPacketSent,
		Source: "transport",
		Payload: events.PacketSentPayload{
			Addr:     t.addr,
			Bytes:    len(buf),
			Duration: elapsed,
		},
	})
}

// send performs one connect/write/close cycle and reports the failing stage.
func (t *Transport) send(buf []byte) (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), t.opts.ConnectTimeout)
	defer cancel()

	conn, err := t.opts.Dialer.DialContext(ctx, "tcp", t.addr)
	if err != nil {
		return "connect", fmt.Errorf("failed to connect to map server at %s: %w", t.addr, err)
	}
	defer conn.Close()

	if err := conn.SetWriteDeadline(time.Now().Add(t.opts.WriteTimeout)); err != nil {
		return "send", fmt.Errorf("failed to set write deadline: %w", err)
	}

	// net.Conn.Write loops until the whole buffer is written or an error occurs.
	if _, err := conn.Write(buf); err != nil {
		return "send", fmt.Errorf("failed to write packet: %w", err)
	}

	return "", nil
}

func (t *Transport) emit(event events.Event) {
	if t.eventBus == nil {
		return
	}
	t.eventBus.Emit(context.Background(), event)
}

// Addr returns the map server address.
func (t *Transport) Addr() string {
	return t.addr
}

// Stats returns the transport counters.
func (t *Transport) Stats() TransportStats {
	return TransportStats{
		Sent:   t.sent.Load(),
		Failed: t.failed.Load(),
	}
}
