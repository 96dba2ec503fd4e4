package cli

import (
	"bytes"
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/energizer-project/discord-echo/internal/channel"
	"github.com/energizer-project/discord-echo/internal/events"
	"github.com/energizer-project/discord-echo/internal/network"
	"github.com/energizer-project/discord-echo/internal/protocol"
	"github.com/energizer-project/discord-echo/internal/relay"
)

type captureSender struct {
	mu      sync.Mutex
	packets [][]byte
}

func (s *captureSender) Send(buf []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.packets = append(s.packets, buf)
}

type fakeTransport struct{}

func (fakeTransport) Addr() string { return "10.0.0.1:5121" }
func (fakeTransport) Stats() network.TransportStats { return network.TransportStats{Sent: 7} }

func newTestCLI(in string, bus *events.EventBus) (*CLI, *bytes.Buffer, *captureSender) {
	channels := channel.New(map[string]uint64{"main": 11, "trade": 22})
	sender := &captureSender{}
	out := &bytes.Buffer{}
	c := NewCLI(strings.NewReader(in), out, bus, channels, relay.New(channels, sender), fakeTransport{})
	return c, out, sender
}

func TestExecute_Status(t *testing.T) {
	c, out, _ := newTestCLI("", nil)
	c.Execute(context.Background(), "status")

	got := out.String()
	for _, want := range []string{"PACKETS SENT", "7", "10.0.0.1:5121"} {
		if !strings.Contains(strings.ToUpper(got), strings.ToUpper(want)) {
			t.Errorf("status output missing %q:\n%s", want, got)
		}
	}
}

func TestExecute_Channels(t *testing.T) {
	c, out, _ := newTestCLI("", nil)
	c.Execute(context.Background(), "channels")

	got := out.String()
	if !strings.Contains(got, "trade") || !strings.Contains(got, "22") {
		t.Fatalf("channels output:\n%s", got)
	}
	if !strings.Contains(got, "unmapped channels: drop") {
		t.Fatalf("policy missing:\n%s", got)
	}
}

func TestExecute_Send(t *testing.T) {
	c, out, sender := newTestCLI("", nil)

	c.Execute(context.Background(), "send main hello  there")
	if len(sender.packets) != 1 {
		t.Fatalf("sent %d packets", len(sender.packets))
	}
	msg, err := protocol.DecodeDiscordMessage(sender.packets[0])
	if err != nil {
		t.Fatal(err)
	}
	if msg.Channel != "main" || msg.Username != "<console>" || msg.Message != "hello there" {
		t.Fatalf("msg = %+v", msg)
	}

	out.Reset()
	c.Execute(context.Background(), "send nowhere hi")
	if !strings.Contains(out.String(), "Error:") {
		t.Fatalf("expected error output, got %q", out.String())
	}

	out.Reset()
	c.Execute(context.Background(), "send main")
	if !strings.Contains(out.String(), "usage") {
		t.Fatalf("expected usage, got %q", out.String())
	}
}

func TestExecute_Unknown(t *testing.T) {
	c, out, _ := newTestCLI("", nil)
	if c.Execute(context.Background(), "dance") {
		t.Fatal("unknown command should not quit")
	}
	if !strings.Contains(out.String(), "Unknown command") {
		t.Fatalf("output = %q", out.String())
	}
}

func TestStart_QuitEmitsShutdown(t *testing.T) {
	bus := events.NewEventBus()
	got := make(chan struct{}, 1)
	bus.Subscribe(events.EventShutdown, "test", func(ctx context.Context, e events.Event) error {
		got <- struct{}{}
		return nil
	})

	c, _, _ := newTestCLI("help\nquit\nstatus\n", bus)

	done := make(chan struct{})
	go func() {
		c.Start(context.Background())
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Start did not return after quit")
	}
	select {
	case <-got:
	case <-time.After(2 * time.Second):
		t.Fatal("shutdown event not emitted")
	}
}

func TestStart_ReturnsOnEOF(t *testing.T) {
	c, _, _ := newTestCLI("", nil)
	done := make(chan struct{})
	go func() {
		c.Start(context.Background())
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Start did not return at end of input")
	}
}
