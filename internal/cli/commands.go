// Package cli implements the bridge's interactive console.
package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/olekukonko/tablewriter"

	"github.com/energizer-project/discord-echo/internal/channel"
	"github.com/energizer-project/discord-echo/internal/events"
	"github.com/energizer-project/discord-echo/internal/network"
	"github.com/energizer-project/discord-echo/internal/relay"
)

const (
	prompt       = "discord-echo> "
	consoleName  = "console"
	helpCommands = `
Commands:
  status                    Show relay and transport counters
  channels                  Show the channel mapping table
  send <channel> <message>  Send a console message to a game channel
  quit                      Shut down the bridge
  help                      Show this help message
`
)

// Relay is the relay surface the console uses.
type Relay interface {
	Stats() relay.Stats
	Policy() relay.UnmappedPolicy
	Inject(ctx context.Context, gameChannel, username, text string) error
}

// Transport reports delivery counters.
type Transport interface {
	Addr() string
	Stats() network.TransportStats
}

// CLI provides an interactive command-line interface.
type CLI struct {
	in  io.Reader
	out io.Writer

	eventBus  *events.EventBus
	channels  *channel.Map
	relay     Relay
	transport Transport
}

// NewCLI creates a console reading commands from in and writing to out.
func NewCLI(in io.Reader, out io.Writer, eventBus *events.EventBus, channels *channel.Map, r Relay, t Transport) *CLI {
	return &CLI{
		in:        in,
		out:       out,
		eventBus:  eventBus,
		channels:  channels,
		relay:     r,
		transport: t,
	}
}

// Start runs the read-eval loop until ctx is cancelled, input ends or the
// user quits.
func (c *CLI) Start(ctx context.Context) {
	fmt.Fprintln(c.out, "\ndiscord-echo console ready. Type 'help' for available commands.")

	readCtx, stopReading := context.WithCancel(ctx)
	defer stopReading()

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(c.in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-readCtx.Done():
				return
			}
		}
	}()

	for {
		fmt.Fprint(c.out, prompt)
		select {
		case <-ctx.Done():
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			if quit := c.Execute(ctx, line); quit {
				return
			}
		}
	}
}

// Execute runs one command line and reports whether the console should exit.
func (c *CLI) Execute(ctx context.Context, line string) bool {
	parts := strings.Fields(line)
	if len(parts) == 0 {
		return false
	}
	cmd, args := strings.ToLower(parts[0]), parts[1:]

	var err error
	switch cmd {
	case "help", "h", "?":
		fmt.Fprint(c.out, helpCommands)
	case "status", "s":
		c.printStatus()
	case "channels", "c":
		c.printChannels()
	case "send":
		err = c.cmdSend(ctx, args)
	case "quit", "exit", "q":
		fmt.Fprintln(c.out, "Shutting down discord-echo...")
		if c.eventBus != nil {
			c.eventBus.Emit(ctx, events.Event{Type: events.EventShutdown, Source: "cli"})
		}
		return true
	default:
		fmt.Fprintf(c.out, "Unknown command: '%s'. Type 'help' for available commands.\n", cmd)
	}

	if err != nil {
		fmt.Fprintf(c.out, "Error: %v\n", err)
	}
	return false
}

func (c *CLI) newTable(header ...string) *tablewriter.Table {
	tw := tablewriter.NewWriter(c.out)
	tw.SetHeader(header)
	tw.SetBorder(true)
	tw.SetAutoWrapText(false)
	return tw
}

func (c *CLI) printStatus() {
	rs := c.relay.Stats()
	ts := c.transport.Stats()

	tw := c.newTable("Counter", "Value")
	tw.AppendBulk([][]string{
		{"received", strconv.FormatUint(rs.Received, 10)},
		{"relayed", strconv.FormatUint(rs.Relayed, 10)},
		{"injected", strconv.FormatUint(rs.Injected, 10)},
		{"dropped (bot)", strconv.FormatUint(rs.DroppedBot, 10)},
		{"dropped (unmapped)", strconv.FormatUint(rs.DroppedUnmapped, 10)},
		{"packets sent", strconv.FormatUint(ts.Sent, 10)},
		{"send failures", strconv.FormatUint(ts.Failed, 10)},
	})
	tw.SetFooter([]string{"map server", c.transport.Addr()})
	tw.Render()
}

func (c *CLI) printChannels() {
	tw := c.newTable("Game Channel", "Discord Channel ID")
	for _, m := range c.channels.Entries() {
		tw.Append([]string{m.Name, strconv.FormatUint(m.DiscordID, 10)})
	}
	tw.Render()
	fmt.Fprintf(c.out, "unmapped channels: %s\n", c.relay.Policy())
}

func (c *CLI) cmdSend(ctx context.Context, args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("usage: send <channel> <message>")
	}

	gameChannel := args[0]
	message := strings.Join(args[1:], " ")
	if err := c.relay.Inject(ctx, gameChannel, consoleName, message); err != nil {
		return err
	}
	fmt.Fprintf(c.out, "Sent to %s: %s\n", gameChannel, message)
	return nil
}
