// Package connector adapts the Discord gateway to the relay.
package connector

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/energizer-project/discord-echo/internal/relay"
)

// Intents requested from the gateway. Message content is a privileged
// intent and must also be enabled for the bot in the developer portal.
const Intents = discordgo.IntentsGuildMessages | discordgo.IntentMessageContent

var errNoAuthor = errors.New("message has no author")

// Handler consumes chat events. *relay.Relay satisfies it.
type Handler interface {
	Handle(ctx context.Context, ev relay.Event)
}

// DiscordConnector feeds Discord message-create events into a Handler.
type DiscordConnector struct {
	session *discordgo.Session
	handler Handler
	logger  zerolog.Logger
	ctx     context.Context
}

// NewDiscordConnector creates a bot session for token. It does not connect.
func NewDiscordConnector(token string, handler Handler) (*DiscordConnector, error) {
	session, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("failed to create Discord session: %w", err)
	}
	session.Identify.Intents = Intents
	// Handlers run one at a time in gateway order, so packets leave in the
	// order Discord delivered the messages.
	session.SyncEvents = true
	session.StateEnabled = false

	return &DiscordConnector{
		session: session,
		handler: handler,
		logger:  log.With().Str("component", "discord").Logger(),
		ctx:     context.Background(),
	}, nil
}

// Start opens the gateway connection and blocks until ctx is cancelled.
// A failure to open the connection (bad token, network) is returned at once.
func (dc *DiscordConnector) Start(ctx context.Context) error {
	dc.ctx = ctx

	dc.session.AddHandlerOnce(dc.onReady)
	dc.session.AddHandler(dc.onMessageCreate)

	if err := dc.session.Open(); err != nil {
		return fmt.Errorf("failed to open Discord connection: %w", err)
	}

	<-ctx.Done()

	if err := dc.session.Close(); err != nil {
		dc.logger.Warn().Err(err).Msg("error closing Discord connection")
	}
	dc.logger.Info().Msg("Discord connection closed")
	return nil
}

func (dc *DiscordConnector) onReady(s *discordgo.Session, r *discordgo.Ready) {
	name := "unknown"
	if r.User != nil {
		name = r.User.String()
	}
	dc.logger.Info().
		Str("user", name).
		Int("guilds", len(r.Guilds)).
		Msgf("logged in as %s", name)
}

func (dc *DiscordConnector) onMessageCreate(s *discordgo.Session, m *discordgo.MessageCreate) {
	ev, err := toRelayEvent(m)
	if err != nil {
		dc.logger.Warn().Err(err).Msg("ignoring Discord message")
		return
	}
	dc.handler.Handle(dc.ctx, ev)
}

// toRelayEvent converts a gateway message into a relay event.
func toRelayEvent(m *discordgo.MessageCreate) (relay.Event, error) {
	if m == nil || m.Message == nil || m.Author == nil {
		return relay.Event{}, errNoAuthor
	}

	channelID, err := strconv.ParseUint(m.ChannelID, 10, 64)
	if err != nil {
		return relay.Event{}, fmt.Errorf("invalid channel id %q: %w", m.ChannelID, err)
	}

	return relay.Event{
		AuthorName:          m.Author.Username,
		AuthorDiscriminator: m.Author.Discriminator,
		IsBot:               m.Author.Bot,
		SourceChannelID:     channelID,
		Text:                m.Content,
	}, nil
}
