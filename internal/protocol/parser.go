package protocol

import (
	"bytes"
	"errors"
	"fmt"
	"io"
)

// ErrUnknownPacket is returned when a buffer carries an unexpected packet ID.
var ErrUnknownPacket = errors.New("unknown packet id")

// ReadDiscordMessage reads exactly one Discord message packet from r.
func ReadDiscordMessage(r io.Reader) (DiscordMessage, error) {
	buf := make([]byte, DiscordMessageSize)
	if _, err := io.ReadFull(r, buf); err != nil {
		return DiscordMessage{}, fmt.Errorf("failed to read packet (%d bytes): %w", DiscordMessageSize, err)
	}
	return DecodeDiscordMessage(buf)
}

// DecodeDiscordMessage parses a packet the way the map server does: each
// string field ends at its first zero byte or at the field boundary.
func DecodeDiscordMessage(buf []byte) (DiscordMessage, error) {
	if len(buf) != DiscordMessageSize {
		return DiscordMessage{}, fmt.Errorf("invalid packet length %d (want %d)", len(buf), DiscordMessageSize)
	}

	id := PacketID(buf)
	if id != PktDiscordMessage {
		return DiscordMessage{}, fmt.Errorf("%w: 0x%04X", ErrUnknownPacket, uint16(id))
	}

	return DiscordMessage{
		Channel:  fixedString(buf[ChannelOffset:UsernameOffset]),
		Username: fixedString(buf[UsernameOffset:MessageOffset]),
		Message:  fixedString(buf[MessageOffset:DiscordMessageSize]),
	}, nil
}

// PacketID returns the packet ID stored in the first two bytes of buf,
// or 0 if buf is too short.
func PacketID(buf []byte) int16 {
	if len(buf) < PacketIDSize {
		return 0
	}
	return int16(ByteOrder.Uint16(buf))
}

func fixedString(field []byte) string {
	if i := bytes.IndexByte(field, 0); i >= 0 {
		field = field[:i]
	}
	return string(field)
}
