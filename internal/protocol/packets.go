// Package protocol implements the fixed-layout binary packet that carries
// Discord chat into the Hercules map server. Every packet is exactly
// DiscordMessageSize bytes; string fields are zero padded and never
// length-prefixed.
package protocol

import "encoding/binary"

// Packet IDs understood by the map-server plugin.
const (
	PktDiscordMessage int16 = 0x0F01 // Discord chat line for an in-game channel
)

// Field widths of the Discord message packet, in bytes.
const (
	PacketIDSize      = 2
	ChannelFieldSize  = 24 // NAME_LENGTH on the map server
	UsernameFieldSize = 24 // NAME_LENGTH on the map server
	MessageFieldSize  = 250
)

// Field offsets of the Discord message packet.
const (
	ChannelOffset  = PacketIDSize
	UsernameOffset = ChannelOffset + ChannelFieldSize
	MessageOffset  = UsernameOffset + UsernameFieldSize
)

// DiscordMessageSize is the total wire size of a Discord message packet.
const DiscordMessageSize = MessageOffset + MessageFieldSize

// ByteOrder is the byte order of numeric fields. It is fixed to little-endian
// regardless of the host so the packet layout does not depend on the sender.
var ByteOrder = binary.LittleEndian
