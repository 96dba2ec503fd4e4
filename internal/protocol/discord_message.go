package protocol

// DiscordMessage is one chat line relayed into an in-game channel.
type DiscordMessage struct {
	Channel  string `json:"channel"`
	Username string `json:"username"`
	Message  string `json:"message"`
}

// Build encodes the message into its fixed wire layout.
func (m DiscordMessage) Build() []byte {
	return EncodeDiscordMessage(m.Channel, m.Username, m.Message)
}

// EncodeDiscordMessage builds a 0x0F01 packet.
// Format: [packet_id:2][channel:24][username:24][message:250]
// It never fails: oversized fields are truncated, short ones zero padded.
func EncodeDiscordMessage(channel, username, message string) []byte {
	return NewPacketBuilder(DiscordMessageSize).
		WriteInt16(PktDiscordMessage).
		WriteFixedString(channel, ChannelFieldSize).
		WriteFixedString(username, UsernameFieldSize).
		WriteFixedString(message, MessageFieldSize).
		Build()
}
