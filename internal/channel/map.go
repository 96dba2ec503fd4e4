// Package channel maps Discord channel IDs to in-game channel names.
package channel

import "sort"

// Mapping pairs an in-game channel name with a Discord channel ID.
type Mapping struct {
	Name      string `json:"name"`
	DiscordID uint64 `json:"discord_id"`
}

// Map is a read-only bidirectional lookup built once at startup.
// The reverse direction is derived from the forward table, so two names
// sharing one ID leave only one of them resolvable by ID.
type Map struct {
	byName map[string]uint64
	byID   map[uint64]string
}

// New builds a Map from a name -> Discord ID table. The table is copied.
func New(table map[string]uint64) *Map {
	m := &Map{
		byName: make(map[string]uint64, len(table)),
		byID:   make(map[uint64]string, len(table)),
	}

	// Iterate in name order so the overwrite on duplicate IDs is deterministic.
	names := make([]string, 0, len(table))
	for name := range table {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		id := table[name]
		m.byName[name] = id
		m.byID[id] = name
	}
	return m
}

// ResolveGameChannel returns the in-game channel for a Discord channel ID.
// ok is false when the ID is not mapped; ("", true) is a mapping to a blank name.
func (m *Map) ResolveGameChannel(discordID uint64) (name string, ok bool) {
	name, ok = m.byID[discordID]
	return name, ok
}

// ResolveChatChannel returns the Discord channel ID for an in-game channel.
func (m *Map) ResolveChatChannel(name string) (uint64, bool) {
	id, ok := m.byName[name]
	return id, ok
}

// Entries returns all mappings sorted by in-game name.
func (m *Map) Entries() []Mapping {
	entries := make([]Mapping, 0, len(m.byName))
	for name, id := range m.byName {
		entries = append(entries, Mapping{Name: name, DiscordID: id})
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name < entries[j].Name
	})
	return entries
}

// Len returns the number of configured in-game channels.
func (m *Map) Len() int {
	return len(m.byName)
}

// DuplicateIDs reports Discord IDs that more than one in-game name points to.
func DuplicateIDs(table map[string]uint64) map[uint64][]string {
	seen := make(map[uint64][]string)
	for name, id := range table {
		seen[id] = append(seen[id], name)
	}
	dups := make(map[uint64][]string)
	for id, names := range seen {
		if len(names) > 1 {
			sort.Strings(names)
			dups[id] = names
		}
	}
	return dups
}
