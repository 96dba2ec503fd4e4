package config

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"
)

const maxWizardAttempts = 3

// RunSetupWizard asks for the settings a fresh install cannot run without
// and saves them. It reads answers line by line from in.
func RunSetupWizard(cfg *Config, in io.Reader, out io.Writer) error {
	reader := bufio.NewReader(in)

	fmt.Fprintln(out, "== discord-echo first run setup ==")
	fmt.Fprintln(out, "Press enter to keep the value in brackets.")

	for attempt := 1; attempt <= maxWizardAttempts; attempt++ {
		cfg.mu.Lock()
		askBridge(reader, out, &cfg.BridgeData)
		cfg.ApplicationData.API.Enabled = promptBool(reader, out, "Enable the local status API", cfg.ApplicationData.API.Enabled)
		cfg.mu.Unlock()

		result := Validate(cfg)
		if result.IsValid() {
			for _, w := range result.Warnings {
				log.Warn().Str("field", w.Field).Msg(w.Message)
			}
			if err := cfg.Save(); err != nil {
				return fmt.Errorf("failed to save configuration: %w", err)
			}
			fmt.Fprintf(out, "Configuration saved to %s\n", cfg.Path())
			return nil
		}

		fmt.Fprintln(out, "Configuration has errors:")
		for _, e := range result.Errors {
			fmt.Fprintf(out, "  - [%s] %s\n", e.Field, e.Message)
		}
		if attempt < maxWizardAttempts && !promptBool(reader, out, "Try again", true) {
			break
		}
	}
	return fmt.Errorf("configuration validation failed")
}

func askBridge(reader *bufio.Reader, out io.Writer, b *BridgeData) {
	fmt.Fprintln(out, "\n-- Discord --")
	b.DiscordToken = promptSecret(reader, out, "Bot token", b.DiscordToken)

	fmt.Fprintln(out, "\n-- Map server --")
	b.MapServerHost = promptString(reader, out, "Host", b.MapServerHost)
	b.MapServerPort = promptInt(reader, out, "Port", b.MapServerPort)

	fmt.Fprintln(out, "\n-- Channels --")
	fmt.Fprintln(out, "Enter one mapping per line as <game channel>=<discord channel id>.")
	fmt.Fprintln(out, "An empty first line keeps the current table.")
	if table := promptChannels(reader, out); len(table) > 0 {
		b.Channels = table
	}
	b.UnmappedPolicy = promptString(reader, out, "Messages from unmapped channels (drop/placeholder)", b.UnmappedPolicy)
}

func readLine(reader *bufio.Reader) string {
	input, _ := reader.ReadString('\n')
	return strings.TrimSpace(input)
}

func promptString(reader *bufio.Reader, out io.Writer, prompt, defaultVal string) string {
	if defaultVal != "" {
		fmt.Fprintf(out, "  %s [%s]: ", prompt, defaultVal)
	} else {
		fmt.Fprintf(out, "  %s: ", prompt)
	}
	if input := readLine(reader); input != "" {
		return input
	}
	return defaultVal
}

// promptSecret never echoes the current value.
func promptSecret(reader *bufio.Reader, out io.Writer, prompt, current string) string {
	if current != "" {
		fmt.Fprintf(out, "  %s [keep current]: ", prompt)
	} else {
		fmt.Fprintf(out, "  %s: ", prompt)
	}
	if input := readLine(reader); input != "" {
		return input
	}
	return current
}

func promptInt(reader *bufio.Reader, out io.Writer, prompt string, defaultVal int) int {
	fmt.Fprintf(out, "  %s [%d]: ", prompt, defaultVal)
	input := readLine(reader)
	if input == "" {
		return defaultVal
	}
	val, err := strconv.Atoi(input)
	if err != nil {
		fmt.Fprintf(out, "    Invalid number, using default: %d\n", defaultVal)
		return defaultVal
	}
	return val
}

func promptBool(reader *bufio.Reader, out io.Writer, prompt string, defaultVal bool) bool {
	defaultStr := "no"
	if defaultVal {
		defaultStr = "yes"
	}
	fmt.Fprintf(out, "  %s [%s]: ", prompt, defaultStr)

	switch strings.ToLower(readLine(reader)) {
	case "":
		return defaultVal
	case "yes", "y", "true", "1":
		return true
	default:
		return false
	}
}

// promptChannels reads name=id lines until an empty line or end of input.
// Malformed lines are reported and skipped.
func promptChannels(reader *bufio.Reader, out io.Writer) map[string]uint64 {
	table := make(map[string]uint64)
	for {
		fmt.Fprint(out, "  mapping: ")
		line := readLine(reader)
		if line == "" {
			return table
		}
		name, rawID, ok := strings.Cut(line, "=")
		name = strings.TrimSpace(name)
		id, err := strconv.ParseUint(strings.TrimSpace(rawID), 10, 64)
		if !ok || name == "" || err != nil {
			fmt.Fprintf(out, "    Ignoring %q (want name=id)\n", line)
			continue
		}
		table[name] = id
	}
}
