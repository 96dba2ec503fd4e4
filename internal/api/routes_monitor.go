package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/energizer-project/discord-echo/internal/util"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 500
	defaultLogCount     = 100
	maxLogCount         = 1000
)

func (s *Server) handleGetChannels(c *gin.Context) {
	entries := s.deps.Channels.Entries()
	channels := make([]gin.H, 0, len(entries))
	for _, m := range entries {
		// IDs exceed the float64 range JavaScript can represent exactly.
		channels = append(channels, gin.H{
			"name":       m.Name,
			"discord_id": strconv.FormatUint(m.DiscordID, 10),
		})
	}

	c.JSON(http.StatusOK, gin.H{
		"channels":        channels,
		"total":           len(channels),
		"unmapped_policy": s.deps.Relay.Policy(),
	})
}

func (s *Server) handleGetStats(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"relay":      s.deps.Relay.Stats(),
		"transport":  s.deps.Transport.Stats(),
		"map_server": s.deps.Transport.Addr(),
		"uptime":     util.FormatDuration(time.Since(s.started)),
	})
}

func (s *Server) handleGetHistory(c *gin.Context) {
	if s.deps.History == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "relay history is disabled"})
		return
	}

	limit := boundedQueryInt(c, "limit", defaultHistoryLimit, maxHistoryLimit)

	entries, err := s.deps.History.Recent(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	counts, err := s.deps.History.CountByOutcome(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	stored, err := s.deps.History.Total(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"entries": entries,
		"count":   len(entries),
		"totals":  counts,
		"stored":  stored,
	})
}

func (s *Server) handleGetSystem(c *gin.Context) {
	usage, err := util.GetProcessUsage()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"host":    util.GetSystemInfo(),
		"process": usage,
	})
}

func (s *Server) handleGetLogEntries(c *gin.Context) {
	limit := boundedQueryInt(c, "limit", defaultLogCount, maxLogCount)

	logDir := s.cfg.GetApplicationData().Logging.Directory
	entries, err := readRecentLogEntries(logDir, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"entries": entries,
		"count":   len(entries),
	})
}

// boundedQueryInt reads a positive integer query parameter, falling back to
// def when absent or invalid and capping it at limit.
func boundedQueryInt(c *gin.Context, key string, def, limit int) int {
	n, err := strconv.Atoi(c.DefaultQuery(key, strconv.Itoa(def)))
	if err != nil || n < 1 {
		n = def
	}
	if n > limit {
		n = limit
	}
	return n
}

type logEntry struct {
	Timestamp string                 `json:"timestamp"`
	Level     string                 `json:"level"`
	Message   string                 `json:"message"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
}

// readRecentLogEntries parses the last count JSON lines of the newest log file.
func readRecentLogEntries(logDir string, count int) ([]logEntry, error) {
	dirEntries, err := os.ReadDir(logDir)
	if err != nil {
		return nil, err
	}

	// Names carry the date, so the last .log file is the newest.
	var latestFile string
	for i := len(dirEntries) - 1; i >= 0; i-- {
		if !dirEntries[i].IsDir() && filepath.Ext(dirEntries[i].Name()) == ".log" {
			latestFile = filepath.Join(logDir, dirEntries[i].Name())
			break
		}
	}
	if latestFile == "" {
		return []logEntry{}, nil
	}

	data, err := os.ReadFile(latestFile)
	if err != nil {
		return nil, err
	}

	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	start := len(lines) - count
	if start < 0 {
		start = 0
	}

	known := map[string]bool{"level": true, "time": true, "message": true, "caller": true, "app": true}

	result := make([]logEntry, 0, len(lines)-start)
	for _, line := range lines[start:] {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		var raw map[string]interface{}
		if err := json.Unmarshal([]byte(line), &raw); err != nil {
			result = append(result, logEntry{Message: line})
			continue
		}

		entry := logEntry{
			Timestamp: stringFromMap(raw, "time"),
			Level:     stringFromMap(raw, "level"),
			Message:   stringFromMap(raw, "message"),
		}
		for k, v := range raw {
			if known[k] {
				continue
			}
			if entry.Fields == nil {
				entry.Fields = make(map[string]interface{})
			}
			entry.Fields[k] = v
		}
		result = append(result, entry)
	}

	return result, nil
}

func stringFromMap(m map[string]interface{}, key string) string {
	if v, ok := m[key]; ok {
		return fmt.Sprintf("%v", v)
	}
	return ""
}
