// Package health runs periodic checks on the bridge's surroundings: free
// disk space for history and logs, and whether packets reach the map server.
package health

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/energizer-project/discord-echo/internal/config"
	"github.com/energizer-project/discord-echo/internal/events"
	"github.com/energizer-project/discord-echo/internal/network"
	"github.com/energizer-project/discord-echo/internal/util"
)

// Alert levels
const (
	LevelInfo     = "info"
	LevelWarning  = "warning"
	LevelError    = "error"
	LevelCritical = "critical"
)

// TransportStats reports delivery counters.
type TransportStats interface {
	Stats() network.TransportStats
}

// Manager runs the health checks on a fixed interval.
type Manager struct {
	cfg       config.HealthConfig
	paths     []string
	transport TransportStats
	eventBus  *events.EventBus
	diskUsage func(path string) (*util.DiskUsage, error)

	diskLevels  map[string]string
	last        network.TransportStats
	unreachable bool
}

// NewManager creates a health manager watching the filesystems that hold paths.
func NewManager(cfg config.HealthConfig, paths []string, transport TransportStats, eventBus *events.EventBus) *Manager {
	return &Manager{
		cfg:       cfg,
		paths:     paths,
		transport: transport,
		eventBus:  eventBus,
		diskUsage: util.GetDiskUsage,

		diskLevels: make(map[string]string),
	}
}

// Start runs the checks until ctx is cancelled.
func (m *Manager) Start(ctx context.Context) {
	if m.cfg.IntervalSec <= 0 {
		log.Info().Msg("health checks disabled")
		return
	}

	if m.transport != nil {
		m.last = m.transport.Stats()
	}

	ticker := time.NewTicker(time.Duration(m.cfg.IntervalSec) * time.Second)
	defer ticker.Stop()

	log.Info().Int("interval_sec", m.cfg.IntervalSec).Msg("health check manager started")

	m.checkDiskUtilization(ctx)
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("health check manager stopped")
			return
		case <-ticker.C:
			m.checkDiskUtilization(ctx)
			m.checkDelivery(ctx)
		}
	}
}

// checkDiskUtilization alerts when a path's usage level changes, so a full
// disk is reported once per level rather than on every tick.
func (m *Manager) checkDiskUtilization(ctx context.Context) {
	if m.cfg.DiskWarningPercent <= 0 {
		return
	}

	for _, path := range m.paths {
		usage, err := m.diskUsage(path)
		if err != nil {
			log.Warn().Err(err).Str("path", path).Msg("disk utilization check failed")
			continue
		}

		log.Debug().
			Str("path", path).
			Float64("used_percent", usage.UsedPercent).
			Uint64("free_gb", usage.Free).
			Msg("disk utilization")

		level := diskLevel(usage.UsedPercent, m.cfg.DiskWarningPercent)
		previous := m.diskLevels[path]
		m.diskLevels[path] = level
		if level == previous {
			continue
		}
		if level == "" {
			m.alert(ctx, "disk_utilization", LevelInfo,
				fmt.Sprintf("disk holding %s is back to %.1f%% full", path, usage.UsedPercent))
			continue
		}
		m.alert(ctx, "disk_utilization", level,
			fmt.Sprintf("disk holding %s is %.1f%% full (%d GB free of %d GB)", path, usage.UsedPercent, usage.Free, usage.Total))
	}
}

func diskLevel(usedPercent, warnAt float64) string {
	switch {
	case usedPercent >= 99:
		return LevelCritical
	case usedPercent >= warnAt+(100-warnAt)/2:
		return LevelError
	case usedPercent >= warnAt:
		return LevelWarning
	default:
		return ""
	}
}

// checkDelivery alerts when every send since the last check failed, and
// again when delivery recovers.
func (m *Manager) checkDelivery(ctx context.Context) {
	if m.transport == nil {
		return
	}

	now := m.transport.Stats()
	sent := now.Sent - m.last.Sent
	failed := now.Failed - m.last.Failed
	m.last = now

	switch {
	case failed > 0 && sent == 0:
		m.unreachable = true
		m.alert(ctx, "map_server_delivery", LevelError,
			fmt.Sprintf("map server unreachable: %d sends failed since the last check", failed))
	case m.unreachable && sent > 0:
		m.unreachable = false
		m.alert(ctx, "map_server_delivery", LevelInfo, "map server delivery recovered")
	}
}

func (m *Manager) alert(ctx context.Context, check, level, message string) {
	log.Warn().Str("check", check).Str("level", level).Msg(message)

	if m.eventBus == nil {
		return
	}
	m.eventBus.Emit(ctx, events.Event{
		Type:   events.EventHealthAlert,
		Source: "health",
		Payload: events.HealthAlertPayload{
			Check:   check,
			Level:   level,
			Message: message,
		},
	})
}
