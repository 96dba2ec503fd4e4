package health

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/energizer-project/discord-echo/internal/config"
	"github.com/energizer-project/discord-echo/internal/events"
	"github.com/energizer-project/discord-echo/internal/network"
	"github.com/energizer-project/discord-echo/internal/util"
)

type stubTransport struct {
	stats network.TransportStats
}

func (s *stubTransport) Stats() network.TransportStats { return s.stats }

type alertRecorder struct {
	mu     sync.Mutex
	alerts []events.HealthAlertPayload
}

func (r *alertRecorder) handle(ctx context.Context, e events.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.alerts = append(r.alerts, e.Payload.(events.HealthAlertPayload))
	return nil
}

func (r *alertRecorder) snapshot() []events.HealthAlertPayload {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]events.HealthAlertPayload(nil), r.alerts...)
}

func newTestManager(t *testing.T, tr *stubTransport) (*Manager, *alertRecorder, *events.EventBus) {
	t.Helper()
	bus := events.NewEventBus()
	rec := &alertRecorder{}
	bus.Subscribe(events.EventHealthAlert, "test", rec.handle)

	m := NewManager(config.HealthConfig{IntervalSec: 60, DiskWarningPercent: 90}, []string{"/data"}, tr, bus)
	return m, rec, bus
}

func TestDiskLevel(t *testing.T) {
	tests := []struct {
		used float64
		want string
	}{
		{50, ""},
		{89.9, ""},
		{90, LevelWarning},
		{94, LevelWarning},
		{95, LevelError},
		{99.5, LevelCritical},
	}
	for _, tt := range tests {
		if got := diskLevel(tt.used, 90); got != tt.want {
			t.Errorf("diskLevel(%v) = %q, want %q", tt.used, got, tt.want)
		}
	}
}

func TestCheckDiskUtilization(t *testing.T) {
	m, rec, bus := newTestManager(t, nil)
	m.diskUsage = func(path string) (*util.DiskUsage, error) {
		return &util.DiskUsage{Total: 100, Free: 3, UsedPercent: 97}, nil
	}

	m.checkDiskUtilization(context.Background())
	// Same level again: no repeat.
	m.checkDiskUtilization(context.Background())
	bus.Stop()

	alerts := rec.snapshot()
	if len(alerts) != 1 || alerts[0].Level != LevelError || alerts[0].Check != "disk_utilization" {
		t.Fatalf("alerts = %+v", alerts)
	}
}

func TestCheckDiskUtilization_Recovery(t *testing.T) {
	m, rec, bus := newTestManager(t, nil)
	used := 92.0
	m.diskUsage = func(path string) (*util.DiskUsage, error) {
		return &util.DiskUsage{Total: 100, Free: 8, UsedPercent: used}, nil
	}

	ctx := context.Background()
	m.checkDiskUtilization(ctx)
	used = 40
	m.checkDiskUtilization(ctx)
	bus.Stop()

	alerts := rec.snapshot()
	if len(alerts) != 2 {
		t.Fatalf("alerts = %+v", alerts)
	}
}

func TestCheckDiskUtilization_ErrorIsNotAnAlert(t *testing.T) {
	m, rec, bus := newTestManager(t, nil)
	m.diskUsage = func(path string) (*util.DiskUsage, error) {
		return nil, errors.New("no such device")
	}

	m.checkDiskUtilization(context.Background())
	bus.Stop()

	if alerts := rec.snapshot(); len(alerts) != 0 {
		t.Fatalf("alerts = %+v", alerts)
	}
}

func TestCheckDelivery(t *testing.T) {
	tr := &stubTransport{}
	m, rec, bus := newTestManager(t, tr)
	ctx := context.Background()

	// Some failures mixed with successes are not an outage.
	tr.stats = network.TransportStats{Sent: 5, Failed: 1}
	m.checkDelivery(ctx)

	// Only failures since the last check.
	tr.stats = network.TransportStats{Sent: 5, Failed: 4}
	m.checkDelivery(ctx)

	// Quiet period: nothing to report.
	m.checkDelivery(ctx)

	// Recovery.
	tr.stats = network.TransportStats{Sent: 6, Failed: 4}
	m.checkDelivery(ctx)
	bus.Stop()

	alerts := rec.snapshot()
	if len(alerts) != 2 {
		t.Fatalf("alerts = %+v", alerts)
	}
	levels := map[string]bool{}
	for _, a := range alerts {
		levels[a.Level] = true
	}
	if !levels[LevelError] || !levels[LevelInfo] {
		t.Fatalf("alerts = %+v", alerts)
	}
}

func TestStart_Disabled(t *testing.T) {
	m := NewManager(config.HealthConfig{}, nil, nil, nil)
	// Returns immediately when the interval is zero.
	m.Start(context.Background())
}
