package util

import (
	"fmt"
	"os"
	"runtime"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/process"
)

// SystemInfo holds information about the host the bridge runs on.
type SystemInfo struct {
	Hostname     string `json:"hostname"`
	OS           string `json:"os"`
	Platform     string `json:"platform"`
	Architecture string `json:"architecture"`
	CPUModel     string `json:"cpu_model"`
	CPUCores     int    `json:"cpu_cores"`
	TotalMemory  uint64 `json:"total_memory_mb"`
}

// GetSystemInfo gathers host information. Fields that cannot be read stay empty.
func GetSystemInfo() SystemInfo {
	info := SystemInfo{
		Platform:     runtime.GOOS,
		Architecture: runtime.GOARCH,
		CPUCores:     runtime.NumCPU(),
	}

	if hostname, err := os.Hostname(); err == nil {
		info.Hostname = hostname
	}

	if hostInfo, err := host.Info(); err == nil {
		info.OS = fmt.Sprintf("%s %s", hostInfo.Platform, hostInfo.PlatformVersion)
	}

	if cpuInfo, err := cpu.Info(); err == nil && len(cpuInfo) > 0 {
		info.CPUModel = cpuInfo[0].ModelName
	}

	if memInfo, err := mem.VirtualMemory(); err == nil {
		info.TotalMemory = memInfo.Total / (1024 * 1024)
	}

	return info
}

// ProcessUsage describes the bridge process's own resource usage.
type ProcessUsage struct {
	PID        int32         `json:"pid"`
	RSSMB      uint64        `json:"rss_mb"`
	CPUPercent float64       `json:"cpu_percent"`
	Goroutines int           `json:"goroutines"`
	Uptime     time.Duration `json:"uptime"`
}

var processStart = time.Now()

// GetProcessUsage returns resource usage of the current process.
func GetProcessUsage() (*ProcessUsage, error) {
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return nil, fmt.Errorf("failed to inspect process: %w", err)
	}

	usage := &ProcessUsage{
		PID:        proc.Pid,
		Goroutines: runtime.NumGoroutine(),
		Uptime:     time.Since(processStart),
	}

	if memInfo, err := proc.MemoryInfo(); err == nil {
		usage.RSSMB = memInfo.RSS / (1024 * 1024)
	}
	if pct, err := proc.CPUPercent(); err == nil {
		usage.CPUPercent = pct
	}

	return usage, nil
}

// DiskUsage describes the filesystem holding a path, sizes in GB.
type DiskUsage struct {
	Total       uint64  `json:"total_gb"`
	Free        uint64  `json:"free_gb"`
	UsedPercent float64 `json:"used_percent"`
}

// GetDiskUsage returns usage of the filesystem containing path.
func GetDiskUsage(path string) (*DiskUsage, error) {
	usage, err := disk.Usage(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read disk usage for %s: %w", path, err)
	}
	return &DiskUsage{
		Total:       usage.Total / (1024 * 1024 * 1024),
		Free:        usage.Free / (1024 * 1024 * 1024),
		UsedPercent: usage.UsedPercent,
	}, nil
}

// FormatDuration renders a duration rounded to seconds, e.g. "1h2m3s".
func FormatDuration(d time.Duration) string {
	return d.Round(time.Second).String()
}
