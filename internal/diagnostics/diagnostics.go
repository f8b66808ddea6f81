// Package diagnostics builds the structured snapshot returned by the
// connection_diagnostics local command (spec §4.6), grounded on the
// teacher's gopsutil-based system metrics (go-server/internal/metrics/system.go).
package diagnostics

import (
	"runtime"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/figbridge/channelbroker/internal/channels"
)

// Snapshot is the JSON shape returned to the MCP client for
// connection_diagnostics.
type Snapshot struct {
	UptimeSeconds float64                  `json:"uptimeSeconds"`
	Port          int                      `json:"port"`
	CPUPercent    float64                  `json:"cpuPercent"`
	MemoryMB      float64                  `json:"memoryMB"`
	Goroutines    int                      `json:"goroutines"`
	Channels      []channels.ChannelCount  `json:"channels"`
	Hint          string                  `json:"hint,omitempty"`
}

// Collector samples host/process resource usage on demand. One Collector
// is shared across all diagnostics snapshots for the broker's lifetime.
type Collector struct {
	startedAt time.Time
	port      int
}

// New constructs a Collector. port is the broker's WebSocket listen port,
// echoed verbatim in every snapshot.
func New(port int) *Collector {
	return &Collector{startedAt: time.Now(), port: port}
}

// Snapshot builds a diagnostics snapshot from the registry's current
// channel membership (spec §4.6: "uptime, port, channel list with
// per-channel controller/executor counts, and a human-readable hint when
// no executor is connected").
func (c *Collector) Snapshot(reg *channels.Registry) Snapshot {
	active := reg.ActiveChannels()

	var cpuPercent float64
	if percents, err := cpu.Percent(0, false); err == nil && len(percents) > 0 {
		cpuPercent = percents[0]
	}

	var memMB float64
	if vm, err := mem.VirtualMemory(); err == nil {
		memMB = float64(vm.Used) / 1024 / 1024
	}

	hasExecutor := false
	for _, cc := range active {
		if cc.ExecutorCount > 0 {
			hasExecutor = true
			break
		}
	}

	snap := Snapshot{
		UptimeSeconds: time.Since(c.startedAt).Seconds(),
		Port:          c.port,
		CPUPercent:    cpuPercent,
		MemoryMB:      memMB,
		Goroutines:    runtime.NumGoroutine(),
		Channels:      active,
	}
	if !hasExecutor {
		snap.Hint = "no executor is currently connected; forwarded requests will time out"
	}
	return snap
}
