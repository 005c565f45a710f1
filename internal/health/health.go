// Package health reports process and panel status for the health command and
// the web channel's /api/health route.
package health

import (
	"runtime"
	"time"

	"github.com/linanwx/triptych/session"
)

// Options selects what Collect reports.
type Options struct {
	Panels    []session.Snapshot
	ConfigDir string
	StartedAt time.Time // zero omits uptime
	Channels  []string
}

// Snapshot is a point-in-time health report.
type Snapshot struct {
	Status     string      `json:"status" yaml:"status"`
	Goroutines int         `json:"goroutines" yaml:"goroutines"`
	Memory     MemoryInfo  `json:"memory" yaml:"memory"`
	Runtime    RuntimeInfo `json:"runtime" yaml:"runtime"`
	Uptime     string      `json:"uptime,omitempty" yaml:"uptime,omitempty"`
	ConfigDir  string      `json:"configDir,omitempty" yaml:"configDir,omitempty"`
	Channels   []string    `json:"channels,omitempty" yaml:"channels,omitempty"`
	Panels     []PanelInfo `json:"panels" yaml:"panels"`
	Timestamp  string      `json:"timestamp" yaml:"timestamp"`
}

type MemoryInfo struct {
	AllocMB      float64 `json:"allocMB" yaml:"allocMB"`
	TotalAllocMB float64 `json:"totalAllocMB" yaml:"totalAllocMB"`
	SysMB        float64 `json:"sysMB" yaml:"sysMB"`
	NumGC        uint32  `json:"numGC" yaml:"numGC"`
}

type RuntimeInfo struct {
	Version string `json:"version" yaml:"version"`
	OS      string `json:"os" yaml:"os"`
	Arch    string `json:"arch" yaml:"arch"`
	CPUs    int    `json:"cpus" yaml:"cpus"`
}

// PanelInfo summarizes one configured panel.
type PanelInfo struct {
	Slot         int    `json:"slot" yaml:"slot"`
	Provider     string `json:"provider" yaml:"provider"`
	Model        string `json:"model" yaml:"model"`
	State        string `json:"state" yaml:"state"`
	Messages     int    `json:"messages" yaml:"messages"`
	Errors       int    `json:"errors" yaml:"errors"`
	PromptTokens int    `json:"promptTokens" yaml:"promptTokens"`
}

const (
	StatusHealthy      = "healthy"
	StatusUnconfigured = "unconfigured"
)

// Collect returns a health snapshot for the current process.
func Collect(opts Options) Snapshot {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	s := Snapshot{
		Status:     StatusHealthy,
		Goroutines: runtime.NumGoroutine(),
		Memory: MemoryInfo{
			AllocMB:      float64(mem.Alloc) / 1024 / 1024,
			TotalAllocMB: float64(mem.TotalAlloc) / 1024 / 1024,
			SysMB:        float64(mem.Sys) / 1024 / 1024,
			NumGC:        mem.NumGC,
		},
		Runtime: RuntimeInfo{
			Version: runtime.Version(),
			OS:      runtime.GOOS,
			Arch:    runtime.GOARCH,
			CPUs:    runtime.NumCPU(),
		},
		ConfigDir: opts.ConfigDir,
		Channels:  opts.Channels,
		Panels:    make([]PanelInfo, 0, len(opts.Panels)),
		Timestamp: time.Now().Format(time.RFC3339),
	}
	if !opts.StartedAt.IsZero() {
		s.Uptime = time.Since(opts.StartedAt).Round(time.Second).String()
	}

	for _, snap := range opts.Panels {
		s.Panels = append(s.Panels, inspectPanel(snap))
	}
	if len(s.Panels) == 0 {
		s.Status = StatusUnconfigured
	}
	return s
}

func inspectPanel(snap session.Snapshot) PanelInfo {
	info := PanelInfo{
		Slot:         snap.Slot,
		Provider:     string(snap.Provider),
		Model:        snap.Model,
		State:        snap.State.String(),
		Messages:     len(snap.Messages),
		PromptTokens: session.EstimateTokens(snap.Messages, ""),
	}
	for _, m := range snap.Messages {
		if session.IsErrorContent(m.Content) {
			info.Errors++
		}
	}
	return info
}
