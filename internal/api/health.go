package api

import (
	"os"
	"runtime"
	"time"

	"github.com/annel0/spawnkeeper/internal/spawn"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/process"
)

// HealthReport тело ответа GET /health.
type HealthReport struct {
	Status        string           `json:"status"`
	Time          int64            `json:"time"`
	Uptime        string           `json:"uptime"`
	UptimeSeconds int64            `json:"uptime_seconds"`
	MemoryMB      float64          `json:"memory_mb"`
	CPUPercent    *float64         `json:"cpu_percent,omitempty"`
	SystemCPU     *float64         `json:"system_cpu_percent,omitempty"`
	LastLoad      spawn.LoadResult `json:"last_load"`
}

// healthProbe собирает показатели процесса для /health.
// Процент CPU считается gopsutil между соседними вызовами.
type healthProbe struct {
	started time.Time
	proc    *process.Process
	now     func() time.Time
}

func newHealthProbe() *healthProbe {
	h := &healthProbe{started: time.Now(), now: time.Now}
	if proc, err := process.NewProcess(int32(os.Getpid())); err == nil {
		h.proc = proc
	}
	return h
}

func (h *healthProbe) report(last spawn.LoadResult) HealthReport {
	now := h.now()
	uptime := now.Sub(h.started)

	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	return HealthReport{
		Status:        "ok",
		Time:          now.Unix(),
		Uptime:        uptime.Truncate(time.Second).String(),
		UptimeSeconds: int64(uptime / time.Second),
		MemoryMB:      float64(mem.Alloc) / 1024 / 1024,
		CPUPercent:    h.processCPU(),
		SystemCPU:     systemCPU(),
		LastLoad:      last,
	}
}

// processCPU nil, если метрика процесса недоступна на этой платформе.
func (h *healthProbe) processCPU() *float64 {
	if h.proc == nil {
		return nil
	}
	pct, err := h.proc.CPUPercent()
	if err != nil {
		return nil
	}
	return &pct
}

func systemCPU() *float64 {
	pcts, err := cpu.Percent(0, false)
	if err != nil || len(pcts) == 0 {
		return nil
	}
	return &pcts[0]
}
