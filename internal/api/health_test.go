package api

import (
	"testing"
	"time"

	"github.com/annel0/spawnkeeper/internal/spawn"
	"github.com/stretchr/testify/assert"
)

func TestHealthReport(t *testing.T) {
	h := newHealthProbe()
	started := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	h.started = started
	h.now = func() time.Time { return started.Add(90*time.Minute + 1500*time.Millisecond) }

	r := h.report(spawn.LoadResult{Status: spawn.LoadMissing, Worlds: 2})
	assert.Equal(t, "ok", r.Status)
	assert.Equal(t, "1h30m1s", r.Uptime)
	assert.Equal(t, int64(5401), r.UptimeSeconds)
	assert.Equal(t, started.Add(90*time.Minute).Unix()+1, r.Time)
	assert.Greater(t, r.MemoryMB, 0.0)
	assert.Equal(t, spawn.LoadMissing, r.LastLoad.Status)
}

func TestHealthReportWithoutProcess(t *testing.T) {
	h := newHealthProbe()
	h.proc = nil

	assert.Nil(t, h.processCPU())
}
