package handlers

import (
	"net/http"
	"os"
	"runtime"
	"time"

	"github.com/cairndns/cairndns/internal/api/models"
	"github.com/gin-gonic/gin"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/process"
)

// Health godoc
// @Summary Health check
// @Description Returns server health status
// @Tags system
// @Produce json
// @Success 200 {object} models.StatusResponse
// @Router /health [get]
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, models.StatusResponse{Status: "ok"})
}

// Stats godoc
// @Summary Server statistics
// @Description Returns runtime statistics including memory, goroutines, DNS and cache metrics
// @Tags system
// @Produce json
// @Success 200 {object} models.ServerStatsResponse
// @Security ApiKeyAuth
// @Router /stats [get]
func (h *Handler) Stats(c *gin.Context) {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	uptime := time.Since(h.startTime)

	resp := models.ServerStatsResponse{
		Version:       h.Version(),
		Uptime:        uptime.Round(time.Second).String(),
		UptimeSeconds: int64(uptime.Seconds()),
		StartTime:     h.startTime,
		GoRoutines:    runtime.NumGoroutine(),
		CPU: models.CPUStats{
			NumCPU: runtime.NumCPU(),
		},
		Memory: models.MemoryStats{
			HeapAllocMB: float64(m.Alloc) / 1024 / 1024,
		},
	}

	// Host metrics are best effort; a probe failure leaves the field zeroed.
	if percents, err := cpu.Percent(0, false); err == nil && len(percents) > 0 {
		resp.CPU.UsedPercent = percents[0]
		resp.CPU.IdlePercent = 100 - percents[0]
	}
	if vm, err := mem.VirtualMemory(); err == nil {
		resp.Memory.TotalMB = float64(vm.Total) / 1024 / 1024
		resp.Memory.FreeMB = float64(vm.Available) / 1024 / 1024
		resp.Memory.UsedMB = float64(vm.Used) / 1024 / 1024
		resp.Memory.UsedPercent = vm.UsedPercent
	}
	if proc, err := process.NewProcess(int32(os.Getpid())); err == nil {
		if mi, err := proc.MemoryInfo(); err == nil {
			resp.Memory.RSSMB = float64(mi.RSS) / 1024 / 1024
		}
	}

	if fn := h.GetDNSStatsFunc(); fn != nil {
		s := fn()
		resp.DNSStats = models.DNSStatsResponse{
			QueriesTotal:   s.QueriesTotal,
			QueriesUDP:     s.QueriesUDP,
			QueriesTCP:     s.QueriesTCP,
			QueriesDropped: s.QueriesDropped,
			ResponsesNX:    s.ResponsesNX,
			ResponsesErr:   s.ResponsesErr,
			AvgLatencyMs:   s.AvgLatencyMs,
		}
	}

	if store := h.GetStore(); store != nil {
		resp.CacheStats = cacheStatsResponse(store)
	}

	c.JSON(http.StatusOK, resp)
}
