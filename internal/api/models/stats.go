package models

import "time"

// ServerStatsResponse contains server runtime statistics.
type ServerStatsResponse struct {
	Version       string              `json:"version"`
	Uptime        string              `json:"uptime"`
	UptimeSeconds int64               `json:"uptime_seconds"`
	StartTime     time.Time           `json:"start_time"`
	GoRoutines    int                 `json:"goroutines"`
	CPU           CPUStats            `json:"cpu"`
	Memory        MemoryStats         `json:"memory"`
	DNSStats      DNSStatsResponse    `json:"dns"`
	CacheStats    *CacheStatsResponse `json:"cache,omitempty"`
}

// CPUStats contains host CPU usage sampled at request time.
type CPUStats struct {
	NumCPU      int     `json:"num_cpu"`
	UsedPercent float64 `json:"used_percent"`
	IdlePercent float64 `json:"idle_percent"`
}

// MemoryStats contains host memory usage plus the resolver's own
// footprint (Go heap and OS resident set).
type MemoryStats struct {
	TotalMB     float64 `json:"total_mb"`
	FreeMB      float64 `json:"free_mb"`
	UsedMB      float64 `json:"used_mb"`
	UsedPercent float64 `json:"used_percent"`
	HeapAllocMB float64 `json:"heap_alloc_mb"`
	RSSMB       float64 `json:"rss_mb"`
}

// DNSStatsResponse contains DNS query statistics.
type DNSStatsResponse struct {
	QueriesTotal   uint64  `json:"queries_total"`
	QueriesUDP     uint64  `json:"queries_udp"`
	QueriesTCP     uint64  `json:"queries_tcp"`
	QueriesDropped uint64  `json:"queries_dropped"`
	ResponsesNX    uint64  `json:"responses_nxdomain"`
	ResponsesErr   uint64  `json:"responses_error"`
	AvgLatencyMs   float64 `json:"avg_latency_ms"`
}
