package models

// CacheStatsResponse summarizes the resolver cache contents and counters.
type CacheStatsResponse struct {
	Entries    int     `json:"entries"`
	MaxEntries int     `json:"max_entries"`
	Hits       uint64  `json:"hits"`
	Misses     uint64  `json:"misses"`
	Insertions uint64  `json:"insertions"`
	Evictions  uint64  `json:"evictions"`
	HitRatio   float64 `json:"hit_ratio"`
}

// CacheClearResponse reports the result of a cache flush.
type CacheClearResponse struct {
	Status  string `json:"status"`
	Removed int    `json:"removed"`
}

// CacheSaveResponse reports the result of a manually triggered checkpoint.
type CacheSaveResponse struct {
	Status     string  `json:"status"`
	Entries    int     `json:"entries"`
	DurationMs float64 `json:"duration_ms"`
}
