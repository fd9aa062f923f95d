package models

import "time"

// SystemMetrics is a lightweight snapshot of in-process counters.
type SystemMetrics struct {
	RequestsTotal            uint64    `json:"requests_total"`
	AverageRequestDurationMs float64   `json:"average_request_duration_ms"`
	CacheHitRatio            float64   `json:"cache_hit_ratio"`
	PassesIssued             uint64    `json:"passes_issued"`
	Denials                  uint64    `json:"denials"`
	Scans                    uint64    `json:"scans"`
	SyncPages                uint64    `json:"sync_pages"`
	Goroutines               int       `json:"goroutines"`
	GeneratedAt              time.Time `json:"generated_at"`
}
