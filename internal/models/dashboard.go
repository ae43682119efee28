package models

import "time"

// DashboardSummary aggregates plan activity for the caller's scope. Deans see
// their faculty, directors the plans they created, administrators the whole
// system.
type DashboardSummary struct {
	Role        UserRole          `json:"role"`
	SchoolID    *string           `json:"school_id,omitempty"`
	PlanCounts  map[PlanState]int `json:"plan_counts"`
	TotalPlans  int               `json:"total_plans"`
	ActivePlans int               `json:"active_plans"`
	PendingDean int               `json:"pending_dean"`
	Teachers    int               `json:"teachers,omitempty"`
	Schools     int               `json:"schools,omitempty"`
	GeneratedAt time.Time         `json:"generated_at"`
}

// SystemMetrics is a lightweight snapshot of runtime counters for the
// operational dashboard.
type SystemMetrics struct {
	RequestsTotal            uint64    `json:"requests_total"`
	AverageRequestDurationMs float64   `json:"average_request_duration_ms"`
	CacheHits                uint64    `json:"cache_hits"`
	CacheMisses              uint64    `json:"cache_misses"`
	CacheHitRatio            float64   `json:"cache_hit_ratio"`
	Goroutines               int       `json:"goroutines"`
	GeneratedAt              time.Time `json:"generated_at"`
}
