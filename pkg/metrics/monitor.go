// Package metrics polls the scheduler for a point-in-time snapshot of its
// runqueue and task-table occupancy, on a timer, for the admin API's
// /stats and /healthz endpoints.
package metrics

import (
	"context"
	"runtime"
	"sync"
	"time"
)

// Stats is one poll of scheduler-observable counters, collected through
// the Collector interface (pkg/sched.Scheduler.CollectStats, which takes
// the scheduler's lock), so the monitor never takes that lock itself.
type Stats struct {
	Timestamp time.Time `json:"timestamp"`

	TaskCount     int `json:"task_count"`
	RunnableCount int `json:"runnable_count"`
	RunningCount  int `json:"running_count"`
	SleepingCount int `json:"sleeping_count"`
	ZombieCount   int `json:"zombie_count"`

	Uptime        int64 `json:"uptime_ticks"`
	DispatchCount int64 `json:"dispatch_count"`

	GoroutineCount     int     `json:"goroutine_count"`
	MemoryUsageBytes   int64   `json:"memory_usage_bytes"`
	MemoryTotalBytes   int64   `json:"memory_total_bytes"`
	MemoryUsagePercent float64 `json:"memory_usage_percent"`
}

// Collector produces a Stats snapshot on demand. pkg/sched.Scheduler
// implements this via its CollectStats method.
type Collector interface {
	CollectStats() Stats
}

// Thresholds bounds the values past which HealthStatus degrades.
type Thresholds struct {
	TaskTableUsagePercent float64 `yaml:"task_table_usage_percent" json:"task_table_usage_percent"`
	MemoryUsagePercent    float64 `yaml:"memory_usage_percent" json:"memory_usage_percent"`
}

// DefaultThresholds returns conservative defaults.
func DefaultThresholds() Thresholds {
	return Thresholds{
		TaskTableUsagePercent: 90.0,
		MemoryUsagePercent:    90.0,
	}
}

// Monitor polls a Collector on an interval and keeps the latest Stats
// available for concurrent readers.
type Monitor struct {
	mu         sync.RWMutex
	collector  Collector
	nproc      int
	interval   time.Duration
	thresholds Thresholds
	latest     Stats
	stopCh     chan struct{}
	wg         sync.WaitGroup
}

// NewMonitor builds a Monitor that polls collector every interval.
// nproc is the task table's capacity, used to turn TaskCount into a
// utilization percentage for HealthStatus.
func NewMonitor(collector Collector, nproc int, interval time.Duration, thresholds Thresholds) *Monitor {
	return &Monitor{
		collector:  collector,
		nproc:      nproc,
		interval:   interval,
		thresholds: thresholds,
		stopCh:     make(chan struct{}),
	}
}

// Start begins polling in a background goroutine until ctx is canceled
// or Stop is called.
func (m *Monitor) Start(ctx context.Context) {
	m.refresh()
	m.wg.Add(1)
	go m.loop(ctx)
}

func (m *Monitor) loop(ctx context.Context) {
	defer m.wg.Done()
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			m.refresh()
		case <-m.stopCh:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (m *Monitor) refresh() {
	stats := m.collector.CollectStats()
	stats.Timestamp = time.Now()

	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)
	stats.GoroutineCount = runtime.NumGoroutine()
	stats.MemoryUsageBytes = int64(memStats.Alloc)
	stats.MemoryTotalBytes = int64(memStats.Sys)
	if memStats.Sys > 0 {
		stats.MemoryUsagePercent = float64(memStats.Alloc) / float64(memStats.Sys) * 100
	}

	m.mu.Lock()
	m.latest = stats
	m.mu.Unlock()
}

// Stop halts polling and waits for the background goroutine to exit.
func (m *Monitor) Stop() {
	close(m.stopCh)
	m.wg.Wait()
}

// Latest returns the most recently collected Stats.
func (m *Monitor) Latest() Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.latest
}

// HealthStatus summarizes Latest against the configured Thresholds.
type HealthStatus struct {
	Status    string   `json:"status"` // "healthy", "degraded", "unhealthy"
	Issues    []string `json:"issues"`
	Stats     Stats    `json:"stats"`
	Timestamp time.Time `json:"timestamp"`
}

// Health evaluates the latest Stats against thresholds.
func (m *Monitor) Health() HealthStatus {
	stats := m.Latest()
	var issues []string

	taskPct := 0.0
	if m.nproc > 0 {
		taskPct = float64(stats.TaskCount) / float64(m.nproc) * 100
	}
	if taskPct > m.thresholds.TaskTableUsagePercent {
		issues = append(issues, "task table near capacity")
	}
	if stats.MemoryUsagePercent > m.thresholds.MemoryUsagePercent {
		issues = append(issues, "high memory usage")
	}

	status := "healthy"
	if len(issues) >= 2 {
		status = "unhealthy"
	} else if len(issues) == 1 {
		status = "degraded"
	}

	return HealthStatus{
		Status:    status,
		Issues:    issues,
		Stats:     stats,
		Timestamp: time.Now(),
	}
}
