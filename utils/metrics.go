package utils

import (
	"sync"
	"time"
)

// Metrics holds in-process application counters
type Metrics struct {
	mu sync.RWMutex

	// Request metrics
	TotalRequests   int64
	FailedRequests  int64
	RequestLatency  time.Duration
	AverageLatency  time.Duration
	LastRequestTime time.Time

	// Scoring metrics
	ScoreComputations int64
	SkippedRecords    int64
	BadgesIssued      int64
	BadgeRaces        int64

	// Report metrics
	ReportsGenerated    int64
	SharesCreated       int64
	ShareOpens          int64
	ExpiredShareOpens   int64
	LastReportGenerated time.Time

	// Error metrics
	ErrorCount    int64
	LastErrorTime time.Time
	ErrorTypes    map[string]int64
}

// NewMetrics creates an empty metrics registry
func NewMetrics() *Metrics {
	return &Metrics{ErrorTypes: make(map[string]int64)}
}

var (
	metrics     *Metrics
	metricsOnce sync.Once
)

// GetMetrics returns the process-wide metrics registry
func GetMetrics() *Metrics {
	metricsOnce.Do(func() {
		metrics = NewMetrics()
	})
	return metrics
}

// RecordRequest records one served HTTP request. status >= 500 counts as failed.
func (m *Metrics) RecordRequest(duration time.Duration, status int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.TotalRequests++
	m.RequestLatency += duration
	m.AverageLatency = m.RequestLatency / time.Duration(m.TotalRequests)
	m.LastRequestTime = time.Now()

	if status >= 500 {
		m.FailedRequests++
	}
}

// RecordScoreComputation records a metrics pass and the ledger records it skipped
func (m *Metrics) RecordScoreComputation(skipped int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.ScoreComputations++
	m.SkippedRecords += int64(skipped)
}

// RecordBadge records a badge insert attempt. lostRace means another writer
// already held the badge.
func (m *Metrics) RecordBadge(lostRace bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if lostRace {
		m.BadgeRaces++
		return
	}
	m.BadgesIssued++
}

// RecordReportOperation records report lifecycle events: generate, share, open, expired
func (m *Metrics) RecordReportOperation(operation string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch operation {
	case "generate":
		m.ReportsGenerated++
		m.LastReportGenerated = time.Now()
	case "share":
		m.SharesCreated++
	case "open":
		m.ShareOpens++
	case "expired":
		m.ExpiredShareOpens++
	}
}

// RecordError records an error by its message
func (m *Metrics) RecordError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.ErrorCount++
	m.LastErrorTime = time.Now()

	errorType := "unknown"
	if err != nil {
		errorType = err.Error()
	}
	m.ErrorTypes[errorType]++
}

// GetMetricsSnapshot returns a copy of the current metrics
func (m *Metrics) GetMetricsSnapshot() map[string]interface{} {
	m.mu.RLock()
	defer m.mu.RUnlock()

	errorTypes := make(map[string]int64, len(m.ErrorTypes))
	for k, v := range m.ErrorTypes {
		errorTypes[k] = v
	}

	return map[string]interface{}{
		"total_requests":        m.TotalRequests,
		"failed_requests":       m.FailedRequests,
		"average_latency_ms":    m.AverageLatency.Milliseconds(),
		"score_computations":    m.ScoreComputations,
		"skipped_records":       m.SkippedRecords,
		"badges_issued":         m.BadgesIssued,
		"badge_races":           m.BadgeRaces,
		"reports_generated":     m.ReportsGenerated,
		"shares_created":        m.SharesCreated,
		"share_opens":           m.ShareOpens,
		"expired_share_opens":   m.ExpiredShareOpens,
		"last_report_generated": m.LastReportGenerated,
		"error_count":           m.ErrorCount,
		"last_error_time":       m.LastErrorTime,
		"error_types":           errorTypes,
	}
}

// ResetMetrics clears all counters
func (m *Metrics) ResetMetrics() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.TotalRequests = 0
	m.FailedRequests = 0
	m.RequestLatency = 0
	m.AverageLatency = 0
	m.ScoreComputations = 0
	m.SkippedRecords = 0
	m.BadgesIssued = 0
	m.BadgeRaces = 0
	m.ReportsGenerated = 0
	m.SharesCreated = 0
	m.ShareOpens = 0
	m.ExpiredShareOpens = 0
	m.ErrorCount = 0
	m.ErrorTypes = make(map[string]int64)
}
