package types

import "time"

// SyncMetrics are process-wide rolling counters, reset only on restart.
// They are mutated exclusively by the orchestrator.
type SyncMetrics struct {
	TotalFiles        int       `json:"totalFiles"`
	SyncedFiles       int       `json:"syncedFiles"`
	PendingOperations int       `json:"pendingOperations"`
	ConflictsCount    int       `json:"conflictsCount"`
	ErrorsCount       int       `json:"errorsCount"`
	SuccessRate       float64   `json:"successRate"`
	StorageUsedA      int64     `json:"storageUsedA"`
	StorageUsedB      int64     `json:"storageUsedB"`
	LastSyncAt        time.Time `json:"lastSyncAt,omitempty"`
}

// EnrichmentStats are running counters for the OCR pipeline.
type EnrichmentStats struct {
	TotalProcessed int     `json:"totalProcessed"`
	Successful     int     `json:"successful"`
	Failed         int     `json:"failed"`
	AvgConfidence  float64 `json:"avgConfidence"`
	QueueDepth     int     `json:"queueDepth"`
}

// HealthReport is the aggregated health of the engine and its dependencies.
type HealthReport struct {
	Status     string          `json:"status"` // "healthy" or "unhealthy"
	Components map[string]bool `json:"components"`
}

// Healthy reports whether every component passed.
func (h HealthReport) Healthy() bool {
	return h.Status == "healthy"
}
