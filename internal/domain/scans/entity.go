package scans

import (
	"time"
)

// ID tipe untuk ModelScan
type ScanID string

// Status enum: queued -> scanning -> {completed | quarantined | failed}
type Status string

const (
	StatusQueued      Status = "queued"
	StatusScanning    Status = "scanning"
	StatusCompleted   Status = "completed"
	StatusQuarantined Status = "quarantined"
	StatusFailed      Status = "failed"
)

// Terminal reports whether the status is an end state of the scan lifecycle.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusQuarantined || s == StatusFailed
}

// Valid reports whether s is one of the known lifecycle states.
func (s Status) Valid() bool {
	switch s {
	case StatusQueued, StatusScanning, StatusCompleted, StatusQuarantined, StatusFailed:
		return true
	}
	return false
}

// ThreatType enum
type ThreatType string

const (
	ThreatMalware          ThreatType = "malware"
	ThreatBackdoor         ThreatType = "backdoor"
	ThreatDataLeak         ThreatType = "data_leak"
	ThreatAdversarial      ThreatType = "adversarial"
	ThreatPrivacyViolation ThreatType = "privacy_violation"
)

func (t ThreatType) Valid() bool {
	switch t {
	case ThreatMalware, ThreatBackdoor, ThreatDataLeak, ThreatAdversarial, ThreatPrivacyViolation:
		return true
	}
	return false
}

// Severity enum untuk catalog rules dan summary tallies
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
)

func (s Severity) Valid() bool {
	switch s {
	case SeverityCritical, SeverityHigh, SeverityMedium, SeverityLow:
		return true
	}
	return false
}

// SeverityCounts value object
type SeverityCounts struct {
	Critical int `json:"critical"`
	High     int `json:"high"`
	Medium   int `json:"medium"`
	Low      int `json:"low"`
	Total    int `json:"total"`
}

// Add tallies one finding of the given severity.
func (c *SeverityCounts) Add(s Severity) {
	switch s {
	case SeverityCritical:
		c.Critical++
	case SeverityHigh:
		c.High++
	case SeverityMedium:
		c.Medium++
	default:
		c.Low++
	}
	c.Total++
}

// ThreatDetection is a single scored finding produced by one analyzer or rule.
// Detections are immutable once created; a scan only ever appends them.
type ThreatDetection struct {
	ID          string         `json:"id"`
	ScanID      ScanID         `json:"scan_id"`
	ThreatType  ThreatType     `json:"threat_type"`
	Confidence  float64        `json:"confidence_score"`
	Severity    Severity       `json:"severity"`
	Description string         `json:"description"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
}

// ClampConfidence keeps a confidence score inside [0,1].
func ClampConfidence(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// Aggregate Root: ModelScan, one per uploaded model artifact.
type ModelScan struct {
	ID           ScanID            `json:"id"`
	TenantID     string            `json:"tenant_id"`
	OwnerID      string            `json:"owner_id,omitempty"`
	Filename     string            `json:"filename"`
	DeclaredSize int64             `json:"declared_size"`
	StoragePath  string            `json:"storage_path"`
	Status       Status            `json:"status"`
	Detections   []ThreatDetection `json:"detections,omitempty"`
	Summary      map[string]any    `json:"summary,omitempty"`
	CreatedAt    time.Time         `json:"created_at"`
	UpdatedAt    time.Time         `json:"updated_at"`
}

// Summary keys shared by the engine, the service layer and the API.
const (
	SummaryTotalDetections   = "total_detections"
	SummaryHighestConfidence = "highest_confidence"
	SummarySeverityCounts    = "severity_counts"
	SummaryAvgEntropy        = "avg_entropy"
	SummaryMaxEntropy        = "max_entropy"
	SummaryEntropyChunks     = "entropy_chunks"
	SummaryHighEntropyChunks = "high_entropy_chunks"
	SummarySuspiciousEntropy = "suspicious_entropy"
	SummaryDecodeMode        = "decode_mode"
	SummaryCatalogVersion    = "catalog_version"
	SummaryAnalyzerFailures  = "analyzer_failures"
	SummaryProcessingMS      = "processing_ms"
	SummaryError             = "error"
	SummaryFailedAt          = "failed_at"
	SummaryPreviousStatus    = "previous_status"
	SummaryRequeuedAt        = "requeued_at"
)

// ScanResult is the transient outcome of one engine run; also the cached form.
type ScanResult struct {
	Status         Status            `json:"status"`
	Detections     []ThreatDetection `json:"detections"`
	Summary        map[string]any    `json:"summary"`
	ProcessingTime time.Duration     `json:"processing_time"`
}

// HighestConfidence returns the maximum confidence across detections, 0 when none.
func (r *ScanResult) HighestConfidence() float64 {
	max := 0.0
	for _, d := range r.Detections {
		if d.Confidence > max {
			max = d.Confidence
		}
	}
	return max
}
