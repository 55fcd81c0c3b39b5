package domain

import "time"

type DocumentStatus string

const (
	StatusUploaded         DocumentStatus = "uploaded"
	StatusProcessing       DocumentStatus = "processing"
	StatusAnalysisComplete DocumentStatus = "analysis_complete"
	StatusFailed           DocumentStatus = "failed"
	StatusExtractionFailed DocumentStatus = "extraction_failed"
	StatusPoorQuality      DocumentStatus = "poor_quality"
)

// AllStatuses is the closed set of persistable document statuses.
var AllStatuses = []DocumentStatus{
	StatusUploaded,
	StatusProcessing,
	StatusAnalysisComplete,
	StatusFailed,
	StatusExtractionFailed,
	StatusPoorQuality,
}

func (s DocumentStatus) Valid() bool {
	for _, known := range AllStatuses {
		if s == known {
			return true
		}
	}
	return false
}

// Terminal reports whether a run has ended in this status. Terminal statuses
// still admit a new processing transition when re-analysis is requested.
func (s DocumentStatus) Terminal() bool {
	switch s {
	case StatusAnalysisComplete, StatusFailed, StatusExtractionFailed, StatusPoorQuality:
		return true
	default:
		return false
	}
}

// CanStartAnalysis decides whether a start-analysis request is admissible
// from the given status. A document that is already processing is rejected
// outright; analysis_complete requires an explicit force flag so a finished
// result is never discarded by accident.
func CanStartAnalysis(s DocumentStatus, force bool) bool {
	switch s {
	case StatusProcessing:
		return false
	case StatusAnalysisComplete:
		return force
	default:
		return true
	}
}

type Document struct {
	ID              string          `json:"id"`
	CaseID          string          `json:"case_id"`
	FileType        string          `json:"file_type"`
	FileSize        int64           `json:"file_size"`
	StorageKey      string          `json:"storage_key"`
	Status          DocumentStatus  `json:"status"`
	CancelRequested bool            `json:"-"`
	Analysis        *AnalysisResult `json:"analysis_result"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}
