package models

import "time"

// Event bus models
type Event struct {
	ID        string                 `json:"id"`
	Type      string                 `json:"type"` // refresh.completed, refresh.failed, updates.recorded
	Source    string                 `json:"source"`
	Data      map[string]interface{} `json:"data"`
	Timestamp time.Time              `json:"timestamp"`
	Metadata  map[string]string      `json:"metadata,omitempty"`
}

// CaseResult is the reduction of every case-detail row returned for one
// case number: deduplicated officer and allegation sets plus a single
// disposition, or "Partially Sustained" when the rows disagree.
type CaseResult struct {
	CaseNum     string   `json:"case_num"`
	Officers    []string `json:"officers"`
	Allegations []string `json:"allegations"`
	Disposition string   `json:"disposition"`
}
