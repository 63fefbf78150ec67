package tracker

import (
	"time"

	"gorm.io/datatypes"
)

// UpdateType tags the kind of accountability-case event an Update records.
type UpdateType string

const (
	CCSPublished        UpdateType = "CCS_PUBLISHED"
	ComplaintFiled      UpdateType = "COMPLAINT_FILED"
	InvestigationClosed UpdateType = "INVESTIGATION_CLOSED"
)

// Label returns the human-readable form of the update type.
func (t UpdateType) Label() string {
	switch t {
	case CCSPublished:
		return "Closed Case Summary Published"
	case ComplaintFiled:
		return "Complaint Filed"
	case InvestigationClosed:
		return "Investigation Closed"
	}
	return string(t)
}

// Update is one canonical case event. Rows are append-only; nothing in the
// refresh engine mutates or deletes them after persist.
type Update struct {
	ID uint `json:"id" gorm:"primaryKey;column:id"`

	CreateDate time.Time `json:"create_date" gorm:"column:create_date"` // time of refresh
	EventDate  time.Time `json:"event_date" gorm:"column:event_date"`   // time the event happened per the source

	Type        UpdateType                  `json:"type" gorm:"column:type"`
	Officers    datatypes.JSONSlice[string] `json:"officers" gorm:"column:officers"`
	Allegations datatypes.JSONSlice[string] `json:"allegations,omitempty" gorm:"column:allegations"` // new complaints may not have allegations yet
	URL         string                      `json:"url,omitempty" gorm:"column:url"`

	CaseNum     string `json:"case_num" gorm:"column:case_num"`
	Disposition string `json:"disposition,omitempty" gorm:"column:disposition"`
}

func (Update) TableName() string {
	return "updates"
}

type RefreshStatus string

const (
	RefreshStarted   RefreshStatus = "STARTED"
	RefreshCompleted RefreshStatus = "COMPLETED"
	RefreshFailed    RefreshStatus = "FAILED"
)

// Refresh is one audit record per refresh attempt. The three watermark
// columns hold the latest event date incorporated per source; they only
// ever move forward.
type Refresh struct {
	ID      uint          `json:"id" gorm:"primaryKey;column:id"`
	Status  RefreshStatus `json:"status" gorm:"column:status"`
	Updates int           `json:"updates" gorm:"column:updates"`

	// Used to decide whether the next refresh is due.
	RefreshDate time.Time `json:"refresh_date" gorm:"column:refresh_date"`

	ClosedCaseSummaryLastUpdated   *time.Time `json:"closed_case_summary_last_updated,omitempty" gorm:"column:closed_case_summary_last_updated"`
	ComplaintFiledLastUpdated      *time.Time `json:"complaint_filed_last_updated,omitempty" gorm:"column:complaint_filed_last_updated"`
	InvestigationClosedLastUpdated *time.Time `json:"investigation_closed_last_updated,omitempty" gorm:"column:investigation_closed_last_updated"`
}

func (Refresh) TableName() string {
	return "refreshes"
}

// Watermark returns the per-source high-water mark for an update type.
func (r *Refresh) Watermark(t UpdateType) *time.Time {
	switch t {
	case CCSPublished:
		return r.ClosedCaseSummaryLastUpdated
	case ComplaintFiled:
		return r.ComplaintFiledLastUpdated
	case InvestigationClosed:
		return r.InvestigationClosedLastUpdated
	}
	return nil
}

// SetWatermark records the per-source high-water mark for an update type.
func (r *Refresh) SetWatermark(t UpdateType, v *time.Time) {
	switch t {
	case CCSPublished:
		r.ClosedCaseSummaryLastUpdated = v
	case ComplaintFiled:
		r.ComplaintFiledLastUpdated = v
	case InvestigationClosed:
		r.InvestigationClosedLastUpdated = v
	}
}
