package models

import "time"

// ActivityStatus tags the severity of an activity log line.
type ActivityStatus string

const (
	ActivityInfo    ActivityStatus = "info"
	ActivitySuccess ActivityStatus = "success"
	ActivityWarning ActivityStatus = "warning"
	ActivityError   ActivityStatus = "error"
)

// ActivityLogModel is one line of an automation session's activity feed.
// Rows are written by the engine webhook handler and by internal status
// transitions, and are immutable once created.
type ActivityLogModel struct {
	Base
	SessionID string         `json:"session_id" gorm:"index;not null"`
	Message   string         `json:"message"    gorm:"type:text;not null"`
	Status    ActivityStatus `json:"status"     gorm:"default:info"`
	Timestamp time.Time      `json:"timestamp"  gorm:"index"`
}

func (ActivityLogModel) TableName() string { return "activity_logs" }
