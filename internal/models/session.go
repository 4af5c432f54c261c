package models

import "time"

// SessionStatus is the lifecycle state of an automation session.
type SessionStatus string

const (
	SessionPending   SessionStatus = "pending"
	SessionRunning   SessionStatus = "running"
	SessionCompleted SessionStatus = "completed"
	SessionFailed    SessionStatus = "failed"
	SessionPaused    SessionStatus = "paused"
)

// SessionModel is one browser-automation task tracked from creation through
// terminal status. Rows are append-only history; nothing deletes them.
type SessionModel struct {
	Base
	UserID          string        `json:"user_id"     gorm:"index;not null"`
	TaskDescription string        `json:"task_description" gorm:"type:text;not null"`
	Status          SessionStatus `json:"status"      gorm:"index;default:pending"`
	Model           string        `json:"model"`
	StartedAt       *time.Time    `json:"started_at"`
	EndedAt         *time.Time    `json:"ended_at"`
	DurationSeconds int           `json:"duration_seconds"`
	CurrentURL      string        `json:"current_url" gorm:"type:text"`

	Activities []ActivityLogModel `json:"activities,omitempty" gorm:"foreignKey:SessionID"`
}

func (SessionModel) TableName() string { return "sessions" }
