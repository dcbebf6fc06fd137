package model

import "time"

type SyncLogStatus string

const (
	SyncSuccess SyncLogStatus = "success"
	SyncPartial SyncLogStatus = "partial"
	SyncFailed  SyncLogStatus = "failed"
)

// SyncLog is one append-only row per mailbox sync pass over one account.
type SyncLog struct {
	ID        uint64 `gorm:"primaryKey" json:"id"`
	AccountID uint64 `gorm:"index" json:"account_id"`
	Folder    string `gorm:"size:64" json:"folder"`

	TotalEmails   int `json:"total_emails"`
	NewEmails     int `json:"new_emails"`
	UpdatedEmails int `json:"updated_emails"`
	DeletedEmails int `json:"deleted_emails"`

	Status       SyncLogStatus `gorm:"size:16" json:"status"`
	ErrorMessage string        `gorm:"type:text" json:"error_message"`

	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	DurationMS int64     `json:"duration_ms"`

	CreatedAt time.Time `gorm:"index" json:"created_at"`
}

func (SyncLog) TableName() string { return "email_sync_logs" }
