package model

import "time"

// EmailRecord is envelope metadata for one message, keyed by the
// server-assigned UID. (account, folder, uid) is the incremental-sync dedup
// key: a record is created once on first sight and updated in place after
// that. Message bodies are never persisted; they are fetched on demand.
type EmailRecord struct {
	ID        uint64 `gorm:"primaryKey" json:"id"`
	AccountID uint64 `gorm:"uniqueIndex:idx_account_folder_uid" json:"account_id"`
	Folder    string `gorm:"size:64;default:INBOX;uniqueIndex:idx_account_folder_uid" json:"folder"`
	UID       uint32 `gorm:"column:uid;uniqueIndex:idx_account_folder_uid" json:"uid"`

	MessageID string    `gorm:"size:255;index" json:"message_id"`
	Subject   string    `gorm:"size:512" json:"subject"`
	FromEmail string    `gorm:"size:255;index" json:"from_email"`
	FromName  string    `gorm:"size:255" json:"from_name"`
	ToEmails  string    `gorm:"type:text" json:"to_emails"`
	CcEmails  string    `gorm:"type:text" json:"cc_emails"`
	Date      time.Time `gorm:"index" json:"date"`
	Size      int       `json:"size"`
	Flags     string    `gorm:"type:text" json:"flags"`

	HasAttachments  bool   `json:"has_attachments"`
	AttachmentCount int    `json:"attachment_count"`
	AttachmentNames string `gorm:"type:text" json:"attachment_names"`

	// OrderID links the record to the order extracted from it, if any.
	OrderID *uint64 `gorm:"index" json:"order_id"`

	// Deleted is the soft mark applied when the UID vanishes from the remote
	// folder and the sync job runs with delete_missing.
	Deleted bool `gorm:"default:false" json:"deleted"`

	SyncedAt  time.Time `json:"synced_at"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (EmailRecord) TableName() string { return "email_list" }
