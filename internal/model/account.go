package model

import "time"

// MailboxAccount is owned by the account-management surface. The sync job
// reads connection and sync settings and writes back LastSyncTime only.
// No secret material is persisted here; passwords are resolved at dial time.
type MailboxAccount struct {
	ID     uint64 `gorm:"primaryKey" json:"id"`
	Email  string `gorm:"size:255;uniqueIndex" json:"email"`
	Host   string `gorm:"size:255" json:"host"`
	Port   int    `gorm:"default:993" json:"port"`
	UseSSL bool   `gorm:"default:true" json:"use_ssl"`

	Folder    string `gorm:"size:64;default:INBOX" json:"folder"`
	AutoSync  bool   `gorm:"default:false;index" json:"auto_sync"`
	BatchSize int    `gorm:"default:50" json:"batch_size"`

	LastSyncTime *time.Time `json:"last_sync_time"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

func (MailboxAccount) TableName() string { return "imap_accounts" }
