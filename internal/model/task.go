package model

import (
	"encoding/json"
	"strings"
	"time"

	"gorm.io/gorm"
)

type TaskType string

const (
	TaskTypeMailboxSync       TaskType = "mailbox_sync"
	TaskTypeOrderSync         TaskType = "order_sync"
	TaskTypeOrderStatusUpdate TaskType = "order_status_update"
	TaskTypeCleanup           TaskType = "cleanup"
	TaskTypeBackup            TaskType = "backup"
	TaskTypeCustom            TaskType = "custom"
)

type TaskStatus string

const (
	TaskEnabled  TaskStatus = "enabled"
	TaskDisabled TaskStatus = "disabled"
	TaskRunning  TaskStatus = "running"
	TaskError    TaskStatus = "error"
)

// Task is one registered unit of recurring work. NextRunAt is written only by
// the scheduler's claim step; the counters and Last* timestamps only by the
// dispatcher after a run reaches a terminal state.
type Task struct {
	ID             uint64     `gorm:"primaryKey" json:"id"`
	Name           string     `gorm:"size:128;uniqueIndex" json:"name"`
	Description    string     `gorm:"size:255" json:"description"`
	Type           TaskType   `gorm:"size:32;default:custom;index" json:"type"`
	CronExpression string     `gorm:"size:64" json:"cron_expression"`
	Timezone       string     `gorm:"size:64;default:UTC" json:"timezone"`
	Command        string     `gorm:"size:255" json:"command"`
	Parameters     string     `gorm:"type:text" json:"parameters"`
	Status         TaskStatus `gorm:"size:16;default:enabled;index" json:"status"`
	IsActive       bool       `gorm:"default:true" json:"is_active"`

	RunCount      int64      `json:"run_count"`
	SuccessCount  int64      `json:"success_count"`
	ErrorCount    int64      `json:"error_count"`
	LastRunAt     *time.Time `json:"last_run_at"`
	LastSuccessAt *time.Time `json:"last_success_at"`
	LastErrorAt   *time.Time `json:"last_error_at"`
	NextRunAt     *time.Time `gorm:"index" json:"next_run_at"`

	TimeoutSeconds int `gorm:"default:300" json:"timeout_seconds"`
	MaxRetries     int `gorm:"default:3" json:"max_retries"`
	RetryInterval  int `gorm:"default:60" json:"retry_interval"`

	NotifyOnSuccess    bool   `json:"notify_on_success"`
	NotifyOnFailure    bool   `gorm:"default:true" json:"notify_on_failure"`
	NotificationEmails string `gorm:"type:text" json:"notification_emails"`

	Priority int `gorm:"default:5" json:"priority"`

	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

func (Task) TableName() string { return "cron_tasks" }

// Timeout returns the wall-clock budget for a single execution.
func (t *Task) Timeout() time.Duration {
	if t.TimeoutSeconds <= 0 {
		return 5 * time.Minute
	}
	return time.Duration(t.TimeoutSeconds) * time.Second
}

// RetryDelay returns the pause before a retry execution is submitted.
func (t *Task) RetryDelay() time.Duration {
	if t.RetryInterval <= 0 {
		return time.Minute
	}
	return time.Duration(t.RetryInterval) * time.Second
}

// Recipients decodes NotificationEmails, stored either as a JSON array or a
// comma-separated list.
func (t *Task) Recipients() []string {
	raw := strings.TrimSpace(t.NotificationEmails)
	if raw == "" {
		return nil
	}
	var emails []string
	if err := json.Unmarshal([]byte(raw), &emails); err == nil {
		return emails
	}
	for _, e := range strings.Split(raw, ",") {
		if e = strings.TrimSpace(e); e != "" {
			emails = append(emails, e)
		}
	}
	return emails
}
