package model

import "time"

type TriggerType string

const (
	TriggerScheduled TriggerType = "scheduled"
	TriggerManual    TriggerType = "manual"
	TriggerRetry     TriggerType = "retry"
)

type ExecutionStatus string

const (
	ExecRunning   ExecutionStatus = "running"
	ExecSuccess   ExecutionStatus = "success"
	ExecError     ExecutionStatus = "error"
	ExecTimeout   ExecutionStatus = "timeout"
	ExecCancelled ExecutionStatus = "cancelled"
)

// Terminal reports whether the status is final. A terminal execution row is
// immutable.
func (s ExecutionStatus) Terminal() bool {
	return s != ExecRunning
}

// Retryable reports whether the outcome feeds the retry controller.
func (s ExecutionStatus) Retryable() bool {
	return s == ExecError || s == ExecTimeout
}

// Execution is one concrete run of a Task. Created in running state by the
// dispatcher and transitioned exactly once to a terminal state.
type Execution struct {
	ID          uint64          `gorm:"primaryKey" json:"id"`
	ExecutionID string          `gorm:"size:36;uniqueIndex" json:"execution_id"`
	TaskID      uint64          `gorm:"index" json:"task_id"`
	TaskName    string          `gorm:"size:128" json:"task_name"`
	TriggerType TriggerType     `gorm:"size:16;default:scheduled" json:"trigger_type"`
	Status      ExecutionStatus `gorm:"size:16;index" json:"status"`

	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at"`
	DurationMS int64      `json:"duration_ms"`

	ExitCode     int    `json:"exit_code"`
	Output       string `gorm:"type:text" json:"output"`
	ErrorOutput  string `gorm:"type:text" json:"error_output"`
	ErrorMessage string `gorm:"size:1024" json:"error_message"`

	RetryCount  int     `json:"retry_count"`
	IsRetry     bool    `json:"is_retry"`
	ParentLogID *uint64 `gorm:"index" json:"parent_log_id"`

	MemoryUsageMB  float64 `json:"memory_usage_mb"`
	ServerHostname string  `gorm:"size:128" json:"server_hostname"`
	ProcessID      int     `json:"process_id"`

	CreatedAt time.Time `gorm:"index" json:"created_at"`
}

func (Execution) TableName() string { return "cron_task_logs" }
