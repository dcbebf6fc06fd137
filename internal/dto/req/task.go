package req

type CreateTaskRequest struct {
	Name           string `json:"name" binding:"required"`
	Description    string `json:"description"`
	Type           string `json:"type" binding:"required"`
	CronExpression string `json:"cron_expression" binding:"required"`
	Timezone       string `json:"timezone"`
	Parameters     string `json:"parameters"`
	TimeoutSeconds int    `json:"timeout_seconds"`
	MaxRetries     int    `json:"max_retries"`
	RetryInterval  int    `json:"retry_interval"`

	NotifyOnFailure    *bool  `json:"notify_on_failure"`
	NotificationEmails string `json:"notification_emails"`

	Priority int `json:"priority"`
}

type UpdateTaskRequest struct {
	Description    *string `json:"description"`
	CronExpression *string `json:"cron_expression"`
	Timezone       *string `json:"timezone"`
	Parameters     *string `json:"parameters"`
	Status         *string `json:"status"`
	IsActive       *bool   `json:"is_active"`
	TimeoutSeconds *int    `json:"timeout_seconds"`
	MaxRetries     *int    `json:"max_retries"`
	RetryInterval  *int    `json:"retry_interval"`

	NotifyOnFailure    *bool   `json:"notify_on_failure"`
	NotificationEmails *string `json:"notification_emails"`

	Priority *int `json:"priority"`
}

type CancelExecutionRequest struct {
	ExecutionID string `json:"execution_id" binding:"required"`
}
