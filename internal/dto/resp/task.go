package resp

type RunTaskResponse struct {
	ExecutionID string `json:"execution_id"`
}

type CancelExecutionResponse struct {
	ExecutionID string `json:"execution_id"`
	Cancelled   bool   `json:"cancelled"`
}

type StatsResponse struct {
	TotalTasks    int64 `json:"total_tasks"`
	EnabledTasks  int64 `json:"enabled_tasks"`
	DisabledTasks int64 `json:"disabled_tasks"`
	RunningTasks  int64 `json:"running_tasks"`
	ErrorTasks    int64 `json:"error_tasks"`
	InFlight      int   `json:"in_flight"`
}
