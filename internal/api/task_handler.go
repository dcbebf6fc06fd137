package api

import (
	"errors"
	"strconv"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"mailops/internal/clock"
	"mailops/internal/cron"
	"mailops/internal/dto/req"
	"mailops/internal/dto/resp"
	"mailops/internal/model"
	"mailops/internal/repository"
	"mailops/internal/scheduler"
)

type TaskHandler struct {
	db         *gorm.DB
	tasks      repository.TaskInterface
	executions repository.ExecutionInterface
	accounts   repository.AccountInterface
	syncLogs   repository.SyncLogInterface
	dispatcher *scheduler.Dispatcher
	clk        clock.Clock
}

func NewTaskHandler(
	db *gorm.DB,
	tasks repository.TaskInterface,
	executions repository.ExecutionInterface,
	accounts repository.AccountInterface,
	syncLogs repository.SyncLogInterface,
	dispatcher *scheduler.Dispatcher,
	clk clock.Clock,
) *TaskHandler {
	return &TaskHandler{
		db:         db,
		tasks:      tasks,
		executions: executions,
		accounts:   accounts,
		syncLogs:   syncLogs,
		dispatcher: dispatcher,
		clk:        clk,
	}
}

func (h *TaskHandler) HealthCheck(c *gin.Context) {
	sqlDB, err := h.db.DB()
	if err == nil {
		err = sqlDB.PingContext(c.Request.Context())
	}
	if err != nil {
		c.JSON(503, gin.H{"status": "unhealthy", "error": err.Error()})
		return
	}
	c.JSON(200, gin.H{"status": "ok"})
}

func (h *TaskHandler) CreateTask(c *gin.Context) {
	var r req.CreateTaskRequest
	if err := c.ShouldBindJSON(&r); err != nil {
		c.JSON(400, gin.H{"error": "JSON format error"})
		return
	}

	tz := r.Timezone
	if tz == "" {
		tz = "UTC"
	}
	sched, err := cron.ParseInLocation(r.CronExpression, tz)
	if err != nil {
		c.JSON(400, gin.H{"error": "invalid cron expression: " + err.Error()})
		return
	}

	task := &model.Task{
		Name:               r.Name,
		Description:        r.Description,
		Type:               model.TaskType(r.Type),
		CronExpression:     r.CronExpression,
		Timezone:           tz,
		Parameters:         r.Parameters,
		Status:             model.TaskEnabled,
		IsActive:           true,
		TimeoutSeconds:     r.TimeoutSeconds,
		MaxRetries:         r.MaxRetries,
		RetryInterval:      r.RetryInterval,
		NotifyOnFailure:    true,
		NotificationEmails: r.NotificationEmails,
		Priority:           r.Priority,
	}
	if r.NotifyOnFailure != nil {
		task.NotifyOnFailure = *r.NotifyOnFailure
	}
	if next, err := sched.Next(h.clk.Now()); err == nil {
		task.NextRunAt = &next
	}

	if err := h.tasks.Create(c.Request.Context(), task); err != nil {
		c.JSON(500, gin.H{"error": err.Error()})
		return
	}
	c.JSON(200, task)
}

func (h *TaskHandler) UpdateTask(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(400, gin.H{"error": "invalid task id"})
		return
	}
	var r req.UpdateTaskRequest
	if err := c.ShouldBindJSON(&r); err != nil {
		c.JSON(400, gin.H{"error": "JSON format error"})
		return
	}

	task, err := h.tasks.GetByID(c.Request.Context(), id)
	if err != nil {
		c.JSON(500, gin.H{"error": err.Error()})
		return
	}
	if task == nil {
		c.JSON(404, gin.H{"error": "task not found"})
		return
	}

	if r.Description != nil {
		task.Description = *r.Description
	}
	if r.Timezone != nil {
		task.Timezone = *r.Timezone
	}
	if r.CronExpression != nil {
		task.CronExpression = *r.CronExpression
	}
	if r.CronExpression != nil || r.Timezone != nil {
		sched, err := cron.ParseInLocation(task.CronExpression, task.Timezone)
		if err != nil {
			c.JSON(400, gin.H{"error": "invalid cron expression: " + err.Error()})
			return
		}
		if next, err := sched.Next(h.clk.Now()); err == nil {
			task.NextRunAt = &next
		}
	}
	if r.Parameters != nil {
		task.Parameters = *r.Parameters
	}
	if r.Status != nil {
		task.Status = model.TaskStatus(*r.Status)
	}
	if r.IsActive != nil {
		task.IsActive = *r.IsActive
	}
	if r.TimeoutSeconds != nil {
		task.TimeoutSeconds = *r.TimeoutSeconds
	}
	if r.MaxRetries != nil {
		task.MaxRetries = *r.MaxRetries
	}
	if r.RetryInterval != nil {
		task.RetryInterval = *r.RetryInterval
	}
	if r.NotifyOnFailure != nil {
		task.NotifyOnFailure = *r.NotifyOnFailure
	}
	if r.NotificationEmails != nil {
		task.NotificationEmails = *r.NotificationEmails
	}
	if r.Priority != nil {
		task.Priority = *r.Priority
	}

	if err := h.tasks.Update(c.Request.Context(), task); err != nil {
		c.JSON(500, gin.H{"error": err.Error()})
		return
	}
	c.JSON(200, task)
}

func (h *TaskHandler) ListTasks(c *gin.Context) {
	tasks, err := h.tasks.List(c.Request.Context())
	if err != nil {
		c.JSON(500, gin.H{"error": err.Error()})
		return
	}
	c.JSON(200, tasks)
}

func (h *TaskHandler) GetTask(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(400, gin.H{"error": "invalid task id"})
		return
	}
	task, err := h.tasks.GetByID(c.Request.Context(), id)
	if err != nil {
		c.JSON(500, gin.H{"error": err.Error()})
		return
	}
	if task == nil {
		c.JSON(404, gin.H{"error": "task not found"})
		return
	}
	c.JSON(200, task)
}

func (h *TaskHandler) DeleteTask(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(400, gin.H{"error": "invalid task id"})
		return
	}
	if err := h.tasks.SoftDelete(c.Request.Context(), id); err != nil {
		c.JSON(500, gin.H{"error": err.Error()})
		return
	}
	c.JSON(200, gin.H{"deleted": id})
}

// RunTask submits a manual execution, bypassing the schedule but not the
// single-flight guarantee.
func (h *TaskHandler) RunTask(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(400, gin.H{"error": "invalid task id"})
		return
	}
	task, err := h.tasks.GetByID(c.Request.Context(), id)
	if err != nil {
		c.JSON(500, gin.H{"error": err.Error()})
		return
	}
	if task == nil {
		c.JSON(404, gin.H{"error": "task not found"})
		return
	}

	execID, err := h.dispatcher.Submit(*task, model.TriggerManual, nil)
	if errors.Is(err, scheduler.ErrAlreadyRunning) {
		c.JSON(409, gin.H{"error": "task already running"})
		return
	}
	if err != nil {
		c.JSON(500, gin.H{"error": err.Error()})
		return
	}
	c.JSON(200, resp.RunTaskResponse{ExecutionID: execID})
}

func (h *TaskHandler) CancelExecution(c *gin.Context) {
	executionID := c.Param("execution_id")
	if err := h.dispatcher.Cancel(executionID); err != nil {
		c.JSON(404, gin.H{"error": err.Error()})
		return
	}
	c.JSON(200, resp.CancelExecutionResponse{ExecutionID: executionID, Cancelled: true})
}

func (h *TaskHandler) ListExecutions(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(400, gin.H{"error": "invalid task id"})
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	execs, err := h.executions.ListByTask(c.Request.Context(), id, limit)
	if err != nil {
		c.JSON(500, gin.H{"error": err.Error()})
		return
	}
	c.JSON(200, execs)
}

func (h *TaskHandler) Stats(c *gin.Context) {
	stats, err := h.tasks.Stats(c.Request.Context())
	if err != nil {
		c.JSON(500, gin.H{"error": err.Error()})
		return
	}
	c.JSON(200, resp.StatsResponse{
		TotalTasks:    stats.TotalTasks,
		EnabledTasks:  stats.EnabledTasks,
		DisabledTasks: stats.DisabledTasks,
		RunningTasks:  stats.RunningTasks,
		ErrorTasks:    stats.ErrorTasks,
		InFlight:      h.dispatcher.RunningCount(),
	})
}

func (h *TaskHandler) ListAccounts(c *gin.Context) {
	accounts, err := h.accounts.List(c.Request.Context())
	if err != nil {
		c.JSON(500, gin.H{"error": err.Error()})
		return
	}
	c.JSON(200, accounts)
}

func (h *TaskHandler) ListSyncLogs(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(400, gin.H{"error": "invalid account id"})
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	logs, err := h.syncLogs.ListByAccount(c.Request.Context(), id, limit)
	if err != nil {
		c.JSON(500, gin.H{"error": err.Error()})
		return
	}
	c.JSON(200, logs)
}
