package api

import (
	"mailops/internal/metrics"
	"mailops/internal/middleware"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

func RegisterRoutes(taskHandler *TaskHandler, rdb *redis.Client, requestsPerSecond int) *gin.Engine {
	r := gin.New()

	r.Use(
		middleware.CorsMiddleware(),
		middleware.RequestID(),
		middleware.GinZapLogger(),
		middleware.GinZapRecovery(),
		middleware.HttpMiddleware(),
	)
	r.SetTrustedProxies(nil)

	r.GET("/health", taskHandler.HealthCheck)
	r.GET("/metrics", gin.WrapH(metrics.Handler()))

	// Rate limiter for mutating operations only.
	writeLimiter := middleware.RateLimitMiddleware(rdb, requestsPerSecond)

	v1 := r.Group("/v1")
	{
		v1.POST("/task", writeLimiter, taskHandler.CreateTask)
		v1.GET("/tasks", taskHandler.ListTasks)
		v1.GET("/tasks/stats", taskHandler.Stats)
		v1.GET("/task/:id", taskHandler.GetTask)
		v1.PUT("/task/:id", writeLimiter, taskHandler.UpdateTask)
		v1.DELETE("/task/:id", writeLimiter, taskHandler.DeleteTask)
		v1.POST("/task/:id/run", writeLimiter, taskHandler.RunTask)
		v1.GET("/task/:id/executions", taskHandler.ListExecutions)
		v1.POST("/execution/:execution_id/cancel", writeLimiter, taskHandler.CancelExecution)

		v1.GET("/accounts", taskHandler.ListAccounts)
		v1.GET("/account/:id/synclogs", taskHandler.ListSyncLogs)
	}
	return r
}
