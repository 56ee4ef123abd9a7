package controller

import (
	"net/http"
	"playstats_backend/internal/model"
	"playstats_backend/internal/queue"
	"playstats_backend/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"gorm.io/gorm"
)

type HealthController struct {
	DB    *gorm.DB
	Redis *redis.Client
	Queue *queue.Queue
}

func NewHealthController(db *gorm.DB, rdb *redis.Client, q *queue.Queue) *HealthController {
	return &HealthController{DB: db, Redis: rdb, Queue: q}
}

type queueHealth struct {
	Pending    int64 `json:"pending"`
	Processing int64 `json:"processing"`
	Failed     int64 `json:"failed"`
}

// @Summary 健康检查
// @Description 数据库、redis 与统计队列积压
// @Tags 系统
// @Produce json
// @Success 200 {object} util.Response
// @Failure 503 {object} util.Response
// @Router /api/health [get]
func (c *HealthController) HealthCheck(ctx *gin.Context) {
	reqCtx := ctx.Request.Context()
	sqlDB, err := c.DB.DB()
	if err != nil {
		util.InternalServerError(ctx)
		return
	}
	if err := sqlDB.PingContext(reqCtx); err != nil {
		util.Error(ctx, http.StatusServiceUnavailable, "Database unavailable")
		return
	}

	components := gin.H{"database": "up"}
	if c.Redis != nil {
		// redis 只用于跨实例锁，不可用时服务降级运行
		if err := c.Redis.Ping(reqCtx).Err(); err != nil {
			components["redis"] = "down"
		} else {
			components["redis"] = "up"
		}
	}

	body := gin.H{"status": "ok", "components": components}
	if c.Queue != nil {
		depth, err := c.Queue.Depth(reqCtx)
		if err != nil {
			util.LogInternalError(ctx, err)
			return
		}
		body["queue"] = queueHealth{
			Pending:    depth[model.QueueStatePending],
			Processing: depth[model.QueueStateProcessing],
			Failed:     depth[model.QueueStateFailed],
		}
	}

	util.Success(ctx, body)
}
