package controller

import (
	"encoding/json"
	"playstats_backend/internal/queue"
	"playstats_backend/internal/service"
	"playstats_backend/internal/util"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
)

type QueueController struct {
	Queue            *queue.Queue
	AggregateService *service.AggregateService
}

func NewQueueController(q *queue.Queue, aggregateService *service.AggregateService) *QueueController {
	return &QueueController{Queue: q, AggregateService: aggregateService}
}

type EnqueueRequest struct {
	Type      string          `json:"type" binding:"required"`
	Payload   json.RawMessage `json:"payload"`
	DedupeKey string          `json:"dedupeKey"`
	RunAt     *time.Time      `json:"runAt"`
}

// @Summary 写入队列消息
// @Tags 队列管理
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param body body EnqueueRequest true "消息"
// @Success 201 {object} util.Response
// @Router /api/admin/queue [post]
func (c *QueueController) Enqueue(ctx *gin.Context) {
	var req EnqueueRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}
	if _, ok := c.Queue.Registry.Get(req.Type); !ok {
		util.BadRequest(ctx, "unknown message type")
		return
	}

	opts := queue.EnqueueOptions{DedupeKey: req.DedupeKey}
	if req.RunAt != nil {
		opts.RunAt = *req.RunAt
	}
	payload := req.Payload
	if len(payload) == 0 {
		payload = json.RawMessage("{}")
	}

	id, err := c.Queue.Enqueue(ctx.Request.Context(), req.Type, payload, opts)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Created(ctx, gin.H{"id": id})
}

// @Summary 执行一次队列扫描
// @Description 供外部调度器按固定节奏调用
// @Tags 队列管理
// @Security BearerAuth
// @Produce json
// @Success 200 {object} util.Response
// @Router /api/admin/queue/sweep [post]
func (c *QueueController) Sweep(ctx *gin.Context) {
	res, err := c.Queue.RunSweep(ctx.Request.Context())
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, res)
}

// @Summary 获取队列消息
// @Tags 队列管理
// @Security BearerAuth
// @Produce json
// @Param id path string true "消息ID"
// @Success 200 {object} util.Response
// @Router /api/admin/queue/{id} [get]
func (c *QueueController) Get(ctx *gin.Context) {
	msg, err := c.Queue.Get(ctx.Request.Context(), ctx.Param("id"))
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, msg)
}

// @Summary 失败消息列表
// @Tags 队列管理
// @Security BearerAuth
// @Produce json
// @Param limit query int false "数量" default(50)
// @Success 200 {object} util.Response
// @Router /api/admin/queue/failed [get]
func (c *QueueController) ListFailed(ctx *gin.Context) {
	limit, _ := strconv.Atoi(ctx.DefaultQuery("limit", "50"))
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	msgs, err := c.Queue.ListFailed(ctx.Request.Context(), limit)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, msgs)
}

// @Summary 重放失败消息
// @Tags 队列管理
// @Security BearerAuth
// @Produce json
// @Param id path string true "消息ID"
// @Success 200 {object} util.Response
// @Router /api/admin/queue/{id}/replay [post]
func (c *QueueController) Replay(ctx *gin.Context) {
	if err := c.Queue.Replay(ctx.Request.Context(), ctx.Param("id")); err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, gin.H{"id": ctx.Param("id")})
}

// @Summary 重算关卡聚合
// @Description 默认同步执行；async=true 时写入队列
// @Tags 队列管理
// @Security BearerAuth
// @Produce json
// @Param id path int true "关卡ID"
// @Param async query bool false "异步执行"
// @Success 200 {object} util.Response
// @Router /api/admin/levels/{id}/recompute [post]
func (c *QueueController) Recompute(ctx *gin.Context) {
	levelID, ok := parseID(ctx)
	if !ok {
		return
	}

	if ctx.Query("async") == "true" {
		id, err := c.AggregateService.EnqueueRecompute(ctx.Request.Context(), levelID)
		if err != nil {
			util.HandleError(ctx, err)
			return
		}
		util.Success(ctx, gin.H{"id": id})
		return
	}

	agg, err := c.AggregateService.Recompute(ctx.Request.Context(), levelID)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, agg)
}
