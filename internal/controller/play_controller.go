package controller

import (
	"playstats_backend/internal/repository"
	"playstats_backend/internal/service"
	"playstats_backend/internal/util"
	"playstats_backend/internal/validator"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
)

type PlayController struct {
	SessionService *service.SessionService
	ResultService  *service.ResultService
	LevelRepo      *repository.LevelRepository
	RecordRepo     *repository.RecordRepository
	Now            func() time.Time
}

func NewPlayController(sessionService *service.SessionService, resultService *service.ResultService, levelRepo *repository.LevelRepository, recordRepo *repository.RecordRepository) *PlayController {
	return &PlayController{
		SessionService: sessionService,
		ResultService:  resultService,
		LevelRepo:      levelRepo,
		RecordRepo:     recordRepo,
		Now:            time.Now,
	}
}

type SubmitRequest struct {
	Moves []validator.Direction `json:"moves" binding:"required,min=1,dive,min=1,max=4"`
}

// @Summary 游玩心跳
// @Description 延长当前游玩会话，超过会话窗口则开启新会话
// @Tags 游玩
// @Security BearerAuth
// @Produce json
// @Param id path int true "关卡ID"
// @Success 200 {object} util.Response
// @Router /api/levels/{id}/heartbeat [post]
func (c *PlayController) Heartbeat(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	if user == nil {
		util.Unauthorized(ctx)
		return
	}
	levelID, ok := parseID(ctx)
	if !ok {
		return
	}

	res, err := c.SessionService.RecordHeartbeat(ctx.Request.Context(), user.UserID, levelID, c.Now())
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, res)
}

// @Summary 提交通关结果
// @Tags 游玩
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param id path int true "关卡ID"
// @Param body body SubmitRequest true "移动序列"
// @Success 200 {object} util.Response
// @Failure 400 {object} util.Response
// @Failure 404 {object} util.Response
// @Router /api/levels/{id}/submit [post]
func (c *PlayController) Submit(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	if user == nil {
		util.Unauthorized(ctx)
		return
	}
	levelID, ok := parseID(ctx)
	if !ok {
		return
	}

	var req SubmitRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	res, err := c.ResultService.SubmitResult(ctx.Request.Context(), user.UserID, levelID, req.Moves, c.Now())
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, res)
}

// @Summary 关卡统计
// @Tags 游玩
// @Produce json
// @Param id path int true "关卡ID"
// @Success 200 {object} util.Response
// @Router /api/levels/{id}/stats [get]
func (c *PlayController) Stats(ctx *gin.Context) {
	levelID, ok := parseID(ctx)
	if !ok {
		return
	}
	agg, err := c.LevelRepo.WithTx(c.LevelRepo.DB.WithContext(ctx.Request.Context())).FindAggregates(levelID)
	if repository.IsNotFound(err) {
		util.NotFound(ctx)
		return
	}
	if err != nil {
		util.LogInternalError(ctx, err)
		return
	}
	util.Success(ctx, agg)
}

// @Summary 纪录历史
// @Description 按时间倒序，第一条为当前纪录保持者
// @Tags 游玩
// @Produce json
// @Param id path int true "关卡ID"
// @Success 200 {object} util.Response
// @Router /api/levels/{id}/records [get]
func (c *PlayController) Records(ctx *gin.Context) {
	levelID, ok := parseID(ctx)
	if !ok {
		return
	}
	records, err := c.RecordRepo.WithTx(c.RecordRepo.DB.WithContext(ctx.Request.Context())).ListByLevel(levelID)
	if err != nil {
		util.LogInternalError(ctx, err)
		return
	}
	if len(records) == 0 {
		util.NotFound(ctx)
		return
	}
	util.Success(ctx, records)
}

func parseID(ctx *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(ctx.Param("id"), 10, 64)
	if err != nil || id == 0 {
		util.BadRequest(ctx, "invalid id")
		return 0, false
	}
	return uint(id), true
}
