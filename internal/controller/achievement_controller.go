package controller

import (
	"playstats_backend/internal/service"
	"playstats_backend/internal/util"
	"strconv"

	"github.com/gin-gonic/gin"
)

type AchievementController struct {
	AchievementService *service.AchievementService
}

func NewAchievementController(achievementService *service.AchievementService) *AchievementController {
	return &AchievementController{AchievementService: achievementService}
}

// @Summary 获取用户成就
// @Description 当前用户的分数、已获得成就以及下一个分数阈值
// @Tags 成就系统
// @Produce json
// @Security BearerAuth
// @Success 200 {object} util.Response
// @Router /api/achievements [get]
func (c *AchievementController) GetUserAchievements(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	if user == nil {
		util.Unauthorized(ctx)
		return
	}

	progress, err := c.AchievementService.Progress(ctx.Request.Context(), user.UserID)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}

	util.Success(ctx, progress)
}

// @Summary 获取排行榜
// @Description 按完成关卡数排序，同分按持有纪录数
// @Tags 成就系统
// @Produce json
// @Param limit query int false "返回数量" default(10)
// @Success 200 {object} util.Response
// @Router /api/leaderboard [get]
func (c *AchievementController) GetLeaderboard(ctx *gin.Context) {
	limit, err := strconv.Atoi(ctx.DefaultQuery("limit", "10"))
	if err != nil {
		util.BadRequest(ctx, "limit must be an integer")
		return
	}

	leaderboard, err := c.AchievementService.Leaderboard(ctx.Request.Context(), limit)
	if err != nil {
		util.LogInternalError(ctx, err)
		return
	}

	util.Success(ctx, leaderboard)
}
