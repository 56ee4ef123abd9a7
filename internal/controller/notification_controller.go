package controller

import (
	"playstats_backend/internal/repository"
	"playstats_backend/internal/util"

	"github.com/gin-gonic/gin"
)

type NotificationController struct {
	NotificationRepo *repository.NotificationRepository
}

func NewNotificationController(repo *repository.NotificationRepository) *NotificationController {
	return &NotificationController{NotificationRepo: repo}
}

type MarkReadRequest struct {
	IDs []uint `json:"ids" binding:"required,min=1"`
}

// @Summary 我的通知
// @Tags 通知
// @Security BearerAuth
// @Produce json
// @Success 200 {object} util.Response
// @Router /api/notifications [get]
func (c *NotificationController) List(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	if user == nil {
		util.Unauthorized(ctx)
		return
	}
	notes, err := c.NotificationRepo.WithTx(c.NotificationRepo.DB.WithContext(ctx.Request.Context())).FindByUserID(user.UserID)
	if err != nil {
		util.LogInternalError(ctx, err)
		return
	}
	util.Success(ctx, notes)
}

// @Summary 标记通知已读
// @Tags 通知
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param body body MarkReadRequest true "通知ID"
// @Success 200 {object} util.Response
// @Router /api/notifications/read [post]
func (c *NotificationController) MarkRead(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	if user == nil {
		util.Unauthorized(ctx)
		return
	}
	var req MarkReadRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}
	n, err := c.NotificationRepo.WithTx(c.NotificationRepo.DB.WithContext(ctx.Request.Context())).MarkRead(user.UserID, req.IDs)
	if err != nil {
		util.LogInternalError(ctx, err)
		return
	}
	util.Success(ctx, gin.H{"updated": n})
}
