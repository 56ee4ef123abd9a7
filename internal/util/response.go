package util

import (
	"errors"
	"net/http"
	"playstats_backend/pkg/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Response 统一响应结构
type Response struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func Success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Response{
		Code:    http.StatusOK,
		Message: "success",
		Data:    data,
	})
}

func Created(c *gin.Context, data interface{}) {
	c.JSON(http.StatusCreated, Response{
		Code:    http.StatusCreated,
		Message: "created",
		Data:    data,
	})
}

// Error 写出错误并中止后续 handler，中间件里调用后无需再 Abort
func Error(c *gin.Context, code int, message string) {
	c.AbortWithStatusJSON(code, Response{
		Code:    code,
		Message: message,
	})
}

func Unauthorized(c *gin.Context) {
	Error(c, http.StatusUnauthorized, "Unauthorized")
}

func Forbidden(c *gin.Context) {
	Error(c, http.StatusForbidden, "Forbidden")
}

func BadRequest(c *gin.Context, message string) {
	Error(c, http.StatusBadRequest, message)
}

func NotFound(c *gin.Context) {
	Error(c, http.StatusNotFound, "Resource not found")
}

// ServiceUnavailable 用于可重试的事务冲突，客户端稍后整体重试即可
func ServiceUnavailable(c *gin.Context) {
	c.Header("Retry-After", "1")
	Error(c, http.StatusServiceUnavailable, "Service temporarily unavailable, please retry")
}

func InternalServerError(c *gin.Context) {
	Error(c, http.StatusInternalServerError, "Internal server error")
}

func LogInternalError(c *gin.Context, err error) {
	logger.Log.Error("Internal server error",
		zap.String("method", c.Request.Method),
		zap.String("route", c.FullPath()),
		zap.Error(err))
	_ = c.Error(err)
	InternalServerError(c)
}

// HandleError 把领域错误翻译成 HTTP 状态码
func HandleError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrLevelNotFound), errors.Is(err, ErrMessageNotFound), errors.Is(err, ErrUserNotFound):
		Error(c, http.StatusNotFound, err.Error())
	case errors.Is(err, ErrPermissionDenied):
		Forbidden(c)
	case IsValidation(err), errors.Is(err, ErrMessageNotFailed):
		BadRequest(c, err.Error())
	case errors.Is(err, ErrRetryable):
		logger.Log.Warn("Retryable failure", zap.Error(err))
		ServiceUnavailable(c)
	default:
		LogInternalError(c, err)
	}
}
