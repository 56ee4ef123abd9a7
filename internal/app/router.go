package app

import (
	"playstats_backend/internal/config"
	"playstats_backend/internal/middleware"
	"playstats_backend/internal/model"
	"playstats_backend/internal/util"
	"playstats_backend/pkg/monitoring"
	"playstats_backend/pkg/security"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
)

func (a *App) registerRoutes(router *gin.Engine, c *controllers, repos *repositories, cfg *config.Config) {
	router.GET("/metrics", monitoring.PrometheusHandler())

	// 1. 公共路由(无需登录)
	public := router.Group("/api")
	{
		public.GET("/health", c.health.HealthCheck)
		public.GET("/levels/:id/stats", c.play.Stats)
		public.GET("/levels/:id/records", c.play.Records)
		public.GET("/leaderboard", c.achievement.GetLeaderboard)
	}

	auth := router.Group("/api")
	auth.Use(middleware.AuthMiddleware(cfg), middleware.ActivityMiddleware(repos.user))
	{
		auth.GET("/achievements", c.achievement.GetUserAchievements)
		auth.GET("/notifications", c.notification.List)
		auth.POST("/notifications/read", c.notification.MarkRead)
	}

	// 2. 游玩接口，按用户限流
	play := router.Group("/api/levels/:id")
	play.Use(
		middleware.AuthMiddleware(cfg),
		middleware.ActivityMiddleware(repos.user),
		security.KeyedRateLimiter(cfg.RateLimit.MaxRequests, time.Duration(cfg.RateLimit.WindowMinutes)*time.Minute, userKey),
	)
	{
		play.POST("/heartbeat", c.play.Heartbeat)
		play.POST("/submit", c.play.Submit)
	}

	// 3. 管理员相关接口
	admin := router.Group("/api/admin")
	admin.Use(middleware.AuthMiddleware(cfg), middleware.RoleMiddleware(model.Admin))
	{
		admin.POST("/queue", c.queue.Enqueue)
		admin.POST("/queue/sweep", c.queue.Sweep)
		admin.GET("/queue/failed", c.queue.ListFailed)
		admin.GET("/queue/:id", c.queue.Get)
		admin.POST("/queue/:id/replay", c.queue.Replay)
		admin.POST("/levels/:id/recompute", c.queue.Recompute)
	}
}

func userKey(c *gin.Context) string {
	claims := util.GetUserFromContext(c)
	if claims == nil {
		return ""
	}
	return strconv.FormatUint(uint64(claims.UserID), 10)
}
