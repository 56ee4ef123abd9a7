package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"playstats_backend/internal/config"
	"playstats_backend/internal/controller"
	"playstats_backend/internal/queue"
	"playstats_backend/internal/repository"
	"playstats_backend/internal/service"
	"playstats_backend/internal/validator"
	"playstats_backend/pkg/configwatcher"
	"playstats_backend/pkg/database"
	"playstats_backend/pkg/lock"
	"playstats_backend/pkg/logger"
	"playstats_backend/pkg/monitoring"
	"playstats_backend/pkg/security"
	"playstats_backend/pkg/tracing"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type App struct {
	Config *config.Config
	Router *gin.Engine
	DB     *gorm.DB
	Redis  *redis.Client
	Queue  *queue.Queue

	// 配置目录，serve 时用于热更新
	ConfigDir string

	services        *services
	tracer          *sdktrace.TracerProvider
	mu              sync.RWMutex
	configCallbacks []func(*config.Config)
}

type repositories struct {
	user         *repository.UserRepository
	level        *repository.LevelRepository
	record       *repository.RecordRepository
	notification *repository.NotificationRepository
}

type services struct {
	session     *service.SessionService
	result      *service.ResultService
	aggregate   *service.AggregateService
	achievement *service.AchievementService
}

type controllers struct {
	play         *controller.PlayController
	achievement  *controller.AchievementController
	notification *controller.NotificationController
	queue        *controller.QueueController
	health       *controller.HealthController
}

func (a *App) RegisterConfigCallback(callback func(*config.Config)) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.configCallbacks = append(a.configCallbacks, callback)
}

// ApplyConfig 热更新：只有队列参数与清扫间隔在运行时生效
func (a *App) ApplyConfig(cfg *config.Config) {
	a.mu.RLock()
	callbacks := append([]func(*config.Config){}, a.configCallbacks...)
	a.mu.RUnlock()
	for _, cb := range callbacks {
		cb(cfg)
	}
}

func queueOptions(cfg *config.QueueConfig) queue.Options {
	return queue.Options{
		MaxAttempts: cfg.MaxAttempts,
		StaleAfter:  cfg.StaleAfter,
		BatchSize:   cfg.BatchSize,
		Concurrency: cfg.Concurrency,
	}
}

func (a *App) initRepositories(db *gorm.DB) *repositories {
	return &repositories{
		user:         repository.NewUserRepository(db),
		level:        repository.NewLevelRepository(db),
		record:       repository.NewRecordRepository(db),
		notification: repository.NewNotificationRepository(db),
	}
}

func (a *App) initServices(cfg *config.Config, db *gorm.DB, locker lock.Locker) *services {
	s := &services{}

	s.aggregate = service.NewAggregateService(db, a.Queue)
	s.aggregate.Register(a.Queue.Registry)
	s.session = service.NewSessionService(db, locker, cfg.Session.Window, cfg.Session.LockTTL)
	s.result = service.NewResultService(db, validator.NewGridValidator(), s.aggregate, cfg.Session.Window)
	s.achievement = s.result.Achievements

	a.RegisterConfigCallback(func(newCfg *config.Config) {
		a.Queue.SetOptions(queueOptions(&newCfg.Queue))
		logger.Log.Info("Queue options updated",
			zap.Int("maxAttempts", newCfg.Queue.MaxAttempts),
			zap.Int("batchSize", newCfg.Queue.BatchSize),
			zap.Int("concurrency", newCfg.Queue.Concurrency))
	})
	return s
}

func (a *App) initControllers(s *services, repos *repositories) *controllers {
	return &controllers{
		play:         controller.NewPlayController(s.session, s.result, repos.level, repos.record),
		achievement:  controller.NewAchievementController(s.achievement),
		notification: controller.NewNotificationController(repos.notification),
		queue:        controller.NewQueueController(a.Queue, s.aggregate),
		health:       controller.NewHealthController(a.DB, a.Redis, a.Queue),
	}
}

func (a *App) setupMiddlewares(router *gin.Engine, cfg *config.Config) {
	router.Use(security.CORS(cfg.CORS.AllowedOrigins))
	router.Use(security.Secure())
	router.Use(security.RateLimiter(cfg.RateLimit.MaxRequests, time.Duration(cfg.RateLimit.WindowMinutes)*time.Minute))

	// 分布式追踪中间件
	if cfg.Tracing.Enabled {
		router.Use(tracing.GinMiddleware())
	}

	router.Use(monitoring.MetricsMiddleware())
}

// NewApp 连接数据库与 redis 并组装全部组件。serve 之外的命令也复用它
func NewApp(cfg *config.Config) (*App, error) {
	logger.InitLogger(cfg)
	logger.Log.Info("Logger initialized successfully")

	migrate := cfg.Server.Mode != "release" || cfg.ForceMigrate
	db, err := database.InitDB(&cfg.Database, migrate)
	if err != nil {
		return nil, fmt.Errorf("initialize database: %w", err)
	}

	app := &App{
		Config: cfg,
		DB:     db,
		Queue:  queue.New(db, queue.NewRegistry(), queueOptions(&cfg.Queue)),
	}

	var locker lock.Locker = lock.NopLocker{}
	if cfg.Redis.Enabled {
		rdb, err := database.InitRedis(&cfg.Redis)
		if err != nil {
			return nil, fmt.Errorf("initialize redis: %w", err)
		}
		app.Redis = rdb
		locker = lock.NewRedisLocker(rdb)
	}

	if cfg.Tracing.Enabled {
		tp, err := tracing.InitTracer("playstats", cfg.Tracing.CollectorEndpoint)
		if err != nil {
			return nil, fmt.Errorf("initialize tracing: %w", err)
		}
		app.tracer = tp
	}

	repos := app.initRepositories(db)
	app.services = app.initServices(cfg, db, locker)
	controllers := app.initControllers(app.services, repos)

	// 监控初始化
	monitoring.Init()

	if cfg.Server.Mode != "" {
		gin.SetMode(cfg.Server.Mode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	app.Router = router

	app.setupMiddlewares(router, cfg)
	app.registerRoutes(router, controllers, repos, cfg)

	return app, nil
}

// Recompute 运维命令使用的同步重算
func (a *App) Recompute(ctx context.Context, levelID uint) error {
	_, err := a.services.aggregate.Recompute(ctx, levelID)
	return err
}

func (a *App) EnqueueAllRecomputes(ctx context.Context) (int, error) {
	return a.services.aggregate.EnqueueAll(ctx)
}

func (a *App) Close() {
	if a.tracer != nil {
		if err := a.tracer.Shutdown(context.Background()); err != nil {
			logger.Log.Error("Failed to shutdown tracer provider", zap.Error(err))
		}
	}
	if a.Redis != nil {
		_ = a.Redis.Close()
	}
	if sqlDB, err := a.DB.DB(); err == nil {
		_ = sqlDB.Close()
	}
	_ = logger.Log.Sync()
}

func (a *App) Run() {
	srv := &http.Server{
		Addr:    ":" + a.Config.Server.Port,
		Handler: a.Router,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if a.Config.Queue.RunWorker {
		var intervalMu sync.RWMutex
		interval := a.Config.Queue.SweepInterval
		a.RegisterConfigCallback(func(cfg *config.Config) {
			intervalMu.Lock()
			interval = cfg.Queue.SweepInterval
			intervalMu.Unlock()
		})
		a.Queue.Start(ctx, func() time.Duration {
			intervalMu.RLock()
			defer intervalMu.RUnlock()
			return interval
		})
		logger.Log.Info("Queue worker started", zap.Duration("interval", interval))
	}

	if a.ConfigDir != "" {
		if err := configwatcher.Watch(ctx, a.ConfigDir, time.Second, a.ApplyConfig); err != nil {
			logger.Log.Warn("Config hot reload disabled", zap.Error(err))
		}
	}

	// 启动服务器
	go func() {
		logger.Log.Info("Server running", zap.String("port", a.Config.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Log.Fatal("listen failed", zap.Error(err))
		}
	}()

	// 等待中断信号优雅地关闭服务器（设置5秒的超时时间）
	<-ctx.Done()
	logger.Log.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Log.Error("Server forced to shutdown", zap.Error(err))
	}

	logger.Log.Info("Server exiting")
}
