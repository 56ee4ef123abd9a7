package service

import (
	"context"
	"errors"
	"fmt"
	"playstats_backend/internal/model"
	"playstats_backend/internal/repository"
	"playstats_backend/internal/util"
	"playstats_backend/pkg/lock"
	"playstats_backend/pkg/logger"
	"playstats_backend/pkg/monitoring"
	"playstats_backend/pkg/tracing"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	SessionCreated = "created"
	SessionUpdated = "updated"
)

type HeartbeatResult struct {
	SessionState string `json:"sessionState"`
	AttemptID    uint   `json:"attemptId"`
}

type SessionService struct {
	DB          *gorm.DB
	LevelRepo   *repository.LevelRepository
	AttemptRepo *repository.PlayAttemptRepository
	StatRepo    *repository.StatRepository
	UserRepo    *repository.UserRepository
	Locker      lock.Locker

	// 超过 Window 没有心跳则开启新会话
	Window  time.Duration
	LockTTL time.Duration
}

func NewSessionService(db *gorm.DB, locker lock.Locker, window, lockTTL time.Duration) *SessionService {
	if locker == nil {
		locker = lock.NopLocker{}
	}
	return &SessionService{
		DB:          db,
		LevelRepo:   repository.NewLevelRepository(db),
		AttemptRepo: repository.NewPlayAttemptRepository(db),
		StatRepo:    repository.NewStatRepository(db),
		UserRepo:    repository.NewUserRepository(db),
		Locker:      locker,
		Window:      window,
		LockTTL:     lockTTL,
	}
}

// RecordHeartbeat 延长当前会话或开启新会话。查找与创建在同一事务中完成，并持有关卡与用户行锁
func (s *SessionService) RecordHeartbeat(ctx context.Context, userID, levelID uint, now time.Time) (*HeartbeatResult, error) {
	ctx, span := tracing.StartSpan(ctx, "session.heartbeat",
		attribute.Int64("user.id", int64(userID)),
		attribute.Int64("level.id", int64(levelID)))

	result, err := s.recordHeartbeat(ctx, userID, levelID, now)
	err = util.MapDBError(err)
	tracing.End(span, err)

	switch {
	case err == nil:
		monitoring.HeartbeatCounter.WithLabelValues(result.SessionState).Inc()
	case util.IsValidation(err):
		monitoring.HeartbeatCounter.WithLabelValues("rejected").Inc()
	default:
		monitoring.HeartbeatCounter.WithLabelValues("error").Inc()
		logger.Log.Warn("heartbeat failed",
			zap.Uint("userId", userID),
			zap.Uint("levelId", levelID),
			zap.Error(err))
	}
	return result, err
}

func (s *SessionService) recordHeartbeat(ctx context.Context, userID, levelID uint, now time.Time) (*HeartbeatResult, error) {
	release, err := s.Locker.Acquire(ctx, fmt.Sprintf("playstats:heartbeat:%d:%d", userID, levelID), s.LockTTL)
	switch {
	case errors.Is(err, lock.ErrNotAcquired):
		return nil, fmt.Errorf("%w: heartbeat lock busy", util.ErrRetryable)
	case err != nil:
		// 锁服务不可用时仍由数据库行锁保证正确性
		logger.Log.Warn("heartbeat lock unavailable", zap.Error(err))
		release = func() {}
	}
	defer release()

	var result *HeartbeatResult
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := lockPlayer(tx, s.LevelRepo, s.UserRepo, levelID, userID); err != nil {
			return err
		}
		var err error
		result, err = s.heartbeat(tx, userID, levelID, now.Unix())
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *SessionService) heartbeat(tx *gorm.DB, userID, levelID uint, now int64) (*HeartbeatResult, error) {
	attempts := s.AttemptRepo.WithTx(tx)
	levels := s.LevelRepo.WithTx(tx)

	attempt, err := attempts.FindExtendable(userID, levelID, now-int64(s.Window/time.Second))
	if err != nil {
		return nil, err
	}

	if attempt != nil {
		end := max(now, attempt.EndTime)
		extended, err := attempts.Extend(attempt.ID, end)
		if err != nil {
			return nil, err
		}
		// extended 为 false 说明读到之后已被提交封存，改为开启新会话
		if extended {
			if attempt.Counted() {
				if err := countSession(levels, levelID, userID, map[string]int64{colDurationSum: end - attempt.EndTime}); err != nil {
					return nil, err
				}
				if err := refreshDifficulty(levels, levelID); err != nil {
					return nil, err
				}
			}
			return &HeartbeatResult{SessionState: SessionUpdated, AttemptID: attempt.ID}, nil
		}
	}

	stat, err := s.StatRepo.WithTx(tx).FindByUserAndLevel(userID, levelID)
	if err != nil {
		return nil, err
	}
	attemptCtx := model.AttemptUnbeaten
	if stat != nil && stat.Complete {
		attemptCtx = model.AttemptBeaten
	}
	created := &model.PlayAttempt{
		UserID:         userID,
		LevelID:        levelID,
		StartTime:      now,
		EndTime:        now,
		AttemptContext: attemptCtx,
	}
	if err := attempts.Create(created); err != nil {
		return nil, err
	}
	if created.Counted() {
		if err := countSession(levels, levelID, userID, map[string]int64{colAttemptCount: 1}); err != nil {
			return nil, err
		}
		if err := refreshDifficulty(levels, levelID); err != nil {
			return nil, err
		}
	}
	return &HeartbeatResult{SessionState: SessionCreated, AttemptID: created.ID}, nil
}

// lockPlayer 会话与成绩两条写路径统一先锁关卡行再锁用户行，
// 同一关卡上的心跳与提交因此串行执行，且不会因加锁顺序相反而死锁
func lockPlayer(tx *gorm.DB, levelRepo *repository.LevelRepository, userRepo *repository.UserRepository, levelID, userID uint) error {
	level, err := levelRepo.WithTx(tx).LockByID(levelID)
	if repository.IsNotFound(err) {
		return util.ErrLevelNotFound
	}
	if err != nil {
		return err
	}
	if level.IsDraft {
		return util.ErrLevelDraft
	}
	if _, err := userRepo.WithTx(tx).LockByID(userID); err != nil {
		if repository.IsNotFound(err) {
			return util.ErrUserNotFound
		}
		return err
	}
	return nil
}

// findPlayableLevel 关卡必须存在且已发布
func findPlayableLevel(levels *repository.LevelRepository, levelID uint) (*model.Level, error) {
	level, err := levels.FindByID(levelID)
	if repository.IsNotFound(err) {
		return nil, util.ErrLevelNotFound
	}
	if err != nil {
		return nil, err
	}
	if level.IsDraft {
		return nil, util.ErrLevelDraft
	}
	return level, nil
}
