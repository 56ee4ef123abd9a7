package service

import (
	"context"
	"playstats_backend/internal/model"
	"playstats_backend/internal/repository"
	"playstats_backend/internal/util"
	"playstats_backend/internal/validator"
	"playstats_backend/pkg/logger"
	"playstats_backend/pkg/monitoring"
	"playstats_backend/pkg/tracing"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type SubmitResult struct {
	Accepted  bool `json:"accepted"`
	NewRecord bool `json:"newRecord"`
	Complete  bool `json:"complete"`
}

// RecomputeEnqueuer 纪录变更提交后安排一次全量重算
type RecomputeEnqueuer interface {
	EnqueueRecompute(ctx context.Context, levelID uint) (string, error)
}

type ResultService struct {
	DB               *gorm.DB
	LevelRepo        *repository.LevelRepository
	AttemptRepo      *repository.PlayAttemptRepository
	StatRepo         *repository.StatRepository
	RecordRepo       *repository.RecordRepository
	UserRepo         *repository.UserRepository
	NotificationRepo *repository.NotificationRepository
	Achievements     *AchievementService
	Validator        validator.Validator
	Recompute        RecomputeEnqueuer

	// 与心跳使用同一会话窗口
	Window time.Duration
}

func NewResultService(db *gorm.DB, v validator.Validator, recompute RecomputeEnqueuer, window time.Duration) *ResultService {
	return &ResultService{
		DB:               db,
		LevelRepo:        repository.NewLevelRepository(db),
		AttemptRepo:      repository.NewPlayAttemptRepository(db),
		StatRepo:         repository.NewStatRepository(db),
		RecordRepo:       repository.NewRecordRepository(db),
		UserRepo:         repository.NewUserRepository(db),
		NotificationRepo: repository.NewNotificationRepository(db),
		Achievements:     NewAchievementService(repository.NewAchievementRepository(db), repository.NewUserRepository(db)),
		Validator:        v,
		Recompute:        recompute,
		Window:           window,
	}
}

// SubmitResult 校验并提交一次通关结果。个人成绩、会话封存、纪录变更在同一事务中完成
func (s *ResultService) SubmitResult(ctx context.Context, userID, levelID uint, moves []validator.Direction, now time.Time) (*SubmitResult, error) {
	ctx, span := tracing.StartSpan(ctx, "result.submit",
		attribute.Int64("user.id", int64(userID)),
		attribute.Int64("level.id", int64(levelID)),
		attribute.Int("moves", len(moves)))

	out, err := s.submit(ctx, userID, levelID, moves, now)
	err = util.MapDBError(err)
	tracing.End(span, err)

	switch {
	case err == nil && out.NewRecord:
		monitoring.SubmissionCounter.WithLabelValues("new_record").Inc()
	case err == nil:
		monitoring.SubmissionCounter.WithLabelValues("accepted").Inc()
	case util.IsValidation(err):
		monitoring.SubmissionCounter.WithLabelValues("rejected").Inc()
	default:
		monitoring.SubmissionCounter.WithLabelValues("error").Inc()
		logger.Log.Error("submit result failed",
			zap.Uint("userId", userID),
			zap.Uint("levelId", levelID),
			zap.Error(err))
	}
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *ResultService) submit(ctx context.Context, userID, levelID uint, moves []validator.Direction, now time.Time) (*SubmitResult, error) {
	level, err := findPlayableLevel(s.LevelRepo.WithTx(s.DB.WithContext(ctx)), levelID)
	if err != nil {
		return nil, err
	}
	check, err := s.Validator.Validate(moves, validator.Grid{Data: level.Data, Width: level.Width, Height: level.Height})
	if err != nil {
		return nil, err
	}
	if !check.Valid {
		return nil, util.ErrInvalidSolution
	}

	count := len(moves)
	ts := now.Unix()
	var out SubmitResult

	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		levels := s.LevelRepo.WithTx(tx)
		if err := lockPlayer(tx, s.LevelRepo, s.UserRepo, levelID, userID); err != nil {
			return err
		}
		// 纪录判断必须基于加锁后读到的 least_moves
		level, err := levels.FindByID(levelID)
		if err != nil {
			return err
		}

		out = SubmitResult{
			Accepted:  true,
			Complete:  count <= level.LeastMoves,
			NewRecord: count < level.LeastMoves,
		}

		stat, err := s.applyStat(tx, userID, level.ID, count, out.Complete, ts)
		if err != nil {
			return err
		}
		sealed, err := s.sealSession(tx, userID, level.ID, out.Complete, stat.Complete, ts)
		if err != nil {
			return err
		}
		if out.NewRecord {
			if err := s.applyRecord(tx, userID, level, count, sealed.ID, ts); err != nil {
				return err
			}
		}
		return refreshDifficulty(levels, level.ID)
	})
	if err != nil {
		return nil, err
	}

	if out.NewRecord && s.Recompute != nil {
		// 入队失败不影响已提交的结果，漂移由下一次重算修复
		if _, err := s.Recompute.EnqueueRecompute(ctx, levelID); err != nil {
			logger.Log.Error("failed to enqueue aggregate recompute",
				zap.Uint("levelId", levelID),
				zap.Error(err))
		}
	}
	return &out, nil
}

// applyStat 创建、改进或仅累计尝试次数；首次达标时加分并检查成就
func (s *ResultService) applyStat(tx *gorm.DB, userID, levelID uint, moves int, complete bool, ts int64) (*model.Stat, error) {
	stats := s.StatRepo.WithTx(tx)
	stat, err := stats.FindByUserAndLevel(userID, levelID)
	if err != nil {
		return nil, err
	}

	becameComplete := false
	switch {
	case stat == nil:
		stat = &model.Stat{UserID: userID, LevelID: levelID, Moves: moves, Complete: complete, Attempts: 1, Ts: ts}
		if err := stats.Create(stat); err != nil {
			return nil, err
		}
		becameComplete = complete
	case moves < stat.Moves:
		becameComplete = complete && !stat.Complete
		stat.Moves = moves
		stat.Complete = stat.Complete || complete
		stat.Attempts++
		stat.Ts = ts
		if err := stats.Update(stat); err != nil {
			return nil, err
		}
	default:
		if err := stats.IncrementAttempts(stat.ID); err != nil {
			return nil, err
		}
		stat.Attempts++
	}

	if !becameComplete {
		return stat, nil
	}
	users := s.UserRepo.WithTx(tx)
	if err := users.IncrementScore(userID, 1); err != nil {
		return nil, err
	}
	if err := s.LevelRepo.WithTx(tx).IncrementAggregates(levelID, map[string]int64{colPlayersBeaten: 1}); err != nil {
		return nil, err
	}
	user, err := users.FindByID(userID)
	if err != nil {
		return nil, err
	}
	if _, err := s.Achievements.GrantForScore(tx, userID, user.Score); err != nil {
		return nil, err
	}
	return stat, nil
}

// sealSession 把提交时刻计入当前会话；达标时封存为 JUST_BEATEN。窗口内没有可延长的会话则新建一个
func (s *ResultService) sealSession(tx *gorm.DB, userID, levelID uint, complete, statComplete bool, now int64) (*model.PlayAttempt, error) {
	attempts := s.AttemptRepo.WithTx(tx)

	attempt, err := attempts.FindExtendable(userID, levelID, now-int64(s.Window/time.Second))
	if err != nil {
		return nil, err
	}
	if attempt != nil {
		sealed, ok, err := s.extendForSubmit(tx, attempt, complete, now)
		if err != nil || ok {
			return sealed, err
		}
	}

	attemptCtx := model.AttemptUnbeaten
	switch {
	case complete:
		attemptCtx = model.AttemptJustBeaten
	case statComplete:
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
	if !created.Counted() {
		return created, nil
	}
	deltas := map[string]int64{colAttemptCount: 1}
	if attemptCtx == model.AttemptJustBeaten {
		deltas[colJustBeaten] = 1
	}
	return created, countSession(s.LevelRepo.WithTx(tx), levelID, userID, deltas)
}

// extendForSubmit 延长或封存已有会话；会话已被封存时返回 ok=false
func (s *ResultService) extendForSubmit(tx *gorm.DB, attempt *model.PlayAttempt, complete bool, now int64) (*model.PlayAttempt, bool, error) {
	attempts := s.AttemptRepo.WithTx(tx)
	end := max(now, attempt.EndTime)
	sealedCtx := attempt.AttemptContext
	touch := attempts.Extend
	if complete {
		sealedCtx = model.AttemptJustBeaten
		touch = attempts.Seal
	}
	ok, err := touch(attempt.ID, end)
	if err != nil || !ok {
		return nil, false, err
	}

	deltas := map[string]int64{}
	switch {
	case attempt.Counted():
		deltas[colDurationSum] = end - attempt.EndTime
	case sealedCtx == model.AttemptJustBeaten:
		// 重玩会话此前不计入，封存后整段计入
		deltas[colDurationSum] = end - attempt.StartTime
		deltas[colAttemptCount] = 1
	}
	if sealedCtx == model.AttemptJustBeaten {
		deltas[colJustBeaten] = 1
	}

	prev := attempt.AttemptContext
	attempt.EndTime = end
	attempt.AttemptContext = sealedCtx
	attempt.UpdateCount++
	if prev == model.AttemptBeaten && sealedCtx == model.AttemptBeaten {
		return attempt, true, nil
	}
	return attempt, true, countSession(s.LevelRepo.WithTx(tx), attempt.LevelID, attempt.UserID, deltas)
}

// applyRecord 新纪录：记录持有数、纪录账本、失效的完成状态以及会话上下文
func (s *ResultService) applyRecord(tx *gorm.DB, userID uint, level *model.Level, moves int, sealedID uint, ts int64) error {
	levels := s.LevelRepo.WithTx(tx)
	records := s.RecordRepo.WithTx(tx)
	users := s.UserRepo.WithTx(tx)
	stats := s.StatRepo.WithTx(tx)
	attempts := s.AttemptRepo.WithTx(tx)

	prev, err := records.Latest(level.ID)
	if err != nil {
		return err
	}
	prevHolder := level.UserID
	if prev != nil {
		prevHolder = prev.UserID
	}
	// 作者不参与纪录持有数统计
	if prevHolder != userID {
		if prevHolder != level.UserID {
			if err := users.IncrementRecords(prevHolder, -1); err != nil {
				return err
			}
		}
		if userID != level.UserID {
			if err := users.IncrementRecords(userID, 1); err != nil {
				return err
			}
		}
	}

	if err := levels.SetRecord(level.ID, moves); err != nil {
		return err
	}
	if err := records.Create(&model.Record{LevelID: level.ID, UserID: userID, Moves: moves, Ts: ts}); err != nil {
		return err
	}

	reopened, err := stats.FindCompleteWorseThan(level.ID, moves)
	if err != nil {
		return err
	}
	if len(reopened) > 0 {
		ids := make([]uint, 0, len(reopened))
		notifications := make([]model.Notification, 0, len(reopened))
		for _, st := range reopened {
			ids = append(ids, st.ID)
			if err := users.IncrementScore(st.UserID, -1); err != nil {
				return err
			}
			notifications = append(notifications, model.Notification{
				UserID:       st.UserID,
				SourceUserID: userID,
				LevelID:      level.ID,
				Type:         model.NotificationNewRecordOnALevelYouBeat,
			})
		}
		if err := stats.MarkIncomplete(ids); err != nil {
			return err
		}
		if err := s.NotificationRepo.WithTx(tx).CreateBatch(notifications); err != nil {
			return err
		}
	}

	// 旧纪录下的重玩会话重新计入
	beaten, err := attempts.SummarizeContext(level.ID, model.AttemptBeaten, sealedID)
	if err != nil {
		return err
	}
	if _, err := attempts.ResetContexts(level.ID, sealedID); err != nil {
		return err
	}
	for _, uid := range beaten.UserIDs {
		if _, err := levels.AddUniquePlayer(level.ID, uid); err != nil {
			return err
		}
	}

	if err := levels.IncrementAggregates(level.ID, map[string]int64{
		colDurationSum:   beaten.Duration,
		colAttemptCount:  beaten.Count,
		colPlayersBeaten: -int64(len(reopened)),
		// 新纪录时代只有刚封存的这一次
		colJustBeaten: 1,
	}); err != nil {
		return err
	}

	logger.Log.Info("new level record",
		zap.Uint("levelId", level.ID),
		zap.Uint("userId", userID),
		zap.Int("moves", moves),
		zap.Uint("previousHolder", prevHolder),
		zap.Int("reopenedStats", len(reopened)))
	return nil
}
