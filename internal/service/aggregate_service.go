package service

import (
	"context"
	"encoding/json"
	"fmt"
	"playstats_backend/internal/model"
	"playstats_backend/internal/queue"
	"playstats_backend/internal/repository"
	"playstats_backend/internal/util"
	"playstats_backend/pkg/logger"
	"playstats_backend/pkg/tracing"
	"sort"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type RecomputePayload struct {
	LevelID uint `json:"levelId"`
}

// AggregateService 从全部会话与成绩重新推导关卡聚合，是增量路径的基准
type AggregateService struct {
	DB          *gorm.DB
	LevelRepo   *repository.LevelRepository
	AttemptRepo *repository.PlayAttemptRepository
	StatRepo    *repository.StatRepository
	Queue       *queue.Queue
	BatchSize   int
}

func NewAggregateService(db *gorm.DB, q *queue.Queue) *AggregateService {
	return &AggregateService{
		DB:          db,
		LevelRepo:   repository.NewLevelRepository(db),
		AttemptRepo: repository.NewPlayAttemptRepository(db),
		StatRepo:    repository.NewStatRepository(db),
		Queue:       q,
		BatchSize:   500,
	}
}

// Register 注册重算消息的处理器
func (s *AggregateService) Register(registry *queue.Registry) {
	registry.Register(model.QueueTypeRecomputeLevelAggregates, s)
}

func (s *AggregateService) Handle(ctx context.Context, msg *model.QueueMessage) error {
	var payload RecomputePayload
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}
	if payload.LevelID == 0 {
		return fmt.Errorf("payload has no levelId")
	}
	_, err := s.Recompute(ctx, payload.LevelID)
	return err
}

// Recompute 全量扫描并覆盖关卡聚合。幂等，可重复执行
func (s *AggregateService) Recompute(ctx context.Context, levelID uint) (*model.LevelAggregates, error) {
	ctx, span := tracing.StartSpan(ctx, "aggregate.recompute", attribute.Int64("level.id", int64(levelID)))

	var agg model.LevelAggregates
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		levels := s.LevelRepo.WithTx(tx)
		// 与提交事务互斥，避免覆盖并发写入
		if _, err := levels.LockByID(levelID); err != nil {
			if repository.IsNotFound(err) {
				return util.ErrLevelNotFound
			}
			return err
		}

		users := map[uint]struct{}{}
		err := s.AttemptRepo.WithTx(tx).ScanLevel(levelID, s.BatchSize, func(batch []model.PlayAttempt) error {
			for i := range batch {
				a := &batch[i]
				if a.AttemptContext == model.AttemptJustBeaten {
					agg.CalcPlayattemptsJustBeatenCount++
				}
				if !a.Counted() {
					continue
				}
				agg.CalcPlayattemptsDurationSum += a.Duration()
				agg.CalcPlayattemptsCount++
				users[a.UserID] = struct{}{}
			}
			return nil
		})
		if err != nil {
			return err
		}

		beaten, err := s.StatRepo.WithTx(tx).CountComplete(levelID)
		if err != nil {
			return err
		}
		agg.CalcStatsPlayersBeaten = beaten
		agg.CalcPlayattemptsUniqueUsers = int64(len(users))

		in := difficultyInputs(&agg)
		agg.CalcDifficultyEstimate = in.Beaten()
		agg.CalcDifficultyCompletion = in.Completion()

		ids := make([]uint, 0, len(users))
		for uid := range users {
			ids = append(ids, uid)
		}
		sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
		return levels.ReplaceAggregates(levelID, agg, ids)
	})
	err = util.MapDBError(err)
	tracing.End(span, err)
	if err != nil {
		return nil, err
	}

	logger.Log.Info("level aggregates recomputed",
		zap.Uint("levelId", levelID),
		zap.Int64("durationSum", agg.CalcPlayattemptsDurationSum),
		zap.Int64("count", agg.CalcPlayattemptsCount),
		zap.Int64("uniqueUsers", agg.CalcPlayattemptsUniqueUsers),
		zap.Int64("justBeaten", agg.CalcPlayattemptsJustBeatenCount),
		zap.Float64("difficulty", agg.CalcDifficultyEstimate))
	return &agg, nil
}

// EnqueueRecompute 同一关卡的待处理重算会被合并
func (s *AggregateService) EnqueueRecompute(ctx context.Context, levelID uint) (string, error) {
	return s.Queue.Enqueue(ctx, model.QueueTypeRecomputeLevelAggregates,
		RecomputePayload{LevelID: levelID},
		queue.EnqueueOptions{DedupeKey: RecomputeDedupeKey(levelID)})
}

// EnqueueAll 运维修复入口：为所有关卡安排重算
func (s *AggregateService) EnqueueAll(ctx context.Context) (int, error) {
	ids, err := s.LevelRepo.WithTx(s.DB.WithContext(ctx)).ListIDs()
	if err != nil {
		return 0, err
	}
	for _, id := range ids {
		if _, err := s.EnqueueRecompute(ctx, id); err != nil {
			return 0, err
		}
	}
	return len(ids), nil
}

func RecomputeDedupeKey(levelID uint) string {
	return fmt.Sprintf("recompute:%d", levelID)
}
