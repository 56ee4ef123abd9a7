package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"playstats_backend/internal/model"
	"playstats_backend/internal/repository"
	"playstats_backend/internal/util"
	"playstats_backend/pkg/logger"
	"playstats_backend/pkg/monitoring"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Options struct {
	MaxAttempts int
	StaleAfter  time.Duration
	BatchSize   int
	Concurrency int
}

func DefaultOptions() Options {
	return Options{
		MaxAttempts: 3,
		StaleAfter:  5 * time.Minute,
		BatchSize:   100,
		Concurrency: 4,
	}
}

type EnqueueOptions struct {
	DedupeKey string
	// 零值表示立即执行
	RunAt time.Time
}

// Queue 是基于数据库表的持久化任务队列：至少一次投递，失败重试，按 dedupe key 合并
type Queue struct {
	DB       *gorm.DB
	Repo     *repository.QueueMessageRepository
	Registry *Registry
	Now      func() time.Time

	mu   sync.RWMutex
	opts Options
}

func New(db *gorm.DB, registry *Registry, opts Options) *Queue {
	return &Queue{
		DB:       db,
		Repo:     repository.NewQueueMessageRepository(db),
		Registry: registry,
		Now:      time.Now,
		opts:     opts,
	}
}

func (q *Queue) Options() Options {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.opts
}

// SetOptions 配置热更新时调用
func (q *Queue) SetOptions(opts Options) {
	q.mu.Lock()
	q.opts = opts
	q.mu.Unlock()
}

// Enqueue 写入一条 PENDING 消息。若同一 dedupe key 已有 PENDING 消息，丢弃本次并返回已有消息的 id
func (q *Queue) Enqueue(ctx context.Context, msgType string, payload interface{}, opts EnqueueOptions) (string, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}
	runAt := opts.RunAt
	if runAt.IsZero() {
		runAt = q.Now()
	}

	repo := q.Repo.WithTx(q.DB.WithContext(ctx))
	// 已有消息可能恰好在查询前被认领，此时重试插入
	for i := 0; i < 3; i++ {
		msg := &model.QueueMessage{
			UUIDBase: model.UUIDBase{ID: uuid.NewString()},
			Type:     msgType,
			Payload:  datatypes.JSON(raw),
			State:    model.QueueStatePending,
			RunAt:    runAt,
			Log:      datatypes.JSONSlice[string]{},
		}
		if opts.DedupeKey != "" {
			key := opts.DedupeKey
			msg.DedupeKey = key
			msg.PendingDedupeKey = &key
		}

		created, err := repo.CreateUnlessPending(msg)
		if err != nil {
			return "", util.MapDBError(err)
		}
		if created {
			monitoring.QueueMessageCounter.WithLabelValues(msgType, "enqueued").Inc()
			return msg.ID, nil
		}

		existing, err := repo.FindPendingByDedupeKey(opts.DedupeKey)
		if repository.IsNotFound(err) {
			continue
		}
		if err != nil {
			return "", util.MapDBError(err)
		}
		monitoring.QueueMessageCounter.WithLabelValues(msgType, "deduplicated").Inc()
		logger.Log.Debug("enqueue coalesced with pending message",
			zap.String("type", msgType),
			zap.String("dedupeKey", opts.DedupeKey),
			zap.String("messageId", existing.ID))
		return existing.ID, nil
	}
	return "", fmt.Errorf("%w: enqueue %s kept racing with claims", util.ErrRetryable, opts.DedupeKey)
}

// Claim 在一个事务中认领一批到期消息，并把它们置为 PROCESSING
func (q *Queue) Claim(ctx context.Context) ([]model.QueueMessage, error) {
	opts := q.Options()
	now := q.Now()
	staleBefore := now.Add(-opts.StaleAfter)

	var claimed []model.QueueMessage
	err := q.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := q.Repo.WithTx(tx)
		msgs, err := repo.LockRunnable(now, staleBefore, opts.MaxAttempts, opts.BatchSize)
		if err != nil {
			return err
		}
		if len(msgs) == 0 {
			return nil
		}
		ids := make([]string, 0, len(msgs))
		for _, m := range msgs {
			ids = append(ids, m.ID)
		}
		if err := repo.MarkProcessing(ids, now); err != nil {
			return err
		}
		for i := range msgs {
			msgs[i].State = model.QueueStateProcessing
			msgs[i].ProcessingStartedAt = &now
			msgs[i].ProcessingAttempts++
			msgs[i].PendingDedupeKey = nil
		}
		claimed = msgs
		return nil
	})
	if err != nil {
		return nil, util.MapDBError(err)
	}
	return claimed, nil
}

// FailExhausted 把卡在 PROCESSING 且已用尽重试次数的消息转为 FAILED
func (q *Queue) FailExhausted(ctx context.Context) (int, error) {
	opts := q.Options()
	now := q.Now()
	failed := 0
	err := q.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := q.Repo.WithTx(tx)
		msgs, err := repo.LockExhausted(now.Add(-opts.StaleAfter), opts.MaxAttempts)
		if err != nil {
			return err
		}
		for _, m := range msgs {
			entries := append(m.Log, logLine(now, m.ProcessingAttempts, "processing timed out"))
			if err := repo.UpdateFields(m.ID, map[string]interface{}{
				"state": model.QueueStateFailed,
				"log":   datatypes.JSONSlice[string](entries),
			}); err != nil {
				return err
			}
			logger.Log.Error("queue message failed permanently",
				zap.String("messageId", m.ID),
				zap.String("type", m.Type),
				zap.Strings("log", entries))
			monitoring.QueueMessageCounter.WithLabelValues(m.Type, "failed").Inc()
			failed++
		}
		return nil
	})
	return failed, util.MapDBError(err)
}

// Finish 记录一次执行结果：成功 → COMPLETED；失败且未用尽次数 → PENDING；否则 → FAILED
func (q *Queue) Finish(ctx context.Context, msg *model.QueueMessage, runErr error) (model.QueueMessageState, error) {
	opts := q.Options()
	now := q.Now()
	var state model.QueueMessageState

	err := q.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := q.Repo.WithTx(tx)
		current, err := repo.LockByID(msg.ID)
		if err != nil {
			return err
		}
		// 已被其他 worker 重新认领，本次结果作废
		if current.State != model.QueueStateProcessing || current.ProcessingAttempts != msg.ProcessingAttempts {
			state = current.State
			return errStaleClaim
		}

		updates := map[string]interface{}{}
		var line string
		switch {
		case runErr == nil:
			state = model.QueueStateCompleted
			line = logLine(now, current.ProcessingAttempts, "completed")
		case current.ProcessingAttempts >= opts.MaxAttempts:
			state = model.QueueStateFailed
			line = logLine(now, current.ProcessingAttempts, "failed: "+runErr.Error())
		default:
			state = model.QueueStatePending
			line = logLine(now, current.ProcessingAttempts, "failed: "+runErr.Error())
			updates["run_at"] = now
			if current.DedupeKey != "" {
				busy, err := repo.HasOtherPending(current.DedupeKey, current.ID)
				if err != nil {
					return err
				}
				if !busy {
					key := current.DedupeKey
					updates["pending_dedupe_key"] = &key
				}
			}
		}
		updates["state"] = state
		updates["log"] = datatypes.JSONSlice[string](append(current.Log, line))
		msg.Log = append(current.Log, line)
		return repo.UpdateFields(current.ID, updates)
	})
	if errors.Is(err, errStaleClaim) {
		logger.Log.Warn("queue message was reclaimed before completion",
			zap.String("messageId", msg.ID),
			zap.Int("attempt", msg.ProcessingAttempts))
		return state, nil
	}
	if err != nil {
		return "", util.MapDBError(err)
	}

	msg.State = state
	monitoring.QueueMessageCounter.WithLabelValues(msg.Type, string(state)).Inc()
	if state == model.QueueStateFailed {
		logger.Log.Error("queue message failed permanently",
			zap.String("messageId", msg.ID),
			zap.String("type", msg.Type),
			zap.Strings("log", msg.Log))
	}
	return state, nil
}

// Replay 运维手动重放 FAILED 消息，保留历史日志
func (q *Queue) Replay(ctx context.Context, id string) error {
	if !model.ValidUUID(id) {
		return util.ErrMessageNotFound
	}
	now := q.Now()
	err := q.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := q.Repo.WithTx(tx)
		msg, err := repo.LockByID(id)
		if repository.IsNotFound(err) {
			return util.ErrMessageNotFound
		}
		if err != nil {
			return err
		}
		if msg.State != model.QueueStateFailed {
			return util.ErrMessageNotFailed
		}
		updates := map[string]interface{}{
			"state":                 model.QueueStatePending,
			"run_at":                now,
			"processing_attempts":   0,
			"processing_started_at": nil,
			"log":                   datatypes.JSONSlice[string](append(msg.Log, now.UTC().Format(time.RFC3339)+" replayed by operator")),
		}
		if msg.DedupeKey != "" {
			busy, err := repo.HasOtherPending(msg.DedupeKey, msg.ID)
			if err != nil {
				return err
			}
			if !busy {
				key := msg.DedupeKey
				updates["pending_dedupe_key"] = &key
			}
		}
		return repo.UpdateFields(msg.ID, updates)
	})
	return util.MapDBError(err)
}

func (q *Queue) ListFailed(ctx context.Context, limit int) ([]model.QueueMessage, error) {
	return q.Repo.WithTx(q.DB.WithContext(ctx)).ListByState(model.QueueStateFailed, limit)
}

// Depth 各状态的消息数，健康检查用来暴露积压
func (q *Queue) Depth(ctx context.Context) (map[model.QueueMessageState]int64, error) {
	return q.Repo.WithTx(q.DB.WithContext(ctx)).CountByState()
}

func (q *Queue) Get(ctx context.Context, id string) (*model.QueueMessage, error) {
	if !model.ValidUUID(id) {
		return nil, util.ErrMessageNotFound
	}
	msg, err := q.Repo.WithTx(q.DB.WithContext(ctx)).FindByID(id)
	if repository.IsNotFound(err) {
		return nil, util.ErrMessageNotFound
	}
	return msg, err
}

var errStaleClaim = errors.New("stale claim")

func logLine(now time.Time, attempt int, outcome string) string {
	return fmt.Sprintf("%s attempt %d: %s", now.UTC().Format(time.RFC3339), attempt, outcome)
}
