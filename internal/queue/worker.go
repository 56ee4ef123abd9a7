package queue

import (
	"context"
	"fmt"
	"playstats_backend/internal/model"
	"playstats_backend/internal/util"
	"playstats_backend/pkg/logger"
	"playstats_backend/pkg/monitoring"
	"playstats_backend/pkg/tracing"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

type SweepResult struct {
	Processed int `json:"processed"`
	Errors    int `json:"errors"`
}

// RunSweep 认领一批到期消息并并发执行，由外部调度器或 Start 的定时器按固定节奏调用
func (q *Queue) RunSweep(ctx context.Context) (SweepResult, error) {
	ctx, span := tracing.StartSpan(ctx, "queue.sweep")
	var result SweepResult

	exhausted, err := q.FailExhausted(ctx)
	if err != nil {
		tracing.End(span, err)
		return result, err
	}
	result.Errors += exhausted

	msgs, err := q.Claim(ctx)
	if err != nil {
		tracing.End(span, err)
		return result, err
	}
	span.SetAttributes(attribute.Int("queue.claimed", len(msgs)))

	var processed, failed int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(q.Options().Concurrency, 1))
	for i := range msgs {
		msg := &msgs[i]
		g.Go(func() error {
			runErr := q.execute(gctx, msg)
			atomic.AddInt64(&processed, 1)
			if runErr != nil {
				atomic.AddInt64(&failed, 1)
			}
			// 执行结果写回失败只记日志，消息会在超时后被重新认领
			if _, err := q.Finish(ctx, msg, runErr); err != nil {
				logger.Log.Error("failed to record queue message outcome",
					zap.String("messageId", msg.ID),
					zap.Error(err))
			}
			return nil
		})
	}
	_ = g.Wait()

	result.Processed = int(processed)
	result.Errors += int(failed)
	tracing.End(span, nil)
	if result.Processed > 0 || result.Errors > 0 {
		logger.Log.Info("queue sweep finished",
			zap.Int("processed", result.Processed),
			zap.Int("errors", result.Errors))
	}
	return result, nil
}

func (q *Queue) execute(ctx context.Context, msg *model.QueueMessage) (err error) {
	h, ok := q.Registry.Get(msg.Type)
	if !ok {
		return fmt.Errorf("%w: %s", util.ErrUnknownJobType, msg.Type)
	}

	ctx, span := tracing.StartSpan(ctx, "queue.handle",
		attribute.String("queue.type", msg.Type),
		attribute.String("queue.message_id", msg.ID),
		attribute.Int("queue.attempt", msg.ProcessingAttempts))
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			logger.Log.Error("queue handler panic",
				zap.String("messageId", msg.ID),
				zap.String("type", msg.Type),
				zap.Any("panic", r))
			err = fmt.Errorf("handler panic: %v", r)
		}
		monitoring.QueueHandlerDuration.WithLabelValues(msg.Type).Observe(time.Since(start).Seconds())
		tracing.End(span, err)
	}()

	return h.Handle(ctx, msg)
}

// Start 在后台按 interval 周期执行 RunSweep，直到 ctx 结束
func (q *Queue) Start(ctx context.Context, interval func() time.Duration) {
	go func() {
		for {
			wait := interval()
			if wait <= 0 {
				wait = 10 * time.Second
			}
			select {
			case <-ctx.Done():
				return
			case <-time.After(wait):
			}
			if _, err := q.RunSweep(ctx); err != nil {
				logger.Log.Warn("queue sweep failed", zap.Error(err))
			}
		}
	}()
}
