package repository

import (
	"playstats_backend/internal/model"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type QueueMessageRepository struct {
	DB *gorm.DB
}

func NewQueueMessageRepository(db *gorm.DB) *QueueMessageRepository {
	return &QueueMessageRepository{DB: db}
}

func (r *QueueMessageRepository) WithTx(tx *gorm.DB) *QueueMessageRepository {
	return &QueueMessageRepository{DB: tx}
}

// CreateUnlessPending 插入消息；同一 dedupe key 已有 PENDING 消息时不插入，返回 false
func (r *QueueMessageRepository) CreateUnlessPending(msg *model.QueueMessage) (bool, error) {
	res := r.DB.Clauses(clause.OnConflict{DoNothing: true}).Create(msg)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *QueueMessageRepository) FindPendingByDedupeKey(key string) (*model.QueueMessage, error) {
	var msg model.QueueMessage
	err := r.DB.Where("pending_dedupe_key = ?", key).First(&msg).Error
	if err != nil {
		return nil, err
	}
	return &msg, nil
}

func (r *QueueMessageRepository) FindByID(id string) (*model.QueueMessage, error) {
	var msg model.QueueMessage
	if err := r.DB.First(&msg, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &msg, nil
}

func (r *QueueMessageRepository) LockByID(id string) (*model.QueueMessage, error) {
	var msg model.QueueMessage
	err := r.DB.Clauses(clause.Locking{Strength: "UPDATE"}).First(&msg, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &msg, nil
}

func (r *QueueMessageRepository) ListByState(state model.QueueMessageState, limit int) ([]model.QueueMessage, error) {
	var msgs []model.QueueMessage
	q := r.DB.Where("state = ?", state).Order("created_at desc")
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&msgs).Error
	return msgs, err
}

// CountByState 只统计出现过的状态
func (r *QueueMessageRepository) CountByState() (map[model.QueueMessageState]int64, error) {
	var rows []struct {
		State model.QueueMessageState
		Total int64
	}
	err := r.DB.Model(&model.QueueMessage{}).
		Select("state, COUNT(*) AS total").
		Group("state").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	counts := make(map[model.QueueMessageState]int64, len(rows))
	for _, row := range rows {
		counts[row.State] = row.Total
	}
	return counts, nil
}

// LockRunnable 选出到期的 PENDING 消息以及超时且未用尽次数的 PROCESSING 消息（SKIP LOCKED）
func (r *QueueMessageRepository) LockRunnable(now, staleBefore time.Time, maxAttempts, limit int) ([]model.QueueMessage, error) {
	var msgs []model.QueueMessage
	q := r.DB.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
		Where(`
        (
          (state = ? AND run_at <= ?)
          OR (
            state = ?
            AND processing_started_at < ?
            AND processing_attempts < ?
          )
        )
      `, model.QueueStatePending, now, model.QueueStateProcessing, staleBefore, maxAttempts).
		Order("run_at asc")
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&msgs).Error
	return msgs, err
}

// LockExhausted 超时且已用尽重试次数的 PROCESSING 消息
func (r *QueueMessageRepository) LockExhausted(staleBefore time.Time, maxAttempts int) ([]model.QueueMessage, error) {
	var msgs []model.QueueMessage
	err := r.DB.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
		Where("state = ? AND processing_started_at < ? AND processing_attempts >= ?",
			model.QueueStateProcessing, staleBefore, maxAttempts).
		Find(&msgs).Error
	return msgs, err
}

// MarkProcessing 批量认领
func (r *QueueMessageRepository) MarkProcessing(ids []string, now time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	return r.DB.Model(&model.QueueMessage{}).Where("id IN ?", ids).Updates(map[string]interface{}{
		"state":                 model.QueueStateProcessing,
		"processing_started_at": now,
		"processing_attempts":   gorm.Expr("processing_attempts + 1"),
		"pending_dedupe_key":    nil,
	}).Error
}

func (r *QueueMessageRepository) UpdateFields(id string, updates map[string]interface{}) error {
	return r.DB.Model(&model.QueueMessage{}).Where("id = ?", id).Updates(updates).Error
}

func (r *QueueMessageRepository) HasOtherPending(key, exceptID string) (bool, error) {
	var count int64
	err := r.DB.Model(&model.QueueMessage{}).
		Where("pending_dedupe_key = ? AND id <> ?", key, exceptID).
		Count(&count).Error
	return count > 0, err
}
