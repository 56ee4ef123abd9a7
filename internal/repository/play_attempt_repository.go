package repository

import (
	"playstats_backend/internal/model"

	"gorm.io/gorm"
)

type PlayAttemptRepository struct {
	DB *gorm.DB
}

func NewPlayAttemptRepository(db *gorm.DB) *PlayAttemptRepository {
	return &PlayAttemptRepository{DB: db}
}

func (r *PlayAttemptRepository) WithTx(tx *gorm.DB) *PlayAttemptRepository {
	return &PlayAttemptRepository{DB: tx}
}

func (r *PlayAttemptRepository) Create(attempt *model.PlayAttempt) error {
	return r.DB.Create(attempt).Error
}

// FindExtendable 返回仍在窗口内且未封存的最新会话，没有时返回 nil
func (r *PlayAttemptRepository) FindExtendable(userID, levelID uint, endAfter int64) (*model.PlayAttempt, error) {
	var attempts []model.PlayAttempt
	err := r.DB.Where("user_id = ? AND level_id = ? AND end_time > ? AND attempt_context <> ?",
		userID, levelID, endAfter, model.AttemptJustBeaten).
		Order("end_time desc, id desc").
		Limit(1).
		Find(&attempts).Error
	if err != nil || len(attempts) == 0 {
		return nil, err
	}
	return &attempts[0], nil
}

// Extend 只延长 end_time，不改上下文
func (r *PlayAttemptRepository) Extend(id uint, endTime int64) (bool, error) {
	return r.touch(id, map[string]interface{}{
		"end_time":     endTime,
		"update_count": gorm.Expr("update_count + 1"),
	})
}

// Seal 延长并封存为 JUST_BEATEN
func (r *PlayAttemptRepository) Seal(id uint, endTime int64) (bool, error) {
	return r.touch(id, map[string]interface{}{
		"end_time":        endTime,
		"attempt_context": model.AttemptJustBeaten,
		"update_count":    gorm.Expr("update_count + 1"),
	})
}

// touch 已封存的会话不再改动，返回 false 时调用方应开启新会话
func (r *PlayAttemptRepository) touch(id uint, updates map[string]interface{}) (bool, error) {
	res := r.DB.Model(&model.PlayAttempt{}).
		Where("id = ? AND attempt_context <> ?", id, model.AttemptJustBeaten).
		Updates(updates)
	return res.RowsAffected > 0, res.Error
}

// ResetContexts 纪录改变后，除 keepID 外该关卡所有会话回到 UNBEATEN
func (r *PlayAttemptRepository) ResetContexts(levelID, keepID uint) (int64, error) {
	res := r.DB.Model(&model.PlayAttempt{}).
		Where("level_id = ? AND id <> ? AND attempt_context <> ?", levelID, keepID, model.AttemptUnbeaten).
		Update("attempt_context", model.AttemptUnbeaten)
	return res.RowsAffected, res.Error
}

type ContextSummary struct {
	Duration int64
	Count    int64
	UserIDs  []uint
}

// SummarizeContext 统计关卡中某一上下文的会话，exceptID 除外
func (r *PlayAttemptRepository) SummarizeContext(levelID uint, ctx model.AttemptContext, exceptID uint) (*ContextSummary, error) {
	q := r.DB.Model(&model.PlayAttempt{}).
		Where("level_id = ? AND attempt_context = ? AND id <> ?", levelID, ctx, exceptID)

	var row struct {
		Duration int64
		Count    int64
	}
	if err := q.Session(&gorm.Session{}).
		Select("COALESCE(SUM(end_time - start_time), 0) AS duration, COUNT(*) AS count").
		Scan(&row).Error; err != nil {
		return nil, err
	}
	summary := &ContextSummary{Duration: row.Duration, Count: row.Count}
	if row.Count == 0 {
		return summary, nil
	}
	if err := q.Session(&gorm.Session{}).Distinct("user_id").Order("user_id asc").Pluck("user_id", &summary.UserIDs).Error; err != nil {
		return nil, err
	}
	return summary, nil
}

// ScanLevel 按批次遍历关卡的全部会话
func (r *PlayAttemptRepository) ScanLevel(levelID uint, batchSize int, fn func(batch []model.PlayAttempt) error) error {
	var batch []model.PlayAttempt
	res := r.DB.Where("level_id = ?", levelID).FindInBatches(&batch, batchSize, func(tx *gorm.DB, _ int) error {
		return fn(batch)
	})
	return res.Error
}
