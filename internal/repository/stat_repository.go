package repository

import (
	"playstats_backend/internal/model"

	"gorm.io/gorm"
)

type StatRepository struct {
	DB *gorm.DB
}

func NewStatRepository(db *gorm.DB) *StatRepository {
	return &StatRepository{DB: db}
}

func (r *StatRepository) WithTx(tx *gorm.DB) *StatRepository {
	return &StatRepository{DB: tx}
}

// FindByUserAndLevel 不存在时返回 nil, nil
func (r *StatRepository) FindByUserAndLevel(userID, levelID uint) (*model.Stat, error) {
	var stats []model.Stat
	err := r.DB.Where("user_id = ? AND level_id = ?", userID, levelID).Limit(1).Find(&stats).Error
	if err != nil || len(stats) == 0 {
		return nil, err
	}
	return &stats[0], nil
}

func (r *StatRepository) Create(stat *model.Stat) error {
	return r.DB.Create(stat).Error
}

func (r *StatRepository) Update(stat *model.Stat) error {
	return r.DB.Save(stat).Error
}

func (r *StatRepository) IncrementAttempts(id uint) error {
	return r.DB.Model(&model.Stat{}).Where("id = ?", id).
		Update("attempts", gorm.Expr("attempts + 1")).Error
}

// FindCompleteWorseThan 新纪录下不再达标的已完成记录
func (r *StatRepository) FindCompleteWorseThan(levelID uint, moves int) ([]model.Stat, error) {
	var stats []model.Stat
	err := r.DB.Where("level_id = ? AND complete = ? AND moves > ?", levelID, true, moves).
		Order("id asc").
		Find(&stats).Error
	return stats, err
}

func (r *StatRepository) MarkIncomplete(ids []uint) error {
	if len(ids) == 0 {
		return nil
	}
	return r.DB.Model(&model.Stat{}).Where("id IN ?", ids).Update("complete", false).Error
}

func (r *StatRepository) CountComplete(levelID uint) (int64, error) {
	var count int64
	err := r.DB.Model(&model.Stat{}).Where("level_id = ? AND complete = ?", levelID, true).Count(&count).Error
	return count, err
}
