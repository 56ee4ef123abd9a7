package repository

import (
	"playstats_backend/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type AchievementRepository struct {
	DB *gorm.DB
}

func NewAchievementRepository(db *gorm.DB) *AchievementRepository {
	return &AchievementRepository{DB: db}
}

func (r *AchievementRepository) WithTx(tx *gorm.DB) *AchievementRepository {
	return &AchievementRepository{DB: tx}
}

func (r *AchievementRepository) FindByUserID(userID uint) ([]model.Achievement, error) {
	var achievements []model.Achievement
	err := r.DB.Where("user_id = ?", userID).Order("id asc").Find(&achievements).Error
	return achievements, err
}

// Grant 每个 (user, type) 只发一次，返回是否新发放
func (r *AchievementRepository) Grant(userID uint, t model.AchievementType) (bool, error) {
	res := r.DB.Clauses(clause.OnConflict{DoNothing: true}).
		Create(&model.Achievement{UserID: userID, Type: t})
	return res.RowsAffected > 0, res.Error
}
