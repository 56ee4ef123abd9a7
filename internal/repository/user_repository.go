package repository

import (
	"playstats_backend/internal/model"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type UserRepository struct {
	DB *gorm.DB
}

func NewUserRepository(db *gorm.DB) *UserRepository {
	return &UserRepository{DB: db}
}

func (r *UserRepository) WithTx(tx *gorm.DB) *UserRepository {
	return &UserRepository{DB: tx}
}

func (r *UserRepository) Create(user *model.User) error {
	return r.DB.Create(user).Error
}

func (r *UserRepository) FindByID(id uint) (*model.User, error) {
	var user model.User
	err := r.DB.First(&user, id).Error
	return &user, err
}

// LockByID 用户行锁，总是在关卡行锁之后获取
func (r *UserRepository) LockByID(id uint) (*model.User, error) {
	var user model.User
	err := r.DB.Clauses(clause.Locking{Strength: "UPDATE"}).First(&user, id).Error
	return &user, err
}

func (r *UserRepository) IncrementScore(userID uint, delta int) error {
	return r.DB.Model(&model.User{}).
		Where("id = ?", userID).
		Update("score", gorm.Expr("score + ?", delta)).
		Error
}

func (r *UserRepository) IncrementRecords(userID uint, delta int) error {
	return r.DB.Model(&model.User{}).
		Where("id = ?", userID).
		Update("calc_records", gorm.Expr("calc_records + ?", delta)).
		Error
}

func (r *UserRepository) UpdateLastSeen(userID uint) error {
	return r.DB.Model(&model.User{}).
		Where("id = ?", userID).
		Update("last_seen", time.Now()).
		Error
}

// TopByScore 排行榜，同分按纪录数再按 id
func (r *UserRepository) TopByScore(limit int) ([]model.User, error) {
	var users []model.User
	err := r.DB.Order("score DESC").
		Order("calc_records DESC").
		Order("id ASC").
		Limit(limit).
		Find(&users).Error
	return users, err
}
