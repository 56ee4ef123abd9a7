package repository

import (
	"playstats_backend/internal/model"

	"gorm.io/gorm"
)

type NotificationRepository struct {
	DB *gorm.DB
}

func NewNotificationRepository(db *gorm.DB) *NotificationRepository {
	return &NotificationRepository{DB: db}
}

func (r *NotificationRepository) WithTx(tx *gorm.DB) *NotificationRepository {
	return &NotificationRepository{DB: tx}
}

func (r *NotificationRepository) CreateBatch(notifications []model.Notification) error {
	if len(notifications) == 0 {
		return nil
	}
	return r.DB.Create(&notifications).Error
}

func (r *NotificationRepository) FindByUserID(userID uint) ([]model.Notification, error) {
	var out []model.Notification
	err := r.DB.Where("user_id = ?", userID).Order("id desc").Find(&out).Error
	return out, err
}

// MarkRead 只能标记自己的通知，返回实际更新的行数
func (r *NotificationRepository) MarkRead(userID uint, ids []uint) (int64, error) {
	res := r.DB.Model(&model.Notification{}).
		Where("user_id = ? AND id IN ?", userID, ids).
		Update("read", true)
	return res.RowsAffected, res.Error
}
