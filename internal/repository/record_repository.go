package repository

import (
	"playstats_backend/internal/model"

	"gorm.io/gorm"
)

type RecordRepository struct {
	DB *gorm.DB
}

func NewRecordRepository(db *gorm.DB) *RecordRepository {
	return &RecordRepository{DB: db}
}

func (r *RecordRepository) WithTx(tx *gorm.DB) *RecordRepository {
	return &RecordRepository{DB: tx}
}

func (r *RecordRepository) Create(record *model.Record) error {
	return r.DB.Create(record).Error
}

// Latest 当前纪录保持者，没有记录时返回 nil
func (r *RecordRepository) Latest(levelID uint) (*model.Record, error) {
	var records []model.Record
	err := r.DB.Where("level_id = ?", levelID).Order("ts desc, id desc").Limit(1).Find(&records).Error
	if err != nil || len(records) == 0 {
		return nil, err
	}
	return &records[0], nil
}

func (r *RecordRepository) ListByLevel(levelID uint) ([]model.Record, error) {
	var records []model.Record
	err := r.DB.Where("level_id = ?", levelID).Order("ts desc, id desc").Find(&records).Error
	return records, err
}
