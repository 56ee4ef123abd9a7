package repository

import (
	"errors"
	"playstats_backend/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type LevelRepository struct {
	DB *gorm.DB
}

func NewLevelRepository(db *gorm.DB) *LevelRepository {
	return &LevelRepository{DB: db}
}

func (r *LevelRepository) WithTx(tx *gorm.DB) *LevelRepository {
	return &LevelRepository{DB: tx}
}

func (r *LevelRepository) Create(level *model.Level) error {
	return r.DB.Create(level).Error
}

func (r *LevelRepository) FindByID(id uint) (*model.Level, error) {
	var level model.Level
	if err := r.DB.First(&level, id).Error; err != nil {
		return nil, err
	}
	return &level, nil
}

// LockByID SELECT ... FOR UPDATE，同一关卡的纪录变更因此串行
func (r *LevelRepository) LockByID(id uint) (*model.Level, error) {
	var level model.Level
	err := r.DB.Clauses(clause.Locking{Strength: "UPDATE"}).First(&level, id).Error
	if err != nil {
		return nil, err
	}
	return &level, nil
}

func (r *LevelRepository) ListIDs() ([]uint, error) {
	var ids []uint
	err := r.DB.Model(&model.Level{}).Order("id asc").Pluck("id", &ids).Error
	return ids, err
}

// IncrementAggregates 对计数列做原子自增，避免读改写
func (r *LevelRepository) IncrementAggregates(levelID uint, deltas map[string]int64) error {
	updates := map[string]interface{}{
		"aggregate_version": gorm.Expr("aggregate_version + 1"),
	}
	for col, delta := range deltas {
		if delta == 0 {
			continue
		}
		updates[col] = gorm.Expr(col+" + ?", delta)
	}
	if len(updates) == 1 {
		return nil
	}
	return r.DB.Model(&model.Level{}).Where("id = ?", levelID).Updates(updates).Error
}

// AddUniquePlayer 集合语义：已存在时不计数，返回是否为新成员
func (r *LevelRepository) AddUniquePlayer(levelID, userID uint) (bool, error) {
	res := r.DB.Clauses(clause.OnConflict{DoNothing: true}).
		Create(&model.LevelUniquePlayer{LevelID: levelID, UserID: userID})
	if res.Error != nil {
		return false, res.Error
	}
	if res.RowsAffected == 0 {
		return false, nil
	}
	err := r.DB.Model(&model.Level{}).Where("id = ?", levelID).Updates(map[string]interface{}{
		"calc_playattempts_unique_users_count": gorm.Expr("calc_playattempts_unique_users_count + 1"),
		"aggregate_version":                    gorm.Expr("aggregate_version + 1"),
	}).Error
	return err == nil, err
}

func (r *LevelRepository) FindAggregates(levelID uint) (*model.LevelAggregates, error) {
	var level model.Level
	err := r.DB.Select(
		"id",
		"calc_playattempts_duration_sum",
		"calc_playattempts_count",
		"calc_playattempts_just_beaten_count",
		"calc_playattempts_unique_users_count",
		"calc_stats_players_beaten",
		"calc_difficulty_estimate",
		"calc_difficulty_completion_estimate",
		"aggregate_version",
	).First(&level, levelID).Error
	if err != nil {
		return nil, err
	}
	return &level.LevelAggregates, nil
}

func (r *LevelRepository) SetDifficulty(levelID uint, beaten, completion float64) error {
	return r.DB.Model(&model.Level{}).Where("id = ?", levelID).Updates(map[string]interface{}{
		"calc_difficulty_estimate":            beaten,
		"calc_difficulty_completion_estimate": completion,
	}).Error
}

// SetRecord 新纪录开启新的纪录时代，just_beaten 计数清零
func (r *LevelRepository) SetRecord(levelID uint, moves int) error {
	return r.DB.Model(&model.Level{}).Where("id = ?", levelID).Updates(map[string]interface{}{
		"least_moves":                         moves,
		"calc_playattempts_just_beaten_count": 0,
		"aggregate_version":                   gorm.Expr("aggregate_version + 1"),
	}).Error
}

// ReplaceAggregates 全量重算后整体覆盖，并重建去重玩家集合
func (r *LevelRepository) ReplaceAggregates(levelID uint, agg model.LevelAggregates, uniqueUsers []uint) error {
	if err := r.DB.Where("level_id = ?", levelID).Delete(&model.LevelUniquePlayer{}).Error; err != nil {
		return err
	}
	if len(uniqueUsers) > 0 {
		rows := make([]model.LevelUniquePlayer, 0, len(uniqueUsers))
		for _, uid := range uniqueUsers {
			rows = append(rows, model.LevelUniquePlayer{LevelID: levelID, UserID: uid})
		}
		if err := r.DB.CreateInBatches(&rows, 500).Error; err != nil {
			return err
		}
	}
	res := r.DB.Model(&model.Level{}).Where("id = ?", levelID).Updates(map[string]interface{}{
		"calc_playattempts_duration_sum":       agg.CalcPlayattemptsDurationSum,
		"calc_playattempts_count":              agg.CalcPlayattemptsCount,
		"calc_playattempts_just_beaten_count":  agg.CalcPlayattemptsJustBeatenCount,
		"calc_playattempts_unique_users_count": agg.CalcPlayattemptsUniqueUsers,
		"calc_stats_players_beaten":            agg.CalcStatsPlayersBeaten,
		"calc_difficulty_estimate":             agg.CalcDifficultyEstimate,
		"calc_difficulty_completion_estimate":  agg.CalcDifficultyCompletion,
		"aggregate_version":                    gorm.Expr("aggregate_version + 1"),
	})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func IsNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}
