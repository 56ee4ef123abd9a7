package model

type Level struct {
	BaseModel

	UserID     uint   `gorm:"index;not null" json:"userId"` // 作者
	Name       string `gorm:"size:255;not null" json:"name"`
	Data       string `gorm:"type:text;not null" json:"data"` // 每行一个字符串，以 \n 分隔
	Width      int    `gorm:"not null" json:"width"`
	Height     int    `gorm:"not null" json:"height"`
	LeastMoves int    `gorm:"not null" json:"leastMoves"`
	IsDraft    bool   `gorm:"default:false" json:"isDraft"`

	LevelAggregates
}

func (Level) TableName() string {
	return "levels"
}

// LevelAggregates 由会话与成绩两条写路径维护，其他代码不应直接写这些列
type LevelAggregates struct {
	CalcPlayattemptsDurationSum     int64   `gorm:"column:calc_playattempts_duration_sum;default:0" json:"calcPlayattemptsDurationSum"`
	CalcPlayattemptsCount           int64   `gorm:"column:calc_playattempts_count;default:0" json:"calcPlayattemptsCount"`
	CalcPlayattemptsJustBeatenCount int64   `gorm:"column:calc_playattempts_just_beaten_count;default:0" json:"calcPlayattemptsJustBeatenCount"`
	CalcPlayattemptsUniqueUsers     int64   `gorm:"column:calc_playattempts_unique_users_count;default:0" json:"calcPlayattemptsUniqueUsersCount"`
	CalcStatsPlayersBeaten          int64   `gorm:"column:calc_stats_players_beaten;default:0" json:"calcStatsPlayersBeaten"`
	CalcDifficultyEstimate          float64 `gorm:"column:calc_difficulty_estimate;default:-1" json:"calcDifficultyEstimate"`
	CalcDifficultyCompletion        float64 `gorm:"column:calc_difficulty_completion_estimate;default:-1" json:"calcDifficultyCompletionEstimate"`
	AggregateVersion                int64   `gorm:"column:aggregate_version;default:0" json:"aggregateVersion"`
}

// LevelUniquePlayer 是 calc_playattempts_unique_users 的集合表示
type LevelUniquePlayer struct {
	LevelID uint `gorm:"primaryKey;autoIncrement:false" json:"levelId"`
	UserID  uint `gorm:"primaryKey;autoIncrement:false" json:"userId"`
}

func (LevelUniquePlayer) TableName() string {
	return "level_unique_players"
}
