package model

type Stat struct {
	BaseModel

	UserID   uint  `gorm:"uniqueIndex:idx_stat_user_level,priority:1;not null" json:"userId"`
	LevelID  uint  `gorm:"uniqueIndex:idx_stat_user_level,priority:2;index;not null" json:"levelId"`
	Moves    int   `gorm:"not null" json:"moves"`
	Complete bool  `gorm:"default:false;index" json:"complete"`
	Attempts int   `gorm:"default:0" json:"attempts"`
	Ts       int64 `gorm:"not null" json:"ts"`
}

func (Stat) TableName() string {
	return "stats"
}

// Record 只追加，不修改
type Record struct {
	BaseModel

	LevelID uint  `gorm:"index:idx_record_level_ts,priority:1;not null" json:"levelId"`
	UserID  uint  `gorm:"index;not null" json:"userId"`
	Moves   int   `gorm:"not null" json:"moves"`
	Ts      int64 `gorm:"index:idx_record_level_ts,priority:2;not null" json:"ts"`
}

func (Record) TableName() string {
	return "records"
}
