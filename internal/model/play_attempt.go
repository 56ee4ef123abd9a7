package model

type AttemptContext string

const (
	AttemptUnbeaten   AttemptContext = "UNBEATEN"
	AttemptBeaten     AttemptContext = "BEATEN"
	AttemptJustBeaten AttemptContext = "JUST_BEATEN"
)

type PlayAttempt struct {
	BaseModel

	UserID         uint           `gorm:"index:idx_play_attempt_user_level,priority:1;not null" json:"userId"`
	LevelID        uint           `gorm:"index:idx_play_attempt_user_level,priority:2;index;not null" json:"levelId"`
	StartTime      int64          `gorm:"not null" json:"startTime"` // epoch 秒
	EndTime        int64          `gorm:"index:idx_play_attempt_user_level,priority:3;not null" json:"endTime"`
	AttemptContext AttemptContext `gorm:"size:20;not null;default:'UNBEATEN'" json:"attemptContext"`
	UpdateCount    int            `gorm:"default:0" json:"updateCount"`
}

func (PlayAttempt) TableName() string {
	return "play_attempts"
}

// Counted 非 BEATEN 的会话计入时长与人数
func (a *PlayAttempt) Counted() bool {
	return a.AttemptContext != AttemptBeaten
}

func (a *PlayAttempt) Duration() int64 {
	return a.EndTime - a.StartTime
}
