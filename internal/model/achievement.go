package model

type AchievementType string

const (
	AchievementScore1    AchievementType = "SCORE_1"
	AchievementScore10   AchievementType = "SCORE_10"
	AchievementScore50   AchievementType = "SCORE_50"
	AchievementScore100  AchievementType = "SCORE_100"
	AchievementScore500  AchievementType = "SCORE_500"
	AchievementScore1000 AchievementType = "SCORE_1000"
)

type Achievement struct {
	BaseModel
	UserID uint            `gorm:"uniqueIndex:idx_achievement_user_type,priority:1;not null" json:"userId"`
	Type   AchievementType `gorm:"uniqueIndex:idx_achievement_user_type,priority:2;size:50;not null" json:"type"`
}

func (Achievement) TableName() string {
	return "achievements"
}
