package model

const NotificationNewRecordOnALevelYouBeat = "NEW_RECORD_ON_A_LEVEL_YOU_BEAT"

type Notification struct {
	BaseModel
	UserID       uint   `gorm:"index;not null" json:"userId"`
	SourceUserID uint   `gorm:"not null" json:"sourceUserId"`
	LevelID      uint   `gorm:"index;not null" json:"levelId"`
	Type         string `gorm:"size:50;not null" json:"type"`
	Read         bool   `gorm:"default:false" json:"read"`
}

func (Notification) TableName() string {
	return "notifications"
}
