package model

import (
	"time"
)

type UserRole string

const (
	Player UserRole = "player"
	Admin  UserRole = "admin"
)

type User struct {
	BaseModel
	Name        string    `gorm:"size:100;not null" json:"name"`
	Role        UserRole  `gorm:"size:20;default:'player'" json:"role"`
	Score       int       `gorm:"default:0" json:"score"`       // 已完成关卡数
	CalcRecords int       `gorm:"default:0" json:"calcRecords"` // 当前持有的纪录数（不含自己创作的关卡）
	LastSeen    time.Time `json:"lastSeen"`
}

func (User) TableName() string {
	return "users"
}
