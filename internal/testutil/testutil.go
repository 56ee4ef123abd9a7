package testutil

import (
	"path/filepath"
	"playstats_backend/internal/model"
	"playstats_backend/internal/util"
	"playstats_backend/pkg/database"
	"strconv"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"
)

// DB 每个测试一个独立的 sqlite 文件库，已完成迁移
func DB(tb testing.TB) *gorm.DB {
	tb.Helper()
	path := filepath.Join(tb.TempDir(), "test.db")
	db, err := gorm.Open(sqlite.Open(path+"?_busy_timeout=5000"), &gorm.Config{
		Logger: gormLogger.Default.LogMode(gormLogger.Silent),
	})
	if err != nil {
		tb.Fatalf("open test db: %v", err)
	}
	// sqlite 只允许一个写者，单连接让并发测试在连接池上排队
	if sqlDB, err := db.DB(); err == nil {
		sqlDB.SetMaxOpenConns(1)
	}
	if err := database.Migrate(db); err != nil {
		tb.Fatalf("migrate test db: %v", err)
	}
	tb.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

func SeedUser(tb testing.TB, db *gorm.DB, name string) *model.User {
	tb.Helper()
	u := &model.User{Name: name, Role: model.Player}
	if err := db.Create(u).Error; err != nil {
		tb.Fatalf("seed user: %v", err)
	}
	return u
}

// SeedLevel 创建一个已发布关卡，并为作者写入初始纪录
func SeedLevel(tb testing.TB, db *gorm.DB, author *model.User, leastMoves int) *model.Level {
	tb.Helper()
	level := &model.Level{
		UserID:     author.ID,
		Name:       "test level",
		Data:       "4000\n0000\n0003",
		Width:      4,
		Height:     3,
		LeastMoves: leastMoves,
		LevelAggregates: model.LevelAggregates{
			CalcDifficultyEstimate:   -1,
			CalcDifficultyCompletion: -1,
		},
	}
	if err := db.Create(level).Error; err != nil {
		tb.Fatalf("seed level: %v", err)
	}
	if err := db.Create(&model.Record{LevelID: level.ID, UserID: author.ID, Moves: leastMoves, Ts: 0}).Error; err != nil {
		tb.Fatalf("seed record: %v", err)
	}
	return level
}

func SeedStat(tb testing.TB, db *gorm.DB, user *model.User, level *model.Level, moves int, complete bool) *model.Stat {
	tb.Helper()
	stat := &model.Stat{UserID: user.ID, LevelID: level.ID, Moves: moves, Complete: complete, Attempts: 1}
	if err := db.Create(stat).Error; err != nil {
		tb.Fatalf("seed stat: %v", err)
	}
	return stat
}

func ReloadLevel(tb testing.TB, db *gorm.DB, id uint) *model.Level {
	tb.Helper()
	var level model.Level
	if err := db.First(&level, id).Error; err != nil {
		tb.Fatalf("reload level: %v", err)
	}
	return &level
}

func ReloadUser(tb testing.TB, db *gorm.DB, id uint) *model.User {
	tb.Helper()
	var user model.User
	if err := db.First(&user, id).Error; err != nil {
		tb.Fatalf("reload user: %v", err)
	}
	return &user
}

// Token 签发测试用令牌。服务本身只校验外部账号服务签发的令牌
func Token(tb testing.TB, user *model.User, secret string, ttl time.Duration) string {
	tb.Helper()
	now := time.Now()
	claims := &util.Claims{
		UserID: user.ID,
		Role:   user.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "playstats",
			Subject:   strconv.FormatUint(uint64(user.ID), 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		tb.Fatalf("sign token: %v", err)
	}
	return token
}
