package service

import (
	"context"
	"errors"
	"playstats_backend/internal/model"
	"playstats_backend/internal/repository"
	"playstats_backend/internal/util"
	"playstats_backend/pkg/logger"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

type AchievementService struct {
	AchievementRepo *repository.AchievementRepository
	UserRepo        *repository.UserRepository
}

func NewAchievementService(achievementRepo *repository.AchievementRepository, userRepo *repository.UserRepository) *AchievementService {
	return &AchievementService{AchievementRepo: achievementRepo, UserRepo: userRepo}
}

type LeaderboardEntry struct {
	Rank        int    `json:"rank"`
	UserID      uint   `json:"userId"`
	Name        string `json:"name"`
	Score       int    `json:"score"`
	CalcRecords int    `json:"calcRecords"`
}

var scoreThresholds = []struct {
	Score int
	Type  model.AchievementType
}{
	{1, model.AchievementScore1},
	{10, model.AchievementScore10},
	{50, model.AchievementScore50},
	{100, model.AchievementScore100},
	{500, model.AchievementScore500},
	{1000, model.AchievementScore1000},
}

// ScoreAchievements 返回该分数已达到的全部阈值成就
func ScoreAchievements(score int) []model.AchievementType {
	var out []model.AchievementType
	for _, th := range scoreThresholds {
		if score >= th.Score {
			out = append(out, th.Type)
		}
	}
	return out
}

// GrantForScore 在调用方事务内发放成就，已拥有的不会重复发放
func (s *AchievementService) GrantForScore(tx *gorm.DB, userID uint, score int) ([]model.AchievementType, error) {
	repo := s.AchievementRepo.WithTx(tx)
	var granted []model.AchievementType
	for _, t := range ScoreAchievements(score) {
		ok, err := repo.Grant(userID, t)
		if err != nil {
			return nil, err
		}
		if ok {
			granted = append(granted, t)
		}
	}
	if len(granted) > 0 {
		logger.Log.Info("achievements granted",
			zap.Uint("userId", userID),
			zap.Int("score", score),
			zap.Any("achievements", granted))
	}
	return granted, nil
}

// NextAchievement 下一个尚未达到的分数阈值
type NextAchievement struct {
	Type      model.AchievementType `json:"type"`
	Score     int                   `json:"score"`
	Remaining int                   `json:"remaining"`
}

type AchievementProgress struct {
	Score        int                 `json:"score"`
	Achievements []model.Achievement `json:"achievements"`
	// 全部达成后为 nil
	Next *NextAchievement `json:"next,omitempty"`
}

// NextThreshold 分数已越过全部阈值时返回 nil
func NextThreshold(score int) *NextAchievement {
	for _, th := range scoreThresholds {
		if score < th.Score {
			return &NextAchievement{Type: th.Type, Score: th.Score, Remaining: th.Score - score}
		}
	}
	return nil
}

// Progress 当前分数、已获得成就与下一个目标
func (s *AchievementService) Progress(ctx context.Context, userID uint) (*AchievementProgress, error) {
	user, err := s.UserRepo.WithTx(s.UserRepo.DB.WithContext(ctx)).FindByID(userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, util.ErrUserNotFound
		}
		return nil, err
	}
	achievements, err := s.ListForUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &AchievementProgress{
		Score:        user.Score,
		Achievements: achievements,
		Next:         NextThreshold(user.Score),
	}, nil
}

func (s *AchievementService) ListForUser(ctx context.Context, userID uint) ([]model.Achievement, error) {
	return s.AchievementRepo.WithTx(s.AchievementRepo.DB.WithContext(ctx)).FindByUserID(userID)
}

func (s *AchievementService) Leaderboard(ctx context.Context, limit int) ([]LeaderboardEntry, error) {
	if limit <= 0 || limit > 100 {
		limit = 10
	}
	users, err := s.UserRepo.WithTx(s.UserRepo.DB.WithContext(ctx)).TopByScore(limit)
	if err != nil {
		return nil, err
	}
	entries := make([]LeaderboardEntry, 0, len(users))
	for i, u := range users {
		entries = append(entries, LeaderboardEntry{
			Rank:        i + 1,
			UserID:      u.ID,
			Name:        u.Name,
			Score:       u.Score,
			CalcRecords: u.CalcRecords,
		})
	}
	return entries, nil
}
