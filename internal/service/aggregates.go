package service

import (
	"playstats_backend/internal/difficulty"
	"playstats_backend/internal/model"
	"playstats_backend/internal/repository"
)

const (
	colDurationSum   = "calc_playattempts_duration_sum"
	colAttemptCount  = "calc_playattempts_count"
	colJustBeaten    = "calc_playattempts_just_beaten_count"
	colPlayersBeaten = "calc_stats_players_beaten"
)

// countSession 把一段可计数的游玩计入关卡聚合，并将玩家加入去重集合
func countSession(levels *repository.LevelRepository, levelID, userID uint, deltas map[string]int64) error {
	if err := levels.IncrementAggregates(levelID, deltas); err != nil {
		return err
	}
	_, err := levels.AddUniquePlayer(levelID, userID)
	return err
}

func difficultyInputs(agg *model.LevelAggregates) difficulty.Inputs {
	return difficulty.Inputs{
		DurationSum:     agg.CalcPlayattemptsDurationSum,
		JustBeatenCount: agg.CalcPlayattemptsJustBeatenCount,
		CompletionCount: agg.CalcStatsPlayersBeaten,
		UniqueUsers:     agg.CalcPlayattemptsUniqueUsers,
	}
}

// refreshDifficulty 样本量达到阈值后，每次聚合写入都重新估算
func refreshDifficulty(levels *repository.LevelRepository, levelID uint) error {
	agg, err := levels.FindAggregates(levelID)
	if err != nil {
		return err
	}
	if agg.CalcPlayattemptsUniqueUsers < difficulty.MinUniqueUsers {
		return nil
	}
	in := difficultyInputs(agg)
	return levels.SetDifficulty(levelID, in.Beaten(), in.Completion())
}
