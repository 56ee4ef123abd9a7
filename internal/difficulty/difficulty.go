// Package difficulty 将关卡聚合计数换算为难度估计值。纯函数，无 I/O。
package difficulty

import "math"

const (
	// MinUniqueUsers 样本量不足时返回 Pending
	MinUniqueUsers = 10

	// Pending 表示数据不足，尚无难度
	Pending = -1.0

	factorMidpoint  = 20.0
	factorSteepness = 0.2
	factorMax       = 1.5
)

// SolveCountFactor is a logistic multiplier that approaches factorMax for rarely solved levels
// and 1 for widely solved ones. Zero or negative counts are treated as 1.
func SolveCountFactor(solveCount int64) float64 {
	if solveCount <= 0 {
		solveCount = 1
	}
	return (factorMax-1)/(1+math.Exp(factorSteepness*(float64(solveCount)-factorMidpoint))) + 1
}

// Estimate returns the difficulty for a level, or Pending when durationSum is unknown or fewer
// than MinUniqueUsers players contributed.
func Estimate(durationSum *int64, justBeatenCount, uniqueUsers int64) float64 {
	if durationSum == nil || uniqueUsers < MinUniqueUsers {
		return Pending
	}
	solveCount := justBeatenCount
	if solveCount < 1 {
		solveCount = 1
	}
	return float64(*durationSum) / float64(solveCount) * SolveCountFactor(solveCount)
}

// Inputs 是一次估算所需的聚合快照
type Inputs struct {
	DurationSum     int64
	JustBeatenCount int64
	CompletionCount int64
	UniqueUsers     int64
}

// Beaten 按当前纪录时代内的通关次数估算
func (in Inputs) Beaten() float64 {
	sum := in.DurationSum
	return Estimate(&sum, in.JustBeatenCount, in.UniqueUsers)
}

// Completion 按已完成玩家数估算
func (in Inputs) Completion() float64 {
	sum := in.DurationSum
	return Estimate(&sum, in.CompletionCount, in.UniqueUsers)
}
