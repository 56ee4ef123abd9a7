package service

import (
	"context"
	"playstats_backend/internal/model"
	"playstats_backend/internal/testutil"
	"playstats_backend/internal/util"
	"playstats_backend/internal/validator"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubmitMatchingRecordSealsSession(t *testing.T) {
	e := newTestEnv(t)
	author := testutil.SeedUser(t, e.db, "author")
	player := testutil.SeedUser(t, e.db, "player")
	level := testutil.SeedLevel(t, e.db, author, 20)

	assert.Equal(t, SessionCreated, e.heartbeat(t, player, level, 0).SessionState)
	e.heartbeat(t, player, level, 60)
	assert.EqualValues(t, 60, e.aggregatesOf(t, level).CalcPlayattemptsDurationSum)

	res := e.submit(t, player, level, 20, 90)
	assert.Equal(t, &SubmitResult{Accepted: true, NewRecord: false, Complete: true}, res)

	attempts := e.attempts(t, level)
	require.Len(t, attempts, 1)
	assert.Equal(t, model.AttemptJustBeaten, attempts[0].AttemptContext)
	assert.EqualValues(t, 90, attempts[0].EndTime-t0.Unix())

	st := e.stat(t, player, level)
	assert.Equal(t, 20, st.Moves)
	assert.True(t, st.Complete)
	assert.Equal(t, 1, st.Attempts)

	assert.Equal(t, 1, testutil.ReloadUser(t, e.db, player.ID).Score)
	assert.Equal(t, 20, testutil.ReloadLevel(t, e.db, level.ID).LeastMoves)

	// 会话封存时的 30 秒同样计入，全量重算能得到相同结果。
	// 这里有意不取 60 秒与 just_beaten 不变的写法，那样增量结果会和重算不一致
	agg := e.aggregatesOf(t, level)
	assert.EqualValues(t, 90, agg.CalcPlayattemptsDurationSum)
	assert.EqualValues(t, 1, agg.CalcPlayattemptsJustBeatenCount)
	assert.EqualValues(t, 1, agg.CalcPlayattemptsCount)
	assert.EqualValues(t, 1, agg.CalcStatsPlayersBeaten)

	var queued int64
	require.NoError(t, e.db.Model(&model.QueueMessage{}).Count(&queued).Error)
	assert.Zero(t, queued)

	e.requireEquivalent(t, level)

	// 封存后的心跳开启新会话
	next := e.heartbeat(t, player, level, 100)
	assert.Equal(t, SessionCreated, next.SessionState)
	assert.Equal(t, model.AttemptBeaten, e.attempts(t, level)[1].AttemptContext)
}

func TestSubmitStatTransitions(t *testing.T) {
	e := newTestEnv(t)
	author := testutil.SeedUser(t, e.db, "author")
	player := testutil.SeedUser(t, e.db, "player")
	level := testutil.SeedLevel(t, e.db, author, 20)

	res := e.submit(t, player, level, 30, 0)
	assert.False(t, res.Complete)
	st := e.stat(t, player, level)
	assert.Equal(t, 30, st.Moves)
	assert.Equal(t, 1, st.Attempts)
	assert.Equal(t, 0, testutil.ReloadUser(t, e.db, player.ID).Score)

	// 练习：不改变最佳成绩
	e.submit(t, player, level, 35, 10)
	st = e.stat(t, player, level)
	assert.Equal(t, 30, st.Moves)
	assert.Equal(t, 2, st.Attempts)
	assert.EqualValues(t, t0.Unix(), st.Ts)

	// 改进并达标
	res = e.submit(t, player, level, 20, 20)
	assert.True(t, res.Complete)
	assert.False(t, res.NewRecord)
	st = e.stat(t, player, level)
	assert.Equal(t, 20, st.Moves)
	assert.True(t, st.Complete)
	assert.Equal(t, 3, st.Attempts)
	assert.EqualValues(t, at(20).Unix(), st.Ts)
	assert.Equal(t, 1, testutil.ReloadUser(t, e.db, player.ID).Score)

	// 再次达标不重复加分
	e.submit(t, player, level, 20, 30)
	assert.Equal(t, 1, testutil.ReloadUser(t, e.db, player.ID).Score)
	assert.Equal(t, 4, e.stat(t, player, level).Attempts)

	achievements, err := e.results.Achievements.ListForUser(context.Background(), player.ID)
	require.NoError(t, err)
	require.Len(t, achievements, 1)
	assert.Equal(t, model.AchievementScore1, achievements[0].Type)

	e.requireEquivalent(t, level)
}

func TestSubmitNewRecord(t *testing.T) {
	e := newTestEnv(t)
	author := testutil.SeedUser(t, e.db, "author")
	holder := testutil.SeedUser(t, e.db, "holder")
	tied := testutil.SeedUser(t, e.db, "tied")
	behind := testutil.SeedUser(t, e.db, "behind")
	challenger := testutil.SeedUser(t, e.db, "challenger")
	level := testutil.SeedLevel(t, e.db, author, 25)

	e.heartbeat(t, holder, level, 0)
	res := e.submit(t, holder, level, 20, 30)
	require.True(t, res.NewRecord)
	assert.Equal(t, 1, testutil.ReloadUser(t, e.db, holder.ID).CalcRecords)

	e.heartbeat(t, tied, level, 0)
	e.submit(t, tied, level, 20, 40)
	e.heartbeat(t, behind, level, 0)
	e.submit(t, behind, level, 22, 50)
	// 已通关玩家的重玩会话
	e.heartbeat(t, holder, level, 1000)
	e.heartbeat(t, holder, level, 1100)
	e.requireEquivalent(t, level)

	e.heartbeat(t, challenger, level, 1000)
	e.heartbeat(t, challenger, level, 1200)
	res = e.submit(t, challenger, level, 15, 1210)
	assert.Equal(t, &SubmitResult{Accepted: true, NewRecord: true, Complete: true}, res)

	got := testutil.ReloadLevel(t, e.db, level.ID)
	assert.Equal(t, 15, got.LeastMoves)

	var records []model.Record
	require.NoError(t, e.db.Where("level_id = ?", level.ID).Order("id asc").Find(&records).Error)
	require.Len(t, records, 3)
	assert.Equal(t, challenger.ID, records[2].UserID)
	assert.Equal(t, 15, records[2].Moves)

	assert.Equal(t, 0, testutil.ReloadUser(t, e.db, holder.ID).CalcRecords)
	assert.Equal(t, 1, testutil.ReloadUser(t, e.db, challenger.ID).CalcRecords)
	assert.Equal(t, 0, testutil.ReloadUser(t, e.db, author.ID).CalcRecords)

	for _, u := range []*model.User{holder, tied} {
		assert.False(t, e.stat(t, u, level).Complete, u.Name)
		assert.Equal(t, 0, testutil.ReloadUser(t, e.db, u.ID).Score, u.Name)
		notes, err := e.results.NotificationRepo.FindByUserID(u.ID)
		require.NoError(t, err)
		require.Len(t, notes, 1, u.Name)
		assert.Equal(t, challenger.ID, notes[0].SourceUserID)
		assert.Equal(t, model.NotificationNewRecordOnALevelYouBeat, notes[0].Type)
	}
	assert.False(t, e.stat(t, behind, level).Complete)
	notes, err := e.results.NotificationRepo.FindByUserID(behind.ID)
	require.NoError(t, err)
	assert.Empty(t, notes)
	assert.Equal(t, 1, testutil.ReloadUser(t, e.db, challenger.ID).Score)

	for _, a := range e.attempts(t, level) {
		if a.UserID == challenger.ID {
			assert.Equal(t, model.AttemptJustBeaten, a.AttemptContext)
			continue
		}
		assert.Equal(t, model.AttemptUnbeaten, a.AttemptContext)
	}

	agg := e.aggregatesOf(t, level)
	assert.EqualValues(t, 1, agg.CalcPlayattemptsJustBeatenCount)
	assert.EqualValues(t, 1, agg.CalcStatsPlayersBeaten)

	msgs, err := e.queue.Repo.ListByState(model.QueueStatePending, 0)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, RecomputeDedupeKey(level.ID), msgs[0].DedupeKey)

	e.requireEquivalent(t, level)
}

func TestSubmitRecordByAuthorKeepsCounters(t *testing.T) {
	e := newTestEnv(t)
	author := testutil.SeedUser(t, e.db, "author")
	player := testutil.SeedUser(t, e.db, "player")
	level := testutil.SeedLevel(t, e.db, author, 25)

	e.submit(t, player, level, 20, 0)
	assert.Equal(t, 1, testutil.ReloadUser(t, e.db, player.ID).CalcRecords)

	e.submit(t, author, level, 18, 10)
	assert.Equal(t, 0, testutil.ReloadUser(t, e.db, player.ID).CalcRecords)
	assert.Equal(t, 0, testutil.ReloadUser(t, e.db, author.ID).CalcRecords)

	// 自己刷新自己的纪录不改变持有数
	e.submit(t, author, level, 16, 20)
	assert.Equal(t, 0, testutil.ReloadUser(t, e.db, author.ID).CalcRecords)
	assert.Equal(t, 16, testutil.ReloadLevel(t, e.db, level.ID).LeastMoves)
}

func TestSubmitValidation(t *testing.T) {
	e := newTestEnv(t)
	author := testutil.SeedUser(t, e.db, "author")
	player := testutil.SeedUser(t, e.db, "player")
	level := testutil.SeedLevel(t, e.db, author, 5)
	ctx := context.Background()

	_, err := e.results.SubmitResult(ctx, player.ID, 9999, moves(5), t0)
	assert.ErrorIs(t, err, util.ErrLevelNotFound)

	_, err = e.results.SubmitResult(ctx, player.ID, level.ID, nil, t0)
	assert.ErrorIs(t, err, util.ErrInvalidMoves)

	_, err = e.results.SubmitResult(ctx, 9999, level.ID, moves(5), t0)
	assert.ErrorIs(t, err, util.ErrUserNotFound)

	e.results.Validator = validator.NewGridValidator()
	_, err = e.results.SubmitResult(ctx, player.ID, level.ID, []validator.Direction{validator.Right}, t0)
	assert.ErrorIs(t, err, util.ErrInvalidSolution)

	res, err := e.results.SubmitResult(ctx, player.ID, level.ID,
		[]validator.Direction{validator.Right, validator.Right, validator.Right, validator.Down, validator.Down}, t0)
	require.NoError(t, err)
	assert.True(t, res.Complete)

	var stats int64
	require.NoError(t, e.db.Model(&model.Stat{}).Count(&stats).Error)
	assert.EqualValues(t, 1, stats)
}

func TestSubmitWithoutHeartbeatCreatesSession(t *testing.T) {
	e := newTestEnv(t)
	author := testutil.SeedUser(t, e.db, "author")
	player := testutil.SeedUser(t, e.db, "player")
	level := testutil.SeedLevel(t, e.db, author, 20)

	e.heartbeat(t, player, level, 0)
	// 会话已过期，提交不会把空档计入时长
	e.submit(t, player, level, 25, int((time.Hour).Seconds()))

	attempts := e.attempts(t, level)
	require.Len(t, attempts, 2)
	assert.Equal(t, attempts[1].StartTime, attempts[1].EndTime)
	assert.Zero(t, e.aggregatesOf(t, level).CalcPlayattemptsDurationSum)
	assert.EqualValues(t, 2, e.aggregatesOf(t, level).CalcPlayattemptsCount)

	e.requireEquivalent(t, level)
}

func TestReplayCompletionCountsWholeSession(t *testing.T) {
	e := newTestEnv(t)
	author := testutil.SeedUser(t, e.db, "author")
	player := testutil.SeedUser(t, e.db, "player")
	level := testutil.SeedLevel(t, e.db, author, 20)

	e.heartbeat(t, player, level, 0)
	e.submit(t, player, level, 20, 10)
	before := e.aggregatesOf(t, level)

	replay := e.heartbeat(t, player, level, 100)
	e.heartbeat(t, player, level, 160)
	assert.Equal(t, before, e.aggregatesOf(t, level))

	// 重玩中未达标的提交保持 BEATEN
	e.submit(t, player, level, 25, 170)
	assert.Equal(t, before, e.aggregatesOf(t, level))

	e.submit(t, player, level, 20, 200)
	attempts := e.attempts(t, level)
	require.Len(t, attempts, 2)
	assert.Equal(t, replay.AttemptID, attempts[1].ID)
	assert.Equal(t, model.AttemptJustBeaten, attempts[1].AttemptContext)

	agg := e.aggregatesOf(t, level)
	assert.EqualValues(t, before.CalcPlayattemptsDurationSum+100, agg.CalcPlayattemptsDurationSum)
	assert.EqualValues(t, before.CalcPlayattemptsCount+1, agg.CalcPlayattemptsCount)
	assert.EqualValues(t, 2, agg.CalcPlayattemptsJustBeatenCount)
	assert.EqualValues(t, 1, agg.CalcPlayattemptsUniqueUsers)
	assert.Equal(t, 1, testutil.ReloadUser(t, e.db, player.ID).Score)

	e.requireEquivalent(t, level)
}
