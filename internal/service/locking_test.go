package service

import (
	"playstats_backend/internal/model"
	"playstats_backend/internal/testutil"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// recordRowLocks 记录每条 SELECT ... FOR UPDATE 的表名。sqlite 不输出锁子句，但语句上的子句仍在
func recordRowLocks(t *testing.T, db *gorm.DB) *[]string {
	t.Helper()
	var tables []string
	err := db.Callback().Query().After("gorm:query").Register("test:row_locks", func(tx *gorm.DB) {
		if _, ok := tx.Statement.Clauses["FOR"]; ok {
			tables = append(tables, tx.Statement.Table)
		}
	})
	require.NoError(t, err)
	return &tables
}

func TestHeartbeatAndSubmitLockLevelBeforeUser(t *testing.T) {
	e := newTestEnv(t)
	author := testutil.SeedUser(t, e.db, "author")
	player := testutil.SeedUser(t, e.db, "player")
	level := testutil.SeedLevel(t, e.db, author, 20)
	locks := recordRowLocks(t, e.db)

	e.heartbeat(t, player, level, 0)
	assert.Equal(t, []string{"levels", "users"}, *locks)

	*locks = nil
	e.submit(t, player, level, 20, 30)
	assert.Equal(t, []string{"levels", "users"}, *locks)
}

func TestHeartbeatDoesNotReopenSessionSealedAfterRead(t *testing.T) {
	e := newTestEnv(t)
	author := testutil.SeedUser(t, e.db, "author")
	player := testutil.SeedUser(t, e.db, "player")
	level := testutil.SeedLevel(t, e.db, author, 20)
	first := e.heartbeat(t, player, level, 0)

	// 在心跳读到会话之后、写回之前，由另一笔提交把它封存
	armed := true
	err := e.db.Callback().Query().After("gorm:query").Register("test:seal_after_read", func(tx *gorm.DB) {
		found, ok := tx.Statement.Dest.(*[]model.PlayAttempt)
		if !armed || !ok || len(*found) == 0 {
			return
		}
		armed = false
		tx.Session(&gorm.Session{NewDB: true}).
			Model(&model.PlayAttempt{}).
			Where("id = ?", (*found)[0].ID).
			Update("attempt_context", model.AttemptJustBeaten)
	})
	require.NoError(t, err)

	res := e.heartbeat(t, player, level, 30)
	assert.False(t, armed)
	assert.Equal(t, SessionCreated, res.SessionState)
	assert.NotEqual(t, first.AttemptID, res.AttemptID)

	attempts := e.attempts(t, level)
	require.Len(t, attempts, 2)
	assert.Equal(t, model.AttemptJustBeaten, attempts[0].AttemptContext)
	assert.EqualValues(t, 0, attempts[0].EndTime-t0.Unix())
	assert.Equal(t, 0, attempts[0].UpdateCount)
}

func TestExtendAndSealSkipSealedSessions(t *testing.T) {
	e := newTestEnv(t)
	author := testutil.SeedUser(t, e.db, "author")
	player := testutil.SeedUser(t, e.db, "player")
	level := testutil.SeedLevel(t, e.db, author, 20)
	attempt := &model.PlayAttempt{UserID: player.ID, LevelID: level.ID, StartTime: 10, EndTime: 10, AttemptContext: model.AttemptUnbeaten}
	require.NoError(t, e.db.Create(attempt).Error)

	repo := e.sessions.AttemptRepo
	ok, err := repo.Extend(attempt.ID, 20)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.Seal(attempt.ID, 30)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.Extend(attempt.ID, 40)
	require.NoError(t, err)
	assert.False(t, ok)
	ok, err = repo.Seal(attempt.ID, 50)
	require.NoError(t, err)
	assert.False(t, ok)

	var got model.PlayAttempt
	require.NoError(t, e.db.First(&got, attempt.ID).Error)
	assert.EqualValues(t, 30, got.EndTime)
	assert.Equal(t, model.AttemptJustBeaten, got.AttemptContext)
	assert.Equal(t, 2, got.UpdateCount)
}
