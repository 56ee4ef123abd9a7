package service

import (
	"playstats_backend/internal/model"
	"playstats_backend/internal/queue"
	"playstats_backend/internal/testutil"
	"playstats_backend/internal/util"
	"playstats_backend/internal/validator"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

var t0 = time.Unix(1_700_000_000, 0)

type acceptAll struct{}

func (acceptAll) Validate(moves []validator.Direction, _ validator.Grid) (validator.Result, error) {
	if len(moves) == 0 {
		return validator.Result{}, util.ErrInvalidMoves
	}
	return validator.Result{Valid: true}, nil
}

type testEnv struct {
	db         *gorm.DB
	queue      *queue.Queue
	sessions   *SessionService
	results    *ResultService
	aggregates *AggregateService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db := testutil.DB(t)
	q := queue.New(db, queue.NewRegistry(), queue.DefaultOptions())
	aggregates := NewAggregateService(db, q)
	aggregates.Register(q.Registry)
	return &testEnv{
		db:         db,
		queue:      q,
		sessions:   NewSessionService(db, nil, 15*time.Minute, 0),
		results:    NewResultService(db, acceptAll{}, aggregates, 15*time.Minute),
		aggregates: aggregates,
	}
}

func moves(n int) []validator.Direction {
	out := make([]validator.Direction, n)
	for i := range out {
		out[i] = validator.Right
	}
	return out
}

func at(seconds int) time.Time {
	return t0.Add(time.Duration(seconds) * time.Second)
}

func (e *testEnv) heartbeat(t *testing.T, user *model.User, level *model.Level, seconds int) *HeartbeatResult {
	t.Helper()
	res, err := e.sessions.RecordHeartbeat(t.Context(), user.ID, level.ID, at(seconds))
	require.NoError(t, err)
	return res
}

func (e *testEnv) submit(t *testing.T, user *model.User, level *model.Level, n, seconds int) *SubmitResult {
	t.Helper()
	res, err := e.results.SubmitResult(t.Context(), user.ID, level.ID, moves(n), at(seconds))
	require.NoError(t, err)
	return res
}

func (e *testEnv) attempts(t *testing.T, level *model.Level) []model.PlayAttempt {
	t.Helper()
	var out []model.PlayAttempt
	require.NoError(t, e.db.Where("level_id = ?", level.ID).Order("id asc").Find(&out).Error)
	return out
}

func (e *testEnv) stat(t *testing.T, user *model.User, level *model.Level) *model.Stat {
	t.Helper()
	var st model.Stat
	require.NoError(t, e.db.Where("user_id = ? AND level_id = ?", user.ID, level.ID).First(&st).Error)
	return &st
}

// aggregates 去掉版本号，便于比较增量与全量结果
func (e *testEnv) aggregatesOf(t *testing.T, level *model.Level) model.LevelAggregates {
	t.Helper()
	agg := testutil.ReloadLevel(t, e.db, level.ID).LevelAggregates
	agg.AggregateVersion = 0
	return agg
}

// requireEquivalent 全量重算的结果必须与增量维护的值完全一致
func (e *testEnv) requireEquivalent(t *testing.T, level *model.Level) {
	t.Helper()
	incremental := e.aggregatesOf(t, level)
	var players []uint
	require.NoError(t, e.db.Model(&model.LevelUniquePlayer{}).Where("level_id = ?", level.ID).
		Order("user_id asc").Pluck("user_id", &players).Error)

	_, err := e.aggregates.Recompute(t.Context(), level.ID)
	require.NoError(t, err)

	recomputed := e.aggregatesOf(t, level)
	require.Equal(t, recomputed, incremental)

	var after []uint
	require.NoError(t, e.db.Model(&model.LevelUniquePlayer{}).Where("level_id = ?", level.ID).
		Order("user_id asc").Pluck("user_id", &after).Error)
	require.Equal(t, after, players)
}
