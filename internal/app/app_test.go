package app

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"playstats_backend/internal/config"
	"playstats_backend/internal/model"
	"playstats_backend/internal/queue"
	"playstats_backend/internal/service"
	"playstats_backend/internal/testutil"
	"playstats_backend/pkg/lock"
	"strconv"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

const testSecret = "test-secret"

func newTestApp(t *testing.T) (*App, *gorm.DB) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := config.Default()
	cfg.JWT.Secret = testSecret
	db := testutil.DB(t)

	a := &App{
		Config: cfg,
		DB:     db,
		Queue:  queue.New(db, queue.NewRegistry(), queueOptions(&cfg.Queue)),
	}
	repos := a.initRepositories(db)
	a.services = a.initServices(cfg, db, lock.NopLocker{})
	ctrls := a.initControllers(a.services, repos)

	router := gin.New()
	a.setupMiddlewares(router, cfg)
	a.registerRoutes(router, ctrls, repos, cfg)
	a.Router = router
	return a, db
}

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func do(t *testing.T, a *App, method, path string, user *model.User, body interface{}) (int, envelope) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if user != nil {
		req.Header.Set("Authorization", "Bearer "+testutil.Token(t, user, testSecret, time.Hour))
	}
	w := httptest.NewRecorder()
	a.Router.ServeHTTP(w, req)

	var env envelope
	if w.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	}
	return w.Code, env
}

func TestPlayFlow(t *testing.T) {
	a, db := newTestApp(t)
	author := testutil.SeedUser(t, db, "author")
	player := testutil.SeedUser(t, db, "player")
	level := testutil.SeedLevel(t, db, author, 5)
	base := "/api/levels/" + itoa(level.ID)

	code, _ := do(t, a, http.MethodPost, base+"/heartbeat", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, code)

	code, env := do(t, a, http.MethodPost, base+"/heartbeat", player, nil)
	require.Equal(t, http.StatusOK, code)
	var hb struct {
		SessionState string `json:"sessionState"`
		AttemptID    uint   `json:"attemptId"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &hb))
	assert.Equal(t, "created", hb.SessionState)
	assert.NotZero(t, hb.AttemptID)

	// 右右右下下 恰好到达出口
	code, env = do(t, a, http.MethodPost, base+"/submit", player, gin.H{"moves": []int{3, 3, 3, 4, 4}})
	require.Equal(t, http.StatusOK, code)
	var res struct {
		Accepted  bool `json:"accepted"`
		NewRecord bool `json:"newRecord"`
		Complete  bool `json:"complete"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &res))
	assert.True(t, res.Accepted)
	assert.True(t, res.Complete)
	assert.False(t, res.NewRecord)

	code, env = do(t, a, http.MethodGet, base+"/stats", nil, nil)
	require.Equal(t, http.StatusOK, code)
	var agg model.LevelAggregates
	require.NoError(t, json.Unmarshal(env.Data, &agg))
	assert.EqualValues(t, 1, agg.CalcPlayattemptsCount)
	assert.EqualValues(t, 1, agg.CalcPlayattemptsJustBeatenCount)
	assert.EqualValues(t, 1, agg.CalcStatsPlayersBeaten)

	code, env = do(t, a, http.MethodGet, "/api/achievements", player, nil)
	require.Equal(t, http.StatusOK, code)
	var progress service.AchievementProgress
	require.NoError(t, json.Unmarshal(env.Data, &progress))
	assert.Equal(t, 1, progress.Score)
	assert.Len(t, progress.Achievements, 1)
	require.NotNil(t, progress.Next)
	assert.Equal(t, model.AchievementScore10, progress.Next.Type)
}

func TestRecordsAndNotifications(t *testing.T) {
	a, db := newTestApp(t)
	author := testutil.SeedUser(t, db, "author")
	first := testutil.SeedUser(t, db, "first")
	challenger := testutil.SeedUser(t, db, "challenger")
	level := testutil.SeedLevel(t, db, author, 7)
	base := "/api/levels/" + itoa(level.ID)

	code, _ := do(t, a, http.MethodPost, base+"/submit", first, gin.H{"moves": []int{4, 4, 3, 2, 3, 4, 3}})
	require.Equal(t, http.StatusOK, code)
	code, _ = do(t, a, http.MethodPost, base+"/submit", challenger, gin.H{"moves": []int{3, 3, 3, 4, 4}})
	require.Equal(t, http.StatusOK, code)

	code, env := do(t, a, http.MethodGet, base+"/records", nil, nil)
	require.Equal(t, http.StatusOK, code)
	var records []model.Record
	require.NoError(t, json.Unmarshal(env.Data, &records))
	require.Len(t, records, 2)
	assert.Equal(t, challenger.ID, records[0].UserID)
	assert.Equal(t, 5, records[0].Moves)

	code, env = do(t, a, http.MethodGet, "/api/notifications", first, nil)
	require.Equal(t, http.StatusOK, code)
	var notes []model.Notification
	require.NoError(t, json.Unmarshal(env.Data, &notes))
	require.Len(t, notes, 1)
	assert.Equal(t, challenger.ID, notes[0].SourceUserID)
	assert.False(t, notes[0].Read)

	// 不能标记别人的通知
	code, env = do(t, a, http.MethodPost, "/api/notifications/read", challenger, gin.H{"ids": []uint{notes[0].ID}})
	require.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `{"updated":0}`, string(env.Data))

	code, env = do(t, a, http.MethodPost, "/api/notifications/read", first, gin.H{"ids": []uint{notes[0].ID}})
	require.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `{"updated":1}`, string(env.Data))

	code, _ = do(t, a, http.MethodGet, "/api/levels/999/records", nil, nil)
	assert.Equal(t, http.StatusNotFound, code)

	code, env = do(t, a, http.MethodGet, "/api/leaderboard?limit=2", nil, nil)
	require.Equal(t, http.StatusOK, code)
	var board []struct {
		UserID uint `json:"userId"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &board))
	require.Len(t, board, 2)
	assert.Equal(t, challenger.ID, board[0].UserID)
}

func TestSubmitErrors(t *testing.T) {
	a, db := newTestApp(t)
	author := testutil.SeedUser(t, db, "author")
	player := testutil.SeedUser(t, db, "player")
	level := testutil.SeedLevel(t, db, author, 5)
	base := "/api/levels/" + itoa(level.ID)

	tests := []struct {
		name string
		path string
		body interface{}
		want int
	}{
		{"empty moves", base + "/submit", gin.H{"moves": []int{}}, http.StatusBadRequest},
		{"unknown direction", base + "/submit", gin.H{"moves": []int{9}}, http.StatusBadRequest},
		{"does not reach exit", base + "/submit", gin.H{"moves": []int{3}}, http.StatusBadRequest},
		{"missing level", "/api/levels/999/submit", gin.H{"moves": []int{3}}, http.StatusNotFound},
		{"bad id", "/api/levels/abc/submit", gin.H{"moves": []int{3}}, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, _ := do(t, a, http.MethodPost, tt.path, player, tt.body)
			assert.Equal(t, tt.want, code)
		})
	}
}

func TestAdminRoutes(t *testing.T) {
	a, db := newTestApp(t)
	author := testutil.SeedUser(t, db, "author")
	level := testutil.SeedLevel(t, db, author, 5)
	admin := &model.User{Name: "ops", Role: model.Admin}
	require.NoError(t, db.Create(admin).Error)

	code, _ := do(t, a, http.MethodGet, "/api/admin/queue/failed", author, nil)
	assert.Equal(t, http.StatusForbidden, code)

	code, _ = do(t, a, http.MethodGet, "/api/admin/queue/failed", admin, nil)
	assert.Equal(t, http.StatusOK, code)

	code, env := do(t, a, http.MethodPost, "/api/admin/levels/"+itoa(level.ID)+"/recompute?async=true", admin, nil)
	require.Equal(t, http.StatusOK, code)
	var queued struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &queued))
	assert.NotEmpty(t, queued.ID)

	code, env = do(t, a, http.MethodGet, "/api/admin/queue/"+queued.ID, admin, nil)
	require.Equal(t, http.StatusOK, code)
	var msg model.QueueMessage
	require.NoError(t, json.Unmarshal(env.Data, &msg))
	assert.Equal(t, model.QueueStatePending, msg.State)

	code, _ = do(t, a, http.MethodPost, "/api/admin/queue/"+queued.ID+"/replay", admin, nil)
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = do(t, a, http.MethodPost, "/api/admin/queue", admin, gin.H{"type": "NOPE", "payload": gin.H{}})
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = do(t, a, http.MethodPost, "/api/admin/levels/999/recompute", admin, nil)
	assert.Equal(t, http.StatusNotFound, code)
}

func TestApplyConfigUpdatesQueue(t *testing.T) {
	a, _ := newTestApp(t)
	cfg := config.Default()
	cfg.Queue.BatchSize = 7
	cfg.Queue.Concurrency = 2

	a.ApplyConfig(cfg)
	assert.Equal(t, 7, a.Queue.Options().BatchSize)
	assert.Equal(t, 2, a.Queue.Options().Concurrency)
}

func TestHealth(t *testing.T) {
	a, db := newTestApp(t)
	author := testutil.SeedUser(t, db, "author")
	testutil.SeedLevel(t, db, author, 5)
	n, err := a.EnqueueAllRecomputes(t.Context())
	require.NoError(t, err)
	require.Equal(t, 1, n)

	code, env := do(t, a, http.MethodGet, "/api/health", nil, nil)
	require.Equal(t, http.StatusOK, code)

	var body struct {
		Status string `json:"status"`
		Queue  struct {
			Pending int64 `json:"pending"`
			Failed  int64 `json:"failed"`
		} `json:"queue"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &body))
	assert.Equal(t, "ok", body.Status)
	assert.Equal(t, int64(1), body.Queue.Pending)
	assert.Zero(t, body.Queue.Failed)
}

func itoa(id uint) string {
	return strconv.FormatUint(uint64(id), 10)
}
