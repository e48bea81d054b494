package router

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/d60-Lab/postboard/config"
	"github.com/d60-Lab/postboard/internal/api/handler"
	"github.com/d60-Lab/postboard/internal/correlation"
	"github.com/d60-Lab/postboard/internal/enrich"
	"github.com/d60-Lab/postboard/internal/event"
	"github.com/d60-Lab/postboard/internal/repository"
	"github.com/d60-Lab/postboard/internal/service"
	"github.com/d60-Lab/postboard/pkg/auth"
	"github.com/d60-Lab/postboard/pkg/database"
)

func newTestServer(t *testing.T) http.Handler {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"),
		&gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, database.Migrate(db))
	t.Cleanup(func() { _ = sqlDB.Close() })

	cfg := &config.Config{
		Server:    config.ServerConfig{Mode: "test"},
		Tracing:   config.TracingConfig{ServiceName: "postboard-test"},
		RateLimit: config.RateLimitConfig{RPS: 0},
		Correlation: config.CorrelationConfig{Timeouts: config.TimeoutConfig{
			User: time.Second, Interaction: time.Second, Comment: time.Second, Bookmark: time.Second, UserValidation: time.Second,
		}},
	}
	log := zap.NewNop()

	posts := repository.NewPostRepository(db)
	users := repository.NewUserRepository(db)
	interactions := repository.NewInteractionRepository(db)
	comments := repository.NewCommentRepository(db)
	bookmarks := repository.NewBookmarkRepository(db)

	reg := correlation.NewRegistry(log)
	bus := event.NewMemoryBus(64, log)
	service.NewResponders(service.NewProfileCache(users, nil, 0), interactions, comments, bookmarks,
		correlation.RegistryReplier{Registry: reg}, log).Register(bus)
	stop := bus.Start(2)
	t.Cleanup(func() { _ = stop(context.Background()) })

	tokens := auth.NewManager("secret", time.Hour)
	enrichers := service.NewEnrichers(reg, bus, cfg.Correlation.Timeouts, correlation.WithLogger(log))
	authors := correlation.NewRequester[enrich.UserData](correlation.KindUser, reg, bus,
		correlation.WithTimeout(cfg.Correlation.Timeouts.UserValidation), correlation.WithLogger(log))

	h := handler.NewHandler(
		service.NewUserService(users, tokens, log),
		service.NewPostService(posts, authors, log),
		service.NewPostQueryService(posts, enrichers, log),
		service.NewInteractionService(posts, interactions),
		service.NewCommentService(posts, comments),
		service.NewBookmarkService(posts, bookmarks),
	)
	return Setup(cfg, h, tokens)
}

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func call(t *testing.T, srv http.Handler, method, path, token string, body any) (int, envelope) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)

	var env envelope
	if w.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	}
	return w.Code, env
}

func TestPostLifecycleOverHTTP(t *testing.T) {
	srv := newTestServer(t)

	code, env := call(t, srv, http.MethodPost, "/api/v1/users", "", map[string]string{
		"email": "alice@example.com", "nickname": "alice", "password": "password1",
	})
	require.Equal(t, http.StatusCreated, code, env.Message)
	var reg service.AuthResult
	require.NoError(t, json.Unmarshal(env.Data, &reg))
	token := reg.Token

	code, _ = call(t, srv, http.MethodPost, "/api/v1/posts", "", map[string]string{"title": "x"})
	assert.Equal(t, http.StatusUnauthorized, code)

	code, env = call(t, srv, http.MethodPost, "/api/v1/posts", token, map[string]any{
		"title":     "hello",
		"content":   "first post",
		"resources": []map[string]string{{"url": "https://cdn.example.com/a.png", "kind": "IMAGE"}},
	})
	require.Equal(t, http.StatusCreated, code, env.Message)
	var created struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &created))

	code, _ = call(t, srv, http.MethodPost, "/api/v1/posts/"+created.ID+"/like", token, nil)
	require.Equal(t, http.StatusOK, code)
	code, _ = call(t, srv, http.MethodPost, "/api/v1/posts/"+created.ID+"/comments", token, map[string]string{"content": "hi"})
	require.Equal(t, http.StatusCreated, code)
	code, _ = call(t, srv, http.MethodPost, "/api/v1/posts/"+created.ID+"/bookmark", token, nil)
	require.Equal(t, http.StatusOK, code)

	code, env = call(t, srv, http.MethodGet, "/api/v1/posts/"+created.ID, token, nil)
	require.Equal(t, http.StatusOK, code)
	var post enrich.EnrichedPost
	require.NoError(t, json.Unmarshal(env.Data, &post))
	assert.EqualValues(t, 1, post.LikeCount)
	assert.EqualValues(t, 1, post.CommentCount)
	assert.True(t, post.Liked)
	assert.True(t, post.Bookmarked)
	require.NotNil(t, post.Author)
	assert.Equal(t, "alice", post.Author.Nickname)
	require.Len(t, post.Resources, 1)

	code, env = call(t, srv, http.MethodGet, "/api/v1/me/bookmarks", token, nil)
	require.Equal(t, http.StatusOK, code)
	var page struct {
		List []enrich.EnrichedPost `json:"list"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &page))
	require.Len(t, page.List, 1)
	assert.Equal(t, created.ID, page.List[0].ID)

	code, _ = call(t, srv, http.MethodGet, "/api/v1/posts/missing", "", nil)
	assert.Equal(t, http.StatusNotFound, code)

	code, _ = call(t, srv, http.MethodDelete, "/api/v1/posts/"+created.ID, token, nil)
	assert.Equal(t, http.StatusOK, code)
}

func TestHealthz(t *testing.T) {
	srv := newTestServer(t)
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}
