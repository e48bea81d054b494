package service

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/d60-Lab/postboard/config"
	"github.com/d60-Lab/postboard/internal/correlation"
	"github.com/d60-Lab/postboard/internal/enrich"
	"github.com/d60-Lab/postboard/internal/event"
	"github.com/d60-Lab/postboard/internal/model"
	"github.com/d60-Lab/postboard/internal/repository"
	"github.com/d60-Lab/postboard/pkg/database"
)

var testTimeouts = config.TimeoutConfig{
	User:           time.Second,
	Interaction:    time.Second,
	Comment:        time.Second,
	Bookmark:       time.Second,
	UserValidation: time.Second,
}

func setupDB(t *testing.T) *gorm.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", name)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	// bus workers and the caller share the in-memory database
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, database.Migrate(db))
	t.Cleanup(func() { _ = sqlDB.Close() })
	return db
}

type repos struct {
	posts        repository.PostRepository
	users        repository.UserRepository
	interactions repository.InteractionRepository
	comments     repository.CommentRepository
	bookmarks    repository.BookmarkRepository
}

func newRepos(db *gorm.DB) repos {
	return repos{
		posts:        repository.NewPostRepository(db),
		users:        repository.NewUserRepository(db),
		interactions: repository.NewInteractionRepository(db),
		comments:     repository.NewCommentRepository(db),
		bookmarks:    repository.NewBookmarkRepository(db),
	}
}

type harness struct {
	db    *gorm.DB
	repos repos
	reg   *correlation.Registry
	bus   *event.MemoryBus

	query        *PostQueryService
	postSvc      *PostService
	interactions *InteractionService
	comments     *CommentService
	bookmarks    *BookmarkService
}

// newHarness wires the in-process path: memory bus, registry replies.
// Only the listed kinds get a responder; the others never answer.
func newHarness(t *testing.T, timeouts config.TimeoutConfig, kinds ...correlation.Kind) *harness {
	t.Helper()
	db := setupDB(t)
	r := newRepos(db)
	log := zap.NewNop()

	reg := correlation.NewRegistry(log)
	bus := event.NewMemoryBus(256, log)
	resp := NewResponders(NewProfileCache(r.users, nil, 0), r.interactions, r.comments, r.bookmarks,
		correlation.RegistryReplier{Registry: reg}, log)
	if len(kinds) == 0 {
		resp.Register(bus)
	} else {
		handlers := map[correlation.Kind]event.Handler{
			correlation.KindUser:        resp.AnswerUsers,
			correlation.KindInteraction: resp.AnswerInteractions,
			correlation.KindComment:     resp.AnswerComments,
			correlation.KindBookmark:    resp.AnswerBookmarks,
		}
		for _, k := range kinds {
			bus.Subscribe(k, handlers[k])
		}
	}
	stop := bus.Start(4)
	t.Cleanup(func() { _ = stop(context.Background()) })

	enrichers := NewEnrichers(reg, bus, timeouts, correlation.WithLogger(log))
	authors := correlation.NewRequester[enrich.UserData](correlation.KindUser, reg, bus,
		correlation.WithTimeout(timeouts.UserValidation), correlation.WithLogger(log))

	return &harness{
		db:           db,
		repos:        r,
		reg:          reg,
		bus:          bus,
		query:        NewPostQueryService(r.posts, enrichers, log),
		postSvc:      NewPostService(r.posts, authors, log),
		interactions: NewInteractionService(r.posts, r.interactions),
		comments:     NewCommentService(r.posts, r.comments),
		bookmarks:    NewBookmarkService(r.posts, r.bookmarks),
	}
}

func (h *harness) seedUser(t *testing.T, id, nickname string) {
	t.Helper()
	require.NoError(t, h.db.Create(&model.User{
		ID: id, Email: id + "@example.com", Nickname: nickname, Password: "x",
	}).Error)
}

// seedPost creates a post whose created_at is base+minutes, so later seeds list first.
func (h *harness) seedPost(t *testing.T, id, authorID string, minutes int) {
	t.Helper()
	at := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).Add(time.Duration(minutes) * time.Minute)
	require.NoError(t, h.db.Create(&model.Post{
		ID: id, AuthorID: authorID, Title: "title " + id, ContentType: model.ContentTypePost,
		CreatedAt: at, UpdatedAt: at,
	}).Error)
}
