package main

import (
	"context"
	"fmt"
	"math"
	"os"
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/d60-Lab/postboard/config"
	"github.com/d60-Lab/postboard/internal/correlation"
	"github.com/d60-Lab/postboard/internal/event"
	"github.com/d60-Lab/postboard/internal/model"
	"github.com/d60-Lab/postboard/internal/repository"
	"github.com/d60-Lab/postboard/internal/service"
	"github.com/d60-Lab/postboard/pkg/database"
)

func must[T any](v T, err error) T {
	if err != nil {
		panic(err)
	}
	return v
}

func pct(vs []time.Duration, p float64) time.Duration {
	if len(vs) == 0 {
		return 0
	}
	xs := append([]time.Duration(nil), vs...)
	sort.Slice(xs, func(i, j int) bool { return xs[i] < xs[j] })
	k := int(math.Ceil(p*float64(len(xs)))) - 1
	if k < 0 {
		k = 0
	}
	if k >= len(xs) {
		k = len(xs) - 1
	}
	return xs[k]
}

func envInt(name string, def int) int {
	if s := os.Getenv(name); s != "" {
		if v, e := strconv.Atoi(s); e == nil && v > 0 {
			return v
		}
	}
	return def
}

func main() {
	cfg := must(config.Load())
	db := must(database.InitDB(cfg))
	must(0, database.Migrate(db))
	ctx := context.Background()

	// params
	USERS := envInt("USERS", 200)
	POSTS := envInt("POSTS", 2000)
	LIKES := envInt("LIKES", 5) // likes per post
	PAGE := envInt("PAGE", 20)
	ITER := envInt("ITER", 500)
	WORKERS := envInt("WORKERS", cfg.Correlation.BusWorkers)

	// clean tables for a reproducible run
	for _, tbl := range []string{"bookmarks", "comments", "interactions", "post_resources", "posts", "users"} {
		_ = db.Exec("DELETE FROM " + tbl).Error
	}

	// seed users, posts, likes
	users := make([]model.User, USERS)
	for i := range users {
		id := uuid.New().String()
		users[i] = model.User{ID: id, Email: id[:8] + "@example.com", Nickname: "u" + id[:8], Password: "p"}
	}
	must(0, db.CreateInBatches(&users, 500).Error)
	posts := make([]model.Post, POSTS)
	base := time.Now().Add(-time.Duration(POSTS) * time.Second)
	for i := range posts {
		posts[i] = model.Post{
			ID: uuid.New().String(), AuthorID: users[i%USERS].ID, Title: fmt.Sprintf("post %d", i),
			ContentType: model.ContentTypePost, CreatedAt: base.Add(time.Duration(i) * time.Second),
		}
	}
	must(0, db.CreateInBatches(&posts, 500).Error)
	likes := make([]model.Interaction, 0, POSTS*LIKES)
	for i := range posts {
		for j := 0; j < LIKES && j < USERS; j++ {
			likes = append(likes, model.Interaction{
				ID: uuid.New().String(), UserID: users[(i+j)%USERS].ID, PostID: posts[i].ID,
				Type: model.InteractionLike, Status: model.InteractionActive,
			})
		}
	}
	must(0, db.CreateInBatches(&likes, 500).Error)

	var rdb *redis.Client
	if cfg.Redis.Addr != "" {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		if err := rdb.Ping(ctx).Err(); err != nil {
			fmt.Printf("redis unavailable (%v), profile cache disabled\n", err)
			_ = rdb.Close()
			rdb = nil
		}
	}

	log := zap.NewNop()
	reg := correlation.NewRegistry(log)
	bus := event.NewMemoryBus(cfg.Correlation.BusQueueSize, log)
	profiles := service.NewProfileCache(repository.NewUserRepository(db), rdb, 10*time.Minute)
	service.NewResponders(profiles, repository.NewInteractionRepository(db), repository.NewCommentRepository(db),
		repository.NewBookmarkRepository(db), correlation.RegistryReplier{Registry: reg}, log).Register(bus)
	stop := bus.Start(WORKERS)
	defer stop(ctx)

	query := service.NewPostQueryService(repository.NewPostRepository(db),
		service.NewEnrichers(reg, bus, cfg.Correlation.Timeouts, correlation.WithLogger(log)), log)

	pages := POSTS / PAGE
	if pages < 1 {
		pages = 1
	}
	durations := make([]time.Duration, 0, ITER)
	missingAuthor := 0
	for i := 0; i < ITER; i++ {
		viewer := users[i%USERS].ID
		st := time.Now()
		list, err := query.ListPosts(ctx, viewer, i%pages+1, PAGE)
		if err != nil {
			panic(err)
		}
		durations = append(durations, time.Since(st))
		for _, p := range list {
			if p.Author == nil {
				missingAuthor++
			}
		}
	}

	// output
	var sum time.Duration
	for _, d := range durations {
		sum += d
	}
	c := profiles.Counters()
	fmt.Printf("USERS=%d POSTS=%d LIKES=%d PAGE=%d ITER=%d WORKERS=%d\n", USERS, POSTS, LIKES, PAGE, ITER, WORKERS)
	fmt.Printf("ListPosts latency: avg=%v p95=%v p99=%v\n", sum/time.Duration(len(durations)), pct(durations, 0.95), pct(durations, 0.99))
	fmt.Printf("Profile cache: hits=%d misses=%d bulk_loads=%d\n", c.Hits, c.Misses, c.BulkLoads)
	fmt.Printf("Posts without author (user timeout): %d, pending=%d queue=%d\n", missingAuthor, reg.Len(), bus.QueueLen())
}
