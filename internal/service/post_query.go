package service

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/d60-Lab/postboard/config"
	"github.com/d60-Lab/postboard/internal/correlation"
	"github.com/d60-Lab/postboard/internal/enrich"
	"github.com/d60-Lab/postboard/internal/model"
	"github.com/d60-Lab/postboard/internal/repository"
	"github.com/d60-Lab/postboard/pkg/logger"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// Enrichers groups the correlated requesters a post page is enriched with.
type Enrichers struct {
	Users        *correlation.Requester[enrich.UserData]
	Interactions *correlation.Requester[enrich.InteractionData]
	Comments     *correlation.Requester[enrich.CommentData]
	Bookmarks    *correlation.Requester[string]
}

// NewEnrichers builds one requester per kind with its configured timeout.
// opts apply to all of them; the per-kind timeout always wins.
func NewEnrichers(reg *correlation.Registry, pub correlation.Publisher, t config.TimeoutConfig, opts ...correlation.Option) Enrichers {
	with := func(d time.Duration) []correlation.Option {
		return append(append([]correlation.Option(nil), opts...), correlation.WithTimeout(d))
	}
	return Enrichers{
		Users:        correlation.NewRequester[enrich.UserData](correlation.KindUser, reg, pub, with(t.User)...),
		Interactions: correlation.NewRequester[enrich.InteractionData](correlation.KindInteraction, reg, pub, with(t.Interaction)...),
		Comments:     correlation.NewRequester[enrich.CommentData](correlation.KindComment, reg, pub, with(t.Comment)...),
		Bookmarks:    correlation.NewRequester[string](correlation.KindBookmark, reg, pub, with(t.Bookmark)...),
	}
}

// PostQueryService 帖子读路径：基础分页来自本模块，作者/点赞/评论数/收藏通过关联请求并发补全
type PostQueryService struct {
	posts     repository.PostRepository
	enrichers Enrichers
	log       *zap.Logger
}

func NewPostQueryService(posts repository.PostRepository, enrichers Enrichers, log *zap.Logger) *PostQueryService {
	if log == nil {
		log = logger.L()
	}
	return &PostQueryService{posts: posts, enrichers: enrichers, log: log.With(zap.String("component", "post-query"))}
}

// ListPosts returns the newest posts. Only a failure to load the base page
// is an error; every enrichment degrades to its default on its own.
func (s *PostQueryService) ListPosts(ctx context.Context, viewerID string, page, pageSize int) ([]enrich.EnrichedPost, error) {
	offset, limit := normalizePage(page, pageSize)
	rows, err := s.posts.List(ctx, offset, limit)
	if err != nil {
		return nil, err
	}
	return s.enrich(ctx, viewerID, rows, nil), nil
}

func (s *PostQueryService) GetPost(ctx context.Context, viewerID, id string) (*enrich.EnrichedPost, error) {
	p, err := s.posts.GetByID(ctx, id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrPostNotFound
	}
	if err != nil {
		return nil, err
	}
	out := s.enrich(ctx, viewerID, []*model.Post{p}, nil)
	return &out[0], nil
}

// ListHot orders by the persisted like counter; the counts shown are live.
func (s *PostQueryService) ListHot(ctx context.Context, viewerID string, limit int) ([]enrich.EnrichedPost, error) {
	_, limit = normalizePage(1, limit)
	rows, err := s.posts.ListHot(ctx, limit)
	if err != nil {
		return nil, err
	}
	return s.enrich(ctx, viewerID, rows, nil), nil
}

// ListBookmarked pages through the viewer's bookmarks, newest first. The
// bookmark answer decides which posts form the page, so it is awaited before
// the other kinds fan out. A bookmark timeout yields an empty page.
func (s *PostQueryService) ListBookmarked(ctx context.Context, viewerID string, page, pageSize int) ([]enrich.EnrichedPost, error) {
	if viewerID == "" {
		return []enrich.EnrichedPost{}, nil
	}
	offset, limit := normalizePage(page, pageSize)
	ids := s.enrichers.Bookmarks.Request(ctx, nil, map[string]string{
		ParamUserID: viewerID,
		ParamLimit:  strconv.Itoa(limit),
		ParamOffset: strconv.Itoa(offset),
	})
	if len(ids) == 0 {
		return []enrich.EnrichedPost{}, nil
	}
	rows, err := s.posts.ListByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	return s.enrich(ctx, viewerID, rows, ids), nil
}

// enrich fans out one request per kind and folds the answers into rows.
// bookmarked, when non-nil, is already known and is not requested again.
func (s *PostQueryService) enrich(ctx context.Context, viewerID string, rows []*model.Post, bookmarked []string) []enrich.EnrichedPost {
	posts := make([]model.Post, len(rows))
	for i, p := range rows {
		posts[i] = *p
	}
	if len(posts) == 0 {
		return []enrich.EnrichedPost{}
	}
	postIDs := enrich.PostIDs(posts)

	var (
		wg sync.WaitGroup
		f  = enrich.Fragments{Bookmarks: bookmarked}
	)
	wg.Add(3)
	go func() {
		defer wg.Done()
		f.Users = s.enrichers.Users.Request(ctx, enrich.AuthorIDs(posts), nil)
	}()
	go func() {
		defer wg.Done()
		f.Interactions = s.enrichers.Interactions.Request(ctx, postIDs, map[string]string{ParamType: model.InteractionLike})
	}()
	go func() {
		defer wg.Done()
		f.Comments = s.enrichers.Comments.Request(ctx, postIDs, nil)
	}()
	if viewerID != "" && bookmarked == nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			f.Bookmarks = s.enrichers.Bookmarks.Request(ctx, postIDs, map[string]string{ParamUserID: viewerID})
		}()
	}

	// resources are owned by this module
	if res, err := s.posts.ListResources(ctx, postIDs); err != nil {
		s.log.Warn("load post resources failed", zap.Error(err))
	} else {
		rs := make([]model.PostResource, len(res))
		for i, r := range res {
			rs[i] = *r
		}
		f.Resources = enrich.FromResources(rs)
	}

	wg.Wait()
	return enrich.Aggregate(posts, f, enrich.Options{ViewerID: viewerID})
}

func normalizePage(page, pageSize int) (offset, limit int) {
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	return (page - 1) * pageSize, pageSize
}
