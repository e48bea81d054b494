package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/d60-Lab/postboard/internal/correlation"
	"github.com/d60-Lab/postboard/internal/enrich"
	"github.com/d60-Lab/postboard/internal/model"
	"github.com/d60-Lab/postboard/internal/repository"
	"github.com/d60-Lab/postboard/pkg/logger"
)

type ResourceInput struct {
	URL  string `json:"url" binding:"required,url"`
	Kind string `json:"kind" binding:"required,oneof=IMAGE FILE"`
}

type CreatePostInput struct {
	Title       string          `json:"title" binding:"required,max=200"`
	Content     string          `json:"content"`
	ContentType string          `json:"content_type" binding:"omitempty,oneof=POST QUESTION JOB"`
	Resources   []ResourceInput `json:"resources" binding:"max=9,dive"`
}

// PostService 帖子写路径
type PostService struct {
	posts   repository.PostRepository
	authors *correlation.Requester[enrich.UserData]
	log     *zap.Logger
}

// NewPostService wires authors, the requester used to confirm that a post's
// author exists in the user module.
func NewPostService(posts repository.PostRepository, authors *correlation.Requester[enrich.UserData], log *zap.Logger) *PostService {
	if log == nil {
		log = logger.L()
	}
	return &PostService{posts: posts, authors: authors, log: log.With(zap.String("component", "post"))}
}

// Create 校验作者后在一个事务内写入帖子与附件
// 用户模块未在超时内应答时按作者不存在处理
func (s *PostService) Create(ctx context.Context, authorID string, in CreatePostInput) (*model.Post, error) {
	if strings.TrimSpace(in.Title) == "" {
		return nil, ErrEmptyContent
	}
	if !s.authorExists(ctx, authorID) {
		return nil, ErrUnknownAuthor
	}

	contentType := in.ContentType
	if contentType == "" {
		contentType = model.ContentTypePost
	}
	now := time.Now()
	post := &model.Post{
		ID:          uuid.New().String(),
		AuthorID:    authorID,
		Title:       in.Title,
		Content:     in.Content,
		ContentType: contentType,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	resources := make([]model.PostResource, len(in.Resources))
	for i, r := range in.Resources {
		resources[i] = model.PostResource{
			ID:        uuid.New().String(),
			PostID:    post.ID,
			URL:       r.URL,
			Kind:      r.Kind,
			Position:  i,
			CreatedAt: now,
		}
	}
	if err := s.posts.CreateWithResources(ctx, post, resources); err != nil {
		return nil, err
	}
	s.log.Info("post created", zap.String("post_id", post.ID), zap.String("author_id", authorID), zap.Int("resources", len(resources)))
	return post, nil
}

func (s *PostService) Delete(ctx context.Context, authorID, postID string) error {
	err := s.posts.Delete(ctx, postID, authorID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrPostNotFound
	}
	return err
}

func (s *PostService) authorExists(ctx context.Context, authorID string) bool {
	if authorID == "" {
		return false
	}
	for _, u := range s.authors.Request(ctx, []string{authorID}, nil) {
		if u.ID == authorID {
			return true
		}
	}
	return false
}
