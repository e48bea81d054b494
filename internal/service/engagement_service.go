package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/d60-Lab/postboard/internal/model"
	"github.com/d60-Lab/postboard/internal/repository"
)

type InteractionService struct {
	posts        repository.PostRepository
	interactions repository.InteractionRepository
}

func NewInteractionService(posts repository.PostRepository, interactions repository.InteractionRepository) *InteractionService {
	return &InteractionService{posts: posts, interactions: interactions}
}

// ToggleLike flips the viewer's like on a post and returns the new state.
// The persisted counter follows, but reads recount from interactions.
func (s *InteractionService) ToggleLike(ctx context.Context, userID, postID string) (bool, error) {
	if err := ensurePost(ctx, s.posts, postID); err != nil {
		return false, err
	}
	cur, err := s.interactions.Get(ctx, userID, postID, model.InteractionLike)
	if err != nil {
		return false, err
	}
	next := model.InteractionActive
	if cur != nil && cur.Status == model.InteractionActive {
		next = model.InteractionInactive
	}
	prev, err := s.interactions.SetStatus(ctx, userID, postID, model.InteractionLike, next)
	if err != nil {
		return false, err
	}

	var delta int64
	switch {
	case prev != model.InteractionActive && next == model.InteractionActive:
		delta = 1
	case prev == model.InteractionActive && next == model.InteractionInactive:
		delta = -1
	}
	if delta != 0 {
		if err := s.posts.IncrLikeCount(ctx, postID, delta); err != nil {
			return false, err
		}
	}
	return next == model.InteractionActive, nil
}

type CommentService struct {
	posts    repository.PostRepository
	comments repository.CommentRepository
}

func NewCommentService(posts repository.PostRepository, comments repository.CommentRepository) *CommentService {
	return &CommentService{posts: posts, comments: comments}
}

func (s *CommentService) Add(ctx context.Context, authorID, postID, content string) (*model.Comment, error) {
	if strings.TrimSpace(content) == "" {
		return nil, ErrEmptyContent
	}
	if err := ensurePost(ctx, s.posts, postID); err != nil {
		return nil, err
	}
	now := time.Now()
	c := &model.Comment{
		ID:        uuid.New().String(),
		PostID:    postID,
		AuthorID:  authorID,
		Content:   content,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.comments.Create(ctx, c); err != nil {
		return nil, err
	}
	if err := s.posts.IncrCommentCount(ctx, postID, 1); err != nil {
		return nil, err
	}
	return c, nil
}

type BookmarkService struct {
	posts     repository.PostRepository
	bookmarks repository.BookmarkRepository
}

func NewBookmarkService(posts repository.PostRepository, bookmarks repository.BookmarkRepository) *BookmarkService {
	return &BookmarkService{posts: posts, bookmarks: bookmarks}
}

// Toggle adds or removes a bookmark and returns whether the post is now bookmarked.
func (s *BookmarkService) Toggle(ctx context.Context, userID, postID string) (bool, error) {
	if err := ensurePost(ctx, s.posts, postID); err != nil {
		return false, err
	}
	exists, err := s.bookmarks.Exists(ctx, userID, postID)
	if err != nil {
		return false, err
	}
	if exists {
		return false, s.bookmarks.Delete(ctx, userID, postID)
	}
	return true, s.bookmarks.Create(ctx, userID, postID)
}

func ensurePost(ctx context.Context, posts repository.PostRepository, id string) error {
	_, err := posts.GetByID(ctx, id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrPostNotFound
	}
	return err
}
