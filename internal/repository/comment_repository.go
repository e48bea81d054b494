package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/d60-Lab/postboard/internal/model"
)

// PostCommentCount 单个帖子的评论数
type PostCommentCount struct {
	PostID string
	Count  int64
}

type CommentRepository interface {
	Create(ctx context.Context, c *model.Comment) error
	// CountByPosts 只返回至少有一条评论的帖子
	CountByPosts(ctx context.Context, postIDs []string) ([]PostCommentCount, error)
}

type commentRepository struct{ db *gorm.DB }

func NewCommentRepository(db *gorm.DB) CommentRepository { return &commentRepository{db: db} }

func (r *commentRepository) Create(ctx context.Context, c *model.Comment) error {
	return r.db.WithContext(ctx).Create(c).Error
}

func (r *commentRepository) CountByPosts(ctx context.Context, postIDs []string) ([]PostCommentCount, error) {
	if len(postIDs) == 0 {
		return []PostCommentCount{}, nil
	}
	var rows []PostCommentCount
	err := r.db.WithContext(ctx).
		Model(&model.Comment{}).
		Select("post_id, COUNT(*) AS count").
		Where("post_id IN ?", postIDs).
		Group("post_id").
		Scan(&rows).Error
	return rows, err
}
