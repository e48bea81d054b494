package repository

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/d60-Lab/postboard/internal/model"
)

type BookmarkRepository interface {
	Create(ctx context.Context, userID, postID string) error
	Delete(ctx context.Context, userID, postID string) error
	Exists(ctx context.Context, userID, postID string) (bool, error)
	// FilterBookmarked 返回 postIDs 中被 userID 收藏的子集
	FilterBookmarked(ctx context.Context, userID string, postIDs []string) ([]string, error)
	// ListPostIDs 按收藏时间倒序
	ListPostIDs(ctx context.Context, userID string, offset, limit int) ([]string, error)
}

type bookmarkRepository struct{ db *gorm.DB }

func NewBookmarkRepository(db *gorm.DB) BookmarkRepository { return &bookmarkRepository{db: db} }

func (r *bookmarkRepository) Create(ctx context.Context, userID, postID string) error {
	b := &model.Bookmark{ID: uuid.New().String(), UserID: userID, PostID: postID}
	// 幂等：重复收藏不报错
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(b).Error
}

func (r *bookmarkRepository) Delete(ctx context.Context, userID, postID string) error {
	return r.db.WithContext(ctx).
		Where("user_id = ? AND post_id = ?", userID, postID).
		Delete(&model.Bookmark{}).Error
}

func (r *bookmarkRepository) Exists(ctx context.Context, userID, postID string) (bool, error) {
	var cnt int64
	if err := r.db.WithContext(ctx).
		Model(&model.Bookmark{}).
		Where("user_id = ? AND post_id = ?", userID, postID).
		Count(&cnt).Error; err != nil {
		return false, err
	}
	return cnt > 0, nil
}

func (r *bookmarkRepository) FilterBookmarked(ctx context.Context, userID string, postIDs []string) ([]string, error) {
	if len(postIDs) == 0 {
		return []string{}, nil
	}
	var ids []string
	err := r.db.WithContext(ctx).
		Model(&model.Bookmark{}).
		Where("user_id = ? AND post_id IN ?", userID, postIDs).
		Pluck("post_id", &ids).Error
	return ids, err
}

func (r *bookmarkRepository) ListPostIDs(ctx context.Context, userID string, offset, limit int) ([]string, error) {
	var ids []string
	err := r.db.WithContext(ctx).
		Model(&model.Bookmark{}).
		Where("user_id = ?", userID).
		Order("created_at DESC, id DESC").
		Offset(offset).
		Limit(limit).
		Pluck("post_id", &ids).Error
	return ids, err
}
