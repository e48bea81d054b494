package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/d60-Lab/postboard/internal/model"
)

// PostRepository 帖子仓储
type PostRepository interface {
	// CreateWithResources 在一个事务内落地帖子与附件
	CreateWithResources(ctx context.Context, post *model.Post, resources []model.PostResource) error
	GetByID(ctx context.Context, id string) (*model.Post, error)
	List(ctx context.Context, offset, limit int) ([]*model.Post, error)
	ListHot(ctx context.Context, limit int) ([]*model.Post, error)
	// ListByIDs 按 ids 的顺序返回，不存在的 id 被跳过
	ListByIDs(ctx context.Context, ids []string) ([]*model.Post, error)
	ListResources(ctx context.Context, postIDs []string) ([]*model.PostResource, error)
	// Delete 删除作者本人的帖子；不存在或非作者返回 gorm.ErrRecordNotFound
	Delete(ctx context.Context, id, authorID string) error
	IncrLikeCount(ctx context.Context, id string, delta int64) error
	IncrCommentCount(ctx context.Context, id string, delta int64) error
}

type postRepository struct{ db *gorm.DB }

func NewPostRepository(db *gorm.DB) PostRepository { return &postRepository{db: db} }

func (r *postRepository) CreateWithResources(ctx context.Context, post *model.Post, resources []model.PostResource) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(post).Error; err != nil {
			return err
		}
		if len(resources) == 0 {
			return nil
		}
		return tx.Create(&resources).Error
	})
}

func (r *postRepository) GetByID(ctx context.Context, id string) (*model.Post, error) {
	var post model.Post
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&post).Error; err != nil {
		return nil, err
	}
	return &post, nil
}

func (r *postRepository) List(ctx context.Context, offset, limit int) ([]*model.Post, error) {
	var res []*model.Post
	err := r.db.WithContext(ctx).
		Order("created_at DESC, id DESC").
		Offset(offset).
		Limit(limit).
		Find(&res).Error
	return res, err
}

func (r *postRepository) ListHot(ctx context.Context, limit int) ([]*model.Post, error) {
	var res []*model.Post
	err := r.db.WithContext(ctx).
		Order("like_count DESC, created_at DESC").
		Limit(limit).
		Find(&res).Error
	return res, err
}

func (r *postRepository) ListByIDs(ctx context.Context, ids []string) ([]*model.Post, error) {
	if len(ids) == 0 {
		return []*model.Post{}, nil
	}
	var rows []*model.Post
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&rows).Error; err != nil {
		return nil, err
	}
	byID := make(map[string]*model.Post, len(rows))
	for _, p := range rows {
		byID[p.ID] = p
	}
	res := make([]*model.Post, 0, len(rows))
	for _, id := range ids {
		if p, ok := byID[id]; ok {
			res = append(res, p)
		}
	}
	return res, nil
}

func (r *postRepository) ListResources(ctx context.Context, postIDs []string) ([]*model.PostResource, error) {
	if len(postIDs) == 0 {
		return []*model.PostResource{}, nil
	}
	var res []*model.PostResource
	err := r.db.WithContext(ctx).
		Where("post_id IN ?", postIDs).
		Order("post_id, position").
		Find(&res).Error
	return res, err
}

func (r *postRepository) Delete(ctx context.Context, id, authorID string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Where("id = ? AND author_id = ?", id, authorID).Delete(&model.Post{})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return tx.Where("post_id = ?", id).Delete(&model.PostResource{}).Error
	})
}

func (r *postRepository) IncrLikeCount(ctx context.Context, id string, delta int64) error {
	return r.incr(ctx, id, "like_count", delta)
}

func (r *postRepository) IncrCommentCount(ctx context.Context, id string, delta int64) error {
	return r.incr(ctx, id, "comment_count", delta)
}

func (r *postRepository) incr(ctx context.Context, id, column string, delta int64) error {
	return r.db.WithContext(ctx).
		Model(&model.Post{}).
		Where("id = ?", id).
		Update(column, gorm.Expr(column+" + ?", delta)).Error
}
