package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/d60-Lab/postboard/internal/model"
)

type InteractionRepository interface {
	// Get 不存在时返回 (nil, nil)
	Get(ctx context.Context, userID, postID, typ string) (*model.Interaction, error)
	// SetStatus 写入 (user, post, type) 的状态，返回之前的状态（无记录为空串）
	SetStatus(ctx context.Context, userID, postID, typ, status string) (string, error)
	// ListByPosts typ 为空时返回全部类型
	ListByPosts(ctx context.Context, postIDs []string, typ string) ([]*model.Interaction, error)
}

type interactionRepository struct{ db *gorm.DB }

func NewInteractionRepository(db *gorm.DB) InteractionRepository {
	return &interactionRepository{db: db}
}

func (r *interactionRepository) Get(ctx context.Context, userID, postID, typ string) (*model.Interaction, error) {
	var it model.Interaction
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND post_id = ? AND type = ?", userID, postID, typ).
		First(&it).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &it, nil
}

func (r *interactionRepository) SetStatus(ctx context.Context, userID, postID, typ, status string) (string, error) {
	var prev string
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var it model.Interaction
		err := tx.Where("user_id = ? AND post_id = ? AND type = ?", userID, postID, typ).First(&it).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			return tx.Create(&model.Interaction{
				ID:     uuid.New().String(),
				UserID: userID,
				PostID: postID,
				Type:   typ,
				Status: status,
			}).Error
		case err != nil:
			return err
		}
		prev = it.Status
		if prev == status {
			return nil
		}
		return tx.Model(&it).Update("status", status).Error
	})
	return prev, err
}

func (r *interactionRepository) ListByPosts(ctx context.Context, postIDs []string, typ string) ([]*model.Interaction, error) {
	if len(postIDs) == 0 {
		return []*model.Interaction{}, nil
	}
	q := r.db.WithContext(ctx).Where("post_id IN ?", postIDs)
	if typ != "" {
		q = q.Where("type = ?", typ)
	}
	var res []*model.Interaction
	err := q.Find(&res).Error
	return res, err
}
