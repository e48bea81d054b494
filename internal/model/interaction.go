package model

import "time"

// Interaction 用户对帖子的互动（点赞等），(user_id, post_id, type) 唯一
type Interaction struct {
	ID        string    `json:"id" gorm:"primaryKey;type:varchar(36)"`
	UserID    string    `json:"user_id" gorm:"type:varchar(36);uniqueIndex:ux_interaction_user_post_type;not null"`
	PostID    string    `json:"post_id" gorm:"type:varchar(36);index:idx_interaction_post;uniqueIndex:ux_interaction_user_post_type;not null"`
	Type      string    `json:"type" gorm:"type:varchar(16);uniqueIndex:ux_interaction_user_post_type;not null"`
	Status    string    `json:"status" gorm:"type:varchar(16);not null"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Interaction) TableName() string { return "interactions" }

const (
	InteractionLike = "LIKE"

	InteractionActive   = "ACTIVE"
	InteractionInactive = "INACTIVE"
)
