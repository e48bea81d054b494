package model

import "time"

// Bookmark 收藏（用户 A 收藏帖子 P）
type Bookmark struct {
	ID     string `gorm:"primaryKey;type:varchar(36)"`
	UserID string `gorm:"type:varchar(36);index:idx_bookmark_user;uniqueIndex:ux_bookmark_user_post;not null"`
	PostID string `gorm:"type:varchar(36);uniqueIndex:ux_bookmark_user_post;not null"`
	// ux_bookmark_user_post = (user_id, post_id)，重复收藏不报错
	CreatedAt time.Time `gorm:"index:idx_bookmark_user"`
}

func (Bookmark) TableName() string { return "bookmarks" }
