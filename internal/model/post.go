package model

import "time"

// Post 内容主体
// LikeCount/CommentCount 为写入时维护的冗余计数，列表展示以实时聚合结果为准
type Post struct {
	ID           string    `json:"id" gorm:"primaryKey;type:varchar(36)"`
	AuthorID     string    `json:"author_id" gorm:"type:varchar(36);index:idx_post_author;not null"`
	Title        string    `json:"title" gorm:"type:varchar(200);not null"`
	Content      string    `json:"content" gorm:"type:text"`
	ContentType  string    `json:"content_type" gorm:"type:varchar(16);index;not null;default:'POST'"`
	LikeCount    int64     `json:"like_count" gorm:"index:idx_post_hot;not null;default:0"`
	CommentCount int64     `json:"comment_count" gorm:"not null;default:0"`
	CreatedAt    time.Time `json:"created_at" gorm:"index:idx_post_created"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func (Post) TableName() string { return "posts" }

// PostResource 帖子附件（图片/文件），归 post 模块所有
type PostResource struct {
	ID        string    `json:"id" gorm:"primaryKey;type:varchar(36)"`
	PostID    string    `json:"post_id" gorm:"type:varchar(36);index:idx_resource_post;not null"`
	URL       string    `json:"url" gorm:"type:varchar(512);not null"`
	Kind      string    `json:"kind" gorm:"type:varchar(16);not null"`
	Position  int       `json:"position" gorm:"not null;default:0"`
	CreatedAt time.Time `json:"created_at"`
}

func (PostResource) TableName() string { return "post_resources" }

// 帖子类型
const (
	ContentTypePost     = "POST"
	ContentTypeQuestion = "QUESTION"
	ContentTypeJob      = "JOB"
)
