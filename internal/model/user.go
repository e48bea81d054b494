package model

import "time"

// User 用户
type User struct {
	ID           string    `json:"id" gorm:"primaryKey;type:varchar(36)"`
	Email        string    `json:"email" gorm:"type:varchar(128);uniqueIndex;not null"`
	Nickname     string    `json:"nickname" gorm:"type:varchar(64);not null"`
	Password     string    `json:"-" gorm:"type:varchar(128);not null"`
	ProfileImage string    `json:"profile_image" gorm:"type:varchar(512)"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func (User) TableName() string { return "users" }
