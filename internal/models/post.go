package models

import "time"

type Post struct {
	ID        int64     `gorm:"column:id;primaryKey" json:"id"`
	AuthorID  int64     `gorm:"column:user_id" json:"author_id"`
	Content   string    `gorm:"column:content" json:"content"`
	ImagePath *string   `gorm:"column:image_path" json:"image_path,omitempty"`
	CreatedAt time.Time `gorm:"column:created_at" json:"created_at"`
	UpdatedAt time.Time `gorm:"column:updated_at" json:"updated_at"`

	AuthorName string    `gorm:"column:author_name;->;-:migration" json:"author_name,omitempty"`
	LikeCount  int       `gorm:"column:like_count;->;-:migration" json:"like_count"`
	Liked      bool      `gorm:"-" json:"liked"`
	Comments   []Comment `gorm:"-" json:"comments,omitempty"`
}

func (Post) TableName() string { return "feed" }

type PostLike struct {
	PostID    int64     `gorm:"column:post_id;primaryKey"`
	UserID    int64     `gorm:"column:user_id;primaryKey"`
	CreatedAt time.Time `gorm:"column:created_at"`
}

func (PostLike) TableName() string { return "feed_likes" }

type Comment struct {
	ID        int64     `gorm:"column:id;primaryKey" json:"id"`
	PostID    int64     `gorm:"column:post_id" json:"post_id"`
	AuthorID  int64     `gorm:"column:user_id" json:"author_id"`
	Content   string    `gorm:"column:content" json:"content"`
	CreatedAt time.Time `gorm:"column:created_at" json:"created_at"`

	AuthorName string `gorm:"column:author_name;->;-:migration" json:"author_name,omitempty"`
}

func (Comment) TableName() string { return "comments" }
