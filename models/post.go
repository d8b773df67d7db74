package models

import "time"

type PostType string

const (
	PostTypePost          PostType = "post"
	PostTypeFood          PostType = "food"
	PostTypeHotel         PostType = "hotel"
	PostTypeShop          PostType = "shop"
	PostTypeScenic        PostType = "scenic"
	PostTypeTransport     PostType = "transport"
	PostTypeEntertainment PostType = "entertainment"
	PostTypeWork          PostType = "work"
)

var PostTypes = []PostType{
	PostTypePost, PostTypeFood, PostTypeHotel, PostTypeShop,
	PostTypeScenic, PostTypeTransport, PostTypeEntertainment, PostTypeWork,
}

func (t PostType) Valid() bool {
	for _, known := range PostTypes {
		if t == known {
			return true
		}
	}
	return false
}

// Post - отметка пользователя на карте
type Post struct {
	ID           int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	AuthorID     int64     `gorm:"not null;index" json:"author_id"`
	Title        string    `gorm:"size:200;not null" json:"title"`
	Content      string    `gorm:"type:text;not null" json:"content"`
	Type         PostType  `gorm:"size:20;not null;default:post;index" json:"type"`
	LocationName string    `gorm:"size:200" json:"location_name"`
	Latitude     float64   `gorm:"not null;index:idx_posts_coords,priority:1" json:"latitude"`
	Longitude    float64   `gorm:"not null;index:idx_posts_coords,priority:2" json:"longitude"`
	LikeCount    int64     `gorm:"not null;default:0" json:"like_count"`
	CreatedAt    time.Time `gorm:"index" json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func (Post) TableName() string {
	return "posts"
}

// Comment - комментарий к посту, возможно ответ на другой комментарий
type Comment struct {
	ID          int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	PostID      int64     `gorm:"not null;index" json:"post_id"`
	AuthorID    int64     `gorm:"not null;index" json:"author_id"`
	Content     string    `gorm:"type:text;not null" json:"content"`
	ReplyToID   *int64    `gorm:"index" json:"reply_to_id,omitempty"`
	ReplyToUser string    `gorm:"size:50" json:"reply_to_user,omitempty"`
	LikeCount   int64     `gorm:"not null;default:0" json:"like_count"`
	CreatedAt   time.Time `json:"created_at"`
}

func (Comment) TableName() string {
	return "comments"
}
