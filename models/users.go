package models

import (
	"time"
)

type Gender string

const (
	GenderMale   Gender = "male"
	GenderFemale Gender = "female"
	GenderSecret Gender = "secret"
)

func (g Gender) Valid() bool {
	switch g {
	case GenderMale, GenderFemale, GenderSecret:
		return true
	}
	return false
}

type User struct {
	ID           int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	Username     string    `gorm:"size:50;not null;uniqueIndex" json:"username"`
	PasswordHash string    `gorm:"size:255;not null" json:"-"`
	Nickname     string    `gorm:"size:50" json:"nickname"`
	Gender       Gender    `gorm:"size:10;not null;default:secret;check:chk_users_gender,gender IN ('male','female','secret')" json:"gender"`
	Bio          string    `gorm:"size:500" json:"bio"`
	Avatar       string    `gorm:"size:500" json:"avatar"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func (User) TableName() string {
	return "users"
}

// DisplayName имя для отображения: никнейм, а если его нет, логин
func (u *User) DisplayName() string {
	if u.Nickname != "" {
		return u.Nickname
	}
	return u.Username
}
