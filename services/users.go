package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"gorm.io/gorm"

	"tapspot/apperr"
	"tapspot/db"
	"tapspot/models"
)

const (
	usernameMinLen = 3
	usernameMaxLen = 50
	passwordMinLen = 3
	passwordMaxLen = 100
	nicknameMaxLen = 20
	bioMaxLen      = 200
	searchMaxLimit = 20
)

type UserService struct {
	db *gorm.DB
}

func NewUserService(orm *gorm.DB) *UserService {
	return &UserService{db: orm}
}

// ProfileUpdate изменяемые поля профиля; nil означает "не менять"
type ProfileUpdate struct {
	Nickname *string `json:"nickname"`
	Gender   *string `json:"gender"`
	Bio      *string `json:"bio"`
	Avatar   *string `json:"avatar"`
}

// UserProfile публичный профиль со счётчиками
type UserProfile struct {
	models.User
	DisplayName   string `json:"display_name"`
	PostCount     int64  `json:"post_count"`
	LikesReceived int64  `json:"likes_received"`
}

// Register создает пользователя. Занятый логин - Conflict.
func (s *UserService) Register(ctx context.Context, username, password, nickname string) (*models.User, error) {
	username = strings.TrimSpace(username)
	nickname = strings.TrimSpace(nickname)

	if n := utf8.RuneCountInString(username); n < usernameMinLen || n > usernameMaxLen {
		return nil, apperr.Validation(fmt.Sprintf("username must be %d to %d characters", usernameMinLen, usernameMaxLen))
	}
	if n := utf8.RuneCountInString(password); n < passwordMinLen || n > passwordMaxLen {
		return nil, apperr.Validation(fmt.Sprintf("password must be %d to %d characters", passwordMinLen, passwordMaxLen))
	}
	if nickname == "" {
		nickname = username
	}
	if utf8.RuneCountInString(nickname) > nicknameMaxLen {
		nickname = string([]rune(nickname)[:nicknameMaxLen])
	}

	hash, err := HashPassword(password)
	if err != nil {
		return nil, apperr.Internal("hash password", err)
	}
	user := &models.User{
		Username:     username,
		PasswordHash: hash,
		Nickname:     nickname,
		Gender:       models.GenderSecret,
	}
	if err := db.Write(ctx, s.db).Create(user).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, apperr.Conflict("username already taken")
		}
		return nil, apperr.Internal("create user", err)
	}
	return user, nil
}

// Authenticate проверяет логин и пароль. Неверный логин и неверный пароль
// неразличимы для клиента.
func (s *UserService) Authenticate(ctx context.Context, username, password string) (*models.User, error) {
	var user models.User
	err := db.Write(ctx, s.db).Where("username = ?", strings.TrimSpace(username)).First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.Unauthorized("invalid username or password")
		}
		return nil, apperr.Internal("load user", err)
	}
	if !CheckPassword(user.PasswordHash, password) {
		return nil, apperr.Unauthorized("invalid username or password")
	}
	return &user, nil
}

func (s *UserService) Get(ctx context.Context, id int64) (*models.User, error) {
	return findUser(db.Read(ctx, s.db), id)
}

func findUser(tx *gorm.DB, id int64) (*models.User, error) {
	var user models.User
	if err := tx.First(&user, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("user not found")
		}
		return nil, apperr.Internal("load user", err)
	}
	return &user, nil
}

// Profile публичный профиль с количеством постов и полученных лайков
func (s *UserService) Profile(ctx context.Context, id int64) (*UserProfile, error) {
	read := db.Read(ctx, s.db)
	user, err := findUser(read, id)
	if err != nil {
		return nil, err
	}
	var stats struct {
		PostCount     int64
		LikesReceived int64
	}
	err = read.Model(&models.Post{}).
		Select("COUNT(*) AS post_count, COALESCE(SUM(like_count), 0) AS likes_received").
		Where("author_id = ?", id).
		Scan(&stats).Error
	if err != nil {
		return nil, apperr.Internal("count posts", err)
	}
	return &UserProfile{
		User:          *user,
		DisplayName:   user.DisplayName(),
		PostCount:     stats.PostCount,
		LikesReceived: stats.LikesReceived,
	}, nil
}

// UpdateProfile меняет никнейм, пол, описание и аватар
func (s *UserService) UpdateProfile(ctx context.Context, id int64, upd ProfileUpdate) (*models.User, error) {
	changes := map[string]interface{}{}
	if upd.Nickname != nil {
		nickname := strings.TrimSpace(*upd.Nickname)
		if nickname == "" || utf8.RuneCountInString(nickname) > nicknameMaxLen {
			return nil, apperr.Validation(fmt.Sprintf("nickname must be 1 to %d characters", nicknameMaxLen))
		}
		changes["nickname"] = nickname
	}
	if upd.Gender != nil {
		gender := models.Gender(*upd.Gender)
		if !gender.Valid() {
			return nil, apperr.Validation("gender must be one of male, female, secret")
		}
		changes["gender"] = gender
	}
	if upd.Bio != nil {
		if utf8.RuneCountInString(*upd.Bio) > bioMaxLen {
			return nil, apperr.Validation(fmt.Sprintf("bio must be at most %d characters", bioMaxLen))
		}
		changes["bio"] = *upd.Bio
	}
	if upd.Avatar != nil {
		changes["avatar"] = strings.TrimSpace(*upd.Avatar)
	}

	write := db.Write(ctx, s.db)
	user, err := findUser(write, id)
	if err != nil {
		return nil, err
	}
	if len(changes) == 0 {
		return user, nil
	}
	if err := write.Model(user).Updates(changes).Error; err != nil {
		return nil, apperr.Internal("update profile", err)
	}
	return findUser(db.Write(ctx, s.db), id)
}

// Search ищет пользователей по подстроке логина или никнейма
func (s *UserService) Search(ctx context.Context, query string, limit int) ([]models.User, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return []models.User{}, nil
	}
	if limit <= 0 || limit > searchMaxLimit {
		limit = searchMaxLimit
	}
	pattern := "%" + query + "%"
	var users []models.User
	err := db.Read(ctx, s.db).
		Where("username LIKE ? OR nickname LIKE ?", pattern, pattern).
		Order("id ASC").
		Limit(limit).
		Find(&users).Error
	if err != nil {
		return nil, apperr.Internal("search users", err)
	}
	return users, nil
}

// displayNames отображаемые имена для набора пользователей
func displayNames(tx *gorm.DB, ids []int64) (map[int64]string, error) {
	names := make(map[int64]string, len(ids))
	if len(ids) == 0 {
		return names, nil
	}
	var users []models.User
	if err := tx.Select("id", "username", "nickname").Where("id IN ?", uniqueIDs(ids)).Find(&users).Error; err != nil {
		return nil, err
	}
	for i := range users {
		names[users[i].ID] = users[i].DisplayName()
	}
	return names, nil
}

func uniqueIDs(ids []int64) []int64 {
	seen := make(map[int64]struct{}, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
