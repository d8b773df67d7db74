package services

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/argon2"

	"tapspot/apperr"
	"tapspot/models"
)

// HashPassword хеширует пароль argon2id, формат hex(salt)$hex(hash)
func HashPassword(password string) (string, error) {
	salt := make([]byte, 16)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}
	hash := argon2.IDKey([]byte(password), salt, 1, 64*1024, 4, 32)
	return hex.EncodeToString(salt) + "$" + hex.EncodeToString(hash), nil
}

// CheckPassword сверяет пароль с сохранённым хешем
func CheckPassword(stored, password string) bool {
	parts := strings.SplitN(stored, "$", 2)
	if len(parts) != 2 {
		return false
	}
	salt, err := hex.DecodeString(parts[0])
	if err != nil {
		return false
	}
	want, err := hex.DecodeString(parts[1])
	if err != nil {
		return false
	}
	got := argon2.IDKey([]byte(password), salt, 1, 64*1024, 4, uint32(len(want)))
	return subtle.ConstantTimeCompare(got, want) == 1
}

// Claims содержимое токена сессии
type Claims struct {
	UserID   int64  `json:"user_id"`
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// RevocationStore список отозванных токенов (по jti)
type RevocationStore interface {
	Revoke(ctx context.Context, jti string, ttl time.Duration) error
	IsRevoked(ctx context.Context, jti string) (bool, error)
}

var errInvalidToken = apperr.Unauthorized("invalid or expired token")

type TokenService struct {
	secret  []byte
	ttl     time.Duration
	revoked RevocationStore
	log     *zap.Logger
	now     func() time.Time
}

// NewTokenService создает сервис токенов. Пустой секрет заменяется
// случайным: токены тогда живут до перезапуска процесса.
func NewTokenService(secret string, ttl time.Duration, revoked RevocationStore, log *zap.Logger) *TokenService {
	key := []byte(secret)
	if len(key) == 0 {
		key = make([]byte, 32)
		_, _ = rand.Read(key)
		log.Warn("jwt secret is not configured, using a random one")
	}
	if revoked == nil {
		revoked = NewMemoryRevocationStore()
	}
	return &TokenService{secret: key, ttl: ttl, revoked: revoked, log: log, now: time.Now}
}

// Issue выпускает токен для пользователя
func (s *TokenService) Issue(user *models.User) (string, time.Time, error) {
	now := s.now()
	expiresAt := now.Add(s.ttl)
	claims := Claims{
		UserID:   user.ID,
		Username: user.Username,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   fmt.Sprintf("%d", user.ID),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, expiresAt, nil
}

// Parse проверяет подпись, срок и отзыв. Любая ошибка сводится к Unauthorized.
func (s *TokenService) Parse(ctx context.Context, raw string) (*Claims, error) {
	if raw == "" {
		return nil, apperr.Unauthorized("missing token")
	}
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil || !token.Valid || claims.UserID <= 0 {
		return nil, errInvalidToken
	}

	revoked, err := s.revoked.IsRevoked(ctx, claims.ID)
	if err != nil {
		// хранилище отзыва недоступно: пропускаем, токен подписан и не истёк
		s.log.Warn("revocation check failed", zap.Error(err))
	}
	if revoked {
		return nil, errInvalidToken
	}
	return claims, nil
}

// Revoke отзывает токен до конца его срока жизни
func (s *TokenService) Revoke(ctx context.Context, claims *Claims) error {
	if claims == nil || claims.ID == "" {
		return nil
	}
	ttl := time.Until(claims.ExpiresAt.Time)
	if ttl <= 0 {
		return nil
	}
	return s.revoked.Revoke(ctx, claims.ID, ttl)
}

// RedisRevocationStore хранит отозванные jti в Redis с TTL
type RedisRevocationStore struct {
	client *redis.Client
}

func NewRedisRevocationStore(client *redis.Client) *RedisRevocationStore {
	return &RedisRevocationStore{client: client}
}

func revokedKey(jti string) string {
	return "revoked:" + jti
}

func (r *RedisRevocationStore) Revoke(ctx context.Context, jti string, ttl time.Duration) error {
	return r.client.Set(ctx, revokedKey(jti), 1, ttl).Err()
}

func (r *RedisRevocationStore) IsRevoked(ctx context.Context, jti string) (bool, error) {
	err := r.client.Get(ctx, revokedKey(jti)).Err()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// MemoryRevocationStore для запуска без Redis (один процесс)
type MemoryRevocationStore struct {
	mu      sync.Mutex
	entries map[string]time.Time
}

func NewMemoryRevocationStore() *MemoryRevocationStore {
	return &MemoryRevocationStore{entries: make(map[string]time.Time)}
}

func (m *MemoryRevocationStore) Revoke(_ context.Context, jti string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	for k, exp := range m.entries {
		if now.After(exp) {
			delete(m.entries, k)
		}
	}
	m.entries[jti] = now.Add(ttl)
	return nil
}

func (m *MemoryRevocationStore) IsRevoked(_ context.Context, jti string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	exp, ok := m.entries[jti]
	return ok && time.Now().Before(exp), nil
}
