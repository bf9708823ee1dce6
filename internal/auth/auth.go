package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/breakdesk/breakdesk/internal/storage"
	"github.com/golang-jwt/jwt/v5"
	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/crypto/bcrypt"
)

const (
	// DefaultTokenExpiration is the default expiration time for JWT tokens.
	DefaultTokenExpiration = 7 * 24 * time.Hour

	// BcryptCost is the cost factor for bcrypt password hashing.
	BcryptCost = 12

	// DefaultCacheSize bounds the verified-claims cache.
	DefaultCacheSize = 1024
)

var (
	// ErrInvalidCredentials is returned when login credentials are invalid.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrInvalidToken is returned when a JWT token is invalid.
	ErrInvalidToken = errors.New("invalid token")
)

// Claims represents the JWT claims for a tracked user.
type Claims struct {
	UserID string `json:"user_id"`
	Email  string `json:"email"`
	jwt.RegisteredClaims
}

// Service issues credential tokens and resolves them back to users.
//
// Verify always re-reads the user record so team membership and admin status
// reflect the current state, not the state at token issue time. Only the
// signature check result is cached.
type Service struct {
	users           storage.UserStore
	jwtSecret       []byte
	tokenExpiration time.Duration
	claimsCache     *lru.Cache[string, *Claims]
}

// NewService creates a new authentication service.
func NewService(users storage.UserStore, jwtSecret string, tokenExpiration time.Duration, cacheSize int) (*Service, error) {
	if tokenExpiration == 0 {
		tokenExpiration = DefaultTokenExpiration
	}
	if cacheSize <= 0 {
		cacheSize = DefaultCacheSize
	}

	cache, err := lru.New[string, *Claims](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("create claims cache: %w", err)
	}

	return &Service{
		users:           users,
		jwtSecret:       []byte(jwtSecret),
		tokenExpiration: tokenExpiration,
		claimsCache:     cache,
	}, nil
}

// HashPassword hashes a password using bcrypt.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), BcryptCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

// VerifyPassword verifies a password against a hash.
func VerifyPassword(password, hash string) error {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
}

// Login authenticates a user by email and password and issues a token.
func (s *Service) Login(ctx context.Context, email, password string) (*storage.User, string, error) {
	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, "", ErrInvalidCredentials
		}
		return nil, "", fmt.Errorf("get user: %w", err)
	}

	if err := VerifyPassword(password, user.PasswordHash); err != nil {
		return nil, "", ErrInvalidCredentials
	}

	token, err := s.IssueToken(user)
	if err != nil {
		return nil, "", err
	}

	return user, token, nil
}

// IssueToken generates a new JWT token for a user.
func (s *Service) IssueToken(user *storage.User) (string, error) {
	now := time.Now()
	claims := &Claims{
		UserID: user.ID,
		Email:  user.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(s.tokenExpiration)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signedToken, err := token.SignedString(s.jwtSecret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}

	return signedToken, nil
}

// Verify resolves a credential token to the current user record.
func (s *Service) Verify(ctx context.Context, tokenString string) (*storage.User, error) {
	claims, err := s.parseToken(tokenString)
	if err != nil {
		return nil, err
	}

	user, err := s.users.Get(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrInvalidToken
		}
		return nil, fmt.Errorf("get user: %w", err)
	}

	return user, nil
}

// parseToken validates the token signature, consulting the claims cache first.
func (s *Service) parseToken(tokenString string) (*Claims, error) {
	if cached, ok := s.claimsCache.Get(tokenString); ok {
		if cached.ExpiresAt != nil && time.Now().After(cached.ExpiresAt.Time) {
			s.claimsCache.Remove(tokenString)
			return nil, ErrInvalidToken
		}
		return cached, nil
	}

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		// Validate signing method
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.jwtSecret, nil
	})
	if err != nil {
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}

	s.claimsCache.Add(tokenString, claims)
	return claims, nil
}

// ChangePassword changes a user's password after verifying the current one.
func (s *Service) ChangePassword(ctx context.Context, userID, currentPassword, newPassword string) error {
	user, err := s.users.Get(ctx, userID)
	if err != nil {
		return fmt.Errorf("get user: %w", err)
	}

	if err := VerifyPassword(currentPassword, user.PasswordHash); err != nil {
		return ErrInvalidCredentials
	}

	newHash, err := HashPassword(newPassword)
	if err != nil {
		return err
	}

	user.PasswordHash = newHash
	if err := s.users.Upsert(ctx, *user); err != nil {
		return fmt.Errorf("update user: %w", err)
	}

	return nil
}
