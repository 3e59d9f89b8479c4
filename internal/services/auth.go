package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"

	"github.com/lanefeed/lanefeed/internal/config"
	"github.com/lanefeed/lanefeed/internal/database"
	"github.com/lanefeed/lanefeed/pkg/models"
)

const uniqueViolation = "23505"

type AuthService struct {
	config        *config.Config
	logger        *logrus.Logger
	db            *database.Database
	sessionSecret []byte
}

type sessionClaims struct {
	jwt.RegisteredClaims
}

func NewAuthService(cfg *config.Config, logger *logrus.Logger, db *database.Database) *AuthService {
	return &AuthService{
		config:        cfg,
		logger:        logger,
		db:            db,
		sessionSecret: []byte(cfg.Auth.SessionSecret),
	}
}

// Signup creates a user with a bcrypt-hashed password. Duplicate email
// maps to ErrEmailTaken regardless of which statement detects it.
func (s *AuthService) Signup(ctx context.Context, email, password string) (*models.User, error) {
	email = normalizeEmail(email)

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user := &models.User{
		ID:           models.NewID(),
		Email:        email,
		PasswordHash: string(hash),
		CreatedAt:    time.Now(),
	}

	_, err = s.db.PG.Exec(ctx,
		`INSERT INTO users (id, email, password_hash, created_at) VALUES ($1, $2, $3, $4)`,
		user.ID, user.Email, user.PasswordHash, user.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return nil, ErrEmailTaken
		}
		return nil, fmt.Errorf("failed to insert user: %w", err)
	}

	s.logger.WithField("user_id", user.ID).Info("User signed up")
	return user, nil
}

// Login verifies credentials. Unknown email and wrong password return
// the same error so callers cannot probe for registered addresses.
func (s *AuthService) Login(ctx context.Context, email, password string) (*models.User, error) {
	email = normalizeEmail(email)

	var user models.User
	err := s.db.PG.QueryRow(ctx,
		`SELECT id, email, password_hash, created_at FROM users WHERE email = $1`,
		email,
	).Scan(&user.ID, &user.Email, &user.PasswordHash, &user.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("failed to look up user: %w", err)
	}

	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		return nil, ErrInvalidCredentials
	}

	return &user, nil
}

func (s *AuthService) GetUser(ctx context.Context, userID string) (*models.User, error) {
	var user models.User
	err := s.db.PG.QueryRow(ctx,
		`SELECT id, email, password_hash, created_at FROM users WHERE id = $1`,
		userID,
	).Scan(&user.ID, &user.Email, &user.PasswordHash, &user.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to look up user: %w", err)
	}
	return &user, nil
}

// GenerateToken issues a signed session token and registers its jti in
// Redis so logout can revoke it before expiry.
func (s *AuthService) GenerateToken(userID string) (string, error) {
	now := time.Now()
	jti := uuid.NewString()
	claims := &sessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			ID:        jti,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.config.Auth.SessionTTL)),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    "lanefeed",
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(s.sessionSecret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}

	if s.db.Redis != nil {
		err := s.db.Redis.Set(context.Background(), sessionKey(jti), userID, s.config.Auth.SessionTTL).Err()
		if err != nil {
			s.logger.WithError(err).Warn("Failed to store session in Redis")
			// Don't fail token generation if Redis is down
		}
	}

	return tokenString, nil
}

// ValidateToken returns the user id for a live session token.
func (s *AuthService) ValidateToken(tokenString string) (string, error) {
	token, err := jwt.ParseWithClaims(tokenString, &sessionClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.sessionSecret, nil
	})
	if err != nil {
		return "", ErrSessionInvalid
	}

	claims, ok := token.Claims.(*sessionClaims)
	if !ok || !token.Valid || claims.Subject == "" {
		return "", ErrSessionInvalid
	}

	if s.db.Redis != nil {
		exists, err := s.db.Redis.Exists(context.Background(), sessionKey(claims.ID)).Result()
		if err != nil {
			s.logger.WithError(err).Warn("Failed to check session in Redis")
			// Continue validation even if Redis is down
		} else if exists == 0 {
			return "", ErrSessionInvalid
		}
	}

	return claims.Subject, nil
}

// RevokeToken drops the session behind a token. Invalid tokens are a
// no-op; logout always succeeds from the client's point of view.
func (s *AuthService) RevokeToken(tokenString string) {
	if s.db.Redis == nil {
		return
	}
	token, err := jwt.ParseWithClaims(tokenString, &sessionClaims{}, func(token *jwt.Token) (interface{}, error) {
		return s.sessionSecret, nil
	})
	if err != nil {
		return
	}
	claims, ok := token.Claims.(*sessionClaims)
	if !ok || claims.ID == "" {
		return
	}
	if err := s.db.Redis.Del(context.Background(), sessionKey(claims.ID)).Err(); err != nil {
		s.logger.WithError(err).Warn("Failed to revoke session")
	}
}

func sessionKey(jti string) string {
	return fmt.Sprintf("session:%s", jti)
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
