package services

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/lanefeed/lanefeed/internal/config"
	"github.com/lanefeed/lanefeed/internal/database"
)

func newAuthTestService(t *testing.T, withRedis bool) (*AuthService, pgxmock.PgxPoolIface) {
	t.Helper()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)

	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)

	cfg := &config.Config{}
	cfg.Auth.SessionSecret = "0123456789abcdef0123456789abcdef"
	cfg.Auth.SessionTTL = time.Hour

	db := &database.Database{PG: mock}
	if withRedis {
		mr := miniredis.RunT(t)
		db.Redis = redis.NewClient(&redis.Options{Addr: mr.Addr()})
	}

	return NewAuthService(cfg, logger, db), mock
}

func TestAuthService_Signup(t *testing.T) {
	t.Run("normalizes the email and stores a bcrypt hash", func(t *testing.T) {
		svc, mock := newAuthTestService(t, false)
		defer mock.Close()

		mock.ExpectExec("INSERT INTO users").
			WithArgs(pgxmock.AnyArg(), "marie@example.com", pgxmock.AnyArg(), pgxmock.AnyArg()).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))

		user, err := svc.Signup(context.Background(), "  Marie@Example.COM ", "hunter2hunter2")
		require.NoError(t, err)

		assert.NotEmpty(t, user.ID)
		assert.Equal(t, "marie@example.com", user.Email)
		assert.NotEqual(t, "hunter2hunter2", user.PasswordHash)
		assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte("hunter2hunter2")))
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("a duplicate email maps to ErrEmailTaken", func(t *testing.T) {
		svc, mock := newAuthTestService(t, false)
		defer mock.Close()

		mock.ExpectExec("INSERT INTO users").
			WillReturnError(&pgconn.PgError{Code: uniqueViolation, ConstraintName: "users_email_key"})

		_, err := svc.Signup(context.Background(), "marie@example.com", "hunter2hunter2")
		require.ErrorIs(t, err, ErrEmailTaken)
		require.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestAuthService_Login(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("hunter2hunter2"), bcrypt.MinCost)
	require.NoError(t, err)
	userRow := func() *pgxmock.Rows {
		return pgxmock.NewRows([]string{"id", "email", "password_hash", "created_at"}).
			AddRow("user-1", "marie@example.com", string(hash), time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC))
	}

	t.Run("valid credentials return the user", func(t *testing.T) {
		svc, mock := newAuthTestService(t, false)
		defer mock.Close()

		mock.ExpectQuery("FROM users WHERE email").
			WithArgs("marie@example.com").
			WillReturnRows(userRow())

		user, err := svc.Login(context.Background(), "Marie@example.com", "hunter2hunter2")
		require.NoError(t, err)
		assert.Equal(t, "user-1", user.ID)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("a wrong password and an unknown email are indistinguishable", func(t *testing.T) {
		svc, mock := newAuthTestService(t, false)
		defer mock.Close()

		mock.ExpectQuery("FROM users WHERE email").
			WithArgs("marie@example.com").
			WillReturnRows(userRow())
		mock.ExpectQuery("FROM users WHERE email").
			WithArgs("nobody@example.com").
			WillReturnError(pgx.ErrNoRows)

		_, err := svc.Login(context.Background(), "marie@example.com", "wrong-password")
		require.ErrorIs(t, err, ErrInvalidCredentials)

		_, err = svc.Login(context.Background(), "nobody@example.com", "hunter2hunter2")
		require.ErrorIs(t, err, ErrInvalidCredentials)
		require.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestAuthService_GetUser(t *testing.T) {
	svc, mock := newAuthTestService(t, false)
	defer mock.Close()

	mock.ExpectQuery("FROM users WHERE id").
		WithArgs("user-1").
		WillReturnRows(pgxmock.NewRows([]string{"id", "email", "password_hash", "created_at"}).
			AddRow("user-1", "marie@example.com", "x", time.Now()))
	mock.ExpectQuery("FROM users WHERE id").
		WithArgs("ghost").
		WillReturnError(pgx.ErrNoRows)

	user, err := svc.GetUser(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Equal(t, "marie@example.com", user.Email)

	_, err = svc.GetUser(context.Background(), "ghost")
	require.ErrorIs(t, err, ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAuthService_Tokens(t *testing.T) {
	t.Run("roundtrip", func(t *testing.T) {
		svc, mock := newAuthTestService(t, false)
		defer mock.Close()

		token, err := svc.GenerateToken("user-1")
		require.NoError(t, err)

		userID, err := svc.ValidateToken(token)
		require.NoError(t, err)
		assert.Equal(t, "user-1", userID)
	})

	t.Run("tampered tokens are invalid", func(t *testing.T) {
		svc, mock := newAuthTestService(t, false)
		defer mock.Close()

		token, err := svc.GenerateToken("user-1")
		require.NoError(t, err)

		_, err = svc.ValidateToken(token + "x")
		require.ErrorIs(t, err, ErrSessionInvalid)
	})

	t.Run("tokens signed with another secret are invalid", func(t *testing.T) {
		svc, mock := newAuthTestService(t, false)
		defer mock.Close()

		forged := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
			Subject:   "user-1",
			ID:        "jti-1",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		})
		tokenString, err := forged.SignedString([]byte("a completely different secret"))
		require.NoError(t, err)

		_, err = svc.ValidateToken(tokenString)
		require.ErrorIs(t, err, ErrSessionInvalid)
	})

	t.Run("alg none is rejected", func(t *testing.T) {
		svc, mock := newAuthTestService(t, false)
		defer mock.Close()

		unsigned := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.RegisteredClaims{
			Subject:   "user-1",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		})
		tokenString, err := unsigned.SignedString(jwt.UnsafeAllowNoneSignatureType)
		require.NoError(t, err)

		_, err = svc.ValidateToken(tokenString)
		require.ErrorIs(t, err, ErrSessionInvalid)
	})

	t.Run("expired tokens are invalid", func(t *testing.T) {
		svc, mock := newAuthTestService(t, false)
		defer mock.Close()
		svc.config.Auth.SessionTTL = -time.Minute

		token, err := svc.GenerateToken("user-1")
		require.NoError(t, err)

		_, err = svc.ValidateToken(token)
		require.ErrorIs(t, err, ErrSessionInvalid)
	})

	t.Run("revocation kills the session before expiry", func(t *testing.T) {
		svc, mock := newAuthTestService(t, true)
		defer mock.Close()

		token, err := svc.GenerateToken("user-1")
		require.NoError(t, err)

		userID, err := svc.ValidateToken(token)
		require.NoError(t, err)
		assert.Equal(t, "user-1", userID)

		svc.RevokeToken(token)

		_, err = svc.ValidateToken(token)
		require.ErrorIs(t, err, ErrSessionInvalid)
	})

	t.Run("revoking garbage is a no-op", func(t *testing.T) {
		svc, mock := newAuthTestService(t, true)
		defer mock.Close()

		svc.RevokeToken("not-a-token")
	})
}
