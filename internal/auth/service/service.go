// Package service implements analyst login.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/crypto/bcrypt"

	"stealwatch/internal/auth/models"
	dErrors "stealwatch/pkg/errors"
	"stealwatch/pkg/platform/sentinel"
)

// dummyHash keeps login timing uniform when the username is unknown.
var dummyHash, _ = bcrypt.GenerateFromPassword([]byte("stealwatch-dummy-password"), bcrypt.DefaultCost)

type Store interface {
	GetByUsername(ctx context.Context, username string) (*models.User, error)
	Get(ctx context.Context, id int64) (*models.User, error)
	Create(ctx context.Context, u *models.User) (*models.User, error)
	TouchLastLogin(ctx context.Context, id int64, at time.Time) error
}

type TokenIssuer interface {
	GenerateToken(userID int64, username, role string) (string, error)
	TokenTTL() time.Duration
}

type Service struct {
	store  Store
	tokens TokenIssuer
	logger *slog.Logger
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func New(store Store, tokens TokenIssuer, opts ...Option) (*Service, error) {
	if store == nil || tokens == nil {
		return nil, errors.New("user store and token issuer are required")
	}
	svc := &Service{
		store:  store,
		tokens: tokens,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// LoginResult carries the issued token and its owner.
type LoginResult struct {
	Token     string       `json:"token"`
	ExpiresIn int          `json:"expires_in"`
	User      *models.User `json:"user"`
}

// Login verifies credentials and issues an access token. Unknown users and
// wrong passwords return the same error so usernames cannot be probed.
func (s *Service) Login(ctx context.Context, username, password string) (*LoginResult, error) {
	if username == "" || password == "" {
		return nil, dErrors.New(dErrors.CodeBadRequest, "username and password are required")
	}

	user, err := s.store.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			// Burn a hash comparison anyway to keep timing uniform.
			_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
			return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid credentials")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to look up user")
	}
	if !user.Active {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid credentials")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid credentials")
	}

	token, err := s.tokens.GenerateToken(user.ID, user.Username, user.Role)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to issue token")
	}

	if err := s.store.TouchLastLogin(ctx, user.ID, time.Now()); err != nil {
		s.logger.WarnContext(ctx, "failed to record last login", "user_id", user.ID, "error", err)
	}

	return &LoginResult{
		Token:     token,
		ExpiresIn: int(s.tokens.TokenTTL().Seconds()),
		User:      user,
	}, nil
}

// Register creates an analyst account with a bcrypt-hashed password.
func (s *Service) Register(ctx context.Context, username, password, email, role string) (*models.User, error) {
	if username == "" || password == "" {
		return nil, dErrors.New(dErrors.CodeBadRequest, "username and password are required")
	}
	if len(password) < 8 {
		return nil, dErrors.New(dErrors.CodeBadRequest, "password must be at least 8 characters")
	}
	if role == "" {
		role = models.RoleAnalyst
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to hash password")
	}

	user, err := s.store.Create(ctx, &models.User{
		Username:     username,
		PasswordHash: string(hash),
		Email:        email,
		Role:         role,
	})
	if err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return nil, dErrors.New(dErrors.CodeConflict, "username is already taken")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create user")
	}
	return user, nil
}
