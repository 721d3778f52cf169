// Package auth registers users, verifies credentials and resolves bearer
// tokens into caller identities.
package auth

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/jogardn/dtc-configurator/internal/apperr"
	"github.com/jogardn/dtc-configurator/internal/storage"
	"github.com/jogardn/dtc-configurator/internal/validate"
	"github.com/jogardn/dtc-configurator/pkg/models"
)

const invalidCredentials = "Invalid credentials"

type RegisterRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
	Name     string `json:"name" validate:"required"`
}

type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type Session struct {
	Token     string            `json:"token"`
	ExpiresAt time.Time         `json:"expires_at"`
	User      models.PublicUser `json:"user"`
}

type Service struct {
	users   storage.UserStore
	tokens  *Tokens
	isAdmin func(email string) bool
	logger  *logrus.Logger
	now     func() time.Time
}

// NewService wires the user store and token issuer. isAdmin decides which
// newly registered emails get the administrator flag; nil means none.
func NewService(users storage.UserStore, tokens *Tokens, isAdmin func(string) bool, logger *logrus.Logger) *Service {
	if isAdmin == nil {
		isAdmin = func(string) bool { return false }
	}
	return &Service{
		users:   users,
		tokens:  tokens,
		isAdmin: isAdmin,
		logger:  logger,
		now:     time.Now,
	}
}

func (s *Service) Register(ctx context.Context, req RegisterRequest) (*Session, error) {
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	req.Name = strings.TrimSpace(req.Name)

	var fields []apperr.FieldError
	if err := validate.Struct(req); err != nil {
		appErr := apperr.As(err)
		if appErr.Kind != apperr.KindValidation {
			return nil, err
		}
		fields = append(fields, appErr.Fields...)
	}
	fields = append(fields, CheckPasswordRules(req.Password)...)
	if len(fields) > 0 {
		return nil, apperr.Validation(fields...)
	}

	if _, err := s.users.GetUserByEmail(ctx, req.Email); err == nil {
		return nil, userExists()
	} else if !errors.Is(err, storage.ErrNotFound) {
		return nil, apperr.Internal(err)
	}

	hash, err := HashPassword(req.Password)
	if err != nil {
		return nil, apperr.Internal(err)
	}

	now := s.now().UTC()
	user := &models.User{
		ID:           uuid.New().String(),
		Email:        req.Email,
		Name:         req.Name,
		PasswordHash: hash,
		IsAdmin:      s.isAdmin(req.Email),
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	// The store's unique index settles races between concurrent registrations.
	if err := s.users.CreateUser(ctx, user); err != nil {
		if errors.Is(err, storage.ErrDuplicate) {
			return nil, userExists()
		}
		return nil, apperr.Internal(err)
	}

	s.logger.WithFields(logrus.Fields{
		"user_id":  user.ID,
		"is_admin": user.IsAdmin,
	}).Info("User registered")

	return s.session(user)
}

func (s *Service) Login(ctx context.Context, req LoginRequest) (*Session, error) {
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if err := validate.Struct(req); err != nil {
		return nil, err
	}

	user, err := s.users.GetUserByEmail(ctx, req.Email)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, apperr.Validation(apperr.FieldError{Field: "credentials", Message: invalidCredentials})
	}
	if err != nil {
		return nil, apperr.Internal(err)
	}

	ok, err := ComparePassword(user.PasswordHash, req.Password)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	if !ok {
		s.logger.WithField("user_id", user.ID).Info("Login rejected")
		return nil, apperr.Validation(apperr.FieldError{Field: "credentials", Message: invalidCredentials})
	}

	return s.session(user)
}

// Resolve turns a bearer token into the caller identity.
func (s *Service) Resolve(token string) (*models.Identity, error) {
	if token == "" {
		return nil, apperr.Unauthenticated("authentication required")
	}
	id, err := s.tokens.Parse(token)
	if err != nil {
		return nil, apperr.Unauthenticated("invalid or expired token")
	}
	return id, nil
}

func (s *Service) Me(ctx context.Context, caller *models.Identity) (*models.PublicUser, error) {
	if caller == nil {
		return nil, apperr.Unauthenticated("authentication required")
	}
	user, err := s.users.GetUserByID(ctx, caller.UserID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, apperr.Unauthenticated("account no longer exists")
	}
	if err != nil {
		return nil, apperr.Internal(err)
	}
	public := user.Public()
	return &public, nil
}

func (s *Service) session(user *models.User) (*Session, error) {
	token, expires, err := s.tokens.Issue(user)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	return &Session{Token: token, ExpiresAt: expires, User: user.Public()}, nil
}

func userExists() error {
	return apperr.Conflict("User already exists").WithField("email")
}
