package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"

	"novelhub/internal/domain"
	"novelhub/internal/repository"
)

const minPasswordLength = 6

const (
	msgMissingFields    = "Please fill in all fields!"
	msgPasswordMismatch = "Passwords do not match!"
	msgPasswordTooShort = "Password must be at least 6 characters!"
	msgUsernameTaken    = "user is already registered!"
)

// RegistrationRequest is a submitted registration form.
type RegistrationRequest struct {
	Username        string
	Password        string
	PasswordConfirm string
}

// UserService describes user lifecycle operations.
type UserService interface {
	Register(ctx context.Context, req RegistrationRequest) (*domain.User, error)
	Authenticate(ctx context.Context, username, password string) (*domain.User, error)
	GetByID(ctx context.Context, id int64) (*domain.User, error)
}

type UserOption func(*userService)

// WithHashCost overrides the bcrypt cost.
func WithHashCost(cost int) UserOption {
	return func(s *userService) {
		s.hashCost = cost
	}
}

type userService struct {
	users    repository.UserRepository
	hashCost int
	log      logrus.FieldLogger
	compare  func(hash, password []byte) error

	dummyOnce sync.Once
	dummyHash []byte
}

func NewUserService(users repository.UserRepository, logger logrus.FieldLogger, opts ...UserOption) UserService {
	if logger == nil {
		logger = logrus.New()
	}
	s := &userService{
		users:    users,
		hashCost: bcrypt.DefaultCost,
		log:      logger.WithField("component", "users"),
		compare:  bcrypt.CompareHashAndPassword,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register validates the form, reporting every violated rule at once, and
// creates the user. A username collision, whether seen by the pre-check or by
// the unique index at write time, is reported as CodeUsernameTaken.
func (s *userService) Register(ctx context.Context, req RegistrationRequest) (*domain.User, error) {
	username := strings.TrimSpace(req.Username)

	var verrs ValidationErrors
	if username == "" || req.Password == "" || req.PasswordConfirm == "" {
		verrs = append(verrs, ValidationError{Code: CodeMissingFields, Message: msgMissingFields})
	}
	if req.Password != req.PasswordConfirm {
		verrs = append(verrs, ValidationError{Code: CodePasswordMismatch, Message: msgPasswordMismatch})
	}
	if utf8.RuneCountInString(req.Password) < minPasswordLength {
		verrs = append(verrs, ValidationError{Code: CodePasswordTooShort, Message: msgPasswordTooShort})
	}
	if len(verrs) > 0 {
		return nil, verrs
	}

	if _, err := s.users.GetByUsername(ctx, username); err == nil {
		return nil, append(verrs, usernameTaken())
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("%w: lookup user: %w", ErrPersistence, err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), s.hashCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	user := &domain.User{
		Username:     username,
		PasswordHash: string(hash),
	}
	if _, err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			s.log.WithField("user", username).Info("registration lost uniqueness race")
			return nil, append(verrs, usernameTaken())
		}
		return nil, fmt.Errorf("%w: create user: %w", ErrPersistence, err)
	}

	s.log.WithField("user", username).Info("user registered")
	return sanitizeUser(user), nil
}

func (s *userService) Authenticate(ctx context.Context, username, password string) (*domain.User, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		s.burnCompare(password)
		return nil, ErrUserNotFound
	}

	user, err := s.users.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			s.burnCompare(password)
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("%w: lookup user: %w", ErrPersistence, err)
	}

	if err := s.compare([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, ErrBadCredentials
	}

	return sanitizeUser(user), nil
}

func (s *userService) GetByID(ctx context.Context, id int64) (*domain.User, error) {
	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return sanitizeUser(user), nil
}

// burnCompare spends one hash comparison against a throwaway hash of the
// configured cost, so unknown usernames take as long as wrong passwords.
func (s *userService) burnCompare(password string) {
	s.dummyOnce.Do(func() {
		hash, err := bcrypt.GenerateFromPassword([]byte("novelhub-absent-user"), s.hashCost)
		if err != nil {
			s.log.WithError(err).Error("generate dummy hash failed")
			return
		}
		s.dummyHash = hash
	})
	if s.dummyHash == nil {
		return
	}
	_ = s.compare(s.dummyHash, []byte(password))
}

func usernameTaken() ValidationError {
	return ValidationError{Code: CodeUsernameTaken, Message: msgUsernameTaken}
}

func sanitizeUser(user *domain.User) *domain.User {
	if user == nil {
		return nil
	}
	return &domain.User{
		ID:        user.ID,
		Username:  user.Username,
		CreatedAt: user.CreatedAt,
		UpdatedAt: user.UpdatedAt,
	}
}
