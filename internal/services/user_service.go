package services

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"

	"familybudget/internal/auth"
	"familybudget/internal/core"
	apperrors "familybudget/internal/errors"
	"familybudget/internal/ledger"
	"familybudget/internal/log"
	"familybudget/internal/storage"
)

const CodeEmailAlreadyExist = "email_already_exist"

// UserService manages accounts. Aggregates are read here, never written.
type UserService struct {
	storage  *storage.SQLiteRepository
	locks    *ledger.UserLocks
	lockWait time.Duration
	logger   *log.Logger
	now      func() time.Time
}

// NewUserService shares locks with the ledger so a user delete waits for
// in-flight item writes of that user, at most lockWait.
func NewUserService(storage *storage.SQLiteRepository, locks *ledger.UserLocks, lockWait time.Duration, logger *log.Logger) *UserService {
	if locks == nil {
		locks = ledger.NewUserLocks()
	}
	if lockWait <= 0 {
		lockWait = ledger.DefaultLockWait
	}
	return &UserService{
		storage:  storage,
		locks:    locks,
		lockWait: lockWait,
		logger:   logger.WithComponent(log.ComponentUser),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Profile is a user as shown to themselves.
type Profile struct {
	User    core.User
	Balance core.Money
}

func (s *UserService) Register(ctx context.Context, email, password, firstName, lastName string) (core.User, error) {
	email = strings.TrimSpace(email)
	if _, err := mail.ParseAddress(email); err != nil {
		return core.User{}, apperrors.ValidationField("email", "invalid_email", "must be a valid email address")
	}
	if err := auth.ValidatePassword(password); err != nil {
		return core.User{}, apperrors.ValidationField("password", core.CodeInvalidLength, err.Error())
	}

	q := s.storage.Queries()
	if _, err := q.GetUserByEmail(ctx, email); err == nil {
		return core.User{}, apperrors.ValidationField("email", CodeEmailAlreadyExist, "email already registered")
	} else if !errors.Is(err, apperrors.ErrNotFound) {
		return core.User{}, err
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return core.User{}, apperrors.Wrap(err, apperrors.CodeInternal, "register user")
	}
	now := s.now()
	u := core.User{
		ID:           uuid.NewString(),
		Email:        email,
		FirstName:    strings.TrimSpace(firstName),
		LastName:     strings.TrimSpace(lastName),
		PasswordHash: hash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := q.CreateUser(ctx, u); err != nil {
		return core.User{}, fmt.Errorf("register user: %w", err)
	}

	s.logger.InfoContext(ctx, "User registered", log.FieldUserID, u.ID)
	return u, nil
}

// Authenticate returns UNAUTHORIZED for an unknown email or a wrong
// password alike.
func (s *UserService) Authenticate(ctx context.Context, email, password string) (core.User, error) {
	u, err := s.storage.Queries().GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return core.User{}, apperrors.Unauthorized(auth.ErrInvalidCredentials.Error())
		}
		return core.User{}, err
	}
	if err := auth.CheckPassword(u.PasswordHash, password); err != nil {
		s.logger.WarnContext(ctx, "Login failed", log.FieldUserID, u.ID, log.FieldErrorType, log.ErrorTypeAuth)
		return core.User{}, apperrors.Unauthorized(err.Error())
	}
	return u, nil
}

func (s *UserService) Profile(ctx context.Context, userID string) (Profile, error) {
	u, err := s.storage.Queries().GetUser(ctx, userID)
	if err != nil {
		return Profile{}, err
	}
	return Profile{User: u, Balance: u.Balance()}, nil
}

// Delete removes the user; items, budgets and memberships cascade with it.
// A lock not acquired within lockWait yields CONCURRENCY.
func (s *UserService) Delete(ctx context.Context, userID string) error {
	waitCtx, cancel := context.WithTimeout(ctx, s.lockWait)
	defer cancel()

	unlock, err := s.locks.Lock(waitCtx, userID)
	if err != nil {
		s.logger.WarnContext(ctx, "User lock not acquired",
			log.FieldUserID, userID,
			log.FieldErrorType, log.ErrorTypeConcurrency)
		return err
	}
	defer unlock()

	if err := s.storage.Queries().DeleteUser(ctx, userID); err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	s.logger.InfoContext(ctx, "User deleted", log.FieldUserID, userID)
	return nil
}
