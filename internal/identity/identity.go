// Package identity is the credential collaborator: registration, login and
// profile lookup. It owns password hashing; session lifetime belongs to the
// session package.
package identity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"tally/internal/storage"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrMissingCredentials = errors.New("username and password are required")
)

type Service struct {
	ledger *storage.Ledger
}

func NewService(ledger *storage.Ledger) *Service {
	return &Service{ledger: ledger}
}

// Register creates a user with a bcrypt-hashed password and returns the new
// user ID. Returns storage.ErrDuplicateUsername when the name is taken.
func (s *Service) Register(ctx context.Context, username, password string) (int64, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return 0, ErrMissingCredentials
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return 0, fmt.Errorf("hash password: %w", err)
	}

	id, err := s.ledger.CreateUser(ctx, username, string(hash))
	if err != nil {
		return 0, err
	}

	slog.InfoContext(ctx, "User registered", "user_id", id, "username", username)
	return id, nil
}

// Login checks the password against the stored hash and returns the user ID.
// Unknown usernames and wrong passwords both return ErrInvalidCredentials.
func (s *Service) Login(ctx context.Context, username, password string) (int64, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return 0, ErrMissingCredentials
	}

	user, err := s.ledger.GetUserByUsername(ctx, username)
	if errors.Is(err, storage.ErrUserNotFound) {
		return 0, ErrInvalidCredentials
	}
	if err != nil {
		return 0, err
	}

	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		return 0, ErrInvalidCredentials
	}

	return user.ID, nil
}

// Username resolves a user ID to its username for the profile endpoint.
func (s *Service) Username(ctx context.Context, userID int64) (string, error) {
	user, err := s.ledger.GetUser(ctx, userID)
	if err != nil {
		return "", err
	}
	return user.Username, nil
}
