// Package auth supplies the caller identity the comment services trust. It
// implements the simplest scheme the system needs: bcrypt password hashes
// and opaque bearer tokens with a TTL.
package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"golang.org/x/crypto/bcrypt"
)

// A User is a registered account. The password hash never leaves the
// storage layer.
type User struct {
	ID        string
	Username  string
	CreatedAt time.Time
}

// A Token is an opaque bearer credential mapped to a user.
type Token struct {
	Token     string
	UserID    string
	ExpiresAt time.Time
}

var (
	// ErrNotFound is returned by the Store when a user or token is missing.
	ErrNotFound = errors.New("not found")
	// ErrUserExists is returned by Store.CreateUser on a taken username.
	ErrUserExists = errors.New("user already exists")
	// ErrInvalidCredentials covers bad logins and bad or expired tokens.
	ErrInvalidCredentials = errors.New("invalid credentials")
)

// A Store persists users and tokens.
type Store interface {
	CreateUser(ctx context.Context, username, passwordHash string) (User, error)
	// GetUserByUsername returns the user and its password hash.
	GetUserByUsername(ctx context.Context, username string) (User, string, error)
	CreateToken(ctx context.Context, t Token) error
	GetToken(ctx context.Context, token string) (Token, error)
}

const bcryptCost = 12

// Service issues and checks credentials.
type Service struct {
	Store    Store
	TokenTTL time.Duration
}

// Signup registers a new account.
func (s *Service) Signup(ctx context.Context, username, password string) (User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcryptCost)
	if err != nil {
		return User{}, fmt.Errorf("hash password: %w", err)
	}
	u, err := s.Store.CreateUser(ctx, username, string(hash))
	if err != nil {
		if errors.Is(err, ErrUserExists) {
			return User{}, err
		}
		return User{}, fmt.Errorf("create user: %w", err)
	}
	return u, nil
}

// Login checks the password and issues a fresh bearer token.
func (s *Service) Login(ctx context.Context, username, password string) (Token, error) {
	u, hash, err := s.Store.GetUserByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Token{}, ErrInvalidCredentials
		}
		return Token{}, fmt.Errorf("get user: %w", err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		return Token{}, ErrInvalidCredentials
	}

	value, err := randomToken(32)
	if err != nil {
		return Token{}, err
	}
	t := Token{
		Token:     value,
		UserID:    u.ID,
		ExpiresAt: time.Now().Add(s.TokenTTL),
	}
	if err := s.Store.CreateToken(ctx, t); err != nil {
		return Token{}, fmt.Errorf("create token: %w", err)
	}
	return t, nil
}

// Authenticate resolves a bearer token to a user ID.
func (s *Service) Authenticate(ctx context.Context, bearer string) (string, error) {
	t, err := s.Store.GetToken(ctx, bearer)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return "", ErrInvalidCredentials
		}
		return "", fmt.Errorf("get token: %w", err)
	}
	if time.Now().After(t.ExpiresAt) {
		return "", ErrInvalidCredentials
	}
	return t.UserID, nil
}

func randomToken(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("random token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
