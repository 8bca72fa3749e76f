package auth

import (
	"context"
	"errors"
	"testing"
	"time"
)

type teststore struct {
	T                 *testing.T
	createUser        func(t *testing.T, username, passwordHash string) (User, error)
	getUserByUsername func(t *testing.T, username string) (User, string, error)
	createToken       func(t *testing.T, tok Token) error
	getToken          func(t *testing.T, token string) (Token, error)
}

func (s *teststore) CreateUser(_ context.Context, username, passwordHash string) (User, error) {
	return s.createUser(s.T, username, passwordHash)
}

func (s *teststore) GetUserByUsername(_ context.Context, username string) (User, string, error) {
	return s.getUserByUsername(s.T, username)
}

func (s *teststore) CreateToken(_ context.Context, tok Token) error {
	return s.createToken(s.T, tok)
}

func (s *teststore) GetToken(_ context.Context, token string) (Token, error) {
	return s.getToken(s.T, token)
}

func TestService_SignupLogin(t *testing.T) {
	var storedHash string
	store := &teststore{
		T: t,
		createUser: func(t *testing.T, username, passwordHash string) (User, error) {
			if username != "alice" {
				t.Errorf("Got username %q, want alice", username)
			}
			if passwordHash == "secret" {
				t.Error("Password stored in plain text")
			}
			storedHash = passwordHash
			return User{ID: "user-1", Username: username}, nil
		},
		getUserByUsername: func(t *testing.T, username string) (User, string, error) {
			return User{ID: "user-1", Username: username}, storedHash, nil
		},
		createToken: func(t *testing.T, tok Token) error {
			if tok.UserID != "user-1" {
				t.Errorf("Got token user %q, want user-1", tok.UserID)
			}
			if tok.Token == "" {
				t.Error("Empty token value")
			}
			return nil
		},
	}

	svc := &Service{Store: store, TokenTTL: time.Hour}

	if _, err := svc.Signup(context.Background(), "alice", "secret"); err != nil {
		t.Fatal(err)
	}

	tok, err := svc.Login(context.Background(), "alice", "secret")
	if err != nil {
		t.Fatal(err)
	}
	if tok.Token == "" {
		t.Error("Login returned empty token")
	}

	if _, err := svc.Login(context.Background(), "alice", "wrong"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("Got %v, want ErrInvalidCredentials", err)
	}
}

func TestService_SignupDuplicate(t *testing.T) {
	store := &teststore{
		T: t,
		createUser: func(t *testing.T, username, passwordHash string) (User, error) {
			return User{}, ErrUserExists
		},
	}
	svc := &Service{Store: store, TokenTTL: time.Hour}
	if _, err := svc.Signup(context.Background(), "alice", "secret"); !errors.Is(err, ErrUserExists) {
		t.Errorf("Got %v, want ErrUserExists", err)
	}
}

func TestService_LoginUnknownUser(t *testing.T) {
	store := &teststore{
		T: t,
		getUserByUsername: func(t *testing.T, username string) (User, string, error) {
			return User{}, "", ErrNotFound
		},
	}
	svc := &Service{Store: store, TokenTTL: time.Hour}
	if _, err := svc.Login(context.Background(), "ghost", "secret"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("Got %v, want ErrInvalidCredentials", err)
	}
}

func TestService_Authenticate(t *testing.T) {
	tests := []struct {
		name    string
		token   Token
		err     error
		wantID  string
		wantErr error
	}{
		{
			name:   "Valid",
			token:  Token{Token: "tok", UserID: "user-1", ExpiresAt: time.Now().Add(time.Hour)},
			wantID: "user-1",
		},
		{
			name:    "Expired",
			token:   Token{Token: "tok", UserID: "user-1", ExpiresAt: time.Now().Add(-time.Minute)},
			wantErr: ErrInvalidCredentials,
		},
		{
			name:    "Unknown",
			err:     ErrNotFound,
			wantErr: ErrInvalidCredentials,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := &teststore{
				T: t,
				getToken: func(t *testing.T, token string) (Token, error) {
					if tt.err != nil {
						return Token{}, tt.err
					}
					return tt.token, nil
				},
			}
			svc := &Service{Store: store, TokenTTL: time.Hour}
			id, err := svc.Authenticate(context.Background(), "tok")
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Got %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if id != tt.wantID {
				t.Errorf("Got user ID %q, want %q", id, tt.wantID)
			}
		})
	}
}
