// Package accounts registers users, checks their credentials and turns bearer
// tokens back into a Principal.
package accounts

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/geocoder89/invoicehub/internal/auth"
	"github.com/geocoder89/invoicehub/internal/cache"
	"github.com/geocoder89/invoicehub/internal/domain/user"
	"github.com/geocoder89/invoicehub/internal/security"
	"github.com/geocoder89/invoicehub/internal/validation"
)

var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrInvalidToken       = errors.New("invalid or expired token")
)

type UserStore interface {
	Create(ctx context.Context, u user.User) (user.User, error)
	GetByID(ctx context.Context, id string) (user.User, error)
	GetByEmail(ctx context.Context, email string) (user.User, error)
}

type TokenIssuer interface {
	Issue(userID string) (string, time.Time, error)
	Verify(token string) (string, error)
}

type RegisterInput struct {
	Email          string  `json:"email" binding:"required,email,max=320"`
	Password       string  `json:"password" binding:"required,max=72"`
	Name           string  `json:"name" binding:"required,max=200"`
	ExternalAuthID *string `json:"externalAuthId" binding:"omitempty,max=200"`
}

type LoginInput struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// Session is what register and login hand back to the client.
type Session struct {
	Token     string       `json:"token"`
	ExpiresAt time.Time    `json:"expiresAt"`
	User      user.Summary `json:"user"`
}

type Service struct {
	users    UserStore
	tokens   TokenIssuer
	validate *validation.Validator
	// nil unless CachePrincipals was called
	principals *cache.Cache[auth.Principal]
}

func NewService(users UserStore, tokens TokenIssuer, v *validation.Validator) *Service {
	if v == nil {
		v = validation.New()
	}
	return &Service{users: users, tokens: tokens, validate: v}
}

// CachePrincipals keeps resolved principals for ttl so that authenticated
// requests skip the user lookup. Users are never edited or removed, so an
// entry cannot go stale.
func (s *Service) CachePrincipals(ttl time.Duration) {
	s.principals = cache.New[auth.Principal](ttl)
}

func (s *Service) Register(ctx context.Context, in RegisterInput) (Session, error) {
	in.Email = normalizeEmail(in.Email)
	in.Name = strings.TrimSpace(in.Name)
	if in.ExternalAuthID != nil && strings.TrimSpace(*in.ExternalAuthID) == "" {
		in.ExternalAuthID = nil
	}

	if err := s.validate.Struct(in); err != nil {
		return Session{}, err
	}
	// the max tag above counts characters, bcrypt counts bytes
	if len(in.Password) > security.MaxPasswordBytes {
		return Session{}, validation.NewError("password", "maxbytes", strconv.Itoa(security.MaxPasswordBytes))
	}

	hash, err := security.HashPassword(in.Password)
	if err != nil {
		return Session{}, fmt.Errorf("hash password: %w", err)
	}

	// uniqueness of email and external id is left to the store
	u, err := s.users.Create(ctx, user.User{
		Email:          in.Email,
		PasswordHash:   hash,
		ExternalAuthID: in.ExternalAuthID,
		Name:           in.Name,
	})
	if err != nil {
		return Session{}, fmt.Errorf("create user: %w", err)
	}

	return s.issue(u)
}

func (s *Service) Login(ctx context.Context, in LoginInput) (Session, error) {
	u, err := s.users.GetByEmail(ctx, normalizeEmail(in.Email))
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			return Session{}, ErrInvalidCredentials
		}
		return Session{}, fmt.Errorf("find user: %w", err)
	}

	if err := security.CheckPassword(u.PasswordHash, in.Password); err != nil {
		return Session{}, ErrInvalidCredentials
	}

	return s.issue(u)
}

// VerifyToken returns the user id a token was issued for.
func (s *Service) VerifyToken(token string) (string, error) {
	userID, err := s.tokens.Verify(token)
	if err != nil {
		return "", errors.Join(ErrInvalidToken, err)
	}
	return userID, nil
}

// Authenticate resolves a bearer token to the user it belongs to. A token for
// a user that no longer exists is rejected like any other bad token.
func (s *Service) Authenticate(ctx context.Context, token string) (auth.Principal, error) {
	userID, err := s.VerifyToken(token)
	if err != nil {
		return auth.Principal{}, err
	}

	if s.principals != nil {
		if p, ok := s.principals.Get(userID); ok {
			return p, nil
		}
	}

	u, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			return auth.Principal{}, ErrInvalidToken
		}
		return auth.Principal{}, fmt.Errorf("load principal: %w", err)
	}

	p := auth.Principal{UserID: u.ID, Email: u.Email, Name: u.Name}
	if s.principals != nil {
		s.principals.Set(userID, p)
	}
	return p, nil
}

func (s *Service) issue(u user.User) (Session, error) {
	token, expiresAt, err := s.tokens.Issue(u.ID)
	if err != nil {
		return Session{}, fmt.Errorf("issue token: %w", err)
	}

	return Session{Token: token, ExpiresAt: expiresAt, User: u.Summary()}, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
