package admin

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/chemoward/api/internal/platform/auth"
)

// bcrypt ignores input past 72 bytes.
const maxPasswordBytes = 72

// TokenSigner issues bearer tokens for logged-in users.
type TokenSigner interface {
	Sign(id auth.Identity) (string, time.Time, error)
}

type Service struct {
	users  UserRepository
	links  LinkRepository
	tokens TokenSigner
	logger zerolog.Logger
}

func NewService(users UserRepository, links LinkRepository, tokens TokenSigner, logger zerolog.Logger) *Service {
	return &Service{
		users:  users,
		links:  links,
		tokens: tokens,
		logger: logger.With().Str("component", "admin").Logger(),
	}
}

// -- Users --

// Register creates a user account. Email is stored lower-cased.
func (s *Service) Register(ctx context.Context, req RegisterRequest) (*User, error) {
	name := strings.TrimSpace(req.Name)
	email := strings.ToLower(strings.TrimSpace(req.Email))
	role := strings.ToUpper(strings.TrimSpace(req.Role))

	if name == "" || email == "" || req.Password == "" || role == "" {
		return nil, &ValidationError{Msg: "Name, email, password and role are required."}
	}
	if addr, err := mail.ParseAddress(email); err != nil || addr.Address != email {
		return nil, &ValidationError{Msg: "invalid email address"}
	}
	if !auth.IsKnownRole(role) {
		return nil, &ValidationError{Msg: fmt.Sprintf("invalid role: %s", req.Role)}
	}
	if len(req.Password) > maxPasswordBytes {
		return nil, &ValidationError{Msg: fmt.Sprintf("password must be at most %d bytes", maxPasswordBytes)}
	}
	hash, err := auth.HashPassword(req.Password)
	if errors.Is(err, auth.ErrPasswordTooShort) {
		return nil, &ValidationError{Msg: err.Error()}
	}
	if err != nil {
		return nil, err
	}

	u := &User{Name: name, Email: email, PasswordHash: hash, Role: role}
	if err := s.users.Create(ctx, u); err != nil {
		return nil, err
	}
	s.logger.Info().Int64("user_id", u.ID).Str("role", u.Role).Msg("user registered")
	return u, nil
}

// Login checks credentials and issues a token. Unknown email and wrong
// password give the same error.
func (s *Service) Login(ctx context.Context, req LoginRequest) (*LoginResult, error) {
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if email == "" || req.Password == "" {
		return nil, &ValidationError{Msg: "Email and password are required."}
	}

	u, err := s.users.GetByEmail(ctx, email)
	if errors.Is(err, ErrUserNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if !auth.CheckPassword(u.PasswordHash, req.Password) {
		s.logger.Warn().Int64("user_id", u.ID).Msg("failed login")
		return nil, ErrInvalidCredentials
	}

	token, exp, err := s.tokens.Sign(auth.Identity{UserID: u.ID, Role: u.Role})
	if err != nil {
		return nil, err
	}
	return &LoginResult{Token: token, ExpiresAt: exp, User: u}, nil
}

func (s *Service) GetUser(ctx context.Context, id int64) (*User, error) {
	return s.users.GetByID(ctx, id)
}

// CountUsers is used at startup to warn when no account exists yet.
func (s *Service) CountUsers(ctx context.Context) (int, error) {
	return s.users.Count(ctx)
}

// -- Links --

func (s *Service) ListLinks(ctx context.Context) ([]*Link, error) {
	return s.links.List(ctx)
}

func (s *Service) CreateLink(ctx context.Context, l *Link) error {
	if err := normalizeLink(l); err != nil {
		return err
	}
	return s.links.Create(ctx, l)
}

func (s *Service) UpdateLink(ctx context.Context, l *Link) error {
	if err := normalizeLink(l); err != nil {
		return err
	}
	return s.links.Update(ctx, l)
}

func (s *Service) DeleteLink(ctx context.Context, id int64) error {
	return s.links.Delete(ctx, id)
}

func normalizeLink(l *Link) error {
	l.Title = strings.TrimSpace(l.Title)
	l.URL = strings.TrimSpace(l.URL)
	if l.Title == "" || l.URL == "" {
		return &ValidationError{Msg: "Title and URL are required."}
	}
	u, err := url.Parse(l.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return &ValidationError{Msg: "URL must be an absolute http or https address."}
	}
	return nil
}
