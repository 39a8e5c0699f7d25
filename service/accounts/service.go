// Package accounts implements signup, login and token refresh on top of a
// UserStore.
package accounts

import (
	"car-management/core"
	"context"
	"strings"

	"github.com/juju/clock"
	"github.com/juju/errors"
	"github.com/sirupsen/logrus"
)

const minPasswordLength = 6

type (
	// TokenPair is what a successful login hands back to the client.
	TokenPair struct {
		AccessToken  string `json:"accessToken"`
		RefreshToken string `json:"refreshToken"`
	}

	// TokenIssuer signs and checks the tokens of a TokenPair.
	TokenIssuer interface {
		IssuePair(userID string) (TokenPair, error)
		// ParseRefreshToken returns the user id of a valid refresh token.
		ParseRefreshToken(token string) (string, error)
	}

	Session struct {
		User *core.User `json:"user"`
		TokenPair
	}
)

type Service struct {
	users  core.UserStore
	tokens TokenIssuer
	clock  clock.Clock
}

func NewService(users core.UserStore, tokens TokenIssuer, clk clock.Clock) *Service {
	if clk == nil {
		clk = clock.WallClock
	}
	return &Service{users: users, tokens: tokens, clock: clk}
}

func (s *Service) session(user *core.User) (*Session, error) {
	pair, err := s.tokens.IssuePair(user.ID)
	if err != nil {
		return nil, errors.Annotate(err, "failed to issue tokens")
	}
	return &Session{User: user, TokenPair: pair}, nil
}

// Signup registers a password account and logs it in.
func (s *Service) Signup(ctx context.Context, email, password, name string) (*Session, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		return nil, core.InvalidArgumentf("email and password are required")
	}
	if !strings.Contains(email, "@") {
		return nil, core.InvalidArgumentf("email %q is not valid", email)
	}
	if len(password) < minPasswordLength {
		return nil, core.InvalidArgumentf("password must be at least %d characters", minPasswordLength)
	}

	hash, err := HashPassword(password)
	if err != nil {
		return nil, err
	}
	user := &core.User{
		Email:        email,
		Name:         strings.TrimSpace(name),
		PasswordHash: hash,
		CreatedAt:    s.clock.Now().UTC(),
	}
	if err := s.users.CreateUser(ctx, user); err != nil {
		return nil, core.AsStoreError(err, "failed to create user")
	}

	logrus.WithField("user_id", user.ID).Info("User signed up")
	return s.session(user)
}

// Login checks email and password. Unknown emails and wrong passwords get
// the same Unauthorized error.
func (s *Service) Login(ctx context.Context, email, password string) (*Session, error) {
	invalid := core.Unauthorizedf("invalid login credentials")

	user, err := s.users.FindUserByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if errors.Is(err, core.NotFound) {
		return nil, invalid
	}
	if err != nil {
		return nil, core.AsStoreError(err, "failed to load user")
	}
	if user.PasswordHash == "" {
		return nil, invalid
	}
	ok, err := VerifyPassword(user.PasswordHash, password)
	if err != nil {
		logrus.WithField("user_id", user.ID).WithError(err).Error("Stored password hash is unreadable")
		return nil, invalid
	}
	if !ok {
		return nil, invalid
	}
	return s.session(user)
}

// Refresh exchanges a valid refresh token for a new token pair.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (*Session, error) {
	userID, err := s.tokens.ParseRefreshToken(refreshToken)
	if err != nil {
		return nil, core.Unauthorizedf("invalid refresh token")
	}
	user, err := s.users.FindUserByID(ctx, userID)
	if errors.Is(err, core.NotFound) {
		return nil, core.Unauthorizedf("invalid refresh token")
	}
	if err != nil {
		return nil, core.AsStoreError(err, "failed to load user")
	}
	return s.session(user)
}

// ExternalLogin logs in an identity vouched for by an OAuth or OIDC
// provider, creating the account on first use.
func (s *Service) ExternalLogin(ctx context.Context, subject, email, name string) (*Session, error) {
	if subject == "" {
		return nil, core.InvalidArgumentf("subject is required")
	}
	user, err := s.users.UpsertUserBySubject(ctx, &core.User{
		Subject:   subject,
		Email:     strings.ToLower(strings.TrimSpace(email)),
		Name:      name,
		CreatedAt: s.clock.Now().UTC(),
	})
	if err != nil {
		return nil, core.AsStoreError(err, "failed to save user")
	}

	logrus.WithFields(logrus.Fields{"user_id": user.ID, "subject": subject}).Info("External login")
	return s.session(user)
}
