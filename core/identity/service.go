// Package identity owns user accounts: registration, authentication and the
// password reset flow.
package identity

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"time"

	"incident-desk/config"
	"incident-desk/core/apperr"
	"incident-desk/core/auth"
	"incident-desk/core/notify"
	"incident-desk/core/store"
	"incident-desk/core/utils"
)

type Notifier interface {
	Notify(event, to string, data notify.Data) error
}

type Service struct {
	tx        store.Transactor
	users     store.UsersStore
	issuer    *auth.ResetTokenIssuer
	notifier  Notifier
	pepper    string
	publicURL string
	logger    *utils.Logger
	now       func() time.Time
}

// Registration is a created account plus a soft warning when the welcome
// email could not be queued.
type Registration struct {
	User    *store.User
	Warning error
}

type Login struct {
	User    *store.User
	Warning error
}

func NewService(cfg *config.AppConfig, tx store.Transactor, users store.UsersStore, issuer *auth.ResetTokenIssuer, notifier Notifier, logger *utils.Logger) *Service {
	return &Service{
		tx:        tx,
		users:     users,
		issuer:    issuer,
		notifier:  notifier,
		pepper:    cfg.Pepper,
		publicURL: strings.TrimRight(cfg.PublicURL, "/"),
		logger:    logger,
		now:       utils.NowUTC,
	}
}

func (s *Service) Register(ctx context.Context, username, email, rawPassword string) (*Registration, error) {
	username = strings.TrimSpace(username)
	email = strings.TrimSpace(email)
	switch {
	case username == "":
		return nil, apperr.Validation("auth.usernameRequired", "username is required")
	case email == "":
		return nil, apperr.Validation("auth.emailRequired", "email is required")
	case rawPassword == "":
		return nil, apperr.Validation("auth.passwordRequired", "password is required")
	}
	if err := utils.ValidateUsername(username); err != nil {
		return nil, apperr.Validation("auth.usernameInvalid", err.Error())
	}
	if err := utils.ValidateEmail(email); err != nil {
		return nil, apperr.Validation("auth.emailInvalid", err.Error())
	}
	if err := utils.ValidatePassword(rawPassword); err != nil {
		return nil, apperr.Validation("auth.passwordWeak", err.Error())
	}
	ph, err := auth.HashPassword(rawPassword, s.pepper)
	if err != nil {
		return nil, apperr.Storage(err)
	}
	user := &store.User{Username: username, Email: email, PasswordHash: ph.Hash, Salt: ph.Salt}
	err = s.tx.WithinTx(ctx, func(r *store.Repos) error {
		usernameTaken, emailTaken, err := r.Users.ExistsUsernameOrEmail(ctx, username, email)
		if err != nil {
			return err
		}
		if usernameTaken {
			return apperr.Conflict("auth.usernameTaken", "username already exists")
		}
		if emailTaken {
			return apperr.Conflict("auth.emailTaken", "email already registered")
		}
		_, err = r.Users.Create(ctx, user)
		return err
	})
	if err != nil {
		if errors.Is(err, store.ErrConflict) {
			return nil, apperr.Conflict("auth.userExists", "user already exists")
		}
		return nil, wrap(err)
	}
	s.logger.Printf("user registered: %s", user.Username)
	warn := s.notify(notify.EventRegistration, user.Email, notify.Data{Username: user.Username, Timestamp: user.CreatedAt})
	return &Registration{User: user, Warning: warn}, nil
}

func (s *Service) Authenticate(ctx context.Context, username, rawPassword string) (*Login, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, apperr.Validation("auth.usernameRequired", "username is required")
	}
	user, err := s.users.FindByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, apperr.NotFound("auth.userNotFound", "username does not exist, please register")
		}
		return nil, apperr.Storage(err)
	}
	ph, err := auth.ParsePasswordHash(user.PasswordHash, user.Salt)
	if err != nil {
		return nil, apperr.Storage(err)
	}
	ok, err := auth.VerifyPassword(rawPassword, s.pepper, ph)
	if err != nil {
		return nil, apperr.Storage(err)
	}
	if !ok {
		return nil, apperr.InvalidCredentials("auth.wrongPassword", "wrong password, please try again")
	}
	warn := s.notify(notify.EventLogin, user.Email, notify.Data{Username: user.Username, Timestamp: s.now()})
	return &Login{User: user, Warning: warn}, nil
}

func (s *Service) Get(ctx context.Context, userID int64) (*store.User, error) {
	user, err := s.users.Get(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, apperr.NotFound("auth.userNotFound", "user not found")
		}
		return nil, apperr.Storage(err)
	}
	return user, nil
}

// RequestPasswordReset records a single-use token for the account behind
// email and mails a link carrying it. The returned error, when the account
// exists, is only ever a notification warning.
func (s *Service) RequestPasswordReset(ctx context.Context, email string) (warning error, err error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return nil, apperr.Validation("auth.emailRequired", "email is required")
	}
	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, apperr.NotFound("auth.emailNotFound", "email not found, please register")
		}
		return nil, apperr.Storage(err)
	}
	raw, claims, err := s.issuer.Issue(user.ID)
	if err != nil {
		return nil, apperr.Storage(err)
	}
	err = s.tx.WithinTx(ctx, func(r *store.Repos) error {
		return r.ResetTokens.CreateResetToken(ctx, &store.ResetToken{
			JTI:       claims.JTI,
			UserID:    user.ID,
			ExpiresAt: claims.ExpiresAt,
			CreatedAt: s.now(),
		})
	})
	if err != nil {
		return nil, wrap(err)
	}
	link := s.publicURL + "/reset-password?token=" + url.QueryEscape(raw)
	return s.notify(notify.EventPasswordReset, user.Email, notify.Data{Username: user.Username, Link: link, Timestamp: s.now()}), nil
}

func (s *Service) ResetPassword(ctx context.Context, token, newPassword string) error {
	if strings.TrimSpace(token) == "" {
		return apperr.Validation("auth.resetTokenRequired", "reset token is required")
	}
	if err := utils.ValidatePassword(newPassword); err != nil {
		return apperr.Validation("auth.passwordWeak", err.Error())
	}
	claims, err := s.issuer.Parse(token)
	if err != nil {
		if errors.Is(err, auth.ErrResetTokenExpired) {
			return apperr.Validation("auth.resetTokenExpired", "reset link has expired")
		}
		return invalidResetToken()
	}
	ph, err := auth.HashPassword(newPassword, s.pepper)
	if err != nil {
		return apperr.Storage(err)
	}
	err = s.tx.WithinTx(ctx, func(r *store.Repos) error {
		tok, err := r.ResetTokens.GetResetToken(ctx, claims.JTI)
		if err != nil {
			return err
		}
		if tok.UserID != claims.UserID {
			return invalidResetToken()
		}
		if err := r.ResetTokens.ConsumeResetToken(ctx, claims.JTI, s.now()); err != nil {
			return err
		}
		return r.Users.UpdatePassword(ctx, claims.UserID, ph.Hash, ph.Salt)
	})
	if err != nil {
		if errors.Is(err, store.ErrNotFound) || errors.Is(err, store.ErrConflict) {
			return invalidResetToken()
		}
		return wrap(err)
	}
	s.logger.Printf("password reset for user %d", claims.UserID)
	return nil
}

func (s *Service) notify(event, to string, data notify.Data) error {
	if s.notifier == nil {
		return nil
	}
	if err := s.notifier.Notify(event, to, data); err != nil {
		s.logger.Warnf("identity: %s notification to %s: %v", event, to, err)
		return err
	}
	return nil
}

func invalidResetToken() error {
	return apperr.Validation("auth.resetTokenInvalid", "reset link is invalid or was already used")
}

// wrap passes tagged errors through and hides everything else behind a
// storage error.
func wrap(err error) error {
	var ae *apperr.Error
	if errors.As(err, &ae) {
		return ae
	}
	return apperr.Storage(err)
}
