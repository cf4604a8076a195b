// Package auth is the identity provider: email/password accounts in MySQL,
// short-lived JWT access tokens and rotating refresh tokens. Client wraps
// Service for one connected UI and broadcasts identity changes.
package auth

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/iliyamo/typing-contest/internal/docstore"
	"github.com/iliyamo/typing-contest/internal/logger"
	"github.com/iliyamo/typing-contest/internal/model"
	"github.com/iliyamo/typing-contest/internal/repository"
	"github.com/iliyamo/typing-contest/internal/utils"
)

// Error is a provider failure whose Message is shown to the user verbatim.
type Error struct {
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string { return e.Message }
func (e *Error) Unwrap() error { return e.Err }

// Error codes.
const (
	CodeInvalidInput       = "invalid-input"
	CodeEmailInUse         = "email-already-in-use"
	CodeInvalidCredentials = "invalid-credential"
	CodeInvalidToken       = "invalid-token"
	CodeInternal           = "internal-error"
)

func authErr(code, msg string, err error) *Error {
	return &Error{Code: code, Message: msg, Err: err}
}

// Settings are the token and hashing parameters.
type Settings struct {
	JWTSecret      string
	AccessTTLMin   int
	RefreshTTLDays int
	BcryptCost     int
}

// UserStore is the account table.
type UserStore interface {
	Create(ctx context.Context, email, password string, cost int) (uint64, error)
	GetByEmail(ctx context.Context, email string) (repository.User, error)
	GetByID(ctx context.Context, id uint64) (repository.User, error)
}

// TokenStore is the refresh token table.
type TokenStore interface {
	StoreRefresh(ctx context.Context, userID uint64, tokenHash string, exp time.Time) error
	ValidateRefresh(ctx context.Context, tokenHash string) (uint64, error)
	RevokeByHash(ctx context.Context, tokenHash string) error
	RevokeAllForUser(ctx context.Context, userID uint64) error
}

// Session is what a successful sign in hands back.
type Session struct {
	Identity model.Identity
	Access   utils.AccessToken
	Refresh  utils.RefreshToken
}

type credentials struct {
	Email    string `validate:"required,email"`
	Password string `validate:"required,min=6"`
}

// Service issues and checks credentials. It is shared by every connection.
type Service struct {
	cfg      Settings
	users    UserStore
	tokens   TokenStore
	store    docstore.Store
	paths    docstore.Paths
	validate *validator.Validate
	log      logger.Logger
	now      func() time.Time
}

func NewService(cfg Settings, users UserStore, tokens TokenStore, store docstore.Store, paths docstore.Paths, log logger.Logger) *Service {
	if log == nil {
		log = logger.Nop()
	}
	return &Service{
		cfg:      cfg,
		users:    users,
		tokens:   tokens,
		store:    store,
		paths:    paths,
		validate: validator.New(),
		log:      log,
		now:      time.Now,
	}
}

func (s *Service) check(email, password string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if err := s.validate.Struct(credentials{Email: email, Password: password}); err != nil {
		var ves validator.ValidationErrors
		if errors.As(err, &ves) && len(ves) > 0 && ves[0].Field() == "Password" {
			return "", authErr(CodeInvalidInput, "password must be at least 6 characters", err)
		}
		return "", authErr(CodeInvalidInput, "a valid email address is required", err)
	}
	return email, nil
}

// Register creates the account and its profile document and signs in.
func (s *Service) Register(ctx context.Context, email, password string) (Session, error) {
	email, err := s.check(email, password)
	if err != nil {
		return Session{}, err
	}
	id, err := s.users.Create(ctx, email, password, s.cfg.BcryptCost)
	if errors.Is(err, repository.ErrEmailExists) {
		return Session{}, authErr(CodeEmailInUse, "email already in use", err)
	}
	if err != nil {
		return Session{}, authErr(CodeInternal, "could not create account", err)
	}
	u := repository.User{ID: id, Email: email}

	profile, err := docstore.Encode(model.Profile{Email: email, IsAdmin: false, CreatedAt: s.now().UnixMilli()})
	if err == nil {
		err = s.store.Set(ctx, s.paths.Profile(u.Key()), profile, false)
	}
	if err != nil {
		// the account exists, so sign in anyway; the profile reads as non-admin
		s.log.Error("write profile failed", "user_id", u.Key(), "error", err)
	}
	return s.issue(ctx, u)
}

// Login checks the password and signs in.
func (s *Service) Login(ctx context.Context, email, password string) (Session, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		return Session{}, authErr(CodeInvalidInput, "email and password are required", nil)
	}
	u, err := s.users.GetByEmail(ctx, email)
	if errors.Is(err, repository.ErrNotFound) {
		return Session{}, authErr(CodeInvalidCredentials, "invalid credentials", err)
	}
	if err != nil {
		return Session{}, authErr(CodeInternal, "could not sign in", err)
	}
	if !utils.VerifyPassword(u.PasswordHash, password) {
		return Session{}, authErr(CodeInvalidCredentials, "invalid credentials", nil)
	}
	return s.issue(ctx, u)
}

// Refresh revokes raw and issues a new pair.
func (s *Service) Refresh(ctx context.Context, raw string) (Session, error) {
	hash := utils.HashRefreshRaw(strings.TrimSpace(raw))
	uid, err := s.tokens.ValidateRefresh(ctx, hash)
	if err != nil {
		return Session{}, authErr(CodeInvalidToken, "invalid refresh token", err)
	}
	if err := s.tokens.RevokeByHash(ctx, hash); err != nil {
		s.log.Warn("revoke refresh token failed", "user_id", uid, "error", err)
	}
	u, err := s.users.GetByID(ctx, uid)
	if err != nil {
		return Session{}, authErr(CodeInvalidToken, "invalid refresh token", err)
	}
	return s.issue(ctx, u)
}

// Logout revokes one refresh token, or every token of userID when raw is
// empty.
func (s *Service) Logout(ctx context.Context, userID, raw string) error {
	if raw = strings.TrimSpace(raw); raw != "" {
		hash := utils.HashRefreshRaw(raw)
		if _, err := s.tokens.ValidateRefresh(ctx, hash); err != nil {
			return authErr(CodeInvalidToken, "invalid refresh token", err)
		}
		return s.tokens.RevokeByHash(ctx, hash)
	}
	id, err := repository.ParseKey(userID)
	if err != nil {
		return authErr(CodeInvalidToken, "unknown user", err)
	}
	return s.tokens.RevokeAllForUser(ctx, id)
}

// Authenticate checks an access token and returns the identity it names.
// IsAdmin is left false; the profile document is the authority for it.
func (s *Service) Authenticate(_ context.Context, accessToken string) (model.Identity, error) {
	c, err := utils.ParseAccessToken(s.cfg.JWTSecret, accessToken)
	if err != nil {
		return model.Identity{}, authErr(CodeInvalidToken, "session expired, please sign in again", err)
	}
	return model.Identity{UserID: c.UserID, Email: c.Email}, nil
}

// IsAdmin reads the admin flag from the profile document. A missing
// profile or a failed read counts as not admin.
func (s *Service) IsAdmin(ctx context.Context, userID string) (bool, error) {
	doc, err := s.store.Get(ctx, s.paths.Profile(userID))
	if errors.Is(err, docstore.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	var p model.Profile
	if err := docstore.Decode(doc, &p); err != nil {
		return false, err
	}
	return p.IsAdmin, nil
}

func (s *Service) issue(ctx context.Context, u repository.User) (Session, error) {
	role := utils.RoleUser
	isAdmin, err := s.IsAdmin(ctx, u.Key())
	if err != nil {
		s.log.Warn("read profile for role failed", "user_id", u.Key(), "error", err)
	}
	if isAdmin {
		role = utils.RoleAdmin
	}
	access, err := utils.NewAccessToken(s.cfg.JWTSecret, utils.Claims{UserID: u.Key(), Email: u.Email, Role: role}, s.cfg.AccessTTLMin)
	if err != nil {
		return Session{}, authErr(CodeInternal, "could not issue token", err)
	}
	refresh, err := utils.NewRefreshToken(s.cfg.RefreshTTLDays)
	if err != nil {
		return Session{}, authErr(CodeInternal, "could not issue token", err)
	}
	if err := s.tokens.StoreRefresh(ctx, u.ID, utils.HashRefreshRaw(refresh.Raw), refresh.Exp); err != nil {
		return Session{}, authErr(CodeInternal, "could not save session", err)
	}
	return Session{
		Identity: model.Identity{UserID: u.Key(), Email: u.Email, IsAdmin: isAdmin},
		Access:   access,
		Refresh:  refresh,
	}, nil
}
