package handler

import (
    "context"  // provides context with cancellation for service calls
    "errors"
    "net/http" // HTTP status codes and primitives
    "strings"  // string manipulation utilities
    "time"     // timeouts for service calls

    "github.com/labstack/echo/v4" // Echo framework for HTTP routing

    "github.com/iliyamo/typing-contest/internal/auth"
    "github.com/iliyamo/typing-contest/internal/middleware"
    "github.com/iliyamo/typing-contest/internal/model"
)

// AuthService is the part of auth.Service the HTTP layer needs.
type AuthService interface {
    Register(ctx context.Context, email, password string) (auth.Session, error)
    Login(ctx context.Context, email, password string) (auth.Session, error)
    Refresh(ctx context.Context, raw string) (auth.Session, error)
    Logout(ctx context.Context, userID, raw string) error
    Authenticate(ctx context.Context, accessToken string) (model.Identity, error)
    IsAdmin(ctx context.Context, userID string) (bool, error)
}

// AuthHandler bundles dependencies for auth endpoints.
type AuthHandler struct {
    Svc AuthService
}

func NewAuthHandler(svc AuthService) *AuthHandler {
    return &AuthHandler{Svc: svc}
}

// ----- DTOs -----

type credentialsReq struct {
    Email    string `json:"email"`
    Password string `json:"password"`
}
type refreshReq struct {
    RefreshToken string `json:"refresh_token"`
}

type tokenPart struct {
    Token   string    `json:"token"`
    Expires time.Time `json:"expires"`
}
type userPart struct {
    ID      string `json:"id"`
    Email   string `json:"email"`
    IsAdmin bool   `json:"is_admin"`
}
type authResp struct {
    User    userPart  `json:"user"`
    Access  tokenPart `json:"access"`
    Refresh tokenPart `json:"refresh"`
}

func toAuthResp(s auth.Session) authResp {
    return authResp{
        User:    userPart{ID: s.Identity.UserID, Email: s.Identity.Email, IsAdmin: s.Identity.IsAdmin},
        Access:  tokenPart{Token: s.Access.Token, Expires: s.Access.Exp},
        Refresh: tokenPart{Token: s.Refresh.Raw, Expires: s.Refresh.Exp}, // raw back to client
    }
}

// authStatus maps provider error codes to HTTP statuses.
func authStatus(err error) (int, string) {
    var ae *auth.Error
    if !errors.As(err, &ae) {
        return http.StatusInternalServerError, "internal error"
    }
    switch ae.Code {
    case auth.CodeInvalidInput:
        return http.StatusBadRequest, ae.Message
    case auth.CodeEmailInUse:
        return http.StatusConflict, ae.Message
    case auth.CodeInvalidCredentials, auth.CodeInvalidToken:
        return http.StatusUnauthorized, ae.Message
    }
    return http.StatusInternalServerError, ae.Message
}

func authFail(c echo.Context, err error) error {
    status, msg := authStatus(err)
    return c.JSON(status, echo.Map{"error": msg})
}

// Register: create user and its profile, return tokens immediately.
func (h *AuthHandler) Register(c echo.Context) error {
    var req credentialsReq
    if err := c.Bind(&req); err != nil {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
    }

    ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
    defer cancel()

    s, err := h.Svc.Register(ctx, req.Email, req.Password)
    if err != nil {
        return authFail(c, err)
    }
    return c.JSON(http.StatusCreated, toAuthResp(s))
}

// Login: verify and return new pair.
func (h *AuthHandler) Login(c echo.Context) error {
    var req credentialsReq
    if err := c.Bind(&req); err != nil {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
    }

    ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
    defer cancel()

    s, err := h.Svc.Login(ctx, req.Email, req.Password)
    if err != nil {
        return authFail(c, err)
    }
    return c.JSON(http.StatusOK, toAuthResp(s))
}

// Refresh: validate by hash, revoke old, issue new.
func (h *AuthHandler) Refresh(c echo.Context) error {
    var req refreshReq
    if err := c.Bind(&req); err != nil || strings.TrimSpace(req.RefreshToken) == "" {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "refresh_token required"})
    }

    ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
    defer cancel()

    s, err := h.Svc.Refresh(ctx, req.RefreshToken)
    if err != nil {
        return authFail(c, err)
    }
    return c.JSON(http.StatusOK, toAuthResp(s))
}

// Logout revokes the refresh token in the body, or every refresh token of
// the bearer when the body carries none.
func (h *AuthHandler) Logout(c echo.Context) error {
    var req refreshReq
    _ = c.Bind(&req)
    refreshToken := strings.TrimSpace(req.RefreshToken)

    ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
    defer cancel()

    if refreshToken != "" {
        if err := h.Svc.Logout(ctx, "", refreshToken); err != nil {
            return authFail(c, err)
        }
        return c.NoContent(http.StatusNoContent)
    }

    authHeader := c.Request().Header.Get("Authorization")
    if !strings.HasPrefix(authHeader, "Bearer ") {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "provide Authorization header or refresh_token"})
    }
    id, err := h.Svc.Authenticate(ctx, strings.TrimPrefix(authHeader, "Bearer "))
    if err != nil {
        return authFail(c, err)
    }
    if err := h.Svc.Logout(ctx, id.UserID, ""); err != nil {
        return c.JSON(http.StatusInternalServerError, echo.Map{"error": "logout failed"})
    }
    return c.NoContent(http.StatusNoContent)
}

// Me returns the caller's identity. is_admin is read from the profile,
// role is what the token was issued with.
func (h *AuthHandler) Me(c echo.Context) error {
    uid, _ := c.Get(middleware.CtxUserID).(string)

    ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
    defer cancel()

    isAdmin, err := h.Svc.IsAdmin(ctx, uid)
    if err != nil {
        return c.JSON(http.StatusInternalServerError, echo.Map{"error": "load profile failed"})
    }
    return c.JSON(http.StatusOK, echo.Map{
        "user_id":  uid,
        "email":    c.Get(middleware.CtxEmail),
        "role":     c.Get(middleware.CtxRole),
        "is_admin": isAdmin,
    })
}
