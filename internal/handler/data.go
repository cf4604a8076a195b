package handler

import (
    "context"
    "errors"
    "net/http"
    "time"

    "github.com/labstack/echo/v4"

    "github.com/iliyamo/typing-contest/internal/admin"
    "github.com/iliyamo/typing-contest/internal/app"
    "github.com/iliyamo/typing-contest/internal/docstore"
    "github.com/iliyamo/typing-contest/internal/logger"
    "github.com/iliyamo/typing-contest/internal/middleware"
    "github.com/iliyamo/typing-contest/internal/model"
)

// RoleReader tells whether a user is an admin.
type RoleReader interface {
    IsAdmin(ctx context.Context, userID string) (bool, error)
}

// DataHandler serves one-shot reads of the shared collections and the
// admin user endpoints.
type DataHandler struct {
    Store docstore.Store
    Paths docstore.Paths
    Admin *admin.Service
    Roles RoleReader
    Log   logger.Logger
}

func NewDataHandler(store docstore.Store, paths docstore.Paths, roles RoleReader, log logger.Logger) *DataHandler {
    if log == nil {
        log = logger.Nop()
    }
    return &DataHandler{Store: store, Paths: paths, Admin: admin.NewService(store, paths), Roles: roles, Log: log}
}

// Leaderboard returns the ten fastest scores.
func (h *DataHandler) Leaderboard(c echo.Context) error {
    ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
    defer cancel()

    docs, err := h.Store.QueryOnce(ctx, docstore.Query{
        Collection: h.Paths.Scores(),
        OrderBy:    "wpm",
        Direction:  docstore.Desc,
        Limit:      app.LeaderboardSize,
    })
    if err != nil {
        h.Log.Error("leaderboard query failed", "error", err)
        return c.JSON(http.StatusInternalServerError, echo.Map{"error": "Failed to load leaderboard."})
    }
    scores, err := docstore.DecodeAll(docs, func(s *model.ScoreEntry, id string) { s.ID = id })
    if err != nil {
        return c.JSON(http.StatusInternalServerError, echo.Map{"error": "Failed to load leaderboard."})
    }
    return c.JSON(http.StatusOK, echo.Map{"scores": scores})
}

// ContestTexts returns the contest pool, newest first.
func (h *DataHandler) ContestTexts(c echo.Context) error {
    ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
    defer cancel()

    docs, err := h.Store.QueryOnce(ctx, docstore.Query{
        Collection: h.Paths.ContestTexts(),
        OrderBy:    "timestamp",
        Direction:  docstore.Desc,
    })
    if err != nil {
        h.Log.Error("contest texts query failed", "error", err)
        return c.JSON(http.StatusInternalServerError, echo.Map{"error": "Failed to load contest texts."})
    }
    texts, err := docstore.DecodeAll(docs, func(t *model.ContestText, id string) { t.ID = id })
    if err != nil {
        return c.JSON(http.StatusInternalServerError, echo.Map{"error": "Failed to load contest texts."})
    }
    return c.JSON(http.StatusOK, echo.Map{"texts": texts})
}

// caller builds the identity of the request. The admin flag comes from the
// profile document, not the token, so a revoked admin is refused at once.
func (h *DataHandler) caller(ctx context.Context, c echo.Context) (*model.Identity, error) {
    uid, _ := c.Get(middleware.CtxUserID).(string)
    email, _ := c.Get(middleware.CtxEmail).(string)
    isAdmin, err := h.Roles.IsAdmin(ctx, uid)
    if err != nil {
        return nil, err
    }
    return &model.Identity{UserID: uid, Email: email, IsAdmin: isAdmin}, nil
}

// Users lists every user with a score, for admins.
func (h *DataHandler) Users(c echo.Context) error {
    ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
    defer cancel()

    who, err := h.caller(ctx, c)
    if err != nil {
        return c.JSON(http.StatusInternalServerError, echo.Map{"error": "load profile failed"})
    }
    docs, err := h.Store.QueryOnce(ctx, h.Admin.AllScoresQuery())
    if err != nil {
        h.Log.Error("scores query failed", "error", err)
        return c.JSON(http.StatusInternalServerError, echo.Map{"error": "Failed to load users data for admin panel."})
    }
    scores, err := docstore.DecodeAll(docs, func(s *model.ScoreEntry, id string) { s.ID = id })
    if err != nil {
        return c.JSON(http.StatusInternalServerError, echo.Map{"error": "Failed to load users data for admin panel."})
    }
    users, err := h.Admin.UniqueUsers(ctx, who, scores)
    if errors.Is(err, model.ErrForbidden) {
        return c.JSON(http.StatusForbidden, echo.Map{"error": "forbidden"})
    }
    if err != nil {
        return c.JSON(http.StatusInternalServerError, echo.Map{"error": "Failed to load users data for admin panel."})
    }
    return c.JSON(http.StatusOK, echo.Map{"users": users})
}

// DeleteUserData wipes the profile, history and scores of :id.
func (h *DataHandler) DeleteUserData(c echo.Context) error {
    uid := c.Param("id")
    if uid == "" {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid user id"})
    }

    ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
    defer cancel()

    who, err := h.caller(ctx, c)
    if err != nil {
        return c.JSON(http.StatusInternalServerError, echo.Map{"error": "load profile failed"})
    }
    n, err := h.Admin.DeleteUserData(ctx, who, uid)
    if errors.Is(err, model.ErrForbidden) {
        return c.JSON(http.StatusForbidden, echo.Map{"error": "forbidden"})
    }
    if err != nil {
        h.Log.Error("delete user data failed", "user_id", uid, "error", err)
        return c.JSON(http.StatusInternalServerError, echo.Map{"error": "delete failed"})
    }
    return c.JSON(http.StatusOK, echo.Map{"deleted": n})
}
