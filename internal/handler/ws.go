package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/typing-contest/internal/app"
	"github.com/iliyamo/typing-contest/internal/auth"
	"github.com/iliyamo/typing-contest/internal/logger"
	"github.com/iliyamo/typing-contest/internal/middleware"
	"github.com/iliyamo/typing-contest/internal/model"
)

// WSMessage is the envelope of every frame in both directions.
type WSMessage struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}

type wsCommand struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// Command payloads.
type (
	inputData struct {
		Value string `json:"value"`
	}
	credentialsData struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	customTextData struct {
		Text string `json:"text"`
	}
	useCustomData struct {
		On bool `json:"on"`
	}
	contestTextData struct {
		Text       string           `json:"text"`
		Difficulty model.Difficulty `json:"difficulty"`
		Category   model.Category   `json:"category"`
	}
	idData struct {
		ID string `json:"id"`
	}
	toggleAdminData struct {
		UserID         string `json:"userId"`
		CurrentIsAdmin bool   `json:"currentIsAdmin"`
	}
	joinData struct {
		ContestID   string `json:"contestId"`
		ContestText string `json:"contestText"`
	}
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// WSHandler runs one app.Controller per connection. Deps is a template;
// its Auth field is replaced by the connection's own auth client. Limit
// throttles login and signup commands per client address.
type WSHandler struct {
	Auth  *auth.Service
	Deps  app.Deps
	Limit *middleware.TokenBucket
	Log   logger.Logger
}

func NewWSHandler(svc *auth.Service, deps app.Deps, limit *middleware.TokenBucket, log logger.Logger) *WSHandler {
	if log == nil {
		log = logger.Nop()
	}
	return &WSHandler{Auth: svc, Deps: deps, Limit: limit, Log: log}
}

// Serve upgrades the request and pushes a state frame after every change.
// An optional ?token= resumes a session signed in over REST.
func (h *WSHandler) Serve(c echo.Context) error {
	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		h.Log.Warn("ws: upgrade failed", "error", err)
		return nil
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(c.Request().Context())
	defer cancel()

	views := make(chan app.View, 1)
	errs := make(chan string, 8)
	done := make(chan struct{})
	go h.writeLoop(ctx, conn, views, errs, done)

	client := auth.NewClient(h.Auth)
	if tok := c.QueryParam("token"); tok != "" {
		if err := client.Resume(ctx, tok); err != nil {
			sendErr(errs, err.Error())
		}
	}

	deps := h.Deps
	deps.Auth = client
	ctrl := app.New(deps)
	stopViews := ctrl.OnChange(func(v app.View) { latest(views, v) })
	ctrl.Start(ctx)
	latest(views, ctrl.View())

	limitKey := "ws:" + c.RealIP() + ":auth"
	for {
		var cmd wsCommand
		if err := conn.ReadJSON(&cmd); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.Log.Warn("ws: read failed", "error", err)
			}
			break
		}
		if cmd.Type == "login" || cmd.Type == "signup" {
			if d := h.Limit.Allow(ctx, limitKey); !d.Allowed {
				sendErr(errs, fmt.Sprintf("too many sign in attempts, retry in %ds", middleware.RetrySeconds(d.RetryAfter)))
				continue
			}
		}
		if err := dispatch(ctx, ctrl, cmd); err != nil {
			sendErr(errs, err.Error())
		}
	}

	stopViews()
	ctrl.Close()
	cancel()
	<-done
	return nil
}

// latest replaces any view the writer has not sent yet.
func latest(ch chan app.View, v app.View) {
	for {
		select {
		case ch <- v:
			return
		default:
		}
		select {
		case <-ch:
		default:
		}
	}
}

func sendErr(ch chan string, msg string) {
	select {
	case ch <- msg:
	default:
	}
}

func (h *WSHandler) writeLoop(ctx context.Context, conn *websocket.Conn, views <-chan app.View, errs <-chan string, done chan<- struct{}) {
	defer close(done)
	for {
		var msg WSMessage
		select {
		case <-ctx.Done():
			return
		case v := <-views:
			msg = WSMessage{Type: "state", Data: v}
		case e := <-errs:
			msg = WSMessage{Type: "error", Data: echo.Map{"message": e}}
		}
		if err := conn.WriteJSON(msg); err != nil {
			h.Log.Warn("ws: write failed", "error", err)
			return
		}
	}
}

func decode(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("invalid data: %w", err)
	}
	return nil
}

// dispatch runs one client command against ctrl.
func dispatch(ctx context.Context, ctrl *app.Controller, cmd wsCommand) error {
	switch cmd.Type {
	case "load_text":
		ctrl.LoadInitialText(ctx)
	case "restart":
		ctrl.Restart(ctx)
	case "logout":
		ctrl.Logout(ctx)
	case "input":
		var d inputData
		if err := decode(cmd.Data, &d); err != nil {
			return err
		}
		ctrl.OnUserInput(ctx, d.Value)
	case "login", "signup":
		var d credentialsData
		if err := decode(cmd.Data, &d); err != nil {
			return err
		}
		if cmd.Type == "login" {
			ctrl.Login(ctx, d.Email, d.Password)
		} else {
			ctrl.Signup(ctx, d.Email, d.Password)
		}
	case "set_custom_text":
		var d customTextData
		if err := decode(cmd.Data, &d); err != nil {
			return err
		}
		ctrl.SetCustomText(d.Text)
	case "use_custom_text":
		var d useCustomData
		if err := decode(cmd.Data, &d); err != nil {
			return err
		}
		ctrl.UseCustomText(ctx, d.On)
	case "add_contest_text", "generate_contest_text":
		var d contestTextData
		if err := decode(cmd.Data, &d); err != nil {
			return err
		}
		if cmd.Type == "add_contest_text" {
			ctrl.AddContestText(ctx, d.Text, d.Difficulty, d.Category)
		} else {
			ctrl.GenerateContestText(ctx, d.Difficulty, d.Category)
		}
	case "delete_contest_text", "delete_user_data", "accept_request", "reject_request":
		var d idData
		if err := decode(cmd.Data, &d); err != nil {
			return err
		}
		if d.ID == "" {
			return fmt.Errorf("%s: id is required", cmd.Type)
		}
		switch cmd.Type {
		case "delete_contest_text":
			ctrl.DeleteContestText(ctx, d.ID)
		case "delete_user_data":
			ctrl.DeleteUserData(ctx, d.ID)
		case "accept_request":
			ctrl.AcceptRequest(ctx, d.ID)
		default:
			ctrl.RejectRequest(ctx, d.ID)
		}
	case "toggle_admin":
		var d toggleAdminData
		if err := decode(cmd.Data, &d); err != nil {
			return err
		}
		if d.UserID == "" {
			return fmt.Errorf("toggle_admin: userId is required")
		}
		ctrl.ToggleAdmin(ctx, d.UserID, d.CurrentIsAdmin)
	case "send_join_request":
		var d joinData
		if err := decode(cmd.Data, &d); err != nil {
			return err
		}
		ctrl.SendJoinRequest(ctx, d.ContestID, d.ContestText)
	default:
		return fmt.Errorf("unknown command %q", cmd.Type)
	}
	return nil
}
