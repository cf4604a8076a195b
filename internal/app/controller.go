// Package app runs one player's session: it follows the signed-in identity,
// keeps the live feeds that identity may see, feeds passages to the typing
// machine and persists finished attempts.
package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/iliyamo/typing-contest/internal/admin"
	"github.com/iliyamo/typing-contest/internal/auth"
	"github.com/iliyamo/typing-contest/internal/contest"
	"github.com/iliyamo/typing-contest/internal/docstore"
	"github.com/iliyamo/typing-contest/internal/logger"
	"github.com/iliyamo/typing-contest/internal/model"
	"github.com/iliyamo/typing-contest/internal/queue"
	"github.com/iliyamo/typing-contest/internal/session"
	"github.com/iliyamo/typing-contest/internal/textsource"
)

// Messages shown in the view.
const (
	MsgSaveFailed       = "Failed to save score."
	MsgLogoutFailed     = "Failed to log out."
	MsgLoginOK          = "Logged in successfully!"
	MsgSignupOK         = "Account created and logged in!"
	MsgTextAdded        = "Text added successfully!"
	MsgTextDeleted      = "Text deleted successfully!"
	MsgRequestAccepted  = "Request accepted successfully!"
	MsgRequestRejected  = "Request rejected successfully!"
	MsgJoinNotSignedIn  = "You must be logged in to send a join request."
	MsgJoinDuplicate    = "You have already sent a request for this contest."
	MsgGenerateFallback = "Failed to generate text. Please try manually or try again."

	msgLoadLeaderboard = "Failed to load leaderboard."
	msgLoadHistory     = "Failed to load user history."
	msgLoadTexts       = "Failed to load contest texts."
	msgLoadUsers       = "Failed to load users data for admin panel."
	msgLoadOwnRequests = "Failed to load your contest requests."
	msgLoadPending     = "Failed to load pending contest requests."
)

// Feed sizes.
const (
	LeaderboardSize = 10
	HistorySize     = 5
)

// IdentityProvider signs the player in and out and reports every identity
// change. *auth.Client implements it.
type IdentityProvider interface {
	SignIn(ctx context.Context, email, password string) error
	SignUp(ctx context.Context, email, password string) error
	SignOut(ctx context.Context) error
	Subscribe(fn auth.Listener) (cancel func())
}

// TextPolicy produces passages. *textsource.Policy implements it.
type TextPolicy interface {
	Next(ctx context.Context, req textsource.Request) textsource.Result
	GenerateContestText(ctx context.Context, difficulty, category string) (string, error)
}

// EventPublisher announces recorded scores.
type EventPublisher interface {
	PublishScoreRecorded(ctx context.Context, event queue.ScoreRecordedEvent) error
}

// Deps are the collaborators of a Controller. Events may be nil.
type Deps struct {
	Store        docstore.Store
	Paths        docstore.Paths
	Auth         IdentityProvider
	Text         TextPolicy
	Events       EventPublisher
	Log          logger.Logger
	TickInterval time.Duration
	Now          func() time.Time
}

// Listener receives a fresh view after every change.
type Listener func(View)

// Controller is the state of one connected player. Its methods are safe
// for concurrent use; the lock is never held across I/O.
type Controller struct {
	d       Deps
	admin   *admin.Service
	contest *contest.Workflow

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu         sync.Mutex
	machine    *session.Machine
	identity   *model.Identity
	useCustom  bool
	customText string
	draft      string
	generating bool

	leaderboard []model.ScoreEntry
	history     []model.HistoryEntry
	texts       []model.ContestText
	ownRequests []model.JoinRequest
	pending     []model.JoinRequest
	users       []model.UserSummary

	authMsg  string
	adminMsg string
	errMsg   string

	subs      []docstore.Subscription
	subCancel context.CancelFunc
	subGen    uint64
	textGen   uint64
	stopTimer context.CancelFunc

	listeners map[int]Listener
	nextID    int
	unsubAuth func()
}

// New builds a controller. Call Start before use and Close when the
// player leaves.
func New(d Deps) *Controller {
	if d.Log == nil {
		d.Log = logger.Nop()
	}
	if d.TickInterval <= 0 {
		d.TickInterval = time.Second
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	return &Controller{
		d:         d,
		admin:     admin.NewService(d.Store, d.Paths),
		contest:   contest.NewWorkflow(d.Store, d.Paths),
		machine:   session.New(),
		listeners: map[int]Listener{},
	}
}

// Start follows the identity provider until ctx ends or Close is called.
// The current identity is applied before Start returns.
func (c *Controller) Start(ctx context.Context) {
	c.ctx, c.cancel = context.WithCancel(ctx)
	c.unsubAuth = c.d.Auth.Subscribe(c.onIdentity)
}

// Close stops every feed and the timer.
func (c *Controller) Close() {
	if c.unsubAuth != nil {
		c.unsubAuth()
	}
	if c.cancel != nil {
		c.cancel()
	}
	c.mu.Lock()
	stop := c.detachLocked()
	c.stopTimerLocked()
	c.mu.Unlock()
	stop()
	c.wg.Wait()
}

// OnChange registers fn for view updates and returns a function removing it.
func (c *Controller) OnChange(fn Listener) (cancel func()) {
	c.mu.Lock()
	id := c.nextID
	c.nextID++
	c.listeners[id] = fn
	c.mu.Unlock()
	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			delete(c.listeners, id)
			c.mu.Unlock()
		})
	}
}

func (c *Controller) emit() {
	c.mu.Lock()
	v := c.viewLocked()
	fns := make([]Listener, 0, len(c.listeners))
	for _, fn := range c.listeners {
		fns = append(fns, fn)
	}
	c.mu.Unlock()
	for _, fn := range fns {
		fn(v)
	}
}

// LoadInitialText requests the first passage.
func (c *Controller) LoadInitialText(ctx context.Context) {
	c.requestText(ctx)
}

// Restart abandons the attempt and requests a new passage.
func (c *Controller) Restart(ctx context.Context) {
	c.mu.Lock()
	c.stopTimerLocked()
	c.machine.Reset()
	c.mu.Unlock()
	c.requestText(ctx)
}

// OnUserInput feeds the current input box value to the machine. Finishing
// the attempt saves the score.
func (c *Controller) OnUserInput(ctx context.Context, value string) {
	c.mu.Lock()
	tr := c.machine.Input(value, c.d.Now())
	if tr.Started {
		c.startTimerLocked()
	}
	if tr.Finished {
		c.stopTimerLocked()
	}
	var who *model.Identity
	if c.identity != nil {
		cp := *c.identity
		who = &cp
	}
	c.mu.Unlock()
	c.emit()

	if tr.Finished {
		c.saveScore(ctx, who, tr.Result)
	}
}

func (c *Controller) saveScore(ctx context.Context, who *model.Identity, res session.Result) {
	if !who.HasEmail() {
		c.d.Log.Warn("score not saved, player has no email")
		return
	}
	now := c.d.Now()
	entry := model.ScoreEntry{
		UserID:    who.UserID,
		UserName:  who.Email,
		WPM:       res.WPM,
		Accuracy:  res.Accuracy,
		Time:      res.Elapsed,
		Timestamp: now.UnixMilli(),
	}
	hist := model.HistoryEntry{
		WPM:       res.WPM,
		Accuracy:  res.Accuracy,
		Time:      res.Elapsed,
		Timestamp: now.UnixMilli(),
		Text:      model.HistoryExcerpt(res.Text),
	}
	id, err := c.addDoc(ctx, c.d.Paths.Scores(), entry)
	if err == nil {
		_, err = c.addDoc(ctx, c.d.Paths.History(who.UserID), hist)
	}
	if err != nil {
		c.d.Log.Error("save score failed", "user_id", who.UserID, "error", err)
		c.setMessages(func() { c.errMsg = MsgSaveFailed })
		return
	}
	if c.d.Events == nil {
		return
	}
	ev := queue.ScoreRecordedEvent{
		ScoreID:    id,
		UserID:     who.UserID,
		UserName:   who.Email,
		WPM:        res.WPM,
		Accuracy:   res.Accuracy,
		Time:       res.Elapsed,
		RecordedAt: now.UTC().Format(time.RFC3339),
	}
	if err := c.d.Events.PublishScoreRecorded(ctx, ev); err != nil {
		c.d.Log.Warn("publish score event failed", "score_id", id, "error", err)
	}
}

func (c *Controller) addDoc(ctx context.Context, collection string, v any) (string, error) {
	data, err := docstore.Encode(v)
	if err != nil {
		return "", err
	}
	return c.d.Store.Add(ctx, collection, data)
}

// requestText raises the loading overlay and installs the next passage.
// A newer request supersedes an older one still in flight.
func (c *Controller) requestText(ctx context.Context) {
	c.mu.Lock()
	c.textGen++
	gen := c.textGen
	c.stopTimerLocked()
	c.machine.BeginLoading()
	c.errMsg = ""
	req := textsource.Request{
		IsAdmin:       c.identity != nil && c.identity.IsAdmin,
		UseCustomText: c.useCustom,
		CustomText:    c.customText,
		Pool:          poolTexts(c.texts),
	}
	c.mu.Unlock()
	c.emit()

	res := c.d.Text.Next(ctx, req)

	c.mu.Lock()
	if gen != c.textGen {
		c.mu.Unlock()
		return
	}
	if res.Err != nil {
		c.machine.LoadText(res.Text, res.Err)
		c.errMsg = res.Err.Message
	} else {
		c.machine.LoadText(res.Text, nil)
	}
	c.mu.Unlock()
	c.emit()
}

func poolTexts(texts []model.ContestText) []string {
	out := make([]string, 0, len(texts))
	for _, t := range texts {
		out = append(out, t.Text)
	}
	return out
}

func (c *Controller) startTimerLocked() {
	c.stopTimerLocked()
	ctx, cancel := context.WithCancel(c.ctx)
	c.stopTimer = cancel
	c.wg.Add(1)
	go c.runTimer(ctx)
}

func (c *Controller) stopTimerLocked() {
	if c.stopTimer != nil {
		c.stopTimer()
		c.stopTimer = nil
	}
}

func (c *Controller) runTimer(ctx context.Context) {
	defer c.wg.Done()
	t := time.NewTicker(c.d.TickInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
		c.mu.Lock()
		ticked := ctx.Err() == nil && c.machine.Tick()
		c.mu.Unlock()
		if !ticked {
			return
		}
		c.emit()
	}
}

func (c *Controller) setMessages(fn func()) {
	c.mu.Lock()
	fn()
	c.mu.Unlock()
	c.emit()
}

func (c *Controller) current() *model.Identity {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.identity == nil {
		return nil
	}
	cp := *c.identity
	return &cp
}

// Login signs in with email and password.
func (c *Controller) Login(ctx context.Context, email, password string) {
	c.setMessages(func() { c.authMsg = "" })
	if err := c.d.Auth.SignIn(ctx, email, password); err != nil {
		c.setMessages(func() { c.authMsg = "Login failed: " + err.Error() })
		return
	}
	c.setMessages(func() { c.authMsg = MsgLoginOK })
}

// Signup creates an account and signs in.
func (c *Controller) Signup(ctx context.Context, email, password string) {
	c.setMessages(func() { c.authMsg = "" })
	if err := c.d.Auth.SignUp(ctx, email, password); err != nil {
		c.setMessages(func() { c.authMsg = "Signup failed: " + err.Error() })
		return
	}
	c.setMessages(func() { c.authMsg = MsgSignupOK })
}

// Logout signs out.
func (c *Controller) Logout(ctx context.Context) {
	if err := c.d.Auth.SignOut(ctx); err != nil {
		c.d.Log.Error("logout failed", "error", err)
		c.setMessages(func() { c.errMsg = MsgLogoutFailed })
	}
}

// SetCustomText stores the admin's own passage without switching to it.
func (c *Controller) SetCustomText(text string) {
	c.setMessages(func() { c.customText = text })
}

// UseCustomText switches between the custom passage and the usual sources
// and restarts. Non-admins stay on the usual sources.
func (c *Controller) UseCustomText(ctx context.Context, on bool) {
	c.mu.Lock()
	c.useCustom = on && c.identity != nil && c.identity.IsAdmin
	c.mu.Unlock()
	c.Restart(ctx)
}

// AddContestText adds a passage to the contest pool.
func (c *Controller) AddContestText(ctx context.Context, text string, difficulty model.Difficulty, category model.Category) {
	c.setMessages(func() { c.adminMsg = "" })
	_, err := c.admin.AddContestText(ctx, c.current(), text, difficulty, category)
	var ve *admin.ValidationError
	switch {
	case errors.As(err, &ve):
		c.setMessages(func() { c.adminMsg = ve.Message })
	case err != nil:
		c.setMessages(func() { c.adminMsg = "Failed to add text: " + err.Error() })
	default:
		c.setMessages(func() {
			c.adminMsg = MsgTextAdded
			c.draft = ""
		})
	}
}

// GenerateContestText asks the AI backend for a contest passage and puts
// it in the draft field for the admin to review.
func (c *Controller) GenerateContestText(ctx context.Context, difficulty model.Difficulty, category model.Category) {
	who := c.current()
	if who == nil || !who.IsAdmin {
		c.setMessages(func() { c.adminMsg = fmt.Sprintf("Failed to generate AI text: %v. Please try again.", model.ErrForbidden) })
		return
	}
	c.setMessages(func() {
		c.generating = true
		c.draft = ""
		c.adminMsg = ""
	})
	text, err := c.d.Text.GenerateContestText(ctx, string(difficulty), string(category))
	if err != nil {
		c.d.Log.Error("generate contest text failed", "error", err)
		c.setMessages(func() {
			c.generating = false
			c.draft = MsgGenerateFallback
			c.adminMsg = fmt.Sprintf("Failed to generate AI text: %v. Please try again.", err)
		})
		return
	}
	c.setMessages(func() {
		c.generating = false
		c.draft = strings.TrimSpace(text)
	})
}

// DeleteContestText removes a passage from the pool.
func (c *Controller) DeleteContestText(ctx context.Context, id string) {
	c.setMessages(func() { c.adminMsg = "" })
	if err := c.admin.DeleteContestText(ctx, c.current(), id); err != nil {
		c.setMessages(func() { c.adminMsg = "Failed to delete text: " + err.Error() })
		return
	}
	c.setMessages(func() { c.adminMsg = MsgTextDeleted })
}

// DeleteUserData wipes a player's profile, history and scores.
func (c *Controller) DeleteUserData(ctx context.Context, uid string) {
	c.setMessages(func() { c.adminMsg = "" })
	if _, err := c.admin.DeleteUserData(ctx, c.current(), uid); err != nil {
		c.setMessages(func() { c.adminMsg = fmt.Sprintf("Failed to delete data for user %s: %v", uid, err) })
		return
	}
	c.setMessages(func() { c.adminMsg = fmt.Sprintf("Data for user %s deleted successfully!", uid) })
}

// ToggleAdmin flips the admin flag of uid from current.
func (c *Controller) ToggleAdmin(ctx context.Context, uid string, current bool) {
	c.setMessages(func() { c.adminMsg = "" })
	next, err := c.admin.ToggleAdmin(ctx, c.current(), uid, current)
	if err != nil {
		c.setMessages(func() { c.adminMsg = fmt.Sprintf("Failed to toggle admin status for user %s: %v", uid, err) })
		return
	}
	c.setMessages(func() { c.adminMsg = fmt.Sprintf("Admin status for user %s toggled to %t.", uid, next) })
}

// SendJoinRequest asks to join the contest of contestID.
func (c *Controller) SendJoinRequest(ctx context.Context, contestID, contestText string) {
	_, err := c.contest.Submit(ctx, c.current(), contestID, contestText)
	switch {
	case errors.Is(err, contest.ErrNotSignedIn):
		c.setMessages(func() { c.errMsg = MsgJoinNotSignedIn })
	case errors.Is(err, contest.ErrDuplicateRequest):
		c.setMessages(func() { c.errMsg = MsgJoinDuplicate })
	case err != nil:
		c.d.Log.Error("send join request failed", "contest_id", contestID, "error", err)
		c.setMessages(func() { c.errMsg = "Failed to send join request: " + err.Error() })
	default:
		c.setMessages(func() { c.errMsg = "" })
	}
}

// AcceptRequest accepts a join request.
func (c *Controller) AcceptRequest(ctx context.Context, requestID string) {
	c.setMessages(func() { c.adminMsg = "" })
	if err := c.contest.Accept(ctx, c.current(), requestID); err != nil {
		c.setMessages(func() { c.adminMsg = "Failed to accept request: " + err.Error() })
		return
	}
	c.setMessages(func() { c.adminMsg = MsgRequestAccepted })
}

// RejectRequest rejects a join request.
func (c *Controller) RejectRequest(ctx context.Context, requestID string) {
	c.setMessages(func() { c.adminMsg = "" })
	if err := c.contest.Reject(ctx, c.current(), requestID); err != nil {
		c.setMessages(func() { c.adminMsg = "Failed to reject request: " + err.Error() })
		return
	}
	c.setMessages(func() { c.adminMsg = MsgRequestRejected })
}
