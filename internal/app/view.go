package app

import (
	"github.com/iliyamo/typing-contest/internal/contest"
	"github.com/iliyamo/typing-contest/internal/model"
	"github.com/iliyamo/typing-contest/internal/session"
)

// SessionView is the typing attempt as the client renders it.
type SessionView struct {
	Phase    session.Phase `json:"phase"`
	Text     string        `json:"text"`
	Input    string        `json:"input"`
	Started  bool          `json:"started"`
	Finished bool          `json:"finished"`
	Loading  bool          `json:"loading"`
	Elapsed  int           `json:"elapsed"`
	WPM      int           `json:"wpm"`
	Accuracy int           `json:"accuracy"`
}

// View is the read-only state of one player.
type View struct {
	Identity *model.Identity `json:"identity"`
	Session  SessionView     `json:"session"`

	Leaderboard     []model.ScoreEntry   `json:"leaderboard"`
	History         []model.HistoryEntry `json:"history"`
	ContestTexts    []model.ContestText  `json:"contestTexts"`
	MyRequests      []model.JoinRequest  `json:"myRequests"`
	PendingRequests []model.JoinRequest  `json:"pendingRequests"`
	Users           []model.UserSummary  `json:"users"`
	// JoinStatus maps contest text ids to the player's request status.
	JoinStatus map[string]model.RequestStatus `json:"joinStatus"`

	CustomText    string `json:"customText"`
	UseCustomText bool   `json:"useCustomText"`
	ContestDraft  string `json:"contestDraft"`
	Generating    bool   `json:"generating"`

	AuthMessage  string `json:"authMessage"`
	AdminMessage string `json:"adminMessage"`
	Error        string `json:"error"`
}

// View returns the current state.
func (c *Controller) View() View {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.viewLocked()
}

// viewLocked copies the state. Feed slices are replaced wholesale on every
// snapshot and never modified in place, so they are shared.
func (c *Controller) viewLocked() View {
	st := c.machine.Snapshot()
	v := View{
		Session: SessionView{
			Phase:    st.Phase(),
			Text:     st.Text,
			Input:    st.Input,
			Started:  st.Started,
			Finished: st.Finished,
			Loading:  st.Loading,
			Elapsed:  st.Elapsed,
			WPM:      st.WPM,
			Accuracy: st.Accuracy,
		},
		Leaderboard:     c.leaderboard,
		History:         c.history,
		ContestTexts:    c.texts,
		MyRequests:      c.ownRequests,
		PendingRequests: c.pending,
		Users:           c.users,
		JoinStatus:      map[string]model.RequestStatus{},
		CustomText:      c.customText,
		UseCustomText:   c.useCustom,
		ContestDraft:    c.draft,
		Generating:      c.generating,
		AuthMessage:     c.authMsg,
		AdminMessage:    c.adminMsg,
		Error:           c.errMsg,
	}
	if c.identity != nil {
		id := *c.identity
		v.Identity = &id
	}
	for _, t := range c.texts {
		if status, ok := contest.StatusFor(c.ownRequests, t.ID); ok {
			v.JoinStatus[t.ID] = status
		}
	}
	return v
}
