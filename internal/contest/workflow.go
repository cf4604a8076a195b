// Package contest runs the join-request workflow: a signed-in user asks to
// join the contest built around one contest text and an admin accepts or
// rejects the request.
package contest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/iliyamo/typing-contest/internal/docstore"
	"github.com/iliyamo/typing-contest/internal/model"
)

var (
	// ErrNotSignedIn rejects submissions from identities without an email.
	ErrNotSignedIn = errors.New("not signed in")
	// ErrDuplicateRequest rejects a second request for the same contest.
	ErrDuplicateRequest = errors.New("request already sent for this contest")
)

// Workflow creates and resolves join requests.
type Workflow struct {
	store docstore.Store
	paths docstore.Paths
	now   func() time.Time
}

func NewWorkflow(store docstore.Store, paths docstore.Paths) *Workflow {
	return &Workflow{store: store, paths: paths, now: time.Now}
}

// Submit files a pending request for contestID. The duplicate check and the
// insert are separate store calls, so two concurrent submissions can both
// succeed.
func (w *Workflow) Submit(ctx context.Context, who *model.Identity, contestID, contestText string) (model.JoinRequest, error) {
	if who == nil || who.UserID == "" || !who.HasEmail() {
		return model.JoinRequest{}, ErrNotSignedIn
	}
	existing, err := w.store.QueryOnce(ctx, docstore.Query{
		Collection: w.paths.JoinRequests(),
		Filters: []docstore.Filter{
			docstore.Where("userId", who.UserID),
			docstore.Where("contestId", contestID),
		},
	})
	if err != nil {
		return model.JoinRequest{}, fmt.Errorf("check existing requests: %w", err)
	}
	if len(existing) > 0 {
		return model.JoinRequest{}, ErrDuplicateRequest
	}

	req := model.JoinRequest{
		ContestID:   contestID,
		ContestText: contestText,
		UserID:      who.UserID,
		UserEmail:   who.Email,
		Status:      model.StatusPending,
		Timestamp:   w.now().UnixMilli(),
	}
	data, err := docstore.Encode(req)
	if err != nil {
		return model.JoinRequest{}, err
	}
	id, err := w.store.Add(ctx, w.paths.JoinRequests(), data)
	if err != nil {
		return model.JoinRequest{}, err
	}
	req.ID = id
	return req, nil
}

// Accept marks a request accepted.
func (w *Workflow) Accept(ctx context.Context, admin *model.Identity, requestID string) error {
	return w.resolve(ctx, admin, requestID, model.StatusAccepted)
}

// Reject marks a request rejected.
func (w *Workflow) Reject(ctx context.Context, admin *model.Identity, requestID string) error {
	return w.resolve(ctx, admin, requestID, model.StatusRejected)
}

// resolve updates the status field of an existing request. The current
// status is not checked, so a resolved request can be flipped again.
func (w *Workflow) resolve(ctx context.Context, admin *model.Identity, requestID string, status model.RequestStatus) error {
	if admin == nil || !admin.IsAdmin {
		return model.ErrForbidden
	}
	path := docstore.Join(w.paths.JoinRequests(), requestID)
	if _, err := w.store.Get(ctx, path); err != nil {
		return err
	}
	return w.store.Set(ctx, path, map[string]any{"status": string(status)}, true)
}

// PendingQuery lists every pending request, for admins.
func (w *Workflow) PendingQuery() docstore.Query {
	return docstore.Query{
		Collection: w.paths.JoinRequests(),
		Filters:    []docstore.Filter{docstore.Where("status", model.StatusPending)},
	}
}

// OwnQuery lists the requests of one user.
func (w *Workflow) OwnQuery(userID string) docstore.Query {
	return docstore.Query{
		Collection: w.paths.JoinRequests(),
		Filters:    []docstore.Filter{docstore.Where("userId", userID)},
	}
}

// StatusFor returns the status of the caller's request for contestID, if
// any request exists.
func StatusFor(requests []model.JoinRequest, contestID string) (model.RequestStatus, bool) {
	for _, r := range requests {
		if r.ContestID == contestID {
			return r.Status, true
		}
	}
	return "", false
}

// DecodeRequests turns snapshot documents into join requests.
func DecodeRequests(docs []docstore.Document) ([]model.JoinRequest, error) {
	return docstore.DecodeAll(docs, func(r *model.JoinRequest, id string) { r.ID = id })
}
