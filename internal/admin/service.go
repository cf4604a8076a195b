// Package admin holds the curation operations available to administrators:
// managing the contest text pool, wiping a user's data and flipping the
// admin flag.
package admin

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/iliyamo/typing-contest/internal/docstore"
	"github.com/iliyamo/typing-contest/internal/model"
)

// HistoryDeleteCap is how many history entries DeleteUserData removes.
// Older entries beyond it are left behind.
const HistoryDeleteCap = 100

// ValidationError reports bad admin input.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

// ErrEmptyText is the message for a blank contest text.
const ErrEmptyText = "Text cannot be empty."

type contestTextInput struct {
	Text       string           `validate:"required"`
	Difficulty model.Difficulty `validate:"required,oneof=easy medium hard"`
	Category   model.Category   `validate:"required,oneof=general quotes programming"`
}

// Service performs admin operations against the document store.
type Service struct {
	store    docstore.Store
	paths    docstore.Paths
	validate *validator.Validate
	now      func() time.Time
}

func NewService(store docstore.Store, paths docstore.Paths) *Service {
	return &Service{store: store, paths: paths, validate: validator.New(), now: time.Now}
}

func requireAdmin(who *model.Identity) error {
	if who == nil || !who.IsAdmin {
		return model.ErrForbidden
	}
	return nil
}

// AddContestText stores a trimmed passage in the contest pool.
func (s *Service) AddContestText(ctx context.Context, who *model.Identity, text string, difficulty model.Difficulty, category model.Category) (model.ContestText, error) {
	if err := requireAdmin(who); err != nil {
		return model.ContestText{}, err
	}
	in := contestTextInput{Text: strings.TrimSpace(text), Difficulty: difficulty, Category: category}
	if err := s.validate.Struct(in); err != nil {
		return model.ContestText{}, toValidationError(err)
	}

	addedBy := who.Email
	if addedBy == "" {
		addedBy = "Admin"
	}
	ct := model.ContestText{
		Text:       in.Text,
		Difficulty: difficulty,
		Category:   category,
		Timestamp:  s.now().UnixMilli(),
		AddedBy:    addedBy,
	}
	data, err := docstore.Encode(ct)
	if err != nil {
		return model.ContestText{}, err
	}
	id, err := s.store.Add(ctx, s.paths.ContestTexts(), data)
	if err != nil {
		return model.ContestText{}, err
	}
	ct.ID = id
	return ct, nil
}

func toValidationError(err error) error {
	var ves validator.ValidationErrors
	if !errors.As(err, &ves) || len(ves) == 0 {
		return err
	}
	fe := ves[0]
	if fe.Field() == "Text" {
		return &ValidationError{Field: "text", Message: ErrEmptyText}
	}
	field := strings.ToLower(fe.Field())
	if fe.Tag() == "required" {
		return &ValidationError{Field: field, Message: fmt.Sprintf("%s is required.", fe.Field())}
	}
	return &ValidationError{Field: field, Message: fmt.Sprintf("Unknown %s %q.", field, fe.Value())}
}

// DeleteContestText removes a passage from the pool.
func (s *Service) DeleteContestText(ctx context.Context, who *model.Identity, id string) error {
	if err := requireAdmin(who); err != nil {
		return err
	}
	return s.store.Delete(ctx, docstore.Join(s.paths.ContestTexts(), id))
}

// DeleteUserData removes the profile, up to HistoryDeleteCap history
// entries and every leaderboard entry of uid in one batch. It returns how
// many documents the batch held.
func (s *Service) DeleteUserData(ctx context.Context, who *model.Identity, uid string) (int, error) {
	if err := requireAdmin(who); err != nil {
		return 0, err
	}
	ops := []docstore.WriteOp{docstore.DeleteOp(s.paths.Profile(uid))}

	history, err := s.store.QueryOnce(ctx, docstore.Query{Collection: s.paths.History(uid), Limit: HistoryDeleteCap})
	if err != nil {
		return 0, err
	}
	for _, d := range history {
		ops = append(ops, docstore.DeleteOp(d.Path))
	}

	scores, err := s.store.QueryOnce(ctx, docstore.Query{
		Collection: s.paths.Scores(),
		Filters:    []docstore.Filter{docstore.Where("userId", uid)},
	})
	if err != nil {
		return 0, err
	}
	for _, d := range scores {
		ops = append(ops, docstore.DeleteOp(d.Path))
	}

	if err := s.store.RunBatch(ctx, ops); err != nil {
		return 0, err
	}
	return len(ops), nil
}

// ToggleAdmin writes the negation of current to the profile of uid and
// returns it. current is trusted as given; the profile is not re-read.
func (s *Service) ToggleAdmin(ctx context.Context, who *model.Identity, uid string, current bool) (bool, error) {
	if err := requireAdmin(who); err != nil {
		return current, err
	}
	next := !current
	if err := s.store.Set(ctx, s.paths.Profile(uid), map[string]any{"isAdmin": next}, true); err != nil {
		return current, err
	}
	return next, nil
}

// UniqueUsers derives the user list from leaderboard entries, looking up
// each distinct user's profile once. Users keep the order of their first
// score.
func (s *Service) UniqueUsers(ctx context.Context, who *model.Identity, scores []model.ScoreEntry) ([]model.UserSummary, error) {
	if err := requireAdmin(who); err != nil {
		return nil, err
	}
	seen := map[string]struct{}{}
	users := make([]model.UserSummary, 0)
	for _, sc := range scores {
		if _, ok := seen[sc.UserID]; ok {
			continue
		}
		seen[sc.UserID] = struct{}{}
		users = append(users, s.summary(ctx, sc))
	}
	return users, nil
}

func (s *Service) summary(ctx context.Context, sc model.ScoreEntry) model.UserSummary {
	doc, err := s.store.Get(ctx, s.paths.Profile(sc.UserID))
	if err == nil {
		var p model.Profile
		if err := docstore.Decode(doc, &p); err == nil {
			return model.UserSummary{ID: sc.UserID, Email: p.Email, IsAdmin: p.IsAdmin}
		}
	}
	name := sc.UserName
	if name == "" {
		name = "User-" + prefix(sc.UserID, 6)
	}
	return model.UserSummary{ID: sc.UserID, Email: name}
}

func prefix(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

// AllScoresQuery is the unordered leaderboard feed the user list is built
// from.
func (s *Service) AllScoresQuery() docstore.Query {
	return docstore.Query{Collection: s.paths.Scores()}
}
