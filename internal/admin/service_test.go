package admin_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/typing-contest/internal/admin"
	"github.com/iliyamo/typing-contest/internal/docstore"
	"github.com/iliyamo/typing-contest/internal/docstore/memstore"
	"github.com/iliyamo/typing-contest/internal/model"
)

var (
	paths = docstore.Paths{AppID: "test"}
	root  = &model.Identity{UserID: "a1", Email: "root@x.io", IsAdmin: true}
	user  = &model.Identity{UserID: "u1", Email: "u1@x.io"}
)

func count(t *testing.T, s docstore.Store, q docstore.Query) int {
	t.Helper()
	docs, err := s.QueryOnce(context.Background(), q)
	require.NoError(t, err)
	return len(docs)
}

func TestService_AddContestText(t *testing.T) {
	ctx := context.Background()

	t.Run("Should store trimmed text with its author", func(t *testing.T) {
		s := memstore.New()
		ct, err := admin.NewService(s, paths).AddContestText(ctx, root, "  Hello world.  ", model.DifficultyEasy, model.CategoryGeneral)
		require.NoError(t, err)
		assert.Equal(t, "Hello world.", ct.Text)
		assert.Equal(t, "root@x.io", ct.AddedBy)

		d, err := s.Get(ctx, docstore.Join(paths.ContestTexts(), ct.ID))
		require.NoError(t, err)
		assert.Equal(t, "Hello world.", d.Data["text"])
		assert.Equal(t, "easy", d.Data["difficulty"])
		assert.NotZero(t, d.Data["timestamp"])
	})
	t.Run("Should credit Admin when the admin has no email", func(t *testing.T) {
		ct, err := admin.NewService(memstore.New(), paths).AddContestText(ctx,
			&model.Identity{UserID: "a2", IsAdmin: true}, "x", model.DifficultyHard, model.CategoryQuotes)
		require.NoError(t, err)
		assert.Equal(t, "Admin", ct.AddedBy)
	})
	t.Run("Should reject blank text without writing", func(t *testing.T) {
		s := memstore.New()
		_, err := admin.NewService(s, paths).AddContestText(ctx, root, " \t\n", model.DifficultyEasy, model.CategoryGeneral)
		var ve *admin.ValidationError
		require.ErrorAs(t, err, &ve)
		assert.Equal(t, admin.ErrEmptyText, ve.Message)
		assert.Equal(t, 0, s.Len())
	})
	t.Run("Should reject values outside the enums", func(t *testing.T) {
		svc := admin.NewService(memstore.New(), paths)
		_, err := svc.AddContestText(ctx, root, "x", "insane", model.CategoryGeneral)
		var ve *admin.ValidationError
		require.ErrorAs(t, err, &ve)
		assert.Equal(t, "difficulty", ve.Field)

		_, err = svc.AddContestText(ctx, root, "x", model.DifficultyEasy, "poetry")
		require.ErrorAs(t, err, &ve)
		assert.Equal(t, "category", ve.Field)
	})
	t.Run("Should forbid non admins", func(t *testing.T) {
		_, err := admin.NewService(memstore.New(), paths).AddContestText(ctx, user, "x", model.DifficultyEasy, model.CategoryGeneral)
		assert.ErrorIs(t, err, model.ErrForbidden)
	})
}

func TestService_DeleteContestText(t *testing.T) {
	ctx := context.Background()
	s := memstore.New()
	svc := admin.NewService(s, paths)
	ct, err := svc.AddContestText(ctx, root, "x", model.DifficultyEasy, model.CategoryGeneral)
	require.NoError(t, err)

	t.Run("Should forbid non admins", func(t *testing.T) {
		assert.ErrorIs(t, svc.DeleteContestText(ctx, user, ct.ID), model.ErrForbidden)
	})
	t.Run("Should remove the text", func(t *testing.T) {
		require.NoError(t, svc.DeleteContestText(ctx, root, ct.ID))
		assert.Equal(t, 0, count(t, s, docstore.Query{Collection: paths.ContestTexts()}))
	})
}

func seedUser(t *testing.T, s docstore.Store, uid string, history, scores int) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, s.Set(ctx, paths.Profile(uid), map[string]any{"email": uid + "@x.io", "isAdmin": false}, false))
	for i := 0; i < history; i++ {
		_, err := s.Add(ctx, paths.History(uid), map[string]any{"wpm": i, "timestamp": i})
		require.NoError(t, err)
	}
	for i := 0; i < scores; i++ {
		_, err := s.Add(ctx, paths.Scores(), map[string]any{"userId": uid, "wpm": i})
		require.NoError(t, err)
	}
}

func TestService_DeleteUserData(t *testing.T) {
	ctx := context.Background()

	t.Run("Should remove profile history and leaderboard entries", func(t *testing.T) {
		s := memstore.New()
		seedUser(t, s, "u1", 3, 2)
		seedUser(t, s, "u2", 1, 1)
		n, err := admin.NewService(s, paths).DeleteUserData(ctx, root, "u1")
		require.NoError(t, err)
		assert.Equal(t, 6, n)

		_, err = s.Get(ctx, paths.Profile("u1"))
		assert.ErrorIs(t, err, docstore.ErrNotFound)
		assert.Equal(t, 0, count(t, s, docstore.Query{Collection: paths.History("u1")}))
		assert.Equal(t, 1, count(t, s, docstore.Query{Collection: paths.Scores()}))
		assert.Equal(t, 1, count(t, s, docstore.Query{Collection: paths.History("u2")}))
	})
	t.Run("Should leave history beyond the cap in place", func(t *testing.T) {
		s := memstore.New()
		seedUser(t, s, "u1", admin.HistoryDeleteCap+5, 0)
		_, err := admin.NewService(s, paths).DeleteUserData(ctx, root, "u1")
		require.NoError(t, err)
		assert.Equal(t, 5, count(t, s, docstore.Query{Collection: paths.History("u1")}))
	})
	t.Run("Should write nothing when the batch fails", func(t *testing.T) {
		s := memstore.New()
		seedUser(t, s, "u1", 2, 2)
		before := s.Len()
		s.SetFault(func(op, path string) error {
			if op == "delete" && strings.HasPrefix(path, paths.Scores()) {
				return errors.New("denied")
			}
			return nil
		})
		_, err := admin.NewService(s, paths).DeleteUserData(ctx, root, "u1")
		require.Error(t, err)
		assert.Equal(t, before, s.Len())
	})
	t.Run("Should forbid non admins", func(t *testing.T) {
		_, err := admin.NewService(memstore.New(), paths).DeleteUserData(ctx, user, "u2")
		assert.ErrorIs(t, err, model.ErrForbidden)
	})
}

func TestService_ToggleAdmin(t *testing.T) {
	ctx := context.Background()

	t.Run("Should write the negated flag and keep other fields", func(t *testing.T) {
		s := memstore.New()
		seedUser(t, s, "u1", 0, 0)
		next, err := admin.NewService(s, paths).ToggleAdmin(ctx, root, "u1", false)
		require.NoError(t, err)
		assert.True(t, next)
		d, err := s.Get(ctx, paths.Profile("u1"))
		require.NoError(t, err)
		assert.Equal(t, true, d.Data["isAdmin"])
		assert.Equal(t, "u1@x.io", d.Data["email"])
	})
	t.Run("Should trust a stale current value", func(t *testing.T) {
		s := memstore.New()
		require.NoError(t, s.Set(ctx, paths.Profile("u1"), map[string]any{"isAdmin": true}, false))
		next, err := admin.NewService(s, paths).ToggleAdmin(ctx, root, "u1", false)
		require.NoError(t, err)
		assert.True(t, next)
		d, _ := s.Get(ctx, paths.Profile("u1"))
		assert.Equal(t, true, d.Data["isAdmin"])
	})
	t.Run("Should create a profile when none exists", func(t *testing.T) {
		s := memstore.New()
		_, err := admin.NewService(s, paths).ToggleAdmin(ctx, root, "ghost", true)
		require.NoError(t, err)
		d, err := s.Get(ctx, paths.Profile("ghost"))
		require.NoError(t, err)
		assert.Equal(t, false, d.Data["isAdmin"])
	})
}

func TestService_UniqueUsers(t *testing.T) {
	ctx := context.Background()
	s := memstore.New()
	require.NoError(t, s.Set(ctx, paths.Profile("alice-123456"), map[string]any{"email": "alice@x.io", "isAdmin": true}, false))
	svc := admin.NewService(s, paths)

	t.Run("Should list each user once with profile data or a fallback", func(t *testing.T) {
		users, err := svc.UniqueUsers(ctx, root, []model.ScoreEntry{
			{UserID: "alice-123456", UserName: "ignored"},
			{UserID: "bob-abcdefgh", UserName: "bob@x.io"},
			{UserID: "alice-123456"},
			{UserID: "carol-zyxwvu"},
		})
		require.NoError(t, err)
		assert.Equal(t, []model.UserSummary{
			{ID: "alice-123456", Email: "alice@x.io", IsAdmin: true},
			{ID: "bob-abcdefgh", Email: "bob@x.io"},
			{ID: "carol-zyxwvu", Email: "User-carol-"},
		}, users)
	})
	t.Run("Should fall back when the profile lookup fails", func(t *testing.T) {
		failing := memstore.New()
		failing.SetFault(func(op, _ string) error {
			if op == "get" {
				return fmt.Errorf("unavailable")
			}
			return nil
		})
		users, err := admin.NewService(failing, paths).UniqueUsers(ctx, root, []model.ScoreEntry{{UserID: "abc", UserName: ""}})
		require.NoError(t, err)
		assert.Equal(t, []model.UserSummary{{ID: "abc", Email: "User-abc"}}, users)
	})
	t.Run("Should forbid non admins", func(t *testing.T) {
		_, err := svc.UniqueUsers(ctx, user, nil)
		assert.ErrorIs(t, err, model.ErrForbidden)
	})
}
