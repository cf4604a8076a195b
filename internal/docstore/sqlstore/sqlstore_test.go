package sqlstore_test

import (
	"bytes"
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/typing-contest/internal/docstore"
	"github.com/iliyamo/typing-contest/internal/docstore/sqlstore"
	"github.com/iliyamo/typing-contest/internal/logger"
)

func newMock(t *testing.T) (sqlmock.Sqlmock, *sqlstore.Store, *docstore.LocalNotifier) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	n := docstore.NewLocalNotifier()
	return mock, sqlstore.New(db, n), n
}

func q(s string) string { return "^" + regexp.QuoteMeta(s) + "$" }

func TestStore_QueryOnce(t *testing.T) {
	ctx := context.Background()

	t.Run("Should push filters ordering and limit into SQL", func(t *testing.T) {
		mock, s, _ := newMock(t)
		mock.ExpectQuery(q("SELECT doc_id, path, data FROM documents WHERE collection=?" +
			` AND JSON_EXTRACT(data, '$."userId"') = CAST(? AS JSON)` +
			` AND JSON_EXTRACT(data, '$."timestamp"') IS NOT NULL ORDER BY JSON_EXTRACT(data, '$."timestamp"') DESC, id ASC LIMIT ?`)).
			WithArgs("scores", `"u1"`, 5).
			WillReturnRows(sqlmock.NewRows([]string{"doc_id", "path", "data"}).
				AddRow("s2", "scores/s2", []byte(`{"wpm":61,"userId":"u1","timestamp":2}`)).
				AddRow("s1", "scores/s1", []byte(`{"wpm":40.5,"userId":"u1","timestamp":1}`)))

		docs, err := s.QueryOnce(ctx, docstore.Query{
			Collection: "scores",
			Filters:    []docstore.Filter{docstore.Where("userId", "u1")},
			OrderBy:    "timestamp",
			Direction:  docstore.Desc,
			Limit:      5,
		})
		require.NoError(t, err)
		require.Len(t, docs, 2)
		assert.Equal(t, "s2", docs[0].ID)
		assert.Equal(t, int64(61), docs[0].Data["wpm"])
		assert.Equal(t, 40.5, docs[1].Data["wpm"])
		require.NoError(t, mock.ExpectationsWereMet())
	})
	t.Run("Should keep insertion order without OrderBy", func(t *testing.T) {
		mock, s, _ := newMock(t)
		mock.ExpectQuery(q("SELECT doc_id, path, data FROM documents WHERE collection=? ORDER BY id ASC")).
			WithArgs("texts").
			WillReturnRows(sqlmock.NewRows([]string{"doc_id", "path", "data"}))
		docs, err := s.QueryOnce(ctx, docstore.Query{Collection: "texts"})
		require.NoError(t, err)
		assert.Empty(t, docs)
		require.NoError(t, mock.ExpectationsWereMet())
	})
	t.Run("Should encode boolean filter values as JSON", func(t *testing.T) {
		mock, s, _ := newMock(t)
		mock.ExpectQuery("isAdmin").
			WithArgs("profiles", "true").
			WillReturnRows(sqlmock.NewRows([]string{"doc_id", "path", "data"}))
		_, err := s.QueryOnce(ctx, docstore.Query{
			Collection: "profiles",
			Filters:    []docstore.Filter{docstore.Where("isAdmin", true)},
		})
		require.NoError(t, err)
		require.NoError(t, mock.ExpectationsWereMet())
	})
	t.Run("Should reject field names that would escape the JSON path", func(t *testing.T) {
		_, s, _ := newMock(t)
		_, err := s.QueryOnce(ctx, docstore.Query{Collection: "c", OrderBy: `wpm') OR 1=1 --`})
		assert.ErrorIs(t, err, sqlstore.ErrBadField)
	})
	t.Run("Should wrap driver failures", func(t *testing.T) {
		mock, s, _ := newMock(t)
		mock.ExpectQuery("SELECT").WillReturnError(errors.New("conn reset"))
		_, err := s.QueryOnce(ctx, docstore.Query{Collection: "c"})
		var se *docstore.StoreError
		require.ErrorAs(t, err, &se)
		assert.Equal(t, "query", se.Op)
	})
}

func TestStore_Get(t *testing.T) {
	ctx := context.Background()
	t.Run("Should map no rows to ErrNotFound", func(t *testing.T) {
		mock, s, _ := newMock(t)
		mock.ExpectQuery(q("SELECT data FROM documents WHERE path=? LIMIT 1")).
			WithArgs("users/u1/profile/data").
			WillReturnRows(sqlmock.NewRows([]string{"data"}))
		_, err := s.Get(ctx, "users/u1/profile/data")
		assert.ErrorIs(t, err, docstore.ErrNotFound)
	})
	t.Run("Should decode the stored document", func(t *testing.T) {
		mock, s, _ := newMock(t)
		mock.ExpectQuery("SELECT data FROM documents").
			WithArgs("users/u1/profile/data").
			WillReturnRows(sqlmock.NewRows([]string{"data"}).AddRow([]byte(`{"email":"a@x.io","isAdmin":true}`)))
		d, err := s.Get(ctx, "users/u1/profile/data")
		require.NoError(t, err)
		assert.Equal(t, "data", d.ID)
		assert.Equal(t, true, d.Data["isAdmin"])
	})
}

func TestStore_RunBatch(t *testing.T) {
	ctx := context.Background()
	t.Run("Should commit every op in one transaction and then notify", func(t *testing.T) {
		mock, s, n := newMock(t)
		lctx, cancel := context.WithCancel(ctx)
		defer cancel()
		changes, err := n.Listen(lctx, "users/u1/my_scores")
		require.NoError(t, err)

		mock.ExpectBegin()
		mock.ExpectExec(regexp.QuoteMeta("data=JSON_MERGE_PATCH(data, VALUES(data))")).
			WithArgs("users/u1/profile/data", "users/u1/profile", "data", `{"isAdmin":true}`).
			WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectExec(q("DELETE FROM documents WHERE path=?")).
			WithArgs("users/u1/my_scores/h1").
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		err = s.RunBatch(ctx, []docstore.WriteOp{
			docstore.SetOp("users/u1/profile/data", map[string]any{"isAdmin": true}, true),
			docstore.DeleteOp("users/u1/my_scores/h1"),
		})
		require.NoError(t, err)
		require.NoError(t, mock.ExpectationsWereMet())
		select {
		case <-changes:
		case <-time.After(time.Second):
			t.Fatal("collection not notified")
		}
	})
	t.Run("Should treat a committed batch as applied when the signal fails", func(t *testing.T) {
		db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
		require.NoError(t, err)
		defer db.Close()
		mr := miniredis.RunT(t)
		rdb := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
		mr.Close()

		var logs bytes.Buffer
		s := sqlstore.New(db, docstore.NewRedisNotifier(rdb))
		s.Log = logger.New(&logger.Config{Level: logger.WarnLevel, Output: &logs})

		mock.ExpectBegin()
		mock.ExpectExec("INSERT INTO documents").WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectCommit()

		id, err := s.Add(ctx, "scores", map[string]any{"wpm": 40})
		require.NoError(t, err)
		assert.NotEmpty(t, id)
		require.NoError(t, mock.ExpectationsWereMet())
		assert.Contains(t, logs.String(), "notify failed")
	})
	t.Run("Should roll back when one op fails", func(t *testing.T) {
		mock, s, _ := newMock(t)
		mock.ExpectBegin()
		mock.ExpectExec("DELETE FROM documents").WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec("DELETE FROM documents").WillReturnError(errors.New("lock wait timeout"))
		mock.ExpectRollback()

		err := s.RunBatch(ctx, []docstore.WriteOp{docstore.DeleteOp("a/1"), docstore.DeleteOp("b/2")})
		var se *docstore.StoreError
		require.ErrorAs(t, err, &se)
		assert.Equal(t, "b/2", se.Path)
		require.NoError(t, mock.ExpectationsWereMet())
	})
	t.Run("Should replace the document on a plain set", func(t *testing.T) {
		mock, s, _ := newMock(t)
		mock.ExpectBegin()
		mock.ExpectExec(regexp.QuoteMeta("ON DUPLICATE KEY UPDATE data=VALUES(data)")).
			WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectCommit()
		require.NoError(t, s.Set(ctx, "c/1", map[string]any{"a": 1}, false))
		require.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestStore_LiveQueryOverRedis(t *testing.T) {
	t.Run("Should re-run the query when another instance writes", func(t *testing.T) {
		mr := miniredis.RunT(t)
		rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
		defer rdb.Close()

		db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
		require.NoError(t, err)
		defer db.Close()
		s := sqlstore.New(db, docstore.NewRedisNotifier(rdb))

		cols := []string{"doc_id", "path", "data"}
		mock.ExpectQuery("SELECT doc_id").WillReturnRows(sqlmock.NewRows(cols))
		mock.ExpectQuery("SELECT doc_id").WillReturnRows(sqlmock.NewRows(cols).
			AddRow("t1", "texts/t1", []byte(`{"text":"hello"}`)))

		sub, err := s.LiveQuery(context.Background(), docstore.Query{Collection: "texts"})
		require.NoError(t, err)
		defer sub.Unsubscribe()

		first := <-sub.Snapshots()
		assert.Empty(t, first.Docs)

		other := docstore.NewRedisNotifier(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
		require.NoError(t, other.Notify(context.Background(), "texts"))

		select {
		case snap := <-sub.Snapshots():
			require.Len(t, snap.Docs, 1)
			assert.Equal(t, "hello", snap.Docs[0].Data["text"])
		case <-time.After(2 * time.Second):
			t.Fatal("no snapshot after remote write")
		}
	})
}
