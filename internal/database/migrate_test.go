package database_test

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/typing-contest/internal/database"
)

func TestMigrate(t *testing.T) {
	t.Run("Should run statements in order and stop at the first failure", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		mock.ExpectExec("CREATE TABLE a").WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectExec("CREATE TABLE b").WillReturnError(errors.New("denied"))

		err = database.Migrate(context.Background(), db, "CREATE TABLE a (x INT)", "CREATE TABLE b (x INT)", "CREATE TABLE c (x INT)")
		assert.ErrorContains(t, err, "migration 1")
		require.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestDSN(t *testing.T) {
	t.Run("Should round trip through the driver parser", func(t *testing.T) {
		cfg, err := mysql.ParseDSN(database.DSN("app", "p@ss:word", "db.local", "3307", "typing"))
		require.NoError(t, err)
		assert.Equal(t, "app", cfg.User)
		assert.Equal(t, "p@ss:word", cfg.Passwd)
		assert.Equal(t, "tcp", cfg.Net)
		assert.Equal(t, "db.local:3307", cfg.Addr)
		assert.Equal(t, "typing", cfg.DBName)
		assert.True(t, cfg.ParseTime)
	})
}
