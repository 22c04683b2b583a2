package database

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"servicecenter/internal/config"
)

type probe struct {
	ID   int64 `gorm:"primaryKey"`
	Name string
}

func TestIsPostgresDSN(t *testing.T) {
	assert.True(t, IsPostgresDSN("postgres://u:p@localhost/db"))
	assert.True(t, IsPostgresDSN("postgresql://localhost/db"))
	assert.False(t, IsPostgresDSN("file:test?mode=memory"))
	assert.False(t, IsPostgresDSN("servicecenter.db"))
}

func TestConnect_SQLiteAndMigrate(t *testing.T) {
	db, err := Connect(config.DatabaseConfig{
		URL:          "file:database_connect_test?mode=memory&cache=shared",
		MaxOpenConns: 1,
	}, zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, "sqlite", db.Dialector.Name())

	err = Migrate(db, func(db *gorm.DB) error { return db.AutoMigrate(&probe{}) })
	require.NoError(t, err)

	require.NoError(t, db.Create(&probe{Name: "bay-1"}).Error)
	var got probe
	require.NoError(t, db.First(&got).Error)
	assert.Equal(t, "bay-1", got.Name)
}

func TestMigrate_StopsOnError(t *testing.T) {
	db, err := OpenSQLite("file:database_migrate_err?mode=memory&cache=shared", nil)
	require.NoError(t, err)

	boom := errors.New("boom")
	called := false
	err = Migrate(db,
		func(*gorm.DB) error { return boom },
		func(*gorm.DB) error { called = true; return nil },
	)
	require.ErrorIs(t, err, boom)
	assert.False(t, called)
}
