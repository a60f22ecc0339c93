package db

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"procedure-scheduler-backend/config"
	"procedure-scheduler-backend/internal/model"
)

func TestInit_SQLiteMigrates(t *testing.T) {
	cfg := &config.DatabaseConfig{
		Driver:       "sqlite",
		DSN:          "file:db_init_test?mode=memory&cache=shared",
		MaxOpenConns: 1,
	}
	gdb, err := Init(cfg)
	require.NoError(t, err)

	assert.True(t, gdb.Migrator().HasTable(&model.ProcedureType{}))
	assert.Equal(t, 0, cfg.MaxIdleConns, "Init must not modify the caller's config")
}

// With no pool sizes configured the in-memory catalogue must survive
// past migration into the first real query.
func TestInit_SQLiteMemoryKeepsTablesWithoutPoolSettings(t *testing.T) {
	gdb, err := Init(&config.DatabaseConfig{
		Driver: "sqlite",
		DSN:    "file:db_init_defaults?mode=memory&cache=shared",
	})
	require.NoError(t, err)

	require.NoError(t, gdb.Create(&model.ProcedureType{Name: "Infusion", TurnAroundHours: 3}).Error)
	var n int64
	require.NoError(t, gdb.Model(&model.ProcedureType{}).Count(&n).Error)
	assert.Equal(t, int64(1), n)
}

func TestInit_UnsupportedDriver(t *testing.T) {
	_, err := Init(&config.DatabaseConfig{Driver: "oracle"})
	assert.ErrorContains(t, err, "unsupported database driver")
}
