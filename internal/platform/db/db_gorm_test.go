package db

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// TestBuildDSN はドライバーごとのDSN文字列を検証します。
func TestBuildDSN(t *testing.T) {
	t.Parallel()

	base := Config{User: "md", Password: "secret", Name: "marketdata", Host: "db"}
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{
			name:   "mysql tcp",
			mutate: func(c *Config) { c.Driver, c.Port = DriverMySQL, "3306" },
			want:   "md:secret@tcp(db:3306)/marketdata?charset=utf8mb4&parseTime=true&loc=Local",
		},
		{
			name: "cloud sql socket wins over host",
			mutate: func(c *Config) {
				c.Driver, c.Port, c.InstanceName = DriverMySQL, "3306", "project:region:instance"
			},
			want: "md:secret@unix(/cloudsql/project:region:instance)/marketdata?charset=utf8mb4&parseTime=true&loc=Local",
		},
		{
			name:   "postgres url",
			mutate: func(c *Config) { c.Driver, c.Port, c.SSLMode = DriverPostgres, "5432", "disable" },
			want:   "postgres://md:secret@db:5432/marketdata?sslmode=disable",
		},
		{
			name:   "sqlite path",
			mutate: func(c *Config) { c.Driver, c.SQLitePath = DriverSQLite, "/tmp/md.db" },
			want:   "/tmp/md.db",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base
			tt.mutate(&cfg)
			assert.Equal(t, tt.want, BuildDSN(cfg))
		})
	}
}

func TestConnectWithRetry(t *testing.T) {
	t.Parallel()

	t.Run("first attempt succeeds", func(t *testing.T) {
		t.Parallel()
		want := &gorm.DB{}
		got, err := ConnectWithRetry("dsn", time.Second, func(string) (*gorm.DB, error) { return want, nil })
		require.NoError(t, err)
		assert.Same(t, want, got)
	})

	t.Run("gives up after timeout", func(t *testing.T) {
		t.Parallel()
		attempts := 0
		_, err := ConnectWithRetry("dsn", 10*time.Millisecond, func(string) (*gorm.DB, error) {
			attempts++
			return nil, errors.New("connection refused")
		})
		require.Error(t, err)
		assert.ErrorContains(t, err, "connection refused")
		assert.GreaterOrEqual(t, attempts, 1)
	})
}

// TestConnectWithRetry_RetriesOnFailure は retryInterval 待つため並列実行しません。
func TestConnectWithRetry_RetriesOnFailure(t *testing.T) {
	want := &gorm.DB{}
	attempts := 0
	got, err := ConnectWithRetry("dsn", 10*time.Second, func(string) (*gorm.DB, error) {
		attempts++
		if attempts < 2 {
			return nil, errors.New("connection refused")
		}
		return want, nil
	})

	require.NoError(t, err)
	assert.Same(t, want, got)
	assert.Equal(t, 2, attempts)
}

func TestOpenerFor_UnsupportedDriver(t *testing.T) {
	t.Parallel()

	_, err := OpenerFor("oracle")
	assert.Error(t, err)
}

type migrateProbe struct {
	ID   uint `gorm:"primaryKey"`
	Code string
}

// TestOpen_SQLite はSQLiteで接続してマイグレーションが実行されることを検証します。
func TestOpen_SQLite(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	cfg.SQLitePath = ":memory:"
	cfg.MaxOpenConns = 1

	db, err := Open(cfg, &migrateProbe{})
	require.NoError(t, err)
	t.Cleanup(func() {
		sqlDB, _ := db.DB()
		_ = sqlDB.Close()
	})

	assert.True(t, db.Migrator().HasTable(&migrateProbe{}))
	require.NoError(t, db.Create(&migrateProbe{Code: "600000"}).Error)
}
