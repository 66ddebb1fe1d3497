// Package testdb opens throwaway SQLite databases for package tests.
package testdb

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"signbridge-server/internal/models"
)

// Open returns a migrated private in-memory database that is closed when
// the test ends.
func Open(t testing.TB) *gorm.DB {
	t.Helper()

	dsn := "file:" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
		TranslateError: true,
		NowFunc:        func() time.Time { return time.Now().UTC() },
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, models.AutoMigrate(db))
	return db
}

// CreateUser inserts a user with the given role and returns it.
func CreateUser(t testing.TB, db *gorm.DB, role models.Role, firstName string, opts ...func(*models.User)) *models.User {
	t.Helper()

	user := &models.User{
		Email:     firstName + "-" + uuid.NewString()[:8] + "@example.com",
		FirstName: firstName,
		LastName:  "Test",
		Role:      role,
	}
	for _, opt := range opts {
		opt(user)
	}
	if user.Password == "" {
		require.NoError(t, user.SetPassword("password123"))
	}
	require.NoError(t, db.Create(user).Error)
	return user
}
