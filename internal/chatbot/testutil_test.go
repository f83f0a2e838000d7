package chatbot

import (
	"fmt"
	"testing"

	"github.com/Asyl777/neuroflow-instagramapi/internal/database"
	"github.com/Asyl777/neuroflow-instagramapi/internal/models"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// setupTestDB opens an isolated in-memory sqlite database with the full
// chatbot schema migrated.
func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))
	return db
}

func createTestUser(t *testing.T, db *gorm.DB, state models.UserState) *models.User {
	t.Helper()

	user := &models.User{
		InstagramUserID: 555,
		Username:        "alice",
		CurrentState:    state,
	}
	require.NoError(t, db.Create(user).Error)
	return user
}

func countEvents(t *testing.T, db *gorm.DB, eventType string) int64 {
	t.Helper()

	var count int64
	require.NoError(t, db.Model(&models.Event{}).
		Where("event_type = ?", eventType).Count(&count).Error)
	return count
}
