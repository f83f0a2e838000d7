package chatbot

import (
	"testing"
	"time"

	"github.com/Asyl777/neuroflow-instagramapi/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSelectorPriorityOrder(t *testing.T) {
	db := setupTestDB(t)
	user := createTestUser(t, db, models.StateActive)

	second := models.Trigger{
		Name:         "second",
		TriggerType:  models.TriggerContains,
		TriggerValue: "hello",
		Priority:     20,
		IsActive:     true,
		Actions:      `[{"type":"send_message","data":{"text":"from second"}}]`,
	}
	first := models.Trigger{
		Name:         "first",
		TriggerType:  models.TriggerContains,
		TriggerValue: "hello",
		Priority:     10,
		IsActive:     true,
		Actions:      `[{"type":"send_message","data":{"text":"from first"}}]`,
	}
	require.NoError(t, db.Create(&second).Error)
	require.NoError(t, db.Create(&first).Error)

	actions, err := NewSelector().Select(db, user, Inbound{Text: "hello"})
	require.NoError(t, err)
	require.Len(t, actions, 2, "all matching triggers fire, not just the first")

	// Lower priority value is evaluated first regardless of insert order.
	assert.Equal(t, "first", actions[0].TriggerName)
	assert.Equal(t, "second", actions[1].TriggerName)
}

func TestSelectorSkipsInactive(t *testing.T) {
	db := setupTestDB(t)
	user := createTestUser(t, db, models.StateActive)

	trigger := models.Trigger{
		Name:         "disabled",
		TriggerType:  models.TriggerContains,
		TriggerValue: "hello",
		IsActive:     false,
		Actions:      `[{"type":"send_message","data":{"text":"hi"}}]`,
	}
	require.NoError(t, db.Create(&trigger).Error)

	actions, err := NewSelector().Select(db, user, Inbound{Text: "hello"})
	require.NoError(t, err)
	assert.Empty(t, actions)
}

func TestSelectorInvalidRegexRecordsWarning(t *testing.T) {
	db := setupTestDB(t)
	user := createTestUser(t, db, models.StateActive)

	bad := models.Trigger{
		Name:         "broken",
		TriggerType:  models.TriggerRegex,
		TriggerValue: `[unclosed`,
		Priority:     10,
		IsActive:     true,
		Actions:      `[{"type":"send_message","data":{"text":"never"}}]`,
	}
	good := models.Trigger{
		Name:         "greeting",
		TriggerType:  models.TriggerContains,
		TriggerValue: "hello",
		Priority:     20,
		IsActive:     true,
		Actions:      `[{"type":"send_message","data":{"text":"hi"}}]`,
	}
	require.NoError(t, db.Create(&bad).Error)
	require.NoError(t, db.Create(&good).Error)

	actions, err := NewSelector().Select(db, user, Inbound{Text: "hello"})
	require.NoError(t, err, "a malformed trigger must not abort the run")
	require.Len(t, actions, 1)
	assert.Equal(t, "greeting", actions[0].TriggerName)

	assert.EqualValues(t, 1, countEvents(t, db, EventTriggerMatchError))
}

func TestSelectorCooldown(t *testing.T) {
	db := setupTestDB(t)
	user := createTestUser(t, db, models.StateActive)

	recent := time.Now().Add(-10 * time.Second)
	trigger := models.Trigger{
		Name:            "cooled",
		TriggerType:     models.TriggerContains,
		TriggerValue:    "hello",
		IsActive:        true,
		CooldownSeconds: 60,
		LastTriggeredAt: &recent,
		Actions:         `[{"type":"send_message","data":{"text":"hi"}}]`,
	}
	require.NoError(t, db.Create(&trigger).Error)

	actions, err := NewSelector().Select(db, user, Inbound{Text: "hello"})
	require.NoError(t, err)
	assert.Empty(t, actions, "cooldown window still open")

	// Push the last activation outside the window and retry.
	old := time.Now().Add(-2 * time.Minute)
	require.NoError(t, db.Model(&trigger).Update("last_triggered_at", old).Error)

	actions, err = NewSelector().Select(db, user, Inbound{Text: "hello"})
	require.NoError(t, err)
	assert.Len(t, actions, 1)
}

func TestSelectorMaxTriggersPerUser(t *testing.T) {
	db := setupTestDB(t)
	user := createTestUser(t, db, models.StateActive)

	limit := 2
	trigger := models.Trigger{
		Name:               "capped",
		TriggerType:        models.TriggerContains,
		TriggerValue:       "hello",
		IsActive:           true,
		MaxTriggersPerUser: &limit,
		Actions:            `[{"type":"send_message","data":{"text":"hi"}}]`,
	}
	require.NoError(t, db.Create(&trigger).Error)

	selector := NewSelector()
	for i := 0; i < 2; i++ {
		actions, err := selector.Select(db, user, Inbound{Text: "hello"})
		require.NoError(t, err)
		require.Len(t, actions, 1)
	}

	// Third activation for the same user is suppressed.
	actions, err := selector.Select(db, user, Inbound{Text: "hello"})
	require.NoError(t, err)
	assert.Empty(t, actions)
}

func TestSelectorUpdatesTriggerStats(t *testing.T) {
	db := setupTestDB(t)
	user := createTestUser(t, db, models.StateActive)

	trigger := models.Trigger{
		Name:         "greeting",
		TriggerType:  models.TriggerExactMatch,
		TriggerValue: "hello",
		IsActive:     true,
		Actions:      `[{"type":"send_message","data":{"text":"hi"}}]`,
	}
	require.NoError(t, db.Create(&trigger).Error)

	_, err := NewSelector().Select(db, user, Inbound{Text: "hello"})
	require.NoError(t, err)

	var reloaded models.Trigger
	require.NoError(t, db.First(&reloaded, "id = ?", trigger.ID).Error)
	assert.Equal(t, 1, reloaded.TotalTriggers)
	assert.NotNil(t, reloaded.LastTriggeredAt)
	assert.EqualValues(t, 1, countEvents(t, db, EventTriggerActivated))
}

func TestWithinWindow(t *testing.T) {
	noon := time.Date(2026, 8, 31, 12, 0, 0, 0, time.Local)
	night := time.Date(2026, 8, 31, 23, 30, 0, 0, time.Local)

	assert.True(t, withinWindow(noon, "09:00", "18:00"))
	assert.False(t, withinWindow(night, "09:00", "18:00"))

	// Window wrapping midnight.
	assert.True(t, withinWindow(night, "22:00", "06:00"))
	assert.False(t, withinWindow(noon, "22:00", "06:00"))
}
