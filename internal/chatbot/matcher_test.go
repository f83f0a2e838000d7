package chatbot

import (
	"testing"

	"github.com/Asyl777/neuroflow-instagramapi/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMatchesExactMatch(t *testing.T) {
	user := &models.User{CurrentState: models.StateActive}

	matched, err := Matches(models.TriggerExactMatch, "hello", Inbound{Text: "  HeLLo  "}, user)
	require.NoError(t, err)
	assert.True(t, matched, "exact match should ignore case and surrounding whitespace")

	matched, err = Matches(models.TriggerExactMatch, "hello", Inbound{Text: "hello there"}, user)
	require.NoError(t, err)
	assert.False(t, matched)
}

func TestMatchesContains(t *testing.T) {
	matched, err := Matches(models.TriggerContains, "price", Inbound{Text: "what is the PRICE of this?"}, nil)
	require.NoError(t, err)
	assert.True(t, matched)

	matched, err = Matches(models.TriggerContains, "price", Inbound{Text: "how much?"}, nil)
	require.NoError(t, err)
	assert.False(t, matched)
}

func TestMatchesStartsEndsWith(t *testing.T) {
	matched, err := Matches(models.TriggerStartsWith, "hi", Inbound{Text: "Hi everyone"}, nil)
	require.NoError(t, err)
	assert.True(t, matched)

	matched, err = Matches(models.TriggerEndsWith, "bye", Inbound{Text: "ok BYE"}, nil)
	require.NoError(t, err)
	assert.True(t, matched)

	matched, err = Matches(models.TriggerStartsWith, "hi", Inbound{Text: "oh hi"}, nil)
	require.NoError(t, err)
	assert.False(t, matched)
}

func TestMatchesRegex(t *testing.T) {
	matched, err := Matches(models.TriggerRegex, `order\s+\d+`, Inbound{Text: "my ORDER 42 is late"}, nil)
	require.NoError(t, err)
	assert.True(t, matched)

	matched, err = Matches(models.TriggerRegex, `order\s+\d+`, Inbound{Text: "my order is late"}, nil)
	require.NoError(t, err)
	assert.False(t, matched)
}

func TestMatchesInvalidRegexIsError(t *testing.T) {
	matched, err := Matches(models.TriggerRegex, `[unclosed`, Inbound{Text: "anything"}, nil)
	require.Error(t, err)
	assert.False(t, matched)
}

func TestMatchesNumberRange(t *testing.T) {
	value := `{"min": 1, "max": 10}`

	matched, err := Matches(models.TriggerNumberRange, value, Inbound{Text: " 5 "}, nil)
	require.NoError(t, err)
	assert.True(t, matched)

	matched, err = Matches(models.TriggerNumberRange, value, Inbound{Text: "15"}, nil)
	require.NoError(t, err)
	assert.False(t, matched)

	// Non-numeric text is simply not a match, never an error.
	matched, err = Matches(models.TriggerNumberRange, value, Inbound{Text: "abc"}, nil)
	require.NoError(t, err)
	assert.False(t, matched)
}

func TestMatchesNumberRangeDefaults(t *testing.T) {
	// Missing bounds default to 0..100.
	matched, err := Matches(models.TriggerNumberRange, `{}`, Inbound{Text: "50"}, nil)
	require.NoError(t, err)
	assert.True(t, matched)

	matched, err = Matches(models.TriggerNumberRange, `{}`, Inbound{Text: "101"}, nil)
	require.NoError(t, err)
	assert.False(t, matched)
}

func TestMatchesNumberRangeBadValue(t *testing.T) {
	matched, err := Matches(models.TriggerNumberRange, `not json`, Inbound{Text: "5"}, nil)
	require.Error(t, err)
	assert.False(t, matched)
}

func TestMatchesUserState(t *testing.T) {
	user := &models.User{CurrentState: models.StateVIP}

	matched, err := Matches(models.TriggerUserState, "vip", Inbound{Text: "whatever"}, user)
	require.NoError(t, err)
	assert.True(t, matched)

	matched, err = Matches(models.TriggerUserState, "blocked", Inbound{Text: "whatever"}, user)
	require.NoError(t, err)
	assert.False(t, matched)
}

func TestMatchesUserJoin(t *testing.T) {
	matched, err := Matches(models.TriggerUserJoin, "", Inbound{Text: "hi"}, &models.User{CurrentState: models.StateNew})
	require.NoError(t, err)
	assert.True(t, matched)

	matched, err = Matches(models.TriggerUserJoin, "", Inbound{Text: "hi"}, &models.User{CurrentState: models.StateActive})
	require.NoError(t, err)
	assert.False(t, matched)
}

func TestMatchesButtonClick(t *testing.T) {
	matched, err := Matches(models.TriggerButtonClick, "BUY_NOW", Inbound{Text: "Buy", ButtonPayload: "buy_now"}, nil)
	require.NoError(t, err)
	assert.True(t, matched)

	// A plain text message never matches a button trigger, even if the
	// text equals the payload value.
	matched, err = Matches(models.TriggerButtonClick, "BUY_NOW", Inbound{Text: "BUY_NOW"}, nil)
	require.NoError(t, err)
	assert.False(t, matched)
}

func TestMatchesTimeBased(t *testing.T) {
	matched, err := Matches(models.TriggerTimeBased, "", Inbound{Text: "tick", Scheduled: true}, nil)
	require.NoError(t, err)
	assert.True(t, matched)

	matched, err = Matches(models.TriggerTimeBased, "", Inbound{Text: "tick"}, nil)
	require.NoError(t, err)
	assert.False(t, matched)
}

func TestMatchesStepDefaultsToContains(t *testing.T) {
	matched, err := MatchesStep(StepTrigger{Value: "yes"}, Inbound{Text: "well YES of course"}, nil)
	require.NoError(t, err)
	assert.True(t, matched)
}
