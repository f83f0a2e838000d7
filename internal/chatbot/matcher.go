package chatbot

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/Asyl777/neuroflow-instagramapi/internal/models"
)

// Inbound is one incoming message as seen by the matcher. Text carries the
// raw message body; ButtonPayload is set for payload-originated messages
// (button clicks), Scheduled for schedule-originated ones.
type Inbound struct {
	Text          string
	ButtonPayload string
	Scheduled     bool
}

// Matches decides whether one trigger condition applies to an inbound
// message. It is a pure function with no side effects. A non-nil error marks
// malformed trigger configuration (bad regex, bad number_range value); the
// caller records it as a warning, and the match result is always false in
// that case.
func Matches(triggerType models.TriggerType, triggerValue string, in Inbound, user *models.User) (bool, error) {
	messageLower := strings.ToLower(strings.TrimSpace(in.Text))
	valueLower := strings.ToLower(triggerValue)

	switch triggerType {
	case models.TriggerExactMatch:
		return messageLower == valueLower, nil

	case models.TriggerContains:
		return strings.Contains(messageLower, valueLower), nil

	case models.TriggerStartsWith:
		return strings.HasPrefix(messageLower, valueLower), nil

	case models.TriggerEndsWith:
		return strings.HasSuffix(messageLower, valueLower), nil

	case models.TriggerRegex:
		// Case-insensitive search over the raw, untrimmed message.
		re, err := regexp.Compile("(?i)" + triggerValue)
		if err != nil {
			return false, fmt.Errorf("invalid regex %q: %w", triggerValue, err)
		}
		return re.MatchString(in.Text), nil

	case models.TriggerNumberRange:
		number, err := strconv.ParseFloat(strings.TrimSpace(in.Text), 64)
		if err != nil {
			return false, nil // not a number, simply no match
		}
		var r NumberRangeValue
		if err := json.Unmarshal([]byte(triggerValue), &r); err != nil {
			return false, fmt.Errorf("invalid number_range value %q: %w", triggerValue, err)
		}
		min, max := 0.0, 100.0
		if r.Min != nil {
			min = *r.Min
		}
		if r.Max != nil {
			max = *r.Max
		}
		return min <= number && number <= max, nil

	case models.TriggerUserState:
		return user != nil && string(user.CurrentState) == valueLower, nil

	case models.TriggerUserJoin:
		return user != nil && user.CurrentState == models.StateNew, nil

	case models.TriggerButtonClick:
		// Only payload-originated messages can match.
		return in.ButtonPayload != "" && strings.EqualFold(in.ButtonPayload, triggerValue), nil

	case models.TriggerTimeBased:
		// Only schedule-originated messages can match.
		return in.Scheduled, nil
	}

	return false, nil
}

// MatchesStep applies the same semantics to an inline step trigger. A step
// trigger without a type defaults to contains.
func MatchesStep(st StepTrigger, in Inbound, user *models.User) (bool, error) {
	triggerType := models.TriggerType(st.Type)
	if st.Type == "" {
		triggerType = models.TriggerContains
	}
	return Matches(triggerType, st.Value, in, user)
}
