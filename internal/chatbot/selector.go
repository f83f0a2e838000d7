package chatbot

import (
	"encoding/json"
	"log"
	"time"

	"github.com/Asyl777/neuroflow-instagramapi/internal/models"
	"gorm.io/gorm"
)

// Selector evaluates the global trigger rules against one inbound message.
type Selector struct {
	now func() time.Time
}

func NewSelector() *Selector {
	return &Selector{now: time.Now}
}

// Select returns the ordered action list produced by all matching active
// triggers. Triggers are evaluated priority ascending (ties broken by
// creation order) and every matching trigger fires: layered behaviors are a
// deliberate design choice, there is no early exit.
func (s *Selector) Select(tx *gorm.DB, user *models.User, in Inbound) ([]Action, error) {
	var triggers []models.Trigger
	if err := tx.Where("is_active = ?", true).
		Order("priority ASC, created_at ASC").
		Find(&triggers).Error; err != nil {
		return nil, err
	}

	var actions []Action
	for i := range triggers {
		trigger := &triggers[i]

		matched, err := Matches(trigger.TriggerType, trigger.TriggerValue, in, user)
		if err != nil {
			// Malformed trigger configuration is never fatal: record a
			// warning and move on.
			log.Printf("Trigger %s (%s) match error: %v", trigger.Name, trigger.ID, err)
			logWarnEvent(tx, EventTriggerMatchError, EventRefs{UserID: &user.ID, TriggerID: &trigger.ID},
				map[string]any{"trigger_name": trigger.Name, "trigger_value": trigger.TriggerValue},
				err.Error())
			continue
		}
		if !matched {
			continue
		}
		if !s.limitsAllow(tx, trigger, user) {
			continue
		}

		triggerActions, err := ParseActions(trigger.Actions)
		if err != nil {
			log.Printf("Trigger %s has unparsable actions: %v", trigger.ID, err)
			logWarnEvent(tx, EventTriggerMatchError, EventRefs{UserID: &user.ID, TriggerID: &trigger.ID},
				map[string]any{"trigger_name": trigger.Name}, err.Error())
			continue
		}

		for _, a := range triggerActions {
			a.TriggerID = trigger.ID
			a.TriggerName = trigger.Name
			actions = append(actions, a)
		}

		now := s.now()
		if err := tx.Model(trigger).Updates(map[string]any{
			"total_triggers":    gorm.Expr("total_triggers + 1"),
			"last_triggered_at": now,
		}).Error; err != nil {
			return nil, err
		}

		logEvent(tx, EventTriggerActivated, EventRefs{UserID: &user.ID, TriggerID: &trigger.ID}, map[string]any{
			"trigger_id":   trigger.ID,
			"trigger_name": trigger.Name,
			"user_id":      user.ID,
			"message":      in.Text,
		})
	}

	return actions, nil
}

// ActiveHoursValue is the trigger active_hours schema: a daily window in
// server-local "HH:MM" times. The window may wrap midnight.
type ActiveHoursValue struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// limitsAllow enforces a trigger's activation limits: active-hours window,
// cooldown measured from last_triggered_at, and the per-user activation cap
// counted from trigger_activated events.
func (s *Selector) limitsAllow(tx *gorm.DB, trigger *models.Trigger, user *models.User) bool {
	now := s.now()

	if trigger.ActiveHours != "" && trigger.ActiveHours != "{}" {
		var hours ActiveHoursValue
		if err := json.Unmarshal([]byte(trigger.ActiveHours), &hours); err == nil &&
			hours.Start != "" && hours.End != "" {
			if !withinWindow(now, hours.Start, hours.End) {
				return false
			}
		}
	}

	if trigger.CooldownSeconds > 0 && trigger.LastTriggeredAt != nil {
		elapsed := now.Sub(*trigger.LastTriggeredAt)
		if elapsed < time.Duration(trigger.CooldownSeconds)*time.Second {
			return false
		}
	}

	if trigger.MaxTriggersPerUser != nil {
		var count int64
		if err := tx.Model(&models.Event{}).
			Where("event_type = ? AND trigger_id = ? AND user_id = ?",
				EventTriggerActivated, trigger.ID, user.ID).
			Count(&count).Error; err != nil {
			log.Printf("Trigger %s activation count failed: %v", trigger.ID, err)
			return true // fail open, consistent with historical behavior
		}
		if count >= int64(*trigger.MaxTriggersPerUser) {
			return false
		}
	}

	return true
}

func withinWindow(now time.Time, start, end string) bool {
	startT, err1 := time.Parse("15:04", start)
	endT, err2 := time.Parse("15:04", end)
	if err1 != nil || err2 != nil {
		return true
	}
	minutes := now.Hour()*60 + now.Minute()
	startM := startT.Hour()*60 + startT.Minute()
	endM := endT.Hour()*60 + endT.Minute()
	if startM <= endM {
		return minutes >= startM && minutes <= endM
	}
	// Window wraps midnight, e.g. 22:00-06:00.
	return minutes >= startM || minutes <= endM
}
