package chatbot

import (
	"errors"
	"log"
	"time"

	"github.com/Asyl777/neuroflow-instagramapi/internal/models"
	"gorm.io/gorm"
)

// Stepper advances a user's position inside a multi-step scenario.
type Stepper struct {
	now func() time.Time
}

func NewStepper() *Stepper {
	return &Stepper{now: time.Now}
}

// Advance evaluates the user's current scenario step against the inbound
// message and returns the step's actions when a step trigger matches.
// Unlike global triggers, step triggers are branching choices: the first
// match wins. No match means no transition and no actions.
func (st *Stepper) Advance(tx *gorm.DB, user *models.User, in Inbound) ([]Action, error) {
	if user.CurrentScenarioID == nil {
		return nil, nil
	}

	var scenario models.Scenario
	err := tx.Preload("Steps", func(db *gorm.DB) *gorm.DB {
		return db.Order("step_order ASC")
	}).First(&scenario, "id = ?", *user.CurrentScenarioID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		// The scenario was deleted while the user still referenced it.
		// Self-healing: reset the pointer, not fatal.
		log.Printf("User %s references missing scenario %s, resetting pointer", user.ID, *user.CurrentScenarioID)
		user.CurrentScenarioID = nil
		user.CurrentStep = 0
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var currentStep *models.Step
	for i := range scenario.Steps {
		if scenario.Steps[i].StepOrder == user.CurrentStep {
			currentStep = &scenario.Steps[i]
			break
		}
	}
	if currentStep == nil {
		// Defined degenerate case: a dangling step number acts as if
		// nothing matched.
		return nil, nil
	}

	stepTriggers, err := ParseStepTriggers(currentStep.Triggers)
	if err != nil {
		logWarnEvent(tx, EventTriggerMatchError, EventRefs{UserID: &user.ID, ScenarioID: &scenario.ID},
			map[string]any{"step_id": currentStep.ID, "step_order": currentStep.StepOrder}, err.Error())
		return nil, nil
	}

	for _, trigger := range stepTriggers {
		matched, err := MatchesStep(trigger, in, user)
		if err != nil {
			logWarnEvent(tx, EventTriggerMatchError, EventRefs{UserID: &user.ID, ScenarioID: &scenario.ID},
				map[string]any{"step_id": currentStep.ID, "trigger_value": trigger.Value}, err.Error())
			continue
		}
		if !matched {
			continue
		}

		actions, err := ParseActions(currentStep.Actions)
		if err != nil {
			logWarnEvent(tx, EventTriggerMatchError, EventRefs{UserID: &user.ID, ScenarioID: &scenario.ID},
				map[string]any{"step_id": currentStep.ID}, err.Error())
			actions = nil
		}

		if err := tx.Model(currentStep).Updates(map[string]any{
			"total_visits":  gorm.Expr("total_visits + 1"),
			"success_count": gorm.Expr("success_count + 1"),
		}).Error; err != nil {
			return nil, err
		}

		st.recordStepInSession(tx, user, &scenario, currentStep)

		if currentStep.SuccessNextStep != nil {
			user.CurrentStep = *currentStep.SuccessNextStep
		} else {
			// Terminal step: the scenario is completed.
			if err := st.completeScenario(tx, user, &scenario); err != nil {
				return nil, err
			}
		}

		logEvent(tx, EventScenarioStepCompleted, EventRefs{UserID: &user.ID, ScenarioID: &scenario.ID}, map[string]any{
			"scenario_id": scenario.ID,
			"step_id":     currentStep.ID,
			"user_id":     user.ID,
			"step_order":  currentStep.StepOrder,
		})

		return actions, nil
	}

	return nil, nil
}

// recordStepInSession updates the active traversal record for this
// user/scenario pairing. A missing session is tolerated.
func (st *Stepper) recordStepInSession(tx *gorm.DB, user *models.User, scenario *models.Scenario, step *models.Step) {
	var session models.ScenarioSession
	err := tx.Where("user_id = ? AND scenario_id = ? AND status = ?", user.ID, scenario.ID, "active").
		First(&session).Error
	if err != nil {
		return
	}

	now := st.now()
	session.AppendStepHistory(map[string]any{
		"step_order":   step.StepOrder,
		"step_id":      step.ID,
		"completed_at": now.Format(time.RFC3339),
	})
	session.TotalStepsCompleted++
	session.LastActivityAt = now
	if step.SuccessNextStep != nil {
		session.CurrentStep = *step.SuccessNextStep
	}
	if scenario.TotalSteps > 0 {
		session.CompletionRate = float64(session.TotalStepsCompleted) / float64(scenario.TotalSteps)
	}

	if err := tx.Save(&session).Error; err != nil {
		log.Printf("Failed to update scenario session %s: %v", session.ID, err)
	}
}

// completeScenario is a terminal transition: the user leaves the scenario
// and is not re-entered without an explicit go_to_step action.
func (st *Stepper) completeScenario(tx *gorm.DB, user *models.User, scenario *models.Scenario) error {
	user.CurrentScenarioID = nil
	user.CurrentStep = 0
	user.ScenarioStartedAt = nil
	user.CurrentState = models.StateActive
	user.TotalScenariosCompleted++

	if err := tx.Model(scenario).
		Update("total_completions", gorm.Expr("total_completions + 1")).Error; err != nil {
		return err
	}

	now := st.now()
	if err := tx.Model(&models.ScenarioSession{}).
		Where("user_id = ? AND scenario_id = ? AND status = ?", user.ID, scenario.ID, "active").
		Updates(map[string]any{
			"status":           "completed",
			"completed_at":     now,
			"completion_rate":  1.0,
			"last_activity_at": now,
		}).Error; err != nil {
		log.Printf("Failed to close scenario session for user %s: %v", user.ID, err)
	}

	logEvent(tx, EventScenarioCompleted, EventRefs{UserID: &user.ID, ScenarioID: &scenario.ID}, map[string]any{
		"user_id":     user.ID,
		"scenario_id": scenario.ID,
	})

	return nil
}
