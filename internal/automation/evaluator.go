package automation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"ecofarm/internal/dispatch"
	"ecofarm/internal/models"
	"ecofarm/internal/realtime"
)

// DefaultCooldown applies when a rule's trigger config has no cooldownMinutes
const DefaultCooldown = 5 * time.Minute

// Store is the database slice the evaluator needs
type Store interface {
	GetSensorRules(ctx context.Context, farmID string) ([]models.AutomationRule, error)
	GetActuatorByID(ctx context.Context, id string) (*models.Actuator, error)
	GetDeviceByID(ctx context.Context, id string) (*models.Device, error)
	UpdateActuatorState(ctx context.Context, id, state string, at time.Time) error
	ClaimRuleRun(ctx context.Context, id string, now time.Time, cooldown time.Duration) (bool, error)
	InsertActionLog(ctx context.Context, l models.ActionLog) error
}

// CommandSender publishes actuator commands to devices
type CommandSender interface {
	SendActuatorCommand(mac, actuatorID, command string, gpioPin *int) error
}

// Notifier tells farm users an automation rule fired
type Notifier interface {
	NotifyAutomationTriggered(ctx context.Context, farmID, ruleName, actuatorName, action string)
}

// Evaluator evaluates SENSOR_VALUE automation rules against incoming readings
type Evaluator struct {
	store       Store
	dispatcher  CommandSender
	notifier    Notifier
	broadcaster realtime.Broadcaster
	nowFn       func() time.Time
}

// NewEvaluator creates a rule evaluator
func NewEvaluator(store Store, dispatcher CommandSender, notifier Notifier, broadcaster realtime.Broadcaster) *Evaluator {
	return &Evaluator{
		store:       store,
		dispatcher:  dispatcher,
		notifier:    notifier,
		broadcaster: broadcaster,
		nowFn:       time.Now,
	}
}

// EvaluateSensorRules runs every enabled SENSOR_VALUE rule of the farm that is
// bound to the given sensor. A failure in one rule never stops the others.
func (ev *Evaluator) EvaluateSensorRules(ctx context.Context, sensorID string, value float64, farmID string) {
	rules, err := ev.store.GetSensorRules(ctx, farmID)
	if err != nil {
		log.Printf("AUTOMATION: Failed to load rules for farm %s: %v", farmID, err)
		return
	}

	for _, rule := range rules {
		if err := ev.evaluateRule(ctx, rule, sensorID, value); err != nil {
			log.Printf("AUTOMATION: Rule %s (%s) failed: %v", rule.ID, rule.Name, err)
		}
	}
}

func (ev *Evaluator) evaluateRule(ctx context.Context, rule models.AutomationRule, sensorID string, value float64) error {
	var trigger models.SensorTrigger
	if err := json.Unmarshal(rule.TriggerConfig, &trigger); err != nil {
		return fmt.Errorf("bad trigger config: %w", err)
	}
	if trigger.SensorID != sensorID {
		return nil
	}

	if !ShouldTrigger(trigger.Condition, value, trigger.Value) {
		return nil
	}

	cooldown := DefaultCooldown
	if trigger.CooldownMinutes > 0 {
		cooldown = time.Duration(trigger.CooldownMinutes) * time.Minute
	}

	now := ev.nowFn()
	if rule.LastRunAt != nil && now.Sub(*rule.LastRunAt) < cooldown {
		return nil
	}

	return ev.executeAction(ctx, rule, cooldown, now)
}

// executeAction resolves the desired state and drives the actuator. An
// actuator already in the desired state is a no-op: no audit entry, and the
// rule's cooldown window is not restarted.
func (ev *Evaluator) executeAction(ctx context.Context, rule models.AutomationRule, cooldown time.Duration, now time.Time) error {
	desired := models.StateOn
	var action models.RuleAction
	if len(rule.ActionConfig) > 0 {
		if err := json.Unmarshal(rule.ActionConfig, &action); err != nil {
			return fmt.Errorf("bad action config: %w", err)
		}
		if action.State != "" {
			desired = action.State
		}
	}

	actuator, err := ev.store.GetActuatorByID(ctx, rule.ActuatorID)
	if err != nil {
		return fmt.Errorf("load actuator: %w", err)
	}
	if actuator.CurrentState == desired {
		return nil
	}

	// The conditional update is the single-writer gate: a concurrent
	// evaluation of the same rule loses the claim and backs off.
	claimed, err := ev.store.ClaimRuleRun(ctx, rule.ID, now, cooldown)
	if err != nil {
		return fmt.Errorf("claim rule run: %w", err)
	}
	if !claimed {
		return nil
	}

	if err := ev.store.UpdateActuatorState(ctx, actuator.ID, desired, now); err != nil {
		return fmt.Errorf("update actuator: %w", err)
	}

	ruleValue := fmt.Sprintf("Rule: %s", rule.Name)
	if err := ev.store.InsertActionLog(ctx, models.ActionLog{
		FarmID:     rule.FarmID,
		ActuatorID: actuator.ID,
		Action:     desired,
		Value:      &ruleValue,
		Source:     models.SourceAutomation,
	}); err != nil {
		log.Printf("AUTOMATION: Failed to log action for rule %s: %v", rule.ID, err)
	}

	log.Printf("AUTOMATION: %s -> %s = %s", rule.Name, actuator.ActuatorName, desired)

	device, err := ev.store.GetDeviceByID(ctx, actuator.DeviceID)
	if err != nil {
		return fmt.Errorf("load device: %w", err)
	}
	if err := ev.dispatcher.SendActuatorCommand(device.MacAddress, actuator.ID, desired, actuator.GpioPin); err != nil {
		if errors.Is(err, dispatch.ErrNotConnected) {
			log.Printf("AUTOMATION: Command for %s not sent, session down; state recorded", actuator.ID)
		} else {
			log.Printf("AUTOMATION: Command for %s failed: %v", actuator.ID, err)
		}
	}

	ev.broadcaster.BroadcastActuatorState(rule.FarmID, map[string]interface{}{
		"actuatorId": actuator.ID,
		"state":      desired,
		"deviceId":   actuator.DeviceID,
	})
	ev.notifier.NotifyAutomationTriggered(ctx, rule.FarmID, rule.Name, actuator.ActuatorName, desired)
	return nil
}

// ShouldTrigger evaluates a rule comparison operator. EQUAL_TO is exact
// floating-point equality; non-integral thresholds are unlikely to ever match.
func ShouldTrigger(condition string, value, threshold float64) bool {
	switch condition {
	case "GREATER_THAN":
		return value > threshold
	case "LESS_THAN":
		return value < threshold
	case "GREATER_THAN_OR_EQUAL":
		return value >= threshold
	case "LESS_THAN_OR_EQUAL":
		return value <= threshold
	case "EQUAL_TO":
		return value == threshold
	}
	log.Printf("AUTOMATION: Unknown condition %q", condition)
	return false
}
