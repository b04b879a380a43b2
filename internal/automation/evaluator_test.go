package automation

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"ecofarm/internal/dispatch"
	"ecofarm/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	rules     []models.AutomationRule
	rulesErr  error
	actuators map[string]*models.Actuator
	devices   map[string]*models.Device

	claims         []string
	claimResult    bool
	actuatorStates map[string]string
	actionLogs     []models.ActionLog
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		actuators:      map[string]*models.Actuator{},
		devices:        map[string]*models.Device{},
		claimResult:    true,
		actuatorStates: map[string]string{},
	}
}

func (f *fakeStore) GetSensorRules(_ context.Context, _ string) ([]models.AutomationRule, error) {
	return f.rules, f.rulesErr
}

func (f *fakeStore) GetActuatorByID(_ context.Context, id string) (*models.Actuator, error) {
	if a, ok := f.actuators[id]; ok {
		return a, nil
	}
	return nil, errors.New("no rows in result set")
}

func (f *fakeStore) GetDeviceByID(_ context.Context, id string) (*models.Device, error) {
	if d, ok := f.devices[id]; ok {
		return d, nil
	}
	return nil, errors.New("no rows in result set")
}

func (f *fakeStore) UpdateActuatorState(_ context.Context, id, state string, _ time.Time) error {
	f.actuatorStates[id] = state
	return nil
}

func (f *fakeStore) ClaimRuleRun(_ context.Context, id string, _ time.Time, _ time.Duration) (bool, error) {
	f.claims = append(f.claims, id)
	return f.claimResult, nil
}

func (f *fakeStore) InsertActionLog(_ context.Context, l models.ActionLog) error {
	f.actionLogs = append(f.actionLogs, l)
	return nil
}

type sentCommand struct {
	Mac        string
	ActuatorID string
	Command    string
}

type fakeSender struct {
	sent []sentCommand
	err  error
}

func (f *fakeSender) SendActuatorCommand(mac, actuatorID, command string, _ *int) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, sentCommand{Mac: mac, ActuatorID: actuatorID, Command: command})
	return nil
}

type fakeNotifier struct {
	triggered []string
}

func (f *fakeNotifier) NotifyAutomationTriggered(_ context.Context, _, ruleName, _, _ string) {
	f.triggered = append(f.triggered, ruleName)
}

type fakeBroadcaster struct{ actuators int }

func (f *fakeBroadcaster) BroadcastSensorData(string, interface{}) {}
func (f *fakeBroadcaster) BroadcastActuatorState(string, interface{}) {
	f.actuators++
}
func (f *fakeBroadcaster) BroadcastDeviceStatus(string, string, bool) {}
func (f *fakeBroadcaster) BroadcastAlert(string, interface{})         {}

func trigger(sensorID, condition string, value float64, cooldown int) json.RawMessage {
	raw, _ := json.Marshal(models.SensorTrigger{
		SensorID: sensorID, Condition: condition, Value: value, CooldownMinutes: cooldown,
	})
	return raw
}

func actionState(state string) json.RawMessage {
	raw, _ := json.Marshal(models.RuleAction{State: state})
	return raw
}

func seedActuator(store *fakeStore, state string) {
	store.actuators["act-1"] = &models.Actuator{
		ID: "act-1", DeviceID: "dev-1", ActuatorName: "Pump", CurrentState: state,
	}
	store.devices["dev-1"] = &models.Device{
		ID: "dev-1", FarmID: "farm-1", MacAddress: "AA:BB:CC:DD:EE:FF",
	}
}

func testEvaluator(store *fakeStore) (*Evaluator, *fakeSender, *fakeNotifier, time.Time) {
	sender := &fakeSender{}
	notifier := &fakeNotifier{}
	ev := NewEvaluator(store, sender, notifier, &fakeBroadcaster{})
	now := time.Date(2025, 6, 4, 7, 0, 0, 0, time.UTC)
	ev.nowFn = func() time.Time { return now }
	return ev, sender, notifier, now
}

func TestShouldTrigger(t *testing.T) {
	assert.True(t, ShouldTrigger("GREATER_THAN", 36, 35))
	assert.False(t, ShouldTrigger("GREATER_THAN", 35, 35))
	assert.True(t, ShouldTrigger("LESS_THAN", 34, 35))
	assert.False(t, ShouldTrigger("LESS_THAN", 35, 35))
	assert.True(t, ShouldTrigger("GREATER_THAN_OR_EQUAL", 35, 35))
	assert.True(t, ShouldTrigger("LESS_THAN_OR_EQUAL", 35, 35))
	assert.True(t, ShouldTrigger("EQUAL_TO", 35, 35))
	assert.False(t, ShouldTrigger("EQUAL_TO", 35.0000001, 35))
	assert.False(t, ShouldTrigger("SOMETHING_ELSE", 1, 1))
}

func TestEvaluateSensorRules(t *testing.T) {
	ctx := context.Background()

	rule := func(lastRun *time.Time) models.AutomationRule {
		return models.AutomationRule{
			ID: "rule-1", FarmID: "farm-1", ActuatorID: "act-1", Name: "Cool down",
			TriggerType: "SENSOR_VALUE", IsEnabled: true,
			TriggerConfig: trigger("s-temp", "GREATER_THAN", 35, 5),
			ActionConfig:  actionState(models.StateOn),
			LastRunAt:     lastRun,
		}
	}

	t.Run("TriggersAndDispatches", func(t *testing.T) {
		store := newFakeStore()
		store.rules = []models.AutomationRule{rule(nil)}
		seedActuator(store, models.StateOff)
		ev, sender, notifier, _ := testEvaluator(store)

		ev.EvaluateSensorRules(ctx, "s-temp", 40, "farm-1")

		assert.Equal(t, models.StateOn, store.actuatorStates["act-1"])
		assert.Equal(t, []string{"rule-1"}, store.claims)
		require.Len(t, store.actionLogs, 1)
		assert.Equal(t, models.SourceAutomation, store.actionLogs[0].Source)
		assert.Equal(t, models.StateOn, store.actionLogs[0].Action)
		require.Len(t, sender.sent, 1)
		assert.Equal(t, sentCommand{Mac: "AA:BB:CC:DD:EE:FF", ActuatorID: "act-1", Command: models.StateOn}, sender.sent[0])
		assert.Equal(t, []string{"Cool down"}, notifier.triggered)
	})

	t.Run("OtherSensorIgnored", func(t *testing.T) {
		store := newFakeStore()
		store.rules = []models.AutomationRule{rule(nil)}
		seedActuator(store, models.StateOff)
		ev, sender, _, _ := testEvaluator(store)

		ev.EvaluateSensorRules(ctx, "s-other", 40, "farm-1")

		assert.Empty(t, sender.sent)
		assert.Empty(t, store.claims)
	})

	t.Run("ConditionNotMet", func(t *testing.T) {
		store := newFakeStore()
		store.rules = []models.AutomationRule{rule(nil)}
		seedActuator(store, models.StateOff)
		ev, sender, _, _ := testEvaluator(store)

		ev.EvaluateSensorRules(ctx, "s-temp", 35, "farm-1")

		assert.Empty(t, sender.sent)
	})

	t.Run("CooldownBlocksUntilExactlyElapsed", func(t *testing.T) {
		store := newFakeStore()
		seedActuator(store, models.StateOff)
		ev, sender, _, now := testEvaluator(store)

		justRan := now.Add(-5*time.Minute + time.Second)
		store.rules = []models.AutomationRule{rule(&justRan)}
		ev.EvaluateSensorRules(ctx, "s-temp", 40, "farm-1")
		assert.Empty(t, sender.sent, "still inside cooldown window")

		exactly := now.Add(-5 * time.Minute)
		store.rules = []models.AutomationRule{rule(&exactly)}
		ev.EvaluateSensorRules(ctx, "s-temp", 40, "farm-1")
		assert.Len(t, sender.sent, 1, "eligible again at exactly T + cooldown")
	})

	t.Run("AlreadyInDesiredStateIsNoOp", func(t *testing.T) {
		store := newFakeStore()
		store.rules = []models.AutomationRule{rule(nil)}
		seedActuator(store, models.StateOn)
		ev, sender, _, _ := testEvaluator(store)

		ev.EvaluateSensorRules(ctx, "s-temp", 40, "farm-1")

		assert.Empty(t, store.actionLogs, "no audit entry for a no-op")
		assert.Empty(t, store.claims, "cooldown window not restarted")
		assert.Empty(t, sender.sent)
	})

	t.Run("LostClaimBacksOff", func(t *testing.T) {
		store := newFakeStore()
		store.rules = []models.AutomationRule{rule(nil)}
		store.claimResult = false
		seedActuator(store, models.StateOff)
		ev, sender, _, _ := testEvaluator(store)

		ev.EvaluateSensorRules(ctx, "s-temp", 40, "farm-1")

		assert.Empty(t, store.actuatorStates)
		assert.Empty(t, sender.sent)
	})

	t.Run("NotConnectedStillRecordsState", func(t *testing.T) {
		store := newFakeStore()
		store.rules = []models.AutomationRule{rule(nil)}
		seedActuator(store, models.StateOff)
		ev, sender, _, _ := testEvaluator(store)
		sender.err = dispatch.ErrNotConnected

		ev.EvaluateSensorRules(ctx, "s-temp", 40, "farm-1")

		assert.Equal(t, models.StateOn, store.actuatorStates["act-1"])
		assert.Len(t, store.actionLogs, 1)
	})

	t.Run("BadRuleDoesNotStopSiblings", func(t *testing.T) {
		store := newFakeStore()
		broken := models.AutomationRule{
			ID: "rule-0", FarmID: "farm-1", ActuatorID: "act-1", Name: "Broken",
			TriggerConfig: json.RawMessage(`{]`),
		}
		store.rules = []models.AutomationRule{broken, rule(nil)}
		seedActuator(store, models.StateOff)
		ev, sender, _, _ := testEvaluator(store)

		ev.EvaluateSensorRules(ctx, "s-temp", 40, "farm-1")

		assert.Len(t, sender.sent, 1)
	})

	t.Run("DefaultActionIsOn", func(t *testing.T) {
		store := newFakeStore()
		r := rule(nil)
		r.ActionConfig = nil
		store.rules = []models.AutomationRule{r}
		seedActuator(store, models.StateOff)
		ev, _, _, _ := testEvaluator(store)

		ev.EvaluateSensorRules(ctx, "s-temp", 40, "farm-1")

		assert.Equal(t, models.StateOn, store.actuatorStates["act-1"])
	})
}
