package taskqueue

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

	"github.com/hibiken/asynq"
)

// TypeActuatorAutoOff is the deferred OFF issued after a duration-bound ON
// schedule. Tasks live in Redis, so pending auto-offs survive a restart.
const TypeActuatorAutoOff = "actuator:auto_off"

// AutoOffPayload identifies the schedule whose actuator gets switched off
type AutoOffPayload struct {
	ScheduleID string `json:"schedule_id"`
}

// Client enqueues deferred tasks
type Client struct {
	client *asynq.Client
}

// NewClient creates a task queue client
func NewClient(redisAddr string) *Client {
	return &Client{client: asynq.NewClient(asynq.RedisClientOpt{Addr: redisAddr})}
}

// Close closes the underlying asynq client
func (c *Client) Close() {
	c.client.Close()
}

// EnqueueAutoOff schedules the OFF command for a duration-bound schedule
func (c *Client) EnqueueAutoOff(scheduleID string, delay time.Duration) error {
	payload, err := json.Marshal(AutoOffPayload{ScheduleID: scheduleID})
	if err != nil {
		return err
	}
	task := asynq.NewTask(TypeActuatorAutoOff, payload)
	info, err := c.client.Enqueue(task, asynq.ProcessIn(delay), asynq.MaxRetry(3), asynq.Timeout(30*time.Second))
	if err != nil {
		return err
	}
	log.Printf("TASKQUEUE: Enqueued auto OFF task %s for schedule %s in %s", info.ID, scheduleID, delay)
	return nil
}

// Store is the database slice the auto-off handler needs
type Store interface {
	GetScheduleByID(ctx context.Context, id string) (*models.Schedule, error)
	GetActuatorByID(ctx context.Context, id string) (*models.Actuator, error)
	GetDeviceByID(ctx context.Context, id string) (*models.Device, error)
	UpdateActuatorState(ctx context.Context, id, state string, at time.Time) error
	InsertActionLog(ctx context.Context, l models.ActionLog) error
}

// CommandSender publishes actuator commands to devices
type CommandSender interface {
	SendActuatorCommand(mac, actuatorID, command string, gpioPin *int) error
}

// Handler processes deferred tasks
type Handler struct {
	store       Store
	dispatcher  CommandSender
	broadcaster realtime.Broadcaster
	nowFn       func() time.Time
}

// NewHandler creates a task handler
func NewHandler(store Store, dispatcher CommandSender, broadcaster realtime.Broadcaster) *Handler {
	return &Handler{store: store, dispatcher: dispatcher, broadcaster: broadcaster, nowFn: time.Now}
}

// HandleAutoOff turns the schedule's actuator off after its duration elapsed.
// An actuator that was already switched off in the meantime is a no-op.
func (h *Handler) HandleAutoOff(ctx context.Context, t *asynq.Task) error {
	var payload AutoOffPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("bad auto off payload: %w", err)
	}

	schedule, err := h.store.GetScheduleByID(ctx, payload.ScheduleID)
	if err != nil {
		return fmt.Errorf("load schedule %s: %w", payload.ScheduleID, err)
	}
	actuator, err := h.store.GetActuatorByID(ctx, schedule.ActuatorID)
	if err != nil {
		return fmt.Errorf("load actuator %s: %w", schedule.ActuatorID, err)
	}

	if actuator.CurrentState == models.StateOff {
		log.Printf("TASKQUEUE: Actuator %s already OFF, auto OFF is a no-op", actuator.ActuatorName)
		return nil
	}

	now := h.nowFn()
	if err := h.store.UpdateActuatorState(ctx, actuator.ID, models.StateOff, now); err != nil {
		return fmt.Errorf("update actuator: %w", err)
	}

	value := fmt.Sprintf("Auto OFF after %d minutes", derefInt(schedule.Duration))
	if err := h.store.InsertActionLog(ctx, models.ActionLog{
		FarmID:     schedule.FarmID,
		ActuatorID: actuator.ID,
		Action:     models.StateOff,
		Value:      &value,
		Source:     models.SourceScheduleAuto,
		UserID:     schedule.CreatedByID,
	}); err != nil {
		log.Printf("TASKQUEUE: Failed to log auto OFF for %s: %v", actuator.ID, err)
	}

	device, err := h.store.GetDeviceByID(ctx, actuator.DeviceID)
	if err != nil {
		return fmt.Errorf("load device: %w", err)
	}
	if err := h.dispatcher.SendActuatorCommand(device.MacAddress, actuator.ID, models.StateOff, actuator.GpioPin); err != nil {
		if errors.Is(err, dispatch.ErrNotConnected) {
			log.Printf("TASKQUEUE: Auto OFF for %s not sent, session down; state recorded", actuator.ID)
		} else {
			log.Printf("TASKQUEUE: Auto OFF command for %s failed: %v", actuator.ID, err)
		}
	}

	h.broadcaster.BroadcastActuatorState(schedule.FarmID, map[string]interface{}{
		"actuatorId": actuator.ID,
		"state":      models.StateOff,
		"deviceId":   actuator.DeviceID,
	})
	log.Printf("TASKQUEUE: Auto OFF executed for schedule %s (%s)", schedule.ID, actuator.ActuatorName)
	return nil
}

func derefInt(v *int) int {
	if v == nil {
		return 0
	}
	return *v
}
