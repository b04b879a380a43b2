package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"ecofarm/internal/dispatch"
	"ecofarm/internal/models"
	"ecofarm/internal/realtime"

	"github.com/robfig/cron/v3"
)

// Store is the database slice the schedule executor needs
type Store interface {
	ListDueSchedules(ctx context.Context, hhmm string) ([]models.Schedule, error)
	ClaimScheduleRun(ctx context.Context, id string, now, next time.Time) (bool, error)
	GetActuatorByID(ctx context.Context, id string) (*models.Actuator, error)
	GetDeviceByID(ctx context.Context, id string) (*models.Device, error)
	UpdateActuatorState(ctx context.Context, id, state string, at time.Time) error
	InsertActionLog(ctx context.Context, l models.ActionLog) error
}

// CommandSender publishes actuator commands to devices
type CommandSender interface {
	SendActuatorCommand(mac, actuatorID, command string, gpioPin *int) error
}

// AutoOffQueue arms the deferred OFF for duration-bound ON schedules
type AutoOffQueue interface {
	EnqueueAutoOff(scheduleID string, delay time.Duration) error
}

// Notifier tells farm users a schedule executed
type Notifier interface {
	NotifyScheduleExecuted(ctx context.Context, farmID, scheduleName, actuatorName, action string)
}

// Scheduler runs the once-per-minute schedule sweep
type Scheduler struct {
	cron        *cron.Cron
	store       Store
	dispatcher  CommandSender
	autoOff     AutoOffQueue
	notifier    Notifier
	broadcaster realtime.Broadcaster
	nowFn       func() time.Time

	sweepMu sync.Mutex
}

// NewScheduler creates a schedule executor
func NewScheduler(store Store, dispatcher CommandSender, autoOff AutoOffQueue,
	notifier Notifier, broadcaster realtime.Broadcaster) *Scheduler {
	return &Scheduler{
		cron:        cron.New(),
		store:       store,
		dispatcher:  dispatcher,
		autoOff:     autoOff,
		notifier:    notifier,
		broadcaster: broadcaster,
		nowFn:       time.Now,
	}
}

// Start begins the minute tick
func (s *Scheduler) Start() error {
	if _, err := s.cron.AddFunc("* * * * *", s.tick); err != nil {
		return err
	}
	s.cron.Start()
	log.Println("SCHEDULER: Started, checking schedules every minute")
	return nil
}

// Stop stops the tick and waits for a running sweep to finish
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	log.Println("SCHEDULER: Stopped")
}

// tick runs one sweep. The mutex makes the tick non-reentrant: if the
// previous sweep is still running, this minute is skipped rather than
// overlapped.
func (s *Scheduler) tick() {
	if !s.sweepMu.TryLock() {
		log.Println("SCHEDULER: Previous sweep still running, skipping tick")
		return
	}
	defer s.sweepMu.Unlock()
	s.Sweep(context.Background(), s.nowFn())
}

// Sweep finds and executes every schedule due at the given instant. A failure
// in one schedule never aborts the others.
func (s *Scheduler) Sweep(ctx context.Context, now time.Time) {
	hhmm := now.Format("15:04")
	schedules, err := s.store.ListDueSchedules(ctx, hhmm)
	if err != nil {
		log.Printf("SCHEDULER: Failed to load schedules for %s: %v", hhmm, err)
		return
	}

	today := int(now.Weekday())
	for _, schedule := range schedules {
		if !containsDay(schedule.DaysOfWeek, today) {
			continue
		}
		if RanThisMinute(schedule.LastRunAt, now) {
			continue
		}
		if err := s.executeSchedule(ctx, schedule, now); err != nil {
			log.Printf("SCHEDULER: Schedule %s (%s) failed: %v", schedule.ID, schedule.Name, err)
		}
	}
}

func (s *Scheduler) executeSchedule(ctx context.Context, schedule models.Schedule, now time.Time) error {
	next, err := NextRunAfter(now, schedule.Time, schedule.DaysOfWeek)
	if err != nil {
		return fmt.Errorf("compute next run: %w", err)
	}

	// The conditional update is both the bookkeeping write and the guard
	// against a second sweep executing the same minute.
	claimed, err := s.store.ClaimScheduleRun(ctx, schedule.ID, now, next)
	if err != nil {
		return fmt.Errorf("claim schedule run: %w", err)
	}
	if !claimed {
		return nil
	}

	log.Printf("SCHEDULER: Executing schedule %s: %s", schedule.Name, schedule.Action)
	if err := s.controlActuator(ctx, schedule, schedule.Action, models.SourceSchedule, now); err != nil {
		return err
	}

	if schedule.Action == models.StateOn && schedule.Duration != nil && *schedule.Duration > 0 {
		delay := time.Duration(*schedule.Duration) * time.Minute
		if err := s.autoOff.EnqueueAutoOff(schedule.ID, delay); err != nil {
			log.Printf("SCHEDULER: Failed to arm auto OFF for schedule %s: %v", schedule.ID, err)
		} else {
			log.Printf("SCHEDULER: Auto OFF armed for schedule %s in %d minutes", schedule.ID, *schedule.Duration)
		}
	}
	return nil
}

// controlActuator drives the actuator for a schedule execution. An actuator
// already in the target state is left alone: no audit entry, no wire traffic.
func (s *Scheduler) controlActuator(ctx context.Context, schedule models.Schedule, action, source string, now time.Time) error {
	actuator, err := s.store.GetActuatorByID(ctx, schedule.ActuatorID)
	if err != nil {
		return fmt.Errorf("load actuator: %w", err)
	}
	if actuator.CurrentState == action {
		log.Printf("SCHEDULER: Actuator %s already %s, skipping", actuator.ActuatorName, action)
		return nil
	}

	if err := s.store.UpdateActuatorState(ctx, actuator.ID, action, now); err != nil {
		return fmt.Errorf("update actuator: %w", err)
	}
	if err := s.store.InsertActionLog(ctx, models.ActionLog{
		FarmID:     schedule.FarmID,
		ActuatorID: actuator.ID,
		Action:     action,
		Source:     source,
		UserID:     schedule.CreatedByID,
	}); err != nil {
		log.Printf("SCHEDULER: Failed to log action for schedule %s: %v", schedule.ID, err)
	}

	device, err := s.store.GetDeviceByID(ctx, actuator.DeviceID)
	if err != nil {
		return fmt.Errorf("load device: %w", err)
	}
	if err := s.dispatcher.SendActuatorCommand(device.MacAddress, actuator.ID, action, actuator.GpioPin); err != nil {
		if errors.Is(err, dispatch.ErrNotConnected) {
			log.Printf("SCHEDULER: Command for %s not sent, session down; state recorded", actuator.ID)
		} else {
			log.Printf("SCHEDULER: Command for %s failed: %v", actuator.ID, err)
		}
	}

	s.broadcaster.BroadcastActuatorState(schedule.FarmID, map[string]interface{}{
		"actuatorId": actuator.ID,
		"state":      action,
		"deviceId":   actuator.DeviceID,
	})
	s.notifier.NotifyScheduleExecuted(ctx, schedule.FarmID, schedule.Name, actuator.ActuatorName, action)
	return nil
}

func containsDay(days []int, day int) bool {
	for _, d := range days {
		if d == day {
			return true
		}
	}
	return false
}
