package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"ecofarm/internal/models"
)

// Notifier fans a notification out to every user with access to a farm
type Notifier interface {
	NotifyFarmUsers(ctx context.Context, farmID, notifType, title, message string, data json.RawMessage)
}

// Store is the database slice the notification service needs
type Store interface {
	GetFarmUserIDs(ctx context.Context, farmID string) ([]string, error)
	InsertNotifications(ctx context.Context, notifications []models.Notification) error
}

// Service creates notification rows for farm owners and active team members
type Service struct {
	store Store
}

// NewService creates a notification service
func NewService(store Store) *Service {
	return &Service{store: store}
}

// NotifyFarmUsers writes one notification row per farm user. Failures are
// logged and swallowed so notification problems never block the caller.
func (s *Service) NotifyFarmUsers(ctx context.Context, farmID, notifType, title, message string, data json.RawMessage) {
	userIDs, err := s.store.GetFarmUserIDs(ctx, farmID)
	if err != nil {
		log.Printf("NOTIFY: Failed to resolve users for farm %s: %v", farmID, err)
		return
	}
	if len(userIDs) == 0 {
		return
	}

	notifications := make([]models.Notification, 0, len(userIDs))
	for _, userID := range userIDs {
		notifications = append(notifications, models.Notification{
			UserID:  userID,
			FarmID:  farmID,
			Type:    notifType,
			Title:   title,
			Message: message,
			Data:    data,
		})
	}
	if err := s.store.InsertNotifications(ctx, notifications); err != nil {
		log.Printf("NOTIFY: Failed to insert notifications for farm %s: %v", farmID, err)
	}
}

// NotifySensorAlert notifies farm users about a threshold breach
func (s *Service) NotifySensorAlert(ctx context.Context, farmID, sensorName string, value float64, message string) {
	title := fmt.Sprintf("%s Alert", sensorName)
	s.NotifyFarmUsers(ctx, farmID, "ALERT", title, message, nil)
}

// NotifyDeviceStatus notifies farm users about a device going on/offline
func (s *Service) NotifyDeviceStatus(ctx context.Context, farmID, deviceName string, online bool) {
	state, status := "Offline", "disconnected"
	if online {
		state, status = "Online", "connected"
	}
	title := fmt.Sprintf("%s %s", deviceName, state)
	message := fmt.Sprintf("%s is now %s", deviceName, status)
	s.NotifyFarmUsers(ctx, farmID, "DEVICE_STATUS", title, message, nil)
}

// NotifyAutomationTriggered notifies farm users about an automation action
func (s *Service) NotifyAutomationTriggered(ctx context.Context, farmID, ruleName, actuatorName, action string) {
	title := fmt.Sprintf("Automation: %s", ruleName)
	message := fmt.Sprintf("%s turned %s by automation rule", actuatorName, action)
	s.NotifyFarmUsers(ctx, farmID, "AUTOMATION", title, message, nil)
}

// NotifyScheduleExecuted notifies farm users about a schedule execution
func (s *Service) NotifyScheduleExecuted(ctx context.Context, farmID, scheduleName, actuatorName, action string) {
	title := fmt.Sprintf("Schedule: %s", scheduleName)
	message := fmt.Sprintf("%s turned %s by schedule", actuatorName, action)
	s.NotifyFarmUsers(ctx, farmID, "SCHEDULE", title, message, nil)
}
