package models

import (
	"encoding/json"
	"time"
)

// Actuator states and action log sources.
const (
	StateOn  = "ON"
	StateOff = "OFF"

	SourceManual       = "MANUAL"
	SourceAutomation   = "AUTOMATION"
	SourceSchedule     = "SCHEDULE"
	SourceScheduleAuto = "SCHEDULE_AUTO"
	SourceDevice       = "DEVICE"
	SourceSystem       = "SYSTEM"

	SeverityWarning  = "WARNING"
	SeverityCritical = "CRITICAL"
)

// Device represents a field gateway identified by its MAC address
type Device struct {
	ID              string     `json:"id"`
	FarmID          string     `json:"farm_id"`
	DeviceName      string     `json:"device_name"`
	MacAddress      string     `json:"mac_address"`
	IPAddress       *string    `json:"ip_address"`
	FirmwareVersion *string    `json:"firmware_version"`
	IsOnline        bool       `json:"is_online"`
	LastSeenAt      *time.Time `json:"last_seen_at"`
}

// Sensor belongs to exactly one device
type Sensor struct {
	ID                string     `json:"id"`
	DeviceID          string     `json:"device_id"`
	SensorName        string     `json:"sensor_name"`
	SensorType        string     `json:"sensor_type"`
	Unit              string     `json:"unit"`
	CalibrationOffset float64    `json:"calibration_offset"`
	MinThreshold      *float64   `json:"min_threshold"`
	MaxThreshold      *float64   `json:"max_threshold"`
	LastReading       *float64   `json:"last_reading"`
	LastReadingAt     *time.Time `json:"last_reading_at"`
	IsActive          bool       `json:"is_active"`
}

// Actuator belongs to exactly one device
type Actuator struct {
	ID           string     `json:"id"`
	DeviceID     string     `json:"device_id"`
	ActuatorName string     `json:"actuator_name"`
	ActuatorType string     `json:"actuator_type"`
	CurrentState string     `json:"current_state"`
	GpioPin      *int       `json:"gpio_pin"`
	IsActive     bool       `json:"is_active"`
	LastActionAt *time.Time `json:"last_action_at"`
}

// SensorTrigger is the trigger_config of a SENSOR_VALUE rule
type SensorTrigger struct {
	SensorID        string  `json:"sensorId"`
	Condition       string  `json:"condition"` // GREATER_THAN, LESS_THAN, ...
	Value           float64 `json:"value"`
	CooldownMinutes int     `json:"cooldownMinutes"`
}

// RuleAction is the action_config of a rule
type RuleAction struct {
	State string `json:"state"` // ON or OFF
}

// AutomationRule represents an automation rule model
type AutomationRule struct {
	ID            string          `json:"id"`
	FarmID        string          `json:"farm_id"`
	ActuatorID    string          `json:"actuator_id"`
	Name          string          `json:"name"`
	TriggerType   string          `json:"trigger_type"` // SENSOR_VALUE or TIMER
	TriggerConfig json.RawMessage `json:"trigger_config"`
	ActionConfig  json.RawMessage `json:"action_config"`
	IsEnabled     bool            `json:"is_enabled"`
	LastRunAt     *time.Time      `json:"last_run_at"`
}

// Schedule represents a time-of-day schedule model
type Schedule struct {
	ID          string     `json:"id"`
	FarmID      string     `json:"farm_id"`
	ActuatorID  string     `json:"actuator_id"`
	Name        string     `json:"name"`
	Time        string     `json:"time"` // "HH:MM"
	DaysOfWeek  []int      `json:"days_of_week"`
	Action      string     `json:"action"`
	Duration    *int       `json:"duration"` // minutes, ON schedules only
	IsEnabled   bool       `json:"is_enabled"`
	LastRunAt   *time.Time `json:"last_run_at"`
	NextRunAt   *time.Time `json:"next_run_at"`
	CreatedByID *string    `json:"created_by_id"`
}

// Alert is an immutable threshold alert record
type Alert struct {
	ID         string          `json:"id"`
	FarmID     string          `json:"farm_id"`
	AlertType  string          `json:"alert_type"`
	Severity   string          `json:"severity"`
	Title      string          `json:"title"`
	Message    string          `json:"message"`
	SensorData json.RawMessage `json:"sensor_data"`
}

// ActionLog is an append-only audit record of an actuator state change
type ActionLog struct {
	FarmID     string  `json:"farm_id"`
	ActuatorID string  `json:"actuator_id"`
	Action     string  `json:"action"`
	Value      *string `json:"value"`
	Source     string  `json:"source"`
	UserID     *string `json:"user_id"`
}

// Notification is a per-user notification row
type Notification struct {
	UserID  string          `json:"user_id"`
	FarmID  string          `json:"farm_id"`
	Type    string          `json:"type"`
	Title   string          `json:"title"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}
