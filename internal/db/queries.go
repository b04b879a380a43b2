package db

import (
	"context"
	"encoding/json"
	"time"

	"ecofarm/internal/models"
)

// GetDeviceByMAC fetches a device by its normalized MAC address
func (d *DB) GetDeviceByMAC(ctx context.Context, mac string) (*models.Device, error) {
	var dev models.Device
	err := d.pool.QueryRow(ctx,
		`SELECT id, farm_id, device_name, mac_address, ip_address, firmware_version, is_online, last_seen_at
		 FROM devices WHERE mac_address = $1`, mac).
		Scan(&dev.ID, &dev.FarmID, &dev.DeviceName, &dev.MacAddress, &dev.IPAddress,
			&dev.FirmwareVersion, &dev.IsOnline, &dev.LastSeenAt)
	if err != nil {
		return nil, err
	}
	return &dev, nil
}

// ListDeviceSensors fetches the active sensors configured for a device
func (d *DB) ListDeviceSensors(ctx context.Context, deviceID string) ([]models.Sensor, error) {
	rows, err := d.pool.Query(ctx,
		`SELECT id, device_id, sensor_name, sensor_type, unit, calibration_offset,
		        min_threshold, max_threshold, last_reading, last_reading_at, is_active
		 FROM sensors WHERE device_id = $1 AND is_active = true`, deviceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sensors []models.Sensor
	for rows.Next() {
		var s models.Sensor
		if err := rows.Scan(&s.ID, &s.DeviceID, &s.SensorName, &s.SensorType, &s.Unit,
			&s.CalibrationOffset, &s.MinThreshold, &s.MaxThreshold, &s.LastReading,
			&s.LastReadingAt, &s.IsActive); err != nil {
			return nil, err
		}
		sensors = append(sensors, s)
	}
	return sensors, rows.Err()
}

// TouchDevice marks a device online and stamps last_seen_at
func (d *DB) TouchDevice(ctx context.Context, id string, online bool, at time.Time) error {
	_, err := d.pool.Exec(ctx,
		"UPDATE devices SET is_online = $1, last_seen_at = $2 WHERE id = $3", online, at, id)
	return err
}

// UpdateDeviceStatus updates the status fields reported by the device itself
func (d *DB) UpdateDeviceStatus(ctx context.Context, id string, online bool, at time.Time, ip, firmware *string) error {
	_, err := d.pool.Exec(ctx,
		`UPDATE devices SET is_online = $1, last_seen_at = $2, ip_address = $3,
		        firmware_version = COALESCE($4, firmware_version)
		 WHERE id = $5`, online, at, ip, firmware, id)
	return err
}

// UpdateSensorReading stamps a sensor's last calibrated reading
func (d *DB) UpdateSensorReading(ctx context.Context, id string, value float64, at time.Time) error {
	_, err := d.pool.Exec(ctx,
		"UPDATE sensors SET last_reading = $1, last_reading_at = $2 WHERE id = $3", value, at, id)
	return err
}

// GetSensorRules fetches enabled SENSOR_VALUE rules for a farm
func (d *DB) GetSensorRules(ctx context.Context, farmID string) ([]models.AutomationRule, error) {
	rows, err := d.pool.Query(ctx,
		`SELECT id, farm_id, actuator_id, name, trigger_type, trigger_config, action_config, is_enabled, last_run_at
		 FROM automation_rules
		 WHERE farm_id = $1 AND trigger_type = 'SENSOR_VALUE' AND is_enabled = true`, farmID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rules []models.AutomationRule
	for rows.Next() {
		var r models.AutomationRule
		if err := rows.Scan(&r.ID, &r.FarmID, &r.ActuatorID, &r.Name, &r.TriggerType,
			&r.TriggerConfig, &r.ActionConfig, &r.IsEnabled, &r.LastRunAt); err != nil {
			return nil, err
		}
		rules = append(rules, r)
	}
	return rules, rows.Err()
}

// GetActuatorByID fetches an actuator
func (d *DB) GetActuatorByID(ctx context.Context, id string) (*models.Actuator, error) {
	var a models.Actuator
	err := d.pool.QueryRow(ctx,
		`SELECT id, device_id, actuator_name, actuator_type, current_state, gpio_pin, is_active, last_action_at
		 FROM actuators WHERE id = $1`, id).
		Scan(&a.ID, &a.DeviceID, &a.ActuatorName, &a.ActuatorType, &a.CurrentState,
			&a.GpioPin, &a.IsActive, &a.LastActionAt)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// GetDeviceByID fetches a device
func (d *DB) GetDeviceByID(ctx context.Context, id string) (*models.Device, error) {
	var dev models.Device
	err := d.pool.QueryRow(ctx,
		`SELECT id, farm_id, device_name, mac_address, ip_address, firmware_version, is_online, last_seen_at
		 FROM devices WHERE id = $1`, id).
		Scan(&dev.ID, &dev.FarmID, &dev.DeviceName, &dev.MacAddress, &dev.IPAddress,
			&dev.FirmwareVersion, &dev.IsOnline, &dev.LastSeenAt)
	if err != nil {
		return nil, err
	}
	return &dev, nil
}

// UpdateActuatorState sets an actuator's current state and stamps last_action_at
func (d *DB) UpdateActuatorState(ctx context.Context, id, state string, at time.Time) error {
	_, err := d.pool.Exec(ctx,
		"UPDATE actuators SET current_state = $1, last_action_at = $2 WHERE id = $3", state, at, id)
	return err
}

// ClaimRuleRun stamps a rule's last_run_at iff its cooldown has elapsed.
// Returns false when another evaluation already claimed this window.
func (d *DB) ClaimRuleRun(ctx context.Context, id string, now time.Time, cooldown time.Duration) (bool, error) {
	tag, err := d.pool.Exec(ctx,
		`UPDATE automation_rules SET last_run_at = $2
		 WHERE id = $1 AND (last_run_at IS NULL OR last_run_at <= $3)`,
		id, now, now.Add(-cooldown))
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// ListDueSchedules fetches enabled schedules stored for the given HH:MM time
func (d *DB) ListDueSchedules(ctx context.Context, hhmm string) ([]models.Schedule, error) {
	rows, err := d.pool.Query(ctx,
		`SELECT id, farm_id, actuator_id, name, time, days_of_week, action, duration,
		        is_enabled, last_run_at, next_run_at, created_by_id
		 FROM schedules WHERE is_enabled = true AND time = $1`, hhmm)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var schedules []models.Schedule
	for rows.Next() {
		var s models.Schedule
		if err := rows.Scan(&s.ID, &s.FarmID, &s.ActuatorID, &s.Name, &s.Time, &s.DaysOfWeek,
			&s.Action, &s.Duration, &s.IsEnabled, &s.LastRunAt, &s.NextRunAt, &s.CreatedByID); err != nil {
			return nil, err
		}
		schedules = append(schedules, s)
	}
	return schedules, rows.Err()
}

// GetScheduleByID fetches a schedule
func (d *DB) GetScheduleByID(ctx context.Context, id string) (*models.Schedule, error) {
	var s models.Schedule
	err := d.pool.QueryRow(ctx,
		`SELECT id, farm_id, actuator_id, name, time, days_of_week, action, duration,
		        is_enabled, last_run_at, next_run_at, created_by_id
		 FROM schedules WHERE id = $1`, id).
		Scan(&s.ID, &s.FarmID, &s.ActuatorID, &s.Name, &s.Time, &s.DaysOfWeek,
			&s.Action, &s.Duration, &s.IsEnabled, &s.LastRunAt, &s.NextRunAt, &s.CreatedByID)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// ClaimScheduleRun stamps last_run_at/next_run_at iff the schedule has not
// already run in the current minute. Returns false when another sweep won.
func (d *DB) ClaimScheduleRun(ctx context.Context, id string, now, next time.Time) (bool, error) {
	tag, err := d.pool.Exec(ctx,
		`UPDATE schedules SET last_run_at = $2, next_run_at = $3
		 WHERE id = $1 AND (last_run_at IS NULL OR last_run_at < date_trunc('minute', $2::timestamptz))`,
		id, now, next)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// InsertAlert persists an immutable alert record
func (d *DB) InsertAlert(ctx context.Context, a models.Alert) error {
	_, err := d.pool.Exec(ctx,
		`INSERT INTO alerts (farm_id, alert_type, severity, title, message, sensor_data)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		a.FarmID, a.AlertType, a.Severity, a.Title, a.Message, a.SensorData)
	return err
}

// InsertActionLog appends an actuator audit record
func (d *DB) InsertActionLog(ctx context.Context, l models.ActionLog) error {
	_, err := d.pool.Exec(ctx,
		`INSERT INTO action_logs (farm_id, actuator_id, action, value, source, user_id)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		l.FarmID, l.ActuatorID, l.Action, l.Value, l.Source, l.UserID)
	return err
}

// GetFarmUserIDs returns the farm owner plus active team member user ids
func (d *DB) GetFarmUserIDs(ctx context.Context, farmID string) ([]string, error) {
	rows, err := d.pool.Query(ctx,
		`SELECT user_id FROM farms WHERE id = $1
		 UNION
		 SELECT user_id FROM farm_users WHERE farm_id = $1 AND is_active = true`, farmID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// InsertNotifications creates notification rows for a set of users
func (d *DB) InsertNotifications(ctx context.Context, notifications []models.Notification) error {
	for _, n := range notifications {
		data := n.Data
		if data == nil {
			data = json.RawMessage("{}")
		}
		_, err := d.pool.Exec(ctx,
			`INSERT INTO notifications (user_id, farm_id, type, title, message, data)
			 VALUES ($1, $2, $3, $4, $5, $6)`,
			n.UserID, n.FarmID, n.Type, n.Title, n.Message, data)
		if err != nil {
			return err
		}
	}
	return nil
}
