package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"ecofarm/internal/models"
)

// SensorUpdate is one processed reading, broadcast to the farm room
type SensorUpdate struct {
	SensorID   string  `json:"sensorId"`
	SensorType string  `json:"sensorType"`
	SensorName string  `json:"sensorName"`
	Value      float64 `json:"value"`
	Unit       string  `json:"unit"`
	Timestamp  string  `json:"timestamp"`
}

// decodeReadings turns a reading payload into sensorType -> raw value pairs.
// Three shapes exist on the wire: a bare number on a typed topic,
// {"sensorType":"TEMPERATURE","value":23.5}, and {"temperature":23.5,
// "humidity":60}. Non-numeric entries and the firmware's bookkeeping
// "lastUpdate" key are skipped. topicType is the {type} segment of a
// farm/{mac}/sensors/{type} topic, empty for the generic sensors topic.
func decodeReadings(payload []byte, topicType string) (map[string]float64, error) {
	if topicType != "" {
		var bare float64
		if err := json.Unmarshal(payload, &bare); err == nil {
			return map[string]float64{topicType: bare}, nil
		}
	}

	var single struct {
		SensorType *string  `json:"sensorType"`
		Value      *float64 `json:"value"`
	}
	if err := json.Unmarshal(payload, &single); err != nil {
		return nil, err
	}
	if single.Value != nil {
		switch {
		case single.SensorType != nil:
			return map[string]float64{*single.SensorType: *single.Value}, nil
		case topicType != "":
			return map[string]float64{topicType: *single.Value}, nil
		}
	}

	var fields map[string]interface{}
	if err := json.Unmarshal(payload, &fields); err != nil {
		return nil, err
	}
	readings := make(map[string]float64)
	for key, raw := range fields {
		if key == "lastUpdate" {
			continue
		}
		if v, ok := raw.(float64); ok {
			readings[key] = v
		}
	}
	return readings, nil
}

// handleSensorData processes a reading message for one device. A failure in
// one sensor entry never aborts the siblings in the same message.
func (e *Engine) handleSensorData(ctx context.Context, mac, topicType string, payload []byte) {
	readings, err := decodeReadings(payload, topicType)
	if err != nil {
		log.Printf("ENGINE: Dropping malformed reading payload from %s: %v", mac, err)
		return
	}
	if len(readings) == 0 {
		return
	}

	device, err := e.store.GetDeviceByMAC(ctx, mac)
	if err != nil {
		log.Printf("ENGINE: Unknown device %s, discarding reading", mac)
		return
	}

	now := e.nowFn()
	if err := e.store.TouchDevice(ctx, device.ID, true, now); err != nil {
		log.Printf("ENGINE: Failed to touch device %s: %v", device.ID, err)
	}

	sensors, err := e.store.ListDeviceSensors(ctx, device.ID)
	if err != nil {
		log.Printf("ENGINE: Failed to load sensors for device %s: %v", device.ID, err)
		return
	}

	var updates []SensorUpdate
	for sensorType, raw := range readings {
		processed, err := e.processSensorReading(ctx, device, sensors, sensorType, raw, now)
		if err != nil {
			log.Printf("ENGINE: Reading %s=%v for %s failed: %v", sensorType, raw, mac, err)
			continue
		}
		updates = append(updates, processed...)
	}

	if len(updates) > 0 {
		e.broadcaster.BroadcastSensorData(device.FarmID, map[string]interface{}{
			"deviceId":  device.ID,
			"deviceMac": device.MacAddress,
			"sensors":   updates,
		})
	}
}

// processSensorReading applies one raw value to every configured sensor of
// that type: calibrate, persist, write the time-series point, then run the
// threshold and automation evaluators.
func (e *Engine) processSensorReading(ctx context.Context, device *models.Device, sensors []models.Sensor, sensorType string, raw float64, now time.Time) ([]SensorUpdate, error) {
	wanted := NormalizeSensorType(sensorType)
	var matched []models.Sensor
	for _, s := range sensors {
		if NormalizeSensorType(s.SensorType) == wanted {
			matched = append(matched, s)
		}
	}
	if len(matched) == 0 {
		return nil, fmt.Errorf("sensor type %s not configured for device %s", sensorType, device.MacAddress)
	}

	var updates []SensorUpdate
	for _, sensor := range matched {
		calibrated := raw + sensor.CalibrationOffset

		if err := e.store.UpdateSensorReading(ctx, sensor.ID, calibrated, now); err != nil {
			log.Printf("ENGINE: Failed to store reading for sensor %s: %v", sensor.ID, err)
			continue
		}
		e.cacheLastReading(ctx, sensor.ID, calibrated, now)
		e.ts.WriteSensorData(device.FarmID, device.MacAddress, sensor.SensorType, sensor.ID, calibrated, sensor.Unit, now)

		e.checkThresholds(ctx, device.FarmID, sensor, calibrated)
		e.rules.EvaluateSensorRules(ctx, sensor.ID, calibrated, device.FarmID)

		updates = append(updates, SensorUpdate{
			SensorID:   sensor.ID,
			SensorType: sensor.SensorType,
			SensorName: sensor.SensorName,
			Value:      calibrated,
			Unit:       sensor.Unit,
			Timestamp:  now.UTC().Format(time.RFC3339),
		})
	}
	return updates, nil
}

// statusPayload is the device status wire format. A missing "online" field
// means online. A type of "actuator_state_change" is a state sync pushed by
// the gateway after it actuated locally.
type statusPayload struct {
	Type            string   `json:"type"`
	Online          *bool    `json:"online"`
	IPAddress       *string  `json:"ipAddress"`
	FirmwareVersion *string  `json:"firmwareVersion"`
	Uptime          *float64 `json:"uptime"`

	ActuatorID string `json:"actuatorId"`
	State      string `json:"state"`
	GpioPin    *int   `json:"gpioPin"`
}

// handleDeviceStatus processes a status message for one device
func (e *Engine) handleDeviceStatus(ctx context.Context, mac string, payload []byte) {
	var status statusPayload
	if err := json.Unmarshal(payload, &status); err != nil {
		log.Printf("ENGINE: Dropping malformed status payload from %s: %v", mac, err)
		return
	}

	if status.Type == "actuator_state_change" {
		e.syncActuatorState(ctx, status)
		return
	}

	device, err := e.store.GetDeviceByMAC(ctx, mac)
	if err != nil {
		log.Printf("ENGINE: Unknown device %s, discarding status", mac)
		return
	}

	online := status.Online == nil || *status.Online
	wasOnline := device.IsOnline
	if err := e.store.UpdateDeviceStatus(ctx, device.ID, online, e.nowFn(), status.IPAddress, status.FirmwareVersion); err != nil {
		log.Printf("ENGINE: Failed to update status for device %s: %v", device.ID, err)
		return
	}

	e.broadcaster.BroadcastDeviceStatus(device.FarmID, device.ID, online)
	if wasOnline != online {
		e.notifier.NotifyDeviceStatus(ctx, device.FarmID, device.DeviceName, online)
	}
	log.Printf("ENGINE: Device status: %s - online=%t", mac, online)
}

// syncActuatorState records an actuator transition reported by the device
// itself, so the stored state follows what the hardware actually did.
func (e *Engine) syncActuatorState(ctx context.Context, status statusPayload) {
	actuator, err := e.store.GetActuatorByID(ctx, status.ActuatorID)
	if err != nil {
		log.Printf("ENGINE: State change for unknown actuator %s: %v", status.ActuatorID, err)
		return
	}
	device, err := e.store.GetDeviceByID(ctx, actuator.DeviceID)
	if err != nil {
		log.Printf("ENGINE: Failed to load device %s: %v", actuator.DeviceID, err)
		return
	}

	if err := e.store.UpdateActuatorState(ctx, actuator.ID, status.State, e.nowFn()); err != nil {
		log.Printf("ENGINE: Failed to sync actuator %s: %v", actuator.ID, err)
		return
	}
	if err := e.store.InsertActionLog(ctx, models.ActionLog{
		FarmID:     device.FarmID,
		ActuatorID: actuator.ID,
		Action:     status.State,
		Source:     models.SourceDevice,
	}); err != nil {
		log.Printf("ENGINE: Failed to log device action for %s: %v", actuator.ID, err)
	}

	e.broadcaster.BroadcastActuatorState(device.FarmID, map[string]interface{}{
		"actuatorId": actuator.ID,
		"state":      status.State,
		"deviceId":   actuator.DeviceID,
		"gpioPin":    status.GpioPin,
	})
	log.Printf("ENGINE: Actuator state synced: %s -> %s", actuator.ActuatorName, status.State)
}
