package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"ecofarm/internal/models"
)

// ThresholdBreach describes a reading outside a sensor's configured band
type ThresholdBreach struct {
	Severity string
	Message  string
}

// EvaluateThreshold checks a calibrated value against the sensor's min/max
// thresholds. The max check wins when both are set, so at most one breach is
// reported per reading. A value exactly at a threshold is in range.
func EvaluateThreshold(sensor models.Sensor, value float64) *ThresholdBreach {
	if sensor.MaxThreshold != nil && value > *sensor.MaxThreshold {
		severity := models.SeverityWarning
		if value >= *sensor.MaxThreshold*1.2 {
			severity = models.SeverityCritical
		}
		return &ThresholdBreach{
			Severity: severity,
			Message: fmt.Sprintf("%s is too HIGH: %v%s (threshold: %v%s)",
				sensor.SensorName, value, sensor.Unit, *sensor.MaxThreshold, sensor.Unit),
		}
	}
	if sensor.MinThreshold != nil && value < *sensor.MinThreshold {
		severity := models.SeverityWarning
		if value <= *sensor.MinThreshold*0.8 {
			severity = models.SeverityCritical
		}
		return &ThresholdBreach{
			Severity: severity,
			Message: fmt.Sprintf("%s is too LOW: %v%s (threshold: %v%s)",
				sensor.SensorName, value, sensor.Unit, *sensor.MinThreshold, sensor.Unit),
		}
	}
	return nil
}

// checkThresholds persists and fans out a breach alert. Every failure here is
// logged and swallowed so alerting can never stall the reading pipeline.
func (e *Engine) checkThresholds(ctx context.Context, farmID string, sensor models.Sensor, value float64) {
	breach := EvaluateThreshold(sensor, value)
	if breach == nil {
		return
	}

	sensorData, _ := json.Marshal(map[string]interface{}{
		"sensorId":   sensor.ID,
		"sensorType": sensor.SensorType,
		"value":      value,
		"unit":       sensor.Unit,
	})
	alert := models.Alert{
		FarmID:     farmID,
		AlertType:  "THRESHOLD",
		Severity:   breach.Severity,
		Title:      fmt.Sprintf("%s Alert", sensor.SensorType),
		Message:    breach.Message,
		SensorData: sensorData,
	}
	if err := e.store.InsertAlert(ctx, alert); err != nil {
		log.Printf("ENGINE: Failed to persist alert for sensor %s: %v", sensor.ID, err)
		return
	}

	e.broadcaster.BroadcastAlert(farmID, map[string]interface{}{
		"severity": breach.Severity,
		"title":    alert.Title,
		"message":  breach.Message,
	})
	e.notifier.NotifySensorAlert(ctx, farmID, sensor.SensorName, value, breach.Message)
	log.Printf("ENGINE: Alert created: %s", breach.Message)
}
