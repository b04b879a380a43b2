package engine

import (
	"testing"

	"ecofarm/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func f64(v float64) *float64 { return &v }

func TestEvaluateThreshold(t *testing.T) {
	sensor := models.Sensor{
		SensorName:   "Greenhouse Temp",
		SensorType:   "TEMPERATURE",
		Unit:         "C",
		MinThreshold: f64(10),
		MaxThreshold: f64(35),
	}

	t.Run("NoThresholdsNeverAlerts", func(t *testing.T) {
		bare := models.Sensor{SensorName: "Any", Unit: "C"}
		for _, v := range []float64{-1000, 0, 42.5, 1e9} {
			assert.Nil(t, EvaluateThreshold(bare, v))
		}
	})

	t.Run("ExactlyAtMaxIsInRange", func(t *testing.T) {
		assert.Nil(t, EvaluateThreshold(sensor, 35))
	})

	t.Run("JustAboveMaxIsWarning", func(t *testing.T) {
		breach := EvaluateThreshold(sensor, 35.001)
		require.NotNil(t, breach)
		assert.Equal(t, models.SeverityWarning, breach.Severity)
		assert.Contains(t, breach.Message, "too HIGH")
	})

	t.Run("AtCriticalFactorIsCritical", func(t *testing.T) {
		// 35 * 1.2 = 42
		breach := EvaluateThreshold(sensor, 42)
		require.NotNil(t, breach)
		assert.Equal(t, models.SeverityCritical, breach.Severity)
	})

	t.Run("BelowCriticalFactorIsWarning", func(t *testing.T) {
		breach := EvaluateThreshold(sensor, 40)
		require.NotNil(t, breach)
		assert.Equal(t, models.SeverityWarning, breach.Severity)
	})

	t.Run("ExactlyAtMinIsInRange", func(t *testing.T) {
		assert.Nil(t, EvaluateThreshold(sensor, 10))
	})

	t.Run("BelowMinIsWarning", func(t *testing.T) {
		breach := EvaluateThreshold(sensor, 9.5)
		require.NotNil(t, breach)
		assert.Equal(t, models.SeverityWarning, breach.Severity)
		assert.Contains(t, breach.Message, "too LOW")
	})

	t.Run("AtLowCriticalFactorIsCritical", func(t *testing.T) {
		// 10 * 0.8 = 8
		breach := EvaluateThreshold(sensor, 8)
		require.NotNil(t, breach)
		assert.Equal(t, models.SeverityCritical, breach.Severity)
	})

	t.Run("MaxCheckWinsOverMin", func(t *testing.T) {
		// Inverted band: both checks could match, only the max alert fires.
		odd := models.Sensor{SensorName: "Odd", MinThreshold: f64(50), MaxThreshold: f64(20)}
		breach := EvaluateThreshold(odd, 30)
		require.NotNil(t, breach)
		assert.Contains(t, breach.Message, "too HIGH")
	})
}
