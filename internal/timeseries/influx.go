package timeseries

import (
	"log"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
)

// Writer appends sensor reading points to the time-series store
type Writer interface {
	WriteSensorData(farmID, deviceMac, sensorType, sensorID string, value float64, unit string, at time.Time)
}

// InfluxWriter writes sensor readings to InfluxDB
type InfluxWriter struct {
	client   influxdb2.Client
	writeAPI api.WriteAPI
}

// NewInfluxWriter creates an InfluxDB writer using the non-blocking write API
func NewInfluxWriter(url, token, org, bucket string) *InfluxWriter {
	client := influxdb2.NewClient(url, token)
	writeAPI := client.WriteAPI(org, bucket)

	// Async write errors surface on a channel, not on WritePoint
	go func() {
		for err := range writeAPI.Errors() {
			log.Printf("TIMESERIES: Write error: %v", err)
		}
	}()

	return &InfluxWriter{client: client, writeAPI: writeAPI}
}

// WriteSensorData appends one calibrated reading tagged by farm, device,
// sensor type, sensor id and unit
func (w *InfluxWriter) WriteSensorData(farmID, deviceMac, sensorType, sensorID string, value float64, unit string, at time.Time) {
	p := influxdb2.NewPointWithMeasurement("sensor_reading").
		AddTag("farm_id", farmID).
		AddTag("device_mac", deviceMac).
		AddTag("sensor_type", sensorType).
		AddTag("sensor_id", sensorID).
		AddTag("unit", unit).
		AddField("value", value).
		SetTime(at)
	w.writeAPI.WritePoint(p)
}

// Close flushes pending points and shuts the client down
func (w *InfluxWriter) Close() {
	w.writeAPI.Flush()
	w.client.Close()
}
