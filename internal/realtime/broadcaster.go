package realtime

import "log"

// Broadcaster pushes engine events to the farm's realtime room. The actual
// push layer lives outside this service; implementations here only have to
// satisfy the call sites.
type Broadcaster interface {
	BroadcastSensorData(farmID string, payload interface{})
	BroadcastActuatorState(farmID string, payload interface{})
	BroadcastDeviceStatus(farmID, deviceID string, online bool)
	BroadcastAlert(farmID string, payload interface{})
}

// LogBroadcaster is the default Broadcaster used when no push layer is wired
type LogBroadcaster struct{}

func (LogBroadcaster) BroadcastSensorData(farmID string, payload interface{}) {
	log.Printf("REALTIME: sensor_data farm=%s %+v", farmID, payload)
}

func (LogBroadcaster) BroadcastActuatorState(farmID string, payload interface{}) {
	log.Printf("REALTIME: actuator_state farm=%s %+v", farmID, payload)
}

func (LogBroadcaster) BroadcastDeviceStatus(farmID, deviceID string, online bool) {
	log.Printf("REALTIME: device_status farm=%s device=%s online=%t", farmID, deviceID, online)
}

func (LogBroadcaster) BroadcastAlert(farmID string, payload interface{}) {
	log.Printf("REALTIME: alert farm=%s %+v", farmID, payload)
}
