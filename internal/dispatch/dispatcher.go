package dispatch

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// ErrNotConnected is returned when the MQTT session is down. Callers treat it
// as non-fatal: the intended state change is still recorded and the device
// resyncs on its next status report.
var ErrNotConnected = errors.New("mqtt session not connected")

// Session is the slice of the MQTT client the dispatcher needs
type Session interface {
	IsConnected() bool
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

// CommandPayload is the wire format published to the device command topic
type CommandPayload struct {
	ActuatorID string `json:"actuatorId"`
	Command    string `json:"command"`
	GpioPin    *int   `json:"gpioPin"`
	Timestamp  string `json:"timestamp"`
}

// Dispatcher publishes actuator commands and config pushes to devices.
// Delivery is at-least-once on the broker side (QoS 1); there is no device
// acknowledgment channel.
type Dispatcher struct {
	session Session
	nowFn   func() time.Time
}

// NewDispatcher creates a dispatcher bound to an MQTT session
func NewDispatcher(session Session) *Dispatcher {
	return &Dispatcher{session: session, nowFn: time.Now}
}

// SendActuatorCommand publishes an ON/OFF command to farm/{mac}/actuators/command
func (d *Dispatcher) SendActuatorCommand(mac, actuatorID, command string, gpioPin *int) error {
	if !d.session.IsConnected() {
		return ErrNotConnected
	}

	payload, err := json.Marshal(CommandPayload{
		ActuatorID: actuatorID,
		Command:    command,
		GpioPin:    gpioPin,
		Timestamp:  d.nowFn().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return err
	}

	topic := fmt.Sprintf("farm/%s/actuators/command", mac)
	log.Printf("DISPATCH: Publishing command to %s: %s", topic, payload)
	token := d.session.Publish(topic, 1, false, payload)
	token.Wait()
	return token.Error()
}

// SendConfigUpdate forwards an opaque config object to farm/{mac}/config
func (d *Dispatcher) SendConfigUpdate(mac string, config json.RawMessage) error {
	if !d.session.IsConnected() {
		return ErrNotConnected
	}

	topic := fmt.Sprintf("farm/%s/config", mac)
	log.Printf("DISPATCH: Publishing config to %s", topic)
	token := d.session.Publish(topic, 1, false, []byte(config))
	token.Wait()
	return token.Error()
}
