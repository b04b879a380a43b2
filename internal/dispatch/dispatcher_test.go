package dispatch

import (
	"encoding/json"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeToken struct{ err error }

func (t *fakeToken) Wait() bool                     { return true }
func (t *fakeToken) WaitTimeout(time.Duration) bool { return true }
func (t *fakeToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}
func (t *fakeToken) Error() error { return t.err }

type published struct {
	Topic    string
	QoS      byte
	Retained bool
	Payload  []byte
}

type fakeSession struct {
	connected  bool
	publishErr error
	messages   []published
}

func (s *fakeSession) IsConnected() bool { return s.connected }

func (s *fakeSession) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	s.messages = append(s.messages, published{
		Topic: topic, QoS: qos, Retained: retained, Payload: payload.([]byte),
	})
	return &fakeToken{err: s.publishErr}
}

func TestSendActuatorCommand(t *testing.T) {
	t.Run("PublishesToCommandTopic", func(t *testing.T) {
		session := &fakeSession{connected: true}
		d := NewDispatcher(session)
		d.nowFn = func() time.Time { return time.Date(2025, 6, 4, 7, 0, 0, 0, time.UTC) }
		pin := 17

		err := d.SendActuatorCommand("AA:BB:CC:DD:EE:FF", "act-1", "ON", &pin)

		require.NoError(t, err)
		require.Len(t, session.messages, 1)
		msg := session.messages[0]
		assert.Equal(t, "farm/AA:BB:CC:DD:EE:FF/actuators/command", msg.Topic)
		assert.Equal(t, byte(1), msg.QoS, "at-least-once delivery")
		assert.False(t, msg.Retained)

		var payload CommandPayload
		require.NoError(t, json.Unmarshal(msg.Payload, &payload))
		assert.Equal(t, "act-1", payload.ActuatorID)
		assert.Equal(t, "ON", payload.Command)
		require.NotNil(t, payload.GpioPin)
		assert.Equal(t, 17, *payload.GpioPin)
		assert.Equal(t, "2025-06-04T07:00:00Z", payload.Timestamp)
	})

	t.Run("NotConnected", func(t *testing.T) {
		session := &fakeSession{connected: false}
		d := NewDispatcher(session)

		err := d.SendActuatorCommand("AA:BB:CC:DD:EE:FF", "act-1", "ON", nil)

		assert.ErrorIs(t, err, ErrNotConnected)
		assert.Empty(t, session.messages, "nothing published while disconnected")
	})

	t.Run("PublishErrorSurfaces", func(t *testing.T) {
		session := &fakeSession{connected: true, publishErr: assert.AnError}
		d := NewDispatcher(session)

		err := d.SendActuatorCommand("AA:BB:CC:DD:EE:FF", "act-1", "OFF", nil)

		assert.ErrorIs(t, err, assert.AnError)
	})
}

func TestSendConfigUpdate(t *testing.T) {
	t.Run("ForwardsConfigVerbatim", func(t *testing.T) {
		session := &fakeSession{connected: true}
		d := NewDispatcher(session)
		config := json.RawMessage(`{"reportInterval": 30}`)

		err := d.SendConfigUpdate("AA:BB:CC:DD:EE:FF", config)

		require.NoError(t, err)
		require.Len(t, session.messages, 1)
		assert.Equal(t, "farm/AA:BB:CC:DD:EE:FF/config", session.messages[0].Topic)
		assert.JSONEq(t, `{"reportInterval": 30}`, string(session.messages[0].Payload))
	})

	t.Run("NotConnected", func(t *testing.T) {
		d := NewDispatcher(&fakeSession{connected: false})
		err := d.SendConfigUpdate("AA:BB:CC:DD:EE:FF", json.RawMessage(`{}`))
		assert.ErrorIs(t, err, ErrNotConnected)
	})
}
