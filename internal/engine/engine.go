package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"ecofarm/internal/models"
	"ecofarm/internal/realtime"
	"ecofarm/internal/timeseries"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/redis/go-redis/v9"
)

const (
	// queueDepth bounds the inbound dispatch buffer; the broker's own flow
	// control is the only protection beyond it.
	queueDepth = 256
	workers    = 4
)

// Store is the database slice the ingestion engine needs
type Store interface {
	GetDeviceByMAC(ctx context.Context, mac string) (*models.Device, error)
	GetDeviceByID(ctx context.Context, id string) (*models.Device, error)
	ListDeviceSensors(ctx context.Context, deviceID string) ([]models.Sensor, error)
	TouchDevice(ctx context.Context, id string, online bool, at time.Time) error
	UpdateDeviceStatus(ctx context.Context, id string, online bool, at time.Time, ip, firmware *string) error
	UpdateSensorReading(ctx context.Context, id string, value float64, at time.Time) error
	GetActuatorByID(ctx context.Context, id string) (*models.Actuator, error)
	UpdateActuatorState(ctx context.Context, id, state string, at time.Time) error
	InsertActionLog(ctx context.Context, l models.ActionLog) error
	InsertAlert(ctx context.Context, a models.Alert) error
}

// RuleEvaluator runs automation rules for a sensor update
type RuleEvaluator interface {
	EvaluateSensorRules(ctx context.Context, sensorID string, value float64, farmID string)
}

// Notifier is the notification fan-out the engine triggers
type Notifier interface {
	NotifySensorAlert(ctx context.Context, farmID, sensorName string, value float64, message string)
	NotifyDeviceStatus(ctx context.Context, farmID, deviceName string, online bool)
}

// inboundMessage is one routed message waiting for a worker
type inboundMessage struct {
	routed  Message
	payload []byte
}

// Engine is the telemetry ingestion engine: it routes inbound MQTT messages
// into the reading pipeline and the device status handler.
type Engine struct {
	mqttClient  mqtt.Client
	redisClient *redis.Client
	store       Store
	ts          timeseries.Writer
	rules       RuleEvaluator
	notifier    Notifier
	broadcaster realtime.Broadcaster
	nowFn       func() time.Time

	queue   chan inboundMessage
	wg      sync.WaitGroup
	closing atomic.Bool
}

// NewEngine creates a new engine instance
func NewEngine(mqttClient mqtt.Client, redisClient *redis.Client, store Store, ts timeseries.Writer,
	rules RuleEvaluator, notifier Notifier, broadcaster realtime.Broadcaster) *Engine {
	return &Engine{
		mqttClient:  mqttClient,
		redisClient: redisClient,
		store:       store,
		ts:          ts,
		rules:       rules,
		notifier:    notifier,
		broadcaster: broadcaster,
		nowFn:       time.Now,
		queue:       make(chan inboundMessage, queueDepth),
	}
}

// Start subscribes to the device topics and spins up the message workers
func (e *Engine) Start() error {
	for i := 0; i < workers; i++ {
		e.wg.Add(1)
		go e.worker()
	}

	for _, topic := range []string{"farm/+/sensors", "farm/+/sensors/+", "farm/+/status"} {
		log.Printf("ENGINE: Subscribing to MQTT topic: %s", topic)
		if token := e.mqttClient.Subscribe(topic, 1, e.onMessage); token.Wait() && token.Error() != nil {
			return fmt.Errorf("subscribe %s: %w", topic, token.Error())
		}
	}

	log.Println("ENGINE: Started")
	return nil
}

// Stop disconnects from the broker and drains the workers
func (e *Engine) Stop() {
	e.closing.Store(true)
	e.mqttClient.Disconnect(250)
	close(e.queue)
	e.wg.Wait()
	log.Println("ENGINE: Stopped")
}

// onMessage routes an inbound message onto the bounded queue. It must never
// block the paho receive loop, so a full queue drops the message.
func (e *Engine) onMessage(_ mqtt.Client, msg mqtt.Message) {
	if e.closing.Load() {
		return
	}
	routed := ParseTopic(msg.Topic())
	if routed.Kind == KindUnknown {
		log.Printf("ENGINE: Ignoring message on unexpected topic %s", msg.Topic())
		return
	}

	select {
	case e.queue <- inboundMessage{routed: routed, payload: msg.Payload()}:
	default:
		log.Printf("ENGINE: Queue full, dropping message from %s", routed.Mac)
	}
}

func (e *Engine) worker() {
	defer e.wg.Done()
	for msg := range e.queue {
		e.Handle(context.Background(), msg.routed, msg.payload)
	}
}

// Handle dispatches one routed message to its handler
func (e *Engine) Handle(ctx context.Context, routed Message, payload []byte) {
	switch routed.Kind {
	case KindSensorReading:
		e.handleSensorData(ctx, routed.Mac, routed.SensorType, payload)
	case KindDeviceStatus:
		e.handleDeviceStatus(ctx, routed.Mac, payload)
	}
}

// cacheLastReading keeps the latest calibrated value in Redis for quick reads
func (e *Engine) cacheLastReading(ctx context.Context, sensorID string, value float64, at time.Time) {
	if e.redisClient == nil {
		return
	}
	cached, _ := json.Marshal(map[string]interface{}{"value": value, "at": at.UTC().Format(time.RFC3339)})
	if err := e.redisClient.Set(ctx, fmt.Sprintf("sensor:%s:last", sensorID), cached, time.Hour).Err(); err != nil {
		log.Printf("ENGINE: Failed to cache reading for sensor %s: %v", sensorID, err)
	}
}
