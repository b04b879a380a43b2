package mqtt

import (
	"fmt"
	"log"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
)

// NewMQTTClient creates and connects an MQTT client. The client id gets a
// random suffix so multiple engine instances do not kick each other off the
// broker.
func NewMQTTClient(broker, clientID, username, password string) (mqtt.Client, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID(fmt.Sprintf("%s_%s", clientID, uuid.NewString()[:8])).
		SetCleanSession(true).
		SetConnectTimeout(4 * time.Second).
		SetAutoReconnect(true).
		SetMaxReconnectInterval(time.Second).
		SetOnConnectHandler(func(c mqtt.Client) {
			log.Println("MQTT: Connected to broker")
		}).
		SetConnectionLostHandler(func(c mqtt.Client, err error) {
			log.Printf("MQTT: Connection lost: %v", err)
		})
	if username != "" {
		opts.SetUsername(username).SetPassword(password)
	}

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, token.Error()
	}
	return client, nil
}
