package engine

import "strings"

// MessageKind classifies an inbound MQTT message by its topic shape
type MessageKind int

const (
	KindUnknown MessageKind = iota
	KindSensorReading
	KindDeviceStatus
)

// Message is the routed form of an inbound topic: the kind, the normalized
// device MAC and, for farm/{mac}/sensors/{type} topics, the sensor type.
type Message struct {
	Kind       MessageKind
	Mac        string
	SensorType string
}

// ParseTopic routes a topic string into a Message. Anything that does not
// match the known farm/{mac}/... shapes comes back as KindUnknown.
func ParseTopic(topic string) Message {
	parts := strings.Split(topic, "/")
	if len(parts) < 3 || parts[0] != "farm" || parts[1] == "" {
		return Message{Kind: KindUnknown}
	}

	mac := NormalizeMAC(parts[1])
	switch {
	case parts[2] == "sensors" && len(parts) == 3:
		return Message{Kind: KindSensorReading, Mac: mac}
	case parts[2] == "sensors" && len(parts) == 4:
		return Message{Kind: KindSensorReading, Mac: mac, SensorType: parts[3]}
	case parts[2] == "status" && len(parts) == 3:
		return Message{Kind: KindDeviceStatus, Mac: mac}
	}
	return Message{Kind: KindUnknown}
}

// NormalizeMAC uppercases a hardware address and normalizes its separators to
// colons. A bare 12-digit hex address gets colons inserted.
func NormalizeMAC(mac string) string {
	mac = strings.ToUpper(strings.ReplaceAll(mac, "-", ":"))
	if !strings.Contains(mac, ":") && len(mac) == 12 {
		var b strings.Builder
		for i := 0; i < 12; i += 2 {
			if i > 0 {
				b.WriteByte(':')
			}
			b.WriteString(mac[i : i+2])
		}
		return b.String()
	}
	return mac
}

// NormalizeSensorType folds case and underscores so payload keys like
// "soil_moisture" match a configured type of "SOILMOISTURE" or "SOIL_MOISTURE".
func NormalizeSensorType(sensorType string) string {
	return strings.ReplaceAll(strings.ToUpper(sensorType), "_", "")
}
