package display

import (
	"encoding/json"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/relabs-tech/indoor_nav/internal/navigation"
	"github.com/relabs-tech/indoor_nav/internal/orientation"
	"github.com/relabs-tech/indoor_nav/internal/selection"
)

// Publisher is the part of mqtt.Client used here.
type Publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

// Topics names the telemetry topics.
type Topics struct {
	Heading    string
	Selection  string
	Navigation string
}

// MQTT publishes screens as retained JSON so a remote console can mirror
// the device.
type MQTT struct {
	client  Publisher
	topics  Topics
	timeout time.Duration
}

func NewMQTT(client Publisher, topics Topics) *MQTT {
	return &MQTT{client: client, topics: topics, timeout: 200 * time.Millisecond}
}

// Connect dials broker and returns a connected client.
func Connect(broker, clientID string) (mqtt.Client, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetAutoReconnect(true)
	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, errors.Wrapf(token.Error(), "mqtt connect %s", broker)
	}
	log.Printf("display: connected to MQTT broker at %s", broker)
	return client, nil
}

func (m *MQTT) publish(topic string, v interface{}) error {
	if topic == "" {
		return nil
	}
	payload, err := json.Marshal(v)
	if err != nil {
		return errors.Wrapf(err, "marshal %s", topic)
	}
	token := m.client.Publish(topic, 0, true, payload)
	if !token.WaitTimeout(m.timeout) {
		return errors.Errorf("mqtt publish %s: timed out", topic)
	}
	return errors.Wrapf(token.Error(), "mqtt publish %s", topic)
}

type messagePayload struct {
	Lines []string  `json:"lines"`
	Time  time.Time `json:"time"`
}

type headingPayload struct {
	Heading float64   `json:"heading"`
	Time    time.Time `json:"time"`
}

type navigationPayload struct {
	navigation.View
	Heading float64 `json:"heading"`
	Bearing float64 `json:"bearing"`
}

func (m *MQTT) ShowMessage(lines ...string) error {
	return m.publish(m.topics.Navigation, messagePayload{Lines: lines, Time: time.Now()})
}

func (m *MQTT) ShowSelection(v selection.View) error {
	return m.publish(m.topics.Selection, v)
}

func (m *MQTT) ShowNavigation(heading float64, v navigation.View) error {
	if err := m.publish(m.topics.Heading, headingPayload{Heading: heading, Time: time.Now()}); err != nil {
		return err
	}
	p := navigationPayload{View: v, Heading: heading}
	if v.Instructions != nil {
		p.Bearing = orientation.RelativeBearing(heading, v.Instructions.DirNextNode)
	}
	return m.publish(m.topics.Navigation, p)
}
