package events

import (
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

type MQTTConfig struct {
	Broker   string
	ClientID string
	Topic    string
	Username string
	Password string
	QoS      byte
	Timeout  time.Duration
}

// Publisher is the subset of the paho client used by MQTTSink.
type Publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

// MQTTSink publishes events as JSON to <topic>/<kind>.
type MQTTSink struct {
	client  Publisher
	topic   string
	qos     byte
	timeout time.Duration
}

// DialMQTT connects to the broker.
func DialMQTT(cfg MQTTConfig) (mqtt.Client, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID).
		SetAutoReconnect(true).
		SetConnectTimeout(cfg.Timeout)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username).SetPassword(cfg.Password)
	}
	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(cfg.Timeout) {
		return nil, fmt.Errorf("mqtt connect to %s timed out", cfg.Broker)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt connect to %s: %w", cfg.Broker, err)
	}
	return client, nil
}

func NewMQTTSink(client Publisher, cfg MQTTConfig) *MQTTSink {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = time.Second
	}
	return &MQTTSink{client: client, topic: cfg.Topic, qos: cfg.QoS, timeout: timeout}
}

type mqttMessage struct {
	Kind string `json:"kind"`
	Event
}

func (s *MQTTSink) Handle(ev Event) error {
	payload, err := json.Marshal(mqttMessage{Kind: ev.Kind.String(), Event: ev})
	if err != nil {
		return fmt.Errorf("encoding %s event: %w", ev.Kind, err)
	}
	token := s.client.Publish(s.topic+"/"+ev.Kind.String(), s.qos, false, payload)
	if !token.WaitTimeout(s.timeout) {
		return fmt.Errorf("publishing %s event timed out", ev.Kind)
	}
	return token.Error()
}
