package sink

import (
	"encoding/json"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/srg/essence/internal/remote"
)

// MQTTOptions configures the MQTT event sink.
type MQTTOptions struct {
	Broker      string
	Port        int
	ClientID    string // random suffix appended when empty
	TopicPrefix string
	Username    string
	Password    string
}

// MQTTSink publishes gesture events to an MQTT broker: events as JSON on
// <prefix>/<device>/event, plus retained <prefix>/<device>/last_action and
// <prefix>/<device>/last_value topics for dashboards and automations.
type MQTTSink struct {
	client mqtt.Client
	opts   MQTTOptions
	logger *logrus.Logger
}

func NewMQTTSink(opts MQTTOptions, logger *logrus.Logger) *MQTTSink {
	if logger == nil {
		logger = logrus.New()
	}
	if opts.TopicPrefix == "" {
		opts.TopicPrefix = "essence"
	}
	if opts.ClientID == "" {
		opts.ClientID = "essence-" + uuid.NewString()[:8]
	}

	co := mqtt.NewClientOptions()
	co.AddBroker(fmt.Sprintf("tcp://%s:%d", opts.Broker, opts.Port))
	co.SetClientID(opts.ClientID)
	if opts.Username != "" {
		co.SetUsername(opts.Username)
		co.SetPassword(opts.Password)
	}
	co.SetCleanSession(true)
	co.SetAutoReconnect(true)
	co.SetConnectRetry(true)
	co.SetConnectRetryInterval(5 * time.Second)
	co.SetMaxReconnectInterval(60 * time.Second)
	co.SetKeepAlive(30 * time.Second)
	co.SetPingTimeout(10 * time.Second)
	co.SetOnConnectHandler(func(mqtt.Client) {
		logger.WithFields(logrus.Fields{
			"broker": opts.Broker,
			"port":   opts.Port,
		}).Info("MQTT connected")
	})
	co.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		logger.WithError(err).Warn("MQTT connection lost")
	})

	return &MQTTSink{
		client: mqtt.NewClient(co),
		opts:   opts,
		logger: logger,
	}
}

// Connect establishes the broker connection, waiting up to timeout for the
// initial attempt.
func (s *MQTTSink) Connect(timeout time.Duration) error {
	token := s.client.Connect()
	if !token.WaitTimeout(timeout) {
		return fmt.Errorf("timed out connecting to MQTT broker %s:%d", s.opts.Broker, s.opts.Port)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("failed to connect to MQTT broker %s:%d: %w", s.opts.Broker, s.opts.Port, err)
	}
	return nil
}

// Close disconnects from the broker.
func (s *MQTTSink) Close() {
	s.client.Disconnect(250)
}

func (s *MQTTSink) Emit(ev remote.Event) {
	payload, err := json.Marshal(ev)
	if err != nil {
		s.logger.WithError(err).Warn("Failed to encode event")
		return
	}
	s.publish(s.topic(ev.DeviceID, "event"), payload, false)
}

func (s *MQTTSink) PublishLastAction(deviceID, action string) {
	s.publish(s.topic(deviceID, "last_action"), []byte(action), true)
}

func (s *MQTTSink) PublishLastValue(deviceID string, value float64) {
	s.publish(s.topic(deviceID, "last_value"), []byte(fmt.Sprintf("%g", value)), true)
}

func (s *MQTTSink) publish(topic string, payload []byte, retain bool) {
	token := s.client.Publish(topic, 0, retain, payload)
	// Fire-and-forget with a short wait; a lost publish is only a missed
	// observability update.
	if token.WaitTimeout(2*time.Second) && token.Error() != nil {
		s.logger.WithFields(logrus.Fields{
			"topic": topic,
			"error": token.Error(),
		}).Warn("MQTT publish failed")
	}
}

func (s *MQTTSink) topic(deviceID, suffix string) string {
	return fmt.Sprintf("%s/%s/%s", s.opts.TopicPrefix, deviceID, suffix)
}
