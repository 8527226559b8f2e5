package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog/log"
)

const (
	mqttQoS            = 1
	mqttConnectTimeout = 10 * time.Second
	mqttIngestTimeout  = 5 * time.Second
)

// MQTTConfig configures the broker subscription.
type MQTTConfig struct {
	Broker   string
	Topic    string
	ClientID string
}

// MQTTMetrics counts received broker messages.
type MQTTMetrics interface {
	MQTTMessageInc()
}

// Subscriber feeds JSON readings published on an MQTT topic into a Service.
type Subscriber struct {
	cfg     MQTTConfig
	svc     *Service
	metrics MQTTMetrics
	client  mqtt.Client
	ctx     context.Context
}

// NewSubscriber builds a subscriber. Nothing connects until Start. metrics may be nil.
func NewSubscriber(cfg MQTTConfig, svc *Service, metrics MQTTMetrics) *Subscriber {
	return &Subscriber{cfg: cfg, svc: svc, metrics: metrics, ctx: context.Background()}
}

// Start connects to the broker and subscribes. The subscription is renewed on every reconnect.
// ctx bounds the ingestion of received messages after Start returns.
func (s *Subscriber) Start(ctx context.Context) error {
	s.ctx = ctx

	opts := mqtt.NewClientOptions()
	opts.AddBroker(s.cfg.Broker)
	opts.SetClientID(s.cfg.ClientID)
	opts.SetAutoReconnect(true)
	opts.SetConnectTimeout(mqttConnectTimeout)
	opts.SetOnConnectHandler(func(c mqtt.Client) {
		token := c.Subscribe(s.cfg.Topic, mqttQoS, s.onMessage)
		if token.WaitTimeout(mqttConnectTimeout) && token.Error() != nil {
			log.Error().Err(token.Error()).Str("topic", s.cfg.Topic).Msg("MQTT subscribe failed")
			return
		}
		log.Info().Str("broker", s.cfg.Broker).Str("topic", s.cfg.Topic).Msg("MQTT subscribed")
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		log.Warn().Err(err).Str("broker", s.cfg.Broker).Msg("MQTT connection lost")
	})

	s.client = mqtt.NewClient(opts)
	token := s.client.Connect()
	if !token.WaitTimeout(mqttConnectTimeout) {
		return fmt.Errorf("connect to mqtt broker %s: timed out", s.cfg.Broker)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("connect to mqtt broker %s: %w", s.cfg.Broker, err)
	}
	return nil
}

// Stop unsubscribes and disconnects.
func (s *Subscriber) Stop() {
	if s.client == nil || !s.client.IsConnected() {
		return
	}
	s.client.Unsubscribe(s.cfg.Topic).WaitTimeout(time.Second)
	s.client.Disconnect(250)
	log.Info().Str("broker", s.cfg.Broker).Msg("MQTT disconnected")
}

func (s *Subscriber) onMessage(_ mqtt.Client, msg mqtt.Message) {
	ctx, cancel := context.WithTimeout(s.ctx, mqttIngestTimeout)
	defer cancel()

	if err := s.HandlePayload(ctx, msg.Payload()); err != nil {
		log.Warn().Err(err).Str("topic", msg.Topic()).Msg("MQTT reading rejected")
	}
}

// HandlePayload decodes one message body and ingests it.
func (s *Subscriber) HandlePayload(ctx context.Context, payload []byte) error {
	if s.metrics != nil {
		s.metrics.MQTTMessageInc()
	}

	var req Request
	if err := json.Unmarshal(payload, &req); err != nil {
		s.svc.reject()
		return fmt.Errorf("%w: decode payload: %w", ErrInvalidReading, err)
	}

	_, err := s.svc.Ingest(ctx, req)
	return err
}
