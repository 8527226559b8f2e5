package simulator

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"smartair-guardian/internal/common"
	"smartair-guardian/internal/readings"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog/log"
)

// HTTPPublisher posts readings to the ingest endpoint.
type HTTPPublisher struct {
	url  string
	rest *resty.Client
}

func NewHTTPPublisher(url string, timeout time.Duration) *HTTPPublisher {
	r := resty.New()
	if timeout > 0 {
		r.SetTimeout(timeout)
	} else {
		r.SetTimeout(common.DefaultRequestTimeoutSec * time.Second) // default fallback
	}
	r.SetHeader(common.HeaderContentType, common.ContentTypeJSON)
	return &HTTPPublisher{url: url, rest: r}
}

type errorBody struct {
	Detail string `json:"detail"`
}

// Publish sends r and logs the enrichment returned by the server.
func (p *HTTPPublisher) Publish(ctx context.Context, r Reading) error {
	out := &readings.Enriched{}
	fail := &errorBody{}
	resp, err := p.rest.R().
		SetContext(ctx).
		SetBody(r).
		SetResult(out).
		SetError(fail).
		Post(p.url)
	if err != nil {
		return fmt.Errorf("post reading: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("ingest returned %d: %s", resp.StatusCode(), fail.Detail)
	}

	log.Info().
		Float64("co2", out.CO2).
		Float64("pm25", out.PM25).
		Int("risk_level", out.RiskLevel).
		Bool("is_anomaly", out.IsAnomaly).
		Float64("co2_next_pred", out.CO2NextPred).
		Msg("Reading sent")
	return nil
}

// MQTTPublisher publishes readings as JSON on a topic at QoS 0.
type MQTTPublisher struct {
	client mqtt.Client
	topic  string
}

// NewMQTTPublisher connects to broker.
func NewMQTTPublisher(broker, clientID, topic string, timeout time.Duration) (*MQTTPublisher, error) {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(broker)
	opts.SetClientID(clientID)
	opts.SetAutoReconnect(true)
	opts.SetConnectTimeout(timeout)

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(timeout) {
		return nil, fmt.Errorf("connect to mqtt broker %s: timed out", broker)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connect to mqtt broker %s: %w", broker, err)
	}
	log.Info().Str("broker", broker).Str("topic", topic).Msg("MQTT publisher connected")
	return &MQTTPublisher{client: client, topic: topic}, nil
}

func (p *MQTTPublisher) Publish(ctx context.Context, r Reading) error {
	payload, err := json.Marshal(r)
	if err != nil {
		return err
	}

	token := p.client.Publish(p.topic, 0, false, payload)
	select {
	case <-token.Done():
	case <-ctx.Done():
		return ctx.Err()
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish to %s: %w", p.topic, err)
	}

	log.Info().RawJSON("payload", payload).Msg("Reading published")
	return nil
}

// Close disconnects from the broker.
func (p *MQTTPublisher) Close() {
	p.client.Disconnect(250)
}
