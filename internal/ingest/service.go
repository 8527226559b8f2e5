// Package ingest turns raw sensor payloads into stored, enriched readings. The HTTP API and the
// MQTT subscriber share one Service.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"smartair-guardian/internal/features"
	"smartair-guardian/internal/ml"
	"smartair-guardian/internal/readings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// ErrInvalidReading is returned for payloads that violate the wire contract.
var ErrInvalidReading = errors.New("invalid reading")

// Request is the wire form of one sensor sample. The four measurements are required; zero is a
// valid measurement, so they are pointers.
type Request struct {
	SensorID  string     `json:"sensor_id" validate:"required,max=128"`
	CO2       *float64   `json:"co2" validate:"required"`
	PM25      *float64   `json:"pm25" validate:"required"`
	Temp      *float64   `json:"temp" validate:"required"`
	Humidity  *float64   `json:"humidity" validate:"required"`
	Timestamp *time.Time `json:"timestamp,omitempty"`
}

// Vector returns the measurements in model input order. Call only after validation.
func (r Request) Vector() features.Vector {
	return features.Vector{CO2: *r.CO2, PM25: *r.PM25, Temp: *r.Temp, Humidity: *r.Humidity}
}

// MetricsInterface defines the ingestion metrics the service reports.
type MetricsInterface interface {
	ReadingIngestedInc()
	ReadingRejectedInc()
	ReadingsStoredSet(int)
}

// Broadcaster receives every stored reading.
type Broadcaster interface {
	Broadcast(readings.Enriched)
}

// Service validates, enriches, stores and broadcasts readings.
type Service struct {
	predictor ml.Predictor
	store     *readings.Store
	validate  *validator.Validate
	metrics   MetricsInterface
	broadcast Broadcaster
	now       func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithMetrics reports ingestion counts to m.
func WithMetrics(m MetricsInterface) Option {
	return func(s *Service) { s.metrics = m }
}

// WithBroadcaster forwards stored readings to b.
func WithBroadcaster(b Broadcaster) Option {
	return func(s *Service) { s.broadcast = b }
}

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func NewService(predictor ml.Predictor, store *readings.Store, opts ...Option) *Service {
	s := &Service{
		predictor: predictor,
		store:     store,
		validate:  validator.New(validator.WithRequiredStructEnabled()),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Ingest enriches req and appends it to the store. Validation failures wrap ErrInvalidReading;
// prediction failures are returned as produced by the predictor.
func (s *Service) Ingest(ctx context.Context, req Request) (readings.Enriched, error) {
	if err := s.check(req); err != nil {
		s.reject()
		return readings.Enriched{}, err
	}

	v := req.Vector()
	pred, err := s.predictor.Predict(ctx, v)
	if err != nil {
		s.reject()
		return readings.Enriched{}, err
	}

	ts := s.now().UTC()
	if req.Timestamp != nil {
		ts = req.Timestamp.UTC()
	}

	enriched := readings.Enriched{
		Reading: readings.Reading{
			ID:        uuid.NewString(),
			SensorID:  req.SensorID,
			Vector:    v,
			Timestamp: ts,
		},
		Prediction: pred,
	}

	n := s.store.Add(enriched)
	if s.metrics != nil {
		s.metrics.ReadingIngestedInc()
		s.metrics.ReadingsStoredSet(n)
	}
	if s.broadcast != nil {
		s.broadcast.Broadcast(enriched)
	}

	log.Debug().
		Str("sensor_id", enriched.SensorID).
		Int("risk_level", pred.RiskLevel).
		Bool("is_anomaly", pred.IsAnomaly).
		Float64("co2_next_pred", pred.CO2NextPred).
		Msg("Reading ingested")
	if pred.IsAnomaly {
		log.Info().Str("sensor_id", enriched.SensorID).Interface("features", v).Msg("Anomalous reading")
	}

	return enriched, nil
}

func (s *Service) check(req Request) error {
	if err := s.validate.Struct(req); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make([]string, len(verrs))
			for i, fe := range verrs {
				fields[i] = fmt.Sprintf("%s (%s)", jsonField(fe.Field()), fe.Tag())
			}
			return fmt.Errorf("%w: %s", ErrInvalidReading, strings.Join(fields, ", "))
		}
		return fmt.Errorf("%w: %w", ErrInvalidReading, err)
	}
	if err := req.Vector().Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidReading, err)
	}
	return nil
}

func (s *Service) reject() {
	if s.metrics != nil {
		s.metrics.ReadingRejectedInc()
	}
}

var jsonFields = map[string]string{
	"SensorID":  "sensor_id",
	"CO2":       "co2",
	"PM25":      "pm25",
	"Temp":      "temp",
	"Humidity":  "humidity",
	"Timestamp": "timestamp",
}

func jsonField(name string) string {
	if f, ok := jsonFields[name]; ok {
		return f
	}
	return name
}
