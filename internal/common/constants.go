package common

// Environment variable keys
const (
	EnvConfigFile         = "CONFIG_FILE"
	EnvModelsDir          = "MODELS_DIR"
	EnvDataPath           = "DATA_PATH"
	EnvHTTPPort           = "HTTP_PORT"
	EnvMetricsPort        = "METRICS_PORT"
	EnvLogLevel           = "LOG_LEVEL"
	EnvReadingsLimit      = "READINGS_LIMIT"
	EnvReadingsCapacity   = "READINGS_CAPACITY"
	EnvPredictionCacheTTL = "PREDICTION_CACHE_TTL"
	EnvLazyModelLoad      = "LAZY_MODEL_LOAD"
	EnvMQTTBroker         = "MQTT_BROKER"
	EnvMQTTTopic          = "MQTT_TOPIC"
	EnvMQTTClientID       = "MQTT_CLIENT_ID"
	EnvSamples            = "SAMPLES"
	EnvSeed               = "SEED"
	EnvIngestURL          = "INGEST_URL"
	EnvSensorID           = "SENSOR_ID"
	EnvPublishInterval    = "PUBLISH_INTERVAL"
	EnvRequestTimeout     = "REQUEST_TIMEOUT"
)

// Configuration defaults
const (
	DefaultModelsDir          = "data/models"
	DefaultHTTPPort           = 8000
	DefaultMetricsPort        = 9100
	DefaultLogLevel           = "info"
	DefaultReadingsLimit      = 20
	DefaultMQTTTopic          = "smartair/guardian/data"
	DefaultMQTTClientID       = "smartair-guardian"
	DefaultIngestURL          = "http://localhost:8000/ingest"
	DefaultSensorID           = "sensor-001"
	DefaultPublishIntervalSec = 5
	DefaultRequestTimeoutSec  = 5
	DefaultTrainingSamples    = 2000
	DefaultTrainingSeed       = 42
)

// Limits
const (
	MaxReadingsLimit = 1000
	MinPort          = 1024
	MaxPort          = 65535
	MinTrainingRows  = 10
)

// HTTP headers
const (
	HeaderContentType = "Content-Type"
	ContentTypeJSON   = "application/json"
)
