package cfg

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"smartair-guardian/internal/common"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

type Settings struct {
	ModelsDir          string
	DataPath           string
	HTTPPort           int
	MetricsPort        int
	LogLevel           string
	ReadingsLimit      int
	ReadingsCapacity   int
	PredictionCacheTTL time.Duration
	LazyModelLoad      bool
	MQTT               MQTTSettings
	Simulator          SimulatorSettings
	Training           TrainingSettings
}

// MQTTSettings configures the broker connection. An empty Broker disables MQTT.
type MQTTSettings struct {
	Broker   string
	Topic    string
	ClientID string
}

type SimulatorSettings struct {
	IngestURL       string
	SensorID        string
	PublishInterval time.Duration
	RequestTimeout  time.Duration
}

type TrainingSettings struct {
	Samples int
	Seed    uint64
}

type ConfigFile struct {
	Models struct {
		Dir      string `yaml:"dir"`
		CacheTTL string `yaml:"cacheTTL"`
		LazyLoad bool   `yaml:"lazyLoad"`
	} `yaml:"models"`

	Server struct {
		HTTPPort    int    `yaml:"httpPort"`
		MetricsPort int    `yaml:"metricsPort"`
		LogLevel    string `yaml:"logLevel"`
	} `yaml:"server"`

	Readings struct {
		Limit    int `yaml:"limit"`
		Capacity int `yaml:"capacity"`
	} `yaml:"readings"`

	Storage struct {
		DataPath string `yaml:"dataPath"`
	} `yaml:"storage"`

	MQTT struct {
		Broker   string `yaml:"broker"`
		Topic    string `yaml:"topic"`
		ClientID string `yaml:"clientID"`
	} `yaml:"mqtt"`

	Simulator struct {
		IngestURL       string `yaml:"ingestURL"`
		SensorID        string `yaml:"sensorID"`
		PublishInterval string `yaml:"publishInterval"`
		RequestTimeout  string `yaml:"requestTimeout"`
	} `yaml:"simulator"`

	Training struct {
		Samples int    `yaml:"samples"`
		Seed    uint64 `yaml:"seed"`
	} `yaml:"training"`
}

func Load() (Settings, error) {
	// Try to load from YAML file first
	if configPath := os.Getenv(common.EnvConfigFile); configPath != "" {
		return loadFromYAML(configPath)
	}

	// Fallback to environment variables
	return loadFromEnv()
}

func loadFromYAML(path string) (Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Settings{}, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var config ConfigFile
	if err := yaml.Unmarshal(data, &config); err != nil {
		return Settings{}, fmt.Errorf("failed to parse config file: %w", err)
	}

	cacheTTL, err := parseDurationOr(config.Models.CacheTTL, 0)
	if err != nil {
		return Settings{}, fmt.Errorf("models.cacheTTL: %w", err)
	}
	interval, err := parseDurationOr(config.Simulator.PublishInterval, common.DefaultPublishIntervalSec*time.Second)
	if err != nil {
		return Settings{}, fmt.Errorf("simulator.publishInterval: %w", err)
	}
	timeout, err := parseDurationOr(config.Simulator.RequestTimeout, common.DefaultRequestTimeoutSec*time.Second)
	if err != nil {
		return Settings{}, fmt.Errorf("simulator.requestTimeout: %w", err)
	}

	// Environment variables override file values
	settings := Settings{
		ModelsDir:          getEnvOrDefault(common.EnvModelsDir, stringOr(config.Models.Dir, common.DefaultModelsDir)),
		DataPath:           getEnvOrDefault(common.EnvDataPath, config.Storage.DataPath),
		HTTPPort:           getIntFromEnvOrConfig(common.EnvHTTPPort, config.Server.HTTPPort, common.DefaultHTTPPort),
		MetricsPort:        getIntFromEnvOrConfig(common.EnvMetricsPort, config.Server.MetricsPort, common.DefaultMetricsPort),
		LogLevel:           getEnvOrDefault(common.EnvLogLevel, stringOr(config.Server.LogLevel, common.DefaultLogLevel)),
		ReadingsLimit:      getIntFromEnvOrConfig(common.EnvReadingsLimit, config.Readings.Limit, common.DefaultReadingsLimit),
		ReadingsCapacity:   getIntFromEnvOrConfig(common.EnvReadingsCapacity, config.Readings.Capacity, 0),
		PredictionCacheTTL: getDurationOrDefault(common.EnvPredictionCacheTTL, cacheTTL),
		LazyModelLoad:      getBoolOrDefault(common.EnvLazyModelLoad, config.Models.LazyLoad),
		MQTT: MQTTSettings{
			Broker:   getEnvOrDefault(common.EnvMQTTBroker, config.MQTT.Broker),
			Topic:    getEnvOrDefault(common.EnvMQTTTopic, stringOr(config.MQTT.Topic, common.DefaultMQTTTopic)),
			ClientID: getEnvOrDefault(common.EnvMQTTClientID, stringOr(config.MQTT.ClientID, common.DefaultMQTTClientID)),
		},
		Simulator: SimulatorSettings{
			IngestURL:       getEnvOrDefault(common.EnvIngestURL, stringOr(config.Simulator.IngestURL, common.DefaultIngestURL)),
			SensorID:        getEnvOrDefault(common.EnvSensorID, stringOr(config.Simulator.SensorID, common.DefaultSensorID)),
			PublishInterval: getDurationOrDefault(common.EnvPublishInterval, interval),
			RequestTimeout:  getDurationOrDefault(common.EnvRequestTimeout, timeout),
		},
		Training: TrainingSettings{
			Samples: getIntFromEnvOrConfig(common.EnvSamples, config.Training.Samples, common.DefaultTrainingSamples),
			Seed:    getUintOrDefault(common.EnvSeed, uintOr(config.Training.Seed, common.DefaultTrainingSeed)),
		},
	}

	if err := validateSettings(&settings); err != nil {
		return Settings{}, fmt.Errorf("configuration validation failed: %w", err)
	}

	return settings, nil
}

func loadFromEnv() (Settings, error) {
	settings := Settings{
		ModelsDir:          getEnvOrDefault(common.EnvModelsDir, common.DefaultModelsDir),
		DataPath:           os.Getenv(common.EnvDataPath), // optional
		HTTPPort:           getIntOrDefault(common.EnvHTTPPort, common.DefaultHTTPPort),
		MetricsPort:        getIntOrDefault(common.EnvMetricsPort, common.DefaultMetricsPort),
		LogLevel:           getEnvOrDefault(common.EnvLogLevel, common.DefaultLogLevel),
		ReadingsLimit:      getIntOrDefault(common.EnvReadingsLimit, common.DefaultReadingsLimit),
		ReadingsCapacity:   getIntOrDefault(common.EnvReadingsCapacity, 0), // unbounded
		PredictionCacheTTL: getDurationOrDefault(common.EnvPredictionCacheTTL, 0),
		LazyModelLoad:      getBoolOrDefault(common.EnvLazyModelLoad, false),
		MQTT: MQTTSettings{
			Broker:   os.Getenv(common.EnvMQTTBroker),
			Topic:    getEnvOrDefault(common.EnvMQTTTopic, common.DefaultMQTTTopic),
			ClientID: getEnvOrDefault(common.EnvMQTTClientID, common.DefaultMQTTClientID),
		},
		Simulator: SimulatorSettings{
			IngestURL:       getEnvOrDefault(common.EnvIngestURL, common.DefaultIngestURL),
			SensorID:        getEnvOrDefault(common.EnvSensorID, common.DefaultSensorID),
			PublishInterval: getDurationOrDefault(common.EnvPublishInterval, common.DefaultPublishIntervalSec*time.Second),
			RequestTimeout:  getDurationOrDefault(common.EnvRequestTimeout, common.DefaultRequestTimeoutSec*time.Second),
		},
		Training: TrainingSettings{
			Samples: getIntOrDefault(common.EnvSamples, common.DefaultTrainingSamples),
			Seed:    getUintOrDefault(common.EnvSeed, common.DefaultTrainingSeed),
		},
	}

	if err := validateSettings(&settings); err != nil {
		return Settings{}, fmt.Errorf("configuration validation failed: %w", err)
	}

	return settings, nil
}

// MQTTEnabled reports whether a broker is configured.
func (s *Settings) MQTTEnabled() bool {
	return s.MQTT.Broker != ""
}

func getEnvOrDefault(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func getDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultValue
}

func getIntOrDefault(key string, defaultValue int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultValue
}

func getUintOrDefault(key string, defaultValue uint64) uint64 {
	if v := os.Getenv(key); v != "" {
		if u, err := strconv.ParseUint(v, 10, 64); err == nil {
			return u
		}
	}
	return defaultValue
}

func getBoolOrDefault(key string, defaultValue bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return defaultValue
}

func getIntFromEnvOrConfig(key string, configValue, defaultValue int) int {
	if env := os.Getenv(key); env != "" {
		if val, err := strconv.Atoi(env); err == nil {
			return val
		}
	}
	if configValue != 0 {
		return configValue
	}
	return defaultValue
}

func parseDurationOr(v string, def time.Duration) (time.Duration, error) {
	if v == "" {
		return def, nil
	}
	return time.ParseDuration(v)
}

func stringOr(v, def string) string {
	if v != "" {
		return v
	}
	return def
}

func uintOr(v, def uint64) uint64 {
	if v != 0 {
		return v
	}
	return def
}

// validateSettings performs range validation of configuration values
func validateSettings(settings *Settings) error {
	if settings.ModelsDir == "" {
		return fmt.Errorf("models directory cannot be empty")
	}

	if settings.HTTPPort < common.MinPort || settings.HTTPPort > common.MaxPort {
		return fmt.Errorf("HTTP port must be between %d and %d, got %d", common.MinPort, common.MaxPort, settings.HTTPPort)
	}
	if settings.MetricsPort < common.MinPort || settings.MetricsPort > common.MaxPort {
		return fmt.Errorf("metrics port must be between %d and %d, got %d", common.MinPort, common.MaxPort, settings.MetricsPort)
	}
	if settings.HTTPPort == settings.MetricsPort {
		return fmt.Errorf("HTTP and metrics ports must differ, both are %d", settings.HTTPPort)
	}

	if _, err := zerolog.ParseLevel(settings.LogLevel); err != nil {
		return fmt.Errorf("invalid log level %q: %w", settings.LogLevel, err)
	}

	if settings.ReadingsLimit <= 0 || settings.ReadingsLimit > common.MaxReadingsLimit {
		return fmt.Errorf("readings limit must be between 1 and %d, got %d", common.MaxReadingsLimit, settings.ReadingsLimit)
	}
	if settings.ReadingsCapacity < 0 {
		return fmt.Errorf("readings capacity cannot be negative, got %d", settings.ReadingsCapacity)
	}
	if settings.PredictionCacheTTL < 0 {
		return fmt.Errorf("prediction cache TTL cannot be negative, got %v", settings.PredictionCacheTTL)
	}

	if settings.MQTTEnabled() {
		if settings.MQTT.Topic == "" {
			return fmt.Errorf("MQTT topic cannot be empty when a broker is configured")
		}
		if settings.MQTT.ClientID == "" {
			return fmt.Errorf("MQTT client ID cannot be empty when a broker is configured")
		}
	}

	if settings.Simulator.PublishInterval < 100*time.Millisecond || settings.Simulator.PublishInterval > time.Hour {
		return fmt.Errorf("publish interval must be between 100ms and 1h, got %v", settings.Simulator.PublishInterval)
	}
	if settings.Simulator.RequestTimeout < time.Second || settings.Simulator.RequestTimeout > time.Minute {
		return fmt.Errorf("request timeout must be between 1s and 1m, got %v", settings.Simulator.RequestTimeout)
	}
	if settings.Simulator.SensorID == "" {
		return fmt.Errorf("sensor ID cannot be empty")
	}

	if settings.Training.Samples < common.MinTrainingRows {
		return fmt.Errorf("training samples must be at least %d, got %d", common.MinTrainingRows, settings.Training.Samples)
	}

	return nil
}
