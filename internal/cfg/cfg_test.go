package cfg

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"smartair-guardian/internal/dataset"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFromEnv(t *testing.T) {
	tests := []struct {
		name     string
		envVars  map[string]string
		wantErr  bool
		validate func(t *testing.T, settings Settings)
	}{
		{
			name:    "defaults",
			envVars: map[string]string{},
			validate: func(t *testing.T, settings Settings) {
				assert.Equal(t, "data/models", settings.ModelsDir)
				assert.Empty(t, settings.DataPath)
				assert.Equal(t, 8000, settings.HTTPPort)
				assert.Equal(t, 9100, settings.MetricsPort)
				assert.Equal(t, "info", settings.LogLevel)
				assert.Equal(t, 20, settings.ReadingsLimit)
				assert.Zero(t, settings.ReadingsCapacity)
				assert.Zero(t, settings.PredictionCacheTTL)
				assert.False(t, settings.LazyModelLoad)
				assert.False(t, settings.MQTTEnabled())
				assert.Equal(t, "smartair/guardian/data", settings.MQTT.Topic)
				assert.Equal(t, "http://localhost:8000/ingest", settings.Simulator.IngestURL)
				assert.Equal(t, 5*time.Second, settings.Simulator.PublishInterval)
				assert.Equal(t, 2000, settings.Training.Samples)
				assert.Equal(t, uint64(42), settings.Training.Seed)
			},
		},
		{
			name: "custom settings",
			envVars: map[string]string{
				"MODELS_DIR":           "/srv/models",
				"DATA_PATH":            "/srv/runs.db",
				"HTTP_PORT":            "8080",
				"LOG_LEVEL":            "debug",
				"READINGS_LIMIT":       "50",
				"READINGS_CAPACITY":    "10000",
				"PREDICTION_CACHE_TTL": "30s",
				"LAZY_MODEL_LOAD":      "true",
				"MQTT_BROKER":          "tcp://broker:1883",
				"MQTT_TOPIC":           "site/a/air",
				"SAMPLES":              "500",
				"SEED":                 "7",
				"PUBLISH_INTERVAL":     "250ms",
			},
			validate: func(t *testing.T, settings Settings) {
				assert.Equal(t, "/srv/models", settings.ModelsDir)
				assert.Equal(t, "/srv/runs.db", settings.DataPath)
				assert.Equal(t, 8080, settings.HTTPPort)
				assert.Equal(t, "debug", settings.LogLevel)
				assert.Equal(t, 50, settings.ReadingsLimit)
				assert.Equal(t, 10000, settings.ReadingsCapacity)
				assert.Equal(t, 30*time.Second, settings.PredictionCacheTTL)
				assert.True(t, settings.LazyModelLoad)
				assert.True(t, settings.MQTTEnabled())
				assert.Equal(t, "site/a/air", settings.MQTT.Topic)
				assert.Equal(t, 500, settings.Training.Samples)
				assert.Equal(t, uint64(7), settings.Training.Seed)
				assert.Equal(t, 250*time.Millisecond, settings.Simulator.PublishInterval)
			},
		},
		{
			name:    "unparseable values fall back to defaults",
			envVars: map[string]string{"HTTP_PORT": "eighty", "SEED": "-1"},
			validate: func(t *testing.T, settings Settings) {
				assert.Equal(t, 8000, settings.HTTPPort)
				assert.Equal(t, uint64(42), settings.Training.Seed)
			},
		},
		{
			name:    "invalid log level",
			envVars: map[string]string{"LOG_LEVEL": "loud"},
			wantErr: true,
		},
		{
			name:    "readings limit too large",
			envVars: map[string]string{"READINGS_LIMIT": "100000"},
			wantErr: true,
		},
		{
			name:    "ports collide",
			envVars: map[string]string{"HTTP_PORT": "9100"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearTestEnv(t)
			for key, value := range tt.envVars {
				t.Setenv(key, value)
			}

			settings, err := loadFromEnv()
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			if tt.validate != nil {
				tt.validate(t, settings)
			}
		})
	}
}

func TestLoadFromYAML(t *testing.T) {
	tests := []struct {
		name         string
		yamlContent  string
		envOverrides map[string]string
		wantErr      bool
		validate     func(t *testing.T, settings Settings)
	}{
		{
			name: "valid YAML config",
			yamlContent: `
models:
  dir: "/opt/guardian/models"
  cacheTTL: "1m"
  lazyLoad: true
server:
  httpPort: 8081
  metricsPort: 9191
  logLevel: "warn"
readings:
  limit: 40
  capacity: 5000
storage:
  dataPath: "/opt/guardian/runs.db"
mqtt:
  broker: "tcp://localhost:1883"
  topic: "smartair/test"
  clientID: "guardian-test"
simulator:
  ingestURL: "http://guardian:8081/ingest"
  sensorID: "lab-7"
  publishInterval: "2s"
  requestTimeout: "3s"
training:
  samples: 1200
  seed: 99
`,
			validate: func(t *testing.T, settings Settings) {
				assert.Equal(t, "/opt/guardian/models", settings.ModelsDir)
				assert.Equal(t, time.Minute, settings.PredictionCacheTTL)
				assert.True(t, settings.LazyModelLoad)
				assert.Equal(t, 8081, settings.HTTPPort)
				assert.Equal(t, 9191, settings.MetricsPort)
				assert.Equal(t, "warn", settings.LogLevel)
				assert.Equal(t, 40, settings.ReadingsLimit)
				assert.Equal(t, 5000, settings.ReadingsCapacity)
				assert.Equal(t, "/opt/guardian/runs.db", settings.DataPath)
				assert.Equal(t, "tcp://localhost:1883", settings.MQTT.Broker)
				assert.Equal(t, "smartair/test", settings.MQTT.Topic)
				assert.Equal(t, "guardian-test", settings.MQTT.ClientID)
				assert.Equal(t, "lab-7", settings.Simulator.SensorID)
				assert.Equal(t, 2*time.Second, settings.Simulator.PublishInterval)
				assert.Equal(t, 3*time.Second, settings.Simulator.RequestTimeout)
				assert.Equal(t, 1200, settings.Training.Samples)
				assert.Equal(t, uint64(99), settings.Training.Seed)
			},
		},
		{
			name: "YAML with env overrides",
			yamlContent: `
models:
  dir: "/opt/guardian/models"
server:
  httpPort: 8081
`,
			envOverrides: map[string]string{
				"MODELS_DIR": "/env/models",
				"SEED":       "5",
			},
			validate: func(t *testing.T, settings Settings) {
				assert.Equal(t, "/env/models", settings.ModelsDir)
				assert.Equal(t, 8081, settings.HTTPPort)
				assert.Equal(t, uint64(5), settings.Training.Seed)
				// Unset sections take defaults.
				assert.Equal(t, 9100, settings.MetricsPort)
				assert.Equal(t, 20, settings.ReadingsLimit)
			},
		},
		{
			name:        "empty YAML uses defaults",
			yamlContent: "",
			validate: func(t *testing.T, settings Settings) {
				assert.Equal(t, "data/models", settings.ModelsDir)
				assert.Equal(t, 8000, settings.HTTPPort)
			},
		},
		{
			name: "bad duration",
			yamlContent: `
simulator:
  publishInterval: "soon"
`,
			wantErr: true,
		},
		{
			name: "out of range value",
			yamlContent: `
training:
  samples: 3
`,
			wantErr: true,
		},
		{
			name:        "invalid YAML",
			yamlContent: `invalid: yaml: content: [`,
			wantErr:     true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearTestEnv(t)
			for key, value := range tt.envOverrides {
				t.Setenv(key, value)
			}

			configPath := filepath.Join(t.TempDir(), "config.yaml")
			require.NoError(t, os.WriteFile(configPath, []byte(tt.yamlContent), 0o644))

			settings, err := loadFromYAML(configPath)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			if tt.validate != nil {
				tt.validate(t, settings)
			}
		})
	}
}

func TestLoad(t *testing.T) {
	t.Run("uses CONFIG_FILE when set", func(t *testing.T) {
		clearTestEnv(t)
		configPath := filepath.Join(t.TempDir(), "config.yaml")
		require.NoError(t, os.WriteFile(configPath, []byte("server:\n  httpPort: 8123\n"), 0o644))
		t.Setenv("CONFIG_FILE", configPath)

		settings, err := Load()
		require.NoError(t, err)
		assert.Equal(t, 8123, settings.HTTPPort)
	})

	t.Run("missing CONFIG_FILE is an error", func(t *testing.T) {
		clearTestEnv(t)
		t.Setenv("CONFIG_FILE", filepath.Join(t.TempDir(), "nope.yaml"))

		_, err := Load()
		assert.Error(t, err)
	})

	t.Run("falls back to environment", func(t *testing.T) {
		clearTestEnv(t)
		t.Setenv("HTTP_PORT", "8124")

		settings, err := Load()
		require.NoError(t, err)
		assert.Equal(t, 8124, settings.HTTPPort)
	})
}

func TestTrainingDefaultsMatchGenerator(t *testing.T) {
	clearTestEnv(t)

	fromEnv, err := loadFromEnv()
	require.NoError(t, err)
	assert.Equal(t, dataset.DefaultSamples, fromEnv.Training.Samples)
	assert.Equal(t, uint64(dataset.DefaultSeed), fromEnv.Training.Seed)

	configPath := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("server:\n  httpPort: 8125\n"), 0o644))
	fromFile, err := loadFromYAML(configPath)
	require.NoError(t, err)
	assert.Equal(t, dataset.DefaultSamples, fromFile.Training.Samples)
	assert.Equal(t, uint64(dataset.DefaultSeed), fromFile.Training.Seed)
}

// clearTestEnv clears potentially conflicting environment variables
func clearTestEnv(t *testing.T) {
	envVars := []string{
		"CONFIG_FILE", "MODELS_DIR", "DATA_PATH", "HTTP_PORT", "METRICS_PORT", "LOG_LEVEL",
		"READINGS_LIMIT", "READINGS_CAPACITY", "PREDICTION_CACHE_TTL", "LAZY_MODEL_LOAD",
		"MQTT_BROKER", "MQTT_TOPIC", "MQTT_CLIENT_ID", "SAMPLES", "SEED", "INGEST_URL",
		"SENSOR_ID", "PUBLISH_INTERVAL", "REQUEST_TIMEOUT",
	}

	for _, env := range envVars {
		if val := os.Getenv(env); val != "" {
			t.Setenv(env, "")
		}
	}
}
