package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"smartair-guardian/internal/cfg"
	"smartair-guardian/internal/simulator"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	_ = godotenv.Load()

	config, err := cfg.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load config")
	}

	var (
		mode     = flag.String("mode", "http", "Transport: http or mqtt")
		sensorID = flag.String("sensor-id", config.Simulator.SensorID, "Sensor identifier sent with every reading")
		interval = flag.Duration("interval", config.Simulator.PublishInterval, "Delay between readings")
		seed     = flag.Uint64("seed", uint64(time.Now().UnixNano()), "Random seed")
		logLevel = flag.String("log-level", config.LogLevel, "Log level: debug, info, warn, error")
	)
	flag.Parse()

	level, err := zerolog.ParseLevel(*logLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var pub simulator.Publisher
	switch *mode {
	case "http":
		pub = simulator.NewHTTPPublisher(config.Simulator.IngestURL, config.Simulator.RequestTimeout)
		log.Info().Str("url", config.Simulator.IngestURL).Msg("Starting HTTP simulator")
	case "mqtt":
		if !config.MQTTEnabled() {
			log.Fatal().Msg("MQTT_BROKER must be set for mqtt mode")
		}
		mp, err := simulator.NewMQTTPublisher(config.MQTT.Broker, config.MQTT.ClientID+"-simulator",
			config.MQTT.Topic, config.Simulator.RequestTimeout)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect MQTT publisher")
		}
		defer mp.Close()
		pub = mp
	default:
		log.Fatal().Str("mode", *mode).Msg("Unknown mode, expected http or mqtt")
	}

	sent, err := simulator.Run(ctx, simulator.NewGenerator(*sensorID, *seed), pub, *interval)
	if err != nil {
		log.Fatal().Err(err).Msg("Simulator failed")
	}
	log.Info().Int("sent", sent).Msg("Simulator stopped")
}
