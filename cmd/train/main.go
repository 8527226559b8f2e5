package main

import (
	"flag"
	"fmt"
	"os"

	"smartair-guardian/internal/cfg"
	"smartair-guardian/internal/dataset"
	"smartair-guardian/internal/ml"
	"smartair-guardian/internal/storage"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type options struct {
	samples   int
	seed      uint64
	modelsDir string
	dataPath  string
}

func main() {
	_ = godotenv.Load()

	// Load configuration; flags override it
	config, err := cfg.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load config")
	}

	var opts options
	flag.IntVar(&opts.samples, "samples", config.Training.Samples, "Number of synthetic rows to generate")
	flag.Uint64Var(&opts.seed, "seed", config.Training.Seed, "Seed for generation, split and model fitting")
	flag.StringVar(&opts.modelsDir, "models-dir", config.ModelsDir, "Directory the model artifacts are written to")
	flag.StringVar(&opts.dataPath, "data", config.DataPath, "Directory of the training history database (empty disables it)")
	logLevel := flag.String("log-level", config.LogLevel, "Log level: debug, info, warn, error")
	flag.Parse()

	// Setup logging
	level, err := zerolog.ParseLevel(*logLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	if _, err := run(opts); err != nil {
		log.Fatal().Err(err).Msg("Training failed")
	}
}

// run generates the table, trains, publishes the artifact set and records the run.
func run(opts options) (ml.Report, error) {
	log.Info().Int("samples", opts.samples).Uint64("seed", opts.seed).Msg("Generating synthetic dataset")
	rows, err := dataset.Generate(opts.samples, opts.seed)
	if err != nil {
		return ml.Report{}, fmt.Errorf("generate dataset: %w", err)
	}

	summary, err := dataset.Summarize(rows)
	if err != nil {
		return ml.Report{}, fmt.Errorf("summarize dataset: %w", err)
	}
	log.Info().
		Ints("risk_counts", summary.RiskCounts[:]).
		Float64("co2_mean", summary.Columns["co2"].Mean).
		Float64("pm25_mean", summary.Columns["pm25"].Mean).
		Msg("Dataset ready")

	models, report, err := ml.Train(rows, ml.DefaultTrainConfig(opts.seed))
	if err != nil {
		return ml.Report{}, fmt.Errorf("train models: %w", err)
	}
	if err := ml.SaveAll(opts.modelsDir, models); err != nil {
		return ml.Report{}, fmt.Errorf("save artifacts: %w", err)
	}

	if opts.dataPath == "" {
		return report, nil
	}

	store, err := storage.New(opts.dataPath)
	if err != nil {
		return ml.Report{}, fmt.Errorf("open training history: %w", err)
	}
	defer store.Close()

	if err := store.RecordRun(storage.RunRecord{
		Report:    report,
		Seed:      opts.seed,
		ModelsDir: opts.modelsDir,
		Dataset:   summary,
	}); err != nil {
		return ml.Report{}, fmt.Errorf("record training run: %w", err)
	}
	log.Info().Str("run_id", report.RunID).Str("data", opts.dataPath).Msg("Training run recorded")

	return report, nil
}
