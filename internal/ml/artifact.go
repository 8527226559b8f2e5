package ml

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"smartair-guardian/internal/features"

	"github.com/hashicorp/go-multierror"
	"github.com/rs/zerolog/log"
)

// ArtifactFormatVersion is written into every artifact and checked on load.
const ArtifactFormatVersion = 1

const artifactExt = ".json"

// artifactEnvelope is the on-disk form of one model.
type artifactEnvelope struct {
	Name          string          `json:"name"`
	FormatVersion int             `json:"format_version"`
	Features      []string        `json:"features"`
	RunID         string          `json:"run_id,omitempty"`
	TrainedAt     time.Time       `json:"trained_at"`
	Model         json.RawMessage `json:"model"`
}

type artifactModel interface {
	validate() error
}

// ArtifactPath returns the file that holds the named artifact in dir.
func ArtifactPath(dir, name string) string {
	return filepath.Join(dir, name+artifactExt)
}

// SaveArtifact writes one model to path.
func SaveArtifact(path, name string, meta ModelMetadata, model any) error {
	data, err := encodeArtifact(name, meta, model)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// LoadArtifact decodes the named artifact at path into model, which must be a pointer to the
// matching model type. Failures are *ArtifactError values.
func LoadArtifact(path, name string, model artifactModel) (ModelMetadata, error) {
	fail := func(kind, cause error) (ModelMetadata, error) {
		return ModelMetadata{}, &ArtifactError{Name: name, Path: path, Kind: kind, Cause: cause}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fail(ErrArtifactMissing, nil)
		}
		return fail(ErrArtifactCorrupt, err)
	}

	var env artifactEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return fail(ErrArtifactCorrupt, fmt.Errorf("decode envelope: %w", err))
	}
	if env.Name != name {
		return fail(ErrArtifactCorrupt, fmt.Errorf("envelope holds %q", env.Name))
	}
	if env.FormatVersion != ArtifactFormatVersion {
		return fail(ErrArtifactCorrupt, fmt.Errorf("format version %d, want %d", env.FormatVersion, ArtifactFormatVersion))
	}
	if !features.SchemaMatches(env.Features) {
		return fail(ErrArtifactCorrupt, fmt.Errorf("trained on features %v, serving %v", env.Features, features.Names))
	}
	if len(env.Model) == 0 {
		return fail(ErrArtifactCorrupt, fmt.Errorf("no model payload"))
	}
	if err := json.Unmarshal(env.Model, model); err != nil {
		return fail(ErrArtifactCorrupt, fmt.Errorf("decode model: %w", err))
	}
	if err := model.validate(); err != nil {
		return fail(ErrArtifactCorrupt, err)
	}

	return ModelMetadata{RunID: env.RunID, TrainedAt: env.TrainedAt, Features: env.Features}, nil
}

// SaveAll writes the three artifacts of m into dir. Files are staged under temporary names and only
// renamed into place once all three are on disk, so a failed save never leaves a partial set behind.
func SaveAll(dir string, m *Models) error {
	if m == nil || m.Anomaly == nil || m.Risk == nil || m.Forecast == nil {
		return fmt.Errorf("incomplete model set")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create models directory: %w", err)
	}

	payloads := map[string]any{
		ArtifactIsolationForest: m.Anomaly,
		ArtifactRandomForest:    m.Risk,
		ArtifactLinearRegCO2:    m.Forecast,
	}

	staged := make(map[string]string, len(ArtifactNames))
	cleanup := func() {
		for _, tmp := range staged {
			os.Remove(tmp)
		}
	}

	for _, name := range ArtifactNames {
		data, err := encodeArtifact(name, m.Metadata, payloads[name])
		if err != nil {
			cleanup()
			return err
		}
		tmp, err := writeTemp(dir, name, data)
		if err != nil {
			cleanup()
			return fmt.Errorf("stage %s: %w", name, err)
		}
		staged[name] = tmp
	}

	for _, name := range ArtifactNames {
		if err := os.Rename(staged[name], ArtifactPath(dir, name)); err != nil {
			cleanup()
			return fmt.Errorf("install %s: %w", name, err)
		}
		delete(staged, name)
	}

	log.Info().Str("dir", dir).Str("run_id", m.Metadata.RunID).Msg("model artifacts saved")
	return nil
}

// LoadAll reads the complete model set from dir. Every artifact is attempted; the returned error
// names each one that is missing or unreadable. The three artifacts must come from the same
// training run; a mixed set is reported as corrupt.
func LoadAll(dir string) (*Models, error) {
	m := &Models{
		Anomaly:  &IsolationForest{},
		Risk:     &RandomForest{},
		Forecast: &LinearRegression{},
	}
	targets := map[string]artifactModel{
		ArtifactIsolationForest: m.Anomaly,
		ArtifactRandomForest:    m.Risk,
		ArtifactLinearRegCO2:    m.Forecast,
	}

	var result *multierror.Error
	metas := make(map[string]ModelMetadata, len(ArtifactNames))
	for _, name := range ArtifactNames {
		meta, err := LoadArtifact(ArtifactPath(dir, name), name, targets[name])
		if err != nil {
			result = multierror.Append(result, err)
			continue
		}
		metas[name] = meta
	}
	if result == nil {
		for _, err := range mixedRunErrors(dir, metas) {
			result = multierror.Append(result, err)
		}
	}
	if result != nil {
		result.ErrorFormat = artifactErrorFormat
		return nil, result
	}

	m.Metadata = metas[ArtifactIsolationForest]
	return m, nil
}

// mixedRunErrors reports every artifact whose run id differs from the run shared by the rest of the
// set. When no run holds a majority, every artifact is reported.
func mixedRunErrors(dir string, metas map[string]ModelMetadata) []error {
	counts := make(map[string]int, len(metas))
	for _, meta := range metas {
		counts[meta.RunID]++
	}
	if len(counts) <= 1 {
		return nil
	}

	majority, found := "", false
	for run, n := range counts {
		if 2*n > len(metas) {
			majority, found = run, true
		}
	}

	var errs []error
	for _, name := range ArtifactNames {
		meta := metas[name]
		if found && meta.RunID == majority {
			continue
		}
		cause := fmt.Errorf("from run %q, set is mixed across %d runs", meta.RunID, len(counts))
		if found {
			cause = fmt.Errorf("from run %q, rest of set from run %q", meta.RunID, majority)
		}
		errs = append(errs, &ArtifactError{
			Name:  name,
			Path:  ArtifactPath(dir, name),
			Kind:  ErrArtifactCorrupt,
			Cause: cause,
		})
	}
	return errs
}

func encodeArtifact(name string, meta ModelMetadata, model any) ([]byte, error) {
	raw, err := json.Marshal(model)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", name, err)
	}
	data, err := json.Marshal(artifactEnvelope{
		Name:          name,
		FormatVersion: ArtifactFormatVersion,
		Features:      features.Names[:],
		RunID:         meta.RunID,
		TrainedAt:     meta.TrainedAt,
		Model:         raw,
	})
	if err != nil {
		return nil, fmt.Errorf("encode %s envelope: %w", name, err)
	}
	return data, nil
}

func writeTemp(dir, name string, data []byte) (string, error) {
	f, err := os.CreateTemp(dir, "."+name+"-*.tmp")
	if err != nil {
		return "", err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", err
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", err
	}
	return f.Name(), nil
}
