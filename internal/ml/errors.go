package ml

import (
	"errors"
	"fmt"
	"strings"

	"github.com/hashicorp/go-multierror"
)

var (
	// ErrArtifactMissing is returned when a model artifact file does not exist.
	ErrArtifactMissing = errors.New("artifact not found")

	// ErrArtifactCorrupt is returned when an artifact exists but cannot be decoded into a usable model.
	ErrArtifactCorrupt = errors.New("artifact unreadable")

	// ErrInvalidFeature is returned for NaN or infinite input before any model is called.
	ErrInvalidFeature = errors.New("invalid feature input")

	// ErrInternalConsistency signals a model output outside its contract, such as an unknown risk class.
	ErrInternalConsistency = errors.New("internal consistency fault")

	// ErrModelsUnavailable wraps any failure to obtain the loaded model set.
	ErrModelsUnavailable = errors.New("models unavailable")
)

// ArtifactError describes a failure to load one named artifact.
type ArtifactError struct {
	Name  string
	Path  string
	Kind  error // ErrArtifactMissing or ErrArtifactCorrupt
	Cause error
}

func (e *ArtifactError) Error() string {
	if e.Cause == nil {
		return fmt.Sprintf("%s (%s): %v", e.Name, e.Path, e.Kind)
	}
	return fmt.Sprintf("%s (%s): %v: %v", e.Name, e.Path, e.Kind, e.Cause)
}

func (e *ArtifactError) Unwrap() []error {
	if e.Cause == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Cause}
}

// FailedArtifacts returns the artifact names carried by err, grouped by kind.
func FailedArtifacts(err error) (missing, corrupt []string) {
	for _, e := range artifactErrors(err) {
		switch {
		case errors.Is(e.Kind, ErrArtifactMissing):
			missing = append(missing, e.Name)
		case errors.Is(e.Kind, ErrArtifactCorrupt):
			corrupt = append(corrupt, e.Name)
		}
	}
	return missing, corrupt
}

func artifactErrors(err error) []*ArtifactError {
	var merr *multierror.Error
	if errors.As(err, &merr) {
		var out []*ArtifactError
		for _, e := range merr.Errors {
			var ae *ArtifactError
			if errors.As(e, &ae) {
				out = append(out, ae)
			}
		}
		return out
	}

	var ae *ArtifactError
	if errors.As(err, &ae) {
		return []*ArtifactError{ae}
	}
	return nil
}

// artifactErrorFormat renders an aggregate artifact failure on one line.
func artifactErrorFormat(es []error) string {
	parts := make([]string, len(es))
	for i, e := range es {
		parts[i] = e.Error()
	}
	noun := "artifacts"
	if len(es) == 1 {
		noun = "artifact"
	}
	return fmt.Sprintf("%d model %s failed to load: %s (run the training command to provision them)",
		len(es), noun, strings.Join(parts, "; "))
}
