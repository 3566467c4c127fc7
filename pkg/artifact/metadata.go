package artifact

import (
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// DefaultThreshold is used when the metadata document does not carry one.
const DefaultThreshold = 0.5

// Metadata describes the features and decision threshold recorded at training time.
// It is read-only once loaded.
type Metadata struct {
	Threshold           float64        `json:"threshold" yaml:"threshold"`
	NumericFeatures     []string       `json:"numeric_features" yaml:"numeric_features"`
	CategoricalFeatures []string       `json:"categorical_features" yaml:"categorical_features"`
	Model               string         `json:"model,omitempty" yaml:"model,omitempty"`
	Version             string         `json:"version,omitempty" yaml:"version,omitempty"`
	TrainedAt           string         `json:"trained_at,omitempty" yaml:"trained_at,omitempty"`
	Extra               map[string]any `json:"extra,omitempty" yaml:",inline"`
}

// Features returns numeric followed by categorical feature names.
func (m Metadata) Features() []string {
	list := make([]string, 0, len(m.NumericFeatures)+len(m.CategoricalFeatures))
	list = append(list, m.NumericFeatures...)
	return append(list, m.CategoricalFeatures...)
}

// IsNumeric reports whether name is one of the numeric features.
func (m Metadata) IsNumeric(name string) bool {
	for _, n := range m.NumericFeatures {
		if n == name {
			return true
		}
	}
	return false
}

// ReadMetadata loads a metadata document from disk. JSON and YAML are both accepted.
func ReadMetadata(path string) (*Metadata, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening metadata file %s: %w", path, err)
	}
	defer f.Close()

	m, err := DecodeMetadata(f)
	if err != nil {
		return nil, fmt.Errorf("metadata file %s: %w", path, err)
	}
	return m, nil
}

// DecodeMetadata parses and validates a metadata document.
func DecodeMetadata(r io.Reader) (*Metadata, error) {
	// fields absent from the document keep their preset values
	m := Metadata{Threshold: DefaultThreshold}
	if err := yaml.NewDecoder(r).Decode(&m); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("metadata document is empty")
		}
		return nil, fmt.Errorf("parsing metadata: %w", err)
	}

	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// Validate checks the threshold range and feature lists.
func (m Metadata) Validate() error {
	if !(m.Threshold > 0 && m.Threshold < 1) {
		return fmt.Errorf("threshold %v outside (0,1)", m.Threshold)
	}
	if len(m.NumericFeatures)+len(m.CategoricalFeatures) == 0 {
		return errors.New("metadata lists no features")
	}
	seen := make(map[string]bool)
	for _, f := range m.Features() {
		if f == "" {
			return errors.New("metadata contains an empty feature name")
		}
		if seen[f] {
			return fmt.Errorf("feature %s listed more than once", f)
		}
		seen[f] = true
	}
	return nil
}
