package score

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/mchmarny/loanrisk/pkg/artifact"
	"github.com/mchmarny/loanrisk/pkg/frame"
)

const (
	// ProbaColumn holds the positive-class probability.
	ProbaColumn = "proba_default"
	// PredColumn holds the 0/1 decision.
	PredColumn = "pred_default"

	// SliderMin and SliderMax bound the interactive threshold control.
	SliderMin  = 0.05
	SliderMax  = 0.95
	SliderStep = 0.01
)

var (
	// ErrInvalidThreshold is returned for thresholds outside (0,1).
	ErrInvalidThreshold = errors.New("threshold must be greater than 0 and less than 1")
	// ErrMissingColumns is returned when input lacks required feature columns.
	ErrMissingColumns = errors.New("missing required columns")
	// ErrEmptyInput is returned when the input frame is nil.
	ErrEmptyInput = errors.New("input table is required")
)

// Predictor produces the positive-class probability for each row.
// Implementations must not mutate the frame and must be safe for concurrent use.
type Predictor interface {
	PredictProba(f *frame.Frame) ([]float64, error)
}

// Model is the immutable scoring context: a fitted predictor plus its metadata.
type Model struct {
	predictor Predictor
	meta      artifact.Metadata
}

// NewModel creates a scoring context.
func NewModel(p Predictor, meta artifact.Metadata) (*Model, error) {
	if p == nil {
		return nil, errors.New("predictor is required")
	}
	if err := meta.Validate(); err != nil {
		return nil, fmt.Errorf("invalid metadata: %w", err)
	}
	m := &Model{predictor: p, meta: meta}
	m.meta.NumericFeatures = append([]string(nil), meta.NumericFeatures...)
	m.meta.CategoricalFeatures = append([]string(nil), meta.CategoricalFeatures...)
	return m, nil
}

// FromBundle creates a scoring context from loaded artifacts.
func FromBundle(b *artifact.Bundle) (*Model, error) {
	if b == nil || b.Pipeline == nil {
		return nil, errors.New("artifact bundle is required")
	}
	return NewModel(b.Pipeline, b.Metadata)
}

// Metadata returns a copy of the model metadata.
func (m *Model) Metadata() artifact.Metadata {
	c := m.meta
	c.NumericFeatures = append([]string(nil), m.meta.NumericFeatures...)
	c.CategoricalFeatures = append([]string(nil), m.meta.CategoricalFeatures...)
	return c
}

// DefaultThreshold returns the threshold saved at training time.
func (m *Model) DefaultThreshold() float64 {
	return m.meta.Threshold
}

// Score returns a copy of in with ProbaColumn and PredColumn appended.
// The whole call fails on any schema or pipeline error; in is never modified.
func Score(m *Model, in *frame.Frame, threshold float64) (*frame.Frame, error) {
	if m == nil {
		return nil, errors.New("model is required")
	}
	if in == nil {
		return nil, ErrEmptyInput
	}
	if err := ValidateThreshold(threshold); err != nil {
		return nil, err
	}
	if missing := in.Missing(m.meta.Features()...); len(missing) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrMissingColumns, strings.Join(missing, ", "))
	}

	// predictors only ever see a private copy
	probs, err := m.predictor.PredictProba(in.Clone())
	if err != nil {
		return nil, fmt.Errorf("scoring: %w", err)
	}
	if len(probs) != in.Len() {
		return nil, fmt.Errorf("scoring: predictor returned %d probabilities for %d rows", len(probs), in.Len())
	}

	pv := make([]any, len(probs))
	dv := make([]any, len(probs))
	for i, p := range probs {
		if math.IsNaN(p) || p < 0 || p > 1 {
			return nil, fmt.Errorf("scoring: row %d probability %v outside [0,1]", i, p)
		}
		pv[i] = p
		dv[i] = float64(Decide(p, threshold))
	}

	out, err := in.WithColumn(ProbaColumn, pv)
	if err != nil {
		return nil, err
	}
	return out.WithColumn(PredColumn, dv)
}

// Decide returns 1 when p is at or above threshold, otherwise 0.
func Decide(p, threshold float64) int {
	if p >= threshold {
		return 1
	}
	return 0
}

// ValidateThreshold rejects thresholds outside the open interval (0,1).
func ValidateThreshold(t float64) error {
	if math.IsNaN(t) || t <= 0 || t >= 1 {
		return fmt.Errorf("%w: %v", ErrInvalidThreshold, t)
	}
	return nil
}

// ClampThreshold bounds t to the interactive slider range, rounded to the slider step.
// NaN falls back to def.
func ClampThreshold(t, def float64) float64 {
	if math.IsNaN(t) {
		t = def
	}
	t = math.Round(t/SliderStep) * SliderStep
	t = math.Round(t*100) / 100
	return math.Min(SliderMax, math.Max(SliderMin, t))
}
