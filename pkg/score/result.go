package score

import (
	"errors"
	"fmt"
	"strings"

	"github.com/mchmarny/loanrisk/pkg/frame"
)

// Result is the decision for a single applicant.
type Result struct {
	Probability float64 `json:"proba_default" yaml:"proba_default"`
	Prediction  int     `json:"pred_default" yaml:"pred_default"`
	Threshold   float64 `json:"threshold" yaml:"threshold"`
}

// IsDefault reports whether the applicant is classified as a default.
func (r Result) IsDefault() bool {
	return r.Prediction == 1
}

// Label returns the display label for the decision.
func (r Result) Label() string {
	if r.IsDefault() {
		return "DEFAULT (1)"
	}
	return "NO DEFAULT (0)"
}

// Summary aggregates a scored frame.
type Summary struct {
	Rows      int     `json:"rows" yaml:"rows"`
	Defaults  int     `json:"defaults" yaml:"defaults"`
	MeanProba float64 `json:"mean_proba" yaml:"mean_proba"`
	Threshold float64 `json:"threshold" yaml:"threshold"`
}

// One scores a single record and returns its decision.
func One(m *Model, r frame.Record, threshold float64) (*Result, error) {
	if m == nil {
		return nil, errors.New("model is required")
	}
	missing := make([]string, 0)
	for _, c := range m.meta.Features() {
		if _, ok := r[c]; !ok {
			missing = append(missing, c)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrMissingColumns, strings.Join(missing, ", "))
	}
	in, err := frame.FromRecords(m.meta.Features(), r)
	if err != nil {
		return nil, err
	}
	out, err := Score(m, in, threshold)
	if err != nil {
		return nil, err
	}
	rs, err := Results(out, threshold)
	if err != nil {
		return nil, err
	}
	return &rs[0], nil
}

// Results extracts per-row decisions from a scored frame.
func Results(scored *frame.Frame, threshold float64) ([]Result, error) {
	list := make([]Result, 0, scored.Len())
	for i := 0; i < scored.Len(); i++ {
		p, err := scored.Float(i, ProbaColumn)
		if err != nil {
			return nil, err
		}
		d, err := scored.Float(i, PredColumn)
		if err != nil {
			return nil, err
		}
		list = append(list, Result{Probability: p, Prediction: int(d), Threshold: threshold})
	}
	return list, nil
}

// Summarize counts defaults and averages probabilities of a scored frame.
func Summarize(scored *frame.Frame, threshold float64) (*Summary, error) {
	rs, err := Results(scored, threshold)
	if err != nil {
		return nil, err
	}
	s := &Summary{Rows: len(rs), Threshold: threshold}
	var sum float64
	for _, r := range rs {
		sum += r.Probability
		s.Defaults += r.Prediction
	}
	if s.Rows > 0 {
		s.MeanProba = sum / float64(s.Rows)
	}
	return s, nil
}
