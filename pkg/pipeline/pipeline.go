package pipeline

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strings"

	"github.com/mchmarny/loanrisk/pkg/frame"
)

const (
	// FormatV1 identifies the serialized pipeline document layout.
	FormatV1 = "loanrisk.pipeline/v1"

	classifierLogistic = "logistic_regression"

	// HandleUnknownIgnore encodes unseen categories as all zeros.
	HandleUnknownIgnore = "ignore"
	// HandleUnknownError fails prediction on unseen categories.
	HandleUnknownError = "error"
)

// ErrUnknownCategory is returned when a categorical value was not seen
// at training time and the encoder is configured to reject it.
var ErrUnknownCategory = errors.New("unknown category")

// Numeric describes median/mean imputation followed by standard scaling.
type Numeric struct {
	Features []string  `json:"features"`
	Impute   []float64 `json:"impute"`
	Mean     []float64 `json:"mean"`
	Scale    []float64 `json:"scale"`
}

// Categorical describes constant imputation followed by one-hot encoding.
type Categorical struct {
	Features      []string   `json:"features"`
	FillValue     string     `json:"fill_value"`
	Categories    [][]string `json:"categories"`
	HandleUnknown string     `json:"handle_unknown"`
}

// Classifier holds the fitted linear head.
type Classifier struct {
	Type      string    `json:"type"`
	Coef      []float64 `json:"coef"`
	Intercept float64   `json:"intercept"`
}

// Pipeline is a fitted preprocessing + logistic-regression pipeline.
// It is immutable after Decode and safe for concurrent use.
type Pipeline struct {
	Format      string      `json:"format"`
	Numeric     Numeric     `json:"numeric"`
	Categorical Categorical `json:"categorical"`
	Classifier  Classifier  `json:"classifier"`

	lookup []map[string]int
}

// Load reads and decodes a pipeline file.
func Load(path string) (*Pipeline, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening pipeline file %s: %w", path, err)
	}
	defer f.Close()

	p, err := Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decoding pipeline file %s: %w", path, err)
	}
	return p, nil
}

// Decode reads a serialized pipeline and validates its shape.
func Decode(r io.Reader) (*Pipeline, error) {
	var p Pipeline
	d := json.NewDecoder(r)
	d.DisallowUnknownFields()
	if err := d.Decode(&p); err != nil {
		return nil, fmt.Errorf("parsing pipeline: %w", err)
	}
	if err := p.init(); err != nil {
		return nil, err
	}
	return &p, nil
}

func (p *Pipeline) init() error {
	if p.Format != FormatV1 {
		return fmt.Errorf("unsupported pipeline format: %q (want %q)", p.Format, FormatV1)
	}
	if p.Classifier.Type != classifierLogistic {
		return fmt.Errorf("unsupported classifier: %q", p.Classifier.Type)
	}

	n := len(p.Numeric.Features)
	if len(p.Numeric.Impute) != n || len(p.Numeric.Mean) != n || len(p.Numeric.Scale) != n {
		return fmt.Errorf("numeric block: impute/mean/scale must each have %d values", n)
	}

	c := p.Categorical
	if len(c.Categories) != len(c.Features) {
		return fmt.Errorf("categorical block: %d category lists for %d features", len(c.Categories), len(c.Features))
	}
	switch c.HandleUnknown {
	case "":
		p.Categorical.HandleUnknown = HandleUnknownIgnore
	case HandleUnknownIgnore, HandleUnknownError:
	default:
		return fmt.Errorf("categorical block: invalid handle_unknown %q", c.HandleUnknown)
	}

	width := n
	p.lookup = make([]map[string]int, len(c.Categories))
	for i, cats := range c.Categories {
		m := make(map[string]int, len(cats))
		for j, v := range cats {
			if _, ok := m[v]; ok {
				return fmt.Errorf("categorical block: duplicate category %q for %s", v, c.Features[i])
			}
			m[v] = j
		}
		p.lookup[i] = m
		width += len(cats)
	}

	if len(p.Classifier.Coef) != width {
		return fmt.Errorf("classifier: %d coefficients for %d encoded features", len(p.Classifier.Coef), width)
	}
	return nil
}

// NumericFeatures returns the numeric input columns in training order.
func (p *Pipeline) NumericFeatures() []string {
	return append([]string(nil), p.Numeric.Features...)
}

// CategoricalFeatures returns the categorical input columns in training order.
func (p *Pipeline) CategoricalFeatures() []string {
	return append([]string(nil), p.Categorical.Features...)
}

// PredictProba returns the positive-class probability for each row of f.
// Columns not used by the pipeline are ignored.
func (p *Pipeline) PredictProba(f *frame.Frame) ([]float64, error) {
	if missing := f.Missing(append(p.NumericFeatures(), p.CategoricalFeatures()...)...); len(missing) > 0 {
		return nil, fmt.Errorf("columns are missing: %s", strings.Join(missing, ", "))
	}

	out := make([]float64, f.Len())
	x := make([]float64, len(p.Classifier.Coef))
	for r := 0; r < f.Len(); r++ {
		if err := p.transform(f, r, x); err != nil {
			return nil, err
		}
		z := p.Classifier.Intercept
		for i, w := range p.Classifier.Coef {
			z += w * x[i]
		}
		out[r] = sigmoid(z)
	}
	return out, nil
}

// transform writes the encoded feature vector for row r into x.
func (p *Pipeline) transform(f *frame.Frame, r int, x []float64) error {
	for i := range x {
		x[i] = 0
	}

	for i, name := range p.Numeric.Features {
		v, err := f.Float(r, name)
		if err != nil {
			return err
		}
		if math.IsNaN(v) {
			v = p.Numeric.Impute[i]
		}
		if math.IsInf(v, 0) {
			return fmt.Errorf("row %d, column %s: value is not finite", r, name)
		}
		scale := p.Numeric.Scale[i]
		if scale == 0 {
			scale = 1
		}
		x[i] = (v - p.Numeric.Mean[i]) / scale
	}

	offset := len(p.Numeric.Features)
	for i, name := range p.Categorical.Features {
		s, ok, err := f.Text(r, name)
		if err != nil {
			return err
		}
		if !ok || strings.TrimSpace(s) == "" {
			s = p.Categorical.FillValue
		}
		if j, found := p.lookup[i][s]; found {
			x[offset+j] = 1
		} else if p.Categorical.HandleUnknown == HandleUnknownError {
			return fmt.Errorf("row %d, column %s: %w: %q", r, name, ErrUnknownCategory, s)
		}
		offset += len(p.Categorical.Categories[i])
	}
	return nil
}

func sigmoid(z float64) float64 {
	if z >= 0 {
		return 1 / (1 + math.Exp(-z))
	}
	e := math.Exp(z)
	return e / (1 + e)
}
