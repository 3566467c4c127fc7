package score

import (
	"errors"
	"math"
	"testing"

	"github.com/mchmarny/loanrisk/pkg/artifact"
	"github.com/mchmarny/loanrisk/pkg/frame"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testMeta = artifact.Metadata{
	Threshold: 0.5,
	NumericFeatures: []string{
		"loanamount", "termdays", "loannumber", "approved_hour",
		"avg_interest_amount", "avg_daily_repayment_amount", "loan_to_term_ratio",
		"estimated_income", "debt_to_income", "loan_to_income_ratio",
		"avg_credit_score", "age",
	},
	CategoricalFeatures: []string{
		"bank_account_type", "employment_status_clients", "approved_weekday", "bank_name_clients",
	},
}

func exampleRecord() frame.Record {
	return frame.Record{
		"loanamount": 5000, "termdays": 30, "loannumber": 1, "approved_hour": 12,
		"avg_interest_amount": 200, "avg_daily_repayment_amount": 150, "loan_to_term_ratio": 166.7,
		"estimated_income": 60000, "debt_to_income": 0.35, "loan_to_income_ratio": 0.08,
		"avg_credit_score": 650, "age": 32,
		"bank_account_type": "Savings", "employment_status_clients": "Permanent",
		"approved_weekday": "Wednesday", "bank_name_clients": "GT Bank",
	}
}

// fixed returns the same probability list for every call.
type fixed []float64

func (f fixed) PredictProba(in *frame.Frame) ([]float64, error) {
	out := make([]float64, in.Len())
	for i := range out {
		out[i] = f[i%len(f)]
	}
	return out, nil
}

// tampering appends rows to whatever it is given.
type tampering struct{}

func (tampering) PredictProba(in *frame.Frame) ([]float64, error) {
	n := in.Len()
	_ = in.Append(in.Row(0)...)
	return make([]float64, n), nil
}

type failing struct{ err error }

func (f failing) PredictProba(*frame.Frame) ([]float64, error) { return nil, f.err }

func newModel(t *testing.T, p Predictor) *Model {
	t.Helper()
	m, err := NewModel(p, testMeta)
	require.NoError(t, err)
	return m
}

func exampleFrame(t *testing.T, n int) *frame.Frame {
	t.Helper()
	recs := make([]frame.Record, n)
	for i := range recs {
		recs[i] = exampleRecord()
		recs[i]["loanamount"] = 1000 * (i + 1)
	}
	f, err := frame.FromRecords(testMeta.Features(), recs...)
	require.NoError(t, err)
	return f
}

func TestScore_EndToEndExample(t *testing.T) {
	tests := []struct {
		name  string
		proba float64
		want  int
	}{
		{"below threshold", 0.42, 0},
		{"exactly threshold", 0.50, 1},
		{"above threshold", 0.73, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := newModel(t, fixed{tt.proba})
			r, err := One(m, exampleRecord(), 0.5)
			require.NoError(t, err)
			assert.Equal(t, tt.proba, r.Probability)
			assert.Equal(t, tt.want, r.Prediction)
			assert.Equal(t, 0.5, r.Threshold)
		})
	}
}

func TestDecide_Boundary(t *testing.T) {
	for _, thr := range []float64{0.05, 0.3, 0.5, 0.77, 0.95} {
		for _, p := range []float64{0, thr - 1e-9, thr, thr + 1e-9, 1} {
			want := 0
			if p >= thr {
				want = 1
			}
			assert.Equal(t, want, Decide(p, thr), "p=%v thr=%v", p, thr)
		}
	}
}

func TestScore_AppendsColumnsAndPreservesOrder(t *testing.T) {
	m := newModel(t, fixed{0.1, 0.6, 0.5})
	in := exampleFrame(t, 3)

	out, err := Score(m, in, 0.5)
	require.NoError(t, err)
	assert.Equal(t, 3, out.Len())
	assert.Equal(t, append(testMeta.Features(), ProbaColumn, PredColumn), out.Columns())

	for i, want := range []float64{0, 1, 1} {
		amount, err := out.Float(i, "loanamount")
		require.NoError(t, err)
		assert.Equal(t, float64(1000*(i+1)), amount)

		d, err := out.Float(i, PredColumn)
		require.NoError(t, err)
		assert.Equal(t, want, d)
	}
}

func TestScore_DoesNotMutateInput(t *testing.T) {
	in := exampleFrame(t, 2)
	before := in.Records()
	cols := in.Columns()

	for _, p := range []Predictor{fixed{0.3}, tampering{}} {
		_, err := Score(newModel(t, p), in, 0.5)
		require.NoError(t, err)
		assert.Equal(t, cols, in.Columns())
		assert.Equal(t, before, in.Records())
		assert.Equal(t, 2, in.Len())
	}
}

func TestScore_Deterministic(t *testing.T) {
	m := newModel(t, fixed{0.2, 0.8})
	in := exampleFrame(t, 4)
	a, err := Score(m, in, 0.4)
	require.NoError(t, err)
	b, err := Score(m, in, 0.4)
	require.NoError(t, err)
	assert.Equal(t, a.Records(), b.Records())
}

func TestScore_ExtraColumnsCarriedThrough(t *testing.T) {
	cols := append(testMeta.Features(), "applicant_id")
	rec := exampleRecord()
	rec["applicant_id"] = "A-1"
	in, err := frame.FromRecords(cols, rec)
	require.NoError(t, err)

	out, err := Score(newModel(t, fixed{0.9}), in, 0.5)
	require.NoError(t, err)
	assert.Equal(t, "A-1", out.Record(0)["applicant_id"])
}

func TestScore_MissingColumns(t *testing.T) {
	in, err := frame.FromRecords([]string{"loanamount", "age"}, frame.Record{"loanamount": 1, "age": 30})
	require.NoError(t, err)

	_, err = Score(newModel(t, fixed{0.5}), in, 0.5)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMissingColumns))
	assert.Contains(t, err.Error(), "bank_name_clients")
}

func TestScore_InvalidThreshold(t *testing.T) {
	m := newModel(t, fixed{0.5})
	in := exampleFrame(t, 1)
	for _, thr := range []float64{0, 1, -0.1, 1.5, math.NaN()} {
		_, err := Score(m, in, thr)
		assert.ErrorIs(t, err, ErrInvalidThreshold)
	}
}

func TestScore_PredictorErrorPropagates(t *testing.T) {
	boom := errors.New("boom")
	_, err := Score(newModel(t, failing{boom}), exampleFrame(t, 1), 0.5)
	assert.ErrorIs(t, err, boom)
}

func TestScore_RejectsOutOfRangeProbability(t *testing.T) {
	_, err := Score(newModel(t, fixed{1.2}), exampleFrame(t, 1), 0.5)
	assert.Error(t, err)
}

func TestScore_NilArgs(t *testing.T) {
	_, err := Score(nil, exampleFrame(t, 1), 0.5)
	assert.Error(t, err)
	_, err = Score(newModel(t, fixed{0.5}), nil, 0.5)
	assert.ErrorIs(t, err, ErrEmptyInput)
}

func TestOne_MissingField(t *testing.T) {
	rec := exampleRecord()
	delete(rec, "age")
	_, err := One(newModel(t, fixed{0.5}), rec, 0.5)
	assert.ErrorIs(t, err, ErrMissingColumns)
}

func TestNewModel_Invalid(t *testing.T) {
	_, err := NewModel(nil, testMeta)
	assert.Error(t, err)

	bad := testMeta
	bad.Threshold = 2
	_, err = NewModel(fixed{0.5}, bad)
	assert.Error(t, err)

	_, err = FromBundle(nil)
	assert.Error(t, err)
}

func TestModel_MetadataIsCopy(t *testing.T) {
	m := newModel(t, fixed{0.5})
	md := m.Metadata()
	md.NumericFeatures[0] = "changed"
	assert.Equal(t, "loanamount", m.Metadata().NumericFeatures[0])
	assert.Equal(t, 0.5, m.DefaultThreshold())
}

func TestSummarize(t *testing.T) {
	out, err := Score(newModel(t, fixed{0.2, 0.8}), exampleFrame(t, 4), 0.5)
	require.NoError(t, err)

	s, err := Summarize(out, 0.5)
	require.NoError(t, err)
	assert.Equal(t, 4, s.Rows)
	assert.Equal(t, 2, s.Defaults)
	assert.InDelta(t, 0.5, s.MeanProba, 1e-12)
}

func TestValidateAndClampThreshold(t *testing.T) {
	assert.NoError(t, ValidateThreshold(0.5))
	assert.NoError(t, ValidateThreshold(0.001))
	assert.Error(t, ValidateThreshold(0))

	assert.Equal(t, 0.05, ClampThreshold(0.0, 0.5))
	assert.Equal(t, 0.95, ClampThreshold(3, 0.5))
	assert.Equal(t, 0.42, ClampThreshold(0.4213, 0.5))
	assert.Equal(t, 0.5, ClampThreshold(math.NaN(), 0.5))
}

func TestResult_Label(t *testing.T) {
	assert.Equal(t, "DEFAULT (1)", Result{Prediction: 1}.Label())
	assert.Equal(t, "NO DEFAULT (0)", Result{Prediction: 0}.Label())
}
