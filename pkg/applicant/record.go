package applicant

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/mchmarny/loanrisk/pkg/frame"
	"github.com/shopspring/decimal"
)

// ErrInvalidValue is returned for values that cannot be coerced into a field.
var ErrInvalidValue = errors.New("invalid value")

// Defaults returns a record holding every field's default value.
func Defaults() frame.Record {
	r := make(frame.Record, len(NumericFields)+len(CategoricalFields))
	for _, f := range NumericFields {
		r[f.Name] = f.Default.InexactFloat64()
	}
	for _, f := range CategoricalFields {
		r[f.Name] = f.Default()
	}
	return r
}

// Set coerces value into the named field of r.
// Numeric values are clamped; categorical values outside the set fall back to Unknown
// when the field has it and are rejected otherwise.
func Set(r frame.Record, name, value string) error {
	value = strings.TrimSpace(value)
	if f, ok := Numeric(name); ok {
		d, err := decimal.NewFromString(value)
		if err != nil {
			return fmt.Errorf("%w: %s=%q is not a number", ErrInvalidValue, name, value)
		}
		r[name] = f.Clamp(d).InexactFloat64()
		return nil
	}
	if f, ok := Categorical(name); ok {
		if f.Has(value) {
			r[name] = value
			return nil
		}
		if fb, ok := f.Fallback(); ok {
			r[name] = fb
			return nil
		}
		return fmt.Errorf("%w: %s=%q (permitted options: %s)", ErrInvalidValue, name, value, strings.Join(f.Options, ", "))
	}
	return fmt.Errorf("unknown field: %s", name)
}

// FromValues builds a record from form values, starting from defaults.
// Fields absent from values keep their defaults; unrelated keys are ignored.
func FromValues(values url.Values) (frame.Record, error) {
	r := Defaults()
	for _, name := range FieldNames() {
		if !values.Has(name) {
			continue
		}
		if err := Set(r, name, values.Get(name)); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// FromPairs builds a record from name=value assignments, starting from defaults.
func FromPairs(pairs []string) (frame.Record, error) {
	r := Defaults()
	for _, p := range pairs {
		name, value, ok := strings.Cut(p, "=")
		if !ok {
			return nil, fmt.Errorf("%w: %q (expected name=value)", ErrInvalidValue, p)
		}
		if err := Set(r, strings.TrimSpace(name), value); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Sample returns the one-row sample input.
func Sample() (*frame.Frame, error) {
	return frame.FromRecords(FieldNames(), Defaults())
}
