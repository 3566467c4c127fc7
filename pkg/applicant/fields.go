package applicant

import (
	"github.com/shopspring/decimal"
)

// NumericField is a bounded numeric input.
type NumericField struct {
	Name    string
	Label   string
	Min     decimal.Decimal
	Max     decimal.Decimal
	Default decimal.Decimal
	Step    decimal.Decimal
	Integer bool
}

// CategoricalField is a closed-set input.
type CategoricalField struct {
	Name    string
	Label   string
	Options []string
}

// UnknownOption is the fallback label for unrecognized categorical values.
const UnknownOption = "Unknown"

func num(name, label string, min, max, def, step float64, integer bool) NumericField {
	return NumericField{
		Name:    name,
		Label:   label,
		Min:     decimal.NewFromFloat(min),
		Max:     decimal.NewFromFloat(max),
		Default: decimal.NewFromFloat(def),
		Step:    decimal.NewFromFloat(step),
		Integer: integer,
	}
}

var (
	// NumericFields lists the numeric applicant inputs in display order.
	NumericFields = []NumericField{
		num("loanamount", "Loan Amount", 0, 1e7, 5000, 500, false),
		num("termdays", "Term Days", 1, 365, 30, 1, true),
		num("loannumber", "Loan Number", 1, 20, 1, 1, true),
		num("approved_hour", "Approved Hour (0–23)", 0, 23, 12, 1, true),
		num("avg_interest_amount", "Average Interest Amount", 0, 1e6, 200, 10, false),
		num("avg_daily_repayment_amount", "Avg Daily Repayment Amount", 0, 1e5, 150, 5, false),
		num("loan_to_term_ratio", "Loan-to-Term Ratio", 0, 1e5, 166.7, 1, false),
		num("estimated_income", "Estimated Income", 0, 1e7, 60000, 1000, false),
		num("debt_to_income", "Debt-to-Income (0–1)", 0, 5, 0.35, 0.01, false),
		num("loan_to_income_ratio", "Loan-to-Income Ratio", 0, 5, 0.08, 0.01, false),
		num("avg_credit_score", "Average Credit Score", 0, 1000, 650, 5, false),
		num("age", "Age", 18, 100, 32, 1, true),
	}

	// CategoricalFields lists the closed-set applicant inputs in display order.
	CategoricalFields = []CategoricalField{
		{
			Name:    "bank_account_type",
			Label:   "Bank Account Type",
			Options: []string{"Savings", "Current", "Other", UnknownOption},
		},
		{
			Name:    "employment_status_clients",
			Label:   "Employment Status",
			Options: []string{"Permanent", "Self-employed", "Student", "Unemployed", "Retired", "Contract", UnknownOption},
		},
		{
			Name:    "approved_weekday",
			Label:   "Approved Weekday",
			Options: []string{"Monday", "Tuesday", "Wednesday", "Thursday", "Friday", "Saturday", "Sunday"},
		},
		{
			Name:  "bank_name_clients",
			Label: "Bank Name",
			Options: []string{
				"GT Bank", "First Bank", "Access Bank", "UBA", "Zenith Bank", "Diamond Bank",
				"Stanbic IBTC", "Skye Bank", "Sterling Bank", "Union Bank", "Heritage Bank",
				"Keystone Bank", "Unity Bank", UnknownOption,
			},
		},
	}
)

// Clamp bounds v to the field range. Integer fields round half away from zero.
func (f NumericField) Clamp(v decimal.Decimal) decimal.Decimal {
	if f.Integer {
		v = v.Round(0)
	}
	if v.LessThan(f.Min) {
		return f.Min
	}
	if v.GreaterThan(f.Max) {
		return f.Max
	}
	return v
}

// HTMLStep returns the value for the HTML input step attribute.
// Float fields accept any value so that defaults off the step grid stay valid.
func (f NumericField) HTMLStep() string {
	if f.Integer {
		return f.Step.String()
	}
	return "any"
}

// Has reports whether value is one of the options.
func (f CategoricalField) Has(value string) bool {
	for _, o := range f.Options {
		if o == value {
			return true
		}
	}
	return false
}

// Fallback returns the option used for unrecognized values, if any.
func (f CategoricalField) Fallback() (string, bool) {
	if f.Has(UnknownOption) {
		return UnknownOption, true
	}
	return "", false
}

// Default returns the preselected option.
func (f CategoricalField) Default() string {
	if len(f.Options) == 0 {
		return ""
	}
	if f.Name == "approved_weekday" {
		return "Wednesday"
	}
	return f.Options[0]
}

// FieldNames returns numeric then categorical field names.
func FieldNames() []string {
	list := make([]string, 0, len(NumericFields)+len(CategoricalFields))
	for _, f := range NumericFields {
		list = append(list, f.Name)
	}
	for _, f := range CategoricalFields {
		list = append(list, f.Name)
	}
	return list
}

// Numeric finds a numeric field by name.
func Numeric(name string) (NumericField, bool) {
	for _, f := range NumericFields {
		if f.Name == name {
			return f, true
		}
	}
	return NumericField{}, false
}

// Categorical finds a categorical field by name.
func Categorical(name string) (CategoricalField, bool) {
	for _, f := range CategoricalFields {
		if f.Name == name {
			return f, true
		}
	}
	return CategoricalField{}, false
}
