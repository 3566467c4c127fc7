package cli

import (
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/mchmarny/loanrisk/pkg/applicant"
	"github.com/mchmarny/loanrisk/pkg/artifact"
	"github.com/mchmarny/loanrisk/pkg/data"
	"github.com/mchmarny/loanrisk/pkg/frame"
	"github.com/mchmarny/loanrisk/pkg/score"
)

var templateFuncs = template.FuncMap{
	"pct": func(v float64) string { return fmt.Sprintf("%.1f%%", v*100) },
	"f2":  func(v float64) string { return fmt.Sprintf("%.2f", v) },
	"f3":  func(v float64) string { return fmt.Sprintf("%.3f", v) },
}

type numericInput struct {
	applicant.NumericField
	Value string
}

type categoricalInput struct {
	applicant.CategoricalField
	Value string
}

type homePage struct {
	Version     string
	Commit      string
	BuildDate   string
	Model       artifact.Metadata
	Numeric     []numericInput
	Categorical []categoricalInput
	Threshold   float64
	SliderMin   float64
	SliderMax   float64
	SliderStep  float64
	Result      *score.Result
	Batch       *batchView
	Err         string
}

func newHomePage(meta artifact.Metadata, r frame.Record, threshold float64) *homePage {
	p := &homePage{
		Version:    version,
		Commit:     commit,
		BuildDate:  date,
		Model:      meta,
		Threshold:  threshold,
		SliderMin:  score.SliderMin,
		SliderMax:  score.SliderMax,
		SliderStep: score.SliderStep,
	}
	for _, f := range applicant.NumericFields {
		v, _ := r[f.Name].(float64)
		p.Numeric = append(p.Numeric, numericInput{NumericField: f, Value: frame.FormatFloat(v)})
	}
	for _, f := range applicant.CategoricalFields {
		v, _ := r[f.Name].(string)
		p.Categorical = append(p.Categorical, categoricalInput{CategoricalField: f, Value: v})
	}
	return p
}

func faviconHandler(w http.ResponseWriter, r *http.Request) {
	file, err := embedFS.ReadFile("assets/img/favicon.svg")
	if err != nil {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "image/svg+xml")
	if _, err = w.Write(file); err != nil {
		slog.Error("failed to write favicon", "error", err)
	}
}

func renderHome(w http.ResponseWriter, tmpl *template.Template, status int, p *homePage) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := tmpl.ExecuteTemplate(w, "home", p); err != nil {
		slog.Error("template render failed", "error", err)
	}
}

func homeViewHandler(tmpl *template.Template, cfg *appConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		m, _, err := cfg.model()
		if err != nil {
			slog.Error("model unavailable", "error", err)
			http.Error(w, "model unavailable", http.StatusServiceUnavailable)
			return
		}
		meta := m.Metadata()
		p := newHomePage(meta, applicant.Defaults(), score.ClampThreshold(meta.Threshold, meta.Threshold))
		p.Err = r.URL.Query().Get("err")
		renderHome(w, tmpl, http.StatusOK, p)
	}
}

func predictViewHandler(tmpl *template.Template, cfg *appConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		m, _, err := cfg.model()
		if err != nil {
			slog.Error("model unavailable", "error", err)
			http.Error(w, "model unavailable", http.StatusServiceUnavailable)
			return
		}
		meta := m.Metadata()

		if err := r.ParseForm(); err != nil {
			p := newHomePage(meta, applicant.Defaults(), meta.Threshold)
			p.Err = fmt.Sprintf("invalid form: %v", err)
			renderHome(w, tmpl, http.StatusBadRequest, p)
			return
		}

		threshold := formThreshold(r, meta.Threshold)

		rec, err := applicant.FromValues(r.PostForm)
		if err != nil {
			p := newHomePage(meta, applicant.Defaults(), threshold)
			p.Err = err.Error()
			renderHome(w, tmpl, http.StatusBadRequest, p)
			return
		}

		start := time.Now()
		res, err := score.One(m, rec, threshold)
		if err != nil {
			cfg.failRun(data.RunModeSingle)
			slog.Error("prediction failed", "error", err)
			p := newHomePage(meta, rec, threshold)
			p.Err = fmt.Sprintf("prediction failed: %v", err)
			renderHome(w, tmpl, http.StatusBadRequest, p)
			return
		}
		cfg.recordRun(data.RunModeSingle, "form", m, &score.Summary{
			Rows:      1,
			Defaults:  res.Prediction,
			MeanProba: res.Probability,
			Threshold: threshold,
		}, time.Since(start))

		p := newHomePage(meta, rec, threshold)
		p.Result = res
		renderHome(w, tmpl, http.StatusOK, p)
	}
}

// formThreshold reads the slider value, clamped to the slider range.
// Missing or unparsable values fall back to def.
func formThreshold(r *http.Request, def float64) float64 {
	v := strings.TrimSpace(r.FormValue("threshold"))
	if v == "" {
		return score.ClampThreshold(def, def)
	}
	t, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return score.ClampThreshold(def, def)
	}
	return score.ClampThreshold(t, def)
}
