package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/mchmarny/loanrisk/pkg/applicant"
	"github.com/mchmarny/loanrisk/pkg/artifact"
	"github.com/mchmarny/loanrisk/pkg/batch"
	"github.com/mchmarny/loanrisk/pkg/data"
	"github.com/mchmarny/loanrisk/pkg/frame"
	"github.com/mchmarny/loanrisk/pkg/score"
)

const (
	maxUploadBytes  = 32 << 20
	maxRequestBytes = 8 << 20

	previewRows = 5

	headerRows     = "X-Loanrisk-Rows"
	headerDefaults = "X-Loanrisk-Defaults"
)

type scoreRequest struct {
	Threshold *float64       `json:"threshold,omitempty"`
	Records   []frame.Record `json:"records"`
}

type scoreResponse struct {
	ModelVersion string         `json:"model_version,omitempty"`
	RunID        string         `json:"run_id,omitempty"`
	Summary      *score.Summary `json:"summary"`
	Records      []frame.Record `json:"records"`
}

type metadataResponse struct {
	Metadata     artifact.Metadata `json:"metadata" yaml:"metadata"`
	PipelinePath string            `json:"pipeline_path" yaml:"pipelinePath"`
	MetadataPath string            `json:"metadata_path" yaml:"metadataPath"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode JSON response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeCSV(w http.ResponseWriter, name string, f *frame.Frame) {
	var buf bytes.Buffer
	if err := batch.Write(&buf, f); err != nil {
		slog.Error("failed to render CSV", "error", err)
		http.Error(w, "failed to render CSV", http.StatusInternalServerError)
		return
	}
	writeCSVBytes(w, name, buf.Bytes())
}

func writeCSVBytes(w http.ResponseWriter, name string, b []byte) {
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	w.Header().Set("Content-Length", strconv.Itoa(len(b)))
	if _, err := w.Write(b); err != nil {
		slog.Error("failed to write CSV", "error", err)
	}
}

// checkRecords trims the keys of every record in place and requires each one
// to carry a non-null value for every feature.
func checkRecords(features []string, records []frame.Record) error {
	problems := make([]string, 0)
	for i, r := range records {
		for k, v := range r {
			tk := strings.TrimSpace(k)
			if tk == k {
				continue
			}
			if _, ok := r[tk]; ok {
				return fmt.Errorf("record %d: duplicate field %q", i, tk)
			}
			delete(r, k)
			r[tk] = v
		}

		missing := make([]string, 0)
		for _, f := range features {
			if v, ok := r[f]; !ok || v == nil {
				missing = append(missing, f)
			}
		}
		if len(missing) > 0 {
			problems = append(problems, fmt.Sprintf("record %d: %s", i, strings.Join(missing, ", ")))
		}
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", score.ErrMissingColumns, strings.Join(problems, "; "))
	}
	return nil
}

// recordsFrame builds the scoring frame from JSON records. Feature columns
// come first in model order followed by any extra keys sorted by name.
// Features that no record carries are left out so that scoring reports them.
func recordsFrame(features []string, records []frame.Record) (*frame.Frame, error) {
	present := make(map[string]bool)
	for _, r := range records {
		for k := range r {
			present[k] = true
		}
	}

	cols := make([]string, 0, len(present))
	for _, f := range features {
		if present[f] {
			cols = append(cols, f)
			delete(present, f)
		}
	}
	extra := make([]string, 0, len(present))
	for k := range present {
		extra = append(extra, k)
	}
	sort.Strings(extra)

	return frame.FromRecords(append(cols, extra...), records...)
}

func scoreAPIHandler(cfg *appConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		m, _, err := cfg.model()
		if err != nil {
			slog.Error("model unavailable", "error", err)
			writeError(w, http.StatusServiceUnavailable, "model unavailable")
			return
		}

		var req scoreRequest
		dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes))
		if err := dec.Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
			return
		}
		if len(req.Records) == 0 {
			writeError(w, http.StatusBadRequest, "records are required")
			return
		}

		threshold := m.DefaultThreshold()
		if req.Threshold != nil {
			threshold = *req.Threshold
		}

		if err := checkRecords(m.Metadata().Features(), req.Records); err != nil {
			cfg.failRun(data.RunModeBatch)
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}

		in, err := recordsFrame(m.Metadata().Features(), req.Records)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}

		start := time.Now()
		out, err := score.Score(m, in, threshold)
		if err != nil {
			cfg.failRun(data.RunModeBatch)
			slog.Debug("api scoring failed", "error", err)
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		sum, err := score.Summarize(out, threshold)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		run := cfg.recordRun(data.RunModeBatch, "api", m, sum, time.Since(start))

		writeJSON(w, http.StatusOK, &scoreResponse{
			ModelVersion: m.Metadata().Version,
			RunID:        run.ID,
			Summary:      sum,
			Records:      out.Records(),
		})
	}
}

func metadataAPIHandler(cfg *appConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		m, b, err := cfg.model()
		if err != nil {
			slog.Error("model unavailable", "error", err)
			writeError(w, http.StatusServiceUnavailable, "model unavailable")
			return
		}
		writeJSON(w, http.StatusOK, &metadataResponse{
			Metadata:     m.Metadata(),
			PipelinePath: b.PipelinePath,
			MetadataPath: b.MetadataPath,
		})
	}
}

func batchHandler(tmpl *template.Template, cfg *appConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		m, _, err := cfg.model()
		if err != nil {
			slog.Error("model unavailable", "error", err)
			http.Error(w, "model unavailable", http.StatusServiceUnavailable)
			return
		}
		meta := m.Metadata()

		fail := func(threshold float64, msg string) {
			p := newHomePage(meta, applicant.Defaults(), threshold)
			p.Err = msg
			renderHome(w, tmpl, http.StatusBadRequest, p)
		}

		r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
		if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
			fail(meta.Threshold, fmt.Sprintf("invalid upload: %v", err))
			return
		}
		threshold := formThreshold(r, meta.Threshold)

		file, header, err := r.FormFile("file")
		if err != nil {
			fail(threshold, "a CSV file is required")
			return
		}
		defer file.Close()

		source := filepath.Base(header.Filename)
		in, err := batch.Read(file, meta.IsNumeric)
		if err != nil {
			fail(threshold, fmt.Sprintf("%s: %v", source, err))
			return
		}

		start := time.Now()
		out, err := score.Score(m, in, threshold)
		if err != nil {
			cfg.failRun(data.RunModeBatch)
			fail(threshold, fmt.Sprintf("Batch scoring failed: %v", err))
			return
		}
		sum, err := score.Summarize(out, threshold)
		if err != nil {
			fail(threshold, err.Error())
			return
		}
		run := cfg.recordRun(data.RunModeBatch, source, m, sum, time.Since(start))

		var buf bytes.Buffer
		if err := batch.Write(&buf, out); err != nil {
			slog.Error("failed to render CSV", "error", err)
			fail(threshold, "failed to render predictions")
			return
		}

		w.Header().Set(headerRows, strconv.Itoa(sum.Rows))
		w.Header().Set(headerDefaults, strconv.Itoa(sum.Defaults))
		if r.FormValue("download") != "" {
			writeCSVBytes(w, batch.ResultFileName, buf.Bytes())
			return
		}

		id := cfg.Results.put(buf.Bytes())
		p := newHomePage(meta, applicant.Defaults(), threshold)
		p.Batch = &batchView{
			Source:      source,
			RunID:       run.ID,
			Summary:     sum,
			Input:       newTableView(in.Head(previewRows)),
			Scored:      newTableView(out.Head(previewRows)),
			DownloadURL: "/batch/" + id,
		}
		renderHome(w, tmpl, http.StatusOK, p)
	}
}

func batchResultHandler(cfg *appConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		b, ok := cfg.Results.get(r.PathValue("id"))
		if !ok {
			http.Error(w, "scored batch not found or expired, upload the file again", http.StatusNotFound)
			return
		}
		writeCSVBytes(w, batch.ResultFileName, b)
	}
}

func sampleHandler(w http.ResponseWriter, r *http.Request) {
	f, err := applicant.Sample()
	if err != nil {
		slog.Error("failed to build sample", "error", err)
		http.Error(w, "failed to build sample", http.StatusInternalServerError)
		return
	}
	writeCSV(w, batch.SampleFileName, f)
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func readyHandler(cfg *appConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, _, err := cfg.model(); err != nil {
			var nf *artifact.NotFoundError
			msg := err.Error()
			if errors.As(err, &nf) {
				msg = "model artifacts not found"
			}
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "error": msg})
			return
		}
		if cfg.DB != nil {
			if err := cfg.DB.PingContext(r.Context()); err != nil {
				writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "error": "history database unavailable"})
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	}
}
