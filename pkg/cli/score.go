package cli

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/mchmarny/loanrisk/pkg/applicant"
	"github.com/mchmarny/loanrisk/pkg/batch"
	"github.com/mchmarny/loanrisk/pkg/data"
	"github.com/mchmarny/loanrisk/pkg/frame"
	"github.com/mchmarny/loanrisk/pkg/score"
	"github.com/urfave/cli/v2"
)

const fileMode = 0600

var (
	inFileFlag = &cli.StringFlag{
		Name:     "in",
		Aliases:  []string{"i"},
		Usage:    "CSV file with one applicant per row",
		Required: true,
	}

	outFileFlag = &cli.StringFlag{
		Name:    "out",
		Aliases: []string{"o"},
		Usage:   "Path of the scored CSV (default: stdout)",
	}

	thresholdFlag = &cli.Float64Flag{
		Name:    "threshold",
		Aliases: []string{"t"},
		Usage:   "Decision threshold in (0,1) (default: threshold saved with the model)",
	}

	setFlag = &cli.StringSliceFlag{
		Name:  "set",
		Usage: "Applicant field as name=value, unset fields use catalog defaults (can be specified multiple times)",
	}

	scoreCmd = &cli.Command{
		Name:  "score",
		Usage: "Score a CSV file of applicants",
		UsageText: `loanrisk score --in applicants.csv --out predictions.csv
   loanrisk score --in applicants.csv --threshold 0.35`,
		HideHelpCommand: true,
		Action:          cmdScore,
		Flags: []cli.Flag{
			inFileFlag,
			outFileFlag,
			thresholdFlag,
		},
	}

	predictCmd = &cli.Command{
		Name:  "predict",
		Usage: "Score a single applicant",
		UsageText: `loanrisk predict --set age=45 --set bank_name_clients="First Bank"
   loanrisk predict --set debt_to_income=0.9 --threshold 0.4`,
		HideHelpCommand: true,
		Action:          cmdPredict,
		Flags: []cli.Flag{
			setFlag,
			thresholdFlag,
		},
	}
)

type prediction struct {
	Applicant frame.Record  `json:"applicant" yaml:"applicant"`
	Result    *score.Result `json:"result" yaml:"result"`
	Label     string        `json:"label" yaml:"label"`
	Model     string        `json:"model_version,omitempty" yaml:"modelVersion,omitempty"`
}

// thresholdFor returns the flag value when set and the model default otherwise.
func thresholdFor(c *cli.Context, m *score.Model) (float64, error) {
	t := m.DefaultThreshold()
	if c.IsSet(thresholdFlag.Name) {
		t = c.Float64(thresholdFlag.Name)
	}
	if err := score.ValidateThreshold(t); err != nil {
		return 0, err
	}
	return t, nil
}

func cmdScore(c *cli.Context) error {
	cfg := getConfig(c)
	m, _, err := cfg.model()
	if err != nil {
		return fmt.Errorf("loading model artifacts: %w", err)
	}
	t, err := thresholdFor(c, m)
	if err != nil {
		return err
	}

	inPath := c.String(inFileFlag.Name)
	f, err := os.Open(inPath)
	if err != nil {
		return fmt.Errorf("opening input file: %w", err)
	}
	defer f.Close()

	in, err := batch.Read(f, m.Metadata().IsNumeric)
	if err != nil {
		return fmt.Errorf("reading %s: %w", inPath, err)
	}

	start := time.Now()
	out, err := score.Score(m, in, t)
	if err != nil {
		cfg.failRun(data.RunModeCLI)
		return fmt.Errorf("batch scoring failed: %w", err)
	}
	sum, err := score.Summarize(out, t)
	if err != nil {
		return err
	}

	if err := writeScored(c.App.Writer, c.String(outFileFlag.Name), out); err != nil {
		return err
	}
	run := cfg.recordRun(data.RunModeCLI, filepath.Base(inPath), m, sum, time.Since(start))

	slog.Info("scored",
		"rows", sum.Rows,
		"defaults", sum.Defaults,
		"mean_proba", fmt.Sprintf("%.3f", sum.MeanProba),
		"threshold", t,
		"run", run.ID)
	return nil
}

func writeScored(stdout io.Writer, path string, f *frame.Frame) (retErr error) {
	if path == "" {
		return batch.Write(stdout, f)
	}
	out, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, fileMode)
	if err != nil {
		return fmt.Errorf("creating output file: %w", err)
	}
	defer func() {
		if cerr := out.Close(); cerr != nil && retErr == nil {
			retErr = fmt.Errorf("closing file: %w", cerr)
		}
	}()
	return batch.Write(out, f)
}

func cmdPredict(c *cli.Context) error {
	cfg := getConfig(c)
	m, _, err := cfg.model()
	if err != nil {
		return fmt.Errorf("loading model artifacts: %w", err)
	}
	t, err := thresholdFor(c, m)
	if err != nil {
		return err
	}

	rec, err := applicant.FromPairs(c.StringSlice(setFlag.Name))
	if err != nil {
		return err
	}

	start := time.Now()
	res, err := score.One(m, rec, t)
	if err != nil {
		cfg.failRun(data.RunModeCLI)
		return fmt.Errorf("prediction failed: %w", err)
	}
	cfg.recordRun(data.RunModeCLI, "predict", m, &score.Summary{
		Rows:      1,
		Defaults:  res.Prediction,
		MeanProba: res.Probability,
		Threshold: t,
	}, time.Since(start))

	return encode(c.App.Writer, cfg.Format, &prediction{
		Applicant: rec,
		Result:    res,
		Label:     res.Label(),
		Model:     m.Metadata().Version,
	})
}
