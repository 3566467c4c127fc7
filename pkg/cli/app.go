package cli

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/mchmarny/loanrisk/pkg/artifact"
	"github.com/mchmarny/loanrisk/pkg/config"
	"github.com/mchmarny/loanrisk/pkg/data"
	"github.com/mchmarny/loanrisk/pkg/logging"
	"github.com/mchmarny/loanrisk/pkg/metrics"
	"github.com/mchmarny/loanrisk/pkg/score"
	urfave "github.com/urfave/cli/v2"
	"gopkg.in/yaml.v3"
)

const (
	appName      = "loanrisk"
	appConfigKey = "app-config"
	envFileName  = ".env"

	formatJSON = "json"
	formatYAML = "yaml"
)

var errNoModel = errors.New("model artifacts not configured")

var (
	version = "v0.0.1-default"
	commit  = ""
	date    = ""

	debugFlag = &urfave.BoolFlag{
		Name:  "debug",
		Usage: "Prints verbose logs (optional, default: false)",
	}

	dbFilePathFlag = &urfave.StringFlag{
		Name:  "db",
		Usage: "Path to the Sqlite run history database file",
	}

	formatFlag = &urfave.StringFlag{
		Name:  "format",
		Usage: "Output format [json, yaml]",
		Value: formatJSON,
	}

	rootFlag = &urfave.StringFlag{
		Name:  "root",
		Usage: "Directory searched for the model artifacts",
	}
)

// Execute creates and runs the CLI application.
func Execute() {
	initLogging(false)

	app := newApp()
	if err := app.Run(os.Args); err != nil {
		slog.Error("fatal error", "error", err)
		os.Exit(1)
	}
}

type appConfig struct {
	Conf      *config.Config
	HomeDir   string
	DBPath    string
	Debug     bool
	Format    string
	DB        *sql.DB
	Artifacts *artifact.Cache
	Metrics   *metrics.Recorder
	Results   *resultStore
}

func getConfig(c *urfave.Context) *appConfig {
	return c.App.Metadata[appConfigKey].(*appConfig)
}

// model returns the scoring context built from the cached artifacts.
func (a *appConfig) model() (*score.Model, *artifact.Bundle, error) {
	if a.Artifacts == nil {
		return nil, nil, errNoModel
	}
	b, err := a.Artifacts.Get()
	if err != nil {
		return nil, nil, err
	}
	m, err := score.FromBundle(b)
	if err != nil {
		return nil, nil, err
	}
	return m, b, nil
}

// recordRun logs a completed scoring call to history and metrics.
// History failures are logged and never fail the scoring call.
func (a *appConfig) recordRun(mode, source string, m *score.Model, s *score.Summary, took time.Duration) *data.Run {
	if a.Metrics != nil {
		a.Metrics.Observe(mode, s.Rows, s.Defaults, took)
	}
	r := &data.Run{
		Mode:         mode,
		Source:       source,
		ModelVersion: m.Metadata().Version,
		Rows:         s.Rows,
		Defaults:     s.Defaults,
		Threshold:    s.Threshold,
		MeanProba:    s.MeanProba,
	}
	if a.DB == nil {
		return r
	}
	if err := data.SaveRun(a.DB, r); err != nil {
		slog.Error("failed to save run", "mode", mode, "error", err)
		return r
	}
	slog.Debug("run saved", "id", r.ID, "mode", mode, "rows", r.Rows)
	return r
}

func (a *appConfig) failRun(mode string) {
	if a.Metrics != nil {
		a.Metrics.Fail(mode)
	}
}

func newApp() *urfave.App {
	return &urfave.App{
		Name:                 appName,
		Version:              fmt.Sprintf("%s (%s - %s)", version, commit, date),
		Compiled:             time.Now(),
		EnableBashCompletion: true,
		HideHelpCommand:      true,
		Usage:                "Loan default risk scoring from a pre-trained classification pipeline",
		Flags: []urfave.Flag{
			debugFlag,
			dbFilePathFlag,
			formatFlag,
			rootFlag,
		},
		Commands: []*urfave.Command{
			serverCmd,
			scoreCmd,
			predictCmd,
			artifactsCmd,
			authCmd,
			historyCmd,
			resetCmd,
		},
		Metadata: map[string]any{},
		Before: func(c *urfave.Context) error {
			cfg, err := newAppConfig(c)
			if err != nil {
				return err
			}
			c.App.Metadata[appConfigKey] = cfg
			return nil
		},
		After: func(c *urfave.Context) error {
			if cfg, ok := c.App.Metadata[appConfigKey].(*appConfig); ok && cfg.DB != nil {
				cfg.DB.Close()
			}
			return nil
		},
	}
}

func newAppConfig(c *urfave.Context) (*appConfig, error) {
	homeDir, _, err := config.GetOrCreateHomeDir(appName)
	if err != nil {
		return nil, fmt.Errorf("resolving home dir: %w", err)
	}

	conf, err := config.Load(homeDir, envFileName, filepath.Join(homeDir, envFileName))
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	debug := c.Bool(debugFlag.Name)
	if debug {
		conf.LogLevel = "debug"
	}
	logging.SetDefaultCLILogger(conf.LogLevel)

	if v := c.String(rootFlag.Name); v != "" {
		conf.ArtifactRoot = v
	}

	f := c.String(formatFlag.Name)
	switch f {
	case formatJSON:
	case formatYAML, "yml":
		f = formatYAML
	default:
		return nil, fmt.Errorf("invalid format: %s (permitted options: %s, %s)", f, formatJSON, formatYAML)
	}

	dbPath := c.String(dbFilePathFlag.Name)
	if dbPath == "" {
		dbPath = conf.DBPath
	}
	if dbPath == "" {
		dbPath = filepath.Join(homeDir, data.DataFileName)
	}

	if err := data.Init(dbPath); err != nil {
		return nil, fmt.Errorf("initializing database: %w", err)
	}

	db, err := data.GetDB(dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	return &appConfig{
		Conf:      conf,
		HomeDir:   homeDir,
		DBPath:    dbPath,
		Debug:     debug,
		Format:    f,
		DB:        db,
		Artifacts: artifact.NewCache(conf.ArtifactRoot, artifact.DefaultCandidates...),
		Metrics:   metrics.NewRecorder(),
		Results:   newResultStore(resultStoreSizeDefault),
	}, nil
}

func initLogging(debug bool) {
	level := "info"
	if debug {
		level = "debug"
	}
	logging.SetDefaultCLILogger(level)
}

func encode(w io.Writer, format string, v any) error {
	if format == formatYAML {
		e := yaml.NewEncoder(w)
		defer e.Close()
		return e.Encode(v)
	}
	e := json.NewEncoder(w)
	e.SetIndent("", "  ")
	return e.Encode(v)
}
