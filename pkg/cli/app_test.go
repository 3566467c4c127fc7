package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/mchmarny/loanrisk/pkg/artifact"
	"github.com/mchmarny/loanrisk/pkg/config"
	"github.com/mchmarny/loanrisk/pkg/data"
	"github.com/mchmarny/loanrisk/pkg/metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zalando/go-keyring"
)

const repoRoot = "../.."

func TestMain(m *testing.M) {
	keyring.MockInit()
	initLogging(false)

	code := m.Run()
	os.Exit(code)
}

func newTestConfig(t *testing.T, root string) *appConfig {
	t.Helper()
	dir := t.TempDir()
	dbPath := filepath.Join(dir, data.DataFileName)
	require.NoError(t, data.Init(dbPath))
	db, err := data.GetDB(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	return &appConfig{
		Conf:      &config.Config{ArtifactRoot: root, Port: config.PortDefault, LogLevel: "info"},
		HomeDir:   dir,
		DBPath:    dbPath,
		Format:    formatJSON,
		DB:        db,
		Artifacts: artifact.NewCache(root, artifact.DefaultCandidates...),
		Metrics:   metrics.NewRecorder(),
		Results:   newResultStore(resultStoreSizeDefault),
	}
}

// runApp executes the CLI with an isolated home directory and returns stdout.
func runApp(t *testing.T, home string, args ...string) (string, error) {
	t.Helper()
	t.Setenv("HOME", home)

	var out bytes.Buffer
	app := newApp()
	app.Writer = &out
	app.ErrWriter = &out
	app.Reader = bytes.NewBufferString("")
	err := app.Run(append([]string{appName}, args...))
	return out.String(), err
}

func TestEncode(t *testing.T) {
	v := map[string]any{"rows": 2, "model": "lr"}

	var buf bytes.Buffer
	require.NoError(t, encode(&buf, formatJSON, v))
	assert.Contains(t, buf.String(), `"rows": 2`)

	buf.Reset()
	require.NoError(t, encode(&buf, formatYAML, v))
	assert.Contains(t, buf.String(), "rows: 2")
}

func TestAppConfig_Model(t *testing.T) {
	cfg := newTestConfig(t, repoRoot)
	m, b, err := cfg.model()
	require.NoError(t, err)
	assert.Equal(t, 0.5, m.DefaultThreshold())
	assert.Equal(t, b.Metadata.Version, m.Metadata().Version)

	cfg = newTestConfig(t, t.TempDir())
	_, _, err = cfg.model()
	var nf *artifact.NotFoundError
	assert.ErrorAs(t, err, &nf)

	cfg.Artifacts = nil
	_, _, err = cfg.model()
	assert.ErrorIs(t, err, errNoModel)
}

func TestApp_InvalidFormat(t *testing.T) {
	_, err := runApp(t, t.TempDir(), "--format", "xml", "history")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid format")
}
