package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorder_Observe(t *testing.T) {
	r := NewRecorder()
	r.Observe("batch", 10, 3, 5*time.Millisecond)
	r.Observe("batch", 2, 0, time.Millisecond)
	r.Fail("single")

	assert.Equal(t, 12.0, testutil.ToFloat64(r.rows.WithLabelValues("batch")))
	assert.Equal(t, 3.0, testutil.ToFloat64(r.decisions.WithLabelValues("batch", "default")))
	assert.Equal(t, 9.0, testutil.ToFloat64(r.decisions.WithLabelValues("batch", "no_default")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.failures.WithLabelValues("single")))
}

func TestRecorder_Handler(t *testing.T) {
	r := NewRecorder()
	r.SetThreshold(0.5)
	r.Observe("single", 1, 1, time.Millisecond)

	srv := httptest.NewServer(r.Handler())
	defer srv.Close()

	res, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer res.Body.Close()
	assert.Equal(t, http.StatusOK, res.StatusCode)

	b, err := io.ReadAll(res.Body)
	require.NoError(t, err)
	body := string(b)
	assert.Contains(t, body, "loanrisk_model_threshold 0.5")
	assert.Contains(t, body, `loanrisk_scored_rows_total{mode="single"} 1`)
}
