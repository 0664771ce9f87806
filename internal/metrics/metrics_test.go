package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppMetrics(t *testing.T) {
	reg := NewRegistry()
	m := NewAppMetrics(reg)

	m.CommandTotal.WithLabelValues("change_port", "ok").Inc()
	m.AddLinkBytes("tx", 13)
	m.AddLinkBytes("tx", 13)
	m.LinkDesync.Set(1)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.CommandTotal.WithLabelValues("change_port", "ok")))
	assert.Equal(t, 26.0, testutil.ToFloat64(m.LinkBytes.WithLabelValues("tx")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.LinkDesync))
}

func TestHandler(t *testing.T) {
	reg := NewRegistry()
	m := NewAppMetrics(reg)
	m.DrainTotal.Inc()

	rec := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.True(t, strings.Contains(body, "hdmx_link_drain_total 1"))
	assert.Contains(t, body, "go_goroutines")
}
