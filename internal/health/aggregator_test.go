package health

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taoyao-code/hdmi-matrix/internal/protocol/hdmx"
	"github.com/taoyao-code/hdmi-matrix/internal/service"
)

type mockChecker struct {
	name   string
	status Status
}

func (m *mockChecker) Name() string { return m.name }

func (m *mockChecker) Check(context.Context) CheckResult {
	return CheckResult{Status: m.status, Message: "mock", Latency: time.Millisecond}
}

func TestAggregator(t *testing.T) {
	ctx := context.Background()

	t.Run("全部健康", func(t *testing.T) {
		agg := NewAggregator(&mockChecker{"link", StatusHealthy}, &mockChecker{"db", StatusHealthy})
		assert.Equal(t, StatusHealthy, agg.OverallStatus(ctx))
		assert.True(t, agg.Ready(ctx))
	})

	t.Run("部分降级", func(t *testing.T) {
		agg := NewAggregator(&mockChecker{"link", StatusDegraded}, &mockChecker{"db", StatusHealthy})
		assert.Equal(t, StatusDegraded, agg.OverallStatus(ctx))
		assert.True(t, agg.Ready(ctx), "降级仍就绪")
	})

	t.Run("部分不健康", func(t *testing.T) {
		agg := NewAggregator(&mockChecker{"link", StatusUnhealthy}, &mockChecker{"db", StatusDegraded})
		assert.Equal(t, StatusUnhealthy, agg.OverallStatus(ctx))
		assert.False(t, agg.Ready(ctx))
	})

	t.Run("动态添加检查器", func(t *testing.T) {
		agg := NewAggregator(&mockChecker{"initial", StatusHealthy})
		agg.AddChecker(CheckerFunc{CheckName: "added", Fn: func(context.Context) CheckResult {
			return CheckResult{Status: StatusHealthy}
		}})
		assert.Len(t, agg.CheckAll(ctx), 2)
	})

	t.Run("空聚合器", func(t *testing.T) {
		agg := NewAggregator()
		assert.True(t, agg.Alive())
		assert.Equal(t, StatusHealthy, agg.Report(ctx).Status)
	})
}

type staticLink struct{ st service.LinkState }

func (s staticLink) LinkState() service.LinkState { return s.st }

func TestLinkChecker(t *testing.T) {
	now := time.Now()
	tests := []struct {
		name string
		st   service.LinkState
		want Status
	}{
		{"未下发命令", service.LinkState{}, StatusHealthy},
		{"最近成功", service.LinkState{Commands: 3, LastSuccessAt: now}, StatusHealthy},
		{"失步", service.LinkState{Commands: 3, Desync: true, LastErrorKind: "timeout", LastErrorAt: now}, StatusDegraded},
		{"传输错误", service.LinkState{
			Commands: 1, Failures: 1,
			LastErrorKind: hdmx.Kind(hdmx.ErrTransport), LastError: "write: broken pipe", LastErrorAt: now,
		}, StatusUnhealthy},
		{"传输错误后已恢复", service.LinkState{
			Commands: 2, Failures: 1,
			LastErrorKind: hdmx.Kind(hdmx.ErrTransport), LastErrorAt: now.Add(-time.Second), LastSuccessAt: now,
		}, StatusHealthy},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewLinkChecker(staticLink{tt.st}).Check(context.Background())
			assert.Equal(t, tt.want, r.Status, r.Message)
		})
	}
}

func TestReadiness(t *testing.T) {
	r := New()
	assert.False(t, r.Ready())

	r.SetLinkOpen(true)
	assert.True(t, r.Ready(), "未配置数据库时只看链路")

	r.RequireDB()
	assert.False(t, r.Ready())
	r.SetDBReady(true)
	assert.True(t, r.Ready())
}

func TestHTTPRoutes(t *testing.T) {
	gin.SetMode(gin.TestMode)
	link := &mockChecker{"matrix_link", StatusHealthy}
	agg := NewAggregator(link)

	r := gin.New()
	RegisterHTTPRoutes(r, agg)

	get := func(path string) *httptest.ResponseRecorder {
		rr := httptest.NewRecorder()
		r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, path, nil))
		return rr
	}

	rr := get("/health")
	require.Equal(t, http.StatusOK, rr.Code)
	var report HealthReport
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &report))
	assert.Equal(t, StatusHealthy, report.Status)
	assert.Contains(t, report.Checks, "matrix_link")

	assert.Equal(t, http.StatusOK, get("/health/live").Code)
	assert.Equal(t, http.StatusOK, get("/health/ready").Code)

	link.status = StatusUnhealthy
	assert.Equal(t, http.StatusServiceUnavailable, get("/health").Code)
	assert.Equal(t, http.StatusServiceUnavailable, get("/health/ready").Code)
}
