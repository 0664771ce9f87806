package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/taoyao-code/hdmi-matrix/internal/config"
	"github.com/taoyao-code/hdmi-matrix/internal/journal"
	"github.com/taoyao-code/hdmi-matrix/internal/preset"
	"github.com/taoyao-code/hdmi-matrix/internal/protocol/hdmx"
	"github.com/taoyao-code/hdmi-matrix/internal/service"
	"github.com/taoyao-code/hdmi-matrix/internal/simulator"
)

type testEnv struct {
	r    *gin.Engine
	dev  *simulator.Device
	ring *journal.RingSink
}

func newEnv(t *testing.T, auth config.APIAuthConfig) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	presets, err := preset.Parse([]byte("presets:\n  all-two:\n    routes:\n      1: 2\n      2: 2\n"))
	require.NoError(t, err)

	dev := simulator.New(4)
	ring := journal.NewRingSink(20)
	svc, err := service.NewMatrixService(dev, service.Options{
		MaxPorts:        4,
		ResponseTimeout: 50 * time.Millisecond,
		DrainOnDesync:   true,
		Presets:         presets,
		Journal:         journal.New(zap.NewNop(), ring),
	})
	require.NoError(t, err)

	r := gin.New()
	RegisterRoutes(r, NewMatrixHandler(svc, ring, nil, nil), auth, nil)
	return &testEnv{r: r, dev: dev, ring: ring}
}

type envelope struct {
	Data      json.RawMessage `json:"data"`
	Error     string          `json:"error"`
	Message   string          `json:"message"`
	RequestID string          `json:"request_id"`
}

func (e *testEnv) call(t *testing.T, method, path string, body interface{}) (int, envelope) {
	t.Helper()
	var rd *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(b)
	} else {
		rd = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, rd)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-ID", "test-req")
	rr := httptest.NewRecorder()
	e.r.ServeHTTP(rr, req)

	var env envelope
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &env), rr.Body.String())
	return rr.Code, env
}

func TestChangePortAndQuery(t *testing.T) {
	e := newEnv(t, config.APIAuthConfig{})

	code, env := e.call(t, http.MethodPut, "/api/v1/outputs/3/input", gin.H{"input": 1})
	require.Equal(t, http.StatusOK, code, env.Message)
	assert.Equal(t, "test-req", env.RequestID)
	assert.Equal(t, hdmx.Port(1), e.dev.Snapshot().Routes[3])

	code, env = e.call(t, http.MethodGet, "/api/v1/outputs/3", nil)
	require.Equal(t, http.StatusOK, code)
	var st hdmx.Status
	require.NoError(t, json.Unmarshal(env.Data, &st))
	assert.Equal(t, hdmx.Status{Output: 3, Input: 1}, st)

	entries := e.ring.Recent(0)
	require.Len(t, entries, 2)
	assert.Equal(t, "test-req", entries[0].RequestID)
}

func TestErrorMapping(t *testing.T) {
	e := newEnv(t, config.APIAuthConfig{})

	tests := []struct {
		name   string
		method string
		path   string
		body   interface{}
		fault  *simulator.Fault
		status int
		code   string
	}{
		{"端口越界", http.MethodPut, "/api/v1/outputs/9/input", gin.H{"input": 1}, nil, http.StatusBadRequest, "invalid_port"},
		{"端口非数字", http.MethodGet, "/api/v1/outputs/abc", nil, nil, http.StatusBadRequest, "invalid_port"},
		{"缺少body字段", http.MethodPut, "/api/v1/beep", gin.H{}, nil, http.StatusBadRequest, "invalid_body"},
		{"EDID越界", http.MethodPut, "/api/v1/edid", gin.H{"value": 16}, nil, http.StatusBadRequest, "invalid_argument"},
		{"EDID未知名称", http.MethodPut, "/api/v1/edid", gin.H{"value": "8k"}, nil, http.StatusBadRequest, "invalid_body"},
		{"预案不存在", http.MethodPost, "/api/v1/presets/nope/apply", nil, nil, http.StatusNotFound, "not_found"},
		{"超时", http.MethodGet, "/api/v1/beep", nil, faultPtr(simulator.Silent()), http.StatusGatewayTimeout, "timeout"},
		{"错误应答", http.MethodPut, "/api/v1/power", gin.H{"enabled": true}, faultPtr(simulator.WrongEcho()), http.StatusBadGateway, "unexpected_response"},
		{"传输错误", http.MethodPut, "/api/v1/beep", gin.H{"enabled": false}, faultPtr(simulator.WriteError(nil)), http.StatusServiceUnavailable, "transport"},
		{"journal limit非法", http.MethodGet, "/api/v1/journal?limit=-1", nil, nil, http.StatusBadRequest, "invalid_argument"},
		{"未配置数据库", http.MethodGet, "/api/v1/journal?source=db", nil, nil, http.StatusNotFound, "not_found"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.fault != nil {
				e.dev.Inject(*tt.fault)
			}
			code, env := e.call(t, tt.method, tt.path, tt.body)
			assert.Equal(t, tt.status, code, env.Message)
			assert.Equal(t, tt.code, env.Error)
			assert.Equal(t, "test-req", env.RequestID)
		})
	}
}

func faultPtr(f simulator.Fault) *simulator.Fault { return &f }

func TestEDIDByName(t *testing.T) {
	e := newEnv(t, config.APIAuthConfig{})

	code, env := e.call(t, http.MethodPut, "/api/v1/inputs/2/edid", gin.H{"value": "4k2k_7.1"})
	require.Equal(t, http.StatusOK, code, env.Message)
	assert.Equal(t, hdmx.EDID4K2K71, e.dev.Snapshot().EDID[2])

	code, _ = e.call(t, http.MethodPut, "/api/v1/edid", gin.H{"value": 5})
	require.Equal(t, http.StatusOK, code)
	for in := hdmx.Port(1); in <= 4; in++ {
		assert.Equal(t, hdmx.EDID1080p51, e.dev.Snapshot().EDID[in])
	}

	code, _ = e.call(t, http.MethodPost, "/api/v1/inputs/1/edid/copy", gin.H{"output": 2})
	assert.Equal(t, http.StatusOK, code)
	code, _ = e.call(t, http.MethodPost, "/api/v1/edid/copy", gin.H{"output": 2})
	assert.Equal(t, http.StatusOK, code)
}

func TestFlagsEndpoints(t *testing.T) {
	e := newEnv(t, config.APIAuthConfig{})
	e.dev.SetHPD(2, false)
	e.dev.SetCable(4, false)

	code, env := e.call(t, http.MethodGet, "/api/v1/outputs/2/hpd", nil)
	require.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `{"output":2,"hpd":false}`, string(env.Data))

	code, env = e.call(t, http.MethodGet, "/api/v1/inputs/4/cable", nil)
	require.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `{"input":4,"connected":false}`, string(env.Data))

	code, _ = e.call(t, http.MethodPut, "/api/v1/beep", gin.H{"enabled": false})
	require.Equal(t, http.StatusOK, code)
	code, env = e.call(t, http.MethodGet, "/api/v1/beep", nil)
	require.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `{"enabled":false}`, string(env.Data))

	code, _ = e.call(t, http.MethodPut, "/api/v1/power", gin.H{"enabled": false})
	require.Equal(t, http.StatusOK, code)
	assert.False(t, e.dev.Snapshot().Power)
}

func TestPresetsEndpoints(t *testing.T) {
	e := newEnv(t, config.APIAuthConfig{})

	code, env := e.call(t, http.MethodGet, "/api/v1/presets", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, string(env.Data), `"all-two"`)

	code, env = e.call(t, http.MethodPost, "/api/v1/presets/all-two/apply", nil)
	require.Equal(t, http.StatusOK, code, env.Message)
	var res service.PresetResult
	require.NoError(t, json.Unmarshal(env.Data, &res))
	assert.Equal(t, 2, res.Total)
	assert.Len(t, res.Applied, 2)
	assert.Equal(t, hdmx.Port(2), e.dev.Snapshot().Routes[1])

	// 第二条失败：返回已生效部分
	e.dev.Inject(simulator.WriteError(nil))
	code, env = e.call(t, http.MethodPost, "/api/v1/presets/all-two/apply", nil)
	assert.Equal(t, http.StatusServiceUnavailable, code)
	require.NoError(t, json.Unmarshal(env.Data, &res))
	assert.Empty(t, res.Applied)
}

func TestLinkAndJournal(t *testing.T) {
	e := newEnv(t, config.APIAuthConfig{})

	e.dev.Inject(simulator.Silent())
	code, _ := e.call(t, http.MethodGet, "/api/v1/beep", nil)
	require.Equal(t, http.StatusGatewayTimeout, code)

	code, env := e.call(t, http.MethodGet, "/api/v1/link", nil)
	require.Equal(t, http.StatusOK, code)
	var link struct {
		MaxPorts int                `json:"max_ports"`
		Link     service.LinkState  `json:"link"`
		Pacer    service.PacerStats `json:"pacer"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &link))
	assert.Equal(t, 4, link.MaxPorts)
	assert.True(t, link.Link.Desync)

	code, env = e.call(t, http.MethodPost, "/api/v1/link/drain", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, string(env.Data), `"desync":false`)

	code, env = e.call(t, http.MethodGet, "/api/v1/journal?limit=1&op=query_beep", nil)
	require.Equal(t, http.StatusOK, code)
	var j struct {
		Source  string          `json:"source"`
		Entries []journal.Entry `json:"entries"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &j))
	assert.Equal(t, "memory", j.Source)
	require.Len(t, j.Entries, 1)
	assert.Equal(t, "timeout", j.Entries[0].ErrorKind)
}

func TestAuthEnabled(t *testing.T) {
	e := newEnv(t, config.APIAuthConfig{Enabled: true, Keys: []string{"sk_live_abcdefgh"}})

	code, env := e.call(t, http.MethodGet, "/api/v1/link", nil)
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.Equal(t, "unauthorized", env.Error)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/link", nil)
	req.Header.Set("Authorization", "Bearer sk_live_abcdefgh")
	rr := httptest.NewRecorder()
	e.r.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.NotEmpty(t, rr.Header().Get("X-Request-ID"))
}
