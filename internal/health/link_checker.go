package health

import (
	"context"
	"time"

	"github.com/taoyao-code/hdmi-matrix/internal/protocol/hdmx"
	"github.com/taoyao-code/hdmi-matrix/internal/service"
)

// LinkSource 提供矩阵链路状态
type LinkSource interface {
	LinkState() service.LinkState
}

// LinkChecker 矩阵链路健康检查
// 最近一次命令因传输错误失败 → unhealthy；链路失步 → degraded。
// 检查本身不向矩阵发送任何命令。
type LinkChecker struct {
	src LinkSource
}

// NewLinkChecker 创建链路检查器
func NewLinkChecker(src LinkSource) *LinkChecker {
	return &LinkChecker{src: src}
}

func (c *LinkChecker) Name() string { return "matrix_link" }

func (c *LinkChecker) Check(_ context.Context) CheckResult {
	start := time.Now()
	st := c.src.LinkState()

	details := map[string]interface{}{
		"desync":   st.Desync,
		"commands": st.Commands,
		"failures": st.Failures,
	}
	if !st.LastSuccessAt.IsZero() {
		details["last_success_at"] = st.LastSuccessAt
	}
	if st.LastErrorKind != "" {
		details["last_error_kind"] = st.LastErrorKind
		details["last_error_at"] = st.LastErrorAt
	}

	result := CheckResult{Status: StatusHealthy, Message: "ok", Details: details}
	switch {
	case st.LastErrorKind == hdmx.Kind(hdmx.ErrTransport) && st.LastErrorAt.After(st.LastSuccessAt):
		result.Status = StatusUnhealthy
		result.Message = st.LastError
	case st.Desync:
		result.Status = StatusDegraded
		result.Message = "link desynchronised, next command drains"
	case st.Commands == 0:
		result.Message = "idle"
	}
	result.Latency = time.Since(start)
	return result
}
