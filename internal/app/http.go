package app

import (
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	cfgpkg "github.com/taoyao-code/hdmi-matrix/internal/config"
	"github.com/taoyao-code/hdmi-matrix/internal/httpserver"
	"github.com/taoyao-code/hdmi-matrix/internal/metrics"
)

// NewHTTPServer 根据配置创建 HTTP 服务器；metrics.enable=false 时不暴露指标路由
func NewHTTPServer(cfg *cfgpkg.Config, reg *prometheus.Registry, readyFn func() bool, log *zap.Logger) *httpserver.Server {
	handler := metrics.Handler(reg)
	if !cfg.Metrics.Enable {
		handler = nil
	}
	return httpserver.New(cfg.HTTP, cfg.Metrics.Path, handler, readyFn, log.Named("http"))
}
