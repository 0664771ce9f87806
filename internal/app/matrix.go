package app

import (
	"errors"
	"os"

	"go.uber.org/zap"

	cfgpkg "github.com/taoyao-code/hdmi-matrix/internal/config"
	"github.com/taoyao-code/hdmi-matrix/internal/journal"
	"github.com/taoyao-code/hdmi-matrix/internal/metrics"
	"github.com/taoyao-code/hdmi-matrix/internal/preset"
	"github.com/taoyao-code/hdmi-matrix/internal/service"
	"github.com/taoyao-code/hdmi-matrix/internal/transport"
)

// OpenLink 打开矩阵链路，字节计数进入指标
func OpenLink(cfg *cfgpkg.Config, appm *metrics.AppMetrics, log *zap.Logger) (transport.Port, error) {
	return transport.Open(cfg.Serial,
		transport.WithLogger(log.Named("transport")),
		transport.WithByteCounter(appm.AddLinkBytes),
		transport.WithSimulatorPorts(cfg.Matrix.MaxPorts),
	)
}

// LoadPresets 加载预案文件；未配置或文件不存在时返回空集合
func LoadPresets(path string, log *zap.Logger) (*preset.Set, error) {
	if path == "" {
		return preset.Empty(), nil
	}
	set, err := preset.Load(path)
	if errors.Is(err, os.ErrNotExist) {
		log.Warn("presets file not found, no presets available", zap.String("path", path))
		return preset.Empty(), nil
	}
	if err != nil {
		return nil, err
	}
	log.Info("presets loaded", zap.String("path", path), zap.Strings("names", set.Names()))
	return set, nil
}

// NewJournal 命令日志：zap + 内存环形缓冲，sink 失败计入指标
func NewJournal(log *zap.Logger, appm *metrics.AppMetrics, sinks ...journal.Sink) *journal.Journal {
	j := journal.New(log.Named("journal"), append([]journal.Sink{journal.ZapSink{Logger: log.Named("cmd")}}, sinks...)...)
	j.OnError(func(error) { appm.JournalErrors.Inc() })
	return j
}

// NewMatrixService 在已打开的链路上创建矩阵服务
func NewMatrixService(cfg cfgpkg.MatrixConfig, port transport.Port, presets *preset.Set, j *journal.Journal, appm *metrics.AppMetrics, log *zap.Logger) (*service.MatrixService, error) {
	return service.NewMatrixService(port, service.Options{
		MaxPorts:        cfg.MaxPorts,
		ResponseTimeout: cfg.ResponseTimeout,
		CommandRate:     cfg.CommandRate,
		CommandBurst:    cfg.CommandBurst,
		DrainOnDesync:   cfg.DrainOnDesync,
		Presets:         presets,
		Journal:         j,
		Metrics:         appm,
		Logger:          log.Named("matrix"),
	})
}
