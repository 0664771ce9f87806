package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRegistry 创建自定义 Prometheus Registry，并注册常用采集器
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// Handler 返回 Prometheus 指标 HTTP 处理器
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
}

// AppMetrics 矩阵控制指标
type AppMetrics struct {
	CommandTotal    *prometheus.CounterVec   // labels: cmd, result
	CommandDuration *prometheus.HistogramVec // labels: cmd
	LinkBytes       *prometheus.CounterVec   // labels: dir=rx|tx
	LinkDesync      prometheus.Gauge         // 1 表示链路可能失步
	DrainTotal      prometheus.Counter
	PacerWaitTotal  prometheus.Counter      // 因限速而等待的命令数
	PresetApply     *prometheus.CounterVec // labels: preset, result
	JournalErrors   prometheus.Counter
}

// NewAppMetrics 注册并返回业务指标
func NewAppMetrics(reg prometheus.Registerer) *AppMetrics {
	m := &AppMetrics{
		CommandTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hdmx_command_total",
			Help: "Matrix commands by command name and result kind.",
		}, []string{"cmd", "result"}),
		CommandDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "hdmx_command_duration_seconds",
			Help:    "Matrix command round-trip latency.",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		}, []string{"cmd"}),
		LinkBytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hdmx_link_bytes_total",
			Help: "Bytes transferred over the matrix link.",
		}, []string{"dir"}),
		LinkDesync: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "hdmx_link_desync",
			Help: "1 while the link may hold unread bytes from a failed exchange.",
		}),
		DrainTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hdmx_link_drain_total",
			Help: "Total link drains performed.",
		}),
		PacerWaitTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hdmx_pacer_wait_total",
			Help: "Commands delayed by the command pacer.",
		}),
		PresetApply: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hdmx_preset_apply_total",
			Help: "Preset applications by preset and result.",
		}, []string{"preset", "result"}),
		JournalErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hdmx_journal_errors_total",
			Help: "Command journal sink failures.",
		}),
	}
	reg.MustRegister(m.CommandTotal, m.CommandDuration, m.LinkBytes, m.LinkDesync,
		m.DrainTotal, m.PacerWaitTotal, m.PresetApply, m.JournalErrors)
	return m
}

// AddLinkBytes 链路字节计数（transport.ByteCounter）
func (m *AppMetrics) AddLinkBytes(dir string, n int) {
	m.LinkBytes.WithLabelValues(dir).Add(float64(n))
}
