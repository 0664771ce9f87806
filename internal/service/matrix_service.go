package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/taoyao-code/hdmi-matrix/internal/controller"
	"github.com/taoyao-code/hdmi-matrix/internal/journal"
	"github.com/taoyao-code/hdmi-matrix/internal/metrics"
	"github.com/taoyao-code/hdmi-matrix/internal/preset"
	"github.com/taoyao-code/hdmi-matrix/internal/protocol/hdmx"
)

// Options 服务配置
type Options struct {
	MaxPorts        int
	ResponseTimeout time.Duration
	CommandRate     float64
	CommandBurst    int
	// DrainOnDesync 链路失步后，下一条命令前先清空传输缓冲
	DrainOnDesync bool

	Presets *preset.Set
	Journal *journal.Journal
	Metrics *metrics.AppMetrics
	Logger  *zap.Logger
}

// LinkState 链路状态（健康检查与 API 使用）
type LinkState struct {
	Desync        bool      `json:"desync"`
	LastErrorKind string    `json:"last_error_kind,omitempty"`
	LastError     string    `json:"last_error,omitempty"`
	LastErrorAt   time.Time `json:"last_error_at,omitempty"`
	LastSuccessAt time.Time `json:"last_success_at,omitempty"`
	Commands      int64     `json:"commands"`
	Failures      int64     `json:"failures"`
	RxBytes       uint64    `json:"rx_bytes"`
	TxBytes       uint64    `json:"tx_bytes"`
}

// byteStats 统计收发字节的链路（transport.Open 返回的端口）
type byteStats interface {
	Bytes() (rx, tx uint64)
}

// MatrixService 矩阵访问的唯一入口：串行化命令、节拍控制、失步处理、审计与指标
type MatrixService struct {
	mu sync.Mutex

	ctrl          *controller.Controller
	bytes         byteStats
	pacer         *Pacer
	presets       *preset.Set
	journal       *journal.Journal
	metrics       *metrics.AppMetrics
	logger        *zap.Logger
	drainOnDesync bool

	last  controller.Event // 当前命令的往返记录（持锁访问）
	state LinkState
	stMu  sync.RWMutex
}

// NewMatrixService 在 port 上创建控制器与服务
func NewMatrixService(port io.ReadWriter, opts Options) (*MatrixService, error) {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &MatrixService{
		pacer:         NewPacer(opts.CommandRate, opts.CommandBurst),
		presets:       opts.Presets,
		journal:       opts.Journal,
		metrics:       opts.Metrics,
		logger:        logger,
		drainOnDesync: opts.DrainOnDesync,
	}
	if bs, ok := port.(byteStats); ok {
		s.bytes = bs
	}
	if s.presets == nil {
		s.presets = preset.Empty()
	}
	if s.journal == nil {
		s.journal = journal.New(logger)
	}

	ctrl, err := controller.New(port, opts.MaxPorts, opts.ResponseTimeout,
		controller.WithLogger(logger.Named("controller")),
		controller.WithObserver(controller.ObserverFunc(func(ev controller.Event) { s.last = ev })),
	)
	if err != nil {
		return nil, err
	}
	s.ctrl = ctrl

	// 非法预案保留在列表中，执行时拒绝
	if err := s.presets.Validate(opts.MaxPorts); err != nil {
		logger.Warn("presets contain invalid routes", zap.Error(err))
	}
	return s, nil
}

// MaxPorts 端口数
func (s *MatrixService) MaxPorts() int { return s.ctrl.MaxPorts() }

// SetBeep 开关蜂鸣
func (s *MatrixService) SetBeep(ctx context.Context, enabled bool) error {
	return s.do(ctx, "set_beep", args("enabled", enabled), func(ctx context.Context) error {
		return s.ctrl.SetBeep(ctx, enabled)
	})
}

// SetPower 开关机
func (s *MatrixService) SetPower(ctx context.Context, enabled bool) error {
	return s.do(ctx, "set_power", args("enabled", enabled), func(ctx context.Context) error {
		return s.ctrl.SetPower(ctx, enabled)
	})
}

// ChangePort 切换路由
func (s *MatrixService) ChangePort(ctx context.Context, output, input int) error {
	return s.do(ctx, "change_port", args("output", output, "input", input), func(ctx context.Context) error {
		return s.ctrl.ChangePort(ctx, output, input)
	})
}

// QueryStatus 查询路由
func (s *MatrixService) QueryStatus(ctx context.Context, output int) (*hdmx.Status, error) {
	var st *hdmx.Status
	err := s.do(ctx, "query_status", args("output", output), func(ctx context.Context) error {
		var err error
		st, err = s.ctrl.QueryStatus(ctx, output)
		return err
	})
	return st, err
}

// QueryBeep 查询蜂鸣
func (s *MatrixService) QueryBeep(ctx context.Context) (bool, error) {
	var on bool
	err := s.do(ctx, "query_beep", nil, func(ctx context.Context) error {
		var err error
		on, err = s.ctrl.QueryBeep(ctx)
		return err
	})
	return on, err
}

// QueryHPD 查询热插拔
func (s *MatrixService) QueryHPD(ctx context.Context, output int) (bool, error) {
	var high bool
	err := s.do(ctx, "query_hpd", args("output", output), func(ctx context.Context) error {
		var err error
		high, err = s.ctrl.QueryHPD(ctx, output)
		return err
	})
	return high, err
}

// QueryCable 查询线缆
func (s *MatrixService) QueryCable(ctx context.Context, input int) (bool, error) {
	var connected bool
	err := s.do(ctx, "query_cable", args("input", input), func(ctx context.Context) error {
		var err error
		connected, err = s.ctrl.QueryCable(ctx, input)
		return err
	})
	return connected, err
}

// SetEDID 设置单个输入口 EDID
func (s *MatrixService) SetEDID(ctx context.Context, input int, value hdmx.EDID) error {
	return s.do(ctx, "set_edid", args("input", input, "value", int(value)), func(ctx context.Context) error {
		return s.ctrl.SetEDID(ctx, input, value)
	})
}

// SetEDIDToAll 全部输入口设置 EDID
func (s *MatrixService) SetEDIDToAll(ctx context.Context, value hdmx.EDID) error {
	return s.do(ctx, "set_edid_to_all", args("value", int(value)), func(ctx context.Context) error {
		return s.ctrl.SetEDIDToAll(ctx, value)
	})
}

// CopyEDID 复制输出口 EDID 到输入口
func (s *MatrixService) CopyEDID(ctx context.Context, output, input int) error {
	return s.do(ctx, "copy_edid", args("output", output, "input", input), func(ctx context.Context) error {
		return s.ctrl.CopyEDID(ctx, output, input)
	})
}

// CopyEDIDToAll 复制输出口 EDID 到全部输入口
func (s *MatrixService) CopyEDIDToAll(ctx context.Context, output int) error {
	return s.do(ctx, "copy_edid_to_all", args("output", output), func(ctx context.Context) error {
		return s.ctrl.CopyEDIDToAll(ctx, output)
	})
}

// Drain 手动清空链路
func (s *MatrixService) Drain(ctx context.Context) error {
	s.mu.Lock()
	start := time.Now()
	err := s.drainLocked()
	e := s.observe(ctx, "drain", nil, err, start, controller.Event{})
	s.mu.Unlock()

	s.journal.Record(ctx, e)
	return err
}

// Presets 预案列表
func (s *MatrixService) Presets() []*preset.Preset {
	return s.presets.List()
}

// PresetResult 预案执行结果
type PresetResult struct {
	Preset  string         `json:"preset"`
	Applied []preset.Route `json:"applied"`
	Total   int            `json:"total"`
}

// ApplyPreset 执行预案
// 先校验全部路由（任一非法则不下发任何命令），再按输出口升序逐条 ChangePort，遇错即停。
// 整个预案持锁执行，期间不会插入其他命令。
func (s *MatrixService) ApplyPreset(ctx context.Context, name string) (*PresetResult, error) {
	p, err := s.presets.Get(name)
	if err != nil {
		return nil, err
	}
	routes := p.Ordered()
	res := &PresetResult{Preset: name, Total: len(routes)}
	if err := p.Validate(s.ctrl.MaxPorts()); err != nil {
		s.observePreset(name, err)
		return res, err
	}

	// 解锁后再写审计日志（defer 逆序执行）
	var pending []journal.Entry
	defer func() {
		for _, e := range pending {
			s.journal.Record(ctx, e)
		}
	}()
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, r := range routes {
		e, err := s.doLocked(ctx, "change_port", args("output", r.Output, "input", r.Input, "preset", name), func(ctx context.Context) error {
			return s.ctrl.ChangePort(ctx, r.Output, r.Input)
		})
		if e != nil {
			pending = append(pending, *e)
		}
		if err != nil {
			s.observePreset(name, err)
			return res, fmt.Errorf("preset %q stopped at output %d after %d of %d routes: %w",
				name, r.Output, len(res.Applied), len(routes), err)
		}
		res.Applied = append(res.Applied, r)
	}
	s.observePreset(name, nil)
	s.logger.Info("preset applied", zap.String("preset", name), zap.Int("routes", len(routes)))
	return res, nil
}

// LinkState 链路状态快照
func (s *MatrixService) LinkState() LinkState {
	s.stMu.RLock()
	st := s.state
	s.stMu.RUnlock()
	if s.bytes != nil {
		st.RxBytes, st.TxBytes = s.bytes.Bytes()
	}
	return st
}

// PacerStats 节拍器统计
func (s *MatrixService) PacerStats() PacerStats {
	return s.pacer.Stats()
}

// do 持锁执行命令，解锁后写审计日志，慢速 Sink 不阻塞后续命令
func (s *MatrixService) do(ctx context.Context, op string, a map[string]interface{}, fn func(context.Context) error) error {
	s.mu.Lock()
	e, err := s.doLocked(ctx, op, a, fn)
	s.mu.Unlock()

	if e != nil {
		s.journal.Record(ctx, *e)
	}
	return err
}

// doLocked 执行单条命令（调用方持有 s.mu），返回待写入的审计记录；未执行时为 nil
func (s *MatrixService) doLocked(ctx context.Context, op string, a map[string]interface{}, fn func(context.Context) error) (*journal.Entry, error) {
	waited, err := s.pacer.Wait(ctx)
	if err != nil {
		return nil, err
	}
	if waited && s.metrics != nil {
		s.metrics.PacerWaitTotal.Inc()
	}

	if s.drainOnDesync && s.LinkState().Desync {
		if err := s.drainLocked(); err != nil {
			s.logger.Warn("drain before command failed", zap.String("op", op), zap.Error(err))
		}
	}

	s.last = controller.Event{}
	start := time.Now()
	err = fn(ctx)

	s.updateState(err)
	e := s.observe(ctx, op, a, err, start, s.last)
	return &e, err
}

func (s *MatrixService) drainLocked() error {
	err := s.ctrl.Drain()
	if errors.Is(err, controller.ErrDrainUnsupported) {
		s.logger.Debug("link drain skipped", zap.Error(err))
		err = nil
	}
	if err != nil {
		return err
	}
	s.stMu.Lock()
	s.state.Desync = false
	s.stMu.Unlock()
	if s.metrics != nil {
		s.metrics.DrainTotal.Inc()
		s.metrics.LinkDesync.Set(0)
	}
	return nil
}

func (s *MatrixService) updateState(err error) {
	// 参数校验失败和取消不涉及链路
	if errors.Is(err, hdmx.ErrInvalidPort) || errors.Is(err, hdmx.ErrInvalidArgument) ||
		errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return
	}

	s.stMu.Lock()
	defer s.stMu.Unlock()
	s.state.Commands++
	if err == nil {
		s.state.LastSuccessAt = time.Now()
		s.state.Desync = false
	} else {
		s.state.Failures++
		s.state.LastErrorKind = hdmx.Kind(err)
		s.state.LastError = err.Error()
		s.state.LastErrorAt = time.Now()
		if hdmx.Desyncs(err) {
			s.state.Desync = true
		}
	}
	if s.metrics != nil {
		if s.state.Desync {
			s.metrics.LinkDesync.Set(1)
		} else {
			s.metrics.LinkDesync.Set(0)
		}
	}
}

// observe 记录指标并生成审计记录
func (s *MatrixService) observe(ctx context.Context, op string, a map[string]interface{}, err error, start time.Time, ev controller.Event) journal.Entry {
	latency := time.Since(start)
	kind := hdmx.Kind(err)
	if s.metrics != nil {
		s.metrics.CommandTotal.WithLabelValues(op, kind).Inc()
		s.metrics.CommandDuration.WithLabelValues(op).Observe(latency.Seconds())
	}

	e := journal.Entry{
		RequestID: RequestIDFrom(ctx),
		Op:        op,
		Args:      a,
		Latency:   latency,
		At:        start,
		Request:   hdmx.HexString(ev.Request),
		Response:  hdmx.HexString(ev.Response),
	}
	if err != nil {
		e.Outcome = journal.OutcomeError
		e.ErrorKind = kind
		e.Error = err.Error()
		var ue *hdmx.UnexpectedResponseError
		if errors.As(err, &ue) {
			e.Response = hdmx.HexString(ue.Raw)
		}
	}
	return e
}

func (s *MatrixService) observePreset(name string, err error) {
	if s.metrics == nil {
		return
	}
	s.metrics.PresetApply.WithLabelValues(name, hdmx.Kind(err)).Inc()
}

func args(kv ...interface{}) map[string]interface{} {
	m := make(map[string]interface{}, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		m[kv[i].(string)] = kv[i+1]
	}
	return m
}
