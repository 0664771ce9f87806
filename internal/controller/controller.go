package controller

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"

	"github.com/taoyao-code/hdmi-matrix/internal/protocol/hdmx"
)

// MaxPortsLimit 端口号占用一个数据字节
const MaxPortsLimit = 255

// ErrDrainUnsupported 传输不支持清空缓冲
var ErrDrainUnsupported = errors.New("transport does not support flush")

// Flusher 可丢弃未读数据的传输
type Flusher interface {
	Flush() error
}

// Controller HDMI 矩阵控制门面
//
// 每个操作严格执行一次 编码 → 写 → 读 → 校验，不重试、不缓存设备状态。
// Controller 不加锁，不可并发使用；多个调用方共享时由上层串行化（见 service.MatrixService）。
type Controller struct {
	port     io.ReadWriter
	maxPorts int
	timeout  time.Duration
	logger   *zap.Logger
	observer Observer
}

// New 创建控制器
// maxPorts 为矩阵端口数（1-255），timeout 为单条命令等待应答的上限。
// port 须实现 SetReadDeadline，或其 Read 能在无数据时周期性返回（串口以 VTIME 读超时打开），
// 否则 Read 阻塞时 timeout 不生效。
func New(port io.ReadWriter, maxPorts int, timeout time.Duration, opts ...Option) (*Controller, error) {
	if port == nil {
		return nil, errors.New("transport cannot be nil")
	}
	if maxPorts < 1 || maxPorts > MaxPortsLimit {
		return nil, fmt.Errorf("max ports %d outside 1-%d", maxPorts, MaxPortsLimit)
	}
	if timeout <= 0 {
		return nil, fmt.Errorf("response timeout must be positive, got %s", timeout)
	}

	o := options{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}

	return &Controller{
		port:     port,
		maxPorts: maxPorts,
		timeout:  timeout,
		logger:   o.logger,
		observer: o.observer,
	}, nil
}

// MaxPorts 端口数
func (c *Controller) MaxPorts() int { return c.maxPorts }

// Timeout 应答超时
func (c *Controller) Timeout() time.Duration { return c.timeout }

// SetBeep 开关按键蜂鸣
func (c *Controller) SetBeep(ctx context.Context, enabled bool) error {
	_, err := c.exchange(ctx, hdmx.SetBeep{Enabled: enabled})
	return err
}

// SetPower 开关机
func (c *Controller) SetPower(ctx context.Context, enabled bool) error {
	_, err := c.exchange(ctx, hdmx.SetPower{Enabled: enabled})
	return err
}

// ChangePort 将 input 路由到 output
func (c *Controller) ChangePort(ctx context.Context, output, input int) error {
	_, err := c.exchange(ctx, hdmx.ChangePort{Output: hdmx.Port(output), Input: hdmx.Port(input)})
	return err
}

// QueryStatus 查询 output 当前接入的输入口
func (c *Controller) QueryStatus(ctx context.Context, output int) (*hdmx.Status, error) {
	f, err := c.exchange(ctx, hdmx.QueryStatus{Output: hdmx.Port(output)})
	if err != nil {
		return nil, err
	}
	st, err := hdmx.DecodeStatus(f, c.maxPorts)
	if err != nil {
		c.logger.Warn("hdmx malformed status", zap.Int("output", output), zap.Error(err))
		return nil, err
	}
	return st, nil
}

// QueryBeep 蜂鸣是否开启
func (c *Controller) QueryBeep(ctx context.Context) (bool, error) {
	f, err := c.exchange(ctx, hdmx.QueryBeep{})
	if err != nil {
		return false, err
	}
	return hdmx.DecodeBeep(f), nil
}

// QueryHPD output 的 HPD 是否为高（显示器在位）
func (c *Controller) QueryHPD(ctx context.Context, output int) (bool, error) {
	f, err := c.exchange(ctx, hdmx.QueryHPD{Output: hdmx.Port(output)})
	if err != nil {
		return false, err
	}
	return hdmx.DecodeHPD(f), nil
}

// QueryCable input 是否接有线缆
func (c *Controller) QueryCable(ctx context.Context, input int) (bool, error) {
	f, err := c.exchange(ctx, hdmx.QueryCable{Input: hdmx.Port(input)})
	if err != nil {
		return false, err
	}
	return hdmx.DecodeCable(f), nil
}

// SetEDID 设置 input 的 EDID
func (c *Controller) SetEDID(ctx context.Context, input int, value hdmx.EDID) error {
	_, err := c.exchange(ctx, hdmx.SetEDID{Input: hdmx.Port(input), Value: value})
	return err
}

// SetEDIDToAll 所有输入口设置同一 EDID
func (c *Controller) SetEDIDToAll(ctx context.Context, value hdmx.EDID) error {
	_, err := c.exchange(ctx, hdmx.SetEDIDToAll{Value: value})
	return err
}

// CopyEDID 将 output 所接显示器的 EDID 复制到 input
func (c *Controller) CopyEDID(ctx context.Context, output, input int) error {
	_, err := c.exchange(ctx, hdmx.CopyEDID{Output: hdmx.Port(output), Input: hdmx.Port(input)})
	return err
}

// CopyEDIDToAll 将 output 所接显示器的 EDID 复制到所有输入口
func (c *Controller) CopyEDIDToAll(ctx context.Context, output int) error {
	_, err := c.exchange(ctx, hdmx.CopyEDIDToAll{Output: hdmx.Port(output)})
	return err
}

// Drain 丢弃传输中残留的未读字节，用于超时或异常应答后的重新同步
// 控制器自身从不隐式调用
func (c *Controller) Drain() error {
	fl, ok := c.port.(Flusher)
	if !ok {
		return ErrDrainUnsupported
	}
	if err := fl.Flush(); err != nil {
		return &hdmx.TransportError{Op: "flush", Err: err}
	}
	c.logger.Debug("hdmx link drained")
	return nil
}

// exchange 执行一次命令往返
func (c *Controller) exchange(ctx context.Context, cmd hdmx.Command) (*hdmx.Frame, error) {
	start := time.Now()
	ev := Event{Command: cmd.Name()}

	f, err := c.roundTrip(ctx, cmd, &ev)

	ev.Err = err
	ev.Latency = time.Since(start)
	if f != nil {
		ev.Response = f.Raw
	}
	c.report(ev)
	return f, err
}

func (c *Controller) roundTrip(ctx context.Context, cmd hdmx.Command, ev *Event) (*hdmx.Frame, error) {
	req, err := hdmx.Encode(cmd, c.maxPorts)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c.logger.Debug("hdmx send", zap.String("cmd", cmd.Name()), zap.String("frame", hdmx.HexString(req)))
	n, err := c.port.Write(req)
	if err == nil && n != len(req) {
		err = io.ErrShortWrite
	}
	if err != nil {
		return nil, &hdmx.TransportError{Op: "write", Err: err}
	}
	ev.Request = req

	raw, err := hdmx.ReadResponse(c.port, cmd, c.timeout)
	if err != nil {
		return nil, err
	}
	c.logger.Debug("hdmx recv", zap.String("cmd", cmd.Name()), zap.String("frame", hdmx.HexString(raw)))

	return hdmx.Validate(raw, cmd)
}

func (c *Controller) report(ev Event) {
	switch {
	case ev.Err == nil:
	case errors.Is(ev.Err, hdmx.ErrInvalidPort), errors.Is(ev.Err, hdmx.ErrInvalidArgument):
		c.logger.Debug("hdmx command rejected", zap.String("cmd", ev.Command), zap.Error(ev.Err))
	default:
		c.logger.Warn("hdmx command failed",
			zap.String("cmd", ev.Command),
			zap.String("kind", hdmx.Kind(ev.Err)),
			zap.Duration("latency", ev.Latency),
			zap.Error(ev.Err))
	}
	if c.observer != nil {
		c.observer.ObserveCommand(ev)
	}
}
