package transport

import (
	"fmt"
	"io"
	"strings"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/taoyao-code/hdmi-matrix/internal/config"
	"github.com/taoyao-code/hdmi-matrix/internal/simulator"
)

// Port 矩阵链路：双工字节流 + 丢弃未读数据
type Port interface {
	io.ReadWriteCloser
	Flush() error
}

const (
	schemeTCP = "tcp://"
	schemeSim = "sim://"
)

// ByteCounter 链路字节计数回调，dir 为 "rx" 或 "tx"
type ByteCounter func(dir string, n int)

type openOptions struct {
	logger   *zap.Logger
	counter  ByteCounter
	simPorts int
}

// Option 打开选项
type Option func(*openOptions)

// WithLogger 设置日志
func WithLogger(l *zap.Logger) Option {
	return func(o *openOptions) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithByteCounter 设置字节计数回调
func WithByteCounter(fn ByteCounter) Option {
	return func(o *openOptions) { o.counter = fn }
}

// WithSimulatorPorts sim:// 后端的端口数
func WithSimulatorPorts(n int) Option {
	return func(o *openOptions) { o.simPorts = n }
}

// Open 按 cfg.Device 选择后端打开链路
//   - tcp://host:port  串口服务器（透明传输）
//   - sim://           进程内模拟器
//   - 其他             本地串口设备
func Open(cfg config.SerialConfig, opts ...Option) (Port, error) {
	o := openOptions{logger: zap.NewNop(), simPorts: 4}
	for _, opt := range opts {
		opt(&o)
	}

	var (
		p   Port
		err error
	)
	switch {
	case strings.HasPrefix(cfg.Device, schemeTCP):
		p, err = openTCP(strings.TrimPrefix(cfg.Device, schemeTCP), cfg.DialTimeout)
	case strings.HasPrefix(cfg.Device, schemeSim):
		p = simulator.New(o.simPorts, simulator.WithLogger(o.logger.Named("simulator")))
	default:
		p, err = openSerial(cfg)
	}
	if err != nil {
		return nil, err
	}

	o.logger.Info("matrix link opened",
		zap.String("device", cfg.Device),
		zap.Int("baud", cfg.Baud),
		zap.Duration("read_timeout", cfg.ReadTimeout))

	return &countingPort{Port: p, counter: o.counter}, nil
}

// countingPort 统计收发字节并透传读截止时间
type countingPort struct {
	Port
	counter ByteCounter
	rx, tx  atomic.Uint64
}

func (c *countingPort) Read(b []byte) (int, error) {
	n, err := c.Port.Read(b)
	if n > 0 {
		c.rx.Add(uint64(n))
		if c.counter != nil {
			c.counter("rx", n)
		}
	}
	return n, err
}

func (c *countingPort) Write(b []byte) (int, error) {
	n, err := c.Port.Write(b)
	if n > 0 {
		c.tx.Add(uint64(n))
		if c.counter != nil {
			c.counter("tx", n)
		}
	}
	return n, err
}

// SetReadDeadline 底层支持时透传；否则依赖底层读超时周期返回
func (c *countingPort) SetReadDeadline(t time.Time) error {
	if d, ok := c.Port.(interface{ SetReadDeadline(time.Time) error }); ok {
		return d.SetReadDeadline(t)
	}
	return nil
}

// Bytes 返回累计收发字节数
func (c *countingPort) Bytes() (rx, tx uint64) {
	return c.rx.Load(), c.tx.Load()
}

func (c *countingPort) String() string {
	rx, tx := c.Bytes()
	return fmt.Sprintf("%T rx=%d tx=%d", c.Port, rx, tx)
}
