package controller

import (
	"time"

	"go.uber.org/zap"
)

// Event 单条命令的执行结果，交给 Observer（指标、审计）
type Event struct {
	Command  string
	Request  []byte // 已发送的帧；参数校验失败时为空
	Response []byte // 已通过校验的应答帧
	Err      error
	Latency  time.Duration
}

// Observer 命令观察者
// 在命令所在 goroutine 中同步调用，实现需保持轻量
type Observer interface {
	ObserveCommand(ev Event)
}

// ObserverFunc 函数适配器
type ObserverFunc func(ev Event)

func (f ObserverFunc) ObserveCommand(ev Event) { f(ev) }

type options struct {
	logger   *zap.Logger
	observer Observer
}

// Option 控制器选项
type Option func(*options)

// WithLogger 设置日志（默认 zap.NewNop）
func WithLogger(l *zap.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithObserver 设置命令观察者
func WithObserver(obs Observer) Option {
	return func(o *options) {
		o.observer = obs
	}
}
