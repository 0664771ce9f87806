// Package journal 矩阵命令审计日志
package journal

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// 命令结果
const (
	OutcomeOK    = "ok"
	OutcomeError = "error"
)

// Entry 单条命令记录
type Entry struct {
	ID        uuid.UUID              `json:"id"`
	RequestID string                 `json:"request_id,omitempty"`
	Op        string                 `json:"op"`
	Args      map[string]interface{} `json:"args,omitempty"`
	Outcome   string                 `json:"outcome"`
	ErrorKind string                 `json:"error_kind,omitempty"`
	Error     string                 `json:"error,omitempty"`
	Request   string                 `json:"request,omitempty"`  // 发送帧 hex
	Response  string                 `json:"response,omitempty"` // 应答帧 hex
	Latency   time.Duration          `json:"latency_ns"`
	At        time.Time              `json:"at"`
}

// Sink 记录落地
type Sink interface {
	Write(ctx context.Context, e Entry) error
}

// Journal 分发到多个 Sink；单个 Sink 失败只记日志，不影响命令结果
type Journal struct {
	sinks   []Sink
	logger  *zap.Logger
	onError func(error)
}

// New 创建审计日志
func New(logger *zap.Logger, sinks ...Sink) *Journal {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Journal{sinks: sinks, logger: logger}
}

// OnError 设置 Sink 失败回调（指标计数）
func (j *Journal) OnError(fn func(error)) {
	j.onError = fn
}

// AddSink 追加 Sink（仅在启动阶段调用）
func (j *Journal) AddSink(s Sink) {
	j.sinks = append(j.sinks, s)
}

// Record 写入一条记录，缺省字段自动补全
func (j *Journal) Record(ctx context.Context, e Entry) Entry {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if e.At.IsZero() {
		e.At = time.Now()
	}
	if e.Outcome == "" {
		e.Outcome = OutcomeOK
		if e.ErrorKind != "" {
			e.Outcome = OutcomeError
		}
	}

	for _, s := range j.sinks {
		if err := s.Write(ctx, e); err != nil {
			j.logger.Warn("journal sink failed",
				zap.String("id", e.ID.String()),
				zap.String("op", e.Op),
				zap.Error(err))
			if j.onError != nil {
				j.onError(err)
			}
		}
	}
	return e
}

// ZapSink 以结构化日志输出
type ZapSink struct {
	Logger *zap.Logger
}

func (s ZapSink) Write(_ context.Context, e Entry) error {
	fields := []zap.Field{
		zap.String("id", e.ID.String()),
		zap.String("op", e.Op),
		zap.Any("args", e.Args),
		zap.String("outcome", e.Outcome),
		zap.Duration("latency", e.Latency),
	}
	if e.RequestID != "" {
		fields = append(fields, zap.String("request_id", e.RequestID))
	}
	if e.Request != "" {
		fields = append(fields, zap.String("request", e.Request))
	}
	if e.Response != "" {
		fields = append(fields, zap.String("response", e.Response))
	}
	if e.Outcome != OutcomeOK {
		fields = append(fields, zap.String("error_kind", e.ErrorKind), zap.String("error", e.Error))
		s.Logger.Warn("matrix command", fields...)
		return nil
	}
	s.Logger.Info("matrix command", fields...)
	return nil
}
