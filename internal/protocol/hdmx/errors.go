package hdmx

import (
	"errors"
	"fmt"
	"time"
)

// 错误分类（配合 errors.Is 使用）
var (
	ErrInvalidPort        = errors.New("invalid port")
	ErrInvalidArgument    = errors.New("invalid argument")
	ErrTransport          = errors.New("transport error")
	ErrTimeout            = errors.New("response timeout")
	ErrUnexpectedResponse = errors.New("unexpected response")
	ErrMalformedStatus    = errors.New("malformed status")

	ErrFrameLength = errors.New("frame length mismatch")
	ErrBadHeader   = errors.New("bad frame header")
)

// InvalidPortError 端口号超出 [1, Max]
type InvalidPortError struct {
	Field string
	Port  int
	Max   int
}

func (e *InvalidPortError) Error() string {
	return fmt.Sprintf("invalid %s port %d: valid range is 1-%d", e.Field, e.Port, e.Max)
}

func (e *InvalidPortError) Is(target error) bool { return target == ErrInvalidPort }

// InvalidEDIDError EDID 取值非法
type InvalidEDIDError struct {
	Value int
}

func (e *InvalidEDIDError) Error() string {
	return fmt.Sprintf("invalid edid value %d: valid range is %d-%d", e.Value, EDIDMin, EDIDMax)
}

func (e *InvalidEDIDError) Is(target error) bool { return target == ErrInvalidArgument }

// TransportError 底层读写失败
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

func (e *TransportError) Is(target error) bool { return target == ErrTransport }

// TimeoutError 超时前未收到完整应答帧
// Received 为超时时已收到的字节数，仅用于诊断
type TimeoutError struct {
	After    time.Duration
	Received int
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("no complete response within %s (%d of %d bytes received)", e.After, e.Received, FrameLen)
}

func (e *TimeoutError) Is(target error) bool { return target == ErrTimeout }

// Timeout 实现 net.Error 风格的超时判断
func (e *TimeoutError) Timeout() bool { return true }

// UnexpectedResponseError 应答帧无法解析或与命令不匹配
type UnexpectedResponseError struct {
	Command string
	Raw     []byte
	Reason  string
}

func (e *UnexpectedResponseError) Error() string {
	return fmt.Sprintf("unexpected response to %s: %s [%s]", e.Command, e.Reason, HexString(e.Raw))
}

func (e *UnexpectedResponseError) Is(target error) bool { return target == ErrUnexpectedResponse }

// MalformedStatusError 状态应答格式正确但内容不可解释
type MalformedStatusError struct {
	Raw    []byte
	Reason string
}

func (e *MalformedStatusError) Error() string {
	return fmt.Sprintf("malformed status: %s [%s]", e.Reason, HexString(e.Raw))
}

func (e *MalformedStatusError) Is(target error) bool { return target == ErrMalformedStatus }

func unexpected(cmd Command, raw []byte, format string, args ...interface{}) *UnexpectedResponseError {
	return &UnexpectedResponseError{
		Command: cmd.Name(),
		Raw:     append([]byte(nil), raw...),
		Reason:  fmt.Sprintf(format, args...),
	}
}

// Kind 错误分类标签（日志、指标、HTTP 状态映射共用）
func Kind(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrInvalidPort):
		return "invalid_port"
	case errors.Is(err, ErrInvalidArgument):
		return "invalid_argument"
	case errors.Is(err, ErrTimeout):
		return "timeout"
	case errors.Is(err, ErrUnexpectedResponse):
		return "unexpected_response"
	case errors.Is(err, ErrMalformedStatus):
		return "malformed_status"
	case errors.Is(err, ErrTransport):
		return "transport"
	default:
		return "error"
	}
}

// Desyncs 该错误是否可能使链路上残留未消费字节
// 超时后设备仍可能迟到应答，因此任何超时都视为失步
func Desyncs(err error) bool {
	return errors.Is(err, ErrTimeout) || errors.Is(err, ErrUnexpectedResponse)
}
