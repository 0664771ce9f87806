package simulator

import (
	"errors"

	"github.com/taoyao-code/hdmi-matrix/internal/protocol/hdmx"
)

// FaultKind 故障类型
type FaultKind int

const (
	// FaultSilent 不应答
	FaultSilent FaultKind = iota + 1
	// FaultPartial 只返回应答的前 N 字节
	FaultPartial
	// FaultGarbage 以指定字节替换应答
	FaultGarbage
	// FaultWrongEcho 应答参数与请求不一致（校验和有效）
	FaultWrongEcho
	// FaultBadChecksum 应答校验和错误
	FaultBadChecksum
	// FaultExtraBytes 在应答后追加多余字节，使链路失步
	FaultExtraBytes
	// FaultWriteError 下一次写入失败
	FaultWriteError
	// FaultReadError 下一次读取失败
	FaultReadError
)

// Fault 一次性故障
type Fault struct {
	Kind  FaultKind
	N     int    // FaultPartial
	Bytes []byte // FaultGarbage / FaultExtraBytes
	Err   error  // FaultWriteError / FaultReadError
}

var errInjected = errors.New("injected fault")

func (k FaultKind) onReply() bool {
	switch k {
	case FaultSilent, FaultPartial, FaultGarbage, FaultWrongEcho, FaultBadChecksum, FaultExtraBytes:
		return true
	}
	return false
}

func (f Fault) err() error {
	if f.Err != nil {
		return f.Err
	}
	return errInjected
}

// mangle 按故障类型改写应答
func (f Fault) mangle(reply []byte) []byte {
	switch f.Kind {
	case FaultSilent:
		return nil
	case FaultPartial:
		if f.N < len(reply) {
			return reply[:f.N]
		}
		return reply
	case FaultGarbage:
		return append([]byte(nil), f.Bytes...)
	case FaultWrongEcho:
		fr, err := hdmx.ParseFrame(reply)
		if err != nil {
			return reply
		}
		return hdmx.BuildFrame(fr.Code, fr.Arg()+1, fr.Value()+1)
	case FaultBadChecksum:
		out := append([]byte(nil), reply...)
		out[len(out)-1]++
		return out
	case FaultExtraBytes:
		return append(append([]byte(nil), reply...), f.Bytes...)
	}
	return reply
}

// Silent 不应答
func Silent() Fault { return Fault{Kind: FaultSilent} }

// Partial 只返回 n 字节
func Partial(n int) Fault { return Fault{Kind: FaultPartial, N: n} }

// Garbage 以 b 替换应答
func Garbage(b []byte) Fault { return Fault{Kind: FaultGarbage, Bytes: b} }

// WrongEcho 应答另一组参数
func WrongEcho() Fault { return Fault{Kind: FaultWrongEcho} }

// BadChecksum 校验和错误
func BadChecksum() Fault { return Fault{Kind: FaultBadChecksum} }

// ExtraBytes 应答后追加多余字节
func ExtraBytes(b []byte) Fault { return Fault{Kind: FaultExtraBytes, Bytes: b} }

// WriteError 写失败
func WriteError(err error) Fault { return Fault{Kind: FaultWriteError, Err: err} }

// ReadError 读失败
func ReadError(err error) Fault { return Fault{Kind: FaultReadError, Err: err} }
