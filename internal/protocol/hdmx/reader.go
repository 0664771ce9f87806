package hdmx

import (
	"errors"
	"fmt"
	"io"
	"time"
)

// idleBackoff 传输返回 (0, nil) 时的轮询间隔
const idleBackoff = 10 * time.Millisecond

// deadlineReader 支持读截止时间的传输（net.Conn、os.File 等）
type deadlineReader interface {
	SetReadDeadline(t time.Time) error
}

// ReadFrame 在 timeout 内读取恰好一帧（FrameLen 字节）
//
// 传输须满足其一：实现 SetReadDeadline，或 Read 能周期性返回（串口以读超时方式打开）。
// 两者都不满足时 Read 一直阻塞，ReadFrame 无法按时返回。Read 返回 (0, nil) 视为空轮询。
//
// 只读取一帧所需字节，不会多读。出错时同时返回已读到的字节：
//   - 前两个字节不是帧头：立即返回，错误匹配 ErrBadHeader
//   - 超时：*TimeoutError
//   - 其余读错误（含 io.EOF）：*TransportError
func ReadFrame(r io.Reader, timeout time.Duration) ([]byte, error) {
	if timeout <= 0 {
		return nil, errors.New("read timeout must be positive")
	}
	deadline := time.Now().Add(timeout)

	if dr, ok := r.(deadlineReader); ok {
		if err := dr.SetReadDeadline(deadline); err != nil {
			return nil, &TransportError{Op: "read", Err: err}
		}
		defer func() { _ = dr.SetReadDeadline(time.Time{}) }()
	}

	buf := make([]byte, FrameLen)
	got := 0
	for got < FrameLen {
		n, err := r.Read(buf[got:])
		got += n
		if got == FrameLen {
			break
		}
		if err != nil && !isTimeout(err) {
			return buf[:got], &TransportError{Op: "read", Err: err}
		}
		if badHeader(buf[:got]) {
			return buf[:got], fmt.Errorf("%w: %s", ErrBadHeader, HexString(buf[:got]))
		}
		if err != nil {
			return buf[:got], &TimeoutError{After: timeout, Received: got}
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return buf[:got], &TimeoutError{After: timeout, Received: got}
		}
		if n == 0 {
			time.Sleep(min(idleBackoff, remaining))
		}
	}
	return buf, nil
}

// ReadResponse 读取 cmd 的应答帧
// 不完整或帧头错误的应答作为 *UnexpectedResponseError 返回并携带已收到的字节；
// 一个字节都没收到才是 *TimeoutError
func ReadResponse(r io.Reader, cmd Command, timeout time.Duration) ([]byte, error) {
	raw, err := ReadFrame(r, timeout)
	if err == nil || len(raw) == 0 {
		return raw, err
	}
	var te *TimeoutError
	switch {
	case errors.Is(err, ErrBadHeader):
		return nil, unexpected(cmd, raw, "bad header")
	case errors.As(err, &te):
		return nil, unexpected(cmd, raw, "short response: %d of %d bytes within %s", te.Received, FrameLen, te.After)
	}
	return nil, err
}

func badHeader(b []byte) bool {
	for i := 0; i < len(b) && i < HeaderLen; i++ {
		if b[i] != header[i] {
			return true
		}
	}
	return false
}

func isTimeout(err error) bool {
	var te interface{ Timeout() bool }
	return errors.As(err, &te) && te.Timeout()
}
