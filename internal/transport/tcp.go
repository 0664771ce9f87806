package transport

import (
	"errors"
	"fmt"
	"net"
	"os"
	"time"
)

// flushWindow 清空时等待残留数据的时长
const flushWindow = 20 * time.Millisecond

// tcpPort 串口服务器（RS232 over TCP，透明模式）
type tcpPort struct {
	net.Conn
}

func openTCP(addr string, dialTimeout time.Duration) (Port, error) {
	if dialTimeout <= 0 {
		dialTimeout = 5 * time.Second
	}
	conn, err := net.DialTimeout("tcp", addr, dialTimeout)
	if err != nil {
		return nil, fmt.Errorf("dial %s failed: %w", addr, err)
	}
	if tc, ok := conn.(*net.TCPConn); ok {
		_ = tc.SetNoDelay(true)
	}
	return &tcpPort{Conn: conn}, nil
}

// Flush 读尽 flushWindow 内到达的残留字节
func (t *tcpPort) Flush() error {
	defer func() { _ = t.Conn.SetReadDeadline(time.Time{}) }()

	buf := make([]byte, 256)
	for {
		if err := t.Conn.SetReadDeadline(time.Now().Add(flushWindow)); err != nil {
			return err
		}
		n, err := t.Conn.Read(buf)
		if err != nil {
			if errors.Is(err, os.ErrDeadlineExceeded) {
				return nil
			}
			return err
		}
		if n == 0 {
			return nil
		}
	}
}
