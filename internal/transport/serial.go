package transport

import (
	"errors"
	"fmt"
	"io"

	"github.com/tarm/serial"

	"github.com/taoyao-code/hdmi-matrix/internal/config"
)

// serialPort 本地串口
// tarm/serial 以 VTIME 方式实现读超时，超时时 Read 返回 (0, io.EOF)，此处转换为 (0, nil)
type serialPort struct {
	port *serial.Port
}

func openSerial(cfg config.SerialConfig) (Port, error) {
	sc := &serial.Config{
		Name:        cfg.Device,
		Baud:        cfg.Baud,
		ReadTimeout: cfg.ReadTimeout,
		Size:        8,
		Parity:      serial.ParityNone,
		StopBits:    serial.Stop1,
	}
	p, err := serial.OpenPort(sc)
	if err != nil {
		return nil, fmt.Errorf("open serial %s failed: %w", cfg.Device, err)
	}
	return &serialPort{port: p}, nil
}

func (s *serialPort) Read(b []byte) (int, error) {
	n, err := s.port.Read(b)
	if n == 0 && errors.Is(err, io.EOF) {
		return 0, nil
	}
	return n, err
}

func (s *serialPort) Write(b []byte) (int, error) {
	return s.port.Write(b)
}

// Flush 丢弃内核收发缓冲中的数据
func (s *serialPort) Flush() error {
	return s.port.Flush()
}

func (s *serialPort) Close() error {
	return s.port.Close()
}
