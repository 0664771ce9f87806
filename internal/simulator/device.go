package simulator

import (
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/taoyao-code/hdmi-matrix/internal/protocol/hdmx"
)

// ErrClosed 设备已关闭
var ErrClosed = errors.New("simulator closed")

// Device 内存 HDMI 矩阵模拟器
// 实现 io.ReadWriteCloser：Write 接收命令帧，完整帧到达后生成应答放入读缓冲；
// Read 无数据时立即返回 (0, nil)，行为等同以读超时方式打开的串口。
type Device struct {
	mu sync.Mutex

	maxPorts int
	logger   *zap.Logger

	rx     []byte // 未凑满一帧的输入
	tx     []byte // 待读取的应答
	faults []Fault
	closed bool

	state    State
	received [][]byte
}

// State 矩阵状态快照
type State struct {
	Routes map[hdmx.Port]hdmx.Port // output -> input
	EDID   map[hdmx.Port]hdmx.EDID // input -> edid
	HPD    map[hdmx.Port]bool      // output -> 显示器在位
	Cable  map[hdmx.Port]bool      // input -> 线缆连接
	Beep   bool
	Power  bool
}

func (s State) clone() State {
	c := State{
		Routes: make(map[hdmx.Port]hdmx.Port, len(s.Routes)),
		EDID:   make(map[hdmx.Port]hdmx.EDID, len(s.EDID)),
		HPD:    make(map[hdmx.Port]bool, len(s.HPD)),
		Cable:  make(map[hdmx.Port]bool, len(s.Cable)),
		Beep:   s.Beep,
		Power:  s.Power,
	}
	for k, v := range s.Routes {
		c.Routes[k] = v
	}
	for k, v := range s.EDID {
		c.EDID[k] = v
	}
	for k, v := range s.HPD {
		c.HPD[k] = v
	}
	for k, v := range s.Cable {
		c.Cable[k] = v
	}
	return c
}

// Option 模拟器选项
type Option func(*Device)

// WithLogger 设置日志
func WithLogger(l *zap.Logger) Option {
	return func(d *Device) {
		if l != nil {
			d.logger = l
		}
	}
}

// New 创建模拟器：输出 i 默认接输入 i，蜂鸣开启、电源开启、EDID 为 1080p_2.0，
// 所有输出 HPD 高、所有输入线缆已连接
func New(maxPorts int, opts ...Option) *Device {
	d := &Device{
		maxPorts: maxPorts,
		logger:   zap.NewNop(),
		state: State{
			Routes: make(map[hdmx.Port]hdmx.Port, maxPorts),
			EDID:   make(map[hdmx.Port]hdmx.EDID, maxPorts),
			HPD:    make(map[hdmx.Port]bool, maxPorts),
			Cable:  make(map[hdmx.Port]bool, maxPorts),
			Beep:   true,
			Power:  true,
		},
	}
	for i := 1; i <= maxPorts; i++ {
		p := hdmx.Port(i)
		d.state.Routes[p] = p
		d.state.EDID[p] = hdmx.EDID1080p20
		d.state.HPD[p] = true
		d.state.Cable[p] = true
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Write 接收主机写入的字节
func (d *Device) Write(p []byte) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return 0, ErrClosed
	}
	if f, ok := d.peekFault(); ok && f.Kind == FaultWriteError {
		d.faults = d.faults[1:]
		return 0, f.err()
	}

	d.rx = append(d.rx, p...)
	for len(d.rx) >= hdmx.FrameLen {
		frame := append([]byte(nil), d.rx[:hdmx.FrameLen]...)
		d.rx = d.rx[hdmx.FrameLen:]
		d.handle(frame)
	}
	return len(p), nil
}

// Read 读取应答；无数据时返回 (0, nil)
func (d *Device) Read(p []byte) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return 0, ErrClosed
	}
	if f, ok := d.peekFault(); ok && f.Kind == FaultReadError {
		d.faults = d.faults[1:]
		return 0, f.err()
	}
	if len(d.tx) == 0 {
		return 0, nil
	}
	n := copy(p, d.tx)
	d.tx = d.tx[n:]
	return n, nil
}

// Flush 丢弃未读应答与未凑满的输入
func (d *Device) Flush() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.rx = nil
	d.tx = nil
	return nil
}

// Close 关闭设备
func (d *Device) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	return nil
}

// Inject 追加一次性故障，按命令顺序依次消费
func (d *Device) Inject(faults ...Fault) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.faults = append(d.faults, faults...)
}

// Snapshot 返回当前状态副本
func (d *Device) Snapshot() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state.clone()
}

// Received 返回已收到的完整命令帧
func (d *Device) Received() [][]byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([][]byte, len(d.received))
	copy(out, d.received)
	return out
}

// Pending 读缓冲中尚未被主机读取的字节数
func (d *Device) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.tx)
}

// SetHPD 设置输出口热插拔状态
func (d *Device) SetHPD(output hdmx.Port, high bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.state.HPD[output] = high
}

// SetCable 设置输入口线缆状态
func (d *Device) SetCable(input hdmx.Port, connected bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.state.Cable[input] = connected
}

// SetRoute 直接修改路由（模拟前面板操作）
func (d *Device) SetRoute(output, input hdmx.Port) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.state.Routes[output] = input
}

func (d *Device) peekFault() (Fault, bool) {
	if len(d.faults) == 0 {
		return Fault{}, false
	}
	return d.faults[0], true
}

// handle 处理一帧命令（调用方持锁）
func (d *Device) handle(frame []byte) {
	d.received = append(d.received, frame)

	f, err := hdmx.ParseFrame(frame)
	if err != nil {
		// 设备对无效帧不应答
		d.logger.Debug("simulator: drop invalid frame",
			zap.String("frame", hdmx.HexString(frame)), zap.Error(err))
		return
	}

	reply, ok := d.apply(f)
	if !ok {
		d.logger.Debug("simulator: unknown command", zap.String("code", f.Code.String()))
		return
	}

	if fault, ok := d.peekFault(); ok && fault.Kind.onReply() {
		d.faults = d.faults[1:]
		reply = fault.mangle(reply)
	}
	d.logger.Debug("simulator: reply", zap.String("frame", hdmx.HexString(reply)))
	d.tx = append(d.tx, reply...)
}

// apply 执行命令并返回应答帧
func (d *Device) apply(f *hdmx.Frame) ([]byte, bool) {
	arg, val := f.Arg(), f.Value()
	echo := f.Raw

	switch f.Code {
	case hdmx.CodeChangePort:
		in, out := hdmx.Port(arg), hdmx.Port(val)
		if out.Valid(d.maxPorts) && in.Valid(d.maxPorts) {
			d.state.Routes[out] = in
		}
		return echo, true
	case hdmx.CodeQueryPort:
		return hdmx.BuildFrame(f.Code, arg, byte(d.state.Routes[hdmx.Port(arg)])), true
	case hdmx.CodeSetBeep:
		d.state.Beep = arg == hdmx.SwitchOn
		return echo, true
	case hdmx.CodeQueryBeep:
		return hdmx.BuildFrame(f.Code, arg, flag(!d.state.Beep)), true
	case hdmx.CodeSetPower:
		d.state.Power = arg == hdmx.SwitchOn
		return echo, true
	case hdmx.CodeQueryHPD:
		return hdmx.BuildFrame(f.Code, arg, flag(!d.state.HPD[hdmx.Port(arg)])), true
	case hdmx.CodeQueryCable:
		return hdmx.BuildFrame(f.Code, arg, flag(d.state.Cable[hdmx.Port(arg)])), true
	case hdmx.CodeSetEDID:
		d.state.EDID[hdmx.Port(val)] = hdmx.EDID(arg)
		return echo, true
	case hdmx.CodeSetEDIDToAll:
		for i := 1; i <= d.maxPorts; i++ {
			d.state.EDID[hdmx.Port(i)] = hdmx.EDID(arg)
		}
		return echo, true
	case hdmx.CodeCopyEDID, hdmx.CodeCopyEDIDToAll:
		// 模拟器不建模显示器 EDID 内容，仅确认
		return echo, true
	default:
		return nil, false
	}
}

func flag(b bool) byte {
	if b {
		return 1
	}
	return 0
}

// String 调试输出
func (s State) String() string {
	return fmt.Sprintf("routes=%v beep=%t power=%t", s.Routes, s.Beep, s.Power)
}
