package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/taoyao-code/hdmi-matrix/internal/config"
	"github.com/taoyao-code/hdmi-matrix/internal/journal"
	"github.com/taoyao-code/hdmi-matrix/internal/metrics"
	"github.com/taoyao-code/hdmi-matrix/internal/preset"
	"github.com/taoyao-code/hdmi-matrix/internal/protocol/hdmx"
	"github.com/taoyao-code/hdmi-matrix/internal/simulator"
	"github.com/taoyao-code/hdmi-matrix/internal/transport"
)

const presetsYAML = `
presets:
  all-one:
    routes:
      4: 1
      2: 1
      1: 1
      3: 1
  broken:
    routes:
      1: 2
      9: 1
`

type fixture struct {
	svc  *MatrixService
	dev  *simulator.Device
	ring *journal.RingSink
	m    *metrics.AppMetrics
}

func newFixture(t *testing.T, drain bool) *fixture {
	t.Helper()
	set, err := preset.Parse([]byte(presetsYAML))
	require.NoError(t, err)

	dev := simulator.New(4)
	ring := journal.NewRingSink(50)
	m := metrics.NewAppMetrics(prometheus.NewRegistry())

	svc, err := NewMatrixService(dev, Options{
		MaxPorts:        4,
		ResponseTimeout: 50 * time.Millisecond,
		DrainOnDesync:   drain,
		Presets:         set,
		Journal:         journal.New(zap.NewNop(), ring),
		Metrics:         m,
		Logger:          zap.NewNop(),
	})
	require.NoError(t, err)
	return &fixture{svc: svc, dev: dev, ring: ring, m: m}
}

func TestServiceOperations(t *testing.T) {
	f := newFixture(t, false)
	ctx := WithRequestID(context.Background(), "req-1")

	require.NoError(t, f.svc.ChangePort(ctx, 2, 3))
	st, err := f.svc.QueryStatus(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, hdmx.Port(3), st.Input)

	require.NoError(t, f.svc.SetBeep(ctx, false))
	on, err := f.svc.QueryBeep(ctx)
	require.NoError(t, err)
	assert.False(t, on)

	require.NoError(t, f.svc.SetPower(ctx, false))
	assert.False(t, f.dev.Snapshot().Power)

	hpd, err := f.svc.QueryHPD(ctx, 1)
	require.NoError(t, err)
	assert.True(t, hpd)
	cable, err := f.svc.QueryCable(ctx, 1)
	require.NoError(t, err)
	assert.True(t, cable)

	require.NoError(t, f.svc.SetEDID(ctx, 1, hdmx.EDID4K2K71))
	require.NoError(t, f.svc.SetEDIDToAll(ctx, hdmx.EDID1080p51))
	require.NoError(t, f.svc.CopyEDID(ctx, 1, 2))
	require.NoError(t, f.svc.CopyEDIDToAll(ctx, 3))

	entries := f.ring.Recent(0)
	require.Len(t, entries, 11)
	first := entries[len(entries)-1]
	assert.Equal(t, "change_port", first.Op)
	assert.Equal(t, "req-1", first.RequestID)
	assert.Equal(t, "A5 5B 02 03 03 00 02 00 00 00 00 00 F6", first.Request)
	assert.Equal(t, first.Request, first.Response)

	assert.Equal(t, 1.0, testutil.ToFloat64(f.m.CommandTotal.WithLabelValues("change_port", "ok")))
	assert.Equal(t, int64(11), f.svc.LinkState().Commands)
}

func TestServiceInvalidPortNotCounted(t *testing.T) {
	f := newFixture(t, false)

	err := f.svc.ChangePort(context.Background(), 5, 1)
	require.ErrorIs(t, err, hdmx.ErrInvalidPort)
	assert.Empty(t, f.dev.Received())
	assert.Equal(t, int64(0), f.svc.LinkState().Commands)

	entries := f.ring.Recent(1)
	require.Len(t, entries, 1)
	assert.Equal(t, "invalid_port", entries[0].ErrorKind)
	assert.Empty(t, entries[0].Request)
}

func TestServiceDesyncAndDrain(t *testing.T) {
	t.Run("自动清空", func(t *testing.T) {
		f := newFixture(t, true)
		ctx := context.Background()

		f.dev.Inject(simulator.Partial(4))
		require.ErrorIs(t, f.svc.SetBeep(ctx, true), hdmx.ErrUnexpectedResponse)
		assert.True(t, f.svc.LinkState().Desync)
		assert.Equal(t, 1.0, testutil.ToFloat64(f.m.LinkDesync))

		// 残留的多余字节在下一条命令前被丢弃
		f.dev.Inject(simulator.ExtraBytes([]byte{0x00, 0x11}))
		require.NoError(t, f.svc.SetBeep(ctx, true))
		f.dev.Inject(simulator.Garbage([]byte{0x01}))
		require.Error(t, f.svc.SetBeep(ctx, true))
		require.True(t, f.svc.LinkState().Desync)

		require.NoError(t, f.svc.ChangePort(ctx, 1, 2))
		assert.False(t, f.svc.LinkState().Desync)
		assert.GreaterOrEqual(t, testutil.ToFloat64(f.m.DrainTotal), 1.0)
	})

	t.Run("不自动清空", func(t *testing.T) {
		f := newFixture(t, false)
		ctx := context.Background()

		f.dev.Inject(simulator.ExtraBytes([]byte{0xA5, 0x5B, 0x00}))
		require.NoError(t, f.svc.SetBeep(ctx, true))
		require.ErrorIs(t, f.svc.SetBeep(ctx, false), hdmx.ErrUnexpectedResponse)
		assert.True(t, f.svc.LinkState().Desync)

		state := f.svc.LinkState()
		assert.Equal(t, "unexpected_response", state.LastErrorKind)
		assert.Equal(t, int64(1), state.Failures)

		// 手动清空后恢复
		require.NoError(t, f.svc.Drain(context.Background()))
		assert.False(t, f.svc.LinkState().Desync)
		require.NoError(t, f.svc.SetBeep(ctx, false))
	})
}

// latePort 回显写入的帧；前 late 次回显延迟 delay 才到达
type latePort struct {
	mu      sync.Mutex
	buf     []byte
	late    int
	delay   time.Duration
	flushed int
}

func (p *latePort) Write(b []byte) (int, error) {
	frame := append([]byte(nil), b...)
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.late > 0 {
		p.late--
		time.AfterFunc(p.delay, func() {
			p.mu.Lock()
			p.buf = append(p.buf, frame...)
			p.mu.Unlock()
		})
		return len(b), nil
	}
	p.buf = append(p.buf, frame...)
	return len(b), nil
}

func (p *latePort) Read(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := copy(b, p.buf)
	p.buf = p.buf[n:]
	return n, nil
}

func (p *latePort) Flush() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.flushed++
	p.buf = nil
	return nil
}

func (p *latePort) flushCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.flushed
}

func TestServiceLateReplyDrained(t *testing.T) {
	port := &latePort{late: 1, delay: 80 * time.Millisecond}
	ring := journal.NewRingSink(10)
	svc, err := NewMatrixService(port, Options{
		MaxPorts:        4,
		ResponseTimeout: 50 * time.Millisecond,
		DrainOnDesync:   true,
		Journal:         journal.New(zap.NewNop(), ring),
		Logger:          zap.NewNop(),
	})
	require.NoError(t, err)
	ctx := context.Background()

	// 一个字节都没收到的超时同样标记失步
	require.ErrorIs(t, svc.ChangePort(ctx, 1, 2), hdmx.ErrTimeout)
	assert.True(t, svc.LinkState().Desync)

	// 等迟到的应答落入缓冲，下一条命令前被清空
	time.Sleep(60 * time.Millisecond)
	require.NoError(t, svc.SetBeep(ctx, true))
	assert.Equal(t, 1, port.flushCount())
	assert.False(t, svc.LinkState().Desync)

	entries := ring.Recent(0)
	require.Len(t, entries, 2)
	assert.Equal(t, "set_beep", entries[0].Op)
	assert.Equal(t, journal.OutcomeOK, entries[0].Outcome)
}

// gateSink 第一次写入阻塞直到 release 关闭
type gateSink struct {
	once    sync.Once
	entered chan struct{}
	release chan struct{}
}

func (g *gateSink) Write(context.Context, journal.Entry) error {
	first := false
	g.once.Do(func() { first = true })
	if first {
		close(g.entered)
		<-g.release
	}
	return nil
}

func TestServiceJournalDoesNotHoldLock(t *testing.T) {
	sink := &gateSink{entered: make(chan struct{}), release: make(chan struct{})}
	svc, err := NewMatrixService(simulator.New(4), Options{
		MaxPorts:        4,
		ResponseTimeout: 50 * time.Millisecond,
		Journal:         journal.New(zap.NewNop(), sink),
		Logger:          zap.NewNop(),
	})
	require.NoError(t, err)
	ctx := context.Background()

	first := make(chan error, 1)
	go func() { first <- svc.SetBeep(ctx, true) }()
	<-sink.entered

	// 第一条命令的日志写入被卡住时，后续命令照常执行
	second := make(chan error, 1)
	go func() { second <- svc.ChangePort(ctx, 1, 2) }()
	select {
	case err := <-second:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("command blocked behind journal sink")
	}

	close(sink.release)
	require.NoError(t, <-first)
}

func TestServiceLinkBytes(t *testing.T) {
	port, err := transport.Open(config.SerialConfig{Device: "sim://"}, transport.WithSimulatorPorts(4))
	require.NoError(t, err)
	defer port.Close()

	svc, err := NewMatrixService(port, Options{MaxPorts: 4, ResponseTimeout: time.Second})
	require.NoError(t, err)

	require.NoError(t, svc.ChangePort(context.Background(), 1, 2))
	st := svc.LinkState()
	assert.Equal(t, uint64(hdmx.FrameLen), st.RxBytes)
	assert.Equal(t, uint64(hdmx.FrameLen), st.TxBytes)
}

func TestServiceTransportError(t *testing.T) {
	f := newFixture(t, true)
	f.dev.Inject(simulator.WriteError(errors.New("usb gone")))

	err := f.svc.SetPower(context.Background(), true)
	require.ErrorIs(t, err, hdmx.ErrTransport)
	st := f.svc.LinkState()
	assert.Equal(t, "transport", st.LastErrorKind)
	assert.False(t, st.Desync)
}

func TestApplyPreset(t *testing.T) {
	ctx := context.Background()

	t.Run("按输出口升序执行", func(t *testing.T) {
		f := newFixture(t, false)
		res, err := f.svc.ApplyPreset(ctx, "all-one")
		require.NoError(t, err)
		assert.Equal(t, 4, res.Total)
		assert.Len(t, res.Applied, 4)

		recv := f.dev.Received()
		require.Len(t, recv, 4)
		for i, frame := range recv {
			assert.Equal(t, byte(i+1), frame[6], "第 %d 条命令的输出口", i)
		}
		for out := hdmx.Port(1); out <= 4; out++ {
			assert.Equal(t, hdmx.Port(1), f.dev.Snapshot().Routes[out])
		}
		assert.Equal(t, 1.0, testutil.ToFloat64(f.m.PresetApply.WithLabelValues("all-one", "ok")))
	})

	t.Run("非法预案不下发", func(t *testing.T) {
		f := newFixture(t, false)
		_, err := f.svc.ApplyPreset(ctx, "broken")
		require.ErrorIs(t, err, hdmx.ErrInvalidPort)
		assert.Empty(t, f.dev.Received())
	})

	t.Run("预案不存在", func(t *testing.T) {
		f := newFixture(t, false)
		_, err := f.svc.ApplyPreset(ctx, "missing")
		assert.ErrorIs(t, err, preset.ErrNotFound)
	})

	t.Run("中途失败即停", func(t *testing.T) {
		f := newFixture(t, false)
		f.dev.Inject(simulator.Silent())

		// 第一条静默 → 超时，后续不再下发
		res, err := f.svc.ApplyPreset(ctx, "all-one")
		require.ErrorIs(t, err, hdmx.ErrTimeout)
		assert.Empty(t, res.Applied)
		assert.Len(t, f.dev.Received(), 1)
	})

	assert.Len(t, newFixture(t, false).svc.Presets(), 2)
}

func TestServiceSerializesCallers(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make(chan error, 16)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			out := i%4 + 1
			in := (i+1)%4 + 1
			errs <- f.svc.ChangePort(ctx, out, in)
		}(i)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.NoError(t, err)
	}
	assert.Len(t, f.dev.Received(), 16)
}

func TestPacer(t *testing.T) {
	p := NewPacer(20, 1)
	ctx := context.Background()

	waited, err := p.Wait(ctx)
	require.NoError(t, err)
	assert.False(t, waited)

	start := time.Now()
	waited, err = p.Wait(ctx)
	require.NoError(t, err)
	assert.True(t, waited)
	assert.GreaterOrEqual(t, time.Since(start), 40*time.Millisecond)

	cctx, cancel := context.WithCancel(ctx)
	cancel()
	_, err = p.Wait(cctx)
	assert.ErrorIs(t, err, context.Canceled)

	stats := p.Stats()
	assert.Equal(t, int64(1), stats.PassedTotal)
	assert.Equal(t, int64(1), stats.DelayedTotal)
	assert.Equal(t, int64(1), stats.CanceledTotal)
}

func TestPacerUnlimited(t *testing.T) {
	p := NewPacer(0, 0)
	for i := 0; i < 100; i++ {
		waited, err := p.Wait(context.Background())
		require.NoError(t, err)
		require.False(t, waited)
	}
}
