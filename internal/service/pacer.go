package service

import (
	"context"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
)

// Pacer 基于 Token Bucket 的命令节拍器，保证相邻命令之间的最小间隔
// ratePerSec <= 0 时不限速
type Pacer struct {
	limiter    *rate.Limiter
	ratePerSec float64
	burst      int
	passed     atomic.Int64
	delayed    atomic.Int64
	canceled   atomic.Int64
}

// NewPacer 创建节拍器
// ratePerSec: 每秒允许下发的命令数
// burst: 突发容量（矩阵通常为 1）
func NewPacer(ratePerSec float64, burst int) *Pacer {
	if burst <= 0 {
		burst = 1
	}
	limit := rate.Inf
	if ratePerSec > 0 {
		limit = rate.Limit(ratePerSec)
	}
	return &Pacer{
		limiter:    rate.NewLimiter(limit, burst),
		ratePerSec: ratePerSec,
		burst:      burst,
	}
}

// Wait 阻塞直到允许下发下一条命令；返回是否发生了等待
func (p *Pacer) Wait(ctx context.Context) (bool, error) {
	r := p.limiter.Reserve()
	if !r.OK() {
		p.canceled.Add(1)
		return false, context.DeadlineExceeded
	}
	delay := r.Delay()
	if delay == 0 {
		p.passed.Add(1)
		return false, nil
	}

	t := time.NewTimer(delay)
	defer t.Stop()
	select {
	case <-t.C:
		p.delayed.Add(1)
		return true, nil
	case <-ctx.Done():
		r.Cancel()
		p.canceled.Add(1)
		return false, ctx.Err()
	}
}

// Stats 获取统计信息
func (p *Pacer) Stats() PacerStats {
	return PacerStats{
		RatePerSecond: p.ratePerSec,
		Burst:         p.burst,
		PassedTotal:   p.passed.Load(),
		DelayedTotal:  p.delayed.Load(),
		CanceledTotal: p.canceled.Load(),
	}
}

// PacerStats 节拍器统计信息
type PacerStats struct {
	RatePerSecond float64 `json:"rate_per_second"`
	Burst         int     `json:"burst"`
	PassedTotal   int64   `json:"passed_total"`
	DelayedTotal  int64   `json:"delayed_total"`
	CanceledTotal int64   `json:"canceled_total"`
}
