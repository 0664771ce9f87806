package health

import "sync/atomic"

// Readiness 启动阶段就绪标记：链路已打开，可选的数据库已就绪
type Readiness struct {
	linkOpen   atomic.Bool
	dbRequired atomic.Bool
	dbReady    atomic.Bool
}

func New() *Readiness { return &Readiness{} }

func (r *Readiness) SetLinkOpen(v bool) { r.linkOpen.Store(v) }
func (r *Readiness) RequireDB()         { r.dbRequired.Store(true) }
func (r *Readiness) SetDBReady(v bool)  { r.dbReady.Store(v) }
func (r *Readiness) LinkOpen() bool     { return r.linkOpen.Load() }
func (r *Readiness) DBReady() bool      { return !r.dbRequired.Load() || r.dbReady.Load() }

// Ready 链路已打开且（如配置了数据库）数据库已就绪
func (r *Readiness) Ready() bool {
	return r.LinkOpen() && r.DBReady()
}
