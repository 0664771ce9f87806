package api

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/taoyao-code/hdmi-matrix/internal/api/middleware"
	"github.com/taoyao-code/hdmi-matrix/internal/journal"
	"github.com/taoyao-code/hdmi-matrix/internal/preset"
	"github.com/taoyao-code/hdmi-matrix/internal/protocol/hdmx"
	"github.com/taoyao-code/hdmi-matrix/internal/service"
)

const (
	defaultJournalLimit = 50
	maxJournalLimit     = 500
)

// Matrix 控制接口依赖的矩阵服务
type Matrix interface {
	MaxPorts() int
	SetBeep(ctx context.Context, enabled bool) error
	SetPower(ctx context.Context, enabled bool) error
	ChangePort(ctx context.Context, output, input int) error
	QueryStatus(ctx context.Context, output int) (*hdmx.Status, error)
	QueryBeep(ctx context.Context) (bool, error)
	QueryHPD(ctx context.Context, output int) (bool, error)
	QueryCable(ctx context.Context, input int) (bool, error)
	SetEDID(ctx context.Context, input int, value hdmx.EDID) error
	SetEDIDToAll(ctx context.Context, value hdmx.EDID) error
	CopyEDID(ctx context.Context, output, input int) error
	CopyEDIDToAll(ctx context.Context, output int) error
	Drain(ctx context.Context) error
	Presets() []*preset.Preset
	ApplyPreset(ctx context.Context, name string) (*service.PresetResult, error)
	LinkState() service.LinkState
	PacerStats() service.PacerStats
}

// JournalStore 持久化的命令日志查询
type JournalStore interface {
	Recent(ctx context.Context, op string, limit int) ([]journal.Entry, error)
}

// MatrixHandler 矩阵控制API处理器
type MatrixHandler struct {
	svc    Matrix
	ring   *journal.RingSink
	store  JournalStore
	logger *zap.Logger
}

// NewMatrixHandler 创建处理器；ring/store 可为 nil
func NewMatrixHandler(svc Matrix, ring *journal.RingSink, store JournalStore, logger *zap.Logger) *MatrixHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MatrixHandler{svc: svc, ring: ring, store: store, logger: logger}
}

// ChangePort PUT /outputs/:output/input {"input":n}
func (h *MatrixHandler) ChangePort(c *gin.Context) {
	output, ok := h.pathInt(c, "output")
	if !ok {
		return
	}
	var req ChangePortRequest
	if !h.bind(c, &req) {
		return
	}
	if err := h.svc.ChangePort(h.ctx(c), output, *req.Input); err != nil {
		h.fail(c, err, nil)
		return
	}
	h.ok(c, gin.H{"output": output, "input": *req.Input})
}

// QueryStatus GET /outputs/:output
func (h *MatrixHandler) QueryStatus(c *gin.Context) {
	output, ok := h.pathInt(c, "output")
	if !ok {
		return
	}
	st, err := h.svc.QueryStatus(h.ctx(c), output)
	if err != nil {
		h.fail(c, err, nil)
		return
	}
	h.ok(c, st)
}

// QueryHPD GET /outputs/:output/hpd
func (h *MatrixHandler) QueryHPD(c *gin.Context) {
	output, ok := h.pathInt(c, "output")
	if !ok {
		return
	}
	high, err := h.svc.QueryHPD(h.ctx(c), output)
	if err != nil {
		h.fail(c, err, nil)
		return
	}
	h.ok(c, gin.H{"output": output, "hpd": high})
}

// QueryCable GET /inputs/:input/cable
func (h *MatrixHandler) QueryCable(c *gin.Context) {
	input, ok := h.pathInt(c, "input")
	if !ok {
		return
	}
	connected, err := h.svc.QueryCable(h.ctx(c), input)
	if err != nil {
		h.fail(c, err, nil)
		return
	}
	h.ok(c, gin.H{"input": input, "connected": connected})
}

// SetBeep PUT /beep {"enabled":b}
func (h *MatrixHandler) SetBeep(c *gin.Context) {
	var req SwitchRequest
	if !h.bind(c, &req) {
		return
	}
	if err := h.svc.SetBeep(h.ctx(c), *req.Enabled); err != nil {
		h.fail(c, err, nil)
		return
	}
	h.ok(c, gin.H{"enabled": *req.Enabled})
}

// QueryBeep GET /beep
func (h *MatrixHandler) QueryBeep(c *gin.Context) {
	on, err := h.svc.QueryBeep(h.ctx(c))
	if err != nil {
		h.fail(c, err, nil)
		return
	}
	h.ok(c, gin.H{"enabled": on})
}

// SetPower PUT /power {"enabled":b}
func (h *MatrixHandler) SetPower(c *gin.Context) {
	var req SwitchRequest
	if !h.bind(c, &req) {
		return
	}
	if err := h.svc.SetPower(h.ctx(c), *req.Enabled); err != nil {
		h.fail(c, err, nil)
		return
	}
	h.ok(c, gin.H{"enabled": *req.Enabled})
}

// SetEDID PUT /inputs/:input/edid {"value":n}
func (h *MatrixHandler) SetEDID(c *gin.Context) {
	input, ok := h.pathInt(c, "input")
	if !ok {
		return
	}
	var req EDIDRequest
	if !h.bind(c, &req) {
		return
	}
	value := hdmx.EDID(*req.Value)
	if err := h.svc.SetEDID(h.ctx(c), input, value); err != nil {
		h.fail(c, err, nil)
		return
	}
	h.ok(c, gin.H{"input": input, "value": int(value), "name": value.String()})
}

// SetEDIDToAll PUT /edid {"value":n}
func (h *MatrixHandler) SetEDIDToAll(c *gin.Context) {
	var req EDIDRequest
	if !h.bind(c, &req) {
		return
	}
	value := hdmx.EDID(*req.Value)
	if err := h.svc.SetEDIDToAll(h.ctx(c), value); err != nil {
		h.fail(c, err, nil)
		return
	}
	h.ok(c, gin.H{"value": int(value), "name": value.String()})
}

// CopyEDID POST /inputs/:input/edid/copy {"output":n}
func (h *MatrixHandler) CopyEDID(c *gin.Context) {
	input, ok := h.pathInt(c, "input")
	if !ok {
		return
	}
	var req CopyEDIDRequest
	if !h.bind(c, &req) {
		return
	}
	if err := h.svc.CopyEDID(h.ctx(c), *req.Output, input); err != nil {
		h.fail(c, err, nil)
		return
	}
	h.ok(c, gin.H{"output": *req.Output, "input": input})
}

// CopyEDIDToAll POST /edid/copy {"output":n}
func (h *MatrixHandler) CopyEDIDToAll(c *gin.Context) {
	var req CopyEDIDRequest
	if !h.bind(c, &req) {
		return
	}
	if err := h.svc.CopyEDIDToAll(h.ctx(c), *req.Output); err != nil {
		h.fail(c, err, nil)
		return
	}
	h.ok(c, gin.H{"output": *req.Output})
}

// ListPresets GET /presets
func (h *MatrixHandler) ListPresets(c *gin.Context) {
	presets := h.svc.Presets()
	out := make([]gin.H, 0, len(presets))
	for _, p := range presets {
		out = append(out, gin.H{
			"name":        p.Name,
			"description": p.Description,
			"routes":      p.Ordered(),
			"valid":       p.Validate(h.svc.MaxPorts()) == nil,
		})
	}
	h.ok(c, gin.H{"presets": out})
}

// ApplyPreset POST /presets/:name/apply
func (h *MatrixHandler) ApplyPreset(c *gin.Context) {
	name := c.Param("name")
	res, err := h.svc.ApplyPreset(h.ctx(c), name)
	if err != nil {
		// 中途失败时附带已生效的路由
		h.fail(c, err, res)
		return
	}
	h.ok(c, res)
}

// LinkState GET /link
func (h *MatrixHandler) LinkState(c *gin.Context) {
	h.ok(c, gin.H{
		"max_ports": h.svc.MaxPorts(),
		"link":      h.svc.LinkState(),
		"pacer":     h.svc.PacerStats(),
	})
}

// Drain POST /link/drain
func (h *MatrixHandler) Drain(c *gin.Context) {
	if err := h.svc.Drain(h.ctx(c)); err != nil {
		h.fail(c, err, nil)
		return
	}
	h.ok(c, gin.H{"link": h.svc.LinkState()})
}

// Journal GET /journal?limit=n&op=x&source=db
func (h *MatrixHandler) Journal(c *gin.Context) {
	limit := defaultJournalLimit
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			h.fail(c, fmt.Errorf("%w: limit %q", hdmx.ErrInvalidArgument, v), nil)
			return
		}
		limit = n
	}
	if limit > maxJournalLimit {
		limit = maxJournalLimit
	}
	op := c.Query("op")

	if c.Query("source") == "db" {
		if h.store == nil {
			h.respond(c, http.StatusNotFound, "not_found", "journal database is not configured", nil)
			return
		}
		entries, err := h.store.Recent(c.Request.Context(), op, limit)
		if err != nil {
			h.logger.Error("query journal failed", zap.Error(err))
			h.respond(c, http.StatusInternalServerError, "internal", err.Error(), nil)
			return
		}
		h.ok(c, gin.H{"source": "db", "entries": entries})
		return
	}

	var entries []journal.Entry
	if h.ring != nil {
		for _, e := range h.ring.Recent(0) {
			if op != "" && e.Op != op {
				continue
			}
			entries = append(entries, e)
			if len(entries) == limit {
				break
			}
		}
	}
	if entries == nil {
		entries = []journal.Entry{}
	}
	h.ok(c, gin.H{"source": "memory", "entries": entries})
}

// ctx 携带请求 ID 的请求上下文
func (h *MatrixHandler) ctx(c *gin.Context) context.Context {
	return service.WithRequestID(c.Request.Context(), c.GetString(middleware.RequestIDKey))
}

func (h *MatrixHandler) pathInt(c *gin.Context, name string) (int, bool) {
	v, err := strconv.Atoi(c.Param(name))
	if err != nil {
		h.respond(c, http.StatusBadRequest, hdmx.Kind(hdmx.ErrInvalidPort),
			fmt.Sprintf("%s must be a port number, got %q", name, c.Param(name)), nil)
		return 0, false
	}
	return v, true
}

func (h *MatrixHandler) bind(c *gin.Context, req interface{}) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		h.respond(c, http.StatusBadRequest, "invalid_body", err.Error(), nil)
		return false
	}
	return true
}

func (h *MatrixHandler) ok(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, gin.H{
		"data":       data,
		"request_id": c.GetString(middleware.RequestIDKey),
		"timestamp":  time.Now().Unix(),
	})
}

func (h *MatrixHandler) fail(c *gin.Context, err error, data interface{}) {
	status, code := classifyError(err)
	if status >= http.StatusInternalServerError {
		h.logger.Warn("matrix command failed",
			zap.String("path", c.FullPath()),
			zap.String("request_id", c.GetString(middleware.RequestIDKey)),
			zap.Error(err))
	}
	h.respond(c, status, code, err.Error(), data)
}

func (h *MatrixHandler) respond(c *gin.Context, status int, code, message string, data interface{}) {
	body := gin.H{
		"error":      code,
		"message":    message,
		"request_id": c.GetString(middleware.RequestIDKey),
	}
	if data != nil {
		body["data"] = data
	}
	c.JSON(status, body)
}
