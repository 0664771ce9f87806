package api

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/taoyao-code/hdmi-matrix/internal/api/middleware"
	"github.com/taoyao-code/hdmi-matrix/internal/config"
)

// RegisterRoutes 注册矩阵控制路由（/api/v1）
func RegisterRoutes(r gin.IRouter, h *MatrixHandler, authCfg config.APIAuthConfig, logger *zap.Logger) {
	if r == nil || h == nil {
		return
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	api := r.Group("/api/v1")
	api.Use(middleware.RequestTracing())
	if authCfg.Enabled {
		api.Use(middleware.APIKeyAuth(authCfg, logger))
		logger.Info("api authentication enabled", zap.Int("api_keys_count", len(authCfg.Keys)))
	} else {
		logger.Warn("api authentication disabled")
	}

	// 路由
	api.PUT("/outputs/:output/input", h.ChangePort)
	api.GET("/outputs/:output", h.QueryStatus)
	api.GET("/outputs/:output/hpd", h.QueryHPD)
	api.GET("/inputs/:input/cable", h.QueryCable)

	// 蜂鸣与电源
	api.PUT("/beep", h.SetBeep)
	api.GET("/beep", h.QueryBeep)
	api.PUT("/power", h.SetPower)

	// EDID
	api.PUT("/inputs/:input/edid", h.SetEDID)
	api.PUT("/edid", h.SetEDIDToAll)
	api.POST("/inputs/:input/edid/copy", h.CopyEDID)
	api.POST("/edid/copy", h.CopyEDIDToAll)

	// 预案
	api.GET("/presets", h.ListPresets)
	api.POST("/presets/:name/apply", h.ApplyPreset)

	// 链路与审计
	api.GET("/link", h.LinkState)
	api.POST("/link/drain", h.Drain)
	api.GET("/journal", h.Journal)

	logger.Info("matrix routes registered", zap.Int("endpoints", 17))
}
