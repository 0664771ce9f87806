package app

import (
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/taoyao-code/hdmi-matrix/internal/health"
)

// NewHealthAggregator 创建健康检查聚合器：矩阵链路 + 可选的命令日志库
func NewHealthAggregator(link health.LinkSource, dbpool *pgxpool.Pool) *health.Aggregator {
	agg := health.NewAggregator(health.NewLinkChecker(link))
	if dbpool != nil {
		agg.AddChecker(health.NewDatabaseChecker(dbpool))
	}
	return agg
}

// RegisterHealthRoutes 注册健康检查HTTP路由
func RegisterHealthRoutes(r *gin.Engine, aggregator *health.Aggregator) {
	health.RegisterHTTPRoutes(r, aggregator)
}
