package controllers

import (
	"net/http"

	"github.com/beego/beego/v2/server/web"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsController 指标控制器
type MetricsController struct {
	web.Controller
	handler http.Handler
}

// Prepare 初始化控制器
func (c *MetricsController) Prepare() {
	c.handler = promhttp.Handler()
}

// Metrics 返回Prometheus格式的指标
func (c *MetricsController) Metrics() {
	c.handler.ServeHTTP(c.Ctx.ResponseWriter, c.Ctx.Request)
}

// HealthController 健康检查
type HealthController struct {
	BaseController
}

// Health 返回服务状态
func (c *HealthController) Health() {
	c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}
