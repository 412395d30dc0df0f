package router

import (
	"github.com/beego/beego/v2/server/web"

	"github.com/aihub/docqa/app/bootstrap"
	"github.com/aihub/docqa/app/controllers"
	"github.com/aihub/docqa/app/middleware"
	"github.com/aihub/docqa/internal/config"
)

// Init registers filters and routes. Must be called after bootstrap.
func Init() {
	serverCfg := config.ServerConfig{AllowedOrigins: []string{"*"}}
	metricsEnabled := true
	if app := bootstrap.GetApp(); app != nil {
		if cfg := app.Config(); cfg != nil {
			serverCfg = cfg.Server
			metricsEnabled = cfg.Metrics.Enabled
		}
	}

	mm := middleware.NewMiddlewareManager()
	mm.SetupDefaultMiddlewares(serverCfg)
	mm.ApplyAllFilters()

	web.Router("/health", &controllers.HealthController{}, "get:Health")
	if metricsEnabled {
		web.Router("/metrics", &controllers.MetricsController{}, "get:Metrics")
	}

	qaController := &controllers.QAController{}
	// 具体路由在前
	web.Router("/api/qa/formats", qaController, "get:Formats")
	web.Router("/api/qa", qaController, "post:Ask")
}
