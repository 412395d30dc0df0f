package middleware

import (
	"strconv"
	"strings"
	"time"

	"github.com/beego/beego/v2/server/web"
	beecontext "github.com/beego/beego/v2/server/web/context"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"github.com/aihub/docqa/internal/config"
	"github.com/aihub/docqa/internal/logger"
)

const requestStartKey = "request_start"

var (
	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "docqa_http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
	}, []string{"method", "path", "status"})

	rateLimited = promauto.NewCounter(prometheus.CounterOpts{
		Name: "docqa_http_rate_limited_total",
		Help: "Requests rejected by the per-client rate limiter",
	})
)

// MiddlewareManager 中间件管理器
type MiddlewareManager struct {
	globalFilters []web.FilterFunc
	routeFilters  map[string][]web.FilterFunc
	finishFilters []web.FilterFunc
}

// NewMiddlewareManager 创建中间件管理器
func NewMiddlewareManager() *MiddlewareManager {
	return &MiddlewareManager{
		routeFilters: make(map[string][]web.FilterFunc),
	}
}

// AddGlobalFilter 添加全局过滤器
func (mm *MiddlewareManager) AddGlobalFilter(filter web.FilterFunc) {
	mm.globalFilters = append(mm.globalFilters, filter)
}

// AddRouteFilter 添加路由过滤器
func (mm *MiddlewareManager) AddRouteFilter(pattern string, filter web.FilterFunc) {
	mm.routeFilters[pattern] = append(mm.routeFilters[pattern], filter)
}

// ApplyAllFilters 注册到beego
func (mm *MiddlewareManager) ApplyAllFilters() {
	for _, filter := range mm.globalFilters {
		web.InsertFilter("/*", web.BeforeRouter, filter)
	}
	for pattern, filters := range mm.routeFilters {
		for _, filter := range filters {
			web.InsertFilter(pattern, web.BeforeRouter, filter)
		}
	}
	for _, filter := range mm.finishFilters {
		web.InsertFilter("/*", web.FinishRouter, filter, web.WithReturnOnOutput(false))
	}
}

// SetupDefaultMiddlewares 设置默认中间件
func (mm *MiddlewareManager) SetupDefaultMiddlewares(cfg config.ServerConfig) {
	mm.AddGlobalFilter(markStart)
	mm.AddGlobalFilter(CORS(cfg.AllowedOrigins))

	// 只限制问答接口
	if cfg.RateLimit > 0 {
		mm.AddRouteFilter("/api/qa", NewClientLimiter(cfg.RateLimit, cfg.RateBurst).Filter())
	}

	mm.finishFilters = append(mm.finishFilters, accessLog)
}

func markStart(ctx *beecontext.Context) {
	ctx.Input.SetData(requestStartKey, time.Now())
}

// accessLog 请求完成日志
func accessLog(ctx *beecontext.Context) {
	status := ctx.ResponseWriter.Status
	if status == 0 {
		status = 200
	}
	var duration time.Duration
	if start, ok := ctx.Input.GetData(requestStartKey).(time.Time); ok {
		duration = time.Since(start)
	}

	path := ctx.Input.URL()
	requestDuration.WithLabelValues(ctx.Input.Method(), path, strconv.Itoa(status)).Observe(duration.Seconds())

	fields := []zap.Field{
		zap.String("method", ctx.Input.Method()),
		zap.String("path", path),
		zap.Int("status", status),
		zap.Int64("duration_ms", duration.Milliseconds()),
		zap.String("remote_addr", getClientIP(ctx)),
	}
	switch {
	case status >= 500:
		logger.Error("request completed", fields...)
	case status >= 400:
		logger.Warn("request completed", fields...)
	default:
		logger.Debug("request completed", fields...)
	}
}

// getClientIP 获取客户端IP
func getClientIP(ctx *beecontext.Context) string {
	// X-Forwarded-For可能包含多个IP，取第一个
	if xff := ctx.Input.Header("X-Forwarded-For"); xff != "" {
		if idx := strings.Index(xff, ","); idx > 0 {
			return strings.TrimSpace(xff[:idx])
		}
		return strings.TrimSpace(xff)
	}
	if xri := ctx.Input.Header("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}
	return ctx.Input.IP()
}
