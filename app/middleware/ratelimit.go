package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/beego/beego/v2/server/web"
	beecontext "github.com/beego/beego/v2/server/web/context"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	apperrors "github.com/aihub/docqa/internal/errors"
	"github.com/aihub/docqa/internal/logger"
)

const (
	limiterIdleTTL    = 10 * time.Minute
	limiterPruneAfter = 1024
)

type clientEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// ClientLimiter 按客户端IP的令牌桶限流器
type ClientLimiter struct {
	mu      sync.Mutex
	limit   rate.Limit
	burst   int
	clients map[string]*clientEntry
	now     func() time.Time
}

// NewClientLimiter 每个客户端每秒rps个请求，突发burst个
func NewClientLimiter(rps float64, burst int) *ClientLimiter {
	if burst < 1 {
		burst = 1
	}
	return &ClientLimiter{
		limit:   rate.Limit(rps),
		burst:   burst,
		clients: make(map[string]*clientEntry),
		now:     time.Now,
	}
}

// Allow 消耗client的一个令牌
func (l *ClientLimiter) Allow(client string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	entry, ok := l.clients[client]
	if !ok {
		if len(l.clients) >= limiterPruneAfter {
			l.prune(now)
		}
		entry = &clientEntry{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.clients[client] = entry
	}
	entry.lastSeen = now
	return entry.limiter.AllowN(now, 1)
}

func (l *ClientLimiter) prune(now time.Time) {
	for client, entry := range l.clients {
		if now.Sub(entry.lastSeen) > limiterIdleTTL {
			delete(l.clients, client)
		}
	}
}

// Filter 超限时返回429
func (l *ClientLimiter) Filter() web.FilterFunc {
	return func(ctx *beecontext.Context) {
		if ctx.Input.Method() == http.MethodOptions {
			return
		}
		client := getClientIP(ctx)
		if l.Allow(client) {
			return
		}

		rateLimited.Inc()
		logger.Warn("request rate limited",
			zap.String("client", client),
			zap.String("path", ctx.Input.URL()),
		)
		ctx.Output.SetStatus(http.StatusTooManyRequests)
		_ = ctx.Output.JSON(map[string]interface{}{
			"success": false,
			"error":   "too many requests",
			"kind":    apperrors.KindQuotaOrRequest,
		}, false, false)
	}
}
