package middleware

import (
	"net/http"
	"slices"

	"github.com/beego/beego/v2/server/web"
	beecontext "github.com/beego/beego/v2/server/web/context"
)

const (
	corsAllowMethods = "GET, POST, OPTIONS"
	corsAllowHeaders = "Content-Type, Authorization, X-OpenAI-Key, Accept, Origin"
)

// CORS 跨域过滤器，allowed为"*"时允许任意源
func CORS(allowed []string) web.FilterFunc {
	wildcard := slices.Contains(allowed, "*")
	return func(ctx *beecontext.Context) {
		origin := ctx.Input.Header("Origin")
		if origin == "" {
			// 同源请求
			return
		}

		switch {
		case wildcard:
			ctx.Output.Header("Access-Control-Allow-Origin", "*")
		case slices.Contains(allowed, origin):
			ctx.Output.Header("Access-Control-Allow-Origin", origin)
			ctx.Output.Header("Vary", "Origin")
		default:
			if ctx.Input.Method() == http.MethodOptions {
				ctx.Output.SetStatus(http.StatusForbidden)
				ctx.Output.Body([]byte(""))
			}
			return
		}
		ctx.Output.Header("Access-Control-Allow-Methods", corsAllowMethods)
		ctx.Output.Header("Access-Control-Allow-Headers", corsAllowHeaders)
		ctx.Output.Header("Access-Control-Max-Age", "3600")

		// 预检请求直接返回
		if ctx.Input.Method() == http.MethodOptions {
			ctx.Output.SetStatus(http.StatusNoContent)
			ctx.Output.Body([]byte(""))
		}
	}
}
