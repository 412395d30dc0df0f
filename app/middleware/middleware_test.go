package middleware

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	beecontext "github.com/beego/beego/v2/server/web/context"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newContext(method, path string, headers map[string]string) (*beecontext.Context, *httptest.ResponseRecorder) {
	req := httptest.NewRequest(method, path, nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	ctx := beecontext.NewContext()
	ctx.Reset(rec, req)
	return ctx, rec
}

func TestClientLimiter_Allow(t *testing.T) {
	limiter := NewClientLimiter(1, 2)
	now := time.Unix(1700000000, 0)
	limiter.now = func() time.Time { return now }

	assert.True(t, limiter.Allow("10.0.0.1"))
	assert.True(t, limiter.Allow("10.0.0.1"))
	assert.False(t, limiter.Allow("10.0.0.1"), "burst exhausted")
	assert.True(t, limiter.Allow("10.0.0.2"), "clients are independent")

	now = now.Add(time.Second)
	assert.True(t, limiter.Allow("10.0.0.1"), "token refilled")
}

func TestClientLimiter_PrunesIdleClients(t *testing.T) {
	limiter := NewClientLimiter(1, 1)
	now := time.Unix(1700000000, 0)
	limiter.now = func() time.Time { return now }

	for i := range limiterPruneAfter {
		limiter.Allow(fmt.Sprintf("10.0.%d.%d", i/256, i%256))
	}
	require.Len(t, limiter.clients, limiterPruneAfter)

	now = now.Add(limiterIdleTTL + time.Minute)
	limiter.Allow("fresh")
	assert.Len(t, limiter.clients, 1)
}

func TestClientLimiter_Filter(t *testing.T) {
	filter := NewClientLimiter(0.001, 1).Filter()
	headers := map[string]string{"X-Forwarded-For": "203.0.113.7, 10.0.0.1"}

	ctx, rec := newContext(http.MethodPost, "/api/qa", headers)
	filter(ctx)
	assert.False(t, ctx.ResponseWriter.Started)

	ctx, rec = newContext(http.MethodPost, "/api/qa", headers)
	filter(ctx)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.JSONEq(t, `{"success":false,"error":"too many requests","kind":"QuotaOrRequestError"}`, rec.Body.String())
}

func TestCORS(t *testing.T) {
	tests := []struct {
		name        string
		allowed     []string
		method      string
		origin      string
		wantStatus  int
		wantOrigin  string
		wantStarted bool
	}{
		{name: "wildcard", allowed: []string{"*"}, method: http.MethodPost, origin: "http://a.example", wantOrigin: "*"},
		{name: "listed origin", allowed: []string{"http://a.example"}, method: http.MethodPost, origin: "http://a.example", wantOrigin: "http://a.example"},
		{name: "unlisted origin", allowed: []string{"http://a.example"}, method: http.MethodPost, origin: "http://b.example"},
		{name: "same origin", allowed: []string{"http://a.example"}, method: http.MethodPost},
		{name: "preflight", allowed: []string{"*"}, method: http.MethodOptions, origin: "http://a.example", wantStatus: http.StatusNoContent, wantOrigin: "*", wantStarted: true},
		{name: "rejected preflight", allowed: []string{"http://a.example"}, method: http.MethodOptions, origin: "http://b.example", wantStatus: http.StatusForbidden, wantStarted: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			headers := map[string]string{}
			if tt.origin != "" {
				headers["Origin"] = tt.origin
			}
			ctx, rec := newContext(tt.method, "/api/qa", headers)
			CORS(tt.allowed)(ctx)

			assert.Equal(t, tt.wantStarted, ctx.ResponseWriter.Started)
			if tt.wantStarted {
				assert.Equal(t, tt.wantStatus, rec.Code)
			}
			assert.Equal(t, tt.wantOrigin, ctx.ResponseWriter.Header().Get("Access-Control-Allow-Origin"))
		})
	}
}

func TestGetClientIP(t *testing.T) {
	ctx, _ := newContext(http.MethodGet, "/", map[string]string{"X-Real-IP": " 198.51.100.4 "})
	assert.Equal(t, "198.51.100.4", getClientIP(ctx))

	ctx, _ = newContext(http.MethodGet, "/", map[string]string{"X-Forwarded-For": "203.0.113.7, 10.0.0.1"})
	assert.Equal(t, "203.0.113.7", getClientIP(ctx))
}
