package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func serve(engine *gin.Engine, method, path string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)
	return w
}

func TestCORSWithConfig(t *testing.T) {
	shop := "https://shop.example"
	configured := func(mod func(*CORSConfig)) CORSConfig {
		cfg := DefaultCORSConfig()
		cfg.AllowOrigins = []string{shop}
		if mod != nil {
			mod(&cfg)
		}
		return cfg
	}

	tests := []struct {
		name            string
		cfg             CORSConfig
		method          string
		origin          string
		wantCode        int
		wantOrigin      string
		wantCredentials string
	}{
		{"unconfigured sends nothing", DefaultCORSConfig(), http.MethodGet, shop, http.StatusOK, "", ""},
		{"allowed origin echoed", configured(nil), http.MethodGet, shop, http.StatusOK, shop, ""},
		{"unknown origin ignored", configured(nil), http.MethodGet, "https://evil.example", http.StatusOK, "", ""},
		{"credentials for explicit origin", configured(func(c *CORSConfig) { c.AllowCredentials = true }), http.MethodGet, shop, http.StatusOK, shop, "true"},
		{"wildcard drops credentials", configured(func(c *CORSConfig) {
			c.AllowOrigins = []string{"*"}
			c.AllowCredentials = true
		}), http.MethodGet, "https://any.example", http.StatusOK, "*", ""},
		{"preflight short-circuits", configured(nil), http.MethodOptions, shop, http.StatusNoContent, shop, ""},
		{"preflight from unknown origin", configured(nil), http.MethodOptions, "https://evil.example", http.StatusNoContent, "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine := gin.New()
			engine.Use(CORSWithConfig(tt.cfg))
			engine.Any("/api/v1/stock/availability", func(c *gin.Context) { c.Status(http.StatusOK) })

			w := serve(engine, tt.method, "/api/v1/stock/availability", map[string]string{"Origin": tt.origin})

			assert.Equal(t, tt.wantCode, w.Code)
			assert.Equal(t, tt.wantOrigin, w.Header().Get("Access-Control-Allow-Origin"))
			assert.Equal(t, tt.wantCredentials, w.Header().Get("Access-Control-Allow-Credentials"))
			if tt.wantOrigin != "" {
				assert.Equal(t, "GET, POST, PUT, OPTIONS", w.Header().Get("Access-Control-Allow-Methods"))
				assert.Equal(t, "43200", w.Header().Get("Access-Control-Max-Age"))
				assert.Contains(t, w.Header().Get("Access-Control-Expose-Headers"), "Retry-After")
			}
		})
	}
}

func TestRequestID(t *testing.T) {
	engine := gin.New()
	engine.Use(RequestID())
	engine.GET("/id", func(c *gin.Context) { c.String(http.StatusOK, c.GetString("request_id")) })

	w := serve(engine, http.MethodGet, "/id", nil)
	_, err := uuid.Parse(w.Header().Get(RequestIDKey))
	require.NoError(t, err)
	assert.Equal(t, w.Header().Get(RequestIDKey), w.Body.String())

	w = serve(engine, http.MethodGet, "/id", map[string]string{RequestIDKey: "checkout-42"})
	assert.Equal(t, "checkout-42", w.Body.String())

	long := strings.Repeat("a", maxRequestIDLength+1)
	w = serve(engine, http.MethodGet, "/id", map[string]string{RequestIDKey: long})
	_, err = uuid.Parse(w.Body.String())
	assert.NoError(t, err, "oversized ids are replaced")
}

func TestSecureWithConfig(t *testing.T) {
	tests := []struct {
		name string
		cfg  SecurityConfig
		hsts string
	}{
		{"defaults leave hsts off", DefaultSecurityConfig(), ""},
		{"hsts with subdomains", SecurityConfig{HSTSEnabled: true, HSTSMaxAge: 3600, HSTSIncludeSubdomains: true}, "max-age=3600; includeSubDomains"},
		{"hsts only", SecurityConfig{HSTSEnabled: true, HSTSMaxAge: 60}, "max-age=60"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine := gin.New()
			engine.Use(SecureWithConfig(tt.cfg))
			engine.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })

			w := serve(engine, http.MethodGet, "/x", nil)
			assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
			assert.Equal(t, "DENY", w.Header().Get("X-Frame-Options"))
			assert.Equal(t, "no-store", w.Header().Get("Cache-Control"))
			assert.Equal(t, tt.hsts, w.Header().Get("Strict-Transport-Security"))
		})
	}
}

func TestTimeout(t *testing.T) {
	engine := gin.New()
	engine.GET("/deadline", Timeout(30*time.Second), func(c *gin.Context) {
		deadline, ok := c.Request.Context().Deadline()
		if !ok || time.Until(deadline) > 30*time.Second {
			c.Status(http.StatusInternalServerError)
			return
		}
		c.Status(http.StatusOK)
	})
	engine.GET("/slow", Timeout(10*time.Millisecond), func(c *gin.Context) {
		select {
		case <-c.Request.Context().Done():
			c.Status(http.StatusServiceUnavailable)
		case <-time.After(time.Second):
			c.Status(http.StatusOK)
		}
	})
	engine.GET("/unbounded", Timeout(0), func(c *gin.Context) {
		if _, ok := c.Request.Context().Deadline(); ok {
			c.Status(http.StatusInternalServerError)
			return
		}
		c.Status(http.StatusOK)
	})

	assert.Equal(t, http.StatusOK, serve(engine, http.MethodGet, "/deadline", nil).Code)
	assert.Equal(t, http.StatusServiceUnavailable, serve(engine, http.MethodGet, "/slow", nil).Code)
	assert.Equal(t, http.StatusOK, serve(engine, http.MethodGet, "/unbounded", nil).Code)
}
