// Package middleware provides the gin middleware chain for the stockhold API.
package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	// HolderContextKey is the gin key handlers set once the holder is known.
	HolderContextKey = "holder"
	// MaxHolderLength caps holder values copied into span attributes.
	MaxHolderLength = 128
)

// TracingConfig configures Tracing.
type TracingConfig struct {
	ServiceName string
	Enabled     bool
}

// Tracing starts a server span per request through otelgin, named
// "METHOD route" (e.g. "POST /api/v1/reservations/:id/commit").
func Tracing(cfg TracingConfig) gin.HandlerFunc {
	if !cfg.Enabled {
		return func(c *gin.Context) { c.Next() }
	}
	return otelgin.Middleware(cfg.ServiceName)
}

// SpanEnricher tags the request span with the request and reservation ids
// before the handler runs, and with the holder, error code and status
// after it. Any response of 400 or above marks the span failed. Place it
// after Tracing.
func SpanEnricher() gin.HandlerFunc {
	return func(c *gin.Context) {
		span := trace.SpanFromContext(c.Request.Context())
		if !span.IsRecording() {
			c.Next()
			return
		}

		if id := getRequestID(c); id != "" {
			span.SetAttributes(attribute.String("request_id", id))
		}
		if strings.Contains(c.FullPath(), "/reservations/:id") {
			span.SetAttributes(attribute.String("reservation_id", c.Param("id")))
		}

		c.Next()

		if holder := getHolder(c); holder != "" {
			span.SetAttributes(attribute.String("holder", holder))
		}
		if code := c.GetString(ErrorCodeContextKey); code != "" {
			span.SetAttributes(attribute.String("error_code", code))
		}
		if status := c.Writer.Status(); status >= http.StatusBadRequest {
			span.SetStatus(codes.Error, http.StatusText(status))
		}
	}
}

func getRequestID(c *gin.Context) string {
	if id := c.GetString("request_id"); id != "" {
		return id
	}
	return truncate(c.GetHeader(RequestIDKey), maxRequestIDLength)
}

// getHolder prefers the value a handler stored, then the holder query parameter.
func getHolder(c *gin.Context) string {
	holder := c.GetString(HolderContextKey)
	if holder == "" {
		holder = c.Query("holder")
	}
	return truncate(holder, MaxHolderLength)
}

func truncate(s string, n int) string {
	if len(s) > n {
		return s[:n]
	}
	return s
}
