package logging

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"runtime/debug"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

// GinLogger returns a Gin middleware that assigns a request id to every
// request (every route on this gateway is an AI API surface, unlike the
// teacher's mixed admin+API router that only tags a prefix allow-list —
// see DESIGN.md) and logs method/path/status/latency on completion.
func GinLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		requestID := GenerateRequestID()
		SetGinRequestID(c, requestID)
		c.Request = c.Request.WithContext(WithRequestID(c.Request.Context(), requestID))
		c.Writer.Header().Set("X-Request-Id", requestID)

		c.Next()

		latency := time.Since(start).Truncate(time.Millisecond)
		status := c.Writer.Status()
		path := c.Request.URL.Path
		if raw, err := url.QueryUnescape(c.Request.URL.RawQuery); err == nil && raw != "" {
			path += "?" + raw
		}

		line := fmt.Sprintf("%d | %v | %s \"%s\"", status, latency, c.Request.Method, path)
		if msg := c.Errors.ByType(gin.ErrorTypePrivate).String(); msg != "" {
			line += " | " + msg
		}

		entry := WithRequestIDField(requestID)
		switch {
		case status >= http.StatusInternalServerError:
			entry.Error(line)
		case status >= http.StatusBadRequest:
			entry.Warn(line)
		default:
			entry.Info(line)
		}
	}
}

// GinRecovery recovers panics in handlers, logging the stack trace and
// returning 500 instead of crashing the process.
func GinRecovery() gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, recovered interface{}) {
		if err, ok := recovered.(error); ok && errors.Is(err, http.ErrAbortHandler) {
			panic(http.ErrAbortHandler)
		}
		log.WithFields(log.Fields{
			"panic": recovered,
			"stack": string(debug.Stack()),
			"path":  c.Request.URL.Path,
		}).Error("recovered from panic")
		c.AbortWithStatus(http.StatusInternalServerError)
	})
}
