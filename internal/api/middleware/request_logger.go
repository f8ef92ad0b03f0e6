package middleware

import (
	"regexp"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

var requestIDPattern = regexp.MustCompile(`^[A-Za-z0-9._-]{1,64}$`)

// pollRoutes are hit repeatedly by clients waiting on an analysis; a
// successful call is only worth a debug line.
var pollRoutes = map[string]bool{
	"GET /ping":                 true,
	"GET /analysis/:session_id": true,
	"GET /questions":            true,
}

// RequestLogger tags each request with an id and logs one line when it ends.
// A client X-Request-Id is kept when it is a plain token, else replaced.
// Websocket streams are logged as "stream" with their lifetime.
func RequestLogger(l *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		reqID := c.GetHeader("X-Request-Id")
		if !requestIDPattern.MatchString(reqID) {
			reqID = uuid.NewString()
		}
		c.Header("X-Request-Id", reqID)
		c.Set("request_id", reqID)

		c.Next()

		route := c.Request.Method + " " + c.FullPath()
		status := c.Writer.Status()
		entry := l.WithFields(logrus.Fields{
			"request_id": reqID,
			"route":      route,
			"status":     status,
			"latency_ms": time.Since(start).Milliseconds(),
			"ip":         c.ClientIP(),
			"user_id":    c.GetString("user_id"),
		})
		if sid := c.Param("session_id"); sid != "" {
			entry = entry.WithField("session_id", sid)
		}
		if c.Request.Method == "POST" && c.Request.ContentLength > 0 {
			entry = entry.WithField("bytes_in", c.Request.ContentLength)
		}
		if len(c.Errors) > 0 {
			entry = entry.WithField("errors", c.Errors.String())
		}

		msg := "request"
		if strings.EqualFold(c.GetHeader("Upgrade"), "websocket") {
			msg = "stream"
		}

		switch {
		case status >= 500:
			entry.Error(msg)
		case status >= 400:
			entry.Warn(msg)
		case pollRoutes[route]:
			entry.Debug(msg)
		default:
			entry.Info(msg)
		}
	}
}
