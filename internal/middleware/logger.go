package middleware

import (
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// Logger writes one line per request. Requests that went through throttle
// evaluation append their scope and charge state, so rejected or deferred
// traffic can be traced without capturing response headers.
func Logger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		method := c.Request.Method

		c.Next()

		latency := time.Since(start)
		statusCode := c.Writer.Status()
		requestID := c.GetString("request_id")

		line := fmt.Sprintf("[%s] %s %s - %d - %v - %s",
			requestID,
			method,
			path,
			statusCode,
			latency,
			c.ClientIP(),
		)

		if tcx := currentThrottleContext(c); tcx != nil {
			line += fmt.Sprintf(" - scope=%s charge=%s", tcx.Policy.Scope, tcx.State)
		} else if statusCode == http.StatusTooManyRequests {
			line += " - throttled"
		}

		log.Print(line)
	}
}
