// Package middleware provides the gin middleware shared by the service HTTP
// ingresses.
package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/hiennm11/Simple-Booking-Microservices-Project-sub001/pkg/correlation"
)

// Correlation accepts the caller's X-Correlation-ID header or generates one,
// attaches it to the request context and echoes it on the response. Every
// event emitted downstream of the request carries this id.
func Correlation() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(correlation.Header)

		ctx := c.Request.Context()
		if id != "" {
			ctx = correlation.WithID(ctx, id)
		} else {
			ctx, id = correlation.EnsureID(ctx)
		}

		c.Request = c.Request.WithContext(ctx)
		c.Header(correlation.Header, id)

		c.Next()
	}
}
