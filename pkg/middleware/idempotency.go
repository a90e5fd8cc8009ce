package middleware

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/hiennm11/Simple-Booking-Microservices-Project-sub001/pkg/redis"
	"github.com/hiennm11/Simple-Booking-Microservices-Project-sub001/pkg/response"
)

// IdempotencyKeyHeader carries the client's idempotency key for unsafe
// requests.
const IdempotencyKeyHeader = "Idempotency-Key"

// Idempotency rejects a repeated command carrying an Idempotency-Key the
// service has seen within ttl. Requests without the header pass through; the
// saga's ledger still protects the event plane either way.
func Idempotency(client *redis.Client, prefix string, ttl time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method == http.MethodGet {
			c.Next()
			return
		}

		key := c.GetHeader(IdempotencyKeyHeader)
		if key == "" {
			c.Next()
			return
		}

		ok, err := client.SetNX(c.Request.Context(), prefix+":idem:"+key, 1, ttl)
		if err != nil {
			// Redis being down must not block command traffic.
			c.Next()
			return
		}
		if !ok {
			response.Conflict(c, "duplicate request")
			c.Abort()
			return
		}

		c.Next()
	}
}
