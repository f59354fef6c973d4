package middleware

import (
	"bytes"

	"github.com/gin-gonic/gin"
)

// responseWriter keeps up to limit bytes of the response body for logging.
type responseWriter struct {
	gin.ResponseWriter
	body  *bytes.Buffer
	limit int
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	if room := rw.limit - rw.body.Len(); room > 0 {
		rw.body.Write(b[:min(room, len(b))])
	}
	return rw.ResponseWriter.Write(b)
}
