package middleware

import (
	"bytes"
	"net/http"

	"clinical-search-api/internal/logger"
	"clinical-search-api/utils"

	"github.com/gin-gonic/gin"
)

type bufferedWriter struct {
	gin.ResponseWriter
	buf bytes.Buffer
}

func (w *bufferedWriter) Write(b []byte) (int, error) {
	return w.buf.Write(b)
}

func (w *bufferedWriter) WriteString(s string) (int, error) {
	return w.buf.WriteString(s)
}

// Compression encodes responses of at least minSize bytes with brotli or gzip,
// whichever the client accepts. Smaller bodies and bodies that already carry a
// Content-Encoding are sent as is.
func Compression(minSize int) gin.HandlerFunc {
	return func(c *gin.Context) {
		algo := utils.NegotiateCompression(c.GetHeader("Accept-Encoding"))
		if algo == utils.CompressionNone || c.Request.Method == http.MethodHead {
			c.Next()
			return
		}

		orig := c.Writer
		bw := &bufferedWriter{ResponseWriter: orig}
		c.Writer = bw
		c.Next()
		c.Writer = orig

		body := bw.buf.Bytes()
		h := orig.Header()
		h.Add("Vary", "Accept-Encoding")
		if len(body) == 0 {
			orig.WriteHeaderNow()
			return
		}
		if len(body) < minSize || h.Get("Content-Encoding") != "" {
			orig.Write(body)
			return
		}

		packed, err := utils.CompressData(body, algo)
		if err != nil {
			logger.Warn("Response compression failed", "encoding", algo, "error", err)
			orig.Write(body)
			return
		}
		h.Set("Content-Encoding", string(algo))
		h.Del("Content-Length")
		orig.Write(packed)
	}
}
