package middleware

import (
	"compress/gzip"
	"strings"

	"github.com/gin-gonic/gin"
)

// compressMinBytes is the smallest body worth compressing. Feed pages
// clear it easily; health probes and error envelopes do not.
const compressMinBytes = 1024

// Compression gzips responses for clients that ask for it. The metrics
// endpoint is left alone because promhttp negotiates its own encoding.
func Compression() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !strings.Contains(c.GetHeader("Accept-Encoding"), "gzip") ||
			c.Request.URL.Path == "/metrics" {
			c.Next()
			return
		}

		gw := &gzipWriter{ResponseWriter: c.Writer}
		c.Writer = gw
		defer gw.close()

		c.Next()
	}
}

// gzipWriter wraps gin.ResponseWriter with gzip compression. The
// compress-or-not decision is made once, on the first write, so small
// bodies go out unmodified.
type gzipWriter struct {
	gin.ResponseWriter
	gz      *gzip.Writer
	decided bool
}

func (g *gzipWriter) Write(data []byte) (int, error) {
	if !g.decided {
		g.decided = true
		if len(data) >= compressMinBytes {
			g.Header().Set("Content-Encoding", "gzip")
			g.Header().Set("Vary", "Accept-Encoding")
			g.Header().Del("Content-Length")
			g.gz = gzip.NewWriter(g.ResponseWriter)
		}
	}
	if g.gz != nil {
		return g.gz.Write(data)
	}
	return g.ResponseWriter.Write(data)
}

func (g *gzipWriter) WriteString(s string) (int, error) {
	return g.Write([]byte(s))
}

func (g *gzipWriter) close() {
	if g.gz != nil {
		g.gz.Close()
	}
}
