// Response compression has no direct teacher counterpart (the teacher only
// decompresses request bodies in its request logger, via the same three
// codecs); this middleware is built fresh in the same codec set -
// klauspost/compress's gzip implementation and andybalholm/brotli - chosen
// by Accept-Encoding, client-preference order (br before gzip). See
// DESIGN.md.
package middleware

import (
	"bufio"
	"io"
	"net"
	"strings"

	"github.com/andybalholm/brotli"
	"github.com/gin-gonic/gin"
	kgzip "github.com/klauspost/compress/gzip"
)

// compressWriter wraps gin.ResponseWriter, lazily deciding on the first
// Write whether to compress: a handler that set Content-Type to
// text/event-stream writes through uncompressed, since SSE frames need to
// reach the client as they're flushed, not buffered into a compressor.
type compressWriter struct {
	gin.ResponseWriter
	newCompressor func(io.Writer) (io.Writer, io.Closer)
	encoding      string
	w             io.Writer
	closer        io.Closer
	decided       bool
	compressing   bool
}

func (w *compressWriter) decide() {
	if w.decided {
		return
	}
	w.decided = true
	if strings.Contains(w.Header().Get("Content-Type"), "text/event-stream") {
		return
	}
	w.compressing = true
	w.Header().Set("Content-Encoding", w.encoding)
	w.Header().Set("Vary", "Accept-Encoding")
	w.Header().Del("Content-Length")
	w.w, w.closer = w.newCompressor(w.ResponseWriter)
}

func (w *compressWriter) WriteString(s string) (int, error) {
	return w.Write([]byte(s))
}

func (w *compressWriter) Write(data []byte) (int, error) {
	w.decide()
	if !w.compressing {
		return w.ResponseWriter.Write(data)
	}
	return w.w.Write(data)
}

func (w *compressWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	return w.ResponseWriter.Hijack()
}

func (w *compressWriter) Close() error {
	if w.closer != nil {
		return w.closer.Close()
	}
	return nil
}

// CompressResponse compresses response bodies with brotli or gzip
// depending on the client's Accept-Encoding, skipping anything that turns
// out to be a text/event-stream response and anything the client didn't
// advertise support for.
func CompressResponse() gin.HandlerFunc {
	return func(c *gin.Context) {
		accept := c.GetHeader("Accept-Encoding")
		var encoding string
		var newCompressor func(io.Writer) (io.Writer, io.Closer)
		switch {
		case strings.Contains(accept, "br"):
			encoding = "br"
			newCompressor = func(w io.Writer) (io.Writer, io.Closer) {
				bw := brotli.NewWriterLevel(w, brotli.DefaultCompression)
				return bw, bw
			}
		case strings.Contains(accept, "gzip"):
			encoding = "gzip"
			newCompressor = func(w io.Writer) (io.Writer, io.Closer) {
				gw, _ := kgzip.NewWriterLevel(w, kgzip.DefaultCompression)
				return gw, gw
			}
		default:
			c.Next()
			return
		}

		cw := &compressWriter{ResponseWriter: c.Writer, newCompressor: newCompressor, encoding: encoding}
		c.Writer = cw

		c.Next()

		cw.decide()
		if cw.compressing {
			_ = cw.Close()
		}
	}
}
