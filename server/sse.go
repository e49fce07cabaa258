package server

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
)

// SSEWriter handles Server-Sent Events writing.
type SSEWriter interface {
	WriteSSE(data string) error
	WriteSSEError(err error) error
	Flush()
}

// ginSSEWriter implements SSEWriter over a gin response writer.
type ginSSEWriter struct {
	c       *gin.Context
	flusher http.Flusher
}

// newGinSSEWriter prepares the response for event streaming. Returns nil
// when the underlying writer cannot flush.
func newGinSSEWriter(c *gin.Context) *ginSSEWriter {
	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		return nil
	}

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.WriteHeader(http.StatusOK)

	return &ginSSEWriter{c: c, flusher: flusher}
}

func (w *ginSSEWriter) WriteSSE(data string) error {
	_, err := fmt.Fprintf(w.c.Writer, "data: %s\n\n", data)
	return err
}

func (w *ginSSEWriter) WriteSSEError(err error) error {
	_, werr := fmt.Fprintf(w.c.Writer, "event: error\ndata: %q\n\n", err.Error())
	return werr
}

func (w *ginSSEWriter) Flush() {
	w.flusher.Flush()
}
