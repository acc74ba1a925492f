// Package httpio provides a minimal http.ResponseWriter over a raw
// net.Conn, used instead of http.Server so that each accepted connection
// can be routed through the worker pool and so a successful WebSocket
// upgrade can hijack the same connection coder/websocket already has a
// bufio.Reader open on.
package httpio

import (
	"bufio"
	"bytes"
	"fmt"
	"net"
	"net/http"
)

// ResponseWriter implements http.ResponseWriter and http.Hijacker directly
// on top of a net.Conn, buffering the response body until Flush writes the
// raw HTTP/1.1 response line, headers, and body back onto the wire.
type ResponseWriter struct {
	conn   net.Conn
	bufrw  *bufio.ReadWriter
	header http.Header
	status int
	wrote  bool
	body   bytes.Buffer

	hijacked bool
}

// New wraps conn, reusing reader as the request-side half of the
// hijack-ready bufio.ReadWriter so no buffered bytes are lost if the
// handler later hijacks the connection.
func New(conn net.Conn, reader *bufio.Reader) *ResponseWriter {
	return &ResponseWriter{
		conn:   conn,
		bufrw:  bufio.NewReadWriter(reader, bufio.NewWriter(conn)),
		header: make(http.Header),
		status: http.StatusOK,
	}
}

func (w *ResponseWriter) Header() http.Header { return w.header }

func (w *ResponseWriter) WriteHeader(code int) {
	if w.wrote {
		return
	}
	w.status = code
	w.wrote = true
}

func (w *ResponseWriter) Write(b []byte) (int, error) {
	if !w.wrote {
		w.WriteHeader(http.StatusOK)
	}
	return w.body.Write(b)
}

// Hijack satisfies http.Hijacker, handing the raw connection and its
// buffered reader/writer to the caller, exactly as coder/websocket.Accept
// requires. After Hijack, Flush must not be called.
func (w *ResponseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	w.hijacked = true
	return w.conn, w.bufrw, nil
}

// Hijacked reports whether Hijack has already been called.
func (w *ResponseWriter) Hijacked() bool { return w.hijacked }

// Flush writes the buffered status line, headers, and body to the
// underlying connection. It is a no-op if the connection was hijacked.
func (w *ResponseWriter) Flush() error {
	if w.hijacked {
		return nil
	}
	if !w.wrote {
		w.WriteHeader(http.StatusOK)
	}

	if w.header.Get("Content-Length") == "" {
		w.header.Set("Content-Length", fmt.Sprintf("%d", w.body.Len()))
	}
	if w.header.Get("Connection") == "" {
		w.header.Set("Connection", "close")
	}

	if _, err := fmt.Fprintf(w.bufrw.Writer, "HTTP/1.1 %d %s\r\n", w.status, http.StatusText(w.status)); err != nil {
		return err
	}
	if err := w.header.Write(w.bufrw.Writer); err != nil {
		return err
	}
	if _, err := w.bufrw.Writer.WriteString("\r\n"); err != nil {
		return err
	}
	if _, err := w.bufrw.Writer.Write(w.body.Bytes()); err != nil {
		return err
	}
	return w.bufrw.Writer.Flush()
}
