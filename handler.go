package conduit

import (
	"fmt"
	"io"
)

// Handler is implemented by applications built on top of a
// ConnectionDriver. ServeHTTP is invoked synchronously on the
// connection's own goroutine, with no separate dispatch goroutine.
type Handler interface {
	ServeHTTP(resp *Response, req *Request)
}

// HandlerFunc adapts a plain function to Handler.
type HandlerFunc func(resp *Response, req *Request)

func (f HandlerFunc) ServeHTTP(resp *Response, req *Request) { f(resp, req) }

// Request is the minimal request object model a Handler sees. Body
// reads block the calling (connection) goroutine until the requested
// bytes are available or the body is exhausted.
type Request struct {
	Method string
	Target string
	Path   string
	Query  string
	Proto  string // "HTTP/1.1", "HTTP/1.0", or "HTTP/0.9"
	Header Header
	Body   io.Reader
	Trailer Header

	ExpectContinue bool

	// Upgrade, when set by the handler before returning alongside a 101
	// response, names the connection that replaces this one on the
	// endpoint.
	Upgrade Connection
}

func (c *ConnectionDriver) buildRequest() *Request {
	p := &c.parser.Request
	return &Request{
		Method:         p.Method,
		Target:         p.Target,
		Path:           p.Path,
		Query:          p.Query,
		Proto:          fmt.Sprintf("HTTP/%d.%d", p.Major, p.Minor),
		Header:         p.Header,
		Body:           c.bodyReader,
		Trailer:        p.Trailer,
		ExpectContinue: p.ExpectContinue,
	}
}

// Response is the minimal response object model a Handler writes
// through. A zero Response defaults to 200 OK with no extra headers.
type Response struct {
	conn   *ConnectionDriver
	isHead bool

	status        int
	header        Header
	contentLength int64 // -1 (default): unknown/streamed

	sent     bool // the first send (CommitWrite) has gone out
	finished bool
}

func newResponse(conn *ConnectionDriver, isHead bool) *Response {
	return &Response{
		conn:          conn,
		isHead:        isHead,
		status:        StatusOK,
		header:        make(Header, 4),
		contentLength: -1,
	}
}

// Header returns the header map the handler may populate before the
// first Write or Finish call commits the response.
func (resp *Response) Header() Header { return resp.header }

// SetStatus sets the response status line's code. Must be called
// before the first Write/Finish.
func (resp *Response) SetStatus(code int) { resp.status = code }

// SetContentLength declares the exact body size up front, avoiding
// chunked-transfer encoding even across multiple Write calls.
func (resp *Response) SetContentLength(n int64) { resp.contentLength = n }

// Write sends p as the next piece of the response body. It does not
// mark the response finished; call Finish (or WriteFinal) to close it.
func (resp *Response) Write(p []byte) (int, error) {
	if err := resp.write(p, false); err != nil {
		return 0, err
	}
	return len(p), nil
}

// WriteFinal sends p as the last piece of the response body.
func (resp *Response) WriteFinal(p []byte) error {
	return resp.write(p, true)
}

// Finish sends a zero-length final write if the response has not
// already been finished by a prior WriteFinal.
func (resp *Response) Finish() error {
	if resp.finished {
		return nil
	}
	return resp.write(nil, true)
}

func (resp *Response) write(p []byte, last bool) error {
	var info *ResponseInfo
	if !resp.sent {
		info = &ResponseInfo{
			Status:        resp.status,
			Header:        resp.header,
			IsHead:        resp.isHead,
			ContentLength: resp.contentLength,
		}
		resp.sent = true
	}
	err := resp.conn.send(info, p, last, resp.isHead)
	if last {
		resp.finished = true
	}
	return err
}
