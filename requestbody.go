package conduit

// RequestBodyReader bridges the parser's content-state output to a
// blocking Read call on the handler's goroutine: a simple queue of
// already-delivered chunks sitting in front of the shared request
// buffer, filled on demand as the handler consumes it.

import (
	"io"
)

// requestBodyReader implements io.Reader over the chunks the channel's
// Content callback hands to queue, so a Handler can read the request
// body with ordinary io.Reader calls while the driver underneath fills,
// parses, and queues bytes on demand.
type requestBodyReader struct {
	conn *ConnectionDriver

	queued    [][]byte // content chunks the parser has delivered but the handler hasn't consumed
	queuedLen int

	maxSize int64 // not set or read; the declared-size limit is checked in httpChannel.HeaderComplete
	read    int64
}

func newRequestBodyReader(conn *ConnectionDriver) *requestBodyReader {
	return &requestBodyReader{conn: conn}
}

func (r *requestBodyReader) reset() {
	r.queued = r.queued[:0]
	r.queuedLen = 0
	r.read = 0
}

// queue appends a chunk delivered by Parser.Content. The slice aliases
// the request buffer and must be consumed (copied out by the reader, or
// otherwise not retained) before the buffer is reused or released.
func (r *requestBodyReader) queue(chunk []byte) {
	if len(chunk) == 0 {
		return
	}
	r.queued = append(r.queued, chunk)
	r.queuedLen += len(chunk)
}

func (r *requestBodyReader) available() int { return r.queuedLen }

// Read implements io.Reader for the handler's convenience. It blocks,
// via blockForContent, until at least one byte is available or the
// body is exhausted.
func (r *requestBodyReader) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	if err := r.blockForContent(); err != nil {
		return 0, err
	}
	if r.queuedLen == 0 {
		return 0, io.EOF
	}
	n := 0
	for n < len(p) && len(r.queued) > 0 {
		head := r.queued[0]
		c := copy(p[n:], head)
		n += c
		if c == len(head) {
			r.queued = r.queued[1:]
		} else {
			r.queued[0] = head[c:]
		}
		r.queuedLen -= c
	}
	return n, nil
}

// blockForContent loops: keep parsing the current buffer, and if the
// parser needs more bytes than are buffered, fill the transport
// (growing the buffer if needed) and retry, until either content
// becomes available or the message completes.
func (r *requestBodyReader) blockForContent() error {
	c := r.conn
	c.sendContinue()
	for !c.parser.IsComplete() {
		progressed := false
		if c.reqBuf != nil && c.reqFilled > c.reqConsumed() {
			advanced, err := c.parser.ParseNext(c.reqBuf[:c.reqFilled])
			if err != nil {
				return err
			}
			progressed = advanced
			for advanced && c.parser.InContent() && c.reqFilled > c.reqConsumed() {
				if advanced, err = c.parser.ParseNext(c.reqBuf[:c.reqFilled]); err != nil {
					return err
				}
			}
		}
		if c.parser.IsComplete() || r.queuedLen > 0 {
			return nil
		}
		if !progressed {
			if c.endpoint.IsInputShutdown() {
				c.parser.ShutdownInput()
				return io.EOF
			}
			if err := r.fillMore(); err != nil {
				return err
			}
		}
	}
	return nil
}

// fillMore acquires (or grows) the request buffer and performs one
// blocking transport read, sized to the configured base size, or a
// multiple of it large enough to hold the full declared Content-Length
// (GetNK caps the buffer at its largest size class, 64K-1).
func (r *requestBodyReader) fillMore() error {
	c := r.conn
	if c.reqBuf == nil {
		size := int64(c.cfg.InputBufferSize)
		if cl := c.parser.Request.ContentLength; cl > size {
			n := (cl + size - 1) / size
			size *= n
		}
		c.reqBuf = GetNK(size)
		c.reqFilled = 0
	}
	if c.reqFilled == len(c.reqBuf) {
		grown := GetNK(int64(len(c.reqBuf)) * 2)
		copy(grown, c.reqBuf[:c.reqFilled])
		PutNK(c.reqBuf)
		c.reqBuf = grown
	}
	n, err := c.endpoint.Fill(c.reqBuf[c.reqFilled:])
	if n < 0 || err != nil {
		c.parser.ShutdownInput()
		return io.EOF
	}
	c.reqFilled += n
	return nil
}

// onAllContentConsumed releases the request buffer once the handler has
// drained every queued chunk and the parser holds no more unconsumed
// bytes.
func (r *requestBodyReader) onAllContentConsumed() {
	c := r.conn
	if r.queuedLen == 0 && c.reqBuf != nil && c.reqFilled == c.reqConsumed() {
		PutNK(c.reqBuf)
		c.reqBuf = nil
		c.reqFilled = 0
	}
}
