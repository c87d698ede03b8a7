package conduit

// Incremental HTTP/1.x request parser: scans a request line, headers,
// and body (fixed-length or chunked) directly out of the caller's
// buffer instead of building an intermediate token stream, resuming
// from a saved cursor on every call rather than copying bytes around.
//
// The buffer the parser scans is owned by the caller (ConnectionDriver):
// ParseNext is handed buf[:filled] on every call and resumes from where
// it left off via its own cursor fields. Positions are offsets from the
// start of buf, so they stay valid across a buffer grow-and-copy as long
// as the prefix bytes are preserved — they are only invalidated by the
// compaction that happens between messages (see ConnectionDriver.reset).

import (
	"strconv"
	"strings"
)

type parserState uint8

const (
	parserStart parserState = iota // nothing of the next message consumed yet
	parserRequestLine
	parserHeaders
	parserContentSized
	parserContentChunked
	parserTrailers
	parserComplete
)

// Callbacks is implemented by the component that bridges parsed events
// to the application (the HttpChannel bridge, channel.go).
type Callbacks interface {
	HeaderComplete()
	Content(chunk []byte)
	MessageComplete()
	BadMessage(status int, reason string)
}

// ParsedRequest holds everything the parser learned about the request
// line and headers. It is reused across requests on the same connection
// (reset() clears it) to avoid an allocation per pipelined request.
type ParsedRequest struct {
	Method        string
	Target        string
	Path          string
	Query         string
	Major, Minor  int // 0, 9 for HTTP/0.9 (no version token at all)
	Header        Header
	ContentLength int64 // -1: absent (no body), -2: chunked (vague)
	ExpectContinue bool
	Trailer       Header
}

func (r *ParsedRequest) reset() {
	r.Method, r.Target, r.Path, r.Query = "", "", "", ""
	r.Major, r.Minor = 0, 0
	for k := range r.Header {
		delete(r.Header, k)
	}
	r.ContentLength = -1
	r.ExpectContinue = false
	if r.Trailer != nil {
		for k := range r.Trailer {
			delete(r.Trailer, k)
		}
	}
}

const maxHeaderBytesDefault = size16K

// Parser is the stateful byte-level request parser. One Parser is
// owned exclusively by one ConnectionDriver and reused across the
// persistent connection's requests via reset().
type Parser struct {
	state parserState
	touched bool // any byte of the current message consumed yet? (is_idle)

	pos int // next unconsumed offset into the buffer handed to parseNext
	lineStart int

	Request ParsedRequest

	// body decoding state
	chunkSize int64 // chunked: bytes left in the chunk currently being delivered; -1 before first chunk-size line is read
	chunkRead int64 // sized (Content-Length) body: bytes delivered so far

	maxHeaderBytes int

	callbacks Callbacks
}

// NewParser constructs a Parser that reports significant events to cb.
func NewParser(cb Callbacks) *Parser {
	p := &Parser{callbacks: cb, maxHeaderBytes: maxHeaderBytesDefault}
	p.Request.Header = make(Header, 8)
	p.Request.Trailer = make(Header, 4)
	p.Reset()
	return p
}

// SetMaxHeaderBytes overrides the length limit applied to the request
// line and to each header line while it is still incomplete (and, by
// extension, to trailer lines and chunk-size lines, which reuse the same
// budget). The total size of a header section made of complete lines is
// not checked against it.
func (p *Parser) SetMaxHeaderBytes(n int) { p.maxHeaderBytes = n }

// IsStart reports whether the parser is ready to begin a new message —
// used by ConnectionDriver.completed to decide whether a pipelined
// request is already sitting in the buffer.
func (p *Parser) IsStart() bool { return p.state == parserStart }

// IsIdle reports whether the parser is at the start of a message and
// nothing of it has been consumed yet.
func (p *Parser) IsIdle() bool { return p.state == parserStart && !p.touched }

// InContent reports whether the parser is in the body-receiving phase
// (sized or chunked) — used by on_fillable's "greedily keep parsing"
// rule and by completed()'s body-draining decision.
func (p *Parser) InContent() bool {
	return p.state == parserContentSized || p.state == parserContentChunked
}

// Touched reports whether any byte of the current message has been
// consumed yet — used to tell a quiet idle EOF apart from a genuine
// mid-message protocol error when a ParseNext call fails.
func (p *Parser) Touched() bool { return p.touched }

// IsComplete reports whether the current message (headers + body +
// trailers, if any) has been fully parsed.
func (p *Parser) IsComplete() bool { return p.state == parserComplete }

// Reset prepares the parser for the next request on a persistent
// connection. The caller (ConnectionDriver) is responsible for
// compacting the shared buffer so offset 0 is the first unconsumed byte.
func (p *Parser) Reset() {
	p.state = parserStart
	p.touched = false
	p.pos = 0
	p.lineStart = 0
	p.chunkSize = -1
	p.chunkRead = 0
	p.Request.reset()
}

// Close marks the parser as done with this stream entirely (no further
// requests will be read) — the connection will be closed after EOF is
// observed.
func (p *Parser) Close() { p.state = parserComplete }

// ShutdownInput reacts to the transport's input having reached EOF.
// If a message was mid-flight, that is reported as a bad message;
// otherwise this is just the orderly end of a persistent connection.
func (p *Parser) ShutdownInput() {
	if p.state != parserStart && p.state != parserComplete {
		p.callbacks.BadMessage(StatusBadRequest, "connection closed mid-message")
	}
	p.state = parserComplete
}

// Consumed reports how many bytes starting at offset 0 have been fully
// consumed by the parser so far. The caller uses this to compact the
// buffer once a message has completed and slide any pipelined bytes to
// the front before the next Reset.
func (p *Parser) Consumed() int { return p.pos }

// ParseNext consumes as much of buf (indices [p.pos:len(buf)]) as forms
// complete syntactic units (a request line, a header line, a body
// chunk, a trailer section) and reports whether a significant event —
// header_complete, a content chunk, or message_complete — was raised.
// It returns right after header_complete, so body bytes already in buf
// are parsed by the next call.
// It returns without error and without progress when buf holds only a
// partial unit; the caller is expected to fill more bytes and call
// again. A non-nil error means the message is malformed; BadMessage was
// already invoked on the callback and the parser is now complete.
func (p *Parser) ParseNext(buf []byte) (bool, error) {
	switch p.state {
	case parserStart:
		return p.parseRequestLine(buf)
	case parserHeaders:
		return p.parseHeaders(buf)
	case parserContentSized:
		return p.parseSizedContent(buf)
	case parserContentChunked:
		return p.parseChunkedContent(buf)
	case parserTrailers:
		return p.parseTrailers(buf)
	default: // parserComplete
		return false, nil
	}
}

func findCRLF(buf []byte, from int) (lineEnd, next int, ok bool) {
	for i := from; i < len(buf); i++ {
		if buf[i] == '\n' {
			end := i
			if end > from && buf[end-1] == '\r' {
				end--
			}
			return end, i + 1, true
		}
	}
	return 0, 0, false
}

func (p *Parser) tooLarge(buf []byte) bool { return len(buf)-p.lineStart >= p.maxHeaderBytes }

func (p *Parser) fail(status int, reason string) (bool, error) {
	p.state = parserComplete
	p.callbacks.BadMessage(status, reason)
	return true, &badMessage{status: status, reason: reason}
}

func (p *Parser) parseRequestLine(buf []byte) (bool, error) {
	end, next, ok := findCRLF(buf, p.lineStart)
	if !ok {
		if p.tooLarge(buf) {
			return p.fail(StatusURITooLong, "request line too long")
		}
		return false, nil
	}
	p.touched = true
	line := buf[p.lineStart:end]
	fields := strings.SplitN(string(line), " ", 3)
	if len(fields) < 2 || fields[0] == "" || fields[1] == "" {
		return p.fail(StatusBadRequest, "malformed request line")
	}
	p.Request.Method = fields[0]
	p.Request.Target = fields[1]
	if i := strings.IndexByte(fields[1], '?'); i >= 0 {
		p.Request.Path, p.Request.Query = fields[1][:i], fields[1][i+1:]
	} else {
		p.Request.Path = fields[1]
	}
	if len(fields) == 2 { // HTTP/0.9: no version token, no headers, no body
		p.Request.Major, p.Request.Minor = 0, 9
		p.Request.ContentLength = -1
		p.pos = next
		p.state = parserComplete
		p.callbacks.HeaderComplete()
		p.callbacks.MessageComplete()
		return true, nil
	}
	major, minor, ok := parseHTTPVersion(fields[2])
	if !ok {
		return p.fail(StatusBadRequest, "malformed HTTP version")
	}
	p.Request.Major, p.Request.Minor = major, minor
	p.pos = next
	p.lineStart = next
	p.state = parserHeaders
	return p.parseHeaders(buf)
}

func parseHTTPVersion(tok string) (major, minor int, ok bool) {
	if !strings.HasPrefix(tok, "HTTP/") || len(tok) != len("HTTP/1.1") {
		return 0, 0, false
	}
	tok = tok[len("HTTP/"):]
	dot := strings.IndexByte(tok, '.')
	if dot < 0 {
		return 0, 0, false
	}
	maj, err1 := strconv.Atoi(tok[:dot])
	min, err2 := strconv.Atoi(tok[dot+1:])
	if err1 != nil || err2 != nil {
		return 0, 0, false
	}
	return maj, min, true
}

func (p *Parser) parseHeaders(buf []byte) (bool, error) {
	for {
		end, next, ok := findCRLF(buf, p.lineStart)
		if !ok {
			if p.tooLarge(buf) {
				return p.fail(StatusRequestHeaderFieldsTooLarge, "header section too large")
			}
			return false, nil
		}
		p.touched = true
		if end == p.lineStart { // blank line: end of header section
			p.pos = next
			return p.finishHeaders(buf, next)
		}
		line := buf[p.lineStart:end]
		colon := indexByte(line, ':')
		if colon <= 0 {
			return p.fail(StatusBadRequest, "malformed header line")
		}
		name := strings.ToLower(strings.TrimSpace(string(line[:colon])))
		value := strings.TrimSpace(string(line[colon+1:]))
		if name == "" {
			return p.fail(StatusBadRequest, "empty header name")
		}
		p.Request.Header.Add(name, value)
		p.lineStart = next
		p.pos = next
	}
}

func indexByte(b []byte, c byte) int {
	for i, x := range b {
		if x == c {
			return i
		}
	}
	return -1
}

// finishHeaders decides the content-length/chunked/Expect framing once
// the blank line ending the header section has been seen, then emits
// HeaderComplete (a significant event: the channel may now be invoked).
func (p *Parser) finishHeaders(buf []byte, bodyStart int) (bool, error) {
	h := p.Request.Header
	if h.hasToken("Transfer-Encoding", "chunked") {
		p.Request.ContentLength = -2
		p.state = parserContentChunked
		p.chunkSize = -1
	} else if cl := h.Get("Content-Length"); cl != "" {
		n, err := strconv.ParseInt(cl, 10, 64)
		if err != nil || n < 0 {
			return p.fail(StatusBadRequest, "malformed Content-Length")
		}
		p.Request.ContentLength = n
		if n == 0 {
			p.state = parserComplete
		} else {
			p.state = parserContentSized
			p.chunkRead = 0
		}
	} else {
		p.Request.ContentLength = -1
		p.state = parserComplete
	}
	p.Request.ExpectContinue = h.hasToken("Expect", "100-continue")
	p.lineStart = bodyStart

	p.callbacks.HeaderComplete()
	if p.state == parserComplete {
		p.callbacks.MessageComplete()
	}
	return true, nil
}

func (p *Parser) parseSizedContent(buf []byte) (bool, error) {
	avail := int64(len(buf)) - int64(p.pos)
	if avail <= 0 {
		return false, nil
	}
	remaining := p.Request.ContentLength - p.chunkRead
	n := avail
	if n > remaining {
		n = remaining
	}
	chunk := buf[p.pos : int64(p.pos)+n]
	p.pos += int(n)
	p.chunkRead += n
	p.touched = true
	p.callbacks.Content(chunk)
	if p.chunkRead >= p.Request.ContentLength {
		p.state = parserComplete
		p.callbacks.MessageComplete()
	}
	return true, nil
}

// parseChunkedContent decodes one or more "chunk-size CRLF chunk-data
// CRLF" units, delivering each chunk's data via Content. Reaching the
// zero-length last-chunk transitions to trailer parsing.
func (p *Parser) parseChunkedContent(buf []byte) (bool, error) {
	progressed := false
	for {
		if p.chunkSize < 0 { // need a chunk-size line
			end, next, ok := findCRLF(buf, p.pos)
			if !ok {
				p.lineStart = p.pos
				if p.tooLarge(buf) {
					return p.fail(StatusBadRequest, "chunk size line too long")
				}
				return progressed, nil
			}
			line := buf[p.pos:end]
			if semi := indexByte(line, ';'); semi >= 0 {
				line = line[:semi] // ignore chunk extensions
			}
			size, err := strconv.ParseInt(strings.TrimSpace(string(line)), 16, 64)
			if err != nil || size < 0 {
				return p.fail(StatusBadRequest, "malformed chunk size")
			}
			p.pos = next
			p.chunkSize = size
			p.touched = true
			if size == 0 {
				p.state = parserTrailers
				p.lineStart = p.pos
				return p.parseTrailers(buf)
			}
			continue
		}
		// deliver as much of the current chunk as is buffered
		avail := int64(len(buf)) - int64(p.pos)
		if avail <= 0 {
			return progressed, nil
		}
		n := p.chunkSize
		if avail < n {
			n = avail
		}
		if n > 0 {
			chunk := buf[p.pos : int64(p.pos)+n]
			p.pos += int(n)
			p.chunkSize -= n
			p.callbacks.Content(chunk)
			progressed = true
		}
		if p.chunkSize > 0 {
			return progressed, nil // need more data for this chunk
		}
		// chunk-data fully delivered; consume the trailing CRLF
		end, next, ok := findCRLF(buf, p.pos)
		if !ok || end != p.pos {
			if !ok {
				return progressed, nil
			}
			return p.fail(StatusBadRequest, "malformed chunk terminator")
		}
		p.pos = next
		p.chunkSize = -1 // ready for the next chunk-size line
	}
}

func (p *Parser) parseTrailers(buf []byte) (bool, error) {
	for {
		end, next, ok := findCRLF(buf, p.lineStart)
		if !ok {
			if p.tooLarge(buf) {
				return p.fail(StatusBadRequest, "trailer section too large")
			}
			return false, nil
		}
		if end == p.lineStart {
			p.pos = next
			p.state = parserComplete
			p.callbacks.MessageComplete()
			return true, nil
		}
		line := buf[p.lineStart:end]
		colon := indexByte(line, ':')
		if colon <= 0 {
			return p.fail(StatusBadRequest, "malformed trailer line")
		}
		name := strings.ToLower(strings.TrimSpace(string(line[:colon])))
		value := strings.TrimSpace(string(line[colon+1:]))
		p.Request.Trailer.Add(name, value)
		p.lineStart = next
		p.pos = next
	}
}
