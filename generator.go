package conduit

// Response generator: the mirror image of Parser. Builds a status
// line, headers, and (for chunked bodies) chunk framing into caller-
// supplied buffers, reporting back what it still needs via GenResult
// rather than writing straight to the transport itself.

import (
	"net/textproto"
	"strconv"
	"strings"
)

// GenResult is what GenerateResponse asks its caller (the write flow)
// to do next.
type GenResult int

const (
	GenNeedHeader GenResult = iota
	GenNeedChunk
	GenFlush
	GenShutdownOut
	GenDone
	GenContinue
)

// ChunkSize is the capacity a chunk-framing buffer must have: a leading
// "\r\n" (closing the previous chunk, omitted for the first chunk),
// up to 16 hex digits, and a trailing "\r\n" — or, for the terminal
// call, "\r\n0\r\n\r\n".
const ChunkSize = 32

// ResponseInfo carries everything the generator needs from the
// application's response to write the status line and header section.
// It is supplied only on a response's first send (CommitWrite);
// subsequent writes (ContentWrite) pass a nil *ResponseInfo.
type ResponseInfo struct {
	Status        int
	Header        Header
	IsHead        bool
	ContentLength int64 // >= 0 if the handler already knows the full size; -1 otherwise
}

// Generator is the per-connection response generator, reused across
// requests on a persistent connection via Reset.
type Generator struct {
	persistent        bool
	sendServerVersion bool
	serverVersion     string

	headerWritten   bool
	chunked         bool
	firstChunkDone  bool
	lastFlushed     bool // the terminal FLUSH for this response has been issued
	pendingShutdown bool // emit SHUTDOWN_OUT once, then DONE
	done            bool
}

// NewGenerator constructs a Generator that is persistent by default:
// the persistence flag starts true and is only ever narrowed, never
// widened, as the channel learns about the request. Server
// identification is off by default, matching RFC 7230 §3.1.2's
// recommendation that it be a deployment choice, not a driver default.
func NewGenerator() *Generator {
	return &Generator{persistent: true, sendServerVersion: false, serverVersion: "conduit"}
}

func (g *Generator) IsPersistent() bool           { return g.persistent }
func (g *Generator) SetPersistent(persist bool)   { g.persistent = persist }
func (g *Generator) SetSendServerVersion(on bool) { g.sendServerVersion = on }
func (g *Generator) SetServerVersion(v string)    { g.serverVersion = v }

// Reset prepares the generator for the next response on the connection.
func (g *Generator) Reset() {
	sendVersion, version := g.sendServerVersion, g.serverVersion
	*g = Generator{persistent: true, sendServerVersion: sendVersion, serverVersion: version}
}

// GenerateResponse performs one unit of work and reports what the
// caller must supply or do before calling again. headerBuf is non-nil
// only once WriteDriver has satisfied a prior GenNeedHeader; the same
// is true of chunkBuf and GenNeedChunk. The number of bytes written
// into headerBuf/chunkBuf is returned as headerLen/chunkLen; contentBuf
// is never copied, only referenced (the caller decides how much of it
// to include in the scatter write).
func (g *Generator) GenerateResponse(info *ResponseInfo, headerBuf, chunkBuf, contentBuf []byte, last bool) (result GenResult, headerLen, chunkLen int, err error) {
	if g.done {
		return GenDone, 0, 0, nil
	}
	if g.lastFlushed {
		// The terminal bytes of this response were already flushed by an
		// earlier call; all that is left is the shutdown/done epilogue.
		if g.pendingShutdown {
			g.pendingShutdown = false
			g.done = true
			return GenShutdownOut, 0, 0, nil
		}
		g.done = true
		return GenDone, 0, 0, nil
	}

	if !g.headerWritten {
		if info == nil {
			// A content write was invoked before any commit write ever
			// ran for this response: a protocol error.
			return 0, 0, 0, ErrUnexpectedState
		}
		if headerBuf == nil {
			return GenNeedHeader, 0, 0, nil
		}
		if info.ContentLength < 0 && !last {
			g.chunked = true
		}
		headerLen = g.writeHeader(info, headerBuf, len(contentBuf), last)
		g.headerWritten = true
	}

	if g.chunked {
		if chunkBuf == nil {
			return GenNeedChunk, headerLen, 0, nil
		}
		// A non-empty final write is framed and flushed as an ordinary
		// chunk first; the terminator follows on the next call, once the
		// content is no longer supplied, so it lands after the data.
		terminal := last && len(contentBuf) == 0
		chunkLen = g.writeChunkPrefix(chunkBuf, len(contentBuf), terminal)
		if terminal {
			g.lastFlushed = true
			return GenFlush, headerLen, chunkLen, nil
		}
		if chunkLen == 0 && len(contentBuf) == 0 {
			return GenContinue, 0, 0, nil
		}
		return GenFlush, headerLen, chunkLen, nil
	}

	if last {
		g.lastFlushed = true
		return GenFlush, headerLen, 0, nil
	}
	if len(contentBuf) == 0 {
		return GenContinue, 0, 0, nil
	}
	return GenFlush, headerLen, 0, nil
}

// writeHeader renders the status line and header section into headerBuf,
// including Content-Length (when the full size is already known) or
// announcing chunked transfer (when it is not), and the server
// identification line. The Connection header, when one is needed at
// all, is set by the caller into info.Header before this runs — the
// persistence decision belongs to the channel bridge, not here.
func (g *Generator) writeHeader(info *ResponseInfo, headerBuf []byte, contentLen int, last bool) int {
	n := 0
	n += copy(headerBuf[n:], "HTTP/1.1 ")
	n += copy(headerBuf[n:], strconv.Itoa(info.Status))
	headerBuf[n] = ' '
	n++
	n += copy(headerBuf[n:], StatusText(info.Status))
	n += copy(headerBuf[n:], "\r\n")

	for name, values := range info.Header {
		canon := textproto.CanonicalMIMEHeaderKey(name)
		for _, v := range values {
			n += copy(headerBuf[n:], canon)
			n += copy(headerBuf[n:], ": ")
			n += copy(headerBuf[n:], v)
			n += copy(headerBuf[n:], "\r\n")
		}
	}

	if !g.chunked {
		size := int64(contentLen)
		if info.ContentLength >= 0 {
			size = info.ContentLength
		}
		n += copy(headerBuf[n:], "Content-Length: ")
		n += copy(headerBuf[n:], strconv.FormatInt(size, 10))
		n += copy(headerBuf[n:], "\r\n")
	} else {
		n += copy(headerBuf[n:], "Transfer-Encoding: chunked\r\n")
	}

	if g.sendServerVersion && !info.Header.Has("server") {
		n += copy(headerBuf[n:], "Server: "+g.serverVersion+"\r\n")
	}
	n += copy(headerBuf[n:], "\r\n")

	if !g.persistent {
		g.pendingShutdown = true
	}
	return n
}

// writeChunkPrefix renders the framing for one chunk-data write, or the
// terminating "0\r\n\r\n" when last is set (GenerateResponse sets it only
// on the empty write that ends a chunked body). The trailing CRLF that RFC 9112 requires after
// chunk-data is deferred to the front of the *next* chunk's framing (or
// to the terminator), so a single chunk buffer slot can carry it without
// a fourth scatter-write element.
func (g *Generator) writeChunkPrefix(chunkBuf []byte, contentLen int, last bool) int {
	n := 0
	if g.firstChunkDone {
		n += copy(chunkBuf[n:], "\r\n")
	}
	if contentLen > 0 {
		n += copy(chunkBuf[n:], strings.ToUpper(strconv.FormatInt(int64(contentLen), 16)))
		n += copy(chunkBuf[n:], "\r\n")
		g.firstChunkDone = true
	}
	if last {
		n += copy(chunkBuf[n:], "0\r\n\r\n")
		if !g.persistent {
			g.pendingShutdown = true
		}
	}
	return n
}
