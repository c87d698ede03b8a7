package conduit

// HttpChannel bridge: the Callbacks implementation that decides
// connection persistence from the parsed request line and Connection
// header, guards the single-100-continue-send rule, and routes a
// malformed request to the default error response. The persistence
// table below follows the HTTP/1.0 vs HTTP/1.1 keep-alive convention
// and the CONNECT exception (a CONNECT response stays open regardless
// of the Connection header, since the tunnel itself takes over the
// transport afterward).

// httpChannel is the per-connection instance of the bridge, reused
// across requests via reset() the same way the parser and generator are.
type httpChannel struct {
	conn *ConnectionDriver

	continueSent bool
}

func newHTTPChannel(conn *ConnectionDriver) *httpChannel {
	return &httpChannel{conn: conn}
}

func (ch *httpChannel) reset() {
	ch.continueSent = false
}

// HeaderComplete is the parser's header_complete callback: this is
// where connection persistence for the response is decided.
func (ch *httpChannel) HeaderComplete() {
	c := ch.conn
	req := &c.parser.Request

	if !isSupportedHTTPVersion(req.Major, req.Minor) {
		c.generator.SetPersistent(false)
		c.badMessageStatus = StatusHTTPVersionNotSupported
		c.badMessageReason = "unsupported HTTP version"
		c.requestReady = true
		return
	}

	isConnect := req.Method == "CONNECT"
	var persistent bool
	var connectionValue string

	switch {
	case req.Major == 0: // HTTP/0.9
		persistent = false
	case req.Minor == 0: // HTTP/1.0
		persistent = isConnect || req.Header.hasToken("Connection", "keep-alive")
		if persistent {
			connectionValue = "keep-alive"
		}
	default: // HTTP/1.1
		persistent = isConnect || !req.Header.hasToken("Connection", "close")
		if !persistent {
			connectionValue = "close"
		}
	}

	c.generator.SetPersistent(persistent)
	c.pendingConnectionHeader = connectionValue

	if cl := req.ContentLength; cl > 0 && cl > c.cfg.MaxRequestBodySize {
		c.generator.SetPersistent(false)
		c.badMessageStatus = StatusContentTooLarge
		c.badMessageReason = "request body exceeds the configured limit"
	}

	c.requestReady = true
}

func isSupportedHTTPVersion(major, minor int) bool {
	return (major == 0 && minor == 9) || (major == 1 && (minor == 0 || minor == 1))
}

// Content is the parser's per-chunk callback: queue the bytes for the
// request body reader to hand to the handler.
func (ch *httpChannel) Content(chunk []byte) {
	ch.conn.bodyReader.queue(chunk)
}

// MessageComplete is the parser's end-of-message callback. Nothing to
// do here: completed() (driven by the handler's return) is what resets
// state for the next request.
func (ch *httpChannel) MessageComplete() {}

// BadMessage is the parser's malformed-request callback: a malformed
// request forces the connection non-persistent, and the failure is
// recorded for the default error response dispatch takes once the
// current on_fillable iteration invokes the channel.
func (ch *httpChannel) BadMessage(status int, reason string) {
	c := ch.conn
	c.generator.SetPersistent(false)
	c.badMessageStatus = status
	c.badMessageReason = reason
}
