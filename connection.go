package conduit

// ConnectionDriver is the top-level per-connection state machine: an
// explicit fill-parse-handle loop that can suspend (arm fill-interest)
// and be resumed by a different goroutine, with a narrow `inFillable`
// field marking the extent of one such resumption so a write
// completion arriving on a foreign goroutine can tell whether it needs
// to reschedule itself or can just return.

import "net"

// ConnectionDriver drives one accepted HTTP/1.x connection end to end:
// filling and parsing the request, dispatching to a Handler, writing
// the response, and deciding whether to keep serving requests, close,
// or hand the endpoint off to an upgraded protocol.
type ConnectionDriver struct {
	cfg      *Config
	endpoint EndPoint
	handler  Handler

	parser    *Parser
	generator *Generator
	channel   *httpChannel
	bodyReader *requestBodyReader

	reqBuf    []byte
	reqFilled int
	chunkBuf  []byte

	// inFillable is true only for the extent of one onFillable call on
	// this connection, read by completed to decide tail-return (the
	// enclosing loop will re-enter the parser) vs. reschedule (a
	// write-completion or other foreign goroutine must hand control
	// back to the fill-interest/executor path explicitly).
	inFillable bool

	// requestReady is set by the channel's HeaderComplete callback: the
	// parser just reported a request ready for dispatch.
	requestReady bool

	// pendingConnectionHeader is the Connection header value (if any)
	// the channel decided the response must carry.
	pendingConnectionHeader string

	// badMessageStatus/Reason record a parser-reported malformed
	// request for the default error response dispatch builds.
	badMessageStatus int
	badMessageReason string

	closed bool
}

// NewConnectionDriver builds a driver over netConn, ready to serve
// requests to handler once OnOpen is called (normally once, from the
// accept loop, in a dedicated goroutine per connection).
func NewConnectionDriver(cfg *Config, exec *Executor, netConn net.Conn, handler Handler) *ConnectionDriver {
	c := &ConnectionDriver{cfg: cfg, handler: handler}

	c.generator = NewGenerator()
	c.generator.SetSendServerVersion(cfg.SendServerVersion)
	c.generator.SetServerVersion(cfg.ServerVersion)

	c.channel = newHTTPChannel(c)
	c.parser = NewParser(c.channel)
	c.parser.SetMaxHeaderBytes(cfg.MaxHeaderBytes)

	c.bodyReader = newRequestBodyReader(c)

	endpoint := newNetEndPoint(netConn, cfg, exec, c.onFillable)
	c.endpoint = endpoint
	c.endpoint.SetConnection(c)

	return c
}

// OnOpen satisfies Connection: it is called once when this driver
// becomes (or, after an upgrade elsewhere, becomes again) the
// endpoint's owner, and runs the first fill-parse-handle iteration.
func (c *ConnectionDriver) OnOpen() { c.onFillable() }

// onFillable is the fill-parse-handle loop: fill the request buffer,
// feed it to the parser, dispatch once a request is ready, and repeat
// until the parser can make no more progress without more bytes.
func (c *ConnectionDriver) onFillable() {
	if c.closed {
		return
	}
	c.inFillable = true
	defer func() {
		c.inFillable = false
		// A driver-invariant panic (bugPanic) ends this connection only.
		if r := recover(); r != nil {
			warnf("conduit: connection closed after panic: %v", r)
			c.Close()
		}
	}()

	for {
		var buf []byte
		if c.reqBuf != nil {
			buf = c.reqBuf[:c.reqFilled]
		}

		advanced, err := c.parser.ParseNext(buf)
		if err != nil {
			if c.parser.Touched() {
				warnf("conduit: parse error: %v", err)
			} else {
				debugf("conduit: idle parse error: %v", err)
			}
			c.dispatch()
			return
		}

		if c.requestReady {
			c.requestReady = false
			c.drainBufferedContent()
			c.dispatch()
			if c.closed || c.endpoint.Connection() != Connection(c) {
				return
			}
			continue
		}

		if advanced {
			continue
		}

		if c.reqBuf != nil && c.reqFilled > c.parser.Consumed() {
			// Buffer holds unconsumed bytes, the parser made no
			// progress on them, and no request was handed to the
			// channel: this is a defect in the driver, not the peer.
			c.Close()
			bugPanic("parser made no progress on a non-empty buffer")
			return
		}

		if !c.fillRequestBuffer() {
			return
		}
	}
}

// drainBufferedContent greedily parses any body bytes already sitting
// in the buffer once headers complete, so Expect:100-continue and
// available() decisions see the full picture before the handler runs.
func (c *ConnectionDriver) drainBufferedContent() {
	for c.parser.InContent() && c.reqBuf != nil && c.reqFilled > c.parser.Consumed() {
		advanced, err := c.parser.ParseNext(c.reqBuf[:c.reqFilled])
		if err != nil || !advanced {
			return
		}
	}
}

// dispatch builds the request/response pair, routes either to the
// handler or to the default bad-message response, and always runs
// completed() afterward.
func (c *ConnectionDriver) dispatch() {
	req := c.buildRequest()
	resp := newResponse(c, req.Method == "HEAD")

	if c.badMessageStatus != 0 {
		c.serveBadMessage(resp)
	} else {
		c.runHandler(resp, req)
	}

	c.completed(req, resp)
}

// sendContinue fires the interim "100 Continue" response. Called
// lazily from the request body reader the first time the handler
// actually tries to read a declared body, never eagerly from
// dispatch — a handler that answers without reading the body (e.g.
// rejecting it outright) must never have told the client to go ahead
// and send it.
func (c *ConnectionDriver) sendContinue() {
	if c.parser.Request.ExpectContinue && !c.channel.continueSent {
		c.channel.continueSent = true
		c.endpoint.Write(func(error) {}, []byte("HTTP/1.1 100 Continue\r\n\r\n"))
	}
}

func (c *ConnectionDriver) runHandler(resp *Response, req *Request) {
	defer func() {
		if r := recover(); r != nil {
			err := &handlerPanic{value: r}
			warnf("%v", err)
			c.generator.SetPersistent(false)
			if !resp.sent {
				resp.SetStatus(StatusInternalServerError)
				resp.WriteFinal(nil)
			} else if !resp.finished {
				resp.Finish()
			}
		}
	}()
	c.handler.ServeHTTP(resp, req)
	if !resp.finished {
		resp.Finish()
	}
}

func (c *ConnectionDriver) serveBadMessage(resp *Response) {
	resp.SetStatus(c.badMessageStatus)
	resp.Header().Set("Content-Type", "text/plain; charset=utf-8")
	resp.WriteFinal([]byte(c.badMessageReason))
}

// completed is the post-handling disposition: drain any unread body,
// hand off to an upgraded protocol, or reset for the next request and
// either resume inline or reschedule onto the executor.
func (c *ConnectionDriver) completed(req *Request, resp *Response) {
	owedContinue := c.parser.Request.ExpectContinue && !c.channel.continueSent
	if c.parser.InContent() && c.generator.IsPersistent() && !owedContinue {
		c.drainAllContent()
	}

	if resp.status == StatusSwitchingProtocols && req.Upgrade != nil {
		c.performUpgrade(req.Upgrade)
		return
	}

	c.reset()

	if c.inFillable {
		return
	}
	if c.parser.IsStart() {
		if c.reqBuf == nil {
			c.endpoint.ArmFillInterest()
		} else if err := c.endpoint.Executor().Submit(func() { c.onFillable() }); err != nil {
			warnf("conduit: %v", err)
			c.Close()
		}
	}
}

// drainAllContent consumes whatever request body the handler left
// unread, so the next request (if any) starts at a clean message
// boundary.
func (c *ConnectionDriver) drainAllContent() {
	for !c.parser.IsComplete() {
		var buf []byte
		if c.reqBuf != nil {
			buf = c.reqBuf[:c.reqFilled]
		}
		advanced, err := c.parser.ParseNext(buf)
		if err != nil {
			return
		}
		if advanced {
			continue
		}
		if !c.fillRequestBuffer() {
			return
		}
	}
	c.bodyReader.reset()
}

// performUpgrade hands the endpoint off to a new protocol connection.
func (c *ConnectionDriver) performUpgrade(newConn Connection) {
	c.releaseBuffers()
	c.endpoint.SetConnection(newConn)
	newConn.OnOpen()
}

// reset prepares the driver for the next request on a persistent
// connection, or for final teardown on a non-persistent one.
func (c *ConnectionDriver) reset() {
	consumed := c.parser.Consumed()
	owedContinue := c.parser.Request.ExpectContinue && !c.channel.continueSent
	persistent := c.generator.IsPersistent()

	switch {
	case owedContinue:
		c.parser.Reset()
		c.parser.Close()
	case persistent:
		c.parser.Reset()
	default:
		c.parser.Close()
	}
	c.generator.Reset()
	c.channel.reset()
	c.bodyReader.reset()

	if c.reqBuf != nil {
		if consumed > 0 {
			remaining := copy(c.reqBuf, c.reqBuf[consumed:c.reqFilled])
			c.reqFilled = remaining
		}
		if c.reqFilled == 0 {
			PutNK(c.reqBuf)
			c.reqBuf = nil
		}
	}
	if c.chunkBuf != nil {
		PutNK(c.chunkBuf)
		c.chunkBuf = nil
	}

	c.badMessageStatus = 0
	c.badMessageReason = ""
	c.pendingConnectionHeader = ""

	if owedContinue || !persistent {
		// Either the connection cannot be trusted to resume at a clean
		// message boundary (an unanswered 100-continue), or the channel
		// already decided not to persist: there is no further request to
		// serve, so close out now rather than leave the transport
		// half-open with nothing left to drive it.
		c.endpoint.ShutdownOutput()
		c.Close()
	}
}

// fillRequestBuffer acquires (or grows) the request buffer and
// performs one blocking fill: a single retry on a legitimate zero-byte
// read, then fill-interest re-arming if the transport still has
// nothing for us; an EOF or error shuts input down (and output too,
// unless already shut, in which case it closes).
func (c *ConnectionDriver) fillRequestBuffer() bool {
	if c.closed {
		return false
	}
	if c.reqBuf == nil {
		c.reqBuf = GetNK(int64(c.cfg.InputBufferSize))
		c.reqFilled = 0
	}
	if c.reqFilled == len(c.reqBuf) {
		grown := GetNK(int64(len(c.reqBuf)) * 2)
		copy(grown, c.reqBuf)
		PutNK(c.reqBuf)
		c.reqBuf = grown
	}

	n, err := c.endpoint.Fill(c.reqBuf[c.reqFilled:])
	if n < 0 || err != nil {
		c.onInputEOF()
		return false
	}
	if n == 0 {
		n2, err2 := c.endpoint.Fill(c.reqBuf[c.reqFilled:])
		if n2 < 0 || err2 != nil {
			c.onInputEOF()
			return false
		}
		if n2 == 0 {
			c.releaseReqBufIfEmpty()
			c.endpoint.ArmFillInterest()
			return false
		}
		c.reqFilled += n2
		return true
	}
	c.reqFilled += n
	return true
}

func (c *ConnectionDriver) onInputEOF() {
	c.parser.ShutdownInput()
	c.releaseReqBufIfEmpty()
	if c.endpoint.IsOutputShutdown() {
		c.Close()
	} else {
		c.endpoint.ShutdownOutput()
	}
}

func (c *ConnectionDriver) releaseReqBufIfEmpty() {
	if c.reqBuf != nil && c.reqFilled == c.parser.Consumed() {
		PutNK(c.reqBuf)
		c.reqBuf = nil
		c.reqFilled = 0
	}
}

func (c *ConnectionDriver) reqConsumed() int { return c.parser.Consumed() }

func (c *ConnectionDriver) releaseBuffers() {
	if c.reqBuf != nil {
		PutNK(c.reqBuf)
		c.reqBuf = nil
		c.reqFilled = 0
	}
	if c.chunkBuf != nil {
		PutNK(c.chunkBuf)
		c.chunkBuf = nil
	}
}

// Close tears the connection down unconditionally: releases any held
// buffers and closes the transport. Safe to call more than once.
func (c *ConnectionDriver) Close() {
	if c.closed {
		return
	}
	c.closed = true
	c.releaseBuffers()
	c.endpoint.Close()
}
