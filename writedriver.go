package conduit

// writeFlow: the iterating write-flow state machine, realized as a
// value type with an explicit step method that re-enters itself on
// each write completion instead of recursing through nested callbacks.
// The vector it assembles (header, chunk framing, content) follows the
// shape the generator contract already implies.

// writeFlow drives one send call (CommitWrite when info is non-nil,
// ContentWrite otherwise) to completion, composing with the endpoint's
// asynchronous Write and the connection's pooled header/chunk buffers.
type writeFlow struct {
	conn       *ConnectionDriver
	info       *ResponseInfo
	contentBuf []byte
	last       bool
	isHead     bool

	headerBuf            []byte
	headerAliasesContent bool

	done func(error)
}

// step performs synchronous work (acquiring buffers, looping while the
// generator reports CONTINUE) until it must hand a write off to the
// endpoint, at which point it returns and waits to be re-entered by the
// write's completion callback.
func (f *writeFlow) step() {
	c := f.conn
	renderedHeader := 0 // header bytes reported alongside GenNeedChunk
	for {
		result, headerLen, chunkLen, err := c.generator.GenerateResponse(f.info, f.headerBuf, c.chunkBuf, f.contentBuf, f.last)
		if err != nil {
			f.finish(err)
			return
		}
		switch result {
		case GenNeedHeader:
			f.acquireHeaderBuf()

		case GenNeedChunk:
			renderedHeader = headerLen
			if c.chunkBuf == nil {
				c.chunkBuf = GetNK(ChunkSize)
			}

		case GenFlush:
			if headerLen == 0 {
				headerLen = renderedHeader
			}
			var bufs [][]byte
			if headerLen > 0 {
				bufs = append(bufs, f.headerBuf[:headerLen])
			}
			if !f.isHead {
				if chunkLen > 0 {
					bufs = append(bufs, c.chunkBuf[:chunkLen])
				}
				if len(f.contentBuf) > 0 {
					bufs = append(bufs, f.contentBuf)
				}
			}
			c.endpoint.Write(func(werr error) {
				if werr != nil {
					f.finish(werr)
					return
				}
				if !f.last {
					// A non-final write is complete once its one flush is.
					f.releaseHeaderBuf()
					f.finish(nil)
					return
				}
				f.info = nil
				f.contentBuf = nil
				f.step()
			}, bufs...)
			return

		case GenShutdownOut:
			c.endpoint.ShutdownOutput()

		case GenDone:
			f.releaseHeaderBuf()
			f.finish(nil)
			return

		case GenContinue:
			// generator made internal progress without producing bytes; loop.
		}
	}
}

// acquireHeaderBuf handles a GenNeedHeader result: alias a window into
// the tail of the content buffer when this is the final write and
// there is enough spare capacity to hold a header section; otherwise
// borrow a pooled buffer.
func (f *writeFlow) acquireHeaderBuf() {
	if f.last && len(f.contentBuf) > 0 {
		spare := cap(f.contentBuf) - len(f.contentBuf)
		if spare >= size4K {
			start := len(f.contentBuf)
			f.headerBuf = f.contentBuf[start : start+spare : cap(f.contentBuf)]
			f.headerAliasesContent = true
			return
		}
	}
	f.headerBuf = Get16K()
	f.headerAliasesContent = false
}

// releaseHeaderBuf returns the header buffer to the pool unless it
// aliases the caller-owned content buffer — aliased storage belongs to
// whoever supplied the content buffer, not to the write flow.
func (f *writeFlow) releaseHeaderBuf() {
	if f.headerBuf != nil && !f.headerAliasesContent {
		PutNK(f.headerBuf)
	}
	f.headerBuf = nil
}

func (f *writeFlow) finish(err error) {
	if f.done != nil {
		f.done(err)
	}
}

// send runs one write flow to completion and blocks the calling
// goroutine until it does, using a one-shot channel as the completion
// signal.
func (c *ConnectionDriver) send(info *ResponseInfo, content []byte, last bool, isHead bool) error {
	if info != nil && c.parser.Request.ExpectContinue && !c.channel.continueSent {
		// The handler is answering before the channel told the client
		// whether to send the body; we cannot safely consume whatever
		// body the client sends anyway, so this response is the
		// connection's last.
		c.generator.SetPersistent(false)
		c.pendingConnectionHeader = "close"
		c.channel.continueSent = true
	}
	if info != nil {
		info.Header = c.finalizeResponseHeader(info.Header)
	}

	result := make(chan error, 1)
	f := &writeFlow{conn: c, info: info, contentBuf: content, last: last, isHead: isHead, done: func(err error) {
		result <- err
	}}
	f.step()
	return <-result
}

// finalizeResponseHeader fills in the Connection header the channel
// decided was needed, if the handler has not already set one itself.
func (c *ConnectionDriver) finalizeResponseHeader(h Header) Header {
	if h == nil {
		h = make(Header, 4)
	}
	if c.pendingConnectionHeader != "" && !h.Has("connection") {
		h.Set("Connection", c.pendingConnectionHeader)
	}
	return h
}
