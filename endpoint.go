package conduit

// The transport endpoint adapter: a net.Conn wrapped to satisfy the
// EndPoint contract a ConnectionDriver is built over (fill, write,
// shutdown/close, fill-interest, the associated executor), generalized
// from a TCP/UDS/TLS type-switch over exactly those three net.Conn
// kinds.

import (
	"net"
	"time"
)

func deadlineFrom(d time.Duration) time.Time { return time.Now().Add(d) }

// Connection is whatever a successful protocol upgrade installs in
// place of a ConnectionDriver. The endpoint forgets about the
// connection driver once on_open has been called on the new owner.
type Connection interface {
	OnOpen()
}

// EndPoint is the transport contract a ConnectionDriver is built over.
type EndPoint interface {
	Fill(buf []byte) (int, error)
	Write(done func(error), bufs ...[]byte)
	IsInputShutdown() bool
	IsOutputShutdown() bool
	ShutdownOutput()
	Close()
	SetConnection(c Connection)
	Connection() Connection
	// ArmFillInterest registers interest in the next readability event;
	// on_fillable is invoked (via the callback the caller supplied at
	// construction) once more data arrives or the connection closes.
	ArmFillInterest()
	Executor() *Executor
}

// netEndPoint wraps a net.Conn (TCP, Unix domain socket, or a *tls.Conn
// layered over either). ArmFillInterest spins up a goroutine that does
// a blocking Read in place of a selector-reported readiness event.
type netEndPoint struct {
	netConn net.Conn
	cfg     *Config
	exec    *Executor

	onFillable func() // re-invoked once fillInterest's read unblocks

	inputShut  bool
	outputShut bool
	closed     bool

	conn Connection
}

// newNetEndPoint wraps netConn. onFillable is called by the reader
// goroutine each time ArmFillInterest's wait completes.
func newNetEndPoint(netConn net.Conn, cfg *Config, exec *Executor, onFillable func()) *netEndPoint {
	return &netEndPoint{netConn: netConn, cfg: cfg, exec: exec, onFillable: onFillable}
}

func (e *netEndPoint) Fill(buf []byte) (int, error) {
	if e.closed {
		return -1, ErrClosed
	}
	if e.cfg.ReadTimeout > 0 {
		e.netConn.SetReadDeadline(deadlineFrom(e.cfg.ReadTimeout))
	}
	n, err := e.netConn.Read(buf)
	if err != nil {
		if n > 0 {
			return n, nil
		}
		return -1, err
	}
	return n, nil
}

// Write issues one scatter write across bufs, skipping empty elements,
// then reports the outcome through done. Go's net.Buffers.WriteTo loops
// internally until every byte is written or an error occurs, so there
// is no partial-write case to resume later; the completion is instead
// run on the executor so a caller can tell a same-goroutine return from
// a foreign-goroutine callback (see ConnectionDriver.completed).
func (e *netEndPoint) Write(done func(error), bufs ...[]byte) {
	if e.closed {
		done(ErrClosed)
		return
	}
	var vec net.Buffers
	for _, b := range bufs {
		if len(b) > 0 {
			vec = append(vec, b)
		}
	}
	if e.cfg.WriteTimeout > 0 {
		e.netConn.SetWriteDeadline(deadlineFrom(e.cfg.WriteTimeout))
	}
	_, err := vec.WriteTo(e.netConn)
	if submitErr := e.exec.Submit(func() { done(err) }); submitErr != nil {
		// Queue full: run inline rather than drop the completion.
		done(err)
	}
}

func (e *netEndPoint) IsInputShutdown() bool  { return e.inputShut }
func (e *netEndPoint) IsOutputShutdown() bool { return e.outputShut }

// ShutdownOutput performs the staged half-close RFC 9112 §9.6 describes:
// close only the write side so the peer can still read a trailing
// response, and rely on the caller to eventually Close after a grace
// period or upon reading EOF.
func (e *netEndPoint) ShutdownOutput() {
	if e.outputShut {
		return
	}
	e.outputShut = true
	switch c := e.netConn.(type) {
	case *net.UnixConn:
		c.CloseWrite()
	case *net.TCPConn:
		c.CloseWrite()
	default:
		if cw, ok := c.(interface{ CloseWrite() error }); ok {
			cw.CloseWrite()
		}
	}
}

func (e *netEndPoint) Close() {
	if e.closed {
		return
	}
	e.closed = true
	e.inputShut = true
	e.outputShut = true
	e.netConn.Close()
}

func (e *netEndPoint) SetConnection(c Connection) { e.conn = c }
func (e *netEndPoint) Connection() Connection      { return e.conn }

func (e *netEndPoint) Executor() *Executor { return e.exec }

// ArmFillInterest starts (or restarts) the reader goroutine: one
// blocking attempt to observe readability, realized as a zero-byte
// peek via a one-byte non-consuming read is not available on net.Conn,
// so instead the goroutine waits on the actual Fill the driver will
// perform next — it simply calls back into on_fillable, which will
// itself call Fill and get real bytes or the EOF/error it needs.
func (e *netEndPoint) ArmFillInterest() {
	if e.closed {
		return
	}
	go func() {
		if e.onFillable != nil {
			e.onFillable()
		}
	}()
}
