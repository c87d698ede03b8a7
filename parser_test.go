package conduit

import (
	"strings"
	"testing"
)

type recordingCallbacks struct {
	headerCompleted int
	content         []byte
	messageComplete int
	badStatus       int
	badReason       string
}

func (r *recordingCallbacks) HeaderComplete()         { r.headerCompleted++ }
func (r *recordingCallbacks) Content(chunk []byte)     { r.content = append(r.content, chunk...) }
func (r *recordingCallbacks) MessageComplete()         { r.messageComplete++ }
func (r *recordingCallbacks) BadMessage(status int, reason string) {
	r.badStatus = status
	r.badReason = reason
}

func TestParserSimpleRequestInOneFill(t *testing.T) {
	cb := &recordingCallbacks{}
	p := NewParser(cb)
	raw := []byte("GET /foo?x=1 HTTP/1.1\r\nHost: x\r\nConnection: close\r\n\r\n")

	advanced, err := p.ParseNext(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !advanced {
		t.Fatalf("expected progress")
	}
	if !p.IsComplete() {
		t.Fatalf("expected message complete")
	}
	if cb.headerCompleted != 1 || cb.messageComplete != 1 {
		t.Fatalf("expected exactly one header_complete and message_complete, got %d/%d", cb.headerCompleted, cb.messageComplete)
	}
	if p.Request.Method != "GET" || p.Request.Path != "/foo" || p.Request.Query != "x=1" {
		t.Fatalf("unexpected request line parse: %+v", p.Request)
	}
	if got := p.Request.Header.Get("host"); got != "x" {
		t.Fatalf("expected Host header, got %q", got)
	}
}

// TestParserByteAtATime feeds the request one byte at a time to prove
// the parser makes progress regardless of how the bytes are split
// across fills.
func TestParserByteAtATime(t *testing.T) {
	cb := &recordingCallbacks{}
	p := NewParser(cb)
	raw := []byte("POST /x HTTP/1.1\r\nHost: x\r\nContent-Length: 5\r\n\r\nhello")

	for n := 1; n <= len(raw); n++ {
		if _, err := p.ParseNext(raw[:n]); err != nil {
			t.Fatalf("unexpected error at n=%d: %v", n, err)
		}
	}
	if !p.IsComplete() {
		t.Fatalf("expected message complete after all bytes delivered")
	}
	if cb.headerCompleted != 1 {
		t.Fatalf("expected exactly one header_complete, got %d", cb.headerCompleted)
	}
	if string(cb.content) != "hello" {
		t.Fatalf("expected body %q, got %q", "hello", cb.content)
	}
}

func TestParserChunkedBody(t *testing.T) {
	cb := &recordingCallbacks{}
	p := NewParser(cb)
	raw := []byte("POST /x HTTP/1.1\r\nTransfer-Encoding: chunked\r\n\r\n4\r\nWiki\r\n5\r\npedia\r\n0\r\n\r\n")

	// ParseNext returns after header_complete; keep calling it, as the
	// driver does, while it reports progress.
	for !p.IsComplete() {
		advanced, err := p.ParseNext(raw)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !advanced {
			break
		}
	}
	if !p.IsComplete() {
		t.Fatalf("expected message complete")
	}
	if string(cb.content) != "Wikipedia" {
		t.Fatalf("expected dechunked body %q, got %q", "Wikipedia", cb.content)
	}
}

func TestParserMalformedRequestLine(t *testing.T) {
	cb := &recordingCallbacks{}
	p := NewParser(cb)
	_, err := p.ParseNext([]byte("GARBAGE\r\n\r\n"))
	if err == nil {
		t.Fatalf("expected an error for a malformed request line")
	}
	if cb.badStatus != StatusBadRequest {
		t.Fatalf("expected BadMessage(400, ...), got status %d", cb.badStatus)
	}
}

func TestParserHTTP09HasNoHeaders(t *testing.T) {
	cb := &recordingCallbacks{}
	p := NewParser(cb)
	advanced, err := p.ParseNext([]byte("GET /old\r\n"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !advanced || !p.IsComplete() {
		t.Fatalf("expected an immediately complete HTTP/0.9 request")
	}
	if p.Request.Major != 0 || p.Request.Minor != 9 {
		t.Fatalf("expected version 0.9, got %d.%d", p.Request.Major, p.Request.Minor)
	}
}

func TestParserExpectContinueDetected(t *testing.T) {
	cb := &recordingCallbacks{}
	p := NewParser(cb)
	raw := []byte("POST /x HTTP/1.1\r\nExpect: 100-continue\r\nContent-Length: 10\r\n\r\n")
	if _, err := p.ParseNext(raw); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !p.Request.ExpectContinue {
		t.Fatalf("expected ExpectContinue to be detected")
	}
	if p.IsComplete() {
		t.Fatalf("message should still be awaiting its 10-byte body")
	}
}

func TestParserResetAllowsPipelinedReuse(t *testing.T) {
	cb := &recordingCallbacks{}
	p := NewParser(cb)
	first := "GET /a HTTP/1.1\r\nHost: x\r\n\r\n"
	second := "GET /b HTTP/1.1\r\nHost: x\r\n\r\n"
	buf := []byte(first + second)

	if _, err := p.ParseNext(buf); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !p.IsComplete() {
		t.Fatalf("expected first request complete")
	}
	consumed := p.Consumed()
	if consumed != len(first) {
		t.Fatalf("expected to consume exactly %d bytes, consumed %d", len(first), consumed)
	}

	p.Reset()
	rest := buf[consumed:]
	if _, err := p.ParseNext(rest); err != nil {
		t.Fatalf("unexpected error on second request: %v", err)
	}
	if p.Request.Path != "/b" {
		t.Fatalf("expected second request's path /b, got %q", p.Request.Path)
	}
}

// TestParserHeaderTooLong feeds, in one call, a header line that never
// reaches its terminating CRLF within the configured budget, simulating
// an attacker sending an oversized header.
func TestParserHeaderTooLong(t *testing.T) {
	cb := &recordingCallbacks{}
	p := NewParser(cb)
	p.SetMaxHeaderBytes(64)
	// Deliberately omit the line's trailing CRLF so the parser keeps
	// waiting for more bytes instead of accepting the line as-is.
	long := "GET / HTTP/1.1\r\nX-Long: " + strings.Repeat("a", 200)
	_, err := p.ParseNext([]byte(long))
	if err == nil {
		t.Fatalf("expected a too-large header error")
	}
	if cb.badStatus != StatusRequestHeaderFieldsTooLarge {
		t.Fatalf("expected 431, got %d", cb.badStatus)
	}
}
