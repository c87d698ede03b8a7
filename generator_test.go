package conduit

import (
	"strings"
	"testing"
)

func TestGeneratorFixedLengthResponse(t *testing.T) {
	g := NewGenerator()
	content := []byte("hello")
	info := &ResponseInfo{Status: StatusOK, Header: Header{}, ContentLength: int64(len(content))}

	result, _, _, err := g.GenerateResponse(info, nil, nil, content, true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != GenNeedHeader {
		t.Fatalf("expected GenNeedHeader before a header buffer is supplied, got %v", result)
	}

	headerBuf := make([]byte, 256)
	result, headerLen, chunkLen, err := g.GenerateResponse(info, headerBuf, nil, content, true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != GenFlush {
		t.Fatalf("expected GenFlush once the header is rendered, got %v", result)
	}
	if chunkLen != 0 {
		t.Fatalf("a fixed-length response should never need chunk framing, got chunkLen=%d", chunkLen)
	}
	header := string(headerBuf[:headerLen])
	if !strings.HasPrefix(header, "HTTP/1.1 200 OK\r\n") {
		t.Fatalf("unexpected status line in %q", header)
	}
	if !strings.Contains(header, "Content-Length: 5\r\n") {
		t.Fatalf("expected Content-Length: 5, got %q", header)
	}
	if strings.Contains(header, "Transfer-Encoding") {
		t.Fatalf("a fixed-length response must not announce chunked encoding: %q", header)
	}
	if strings.Contains(header, "Connection") {
		t.Fatalf("the generator must not invent a Connection header on its own: %q", header)
	}

	result, _, _, err = g.GenerateResponse(nil, headerBuf, nil, nil, true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != GenDone {
		t.Fatalf("expected GenDone once the terminal flush has been acknowledged, got %v", result)
	}
}

func TestGeneratorChunkedResponse(t *testing.T) {
	g := NewGenerator()
	info := &ResponseInfo{Status: StatusOK, Header: Header{}, ContentLength: -1}
	first := []byte("Wiki")

	result, _, _, _ := g.GenerateResponse(info, nil, nil, first, false)
	if result != GenNeedHeader {
		t.Fatalf("expected GenNeedHeader, got %v", result)
	}
	headerBuf := make([]byte, 256)
	result, headerLen, _, _ := g.GenerateResponse(info, headerBuf, nil, first, false)
	if result != GenNeedChunk {
		t.Fatalf("expected GenNeedChunk once an unsized body needs framing, got %v", result)
	}
	header := string(headerBuf[:headerLen])
	if !strings.Contains(header, "Transfer-Encoding: chunked\r\n") {
		t.Fatalf("expected chunked transfer-encoding announced, got %q", header)
	}
	if strings.Contains(header, "Content-Length") {
		t.Fatalf("a chunked response must not also carry Content-Length: %q", header)
	}

	chunkBuf := make([]byte, ChunkSize)
	result, _, chunkLen, _ := g.GenerateResponse(info, headerBuf, chunkBuf, first, false)
	if result != GenFlush {
		t.Fatalf("expected GenFlush for the first chunk, got %v", result)
	}
	if frame := string(chunkBuf[:chunkLen]); frame != "4\r\n" {
		t.Fatalf("expected a %q chunk-size prefix, got %q", "4\r\n", frame)
	}

	// Final, empty write: the terminating 0-length chunk plus trailer CRLF.
	result, _, chunkLen, _ = g.GenerateResponse(nil, headerBuf, chunkBuf, nil, true)
	if result != GenFlush {
		t.Fatalf("expected GenFlush for the terminal chunk, got %v", result)
	}
	frame := string(chunkBuf[:chunkLen])
	if !strings.HasPrefix(frame, "\r\n0\r\n\r\n") {
		t.Fatalf("expected the pending chunk-data CRLF followed by the zero chunk, got %q", frame)
	}
}

func TestGeneratorContentWriteWithoutCommitIsAnError(t *testing.T) {
	g := NewGenerator()
	_, _, _, err := g.GenerateResponse(nil, []byte{}, nil, nil, false)
	if err != ErrUnexpectedState {
		t.Fatalf("expected ErrUnexpectedState, got %v", err)
	}
}

func TestGeneratorNonPersistentTriggersShutdown(t *testing.T) {
	g := NewGenerator()
	g.SetPersistent(false)
	content := []byte("x")
	info := &ResponseInfo{Status: StatusOK, Header: Header{}, ContentLength: 1}

	g.GenerateResponse(info, nil, nil, content, true)
	headerBuf := make([]byte, 128)
	g.GenerateResponse(info, headerBuf, nil, content, true)

	result, _, _, _ := g.GenerateResponse(nil, headerBuf, nil, nil, true)
	if result != GenShutdownOut {
		t.Fatalf("expected GenShutdownOut after the final flush of a non-persistent response, got %v", result)
	}
	result, _, _, _ = g.GenerateResponse(nil, headerBuf, nil, nil, true)
	if result != GenDone {
		t.Fatalf("expected GenDone after the shutdown has been acknowledged, got %v", result)
	}
}

func TestGeneratorResetRestoresDefaults(t *testing.T) {
	g := NewGenerator()
	g.SetPersistent(false)
	g.Reset()
	if !g.IsPersistent() {
		t.Fatalf("expected Reset to restore the persistent-by-default state")
	}
}

func TestGeneratorServerVersionHeaderOptIn(t *testing.T) {
	g := NewGenerator()
	g.SetSendServerVersion(true)
	g.SetServerVersion("conduit-test")
	content := []byte("x")
	info := &ResponseInfo{Status: StatusOK, Header: Header{}, ContentLength: 1}

	g.GenerateResponse(info, nil, nil, content, true)
	headerBuf := make([]byte, 128)
	_, headerLen, _, _ := g.GenerateResponse(info, headerBuf, nil, content, true)
	if !strings.Contains(string(headerBuf[:headerLen]), "Server: conduit-test\r\n") {
		t.Fatalf("expected the opted-in Server header, got %q", string(headerBuf[:headerLen]))
	}
}
