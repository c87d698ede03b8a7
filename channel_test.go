package conduit

import (
	"bufio"
	"io"
	"testing"
)

// TestExpectContinueSentOnce proves the single-send guard on
// continueSent: io.ReadAll reads the body more than once, so the body
// reader asks for the interim continue on every read, and the handler's
// final response passes through send()'s Expect:100-continue check too,
// yet only one "100 Continue" line is ever written.
func TestExpectContinueSentOnce(t *testing.T) {
	handler := HandlerFunc(func(resp *Response, req *Request) {
		// Reads the declared body, then answers.
		io.ReadAll(req.Body)
		resp.SetContentLength(0)
		resp.WriteFinal(nil)
	})
	client := dialDriver(t, handler)

	req := "POST /x HTTP/1.1\r\nHost: x\r\nContent-Length: 5\r\nExpect: 100-continue\r\n\r\n"
	if _, err := client.Write([]byte(req)); err != nil {
		t.Fatalf("write request: %v", err)
	}

	r := bufio.NewReader(client)
	statusLine, err := r.ReadString('\n')
	if err != nil || statusLine != "HTTP/1.1 100 Continue\r\n" {
		t.Fatalf("expected the interim continue line, got %q, err %v", statusLine, err)
	}
	blank, err := r.ReadString('\n')
	if err != nil || blank != "\r\n" {
		t.Fatalf("expected the interim response's blank line, got %q, err %v", blank, err)
	}

	if _, err := client.Write([]byte("hello")); err != nil {
		t.Fatalf("write request body: %v", err)
	}

	// If continueSent had not guarded the later body reads, this would
	// read a second "100 Continue" line instead of the handler's real
	// 200 response.
	resp := readResponse(t, r)
	io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != 200 {
		t.Fatalf("expected the final response to be 200 (continue sent only once), got %d", resp.StatusCode)
	}
}
