// Command conduitd is a minimal demo server exercising every operation
// of the connection driver end to end: it accepts TCP connections,
// drives one ConnectionDriver per connection on its own goroutine, and
// dispatches to a small example Handler.
package main

import (
	"fmt"
	"log"
	"net"
	"os"

	"github.com/luobenyu/conduit"
)

func main() {
	addr := "127.0.0.1:8080"
	if len(os.Args) > 1 {
		addr = os.Args[1]
	}

	conduit.SetDebugLevel(1)

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		log.Fatalf("conduitd: listen %s: %v", addr, err)
	}
	defer ln.Close()
	log.Printf("conduitd: listening on %s", addr)

	cfg := conduit.DefaultConfig()
	exec := conduit.NewExecutor(cfg.ExecutorWorkers, cfg.ExecutorQueue)
	handler := conduit.HandlerFunc(echoHandler)

	for {
		netConn, err := ln.Accept()
		if err != nil {
			log.Printf("conduitd: accept: %v", err)
			continue
		}
		conn := conduit.NewConnectionDriver(&cfg, exec, netConn, handler)
		go conn.OnOpen()
	}
}

// echoHandler answers every request with a small greeting that echoes
// the request's method and path, demonstrating the common "full body
// known up front" response shape the literal scenarios exercise.
func echoHandler(resp *conduit.Response, req *conduit.Request) {
	body := fmt.Sprintf("hello, %s %s\n", req.Method, req.Path)
	resp.Header().Set("Content-Type", "text/plain; charset=utf-8")
	resp.SetContentLength(int64(len(body)))
	if err := resp.WriteFinal([]byte(body)); err != nil {
		log.Printf("conduitd: write: %v", err)
	}
}
