package conduit

// Minimal leveled logging: a package-level debug level gate plus
// stdlib-log-backed print helpers. No third-party logging library is
// pulled in here — see DESIGN.md for why.

import (
	"log"
	"os"
	"sync/atomic"
)

var debugLevel atomic.Int32

// SetDebugLevel controls how chatty the driver is. Below 2 only
// warnings are logged; at 2 or above, debug messages (such as a parse
// error on an idle connection) are logged as well.
func SetDebugLevel(level int32) { debugLevel.Store(level) }

// DebugLevel reports the current debug level.
func DebugLevel() int32 { return debugLevel.Load() }

var stdlog = log.New(os.Stderr, "", log.LstdFlags)

func debugf(format string, args ...any) {
	if DebugLevel() >= 2 {
		stdlog.Printf(format, args...)
	}
}

func warnf(format string, args ...any) {
	stdlog.Printf("[WARN] "+format, args...)
}

// bugPanic reports a violated invariant and panics. Reaching this
// indicates a defect in the driver itself, not a malformed request
// from a peer; ConnectionDriver.onFillable recovers the panic and closes
// that one connection rather than letting it end the whole process.
func bugPanic(msg string) {
	stdlog.Println("[BUG]", msg)
	panic(msg)
}
