package conduit

// Pooled byte buffers for request/response/chunk framing. Buffers are
// drawn from a small number of fixed capacity classes so that a put
// always lands back in the pool it came from (cap(p) identifies the
// class), mirroring gorox's GetNK/PutNK scheme.

import "sync"

const (
	k = 1 << 10

	// Size classes. _4K covers the stock request line + header case;
	// _16K is the ceiling RFC 9112 implementations commonly allow for a
	// single header section; _64K1 backs large chunk/content framing
	// buffers and is one byte under 64K.
	size4K   = 4 * k
	size16K  = 16 * k
	size64K1 = 64*k - 1
)

var (
	pool4K   sync.Pool
	pool16K  sync.Pool
	pool64K1 sync.Pool
)

// Get4K acquires a pooled buffer of the smallest capacity class.
func Get4K() []byte { return getNK(&pool4K, size4K) }

// Get16K acquires a pooled buffer sized for a full header section.
func Get16K() []byte { return getNK(&pool16K, size16K) }

// Get64K1 acquires a pooled buffer sized for large chunk/content framing.
func Get64K1() []byte { return getNK(&pool64K1, size64K1) }

// GetNK acquires a pooled buffer whose capacity is n rounded up to the
// nearest size class. For n above the largest class (64K-1) it returns
// a buffer of that largest class, whose capacity is then less than n.
func GetNK(n int64) []byte {
	switch {
	case n <= size4K:
		return getNK(&pool4K, size4K)
	case n <= size16K:
		return getNK(&pool16K, size16K)
	default:
		return getNK(&pool64K1, size64K1)
	}
}

func getNK(pool *sync.Pool, size int) []byte {
	if x := pool.Get(); x != nil {
		return x.([]byte)
	}
	return make([]byte, size)
}

// PutNK releases a buffer previously returned by Get4K/Get16K/Get64K1/GetNK
// back to the matching pool. Buffers of any other capacity (e.g. the
// connection's stock buffer, or a caller-owned slice) are silently
// dropped rather than pooled.
func PutNK(p []byte) {
	switch cap(p) {
	case size4K:
		pool4K.Put(p)
	case size16K:
		pool16K.Put(p)
	case size64K1:
		pool64K1.Put(p)
	}
}
