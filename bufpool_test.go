package conduit

import "testing"

func TestGetNKRoundsUpToSizeClass(t *testing.T) {
	cases := []struct {
		n        int64
		wantSize int
	}{
		{1, size4K},
		{size4K, size4K},
		{size4K + 1, size16K},
		{size16K, size16K},
		{size16K + 1, size64K1},
		{size64K1, size64K1},
	}
	for _, c := range cases {
		buf := GetNK(c.n)
		if cap(buf) != c.wantSize {
			t.Errorf("GetNK(%d): expected capacity %d, got %d", c.n, c.wantSize, cap(buf))
		}
		PutNK(buf)
	}
}

func TestPutNKRoundTripsThroughThePool(t *testing.T) {
	buf := Get4K()
	buf = buf[:4]
	copy(buf, []byte{1, 2, 3, 4})
	PutNK(buf)

	again := Get4K()
	if cap(again) != size4K {
		t.Fatalf("expected a reused buffer from the 4K class, got capacity %d", cap(again))
	}
}

// TestPutNKDropsUnrecognizedCapacity exercises the silent-drop branch: a
// slice whose capacity matches none of the size classes must not panic
// and must not corrupt any pool.
func TestPutNKDropsUnrecognizedCapacity(t *testing.T) {
	odd := make([]byte, 100)
	PutNK(odd) // must not panic

	buf := GetNK(size4K)
	if cap(buf) != size4K {
		t.Fatalf("pool state corrupted after dropping an odd-sized buffer")
	}
	PutNK(buf)
}

func TestGet16KAndGet64K1Sizes(t *testing.T) {
	b16 := Get16K()
	if cap(b16) != size16K {
		t.Fatalf("expected Get16K to return capacity %d, got %d", size16K, cap(b16))
	}
	PutNK(b16)

	b64 := Get64K1()
	if cap(b64) != size64K1 {
		t.Fatalf("expected Get64K1 to return capacity %d, got %d", size64K1, cap(b64))
	}
	PutNK(b64)
}
