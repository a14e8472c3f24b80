package page

import (
	"bytes"
	"testing"
)

func int64Key(v int64) []byte {
	buf := make([]byte, 8)
	for i := 0; i < 8; i++ {
		buf[i] = byte(v >> (8 * i))
	}
	return buf
}

func eqBytes(a, b []byte) bool { return bytes.Equal(a, b) }

func TestBucketPageInsertGetRemove(t *testing.T) {
	p := &Page{}
	b := NewBucketPage(p, 8)

	if !b.Insert(int64Key(1), RID{PageID: 1, Slot: 0}, eqBytes) {
		t.Fatal("expected insert to succeed")
	}
	if !b.Insert(int64Key(2), RID{PageID: 1, Slot: 1}, eqBytes) {
		t.Fatal("expected insert to succeed")
	}
	// exact duplicate rejected
	if b.Insert(int64Key(1), RID{PageID: 1, Slot: 0}, eqBytes) {
		t.Fatal("expected duplicate insert to fail")
	}

	out := b.GetValue(int64Key(1), eqBytes, nil)
	if len(out) != 1 || out[0] != (RID{PageID: 1, Slot: 0}) {
		t.Fatalf("unexpected get result: %+v", out)
	}

	if !b.Remove(int64Key(1), RID{PageID: 1, Slot: 0}, eqBytes) {
		t.Fatal("expected remove to succeed")
	}
	if b.Remove(int64Key(1), RID{PageID: 1, Slot: 0}, eqBytes) {
		t.Fatal("expected second remove to fail (already removed)")
	}

	out = b.GetValue(int64Key(1), eqBytes, nil)
	if len(out) != 0 {
		t.Fatalf("expected no results after remove, got %+v", out)
	}

	// slot 0 is now a tombstone: occupied but not readable. A fresh
	// insert should reuse it rather than growing past the prefix.
	if !b.Insert(int64Key(3), RID{PageID: 2, Slot: 0}, eqBytes) {
		t.Fatal("expected insert to reuse tombstoned slot")
	}
	if b.numOccupied() != 2 {
		t.Fatalf("expected occupied prefix of 2 after tombstone reuse, got %d", b.numOccupied())
	}
}

func TestBucketPageOccupiedPrefixInvariant(t *testing.T) {
	p := &Page{}
	b := NewBucketPage(p, 8)

	for i := int64(0); i < 5; i++ {
		b.Insert(int64Key(i), RID{PageID: PageID(i)}, eqBytes)
	}
	b.Remove(int64Key(2), RID{PageID: 2}, eqBytes)

	occ := b.numOccupied()
	for i := occ; i < b.ArraySize; i++ {
		if b.IsReadable(i) {
			t.Fatalf("slot %d readable past occupied prefix %d", i, occ)
		}
	}
}

func TestBucketPageFullness(t *testing.T) {
	p := &Page{}
	b := NewBucketPage(p, 8)

	for i := 0; i < b.ArraySize; i++ {
		if !b.Insert(int64Key(int64(i)), RID{PageID: PageID(i)}, eqBytes) {
			t.Fatalf("insert %d should have succeeded, bucket reports full early", i)
		}
	}
	if !b.IsFull() {
		t.Fatal("expected bucket to report full")
	}
	if b.Insert(int64Key(int64(b.ArraySize)), RID{PageID: 999}, eqBytes) {
		t.Fatal("expected insert into full bucket to fail")
	}
}

func TestComputeBucketArraySizeFitsPage(t *testing.T) {
	for _, width := range []int{4, 8, 16, 32, 64} {
		n := ComputeBucketArraySize(width)
		bitmapBytes := (n + 7) / 8
		total := 2*bitmapBytes + n*(width+ValueSize)
		if total > PageSize {
			t.Fatalf("keyWidth=%d: computed array size %d overflows page (%d bytes)", width, n, total)
		}
		// one more slot must not fit, else the computation under-counts.
		bitmapBytesNext := (n + 1 + 7) / 8
		totalNext := 2*bitmapBytesNext + (n+1)*(width+ValueSize)
		if totalNext <= PageSize {
			t.Fatalf("keyWidth=%d: array size %d is not maximal, %d still fits", width, n, n+1)
		}
	}
}
