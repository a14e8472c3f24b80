package page

// BucketPage is a fixed-offset view over a Page's raw bytes holding up to
// BucketArraySize key/value slots plus two parallel bitmaps:
//
//	occupied[i] — slot i has ever held a live entry (tombstone-preserving)
//	readable[i] — slot i currently holds a live entry
//
// readable[i] implies occupied[i]. A linear scan of occupied stops at the
// first unset bit, so occupied always forms a prefix — Insert either
// reuses a tombstoned slot inside the prefix or sets the occupied bit at
// the current frontier, and Remove only clears readable, never occupied.
//
// Bitmap addressing is little-bit-endian within each byte: slot i lives in
// bit i%8 of byte i/8, matching the wire format other extendible-hash
// bucket pages in the wild use.
type BucketPage struct {
	Data      []byte
	KeyWidth  int
	ArraySize int
}

// ValueSize is the encoded width of a RID value slot.
const ValueSize = RIDSize

// ComputeBucketArraySize returns the largest slot count whose bitmaps plus
// flat key/value array fit in one PageSize buffer, for keys of the given
// encoded width.
func ComputeBucketArraySize(keyWidth int) int {
	pairSize := keyWidth + ValueSize
	n := 0
	for {
		bitmapBytes := (n + 1 + 7) / 8
		total := 2*bitmapBytes + (n+1)*pairSize
		if total > PageSize {
			break
		}
		n++
	}
	return n
}

func NewBucketPage(p *Page, keyWidth int) *BucketPage {
	return &BucketPage{
		Data:      p.Data[:],
		KeyWidth:  keyWidth,
		ArraySize: ComputeBucketArraySize(keyWidth),
	}
}

func (b *BucketPage) bitmapBytes() int {
	return (b.ArraySize + 7) / 8
}

func (b *BucketPage) occupiedOffset() int { return 0 }
func (b *BucketPage) readableOffset() int { return b.bitmapBytes() }
func (b *BucketPage) arrayOffset() int     { return 2 * b.bitmapBytes() }

func (b *BucketPage) pairOffset(i int) int {
	return b.arrayOffset() + i*(b.KeyWidth+ValueSize)
}

func (b *BucketPage) testBit(base, i int) bool {
	return b.Data[base+i/8]&(1<<uint(i%8)) != 0
}

func (b *BucketPage) setBit(base, i int) {
	b.Data[base+i/8] |= 1 << uint(i%8)
}

func (b *BucketPage) clearBit(base, i int) {
	b.Data[base+i/8] &^= 1 << uint(i%8)
}

func (b *BucketPage) IsOccupied(i int) bool { return b.testBit(b.occupiedOffset(), i) }
func (b *BucketPage) IsReadable(i int) bool { return b.testBit(b.readableOffset(), i) }

func (b *BucketPage) KeyAt(i int) []byte {
	off := b.pairOffset(i)
	return b.Data[off : off+b.KeyWidth]
}

func (b *BucketPage) ValueAt(i int) RID {
	off := b.pairOffset(i) + b.KeyWidth
	return DecodeRID(b.Data[off : off+ValueSize])
}

func (b *BucketPage) setSlot(i int, key []byte, rid RID) {
	off := b.pairOffset(i)
	copy(b.Data[off:off+b.KeyWidth], key)
	rid.Encode(b.Data[off+b.KeyWidth : off+b.KeyWidth+ValueSize])
}

// numOccupied scans only up to the first unset occupied bit, exploiting
// the occupied-prefix invariant.
func (b *BucketPage) numOccupied() int {
	n := 0
	for n < b.ArraySize && b.IsOccupied(n) {
		n++
	}
	return n
}

// NumReadable counts live entries, scanning only the occupied prefix.
func (b *BucketPage) NumReadable() int {
	count := 0
	occ := b.numOccupied()
	for i := 0; i < occ; i++ {
		if b.IsReadable(i) {
			count++
		}
	}
	return count
}

func (b *BucketPage) IsFull() bool  { return b.NumReadable() >= b.ArraySize }
func (b *BucketPage) IsEmpty() bool { return b.NumReadable() == 0 }

type keyEq func(a, b []byte) bool

// Insert writes (key, value) into the first non-readable slot, reusing a
// tombstoned slot if one exists before the occupied frontier. Returns
// false if (key, value) is an exact duplicate or the bucket is full.
func (b *BucketPage) Insert(key []byte, value RID, eq keyEq) bool {
	occ := b.numOccupied()
	firstFree := -1
	for i := 0; i < occ; i++ {
		if b.IsReadable(i) {
			if eq(b.KeyAt(i), key) && b.ValueAt(i) == value {
				return false
			}
		} else if firstFree == -1 {
			firstFree = i
		}
	}

	if firstFree != -1 {
		b.setSlot(firstFree, key, value)
		b.setBit(b.readableOffset(), firstFree)
		return true
	}

	if occ >= b.ArraySize {
		return false
	}

	b.setSlot(occ, key, value)
	b.setBit(b.occupiedOffset(), occ)
	b.setBit(b.readableOffset(), occ)
	return true
}

// Remove clears the readable bit of the first matching (key, value) slot,
// leaving the occupied bit (tombstone). Returns whether a removal occurred.
func (b *BucketPage) Remove(key []byte, value RID, eq keyEq) bool {
	occ := b.numOccupied()
	for i := 0; i < occ; i++ {
		if b.IsReadable(i) && eq(b.KeyAt(i), key) && b.ValueAt(i) == value {
			b.clearBit(b.readableOffset(), i)
			return true
		}
	}
	return false
}

// GetValue appends every readable value whose key compares equal to key.
func (b *BucketPage) GetValue(key []byte, eq keyEq, out []RID) []RID {
	occ := b.numOccupied()
	for i := 0; i < occ; i++ {
		if b.IsReadable(i) && eq(b.KeyAt(i), key) {
			out = append(out, b.ValueAt(i))
		}
	}
	return out
}

// BucketEntry is a live (key, value) pair read out of a bucket page, with
// its own copy of the key bytes (the backing page may be reused or
// overwritten once the entry is lifted out).
type BucketEntry struct {
	Key   []byte
	Value RID
}

// AllEntries returns every live entry, for redistribution during a split
// or merge.
func (b *BucketPage) AllEntries() []BucketEntry {
	occ := b.numOccupied()
	entries := make([]BucketEntry, 0, occ)
	for i := 0; i < occ; i++ {
		if !b.IsReadable(i) {
			continue
		}
		key := make([]byte, b.KeyWidth)
		copy(key, b.KeyAt(i))
		entries = append(entries, BucketEntry{Key: key, Value: b.ValueAt(i)})
	}
	return entries
}
