package index

import "encoding/binary"

// KeyCodec encodes a key type to its fixed-width canonical byte form, the
// representation the hash index hashes and stores in bucket pages. Every
// instantiation of ExtendibleHashIndex is parameterized by exactly one
// KeyCodec, so a page's BUCKET_ARRAY_SIZE can be computed once from
// Width() and never needs to special-case variable-length keys.
type KeyCodec[K comparable] interface {
	Width() int
	Encode(k K, buf []byte)
	Decode(buf []byte) K
}

// Int64Codec encodes a signed 64-bit integer key, little-endian.
type Int64Codec struct{}

func (Int64Codec) Width() int { return 8 }

func (Int64Codec) Encode(k int64, buf []byte) {
	binary.LittleEndian.PutUint64(buf, uint64(k))
}

func (Int64Codec) Decode(buf []byte) int64 {
	return int64(binary.LittleEndian.Uint64(buf))
}

// Bytes4Codec, Bytes8Codec, Bytes16Codec, Bytes32Codec, Bytes64Codec cover
// the fixed-width opaque key instantiation set: raw byte arrays copied
// verbatim, no byte-order concerns since the caller already chose an
// encoding for whatever the array holds.

type Bytes4Codec struct{}

func (Bytes4Codec) Width() int                { return 4 }
func (Bytes4Codec) Encode(k [4]byte, buf []byte) { copy(buf, k[:]) }
func (Bytes4Codec) Decode(buf []byte) [4]byte {
	var k [4]byte
	copy(k[:], buf)
	return k
}

type Bytes8Codec struct{}

func (Bytes8Codec) Width() int                { return 8 }
func (Bytes8Codec) Encode(k [8]byte, buf []byte) { copy(buf, k[:]) }
func (Bytes8Codec) Decode(buf []byte) [8]byte {
	var k [8]byte
	copy(k[:], buf)
	return k
}

type Bytes16Codec struct{}

func (Bytes16Codec) Width() int                 { return 16 }
func (Bytes16Codec) Encode(k [16]byte, buf []byte) { copy(buf, k[:]) }
func (Bytes16Codec) Decode(buf []byte) [16]byte {
	var k [16]byte
	copy(k[:], buf)
	return k
}

type Bytes32Codec struct{}

func (Bytes32Codec) Width() int                 { return 32 }
func (Bytes32Codec) Encode(k [32]byte, buf []byte) { copy(buf, k[:]) }
func (Bytes32Codec) Decode(buf []byte) [32]byte {
	var k [32]byte
	copy(k[:], buf)
	return k
}

type Bytes64Codec struct{}

func (Bytes64Codec) Width() int                 { return 64 }
func (Bytes64Codec) Encode(k [64]byte, buf []byte) { copy(buf, k[:]) }
func (Bytes64Codec) Decode(buf []byte) [64]byte {
	var k [64]byte
	copy(k[:], buf)
	return k
}
