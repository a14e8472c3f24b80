package page

import "encoding/binary"

// MaxDepth bounds the extendible hash directory's global depth. 9 yields
// 512 directory slots, the BusTub-typical choice for a 4KB directory page.
const MaxDepth = 9

// DirectorySlots is the fixed slot count the directory page always
// allocates room for; only the first 1<<GlobalDepth are live.
const DirectorySlots = 1 << MaxDepth

const (
	directoryOffsetGlobalDepth = 0
	directoryOffsetBucketIDs   = directoryOffsetGlobalDepth + 4
	directoryOffsetLocalDepths = directoryOffsetBucketIDs + DirectorySlots*4
	directoryFooter            = directoryOffsetLocalDepths + DirectorySlots*1
)

func init() {
	if directoryFooter > PageSize {
		panic("directory page layout exceeds page size")
	}
}

// DirectoryPage is a fixed-offset little-endian view over a Page's raw
// bytes. It carries the hash index's global depth and, for every slot up
// to 1<<MaxDepth, which bucket page owns it and at what local depth.
type DirectoryPage struct {
	Data []byte
}

func NewDirectoryPage(p *Page) *DirectoryPage {
	return &DirectoryPage{Data: p.Data[:]}
}

func (d *DirectoryPage) GlobalDepth() uint32 {
	return binary.LittleEndian.Uint32(d.Data[directoryOffsetGlobalDepth:])
}

func (d *DirectoryPage) SetGlobalDepth(depth uint32) {
	binary.LittleEndian.PutUint32(d.Data[directoryOffsetGlobalDepth:], depth)
}

// GlobalDepthMask returns (1<<global_depth)-1.
func (d *DirectoryPage) GlobalDepthMask() uint32 {
	return uint32(1<<d.GlobalDepth()) - 1
}

func (d *DirectoryPage) BucketPageID(slot uint32) PageID {
	off := directoryOffsetBucketIDs + int(slot)*4
	return PageID(binary.LittleEndian.Uint32(d.Data[off:]))
}

func (d *DirectoryPage) SetBucketPageID(slot uint32, id PageID) {
	off := directoryOffsetBucketIDs + int(slot)*4
	binary.LittleEndian.PutUint32(d.Data[off:], uint32(id))
}

func (d *DirectoryPage) LocalDepth(slot uint32) uint8 {
	return d.Data[directoryOffsetLocalDepths+int(slot)]
}

func (d *DirectoryPage) SetLocalDepth(slot uint32, depth uint8) {
	d.Data[directoryOffsetLocalDepths+int(slot)] = depth
}

// LocalDepthMask returns (1<<local_depths[slot])-1.
func (d *DirectoryPage) LocalDepthMask(slot uint32) uint32 {
	return uint32(1<<d.LocalDepth(slot)) - 1
}

// SplitImageIndex returns the sibling slot that, together with slot, forms
// a mergeable pair: slot XOR (1 << (local_depth-1)) when local_depth > 0,
// else slot XOR (1 << global_depth) — a depth-0 bucket has no sibling
// formed by flipping its own discriminating bit, so it folds against the
// bit the directory would next grow into.
func (d *DirectoryPage) SplitImageIndex(slot uint32) uint32 {
	ld := d.LocalDepth(slot)
	if ld > 0 {
		return slot ^ (1 << (ld - 1))
	}
	return slot ^ (1 << d.GlobalDepth())
}

// NumSlots is the number of live directory slots: 1<<GlobalDepth.
func (d *DirectoryPage) NumSlots() uint32 {
	return 1 << d.GlobalDepth()
}
