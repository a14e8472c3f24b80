package page

import "encoding/binary"

// RID (record identifier) names the table-heap location a hash index
// entry points at: the page holding the tuple, and the tuple's slot
// within it. The hash index treats values opaquely as RIDs — it never
// interprets the pointed-to tuple.
type RID struct {
	PageID PageID
	Slot   uint32
}

const RIDSize = 8

func (r RID) Encode(buf []byte) {
	binary.LittleEndian.PutUint32(buf[0:], uint32(r.PageID))
	binary.LittleEndian.PutUint32(buf[4:], r.Slot)
}

func DecodeRID(buf []byte) RID {
	return RID{
		PageID: PageID(binary.LittleEndian.Uint32(buf[0:])),
		Slot:   binary.LittleEndian.Uint32(buf[4:]),
	}
}
