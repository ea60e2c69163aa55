// Package page implements the two page layouts the heap-file manager runs
// on top of: a slotted DataPage holding variable-length records, and a
// DirectoryPage holding a packed array of (data page, record count, free
// count) entries. Both are views over a raw page-sized byte slice owned by
// a buffer.Frame — they never copy the backing array except on Select,
// which defensively copies a record out before the frame can be reused.
package page

import (
	"encoding/binary"

	"github.com/malzahar-project/heapdb/disk"
)

// HeaderSize and SlotSize mirror the reference implementation's constants:
// every data page reserves 20 bytes for its header and every slot directory
// entry is 4 bytes (offset + length), so the maximum record size is
// PageSize - HeaderSize - SlotSize.
const (
	HeaderSize = 20
	SlotSize   = 4
)

func putPageID(b []byte, off int, pid disk.PageID) {
	binary.LittleEndian.PutUint32(b[off:off+4], uint32(int32(pid.FileIdx)))
	binary.LittleEndian.PutUint32(b[off+4:off+8], uint32(int32(pid.PageIdx)))
}

func getPageID(b []byte, off int) disk.PageID {
	fx := int32(binary.LittleEndian.Uint32(b[off : off+4]))
	fy := int32(binary.LittleEndian.Uint32(b[off+4 : off+8]))
	return disk.PageID{FileIdx: int(fx), PageIdx: int(fy)}
}
