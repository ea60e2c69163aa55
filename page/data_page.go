package page

import (
	"encoding/binary"
	"errors"

	"github.com/malzahar-project/heapdb/disk"
)

// Sentinel errors surfaced by DataPage; heap wraps these into the spec's
// ErrInvalidRID / ErrRecordLengthMismatch as appropriate.
var (
	ErrNoSpace       = errors.New("page: not enough free space")
	ErrBadSlot       = errors.New("page: slot out of range")
	ErrSlotEmpty     = errors.New("page: slot is empty")
	ErrLengthChanged = errors.New("page: update would change record length")
)

// data-page header layout, within HeaderSize (20) bytes:
//
//	[0:8)   curPageID
//	[8:10)  slotCount (uint16)
//	[10:12) freeStart (uint16, absolute offset where the next record lands)
//	[12:14) freeEnd   (uint16, absolute offset where the slot directory starts)
//	[14:20) reserved
const (
	dpSlotCountOff = 8
	dpFreeStartOff = 10
	dpFreeEndOff   = 12
)

// DataPage is a slotted view over a page-sized byte slice: a record area
// growing forward from the header and a slot directory growing backward
// from the end of the page.
type DataPage struct {
	buf []byte
}

// NewDataPage wraps buf (which must be exactly one page in length).
func NewDataPage(buf []byte) *DataPage { return &DataPage{buf: buf} }

// InitEmpty stamps a fresh page's header: zero slots, free space spanning
// the whole body.
func (d *DataPage) InitEmpty(cur disk.PageID) {
	putPageID(d.buf, 0, cur)
	binary.LittleEndian.PutUint16(d.buf[dpSlotCountOff:], 0)
	binary.LittleEndian.PutUint16(d.buf[dpFreeStartOff:], uint16(HeaderSize))
	binary.LittleEndian.PutUint16(d.buf[dpFreeEndOff:], uint16(len(d.buf)))
}

// CurPage returns the page id this page is stamped with.
func (d *DataPage) CurPage() disk.PageID { return getPageID(d.buf, 0) }

// SetCurPage restamps the page id.
func (d *DataPage) SetCurPage(pid disk.PageID) { putPageID(d.buf, 0, pid) }

func (d *DataPage) slotCount() uint16 {
	return binary.LittleEndian.Uint16(d.buf[dpSlotCountOff:])
}

func (d *DataPage) setSlotCount(v uint16) {
	binary.LittleEndian.PutUint16(d.buf[dpSlotCountOff:], v)
}

func (d *DataPage) freeStart() uint16 { return binary.LittleEndian.Uint16(d.buf[dpFreeStartOff:]) }
func (d *DataPage) setFreeStart(v uint16) {
	binary.LittleEndian.PutUint16(d.buf[dpFreeStartOff:], v)
}

func (d *DataPage) freeEnd() uint16 { return binary.LittleEndian.Uint16(d.buf[dpFreeEndOff:]) }
func (d *DataPage) setFreeEnd(v uint16) {
	binary.LittleEndian.PutUint16(d.buf[dpFreeEndOff:], v)
}

// slot directory entries live at the end of the page, one per occupied or
// tombstoned slot index, growing backward: slot i sits at
// len(buf) - (i+1)*SlotSize.
func (d *DataPage) slotPos(i uint16) int {
	return len(d.buf) - int(i+1)*SlotSize
}

func (d *DataPage) getSlotEntry(i uint16) (offset, length uint16) {
	pos := d.slotPos(i)
	offset = binary.LittleEndian.Uint16(d.buf[pos : pos+2])
	length = binary.LittleEndian.Uint16(d.buf[pos+2 : pos+4])
	return
}

func (d *DataPage) setSlotEntry(i, offset, length uint16) {
	pos := d.slotPos(i)
	binary.LittleEndian.PutUint16(d.buf[pos:pos+2], offset)
	binary.LittleEndian.PutUint16(d.buf[pos+2:pos+4], length)
}

// FreeSpace reports the number of bytes available between the record area
// and the slot directory.
func (d *DataPage) FreeSpace() int {
	return int(d.freeEnd()) - int(d.freeStart())
}

// Insert appends rec to the record area and allocates a new slot for it.
// Returns ErrNoSpace if there is not room for rec plus one slot entry.
func (d *DataPage) Insert(rec []byte) (uint16, error) {
	need := len(rec) + SlotSize
	if d.FreeSpace() < need {
		return 0, ErrNoSpace
	}
	fs := d.freeStart()
	fe := d.freeEnd()
	copy(d.buf[fs:int(fs)+len(rec)], rec)

	slot := d.slotCount()
	d.setSlotCount(slot + 1)
	d.setSlotEntry(slot, fs, uint16(len(rec)))
	d.setFreeStart(fs + uint16(len(rec)))
	d.setFreeEnd(fe - SlotSize)
	return slot, nil
}

// Select returns a defensive copy of the record at slot i.
func (d *DataPage) Select(i uint16) ([]byte, error) {
	if i >= d.slotCount() {
		return nil, ErrBadSlot
	}
	off, ln := d.getSlotEntry(i)
	if ln == 0 {
		return nil, ErrSlotEmpty
	}
	out := make([]byte, ln)
	copy(out, d.buf[off:int(off)+int(ln)])
	return out, nil
}

// Update overwrites the record at slot i in place. The new bytes must have
// exactly the same length as the existing record.
func (d *DataPage) Update(i uint16, rec []byte) error {
	if i >= d.slotCount() {
		return ErrBadSlot
	}
	off, ln := d.getSlotEntry(i)
	if ln == 0 {
		return ErrSlotEmpty
	}
	if int(ln) != len(rec) {
		return ErrLengthChanged
	}
	copy(d.buf[off:int(off)+int(ln)], rec)
	return nil
}

// Delete tombstones slot i by zeroing its length. The layout never
// reclaims or coalesces the freed record bytes (the spec explicitly puts
// cross-page free-space coalescing out of scope); FreeSpace only grows
// again once freeStart/freeEnd themselves move, which Delete does not do.
func (d *DataPage) Delete(i uint16) error {
	if i >= d.slotCount() {
		return ErrBadSlot
	}
	off, ln := d.getSlotEntry(i)
	if ln == 0 {
		return ErrSlotEmpty
	}
	d.setSlotEntry(i, off, 0)
	return nil
}

// Occupied reports whether slot i holds a live record.
func (d *DataPage) Occupied(i uint16) bool {
	if i >= d.slotCount() {
		return false
	}
	_, ln := d.getSlotEntry(i)
	return ln > 0
}

// SlotCount returns the number of slots ever allocated on this page
// (including tombstoned ones) — the upper bound for a scan over slot
// indices.
func (d *DataPage) SlotCount() uint16 { return d.slotCount() }
