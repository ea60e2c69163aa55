package page

import (
	"encoding/binary"
	"errors"

	"github.com/malzahar-project/heapdb/disk"
)

// ErrDirFull is returned by Append when every entry slot in the page is
// already occupied; the caller must chain a new directory page.
var ErrDirFull = errors.New("page: directory page full")

// directory-page header layout, within dirHeaderSize (28) bytes:
//
//	[0:8)   curPageID
//	[8:16)  prevPageID
//	[16:24) nextPageID
//	[24:28) entryCount (uint32)
//
// The reference layout reserves three page-id slots (cur/prev/next) plus an
// entry count ahead of the packed entry array, so the header here is wider
// than a data page's: 8 (cur) + 8 (prev) + 8 (next) + 4 (entryCount) = 28
// bytes, kept in its own constant rather than overloading HeaderSize.
const dirHeaderSize = 28

const (
	dirCurOff   = 0
	dirPrevOff  = 8
	dirNextOff  = 16
	dirCountOff = 24
)

// DirEntrySize is the packed width of one directory entry: a data page id
// plus its live record count and free-byte count.
const DirEntrySize = 8 + 4 + 4

// DirEntry describes one data page tracked by a directory page.
type DirEntry struct {
	DataPage    disk.PageID
	RecordCount int32
	FreeBytes   int32
}

// DirectoryPage is a packed array of DirEntry, prefixed by a small header
// linking it to the previous/next directory page in the chain.
type DirectoryPage struct {
	buf []byte
}

// NewDirectoryPage wraps buf (which must be exactly one page in length).
func NewDirectoryPage(buf []byte) *DirectoryPage { return &DirectoryPage{buf: buf} }

// MaxEntries is how many DirEntry values fit after the header, mirroring how
// the reference implementation derives SlotsPerPage from page size.
func (d *DirectoryPage) MaxEntries() int {
	return (len(d.buf) - dirHeaderSize) / DirEntrySize
}

// InitEmpty stamps a fresh directory page: no entries, prev/next invalid.
func (d *DirectoryPage) InitEmpty(cur disk.PageID) {
	putPageID(d.buf, dirCurOff, cur)
	putPageID(d.buf, dirPrevOff, disk.InvalidPageID)
	putPageID(d.buf, dirNextOff, disk.InvalidPageID)
	binary.LittleEndian.PutUint32(d.buf[dirCountOff:], 0)
}

func (d *DirectoryPage) Cur() disk.PageID  { return getPageID(d.buf, dirCurOff) }
func (d *DirectoryPage) Prev() disk.PageID { return getPageID(d.buf, dirPrevOff) }
func (d *DirectoryPage) Next() disk.PageID { return getPageID(d.buf, dirNextOff) }

func (d *DirectoryPage) SetCur(pid disk.PageID)  { putPageID(d.buf, dirCurOff, pid) }
func (d *DirectoryPage) SetPrev(pid disk.PageID) { putPageID(d.buf, dirPrevOff, pid) }
func (d *DirectoryPage) SetNext(pid disk.PageID) { putPageID(d.buf, dirNextOff, pid) }

// EntryCount reports how many entries are currently packed into this page.
func (d *DirectoryPage) EntryCount() int {
	return int(binary.LittleEndian.Uint32(d.buf[dirCountOff:]))
}

func (d *DirectoryPage) setEntryCount(n int) {
	binary.LittleEndian.PutUint32(d.buf[dirCountOff:], uint32(n))
}

func (d *DirectoryPage) entryOffset(i int) int {
	return dirHeaderSize + i*DirEntrySize
}

// Get returns the entry at index i. The caller is responsible for keeping i
// within [0, EntryCount()).
func (d *DirectoryPage) Get(i int) DirEntry {
	off := d.entryOffset(i)
	return DirEntry{
		DataPage:    getPageID(d.buf, off),
		RecordCount: int32(binary.LittleEndian.Uint32(d.buf[off+8:])),
		FreeBytes:   int32(binary.LittleEndian.Uint32(d.buf[off+12:])),
	}
}

// Set overwrites the entry at index i in place.
func (d *DirectoryPage) Set(i int, e DirEntry) {
	off := d.entryOffset(i)
	putPageID(d.buf, off, e.DataPage)
	binary.LittleEndian.PutUint32(d.buf[off+8:], uint32(e.RecordCount))
	binary.LittleEndian.PutUint32(d.buf[off+12:], uint32(e.FreeBytes))
}

// Append adds e as a new entry, returning its index. It fails with
// ErrDirFull once EntryCount reaches MaxEntries.
func (d *DirectoryPage) Append(e DirEntry) (int, error) {
	n := d.EntryCount()
	if n >= d.MaxEntries() {
		return 0, ErrDirFull
	}
	d.Set(n, e)
	d.setEntryCount(n + 1)
	return n, nil
}

// Compact removes the entry at index i by shifting every later entry left
// by one slot, then shrinking EntryCount. Used when a data page empties out
// and its directory entry is spliced out rather than merely tombstoned.
func (d *DirectoryPage) Compact(i int) {
	n := d.EntryCount()
	for j := i; j < n-1; j++ {
		d.Set(j, d.Get(j+1))
	}
	d.setEntryCount(n - 1)
}

// Find returns the index of the entry whose DataPage matches pid, or -1.
func (d *DirectoryPage) Find(pid disk.PageID) int {
	n := d.EntryCount()
	for i := 0; i < n; i++ {
		if d.Get(i).DataPage == pid {
			return i
		}
	}
	return -1
}
