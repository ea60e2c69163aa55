// Package heap implements the heap-file storage manager: an unordered
// collection of variable-length byte-string records addressed by stable
// RIDs, persisted across data pages organized by a linked chain of
// directory pages. It coordinates pinning against the buffer manager and
// page allocation against the disk manager; it owns none of the on-disk
// byte layout itself (that lives in package page).
package heap

import (
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/malzahar-project/heapdb/buffer"
	"github.com/malzahar-project/heapdb/disk"
	"github.com/malzahar-project/heapdb/page"
)

// Sentinel errors surfaced to callers, tested with errors.Is.
var (
	ErrRecordTooLarge       = errors.New("heap: record exceeds maximum size for this page")
	ErrInvalidRID           = errors.New("heap: invalid record id")
	ErrRecordLengthMismatch = errors.New("heap: update changes record length")
)

// RID identifies a record by the data page holding it and its slot index.
type RID struct {
	Page disk.PageID
	Slot uint16
}

func (r RID) String() string { return fmt.Sprintf("%v:%d", r.Page, r.Slot) }

// HeapFile is the public façade over one heap file: either named
// (registered with the disk manager under a name) or temporary
// (unregistered, destroyed when Close is called with no prior Destroy).
type HeapFile struct {
	name      string
	isNamed   bool
	headID    disk.PageID
	dm        *disk.Manager
	bm        *buffer.Manager
	pageSize  int
	temporary bool
	destroyed bool
	log       *logrus.Entry
}

// maxRecordSize is the largest record body that fits on an empty data page.
func maxRecordSize(pageSize int) int {
	return pageSize - page.HeaderSize - page.SlotSize
}

// Open binds to the heap file registered under name, creating it if the
// name is unregistered. A temporary file is created when name is empty;
// its resources must be released with Close (which destroys it) rather
// than Destroy by name, since it was never registered.
func Open(name string, dm *disk.Manager, bm *buffer.Manager, pageSize int, log *logrus.Entry) (*HeapFile, error) {
	if log == nil {
		log = logrus.NewEntry(logrus.New())
	}
	hf := &HeapFile{dm: dm, bm: bm, pageSize: pageSize, log: log}

	if name == "" {
		hf.temporary = true
		head, err := createHeadDirectory(dm, bm, pageSize)
		if err != nil {
			return nil, err
		}
		hf.headID = head
		return hf, nil
	}

	hf.name = name
	hf.isNamed = true
	if head, ok := dm.GetFileEntry(name); ok {
		hf.headID = head
		return hf, nil
	}

	head, err := createHeadDirectory(dm, bm, pageSize)
	if err != nil {
		return nil, err
	}
	if err := dm.AddFileEntry(name, head); err != nil {
		return nil, err
	}
	hf.headID = head
	return hf, nil
}

func createHeadDirectory(dm *disk.Manager, bm *buffer.Manager, pageSize int) (disk.PageID, error) {
	headID, err := dm.AllocatePage()
	if err != nil {
		return disk.PageID{}, fmt.Errorf("heap: allocate head directory: %w", err)
	}
	buf := make([]byte, pageSize)
	dp := page.NewDirectoryPage(buf)
	dp.InitEmpty(headID)

	fr, err := bm.PinPage(headID, buffer.MemCopy, buf)
	if err != nil {
		return disk.PageID{}, fmt.Errorf("heap: install head directory: %w", err)
	}
	if err := bm.UnpinPage(headID, buffer.Dirty); err != nil {
		return disk.PageID{}, err
	}
	_ = fr
	return headID, nil
}

// Destroy walks every directory page, frees every data page it references
// and the directory page itself, then (for named files) removes the name
// registration. After Destroy the handle is inert.
func (h *HeapFile) Destroy() error {
	if h.destroyed {
		return nil
	}
	dirID := h.headID
	for dirID.Valid() {
		fr, err := h.bm.PinPage(dirID, buffer.DiskIO, nil)
		if err != nil {
			return fmt.Errorf("heap: destroy: pin directory %v: %w", dirID, err)
		}
		dp := page.NewDirectoryPage(fr.Data)
		next := dp.Next()
		n := dp.EntryCount()
		for i := 0; i < n; i++ {
			e := dp.Get(i)
			if e.DataPage.Valid() {
				if err := h.bm.FreePage(e.DataPage); err != nil {
					return fmt.Errorf("heap: destroy: free data page %v: %w", e.DataPage, err)
				}
			}
		}
		if err := h.bm.UnpinPage(dirID, buffer.Clean); err != nil {
			return err
		}
		if err := h.bm.FreePage(dirID); err != nil {
			return fmt.Errorf("heap: destroy: free directory page %v: %w", dirID, err)
		}
		dirID = next
	}

	if h.isNamed {
		if err := h.dm.DeleteFileEntry(h.name); err != nil {
			return err
		}
	}
	h.destroyed = true
	return nil
}

// Close releases a temporary heap file's resources, calling Destroy. Named
// files are left on disk; callers destroy them explicitly by calling
// Destroy when they actually want the file gone.
func (h *HeapFile) Close() error {
	if h.temporary {
		return h.Destroy()
	}
	return nil
}

// InsertRecord stores rec and returns its RID.
func (h *HeapFile) InsertRecord(rec []byte) (RID, error) {
	if h.destroyed {
		return RID{}, fmt.Errorf("heap: insert on destroyed file")
	}
	if len(rec) > maxRecordSize(h.pageSize) {
		return RID{}, ErrRecordTooLarge
	}

	dataPageID, err := h.getAvailPage(len(rec))
	if err != nil {
		return RID{}, err
	}

	fr, err := h.bm.PinPage(dataPageID, buffer.DiskIO, nil)
	if err != nil {
		return RID{}, fmt.Errorf("heap: insert: pin data page %v: %w", dataPageID, err)
	}
	dp := page.NewDataPage(fr.Data)
	slot, err := dp.Insert(rec)
	if err != nil {
		_ = h.bm.UnpinPage(dataPageID, buffer.Clean)
		return RID{}, fmt.Errorf("heap: insert: %w", err)
	}
	freeSpace := dp.FreeSpace()
	if err := h.bm.UnpinPage(dataPageID, buffer.Dirty); err != nil {
		return RID{}, err
	}

	if err := h.updateDirEntry(dataPageID, 1, freeSpace); err != nil {
		return RID{}, err
	}
	return RID{Page: dataPageID, Slot: slot}, nil
}

// SelectRecord returns a defensive copy of the record addressed by rid.
func (h *HeapFile) SelectRecord(rid RID) ([]byte, error) {
	if h.destroyed {
		return nil, fmt.Errorf("heap: select on destroyed file")
	}
	fr, err := h.bm.PinPage(rid.Page, buffer.DiskIO, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRID, err)
	}
	dp := page.NewDataPage(fr.Data)
	rec, err := dp.Select(rid.Slot)
	if err != nil {
		_ = h.bm.UnpinPage(rid.Page, buffer.Clean)
		return nil, fmt.Errorf("%w: %v", ErrInvalidRID, err)
	}
	if err := h.bm.UnpinPage(rid.Page, buffer.Clean); err != nil {
		return nil, err
	}
	return rec, nil
}

// UpdateRecord overwrites rid's record in place. The new bytes must have
// the same length as the existing record.
func (h *HeapFile) UpdateRecord(rid RID, rec []byte) error {
	if h.destroyed {
		return fmt.Errorf("heap: update on destroyed file")
	}
	fr, err := h.bm.PinPage(rid.Page, buffer.DiskIO, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRID, err)
	}
	dp := page.NewDataPage(fr.Data)
	if err := dp.Update(rid.Slot, rec); err != nil {
		_ = h.bm.UnpinPage(rid.Page, buffer.Clean)
		if errors.Is(err, page.ErrLengthChanged) {
			return ErrRecordLengthMismatch
		}
		return fmt.Errorf("%w: %v", ErrInvalidRID, err)
	}
	return h.bm.UnpinPage(rid.Page, buffer.Dirty)
}

// DeleteRecord removes rid's record and reconciles the directory entry,
// reclaiming the data page (and possibly its directory page) if the
// page's record count drops to zero.
func (h *HeapFile) DeleteRecord(rid RID) error {
	if h.destroyed {
		return fmt.Errorf("heap: delete on destroyed file")
	}
	fr, err := h.bm.PinPage(rid.Page, buffer.DiskIO, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRID, err)
	}
	dp := page.NewDataPage(fr.Data)
	if err := dp.Delete(rid.Slot); err != nil {
		_ = h.bm.UnpinPage(rid.Page, buffer.Clean)
		return fmt.Errorf("%w: %v", ErrInvalidRID, err)
	}
	freeSpace := dp.FreeSpace()
	if err := h.bm.UnpinPage(rid.Page, buffer.Dirty); err != nil {
		return err
	}
	return h.updateDirEntry(rid.Page, -1, freeSpace)
}

// GetRecordCount sums the record count field over every entry of every
// directory page.
func (h *HeapFile) GetRecordCount() (int, error) {
	if h.destroyed {
		return 0, fmt.Errorf("heap: count on destroyed file")
	}
	total := 0
	dirID := h.headID
	for dirID.Valid() {
		fr, err := h.bm.PinPage(dirID, buffer.DiskIO, nil)
		if err != nil {
			return 0, fmt.Errorf("heap: count: pin directory %v: %w", dirID, err)
		}
		dp := page.NewDirectoryPage(fr.Data)
		n := dp.EntryCount()
		for i := 0; i < n; i++ {
			total += int(dp.Get(i).RecordCount)
		}
		next := dp.Next()
		if err := h.bm.UnpinPage(dirID, buffer.Clean); err != nil {
			return 0, err
		}
		dirID = next
	}
	return total, nil
}

// Name reports the file's registered name, or "<temporary>" if it has
// none.
func (h *HeapFile) Name() string {
	if h.isNamed {
		return h.name
	}
	return "<temporary>"
}

// HeadID exposes the head directory page id, mainly for tests asserting
// that it never moves across full deletion.
func (h *HeapFile) HeadID() disk.PageID { return h.headID }
