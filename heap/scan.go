package heap

import (
	"errors"
	"fmt"

	"github.com/malzahar-project/heapdb/buffer"
	"github.com/malzahar-project/heapdb/disk"
	"github.com/malzahar-project/heapdb/page"
)

// ErrScanDone is returned by GetNext once every live record has been
// visited.
var ErrScanDone = errors.New("heap: scan exhausted")

// HeapScan iterates every live record in directory-then-slot order. It
// holds at most one directory page and one data page pinned at a time,
// releasing each before advancing past it.
type HeapScan struct {
	hf *HeapFile

	dirID  disk.PageID
	dirFr  *buffer.Frame
	dirIdx int
	dirN   int

	dataID   disk.PageID
	dataFr   *buffer.Frame
	dataSlot uint16
	dataN    uint16

	done bool
}

// OpenScan begins a new sequential scan over h.
func (h *HeapFile) OpenScan() *HeapScan {
	return &HeapScan{hf: h, dirID: h.headID}
}

// GetNext returns the next (RID, bytes) pair, or ErrScanDone when
// exhausted.
func (s *HeapScan) GetNext() (RID, []byte, error) {
	if s.done {
		return RID{}, nil, ErrScanDone
	}
	for {
		if s.dataFr != nil {
			rid, rec, ok := s.nextInDataPage()
			if ok {
				return rid, rec, nil
			}
			if err := s.closeDataPage(); err != nil {
				return RID{}, nil, err
			}
		}

		if s.dirFr == nil {
			if !s.dirID.Valid() {
				s.done = true
				return RID{}, nil, ErrScanDone
			}
			if err := s.openDirPage(); err != nil {
				return RID{}, nil, err
			}
		}

		pid, ok, err := s.nextEntryInDirPage()
		if err != nil {
			return RID{}, nil, err
		}
		if !ok {
			if err := s.advanceDirPage(); err != nil {
				return RID{}, nil, err
			}
			continue
		}
		if err := s.openDataPage(pid); err != nil {
			return RID{}, nil, err
		}
	}
}

func (s *HeapScan) openDirPage() error {
	fr, err := s.hf.bm.PinPage(s.dirID, buffer.DiskIO, nil)
	if err != nil {
		return fmt.Errorf("heap: scan: pin directory %v: %w", s.dirID, err)
	}
	s.dirFr = fr
	dp := page.NewDirectoryPage(fr.Data)
	s.dirN = dp.EntryCount()
	s.dirIdx = 0
	return nil
}

// nextEntryInDirPage returns the next entry's data page id in the
// currently pinned directory page, skipping invalid entries.
func (s *HeapScan) nextEntryInDirPage() (disk.PageID, bool, error) {
	dp := page.NewDirectoryPage(s.dirFr.Data)
	for s.dirIdx < s.dirN {
		e := dp.Get(s.dirIdx)
		s.dirIdx++
		if e.DataPage.Valid() {
			return e.DataPage, true, nil
		}
	}
	return disk.PageID{}, false, nil
}

// advanceDirPage releases the current directory page and moves to its
// successor (or ends the scan).
func (s *HeapScan) advanceDirPage() error {
	dp := page.NewDirectoryPage(s.dirFr.Data)
	next := dp.Next()
	if err := s.hf.bm.UnpinPage(s.dirID, buffer.Clean); err != nil {
		return err
	}
	s.dirFr = nil
	s.dirID = next
	if !s.dirID.Valid() {
		s.done = true
	}
	return nil
}

func (s *HeapScan) openDataPage(pid disk.PageID) error {
	fr, err := s.hf.bm.PinPage(pid, buffer.DiskIO, nil)
	if err != nil {
		return fmt.Errorf("heap: scan: pin data page %v: %w", pid, err)
	}
	dp := page.NewDataPage(fr.Data)
	s.dataID = pid
	s.dataFr = fr
	s.dataN = dp.SlotCount()
	s.dataSlot = 0
	return nil
}

func (s *HeapScan) closeDataPage() error {
	if err := s.hf.bm.UnpinPage(s.dataID, buffer.Clean); err != nil {
		return err
	}
	s.dataFr = nil
	return nil
}

// nextInDataPage returns the next occupied slot in the currently pinned
// data page, if any.
func (s *HeapScan) nextInDataPage() (RID, []byte, bool) {
	dp := page.NewDataPage(s.dataFr.Data)
	for s.dataSlot < s.dataN {
		slot := s.dataSlot
		s.dataSlot++
		if dp.Occupied(slot) {
			rec, err := dp.Select(slot)
			if err != nil {
				continue
			}
			return RID{Page: s.dataID, Slot: slot}, rec, true
		}
	}
	return RID{}, nil, false
}
