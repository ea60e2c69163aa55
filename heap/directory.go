package heap

import (
	"fmt"

	"github.com/malzahar-project/heapdb/buffer"
	"github.com/malzahar-project/heapdb/disk"
	"github.com/malzahar-project/heapdb/page"
)

// getAvailPage returns a data-page id with at least length+SlotSize bytes
// of free space, allocating a new data page (and directory entry) if no
// existing page qualifies.
func (h *HeapFile) getAvailPage(length int) (disk.PageID, error) {
	if length > maxRecordSize(h.pageSize) {
		return disk.PageID{}, ErrRecordTooLarge
	}
	need := length + page.SlotSize

	dirID := h.headID
	for dirID.Valid() {
		fr, err := h.bm.PinPage(dirID, buffer.DiskIO, nil)
		if err != nil {
			return disk.PageID{}, fmt.Errorf("heap: getAvailPage: pin directory %v: %w", dirID, err)
		}
		dp := page.NewDirectoryPage(fr.Data)
		n := dp.EntryCount()
		for i := 0; i < n; i++ {
			e := dp.Get(i)
			if e.DataPage.Valid() && int(e.FreeBytes) >= need {
				if err := h.bm.UnpinPage(dirID, buffer.Clean); err != nil {
					return disk.PageID{}, err
				}
				return e.DataPage, nil
			}
		}
		next := dp.Next()
		if err := h.bm.UnpinPage(dirID, buffer.Clean); err != nil {
			return disk.PageID{}, err
		}
		dirID = next
	}

	return h.insertPage()
}

// findDirEntry locates the directory entry for dataPageID. On a hit, the
// directory page is left PINNED for the caller — returned as fr so the
// caller can mutate it directly without pinning again — and the caller
// must unpin it exactly once. "Not found" and error returns leave nothing
// pinned.
func (h *HeapFile) findDirEntry(dataPageID disk.PageID) (dirID disk.PageID, fr *buffer.Frame, idx int, found bool, err error) {
	cur := h.headID
	for cur.Valid() {
		curFr, perr := h.bm.PinPage(cur, buffer.DiskIO, nil)
		if perr != nil {
			return disk.PageID{}, nil, 0, false, fmt.Errorf("heap: findDirEntry: pin %v: %w", cur, perr)
		}
		dp := page.NewDirectoryPage(curFr.Data)
		if i := dp.Find(dataPageID); i >= 0 {
			return cur, curFr, i, true, nil
		}
		next := dp.Next()
		if uerr := h.bm.UnpinPage(cur, buffer.Clean); uerr != nil {
			return disk.PageID{}, nil, 0, false, uerr
		}
		cur = next
	}
	return disk.PageID{}, nil, 0, false, nil
}

// insertPage allocates one new data page and installs an entry for it on
// the first directory page with spare capacity, chaining a new directory
// page when every existing one is full. All pages are left unpinned.
func (h *HeapFile) insertPage() (disk.PageID, error) {
	cur := h.headID
	for {
		fr, err := h.bm.PinPage(cur, buffer.DiskIO, nil)
		if err != nil {
			return disk.PageID{}, fmt.Errorf("heap: insertPage: pin directory %v: %w", cur, err)
		}
		dp := page.NewDirectoryPage(fr.Data)

		if dp.EntryCount() < dp.MaxEntries() {
			dataID, err := h.dm.AllocatePage()
			if err != nil {
				_ = h.bm.UnpinPage(cur, buffer.Clean)
				return disk.PageID{}, fmt.Errorf("heap: insertPage: allocate data page: %w", err)
			}
			dataBuf := make([]byte, h.pageSize)
			ndp := page.NewDataPage(dataBuf)
			ndp.InitEmpty(dataID)

			dfr, err := h.bm.PinPage(dataID, buffer.MemCopy, dataBuf)
			if err != nil {
				_ = h.bm.UnpinPage(cur, buffer.Clean)
				return disk.PageID{}, fmt.Errorf("heap: insertPage: install data page %v: %w", dataID, err)
			}
			freeSpace := page.NewDataPage(dfr.Data).FreeSpace()
			if err := h.bm.UnpinPage(dataID, buffer.Dirty); err != nil {
				return disk.PageID{}, err
			}

			if _, err := dp.Append(page.DirEntry{DataPage: dataID, RecordCount: 0, FreeBytes: int32(freeSpace)}); err != nil {
				_ = h.bm.UnpinPage(cur, buffer.Clean)
				return disk.PageID{}, fmt.Errorf("heap: insertPage: append entry: %w", err)
			}
			if err := h.bm.UnpinPage(cur, buffer.Dirty); err != nil {
				return disk.PageID{}, err
			}
			return dataID, nil
		}

		next := dp.Next()
		if next.Valid() {
			if err := h.bm.UnpinPage(cur, buffer.Clean); err != nil {
				return disk.PageID{}, err
			}
			cur = next
			continue
		}

		newDirID, err := h.dm.AllocatePage()
		if err != nil {
			_ = h.bm.UnpinPage(cur, buffer.Clean)
			return disk.PageID{}, fmt.Errorf("heap: insertPage: allocate directory page: %w", err)
		}
		dp.SetNext(newDirID)
		oldCur := cur
		if err := h.bm.UnpinPage(cur, buffer.Dirty); err != nil {
			return disk.PageID{}, err
		}

		newBuf := make([]byte, h.pageSize)
		ndp := page.NewDirectoryPage(newBuf)
		ndp.InitEmpty(newDirID)
		ndp.SetPrev(oldCur)

		if _, err := h.bm.PinPage(newDirID, buffer.MemCopy, newBuf); err != nil {
			return disk.PageID{}, fmt.Errorf("heap: insertPage: install directory page %v: %w", newDirID, err)
		}
		if err := h.bm.UnpinPage(newDirID, buffer.Dirty); err != nil {
			return disk.PageID{}, err
		}
		cur = newDirID
	}
}

// updateDirEntry adjusts the directory entry for dataPageID by deltaRec
// and sets its free count, reclaiming the data page (and possibly its
// directory page) if the new record count drops below 1.
func (h *HeapFile) updateDirEntry(dataPageID disk.PageID, deltaRec, newFreeCount int) error {
	dirID, fr, idx, found, err := h.findDirEntry(dataPageID)
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("heap: updateDirEntry: no directory entry for %v", dataPageID)
	}

	dp := page.NewDirectoryPage(fr.Data)
	e := dp.Get(idx)
	e.RecordCount += int32(deltaRec)
	e.FreeBytes = int32(newFreeCount)
	dp.Set(idx, e)
	if err := h.bm.UnpinPage(dirID, buffer.Dirty); err != nil {
		return err
	}

	if e.RecordCount < 1 {
		return h.deletePage(dataPageID, dirID, idx)
	}
	return nil
}

// deletePage reclaims dataPageID and, per spec, splices its directory
// entry out of dirID. If dirID would become empty it is spliced out of the
// linked list and freed too — except the head directory page, which is
// never freed (invariant: the head always exists, even with zero
// entries); that path just compacts the entry out and keeps the page.
func (h *HeapFile) deletePage(dataPageID, dirID disk.PageID, idx int) error {
	fr, err := h.bm.PinPage(dirID, buffer.DiskIO, nil)
	if err != nil {
		return fmt.Errorf("heap: deletePage: pin directory %v: %w", dirID, err)
	}
	dp := page.NewDirectoryPage(fr.Data)
	n := dp.EntryCount()

	isHead := dirID == h.headID
	if n >= 2 || isHead {
		dp.Compact(idx)
		if err := h.bm.UnpinPage(dirID, buffer.Dirty); err != nil {
			return err
		}
		return h.bm.FreePage(dataPageID)
	}

	// Non-head directory page losing its only entry: splice it out of the
	// linked list and free it.
	prev := dp.Prev()
	next := dp.Next()
	if err := h.bm.UnpinPage(dirID, buffer.Clean); err != nil {
		return err
	}

	switch {
	case prev.Valid() && next.Valid():
		if err := h.relinkNeighbour(prev, next, true); err != nil {
			return err
		}
		if err := h.relinkNeighbour(next, prev, false); err != nil {
			return err
		}
	case prev.Valid():
		if err := h.relinkNeighbour(prev, disk.InvalidPageID, true); err != nil {
			return err
		}
	case next.Valid():
		if err := h.relinkNeighbour(next, disk.InvalidPageID, false); err != nil {
			return err
		}
	}

	if err := h.bm.FreePage(dirID); err != nil {
		return fmt.Errorf("heap: deletePage: free directory page %v: %w", dirID, err)
	}
	return h.bm.FreePage(dataPageID)
}

// relinkNeighbour pins neighbour, sets its Next (setNext=true) or Prev
// pointer to val, and unpins dirty.
func (h *HeapFile) relinkNeighbour(neighbour, val disk.PageID, setNext bool) error {
	fr, err := h.bm.PinPage(neighbour, buffer.DiskIO, nil)
	if err != nil {
		return fmt.Errorf("heap: relink: pin %v: %w", neighbour, err)
	}
	dp := page.NewDirectoryPage(fr.Data)
	if setNext {
		dp.SetNext(val)
	} else {
		dp.SetPrev(val)
	}
	return h.bm.UnpinPage(neighbour, buffer.Dirty)
}
