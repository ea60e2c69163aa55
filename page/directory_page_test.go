package page_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/malzahar-project/heapdb/disk"
	"github.com/malzahar-project/heapdb/page"
)

func freshDir(t *testing.T, size int) *page.DirectoryPage {
	t.Helper()
	buf := make([]byte, size)
	d := page.NewDirectoryPage(buf)
	d.InitEmpty(disk.PageID{FileIdx: 0, PageIdx: 0})
	return d
}

func TestDirectoryPageHeaderRoundTrip(t *testing.T) {
	d := freshDir(t, 128)
	require.Equal(t, disk.PageID{FileIdx: 0, PageIdx: 0}, d.Cur())
	require.Equal(t, disk.InvalidPageID, d.Prev())
	require.Equal(t, disk.InvalidPageID, d.Next())

	d.SetNext(disk.PageID{FileIdx: 0, PageIdx: 7})
	require.Equal(t, disk.PageID{FileIdx: 0, PageIdx: 7}, d.Next())
}

func TestDirectoryPageAppendAndGet(t *testing.T) {
	d := freshDir(t, 128)
	e := page.DirEntry{DataPage: disk.PageID{FileIdx: 0, PageIdx: 3}, RecordCount: 2, FreeBytes: 100}
	idx, err := d.Append(e)
	require.NoError(t, err)
	require.Equal(t, 0, idx)
	require.Equal(t, 1, d.EntryCount())
	require.Equal(t, e, d.Get(0))
}

func TestDirectoryPageAppendFailsWhenFull(t *testing.T) {
	d := freshDir(t, 28+page.DirEntrySize) // header + exactly one entry slot
	_, err := d.Append(page.DirEntry{DataPage: disk.PageID{FileIdx: 0, PageIdx: 1}})
	require.NoError(t, err)

	_, err = d.Append(page.DirEntry{DataPage: disk.PageID{FileIdx: 0, PageIdx: 2}})
	require.ErrorIs(t, err, page.ErrDirFull)
}

func TestDirectoryPageFind(t *testing.T) {
	d := freshDir(t, 128)
	p1 := disk.PageID{FileIdx: 0, PageIdx: 1}
	p2 := disk.PageID{FileIdx: 0, PageIdx: 2}
	_, _ = d.Append(page.DirEntry{DataPage: p1})
	_, _ = d.Append(page.DirEntry{DataPage: p2})

	require.Equal(t, 1, d.Find(p2))
	require.Equal(t, -1, d.Find(disk.PageID{FileIdx: 9, PageIdx: 9}))
}

func TestDirectoryPageCompactShiftsLeft(t *testing.T) {
	d := freshDir(t, 256)
	p1 := disk.PageID{FileIdx: 0, PageIdx: 1}
	p2 := disk.PageID{FileIdx: 0, PageIdx: 2}
	p3 := disk.PageID{FileIdx: 0, PageIdx: 3}
	_, _ = d.Append(page.DirEntry{DataPage: p1})
	_, _ = d.Append(page.DirEntry{DataPage: p2})
	_, _ = d.Append(page.DirEntry{DataPage: p3})

	d.Compact(1) // remove p2's entry
	require.Equal(t, 2, d.EntryCount())
	require.Equal(t, p1, d.Get(0).DataPage)
	require.Equal(t, p3, d.Get(1).DataPage)
}

func TestDirectoryPageSetOverwritesEntry(t *testing.T) {
	d := freshDir(t, 128)
	p1 := disk.PageID{FileIdx: 0, PageIdx: 1}
	idx, _ := d.Append(page.DirEntry{DataPage: p1, RecordCount: 1})
	d.Set(idx, page.DirEntry{DataPage: p1, RecordCount: 9, FreeBytes: 42})

	got := d.Get(idx)
	require.EqualValues(t, 9, got.RecordCount)
	require.EqualValues(t, 42, got.FreeBytes)
}
