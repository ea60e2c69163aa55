package heap_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/malzahar-project/heapdb/buffer"
	"github.com/malzahar-project/heapdb/config"
	"github.com/malzahar-project/heapdb/disk"
	"github.com/malzahar-project/heapdb/heap"
)

const testPageSize = 256

func newHarness(t *testing.T) (*disk.Manager, *buffer.Manager) {
	t.Helper()
	dm := disk.NewManager(t.TempDir(), testPageSize, 8, nil)
	require.NoError(t, dm.Init())
	bm := buffer.NewManager(dm, 16, testPageSize, config.PolicyLRU, nil)
	return dm, bm
}

func TestOpenNewFileStartsEmpty(t *testing.T) {
	dm, bm := newHarness(t)
	hf, err := heap.Open("orders", dm, bm, testPageSize, nil)
	require.NoError(t, err)

	n, err := hf.GetRecordCount()
	require.NoError(t, err)
	require.Equal(t, 0, n)

	sc := hf.OpenScan()
	_, _, err = sc.GetNext()
	require.ErrorIs(t, err, heap.ErrScanDone)
}

func TestInsertSelectRoundTrip(t *testing.T) {
	dm, bm := newHarness(t)
	hf, err := heap.Open("", dm, bm, testPageSize, nil)
	require.NoError(t, err)

	rid, err := hf.InsertRecord([]byte("hello world"))
	require.NoError(t, err)

	got, err := hf.SelectRecord(rid)
	require.NoError(t, err)
	require.Equal(t, []byte("hello world"), got)

	n, err := hf.GetRecordCount()
	require.NoError(t, err)
	require.Equal(t, 1, n)
}

func TestInsertThreeSameLengthRecordsLandOnSamePage(t *testing.T) {
	dm, bm := newHarness(t)
	hf, err := heap.Open("", dm, bm, testPageSize, nil)
	require.NoError(t, err)

	r1, err := hf.InsertRecord([]byte("aaaa"))
	require.NoError(t, err)
	r2, err := hf.InsertRecord([]byte("bbbb"))
	require.NoError(t, err)
	r3, err := hf.InsertRecord([]byte("cccc"))
	require.NoError(t, err)

	require.Equal(t, r1.Page, r2.Page)
	require.Equal(t, r2.Page, r3.Page)
	require.NotEqual(t, r1.Slot, r2.Slot)
	require.NotEqual(t, r2.Slot, r3.Slot)

	n, err := hf.GetRecordCount()
	require.NoError(t, err)
	require.Equal(t, 3, n)
}

func TestSelectAfterDeleteFailsInvalidRID(t *testing.T) {
	dm, bm := newHarness(t)
	hf, err := heap.Open("", dm, bm, testPageSize, nil)
	require.NoError(t, err)

	rid, err := hf.InsertRecord([]byte("x"))
	require.NoError(t, err)
	require.NoError(t, hf.DeleteRecord(rid))

	_, err = hf.SelectRecord(rid)
	require.ErrorIs(t, err, heap.ErrInvalidRID)

	n, err := hf.GetRecordCount()
	require.NoError(t, err)
	require.Equal(t, 0, n)
}

func TestUpdateThenSelectReflectsNewBytes(t *testing.T) {
	dm, bm := newHarness(t)
	hf, err := heap.Open("", dm, bm, testPageSize, nil)
	require.NoError(t, err)

	rid, err := hf.InsertRecord([]byte("abcd"))
	require.NoError(t, err)
	require.NoError(t, hf.UpdateRecord(rid, []byte("wxyz")))

	got, err := hf.SelectRecord(rid)
	require.NoError(t, err)
	require.Equal(t, []byte("wxyz"), got)
}

func TestUpdateWithDifferentLengthFails(t *testing.T) {
	dm, bm := newHarness(t)
	hf, err := heap.Open("", dm, bm, testPageSize, nil)
	require.NoError(t, err)

	rid, err := hf.InsertRecord([]byte("abcd"))
	require.NoError(t, err)

	err = hf.UpdateRecord(rid, []byte("way-too-long-now"))
	require.ErrorIs(t, err, heap.ErrRecordLengthMismatch)
}

func TestInsertRecordTooLargeFails(t *testing.T) {
	dm, bm := newHarness(t)
	hf, err := heap.Open("", dm, bm, testPageSize, nil)
	require.NoError(t, err)

	big := make([]byte, testPageSize)
	_, err = hf.InsertRecord(big)
	require.ErrorIs(t, err, heap.ErrRecordTooLarge)
}

func TestInsertExactlyMaxRecordSucceeds(t *testing.T) {
	dm, bm := newHarness(t)
	hf, err := heap.Open("", dm, bm, testPageSize, nil)
	require.NoError(t, err)

	// HeaderSize=20, SlotSize=4 are the page package's reference constants.
	max := testPageSize - 20 - 4
	rec := make([]byte, max)
	for i := range rec {
		rec[i] = byte(i)
	}
	rid, err := hf.InsertRecord(rec)
	require.NoError(t, err)
	got, err := hf.SelectRecord(rid)
	require.NoError(t, err)
	require.Equal(t, rec, got)
}

func TestFullScanYieldsAllLiveRecordsNoDuplicates(t *testing.T) {
	dm, bm := newHarness(t)
	hf, err := heap.Open("", dm, bm, testPageSize, nil)
	require.NoError(t, err)

	want := map[heap.RID][]byte{}
	for i := 0; i < 40; i++ {
		b := []byte{byte(i), byte(i + 1), byte(i + 2)}
		rid, err := hf.InsertRecord(b)
		require.NoError(t, err)
		want[rid] = b
	}
	// delete a few scattered records so the scan must skip tombstones
	var toDelete []heap.RID
	i := 0
	for rid := range want {
		if i%7 == 0 {
			toDelete = append(toDelete, rid)
		}
		i++
	}
	for _, rid := range toDelete {
		require.NoError(t, hf.DeleteRecord(rid))
		delete(want, rid)
	}

	seen := map[heap.RID]bool{}
	sc := hf.OpenScan()
	for {
		rid, rec, err := sc.GetNext()
		if err != nil {
			require.ErrorIs(t, err, heap.ErrScanDone)
			break
		}
		require.False(t, seen[rid], "duplicate RID from scan")
		seen[rid] = true
		expected, ok := want[rid]
		require.True(t, ok, "scan returned an unexpected RID")
		require.Equal(t, expected, rec)
	}
	require.Equal(t, len(want), len(seen))
}

func TestFillingDataPageForcesNewDataPage(t *testing.T) {
	dm, bm := newHarness(t)
	hf, err := heap.Open("", dm, bm, testPageSize, nil)
	require.NoError(t, err)

	rec := make([]byte, 16)
	firstPage := disk.PageID{}
	sawSecondPage := false
	for i := 0; i < 50; i++ {
		rid, err := hf.InsertRecord(rec)
		require.NoError(t, err)
		if i == 0 {
			firstPage = rid.Page
		} else if rid.Page != firstPage {
			sawSecondPage = true
			break
		}
	}
	require.True(t, sawSecondPage, "expected a second data page to be allocated")
}

func TestDeletingEveryRecordOnNonFirstDataPageFreesIt(t *testing.T) {
	dm, bm := newHarness(t)
	hf, err := heap.Open("", dm, bm, testPageSize, nil)
	require.NoError(t, err)

	rec := make([]byte, 16)
	var rids []heap.RID
	firstPage := disk.PageID{}
	for i := 0; i < 50; i++ {
		rid, err := hf.InsertRecord(rec)
		require.NoError(t, err)
		rids = append(rids, rid)
		if i == 0 {
			firstPage = rid.Page
		}
	}

	var secondPageRIDs []heap.RID
	for _, rid := range rids {
		if rid.Page != firstPage {
			secondPageRIDs = append(secondPageRIDs, rid)
		}
	}
	require.NotEmpty(t, secondPageRIDs)

	for _, rid := range secondPageRIDs {
		require.NoError(t, hf.DeleteRecord(rid))
	}

	// the freed page's entry must no longer surface in a scan
	freed := map[heap.RID]bool{}
	for _, rid := range secondPageRIDs {
		freed[rid] = true
	}
	sc := hf.OpenScan()
	for {
		rid, _, err := sc.GetNext()
		if err != nil {
			require.ErrorIs(t, err, heap.ErrScanDone)
			break
		}
		require.False(t, freed[rid], "scan surfaced a record from a reclaimed page")
	}
}

func TestDestroyTemporaryFileFreesAllPages(t *testing.T) {
	dm, bm := newHarness(t)
	hf, err := heap.Open("", dm, bm, testPageSize, nil)
	require.NoError(t, err)

	owned := map[disk.PageID]bool{hf.HeadID(): true}
	for i := 0; i < 100; i++ {
		rid, err := hf.InsertRecord([]byte("payload"))
		require.NoError(t, err)
		owned[rid.Page] = true
	}
	require.NoError(t, hf.Close())

	// every page the file owned is free again, so the disk manager hands
	// each of them back out before it grows the backing file
	for range owned {
		pid, err := dm.AllocatePage()
		require.NoError(t, err)
		require.True(t, owned[pid], "allocation after destroy returned %v, not a freed page", pid)
	}
}

func TestDestroyNamedFileRemovesRegistration(t *testing.T) {
	dm, bm := newHarness(t)
	hf, err := heap.Open("customers", dm, bm, testPageSize, nil)
	require.NoError(t, err)

	rid, err := hf.InsertRecord([]byte("a"))
	require.NoError(t, err)
	require.NoError(t, hf.DeleteRecord(rid))

	n, err := hf.GetRecordCount()
	require.NoError(t, err)
	require.Equal(t, 0, n)

	require.NoError(t, hf.Destroy())
	_, ok := dm.GetFileEntry("customers")
	require.False(t, ok)
}

func TestReopenByNamePreservesState(t *testing.T) {
	dm, bm := newHarness(t)
	hf1, err := heap.Open("B", dm, bm, testPageSize, nil)
	require.NoError(t, err)
	rid, err := hf1.InsertRecord([]byte("persisted"))
	require.NoError(t, err)

	hf2, err := heap.Open("B", dm, bm, testPageSize, nil)
	require.NoError(t, err)
	require.Equal(t, hf1.HeadID(), hf2.HeadID())

	got, err := hf2.SelectRecord(rid)
	require.NoError(t, err)
	require.Equal(t, []byte("persisted"), got)
}

func TestHeadDirectoryNeverFreedAfterFullDeletion(t *testing.T) {
	dm, bm := newHarness(t)
	hf, err := heap.Open("", dm, bm, testPageSize, nil)
	require.NoError(t, err)
	headBefore := hf.HeadID()

	var rids []heap.RID
	for i := 0; i < 5; i++ {
		rid, err := hf.InsertRecord([]byte("abc"))
		require.NoError(t, err)
		rids = append(rids, rid)
	}
	for _, rid := range rids {
		require.NoError(t, hf.DeleteRecord(rid))
	}

	n, err := hf.GetRecordCount()
	require.NoError(t, err)
	require.Equal(t, 0, n)
	require.Equal(t, headBefore, hf.HeadID())

	// the head directory page must still be pinnable and readable
	rid, err := hf.InsertRecord([]byte("new"))
	require.NoError(t, err)
	got, err := hf.SelectRecord(rid)
	require.NoError(t, err)
	require.Equal(t, []byte("new"), got)
}

func TestPinBalanceAfterOperations(t *testing.T) {
	dm, bm := newHarness(t)
	hf, err := heap.Open("", dm, bm, testPageSize, nil)
	require.NoError(t, err)

	rid, err := hf.InsertRecord([]byte("hello"))
	require.NoError(t, err)
	require.Equal(t, 0, bm.PinCount(rid.Page))
	require.Equal(t, 0, bm.PinCount(hf.HeadID()))

	_, err = hf.SelectRecord(rid)
	require.NoError(t, err)
	require.Equal(t, 0, bm.PinCount(rid.Page))

	require.NoError(t, hf.UpdateRecord(rid, []byte("world")))
	require.Equal(t, 0, bm.PinCount(rid.Page))

	require.NoError(t, hf.DeleteRecord(rid))
	require.Equal(t, 0, bm.PinCount(rid.Page))
	require.Equal(t, 0, bm.PinCount(hf.HeadID()))
}
