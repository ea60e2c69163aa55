package disk_test

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/malzahar-project/heapdb/disk"
)

func newManager(t *testing.T) *disk.Manager {
	t.Helper()
	dir := t.TempDir()
	m := disk.NewManager(dir, 512, 4, nil)
	require.NoError(t, m.Init())
	return m
}

func TestAllocateWriteReadRoundTrip(t *testing.T) {
	m := newManager(t)
	pid, err := m.AllocatePage()
	require.NoError(t, err)

	payload := []byte("hello, heap")
	require.NoError(t, m.WritePage(pid, payload))

	got, err := m.ReadPage(pid)
	require.NoError(t, err)
	require.Equal(t, payload, got[:len(payload)])
}

func TestAllocatePageGrowsAndReusesFreedSlots(t *testing.T) {
	m := newManager(t)
	p1, err := m.AllocatePage()
	require.NoError(t, err)
	p2, err := m.AllocatePage()
	require.NoError(t, err)
	require.NotEqual(t, p1, p2)

	require.NoError(t, m.FreePage(p1))
	p3, err := m.AllocatePage()
	require.NoError(t, err)
	require.Equal(t, p1, p3, "freed slot should be reused before growing the file")
}

func TestReadWriteOutOfBoundsFails(t *testing.T) {
	m := newManager(t)
	_, err := m.ReadPage(disk.PageID{FileIdx: 0, PageIdx: 99})
	require.Error(t, err)
}

func TestFileEntryRegistry(t *testing.T) {
	m := newManager(t)
	pid, err := m.AllocatePage()
	require.NoError(t, err)

	_, ok := m.GetFileEntry("orders")
	require.False(t, ok)

	require.NoError(t, m.AddFileEntry("orders", pid))
	got, ok := m.GetFileEntry("orders")
	require.True(t, ok)
	require.Equal(t, pid, got)

	require.Error(t, m.AddFileEntry("orders", pid), "duplicate registration must fail")

	require.NoError(t, m.DeleteFileEntry("orders"))
	_, ok = m.GetFileEntry("orders")
	require.False(t, ok)
	require.Error(t, m.DeleteFileEntry("orders"))
}

func TestRegistryPersistsAcrossManagerInstances(t *testing.T) {
	dir := t.TempDir()
	m1 := disk.NewManager(dir, 512, 4, nil)
	require.NoError(t, m1.Init())
	pid, err := m1.AllocatePage()
	require.NoError(t, err)
	require.NoError(t, m1.AddFileEntry("customers", pid))

	m2 := disk.NewManager(dir, 512, 4, nil)
	require.NoError(t, m2.Init())
	got, ok := m2.GetFileEntry("customers")
	require.True(t, ok)
	require.Equal(t, pid, got)
	_ = filepath.Join(dir, "pages")
}
