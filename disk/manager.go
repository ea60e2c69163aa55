// Package disk implements page-level allocation and raw I/O on a set of
// fixed-size backing files, plus a named-file registry mapping a heap
// file's name to the page id of its head directory page.
package disk

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/sirupsen/logrus"
)

// PageID identifies a physical page: FileIdx selects the backing file
// (Data<FileIdx>.bin) and PageIdx is the page's 0-based offset within it.
type PageID struct {
	FileIdx int
	PageIdx int
}

// InvalidPageID is the spec's INVALID sentinel: "no page".
var InvalidPageID = PageID{FileIdx: -1, PageIdx: -1}

// Valid reports whether p is not the INVALID sentinel.
func (p PageID) Valid() bool { return p != InvalidPageID }

func (p PageID) String() string { return fmt.Sprintf("%d:%d", p.FileIdx, p.PageIdx) }

// Manager handles page-level allocation and I/O on Data<N>.bin files under
// dataDir/pages, plus a name -> head-page-id registry persisted as a JSON
// side file.
type Manager struct {
	pageSize     int
	maxFileCount int
	binDir       string
	registryPath string

	mu       sync.Mutex
	bitmaps  map[int][]byte
	registry map[string]PageID

	log *logrus.Entry
}

// NewManager constructs a Manager. Call Init before use.
func NewManager(dataDir string, pageSize, maxFileCount int, log *logrus.Entry) *Manager {
	if log == nil {
		log = logrus.NewEntry(logrus.New())
	}
	return &Manager{
		pageSize:     pageSize,
		maxFileCount: maxFileCount,
		binDir:       filepath.Join(dataDir, "pages"),
		registryPath: filepath.Join(dataDir, "registry.json"),
		bitmaps:      make(map[int][]byte),
		registry:     make(map[string]PageID),
		log:          log,
	}
}

// Init creates the backing directory, ensures Data0.bin exists, and loads
// the persisted name registry (if any).
func (m *Manager) Init() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := os.MkdirAll(m.binDir, 0o755); err != nil {
		return fmt.Errorf("disk: init: %w", err)
	}
	path := m.dataPath(0)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		f, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("disk: create Data0.bin: %w", err)
		}
		f.Close()
	}
	if err := m.loadBitmap(0); err != nil {
		return err
	}
	if err := m.loadRegistry(); err != nil {
		return err
	}
	return nil
}

func (m *Manager) bitmapPath(idx int) string {
	return filepath.Join(m.binDir, fmt.Sprintf("Data%d.bitmap", idx))
}

func (m *Manager) dataPath(idx int) string {
	return filepath.Join(m.binDir, fmt.Sprintf("Data%d.bin", idx))
}

func (m *Manager) loadBitmap(idx int) error {
	p := m.bitmapPath(idx)
	if _, err := os.Stat(p); os.IsNotExist(err) {
		m.bitmaps[idx] = []byte{}
		if f, err := os.Create(p); err == nil {
			f.Close()
		}
		return nil
	}
	data, err := os.ReadFile(p)
	if err != nil {
		return fmt.Errorf("disk: read bitmap %d: %w", idx, err)
	}
	m.bitmaps[idx] = data
	return nil
}

func (m *Manager) persistBitmap(idx int) error {
	if err := os.WriteFile(m.bitmapPath(idx), m.bitmaps[idx], 0o644); err != nil {
		return fmt.Errorf("disk: persist bitmap %d: %w", idx, err)
	}
	return nil
}

func (m *Manager) loadRegistry() error {
	data, err := os.ReadFile(m.registryPath)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("disk: read registry: %w", err)
	}
	raw := map[string][2]int{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("disk: decode registry: %w", err)
	}
	for name, pair := range raw {
		m.registry[name] = PageID{FileIdx: pair[0], PageIdx: pair[1]}
	}
	return nil
}

func (m *Manager) persistRegistry() error {
	raw := make(map[string][2]int, len(m.registry))
	for name, pid := range m.registry {
		raw[name] = [2]int{pid.FileIdx, pid.PageIdx}
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return fmt.Errorf("disk: encode registry: %w", err)
	}
	if err := os.WriteFile(m.registryPath, data, 0o644); err != nil {
		return fmt.Errorf("disk: persist registry: %w", err)
	}
	return nil
}

// AllocatePage reserves a fresh page, reusing a freed slot in Data0's bitmap
// if there is one, else growing Data0.bin by one page. Backing files have no
// size cap, so allocation never moves on to a later file index.
func (m *Manager) AllocatePage() (PageID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.pageSize <= 0 {
		return PageID{}, errors.New("disk: invalid page size")
	}
	for idx := 0; idx < m.maxFileCount; idx++ {
		if _, ok := m.bitmaps[idx]; !ok {
			if err := m.loadBitmap(idx); err != nil {
				return PageID{}, err
			}
		}
		bmp := m.bitmaps[idx]
		for i, used := range bmp {
			if used == 0 {
				m.bitmaps[idx][i] = 1
				if err := m.persistBitmap(idx); err != nil {
					return PageID{}, err
				}
				pid := PageID{FileIdx: idx, PageIdx: i}
				m.log.WithField("page", pid).Debug("allocated page (reused slot)")
				return pid, nil
			}
		}
		f, err := os.OpenFile(m.dataPath(idx), os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0o644)
		if err != nil {
			return PageID{}, fmt.Errorf("disk: grow Data%d.bin: %w", idx, err)
		}
		_, werr := f.Write(make([]byte, m.pageSize))
		f.Close()
		if werr != nil {
			return PageID{}, fmt.Errorf("disk: grow Data%d.bin: %w", idx, werr)
		}
		m.bitmaps[idx] = append(m.bitmaps[idx], 1)
		if err := m.persistBitmap(idx); err != nil {
			return PageID{}, err
		}
		pid := PageID{FileIdx: idx, PageIdx: len(m.bitmaps[idx]) - 1}
		m.log.WithField("page", pid).Debug("allocated page (grew file)")
		return pid, nil
	}
	return PageID{}, errors.New("disk: no space: reached max file count")
}

// FreePage marks a page as reusable.
func (m *Manager) FreePage(pid PageID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkBounds(pid); err != nil {
		return err
	}
	m.bitmaps[pid.FileIdx][pid.PageIdx] = 0
	m.log.WithField("page", pid).Debug("freed page")
	return m.persistBitmap(pid.FileIdx)
}

func (m *Manager) checkBounds(pid PageID) error {
	if pid.FileIdx < 0 || pid.FileIdx >= m.maxFileCount {
		return fmt.Errorf("disk: invalid file index %d", pid.FileIdx)
	}
	if _, ok := m.bitmaps[pid.FileIdx]; !ok {
		if err := m.loadBitmap(pid.FileIdx); err != nil {
			return err
		}
	}
	if pid.PageIdx < 0 || pid.PageIdx >= len(m.bitmaps[pid.FileIdx]) {
		return fmt.Errorf("disk: invalid page index %d", pid.PageIdx)
	}
	return nil
}

// WritePage writes exactly one page worth of bytes (zero-padded to
// PageSize) at pid's offset. Data longer than PageSize is rejected.
func (m *Manager) WritePage(pid PageID, data []byte) error {
	if len(data) > m.pageSize {
		return errors.New("disk: data larger than page size")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkBounds(pid); err != nil {
		return err
	}
	f, err := os.OpenFile(m.dataPath(pid.FileIdx), os.O_RDWR, 0o644)
	if err != nil {
		return fmt.Errorf("disk: open for write: %w", err)
	}
	defer f.Close()
	off := int64(pid.PageIdx) * int64(m.pageSize)
	if stat, err := f.Stat(); err == nil && stat.Size() < off+int64(m.pageSize) {
		if _, err := f.Seek(0, io.SeekEnd); err != nil {
			return fmt.Errorf("disk: seek: %w", err)
		}
		if _, err := f.Write(make([]byte, off+int64(m.pageSize)-stat.Size())); err != nil {
			return fmt.Errorf("disk: extend: %w", err)
		}
	}
	buf := make([]byte, m.pageSize)
	copy(buf, data)
	if _, err := f.WriteAt(buf, off); err != nil {
		return fmt.Errorf("disk: write at %v: %w", pid, err)
	}
	return f.Sync()
}

// ReadPage reads exactly one page's worth of bytes.
func (m *Manager) ReadPage(pid PageID) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkBounds(pid); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(m.dataPath(pid.FileIdx), os.O_RDONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("disk: open for read: %w", err)
	}
	defer f.Close()
	buf := make([]byte, m.pageSize)
	off := int64(pid.PageIdx) * int64(m.pageSize)
	if _, err := f.ReadAt(buf, off); err != nil && err != io.EOF {
		return nil, fmt.Errorf("disk: read at %v: %w", pid, err)
	}
	return buf, nil
}

// GetFileEntry looks up the head page id registered under name.
func (m *Manager) GetFileEntry(name string) (PageID, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	pid, ok := m.registry[name]
	return pid, ok
}

// AddFileEntry registers name -> head, persisting the registry.
func (m *Manager) AddFileEntry(name string, head PageID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.registry[name]; exists {
		return fmt.Errorf("disk: file entry %q already exists", name)
	}
	m.registry[name] = head
	return m.persistRegistry()
}

// DeleteFileEntry removes name's registration.
func (m *Manager) DeleteFileEntry(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.registry[name]; !exists {
		return fmt.Errorf("disk: file entry %q not found", name)
	}
	delete(m.registry, name)
	return m.persistRegistry()
}

// PageSize returns the configured page size.
func (m *Manager) PageSize() int { return m.pageSize }
