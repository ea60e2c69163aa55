// Package catalog tracks open heap files by name so a caller (e.g. the
// CLI) does not have to resolve a name through the disk manager on every
// operation.
package catalog

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/malzahar-project/heapdb/buffer"
	"github.com/malzahar-project/heapdb/disk"
	"github.com/malzahar-project/heapdb/heap"
)

// Catalog is a by-name registry of open *heap.HeapFile handles.
type Catalog struct {
	dm       *disk.Manager
	bm       *buffer.Manager
	pageSize int
	log      *logrus.Entry

	mu    sync.Mutex
	files map[string]*heap.HeapFile
}

// New builds an empty Catalog backed by dm/bm.
func New(dm *disk.Manager, bm *buffer.Manager, pageSize int, log *logrus.Entry) *Catalog {
	if log == nil {
		log = logrus.NewEntry(logrus.New())
	}
	return &Catalog{dm: dm, bm: bm, pageSize: pageSize, log: log, files: make(map[string]*heap.HeapFile)}
}

// Open binds name to a heap file, opening or creating it, and caches the
// handle for subsequent Get calls.
func (c *Catalog) Open(name string) (*heap.HeapFile, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if hf, ok := c.files[name]; ok {
		return hf, nil
	}
	hf, err := heap.Open(name, c.dm, c.bm, c.pageSize, c.log.WithField("heapfile", name))
	if err != nil {
		return nil, fmt.Errorf("catalog: open %q: %w", name, err)
	}
	c.files[name] = hf
	return hf, nil
}

// Get returns an already-open heap file by name, failing if it was never
// opened through this catalog.
func (c *Catalog) Get(name string) (*heap.HeapFile, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	hf, ok := c.files[name]
	if !ok {
		return nil, fmt.Errorf("catalog: %q is not open", name)
	}
	return hf, nil
}

// Drop destroys and forgets the named heap file.
func (c *Catalog) Drop(name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	hf, ok := c.files[name]
	if !ok {
		return fmt.Errorf("catalog: %q is not open", name)
	}
	if err := hf.Destroy(); err != nil {
		return err
	}
	delete(c.files, name)
	return nil
}

// DropAll destroys every heap file currently tracked by the catalog.
func (c *Catalog) DropAll() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for name, hf := range c.files {
		if err := hf.Destroy(); err != nil {
			return fmt.Errorf("catalog: drop %q: %w", name, err)
		}
		delete(c.files, name)
	}
	return nil
}

// Names lists every heap file name currently open in the catalog.
func (c *Catalog) Names() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.files))
	for name := range c.files {
		out = append(out, name)
	}
	return out
}

// Scratch opens a temporary, unregistered heap file under a throwaway
// logging id, for callers that want a disposable heap file without
// polluting the disk manager's name registry. The handle is not tracked by
// the catalog; the caller releases it with Close.
func (c *Catalog) Scratch() (*heap.HeapFile, error) {
	scratchID := uuid.NewString()
	hf, err := heap.Open("", c.dm, c.bm, c.pageSize, c.log.WithField("scratch", scratchID))
	if err != nil {
		return nil, fmt.Errorf("catalog: scratch %s: %w", scratchID, err)
	}
	return hf, nil
}
