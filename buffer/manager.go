// Package buffer implements the buffer manager: it pins disk pages into a
// fixed pool of in-memory frames, tracks pin counts and dirty bits, and
// evicts via a configurable replacement policy when the pool is full.
package buffer

import (
	"container/list"
	"errors"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/malzahar-project/heapdb/config"
	"github.com/malzahar-project/heapdb/disk"
)

// PinMode selects how PinPage populates a frame.
type PinMode int

const (
	// DiskIO reads the page from disk (or reuses a cached frame).
	DiskIO PinMode = iota
	// MemCopy installs data the caller already has in memory, bypassing a
	// disk read — used when the heap layer materializes a freshly
	// allocated page whose on-disk contents are irrelevant.
	MemCopy
)

// UnpinState tells UnpinPage whether the frame was mutated in this scope.
type UnpinState int

const (
	Clean UnpinState = iota
	Dirty
)

// Frame is one buffer-pool slot.
type Frame struct {
	PageID   disk.PageID
	Data     []byte
	PinCount int
	IsDirty  bool
}

// Manager is the buffer manager described in spec.md §6: PinPage / UnpinPage
// / FreePage, with LRU or MRU eviction among unpinned frames.
type Manager struct {
	dm     *disk.Manager
	mu     sync.Mutex
	frames []*Frame
	policy config.ReplacementPolicy

	repl   *list.List
	lookup map[disk.PageID]*list.Element

	log *logrus.Entry
}

// NewManager builds a Manager with frameCount frames, each pageSize bytes.
func NewManager(dm *disk.Manager, frameCount, pageSize int, policy config.ReplacementPolicy, log *logrus.Entry) *Manager {
	if log == nil {
		log = logrus.NewEntry(logrus.New())
	}
	if policy == "" {
		policy = config.PolicyLRU
	}
	bm := &Manager{
		dm:     dm,
		frames: make([]*Frame, frameCount),
		policy: policy,
		repl:   list.New(),
		lookup: make(map[disk.PageID]*list.Element),
		log:    log,
	}
	for i := range bm.frames {
		bm.frames[i] = &Frame{PageID: disk.InvalidPageID, Data: make([]byte, pageSize)}
	}
	return bm
}

// PinPage returns the frame holding pageID, loading it (DiskIO) or installing
// data (MemCopy) if it is not already resident. Every call increments the
// frame's pin count; callers must call UnpinPage exactly once per PinPage.
func (bm *Manager) PinPage(pageID disk.PageID, mode PinMode, memData []byte) (*Frame, error) {
	bm.mu.Lock()
	defer bm.mu.Unlock()

	if el, ok := bm.lookup[pageID]; ok {
		bm.touch(el)
		fr := el.Value.(*Frame)
		fr.PinCount++
		bm.log.WithField("page", pageID).Debug("pin: already resident")
		return fr, nil
	}

	for _, fr := range bm.frames {
		if fr.PinCount == 0 && fr.PageID == disk.InvalidPageID {
			if err := bm.populate(fr, pageID, mode, memData); err != nil {
				return nil, err
			}
			el := bm.repl.PushBack(fr)
			bm.lookup[pageID] = el
			bm.log.WithField("page", pageID).Debug("pin: used free frame")
			return fr, nil
		}
	}

	victimEl := bm.victim()
	if victimEl == nil {
		return nil, errors.New("buffer: no frame available to evict (all pinned)")
	}
	victim := victimEl.Value.(*Frame)
	if victim.IsDirty {
		if err := bm.dm.WritePage(victim.PageID, victim.Data); err != nil {
			return nil, fmt.Errorf("buffer: flush victim %v: %w", victim.PageID, err)
		}
	}
	delete(bm.lookup, victim.PageID)
	if err := bm.populate(victim, pageID, mode, memData); err != nil {
		return nil, err
	}
	bm.touch(victimEl)
	bm.lookup[pageID] = victimEl
	bm.log.WithFields(logrus.Fields{"page": pageID, "evicted": victim.PageID}).Debug("pin: evicted victim")
	return victim, nil
}

func (bm *Manager) populate(fr *Frame, pageID disk.PageID, mode PinMode, memData []byte) error {
	switch mode {
	case DiskIO:
		data, err := bm.dm.ReadPage(pageID)
		if err != nil {
			return fmt.Errorf("buffer: read %v: %w", pageID, err)
		}
		copy(fr.Data, data)
	case MemCopy:
		for i := range fr.Data {
			fr.Data[i] = 0
		}
		copy(fr.Data, memData)
	default:
		return fmt.Errorf("buffer: unknown pin mode %d", mode)
	}
	fr.PageID = pageID
	fr.PinCount = 1
	fr.IsDirty = false
	return nil
}

// touch marks el as the most recently used frame. repl is kept in recency
// order (front = least recent, back = most recent) for both policies; only
// victim's search direction differs.
func (bm *Manager) touch(el *list.Element) {
	bm.repl.MoveToBack(el)
}

func (bm *Manager) victim() *list.Element {
	var el *list.Element
	if bm.policy == config.PolicyLRU {
		el = bm.repl.Front()
	} else {
		el = bm.repl.Back()
	}
	for el != nil {
		if el.Value.(*Frame).PinCount == 0 {
			return el
		}
		if bm.policy == config.PolicyLRU {
			el = el.Next()
		} else {
			el = el.Prev()
		}
	}
	return nil
}

// UnpinPage releases one pin on pageID, marking the frame dirty if state is
// Dirty. It is an error to unpin a page with no outstanding pins.
func (bm *Manager) UnpinPage(pageID disk.PageID, state UnpinState) error {
	bm.mu.Lock()
	defer bm.mu.Unlock()
	el, ok := bm.lookup[pageID]
	if !ok {
		return fmt.Errorf("buffer: unpin: page %v not resident", pageID)
	}
	fr := el.Value.(*Frame)
	if fr.PinCount == 0 {
		return fmt.Errorf("buffer: unpin: page %v has no outstanding pins", pageID)
	}
	fr.PinCount--
	if state == Dirty {
		fr.IsDirty = true
	}
	bm.log.WithFields(logrus.Fields{"page": pageID, "dirty": state == Dirty, "pinCount": fr.PinCount}).Debug("unpin")
	return nil
}

// FreePage drops pageID's frame if it is resident (a dirty frame is
// discarded without being written back) and asks the disk manager to free
// the page. It fails if pageID still has outstanding pins.
func (bm *Manager) FreePage(pageID disk.PageID) error {
	bm.mu.Lock()
	if el, ok := bm.lookup[pageID]; ok {
		fr := el.Value.(*Frame)
		if fr.PinCount > 0 {
			bm.mu.Unlock()
			return fmt.Errorf("buffer: free: page %v still pinned", pageID)
		}
		bm.repl.Remove(el)
		delete(bm.lookup, pageID)
		fr.PageID = disk.InvalidPageID
		fr.IsDirty = false
	}
	bm.mu.Unlock()
	bm.log.WithField("page", pageID).Debug("free")
	return bm.dm.FreePage(pageID)
}

// FlushAll writes back every dirty frame without evicting it.
func (bm *Manager) FlushAll() error {
	bm.mu.Lock()
	defer bm.mu.Unlock()
	for _, fr := range bm.frames {
		if fr.IsDirty && fr.PageID != disk.InvalidPageID {
			if err := bm.dm.WritePage(fr.PageID, fr.Data); err != nil {
				return fmt.Errorf("buffer: flush %v: %w", fr.PageID, err)
			}
			fr.IsDirty = false
		}
	}
	return nil
}

// PinCount reports the current pin count for pageID (0 if not resident) —
// exposed for tests that verify the pin-balance property.
func (bm *Manager) PinCount(pageID disk.PageID) int {
	bm.mu.Lock()
	defer bm.mu.Unlock()
	el, ok := bm.lookup[pageID]
	if !ok {
		return 0
	}
	return el.Value.(*Frame).PinCount
}
