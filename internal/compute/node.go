// Package compute implements compute nodes: per-node buffer pools, an MTR
// builder with an Empty/Staged state machine, and a read point that provides
// snapshot isolation between nodes sharing one storage engine.
package compute

import (
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/linux/projects/logstore/internal/record"
)

// ErrNotFound is returned by Get when no record exists for the page at or
// before the node's current read point.
var ErrNotFound = errors.New("logstore: page not found")

// ErrEmptyMTR is returned by CommitMTR when no records were staged.
var ErrEmptyMTR = errors.New("logstore: empty mtr")

// ErrPageOverflow is returned when a staged write's offset+len would run
// past the end of a page.
var ErrPageOverflow = errors.New("logstore: page overflow")

// Storage is the subset of the engine a compute node depends on.
type Storage interface {
	AppendMTR(records []record.Record) (record.LSN, error)
	ReadPageAt(pageID record.PageID, lsn record.LSN) (data []byte, found bool, err error)
	Durability() (vcl, vdl record.LSN)
}

type bufferedPage struct {
	data []byte
	asOf record.LSN
}

// mtrState is the pending MTR builder's state machine: Empty -> Staged on
// BeginMTR or the first Stage call, Staged -> Empty on CommitMTR or AbortMTR.
type mtrState int

const (
	mtrEmpty mtrState = iota
	mtrStaged
)

// Node is one compute node: its own buffer pool and read point over a
// shared Storage engine. Nodes never see each other's uncommitted or
// unrefreshed state.
type Node struct {
	mu sync.Mutex

	id        string
	storage   Storage
	pageSize  int
	readPoint record.LSN

	bufferPool map[record.PageID]bufferedPage

	state   mtrState
	pending []record.Record
}

// New creates a compute node bound to storage, with a freshly generated
// node identifier and read point 0.
func New(storage Storage, pageSize int) *Node {
	return &Node{
		id:         uuid.New().String(),
		storage:    storage,
		pageSize:   pageSize,
		bufferPool: make(map[record.PageID]bufferedPage),
		state:      mtrEmpty,
	}
}

// ID returns this node's generated identifier.
func (n *Node) ID() string { return n.id }

// ReadPoint returns the LSN at which this node currently observes storage.
func (n *Node) ReadPoint() record.LSN {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.readPoint
}

// Put stages a single-record MTR and commits it immediately: the spec's
// "implicit commit per statement" semantics. It invalidates the touched
// page in this node's buffer pool and advances the read point to the new
// commit LSN.
func (n *Node) Put(pageID record.PageID, offset uint32, data []byte) (record.LSN, error) {
	if !record.FitsPage(offset, len(data), n.pageSize) {
		return 0, fmt.Errorf("put page %d: %w", pageID, ErrPageOverflow)
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	r := record.Record{PageID: pageID, Offset: offset, Payload: data, IsCPL: true}
	lsn, err := n.storage.AppendMTR([]record.Record{r})
	if err != nil {
		return 0, err
	}

	delete(n.bufferPool, pageID)
	n.readPoint = lsn
	return lsn, nil
}

// BeginMTR starts a grouped mini-transaction. It is an error to call it
// while one is already staged.
func (n *Node) BeginMTR() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.pending) > 0 {
		return errors.New("logstore: mtr already staged")
	}
	n.state = mtrStaged
	n.pending = n.pending[:0]
	return nil
}

// Stage adds one record to the pending grouped MTR without committing it.
func (n *Node) Stage(pageID record.PageID, offset uint32, data []byte) error {
	if !record.FitsPage(offset, len(data), n.pageSize) {
		return fmt.Errorf("stage page %d: %w", pageID, ErrPageOverflow)
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	n.state = mtrStaged
	n.pending = append(n.pending, record.Record{PageID: pageID, Offset: offset, Payload: data})
	return nil
}

// CommitMTR marks the last staged record as the CPL, appends the whole
// group atomically, invalidates touched buffer-pool entries, and advances
// the read point. Nothing staged before CommitMTR is visible to any reader.
func (n *Node) CommitMTR() (record.LSN, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if len(n.pending) == 0 {
		return 0, ErrEmptyMTR
	}

	records := make([]record.Record, len(n.pending))
	copy(records, n.pending)
	records[len(records)-1].IsCPL = true

	lsn, err := n.storage.AppendMTR(records)
	if err != nil {
		return 0, err
	}

	for _, r := range records {
		delete(n.bufferPool, r.PageID)
	}

	n.pending = nil
	n.state = mtrEmpty
	n.readPoint = lsn
	return lsn, nil
}

// AbortMTR discards the pending group: no LSNs are consumed.
func (n *Node) AbortMTR() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.pending = nil
	n.state = mtrEmpty
}

// Get returns pageID's bytes as of this node's read point, filling the
// buffer pool from storage on a miss. It returns ErrNotFound if the page
// has never been written at or before the read point.
func (n *Node) Get(pageID record.PageID) ([]byte, error) {
	n.mu.Lock()
	readPoint := n.readPoint
	if bp, ok := n.bufferPool[pageID]; ok && bp.asOf <= readPoint {
		data := make([]byte, len(bp.data))
		copy(data, bp.data)
		n.mu.Unlock()
		return data, nil
	}
	n.mu.Unlock()

	page, found, err := n.storage.ReadPageAt(pageID, readPoint)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("get page %d: %w", pageID, ErrNotFound)
	}

	n.mu.Lock()
	n.bufferPool[pageID] = bufferedPage{data: page, asOf: readPoint}
	n.mu.Unlock()

	out := make([]byte, len(page))
	copy(out, page)
	return out, nil
}

// Refresh advances this node's read point to storage's current VDL and
// drops any buffer-pool entries materialized before an earlier read point.
// It does not prefetch; subsequent Get calls refill on miss.
func (n *Node) Refresh() {
	_, vdl := n.storage.Durability()

	n.mu.Lock()
	defer n.mu.Unlock()
	if vdl < n.readPoint {
		return
	}
	n.readPoint = vdl
	for pageID, bp := range n.bufferPool {
		if bp.asOf < n.readPoint {
			delete(n.bufferPool, pageID)
		}
	}
}

