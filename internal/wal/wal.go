// Package wal implements the append-only write-ahead log: durable,
// CRC-protected redo records with a per-page prev-LSN chain, an LSN offset
// index for O(1) random reads, and crash recovery that truncates any
// trailing partial mini-transaction.
package wal

import (
	"fmt"
	"os"
	"sync"

	"github.com/linux/projects/logstore/internal/record"
	"github.com/linux/projects/logstore/internal/trace"
)

// WAL is the durable log. All exported methods are safe for concurrent use;
// callers needing a consistent (page index, VCL, VDL) snapshot across
// multiple calls (as the engine does) must hold their own lock around the
// sequence — the WAL only guarantees each individual call is atomic.
type WAL struct {
	mu   sync.Mutex
	file *os.File
	path string

	nextLSN    record.LSN
	lsnOffsets map[record.LSN]int64
	pageIndex  map[record.PageID]record.LSN
	writeAt    int64

	vcl record.LSN
	vdl record.LSN

	engineID string
	sink     trace.Sink

	onCommit CommitFunc
}

// CommitFunc is invoked after a successful Append with the exact byte range
// [from, to) just written durably, and the LSNs bounding that range. It is
// used by the segment archiver to ship sealed bytes off-box without the WAL
// knowing anything about S3; it runs synchronously under the WAL's lock, so
// implementations must not block and should hand work to a goroutine/queue.
type CommitFunc func(from, to int64, fromLSN, toLSN record.LSN)

// Option configures a WAL at Open time.
type Option func(*WAL)

// WithSink attaches a trace sink; the zero value is trace.Nop().
func WithSink(sink trace.Sink) Option {
	return func(w *WAL) { w.sink = sink }
}

// WithCommitHook registers fn to be called after every successful Append.
func WithCommitHook(fn CommitFunc) Option {
	return func(w *WAL) { w.onCommit = fn }
}

// WithEngineID tags emitted events with an engine identifier.
func WithEngineID(id string) Option {
	return func(w *WAL) { w.engineID = id }
}

// Open opens an existing WAL file or creates a new one, running crash
// recovery (see recovery.go) when the file already has content.
func Open(path string, opts ...Option) (*WAL, error) {
	w := &WAL{
		path:       path,
		lsnOffsets: make(map[record.LSN]int64),
		pageIndex:  make(map[record.PageID]record.LSN),
		sink:       trace.Nop(),
	}
	for _, opt := range opts {
		opt(w)
	}

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, fmt.Errorf("%w: open wal: %v", ErrIO, err)
	}
	w.file = f

	if err := w.recover(); err != nil {
		f.Close()
		return nil, err
	}

	return w, nil
}

// Append writes one atomic MTR (or several back-to-back) to the log. records
// must be non-empty and the last record must have IsCPL set. LSN and PrevLSN
// on the input records are ignored and assigned by Append. It returns the
// LSN of the final (CPL) record.
func (w *WAL) Append(records []record.Record) (record.LSN, error) {
	if len(records) == 0 {
		return 0, ErrInvalidMTR
	}
	if !records[len(records)-1].IsCPL {
		return 0, ErrInvalidMTR
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	var buf []byte
	highestCPL := record.LSN(0)
	finalLSN := record.LSN(0)

	// Assign LSNs and prev_lsn pointers up front so that a record earlier in
	// the same batch can be chained to by a later one targeting the same page.
	assigned := make([]record.Record, len(records))
	offsets := make([]int64, len(records))
	startOffset := w.writeAt
	offset := w.writeAt

	for i, r := range records {
		w.nextLSN++
		r.LSN = w.nextLSN
		if prev, ok := w.pageIndex[r.PageID]; ok {
			r.PrevLSN = prev
		} else {
			r.PrevLSN = record.NoLSN
		}
		w.pageIndex[r.PageID] = r.LSN

		encoded := record.Encode(r)
		offsets[i] = offset
		offset += int64(len(encoded))
		buf = append(buf, encoded...)

		assigned[i] = r
		if r.IsCPL && r.LSN > highestCPL {
			highestCPL = r.LSN
		}
		finalLSN = r.LSN
	}

	if _, err := w.file.WriteAt(buf, w.writeAt); err != nil {
		return 0, fmt.Errorf("%w: append: %v", ErrIO, err)
	}
	if err := w.file.Sync(); err != nil {
		return 0, fmt.Errorf("%w: fsync: %v", ErrIO, err)
	}

	for i, r := range assigned {
		w.lsnOffsets[r.LSN] = offsets[i]
		w.sink.Emit(trace.Event{Kind: trace.KindWALAppend, EngineID: w.engineID, LSN: uint64(r.LSN), PageID: uint64(r.PageID)})
	}
	w.writeAt = offset

	prevVCL, prevVDL := w.vcl, w.vdl
	w.vcl = finalLSN
	if highestCPL > w.vdl {
		w.vdl = highestCPL
	}
	if w.vcl != prevVCL {
		w.sink.Emit(trace.Event{Kind: trace.KindVCLAdvance, EngineID: w.engineID, From: uint64(prevVCL), To: uint64(w.vcl)})
	}
	if w.vdl != prevVDL {
		w.sink.Emit(trace.Event{Kind: trace.KindVDLAdvance, EngineID: w.engineID, From: uint64(prevVDL), To: uint64(w.vdl)})
	}

	if w.onCommit != nil {
		w.onCommit(startOffset, offset, assigned[0].LSN, finalLSN)
	}

	return finalLSN, nil
}

// Durability returns the current (VCL, VDL) watermarks.
func (w *WAL) Durability() (vcl, vdl record.LSN) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.vcl, w.vdl
}

// LatestLSNForPage returns the highest LSN on record for pageID, or NoLSN if
// the page has never been written.
func (w *WAL) LatestLSNForPage(pageID record.PageID) record.LSN {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.pageIndex[pageID]
}

// Close flushes and closes the underlying file.
func (w *WAL) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.file.Close(); err != nil {
		return fmt.Errorf("%w: close: %v", ErrIO, err)
	}
	return nil
}

// Path returns the WAL file path this instance was opened with.
func (w *WAL) Path() string { return w.path }
