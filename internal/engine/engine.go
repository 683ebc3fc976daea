// Package engine composes the WAL and the page materializer behind the
// storage API that compute nodes talk to: append_mtr, read_page_at,
// durability. All mutating and durability-observing calls are serialized by
// a single engine-level lock, per the spec's concurrency model.
package engine

import (
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/linux/projects/logstore/internal/cache"
	"github.com/linux/projects/logstore/internal/materializer"
	"github.com/linux/projects/logstore/internal/record"
	"github.com/linux/projects/logstore/internal/trace"
	"github.com/linux/projects/logstore/internal/wal"
)

// DefaultPageSize matches the spec's build-constant page size.
const DefaultPageSize = 4096

// DefaultCacheCapacity is the default LRU capacity, in pages.
const DefaultCacheCapacity = 128

// Config configures a new Engine.
type Config struct {
	WALPath       string
	PageSize      int
	CacheCapacity int
	Sink          trace.Sink
	Archive       ArchiveConfig
}

// Engine is the storage engine: one WAL, one materializer, one id, one lock.
type Engine struct {
	mu sync.Mutex

	id       string
	pageSize int
	wal      *wal.WAL
	mat      *materializer.Materializer
	sink     trace.Sink
	arc      *archiver
}

// Open creates or recovers an Engine rooted at cfg.WALPath.
func Open(cfg Config) (*Engine, error) {
	pageSize := cfg.PageSize
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	cacheCapacity := cfg.CacheCapacity
	if cacheCapacity <= 0 {
		cacheCapacity = DefaultCacheCapacity
	}
	sink := cfg.Sink
	if sink == nil {
		sink = trace.Nop()
	}

	id := uuid.New().String()

	arc, err := newArchiver(cfg.Archive)
	if err != nil {
		return nil, err
	}

	w, err := wal.Open(cfg.WALPath,
		wal.WithSink(sink),
		wal.WithEngineID(id),
		wal.WithCommitHook(func(from, to int64, fromLSN, toLSN record.LSN) {
			arc.archiveRange(cfg.WALPath, from, to, fromLSN, toLSN)
		}),
	)
	if err != nil {
		return nil, err
	}

	mat := materializer.New(w, cacheCapacity, pageSize,
		materializer.WithSink(sink),
		materializer.WithEngineID(id),
	)

	return &Engine{
		id:       id,
		pageSize: pageSize,
		wal:      w,
		mat:      mat,
		sink:     sink,
		arc:      arc,
	}, nil
}

// ID returns this engine instance's generated identifier.
func (e *Engine) ID() string { return e.id }

// PageSize returns the fixed page size this engine was opened with.
func (e *Engine) PageSize() int { return e.pageSize }

// AppendMTR writes one atomic mini-transaction. records must be non-empty
// and end with a CPL record. It returns the CPL's LSN.
func (e *Engine) AppendMTR(records []record.Record) (record.LSN, error) {
	for _, r := range records {
		if !record.FitsPage(r.Offset, len(r.Payload), e.pageSize) {
			return 0, fmt.Errorf("append_mtr page %d: %w", r.PageID, ErrPageOverflow)
		}
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	lsn, err := e.wal.Append(records)
	if err != nil {
		return 0, err
	}
	return lsn, nil
}

// ReadPageAt materializes page_id as of lsn. Fails with ErrReadAheadOfDurable
// if lsn exceeds the current VDL. found reports whether page_id has ever
// been written at or before lsn.
func (e *Engine) ReadPageAt(pageID record.PageID, lsn record.LSN) (data []byte, found bool, err error) {
	e.mu.Lock()
	_, vdl := e.wal.Durability()
	e.mu.Unlock()

	if lsn > vdl {
		return nil, false, fmt.Errorf("read_page_at page %d at lsn %d: %w", pageID, lsn, ErrReadAheadOfDurable)
	}

	return e.mat.Materialize(pageID, lsn)
}

// Durability returns the current (VCL, VDL) watermarks.
func (e *Engine) Durability() (vcl, vdl record.LSN) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.wal.Durability()
}

// CacheStats returns the materializer's page-cache hit/miss/eviction counters.
func (e *Engine) CacheStats() cache.Stats {
	return e.mat.Stats()
}

// Close releases the WAL file and any archiver resources.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.arc.close()
	return e.wal.Close()
}
