package wal

import (
	"fmt"

	"github.com/linux/projects/logstore/internal/record"
	"github.com/linux/projects/logstore/internal/trace"
)

// ReadRecord reads the record at lsn in O(1) via the LSN offset index.
func (w *WAL) ReadRecord(lsn record.LSN) (record.Record, error) {
	w.mu.Lock()
	offset, ok := w.lsnOffsets[lsn]
	w.mu.Unlock()
	if !ok {
		return record.Record{}, fmt.Errorf("%w: lsn %d", ErrUnknownLSN, lsn)
	}
	return w.readAt(offset)
}

// readAt decodes exactly one record starting at the given file offset: it
// reads the fixed header first to learn the payload length, then reads the
// whole record (header + payload + crc) in a second pass.
func (w *WAL) readAt(offset int64) (record.Record, error) {
	header := make([]byte, record.HeaderSize)
	if _, err := w.file.ReadAt(header, offset); err != nil {
		return record.Record{}, fmt.Errorf("%w: read header at %d: %v", ErrIO, offset, err)
	}

	total, ok := record.PeekLen(header)
	if !ok {
		return record.Record{}, fmt.Errorf("%w: truncated header at %d", record.ErrShortRecord, offset)
	}

	full := make([]byte, total)
	if _, err := w.file.ReadAt(full, offset); err != nil {
		return record.Record{}, fmt.Errorf("%w: read record at %d: %v", ErrIO, offset, err)
	}

	r, _, err := record.Decode(full)
	if err != nil {
		return record.Record{}, err
	}
	return r, nil
}

// HeadAtOrBefore returns the highest LSN targeting pageID that is <=
// upToLSN, by walking the PrevLSN chain backwards from the page index's
// current head. It returns record.NoLSN if pageID was never written at or
// before upToLSN. This is the cheap "effective LSN" lookup the materializer
// uses to key its cache before paying for a full chain fetch.
func (w *WAL) HeadAtOrBefore(pageID record.PageID, upToLSN record.LSN) (record.LSN, error) {
	w.mu.Lock()
	head := w.pageIndex[pageID]
	w.mu.Unlock()

	cur := head
	for cur > upToLSN {
		r, err := w.ReadRecord(cur)
		if err != nil {
			return 0, err
		}
		cur = r.PrevLSN
	}
	return cur, nil
}

// Chain returns the records targeting pageID with lsn <= upToLSN, in
// ascending LSN order. It starts at the page index's latest LSN for pageID,
// walks PrevLSN backwards until reaching one <= upToLSN or 0, then collects
// records back to the start of the chain and reverses them. Returns an empty
// slice if pageID was never written at or before upToLSN.
func (w *WAL) Chain(pageID record.PageID, upToLSN record.LSN) ([]record.Record, error) {
	w.mu.Lock()
	head := w.pageIndex[pageID]
	sink := w.sink
	engineID := w.engineID
	w.mu.Unlock()

	if head == record.NoLSN {
		return nil, nil
	}

	cur := head
	depth := 0
	for cur > upToLSN {
		r, err := w.ReadRecord(cur)
		if err != nil {
			return nil, err
		}
		cur = r.PrevLSN
		depth++
		if cur == record.NoLSN {
			sink.Emit(trace.Event{Kind: trace.KindChainWalk, EngineID: engineID, PageID: uint64(pageID), Depth: depth})
			return nil, nil
		}
	}

	var chain []record.Record
	for cur != record.NoLSN {
		r, err := w.ReadRecord(cur)
		if err != nil {
			return nil, err
		}
		chain = append(chain, r)
		depth++
		cur = r.PrevLSN
	}

	sink.Emit(trace.Event{Kind: trace.KindChainWalk, EngineID: engineID, PageID: uint64(pageID), Depth: depth})

	// chain was collected newest-first; reverse to ascending LSN order.
	for i, j := 0, len(chain)-1; i < j; i, j = i+1, j-1 {
		chain[i], chain[j] = chain[j], chain[i]
	}
	return chain, nil
}
