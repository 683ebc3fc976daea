package wal

import (
	"fmt"

	"github.com/linux/projects/logstore/internal/record"
)

// scanned is one record observed during the recovery scan, along with the
// file offset immediately following it.
type scanned struct {
	rec       record.Record
	offset    int64
	endOffset int64
}

// recover scans the WAL file from byte 0, validating each record's CRC. It
// tracks the highest CPL LSN observed and, at the end of the scan, truncates
// the file to the byte offset immediately after that record — discarding
// the tail of any mini-transaction that never committed — then rebuilds the
// LSN offset index and page index from exactly the surviving records. It
// must only be called from Open, before the WAL is exposed to callers.
func (w *WAL) recover() error {
	stat, err := w.file.Stat()
	if err != nil {
		return fmt.Errorf("%w: stat: %v", ErrIO, err)
	}

	size := stat.Size()
	var offset int64
	var records []scanned

	var highestCPL record.LSN
	var cplEndOffset int64

	for offset < size {
		header := make([]byte, record.HeaderSize)
		n, err := w.file.ReadAt(header, offset)
		if err != nil || n < record.HeaderSize {
			break
		}

		total, ok := record.PeekLen(header)
		if !ok || offset+int64(total) > size {
			break
		}

		full := make([]byte, total)
		if _, err := w.file.ReadAt(full, offset); err != nil {
			break
		}

		r, _, err := record.Decode(full)
		if err != nil {
			// CRC mismatch or truncated write mid-record: this is the end of
			// the valid log, per the spec's recovery algorithm.
			break
		}

		end := offset + int64(total)
		records = append(records, scanned{rec: r, offset: offset, endOffset: end})

		if r.IsCPL && r.LSN > highestCPL {
			highestCPL = r.LSN
			cplEndOffset = end
		}

		offset = end
	}

	if highestCPL == record.NoLSN {
		// No valid CPL found anywhere: nothing is durable, truncate to empty.
		if err := w.file.Truncate(0); err != nil {
			return fmt.Errorf("%w: truncate: %v", ErrIO, err)
		}
		w.nextLSN = 0
		w.vcl = 0
		w.vdl = 0
		w.writeAt = 0
		return nil
	}

	if cplEndOffset < size {
		if err := w.file.Truncate(cplEndOffset); err != nil {
			return fmt.Errorf("%w: truncate: %v", ErrIO, err)
		}
	}

	for _, s := range records {
		if s.endOffset > cplEndOffset {
			break
		}
		w.lsnOffsets[s.rec.LSN] = s.offset
		w.pageIndex[s.rec.PageID] = s.rec.LSN
	}

	w.writeAt = cplEndOffset
	w.vdl = highestCPL
	w.vcl = highestCPL // the surviving prefix ends exactly at the highest CPL
	w.nextLSN = highestCPL

	return nil
}
