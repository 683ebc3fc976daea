package engine

import (
	"errors"

	"github.com/linux/projects/logstore/internal/wal"
)

var (
	// ErrIO wraps any underlying file or network failure. It is the same
	// sentinel as wal.ErrIO, so WAL file errors returned by the engine match it.
	ErrIO = wal.ErrIO
	// ErrPageOverflow is returned when a write would run past the end of a page.
	ErrPageOverflow = errors.New("logstore: page overflow")
	// ErrReadAheadOfDurable is returned when a read requests an LSN beyond the
	// current volume durable LSN (VDL).
	ErrReadAheadOfDurable = errors.New("logstore: read ahead of durable")
)
