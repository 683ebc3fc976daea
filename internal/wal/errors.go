package wal

import "errors"

var (
	// ErrUnknownLSN is returned when a chain walk or ReadRecord references
	// an LSN that is not present in the LSN offset index.
	ErrUnknownLSN = errors.New("logstore: unknown lsn")
	// ErrInvalidMTR is returned when Append is given an empty record slice
	// or one whose last record is not a CPL.
	ErrInvalidMTR = errors.New("logstore: invalid mtr")
	// ErrIO wraps underlying file I/O failures so callers can match on it
	// with errors.Is regardless of the concrete *fs.PathError underneath.
	ErrIO = errors.New("logstore: io error")
)
