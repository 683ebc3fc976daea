package wal

import (
	"path/filepath"
	"testing"

	"github.com/linux/projects/logstore/internal/record"
)

func TestChainReturnsAscendingOrderUpToLSN(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.wal")
	w, err := Open(path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer w.Close()

	lsn1, _ := w.Append([]record.Record{{PageID: 2, Payload: []byte("aaa"), IsCPL: true}})
	lsn2, _ := w.Append([]record.Record{{PageID: 2, Payload: []byte("bbb"), IsCPL: true}})
	_, _ = w.Append([]record.Record{{PageID: 2, Payload: []byte("ccc"), IsCPL: true}})

	chain, err := w.Chain(2, lsn2)
	if err != nil {
		t.Fatalf("Chain failed: %v", err)
	}
	if len(chain) != 2 {
		t.Fatalf("expected 2 records up to lsn %d, got %d", lsn2, len(chain))
	}
	if chain[0].LSN != lsn1 || chain[1].LSN != lsn2 {
		t.Fatalf("expected ascending order [%d,%d], got [%d,%d]", lsn1, lsn2, chain[0].LSN, chain[1].LSN)
	}
}

func TestChainEmptyForUnwrittenPage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.wal")
	w, err := Open(path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer w.Close()

	chain, err := w.Chain(99, 1000)
	if err != nil {
		t.Fatalf("Chain failed: %v", err)
	}
	if len(chain) != 0 {
		t.Fatalf("expected empty chain, got %d records", len(chain))
	}
}

func TestHeadAtOrBeforeResolvesEffectiveLSN(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.wal")
	w, err := Open(path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer w.Close()

	lsn1, _ := w.Append([]record.Record{{PageID: 2, Payload: []byte("aaa"), IsCPL: true}})
	lsn2, _ := w.Append([]record.Record{{PageID: 2, Payload: []byte("bbb"), IsCPL: true}})
	lsn3, _ := w.Append([]record.Record{{PageID: 2, Payload: []byte("ccc"), IsCPL: true}})

	got, err := w.HeadAtOrBefore(2, lsn2)
	if err != nil {
		t.Fatalf("HeadAtOrBefore failed: %v", err)
	}
	if got != lsn2 {
		t.Fatalf("expected effective lsn %d, got %d", lsn2, got)
	}

	got, err = w.HeadAtOrBefore(2, lsn3+100)
	if err != nil {
		t.Fatalf("HeadAtOrBefore failed: %v", err)
	}
	if got != lsn3 {
		t.Fatalf("expected effective lsn %d, got %d", lsn3, got)
	}

	got, err = w.HeadAtOrBefore(2, lsn1-1)
	if err != nil {
		t.Fatalf("HeadAtOrBefore failed: %v", err)
	}
	if got != record.NoLSN {
		t.Fatalf("expected NoLSN below first write, got %d", got)
	}
}
