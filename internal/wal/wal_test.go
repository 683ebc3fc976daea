package wal

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/linux/projects/logstore/internal/record"
)

func TestOpenFreshWAL(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.wal")

	w, err := Open(path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer w.Close()

	vcl, vdl := w.Durability()
	if vcl != 0 || vdl != 0 {
		t.Fatalf("fresh WAL should start at vcl=0 vdl=0, got vcl=%d vdl=%d", vcl, vdl)
	}
}

func TestAppendAssignsMonotonicLSNs(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.wal")
	w, err := Open(path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer w.Close()

	lsn1, err := w.Append([]record.Record{{PageID: 1, Payload: []byte("a"), IsCPL: true}})
	if err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	lsn2, err := w.Append([]record.Record{{PageID: 1, Payload: []byte("b"), IsCPL: true}})
	if err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	if lsn2 <= lsn1 {
		t.Fatalf("expected lsn2 > lsn1, got lsn1=%d lsn2=%d", lsn1, lsn2)
	}
}

func TestAppendRejectsMissingCPL(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.wal")
	w, err := Open(path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer w.Close()

	_, err = w.Append([]record.Record{{PageID: 1, Payload: []byte("a"), IsCPL: false}})
	if err != ErrInvalidMTR {
		t.Fatalf("expected ErrInvalidMTR, got %v", err)
	}
}

func TestAppendRejectsEmptyBatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.wal")
	w, err := Open(path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer w.Close()

	if _, err := w.Append(nil); err != ErrInvalidMTR {
		t.Fatalf("expected ErrInvalidMTR, got %v", err)
	}
}

func TestDurabilityAdvancesOnCommit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.wal")
	w, err := Open(path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer w.Close()

	lsn, err := w.Append([]record.Record{{PageID: 1, Payload: []byte("a"), IsCPL: true}})
	if err != nil {
		t.Fatalf("Append failed: %v", err)
	}

	vcl, vdl := w.Durability()
	if vcl != lsn || vdl != lsn {
		t.Fatalf("expected vcl=vdl=%d after commit, got vcl=%d vdl=%d", lsn, vcl, vdl)
	}
}

// TestRecoveryTruncatesDanglingTail covers scenario S5: a crash after
// writing a non-CPL record of a second MTR, before its CPL lands.
func TestRecoveryTruncatesDanglingTail(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.wal")

	w, err := Open(path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	firstCPL, err := w.Append([]record.Record{
		{PageID: 1, Payload: []byte("r1"), IsCPL: false},
		{PageID: 1, Payload: []byte("r2"), IsCPL: true},
	})
	if err != nil {
		t.Fatalf("Append failed: %v", err)
	}

	// Simulate a crash mid-MTR: append a complete, dangling non-CPL record
	// directly to the file, bypassing Append's indexing, so that no CPL
	// follows it.
	danglingLSN := firstCPL + 1
	dangling := record.Encode(record.Record{LSN: danglingLSN, PrevLSN: firstCPL, PageID: 1, Payload: []byte("r3"), IsCPL: false})
	f, err := os.OpenFile(path, os.O_RDWR, 0644)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	if _, err := f.WriteAt(dangling, int64(fileSize(t, path))); err != nil {
		t.Fatalf("write dangling record failed: %v", err)
	}
	f.Close()
	w.Close()

	reopened, err := Open(path)
	if err != nil {
		t.Fatalf("reopen after crash failed: %v", err)
	}
	defer reopened.Close()

	vcl, vdl := reopened.Durability()
	if vdl != firstCPL {
		t.Fatalf("expected vdl=%d after recovery, got %d", firstCPL, vdl)
	}
	if vcl != firstCPL {
		t.Fatalf("expected vcl=%d after recovery, got %d", firstCPL, vcl)
	}

	// Subsequent appends must resume with no LSN gap in the surviving prefix.
	nextLSN, err := reopened.Append([]record.Record{{PageID: 2, Payload: []byte("x"), IsCPL: true}})
	if err != nil {
		t.Fatalf("Append after recovery failed: %v", err)
	}
	if nextLSN != firstCPL+1 {
		t.Fatalf("expected next lsn %d, got %d", firstCPL+1, nextLSN)
	}
}

// TestRecoveryMultiPageAtomicity covers scenario S6: one committed MTR spans
// two pages, a second MTR to one of those pages never reaches its CPL.
func TestRecoveryMultiPageAtomicity(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.wal")

	w, err := Open(path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	committedCPL, err := w.Append([]record.Record{
		{PageID: 1, Payload: []byte("p1"), IsCPL: false},
		{PageID: 2, Payload: []byte("p2"), IsCPL: true},
	})
	if err != nil {
		t.Fatalf("Append failed: %v", err)
	}

	danglingLSN := committedCPL + 1
	dangling := record.Encode(record.Record{LSN: danglingLSN, PrevLSN: committedCPL - 1, PageID: 1, Payload: []byte("p1v2"), IsCPL: false})
	f, err := os.OpenFile(path, os.O_RDWR, 0644)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	if _, err := f.WriteAt(dangling, int64(fileSize(t, path))); err != nil {
		t.Fatalf("write dangling record failed: %v", err)
	}
	f.Close()
	w.Close()

	reopened, err := Open(path)
	if err != nil {
		t.Fatalf("reopen after crash failed: %v", err)
	}
	defer reopened.Close()

	_, vdl := reopened.Durability()
	if vdl != committedCPL {
		t.Fatalf("expected vdl=%d, got %d", committedCPL, vdl)
	}
	if reopened.LatestLSNForPage(1) != committedCPL-1 {
		t.Fatalf("page 1 should still point at its pre-crash lsn %d, got %d", committedCPL-1, reopened.LatestLSNForPage(1))
	}
}

func TestRecoveryWithNoCPLTruncatesToEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.wal")

	buf := record.Encode(record.Record{LSN: 1, PageID: 1, Payload: []byte("x"), IsCPL: false})
	if err := os.WriteFile(path, buf, 0644); err != nil {
		t.Fatalf("seed file failed: %v", err)
	}

	w, err := Open(path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer w.Close()

	vcl, vdl := w.Durability()
	if vcl != 0 || vdl != 0 {
		t.Fatalf("expected vcl=vdl=0 with no surviving CPL, got vcl=%d vdl=%d", vcl, vdl)
	}

	lsn, err := w.Append([]record.Record{{PageID: 1, Payload: []byte("y"), IsCPL: true}})
	if err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	if lsn != 1 {
		t.Fatalf("expected first lsn after empty recovery to be 1, got %d", lsn)
	}
}

func fileSize(t *testing.T, path string) int64 {
	t.Helper()
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat failed: %v", err)
	}
	return info.Size()
}
