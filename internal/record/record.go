// Package record defines the on-disk redo record format and the LSN/PageId
// types shared by the WAL, the materializer and the compute layer.
package record

import (
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
)

// LSN is a monotonically increasing log sequence number. Zero means "none".
type LSN uint64

// PageID identifies a fixed-size page.
type PageID uint64

// NoLSN is the reserved value meaning "no record".
const NoLSN LSN = 0

// HeaderSize is the fixed-length prefix of an encoded record, before the
// variable-length payload and the trailing CRC:
// lsn(8) + prev_lsn(8) + page_id(8) + offset(4) + is_cpl(1) + payload_len(4)
const HeaderSize = 8 + 8 + 8 + 4 + 1 + 4

// CRCSize is the trailing CRC32 footer.
const CRCSize = 4

const headerSize = HeaderSize
const crcSize = CRCSize

// payloadLenOffset is the byte offset of the payload_len field within the
// fixed header, used to peek a record's total length before a full decode.
const payloadLenOffset = 29

// Record is the atomic unit of mutation appended to the WAL.
type Record struct {
	LSN      LSN
	PrevLSN  LSN
	PageID   PageID
	Offset   uint32
	Payload  []byte
	IsCPL    bool
}

var (
	// ErrCorruptRecord is returned when a record's CRC does not match its bytes.
	ErrCorruptRecord = errors.New("logstore: corrupt record")
	// ErrShortRecord is returned when a buffer ends before a full record is available.
	ErrShortRecord = errors.New("logstore: short record")
)

// Encode serializes r into the on-disk record format (little-endian,
// bit-exact): lsn, prev_lsn, page_id, offset, is_cpl, payload_len, payload,
// crc32 (IEEE, over all preceding bytes of this record).
func Encode(r Record) []byte {
	buf := make([]byte, headerSize+len(r.Payload)+crcSize)

	binary.LittleEndian.PutUint64(buf[0:8], uint64(r.LSN))
	binary.LittleEndian.PutUint64(buf[8:16], uint64(r.PrevLSN))
	binary.LittleEndian.PutUint64(buf[16:24], uint64(r.PageID))
	binary.LittleEndian.PutUint32(buf[24:28], r.Offset)
	if r.IsCPL {
		buf[28] = 1
	}
	binary.LittleEndian.PutUint32(buf[29:33], uint32(len(r.Payload)))
	copy(buf[headerSize:headerSize+len(r.Payload)], r.Payload)

	body := buf[:headerSize+len(r.Payload)]
	crc := crc32.ChecksumIEEE(body)
	binary.LittleEndian.PutUint32(buf[headerSize+len(r.Payload):], crc)

	return buf
}

// Decode parses one record from the head of buf and returns it along with
// the number of bytes consumed. It returns ErrShortRecord if buf does not
// yet contain a full record, or ErrCorruptRecord on CRC mismatch.
func Decode(buf []byte) (Record, int, error) {
	if len(buf) < headerSize {
		return Record{}, 0, ErrShortRecord
	}

	payloadLen := binary.LittleEndian.Uint32(buf[29:33])
	total := headerSize + int(payloadLen) + crcSize
	if len(buf) < total {
		return Record{}, 0, ErrShortRecord
	}

	body := buf[:headerSize+int(payloadLen)]
	wantCRC := binary.LittleEndian.Uint32(buf[headerSize+int(payloadLen) : total])
	if crc32.ChecksumIEEE(body) != wantCRC {
		return Record{}, 0, ErrCorruptRecord
	}

	r := Record{
		LSN:     LSN(binary.LittleEndian.Uint64(buf[0:8])),
		PrevLSN: LSN(binary.LittleEndian.Uint64(buf[8:16])),
		PageID:  PageID(binary.LittleEndian.Uint64(buf[16:24])),
		Offset:  binary.LittleEndian.Uint32(buf[24:28]),
		IsCPL:   buf[28] != 0,
	}
	if payloadLen > 0 {
		r.Payload = make([]byte, payloadLen)
		copy(r.Payload, buf[headerSize:headerSize+int(payloadLen)])
	}

	return r, total, nil
}

// PeekLen returns the total encoded length of the record whose fixed header
// starts buf, without requiring the payload to be present yet. It reports
// false if buf is shorter than HeaderSize.
func PeekLen(buf []byte) (int, bool) {
	if len(buf) < HeaderSize {
		return 0, false
	}
	payloadLen := binary.LittleEndian.Uint32(buf[payloadLenOffset : payloadLenOffset+4])
	return HeaderSize + int(payloadLen) + CRCSize, true
}

// FitsPage reports whether writing payload at offset stays within a page of
// the given size.
func FitsPage(offset uint32, payloadLen, pageSize int) bool {
	return int(offset)+payloadLen <= pageSize
}

func (r Record) String() string {
	return fmt.Sprintf("Record{lsn=%d prev=%d page=%d off=%d len=%d cpl=%v}",
		r.LSN, r.PrevLSN, r.PageID, r.Offset, len(r.Payload), r.IsCPL)
}
