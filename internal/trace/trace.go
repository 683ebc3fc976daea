// Package trace defines the push-only event sink the storage engine emits
// structured events to. Consumers (the CLI dispatcher, a JSON emitter, a
// REPL) are external collaborators; this package only defines the shape of
// the events and two trivial sinks.
package trace

import (
	"encoding/binary"
	"io"
	"sync"

	"github.com/vmihailenco/msgpack/v5"
)

// Kind names the event kinds enumerated by the spec.
type Kind string

const (
	KindWALAppend   Kind = "wal_append"
	KindChainWalk   Kind = "chain_walk"
	KindCacheHit    Kind = "cache_hit"
	KindCacheMiss   Kind = "cache_miss"
	KindMaterialize Kind = "materialize"
	KindVCLAdvance  Kind = "vcl_advance"
	KindVDLAdvance  Kind = "vdl_advance"
)

// Event is one structured trace record. The engine never calls time.Now and
// never sets TimestampNanos, so every event it emits carries zero in that
// field.
type Event struct {
	Kind            Kind   `msgpack:"kind"`
	EngineID        string `msgpack:"engine_id"`
	TimestampNanos  int64  `msgpack:"ts"`
	PageID          uint64 `msgpack:"page_id,omitempty"`
	LSN             uint64 `msgpack:"lsn,omitempty"`
	Depth           int    `msgpack:"depth,omitempty"`
	RecordsReplayed int    `msgpack:"records_replayed,omitempty"`
	From            uint64 `msgpack:"from,omitempty"`
	To              uint64 `msgpack:"to,omitempty"`
}

// Sink receives events emitted by the engine. Implementations must be safe
// for concurrent use; the engine may call Emit while holding its own lock,
// so Emit must not call back into the engine.
type Sink interface {
	Emit(Event)
}

// nopSink is the default sink: it discards every event. Emission sites call
// Emit unconditionally; with this sink each call does nothing.
type nopSink struct{}

func (nopSink) Emit(Event) {}

// Nop returns the sink used when tracing is disabled.
func Nop() Sink { return nopSink{} }

// MsgpackSink encodes each event as a length-prefixed msgpack record and
// writes it to an underlying io.Writer (a file, a pipe to an external
// consumer, ...). It is the binary counterpart to the JSON trace emitter,
// which is out of this module's scope but can consume the same stream.
type MsgpackSink struct {
	mu sync.Mutex
	w  io.Writer
}

// NewMsgpackSink wraps w. w is never closed by the sink.
func NewMsgpackSink(w io.Writer) *MsgpackSink {
	return &MsgpackSink{w: w}
}

// Emit implements Sink.
func (s *MsgpackSink) Emit(e Event) {
	data, err := msgpack.Marshal(&e)
	if err != nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var lenBuf [4]byte
	binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(data)))
	if _, err := s.w.Write(lenBuf[:]); err != nil {
		return
	}
	_, _ = s.w.Write(data)
}
