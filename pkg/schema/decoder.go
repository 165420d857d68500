package schema

import (
	"sync/atomic"

	"github.com/vango-dev/roomsync/pkg/codec"
)

// Stats holds cumulative decode counters. Counters may be read from any
// goroutine.
type Stats struct {
	FullStates   atomic.Uint64
	Patches      atomic.Uint64
	Switches     atomic.Uint64
	FieldUpdates atomic.Uint64
	Mismatches   atomic.Uint64
	UnknownRefs  atomic.Uint64
	Stalls       atomic.Uint64
}

// StatsSnapshot is a point-in-time copy of Stats.
type StatsSnapshot struct {
	FullStates   uint64 `json:"fullStates"`
	Patches      uint64 `json:"patches"`
	Switches     uint64 `json:"switches"`
	FieldUpdates uint64 `json:"fieldUpdates"`
	Mismatches   uint64 `json:"mismatches"`
	UnknownRefs  uint64 `json:"unknownRefs"`
	Stalls       uint64 `json:"stalls"`
}

// Snapshot copies the counters.
func (s *Stats) Snapshot() StatsSnapshot {
	return StatsSnapshot{
		FullStates:   s.FullStates.Load(),
		Patches:      s.Patches.Load(),
		Switches:     s.Switches.Load(),
		FieldUpdates: s.FieldUpdates.Load(),
		Mismatches:   s.Mismatches.Load(),
		UnknownRefs:  s.UnknownRefs.Load(),
		Stalls:       s.Stalls.Load(),
	}
}

func (s *Stats) record(r Result) {
	s.Switches.Add(uint64(r.Switches))
	s.FieldUpdates.Add(uint64(r.Ops))
	s.Mismatches.Add(uint64(r.Mismatches))
	s.UnknownRefs.Add(uint64(r.UnknownRefs))
	if r.Stalled {
		s.Stalls.Add(1)
	}
}

// Decoder keeps one connection's replica: the schema from the handshake and
// the ref arena it drives. A Decoder is not safe for concurrent use apart
// from Stats.
type Decoder struct {
	schema *Schema
	arena  *Arena
	stats  Stats
}

// NewDecoder creates a decoder with an empty root structure.
func NewDecoder(s *Schema) *Decoder {
	d := &Decoder{schema: s, arena: NewArena()}
	d.arena.Reset(s.RootType)
	return d
}

// Schema returns the schema the decoder was built with.
func (d *Decoder) Schema() *Schema {
	return d.schema
}

// ApplyFullState replaces the whole replica with the state in data.
// Applying the same full state twice yields the same graph.
func (d *Decoder) ApplyFullState(data []byte) Result {
	d.arena.Reset(d.schema.RootType)
	r := Apply(data, d.schema.Types, d.arena)
	d.stats.FullStates.Add(1)
	d.stats.record(r)
	return r
}

// ApplyPatch applies an incremental patch on top of the current replica.
// Refs a patch detaches stay in the arena until the next full state, so a
// later patch may re-attach or switch to them.
func (d *Decoder) ApplyPatch(data []byte) Result {
	r := Apply(data, d.schema.Types, d.arena)
	d.stats.Patches.Add(1)
	d.stats.record(r)
	return r
}

// State returns the root as plain data.
func (d *Decoder) State() codec.Value {
	return d.arena.Plain(RootRef)
}

// Refs returns the number of live refs.
func (d *Decoder) Refs() int {
	return d.arena.Len()
}

// Arena exposes the underlying ref arena for inspection.
func (d *Decoder) Arena() *Arena {
	return d.arena
}

// Stats returns the cumulative counters.
func (d *Decoder) Stats() *Stats {
	return &d.stats
}
