package datastore

import (
	"fmt"
	"sync"

	"github.com/cuemby/spacetime/internal/catalog"
)

// SequenceBatchSize is how many values a Sequence pre-allocates at once,
// amortizing the cost of persisting Allocated across many inserts (spec.md
// §4.3). Matches the original's SEQUENCE_PREALLOCATION_AMOUNT.
const SequenceBatchSize = 4096

// Sequence is one auto-increment counter bound to a table column.
type Sequence struct {
	Def   catalog.SequenceDef
	Value int64 // next value to hand out
}

// NextValue returns the next value for this sequence, pre-allocating a new
// batch (persisted into Def.Allocated) whenever the current batch is
// exhausted.
func (s *Sequence) NextValue() (int64, error) {
	if s.Value > s.Def.Allocated {
		newAllocated := s.Value + SequenceBatchSize*s.Def.Increment
		if newAllocated > s.Def.Max {
			newAllocated = s.Def.Max
		}
		if s.Value > s.Def.Max {
			return 0, fmt.Errorf("datastore: sequence %d exhausted its range [%d,%d]", s.Def.SequenceID, s.Def.Min, s.Def.Max)
		}
		s.Def.Allocated = newAllocated
	}
	v := s.Value
	s.Value += s.Def.Increment
	return v, nil
}

// SequencesState is the in-memory table of every Sequence, guarded by its
// own lock acquired strictly after CommittedState's per the locking
// discipline documented on Datastore.
type SequencesState struct {
	mu   sync.Mutex
	seqs map[uint32]*Sequence
}

func NewSequencesState() *SequencesState {
	return &SequencesState{seqs: make(map[uint32]*Sequence)}
}

func (s *SequencesState) insert(id uint32, seq *Sequence) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seqs[id] = seq
}

func (s *SequencesState) NextValue(id uint32) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	seq, ok := s.seqs[id]
	if !ok {
		return 0, fmt.Errorf("datastore: unknown sequence %d", id)
	}
	return seq.NextValue()
}

func (s *SequencesState) Allocated(id uint32) (int64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	seq, ok := s.seqs[id]
	if !ok {
		return 0, false
	}
	return seq.Def.Allocated, true
}

func (s *SequencesState) Register(def catalog.SequenceDef) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seqs[def.SequenceID] = &Sequence{Def: def, Value: def.Start}
}

func (s *SequencesState) Remove(id uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.seqs, id)
}
