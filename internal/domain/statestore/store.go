// Package statestore keeps shell states and state diffs addressed by their
// content hash.
//
// A remote's current state is a StatePtr: a base state hash plus the ordered
// chain of diff hashes applied on top of it. Payloads are held zstd
// compressed; shell variable dumps and function bodies compress well.
package statestore

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/klauspost/compress/zstd"

	"github.com/wavetermdev/waveterm-sub010/internal/domain/shellstate"
	"github.com/wavetermdev/waveterm-sub010/internal/shared/errs"
)

var ErrNotFound = errors.New("state not found")

// StatePtr addresses a full state as a base plus a diff chain.
type StatePtr struct {
	BaseHash    string   `json:"basehash"`
	DiffHashArr []string `json:"diffhasharr,omitempty"`
}

func (p StatePtr) IsEmpty() bool {
	return p.BaseHash == ""
}

// Stats reports store occupancy.
type Stats struct {
	Bases       int   `json:"bases"`
	Diffs       int   `json:"diffs"`
	RawBytes    int64 `json:"rawbytes"`
	StoredBytes int64 `json:"storedbytes"`
}

type entry struct {
	data    []byte
	rawSize int
}

type Store struct {
	mu    sync.RWMutex
	bases map[string]entry
	diffs map[string]entry
	enc   *zstd.Encoder
	dec   *zstd.Decoder
}

func New() (*Store, error) {
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("creating zstd encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		enc.Close()
		return nil, fmt.Errorf("creating zstd decoder: %w", err)
	}
	return &Store{
		bases: make(map[string]entry),
		diffs: make(map[string]entry),
		enc:   enc,
		dec:   dec,
	}, nil
}

// StoreBase saves a full state and returns its hash. Storing the same state
// twice is a no-op.
func (s *Store) StoreBase(state shellstate.ShellState) string {
	hashVal, encoded := state.EncodeAndHash()
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, found := s.bases[hashVal]; !found {
		s.bases[hashVal] = entry{data: s.enc.EncodeAll(encoded, nil), rawSize: len(encoded)}
	}
	return hashVal
}

// StoreDiff saves a diff and returns the pointer to the state it produces.
// The diff's base and every hash in its chain must already be stored.
func (s *Store) StoreDiff(sdiff shellstate.ShellStateDiff) (StatePtr, error) {
	hashVal, encoded := sdiff.EncodeAndHash()
	s.mu.Lock()
	defer s.mu.Unlock()
	if sdiff.BaseHash == "" {
		return StatePtr{}, errs.Validation("basehash", "cannot store statediff, empty basehash")
	}
	if _, found := s.bases[sdiff.BaseHash]; !found {
		return StatePtr{}, fmt.Errorf("cannot store statediff, basehash:%s: %w", sdiff.BaseHash, ErrNotFound)
	}
	for idx, diffHash := range sdiff.DiffHashArr {
		if _, found := s.diffs[diffHash]; !found {
			return StatePtr{}, fmt.Errorf("cannot store statediff, diffhash[%d]:%s: %w", idx, diffHash, ErrNotFound)
		}
	}
	if _, found := s.diffs[hashVal]; !found {
		s.diffs[hashVal] = entry{data: s.enc.EncodeAll(encoded, nil), rawSize: len(encoded)}
	}
	chain := append(slices.Clone(sdiff.DiffHashArr), hashVal)
	return StatePtr{BaseHash: sdiff.BaseHash, DiffHashArr: chain}, nil
}

func (s *Store) load(m map[string]entry, hashVal string) ([]byte, error) {
	s.mu.RLock()
	e, found := m[hashVal]
	s.mu.RUnlock()
	if !found {
		return nil, fmt.Errorf("%s: %w", hashVal, ErrNotFound)
	}
	raw, err := s.dec.DecodeAll(e.data, make([]byte, 0, e.rawSize))
	if err != nil {
		return nil, fmt.Errorf("decompressing %s: %w", hashVal, err)
	}
	return raw, nil
}

// GetBase returns a stored full state.
func (s *Store) GetBase(hashVal string) (shellstate.ShellState, error) {
	raw, err := s.load(s.bases, hashVal)
	if err != nil {
		return shellstate.ShellState{}, err
	}
	var state shellstate.ShellState
	if err := state.Decode(raw); err != nil {
		return shellstate.ShellState{}, err
	}
	return state, nil
}

// GetDiff returns a stored diff.
func (s *Store) GetDiff(hashVal string) (shellstate.ShellStateDiff, error) {
	raw, err := s.load(s.diffs, hashVal)
	if err != nil {
		return shellstate.ShellStateDiff{}, err
	}
	var sdiff shellstate.ShellStateDiff
	if err := sdiff.Decode(raw); err != nil {
		return shellstate.ShellStateDiff{}, err
	}
	return sdiff, nil
}

// GetFullState resolves ptr by applying its diff chain to the base in order.
func (s *Store) GetFullState(ptr StatePtr) (shellstate.ShellState, error) {
	if ptr.BaseHash == "" {
		return shellstate.ShellState{}, fmt.Errorf("invalid empty basehash")
	}
	state, err := s.GetBase(ptr.BaseHash)
	if err != nil {
		return shellstate.ShellState{}, err
	}
	for idx, diffHash := range ptr.DiffHashArr {
		sdiff, err := s.GetDiff(diffHash)
		if err != nil {
			return shellstate.ShellState{}, err
		}
		state, err = shellstate.ApplyDiff(state, sdiff)
		if err != nil {
			return shellstate.ShellState{}, fmt.Errorf("diff[%d]:%s: %w", idx, diffHash, err)
		}
	}
	return state, nil
}

func (s *Store) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rtn := Stats{Bases: len(s.bases), Diffs: len(s.diffs)}
	for _, e := range s.bases {
		rtn.RawBytes += int64(e.rawSize)
		rtn.StoredBytes += int64(len(e.data))
	}
	for _, e := range s.diffs {
		rtn.RawBytes += int64(e.rawSize)
		rtn.StoredBytes += int64(len(e.data))
	}
	return rtn
}

func (s *Store) Close() error {
	s.dec.Close()
	return s.enc.Close()
}
