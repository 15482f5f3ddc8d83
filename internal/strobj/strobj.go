// Package strobj implements the String object (spec.md §3/§4.2, part of
// C2): a byte buffer with an always-present terminator, chunked get/set at
// arbitrary offsets, and truncation. Grounded on
// _examples/original_source/src/redapid/string.h.
package strobj

import (
	"sync"

	"github.com/Tinkerforge/red-brick-apid/internal/apierr"
	"github.com/Tinkerforge/red-brick-apid/internal/objects"
)

// GetChunkSize and SetChunkSize are the wire buffer sizes from spec.md §6.
const (
	GetChunkSize = 63
	SetChunkSize = 58

	maxLength = 1<<31 - 1 // INT32_MAX, per string.h
)

// String is the concrete object value stored behind objects.TypeString.
//
// storage may be longer than length: set_chunk only ever extends length up
// to the first NUL byte within the 58-byte chunk it wrote (the wire chunk
// is a NUL-terminated C string fragment, not an arbitrary byte window,
// matching the original bindings' strnlen-based growth — see DESIGN.md,
// "String chunk growth").
type String struct {
	mu      sync.Mutex
	storage []byte
	length  uint32
}

// Allocate creates a String pre-sized to reserve bytes (capacity hint only)
// and initialized to the given content, inserting it into table and
// returning its id. Mirrors string_allocate's (reserve, buffer) signature.
func Allocate(table *objects.Table, reserve uint32, initial []byte) (objects.ID, *String, error) {
	if uint64(len(initial)) > maxLength {
		return 0, nil, apierr.New(apierr.InvalidParameter)
	}

	capacity := max32(reserve, uint32(len(initial))) + 1
	storage := make([]byte, capacity)
	copy(storage, initial)

	s := &String{storage: storage, length: uint32(len(initial))}

	id, err := table.Insert(objects.TypeString, s, nil)
	if err != nil {
		return 0, nil, err
	}

	return id, s, nil
}

func max32(a, b uint32) uint32 {
	if a > b {
		return a
	}

	return b
}

// Lookup resolves id to its *String, type-checking against objects.TypeString.
func Lookup(table *objects.Table, id objects.ID) (*String, error) {
	obj, err := table.Lookup(id, objects.TypeString)
	if err != nil {
		return nil, err
	}

	return obj.Value.(*String), nil
}

// Length returns the current length, excluding the terminator.
func (s *String) Length() uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.length
}

// Bytes returns a copy of the current content (without terminator).
func (s *String) Bytes() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]byte, s.length)
	copy(out, s.storage[:s.length])

	return out
}

// Truncate shrinks the string to length; spec.md: "truncation shrinks
// only" — growing via Truncate is rejected, matching the shrink-only
// invariant stated explicitly in spec.md §3.
func (s *String) Truncate(length uint32) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if length > s.length {
		return apierr.New(apierr.InvalidParameter)
	}

	s.length = length
	s.storage[length] = 0

	return nil
}

func (s *String) ensureCapacity(n uint32) {
	if n <= uint32(len(s.storage)) {
		return
	}

	grown := make([]byte, n)
	copy(grown, s.storage)
	s.storage = grown
}

// GetChunk returns up to GetChunkSize bytes starting at offset, with the
// tail of the returned slice zero-padded to GetChunkSize. offset == length
// returns NoMoreData, per spec.md's boundary case.
func (s *String) GetChunk(offset uint32) ([GetChunkSize]byte, error) {
	var out [GetChunkSize]byte

	s.mu.Lock()
	defer s.mu.Unlock()

	if offset >= s.length {
		return out, apierr.New(apierr.NoMoreData)
	}

	copy(out[:], s.storage[offset:s.length])

	return out, nil
}

// SetChunk writes buffer (SetChunkSize bytes) at offset. The chunk is a
// NUL-terminated C-string fragment: length grows to offset+strnlen(buffer)
// if that exceeds the current length (see the String doc comment for why
// this isn't simply offset+58).
func (s *String) SetChunk(offset uint32, buffer [SetChunkSize]byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	end := uint64(offset) + SetChunkSize
	if end > maxLength {
		return apierr.New(apierr.InvalidParameter)
	}

	s.ensureCapacity(uint32(end) + 1) // room for the terminator
	copy(s.storage[offset:end], buffer[:])

	written := SetChunkSize
	for i, b := range buffer {
		if b == 0 {
			written = i
			break
		}
	}

	newLength := offset + uint32(written)
	if newLength > s.length {
		s.length = newLength
	}

	s.storage[s.length] = 0

	return nil
}
