// Package objects implements the typed handle table (spec.md §4.1, C1):
// the allocator and lifecycle manager every other component enters
// through. Every live resource in the daemon is an Object with a 16-bit id,
// a type, and two refcounts (external, held on behalf of the remote client;
// internal, held by other daemon objects).
package objects

import (
	"sync"

	"github.com/Tinkerforge/red-brick-apid/internal/apierr"
	"github.com/Tinkerforge/red-brick-apid/internal/logging"
)

// Type enumerates the object classes sharing the id space.
type Type uint8

const (
	TypeInventory Type = iota
	TypeString
	TypeList
	TypeFile
	TypeDirectory
	TypeProcess
	TypeProgram
)

func (t Type) String() string {
	switch t {
	case TypeInventory:
		return "inventory"
	case TypeString:
		return "string"
	case TypeList:
		return "list"
	case TypeFile:
		return "file"
	case TypeDirectory:
		return "directory"
	case TypeProcess:
		return "process"
	case TypeProgram:
		return "program"
	default:
		return "unknown"
	}
}

// ID is a 16-bit handle; zero means "no object" per spec.md's glossary.
type ID uint16

const maxID = ID(65535)

// Destructor is invoked exactly once, when both refcounts of an object
// reach zero. It must not block indefinitely; objects whose teardown can
// block (joining a reaper thread) implement a separate "start teardown"
// step invoked before the id is actually released, see Prepared.
type Destructor func()

// Prepared is satisfied by an object whose destruction involves an
// asynchronous step (e.g. signalling a worker thread to stop) that must
// run before the final, possibly-blocking Destructor executes. This keeps
// Release callable from the event-loop thread without ever blocking it.
type Prepared interface {
	PrepareTeardown()
}

// Object is the common header embedded by every concrete object kind.
type Object struct {
	ID    ID
	Type  Type
	Value any // the concrete object (e.g. *strobj.String)

	mu       sync.Mutex
	external uint32
	internal uint32
	destroy  Destructor
	locked   bool // OBJECT_IS_LOCKED: target of an outstanding async op
	seq      uint64 // insertion order, see Table.Snapshot
}

// Locked reports whether the object is currently locked against concurrent
// use by an outstanding async operation (spec.md §4.1, OBJECT_IS_LOCKED).
func (o *Object) Locked() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.locked
}

// SetLocked toggles the lock flag. Nothing in the table sets or checks it
// on its own; fileobj.File.SetLockedCallback can be pointed at it.
func (o *Object) SetLocked(locked bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.locked = locked
}

// Table is the single process-wide registry (spec.md's "handle table").
// Allocation policy is lowest-free-id-first, which is deterministic and
// makes tests reproducible, as spec.md §4.1 requires.
type Table struct {
	mu       sync.Mutex
	slots    map[ID]*Object
	nextHint ID
	nextSeq  uint64
}

// NewTable constructs an empty handle table. Id 0 is reserved and never
// allocated.
func NewTable() *Table {
	return &Table{slots: make(map[ID]*Object), nextHint: 1}
}

// Insert allocates the lowest free id, stores the object under it, sets
// external refcount to 1 (the allocating call's implicit reference), and
// returns the assigned id.
func (t *Table) Insert(typ Type, value any, destroy Destructor) (ID, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if ID(len(t.slots)) >= maxID {
		return 0, apierr.New(apierr.NoFreeObjectID)
	}

	id := t.nextHint
	for {
		if id == 0 {
			id = 1
		}

		if _, taken := t.slots[id]; !taken {
			break
		}

		id++
		if id == t.nextHint {
			return 0, apierr.New(apierr.NoFreeObjectID)
		}
	}

	t.nextSeq++
	obj := &Object{ID: id, Type: typ, Value: value, external: 1, destroy: destroy, seq: t.nextSeq}
	t.slots[id] = obj
	t.nextHint = id + 1

	logging.Debugf("objects", "inserted object (id: %d, type: %s)", id, typ)

	return id, nil
}

// Lookup returns the object for id, checking that it matches expectedType.
// Passing id == 0 always fails with UnknownObjectID, per spec.md's boundary
// cases.
func (t *Table) Lookup(id ID, expectedType Type) (*Object, error) {
	t.mu.Lock()
	obj, ok := t.slots[id]
	t.mu.Unlock()

	if id == 0 || !ok {
		return nil, apierr.New(apierr.UnknownObjectID)
	}

	if obj.Type != expectedType {
		return nil, apierr.New(apierr.WrongObjectType)
	}

	return obj, nil
}

// LookupAny returns the object for id regardless of type, used by the
// inventory/dispatch layers which need to report an object's type back to
// the caller.
func (t *Table) LookupAny(id ID) (*Object, error) {
	t.mu.Lock()
	obj, ok := t.slots[id]
	t.mu.Unlock()

	if id == 0 || !ok {
		return nil, apierr.New(apierr.UnknownObjectID)
	}

	return obj, nil
}

// Acquire increments the external refcount (spec.md's implicit
// "acquire"/"acquire_object" semantics: every lookup that hands an id back
// to the client bumps external refcount by one).
func (t *Table) Acquire(id ID) error {
	t.mu.Lock()
	obj, ok := t.slots[id]
	t.mu.Unlock()

	if id == 0 || !ok {
		return apierr.New(apierr.UnknownObjectID)
	}

	obj.mu.Lock()
	obj.external++
	obj.mu.Unlock()

	return nil
}

// Release decrements the external refcount (the client's release_object
// call). If both refcounts reach zero, the destructor runs synchronously
// and the id returns to the free pool. Release must only be called from
// the event-loop thread, per spec.md §4.1.
func (t *Table) Release(id ID) error {
	t.mu.Lock()
	obj, ok := t.slots[id]
	t.mu.Unlock()

	if id == 0 || !ok {
		return apierr.New(apierr.UnknownObjectID)
	}

	obj.mu.Lock()
	if obj.external == 0 {
		obj.mu.Unlock()
		// Releasing more times than acquired is a caller bug in the
		// original too; treat it as already-gone.
		return apierr.New(apierr.UnknownObjectID)
	}

	obj.external--
	dead := obj.external == 0 && obj.internal == 0
	obj.mu.Unlock()

	if dead {
		t.free(id, obj)
	}

	return nil
}

// AddInternalRef increments the internal refcount, used when another
// object (a list, a process, a program) takes ownership of a reference.
func (t *Table) AddInternalRef(obj *Object) {
	obj.mu.Lock()
	obj.internal++
	obj.mu.Unlock()
}

// RemoveInternalRef decrements the internal refcount and frees the object
// if both refcounts have reached zero.
func (t *Table) RemoveInternalRef(obj *Object) {
	obj.mu.Lock()
	obj.internal--
	dead := obj.external == 0 && obj.internal == 0
	id := obj.ID
	obj.mu.Unlock()

	if dead {
		t.free(id, obj)
	}
}

func (t *Table) free(id ID, obj *Object) {
	if p, ok := obj.Value.(Prepared); ok {
		p.PrepareTeardown()
	}

	t.mu.Lock()
	delete(t.slots, id)
	// Every id below nextHint stays taken, so a freed lower id becomes the
	// new starting point for the lowest-free-id search in Insert.
	if id < t.nextHint {
		t.nextHint = id
	}
	t.mu.Unlock()

	logging.Debugf("objects", "freeing object (id: %d, type: %s)", id, obj.Type)

	if obj.destroy != nil {
		obj.destroy()
	}
}

// Snapshot returns every currently-live id of the given type, in insertion
// order, for use by the inventory package (C8): an inventory is a snapshot
// taken at open time, and spec.md §4.7 requires get_next_inventory_entry to
// walk ids in the order their objects were created. Ascending id order only
// coincides with insertion order until the first id gets freed and reused,
// so this sorts by each object's own sequence number rather than its id.
func (t *Table) Snapshot(typ Type) []ID {
	t.mu.Lock()
	defer t.mu.Unlock()

	type entry struct {
		id  ID
		seq uint64
	}

	entries := make([]entry, 0, len(t.slots))
	for id, obj := range t.slots {
		if obj.Type == typ {
			entries = append(entries, entry{id: id, seq: obj.seq})
		}
	}

	for i := 1; i < len(entries); i++ {
		for j := i; j > 0 && entries[j-1].seq > entries[j].seq; j-- {
			entries[j-1], entries[j] = entries[j], entries[j-1]
		}
	}

	ids := make([]ID, len(entries))
	for i, e := range entries {
		ids[i] = e.id
	}

	return ids
}

// Count returns the number of live objects, used in tests and diagnostics.
func (t *Table) Count() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.slots)
}
