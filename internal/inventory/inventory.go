// Package inventory implements cursor-based enumeration per object class
// (spec.md §4.7, C8): opening an inventory snapshots every currently-live
// id of one type, then hands them out one at a time, acquiring an
// external reference on each id returned to the caller.
package inventory

import (
	"sync"

	"github.com/Tinkerforge/red-brick-apid/internal/apierr"
	"github.com/Tinkerforge/red-brick-apid/internal/objects"
)

// Inventory is the concrete object value stored behind
// objects.TypeInventory.
type Inventory struct {
	mu     sync.Mutex
	typ    objects.Type
	ids    []objects.ID
	cursor int
}

// Open snapshots every currently-live id of typ and inserts the resulting
// cursor as a new inventory object.
func Open(table *objects.Table, typ objects.Type) (objects.ID, *Inventory, error) {
	inv := &Inventory{typ: typ, ids: table.Snapshot(typ)}

	id, err := table.Insert(objects.TypeInventory, inv, nil)
	if err != nil {
		return 0, nil, err
	}

	return id, inv, nil
}

// Lookup resolves id to its *Inventory, type-checking against
// objects.TypeInventory.
func Lookup(table *objects.Table, id objects.ID) (*Inventory, error) {
	obj, err := table.Lookup(id, objects.TypeInventory)
	if err != nil {
		return nil, err
	}

	return obj.Value.(*Inventory), nil
}

// Type reports which object class this inventory enumerates, for the
// wire-level get_type operation.
func (i *Inventory) Type() objects.Type {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.typ
}

// Next returns the next id in the snapshot, acquiring one external
// reference on it on the caller's behalf. NoMoreData at exhaustion, per
// spec.md §4.7.
func (i *Inventory) Next(table *objects.Table) (objects.ID, error) {
	i.mu.Lock()
	defer i.mu.Unlock()

	for i.cursor < len(i.ids) {
		id := i.ids[i.cursor]
		i.cursor++

		// The object may have vanished between snapshot and now; skip it
		// rather than fail the whole enumeration.
		if err := table.Acquire(id); err == nil {
			return id, nil
		}
	}

	return 0, apierr.New(apierr.NoMoreData)
}

// Rewind restarts enumeration from the top of the existing snapshot (it
// does not retake the snapshot), per spec.md §4.7.
func (i *Inventory) Rewind() {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.cursor = 0
}
