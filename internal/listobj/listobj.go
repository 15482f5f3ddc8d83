// Package listobj implements the List object (spec.md §3/§4.2, part of
// C2): an ordered sequence of object ids, all of one declared type, bound
// on first append. Appending adds one internal ref to the item; removal
// releases one.
package listobj

import (
	"sync"

	"github.com/Tinkerforge/red-brick-apid/internal/apierr"
	"github.com/Tinkerforge/red-brick-apid/internal/objects"
)

// List is the concrete object value stored behind objects.TypeList.
type List struct {
	mu       sync.Mutex
	itemType objects.Type
	typed    bool // false until the first append binds itemType
	items    []objects.ID
}

// Allocate creates an empty, untyped list with capacity reserved for
// `reserve` items and inserts it into table.
func Allocate(table *objects.Table, reserve uint32) (objects.ID, *List, error) {
	l := &List{items: make([]objects.ID, 0, reserve)}

	id, err := table.Insert(objects.TypeList, l, nil)
	if err != nil {
		return 0, nil, err
	}

	return id, l, nil
}

// Lookup resolves id to its *List, type-checking against objects.TypeList.
func Lookup(table *objects.Table, id objects.ID) (*List, error) {
	obj, err := table.Lookup(id, objects.TypeList)
	if err != nil {
		return nil, err
	}

	return obj.Value.(*List), nil
}

// Length returns the current item count.
func (l *List) Length() uint32 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return uint32(len(l.items))
}

// ItemType returns the bound item type and whether the list has bound one
// yet (false for a freshly allocated, never-appended-to list).
func (l *List) ItemType() (objects.Type, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.itemType, l.typed
}

// Item returns the id at index.
func (l *List) Item(index uint32) (objects.ID, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if index >= uint32(len(l.items)) {
		return 0, apierr.New(apierr.InvalidParameter)
	}

	return l.items[index], nil
}

// Items returns a copy of the full id slice, used by process/program setup
// to materialize argv/envp.
func (l *List) Items() []objects.ID {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]objects.ID, len(l.items))
	copy(out, l.items)

	return out
}

// Append binds the list's item type on first call and appends item,
// rejecting a later append of a different type with WrongListItemType.
// The caller is responsible for adding the internal reference on the
// target object via table.AddInternalRef once Append succeeds.
func (l *List) Append(itemType objects.Type, id objects.ID) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.typed {
		l.itemType = itemType
		l.typed = true
	} else if l.itemType != itemType {
		return apierr.New(apierr.WrongListItemType)
	}

	l.items = append(l.items, id)

	return nil
}

// Remove deletes the item at index, shifting higher items down. The
// returned id's internal reference must be released by the caller.
func (l *List) Remove(index uint32) (objects.ID, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if index >= uint32(len(l.items)) {
		return 0, apierr.New(apierr.InvalidParameter)
	}

	id := l.items[index]
	l.items = append(l.items[:index], l.items[index+1:]...)

	return id, nil
}

// AppendRef looks itemID up in table, appends it to the list at listID
// (binding/checking the list's item type), and adds one internal
// reference on the appended item — the full semantics of the wire-level
// "append_to_list" operation (spec.md §6).
func AppendRef(table *objects.Table, listID, itemID objects.ID) error {
	list, err := Lookup(table, listID)
	if err != nil {
		return err
	}

	item, err := table.LookupAny(itemID)
	if err != nil {
		return err
	}

	if err := list.Append(item.Type, itemID); err != nil {
		return err
	}

	table.AddInternalRef(item)

	return nil
}

// RemoveRef removes the item at index from the list at listID and releases
// its internal reference, potentially destroying the item if that was its
// last reference.
func RemoveRef(table *objects.Table, listID objects.ID, index uint32) error {
	list, err := Lookup(table, listID)
	if err != nil {
		return err
	}

	itemID, err := list.Remove(index)
	if err != nil {
		return err
	}

	item, err := table.LookupAny(itemID)
	if err != nil {
		// The item outlived its list entry only by bug; nothing to
		// release against.
		return nil
	}

	table.RemoveInternalRef(item)

	return nil
}
