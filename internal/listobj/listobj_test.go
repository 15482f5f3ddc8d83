package listobj_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tinkerforge/red-brick-apid/internal/apierr"
	"github.com/Tinkerforge/red-brick-apid/internal/listobj"
	"github.com/Tinkerforge/red-brick-apid/internal/objects"
	"github.com/Tinkerforge/red-brick-apid/internal/strobj"
)

// TestTypedList reproduces spec.md's end-to-end scenario 2.
func TestTypedList(t *testing.T) {
	table := objects.NewTable()

	listID, _, err := listobj.Allocate(table, 0)
	require.NoError(t, err)

	strID, _, err := strobj.Allocate(table, 1, []byte("a"))
	require.NoError(t, err)

	require.NoError(t, listobj.AppendRef(table, listID, strID))

	list2ID, _, err := listobj.Allocate(table, 0)
	require.NoError(t, err)

	err = listobj.AppendRef(table, listID, list2ID)
	require.Error(t, err)

	var apiErr *apierr.Error
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, apierr.WrongListItemType, apiErr.Code)

	strObj, err := table.LookupAny(strID)
	require.NoError(t, err)

	require.NoError(t, listobj.RemoveRef(table, listID, 0))

	list, err := listobj.Lookup(table, listID)
	require.NoError(t, err)
	assert.Equal(t, uint32(0), list.Length())

	// The internal reference held by the list is gone, but the external
	// reference from allocation is still there, so the string survives.
	_ = strObj
	s, err := strobj.Lookup(table, strID)
	require.NoError(t, err)
	assert.Equal(t, "a", string(s.Bytes()))
}

func TestAppendBindsTypeOnFirstCall(t *testing.T) {
	table := objects.NewTable()

	listID, list, err := listobj.Allocate(table, 0)
	require.NoError(t, err)

	itemType, typed := list.ItemType()
	assert.False(t, typed)
	assert.Equal(t, objects.Type(0), itemType)

	strID, _, err := strobj.Allocate(table, 1, []byte("x"))
	require.NoError(t, err)
	require.NoError(t, listobj.AppendRef(table, listID, strID))

	itemType, typed = list.ItemType()
	assert.True(t, typed)
	assert.Equal(t, objects.TypeString, itemType)
}

func TestRemoveShiftsHigherItemsDown(t *testing.T) {
	table := objects.NewTable()

	listID, list, err := listobj.Allocate(table, 0)
	require.NoError(t, err)

	var ids []objects.ID
	for i := 0; i < 3; i++ {
		id, _, err := strobj.Allocate(table, 1, []byte{byte('a' + i)})
		require.NoError(t, err)
		require.NoError(t, listobj.AppendRef(table, listID, id))
		ids = append(ids, id)
	}

	require.NoError(t, listobj.RemoveRef(table, listID, 0))

	assert.Equal(t, uint32(2), list.Length())

	item0, err := list.Item(0)
	require.NoError(t, err)
	assert.Equal(t, ids[1], item0)

	item1, err := list.Item(1)
	require.NoError(t, err)
	assert.Equal(t, ids[2], item1)
}
