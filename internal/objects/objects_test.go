package objects_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tinkerforge/red-brick-apid/internal/apierr"
	"github.com/Tinkerforge/red-brick-apid/internal/objects"
)

func TestInsertAssignsLowestFreeID(t *testing.T) {
	table := objects.NewTable()

	id1, err := table.Insert(objects.TypeString, "a", nil)
	require.NoError(t, err)
	assert.Equal(t, objects.ID(1), id1)

	id2, err := table.Insert(objects.TypeString, "b", nil)
	require.NoError(t, err)
	assert.Equal(t, objects.ID(2), id2)

	require.NoError(t, table.Release(id1))

	id3, err := table.Insert(objects.TypeString, "c", nil)
	require.NoError(t, err)
	assert.Equal(t, id1, id3, "freed id should be reused before allocating a new one")
}

func TestLookupZeroIsUnknown(t *testing.T) {
	table := objects.NewTable()

	_, err := table.Lookup(0, objects.TypeString)
	require.Error(t, err)

	var apiErr *apierr.Error
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, apierr.UnknownObjectID, apiErr.Code)
}

func TestLookupWrongTypeFails(t *testing.T) {
	table := objects.NewTable()

	id, err := table.Insert(objects.TypeList, "mylist", nil)
	require.NoError(t, err)

	_, err = table.Lookup(id, objects.TypeString)
	require.Error(t, err)

	var apiErr *apierr.Error
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, apierr.WrongObjectType, apiErr.Code)
}

func TestDestructorRunsExactlyOnceWhenBothRefcountsReachZero(t *testing.T) {
	table := objects.NewTable()

	calls := 0
	id, err := table.Insert(objects.TypeString, "x", func() { calls++ })
	require.NoError(t, err)

	obj, err := table.LookupAny(id)
	require.NoError(t, err)

	table.AddInternalRef(obj)
	require.NoError(t, table.Acquire(id))

	// external=2, internal=1: releasing all three times should destroy
	// exactly once, on the last release.
	require.NoError(t, table.Release(id))
	assert.Equal(t, 0, calls)

	require.NoError(t, table.Release(id))
	assert.Equal(t, 0, calls)

	table.RemoveInternalRef(obj)
	assert.Equal(t, 1, calls)

	_, err = table.LookupAny(id)
	require.Error(t, err)
}

func TestNoFreeObjectIDWhenExhausted(t *testing.T) {
	table := objects.NewTable()

	// Fill all 65535 usable ids (id 0 is reserved), then one more Insert
	// must fail.
	for i := 0; i < 65535; i++ {
		id, err := table.Insert(objects.TypeString, i, nil)
		require.NoError(t, err)
		assert.NotZero(t, id)
	}

	_, err := table.Insert(objects.TypeString, "overflow", nil)
	require.Error(t, err)

	var apiErr *apierr.Error
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, apierr.NoFreeObjectID, apiErr.Code)
}

func TestSnapshotIsAscendingInsertionOrder(t *testing.T) {
	table := objects.NewTable()

	var ids []objects.ID
	for i := 0; i < 5; i++ {
		id, err := table.Insert(objects.TypeList, i, nil)
		require.NoError(t, err)
		ids = append(ids, id)
	}

	snap := table.Snapshot(objects.TypeList)
	assert.Equal(t, ids, snap)
}

// TestSnapshotOrderSurvivesIDReuse guards against approximating insertion
// order from id magnitude: once a low id is freed and reallocated, a
// later-inserted object can land on a lower id than an earlier, still-live
// one, and Snapshot must still report true insertion order.
func TestSnapshotOrderSurvivesIDReuse(t *testing.T) {
	table := objects.NewTable()

	first, err := table.Insert(objects.TypeList, "first", nil)
	require.NoError(t, err)

	second, err := table.Insert(objects.TypeList, "second", nil)
	require.NoError(t, err)

	require.NoError(t, table.Release(first))

	// third reuses first's freed, lower id, but was inserted after second.
	third, err := table.Insert(objects.TypeList, "third", nil)
	require.NoError(t, err)
	require.Equal(t, first, third, "freed id should be reused before allocating a new one")

	snap := table.Snapshot(objects.TypeList)
	assert.Equal(t, []objects.ID{second, third}, snap, "snapshot must reflect insertion order, not ascending id order")
}
