package inventory_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tinkerforge/red-brick-apid/internal/apierr"
	"github.com/Tinkerforge/red-brick-apid/internal/inventory"
	"github.com/Tinkerforge/red-brick-apid/internal/objects"
	"github.com/Tinkerforge/red-brick-apid/internal/strobj"
)

func TestInventoryEnumeratesSnapshotAndAcquiresEachID(t *testing.T) {
	table := objects.NewTable()

	a, _, err := strobj.Allocate(table, 0, []byte("a"))
	require.NoError(t, err)
	b, _, err := strobj.Allocate(table, 0, []byte("b"))
	require.NoError(t, err)

	_, inv, err := inventory.Open(table, objects.TypeString)
	require.NoError(t, err)

	// A third string created after Open must not appear in the snapshot.
	_, _, err = strobj.Allocate(table, 0, []byte("c"))
	require.NoError(t, err)

	first, err := inv.Next(table)
	require.NoError(t, err)
	assert.Equal(t, a, first)

	second, err := inv.Next(table)
	require.NoError(t, err)
	assert.Equal(t, b, second)

	_, err = inv.Next(table)
	var apiErr *apierr.Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, apierr.NoMoreData, apiErr.Code)

	inv.Rewind()
	third, err := inv.Next(table)
	require.NoError(t, err)
	assert.Equal(t, a, third)
}
