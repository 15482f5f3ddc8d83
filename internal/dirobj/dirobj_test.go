package dirobj_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tinkerforge/red-brick-apid/internal/apierr"
	"github.com/Tinkerforge/red-brick-apid/internal/dirobj"
	"github.com/Tinkerforge/red-brick-apid/internal/objects"
	"github.com/Tinkerforge/red-brick-apid/internal/strobj"
)

func nameObject(t *testing.T, table *objects.Table, path string) objects.ID {
	t.Helper()
	id, _, err := strobj.Allocate(table, uint32(len(path)), []byte(path))
	require.NoError(t, err)
	return id
}

func TestReaddirAndRewind(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a"), nil, 0600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b"), nil, 0600))

	table := objects.NewTable()
	nameID := nameObject(t, table, dir)

	_, d, err := dirobj.Open(table, nameID)
	require.NoError(t, err)

	seen := map[string]bool{}
	for {
		name, _, err := d.NextEntry()
		if err != nil {
			var apiErr *apierr.Error
			require.ErrorAs(t, err, &apiErr)
			assert.Equal(t, apierr.NoMoreData, apiErr.Code)
			break
		}

		seen[name] = true
	}

	assert.True(t, seen["a"])
	assert.True(t, seen["b"])

	require.NoError(t, d.Rewind())

	name, _, err := d.NextEntry()
	require.NoError(t, err)
	assert.NotEmpty(t, name)
}

func TestCreateRecursive(t *testing.T) {
	dir := t.TempDir()
	table := objects.NewTable()

	target := filepath.Join(dir, "a", "b", "c")
	nameID := nameObject(t, table, target)

	require.NoError(t, dirobj.Create(table, nameID, true, 0755, 0, 0))

	info, err := os.Stat(target)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestCreateExistingDirectorySucceeds(t *testing.T) {
	dir := t.TempDir()
	table := objects.NewTable()
	nameID := nameObject(t, table, dir)

	require.NoError(t, dirobj.Create(table, nameID, true, 0755, 0, 0))
}
