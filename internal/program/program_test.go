package program_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tinkerforge/red-brick-apid/internal/apierr"
	"github.com/Tinkerforge/red-brick-apid/internal/listobj"
	"github.com/Tinkerforge/red-brick-apid/internal/objects"
	"github.com/Tinkerforge/red-brick-apid/internal/program"
	"github.com/Tinkerforge/red-brick-apid/internal/strobj"
)

func nameObject(t *testing.T, table *objects.Table, s string) objects.ID {
	t.Helper()
	id, _, err := strobj.Allocate(table, uint32(len(s)), []byte(s))
	require.NoError(t, err)
	return id
}

func stringList(t *testing.T, table *objects.Table, items ...string) objects.ID {
	t.Helper()

	id, _, err := listobj.Allocate(table, uint32(len(items)))
	require.NoError(t, err)

	for _, item := range items {
		itemID := nameObject(t, table, item)
		require.NoError(t, listobj.AppendRef(table, id, itemID))
	}

	return id
}

func baseConfig(t *testing.T, table *objects.Table, root, command string, args ...string) program.Config {
	t.Helper()

	return program.Config{
		Identifier:        "p",
		RootDirectory:     root,
		Command:           nameObject(t, table, command),
		Arguments:         stringList(t, table, args...),
		Environment:       stringList(t, table),
		WorkingDirectory:  nameObject(t, table, t.TempDir()),
		StdinRedirection:  program.RedirectionDevNull,
		StdoutRedirection: program.RedirectionDevNull,
		StderrRedirection: program.RedirectionDevNull,
		StartMode:         program.StartModeNever,
	}
}

func TestDefineRejectsZeroIntervalSchedule(t *testing.T) {
	table := objects.NewTable()
	root := t.TempDir()

	cfg := baseConfig(t, table, root, "true")
	cfg.StartMode = program.StartModeInterval
	cfg.StartInterval = 0

	_, _, err := program.Define(table, cfg)
	require.Error(t, err)

	var apiErr *apierr.Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, apierr.InvalidParameter, apiErr.Code)
}

func TestDefinePersistsAndLoadRoundTrips(t *testing.T) {
	table := objects.NewTable()
	root := filepath.Join(t.TempDir(), "p")

	cfg := baseConfig(t, table, root, "/usr/bin/true", "-a", "-b")

	_, p, err := program.Define(table, cfg)
	require.NoError(t, err)
	assert.Equal(t, program.StateWaitingForStartCondition, p.State())

	_, err = os.Stat(filepath.Join(root, "program.conf"))
	require.NoError(t, err)

	table2 := objects.NewTable()
	loaded, err := program.Load(table2, "p", root)
	require.NoError(t, err)

	assert.Equal(t, program.StartModeNever, loaded.StartMode)

	command, err := strobj.Lookup(table2, loaded.Command)
	require.NoError(t, err)
	assert.Equal(t, "/usr/bin/true", string(command.Bytes()))

	arguments, err := listobj.Lookup(table2, loaded.Arguments)
	require.NoError(t, err)
	assert.EqualValues(t, 2, arguments.Length())
}

func TestAlwaysModeSpawnsAndRecordsLastSpawn(t *testing.T) {
	table := objects.NewTable()
	root := t.TempDir()

	cfg := baseConfig(t, table, root, "true")
	cfg.StartMode = program.StartModeAlways
	cfg.ContinueAfterError = true

	_, p, err := program.Define(table, cfg)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		id, _ := p.LastSpawn()
		return id != 0
	}, 3*time.Second, 10*time.Millisecond)
}

func TestPurgeRemovesRootDirectory(t *testing.T) {
	table := objects.NewTable()
	root := filepath.Join(t.TempDir(), "p")

	cfg := baseConfig(t, table, root, "true")

	_, p, err := program.Define(table, cfg)
	require.NoError(t, err)

	require.NoError(t, p.Purge(table))

	_, err = os.Stat(root)
	assert.True(t, os.IsNotExist(err))
}
