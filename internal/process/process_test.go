package process_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tinkerforge/red-brick-apid/internal/apierr"
	"github.com/Tinkerforge/red-brick-apid/internal/fileobj"
	"github.com/Tinkerforge/red-brick-apid/internal/listobj"
	"github.com/Tinkerforge/red-brick-apid/internal/objects"
	"github.com/Tinkerforge/red-brick-apid/internal/process"
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

func openFile(t *testing.T, table *objects.Table, path string, flags fileobj.Flag) objects.ID {
	t.Helper()

	nameID := nameObject(t, table, path)
	id, _, err := fileobj.Open(table, nameID, flags, 0600, uint32(os.Getuid()), uint32(os.Getgid()))
	require.NoError(t, err)

	return id
}

func waitForExit(t *testing.T, proc *process.Process) process.StateChange {
	t.Helper()

	select {
	case change := <-proc.Changes():
		proc.ApplyChange(change)
		if change.Fatal {
			return change
		}
		return waitForExit(t, proc)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for process exit")
		return process.StateChange{}
	}
}

func TestSpawnTrueExitsZero(t *testing.T) {
	table := objects.NewTable()

	commandID := nameObject(t, table, "true")
	argumentsID := stringList(t, table)
	environmentID := stringList(t, table)
	workingDirectoryID := nameObject(t, table, t.TempDir())

	stdinID := openFile(t, table, os.DevNull, fileobj.FlagReadOnly)
	stdoutID := openFile(t, table, filepath.Join(t.TempDir(), "out"), fileobj.FlagWriteOnly|fileobj.FlagCreate)
	stderrID := openFile(t, table, filepath.Join(t.TempDir(), "err"), fileobj.FlagWriteOnly|fileobj.FlagCreate)

	_, proc, err := process.Spawn(table, commandID, argumentsID, environmentID, workingDirectoryID, uint32(os.Getuid()), uint32(os.Getgid()), stdinID, stdoutID, stderrID)
	require.NoError(t, err)

	change := waitForExit(t, proc)
	assert.Equal(t, process.StateExited, change.State)
	assert.Equal(t, uint8(0), change.ExitCode)
}

func TestSpawnNonexistentCommandFails(t *testing.T) {
	table := objects.NewTable()

	commandID := nameObject(t, table, "this-command-does-not-exist-anywhere")
	argumentsID := stringList(t, table)
	environmentID := stringList(t, table)
	workingDirectoryID := nameObject(t, table, t.TempDir())

	stdinID := openFile(t, table, os.DevNull, fileobj.FlagReadOnly)
	stdoutID := openFile(t, table, filepath.Join(t.TempDir(), "out"), fileobj.FlagWriteOnly|fileobj.FlagCreate)
	stderrID := openFile(t, table, filepath.Join(t.TempDir(), "err"), fileobj.FlagWriteOnly|fileobj.FlagCreate)

	_, _, err := process.Spawn(table, commandID, argumentsID, environmentID, workingDirectoryID, uint32(os.Getuid()), uint32(os.Getgid()), stdinID, stdoutID, stderrID)
	require.Error(t, err)

	var apiErr *apierr.Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, apierr.DoesNotExist, apiErr.Code)
}

func TestKillProcessSendsSignal(t *testing.T) {
	table := objects.NewTable()

	commandID := nameObject(t, table, "sleep")
	argumentsID := stringList(t, table, "30")
	environmentID := stringList(t, table)
	workingDirectoryID := nameObject(t, table, t.TempDir())

	stdinID := openFile(t, table, os.DevNull, fileobj.FlagReadOnly)
	stdoutID := openFile(t, table, filepath.Join(t.TempDir(), "out"), fileobj.FlagWriteOnly|fileobj.FlagCreate)
	stderrID := openFile(t, table, filepath.Join(t.TempDir(), "err"), fileobj.FlagWriteOnly|fileobj.FlagCreate)

	_, proc, err := process.Spawn(table, commandID, argumentsID, environmentID, workingDirectoryID, uint32(os.Getuid()), uint32(os.Getgid()), stdinID, stdoutID, stderrID)
	require.NoError(t, err)

	require.NoError(t, proc.Kill(process.SignalKILL))

	change := waitForExit(t, proc)
	assert.Equal(t, process.StateKilled, change.State)
}
