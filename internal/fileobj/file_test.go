package fileobj_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tinkerforge/red-brick-apid/internal/apierr"
	"github.com/Tinkerforge/red-brick-apid/internal/fileobj"
	"github.com/Tinkerforge/red-brick-apid/internal/objects"
	"github.com/Tinkerforge/red-brick-apid/internal/strobj"
)

func nameObject(t *testing.T, table *objects.Table, path string) objects.ID {
	t.Helper()
	id, _, err := strobj.Allocate(table, uint32(len(path)), []byte(path))
	require.NoError(t, err)
	return id
}

func TestOpenReadWriteSeek(t *testing.T) {
	table := objects.NewTable()

	path := filepath.Join(t.TempDir(), "f")
	nameID := nameObject(t, table, path)

	_, f, err := fileobj.Open(table, nameID, fileobj.FlagReadWrite|fileobj.FlagCreate, 0600, uint32(os.Getuid()), uint32(os.Getgid()))
	require.NoError(t, err)

	n, err := f.Write([]byte("hello"))
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	_, err = f.SetPosition(0, fileobj.OriginBeginning)
	require.NoError(t, err)

	buf := make([]byte, fileobj.ReadBufferSize)
	n, err = f.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(buf[:n]))

	// EOF reads 0 bytes with no error.
	n, err = f.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestPipeIsNotSeekable(t *testing.T) {
	table := objects.NewTable()

	_, f, err := fileobj.CreatePipe(table, 0)
	require.NoError(t, err)

	_, err = f.SetPosition(0, fileobj.OriginBeginning)
	require.Error(t, err)
}

// TestAsyncReadOf180Bytes reproduces spec.md's end-to-end scenario 3.
func TestAsyncReadOf180Bytes(t *testing.T) {
	table := objects.NewTable()

	path := filepath.Join(t.TempDir(), "f")
	content := make([]byte, 180)
	for i := range content {
		content[i] = byte('a' + i%26)
	}
	require.NoError(t, os.WriteFile(path, content, 0600))

	nameID := nameObject(t, table, path)
	_, f, err := fileobj.Open(table, nameID, fileobj.FlagReadOnly, 0, uint32(os.Getuid()), uint32(os.Getgid()))
	require.NoError(t, err)

	require.NoError(t, f.ReadAsync(180))

	var total int
	timeout := time.After(2 * time.Second)

	for {
		select {
		case cb := <-f.Callbacks():
			if cb.Error == apierr.NoMoreData {
				assert.Equal(t, 180, total)
				return
			}

			require.Equal(t, apierr.OK, cb.Error)
			total += int(cb.Length)
		case <-timeout:
			t.Fatal("timed out waiting for async read callbacks")
		}
	}
}

// TestAsyncReadNotAMultipleOfBufferSize guards against reading past the
// requested length when n doesn't divide evenly into ReadAsyncBufferSize:
// the last chunk must be capped to what's left, not the full buffer size.
func TestAsyncReadNotAMultipleOfBufferSize(t *testing.T) {
	table := objects.NewTable()

	path := filepath.Join(t.TempDir(), "f")
	content := make([]byte, 200)
	for i := range content {
		content[i] = byte('a' + i%26)
	}
	require.NoError(t, os.WriteFile(path, content, 0600))

	nameID := nameObject(t, table, path)
	_, f, err := fileobj.Open(table, nameID, fileobj.FlagReadOnly, 0, uint32(os.Getuid()), uint32(os.Getgid()))
	require.NoError(t, err)

	require.NoError(t, f.ReadAsync(100))

	var total int
	timeout := time.After(2 * time.Second)

	for {
		select {
		case cb := <-f.Callbacks():
			if cb.Error == apierr.NoMoreData {
				assert.Equal(t, 100, total)
				return
			}

			require.Equal(t, apierr.OK, cb.Error)
			assert.LessOrEqual(t, int(cb.Length), fileobj.ReadAsyncBufferSize)
			total += int(cb.Length)
			assert.LessOrEqual(t, total, 100)
		case <-timeout:
			t.Fatal("timed out waiting for async read callbacks")
		}
	}
}

// TestAbortAsyncRead reproduces spec.md's end-to-end scenario 6.
func TestAbortAsyncRead(t *testing.T) {
	table := objects.NewTable()

	path := filepath.Join(t.TempDir(), "f")
	require.NoError(t, os.WriteFile(path, make([]byte, 1000), 0600))

	nameID := nameObject(t, table, path)
	_, f, err := fileobj.Open(table, nameID, fileobj.FlagReadOnly, 0, uint32(os.Getuid()), uint32(os.Getgid()))
	require.NoError(t, err)

	require.NoError(t, f.ReadAsync(1_000_000))
	require.NoError(t, f.AbortAsyncRead())

	select {
	case cb := <-f.Callbacks():
		assert.Equal(t, apierr.OperationAborted, cb.Error)
	case <-time.After(2 * time.Second):
		t.Fatal("expected exactly one OperationAborted callback")
	}

	// A second async read_file_async should succeed immediately after.
	require.Eventually(t, func() bool {
		return f.ReadAsync(10) == nil
	}, time.Second, time.Millisecond)
}

func TestSecondAsyncReadWhileInFlightFails(t *testing.T) {
	table := objects.NewTable()

	path := filepath.Join(t.TempDir(), "f")
	require.NoError(t, os.WriteFile(path, make([]byte, 1000), 0600))

	nameID := nameObject(t, table, path)
	_, f, err := fileobj.Open(table, nameID, fileobj.FlagReadOnly, 0, uint32(os.Getuid()), uint32(os.Getgid()))
	require.NoError(t, err)

	require.NoError(t, f.ReadAsync(1_000_000))

	err = f.ReadAsync(10)
	require.Error(t, err)
}
