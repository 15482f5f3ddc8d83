package strobj_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tinkerforge/red-brick-apid/internal/apierr"
	"github.com/Tinkerforge/red-brick-apid/internal/objects"
	"github.com/Tinkerforge/red-brick-apid/internal/strobj"
)

func chunk(s string) [strobj.SetChunkSize]byte {
	var c [strobj.SetChunkSize]byte
	copy(c[:], s)
	return c
}

// TestRoundTrip reproduces spec.md's end-to-end scenario 1 verbatim.
func TestRoundTrip(t *testing.T) {
	table := objects.NewTable()

	id, s, err := strobj.Allocate(table, 200, []byte("hello"))
	require.NoError(t, err)
	assert.Equal(t, uint32(5), s.Length())

	require.NoError(t, s.SetChunk(5, chunk(" world")))
	assert.Equal(t, uint32(11), s.Length())

	got, err := s.GetChunk(0)
	require.NoError(t, err)

	var want [strobj.GetChunkSize]byte
	copy(want[:], "hello world")
	assert.Equal(t, want, got)

	_, err = s.GetChunk(11)
	require.Error(t, err)

	var apiErr *apierr.Error
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, apierr.NoMoreData, apiErr.Code)

	looked, err := strobj.Lookup(table, id)
	require.NoError(t, err)
	assert.Same(t, s, looked)
}

func TestTruncateShrinksOnly(t *testing.T) {
	table := objects.NewTable()

	_, s, err := strobj.Allocate(table, 10, []byte("hello"))
	require.NoError(t, err)

	require.NoError(t, s.Truncate(2))
	assert.Equal(t, uint32(2), s.Length())

	err = s.Truncate(5)
	require.Error(t, err)
}

func TestGetChunkAtLengthIsNoMoreData(t *testing.T) {
	table := objects.NewTable()

	_, s, err := strobj.Allocate(table, 10, nil)
	require.NoError(t, err)

	_, err = s.GetChunk(0)
	require.Error(t, err)

	var apiErr *apierr.Error
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, apierr.NoMoreData, apiErr.Code)
}
