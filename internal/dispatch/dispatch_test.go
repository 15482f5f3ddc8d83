package dispatch_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tinkerforge/red-brick-apid/internal/apierr"
	"github.com/Tinkerforge/red-brick-apid/internal/dispatch"
	"github.com/Tinkerforge/red-brick-apid/internal/objects"
	"github.com/Tinkerforge/red-brick-apid/internal/protocol"
)

func newDispatcher(t *testing.T) *dispatch.Dispatcher {
	t.Helper()
	return dispatch.New(objects.NewTable(), t.TempDir())
}

func TestStringAllocateGetLengthGetChunkRoundTrips(t *testing.T) {
	d := newDispatcher(t)

	var initial [58]byte
	copy(initial[:], "hello")
	resp, code := d.Dispatch(protocol.FunctionStringAllocate, protocol.StringAllocateRequest{Reserve: 0, Initial: initial})
	require.Equal(t, apierr.OK, code)
	id := resp.(protocol.StringAllocateResponse).StringID

	lenResp, code := d.Dispatch(protocol.FunctionStringGetLength, protocol.StringGetLengthRequest{StringID: id})
	require.Equal(t, apierr.OK, code)
	assert.Equal(t, uint32(5), lenResp.(protocol.StringGetLengthResponse).Length)

	chunkResp, code := d.Dispatch(protocol.FunctionStringGetChunk, protocol.StringGetChunkRequest{StringID: id, Offset: 0})
	require.Equal(t, apierr.OK, code)
	buf := chunkResp.(protocol.StringGetChunkResponse).Buffer
	assert.Equal(t, byte('h'), buf[0])
}

func TestReleaseObjectOnUnknownIDReturnsUnknownObjectID(t *testing.T) {
	d := newDispatcher(t)

	_, code := d.Dispatch(protocol.FunctionReleaseObject, protocol.ReleaseObjectRequest{ObjectID: 9999})
	assert.Equal(t, apierr.UnknownObjectID, code)
}

func TestUnknownFunctionIDIsNotSupported(t *testing.T) {
	code, ok := dispatch.ValidateLength(protocol.FunctionID(250), 0)
	assert.False(t, ok)
	assert.Equal(t, apierr.FunctionNotSupported, code)
}

func TestValidateLengthMismatchIsInvalidParameter(t *testing.T) {
	code, ok := dispatch.ValidateLength(protocol.FunctionStringGetLength, 99)
	assert.False(t, ok)
	assert.Equal(t, apierr.InvalidParameter, code)
}

func TestProgramDefineCreatesRootDirectory(t *testing.T) {
	d := newDispatcher(t)

	resp, code := d.Dispatch(protocol.FunctionProgramDefine, protocol.ProgramDefineRequest{Identifier: "my-prog"})
	require.Equal(t, apierr.OK, code)
	id := resp.(protocol.ProgramDefineResponse).ProgramID
	assert.NotZero(t, id)

	idResp, code := d.Dispatch(protocol.FunctionProgramGetIdentifier, protocol.ProgramGetIdentifierRequest{ProgramID: id})
	require.Equal(t, apierr.OK, code)
	assert.Equal(t, "my-prog", idResp.(protocol.ProgramGetIdentifierResponse).Identifier)

	info, err := os.Stat(filepath.Join(d.ProgramsRoot, "my-prog"))
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestListAllocateAppendGetItemRoundTrips(t *testing.T) {
	d := newDispatcher(t)

	listResp, code := d.Dispatch(protocol.FunctionListAllocate, protocol.ListAllocateRequest{Reserve: 0})
	require.Equal(t, apierr.OK, code)
	listID := listResp.(protocol.ListAllocateResponse).ListID

	var initial [58]byte
	copy(initial[:], "item")
	strResp, code := d.Dispatch(protocol.FunctionStringAllocate, protocol.StringAllocateRequest{Initial: initial})
	require.Equal(t, apierr.OK, code)
	itemID := strResp.(protocol.StringAllocateResponse).StringID

	_, code = d.Dispatch(protocol.FunctionListAppend, protocol.ListAppendRequest{ListID: listID, ItemID: itemID})
	require.Equal(t, apierr.OK, code)

	lenResp, code := d.Dispatch(protocol.FunctionListGetLength, protocol.ListGetLengthRequest{ListID: listID})
	require.Equal(t, apierr.OK, code)
	assert.Equal(t, uint32(1), lenResp.(protocol.ListGetLengthResponse).Length)

	itemResp, code := d.Dispatch(protocol.FunctionListGetItem, protocol.ListGetItemRequest{ListID: listID, Index: 0})
	require.Equal(t, apierr.OK, code)
	assert.Equal(t, itemID, itemResp.(protocol.ListGetItemResponse).ItemID)
}
