package protocol

// FunctionID enumerates every request/callback function id from spec.md
// §6's function table. Numbering follows the table's own ranges.
type FunctionID uint8

const (
	FunctionReleaseObject FunctionID = 1

	FunctionInventoryOpen         FunctionID = 2
	FunctionInventoryGetType      FunctionID = 3
	FunctionInventoryGetNextEntry FunctionID = 4
	FunctionInventoryRewind       FunctionID = 5

	FunctionStringAllocate  FunctionID = 6
	FunctionStringTruncate  FunctionID = 7
	FunctionStringGetLength FunctionID = 8
	FunctionStringSetChunk  FunctionID = 9
	FunctionStringGetChunk  FunctionID = 10

	FunctionListAllocate  FunctionID = 11
	FunctionListGetLength FunctionID = 12
	FunctionListGetItem   FunctionID = 13
	FunctionListAppend    FunctionID = 14
	FunctionListRemove    FunctionID = 15

	FunctionFileOpen                 FunctionID = 16
	FunctionFileCreatePipe           FunctionID = 17
	FunctionFileGetInfo              FunctionID = 18
	FunctionFileRead                 FunctionID = 19
	FunctionFileReadAsync            FunctionID = 20
	FunctionFileAbortAsyncRead       FunctionID = 21
	FunctionFileWrite                FunctionID = 22
	FunctionFileWriteUnchecked       FunctionID = 23
	FunctionFileWriteAsync           FunctionID = 24
	FunctionFileSetPosition          FunctionID = 25
	FunctionFileGetPosition          FunctionID = 26
	FunctionFileLookupInfo           FunctionID = 27
	FunctionFileLookupSymlinkTarget  FunctionID = 28

	FunctionDirectoryOpen         FunctionID = 31
	FunctionDirectoryGetName      FunctionID = 32
	FunctionDirectoryGetNextEntry FunctionID = 33
	FunctionDirectoryRewind       FunctionID = 34
	FunctionDirectoryCreate       FunctionID = 35

	FunctionProcessSpawn      FunctionID = 36
	FunctionProcessKill       FunctionID = 37
	FunctionProcessGetCommand FunctionID = 38
	FunctionProcessGetIdentity FunctionID = 39
	FunctionProcessGetStdio   FunctionID = 40
	FunctionProcessGetState   FunctionID = 41

	FunctionProgramDefine               FunctionID = 43
	FunctionProgramUndefine             FunctionID = 44
	FunctionProgramGetIdentifier        FunctionID = 45
	FunctionProgramGetDirectory         FunctionID = 46
	FunctionProgramSetCommand           FunctionID = 47
	FunctionProgramGetCommand           FunctionID = 48
	FunctionProgramSetStdioRedirection  FunctionID = 49
	FunctionProgramGetStdioRedirection  FunctionID = 50
	FunctionProgramSetSchedule          FunctionID = 51
	FunctionProgramGetSchedule          FunctionID = 52

	FunctionGetIdentity FunctionID = 255

	// Callback-only ids, never sent by a client as a request.
	CallbackAsyncFileRead       FunctionID = 200
	CallbackAsyncFileWrite      FunctionID = 201
	CallbackProcessStateChanged FunctionID = 202
)

// requestSizes gives each request function's fixed body size in bytes
// (excluding the 8-byte header), used by the dispatcher to validate frame
// length before decoding, per spec.md §4.8 step 1. Sizes follow directly
// from each function's documented parameter list in spec.md §4/§6.
var requestSizes = map[FunctionID]uint8{
	FunctionReleaseObject: 2,

	FunctionInventoryOpen:         1,
	FunctionInventoryGetType:      2,
	FunctionInventoryGetNextEntry: 2,
	FunctionInventoryRewind:       2,

	FunctionStringAllocate:  4 + 1 + 58,
	FunctionStringTruncate:  2 + 4,
	FunctionStringGetLength: 2,
	FunctionStringSetChunk:  2 + 4 + 58,
	FunctionStringGetChunk:  2 + 4,

	FunctionListAllocate:  4 + 1,
	FunctionListGetLength: 2,
	FunctionListGetItem:   2 + 4 + 1,
	FunctionListAppend:    2 + 2,
	FunctionListRemove:    2 + 4,

	FunctionFileOpen:                2 + 4 + 2 + 4 + 4,
	FunctionFileCreatePipe:          4,
	FunctionFileGetInfo:             2,
	FunctionFileRead:                2 + 1,
	FunctionFileReadAsync:           2 + 8,
	FunctionFileAbortAsyncRead:      2,
	FunctionFileWrite:               2 + 61 + 1,
	FunctionFileWriteUnchecked:      2 + 61 + 1,
	FunctionFileWriteAsync:          2 + 61 + 1,
	FunctionFileSetPosition:         2 + 8 + 1,
	FunctionFileGetPosition:         2,
	FunctionFileLookupInfo:          2,
	FunctionFileLookupSymlinkTarget: 2,

	FunctionDirectoryOpen:         2,
	FunctionDirectoryGetName:      2,
	FunctionDirectoryGetNextEntry: 2,
	FunctionDirectoryRewind:       2,
	FunctionDirectoryCreate:       2 + 1 + 2 + 4 + 4,

	FunctionProcessSpawn:       2 + 2 + 2 + 2 + 4 + 4 + 2 + 2 + 2,
	FunctionProcessKill:        2 + 1,
	FunctionProcessGetCommand:  2,
	FunctionProcessGetIdentity: 2,
	FunctionProcessGetStdio:    2,
	FunctionProcessGetState:    2,

	FunctionProgramDefine:              1,
	FunctionProgramUndefine:            2,
	FunctionProgramGetIdentifier:       2,
	FunctionProgramGetDirectory:        2,
	FunctionProgramSetCommand:          2 + 2 + 2 + 2 + 2,
	FunctionProgramGetCommand:          2,
	FunctionProgramSetStdioRedirection: 2 + 1 + 2 + 1 + 2 + 1 + 2,
	FunctionProgramGetStdioRedirection: 2,
	FunctionProgramSetSchedule:         2 + 1 + 1 + 4 + 1 + 1,
	FunctionProgramGetSchedule:         2,

	FunctionGetIdentity: 0,
}

// RequestSize returns the expected fixed request body length for id and
// whether id is a known function at all.
func RequestSize(id FunctionID) (uint8, bool) {
	size, ok := requestSizes[id]
	return size, ok
}
