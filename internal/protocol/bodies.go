package protocol

import (
	"github.com/Tinkerforge/red-brick-apid/internal/dirobj"
	"github.com/Tinkerforge/red-brick-apid/internal/fileobj"
	"github.com/Tinkerforge/red-brick-apid/internal/objects"
	"github.com/Tinkerforge/red-brick-apid/internal/process"
	"github.com/Tinkerforge/red-brick-apid/internal/program"
)

// Request/response body shapes for the function table in spec.md §6. Each
// struct's fields are exactly the function's documented parameter/return
// list; the dispatcher decodes into these structs after length-validating
// the raw frame (protocol.RequestSize), then calls the matching package.

type ReleaseObjectRequest struct {
	ObjectID objects.ID
}

type InventoryOpenRequest struct {
	Type objects.Type
}

type InventoryOpenResponse struct {
	InventoryID objects.ID
}

type InventoryGetTypeRequest struct{ InventoryID objects.ID }
type InventoryGetTypeResponse struct{ Type objects.Type }

type InventoryGetNextEntryRequest struct{ InventoryID objects.ID }
type InventoryGetNextEntryResponse struct{ ObjectID objects.ID }

type InventoryRewindRequest struct{ InventoryID objects.ID }

type StringAllocateRequest struct {
	Reserve uint32
	Initial [58]byte
}

type StringAllocateResponse struct{ StringID objects.ID }

type StringTruncateRequest struct {
	StringID objects.ID
	Length   uint32
}

type StringGetLengthRequest struct{ StringID objects.ID }
type StringGetLengthResponse struct{ Length uint32 }

type StringSetChunkRequest struct {
	StringID objects.ID
	Offset   uint32
	Buffer   [58]byte
}

type StringGetChunkRequest struct {
	StringID objects.ID
	Offset   uint32
}

type StringGetChunkResponse struct {
	Buffer [63]byte
}

type ListAllocateRequest struct{ Reserve uint32 }
type ListAllocateResponse struct{ ListID objects.ID }

type ListGetLengthRequest struct{ ListID objects.ID }
type ListGetLengthResponse struct{ Length uint32 }

type ListGetItemRequest struct {
	ListID objects.ID
	Index  uint32
}
type ListGetItemResponse struct{ ItemID objects.ID }

type ListAppendRequest struct {
	ListID objects.ID
	ItemID objects.ID
}

type ListRemoveRequest struct {
	ListID objects.ID
	Index  uint32
}

type FileOpenRequest struct {
	NameID      objects.ID
	Flags       fileobj.Flag
	Permissions uint16
	UID         uint32
	GID         uint32
}
type FileOpenResponse struct{ FileID objects.ID }

type FileCreatePipeRequest struct{ Flags fileobj.PipeFlag }
type FileCreatePipeResponse struct{ FileID objects.ID }

type FileReadRequest struct {
	FileID objects.ID
	Length uint8
}
type FileReadResponse struct {
	Buffer [62]byte
	Length uint8
}

type FileReadAsyncRequest struct {
	FileID       objects.ID
	LengthToRead uint64
}

type FileAbortAsyncReadRequest struct{ FileID objects.ID }

type FileWriteRequest struct {
	FileID objects.ID
	Buffer [61]byte
	Length uint8
}
type FileWriteResponse struct{ LengthWritten uint8 }

type FileSetPositionRequest struct {
	FileID objects.ID
	Offset int64
	Origin fileobj.Origin
}
type FileSetPositionResponse struct{ Position uint64 }

type FileGetPositionRequest struct{ FileID objects.ID }
type FileGetPositionResponse struct{ Position uint64 }

type DirectoryOpenRequest struct{ NameID objects.ID }
type DirectoryOpenResponse struct{ DirectoryID objects.ID }

type DirectoryGetNameRequest struct{ DirectoryID objects.ID }
type DirectoryGetNameResponse struct{ NameID objects.ID }

type DirectoryGetNextEntryRequest struct{ DirectoryID objects.ID }
type DirectoryGetNextEntryResponse struct {
	NameID objects.ID
	Type   dirobj.EntryType
}

type DirectoryRewindRequest struct{ DirectoryID objects.ID }

type DirectoryCreateRequest struct {
	NameID      objects.ID
	Recursive   bool
	Permissions uint16
	UID         uint32
	GID         uint32
}

type ProcessSpawnRequest struct {
	CommandID          objects.ID
	ArgumentsID        objects.ID
	EnvironmentID      objects.ID
	WorkingDirectoryID objects.ID
	UID                uint32
	GID                uint32
	StdinID            objects.ID
	StdoutID           objects.ID
	StderrID           objects.ID
}
type ProcessSpawnResponse struct{ ProcessID objects.ID }

type ProcessKillRequest struct {
	ProcessID objects.ID
	Signal    process.Signal
}

type ProcessGetStateRequest struct{ ProcessID objects.ID }
type ProcessGetStateResponse struct {
	State    process.State
	ExitCode uint8
}

type ProgramDefineRequest struct {
	Identifier string
}
type ProgramDefineResponse struct{ ProgramID objects.ID }

type ProgramUndefineRequest struct{ ProgramID objects.ID }

type ProgramGetIdentifierRequest struct{ ProgramID objects.ID }
type ProgramGetIdentifierResponse struct{ Identifier string }

type ProgramGetDirectoryRequest struct{ ProgramID objects.ID }
type ProgramGetDirectoryResponse struct{ Directory string }

type ProgramGetCommandRequest struct{ ProgramID objects.ID }
type ProgramGetCommandResponse struct {
	CommandID        objects.ID
	ArgumentsID      objects.ID
	EnvironmentID    objects.ID
	WorkingDirectory objects.ID
}

type ProgramGetStdioRedirectionRequest struct{ ProgramID objects.ID }
type ProgramGetStdioRedirectionResponse struct {
	StdinRedirection  program.Redirection
	StdinFileName     objects.ID
	StdoutRedirection program.Redirection
	StdoutFileName    objects.ID
	StderrRedirection program.Redirection
	StderrFileName    objects.ID
}

type ProcessGetCommandRequest struct{ ProcessID objects.ID }
type ProcessGetCommandResponse struct {
	CommandID          objects.ID
	ArgumentsID        objects.ID
	EnvironmentID      objects.ID
	WorkingDirectoryID objects.ID
}

type ProcessGetIdentityRequest struct{ ProcessID objects.ID }
type ProcessGetIdentityResponse struct {
	PID uint32
	UID uint32
	GID uint32
}

type ProcessGetStdioRequest struct{ ProcessID objects.ID }
type ProcessGetStdioResponse struct {
	StdinID  objects.ID
	StdoutID objects.ID
	StderrID objects.ID
}

type ProgramSetCommandRequest struct {
	ProgramID        objects.ID
	CommandID        objects.ID
	ArgumentsID      objects.ID
	EnvironmentID    objects.ID
	WorkingDirectory objects.ID
}

type ProgramSetStdioRedirectionRequest struct {
	ProgramID         objects.ID
	StdinRedirection  program.Redirection
	StdinFileName     objects.ID
	StdoutRedirection program.Redirection
	StdoutFileName    objects.ID
	StderrRedirection program.Redirection
	StderrFileName    objects.ID
}

type ProgramSetScheduleRequest struct {
	ProgramID           objects.ID
	StartMode           program.StartMode
	ContinueAfterError  bool
	StartInterval       uint32
	StartFields         string
}

type ProgramGetScheduleRequest struct{ ProgramID objects.ID }
type ProgramGetScheduleResponse struct {
	StartMode           program.StartMode
	ContinueAfterError  bool
	StartInterval       uint32
	StartFields         string
}

// Callback bodies.

type AsyncFileReadCallback struct {
	FileID objects.ID
	Error  byte
	Buffer [60]byte
	Length uint8
}

type AsyncFileWriteCallback struct {
	FileID        objects.ID
	Error         byte
	LengthWritten uint8
}

type ProcessStateChangedCallback struct {
	ProcessID objects.ID
	State     process.State
	ExitCode  uint8
}

// GetIdentityResponse mirrors spec.md §6's identity function:
// {uid[8]_base58, connected_uid, position, hardware_version[3],
// firmware_version[3], device_identifier}.
type GetIdentityResponse struct {
	UID              [8]byte
	ConnectedUID     [8]byte
	Position         byte
	HardwareVersion  [3]uint8
	FirmwareVersion  [3]uint8
	DeviceIdentifier uint16
}
