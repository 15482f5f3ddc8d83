// Package dispatch implements the request dispatcher (spec.md §4.8, C9):
// it validates a decoded frame's length against the function id's fixed
// request size, rejects unknown ids, and routes to the object packages,
// returning a response value and the apierr.Code to place in the response
// header. The wire codec and socket loop that produce/consume raw bytes
// are out of scope (spec.md §1); Dispatch operates on already-decoded
// request values.
package dispatch

import (
	"bytes"
	"os"
	"path/filepath"

	"github.com/Tinkerforge/red-brick-apid/internal/apierr"
	"github.com/Tinkerforge/red-brick-apid/internal/dirobj"
	"github.com/Tinkerforge/red-brick-apid/internal/fileobj"
	"github.com/Tinkerforge/red-brick-apid/internal/inventory"
	"github.com/Tinkerforge/red-brick-apid/internal/listobj"
	"github.com/Tinkerforge/red-brick-apid/internal/objects"
	"github.com/Tinkerforge/red-brick-apid/internal/process"
	"github.com/Tinkerforge/red-brick-apid/internal/program"
	"github.com/Tinkerforge/red-brick-apid/internal/protocol"
	"github.com/Tinkerforge/red-brick-apid/internal/strobj"
)

// Dispatcher holds the single process-wide handle table every handler
// operates against, plus the programs directory new program_define calls
// create their root directory under.
type Dispatcher struct {
	Table          *objects.Table
	ProgramsRoot   string
}

// New constructs a Dispatcher over table, rooted at programsRoot for
// program_define.
func New(table *objects.Table, programsRoot string) *Dispatcher {
	return &Dispatcher{Table: table, ProgramsRoot: programsRoot}
}

// ValidateLength implements spec.md §4.8 step 1: a frame whose length
// doesn't match the function's fixed request size fails with
// InvalidParameter, but only actually elicits a response if
// responseExpected is set — the caller (the socket loop) decides whether
// to write anything back.
func ValidateLength(id protocol.FunctionID, frameLength uint8) (apierr.Code, bool) {
	size, ok := protocol.RequestSize(id)
	if !ok {
		return apierr.FunctionNotSupported, false
	}

	if frameLength != size {
		return apierr.InvalidParameter, false
	}

	return apierr.OK, true
}

// Dispatch routes req (already decoded and length-validated by the
// caller via ValidateLength) to its handler and returns the response
// value plus the error-kind to place in the response header's
// error_code byte. req must be the request struct type that matches id:
// handlers use unchecked type assertions, so a mismatched pair panics.
// Such a mismatch is a programmer error in the codec layer, not a
// client-triggerable condition.
func (d *Dispatcher) Dispatch(id protocol.FunctionID, req any) (any, apierr.Code) {
	resp, err := d.route(id, req)
	if err != nil {
		return nil, codeOf(err)
	}

	return resp, apierr.OK
}

func codeOf(err error) apierr.Code {
	type coder interface{ Code() apierr.Code }
	if c, ok := err.(coder); ok {
		return c.Code()
	}

	if apiErr, ok := err.(*apierr.Error); ok {
		return apiErr.Code
	}

	return apierr.UnknownError
}

func (d *Dispatcher) route(id protocol.FunctionID, req any) (any, error) {
	table := d.Table

	switch id {
	case protocol.FunctionReleaseObject:
		r := req.(protocol.ReleaseObjectRequest)
		return nil, table.Release(r.ObjectID)

	case protocol.FunctionInventoryOpen:
		r := req.(protocol.InventoryOpenRequest)
		id, _, err := inventory.Open(table, r.Type)
		return protocol.InventoryOpenResponse{InventoryID: id}, err

	case protocol.FunctionInventoryGetType:
		r := req.(protocol.InventoryGetTypeRequest)
		inv, err := inventory.Lookup(table, r.InventoryID)
		if err != nil {
			return nil, err
		}
		return protocol.InventoryGetTypeResponse{Type: inv.Type()}, nil

	case protocol.FunctionInventoryGetNextEntry:
		r := req.(protocol.InventoryGetNextEntryRequest)
		inv, err := inventory.Lookup(table, r.InventoryID)
		if err != nil {
			return nil, err
		}
		oid, err := inv.Next(table)
		return protocol.InventoryGetNextEntryResponse{ObjectID: oid}, err

	case protocol.FunctionInventoryRewind:
		r := req.(protocol.InventoryRewindRequest)
		inv, err := inventory.Lookup(table, r.InventoryID)
		if err != nil {
			return nil, err
		}
		inv.Rewind()
		return nil, nil

	case protocol.FunctionStringAllocate:
		r := req.(protocol.StringAllocateRequest)
		// The initial buffer is a NUL-terminated fragment, like set_chunk's.
		initial := r.Initial[:]
		if n := bytes.IndexByte(initial, 0); n >= 0 {
			initial = initial[:n]
		}
		id, _, err := strobj.Allocate(table, r.Reserve, initial)
		return protocol.StringAllocateResponse{StringID: id}, err

	case protocol.FunctionStringTruncate:
		r := req.(protocol.StringTruncateRequest)
		s, err := strobj.Lookup(table, r.StringID)
		if err != nil {
			return nil, err
		}
		return nil, s.Truncate(r.Length)

	case protocol.FunctionStringGetLength:
		r := req.(protocol.StringGetLengthRequest)
		s, err := strobj.Lookup(table, r.StringID)
		if err != nil {
			return nil, err
		}
		return protocol.StringGetLengthResponse{Length: s.Length()}, nil

	case protocol.FunctionStringSetChunk:
		r := req.(protocol.StringSetChunkRequest)
		s, err := strobj.Lookup(table, r.StringID)
		if err != nil {
			return nil, err
		}
		return nil, s.SetChunk(r.Offset, r.Buffer)

	case protocol.FunctionStringGetChunk:
		r := req.(protocol.StringGetChunkRequest)
		s, err := strobj.Lookup(table, r.StringID)
		if err != nil {
			return nil, err
		}
		buf, err := s.GetChunk(r.Offset)
		return protocol.StringGetChunkResponse{Buffer: buf}, err

	case protocol.FunctionListAllocate:
		r := req.(protocol.ListAllocateRequest)
		id, _, err := listobj.Allocate(table, r.Reserve)
		return protocol.ListAllocateResponse{ListID: id}, err

	case protocol.FunctionListGetLength:
		r := req.(protocol.ListGetLengthRequest)
		l, err := listobj.Lookup(table, r.ListID)
		if err != nil {
			return nil, err
		}
		return protocol.ListGetLengthResponse{Length: l.Length()}, nil

	case protocol.FunctionListGetItem:
		r := req.(protocol.ListGetItemRequest)
		l, err := listobj.Lookup(table, r.ListID)
		if err != nil {
			return nil, err
		}
		item, err := l.Item(r.Index)
		return protocol.ListGetItemResponse{ItemID: item}, err

	case protocol.FunctionListAppend:
		r := req.(protocol.ListAppendRequest)
		return nil, listobj.AppendRef(table, r.ListID, r.ItemID)

	case protocol.FunctionListRemove:
		r := req.(protocol.ListRemoveRequest)
		return nil, listobj.RemoveRef(table, r.ListID, r.Index)

	case protocol.FunctionFileOpen:
		r := req.(protocol.FileOpenRequest)
		id, _, err := fileobj.Open(table, r.NameID, r.Flags, r.Permissions, r.UID, r.GID)
		return protocol.FileOpenResponse{FileID: id}, err

	case protocol.FunctionFileCreatePipe:
		r := req.(protocol.FileCreatePipeRequest)
		id, _, err := fileobj.CreatePipe(table, r.Flags)
		return protocol.FileCreatePipeResponse{FileID: id}, err

	case protocol.FunctionFileRead:
		r := req.(protocol.FileReadRequest)
		f, err := fileobj.Lookup(table, r.FileID)
		if err != nil {
			return nil, err
		}
		var buf [62]byte
		n, err := f.Read(buf[:r.Length])
		return protocol.FileReadResponse{Buffer: buf, Length: uint8(n)}, err

	case protocol.FunctionFileReadAsync:
		r := req.(protocol.FileReadAsyncRequest)
		f, err := fileobj.Lookup(table, r.FileID)
		if err != nil {
			return nil, err
		}
		return nil, f.ReadAsync(r.LengthToRead)

	case protocol.FunctionFileAbortAsyncRead:
		r := req.(protocol.FileAbortAsyncReadRequest)
		f, err := fileobj.Lookup(table, r.FileID)
		if err != nil {
			return nil, err
		}
		return nil, f.AbortAsyncRead()

	case protocol.FunctionFileWrite:
		r := req.(protocol.FileWriteRequest)
		f, err := fileobj.Lookup(table, r.FileID)
		if err != nil {
			return nil, err
		}
		n, err := f.Write(r.Buffer[:r.Length])
		return protocol.FileWriteResponse{LengthWritten: uint8(n)}, err

	case protocol.FunctionFileWriteUnchecked:
		r := req.(protocol.FileWriteRequest)
		f, err := fileobj.Lookup(table, r.FileID)
		if err != nil {
			return nil, err
		}
		f.WriteUnchecked(r.Buffer[:r.Length])
		return nil, nil

	case protocol.FunctionFileWriteAsync:
		r := req.(protocol.FileWriteRequest)
		f, err := fileobj.Lookup(table, r.FileID)
		if err != nil {
			return nil, err
		}
		f.WriteAsync(r.Buffer[:r.Length])
		return nil, nil

	case protocol.FunctionFileSetPosition:
		r := req.(protocol.FileSetPositionRequest)
		f, err := fileobj.Lookup(table, r.FileID)
		if err != nil {
			return nil, err
		}
		pos, err := f.SetPosition(r.Offset, r.Origin)
		return protocol.FileSetPositionResponse{Position: pos}, err

	case protocol.FunctionFileGetPosition:
		r := req.(protocol.FileGetPositionRequest)
		f, err := fileobj.Lookup(table, r.FileID)
		if err != nil {
			return nil, err
		}
		pos, err := f.GetPosition()
		return protocol.FileGetPositionResponse{Position: pos}, err

	case protocol.FunctionDirectoryOpen:
		r := req.(protocol.DirectoryOpenRequest)
		id, _, err := dirobj.Open(table, r.NameID)
		return protocol.DirectoryOpenResponse{DirectoryID: id}, err

	case protocol.FunctionDirectoryGetName:
		r := req.(protocol.DirectoryGetNameRequest)
		d, err := dirobj.Lookup(table, r.DirectoryID)
		if err != nil {
			return nil, err
		}
		return protocol.DirectoryGetNameResponse{NameID: d.Name()}, nil

	case protocol.FunctionDirectoryGetNextEntry:
		r := req.(protocol.DirectoryGetNextEntryRequest)
		d, err := dirobj.Lookup(table, r.DirectoryID)
		if err != nil {
			return nil, err
		}
		name, typ, err := d.NextEntry()
		if err != nil {
			return nil, err
		}
		nameID, _, err := strobj.Allocate(table, 0, []byte(name))
		return protocol.DirectoryGetNextEntryResponse{NameID: nameID, Type: typ}, err

	case protocol.FunctionDirectoryRewind:
		r := req.(protocol.DirectoryRewindRequest)
		d, err := dirobj.Lookup(table, r.DirectoryID)
		if err != nil {
			return nil, err
		}
		return nil, d.Rewind()

	case protocol.FunctionDirectoryCreate:
		r := req.(protocol.DirectoryCreateRequest)
		return nil, dirobj.Create(table, r.NameID, r.Recursive, os.FileMode(r.Permissions&0777), r.UID, r.GID)

	case protocol.FunctionProcessSpawn:
		r := req.(protocol.ProcessSpawnRequest)
		id, _, err := process.Spawn(table, r.CommandID, r.ArgumentsID, r.EnvironmentID, r.WorkingDirectoryID, r.UID, r.GID, r.StdinID, r.StdoutID, r.StderrID)
		return protocol.ProcessSpawnResponse{ProcessID: id}, err

	case protocol.FunctionProcessKill:
		r := req.(protocol.ProcessKillRequest)
		p, err := process.Lookup(table, r.ProcessID)
		if err != nil {
			return nil, err
		}
		return nil, p.Kill(r.Signal)

	case protocol.FunctionProcessGetState:
		r := req.(protocol.ProcessGetStateRequest)
		p, err := process.Lookup(table, r.ProcessID)
		if err != nil {
			return nil, err
		}
		state, exitCode := p.State()
		return protocol.ProcessGetStateResponse{State: state, ExitCode: exitCode}, nil

	case protocol.FunctionProgramDefine:
		r := req.(protocol.ProgramDefineRequest)
		root := filepath.Join(d.ProgramsRoot, r.Identifier)
		if err := os.MkdirAll(root, 0755); err != nil {
			return nil, apierr.FromOSError(err)
		}
		id, _, err := program.Define(table, program.Config{
			Identifier:    r.Identifier,
			RootDirectory: root,
			StartMode:     program.StartModeNever,
		})
		return protocol.ProgramDefineResponse{ProgramID: id}, err

	case protocol.FunctionProgramUndefine:
		r := req.(protocol.ProgramUndefineRequest)
		p, err := program.Lookup(table, r.ProgramID)
		if err != nil {
			return nil, err
		}
		return nil, p.Purge(table)

	case protocol.FunctionProgramGetIdentifier:
		r := req.(protocol.ProgramGetIdentifierRequest)
		p, err := program.Lookup(table, r.ProgramID)
		if err != nil {
			return nil, err
		}
		return protocol.ProgramGetIdentifierResponse{Identifier: p.Identifier()}, nil

	case protocol.FunctionProgramGetDirectory:
		r := req.(protocol.ProgramGetDirectoryRequest)
		p, err := program.Lookup(table, r.ProgramID)
		if err != nil {
			return nil, err
		}
		return protocol.ProgramGetDirectoryResponse{Directory: p.RootDirectory()}, nil

	case protocol.FunctionProgramGetCommand:
		r := req.(protocol.ProgramGetCommandRequest)
		p, err := program.Lookup(table, r.ProgramID)
		if err != nil {
			return nil, err
		}
		cmd, args, env, wd := p.Command()
		return protocol.ProgramGetCommandResponse{CommandID: cmd, ArgumentsID: args, EnvironmentID: env, WorkingDirectory: wd}, nil

	case protocol.FunctionProgramGetStdioRedirection:
		r := req.(protocol.ProgramGetStdioRedirectionRequest)
		p, err := program.Lookup(table, r.ProgramID)
		if err != nil {
			return nil, err
		}
		stdin, stdout, stderr, stdinFile, stdoutFile, stderrFile := p.StdioRedirection()
		return protocol.ProgramGetStdioRedirectionResponse{
			StdinRedirection: stdin, StdinFileName: stdinFile,
			StdoutRedirection: stdout, StdoutFileName: stdoutFile,
			StderrRedirection: stderr, StderrFileName: stderrFile,
		}, nil

	case protocol.FunctionProcessGetCommand:
		r := req.(protocol.ProcessGetCommandRequest)
		p, err := process.Lookup(table, r.ProcessID)
		if err != nil {
			return nil, err
		}
		return protocol.ProcessGetCommandResponse{
			CommandID: p.Command(), ArgumentsID: p.Arguments(),
			EnvironmentID: p.Environment(), WorkingDirectoryID: p.WorkingDirectory(),
		}, nil

	case protocol.FunctionProcessGetIdentity:
		r := req.(protocol.ProcessGetIdentityRequest)
		p, err := process.Lookup(table, r.ProcessID)
		if err != nil {
			return nil, err
		}
		return protocol.ProcessGetIdentityResponse{PID: uint32(p.PID()), UID: p.UserID(), GID: p.GroupID()}, nil

	case protocol.FunctionProcessGetStdio:
		r := req.(protocol.ProcessGetStdioRequest)
		p, err := process.Lookup(table, r.ProcessID)
		if err != nil {
			return nil, err
		}
		return protocol.ProcessGetStdioResponse{StdinID: p.Stdin(), StdoutID: p.Stdout(), StderrID: p.Stderr()}, nil

	case protocol.FunctionProgramSetCommand:
		r := req.(protocol.ProgramSetCommandRequest)
		p, err := program.Lookup(table, r.ProgramID)
		if err != nil {
			return nil, err
		}
		return nil, p.SetCommand(table, r.CommandID, r.ArgumentsID, r.EnvironmentID, r.WorkingDirectory)

	case protocol.FunctionProgramSetStdioRedirection:
		r := req.(protocol.ProgramSetStdioRedirectionRequest)
		p, err := program.Lookup(table, r.ProgramID)
		if err != nil {
			return nil, err
		}
		return nil, p.SetStdioRedirection(r.StdinRedirection, r.StdoutRedirection, r.StderrRedirection, r.StdinFileName, r.StdoutFileName, r.StderrFileName)

	case protocol.FunctionProgramSetSchedule:
		r := req.(protocol.ProgramSetScheduleRequest)
		p, err := program.Lookup(table, r.ProgramID)
		if err != nil {
			return nil, err
		}
		return nil, p.SetSchedule(r.StartMode, r.ContinueAfterError, r.StartInterval, r.StartFields)

	case protocol.FunctionProgramGetSchedule:
		r := req.(protocol.ProgramGetScheduleRequest)
		p, err := program.Lookup(table, r.ProgramID)
		if err != nil {
			return nil, err
		}
		mode, cont, interval, fields := p.Schedule()
		return protocol.ProgramGetScheduleResponse{StartMode: mode, ContinueAfterError: cont, StartInterval: interval, StartFields: fields}, nil

	default:
		return nil, apierr.New(apierr.FunctionNotSupported)
	}
}
