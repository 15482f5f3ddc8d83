// Package fileobj implements the File/Pipe object (spec.md §3/§4.3, C3)
// and its lazily-created async read engine (spec.md §4.3/§4.4, C4).
// Grounded on _examples/original_source/src/redapid/file.h and the
// credential/os.exec patterns in
// _examples/canonical-lxd/lxd-agent/exec.go.
package fileobj

import (
	"errors"
	"io"
	"os"
	"sync"

	"golang.org/x/sys/unix"

	"github.com/Tinkerforge/red-brick-apid/internal/apierr"
	"github.com/Tinkerforge/red-brick-apid/internal/objects"
	"github.com/Tinkerforge/red-brick-apid/internal/strobj"
)

const (
	ReadBufferSize      = 62
	ReadAsyncBufferSize = 60
	WriteBufferSize     = 61
)

// File is the concrete object value stored behind objects.TypeFile.
type File struct {
	mu sync.Mutex

	kind  Kind
	name  objects.ID // string object id; 0 for unnamed pipes
	flags uint32     // Flag bits for regular files, PipeFlag bits for pipes

	handle *os.File // read/write end for a regular file, or this end of a pipe
	other  *os.File // the other end of a pipe, held open only for create_pipe's caller

	async      *asyncReadContext // lazily created, regular files only
	lockedHook func(locked bool) // set via SetLockedCallback; nil unless a caller sets one
}

// SetLockedCallback sets the function the async engine calls with true
// when an async read starts and false when it finishes, e.g. the owning
// objects.Object's SetLocked. This only records the state: table lookups
// do not check the lock flag, so no operation fails with OBJECT_IS_LOCKED.
func (f *File) SetLockedCallback(hook func(locked bool)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lockedHook = hook
}

// Lookup resolves id to its *File, type-checking against objects.TypeFile.
func Lookup(table *objects.Table, id objects.ID) (*File, error) {
	obj, err := table.Lookup(id, objects.TypeFile)
	if err != nil {
		return nil, err
	}

	return obj.Value.(*File), nil
}

// Open opens a regular OS file per spec.md §4.3: the flag mask is
// validated, translated to the Go/POSIX open(2) flags, and the daemon
// attempts an fchown after a successful open unless uid and gid are both
// 0. The fchown is best-effort: its error is discarded, neither returned
// nor logged, and never aborts the open.
func Open(table *objects.Table, nameID objects.ID, flags Flag, permissions uint16, uid, gid uint32) (objects.ID, *File, error) {
	if !flags.validate() {
		return 0, nil, apierr.New(apierr.InvalidParameter)
	}

	path, err := resolveName(table, nameID)
	if err != nil {
		return 0, nil, err
	}

	osFlags, err := toOSFlags(flags)
	if err != nil {
		return 0, nil, err
	}

	mode := os.FileMode(permissions & 0777)

	if flags.has(FlagTemporary) {
		return openTemporary(table, nameID, path, flags, mode, uid, gid)
	}

	if flags.has(FlagReplace) {
		return openReplace(table, nameID, path, flags, osFlags, mode, uid, gid)
	}

	f, err := os.OpenFile(path, osFlags, mode)
	if err != nil {
		return 0, nil, apierr.FromOSError(err)
	}

	chownIfRoot(f, uid, gid)

	return insertRegular(table, nameID, flags, f)
}

// openTemporary implements FILE_FLAG_TEMPORARY: create|exclusive a file
// under the given path template and unlink it immediately so it vanishes
// once the handle is closed, the common "temp file" idiom.
func openTemporary(table *objects.Table, nameID objects.ID, path string, flags Flag, mode os.FileMode, uid, gid uint32) (objects.ID, *File, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_EXCL, mode)
	if err != nil {
		return 0, nil, apierr.FromOSError(err)
	}

	chownIfRoot(f, uid, gid)

	_ = os.Remove(path)

	return insertRegular(table, nameID, flags, f)
}

// openReplace implements the §9 open question's resolution for
// FILE_FLAG_REPLACE: create|truncate into a temp file alongside path, then
// rename it into place atomically once fully opened.
func openReplace(table *objects.Table, nameID objects.ID, path string, flags Flag, osFlags int, mode os.FileMode, uid, gid uint32) (objects.ID, *File, error) {
	tmp := path + ".redbrickapid-tmp"

	f, err := os.OpenFile(tmp, os.O_RDWR|os.O_CREATE|os.O_TRUNC|os.O_EXCL, mode)
	if err != nil {
		return 0, nil, apierr.FromOSError(err)
	}

	chownIfRoot(f, uid, gid)

	if err := os.Rename(tmp, path); err != nil {
		f.Close()
		return 0, nil, apierr.FromOSError(err)
	}

	return insertRegular(table, nameID, flags, f)
}

func chownIfRoot(f *os.File, uid, gid uint32) {
	if uid == 0 && gid == 0 {
		return
	}

	_ = f.Chown(int(uid), int(gid))
}

func insertRegular(table *objects.Table, nameID objects.ID, flags Flag, f *os.File) (objects.ID, *File, error) {
	file := &File{kind: KindRegular, name: nameID, flags: uint32(flags), handle: f}

	id, err := table.Insert(objects.TypeFile, file, func() { file.destroy(table) })
	if err != nil {
		f.Close()
		return 0, nil, err
	}

	if nameID != 0 {
		if obj, err := table.LookupAny(nameID); err == nil {
			table.AddInternalRef(obj)
		}
	}

	return id, file, nil
}

func resolveName(table *objects.Table, nameID objects.ID) (string, error) {
	s, err := strobj.Lookup(table, nameID)
	if err != nil {
		return "", err
	}

	return string(s.Bytes()), nil
}

func toOSFlags(flags Flag) (int, error) {
	var osFlags int

	switch flags & accessMask {
	case FlagReadOnly:
		osFlags = os.O_RDONLY
	case FlagWriteOnly:
		osFlags = os.O_WRONLY
	case FlagReadWrite:
		osFlags = os.O_RDWR
	}

	if flags.has(FlagAppend) {
		osFlags |= os.O_APPEND
	}

	if flags.has(FlagCreate) {
		osFlags |= os.O_CREATE
	}

	if flags.has(FlagExclusive) {
		osFlags |= os.O_EXCL
	}

	if flags.has(FlagNonBlocking) {
		osFlags |= unix.O_NONBLOCK
	}

	if flags.has(FlagTruncate) {
		osFlags |= os.O_TRUNC
	}

	return osFlags, nil
}

// CreatePipe creates an unnamed bidirectional pipe and returns a File
// wrapping one end; the non-blocking-read/write bits of flags are applied
// to each end independently, per spec.md §4.3.
func CreatePipe(table *objects.Table, flags PipeFlag) (objects.ID, *File, error) {
	var fds [2]int

	if err := unix.Pipe2(fds[:], 0); err != nil {
		return 0, nil, apierr.FromOSError(err)
	}

	readEnd := os.NewFile(uintptr(fds[0]), "pipe-r")
	writeEnd := os.NewFile(uintptr(fds[1]), "pipe-w")

	if flags&PipeFlagNonBlockingRead != 0 {
		_ = unix.SetNonblock(fds[0], true)
	}

	if flags&PipeFlagNonBlockingWrite != 0 {
		_ = unix.SetNonblock(fds[1], true)
	}

	file := &File{kind: KindPipe, flags: uint32(flags), handle: readEnd, other: writeEnd}

	id, err := table.Insert(objects.TypeFile, file, func() { file.destroy(table) })
	if err != nil {
		readEnd.Close()
		writeEnd.Close()
		return 0, nil, err
	}

	return id, file, nil
}

// WriteEnd exposes the write side of a pipe object (or the single handle
// of a regular file).
func (f *File) WriteEnd() *os.File {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.kind == KindPipe {
		return f.other
	}

	return f.handle
}

// OSFile exposes the underlying *os.File for dup'ing into a child's stdio,
// per spec.md §4.5's "dup2 each stdio fd to its well-known number".
func (f *File) OSFile() *os.File {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.handle
}

// Kind reports whether this is a regular file or a pipe.
func (f *File) Kind() Kind {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.kind
}

// Name returns the backing string object id, or 0 for an unnamed pipe.
func (f *File) Name() objects.ID {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.name
}

// Flags returns the raw flag bits (Flag for regular files, PipeFlag for
// pipes).
func (f *File) Flags() uint32 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.flags
}

func (f *File) destroy(table *objects.Table) {
	f.mu.Lock()
	async := f.async
	f.mu.Unlock()

	if async != nil {
		async.shutdown()
	}

	f.mu.Lock()
	if f.handle != nil {
		f.handle.Close()
	}

	if f.other != nil {
		f.other.Close()
	}
	f.mu.Unlock()

	if f.name != 0 {
		if obj, err := table.LookupAny(f.name); err == nil {
			table.RemoveInternalRef(obj)
		}
	}
}

// Read performs a synchronous read of up to len(buf) bytes (<=
// ReadBufferSize per the wire contract). A return of (0, nil) is EOF, per
// spec.md's boundary case.
func (f *File) Read(buf []byte) (int, error) {
	f.mu.Lock()
	handle := f.handle
	f.mu.Unlock()

	n, err := handle.Read(buf)
	if err != nil {
		if errors.Is(err, io.EOF) {
			return n, nil
		}

		return n, apierr.FromOSError(err)
	}

	return n, nil
}

// Write performs a synchronous write, returning the (possibly short, on a
// non-blocking file) number of bytes written.
func (f *File) Write(buf []byte) (int, error) {
	f.mu.Lock()
	handle := f.writeHandle()
	f.mu.Unlock()

	n, err := handle.Write(buf)
	if err != nil {
		return n, apierr.FromOSError(err)
	}

	return n, nil
}

func (f *File) writeHandle() *os.File {
	if f.kind == KindPipe {
		return f.other
	}

	return f.handle
}

// SetPosition mirrors POSIX lseek; pipes return InvalidSeek.
func (f *File) SetPosition(offset int64, origin Origin) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.kind == KindPipe {
		return 0, apierr.New(apierr.InvalidSeek)
	}

	var whence int
	switch origin {
	case OriginBeginning:
		whence = io.SeekStart
	case OriginCurrent:
		whence = io.SeekCurrent
	case OriginEnd:
		whence = io.SeekEnd
	default:
		return 0, apierr.New(apierr.InvalidParameter)
	}

	pos, err := f.handle.Seek(offset, whence)
	if err != nil {
		return 0, apierr.FromOSError(err)
	}

	return uint64(pos), nil
}

// GetPosition returns the current seek offset.
func (f *File) GetPosition() (uint64, error) {
	return f.SetPosition(0, OriginCurrent)
}
