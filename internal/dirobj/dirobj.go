// Package dirobj implements the Directory object (spec.md §3/§4.4, C5): an
// opaque readdir cursor plus the name string, with rewind support and a
// create_directory entrypoint that can build missing ancestors.
package dirobj

import (
	"os"
	"sync"

	"github.com/Tinkerforge/red-brick-apid/internal/apierr"
	"github.com/Tinkerforge/red-brick-apid/internal/objects"
	"github.com/Tinkerforge/red-brick-apid/internal/strobj"
)

// EntryType mirrors the FileType enum used to describe directory entries.
type EntryType uint8

const (
	EntryUnknown EntryType = iota
	EntryRegular
	EntryDirectory
	EntryCharacter
	EntryBlock
	EntryFIFO
	EntrySymlink
	EntrySocket
)

// Directory is the concrete object value stored behind objects.TypeDirectory.
type Directory struct {
	mu      sync.Mutex
	path    string
	nameID  objects.ID
	handle  *os.File
	entries []os.DirEntry
	pos     int
}

// Open opens a readdir stream for the directory named by nameID.
func Open(table *objects.Table, nameID objects.ID) (objects.ID, *Directory, error) {
	name, err := strobj.Lookup(table, nameID)
	if err != nil {
		return 0, nil, err
	}

	path := string(name.Bytes())

	f, err := os.Open(path)
	if err != nil {
		return 0, nil, apierr.FromOSError(err)
	}

	entries, err := f.ReadDir(-1)
	if err != nil {
		f.Close()
		return 0, nil, apierr.FromOSError(err)
	}

	d := &Directory{path: path, nameID: nameID, handle: f, entries: entries}

	id, err := table.Insert(objects.TypeDirectory, d, func() { d.destroy(table) })
	if err != nil {
		f.Close()
		return 0, nil, err
	}

	table.AddInternalRef(mustLookupAny(table, nameID))

	return id, d, nil
}

func mustLookupAny(table *objects.Table, id objects.ID) *objects.Object {
	obj, _ := table.LookupAny(id)
	return obj
}

func (d *Directory) destroy(table *objects.Table) {
	d.mu.Lock()
	d.handle.Close()
	d.mu.Unlock()

	if obj, err := table.LookupAny(d.nameID); err == nil {
		table.RemoveInternalRef(obj)
	}
}

// Name returns the directory's backing string object id.
func (d *Directory) Name() objects.ID {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.nameID
}

// Lookup resolves id to its *Directory.
func Lookup(table *objects.Table, id objects.ID) (*Directory, error) {
	obj, err := table.Lookup(id, objects.TypeDirectory)
	if err != nil {
		return nil, err
	}

	return obj.Value.(*Directory), nil
}

// NextEntry returns the next entry's name and type, or NoMoreData at
// exhaustion, per spec.md §4.4.
func (d *Directory) NextEntry() (string, EntryType, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.pos >= len(d.entries) {
		return "", EntryUnknown, apierr.New(apierr.NoMoreData)
	}

	entry := d.entries[d.pos]
	d.pos++

	return entry.Name(), entryTypeOf(entry), nil
}

func entryTypeOf(entry os.DirEntry) EntryType {
	info, err := entry.Info()
	if err != nil {
		return EntryUnknown
	}

	mode := info.Mode()
	switch {
	case mode.IsRegular():
		return EntryRegular
	case mode.IsDir():
		return EntryDirectory
	case mode&os.ModeSymlink != 0:
		return EntrySymlink
	case mode&os.ModeNamedPipe != 0:
		return EntryFIFO
	case mode&os.ModeSocket != 0:
		return EntrySocket
	case mode&os.ModeCharDevice != 0:
		return EntryCharacter
	case mode&os.ModeDevice != 0:
		return EntryBlock
	default:
		return EntryUnknown
	}
}

// Rewind restarts enumeration from the top.
func (d *Directory) Rewind() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, err := d.handle.Seek(0, 0); err != nil {
		return apierr.FromOSError(err)
	}

	entries, err := d.handle.ReadDir(-1)
	if err != nil {
		return apierr.FromOSError(err)
	}

	d.entries = entries
	d.pos = 0

	return nil
}

// Create creates the directory named by nameID, building missing ancestors
// when recursive is set, per spec.md §4.4. EEXIST on the terminal
// component is only tolerated if that entry is already a directory.
func Create(table *objects.Table, nameID objects.ID, recursive bool, perms os.FileMode, uid, gid uint32) error {
	name, err := strobj.Lookup(table, nameID)
	if err != nil {
		return err
	}

	path := string(name.Bytes())

	var mkErr error
	if recursive {
		mkErr = os.MkdirAll(path, perms)
	} else {
		mkErr = os.Mkdir(path, perms)
	}

	if mkErr != nil {
		if os.IsExist(mkErr) {
			info, statErr := os.Stat(path)
			if statErr == nil && info.IsDir() {
				return nil
			}
		}

		return apierr.FromOSError(mkErr)
	}

	if uid != 0 || gid != 0 {
		_ = os.Chown(path, int(uid), int(gid))
	}

	return nil
}
