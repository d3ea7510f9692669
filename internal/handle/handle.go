// Package handle owns the table of open file and directory handles
// this daemon hands back to the kernel as opaque fh values.
//
// The original daemon gets this for free by casting a malloc'd
// struct's pointer straight to a __u64 (ptr_to_id/id_to_ptr) and back.
// Go has no equivalent trick that survives garbage collection, so this
// package keeps the same open/lookup/close shape as struct
// handle/struct dirhandle but backs it with an explicit map, following
// the teacher's (godcong-fuse-bazil) saveHandle/getHandle/dropHandle
// free-list pattern in fs/serve.go instead.
package handle

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"sync"

	"golang.org/x/sys/unix"
)

// File is an open backing file descriptor, returned to the kernel as
// an OPEN reply's fh.
type File struct {
	FD int
}

// Entry is one directory entry read from the backing filesystem: a
// name and the raw d_type byte getdents64(2) reports (DT_DIR, DT_REG,
// DT_UNKNOWN, ...).
type Entry struct {
	Name string
	Type uint8
}

// Dir is an open backing directory stream, returned to the kernel as
// an OPENDIR reply's fh. Entries is read in one batch and then handed
// out one at a time, mirroring the original's one-entry-per-READDIR-
// call behavior (spec §4.D "Directory reads").
type Dir struct {
	entries []Entry
	pos     int
	path    string
}

// Table maps fh tokens to open files and directories. free holds fh
// values released since the last allocation so they're reused before
// the counter grows, the same way the teacher's handle table avoids
// unbounded growth under churn.
type Table struct {
	mu sync.Mutex

	files map[uint64]*File
	dirs  map[uint64]*Dir

	next uint64
	free []uint64
}

// New returns an empty handle table. fh 0 is never allocated so it can
// double as a "no handle" sentinel in callers that need one.
func New() *Table {
	return &Table{
		files: make(map[uint64]*File),
		dirs:  make(map[uint64]*Dir),
		next:  1,
	}
}

func (t *Table) alloc() uint64 {
	if n := len(t.free); n > 0 {
		fh := t.free[n-1]
		t.free = t.free[:n-1]
		return fh
	}
	fh := t.next
	t.next++
	return fh
}

// OpenFile allocates an fh for an already-open file descriptor.
func (t *Table) OpenFile(fd int) uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	fh := t.alloc()
	t.files[fh] = &File{FD: fd}
	return fh
}

// OpenDir validates path is an openable directory right away, the
// same way the original's OPENDIR case calls opendir(3) immediately
// and replies -errno on failure, rather than deferring the failure to
// the first READDIR. Entries themselves are still read lazily: the
// first READDIR on the fh reads them all with ReadAll and installs
// them with SetEntries (internal/dispatch), since the
// original's dirhandle doesn't actually buffer anything at OPENDIR
// time either — it just keeps the DIR* open.
func (t *Table) OpenDir(path string) (uint64, error) {
	fd, err := unix.Open(path, unix.O_RDONLY|unix.O_DIRECTORY, 0)
	if err != nil {
		return 0, err
	}
	unix.Close(fd)

	t.mu.Lock()
	defer t.mu.Unlock()
	fh := t.alloc()
	t.dirs[fh] = &Dir{path: path}
	return fh, nil
}

// File returns the open file for fh, or an error if fh is unknown —
// the caller should map that to EBADF, mirroring a stale or forged fh
// the kernel should never actually send.
func (t *Table) File(fh uint64) (*File, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	f, ok := t.files[fh]
	if !ok {
		return nil, fmt.Errorf("handle: unknown file fh %d", fh)
	}
	return f, nil
}

// Dir returns the open directory for fh, or an error if fh is unknown.
func (t *Table) Dir(fh uint64) (*Dir, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	d, ok := t.dirs[fh]
	if !ok {
		return nil, fmt.Errorf("handle: unknown dir fh %d", fh)
	}
	return d, nil
}

// CloseFile removes fh from the table and returns its descriptor for
// the caller to close(2); fh is recycled for the next OpenFile/OpenDir.
func (t *Table) CloseFile(fh uint64) (int, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	f, ok := t.files[fh]
	if !ok {
		return 0, false
	}
	delete(t.files, fh)
	t.free = append(t.free, fh)
	return f.FD, true
}

// CloseDir removes fh from the table.
func (t *Table) CloseDir(fh uint64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.dirs[fh]; !ok {
		return false
	}
	delete(t.dirs, fh)
	t.free = append(t.free, fh)
	return true
}

// Path returns the backing directory path a Dir was opened from, for
// rereading it.
func (d *Dir) Path() string { return d.path }

// direntHeaderLen is sizeof(struct linux_dirent64) up to the variable
// length name: d_ino(8) + d_off(8) + d_reclen(2) + d_type(1).
const direntHeaderLen = 19

// ReadAll opens path as a directory and drains it with getdents64(2)
// in one pass, returning every entry including "." and "..": the
// original's FUSE_READDIR case passes dirents straight through
// unfiltered and only recursive_fix_files skips the dot entries, so
// this function does the same and leaves filtering to that caller.
func ReadAll(path string) ([]Entry, error) {
	fd, err := unix.Open(path, unix.O_RDONLY|unix.O_DIRECTORY, 0)
	if err != nil {
		return nil, err
	}
	defer unix.Close(fd)

	var entries []Entry
	buf := make([]byte, 32*1024)
	for {
		n, err := unix.Getdents(fd, buf)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			return nil, err
		}
		if n == 0 {
			break
		}
		off := 0
		for off < n {
			reclen := int(binary.LittleEndian.Uint16(buf[off+16 : off+18]))
			if reclen == 0 {
				break
			}
			dtype := buf[off+18]
			nameBytes := buf[off+direntHeaderLen : off+reclen]
			if i := bytes.IndexByte(nameBytes, 0); i >= 0 {
				nameBytes = nameBytes[:i]
			}
			entries = append(entries, Entry{Name: string(nameBytes), Type: dtype})
			off += reclen
		}
	}
	return entries, nil
}

// SetEntries installs the directory's entries once they've been read,
// and resets the read position to the start.
func (d *Dir) SetEntries(entries []Entry) {
	d.entries = entries
	d.pos = 0
}

// Loaded reports whether SetEntries has been called yet.
func (d *Dir) Loaded() bool { return d.entries != nil }

// Next returns the next unread directory entry and advances the
// position, or ok=false once every entry has been returned —
// mirroring readdir(3) returning NULL, which the original daemon
// turns into a bare success reply with no entry (spec §4.D).
func (d *Dir) Next() (Entry, bool) {
	if d.pos >= len(d.entries) {
		return Entry{}, false
	}
	e := d.entries[d.pos]
	d.pos++
	return e, true
}
