package dispatch

import (
	"bytes"

	"golang.org/x/sys/unix"

	"github.com/DevSwift/android-system-core/internal/attr"
	"github.com/DevSwift/android-system-core/internal/handle"
	"github.com/DevSwift/android-system-core/internal/tree"
	"github.com/DevSwift/android-system-core/internal/wire"
)

// cstring reads a NUL-terminated name out of a request payload at
// offset, returning the name and the offset of the byte past its NUL.
func cstring(b []byte, offset int) (string, int) {
	rest := b[offset:]
	i := bytes.IndexByte(rest, 0)
	if i < 0 {
		return string(rest), len(b)
	}
	return string(rest[:i]), offset + i + 1
}

func (s *Server) doInit(hdr wire.InHeader, payload []byte) {
	var in wire.InitIn
	if err := in.Unmarshal(payload); err != nil {
		s.status(hdr.Unique, -int32(unix.EINVAL))
		return
	}
	out := wire.InitOut{
		Major:               wire.KernelVersion,
		Minor:               wire.KernelMinorVersion,
		MaxReadahead:        in.MaxReadahead,
		Flags:               wire.InitAtomicOTrunc,
		MaxBackground:       32,
		CongestionThreshold: 32,
		MaxWrite:            256 * 1024,
	}
	s.reply(hdr.Unique, out.Marshal())
}

// lookupEntry is shared by LOOKUP, MKNOD and MKDIR: it stats parent's
// child name on the backing filesystem, gets-or-creates the cache
// node for it, writes an EntryOut, and bumps the node's refcount only
// once that write has actually reached the kernel — a reply the
// kernel never saw must not hold a reference it will never FORGET
// (spec §4.C, §4.F).
func (s *Server) lookupEntry(unique uint64, parent *tree.Node, name string) {
	path, err := tree.Path(parent, name)
	if err != nil {
		s.status(unique, -int32(unix.ENAMETOOLONG))
		return
	}
	var st unix.Stat_t
	if err := unix.Lstat(path, &st); err != nil {
		s.status(unique, -int32(unix.ENOENT))
		return
	}

	node := s.cache.GetOrCreate(parent, name)
	a := attr.FromStat(&st, node.NID())

	out := wire.EntryOut{
		NodeID:     node.NID(),
		Generation: node.Gen(),
		EntryValid: entryValidSeconds,
		AttrValid:  attrValidSeconds,
		Attr:       a,
	}
	if s.reply(unique, out.Marshal()) {
		s.cache.AddRef(node)
	}
}

func (s *Server) doLookup(hdr wire.InHeader, parent *tree.Node, payload []byte) {
	name, _ := cstring(payload, 0)
	s.lookupEntry(hdr.Unique, parent, name)
}

// doForget applies nlookup releases with no reply, exactly as FORGET
// requires (spec §4.C "no reply is ever sent"). A FORGET for a node id
// that no longer resolves is a silent no-op: the node was already
// destroyed by an earlier release driving its refcount to zero. It
// resolves its own nid rather than relying on Dispatch's generic
// resolve, since an unresolvable nid must stay silent, not ENOENT.
func (s *Server) doForget(hdr wire.InHeader, payload []byte) {
	var in wire.ForgetIn
	if err := in.Unmarshal(payload); err != nil {
		return
	}
	node, ok := s.cache.Resolve(hdr.NodeID)
	if !ok {
		return
	}
	if excess := s.cache.ReleaseN(node, in.Nlookup); excess > 0 {
		s.log.WithFields(logFields(hdr)).WithField("excess", excess).
			Warn("forget count exceeded node refcount")
	}
}

func (s *Server) doGetattr(hdr wire.InHeader, node *tree.Node) {
	path, err := tree.Path(node, "")
	if err != nil {
		s.status(hdr.Unique, -int32(unix.ENAMETOOLONG))
		return
	}
	a, err := lstatAttr(path, node.NID())
	if err != nil {
		s.status(hdr.Unique, errno(err))
		return
	}
	out := wire.AttrOut{AttrValid: attrValidSeconds, Attr: a}
	s.reply(hdr.Unique, out.Marshal())
}

// doSetattr only ever applies a truncate, matching the original's
// comment that chmod/chown must never be honored under the
// fixed-ownership policy (spec §4.C "Setattr").
func (s *Server) doSetattr(hdr wire.InHeader, node *tree.Node, payload []byte) {
	var in wire.SetattrIn
	if err := in.Unmarshal(payload); err != nil {
		s.status(hdr.Unique, -int32(unix.EINVAL))
		return
	}
	path, err := tree.Path(node, "")
	if err != nil {
		s.status(hdr.Unique, -int32(unix.ENAMETOOLONG))
		return
	}
	if in.Valid&wire.FattrSize != 0 {
		if err := unix.Truncate(path, int64(in.Size)); err != nil {
			s.status(hdr.Unique, errno(err))
			return
		}
	}
	a, err := lstatAttr(path, node.NID())
	if err != nil {
		s.status(hdr.Unique, errno(err))
		return
	}
	out := wire.AttrOut{AttrValid: attrValidSeconds, Attr: a}
	s.reply(hdr.Unique, out.Marshal())
}

func (s *Server) doMknod(hdr wire.InHeader, parent *tree.Node, payload []byte) {
	var in wire.MknodIn
	if err := in.Unmarshal(payload); err != nil {
		s.status(hdr.Unique, -int32(unix.EINVAL))
		return
	}
	name, _ := cstring(payload, wire.MknodInLen)
	path, err := tree.Path(parent, name)
	if err != nil {
		s.status(hdr.Unique, -int32(unix.ENAMETOOLONG))
		return
	}

	mode := (in.Mode &^ 0777) | 0664
	if err := unix.Mknod(path, mode, int(in.Rdev)); err != nil {
		s.status(hdr.Unique, errno(err))
		return
	}
	s.lookupEntry(hdr.Unique, parent, name)
}

func (s *Server) doMkdir(hdr wire.InHeader, parent *tree.Node, payload []byte) {
	var in wire.MkdirIn
	if err := in.Unmarshal(payload); err != nil {
		s.status(hdr.Unique, -int32(unix.EINVAL))
		return
	}
	name, _ := cstring(payload, wire.MkdirInLen)
	path, err := tree.Path(parent, name)
	if err != nil {
		s.status(hdr.Unique, -int32(unix.ENAMETOOLONG))
		return
	}

	mode := (in.Mode &^ 0777) | 0775
	if err := unix.Mkdir(path, mode); err != nil {
		s.status(hdr.Unique, errno(err))
		return
	}
	s.lookupEntry(hdr.Unique, parent, name)
}

func (s *Server) doUnlink(hdr wire.InHeader, parent *tree.Node, payload []byte) {
	name, _ := cstring(payload, 0)
	path, err := tree.Path(parent, name)
	if err != nil {
		s.status(hdr.Unique, -int32(unix.ENAMETOOLONG))
		return
	}
	s.status(hdr.Unique, errno(unix.Unlink(path)))
}

func (s *Server) doRmdir(hdr wire.InHeader, parent *tree.Node, payload []byte) {
	name, _ := cstring(payload, 0)
	path, err := tree.Path(parent, name)
	if err != nil {
		s.status(hdr.Unique, -int32(unix.ENAMETOOLONG))
		return
	}
	s.status(hdr.Unique, errno(unix.Rmdir(path)))
}

// doRename mutates the cache before issuing the backing rename(2),
// preserving the original's ordering bug-compatibly: if the backing
// call fails, the cache and the backing tree disagree until the next
// lookup resolves it against reality (spec §9 "Rename-then-syscall
// ordering").
func (s *Server) doRename(hdr wire.InHeader, parent *tree.Node, payload []byte) {
	var in wire.RenameIn
	if err := in.Unmarshal(payload); err != nil {
		s.status(hdr.Unique, -int32(unix.EINVAL))
		return
	}
	oldname, off := cstring(payload, wire.RenameInLen)
	newname, _ := cstring(payload, off)

	target := tree.LookupChild(parent, oldname)
	if target == nil {
		s.status(hdr.Unique, -int32(unix.ENOENT))
		return
	}
	oldpath, err := tree.Path(parent, oldname)
	if err != nil {
		s.status(hdr.Unique, -int32(unix.ENAMETOOLONG))
		return
	}

	newparent, ok := s.cache.Resolve(in.NewDir)
	if !ok {
		s.status(hdr.Unique, -int32(unix.ENOENT))
		return
	}
	newpath, err := tree.Path(newparent, newname)
	if err != nil {
		s.status(hdr.Unique, -int32(unix.ENAMETOOLONG))
		return
	}

	s.cache.Rename(target, newparent, newname)
	s.status(hdr.Unique, errno(unix.Rename(oldpath, newpath)))
}

func (s *Server) doOpen(hdr wire.InHeader, node *tree.Node, payload []byte) {
	var in wire.OpenIn
	if err := in.Unmarshal(payload); err != nil {
		s.status(hdr.Unique, -int32(unix.EINVAL))
		return
	}
	path, err := tree.Path(node, "")
	if err != nil {
		s.status(hdr.Unique, -int32(unix.ENAMETOOLONG))
		return
	}
	fd, err := unix.Open(path, int(in.Flags), 0)
	if err != nil {
		s.status(hdr.Unique, errno(err))
		return
	}
	fh := s.handles.OpenFile(fd)
	out := wire.OpenOut{FH: fh}
	s.reply(hdr.Unique, out.Marshal())
}

func (s *Server) doRead(hdr wire.InHeader, payload []byte) {
	var in wire.ReadIn
	if err := in.Unmarshal(payload); err != nil {
		s.status(hdr.Unique, -int32(unix.EINVAL))
		return
	}
	if in.Size > maxReadSize {
		s.status(hdr.Unique, -int32(unix.EINVAL))
		return
	}
	f, err := s.handles.File(in.FH)
	if err != nil {
		s.status(hdr.Unique, -int32(unix.EBADF))
		return
	}
	buf := make([]byte, in.Size)
	n, err := unix.Pread(f.FD, buf, int64(in.Offset))
	if err != nil {
		s.status(hdr.Unique, errno(err))
		return
	}
	s.reply(hdr.Unique, buf[:n])
}

// doWrite writes exactly once and returns, unlike the original C
// switch case which falls through its own success reply straight into
// the default "unimplemented" handler and writes a second, garbage
// reply for the same unique (spec §9 "Write double-reply" — explicitly
// not reproduced here).
func (s *Server) doWrite(hdr wire.InHeader, payload []byte) {
	var in wire.WriteIn
	if err := in.Unmarshal(payload); err != nil {
		s.status(hdr.Unique, -int32(unix.EINVAL))
		return
	}
	f, err := s.handles.File(in.FH)
	if err != nil {
		s.status(hdr.Unique, -int32(unix.EBADF))
		return
	}
	data := payload[wire.WriteInLen:]
	if uint32(len(data)) > in.Size {
		data = data[:in.Size]
	}
	n, err := unix.Pwrite(f.FD, data, int64(in.Offset))
	if err != nil {
		s.status(hdr.Unique, errno(err))
		return
	}
	out := wire.WriteOut{Size: uint32(n)}
	s.reply(hdr.Unique, out.Marshal())
}

func (s *Server) doStatfs(hdr wire.InHeader) {
	var st unix.Statfs_t
	if err := unix.Statfs(s.rootPath, &st); err != nil {
		s.status(hdr.Unique, errno(err))
		return
	}
	out := wire.StatfsOut{
		Blocks:  st.Blocks,
		Bfree:   st.Bfree,
		Bavail:  st.Bavail,
		Files:   st.Files,
		Ffree:   st.Ffree,
		Bsize:   uint32(st.Bsize),
		Namelen: uint32(st.Namelen),
		Frsize:  uint32(st.Frsize),
	}
	s.reply(hdr.Unique, out.Marshal())
}

func (s *Server) doRelease(hdr wire.InHeader, payload []byte) {
	var in wire.ReleaseIn
	if err := in.Unmarshal(payload); err != nil {
		s.status(hdr.Unique, -int32(unix.EINVAL))
		return
	}
	if fd, ok := s.handles.CloseFile(in.FH); ok {
		unix.Close(fd)
	}
	s.status(hdr.Unique, 0)
}

func (s *Server) doOpendir(hdr wire.InHeader, node *tree.Node, payload []byte) {
	var in wire.OpenIn
	if err := in.Unmarshal(payload); err != nil {
		s.status(hdr.Unique, -int32(unix.EINVAL))
		return
	}
	path, err := tree.Path(node, "")
	if err != nil {
		s.status(hdr.Unique, -int32(unix.ENAMETOOLONG))
		return
	}
	fh, err := s.handles.OpenDir(path)
	if err != nil {
		s.status(hdr.Unique, errno(err))
		return
	}
	out := wire.OpenOut{FH: fh}
	s.reply(hdr.Unique, out.Marshal())
}

// doReaddir returns at most one entry per call, exactly as the
// original's READDIR case does (it reads a single struct dirent per
// request rather than filling the kernel's whole supplied buffer).
func (s *Server) doReaddir(hdr wire.InHeader, payload []byte) {
	var in wire.ReadIn
	if err := in.Unmarshal(payload); err != nil {
		s.status(hdr.Unique, -int32(unix.EINVAL))
		return
	}
	d, err := s.handles.Dir(in.FH)
	if err != nil {
		s.status(hdr.Unique, -int32(unix.EBADF))
		return
	}
	if !d.Loaded() {
		entries, err := handle.ReadAll(d.Path())
		if err != nil {
			s.status(hdr.Unique, errno(err))
			return
		}
		d.SetEntries(entries)
	}

	entry, ok := d.Next()
	if !ok {
		s.status(hdr.Unique, 0)
		return
	}
	name := entry.Name
	if attr.FoldEnabled {
		name = attr.Fold(name)
	}
	s.reply(hdr.Unique, wire.MarshalDirent(wire.UnknownIno, 0, uint32(entry.Type), name))
}

func (s *Server) doReleasedir(hdr wire.InHeader, payload []byte) {
	var in wire.ReleaseIn
	if err := in.Unmarshal(payload); err != nil {
		s.status(hdr.Unique, -int32(unix.EINVAL))
		return
	}
	s.handles.CloseDir(in.FH)
	s.status(hdr.Unique, 0)
}

func logFields(hdr wire.InHeader) map[string]interface{} {
	return map[string]interface{}{
		"unique": hdr.Unique,
		"nodeid": hdr.NodeID,
	}
}
