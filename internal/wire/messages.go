package wire

import (
	"encoding/binary"
	"errors"
)

// ErrShortBuffer is returned by Unmarshal methods when the supplied
// byte slice is too small to hold the fixed-size portion of a message.
var ErrShortBuffer = errors.New("wire: short buffer")

// InHeaderLen and OutHeaderLen are the sizes of InHeader and OutHeader
// on the wire.
const (
	InHeaderLen  = 40
	OutHeaderLen = 16
)

// InHeader is the fixed header prefixing every inbound request.
type InHeader struct {
	Len    uint32
	Opcode Opcode
	Unique uint64
	NodeID uint64
	UID    uint32
	GID    uint32
	PID    uint32
	_      uint32
}

func (h *InHeader) Unmarshal(b []byte) error {
	if len(b) < InHeaderLen {
		return ErrShortBuffer
	}
	h.Len = binary.LittleEndian.Uint32(b[0:4])
	h.Opcode = Opcode(binary.LittleEndian.Uint32(b[4:8]))
	h.Unique = binary.LittleEndian.Uint64(b[8:16])
	h.NodeID = binary.LittleEndian.Uint64(b[16:24])
	h.UID = binary.LittleEndian.Uint32(b[24:28])
	h.GID = binary.LittleEndian.Uint32(b[28:32])
	h.PID = binary.LittleEndian.Uint32(b[32:36])
	return nil
}

// OutHeader is the fixed header prefixing every reply.
type OutHeader struct {
	Len    uint32
	Error  int32
	Unique uint64
}

func (h *OutHeader) Marshal(b []byte) {
	binary.LittleEndian.PutUint32(b[0:4], h.Len)
	binary.LittleEndian.PutUint32(b[4:8], uint32(h.Error))
	binary.LittleEndian.PutUint64(b[8:16], h.Unique)
}

// Attr is the metadata record carried in attribute and entry replies.
type Attr struct {
	Ino       uint64
	Size      uint64
	Blocks    uint64
	Atime     uint64
	Mtime     uint64
	Ctime     uint64
	Atimensec uint32
	Mtimensec uint32
	Ctimensec uint32
	Mode      uint32
	Nlink     uint32
	UID       uint32
	GID       uint32
	Rdev      uint32
	Blksize   uint32
	_         uint32
}

const attrLen = 88

func (a *Attr) marshal(b []byte) {
	binary.LittleEndian.PutUint64(b[0:8], a.Ino)
	binary.LittleEndian.PutUint64(b[8:16], a.Size)
	binary.LittleEndian.PutUint64(b[16:24], a.Blocks)
	binary.LittleEndian.PutUint64(b[24:32], a.Atime)
	binary.LittleEndian.PutUint64(b[32:40], a.Mtime)
	binary.LittleEndian.PutUint64(b[40:48], a.Ctime)
	binary.LittleEndian.PutUint32(b[48:52], a.Atimensec)
	binary.LittleEndian.PutUint32(b[52:56], a.Mtimensec)
	binary.LittleEndian.PutUint32(b[56:60], a.Ctimensec)
	binary.LittleEndian.PutUint32(b[60:64], a.Mode)
	binary.LittleEndian.PutUint32(b[64:68], a.Nlink)
	binary.LittleEndian.PutUint32(b[68:72], a.UID)
	binary.LittleEndian.PutUint32(b[72:76], a.GID)
	binary.LittleEndian.PutUint32(b[76:80], a.Rdev)
	binary.LittleEndian.PutUint32(b[80:84], a.Blksize)
}

// EntryOut is the reply payload for LOOKUP and the lookup-style
// replies MKNOD and MKDIR send on success.
type EntryOut struct {
	NodeID         uint64
	Generation     uint64
	EntryValid     uint64
	AttrValid      uint64
	EntryValidNsec uint32
	AttrValidNsec  uint32
	Attr           Attr
}

const EntryOutLen = 40 + attrLen

func (e *EntryOut) Marshal() []byte {
	b := make([]byte, EntryOutLen)
	binary.LittleEndian.PutUint64(b[0:8], e.NodeID)
	binary.LittleEndian.PutUint64(b[8:16], e.Generation)
	binary.LittleEndian.PutUint64(b[16:24], e.EntryValid)
	binary.LittleEndian.PutUint64(b[24:32], e.AttrValid)
	binary.LittleEndian.PutUint32(b[32:36], e.EntryValidNsec)
	binary.LittleEndian.PutUint32(b[36:40], e.AttrValidNsec)
	e.Attr.marshal(b[40:])
	return b
}

// AttrOut is the reply payload for GETATTR and SETATTR.
type AttrOut struct {
	AttrValid     uint64
	AttrValidNsec uint32
	Attr          Attr
}

const AttrOutLen = 16 + attrLen

func (a *AttrOut) Marshal() []byte {
	b := make([]byte, AttrOutLen)
	binary.LittleEndian.PutUint64(b[0:8], a.AttrValid)
	binary.LittleEndian.PutUint32(b[8:12], a.AttrValidNsec)
	a.Attr.marshal(b[16:])
	return b
}

// InitIn is the negotiation request the kernel sends first.
type InitIn struct {
	Major        uint32
	Minor        uint32
	MaxReadahead uint32
	Flags        uint32
}

func (i *InitIn) Unmarshal(b []byte) error {
	if len(b) < 16 {
		return ErrShortBuffer
	}
	i.Major = binary.LittleEndian.Uint32(b[0:4])
	i.Minor = binary.LittleEndian.Uint32(b[4:8])
	i.MaxReadahead = binary.LittleEndian.Uint32(b[8:12])
	i.Flags = binary.LittleEndian.Uint32(b[12:16])
	return nil
}

// InitOut is this daemon's negotiation reply.
type InitOut struct {
	Major                uint32
	Minor                uint32
	MaxReadahead         uint32
	Flags                uint32
	MaxBackground        uint16
	CongestionThreshold  uint16
	MaxWrite             uint32
}

func (i *InitOut) Marshal() []byte {
	b := make([]byte, 24)
	binary.LittleEndian.PutUint32(b[0:4], i.Major)
	binary.LittleEndian.PutUint32(b[4:8], i.Minor)
	binary.LittleEndian.PutUint32(b[8:12], i.MaxReadahead)
	binary.LittleEndian.PutUint32(b[12:16], i.Flags)
	binary.LittleEndian.PutUint16(b[16:18], i.MaxBackground)
	binary.LittleEndian.PutUint16(b[18:20], i.CongestionThreshold)
	binary.LittleEndian.PutUint32(b[20:24], i.MaxWrite)
	return b
}

// MknodIn precedes the NUL-terminated name in an MKNOD request.
type MknodIn struct {
	Mode  uint32
	Rdev  uint32
	Umask uint32
}

const MknodInLen = 16

func (m *MknodIn) Unmarshal(b []byte) error {
	if len(b) < MknodInLen {
		return ErrShortBuffer
	}
	m.Mode = binary.LittleEndian.Uint32(b[0:4])
	m.Rdev = binary.LittleEndian.Uint32(b[4:8])
	m.Umask = binary.LittleEndian.Uint32(b[8:12])
	return nil
}

// MkdirIn precedes the NUL-terminated name in an MKDIR request.
type MkdirIn struct {
	Mode  uint32
	Umask uint32
}

const MkdirInLen = 8

func (m *MkdirIn) Unmarshal(b []byte) error {
	if len(b) < MkdirInLen {
		return ErrShortBuffer
	}
	m.Mode = binary.LittleEndian.Uint32(b[0:4])
	m.Umask = binary.LittleEndian.Uint32(b[4:8])
	return nil
}

// RenameIn precedes two NUL-terminated names (old, new) in a RENAME
// request.
type RenameIn struct {
	NewDir uint64
}

const RenameInLen = 8

func (r *RenameIn) Unmarshal(b []byte) error {
	if len(b) < RenameInLen {
		return ErrShortBuffer
	}
	r.NewDir = binary.LittleEndian.Uint64(b[0:8])
	return nil
}

// OpenIn is the OPEN/OPENDIR request payload.
type OpenIn struct {
	Flags uint32
}

const OpenInLen = 8

func (o *OpenIn) Unmarshal(b []byte) error {
	if len(b) < OpenInLen {
		return ErrShortBuffer
	}
	o.Flags = binary.LittleEndian.Uint32(b[0:4])
	return nil
}

// OpenOut is the OPEN/OPENDIR reply payload.
type OpenOut struct {
	FH        uint64
	OpenFlags uint32
}

const OpenOutLen = 16

func (o *OpenOut) Marshal() []byte {
	b := make([]byte, OpenOutLen)
	binary.LittleEndian.PutUint64(b[0:8], o.FH)
	binary.LittleEndian.PutUint32(b[8:12], o.OpenFlags)
	return b
}

// ReadIn is the READ/READDIR request payload.
type ReadIn struct {
	FH        uint64
	Offset    uint64
	Size      uint32
	ReadFlags uint32
	LockOwner uint64
	Flags     uint32
}

const ReadInLen = 40

func (r *ReadIn) Unmarshal(b []byte) error {
	if len(b) < ReadInLen {
		return ErrShortBuffer
	}
	r.FH = binary.LittleEndian.Uint64(b[0:8])
	r.Offset = binary.LittleEndian.Uint64(b[8:16])
	r.Size = binary.LittleEndian.Uint32(b[16:20])
	r.ReadFlags = binary.LittleEndian.Uint32(b[20:24])
	r.LockOwner = binary.LittleEndian.Uint64(b[24:32])
	r.Flags = binary.LittleEndian.Uint32(b[32:36])
	return nil
}

// WriteIn precedes the data bytes in a WRITE request.
type WriteIn struct {
	FH         uint64
	Offset     uint64
	Size       uint32
	WriteFlags uint32
	LockOwner  uint64
	Flags      uint32
}

const WriteInLen = 40

func (w *WriteIn) Unmarshal(b []byte) error {
	if len(b) < WriteInLen {
		return ErrShortBuffer
	}
	w.FH = binary.LittleEndian.Uint64(b[0:8])
	w.Offset = binary.LittleEndian.Uint64(b[8:16])
	w.Size = binary.LittleEndian.Uint32(b[16:20])
	w.WriteFlags = binary.LittleEndian.Uint32(b[20:24])
	w.LockOwner = binary.LittleEndian.Uint64(b[24:32])
	w.Flags = binary.LittleEndian.Uint32(b[32:36])
	return nil
}

// WriteOut is the WRITE reply payload.
type WriteOut struct {
	Size uint32
}

const WriteOutLen = 8

func (w *WriteOut) Marshal() []byte {
	b := make([]byte, WriteOutLen)
	binary.LittleEndian.PutUint32(b[0:4], w.Size)
	return b
}

// SetattrIn is the SETATTR request payload. Only Valid and Size are
// consulted — chmod/chown fields are parsed (so offsets stay correct)
// but never applied, per the fixed-ownership policy.
type SetattrIn struct {
	Valid     uint32
	FH        uint64
	Size      uint64
	LockOwner uint64
	Atime     uint64
	Mtime     uint64
	Ctime     uint64
	AtimeNsec uint32
	MtimeNsec uint32
	CtimeNsec uint32
	Mode      uint32
	UID       uint32
	GID       uint32
}

const SetattrInLen = 88

func (s *SetattrIn) Unmarshal(b []byte) error {
	if len(b) < SetattrInLen {
		return ErrShortBuffer
	}
	s.Valid = binary.LittleEndian.Uint32(b[0:4])
	s.FH = binary.LittleEndian.Uint64(b[8:16])
	s.Size = binary.LittleEndian.Uint64(b[16:24])
	s.LockOwner = binary.LittleEndian.Uint64(b[24:32])
	s.Atime = binary.LittleEndian.Uint64(b[32:40])
	s.Mtime = binary.LittleEndian.Uint64(b[40:48])
	s.Ctime = binary.LittleEndian.Uint64(b[48:56])
	s.AtimeNsec = binary.LittleEndian.Uint32(b[56:60])
	s.MtimeNsec = binary.LittleEndian.Uint32(b[60:64])
	s.CtimeNsec = binary.LittleEndian.Uint32(b[64:68])
	s.Mode = binary.LittleEndian.Uint32(b[68:72])
	s.UID = binary.LittleEndian.Uint32(b[76:80])
	s.GID = binary.LittleEndian.Uint32(b[80:84])
	return nil
}

// ForgetIn is the FORGET request payload.
type ForgetIn struct {
	Nlookup uint64
}

const ForgetInLen = 8

func (f *ForgetIn) Unmarshal(b []byte) error {
	if len(b) < ForgetInLen {
		return ErrShortBuffer
	}
	f.Nlookup = binary.LittleEndian.Uint64(b[0:8])
	return nil
}

// GetattrIn is the GETATTR request payload.
type GetattrIn struct {
	GetattrFlags uint32
	FH           uint64
}

const GetattrInLen = 16

func (g *GetattrIn) Unmarshal(b []byte) error {
	if len(b) < GetattrInLen {
		return ErrShortBuffer
	}
	g.GetattrFlags = binary.LittleEndian.Uint32(b[0:4])
	g.FH = binary.LittleEndian.Uint64(b[8:16])
	return nil
}

// ReleaseIn is the RELEASE/RELEASEDIR request payload.
type ReleaseIn struct {
	FH    uint64
	Flags uint32
}

const ReleaseInLen = 24

func (r *ReleaseIn) Unmarshal(b []byte) error {
	if len(b) < ReleaseInLen {
		return ErrShortBuffer
	}
	r.FH = binary.LittleEndian.Uint64(b[0:8])
	r.Flags = binary.LittleEndian.Uint32(b[8:12])
	return nil
}

// StatfsOut is the STATFS reply payload.
type StatfsOut struct {
	Blocks  uint64
	Bfree   uint64
	Bavail  uint64
	Files   uint64
	Ffree   uint64
	Bsize   uint32
	Namelen uint32
	Frsize  uint32
}

const StatfsOutLen = 80

func (s *StatfsOut) Marshal() []byte {
	b := make([]byte, StatfsOutLen)
	binary.LittleEndian.PutUint64(b[0:8], s.Blocks)
	binary.LittleEndian.PutUint64(b[8:16], s.Bfree)
	binary.LittleEndian.PutUint64(b[16:24], s.Bavail)
	binary.LittleEndian.PutUint64(b[24:32], s.Files)
	binary.LittleEndian.PutUint64(b[32:40], s.Ffree)
	binary.LittleEndian.PutUint32(b[40:44], s.Bsize)
	binary.LittleEndian.PutUint32(b[44:48], s.Namelen)
	binary.LittleEndian.PutUint32(b[48:52], s.Frsize)
	return b
}

// DirentHeaderLen is the fixed portion of a directory entry, before
// the (padded) name bytes.
const DirentHeaderLen = 24

// UnknownIno is the sentinel inode value READDIR uses for entries
// whose real node id the daemon does not bother resolving.
const UnknownIno uint64 = 0xffffffffffffffff

// MarshalDirent encodes one directory entry, padded to an 8-byte
// boundary as the kernel requires.
func MarshalDirent(ino uint64, off uint64, fileType uint32, name string) []byte {
	nameLen := len(name)
	total := align8(DirentHeaderLen + nameLen)
	b := make([]byte, total)
	binary.LittleEndian.PutUint64(b[0:8], ino)
	binary.LittleEndian.PutUint64(b[8:16], off)
	binary.LittleEndian.PutUint32(b[16:20], uint32(nameLen))
	binary.LittleEndian.PutUint32(b[20:24], fileType)
	copy(b[24:24+nameLen], name)
	return b
}

func align8(n int) int {
	return (n + 7) &^ 7
}
