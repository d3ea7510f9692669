// Package wire implements the on-the-wire request/reply codec for the
// host kernel's userspace-filesystem protocol: opcode constants, the
// fixed-size message structs the kernel and this daemon exchange, and
// their little-endian marshaling.
//
// Nothing here talks to /dev/fuse directly — see internal/fusechan for
// the channel I/O that frames these structs into reads and writes.
package wire

// Opcode identifies the kind of request carried after the Header.
type Opcode uint32

const (
	OpLookup     Opcode = 1
	OpForget     Opcode = 2
	OpGetattr    Opcode = 3
	OpSetattr    Opcode = 4
	OpReadlink   Opcode = 5
	OpSymlink    Opcode = 6
	OpMknod      Opcode = 8
	OpMkdir      Opcode = 9
	OpUnlink     Opcode = 10
	OpRmdir      Opcode = 11
	OpRename     Opcode = 12
	OpLink       Opcode = 13
	OpOpen       Opcode = 14
	OpRead       Opcode = 15
	OpWrite      Opcode = 16
	OpStatfs     Opcode = 17
	OpRelease    Opcode = 18
	OpFsync      Opcode = 20
	OpSetxattr   Opcode = 21
	OpGetxattr   Opcode = 22
	OpListxattr  Opcode = 23
	OpRmxattr    Opcode = 24
	OpFlush      Opcode = 25
	OpInit       Opcode = 26
	OpOpendir    Opcode = 27
	OpReaddir    Opcode = 28
	OpReleasedir Opcode = 29
	OpFsyncdir   Opcode = 30
)

// RootNodeID is the reserved node id for the root of the exported tree.
const RootNodeID uint64 = 1

// SetattrValid bitmask, carried in SetattrIn.Valid.
const (
	FattrMode   uint32 = 1 << 0
	FattrUID    uint32 = 1 << 1
	FattrGID    uint32 = 1 << 2
	FattrSize   uint32 = 1 << 3
	FattrAtime  uint32 = 1 << 4
	FattrMtime  uint32 = 1 << 5
	FattrFH     uint32 = 1 << 6
	FattrCtime  uint32 = 1 << 10
)

// InitFlags bits this daemon sets in InitOut.Flags.
const InitAtomicOTrunc uint32 = 1 << 3

// KernelVersion/KernelMinorVersion are this daemon's compiled-in
// protocol version, sent in InitOut regardless of what the kernel
// requested, matching FUSE_KERNEL_VERSION/FUSE_KERNEL_MINOR_VERSION.
const (
	KernelVersion      uint32 = 7
	KernelMinorVersion uint32 = 8
)
