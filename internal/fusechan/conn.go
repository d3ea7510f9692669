// Package fusechan owns the kernel channel: opening /dev/fuse,
// mounting it at the fixed mount point, and the blocking read/write
// pair that frames wire.InHeader/wire.OutHeader onto the channel fd.
//
// It has no notion of opcodes or node state — that's internal/dispatch.
// It only knows how to get bytes in and out of the kernel in the shape
// the protocol expects.
package fusechan

import (
	"fmt"

	"golang.org/x/sys/unix"

	"github.com/DevSwift/android-system-core/internal/wire"
)

// MountPoint is the fixed mount point, matching the original daemon's
// hardcoded MOUNT_POINT.
const MountPoint = "/mnt/sdcard"

// DevicePath is the kernel FUSE device node.
const DevicePath = "/dev/fuse"

// ReadBufferSize must accommodate the negotiated maximum write payload
// plus the request header; 256 KiB of payload plus 128 bytes of slack
// is what the original daemon allocates.
const ReadBufferSize = 256*1024 + 128

// Conn is a single kernel channel. It is not safe for concurrent use;
// the dispatcher loop that owns it issues at most one Read and one
// Write at a time by construction (spec §5: single-threaded).
type Conn struct {
	fd  int
	buf []byte
}

// Open opens /dev/fuse read/write. The caller is expected to Mount
// using the returned fd before reading requests.
func Open() (*Conn, error) {
	fd, err := unix.Open(DevicePath, unix.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", DevicePath, err)
	}
	return &Conn{fd: fd, buf: make([]byte, ReadBufferSize)}, nil
}

// FD returns the raw channel file descriptor, for use in the mount(2)
// options string (fd=<FD>).
func (c *Conn) FD() int {
	return c.fd
}

// FromFD wraps an already-open file descriptor as a Conn without
// opening /dev/fuse or mounting anything. Tests use this to drive a
// Server against a socketpair instead of a real kernel channel.
func FromFD(fd int) *Conn {
	return &Conn{fd: fd, buf: make([]byte, ReadBufferSize)}
}

// Close closes the channel fd.
func (c *Conn) Close() error {
	return unix.Close(c.fd)
}

// MountOptions describes the fixed-ownership mount this daemon always
// requests.
type MountOptions struct {
	UID uint32
	GID uint32
}

// Mount unmounts any stale mount at MountPoint (errors ignored, as a
// previous daemon instance may simply not have been mounted), then
// mounts this channel's fd there with the same option set the
// original C daemon used: default permissions enforcement delegated
// to the kernel, visible to other users, rootmode a directory.
func Mount(c *Conn, opts MountOptions) error {
	_ = unix.Unmount(MountPoint, unix.MNT_FORCE)

	data := fmt.Sprintf(
		"fd=%d,rootmode=40000,default_permissions,allow_other,user_id=%d,group_id=%d",
		c.fd, opts.UID, opts.GID,
	)
	err := unix.Mount("/dev/fuse", MountPoint, "fuse", unix.MS_NOSUID|unix.MS_NODEV, data)
	if err != nil {
		return fmt.Errorf("mount %s: %w", MountPoint, err)
	}
	return nil
}

// Unmount force-unmounts MountPoint. The daemon calls it at startup,
// before opening the device, to clear a stale mount and ignores its
// error.
func Unmount() error {
	return unix.Unmount(MountPoint, unix.MNT_FORCE)
}

// Request is one inbound frame: a parsed header plus the raw
// opcode-specific payload immediately following it.
type Request struct {
	Header  wire.InHeader
	Payload []byte
}

// ReadRequest blocks for the next request frame. EINTR is retried
// transparently (spec §5 "Cancellation"); any other error is returned
// to the caller, who is expected to terminate the serve loop.
//
// A frame whose header declares a length inconsistent with what was
// actually read is dropped silently, as spec §4.E requires, and
// ReadRequest loops to read the next frame instead of surfacing it as
// an error — the kernel will time out or re-issue.
func (c *Conn) ReadRequest() (*Request, error) {
	for {
		n, err := unix.Read(c.fd, c.buf)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			return nil, err
		}
		if n < wire.InHeaderLen {
			continue
		}
		var hdr wire.InHeader
		if err := hdr.Unmarshal(c.buf[:n]); err != nil {
			continue
		}
		if int(hdr.Len) != n {
			continue
		}
		payload := make([]byte, n-wire.InHeaderLen)
		copy(payload, c.buf[wire.InHeaderLen:n])
		return &Request{Header: hdr, Payload: payload}, nil
	}
}

// WriteStatus writes a header-only reply: success when errno is 0,
// otherwise a negative-errno status. A write failure is the caller's
// to log; the kernel treats an unanswered unique as a timed-out
// request, so there is nothing to retry here.
func (c *Conn) WriteStatus(unique uint64, errno int32) error {
	hdr := wire.OutHeader{Len: wire.OutHeaderLen, Error: errno, Unique: unique}
	b := make([]byte, wire.OutHeaderLen)
	hdr.Marshal(b)
	_, err := unix.Write(c.fd, b)
	return err
}

// WriteReply writes a header followed by a fixed-size payload as a
// single vectored write, so the kernel sees one frame.
func (c *Conn) WriteReply(unique uint64, payload []byte) error {
	hdr := wire.OutHeader{Len: uint32(wire.OutHeaderLen + len(payload)), Error: 0, Unique: unique}
	hb := make([]byte, wire.OutHeaderLen)
	hdr.Marshal(hb)
	iov := [][]byte{hb}
	if len(payload) > 0 {
		iov = append(iov, payload)
	}
	_, err := unix.Writev(c.fd, iov)
	return err
}
