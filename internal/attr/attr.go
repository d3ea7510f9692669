// Package attr implements the fixed-ownership policy this daemon
// enforces over every backing file: owner/group rewritten to a single
// fixed identity, mode clamped to one of two values, and optional
// ASCII-only case folding of exported names.
//
// Grounded on original_source/sdcard/sdcard.c's attr_from_stat,
// normalize_name, and name_needs_normalizing.
package attr

import (
	"golang.org/x/sys/unix"

	"github.com/DevSwift/android-system-core/internal/wire"
)

// GID is the fixed group every exported file and directory is
// reported as belonging to, set once at startup from the command
// line's gid argument (spec §2 "Fixed ownership").
var GID uint32

// FoldEnabled is set once at startup from the -l flag. When true,
// every backing path this daemon assembles (internal/tree.Path) is
// lowercased before use, and so is every entry name READDIR returns,
// matching normalize_name's being applied to
// the whole path string rather than to individual name components.
var FoldEnabled bool

// FromStat maps a backing lstat(2) result onto a wire.Attr for node,
// applying the fixed-ownership policy:
//   - uid is always 0 (root)
//   - gid is always GID
//   - mode is clamped to 0775 if any owner-exec bit is set in the
//     backing file's mode, 0664 otherwise, with the file-type bits
//     preserved unchanged
//   - ino is rewritten to the node's own nid rather than the backing
//     inode number, since nid is what the kernel uses to refer back
//     to this node
func FromStat(st *unix.Stat_t, nid uint64) wire.Attr {
	mode := uint32(st.Mode)
	perm := uint32(0664)
	if mode&0100 != 0 {
		perm = 0775
	}
	mode = (mode &^ 0777) | perm

	return wire.Attr{
		Ino:        nid,
		Size:       uint64(st.Size),
		Blocks:     uint64(st.Blocks),
		Atime:      uint64(st.Atim.Sec),
		Mtime:      uint64(st.Mtim.Sec),
		Ctime:      uint64(st.Ctim.Sec),
		Atimensec:  uint32(st.Atim.Nsec),
		Mtimensec:  uint32(st.Mtim.Nsec),
		Ctimensec:  uint32(st.Ctim.Nsec),
		Mode:       mode,
		Nlink:      uint32(st.Nlink),
		UID:        0,
		GID:        GID,
	}
}

// NeedsFold reports whether name contains any ASCII uppercase letter,
// mirroring name_needs_normalizing exactly: it is an ASCII-only check
// so multi-byte UTF-8 sequences are never mistaken for uppercase
// letters and left untouched.
func NeedsFold(name string) bool {
	for i := 0; i < len(name); i++ {
		ch := name[i]
		if ch >= 'A' && ch <= 'Z' {
			return true
		}
	}
	return false
}

// Fold lowercases the ASCII letters in s and leaves every other byte,
// including multi-byte UTF-8 sequences, untouched. This is
// deliberately not unicode.ToLower: the original only ever calls
// C's tolower(), which is ASCII-only in the "C" locale this daemon
// runs under, and spec §9 requires matching that rather than folding
// more aggressively.
func Fold(s string) string {
	b := []byte(s)
	changed := false
	for i, ch := range b {
		if ch >= 'A' && ch <= 'Z' {
			b[i] = ch + ('a' - 'A')
			changed = true
		}
	}
	if !changed {
		return s
	}
	return string(b)
}
