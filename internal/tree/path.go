package tree

import (
	"errors"
	"path/filepath"

	"github.com/DevSwift/android-system-core/internal/attr"
)

// PathBufferSize is the buffer size path reconstruction refuses to
// exceed, matching the original's PATH_BUFFER_SIZE.
const PathBufferSize = 1024

// ErrPathTooLong is returned when the accumulated path plus
// separators would overflow the path buffer. Callers treat this as a
// protocol error (ENAMETOOLONG, spec §4.A).
var ErrPathTooLong = errors.New("tree: path exceeds buffer")

// Path reconstructs the absolute backing path for n, optionally with
// an extra trailing component (as used for a not-yet-cached child
// during LOOKUP/MKNOD/MKDIR, where node_get_path is called with a name
// that has no node of its own yet).
//
// Assembly walks parent links and prepends "/name" segments into a
// fixed-size buffer from the right, exactly as node_get_path does,
// rather than building left-to-right and reversing: that's the detail
// spec §4.A calls out, and it's what makes the overflow check a
// simple "would this segment still fit" test instead of a two-pass
// length sum.
//
// When attr.FoldEnabled is set, the assembled path is lowercased as a
// whole before it's returned — node_get_path calls normalize_name on
// the finished buffer, not on each component as it's copied in, so a
// node whose own name was never folded still gets a folded path here.
func Path(n *Node, extra string) (string, error) {
	buf := make([]byte, PathBufferSize)
	out := PathBufferSize - 1
	buf[out] = 0

	segments := make([]string, 0, 8)
	if extra != "" {
		segments = append(segments, extra)
	}
	for cur := n; cur != nil; cur = cur.parent {
		segments = append(segments, cur.name)
	}

	for _, name := range segments {
		l := len(name)
		if (l + 1) > out {
			return "", ErrPathTooLong
		}
		out -= l
		copy(buf[out:out+l], name)
		out--
		buf[out] = '/'
	}

	result := string(buf[out : PathBufferSize-1])
	if attr.FoldEnabled {
		result = attr.Fold(result)
	}
	// node_get_path prefixes every segment with '/', root's own stored
	// name included, which produces a harmless but ugly leading "//"
	// once the root's absolute export path is prepended. filepath.Clean
	// collapses that without touching anything the overflow check above
	// already accounted for.
	return filepath.Clean(result), nil
}
