// Package repair implements the one-shot backing-tree fixup the -f
// flag requests before mounting: chown every entry to the daemon's
// target uid/gid and fold any name that isn't already lowercase.
//
// Grounded on original_source/sdcard/sdcard.c's recursive_fix_files.
package repair

import (
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"

	"github.com/DevSwift/android-system-core/internal/attr"
	"github.com/DevSwift/android-system-core/internal/handle"
)

// maxPathBuffer mirrors recursive_fix_files's fixed PATH_MAX-sized
// stack buffer: any path this pass would need to touch that doesn't
// fit is logged and skipped rather than attempted.
const maxPathBuffer = 4096

// Walk recursively chowns every entry under root to uid/gid and
// renames any entry whose name isn't already all-lowercase to its
// folded form, descending into directories using the post-rename
// (lowercased) path — exactly the order recursive_fix_files uses, so
// a rename never leaves a dangling reference to the pre-rename name.
//
// A failure on one entry (an oversize path, a failed chown or
// rename, an unreadable subdirectory) is logged and that entry is
// skipped; it never aborts the rest of the walk, matching
// recursive_fix_files's own per-entry `continue` and its void return
// on a subdirectory it can't open.
func Walk(root string, uid, gid uint32, log *logrus.Logger) error {
	if len(root) >= maxPathBuffer-1 {
		log.WithField("path", root).Warn("repair: path too long, skipping")
		return nil
	}

	entries, err := handle.ReadAll(root)
	if err != nil {
		return err
	}

	for _, e := range entries {
		if e.Name == "." || e.Name == ".." {
			continue
		}

		path := filepath.Join(root, e.Name)
		if len(path) >= maxPathBuffer-1 {
			log.WithField("path", path).Warn("repair: path too long, skipping entry")
			continue
		}

		if err := unix.Chown(path, int(uid), int(gid)); err != nil && !os.IsNotExist(err) {
			log.WithError(err).WithField("path", path).Warn("repair: chown failed, skipping entry")
			continue
		}

		if attr.NeedsFold(e.Name) {
			folded := filepath.Join(root, attr.Fold(e.Name))
			if err := unix.Rename(path, folded); err != nil {
				log.WithError(err).WithField("path", path).Warn("repair: rename failed, skipping entry")
				continue
			}
			path = folded
		}

		if e.Type == unix.DT_DIR {
			if err := Walk(path, uid, gid, log); err != nil {
				log.WithError(err).WithField("path", path).Warn("repair: descending into subdirectory failed")
			}
		}
	}
	return nil
}
