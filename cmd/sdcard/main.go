// Command sdcard mounts a FAT-like fixed-ownership view of a backing
// directory onto /mnt/sdcard.
//
// Grounded on original_source/sdcard/sdcard.c's main.
package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
	"golang.org/x/sys/unix"

	"github.com/DevSwift/android-system-core/internal/attr"
	"github.com/DevSwift/android-system-core/internal/dispatch"
	"github.com/DevSwift/android-system-core/internal/fusechan"
	"github.com/DevSwift/android-system-core/internal/repair"
)

const usageText = `usage: sdcard [-l -f] <path> <uid> <gid>

	-l force file names to lower case when creating new files
	-f fix up file system before starting (repairs bad file name case and group ownership)
`

func usage() int {
	fmt.Fprint(os.Stderr, usageText)
	return -1
}

func main() {
	os.Exit(run())
}

func run() int {
	log := logrus.New()

	var lowerCase bool
	var fixFiles bool
	pflag.BoolVarP(&lowerCase, "lower", "l", false, "force file names to lower case when creating new files")
	pflag.BoolVarP(&fixFiles, "fix", "f", false, "fix up file system before starting")
	pflag.Parse()

	args := pflag.Args()
	if len(args) != 3 {
		return usage()
	}
	path := args[0]
	uid, err := strconv.ParseUint(args[1], 10, 32)
	if err != nil {
		log.WithError(err).Error("invalid uid")
		return usage()
	}
	gid, err := strconv.ParseUint(args[2], 10, 32)
	if err != nil {
		log.WithError(err).Error("invalid gid")
		return usage()
	}
	if uid == 0 || gid == 0 {
		log.Error("uid and gid must be nonzero")
		return usage()
	}

	attr.FoldEnabled = lowerCase
	attr.GID = uint32(gid)

	_ = fusechan.Unmount()

	conn, err := fusechan.Open()
	if err != nil {
		log.WithError(err).Error("cannot open fuse device")
		return -1
	}

	if err := fusechan.Mount(conn, fusechan.MountOptions{UID: uint32(uid), GID: uint32(gid)}); err != nil {
		log.WithError(err).Error("cannot mount fuse filesystem")
		return -1
	}

	if fixFiles {
		if err := repair.Walk(path, uint32(uid), uint32(gid), log); err != nil {
			log.WithError(err).Warn("repair pass failed")
		}
	}

	if err := unix.Setgid(int(gid)); err != nil {
		log.WithError(err).Error("cannot setgid")
		return -1
	}
	if err := unix.Setuid(int(uid)); err != nil {
		log.WithError(err).Error("cannot setuid")
		return -1
	}

	unix.Umask(0)

	srv := dispatch.New(conn, path, log)
	// Serve only returns once the channel is closed (unmount); that is
	// ordinary shutdown, not a crash, so the process exits 0.
	_ = srv.Serve()
	return 0
}
