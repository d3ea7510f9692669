package attr

import (
	"testing"

	"golang.org/x/sys/unix"
)

func TestFromStatClampsExecutableToGroupWritable(t *testing.T) {
	GID = 1015
	st := unix.Stat_t{Mode: unix.S_IFREG | 0100, Ino: 999}
	a := FromStat(&st, 42)

	if a.Mode&0777 != 0775 {
		t.Fatalf("mode = %#o, want 0775 perm bits", a.Mode&0777)
	}
	if a.Mode&unix.S_IFMT != unix.S_IFREG {
		t.Fatalf("file type bits not preserved: %#o", a.Mode)
	}
	if a.UID != 0 {
		t.Fatalf("uid = %d, want 0", a.UID)
	}
	if a.GID != 1015 {
		t.Fatalf("gid = %d, want 1015", a.GID)
	}
	if a.Ino != 42 {
		t.Fatalf("ino = %d, want the node's nid (42), not the backing inode", a.Ino)
	}
}

func TestFromStatClampsNonExecutableToWorldReadable(t *testing.T) {
	st := unix.Stat_t{Mode: unix.S_IFREG | 0644}
	a := FromStat(&st, 1)
	if a.Mode&0777 != 0664 {
		t.Fatalf("mode = %#o, want 0664 perm bits", a.Mode&0777)
	}
}

func TestFoldIsASCIIOnly(t *testing.T) {
	if got := Fold("HELLO.txt"); got != "hello.txt" {
		t.Fatalf("Fold = %q", got)
	}
	// Multi-byte UTF-8 must pass through untouched even if naive
	// unicode-aware folding would change it; only the ASCII 'N' folds.
	input := "ÜNïcode"
	want := "Ünïcode"
	if got := Fold(input); got != want {
		t.Fatalf("Fold(%q) = %q, want %q", input, got, want)
	}
}

func TestNeedsFoldDetectsUppercase(t *testing.T) {
	if !NeedsFold("Foo") {
		t.Fatalf("NeedsFold(%q) = false, want true", "Foo")
	}
	if NeedsFold("foo") {
		t.Fatalf("NeedsFold(%q) = true, want false", "foo")
	}
}

func TestFoldIdempotent(t *testing.T) {
	s := "Already.Mixed"
	once := Fold(s)
	twice := Fold(once)
	if once != twice {
		t.Fatalf("Fold is not idempotent: %q vs %q", once, twice)
	}
	if NeedsFold(once) {
		t.Fatalf("folded name still reports NeedsFold")
	}
}
