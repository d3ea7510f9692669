package repair

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"
)

type logDiscard struct{}

func (logDiscard) Write(p []byte) (int, error) { return len(p), nil }

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(logDiscard{})
	return log
}

func TestWalkFoldsMixedCaseNames(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "MixedCase.TXT"), []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}

	uid := uint32(os.Getuid())
	gid := uint32(os.Getgid())
	if err := Walk(dir, uid, gid, testLogger()); err != nil {
		t.Fatalf("Walk: %v", err)
	}

	if _, err := os.Stat(filepath.Join(dir, "mixedcase.txt")); err != nil {
		t.Fatalf("expected folded name to exist: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "MixedCase.TXT")); !os.IsNotExist(err) {
		t.Fatalf("original mixed-case name should be gone, err = %v", err)
	}
}

func TestWalkRecursesIntoSubdirectoriesAfterFold(t *testing.T) {
	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, "SubDir"), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "SubDir", "inner.txt"), []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}

	uid := uint32(os.Getuid())
	gid := uint32(os.Getgid())
	if err := Walk(dir, uid, gid, testLogger()); err != nil {
		t.Fatalf("Walk: %v", err)
	}

	if _, err := os.Stat(filepath.Join(dir, "subdir", "inner.txt")); err != nil {
		t.Fatalf("expected descent into the renamed directory: %v", err)
	}
}

func TestWalkSkipsDotEntries(t *testing.T) {
	dir := t.TempDir()
	uid := uint32(os.Getuid())
	gid := uint32(os.Getgid())
	if err := Walk(dir, uid, gid, testLogger()); err != nil {
		t.Fatalf("Walk on empty dir: %v", err)
	}
}

func TestWalkChownsEntries(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "file")
	if err := os.WriteFile(path, []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}

	uid := uint32(os.Getuid())
	gid := uint32(os.Getgid())
	if err := Walk(dir, uid, gid, testLogger()); err != nil {
		t.Fatalf("Walk: %v", err)
	}

	var st unix.Stat_t
	if err := unix.Lstat(path, &st); err != nil {
		t.Fatalf("Lstat: %v", err)
	}
	if st.Uid != uid || st.Gid != gid {
		t.Fatalf("chown not applied: uid=%d gid=%d", st.Uid, st.Gid)
	}
}

func TestWalkSkipsRootThatIsTooLongRatherThanErroring(t *testing.T) {
	// The length check runs before any backing syscall, so a bogus,
	// nonexistent root this long is enough to exercise it.
	root := "/" + strings.Repeat("a", maxPathBuffer)
	if err := Walk(root, uint32(os.Getuid()), uint32(os.Getgid()), testLogger()); err != nil {
		t.Fatalf("Walk on an oversize root should log and return nil, got: %v", err)
	}
}

func TestWalkContinuesPastPerEntryRenameFailure(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "MixedCase.TXT"), []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}

	uid := uint32(os.Getuid())
	gid := uint32(os.Getgid())
	// A read-only parent directory makes the fold rename fail with
	// EACCES/EPERM (unless the walk runs as root, in which case it
	// succeeds instead) — either way Walk must return nil rather than
	// unwinding on that one entry's failure.
	if err := os.Chmod(dir, 0555); err != nil {
		t.Fatal(err)
	}
	defer os.Chmod(dir, 0755)

	if err := Walk(dir, uid, gid, testLogger()); err != nil {
		t.Fatalf("Walk must not propagate a per-entry rename failure: %v", err)
	}
}
