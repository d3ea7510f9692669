package handle

import (
	"os"
	"path/filepath"
	"testing"

	"golang.org/x/sys/unix"
)

func TestOpenFileRoundTrip(t *testing.T) {
	tbl := New()
	fh := tbl.OpenFile(42)
	f, err := tbl.File(fh)
	if err != nil {
		t.Fatalf("File: %v", err)
	}
	if f.FD != 42 {
		t.Fatalf("FD = %d, want 42", f.FD)
	}
}

func TestUnknownFileReturnsError(t *testing.T) {
	tbl := New()
	if _, err := tbl.File(999); err == nil {
		t.Fatalf("expected error for unknown fh")
	}
}

func TestCloseFileRecyclesFH(t *testing.T) {
	tbl := New()
	a := tbl.OpenFile(1)
	fd, ok := tbl.CloseFile(a)
	if !ok || fd != 1 {
		t.Fatalf("CloseFile = (%d, %v), want (1, true)", fd, ok)
	}
	if _, err := tbl.File(a); err == nil {
		t.Fatalf("closed fh still resolves")
	}

	b := tbl.OpenFile(2)
	if b != a {
		t.Fatalf("freed fh %d was not reused, got %d", a, b)
	}
}

func TestDirFhIndependentOfFileFh(t *testing.T) {
	tbl := New()
	f := tbl.OpenFile(1)
	d, err := tbl.OpenDir(t.TempDir())
	if err != nil {
		t.Fatalf("OpenDir: %v", err)
	}
	if f == d {
		t.Fatalf("file and dir fh collided: %d", f)
	}
}

func TestOpenDirFailsOnMissingPath(t *testing.T) {
	tbl := New()
	if _, err := tbl.OpenDir(filepath.Join(t.TempDir(), "missing")); err == nil {
		t.Fatalf("expected error opening a nonexistent directory")
	}
}

func TestOpenDirFailsOnRegularFile(t *testing.T) {
	tbl := New()
	dir := t.TempDir()
	path := filepath.Join(dir, "file.txt")
	if err := os.WriteFile(path, []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := tbl.OpenDir(path); err == nil {
		t.Fatalf("expected error opening a regular file as a directory")
	}
}

func TestReadAllListsDirectoryIncludingDotEntries(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "a.txt"), []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.Mkdir(filepath.Join(dir, "sub"), 0755); err != nil {
		t.Fatal(err)
	}

	entries, err := ReadAll(dir)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}

	names := map[string]uint8{}
	for _, e := range entries {
		names[e.Name] = e.Type
	}
	if _, ok := names["a.txt"]; !ok {
		t.Fatalf("a.txt missing from %v", names)
	}
	if typ, ok := names["sub"]; !ok || typ != unix.DT_DIR {
		t.Fatalf("sub missing or wrong type: %v", names)
	}
	if _, ok := names["."]; !ok {
		t.Fatalf("expected \".\" entry, ReadAll should not filter it")
	}
}

func TestDirNextExhausts(t *testing.T) {
	d := &Dir{}
	d.SetEntries([]Entry{{Name: "a"}, {Name: "b"}})
	var got []string
	for {
		e, ok := d.Next()
		if !ok {
			break
		}
		got = append(got, e.Name)
	}
	if len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Fatalf("got %v", got)
	}
}
