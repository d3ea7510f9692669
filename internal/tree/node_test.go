package tree

import "testing"

func TestGetOrCreateReusesExistingChild(t *testing.T) {
	c := New("/export")
	a := c.GetOrCreate(c.Root(), "foo")
	b := c.GetOrCreate(c.Root(), "foo")
	if a != b {
		t.Fatalf("GetOrCreate returned distinct nodes for the same name")
	}
}

func TestGetOrCreateSiblingsAreUnique(t *testing.T) {
	c := New("/export")
	a := c.GetOrCreate(c.Root(), "foo")
	b := c.GetOrCreate(c.Root(), "bar")
	if a.NID() == b.NID() {
		t.Fatalf("distinct names got the same nid")
	}
}

func TestReleaseDestroysAtZeroRefcount(t *testing.T) {
	c := New("/export")
	n := c.Create(c.Root(), "foo")
	if n.Refcount() != 1 {
		t.Fatalf("fresh node refcount = %d, want 1", n.Refcount())
	}
	c.AddRef(n)
	if n.Refcount() != 2 {
		t.Fatalf("after AddRef refcount = %d, want 2", n.Refcount())
	}
	c.Release(n)
	if _, ok := c.Resolve(n.NID()); !ok {
		t.Fatalf("node released prematurely")
	}
	c.Release(n)
	if _, ok := c.Resolve(n.NID()); ok {
		t.Fatalf("node not destroyed after refcount reached zero")
	}
}

func TestReleaseRecursivelyReleasesParent(t *testing.T) {
	c := New("/export")
	dir := c.Create(c.Root(), "dir")
	rootRefBefore := c.Root().Refcount()
	child := c.Create(dir, "file")

	c.Release(child) // child's only ref: child is destroyed and releases one ref on dir
	if _, ok := c.Resolve(dir.NID()); !ok {
		t.Fatalf("dir destroyed too early")
	}
	if dir.Refcount() != 1 {
		t.Fatalf("dir refcount = %d, want 1 after child's release", dir.Refcount())
	}

	// dir still holds the parent-link refcount it got from Create, plus
	// root's refcount was bumped when dir was created and is unaffected
	// by releasing child.
	if c.Root().Refcount() != rootRefBefore {
		t.Fatalf("root refcount changed unexpectedly: %d", c.Root().Refcount())
	}
}

func TestReleaseNStopsAtZeroWithoutUnderflow(t *testing.T) {
	c := New("/export")
	n := c.Create(c.Root(), "foo")
	excess := c.ReleaseN(n, 5)
	if excess == 0 {
		t.Fatalf("expected nonzero excess when nlookup exceeds refcount")
	}
	if _, ok := c.Resolve(n.NID()); ok {
		t.Fatalf("node should have been destroyed")
	}
}

func TestRenameReparents(t *testing.T) {
	c := New("/export")
	srcDir := c.Create(c.Root(), "src")
	dstDir := c.Create(c.Root(), "dst")
	f := c.Create(srcDir, "file")

	c.Rename(f, dstDir, "renamed")

	if f.Parent() != dstDir {
		t.Fatalf("parent = %v, want dstDir", f.Parent())
	}
	if f.Name() != "renamed" {
		t.Fatalf("name = %q, want %q", f.Name(), "renamed")
	}
	if LookupChild(srcDir, "file") != nil {
		t.Fatalf("old parent still references renamed node")
	}
	if LookupChild(dstDir, "renamed") != f {
		t.Fatalf("new parent does not reference renamed node")
	}
}

func TestRootRefcountSurvivesOrdinaryRelease(t *testing.T) {
	c := New("/export")
	root := c.Root()
	c.Release(root)
	if _, ok := c.Resolve(RootNodeID); !ok {
		t.Fatalf("root destroyed by a single release")
	}
}
