// Package tree owns the in-memory node cache: the tree of nodes
// mirroring paths the kernel has learned about, reference counting
// driven by lookup/forget accounting, and path reconstruction.
//
// Grounded on original_source/sdcard/sdcard.c's struct node/struct
// fuse and node_create/add_node_to_parent/remove_child/node_release/
// node_get_path, with identifier allocation following the teacher's
// (godcong-fuse-bazil) serveNode/saveNode/dropNode side-table instead
// of the original's pointer-as-nid trick (spec §9).
package tree

import (
	"sync"

	"github.com/DevSwift/android-system-core/internal/wire"
)

// Node is one name the kernel has learned about in the exported tree.
type Node struct {
	nid  uint64
	gen  uint64
	name string

	parent   *Node
	children []*Node

	refcount uint64
}

// NID returns the node's stable kernel-facing identifier.
func (n *Node) NID() uint64 { return n.nid }

// Gen returns the node's generation counter.
func (n *Node) Gen() uint64 { return n.gen }

// Name returns the node's single path component (the root's Name is
// the absolute backing path it exports).
func (n *Node) Name() string { return n.name }

// Parent returns the node's parent, or nil for the root.
func (n *Node) Parent() *Node { return n.parent }

// Refcount returns the current reference count, for tests and
// diagnostics.
func (n *Node) Refcount() uint64 { return n.refcount }

// Cache is the process-wide tree of cached nodes, keyed by nid. It is
// single-owner: the dispatch loop is the only caller, so no locking is
// required for correctness, but a mutex is kept to make that
// invariant explicit and catch accidental concurrent use in tests
// rather than silently racing.
type Cache struct {
	mu sync.Mutex

	root *Node
	byID map[uint64]*Node

	nextID  uint64
	nextGen uint64
}

// New creates a cache whose root node exports rootPath on the backing
// filesystem. The root's refcount is seeded to 2 so it can never reach
// zero through ordinary Release calls (spec §3: "the root node's
// refcount is initialized so it cannot reach zero during normal
// operation").
func New(rootPath string) *Cache {
	root := &Node{nid: RootNodeID, name: rootPath, refcount: 2}
	return &Cache{
		root:    root,
		byID:    map[uint64]*Node{RootNodeID: root},
		nextID:  2,
		nextGen: 0,
	}
}

// RootNodeID is the reserved node id for the exported tree's root,
// shared with the wire package's constant of the same value so there
// is exactly one source of truth for it.
const RootNodeID = wire.RootNodeID

// Root returns the cache's root node.
func (c *Cache) Root() *Node {
	return c.root
}

// Resolve maps a kernel-supplied nid to a node. An unknown id reports
// ok=false so callers can turn it into ENOENT/ESTALE as the opcode
// demands.
func (c *Cache) Resolve(nid uint64) (*Node, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	n, ok := c.byID[nid]
	return n, ok
}

// LookupChild does a linear scan of parent's children for name. This
// mirrors lookup_child_by_name: directories in this daemon's domain
// rarely have enough entries for anything fancier to matter, and a
// linear scan keeps sibling-uniqueness trivial to maintain by eye.
func LookupChild(parent *Node, name string) *Node {
	for _, c := range parent.children {
		if c.name == name {
			return c
		}
	}
	return nil
}

// Create attaches a brand new node named name under parent, with a
// freshly allocated (nid, gen) pair, and one reference for the parent
// link. It does not check for an existing child of that name — callers
// (GetOrCreate) are responsible for that.
func (c *Cache) Create(parent *Node, name string) *Node {
	c.mu.Lock()
	defer c.mu.Unlock()

	id := c.nextID
	c.nextID++
	gen := c.nextGen
	c.nextGen++

	n := &Node{nid: id, gen: gen, name: name, parent: parent, refcount: 1}
	parent.children = append(parent.children, n)
	parent.refcount++
	c.byID[id] = n
	return n
}

// Detach splices n out of its parent's child list and drops the
// parent-link reference that add introduced, without destroying
// anything. Used by Rename, which re-attaches the node elsewhere
// before the now-zero-refcount case could apply.
func Detach(n *Node) {
	parent := n.parent
	if parent == nil {
		return
	}
	for i, c := range parent.children {
		if c == n {
			parent.children = append(parent.children[:i], parent.children[i+1:]...)
			break
		}
	}
	n.parent = nil
	decRefcount(parent)
}

// Attach re-parents n under newParent, adding the parent-link
// reference Detach removed.
func Attach(n *Node, newParent *Node, newName string) {
	n.name = newName
	n.parent = newParent
	newParent.children = append(newParent.children, n)
	newParent.refcount++
}

// Rename detaches target from its current parent, renames it, and
// re-attaches it under newParent. The cache mutation happens whether
// or not the caller's subsequent backing rename(2) succeeds — see
// spec §4.C and §9 ("Rename-then-syscall ordering"): this is
// preserved bug-compatibly, not fixed here.
func (c *Cache) Rename(target, newParent *Node, newName string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	Detach(target)
	Attach(target, newParent, newName)
}

// GetOrCreate returns parent's existing child named name, or creates
// one if none exists. The caller (internal/dispatch) is responsible
// for having already lstat'd the backing path and turned a failure
// into ENOENT before calling this — Cache knows nothing about the
// backing filesystem, only about the tree of names the kernel has
// been told about (spec §4.C "Lookup or create").
func (c *Cache) GetOrCreate(parent *Node, name string) *Node {
	if existing := LookupChild(parent, name); existing != nil {
		return existing
	}
	return c.Create(parent, name)
}

// AddRef increments n's reference count. Used after a lookup-style
// reply (LOOKUP, successful MKNOD/MKDIR) has been written to the
// kernel.
func (c *Cache) AddRef(n *Node) {
	c.mu.Lock()
	n.refcount++
	c.mu.Unlock()
}

// Release decrements n's refcount by one and, if it reaches zero,
// detaches and destroys n and recursively releases its former
// parent — mirroring node_release. Releasing the root is a no-op
// beyond the decrement, since its seeded refcount of 2 never reaches
// zero through the reference rules in spec §4.C.
func (c *Cache) Release(n *Node) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.release(n)
}

// ReleaseN applies Release n times, implementing a FORGET request's
// nlookup count (spec §4.C "a forget request carries a count n >= 1;
// release is applied n times"). If nlookup exceeds the node's current
// refcount, the excess is ignored rather than underflowing (spec §8
// boundary behavior) — the caller should log this condition.
func (c *Cache) ReleaseN(n *Node, nlookup uint64) (excess uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := uint64(0); i < nlookup; i++ {
		if n == nil {
			return nlookup - i
		}
		if n.refcount == 0 {
			return nlookup - i
		}
		c.release(n)
	}
	return 0
}

func (c *Cache) release(n *Node) {
	if n.refcount == 0 {
		return
	}
	n.refcount--
	if n.refcount != 0 {
		return
	}
	parent := n.parent
	if parent != nil {
		for i, ch := range parent.children {
			if ch == n {
				parent.children = append(parent.children[:i], parent.children[i+1:]...)
				break
			}
		}
	}
	delete(c.byID, n.nid)
	n.parent = nil
	if parent != nil {
		c.release(parent)
	}
}

func decRefcount(n *Node) {
	if n.refcount > 0 {
		n.refcount--
	}
}
