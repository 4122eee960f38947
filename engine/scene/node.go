// Package scene is a minimal in-memory scene graph with a level loader.
//
// The replication layer only needs a tree of nodes with guids, a replicable flag,
// attach/detach notifications at the root and upward traversal. Engines with their own
// scene graph provide the same through a Loader.
package scene

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/roomsync/roomsync/engine/common"
)

// Observer is notified when subtrees are attached to or detached from a root
type Observer interface {
	OnAttached(n *Node)
	OnDetached(n *Node)
}

// Node is a node of the scene graph
type Node struct {
	GUID      string
	Name      string
	Networked bool

	Pos   common.Vector3
	Rot   common.Quaternion
	Scale common.Vector3
	Attrs map[string]float64
	Data  map[string]interface{}

	parent   *Node
	children []*Node
	observer Observer
}

// NewNode creates a detached node, an empty guid is generated
func NewNode(guid string, name string, networked bool) *Node {
	if guid == "" {
		guid = uuid.NewString()
	}
	return &Node{
		GUID:      guid,
		Name:      name,
		Networked: networked,
		Rot:       common.IdentityQuaternion,
		Scale:     common.Vector3{X: 1, Y: 1, Z: 1},
		Attrs:     map[string]float64{},
	}
}

func (n *Node) String() string {
	return fmt.Sprintf("Node<%s|%s>", n.Name, n.GUID)
}

// Parent returns the parent node, nil for roots
func (n *Node) Parent() *Node {
	return n.parent
}

// Children returns the child nodes in insertion order
func (n *Node) Children() []*Node {
	return n.children
}

// Root returns the top most ancestor, n itself if it has no parent
func (n *Node) Root() *Node {
	for n.parent != nil {
		n = n.parent
	}
	return n
}

// SetObserver sets the observer of attach/detach events below this root
func (n *Node) SetObserver(o Observer) {
	n.observer = o
}

// AddChild attaches child (and its subtree) to n, detaching it from its old parent first
func (n *Node) AddChild(child *Node) {
	if child.parent != nil {
		child.Remove()
	}
	child.parent = n
	n.children = append(n.children, child)
	if o := n.Root().observer; o != nil {
		o.OnAttached(child)
	}
}

// Remove detaches n from its parent, the observer of the old root sees the detached subtree
func (n *Node) Remove() {
	parent := n.parent
	if parent == nil {
		return
	}
	root := parent.Root()
	for i, c := range parent.children {
		if c == n {
			parent.children = append(parent.children[:i], parent.children[i+1:]...)
			break
		}
	}
	n.parent = nil
	if root.observer != nil {
		root.observer.OnDetached(n)
	}
}

// Walk visits n and its descendants depth first, returning false skips the children of a node
func (n *Node) Walk(f func(n *Node) bool) {
	if !f(n) {
		return
	}
	// children may be detached while walking
	children := append([]*Node(nil), n.children...)
	for _, c := range children {
		c.Walk(f)
	}
}

// FindByGUID finds the node of guid in the subtree of n
func (n *Node) FindByGUID(guid string) *Node {
	var found *Node
	n.Walk(func(c *Node) bool {
		if found != nil {
			return false
		}
		if c.GUID == guid {
			found = c
			return false
		}
		return true
	})
	return found
}
