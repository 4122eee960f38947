package scene

import (
	"sort"

	"github.com/pkg/errors"
	"github.com/roomsync/roomsync/engine/proto"
	"github.com/roomsync/roomsync/engine/rslog"
)

// ErrMalformedNode is returned by Validate for batches that can not be built
var ErrMalformedNode = errors.New("malformed node")

// Validate checks a flat batch before anything is built from it: every entry is a node with a
// guid, and no node is its own ancestor within the batch
func Validate(nodes map[string]*proto.NodeData) error {
	for guid, nd := range nodes {
		if guid == "" {
			return errors.Wrap(ErrMalformedNode, "empty guid")
		}
		if nd == nil {
			return errors.Wrapf(ErrMalformedNode, "%s is null", guid)
		}
	}
	for guid := range nodes {
		seen := map[string]bool{guid: true}
		for p := nodes[guid].Parent; p != ""; {
			if seen[p] {
				return errors.Wrapf(ErrMalformedNode, "%s is its own ancestor", guid)
			}
			seen[p] = true
			parent, ok := nodes[p]
			if !ok {
				break
			}
			p = parent.Parent
		}
	}
	return nil
}

// Flatten serializes the subtree of n (without n) as a flat map keyed by guid.
// Children of n get an empty parent guid. stateOf may add the state of a node.
func Flatten(n *Node, stateOf func(n *Node) *proto.NodeData) map[string]*proto.NodeData {
	nodes := map[string]*proto.NodeData{}
	for _, c := range n.children {
		c.Walk(func(d *Node) bool {
			nd := serializeNode(d, stateOf)
			if d.parent != n {
				nd.Parent = d.parent.GUID
			}
			nodes[d.GUID] = nd
			return true
		})
	}
	return nodes
}

// FlattenSubtree serializes n and its descendants, n references its parent by guid unless
// its parent is the root
func FlattenSubtree(n *Node, stateOf func(n *Node) *proto.NodeData) map[string]*proto.NodeData {
	nodes := map[string]*proto.NodeData{}
	n.Walk(func(d *Node) bool {
		nd := serializeNode(d, stateOf)
		if d.parent != nil && d.parent.parent != nil {
			nd.Parent = d.parent.GUID
		}
		nodes[d.GUID] = nd
		return true
	})
	return nodes
}

func serializeNode(n *Node, stateOf func(n *Node) *proto.NodeData) *proto.NodeData {
	var nd *proto.NodeData
	if stateOf != nil {
		nd = stateOf(n)
	}
	if nd == nil {
		nd = &proto.NodeData{}
	}
	nd.Name = n.Name
	nd.Networked = n.Networked
	return nd
}

// NewNodeFromData creates a detached node from its serialized form
func NewNodeFromData(guid string, nd *proto.NodeData) *Node {
	n := NewNode(guid, nd.Name, nd.Networked)
	if s := nd.State; s != nil {
		if s.Pos != nil {
			n.Pos = *s.Pos
		}
		if s.Rot != nil {
			n.Rot = *s.Rot
		}
		if s.Scale != nil {
			n.Scale = *s.Scale
		}
		for k, v := range s.Attrs {
			n.Attrs[k] = v
		}
		if len(s.Data) > 0 {
			n.Data = map[string]interface{}{}
			for k, v := range s.Data {
				n.Data[k] = v
			}
		}
	}
	return n
}

// Build creates the nodes of a flat batch and attaches them under root.
//
// A node whose parent is in the batch is attached to it. Other nodes are attached to the
// node of their parent guid found in root's subtree, or to root itself if the parent guid
// is empty. Nodes whose parent can not be found are attached to root and their guids are
// returned as missing. Every top level node of the batch is attached exactly once, in guid
// order, so the observer of root sees whole subtrees.
func Build(root *Node, nodes map[string]*proto.NodeData) (created map[string]*Node, missing []string) {
	created = make(map[string]*Node, len(nodes))
	guids := make([]string, 0, len(nodes))
	for guid := range nodes {
		guids = append(guids, guid)
	}
	sort.Strings(guids)

	for _, guid := range guids {
		created[guid] = NewNodeFromData(guid, nodes[guid])
	}

	var tops []string
	for _, guid := range guids {
		parentGUID := nodes[guid].Parent
		if parent, ok := created[parentGUID]; ok && parentGUID != "" {
			n := created[guid]
			n.parent = parent
			parent.children = append(parent.children, n)
		} else {
			tops = append(tops, guid)
		}
	}

	for _, guid := range tops {
		parentGUID := nodes[guid].Parent
		parent := root
		if parentGUID != "" {
			if found := root.FindByGUID(parentGUID); found != nil {
				parent = found
			} else {
				rslog.Warnf("scene.Build: parent %s of node %s not found, attached to %s", parentGUID, guid, root)
				missing = append(missing, parentGUID)
			}
		}
		parent.AddChild(created[guid])
	}
	return
}
