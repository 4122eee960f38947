package entity

import (
	"sort"

	"github.com/roomsync/roomsync/engine/common"
	"github.com/roomsync/roomsync/engine/interp"
	"github.com/roomsync/roomsync/engine/proto"
	"github.com/roomsync/roomsync/engine/scene"
)

// Smoother renders the replicated fields of a mirrored node through interpolation buffers.
// Custom data is not smoothed and is applied on arrival.
type Smoother struct {
	Pos   *interp.Buffer[common.Vector3]
	Rot   *interp.Buffer[common.Quaternion]
	Scale *interp.Buffer[common.Vector3]

	node     *scene.Node
	tickrate float64
	cfg      interp.Config
	attrs    map[string]*interp.Buffer[interp.Scalar]
}

func newSmoother(node *scene.Node, tickrate float64, cfg interp.Config) *Smoother {
	s := &Smoother{
		Pos:      interp.NewBuffer(node.Pos, tickrate, cfg),
		Rot:      interp.NewBuffer(node.Rot, tickrate, cfg),
		Scale:    interp.NewBuffer(node.Scale, tickrate, cfg),
		node:     node,
		tickrate: tickrate,
		cfg:      cfg,
		attrs:    map[string]*interp.Buffer[interp.Scalar]{},
	}
	s.Pos.Bind(&node.Pos)
	s.Rot.Bind(&node.Rot)
	s.Scale.Bind(&node.Scale)
	return s
}

// Attr returns the buffer of an attribute, nil if the attribute was never updated
func (s *Smoother) Attr(name string) *interp.Buffer[interp.Scalar] {
	return s.attrs[name]
}

// AttrNames returns the names of the smoothed attributes
func (s *Smoother) AttrNames() []string {
	names := make([]string, 0, len(s.attrs))
	for name := range s.attrs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (s *Smoother) attr(name string) *interp.Buffer[interp.Scalar] {
	b := s.attrs[name]
	if b == nil {
		node := s.node
		b = interp.NewBuffer(interp.Scalar(node.Attrs[name]), s.tickrate, s.cfg)
		b.SetSetter(func(v interp.Scalar) {
			node.Attrs[name] = float64(v)
		})
		s.attrs[name] = b
	}
	return b
}

// Push queues the fields of a snapshot as interpolation targets
func (s *Smoother) Push(st *proto.EntityState) {
	if st.Pos != nil {
		s.Pos.Push(*st.Pos)
	}
	if st.Rot != nil {
		s.Rot.Push(*st.Rot)
	}
	if st.Scale != nil {
		s.Scale.Push(*st.Scale)
	}
	for _, name := range st.DropAttrs {
		delete(s.attrs, name)
		delete(s.node.Attrs, name)
	}
	for name, v := range st.Attrs {
		s.attr(name).Push(interp.Scalar(v))
	}
	applyData(s.node, st.Data, st.DropData)
}

// Tick advances every buffer by dt seconds
func (s *Smoother) Tick(dt float64) {
	s.Pos.Tick(dt)
	s.Rot.Tick(dt)
	s.Scale.Tick(dt)
	for _, b := range s.attrs {
		b.Tick(dt)
	}
}
