package scene

import (
	"encoding/json"
	"os"
	"sync"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/roomsync/roomsync/engine/common"
	"github.com/roomsync/roomsync/engine/proto"
)

// Loader materializes the content of rooms
type Loader interface {
	// Build returns the root node of the room content
	Build(roomID common.ID, level proto.Level) (*Node, error)
	// Clear releases the content of the room
	Clear(roomID common.ID)
}

// ErrUnknownLevel is returned when building a level name the loader does not know
var ErrUnknownLevel = errors.New("unknown level")

// LevelLoader builds rooms from registered level templates or from serialized nodes
type LevelLoader struct {
	lock   sync.RWMutex
	levels map[string]map[string]*proto.NodeData
	roots  map[common.ID]*Node
}

// NewLevelLoader creates a loader without levels, the empty level name builds an empty room
func NewLevelLoader() *LevelLoader {
	return &LevelLoader{
		levels: map[string]map[string]*proto.NodeData{},
		roots:  map[common.ID]*Node{},
	}
}

// RegisterLevel registers a level template
func (l *LevelLoader) RegisterLevel(name string, nodes map[string]*proto.NodeData) {
	l.lock.Lock()
	l.levels[name] = nodes
	l.lock.Unlock()
}

// LoadLevelsFile registers the levels of a JSON file shaped as {name: {guid: node}}
func (l *LevelLoader) LoadLevelsFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrap(err, "read levels file")
	}
	var levels map[string]map[string]*proto.NodeData
	if err := json.Unmarshal(data, &levels); err != nil {
		return errors.Wrapf(err, "parse levels file %s", path)
	}
	for name, nodes := range levels {
		l.RegisterLevel(name, nodes)
	}
	return nil
}

// Build builds the room root. Serialized nodes take precedence over the level name, and a
// materialized level is never replaced by its template.
func (l *LevelLoader) Build(roomID common.ID, level proto.Level) (*Node, error) {
	nodes := level.Nodes
	fromTemplate := false
	if len(nodes) == 0 && level.Name != "" && !level.Materialized {
		l.lock.RLock()
		tmpl, ok := l.levels[level.Name]
		l.lock.RUnlock()
		if !ok {
			return nil, errors.Wrapf(ErrUnknownLevel, "%q", level.Name)
		}
		nodes = tmpl
		fromTemplate = true
	}
	if err := Validate(nodes); err != nil {
		return nil, errors.Wrapf(err, "level %q", level.Name)
	}

	root := NewNode("", "room-"+roomID.String(), false)
	// guids of a template are shared by every room built from it
	if fromTemplate {
		nodes = renameGUIDs(nodes)
	}
	Build(root, nodes)

	l.lock.Lock()
	l.roots[roomID] = root
	l.lock.Unlock()
	return root, nil
}

// Clear detaches the content of the room
func (l *LevelLoader) Clear(roomID common.ID) {
	l.lock.Lock()
	root := l.roots[roomID]
	delete(l.roots, roomID)
	l.lock.Unlock()

	if root == nil {
		return
	}
	root.SetObserver(nil)
	for _, c := range append([]*Node(nil), root.children...) {
		c.Remove()
	}
}

func renameGUIDs(nodes map[string]*proto.NodeData) map[string]*proto.NodeData {
	renamed := make(map[string]string, len(nodes))
	for guid := range nodes {
		renamed[guid] = uuid.NewString()
	}
	out := make(map[string]*proto.NodeData, len(nodes))
	for guid, nd := range nodes {
		cp := *nd
		if p, ok := renamed[nd.Parent]; ok {
			cp.Parent = p
		}
		out[renamed[guid]] = &cp
	}
	return out
}
