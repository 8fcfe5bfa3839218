package viewer

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/usnistgov/h5viewer"
)

// NoFileText is the text of the tree root before any file is loaded.
const NoFileText = "No file loaded"

// TreeStore holds the structure tree shown in the left-hand panel.
type TreeStore struct {
	root     *h5viewer.Node
	expanded bool
	sync.Mutex
}

// NewTreeStore returns a store whose expanded root reads "No file loaded".
func NewTreeStore() *TreeStore {
	return &TreeStore{
		root:     &h5viewer.Node{Name: NoFileText, Type: h5viewer.GroupNode, Path: "/"},
		expanded: true,
	}
}

// Root returns the current root node.
func (t *TreeStore) Root() *h5viewer.Node {
	t.Lock()
	defer t.Unlock()
	return t.root
}

// SetRoot replaces the whole tree.
func (t *TreeStore) SetRoot(root *h5viewer.Node) {
	t.Lock()
	defer t.Unlock()
	t.root = root
	t.expanded = true
}

// Expanded reports whether the root is expanded.
func (t *TreeStore) Expanded() bool {
	t.Lock()
	defer t.Unlock()
	return t.expanded
}

// Find returns the record at the object path p, or nil.
func (t *TreeStore) Find(p string) *h5viewer.Node {
	return t.Root().Find(p)
}

// Render draws the tree as indented text, one node per line.
func (t *TreeStore) Render() string {
	var b strings.Builder
	var walk func(n *h5viewer.Node, depth int)
	walk = func(n *h5viewer.Node, depth int) {
		b.WriteString(strings.Repeat("  ", depth))
		b.WriteString(n.Name)
		if n.IsDataset() {
			fmt.Fprintf(&b, "  %v %s", n.Shape, n.Dtype)
		}
		b.WriteByte('\n')
		for _, c := range n.Children {
			walk(c, depth+1)
		}
	}
	walk(t.Root(), 0)
	return b.String()
}

// ValueColumn is the only column of the Data grid.
const ValueColumn = "Value"

// GridStore holds the rows of the Data grid, one per element of the
// dataset's outermost dimension.
type GridStore struct {
	Columns []string
	Rows    []any
}

// NewGridStore makes a single-column grid from decoded dataset values.
// A scalar becomes a single row.
func NewGridStore(data any) *GridStore {
	g := &GridStore{Columns: []string{ValueColumn}}
	if rows, ok := data.([]any); ok {
		g.Rows = rows
	} else {
		g.Rows = []any{data}
	}
	return g
}

// Len is the number of rows.
func (g *GridStore) Len() int {
	return len(g.Rows)
}

// PropertyGrid shows an object's attributes as name/value pairs.
type PropertyGrid struct {
	Source map[string]any
}

// Names returns the property names in sorted order.
func (p *PropertyGrid) Names() []string {
	names := make([]string, 0, len(p.Source))
	for k := range p.Source {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// Panel titles.
const (
	DataTitle       = "Data"
	AttributesTitle = "Attributes"
)

// Panel is one item of the content panel. A Data panel has either Grid or
// Error set; an Attributes panel has Properties.
type Panel struct {
	Title      string
	Grid       *GridStore
	Properties *PropertyGrid
	Error      string
}

// Text is the message an error panel displays.
func (p Panel) Text() string {
	if p.Error != "" {
		return "Error: " + p.Error
	}
	return ""
}
