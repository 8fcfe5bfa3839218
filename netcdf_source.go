package h5viewer

import (
	"fmt"
	"strings"

	"github.com/batchatco/go-native-netcdf/netcdf"
	"github.com/batchatco/go-native-netcdf/netcdf/api"
)

// NetCDFSource is a FileSource for NetCDF classic and NetCDF-4 files. Groups
// map to groups and variables map to datasets.
type NetCDFSource struct {
	filename    string
	root        api.Group
	maxElements int
}

// OpenNetCDFSource opens filename for reading.
func OpenNetCDFSource(filename string, maxElements int) (*NetCDFSource, error) {
	g, err := netcdf.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("could not open %q: %w", filename, err)
	}
	return &NetCDFSource{filename: filename, root: g, maxElements: maxElements}, nil
}

// Close releases the file.
func (s *NetCDFSource) Close() error {
	s.root.Close()
	return nil
}

// Structure walks the whole file and returns the root group node.
func (s *NetCDFSource) Structure() (*Node, error) {
	return s.groupNode(s.root, "/")
}

func (s *NetCDFSource) groupNode(g api.Group, p string) (*Node, error) {
	node := &Node{Name: baseName(p), Type: GroupNode, Path: p, Children: []*Node{}}
	for _, name := range g.ListSubgroups() {
		sub, err := g.GetGroup(name)
		if err != nil {
			return nil, fmt.Errorf("group %s: %w", childPath(p, name), err)
		}
		child, err := s.groupNode(sub, childPath(p, name))
		sub.Close()
		if err != nil {
			return nil, err
		}
		node.Children = append(node.Children, child)
	}
	for _, name := range g.ListVariables() {
		vg, err := g.GetVarGetter(name)
		if err != nil {
			ProblemLogger.Printf("%s: cannot read variable %s: %v", s.filename, childPath(p, name), err)
			continue
		}
		node.Children = append(node.Children, &Node{
			Name:  name,
			Type:  DatasetNode,
			Path:  childPath(p, name),
			Shape: varShape(vg),
			Dtype: vg.Type(),
		})
	}
	return node, nil
}

func varShape(vg api.VarGetter) []uint64 {
	dims := vg.Shape()
	shape := make([]uint64, len(dims))
	for i, d := range dims {
		shape[i] = uint64(d)
	}
	return shape
}

// resolve walks to the group holding the object at p. It returns that
// group, the final path element ("" for the root), and a cleanup function
// closing any subgroups opened on the way.
func (s *NetCDFSource) resolve(p string) (api.Group, string, func(), error) {
	p = CleanObjectPath(p)
	if p == "/" {
		return s.root, "", func() {}, nil
	}
	parts := strings.Split(strings.TrimPrefix(p, "/"), "/")
	var opened []api.Group
	cleanup := func() {
		for i := len(opened) - 1; i >= 0; i-- {
			opened[i].Close()
		}
	}
	g := s.root
	for _, part := range parts[:len(parts)-1] {
		sub, err := g.GetGroup(part)
		if err != nil {
			cleanup()
			return nil, "", nil, fmt.Errorf("%s: %w", p, ErrNotFound)
		}
		opened = append(opened, sub)
		g = sub
	}
	return g, parts[len(parts)-1], cleanup, nil
}

func hasName(names []string, name string) bool {
	for _, n := range names {
		if n == name {
			return true
		}
	}
	return false
}

// Dataset reads all values of the variable at p.
func (s *NetCDFSource) Dataset(p string) (*DatasetContents, error) {
	g, name, cleanup, err := s.resolve(p)
	if err != nil {
		return nil, err
	}
	defer cleanup()
	if name == "" || hasName(g.ListSubgroups(), name) {
		return nil, fmt.Errorf("%s: %w", p, ErrNotDataset)
	}
	if !hasName(g.ListVariables(), name) {
		return nil, fmt.Errorf("%s: %w", p, ErrNotFound)
	}
	vg, err := g.GetVarGetter(name)
	if err != nil {
		return nil, err
	}
	shape := varShape(vg)
	if err := checkSize(shape, s.maxElements); err != nil {
		return nil, err
	}
	vals, err := vg.Values()
	if err != nil {
		return nil, err
	}
	return &DatasetContents{Data: jsonSafe(vals), Shape: shape, Dtype: vg.Type()}, nil
}

// Attributes reads the attributes of the group or variable at p.
func (s *NetCDFSource) Attributes(p string) (Attributes, error) {
	g, name, cleanup, err := s.resolve(p)
	if err != nil {
		return nil, err
	}
	defer cleanup()

	var amap api.AttributeMap
	switch {
	case name == "":
		amap = g.Attributes()
	case hasName(g.ListSubgroups(), name):
		sub, err := g.GetGroup(name)
		if err != nil {
			return nil, err
		}
		defer sub.Close()
		amap = sub.Attributes()
	case hasName(g.ListVariables(), name):
		vg, err := g.GetVarGetter(name)
		if err != nil {
			return nil, err
		}
		amap = vg.Attributes()
	default:
		return nil, fmt.Errorf("%s: %w", p, ErrNotFound)
	}
	return attributeMap(amap), nil
}

func attributeMap(amap api.AttributeMap) Attributes {
	result := make(Attributes)
	if amap == nil {
		return result
	}
	for _, key := range amap.Keys() {
		if v, has := amap.Get(key); has {
			result[key] = jsonSafe(v)
		}
	}
	return result
}
