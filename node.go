package h5viewer

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"path"
	"reflect"
	"strings"
)

// NodeType distinguishes the two kinds of object in a data file.
type NodeType string

// Names for the possible values of NodeType
const (
	GroupNode   NodeType = "group"
	DatasetNode NodeType = "dataset"
)

// Node is one entry of the file structure tree, as returned by get_structure.
// Groups carry Children; datasets carry Shape and Dtype.
type Node struct {
	Name     string   `json:"name"`
	Type     NodeType `json:"type"`
	Path     string   `json:"path"`
	Children []*Node  `json:"children"`
	Shape    []uint64 `json:"shape"`
	Dtype    string   `json:"dtype"`
}

type groupJSON struct {
	Name     string   `json:"name"`
	Type     NodeType `json:"type"`
	Path     string   `json:"path"`
	Children []*Node  `json:"children"`
}

type datasetJSON struct {
	Name  string   `json:"name"`
	Type  NodeType `json:"type"`
	Path  string   `json:"path"`
	Shape []uint64 `json:"shape"`
	Dtype string   `json:"dtype"`
}

// MarshalJSON always writes "children" for a group and "shape" for a
// dataset, as [] when empty, and never the other kind's fields.
func (n Node) MarshalJSON() ([]byte, error) {
	if n.Type == DatasetNode {
		shape := n.Shape
		if shape == nil {
			shape = []uint64{}
		}
		return json.Marshal(datasetJSON{Name: n.Name, Type: n.Type, Path: n.Path, Shape: shape, Dtype: n.Dtype})
	}
	children := n.Children
	if children == nil {
		children = []*Node{}
	}
	return json.Marshal(groupJSON{Name: n.Name, Type: n.Type, Path: n.Path, Children: children})
}

// IsDataset reports whether n is a dataset (a leaf of the tree).
func (n *Node) IsDataset() bool {
	return n != nil && n.Type == DatasetNode
}

// Find returns the node at the absolute path p, or nil.
func (n *Node) Find(p string) *Node {
	p = CleanObjectPath(p)
	if n == nil {
		return nil
	}
	if n.Path == p {
		return n
	}
	for _, c := range n.Children {
		if c.Path == p || (c.Type == GroupNode && strings.HasPrefix(p, c.Path+"/")) {
			if found := c.Find(p); found != nil {
				return found
			}
		}
	}
	return nil
}

// CountNodes returns the number of groups and datasets in the tree rooted at n.
func (n *Node) CountNodes() (ngroups, ndatasets int) {
	if n == nil {
		return 0, 0
	}
	if n.Type == DatasetNode {
		return 0, 1
	}
	ngroups = 1
	for _, c := range n.Children {
		g, d := c.CountNodes()
		ngroups += g
		ndatasets += d
	}
	return
}

// DatasetContents is the body of a successful get_dataset reply.
type DatasetContents struct {
	Data  any      `json:"data"`
	Shape []uint64 `json:"shape"`
	Dtype string   `json:"dtype"`
}

// Attributes maps attribute names to their decoded values.
type Attributes map[string]any

// ObjectRef names one object inside one file.
type ObjectRef struct {
	File string
	Path string
}

// Errors returned by file sources.
var (
	ErrUnknownFormat = errors.New("not an HDF5 or NetCDF file")
	ErrNotFound      = errors.New("object not found")
	ErrNotDataset    = errors.New("object is not a dataset")
	ErrTooLarge      = errors.New("dataset too large to load")
	ErrOutsideRoot   = errors.New("file is outside the data root")
)

// CleanObjectPath normalizes an object path to an absolute, slash-separated
// path with no trailing slash. The root group is "/".
func CleanObjectPath(p string) string {
	if p == "" {
		return "/"
	}
	return path.Clean("/" + p)
}

// childPath joins a parent group path and a child name.
func childPath(parent, name string) string {
	return path.Join(CleanObjectPath(parent), strings.Trim(name, "/"))
}

// baseName returns the last element of an object path, "/" for the root.
func baseName(p string) string {
	p = CleanObjectPath(p)
	if p == "/" {
		return "/"
	}
	return path.Base(p)
}

// NumElements is the product of the dimensions of shape; 1 for a scalar.
func NumElements(shape []uint64) uint64 {
	n := uint64(1)
	for _, d := range shape {
		n *= d
	}
	return n
}

// checkSize refuses to load datasets with more than maxElements values.
// A non-positive maxElements means no limit.
func checkSize(shape []uint64, maxElements int) error {
	if maxElements <= 0 {
		return nil
	}
	if n := NumElements(shape); n > uint64(maxElements) {
		return fmt.Errorf("%w: %d elements, limit is %d", ErrTooLarge, n, maxElements)
	}
	return nil
}

// nest reshapes a flat, row-major slice into nested []any lists with the
// given shape. A scalar (empty shape) with one value returns the bare value.
func nest[T any](flat []T, shape []uint64) (any, error) {
	if len(shape) == 0 {
		if len(flat) == 1 {
			return jsonSafe(flat[0]), nil
		}
		return jsonSafeSlice(flat), nil
	}
	if uint64(len(flat)) != NumElements(shape) {
		return nil, fmt.Errorf("have %d values, shape %v needs %d", len(flat), shape, NumElements(shape))
	}
	if len(shape) == 1 {
		return jsonSafeSlice(flat), nil
	}
	stride := int(NumElements(shape[1:]))
	out := make([]any, shape[0])
	for i := range out {
		sub, err := nest(flat[i*stride:(i+1)*stride], shape[1:])
		if err != nil {
			return nil, err
		}
		out[i] = sub
	}
	return out, nil
}

func jsonSafeSlice[T any](vals []T) []any {
	out := make([]any, len(vals))
	for i, v := range vals {
		out[i] = jsonSafe(v)
	}
	return out
}

// jsonSafe replaces values encoding/json cannot represent (NaN and the
// infinities) with nil, so they appear as null.
func jsonSafe(v any) any {
	switch x := v.(type) {
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return nil
		}
	case float32:
		if math.IsNaN(float64(x)) || math.IsInf(float64(x), 0) {
			return nil
		}
	case []float64:
		return jsonSafeSlice(x)
	case []float32:
		return jsonSafeSlice(x)
	case []any:
		for i := range x {
			x[i] = jsonSafe(x[i])
		}
	case map[string]any:
		for k := range x {
			x[k] = jsonSafe(x[k])
		}
	case string, []byte, []string:
	default:
		// Nested numeric slices such as [][]float32.
		rv := reflect.ValueOf(v)
		if rv.Kind() == reflect.Slice || rv.Kind() == reflect.Array {
			out := make([]any, rv.Len())
			for i := range out {
				out[i] = jsonSafe(rv.Index(i).Interface())
			}
			return out
		}
	}
	return v
}
