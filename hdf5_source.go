package h5viewer

import (
	"fmt"
	"path"
	"strconv"
	"strings"

	"github.com/scigolib/hdf5"
)

// h5Group is the part of *hdf5.Group that the tree walk uses.
type h5Group interface {
	hdf5.Object
	Children() []hdf5.Object
}

// HDF5Source is a FileSource reading HDF5 files with the pure-Go scigolib reader.
type HDF5Source struct {
	filename    string
	file        *hdf5.File
	root        h5Group
	maxElements int
}

// OpenHDF5Source opens filename for reading.
func OpenHDF5Source(filename string, maxElements int) (*HDF5Source, error) {
	f, err := hdf5.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("could not open %q: %w", filename, err)
	}
	return &HDF5Source{filename: filename, file: f, root: f.Root(), maxElements: maxElements}, nil
}

// Close releases the file.
func (s *HDF5Source) Close() error {
	return s.file.Close()
}

// memberName strips any path the reader left in an object's name.
func memberName(obj hdf5.Object) string {
	name := strings.Trim(obj.Name(), "/")
	if name == "" {
		return "/"
	}
	return path.Base(name)
}

// Structure walks the whole file and returns the root group node.
func (s *HDF5Source) Structure() (*Node, error) {
	return s.groupNode(s.root, "/")
}

func (s *HDF5Source) groupNode(g h5Group, p string) (*Node, error) {
	node := &Node{Name: baseName(p), Type: GroupNode, Path: p, Children: []*Node{}}
	for _, child := range g.Children() {
		cp := childPath(p, memberName(child))
		switch c := child.(type) {
		case *hdf5.Dataset:
			shape, dtype, err := datasetInfo(c)
			if err != nil {
				ProblemLogger.Printf("%s: cannot read info of dataset %s: %v", s.filename, cp, err)
			}
			node.Children = append(node.Children, &Node{
				Name:  memberName(c),
				Type:  DatasetNode,
				Path:  cp,
				Shape: shape,
				Dtype: dtype,
			})
		case h5Group:
			sub, err := s.groupNode(c, cp)
			if err != nil {
				return nil, err
			}
			node.Children = append(node.Children, sub)
		}
	}
	return node, nil
}

// lookup finds the object at the absolute path p.
func (s *HDF5Source) lookup(p string) (hdf5.Object, error) {
	p = CleanObjectPath(p)
	var obj hdf5.Object = s.root
	if p == "/" {
		return obj, nil
	}
	for _, part := range strings.Split(strings.TrimPrefix(p, "/"), "/") {
		g, ok := obj.(h5Group)
		if !ok {
			return nil, fmt.Errorf("%s: %w", p, ErrNotFound)
		}
		var next hdf5.Object
		for _, child := range g.Children() {
			if memberName(child) == part {
				next = child
				break
			}
		}
		if next == nil {
			return nil, fmt.Errorf("%s: %w", p, ErrNotFound)
		}
		obj = next
	}
	return obj, nil
}

// Dataset reads all values of the dataset at p.
func (s *HDF5Source) Dataset(p string) (*DatasetContents, error) {
	obj, err := s.lookup(p)
	if err != nil {
		return nil, err
	}
	ds, ok := obj.(*hdf5.Dataset)
	if !ok {
		return nil, fmt.Errorf("%s: %w", p, ErrNotDataset)
	}
	shape, dtype, err := datasetInfo(ds)
	if err != nil {
		return nil, err
	}
	if err := checkSize(shape, s.maxElements); err != nil {
		return nil, err
	}

	var data any
	switch dtype {
	case "string":
		vals, err := ds.ReadStrings()
		if err != nil {
			return nil, err
		}
		data, err = nest(vals, shape)
		if err != nil {
			return nil, err
		}
	case "compound":
		vals, err := ds.ReadCompound()
		if err != nil {
			return nil, err
		}
		records := make([]map[string]any, len(vals))
		for i, v := range vals {
			records[i] = jsonSafe(map[string]any(v)).(map[string]any)
		}
		data, err = nest(records, shape)
		if err != nil {
			return nil, err
		}
	default:
		vals, err := ds.Read()
		if err != nil {
			return nil, err
		}
		data, err = nest(vals, shape)
		if err != nil {
			return nil, err
		}
	}
	return &DatasetContents{Data: data, Shape: shape, Dtype: dtype}, nil
}

// Attributes reads every attribute of the group or dataset at p.
func (s *HDF5Source) Attributes(p string) (Attributes, error) {
	obj, err := s.lookup(p)
	if err != nil {
		return nil, err
	}
	result := make(Attributes)
	switch o := obj.(type) {
	case *hdf5.Group:
		attrs, err := o.Attributes()
		if err != nil {
			return nil, err
		}
		for _, a := range attrs {
			v, err := a.ReadValue()
			if err != nil {
				return nil, fmt.Errorf("attribute %q: %w", a.Name, err)
			}
			result[a.Name] = jsonSafe(v)
		}
	case *hdf5.Dataset:
		attrs, err := o.Attributes()
		if err != nil {
			return nil, err
		}
		for _, a := range attrs {
			v, err := a.ReadValue()
			if err != nil {
				return nil, fmt.Errorf("attribute %q: %w", a.Name, err)
			}
			result[a.Name] = jsonSafe(v)
		}
	}
	return result, nil
}

// datasetInfo returns the shape and dtype name of ds.
func datasetInfo(ds *hdf5.Dataset) ([]uint64, string, error) {
	info, err := ds.Info()
	if err != nil {
		return nil, "", err
	}
	return parseDatasetInfo(info)
}

// parseDatasetInfo decodes the reader's one-line description of a dataset,
// which looks like "Dataset: float (size=8 bytes), 2D array [3 x 4], ...".
func parseDatasetInfo(info string) ([]uint64, string, error) {
	body := strings.TrimPrefix(strings.TrimSpace(info), "Dataset:")
	parts := strings.SplitN(body, ",", 3)
	if len(parts) < 2 {
		return nil, "", fmt.Errorf("cannot parse dataset info %q", info)
	}
	dtype := dtypeName(strings.TrimSpace(parts[0]))

	space := strings.TrimSpace(parts[1])
	switch space {
	case "scalar":
		return []uint64{}, dtype, nil
	case "null":
		return []uint64{0}, dtype, nil
	}
	open := strings.IndexByte(space, '[')
	shut := strings.LastIndexByte(space, ']')
	if open < 0 || shut < open {
		return nil, dtype, fmt.Errorf("cannot parse dataspace %q", space)
	}
	fields := strings.FieldsFunc(space[open+1:shut], func(r rune) bool {
		return r == ' ' || r == 'x'
	})
	shape := make([]uint64, 0, len(fields))
	for _, f := range fields {
		d, err := strconv.ParseUint(f, 10, 64)
		if err != nil {
			return nil, dtype, fmt.Errorf("cannot parse dataspace %q: %w", space, err)
		}
		shape = append(shape, d)
	}
	return shape, dtype, nil
}

// dtypeName converts "integer (size=4 bytes)" style class descriptions into
// numpy-like names.
func dtypeName(class string) string {
	name, size := class, 0
	if i := strings.Index(class, "(size="); i >= 0 {
		name = strings.TrimSpace(class[:i])
		digits := strings.TrimSuffix(strings.TrimPrefix(class[i:], "(size="), " bytes)")
		n, err := strconv.Atoi(digits)
		if err != nil {
			ProblemLogger.Printf("cannot parse datatype size of %q: %v", class, err)
		} else {
			size = n
		}
	}
	switch name {
	case "integer":
		if size > 0 {
			return fmt.Sprintf("int%d", 8*size)
		}
		return "int"
	case "float":
		if size > 0 {
			return fmt.Sprintf("float%d", 8*size)
		}
		return "float"
	}
	return name
}
