package h5viewer

import (
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"

	"github.com/scigolib/hdf5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDatasetInfo(t *testing.T) {
	tests := []struct {
		info  string
		shape []uint64
		dtype string
	}{
		{"Dataset: float (size=8 bytes), 1D array [10], contiguous", []uint64{10}, "float64"},
		{"Dataset: float (size=4 bytes), 2D array [3 x 4], chunked", []uint64{3, 4}, "float32"},
		{"Dataset: integer (size=2 bytes), 3D array [2 3 4], contiguous", []uint64{2, 3, 4}, "int16"},
		{"Dataset: integer (size=8 bytes), scalar, compact", []uint64{}, "int64"},
		{"Dataset: string (size=16 bytes), 1D array [2], contiguous", []uint64{2}, "string"},
		{"Dataset: compound (size=24 bytes), null, contiguous", []uint64{0}, "compound"},
	}
	for _, tc := range tests {
		shape, dtype, err := parseDatasetInfo(tc.info)
		if err != nil {
			t.Errorf("parseDatasetInfo(%q) error: %v", tc.info, err)
			continue
		}
		assert.Equal(t, tc.shape, shape, tc.info)
		assert.Equal(t, tc.dtype, dtype, tc.info)
	}

	for _, bad := range []string{"", "Dataset: float", "Dataset: float (size=8 bytes), 1D array 10", "Dataset: float (size=8 bytes), 1D array [ten]"} {
		if _, _, err := parseDatasetInfo(bad); err == nil {
			t.Errorf("parseDatasetInfo(%q) succeeded, want error", bad)
		}
	}
}

func TestDtypeName(t *testing.T) {
	cases := map[string]string{
		"integer (size=1 bytes)": "int8",
		"integer (size=4 bytes)": "int32",
		"float (size=8 bytes)":   "float64",
		"array (size=12 bytes)":  "array",
		"class_9 (size=8 bytes)": "class_9",
		"integer":                "int",
	}
	for in, want := range cases {
		if got := dtypeName(in); got != want {
			t.Errorf("dtypeName(%q) is %q, want %q", in, got, want)
		}
	}
}

// writeHDF5Fixture writes, in this order, the root-level datasets
// /temperature (with attributes) and /matrix, an empty group /empty, and a
// fixed-length string dataset /names.
func writeHDF5Fixture(t *testing.T) string {
	t.Helper()
	fname := filepath.Join(t.TempDir(), "fixture.h5")
	fw, err := hdf5.CreateForWrite(fname, hdf5.CreateTruncate)
	require.NoError(t, err)

	temp, err := fw.CreateDataset("/temperature", hdf5.Float64, []uint64{5})
	require.NoError(t, err)
	require.NoError(t, temp.Write([]float64{1.5, 2.5, 3.5, 4.5, 5.5}))
	require.NoError(t, temp.WriteAttribute("units", "Kelvin"))
	require.NoError(t, temp.WriteAttribute("sensor_id", int32(42)))

	matrix, err := fw.CreateDataset("/matrix", hdf5.Int32, []uint64{2, 3})
	require.NoError(t, err)
	require.NoError(t, matrix.Write([]int32{1, 2, 3, 4, 5, 6}))

	_, err = fw.CreateGroup("/empty")
	require.NoError(t, err)

	names, err := fw.CreateDataset("/names", hdf5.String, []uint64{3}, hdf5.WithStringSize(8))
	require.NoError(t, err)
	require.NoError(t, names.Write([]string{"alpha", "beta", "gamma"}))

	require.NoError(t, fw.Close())
	return fname
}

func TestHDF5Source(t *testing.T) {
	fname := writeHDF5Fixture(t)
	src, err := OpenSource(fname, 100)
	require.NoError(t, err)
	defer src.Close()
	require.IsType(t, &HDF5Source{}, src)

	root, err := src.Structure()
	require.NoError(t, err)
	assert.Equal(t, "/", root.Path)
	assert.Equal(t, GroupNode, root.Type)

	// Children keep the order they were written in.
	var paths []string
	for _, c := range root.Children {
		paths = append(paths, c.Path)
	}
	assert.Equal(t, []string{"/temperature", "/matrix", "/empty", "/names"}, paths)

	empty := root.Find("/empty")
	require.NotNil(t, empty)
	assert.Equal(t, GroupNode, empty.Type)
	assert.Equal(t, "empty", empty.Name)
	assert.NotNil(t, empty.Children)
	assert.Empty(t, empty.Children)
	_, err = src.Dataset("/empty")
	assert.True(t, errors.Is(err, ErrNotDataset))
	_, err = src.Dataset("/empty/nothing")
	assert.True(t, errors.Is(err, ErrNotFound))

	names, err := src.Dataset("/names")
	require.NoError(t, err)
	assert.Equal(t, "string", names.Dtype)
	assert.Equal(t, []uint64{3}, names.Shape)
	assert.Equal(t, []any{"alpha", "beta", "gamma"}, names.Data)

	temp := root.Find("/temperature")
	require.NotNil(t, temp, "structure is %+v", root)
	assert.Equal(t, DatasetNode, temp.Type)
	assert.Equal(t, "temperature", temp.Name)
	assert.Equal(t, []uint64{5}, temp.Shape)
	assert.Equal(t, "float64", temp.Dtype)

	contents, err := src.Dataset("/temperature")
	require.NoError(t, err)
	assert.Equal(t, []any{1.5, 2.5, 3.5, 4.5, 5.5}, contents.Data)
	assert.Equal(t, []uint64{5}, contents.Shape)

	matrix, err := src.Dataset("matrix")
	require.NoError(t, err)
	assert.Equal(t, []uint64{2, 3}, matrix.Shape)
	assert.Equal(t, "int32", matrix.Dtype)
	assert.Equal(t, []any{[]any{1.0, 2.0, 3.0}, []any{4.0, 5.0, 6.0}}, matrix.Data)

	attrs, err := src.Attributes("/temperature")
	require.NoError(t, err)
	assert.Equal(t, "Kelvin", attrs["units"])
	assert.EqualValues(t, 42, attrs["sensor_id"])

	rootAttrs, err := src.Attributes("/")
	require.NoError(t, err)
	assert.NotNil(t, rootAttrs)

	_, err = src.Dataset("/")
	assert.True(t, errors.Is(err, ErrNotDataset))
	_, err = src.Dataset("/nothing")
	assert.True(t, errors.Is(err, ErrNotFound))
	_, err = src.Attributes("/temperature/deeper")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestHDF5SourceTooLarge(t *testing.T) {
	fname := writeHDF5Fixture(t)
	src, err := OpenHDF5Source(fname, 4)
	require.NoError(t, err)
	defer src.Close()
	_, err = src.Dataset("/temperature")
	assert.True(t, errors.Is(err, ErrTooLarge))
}

// fakeGroup nests real objects below made-up groups, since the writer only
// links objects into the root group.
type fakeGroup struct {
	name     string
	children []hdf5.Object
}

func (g fakeGroup) Name() string            { return g.name }
func (g fakeGroup) Children() []hdf5.Object { return g.children }

func TestHDF5SourceNestedGroups(t *testing.T) {
	fname := writeHDF5Fixture(t)
	src, err := OpenHDF5Source(fname, 0)
	require.NoError(t, err)
	defer src.Close()

	var temperature hdf5.Object
	for _, c := range src.root.Children() {
		if memberName(c) == "temperature" {
			temperature = c
		}
	}
	require.NotNil(t, temperature)

	src.root = fakeGroup{name: "/", children: []hdf5.Object{
		fakeGroup{name: "g", children: []hdf5.Object{
			fakeGroup{name: "/g/empty"},
			fakeGroup{name: "sub", children: []hdf5.Object{temperature}},
		}},
	}}

	root, err := src.Structure()
	require.NoError(t, err)
	g := root.Find("/g")
	require.NotNil(t, g)
	require.Len(t, g.Children, 2)
	assert.Equal(t, "/g/empty", g.Children[0].Path)
	assert.Equal(t, "empty", g.Children[0].Name)
	assert.Equal(t, []*Node{}, g.Children[0].Children)

	d := root.Find("/g/sub/temperature")
	require.NotNil(t, d, "structure is %+v", root)
	assert.Equal(t, "temperature", d.Name)
	assert.Equal(t, DatasetNode, d.Type)
	assert.Equal(t, []uint64{5}, d.Shape)

	contents, err := src.Dataset("/g/sub/temperature")
	require.NoError(t, err)
	assert.Equal(t, []any{1.5, 2.5, 3.5, 4.5, 5.5}, contents.Data)

	attrs, err := src.Attributes("g/sub/temperature")
	require.NoError(t, err)
	assert.Equal(t, "Kelvin", attrs["units"])

	_, err = src.Dataset("/g/sub")
	assert.True(t, errors.Is(err, ErrNotDataset))
	_, err = src.Dataset("/g/other/temperature")
	assert.True(t, errors.Is(err, ErrNotFound))
}

// A scalar dataspace decodes to an empty shape and a bare value.
func TestHDF5ScalarDecoding(t *testing.T) {
	shape, dtype, err := parseDatasetInfo("Dataset: float (size=8 bytes), scalar, contiguous")
	require.NoError(t, err)
	assert.Equal(t, "float64", dtype)
	data, err := nest([]float64{2.5}, shape)
	require.NoError(t, err)

	b, err := json.Marshal(DatasetContents{Data: data, Shape: shape, Dtype: dtype})
	require.NoError(t, err)
	assert.JSONEq(t, `{"data":2.5,"shape":[],"dtype":"float64"}`, string(b))
}

func TestDtypeNameBadSize(t *testing.T) {
	problems, _ := captureLoggers(t)
	assert.Equal(t, "int", dtypeName("integer (size=four bytes)"))
	assert.Contains(t, problems.String(), "cannot parse datatype size")
	assert.Equal(t, "float16", dtypeName("float (size=2 bytes)"))
}
