package h5viewer

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/batchatco/go-native-netcdf/netcdf/api"
	"github.com/batchatco/go-native-netcdf/netcdf/cdf"
	"github.com/batchatco/go-native-netcdf/netcdf/util"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func attrMap(t *testing.T, key string, value any) api.AttributeMap {
	t.Helper()
	om, err := util.NewOrderedMap([]string{key}, map[string]any{key: value})
	require.NoError(t, err)
	return om
}

// writeNetCDFFixture writes a classic NetCDF file with one 1-D and one 2-D variable.
func writeNetCDFFixture(t *testing.T) string {
	t.Helper()
	fname := filepath.Join(t.TempDir(), "fixture.nc")
	cw, err := cdf.NewCDFWriter(fname)
	require.NoError(t, err)
	require.NoError(t, cw.AddGlobalAttrs(attrMap(t, "title", "viewer test")))
	require.NoError(t, cw.AddVar("temp", api.Variable{
		Values:     []float64{270.5, 271.0, 272.25},
		Dimensions: []string{"time"},
		Attributes: attrMap(t, "units", "K"),
	}))
	require.NoError(t, cw.AddVar("grid", api.Variable{
		Values:     [][]int32{{1, 2}, {3, 4}},
		Dimensions: []string{"y", "x"},
		Attributes: attrMap(t, "long_name", "counts"),
	}))
	require.NoError(t, cw.Close())
	return fname
}

func TestNetCDFSource(t *testing.T) {
	fname := writeNetCDFFixture(t)
	src, err := OpenSource(fname, 0)
	require.NoError(t, err)
	defer src.Close()
	require.IsType(t, &NetCDFSource{}, src)

	root, err := src.Structure()
	require.NoError(t, err)
	assert.Equal(t, "/", root.Name)
	ngroups, ndatasets := root.CountNodes()
	assert.Equal(t, 1, ngroups)
	assert.Equal(t, 2, ndatasets)

	temp := root.Find("/temp")
	require.NotNil(t, temp)
	assert.Equal(t, DatasetNode, temp.Type)
	assert.Equal(t, []uint64{3}, temp.Shape)
	assert.Equal(t, "double", temp.Dtype)

	grid := root.Find("/grid")
	require.NotNil(t, grid)
	assert.Equal(t, []uint64{2, 2}, grid.Shape)
	assert.Equal(t, "int", grid.Dtype)

	contents, err := src.Dataset("/temp")
	require.NoError(t, err)
	assert.Equal(t, []any{270.5, 271.0, 272.25}, contents.Data)

	contents, err = src.Dataset("grid")
	require.NoError(t, err)
	assert.Equal(t, []any{[]any{int32(1), int32(2)}, []any{int32(3), int32(4)}}, contents.Data)

	attrs, err := src.Attributes("/")
	require.NoError(t, err)
	assert.Equal(t, "viewer test", attrs["title"])

	attrs, err = src.Attributes("/temp")
	require.NoError(t, err)
	assert.Equal(t, Attributes{"units": "K"}, attrs)

	_, err = src.Dataset("/")
	assert.True(t, errors.Is(err, ErrNotDataset))
	_, err = src.Dataset("/pressure")
	assert.True(t, errors.Is(err, ErrNotFound))
	_, err = src.Attributes("/pressure")
	assert.True(t, errors.Is(err, ErrNotFound))
	_, err = src.Dataset("/nogroup/temp")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestNetCDFSourceTooLarge(t *testing.T) {
	fname := writeNetCDFFixture(t)
	src, err := OpenNetCDFSource(fname, 3)
	require.NoError(t, err)
	defer src.Close()
	_, err = src.Dataset("/temp")
	assert.NoError(t, err)
	_, err = src.Dataset("/grid")
	assert.True(t, errors.Is(err, ErrTooLarge))
}
