package h5viewer

import (
	"encoding/json"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleTree() *Node {
	return &Node{Name: "/", Type: GroupNode, Path: "/", Children: []*Node{
		{Name: "raw", Type: GroupNode, Path: "/raw", Children: []*Node{
			{Name: "pulses", Type: DatasetNode, Path: "/raw/pulses", Shape: []uint64{4, 2}, Dtype: "float64"},
		}},
		{Name: "rawdata", Type: DatasetNode, Path: "/rawdata", Shape: []uint64{3}, Dtype: "int32"},
		{Name: "empty", Type: GroupNode, Path: "/empty", Children: []*Node{}},
	}}
}

func TestNodeFind(t *testing.T) {
	root := sampleTree()
	tests := []struct {
		path string
		want string
	}{
		{"/", "/"},
		{"", "/"},
		{"/raw", "raw"},
		{"raw/pulses", "pulses"},
		{"/raw/pulses/", "pulses"},
		{"/rawdata", "rawdata"},
		{"/empty", "empty"},
	}
	for _, tc := range tests {
		n := root.Find(tc.path)
		if n == nil {
			t.Errorf("Find(%q) returned nil, want %q", tc.path, tc.want)
			continue
		}
		if n.Name != tc.want {
			t.Errorf("Find(%q).Name is %q, want %q", tc.path, n.Name, tc.want)
		}
	}
	assert.Nil(t, root.Find("/raw/missing"))
	assert.Nil(t, root.Find("/rawdata/x"))
	var none *Node
	assert.Nil(t, none.Find("/"))
	assert.True(t, root.Find("/rawdata").IsDataset())
	assert.False(t, root.IsDataset())
}

func TestCountNodes(t *testing.T) {
	ngroups, ndatasets := sampleTree().CountNodes()
	assert.Equal(t, 3, ngroups)
	assert.Equal(t, 2, ndatasets)
}

func TestNodeJSON(t *testing.T) {
	b, err := json.Marshal(sampleTree().Children[1])
	require.NoError(t, err)
	assert.JSONEq(t, `{"name":"rawdata","type":"dataset","path":"/rawdata","shape":[3],"dtype":"int32"}`, string(b))

	b, err = json.Marshal(sampleTree().Children[2])
	require.NoError(t, err)
	assert.JSONEq(t, `{"name":"empty","type":"group","path":"/empty","children":[]}`, string(b))

	// Scalars keep an empty shape; groups never carry shape or dtype.
	scalar := &Node{Name: "s", Type: DatasetNode, Path: "/s", Shape: []uint64{}, Dtype: "float64"}
	b, err = json.Marshal(scalar)
	require.NoError(t, err)
	assert.JSONEq(t, `{"name":"s","type":"dataset","path":"/s","shape":[],"dtype":"float64"}`, string(b))

	b, err = json.Marshal(Node{Name: "bare", Type: GroupNode, Path: "/bare"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"name":"bare","type":"group","path":"/bare","children":[]}`, string(b))

	var back Node
	require.NoError(t, json.Unmarshal([]byte(`{"name":"s","type":"dataset","path":"/s","shape":[],"dtype":"float64"}`), &back))
	assert.Equal(t, *scalar, back)
}

func TestCleanObjectPath(t *testing.T) {
	cases := map[string]string{
		"":         "/",
		"/":        "/",
		"a":        "/a",
		"/a/b/":    "/a/b",
		"//a//b":   "/a/b",
		"/a/../b":  "/b",
		"../../x":  "/x",
		"/a/./b/.": "/a/b",
	}
	for in, want := range cases {
		if got := CleanObjectPath(in); got != want {
			t.Errorf("CleanObjectPath(%q) is %q, want %q", in, got, want)
		}
	}
	assert.Equal(t, "/g/d", childPath("/g", "d"))
	assert.Equal(t, "/d", childPath("/", "/d"))
	assert.Equal(t, "d", baseName("/g/d"))
	assert.Equal(t, "/", baseName(""))
}

func TestCheckSize(t *testing.T) {
	assert.Equal(t, uint64(1), NumElements(nil))
	assert.Equal(t, uint64(24), NumElements([]uint64{2, 3, 4}))
	assert.NoError(t, checkSize([]uint64{10, 10}, 100))
	assert.NoError(t, checkSize([]uint64{10, 10}, 0))
	err := checkSize([]uint64{10, 11}, 100)
	assert.True(t, errors.Is(err, ErrTooLarge))
}

func TestNest(t *testing.T) {
	flat := []float64{0, 1, 2, 3, 4, 5}

	v, err := nest(flat, []uint64{6})
	require.NoError(t, err)
	assert.Equal(t, []any{0.0, 1.0, 2.0, 3.0, 4.0, 5.0}, v)

	v, err = nest(flat, []uint64{2, 3})
	require.NoError(t, err)
	assert.Equal(t, []any{[]any{0.0, 1.0, 2.0}, []any{3.0, 4.0, 5.0}}, v)

	v, err = nest(flat, []uint64{3, 1, 2})
	require.NoError(t, err)
	assert.Equal(t, []any{
		[]any{[]any{0.0, 1.0}},
		[]any{[]any{2.0, 3.0}},
		[]any{[]any{4.0, 5.0}},
	}, v)

	v, err = nest([]string{"only"}, []uint64{})
	require.NoError(t, err)
	assert.Equal(t, "only", v)

	_, err = nest(flat, []uint64{4, 2})
	assert.Error(t, err)
}

func TestJSONSafe(t *testing.T) {
	v, err := nest([]float64{1, math.NaN(), math.Inf(1)}, []uint64{3})
	require.NoError(t, err)
	assert.Equal(t, []any{1.0, nil, nil}, v)

	assert.Nil(t, jsonSafe(math.Inf(-1)))
	assert.Nil(t, jsonSafe(float32(math.NaN())))
	assert.Equal(t, "text", jsonSafe("text"))
	assert.Equal(t, []string{"a", "b"}, jsonSafe([]string{"a", "b"}))
	assert.Equal(t, []any{[]any{1.0, nil}}, jsonSafe([][]float64{{1, math.NaN()}}))
	assert.Equal(t, []any{int32(1), int32(2)}, jsonSafe([]int32{1, 2}))

	m := jsonSafe(map[string]any{"x": math.NaN(), "y": 2.0}).(map[string]any)
	assert.Nil(t, m["x"])
	assert.Equal(t, 2.0, m["y"])

	// The result must always be encodable.
	_, err = json.Marshal(jsonSafe([]any{math.NaN(), []float32{float32(math.Inf(1))}}))
	assert.NoError(t, err)
}
