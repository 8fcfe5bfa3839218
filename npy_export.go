package h5viewer

import (
	"fmt"
	"io"
	"strings"

	"github.com/sbinet/npyio"
	"gonum.org/v1/gonum/mat"
)

// WriteNPY writes the values of a numeric dataset to w in numpy's .npy
// format as float64. Two-dimensional datasets keep their shape; all others
// are written as a flat array in row-major order.
func WriteNPY(w io.Writer, contents *DatasetContents) error {
	vals, err := FlattenNumbers(contents.Data)
	if err != nil {
		return fmt.Errorf("cannot export %s dataset: %w", contents.Dtype, err)
	}
	if len(contents.Shape) == 2 && contents.Shape[0] > 0 && contents.Shape[1] > 0 {
		nrows, ncols := int(contents.Shape[0]), int(contents.Shape[1])
		if nrows*ncols != len(vals) {
			return fmt.Errorf("have %d values, shape %v needs %d", len(vals), contents.Shape, nrows*ncols)
		}
		return npyio.Write(w, mat.NewDense(nrows, ncols, vals))
	}
	return npyio.Write(w, vals)
}

// NPYFilename suggests a download name for the dataset at objectPath.
func NPYFilename(objectPath string) string {
	name := strings.Trim(CleanObjectPath(objectPath), "/")
	if name == "" {
		name = "root"
	}
	return strings.ReplaceAll(name, "/", "_") + ".npy"
}
