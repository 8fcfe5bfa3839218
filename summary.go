package h5viewer

import (
	"fmt"
	"math"
	"reflect"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// DatasetSummary holds simple statistics of a numeric dataset.
// Null (NaN or infinite) values are counted in Nulls and skipped otherwise.
type DatasetSummary struct {
	Count int      `json:"count"`
	Nulls int      `json:"nulls"`
	Min   *float64 `json:"min"`
	Max   *float64 `json:"max"`
	Mean  *float64 `json:"mean"`
	Std   *float64 `json:"std"`
}

// FlattenNumbers walks nested lists of numbers in row-major order and returns
// them as float64. nil entries become NaN. Any non-numeric entry is an error.
func FlattenNumbers(data any) ([]float64, error) {
	var out []float64
	var walk func(v reflect.Value) error
	walk = func(v reflect.Value) error {
		if !v.IsValid() {
			out = append(out, math.NaN())
			return nil
		}
		switch v.Kind() {
		case reflect.Interface, reflect.Pointer:
			if v.IsNil() {
				out = append(out, math.NaN())
				return nil
			}
			return walk(v.Elem())
		case reflect.Slice, reflect.Array:
			for i := 0; i < v.Len(); i++ {
				if err := walk(v.Index(i)); err != nil {
					return err
				}
			}
		case reflect.Float32, reflect.Float64:
			out = append(out, v.Float())
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
			out = append(out, float64(v.Int()))
		case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
			out = append(out, float64(v.Uint()))
		case reflect.Bool:
			if v.Bool() {
				out = append(out, 1)
			} else {
				out = append(out, 0)
			}
		default:
			return fmt.Errorf("value of kind %s is not numeric", v.Kind())
		}
		return nil
	}
	if err := walk(reflect.ValueOf(data)); err != nil {
		return nil, err
	}
	return out, nil
}

// Summarize computes the statistics of a dataset's values.
func Summarize(contents *DatasetContents) (*DatasetSummary, error) {
	vals, err := FlattenNumbers(contents.Data)
	if err != nil {
		return nil, fmt.Errorf("cannot summarize %s dataset: %w", contents.Dtype, err)
	}
	finite := make([]float64, 0, len(vals))
	for _, v := range vals {
		if !math.IsNaN(v) && !math.IsInf(v, 0) {
			finite = append(finite, v)
		}
	}
	summary := &DatasetSummary{Count: len(finite), Nulls: len(vals) - len(finite)}
	if len(finite) == 0 {
		return summary, nil
	}
	lo, hi := floats.Min(finite), floats.Max(finite)
	mean, std := stat.MeanStdDev(finite, nil)
	summary.Min = &lo
	summary.Max = &hi
	summary.Mean = &mean
	if len(finite) > 1 {
		summary.Std = &std
	}
	return summary, nil
}
