package h5viewer

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// FileSource is the interface for the readers of scientific data files.
// A FileSource is opened for one request and closed when the request is done.
type FileSource interface {
	Structure() (*Node, error)
	Dataset(path string) (*DatasetContents, error)
	Attributes(path string) (Attributes, error)
	Close() error
}

// SourceOpener opens a FileSource for a file name. The servers hold one so
// tests can substitute in-memory sources.
type SourceOpener func(filename string, maxElements int) (FileSource, error)

var (
	hdf5Signature = []byte("\x89HDF\r\n\x1a\n")
	cdfSignature  = []byte("CDF")
)

// netcdfExtensions are the file name suffixes read by the NetCDF source even
// when the file is HDF5 underneath (NetCDF-4).
var netcdfExtensions = map[string]bool{
	".nc":  true,
	".nc4": true,
	".cdf": true,
}

// ViewableExtensions are the file name suffixes the file picker offers.
var ViewableExtensions = map[string]bool{
	".h5":   true,
	".hdf5": true,
	".he5":  true,
	".hdf":  true,
	".nc":   true,
	".nc4":  true,
	".cdf":  true,
}

// sniffFormat reads the leading bytes of filename and reports "hdf5", "netcdf",
// or ErrUnknownFormat.
func sniffFormat(filename string) (string, error) {
	f, err := os.Open(filename)
	if err != nil {
		return "", err
	}
	defer f.Close()
	head := make([]byte, len(hdf5Signature))
	n, err := io.ReadFull(f, head)
	if err != nil && err != io.ErrUnexpectedEOF {
		if err == io.EOF {
			return "", fmt.Errorf("%s: %w", filename, ErrUnknownFormat)
		}
		return "", err
	}
	head = head[:n]
	ext := strings.ToLower(filepath.Ext(filename))
	switch {
	case bytes.HasPrefix(head, cdfSignature):
		return "netcdf", nil
	case bytes.HasPrefix(head, hdf5Signature):
		if netcdfExtensions[ext] {
			return "netcdf", nil
		}
		return "hdf5", nil
	}
	return "", fmt.Errorf("%s: %w", filename, ErrUnknownFormat)
}

// OpenSource opens filename with the reader matching its format.
// maxElements limits how many values Dataset will load (<=0 for no limit).
func OpenSource(filename string, maxElements int) (FileSource, error) {
	format, err := sniffFormat(filename)
	if err != nil {
		return nil, err
	}
	switch format {
	case "netcdf":
		return OpenNetCDFSource(filename, maxElements)
	default:
		return OpenHDF5Source(filename, maxElements)
	}
}
