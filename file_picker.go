package h5viewer

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// DirEntry is one row of the file picker.
type DirEntry struct {
	Name  string `json:"name"`
	Path  string `json:"path"`
	IsDir bool   `json:"is_dir"`
	Size  int64  `json:"size"`
}

// DirListing is the reply to a list_dir request.
type DirListing struct {
	Dir     string     `json:"dir"`
	Parent  string     `json:"parent,omitempty"`
	Entries []DirEntry `json:"entries"`
}

// FilePicker lists directories below a data root and resolves the file names
// that clients send. When Restrict is set, nothing outside Root is reachable.
type FilePicker struct {
	Root     string
	Restrict bool
}

// NewFilePicker returns a FilePicker rooted at root (the working directory if empty).
func NewFilePicker(root string, restrict bool) (*FilePicker, error) {
	if root == "" {
		root = "."
	}
	if strings.HasPrefix(root, "$HOME") {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, err
		}
		root = strings.Replace(root, "$HOME", home, 1)
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	return &FilePicker{Root: abs, Restrict: restrict}, nil
}

// Resolve turns a client-supplied file or directory name into an absolute
// path. Relative names are taken relative to the root.
func (fp *FilePicker) Resolve(name string) (string, error) {
	if name == "" {
		return "", fmt.Errorf("no file name given")
	}
	p := name
	if !filepath.IsAbs(p) {
		p = filepath.Join(fp.Root, p)
	}
	p = filepath.Clean(p)
	if fp.Restrict && !fp.inRoot(p) {
		return "", fmt.Errorf("%s: %w", name, ErrOutsideRoot)
	}
	return p, nil
}

func (fp *FilePicker) inRoot(p string) bool {
	rel, err := filepath.Rel(fp.Root, p)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}

// List returns the subdirectories and viewable files of dir, directories
// first, each group sorted by name. Hidden entries are skipped.
func (fp *FilePicker) List(dir string) (*DirListing, error) {
	if dir == "" {
		dir = fp.Root
	}
	abs, err := fp.Resolve(dir)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(abs)
	if err != nil {
		return nil, err
	}

	listing := &DirListing{Dir: abs, Entries: []DirEntry{}}
	if parent := filepath.Dir(abs); parent != abs && (!fp.Restrict || fp.inRoot(parent)) {
		listing.Parent = parent
	}
	for _, e := range entries {
		name := e.Name()
		if strings.HasPrefix(name, ".") {
			continue
		}
		full := filepath.Join(abs, name)
		if e.IsDir() {
			listing.Entries = append(listing.Entries, DirEntry{Name: name, Path: full, IsDir: true})
			continue
		}
		if !ViewableExtensions[strings.ToLower(filepath.Ext(name))] {
			continue
		}
		info, err := e.Info()
		if err != nil {
			ProblemLogger.Printf("file picker: cannot stat %s: %v", full, err)
			continue
		}
		listing.Entries = append(listing.Entries, DirEntry{Name: name, Path: full, Size: info.Size()})
	}
	sort.SliceStable(listing.Entries, func(i, j int) bool {
		a, b := listing.Entries[i], listing.Entries[j]
		if a.IsDir != b.IsDir {
			return a.IsDir
		}
		return a.Name < b.Name
	})
	return listing, nil
}
