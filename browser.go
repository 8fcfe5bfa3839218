package h5viewer

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"golang.org/x/sync/singleflight"

	"github.com/usnistgov/h5viewer/internal/viewerdb"
)

// BrowserConfig holds the settings of a Browser, normally read from the
// "viewer" section of the config file.
type BrowserConfig struct {
	DataRoot       string
	RestrictToRoot bool
	MaxElements    int
}

// DefaultMaxElements is the largest dataset loaded when the config sets no limit.
const DefaultMaxElements = 1000000

// BrowserStatus is the status that a Browser reports to clients.
type BrowserStatus struct {
	Version        string
	Uptime         float64 // seconds
	DataRoot       string
	FilesOpened    int
	DatasetsViewed int
	Requests       int
	Errors         int
	LastFile       string
}

// Browser answers the viewer's questions about data files. The HTTP and
// JSON-RPC servers are thin layers over one shared Browser.
type Browser struct {
	picker      *FilePicker
	open        SourceOpener
	maxElements int
	structures  singleflight.Group

	updates *UpdateQueue
	db      *viewerdb.ViewerDBConnection

	status   BrowserStatus
	lastOpen map[string]string // file -> ID of its latest FileOpenMessage
	sync.Mutex
}

// NewBrowser makes a Browser reading real files with OpenSource.
func NewBrowser(config BrowserConfig) (*Browser, error) {
	picker, err := NewFilePicker(config.DataRoot, config.RestrictToRoot)
	if err != nil {
		return nil, err
	}
	maxElements := config.MaxElements
	if maxElements == 0 {
		maxElements = DefaultMaxElements
	}
	b := &Browser{
		picker:      picker,
		open:        OpenSource,
		maxElements: maxElements,
		db:          viewerdb.DummyDBConnection(),
		lastOpen:    make(map[string]string),
	}
	b.status.DataRoot = picker.Root
	return b, nil
}

// SetOpener replaces the function used to open files.
func (b *Browser) SetOpener(open SourceOpener) {
	b.open = open
}

// SetUpdates makes the Browser announce opened files and viewed datasets on updates.
func (b *Browser) SetUpdates(updates *UpdateQueue) {
	b.updates = updates
}

// SetDB makes the Browser record activity in db.
func (b *Browser) SetDB(db *viewerdb.ViewerDBConnection) {
	if db == nil {
		db = viewerdb.DummyDBConnection()
	}
	b.db = db
}

// Picker returns the Browser's file picker.
func (b *Browser) Picker() *FilePicker {
	return b.picker
}

// NewRequestID returns a fresh, time-ordered request identifier.
func NewRequestID() string {
	return ulid.Make().String()
}

func (b *Browser) broadcast(tag string, state any) {
	if b.updates != nil {
		b.updates.Send(ClientUpdate{tag, state})
	}
}

// count records one request and, if err is not nil, one error.
func (b *Browser) count(err error) {
	b.Lock()
	defer b.Unlock()
	b.status.Requests++
	if err != nil {
		b.status.Errors++
	}
}

// withSource resolves file, opens it, runs fn, and closes it.
func (b *Browser) withSource(file string, fn func(FileSource) error) error {
	abs, err := b.picker.Resolve(file)
	if err != nil {
		return err
	}
	src, err := b.open(abs, b.maxElements)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := src.Close(); cerr != nil {
			ProblemLogger.Printf("closing %s: %v", abs, cerr)
		}
	}()
	return fn(src)
}

// Structure returns the tree of groups and datasets in file. Concurrent
// calls for the same file share one traversal.
func (b *Browser) Structure(file, requestID string) (*Node, error) {
	abs, err := b.picker.Resolve(file)
	if err != nil {
		b.count(err)
		return nil, err
	}
	v, err, _ := b.structures.Do(abs, func() (any, error) {
		var root *Node
		err := b.withSource(abs, func(src FileSource) error {
			var err error
			root, err = src.Structure()
			return err
		})
		return root, err
	})
	b.count(err)
	if err != nil {
		return nil, err
	}
	root := v.(*Node)

	ngroups, ndatasets := root.CountNodes()
	openID := ulid.Make().String()
	b.Lock()
	b.status.FilesOpened++
	b.status.LastFile = abs
	b.lastOpen[abs] = openID
	b.Unlock()

	b.broadcast(TagFileOpened, FileOpenedMessage{
		File: abs, NGroups: ngroups, NDatasets: ndatasets, RequestID: requestID,
	})
	b.db.RecordFileOpen(&viewerdb.FileOpenMessage{
		ID:        openID,
		Filename:  abs,
		Format:    strings.TrimPrefix(strings.ToLower(filepath.Ext(abs)), "."),
		NGroups:   ngroups,
		NDatasets: ndatasets,
		Time:      time.Now(),
	})
	return root, nil
}

// Dataset returns the values, shape and dtype of the dataset at path in file.
func (b *Browser) Dataset(file, path, requestID string) (*DatasetContents, error) {
	var contents *DatasetContents
	err := b.withSource(file, func(src FileSource) error {
		var err error
		contents, err = src.Dataset(path)
		return err
	})
	b.count(err)
	if err != nil {
		return nil, err
	}

	abs, _ := b.picker.Resolve(file)
	b.Lock()
	b.status.DatasetsViewed++
	openID := b.lastOpen[abs]
	b.Unlock()

	b.broadcast(TagDatasetViewed, DatasetViewedMessage{
		File: abs, Path: CleanObjectPath(path), Shape: contents.Shape, Dtype: contents.Dtype, RequestID: requestID,
	})
	b.db.RecordDatasetView(&viewerdb.DatasetViewMessage{
		FileOpenID: openID,
		Filename:   abs,
		Path:       CleanObjectPath(path),
		Dtype:      contents.Dtype,
		NElements:  NumElements(contents.Shape),
		Time:       time.Now(),
	})
	return contents, nil
}

// Attributes returns the attributes of the group or dataset at path in file.
func (b *Browser) Attributes(file, path string) (Attributes, error) {
	var attrs Attributes
	err := b.withSource(file, func(src FileSource) error {
		var err error
		attrs, err = src.Attributes(path)
		return err
	})
	b.count(err)
	return attrs, err
}

// Summary returns statistics of the numeric dataset at path in file.
func (b *Browser) Summary(file, path string) (*DatasetSummary, error) {
	var summary *DatasetSummary
	err := b.withSource(file, func(src FileSource) error {
		contents, err := src.Dataset(path)
		if err != nil {
			return err
		}
		summary, err = Summarize(contents)
		return err
	})
	b.count(err)
	return summary, err
}

// ExportNPY writes the dataset at path in file to w as a .npy file.
func (b *Browser) ExportNPY(w io.Writer, file, path string) error {
	err := b.withSource(file, func(src FileSource) error {
		contents, err := src.Dataset(path)
		if err != nil {
			return err
		}
		return WriteNPY(w, contents)
	})
	b.count(err)
	return err
}

// ListDir lists the directory dir for the file picker ("" is the data root).
func (b *Browser) ListDir(dir string) (*DirListing, error) {
	listing, err := b.picker.List(dir)
	b.count(err)
	return listing, err
}

// Status returns a copy of the current status.
func (b *Browser) Status() BrowserStatus {
	b.Lock()
	defer b.Unlock()
	s := b.status
	s.Version = Build.Version
	s.Uptime = time.Since(ViewerStartTime).Seconds()
	return s
}

// BroadcastStatus queues a STATUS update.
func (b *Browser) BroadcastStatus() {
	b.broadcast(TagStatus, b.Status())
}

// String describes the Browser for log messages.
func (b *Browser) String() string {
	return fmt.Sprintf("Browser{root=%s restrict=%t maxElements=%d}", b.picker.Root, b.picker.Restrict, b.maxElements)
}
