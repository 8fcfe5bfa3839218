// Package viewer is a Go client of the h5viewer HTTP API that models the
// viewer widget: a structure tree, a file picker, and a content panel that
// shows the Data and Attributes of the selected dataset.
package viewer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/hashicorp/go-multierror"
	"github.com/tidwall/gjson"

	"github.com/usnistgov/h5viewer"
)

// Picker is the "Open File" dialog. Pick returns the chosen file, or nil
// if the user cancelled.
type Picker interface {
	Pick(ctx context.Context, v *Viewer) (*h5viewer.DirEntry, error)
}

// PickerFunc adapts a function to the Picker interface.
type PickerFunc func(ctx context.Context, v *Viewer) (*h5viewer.DirEntry, error)

// Pick calls f.
func (f PickerFunc) Pick(ctx context.Context, v *Viewer) (*h5viewer.DirEntry, error) {
	return f(ctx, v)
}

// StatusError is returned for any reply whose status is not 2xx.
type StatusError struct {
	StatusCode int
	Body       []byte
}

// StatusText is the reason phrase of the status code.
func (e *StatusError) StatusText() string {
	return http.StatusText(e.StatusCode)
}

func (e *StatusError) Error() string {
	if msg := gjson.GetBytes(e.Body, "error"); msg.Exists() {
		return fmt.Sprintf("%d %s: %s", e.StatusCode, e.StatusText(), msg.String())
	}
	return fmt.Sprintf("%d %s", e.StatusCode, e.StatusText())
}

// statusText is what a failed request shows the user.
func statusText(err error) string {
	var se *StatusError
	if errors.As(err, &se) {
		return se.StatusText()
	}
	return err.Error()
}

// Viewer holds the widget state: the current file, the tree, and the panels.
type Viewer struct {
	base   *url.URL
	client *http.Client
	picker Picker
	alert  func(string)
	tree   *TreeStore

	mu          sync.Mutex
	currentFile string
	panels      []Panel
	alerts      []string
}

// Option configures a Viewer.
type Option func(*Viewer)

// WithHTTPClient sets the client used for all requests.
func WithHTTPClient(c *http.Client) Option {
	return func(v *Viewer) { v.client = c }
}

// WithPicker sets the file picker used by OpenFile.
func WithPicker(p Picker) Option {
	return func(v *Viewer) { v.picker = p }
}

// WithAlert sets a function to display alert messages.
func WithAlert(alert func(string)) Option {
	return func(v *Viewer) { v.alert = alert }
}

// New makes a Viewer talking to the server at baseURL, e.g. "http://localhost:3000".
func New(baseURL string, opts ...Option) (*Viewer, error) {
	base, err := url.Parse(strings.TrimSuffix(baseURL, "/") + "/")
	if err != nil {
		return nil, fmt.Errorf("bad server URL %q: %w", baseURL, err)
	}
	v := &Viewer{base: base, client: &http.Client{}, tree: NewTreeStore()}
	for _, opt := range opts {
		opt(v)
	}
	return v, nil
}

// Close releases idle connections.
func (v *Viewer) Close() {
	v.client.CloseIdleConnections()
}

// Tree returns the structure tree store.
func (v *Viewer) Tree() *TreeStore {
	return v.tree
}

// CurrentFile is the path of the selected file, "" before any selection.
func (v *Viewer) CurrentFile() string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.currentFile
}

// Panels returns a copy of the content panel's items.
func (v *Viewer) Panels() []Panel {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]Panel(nil), v.panels...)
}

// Alerts returns every alert message shown so far.
func (v *Viewer) Alerts() []string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]string(nil), v.alerts...)
}

func (v *Viewer) showAlert(msg string) {
	v.mu.Lock()
	v.alerts = append(v.alerts, msg)
	v.mu.Unlock()
	if v.alert != nil {
		v.alert(msg)
	}
}

// get performs GET <base>/api/<endpoint>?<params> and returns the body.
// A non-2xx reply returns the body together with a *StatusError.
func (v *Viewer) get(ctx context.Context, endpoint string, params url.Values, requestID string) ([]byte, error) {
	u := v.base.JoinPath("api", endpoint)
	u.RawQuery = params.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	if requestID != "" {
		req.Header.Set(h5viewer.RequestIDHeader, requestID)
	}
	resp, err := v.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return body, &StatusError{StatusCode: resp.StatusCode, Body: body}
	}
	return body, nil
}

// OpenFile shows the file picker and loads the file it returns.
func (v *Viewer) OpenFile(ctx context.Context) error {
	if v.picker == nil {
		return errors.New("no file picker configured")
	}
	file, err := v.picker.Pick(ctx, v)
	if err != nil {
		return err
	}
	return v.OnFileSelected(ctx, file)
}

// OnFileSelected makes file the current file and loads its structure into
// the tree. On failure it alerts "Failed to load file: <status text>" and
// leaves the tree as it was. A nil file does nothing.
func (v *Viewer) OnFileSelected(ctx context.Context, file *h5viewer.DirEntry) error {
	if file == nil {
		return nil
	}
	v.mu.Lock()
	v.currentFile = file.Path
	v.mu.Unlock()

	body, err := v.get(ctx, "get_structure", url.Values{"file": {file.Path}}, "")
	if err == nil {
		var root h5viewer.Node
		if err = json.Unmarshal(body, &root); err == nil {
			v.tree.SetRoot(&root)
			return nil
		}
	}
	v.showAlert("Failed to load file: " + statusText(err))
	return fmt.Errorf("failed to load file %s: %w", file.Path, err)
}

// Select handles a click on a tree record. Group records are ignored. For a
// dataset, it clears the content panel and requests the values and the
// attributes concurrently. The panels appear in the order Data, Attributes,
// and a failure of one request does not affect the other.
func (v *Viewer) Select(ctx context.Context, record *h5viewer.Node) error {
	if !record.IsDataset() {
		return nil
	}
	v.mu.Lock()
	file := v.currentFile
	v.panels = nil
	v.mu.Unlock()

	params := url.Values{"file": {file}, "path": {record.Path}}
	requestID := h5viewer.NewRequestID()
	var (
		wg        sync.WaitGroup
		dataPanel *Panel
		attrPanel *Panel
		dataErr   error
		attrErr   error
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		dataPanel, dataErr = v.loadData(ctx, params, requestID)
	}()
	go func() {
		defer wg.Done()
		attrPanel, attrErr = v.loadAttributes(ctx, params, requestID)
	}()
	wg.Wait()

	var result *multierror.Error
	var panels []Panel
	if dataPanel != nil {
		panels = append(panels, *dataPanel)
	}
	if dataErr != nil {
		result = multierror.Append(result, fmt.Errorf("get_dataset %s: %w", record.Path, dataErr))
	}
	if attrPanel != nil {
		panels = append(panels, *attrPanel)
	}
	if attrErr != nil {
		result = multierror.Append(result, fmt.Errorf("get_attributes %s: %w", record.Path, attrErr))
	}
	v.mu.Lock()
	v.panels = panels
	v.mu.Unlock()
	return result.ErrorOrNil()
}

// loadData builds the Data panel. A reply carrying an "error" field gives an
// error panel, whatever its status.
func (v *Viewer) loadData(ctx context.Context, params url.Values, requestID string) (*Panel, error) {
	body, err := v.get(ctx, "get_dataset", params, requestID)
	if len(body) > 0 && gjson.ValidBytes(body) {
		result := gjson.ParseBytes(body)
		if msg := result.Get("error"); msg.Exists() {
			return &Panel{Title: DataTitle, Error: msg.String()}, nil
		}
		if err == nil {
			return &Panel{Title: DataTitle, Grid: NewGridStore(result.Get("data").Value())}, nil
		}
	}
	if err == nil {
		err = errors.New("reply is not valid JSON")
	}
	return nil, err
}

// loadAttributes builds the Attributes panel from the decoded reply object.
func (v *Viewer) loadAttributes(ctx context.Context, params url.Values, requestID string) (*Panel, error) {
	body, err := v.get(ctx, "get_attributes", params, requestID)
	if err != nil {
		return nil, err
	}
	result := gjson.ParseBytes(body)
	if !result.IsObject() {
		return nil, errors.New("reply is not a JSON object")
	}
	source, _ := result.Value().(map[string]any)
	return &Panel{Title: AttributesTitle, Properties: &PropertyGrid{Source: source}}, nil
}

// ListDir asks the server for a directory listing ("" for the data root).
func (v *Viewer) ListDir(ctx context.Context, dir string) (*h5viewer.DirListing, error) {
	params := url.Values{}
	if dir != "" {
		params.Set("dir", dir)
	}
	body, err := v.get(ctx, "list_dir", params, "")
	if err != nil {
		return nil, err
	}
	var listing h5viewer.DirListing
	if err := json.Unmarshal(body, &listing); err != nil {
		return nil, err
	}
	return &listing, nil
}

// Summary fetches statistics of the dataset at path in the current file.
func (v *Viewer) Summary(ctx context.Context, path string) (*h5viewer.DatasetSummary, error) {
	body, err := v.get(ctx, "get_summary", url.Values{"file": {v.CurrentFile()}, "path": {path}}, "")
	if err != nil {
		return nil, err
	}
	var summary h5viewer.DatasetSummary
	if err := json.Unmarshal(body, &summary); err != nil {
		return nil, err
	}
	return &summary, nil
}

// ExportNPY downloads the dataset at path in the current file as .npy data to w.
func (v *Viewer) ExportNPY(ctx context.Context, path string, w io.Writer) error {
	body, err := v.get(ctx, "export_npy", url.Values{"file": {v.CurrentFile()}, "path": {path}}, "")
	if err != nil {
		return err
	}
	_, err = w.Write(body)
	return err
}
