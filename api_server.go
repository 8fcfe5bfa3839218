package h5viewer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"
)

// APIServer is the HTTP face of a Browser: the three JSON endpoints the
// viewer page calls, the supplemental endpoints, and the page itself.
type APIServer struct {
	browser *Browser
	mux     *http.ServeMux
}

// NewAPIServer builds the route table for b.
func NewAPIServer(b *Browser) *APIServer {
	s := &APIServer{browser: b, mux: http.NewServeMux()}
	s.mux.HandleFunc("GET /api/get_structure", s.getStructure)
	s.mux.HandleFunc("GET /api/get_dataset", s.getDataset)
	s.mux.HandleFunc("GET /api/get_attributes", s.getAttributes)
	s.mux.HandleFunc("GET /api/get_summary", s.getSummary)
	s.mux.HandleFunc("GET /api/export_npy", s.exportNPY)
	s.mux.HandleFunc("GET /api/list_dir", s.listDir)
	s.mux.HandleFunc("GET /api/status", s.getStatus)
	s.mux.HandleFunc("GET /{$}", viewerPageHandler)
	s.mux.HandleFunc("GET /favicon.ico", faviconHandler)
	return s
}

// RequestIDHeader carries the ID given to each API request.
const RequestIDHeader = "X-Request-Id"

// ServeHTTP tags every request with an ID and allows cross-origin calls,
// since the viewer page may be served from another host or port.
func (s *APIServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	reqID := r.Header.Get(RequestIDHeader)
	if reqID == "" {
		reqID = NewRequestID()
		r.Header.Set(RequestIDHeader, reqID)
	}
	h := w.Header()
	h.Set(RequestIDHeader, reqID)
	h.Set("Access-Control-Allow-Origin", "*")
	h.Set("Access-Control-Expose-Headers", RequestIDHeader)
	if r.Method == http.MethodOptions {
		h.Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		h.Set("Access-Control-Allow-Headers", "Content-Type, "+RequestIDHeader)
		w.WriteHeader(http.StatusNoContent)
		return
	}
	s.mux.ServeHTTP(w, r)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		ProblemLogger.Printf("could not encode reply: %v", err)
		status = http.StatusInternalServerError
		body, _ = json.Marshal(map[string]string{"error": err.Error()})
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(body)
	w.Write([]byte("\n"))
}

// writeError answers any failure with HTTP 500 and {"error": message}.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	ProblemLogger.Printf("%s %s [%s]: %v", r.Method, r.URL.RequestURI(), r.Header.Get(RequestIDHeader), err)
	writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
}

// fileAndPath returns the required "file" and optional "path" query parameters.
func fileAndPath(r *http.Request) (string, string, error) {
	q := r.URL.Query()
	file := q.Get("file")
	if file == "" {
		return "", "", errors.New("missing required parameter \"file\"")
	}
	return file, q.Get("path"), nil
}

func (s *APIServer) getStructure(w http.ResponseWriter, r *http.Request) {
	file, _, err := fileAndPath(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	root, err := s.browser.Structure(file, r.Header.Get(RequestIDHeader))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, root)
}

func (s *APIServer) getDataset(w http.ResponseWriter, r *http.Request) {
	file, path, err := fileAndPath(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	contents, err := s.browser.Dataset(file, path, r.Header.Get(RequestIDHeader))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, contents)
}

func (s *APIServer) getAttributes(w http.ResponseWriter, r *http.Request) {
	file, path, err := fileAndPath(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	attrs, err := s.browser.Attributes(file, path)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, attrs)
}

func (s *APIServer) getSummary(w http.ResponseWriter, r *http.Request) {
	file, path, err := fileAndPath(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	summary, err := s.browser.Summary(file, path)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (s *APIServer) exportNPY(w http.ResponseWriter, r *http.Request) {
	file, path, err := fileAndPath(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	// Buffer the whole file so a failure can still be reported as JSON.
	var buf bytes.Buffer
	if err := s.browser.ExportNPY(&buf, file, path); err != nil {
		writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", NPYFilename(path)))
	w.Header().Set("Content-Length", fmt.Sprint(buf.Len()))
	w.WriteHeader(http.StatusOK)
	buf.WriteTo(w)
}

func (s *APIServer) listDir(w http.ResponseWriter, r *http.Request) {
	listing, err := s.browser.ListDir(r.URL.Query().Get("dir"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, listing)
}

func (s *APIServer) getStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.browser.Status())
}

// RunAPIServer serves the HTTP API on portapi until abort is closed.
func RunAPIServer(b *Browser, portapi int, abort <-chan struct{}) error {
	listener, err := net.Listen("tcp", fmt.Sprintf(":%d", portapi))
	if err != nil {
		return fmt.Errorf("listen error: %w", err)
	}
	return ServeAPI(b, listener, abort)
}

// ServeAPI serves the HTTP API on an existing listener until abort is closed.
func ServeAPI(b *Browser, listener net.Listener, abort <-chan struct{}) error {
	server := &http.Server{
		Handler:           NewAPIServer(b),
		ReadHeaderTimeout: 10 * time.Second,
		ErrorLog:          ProblemLogger,
	}
	go func() {
		<-abort
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			ProblemLogger.Printf("API server shutdown: %v", err)
		}
	}()
	UpdateLogger.Printf("HTTP API listening on %s\n", listener.Addr())
	if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
