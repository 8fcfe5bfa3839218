// Package viewerdb records viewer activity (sessions, opened files, viewed
// datasets) in a ClickHouse database.
package viewerdb

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
)

// Options says where the database lives. Credentials come from the
// environment variables H5VIEWER_DB_USER and H5VIEWER_DB_PASSWORD.
type Options struct {
	Addr     string
	Database string
}

// DefaultOptions are used for any empty field of Options.
var DefaultOptions = Options{
	Addr:     "localhost:9000",
	Database: "h5viewer",
}

const timeFormat = "2006-01-02 15:04:05.000000"

var errClosed = errors.New("database connection closed")

// ViewerDBConnection owns one ClickHouse connection and a goroutine that
// performs the inserts, so request handlers never wait on the database.
type ViewerDBConnection struct {
	conn          clickhouse.Conn
	err           error
	activityEntry *ViewerActivityMessage
	filemsg       chan *FileOpenMessage
	datasetmsg    chan *DatasetViewMessage
	done          chan struct{} // closed when the insert goroutine stops
	mu            sync.Mutex
	sync.WaitGroup
}

// IsConnected reports whether inserts will be attempted.
func (db *ViewerDBConnection) IsConnected() bool {
	if db == nil {
		return false
	}
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.conn != nil && db.err == nil
}

// Err returns the error that disconnected db, if any.
func (db *ViewerDBConnection) Err() error {
	if db == nil {
		return nil
	}
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.err
}

func (db *ViewerDBConnection) setErr(err error) {
	db.mu.Lock()
	db.err = err
	db.mu.Unlock()
}

func fillDefaults(opt Options) Options {
	if opt.Addr == "" {
		opt.Addr = DefaultOptions.Addr
	}
	if opt.Database == "" {
		opt.Database = DefaultOptions.Database
	}
	return opt
}

// PingServer checks that a ClickHouse server answers at opt.Addr.
func PingServer(opt Options) error {
	db := createDBConnection(fillDefaults(opt))
	if !db.IsConnected() {
		if err := db.Err(); err != nil {
			return err
		}
		return fmt.Errorf("database is not connected")
	}
	defer db.conn.Close()
	v, err := db.conn.ServerVersion()
	if err != nil {
		return err
	}
	fmt.Printf("ClickHouse server is alive. Version:\n%s\n", v)
	return nil
}

// StartDBConnection connects, records the activity entry, and starts the
// insert goroutine, which stops when abort closes. A failed connection
// still returns a usable (disconnected) value whose Record methods do nothing.
func StartDBConnection(opt Options, activity *ViewerActivityMessage, abort <-chan struct{}) *ViewerDBConnection {
	db := createDBConnection(fillDefaults(opt))
	db.activityEntry = activity
	if !db.IsConnected() {
		return db
	}
	db.logActivity()
	db.Add(1)
	go db.handleConnection(abort)
	return db
}

// DummyDBConnection returns a connection that records nothing.
func DummyDBConnection() *ViewerDBConnection {
	return &ViewerDBConnection{}
}

func createDBConnection(opt Options) *ViewerDBConnection {
	db := &ViewerDBConnection{}
	auth := clickhouse.Auth{
		Database: opt.Database,
		Username: os.Getenv("H5VIEWER_DB_USER"),
		Password: os.Getenv("H5VIEWER_DB_PASSWORD"),
	}
	client := clickhouse.ClientInfo{
		Products: []struct {
			Name    string
			Version string
		}{
			{Name: "h5viewer", Version: "unknown"},
		},
	}
	options := clickhouse.Options{
		Addr:        []string{opt.Addr},
		Auth:        auth,
		ClientInfo:  client,
		DialTimeout: 2 * time.Second,
	}
	conn, err := clickhouse.Open(&options)
	if err != nil {
		db.err = err
		return db
	}

	// Ping the server at the DB connection.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err = conn.Ping(ctx); err != nil {
		if exception, ok := err.(*clickhouse.Exception); ok {
			err = fmt.Errorf("exception [%d] %s: %w", exception.Code, exception.Message, err)
		}
		conn.Close()
		db.err = err
		return db
	}
	db.conn = conn
	db.filemsg = make(chan *FileOpenMessage)
	db.datasetmsg = make(chan *DatasetViewMessage)
	db.done = make(chan struct{})
	return db
}

func (db *ViewerDBConnection) logActivity() {
	if !db.IsConnected() || db.activityEntry == nil {
		return
	}
	ae := db.activityEntry
	const nowait = false
	if err := db.conn.AsyncInsert(context.Background(), `INSERT INTO vieweractivity VALUES (?, ?, ?, ?, ?, ?, ?, ?)`, nowait,
		ae.ID, ae.Hostname, ae.Githash, ae.Version,
		ae.GoVersion, ae.CPUs, ae.Start.Format(timeFormat), ae.End.Format(timeFormat),
	); err != nil {
		db.setErr(fmt.Errorf("insert into vieweractivity: %w", err))
	}
}

func (db *ViewerDBConnection) handleConnection(abort <-chan struct{}) {
	defer db.Done()
	for {
		select {
		case <-abort:
			db.disconnect()
			return
		case fmsg := <-db.filemsg:
			db.handleFileMessage(fmsg)
		case dmsg := <-db.datasetmsg:
			db.handleDatasetMessage(dmsg)
		}
	}
}

func (db *ViewerDBConnection) activityID() string {
	if db.activityEntry == nil {
		return ""
	}
	return db.activityEntry.ID
}

func (db *ViewerDBConnection) disconnect() {
	if db.IsConnected() && db.activityEntry != nil {
		db.activityEntry.End = time.Now()
		db.logActivity()
	}
	if db.conn != nil {
		db.conn.Close()
	}
	db.setErr(errClosed)
	if db.done != nil {
		close(db.done)
	}
}

// queue hands msg to the insert goroutine, or drops it once that goroutine
// has stopped.
func queue[T any](ch chan<- T, done <-chan struct{}, msg T) {
	select {
	case ch <- msg:
	case <-done:
	}
}

// RecordFileOpen stores msg in the DB (if it's open) without blocking the caller.
func (db *ViewerDBConnection) RecordFileOpen(msg *FileOpenMessage) {
	if !db.IsConnected() || msg == nil {
		return
	}
	go queue(db.filemsg, db.done, msg)
}

// RecordDatasetView stores msg in the DB (if it's open) without blocking the caller.
func (db *ViewerDBConnection) RecordDatasetView(msg *DatasetViewMessage) {
	if !db.IsConnected() || msg == nil {
		return
	}
	go queue(db.datasetmsg, db.done, msg)
}

func (db *ViewerDBConnection) handleFileMessage(m *FileOpenMessage) {
	if !db.IsConnected() {
		return
	}
	const nowait = false
	if err := db.conn.AsyncInsert(context.Background(), `INSERT INTO fileopens VALUES (?, ?, ?, ?, ?, ?, ?)`, nowait,
		m.ID, db.activityID(), m.Filename, m.Format, m.NGroups, m.NDatasets, m.Time.Format(timeFormat),
	); err != nil {
		db.setErr(fmt.Errorf("insert into fileopens: %w", err))
	}
}

func (db *ViewerDBConnection) handleDatasetMessage(m *DatasetViewMessage) {
	if !db.IsConnected() {
		return
	}
	const nowait = false
	if err := db.conn.AsyncInsert(context.Background(), `INSERT INTO datasetviews VALUES (?, ?, ?, ?, ?, ?, ?)`, nowait,
		db.activityID(), m.FileOpenID, m.Filename, m.Path, m.Dtype, m.NElements, m.Time.Format(timeFormat),
	); err != nil {
		db.setErr(fmt.Errorf("insert into datasetviews: %w", err))
	}
}
