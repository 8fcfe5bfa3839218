package h5viewer

import (
	"log"
	"os"
	"time"
)

// Portnumbers structs can contain all TCP port numbers used by the viewer.
type Portnumbers struct {
	API    int
	RPC    int
	Status int
}

// Ports globally holds all TCP port numbers used by the viewer.
var Ports Portnumbers

// setPortnumbers puts the HTTP API on base and the RPC and status
// publisher on the next two ports.
func setPortnumbers(base int) {
	Ports.API = base
	Ports.RPC = base + 1
	Ports.Status = base + 2
}

// SetPortnumbers lets the main program move all ports at once.
func SetPortnumbers(base int) {
	setPortnumbers(base)
}

// BuildInfo can contain compile-time information about the build
type BuildInfo struct {
	Version string
	Githash string
	Gitdate string
	Date    string
	Host    string
	Summary string
}

// Build is a global holding compile-time information about the build
var Build = BuildInfo{
	Version: "0.3.1",
	Githash: "no git hash computed",
	Gitdate: "no git date computed",
	Date:    "no build date computed",
}

// ViewerStartTime is a global holding the time init() was run
var ViewerStartTime time.Time

// ProblemLogger will log warning messages to a file
var ProblemLogger *log.Logger

// UpdateLogger will log client updates to a file
var UpdateLogger *log.Logger

func init() {
	setPortnumbers(3000)
	ViewerStartTime = time.Now()

	// The main program will override these, but at least initialize with a sensible value
	ProblemLogger = log.New(os.Stderr, "", log.LstdFlags)
	UpdateLogger = log.New(os.Stderr, "", log.LstdFlags)
}
