package viewerdb

import "time"

// The composite types used for messages to the ClickHouse database.

// ViewerActivityMessage is the information for the vieweractivity table:
// one row when a server starts, replaced by one with End set when it stops.
type ViewerActivityMessage struct {
	ID        string
	Hostname  string
	Githash   string
	Version   string
	GoVersion string
	CPUs      int
	Start     time.Time
	End       time.Time
}

// FileOpenMessage is the information required to make an entry in the fileopens table.
type FileOpenMessage struct {
	ID        string
	Filename  string
	Format    string
	NGroups   int
	NDatasets int
	Time      time.Time
}

// DatasetViewMessage is the information required to make an entry in the datasetviews table.
type DatasetViewMessage struct {
	FileOpenID string
	Filename   string
	Path       string
	Dtype      string
	NElements  uint64
	Time       time.Time
}
