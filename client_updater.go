package h5viewer

// Contains the client updater, which publishes JSON-encoded messages
// giving the latest viewer state.

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/usnistgov/h5viewer/internal/unboundedchan"

	zmq "github.com/pebbe/zmq4"
)

// ClientUpdate carries the messages to be published on the status port.
type ClientUpdate struct {
	Tag   string
	State any
}

// Tags of the messages published by the client updater.
const (
	TagStatus        = "STATUS"
	TagFileOpened    = "FILEOPENED"
	TagDatasetViewed = "DATASETVIEWED"
	TagAlive         = "ALIVE"
)

// FileOpenedMessage is published when a client loads a file's structure.
type FileOpenedMessage struct {
	File      string
	NGroups   int
	NDatasets int
	RequestID string
}

// DatasetViewedMessage is published when a client loads a dataset.
type DatasetViewedMessage struct {
	File      string
	Path      string
	Shape     []uint64
	Dtype     string
	RequestID string
}

// AliveMessage is the periodic heartbeat.
type AliveMessage struct {
	Alive   bool
	Uptime  float64 // seconds
	Version string
}

// encode returns the two frames (tag, JSON body) of an update.
func (u ClientUpdate) encode() (string, []byte, error) {
	body, err := json.Marshal(u.State)
	if err != nil {
		return "", nil, fmt.Errorf("could not marshal %s update: %w", u.Tag, err)
	}
	return u.Tag, body, nil
}

// publisher is the part of a ZMQ socket the updater uses.
type publisher interface {
	SendMessage(parts ...any) (int, error)
	Close() error
}

// UpdateQueue is the input to the client updater. Send never blocks on the
// publishing socket.
type UpdateQueue = unboundedchan.UnboundedChannel[ClientUpdate]

// NewUpdateQueue makes the queue feeding RunClientUpdater.
func NewUpdateQueue() *UpdateQueue {
	return unboundedchan.NewUnboundedChannel[ClientUpdate]()
}

// RunClientUpdater forwards any message from its input queue to the ZMQ publisher socket
// to publish any information that clients need to know. It returns when the
// queue is closed and drained.
func RunClientUpdater(updates *UpdateQueue, portstatus int) error {
	hostname := fmt.Sprintf("tcp://*:%d", portstatus)
	pubSocket, err := zmq.NewSocket(zmq.PUB)
	if err != nil {
		return err
	}
	if err := pubSocket.Bind(hostname); err != nil {
		pubSocket.Close()
		return fmt.Errorf("could not bind client updater to %s: %w", hostname, err)
	}
	publishUpdates(pubSocket, updates.Out())
	return nil
}

// publishUpdates sends each update as a 2-frame message and logs it, until
// the channel closes. Then it closes the socket.
func publishUpdates(pub publisher, updates <-chan ClientUpdate) {
	defer pub.Close()
	for update := range updates {
		tag, body, err := update.encode()
		if err != nil {
			ProblemLogger.Print(err)
			continue
		}
		if update.Tag != TagAlive {
			UpdateLogger.Printf("SEND %v %s", tag, body)
		}
		if _, err := pub.SendMessage(tag, body); err != nil {
			ProblemLogger.Printf("client updater could not send %s: %v", tag, err)
		}
	}
}

// RunHeartbeat queues an ALIVE message every period until abort closes.
func RunHeartbeat(updates *UpdateQueue, period time.Duration, abort <-chan struct{}) {
	ticker := time.NewTicker(period)
	defer ticker.Stop()
	for {
		select {
		case <-abort:
			return
		case <-ticker.C:
			updates.Send(ClientUpdate{TagAlive, AliveMessage{
				Alive:   true,
				Uptime:  time.Since(ViewerStartTime).Seconds(),
				Version: Build.Version,
			}})
		}
	}
}
