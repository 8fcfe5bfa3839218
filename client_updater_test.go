package h5viewer

import (
	"bytes"
	"encoding/json"
	"log"
	"math"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakePublisher records every message instead of sending it.
type fakePublisher struct {
	sync.Mutex
	messages [][]any
	closed   bool
}

func (p *fakePublisher) SendMessage(parts ...any) (int, error) {
	p.Lock()
	defer p.Unlock()
	p.messages = append(p.messages, parts)
	return len(parts), nil
}

func (p *fakePublisher) Close() error {
	p.Lock()
	defer p.Unlock()
	p.closed = true
	return nil
}

func captureLoggers(t *testing.T) (*bytes.Buffer, *bytes.Buffer) {
	t.Helper()
	var problems, updates bytes.Buffer
	oldProblem, oldUpdate := ProblemLogger, UpdateLogger
	ProblemLogger = log.New(&problems, "", 0)
	UpdateLogger = log.New(&updates, "", 0)
	t.Cleanup(func() {
		ProblemLogger, UpdateLogger = oldProblem, oldUpdate
	})
	return &problems, &updates
}

func TestPublishUpdates(t *testing.T) {
	problems, updates := captureLoggers(t)
	queue := NewUpdateQueue()
	queue.Send(ClientUpdate{TagFileOpened, FileOpenedMessage{File: "/data/a.h5", NGroups: 2, NDatasets: 3}})
	queue.Send(ClientUpdate{TagAlive, AliveMessage{Alive: true}})
	queue.Send(ClientUpdate{TagStatus, math.NaN()}) // cannot be encoded
	queue.Send(ClientUpdate{TagDatasetViewed, DatasetViewedMessage{File: "/data/a.h5", Path: "/x", Shape: []uint64{4}}})
	queue.Close()

	pub := &fakePublisher{}
	publishUpdates(pub, queue.Out())
	assert.True(t, pub.closed)

	require.Len(t, pub.messages, 3)
	var tags []string
	for _, m := range pub.messages {
		require.Len(t, m, 2)
		tags = append(tags, m[0].(string))
	}
	assert.Equal(t, []string{TagFileOpened, TagAlive, TagDatasetViewed}, tags)

	var opened FileOpenedMessage
	require.NoError(t, json.Unmarshal(pub.messages[0][1].([]byte), &opened))
	assert.Equal(t, 3, opened.NDatasets)

	assert.Contains(t, updates.String(), "SEND FILEOPENED")
	assert.Contains(t, updates.String(), "SEND DATASETVIEWED")
	assert.NotContains(t, updates.String(), "ALIVE", "heartbeats are not logged")
	assert.True(t, strings.Contains(problems.String(), "STATUS"), "encoding failure should be logged")
}

func TestRunHeartbeat(t *testing.T) {
	queue := NewUpdateQueue()
	abort := make(chan struct{})
	done := make(chan struct{})
	go func() {
		RunHeartbeat(queue, 5*time.Millisecond, abort)
		close(done)
	}()

	select {
	case u := <-queue.Out():
		assert.Equal(t, TagAlive, u.Tag)
		alive, ok := u.State.(AliveMessage)
		require.True(t, ok)
		assert.True(t, alive.Alive)
		assert.Equal(t, Build.Version, alive.Version)
	case <-time.After(2 * time.Second):
		t.Fatal("no heartbeat within 2 s")
	}
	close(abort)
	<-done
	queue.Close()
	for range queue.Out() {
	}
}
