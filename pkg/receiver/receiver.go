// Package receiver implements the driver-side receiver tracker (component
// E): a single serialized actor coordinating registration, durable block
// reports, error reports, and deregistration for a fleet of remote
// receivers, plus the per-stream queues consumed by the streaming
// execution loop.
package receiver

import (
	"bytes"
	"context"
	"encoding/gob"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/novatechflow/streamcore/pkg/blockstore"
	"github.com/novatechflow/streamcore/pkg/wal"
)

// ReceivedBlockInfo describes one block reported by a receiver. It is
// durably appended to the metadata WAL before being enqueued, and is never
// mutated after creation.
type ReceivedBlockInfo struct {
	StreamID     int
	Block        blockstore.BlockID
	NumRecords   int64
	UserMetadata []byte
	WALSegment   *wal.FileSegment
}

// State is the driver-held view of one receiver.
type State struct {
	StreamID  int
	Type      string
	Host      string
	Active    bool
	LastError string
}

// Config configures a Tracker.
type Config struct {
	// KnownStreamIDs enumerates the input streams the tracker will accept
	// registrations and blocks for. RegisterReceiver fails for any other
	// stream id.
	KnownStreamIDs []int
	// WAL is the metadata write-ahead log. Optional; when nil, AddBlock
	// skips durability and always succeeds if the receiver is active.
	WAL     *wal.Manager
	Logger  *slog.Logger
	Metrics *Metrics
}

// Tracker is the driver-side singleton coordinating N remote receivers.
type Tracker struct {
	known   map[int]bool
	wal     *wal.Manager
	logger  *slog.Logger
	metrics *Metrics

	inbox chan interface{}
	done  chan struct{}

	statesMu sync.Mutex
	states   map[int]*State

	queueMu sync.Mutex
	queues  map[int][]ReceivedBlockInfo

	stopOnce   sync.Once
	cancelRecv context.CancelFunc
	launcherWG sync.WaitGroup
}

type registerMsg struct {
	streamID int
	recvType string
	host     string
	reply    chan error
}

type addBlockMsg struct {
	info  ReceivedBlockInfo
	reply chan error
}

type reportErrorMsg struct {
	streamID int
	message  string
	err      error
}

type deregisterMsg struct {
	streamID int
	message  string
	err      error
	reply    chan error
}

type stopMsg struct {
	reply chan struct{}
}

// NewTracker constructs a tracker over the given known streams and starts
// its actor loop. If cfg.WAL is non-nil, the tracker immediately replays
// every previously logged ReceivedBlockInfo and re-enqueues it under its
// stream's queue before returning, so recovery completes before the first
// batch is assembled.
func NewTracker(cfg Config) (*Tracker, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	metrics := cfg.Metrics
	if metrics == nil {
		metrics = NewMetrics(nil)
	}

	known := make(map[int]bool, len(cfg.KnownStreamIDs))
	for _, id := range cfg.KnownStreamIDs {
		known[id] = true
	}

	t := &Tracker{
		known:   known,
		wal:     cfg.WAL,
		logger:  logger,
		metrics: metrics,
		inbox:   make(chan interface{}, 64),
		done:    make(chan struct{}),
		states:  make(map[int]*State),
		queues:  make(map[int][]ReceivedBlockInfo),
	}

	if t.wal != nil {
		if err := t.recover(); err != nil {
			return nil, fmt.Errorf("receiver: recover from wal: %w", err)
		}
	}

	go t.run()
	return t, nil
}

func (t *Tracker) recover() error {
	it, err := t.wal.ReadFromLog()
	if err != nil {
		return err
	}
	defer it.Close()

	count := 0
	for it.Next() {
		info, err := decodeBlockInfo(it.Record())
		if err != nil {
			return fmt.Errorf("decode recovered block info: %w", err)
		}
		t.queueMu.Lock()
		t.queues[info.StreamID] = append(t.queues[info.StreamID], info)
		t.queueMu.Unlock()
		count++
	}
	if err := it.Err(); err != nil {
		return err
	}
	if count > 0 {
		t.logger.Info("receiver tracker recovered blocks from wal", "count", count)
	}
	return nil
}

func (t *Tracker) run() {
	defer close(t.done)
	for msg := range t.inbox {
		switch m := msg.(type) {
		case registerMsg:
			m.reply <- t.handleRegister(m.streamID, m.recvType, m.host)
		case addBlockMsg:
			m.reply <- t.handleAddBlock(m.info)
		case reportErrorMsg:
			t.handleReportError(m.streamID, m.message, m.err)
		case deregisterMsg:
			m.reply <- t.handleDeregister(m.streamID, m.message, m.err)
		case stopMsg:
			close(m.reply)
			return
		}
	}
}

// RegisterReceiver registers a receiver for streamID. Returns
// ErrUnknownStream if streamID is not a known input.
func (t *Tracker) RegisterReceiver(streamID int, recvType, host string) error {
	reply := make(chan error, 1)
	t.inbox <- registerMsg{streamID: streamID, recvType: recvType, host: host, reply: reply}
	return <-reply
}

// AddBlock durably appends info to the metadata WAL (if configured), then
// enqueues it for the next batch. Returns ErrReceiverNotActive if the
// receiver never registered or already terminated, or ErrWALUnavailable if
// the durable append failed, without enqueuing.
func (t *Tracker) AddBlock(info ReceivedBlockInfo) error {
	reply := make(chan error, 1)
	t.inbox <- addBlockMsg{info: info, reply: reply}
	return <-reply
}

// ReportError records the latest error for streamID without changing its
// active state.
func (t *Tracker) ReportError(streamID int, message string, err error) {
	t.inbox <- reportErrorMsg{streamID: streamID, message: message, err: err}
}

// DeregisterReceiver transitions streamID to Terminated. Tolerated as a
// no-op if already Terminated.
func (t *Tracker) DeregisterReceiver(streamID int, message string, err error) error {
	reply := make(chan error, 1)
	t.inbox <- deregisterMsg{streamID: streamID, message: message, err: err, reply: reply}
	return <-reply
}

func (t *Tracker) handleRegister(streamID int, recvType, host string) error {
	if !t.known[streamID] {
		return ErrUnknownStream
	}
	t.statesMu.Lock()
	defer t.statesMu.Unlock()
	s, ok := t.states[streamID]
	if !ok {
		s = &State{StreamID: streamID}
		t.states[streamID] = s
	}
	s.Type = recvType
	s.Host = host
	s.Active = true
	t.metrics.receiversRegistered.Inc()
	t.logger.Info("receiver registered", "stream_id", streamID, "type", recvType, "host", host)
	return nil
}

func (t *Tracker) handleAddBlock(info ReceivedBlockInfo) error {
	t.statesMu.Lock()
	s, ok := t.states[info.StreamID]
	active := ok && s.Active
	t.statesMu.Unlock()
	if !active {
		return ErrReceiverNotActive
	}

	if t.wal != nil {
		payload, err := encodeBlockInfo(info)
		if err != nil {
			t.logger.Warn("receiver: failed to encode block info", "stream_id", info.StreamID, "error", err)
			return ErrWALUnavailable
		}
		if _, err := t.wal.Write(payload); err != nil {
			t.logger.Warn("receiver: wal append failed for block", "stream_id", info.StreamID, "block", info.Block, "error", err)
			return ErrWALUnavailable
		}
	}

	t.queueMu.Lock()
	t.queues[info.StreamID] = append(t.queues[info.StreamID], info)
	t.queueMu.Unlock()
	t.metrics.blocksAccepted.Inc()
	return nil
}

func (t *Tracker) handleReportError(streamID int, message string, err error) {
	t.statesMu.Lock()
	defer t.statesMu.Unlock()
	s, ok := t.states[streamID]
	if !ok {
		s = &State{StreamID: streamID}
		t.states[streamID] = s
	}
	s.LastError = combineError(message, err)
	t.metrics.errorsReported.Inc()
	t.logger.Warn("receiver reported error", "stream_id", streamID, "message", message, "error", err)
}

func (t *Tracker) handleDeregister(streamID int, message string, err error) error {
	t.statesMu.Lock()
	defer t.statesMu.Unlock()
	s, ok := t.states[streamID]
	if !ok {
		s = &State{StreamID: streamID}
		t.states[streamID] = s
	}
	if !s.Active && ok {
		return nil // already Terminated: tolerated no-op
	}
	s.Active = false
	if message != "" || err != nil {
		s.LastError = combineError(message, err)
	}
	t.metrics.receiversDeregistered.Inc()
	t.logger.Info("receiver deregistered", "stream_id", streamID, "message", message, "error", err)
	return nil
}

func combineError(message string, err error) string {
	if err == nil {
		return message
	}
	if message == "" {
		return err.Error()
	}
	return fmt.Sprintf("%s: %s", message, err)
}

// GetReceivedBlockInfo atomically dequeues every block reported so far for
// streamID. Each call partitions the queue into at most one batch
// assignment: blocks are never delivered twice.
func (t *Tracker) GetReceivedBlockInfo(streamID int) []ReceivedBlockInfo {
	t.queueMu.Lock()
	defer t.queueMu.Unlock()
	blocks := t.queues[streamID]
	delete(t.queues, streamID)
	return blocks
}

// StateOf returns a snapshot of the driver-held state for streamID.
func (t *Tracker) StateOf(streamID int) (State, bool) {
	t.statesMu.Lock()
	defer t.statesMu.Unlock()
	s, ok := t.states[streamID]
	if !ok {
		return State{}, false
	}
	return *s, true
}

// Stop sends a stop signal to every registered receiver by cancelling the
// context passed to Start, joins the launcher with a bounded wait, logs any
// receivers still active, then stops the actor and the WAL manager. Stop is
// idempotent.
func (t *Tracker) Stop() {
	t.stopOnce.Do(func() {
		if t.cancelRecv != nil {
			t.cancelRecv()
		}

		waitDone := make(chan struct{})
		go func() {
			t.launcherWG.Wait()
			close(waitDone)
		}()
		select {
		case <-waitDone:
		case <-time.After(10 * time.Second):
			t.statesMu.Lock()
			for id, s := range t.states {
				if s.Active {
					t.logger.Warn("receiver still active after bounded stop wait", "stream_id", id, "host", s.Host)
				}
			}
			t.statesMu.Unlock()
		}

		reply := make(chan struct{})
		t.inbox <- stopMsg{reply: reply}
		<-reply
		<-t.done

		if t.wal != nil {
			if err := t.wal.Close(); err != nil {
				t.logger.Warn("receiver: wal manager close failed", "error", err)
			}
		}
	})
}

func encodeBlockInfo(info ReceivedBlockInfo) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(info); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodeBlockInfo(payload []byte) (ReceivedBlockInfo, error) {
	var info ReceivedBlockInfo
	if err := gob.NewDecoder(bytes.NewReader(payload)).Decode(&info); err != nil {
		return ReceivedBlockInfo{}, err
	}
	return info, nil
}
