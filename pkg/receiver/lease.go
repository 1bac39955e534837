package receiver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	clientv3 "go.etcd.io/etcd/client/v3"
	"go.etcd.io/etcd/client/v3/concurrency"
	"golang.org/x/sync/singleflight"
)

// LeaseManager records, in etcd, which driver instance currently owns
// liveness for a stream's receiver. It is purely additive: losing a lease
// never revokes anything the tracker itself has already accepted, it only
// lets a warm-standby driver detect that a receiver's previous owner has
// gone silent and it is safe to relaunch that receiver elsewhere.
type LeaseManager struct {
	client   *clientv3.Client
	driverID string
	ttl      int
	logger   *slog.Logger
	closed   atomic.Bool

	mu      sync.RWMutex
	owned   map[int]struct{}
	session *concurrency.Session

	acquireFlight singleflight.Group
}

const (
	receiverLeasePrefix    = "/streamcore/receiver-leases"
	defaultLeaseTTLSeconds = 10
)

// ErrNotOwner is returned when this driver does not currently hold the
// liveness lease for a stream's receiver.
var ErrNotOwner = errors.New("receiver: driver does not own this stream's receiver lease")

// ErrLeaseManagerClosed is returned once ReleaseAll has been called.
var ErrLeaseManagerClosed = errors.New("receiver: lease manager is shut down")

// LeaseManagerConfig configures a LeaseManager.
type LeaseManagerConfig struct {
	DriverID        string
	LeaseTTLSeconds int
	Logger          *slog.Logger
}

// NewLeaseManager creates a lease manager backed by the given etcd client.
// If cfg.DriverID is empty, a random one is generated so that each driver
// process claims leases under an identity distinct from any other instance
// racing to take over the same streams.
func NewLeaseManager(client *clientv3.Client, cfg LeaseManagerConfig) *LeaseManager {
	ttl := cfg.LeaseTTLSeconds
	if ttl <= 0 {
		ttl = defaultLeaseTTLSeconds
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	driverID := cfg.DriverID
	if driverID == "" {
		driverID = uuid.NewString()
	}
	return &LeaseManager{
		client:   client,
		driverID: driverID,
		ttl:      ttl,
		logger:   logger,
		owned:    make(map[int]struct{}),
	}
}

func leaseKey(streamID int) string {
	return fmt.Sprintf("%s/%d", receiverLeasePrefix, streamID)
}

// Acquire claims liveness ownership of streamID's receiver for this
// driver. Returns ErrNotOwner if another driver already holds it.
func (m *LeaseManager) Acquire(ctx context.Context, streamID int) error {
	if m.closed.Load() {
		return ErrLeaseManagerClosed
	}

	m.mu.RLock()
	if _, ok := m.owned[streamID]; ok {
		m.mu.RUnlock()
		return nil
	}
	m.mu.RUnlock()

	_, err, _ := m.acquireFlight.Do(fmt.Sprintf("%d", streamID), func() (interface{}, error) {
		return nil, m.doAcquire(ctx, streamID)
	})
	return err
}

func (m *LeaseManager) doAcquire(ctx context.Context, streamID int) error {
	session, err := m.getOrCreateSession(ctx)
	if err != nil {
		return fmt.Errorf("receiver: get lease session: %w", err)
	}

	key := leaseKey(streamID)
	txnCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	resp, err := m.client.Txn(txnCtx).
		If(clientv3.Compare(clientv3.CreateRevision(key), "=", 0)).
		Then(clientv3.OpPut(key, m.driverID, clientv3.WithLease(session.Lease()))).
		Else(clientv3.OpGet(key)).
		Commit()
	if err != nil {
		return fmt.Errorf("receiver: lease txn: %w", err)
	}
	if !resp.Succeeded {
		if len(resp.Responses) > 0 {
			if rr := resp.Responses[0].GetResponseRange(); rr != nil && len(rr.Kvs) > 0 && string(rr.Kvs[0].Value) == m.driverID {
				m.mu.Lock()
				m.owned[streamID] = struct{}{}
				m.mu.Unlock()
				return nil
			}
		}
		return ErrNotOwner
	}

	m.mu.Lock()
	m.owned[streamID] = struct{}{}
	m.mu.Unlock()
	m.logger.Info("acquired receiver liveness lease", "stream_id", streamID, "driver", m.driverID)
	return nil
}

func (m *LeaseManager) getOrCreateSession(ctx context.Context) (*concurrency.Session, error) {
	m.mu.Lock()
	if m.session != nil {
		select {
		case <-m.session.Done():
			m.session = nil
			m.owned = make(map[int]struct{})
		default:
			s := m.session
			m.mu.Unlock()
			return s, nil
		}
	}
	m.mu.Unlock()

	session, err := concurrency.NewSession(m.client, concurrency.WithTTL(m.ttl))
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	if m.closed.Load() {
		m.mu.Unlock()
		session.Close()
		return nil, ErrLeaseManagerClosed
	}
	if m.session != nil {
		select {
		case <-m.session.Done():
		default:
			s := m.session
			m.mu.Unlock()
			session.Close()
			return s, nil
		}
	}
	m.session = session
	go m.monitorSession(session)
	m.mu.Unlock()
	return session, nil
}

func (m *LeaseManager) monitorSession(session *concurrency.Session) {
	<-session.Done()
	m.mu.Lock()
	if m.session == session {
		m.session = nil
		count := len(m.owned)
		m.owned = make(map[int]struct{})
		m.mu.Unlock()
		m.logger.Warn("receiver lease session expired, cleared all ownership", "driver", m.driverID, "count", count)
	} else {
		m.mu.Unlock()
	}
}

// DriverID returns the identity this lease manager claims leases under.
func (m *LeaseManager) DriverID() string { return m.driverID }

// Owns reports whether this driver currently holds the liveness lease for
// streamID's receiver.
func (m *LeaseManager) Owns(streamID int) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.owned[streamID]
	return ok
}

// Release gives up ownership of a single stream's receiver lease.
func (m *LeaseManager) Release(streamID int) {
	m.mu.Lock()
	_, ok := m.owned[streamID]
	delete(m.owned, streamID)
	m.mu.Unlock()
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := m.client.Delete(ctx, leaseKey(streamID)); err != nil {
		m.logger.Warn("receiver: failed to delete lease key", "stream_id", streamID, "error", err)
	}
}

// ReleaseAll releases every held lease and rejects future acquisitions.
// Closing the shared session revokes the underlying etcd lease, removing
// every attached key atomically.
func (m *LeaseManager) ReleaseAll() {
	m.closed.Store(true)
	m.mu.Lock()
	session := m.session
	m.session = nil
	m.owned = make(map[int]struct{})
	m.mu.Unlock()
	if session != nil {
		session.Close()
	}
}
