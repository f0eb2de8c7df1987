package txn

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/pingcap/log"
	"github.com/pkg/errors"
	"github.com/tidwall/btree"
	"go.uber.org/atomic"
	"go.uber.org/zap"
	"xacto/pkg/a_misc/errmsg"
)

type Manager struct {
	sync.Mutex
	nextID  atomic.Uint64
	stopped bool

	// live holds every transaction that still has references, by id.
	live btree.Map[uint64, *Transaction]

	// `mark` follows ids from Create to their terminal transition, so
	// Drain can wait until every transaction created so far is decided.
	mark *WaterMark
}

func NewManager() *Manager {
	return &Manager{
		mark: NewWaterMark("txn"),
	}
}

// Create returns a new PENDING transaction holding one reference for the
// caller.
func (m *Manager) Create() (*Transaction, error) {
	m.Lock()
	defer m.Unlock()

	if m.stopped {
		return nil, errors.WithStack(errmsg.ManagerStopped)
	}

	// ids enter the watermark in order because both happen under the lock.
	t := &Transaction{
		id:     m.nextID.Inc(),
		refs:   1,
		status: Pending,
		doneCh: make(chan struct{}),
		mgr:    m,
	}
	m.live.Set(t.id, t)
	m.mark.Begin(t.id)
	liveGauge.Inc()

	log.Debug("create transaction", zap.Uint64("id", t.id))
	return t, nil
}

func (m *Manager) finish(t *Transaction, status Status) {
	m.mark.Done(t.id)
	finishedCounter.WithLabelValues(status.String()).Inc()
}

func (m *Manager) forget(t *Transaction) {
	m.Lock()
	_, ok := m.live.Delete(t.id)
	m.Unlock()
	if ok {
		liveGauge.Dec()
	}
}

// Live is the number of transactions not yet freed.
func (m *Manager) Live() int {
	m.Lock()
	defer m.Unlock()
	return m.live.Len()
}

func (m *Manager) LastID() uint64 {
	return m.nextID.Load()
}

// DoneTill is the largest id such that every transaction up to it is decided.
func (m *Manager) DoneTill() uint64 {
	return m.mark.DoneTill()
}

// Drain blocks until every transaction created so far is committed or
// aborted.
func (m *Manager) Drain(ctx context.Context) error {
	return m.mark.WaitFor(ctx, m.LastID())
}

func (m *Manager) ShowAll(w io.Writer) {
	m.Lock()
	txns := make([]*Transaction, 0, m.live.Len())
	m.live.Scan(func(_ uint64, t *Transaction) bool {
		txns = append(txns, t)
		return true
	})
	m.Unlock()

	fmt.Fprintf(w, "transactions: live = %d, last id = %d, done till = %d\n", len(txns), m.LastID(), m.DoneTill())
	for _, t := range txns {
		t.Show(w)
	}
}

// Stop finalizes the manager. Transactions still referenced are reported and
// dropped from the registry; Create fails afterwards.
func (m *Manager) Stop() {
	m.Lock()
	if m.stopped {
		m.Unlock()
		return
	}
	m.stopped = true
	var leftovers []*Transaction
	m.live.Scan(func(_ uint64, t *Transaction) bool {
		leftovers = append(leftovers, t)
		return true
	})
	m.live = btree.Map[uint64, *Transaction]{}
	m.Unlock()

	for _, t := range leftovers {
		log.Warn("transaction still referenced at shutdown",
			zap.Uint64("id", t.id),
			zap.Int("refs", t.Refs()),
			zap.Stringer("status", t.Status()))
	}
	liveGauge.Sub(float64(len(leftovers)))
	m.mark.Stop()
}
