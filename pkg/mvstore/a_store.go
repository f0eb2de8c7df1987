package mvstore

import (
	"fmt"
	"io"
	"sync"

	"github.com/pingcap/log"
	"github.com/pkg/errors"
	"github.com/tidwall/btree"
	"go.uber.org/zap"
	"xacto/pkg/a_misc/errmsg"
	"xacto/pkg/data"
	"xacto/pkg/txn"
)

type bucket struct {
	lock  sync.Mutex
	btree *btree.BTreeG[*entry]
}

// Store maps keys to version chains. Visibility is decided by transaction id:
// a transaction never touches a key whose newest version was written by a
// younger transaction.
type Store struct {
	mgr     *txn.Manager
	buckets [data.NumBuckets]*bucket

	stopLock sync.RWMutex
	stopped  bool
}

func New(mgr *txn.Manager) *Store {
	s := &Store{mgr: mgr}
	for i := range s.buckets {
		s.buckets[i] = &bucket{
			btree: btree.NewBTreeG(entryLess),
		}
	}
	return s
}

// Get returns the value of key as seen by t and a reference on it owned by
// the caller. It consumes key. A nil blob means the key has no value.
func (s *Store) Get(t *txn.Transaction, key *data.Key) (txn.Status, *data.Blob, error) {
	var result *data.Blob
	status, err := s.apply(t, key, "get", func(e *entry) {
		last := e.last
		if last != nil && last.Creator == t {
			result = last.Blob.Retain("get own version")
			return
		}

		var value *data.Blob
		if last != nil {
			value = last.Blob.Retain("read version")
			s.observe(t, last)
		}
		e.append(data.NewVersion(t, value))
		result = value.Retain("get result")
	})
	return status, result, err
}

// Put makes value the version of key written by t. It consumes key and value.
func (s *Store) Put(t *txn.Transaction, key *data.Key, value *data.Blob) (txn.Status, error) {
	consumed := false
	status, err := s.apply(t, key, "put", func(e *entry) {
		consumed = true
		last := e.last
		if last != nil && last.Creator == t {
			last.SetBlob(value)
			return
		}
		if last != nil {
			s.observe(t, last)
		}
		e.append(data.NewVersion(t, value))
	})
	if !consumed {
		value.Release("put refused")
	}
	return status, err
}

func (s *Store) observe(t *txn.Transaction, last *data.Version) {
	if last.Creator.Status() == txn.Committed {
		return
	}
	// the creator may be aborted already; t then aborts at commit
	t.AddDependency(last.Creator)
}

// apply runs fn on key's entry under the bucket lock once the chain is
// collected and t is known to be allowed to access it.
func (s *Store) apply(t *txn.Transaction, key *data.Key, op string, fn func(e *entry)) (txn.Status, error) {
	if key == nil {
		return t.Status(), errors.WithStack(errmsg.KeyIsEmpty)
	}

	s.stopLock.RLock()
	defer s.stopLock.RUnlock()
	if s.stopped {
		key.Dispose()
		return t.Status(), errors.WithStack(errmsg.StoreStopped)
	}

	b := s.buckets[key.Hash()]
	b.lock.Lock()
	defer b.lock.Unlock()

	e := b.lookup(key)
	if err := e.gc(); err != nil {
		opCounter.WithLabelValues(op, "error").Inc()
		return t.Status(), err
	}

	if status := t.Status(); status != txn.Pending {
		opCounter.WithLabelValues(op, status.String()).Inc()
		return status, nil
	}

	if last := e.last; last != nil && last.Creator.ID() > t.ID() {
		log.Debug("transaction too old for key",
			zap.Uint64("id", t.ID()),
			zap.Uint64("last-writer", last.Creator.ID()),
			zap.Stringer("key", e.key))
		status, err := t.Retain("store abort").Abort()
		opCounter.WithLabelValues(op, status.String()).Inc()
		return status, err
	}

	fn(e)
	opCounter.WithLabelValues(op, "ok").Inc()
	return txn.Pending, nil
}

// lookup returns the entry of key, inserting one when missing. It consumes
// key either way.
func (b *bucket) lookup(key *data.Key) *entry {
	probe := &entry{key: key}
	if e, ok := b.btree.Get(probe); ok {
		key.Dispose()
		return e
	}
	b.btree.Set(probe)
	keysGauge.Inc()
	return probe
}

// Len is the number of keys in the store.
func (s *Store) Len() int {
	n := 0
	for _, b := range s.buckets {
		b.lock.Lock()
		n += b.btree.Len()
		b.lock.Unlock()
	}
	return n
}

func (s *Store) Show(w io.Writer) {
	fmt.Fprintf(w, "store: keys = %d\n", s.Len())
	for _, b := range s.buckets {
		b.lock.Lock()
		b.btree.Scan(func(e *entry) bool {
			e.show(w)
			return true
		})
		b.lock.Unlock()
	}
}

// Stop disposes every version and key. Later operations fail with
// errmsg.StoreStopped.
func (s *Store) Stop() {
	s.stopLock.Lock()
	defer s.stopLock.Unlock()
	if s.stopped {
		return
	}
	s.stopped = true

	for _, b := range s.buckets {
		b.lock.Lock()
		var entries []*entry
		b.btree.Scan(func(e *entry) bool {
			entries = append(entries, e)
			return true
		})
		b.btree.Clear()
		b.lock.Unlock()

		for _, e := range entries {
			e.dispose()
		}
		keysGauge.Sub(float64(len(entries)))
	}
	log.Info("store stopped")
}
