package txn

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/pingcap/log"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"xacto/pkg/a_misc/errmsg"
)

type Transaction struct {
	mu     sync.Mutex
	id     uint64
	refs   int
	status Status

	deps       []*Transaction // registration order; each edge holds a reference
	dependents int            // transactions that registered this one as a dependency
	doneCh     chan struct{}  // closed on the terminal transition

	mgr *Manager
}

func (t *Transaction) ID() uint64 {
	return t.id
}

// Retain takes one more reference on t. why is only logged.
func (t *Transaction) Retain(why string) *Transaction {
	if t == nil {
		return nil
	}
	t.mu.Lock()
	if t.refs <= 0 {
		t.mu.Unlock()
		panic(fmt.Sprintf("txn %d: retain after free", t.id))
	}
	t.refs++
	refs := t.refs
	t.mu.Unlock()

	log.Debug("retain transaction", zap.Uint64("id", t.id), zap.Int("refs", refs), zap.String("why", why))
	return t
}

// Release drops one reference. The last release drops every dependency edge
// and removes t from the manager.
func (t *Transaction) Release(why string) {
	if t == nil {
		return
	}
	t.mu.Lock()
	if t.refs <= 0 {
		t.mu.Unlock()
		panic(fmt.Sprintf("txn %d: release with refcount %d", t.id, t.refs))
	}
	t.refs--
	refs := t.refs
	if refs > 0 {
		t.mu.Unlock()
		log.Debug("release transaction", zap.Uint64("id", t.id), zap.Int("refs", refs), zap.String("why", why))
		return
	}

	deps := t.deps
	t.deps = nil
	orphaned := t.status == Pending
	if orphaned {
		t.status = Aborted
		close(t.doneCh)
	}
	t.mu.Unlock()

	if orphaned {
		log.Warn("transaction freed while pending, marking aborted", zap.Uint64("id", t.id), zap.String("why", why))
		t.mgr.finish(t, Aborted)
	}
	for _, d := range deps {
		d.Release("dependency edge dropped")
	}
	t.mgr.forget(t)
	log.Debug("free transaction", zap.Uint64("id", t.id), zap.String("why", why))
}

// AddDependency records that t observed a value created by d, so t may not
// commit before d is decided. Adding the same d twice is a no-op.
func (t *Transaction) AddDependency(d *Transaction) bool {
	if t == nil || d == nil || t == d {
		return false
	}

	t.mu.Lock()
	for _, dep := range t.deps {
		if dep == d {
			t.mu.Unlock()
			return false
		}
	}
	t.deps = append(t.deps, d)
	t.mu.Unlock()

	d.mu.Lock()
	if d.refs <= 0 {
		d.mu.Unlock()
		panic(fmt.Sprintf("txn %d: dependency on freed txn %d", t.id, d.id))
	}
	d.refs++
	d.dependents++
	d.mu.Unlock()

	log.Debug("add dependency", zap.Uint64("id", t.id), zap.Uint64("dependency", d.id))
	return true
}

// Commit waits for every dependency to be decided and commits t unless one
// of them aborted, in which case t aborts too. It consumes one reference.
//
// Cancelling ctx while waiting aborts t.
func (t *Transaction) Commit(ctx context.Context) (Status, error) {
	t.mu.Lock()
	switch t.status {
	case Aborted:
		t.mu.Unlock()
		t.Release("commit of aborted transaction")
		return Aborted, nil
	case Committed:
		t.mu.Unlock()
		t.Release("commit of committed transaction")
		return Committed, errors.WithStack(errmsg.AlreadyCommitted)
	}
	deps := make([]*Transaction, len(t.deps))
	copy(deps, t.deps)
	t.mu.Unlock()

	start := time.Now()
	for _, d := range deps {
		select {
		case <-d.doneCh:
		case <-ctx.Done():
			log.Info("commit wait cancelled", zap.Uint64("id", t.id), zap.Uint64("waiting-for", d.id))
			status, err := t.Abort()
			if err != nil {
				return status, err
			}
			return status, errors.WithStack(ctx.Err())
		}
	}
	commitWaitHistogram.Observe(time.Since(start).Seconds())

	for _, d := range deps {
		if d.Status() == Aborted {
			log.Debug("cascading abort", zap.Uint64("id", t.id), zap.Uint64("dependency", d.id))
			return t.Abort()
		}
	}

	t.mu.Lock()
	if t.status != Pending {
		// aborted by the store while we were waiting
		status := t.status
		t.mu.Unlock()
		t.Release("commit lost to abort")
		return status, nil
	}
	t.status = Committed
	close(t.doneCh)
	t.mu.Unlock()

	t.mgr.finish(t, Committed)
	t.Release("committed")
	return Committed, nil
}

// Abort moves a pending t to ABORTED and wakes everyone waiting on it. It
// consumes one reference. Aborting a committed transaction returns an
// *InvariantError and leaves it committed.
func (t *Transaction) Abort() (Status, error) {
	t.mu.Lock()
	switch t.status {
	case Aborted:
		t.mu.Unlock()
		t.Release("abort of aborted transaction")
		return Aborted, nil
	case Committed:
		t.mu.Unlock()
		t.Release("abort of committed transaction")
		return Committed, errors.WithStack(&InvariantError{ID: t.id, Status: Committed, Op: "abort"})
	}
	t.status = Aborted
	close(t.doneCh)
	t.mu.Unlock()

	t.mgr.finish(t, Aborted)
	t.Release("aborted")
	return Aborted, nil
}

// Status returns a snapshot. PENDING may change right after the call,
// COMMITTED and ABORTED never do.
func (t *Transaction) Status() Status {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.status
}

// Done is closed once t is committed or aborted.
func (t *Transaction) Done() <-chan struct{} {
	return t.doneCh
}

func (t *Transaction) Refs() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.refs
}

func (t *Transaction) Dependents() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.dependents
}

func (t *Transaction) Dependencies() []uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	ids := make([]uint64, 0, len(t.deps))
	for _, d := range t.deps {
		ids = append(ids, d.id)
	}
	return ids
}

// Show prints a one-line dump of t. Debugging only.
func (t *Transaction) Show(w io.Writer) {
	t.mu.Lock()
	id, refs, status, dependents := t.id, t.refs, t.status, t.dependents
	deps := make([]uint64, 0, len(t.deps))
	for _, d := range t.deps {
		deps = append(deps, d.id)
	}
	t.mu.Unlock()
	fmt.Fprintf(w, "id = %d, refs = %d, status = %s, dependents = %d, deps = %v\n", id, refs, status, dependents, deps)
}
