package txn

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	"go.uber.org/atomic"
	"xacto/pkg/a_misc/errmsg"
)

// markEvent is a begin, a done, or a wait request when waitCh is set.
type markEvent struct {
	id     uint64
	done   bool
	waitCh chan struct{}
}

// WaterMark tracks the largest id such that every id begun at or below it is
// done. All bookkeeping happens on one goroutine fed through eventCh.
type WaterMark struct {
	Name     string
	eventCh  chan markEvent
	stopCh   chan struct{}
	closedCh chan struct{}
	stopOnce sync.Once
	doneTill atomic.Uint64

	tracker *idTracker
}

func NewWaterMark(name string) *WaterMark {
	w := &WaterMark{
		Name:     name,
		eventCh:  make(chan markEvent),
		stopCh:   make(chan struct{}),
		closedCh: make(chan struct{}),
		tracker:  newIDTracker(),
	}
	go w.run()
	return w
}

func (w *WaterMark) Begin(id uint64) {
	w.send(markEvent{id: id})
}

func (w *WaterMark) Done(id uint64) {
	w.send(markEvent{id: id, done: true})
}

func (w *WaterMark) DoneTill() uint64 {
	return w.doneTill.Load()
}

// WaitFor blocks until DoneTill reaches id.
func (w *WaterMark) WaitFor(ctx context.Context, id uint64) error {
	if w.DoneTill() >= id {
		return nil
	}

	waitCh := make(chan struct{})
	if !w.send(markEvent{id: id, waitCh: waitCh}) {
		return errors.WithStack(errmsg.ManagerStopped)
	}

	select {
	case <-ctx.Done():
		return errors.WithStack(ctx.Err())
	case <-waitCh:
	}
	// Stop releases every waiter, reached or not.
	if w.DoneTill() < id {
		return errors.WithStack(errmsg.ManagerStopped)
	}
	return nil
}

func (w *WaterMark) Stop() {
	w.stopOnce.Do(func() {
		close(w.stopCh)
	})
	<-w.closedCh
}

// send returns false once the loop has exited.
func (w *WaterMark) send(event markEvent) bool {
	select {
	case w.eventCh <- event:
		return true
	case <-w.closedCh:
		return false
	}
}

func (w *WaterMark) run() {
	defer close(w.closedCh)
	for {
		select {
		case event := <-w.eventCh:
			if event.waitCh != nil {
				w.processWait(event)
			} else {
				w.processBeginDone(event)
			}
		case <-w.stopCh:
			w.tracker.closeAll()
			return
		}
	}
}

func (w *WaterMark) processWait(event markEvent) {
	if w.DoneTill() >= event.id {
		close(event.waitCh)
		return
	}
	w.tracker.addWaiter(event.id, event.waitCh)
}

func (w *WaterMark) processBeginDone(event markEvent) {
	if event.done {
		w.tracker.done(event.id)
	} else {
		w.tracker.begin(event.id)
	}

	doneTill := w.tracker.advance()
	w.doneTill.Store(doneTill)
	w.tracker.closeWaitersUntil(doneTill)
}
