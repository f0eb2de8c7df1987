package registry

import (
	"context"
	"net"
	"sync"

	"github.com/pingcap/log"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"xacto/pkg/a_misc/errmsg"
)

type halfCloser interface {
	CloseRead() error
	CloseWrite() error
}

// Registry keeps track of live client connections so shutdown can close them
// and wait until every worker is gone.
type Registry struct {
	mu       sync.Mutex
	conns    map[net.Conn]struct{}
	shutdown bool

	// emptyCh is closed whenever no connection is registered.
	emptyCh chan struct{}
}

func New() *Registry {
	r := &Registry{
		conns:   make(map[net.Conn]struct{}),
		emptyCh: make(chan struct{}),
	}
	close(r.emptyCh)
	return r
}

func (r *Registry) Register(c net.Conn) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.shutdown {
		return errors.WithStack(errmsg.RegistryShutdown)
	}
	if _, ok := r.conns[c]; ok {
		return errors.WithStack(errmsg.AlreadyRegistered)
	}
	if len(r.conns) == 0 {
		r.emptyCh = make(chan struct{})
	}
	r.conns[c] = struct{}{}
	return nil
}

func (r *Registry) Unregister(c net.Conn) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.conns[c]; !ok {
		return errors.WithStack(errmsg.NotRegistered)
	}
	delete(r.conns, c)
	if len(r.conns) == 0 {
		close(r.emptyCh)
	}
	return nil
}

// ShutdownAll refuses new registrations and shuts down every registered
// connection. Connections stay registered until their workers unregister.
func (r *Registry) ShutdownAll() {
	r.mu.Lock()
	r.shutdown = true
	conns := make([]net.Conn, 0, len(r.conns))
	for c := range r.conns {
		conns = append(conns, c)
	}
	r.mu.Unlock()

	for _, c := range conns {
		var err error
		if hc, ok := c.(halfCloser); ok {
			err = hc.CloseRead()
			if werr := hc.CloseWrite(); err == nil {
				err = werr
			}
		} else {
			err = c.Close()
		}
		if err != nil {
			log.Warn("shutdown connection failed", zap.Stringer("remote", c.RemoteAddr()), zap.Error(err))
		}
	}
	log.Info("shut down client connections", zap.Int("count", len(conns)))
}

// WaitForEmpty blocks until no connection is registered.
func (r *Registry) WaitForEmpty(ctx context.Context) error {
	for {
		r.mu.Lock()
		if len(r.conns) == 0 {
			r.mu.Unlock()
			return nil
		}
		emptyCh := r.emptyCh
		r.mu.Unlock()

		select {
		case <-emptyCh:
		case <-ctx.Done():
			return errors.WithStack(ctx.Err())
		}
	}
}

func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.conns)
}
