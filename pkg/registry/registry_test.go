package registry

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"xacto/pkg/a_misc/errmsg"
)

func TestRegisterAndUnregister(t *testing.T) {
	r := New()
	c, peer := net.Pipe()
	defer peer.Close()

	require.NoError(t, r.Register(c))
	assert.Equal(t, errmsg.AlreadyRegistered, errors.Cause(r.Register(c)))
	assert.Equal(t, 1, r.Count())

	require.NoError(t, r.Unregister(c))
	assert.Equal(t, errmsg.NotRegistered, errors.Cause(r.Unregister(c)))
	assert.Equal(t, 0, r.Count())
}

func TestWaitForEmptyWithNoConnections(t *testing.T) {
	r := New()
	assert.NoError(t, r.WaitForEmpty(context.Background()))
}

func TestShutdownAllClosesConnections(t *testing.T) {
	r := New()
	c, peer := net.Pipe()
	require.NoError(t, r.Register(c))

	r.ShutdownAll()
	_, err := peer.Read(make([]byte, 1))
	assert.Error(t, err)
	assert.Equal(t, 1, r.Count())

	other, otherPeer := net.Pipe()
	defer otherPeer.Close()
	assert.Equal(t, errmsg.RegistryShutdown, errors.Cause(r.Register(other)))

	require.NoError(t, r.Unregister(c))
	assert.NoError(t, r.WaitForEmpty(context.Background()))
}

func TestShutdownAllHalfClosesTCP(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer l.Close()

	client, err := net.Dial("tcp", l.Addr().String())
	require.NoError(t, err)
	defer client.Close()
	server, err := l.Accept()
	require.NoError(t, err)
	defer server.Close()

	r := New()
	require.NoError(t, r.Register(server))
	r.ShutdownAll()

	// the worker side sees EOF
	_, err = server.Read(make([]byte, 1))
	assert.Error(t, err)
	_, err = client.Read(make([]byte, 1))
	assert.Error(t, err)
	require.NoError(t, r.Unregister(server))
}

func TestWaitForEmptyBurstUnregister(t *testing.T) {
	r := New()
	const n = 50
	conns := make([]net.Conn, n)
	for i := range conns {
		c, peer := net.Pipe()
		defer peer.Close()
		conns[i] = c
		require.NoError(t, r.Register(c))
	}
	r.ShutdownAll()

	var waiters sync.WaitGroup
	returned := make(chan struct{}, 4)
	for i := 0; i < 4; i++ {
		waiters.Add(1)
		go func() {
			defer waiters.Done()
			assert.NoError(t, r.WaitForEmpty(context.Background()))
			assert.Equal(t, 0, r.Count())
			returned <- struct{}{}
		}()
	}

	time.Sleep(10 * time.Millisecond)
	assert.Len(t, returned, 0)

	var wg sync.WaitGroup
	for _, c := range conns {
		wg.Add(1)
		go func(c net.Conn) {
			defer wg.Done()
			assert.NoError(t, r.Unregister(c))
		}(c)
	}
	wg.Wait()
	waiters.Wait()
	assert.Len(t, returned, 4)
}

func TestWaitForEmptyHonoursContext(t *testing.T) {
	r := New()
	c, peer := net.Pipe()
	defer peer.Close()
	require.NoError(t, r.Register(c))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	err := r.WaitForEmpty(ctx)
	assert.Equal(t, context.DeadlineExceeded, errors.Cause(err))
	require.NoError(t, r.Unregister(c))
}
