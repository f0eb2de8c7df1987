package client

import (
	"net"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"xacto/pkg/a_misc/errmsg"
	"xacto/pkg/protocol"
	"xacto/pkg/txn"
)

// fakeServer accepts one connection and hands it to script.
func fakeServer(t *testing.T, script func(conn net.Conn)) string {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	done := make(chan struct{})
	go func() {
		defer close(done)
		conn, err := l.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		script(conn)
	}()
	t.Cleanup(func() {
		l.Close()
		<-done
	})
	return l.Addr().String()
}

func recv(t *testing.T, conn net.Conn, typ protocol.Type) (*protocol.Packet, []byte) {
	pkt, data, err := protocol.Recv(conn)
	require.NoError(t, err)
	assert.Equal(t, typ, pkt.Type)
	return pkt, data
}

func send(t *testing.T, conn net.Conn, typ protocol.Type, status txn.Status, serial uint32, data []byte) {
	pkt := protocol.NewPacket(typ, status, serial)
	pkt.Null = typ == protocol.Value && data == nil
	require.NoError(t, protocol.Send(conn, pkt, data))
}

func TestPutGetCommitSerials(t *testing.T) {
	addr := fakeServer(t, func(conn net.Conn) {
		req, _ := recv(t, conn, protocol.Put)
		assert.Equal(t, uint32(1), req.Serial)
		_, key := recv(t, conn, protocol.Data)
		assert.Equal(t, []byte("HDD"), key)
		_, value := recv(t, conn, protocol.Data)
		assert.Equal(t, []byte("Hard disk"), value)
		send(t, conn, protocol.Reply, txn.Pending, req.Serial, nil)

		req, _ = recv(t, conn, protocol.Get)
		assert.Equal(t, uint32(2), req.Serial)
		recv(t, conn, protocol.Data)
		send(t, conn, protocol.Reply, txn.Pending, req.Serial, nil)
		send(t, conn, protocol.Value, txn.Pending, req.Serial, []byte("Hard disk"))

		req, _ = recv(t, conn, protocol.Commit)
		assert.Equal(t, uint32(3), req.Serial)
		send(t, conn, protocol.Reply, txn.Committed, req.Serial, nil)
	})

	c, err := Dial(addr)
	require.NoError(t, err)
	defer c.Close()

	status, err := c.Put([]byte("HDD"), []byte("Hard disk"))
	require.NoError(t, err)
	assert.Equal(t, txn.Pending, status)

	value, ok, status, err := c.Get([]byte("HDD"))
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []byte("Hard disk"), value)
	assert.Equal(t, txn.Pending, status)

	status, err = c.Commit()
	require.NoError(t, err)
	assert.Equal(t, txn.Committed, status)
}

func TestGetNullValue(t *testing.T) {
	addr := fakeServer(t, func(conn net.Conn) {
		req, _ := recv(t, conn, protocol.Get)
		recv(t, conn, protocol.Data)
		send(t, conn, protocol.Reply, txn.Pending, req.Serial, nil)
		send(t, conn, protocol.Value, txn.Pending, req.Serial, nil)
	})

	c, err := Dial(addr)
	require.NoError(t, err)
	defer c.Close()

	value, ok, _, err := c.Get([]byte("missing"))
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, value)
}

func TestGetAborted(t *testing.T) {
	addr := fakeServer(t, func(conn net.Conn) {
		req, _ := recv(t, conn, protocol.Get)
		recv(t, conn, protocol.Data)
		send(t, conn, protocol.Reply, txn.Aborted, req.Serial, nil)
	})

	c, err := Dial(addr)
	require.NoError(t, err)
	defer c.Close()

	_, ok, status, err := c.Get([]byte("HDD"))
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, txn.Aborted, status)
}

func TestUnexpectedReply(t *testing.T) {
	addr := fakeServer(t, func(conn net.Conn) {
		recv(t, conn, protocol.Commit)
		send(t, conn, protocol.Value, txn.Pending, 99, []byte("x"))
	})

	c, err := Dial(addr)
	require.NoError(t, err)
	defer c.Close()

	_, err = c.Commit()
	assert.Equal(t, errmsg.ProtocolViolation, errors.Cause(err))
}
