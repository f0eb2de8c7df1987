package client

import (
	"net"
	"time"

	"github.com/pingcap/log"
	"github.com/pkg/errors"
	"go.uber.org/atomic"
	"go.uber.org/zap"
	"xacto/pkg/a_misc/errmsg"
	"xacto/pkg/protocol"
	"xacto/pkg/txn"
)

// Client speaks the xacto protocol over one connection, which is one
// transaction on the server. After COMMIT or an abort the client must be
// closed.
type Client struct {
	conn   net.Conn
	serial atomic.Uint32
}

func Dial(addr string) (*Client, error) {
	return DialTimeout(addr, 5*time.Second)
}

func DialTimeout(addr string, timeout time.Duration) (*Client, error) {
	conn, err := net.DialTimeout("tcp", addr, timeout)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return &Client{conn: conn}, nil
}

func (c *Client) Close() error {
	return errors.WithStack(c.conn.Close())
}

// Get reads key. ok is false when the server sent the null value. When the
// server aborts the transaction status is ABORTED and no value follows.
func (c *Client) Get(key []byte) (value []byte, ok bool, status txn.Status, err error) {
	serial := c.serial.Inc()
	if err := c.send(protocol.Get, serial, nil, false); err != nil {
		return nil, false, txn.Pending, err
	}
	if err := c.send(protocol.Data, serial, key, key == nil); err != nil {
		return nil, false, txn.Pending, err
	}

	reply, err := c.expect(protocol.Reply, serial)
	if err != nil {
		return nil, false, txn.Pending, err
	}
	if reply.Status == txn.Aborted {
		return nil, false, txn.Aborted, nil
	}

	pkt, data, err := protocol.Recv(c.conn)
	if err != nil {
		return nil, false, reply.Status, err
	}
	if pkt.Type != protocol.Value {
		return nil, false, reply.Status, errors.Wrapf(errmsg.ProtocolViolation, "expected value, got %s", pkt.Type)
	}
	return data, !pkt.Null, pkt.Status, nil
}

// Put writes value under key; a nil value sends the null value.
func (c *Client) Put(key, value []byte) (txn.Status, error) {
	serial := c.serial.Inc()
	if err := c.send(protocol.Put, serial, nil, false); err != nil {
		return txn.Pending, err
	}
	if err := c.send(protocol.Data, serial, key, key == nil); err != nil {
		return txn.Pending, err
	}
	if err := c.send(protocol.Data, serial, value, value == nil); err != nil {
		return txn.Pending, err
	}

	reply, err := c.expect(protocol.Reply, serial)
	if err != nil {
		return txn.Pending, err
	}
	return reply.Status, nil
}

// Commit asks the server to commit and returns the final status.
func (c *Client) Commit() (txn.Status, error) {
	serial := c.serial.Inc()
	if err := c.send(protocol.Commit, serial, nil, false); err != nil {
		return txn.Pending, err
	}
	reply, err := c.expect(protocol.Reply, serial)
	if err != nil {
		return txn.Pending, err
	}
	return reply.Status, nil
}

func (c *Client) send(typ protocol.Type, serial uint32, data []byte, null bool) error {
	pkt := protocol.NewPacket(typ, txn.Pending, serial)
	pkt.Null = null
	if typ == protocol.Data && data == nil {
		data = []byte{}
	}
	log.Debug("send", zap.Stringer("packet", pkt))
	return protocol.Send(c.conn, pkt, data)
}

func (c *Client) expect(typ protocol.Type, serial uint32) (*protocol.Packet, error) {
	pkt, _, err := protocol.Recv(c.conn)
	if err != nil {
		return nil, err
	}
	if pkt.Type != typ || pkt.Serial != serial {
		return nil, errors.Wrapf(errmsg.ProtocolViolation, "expected %s #%d, got %s", typ, serial, pkt)
	}
	return pkt, nil
}
