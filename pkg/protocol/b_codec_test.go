package protocol

import (
	"bytes"
	"io"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"xacto/pkg/a_misc/errmsg"
	"xacto/pkg/txn"
)

func TestHeaderLayout(t *testing.T) {
	pkt := &Packet{Type: Reply, Status: txn.Aborted, Null: true, Serial: 0x01020304, Sec: 7, Nsec: 9}

	var buf bytes.Buffer
	require.NoError(t, Send(&buf, pkt, nil))
	assert.Equal(t, []byte{
		5, 2, 1, 0,
		1, 2, 3, 4,
		0, 0, 0, 0,
		0, 0, 0, 7,
		0, 0, 0, 9,
	}, buf.Bytes())
}

func TestSendAndRecvPayload(t *testing.T) {
	pkt := NewPacket(Data, txn.Pending, 42)

	var buf bytes.Buffer
	require.NoError(t, Send(&buf, pkt, []byte("Hard disk")))
	assert.Equal(t, uint32(9), pkt.Size)
	assert.Equal(t, HeaderSize+9, buf.Len())

	got, data, err := Recv(&buf)
	require.NoError(t, err)
	assert.Equal(t, pkt, got)
	assert.Equal(t, []byte("Hard disk"), data)
	assert.Equal(t, pkt.Timestamp().Unix(), got.Timestamp().Unix())
}

func TestNullAndEmptyPayload(t *testing.T) {
	var buf bytes.Buffer

	null := NewPacket(Value, txn.Pending, 1)
	null.Null = true
	require.NoError(t, Send(&buf, null, nil))
	require.NoError(t, Send(&buf, NewPacket(Value, txn.Pending, 2), []byte{}))

	got, data, err := Recv(&buf)
	require.NoError(t, err)
	assert.True(t, got.Null)
	assert.Nil(t, data)

	got, data, err = Recv(&buf)
	require.NoError(t, err)
	assert.False(t, got.Null)
	assert.Equal(t, uint32(0), got.Size)
	assert.Nil(t, data)
	assert.Equal(t, 0, buf.Len())
}

func TestRecvEOF(t *testing.T) {
	_, _, err := Recv(bytes.NewReader(nil))
	assert.Equal(t, io.EOF, err)
}

func TestRecvShortHeader(t *testing.T) {
	_, _, err := Recv(bytes.NewReader(make([]byte, HeaderSize-1)))
	assert.Equal(t, errmsg.ShortRead, errors.Cause(err))
}

func TestRecvShortPayload(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Send(&buf, NewPacket(Data, txn.Pending, 1), []byte("Solid state drive")))
	truncated := buf.Bytes()[:buf.Len()-3]

	_, _, err := Recv(bytes.NewReader(truncated))
	assert.Equal(t, errmsg.ShortRead, errors.Cause(err))
}

func TestRecvPayloadTooLarge(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Send(&buf, NewPacket(Data, txn.Pending, 1), make([]byte, 64)))

	_, _, err := RecvLimit(&buf, 16)
	assert.Equal(t, errmsg.PayloadTooLarge, errors.Cause(err))
}

type shortWriter struct{}

func (shortWriter) Write(p []byte) (int, error) {
	return len(p) / 2, nil
}

func TestSendShortWrite(t *testing.T) {
	err := Send(shortWriter{}, NewPacket(Commit, txn.Pending, 1), nil)
	assert.Equal(t, io.ErrShortWrite, errors.Cause(err))
}

func TestTypeString(t *testing.T) {
	assert.Equal(t, "commit", Commit.String())
	assert.Equal(t, "type(9)", Type(9).String())
}
