package protocol

import (
	"encoding/binary"
	"io"

	"github.com/pkg/errors"
	"xacto/pkg/a_misc/errmsg"
	"xacto/pkg/txn"
)

func (p *Packet) encode(buf []byte) {
	buf[0] = byte(p.Type)
	buf[1] = byte(p.Status)
	buf[2] = 0
	if p.Null {
		buf[2] = 1
	}
	buf[3] = 0
	binary.BigEndian.PutUint32(buf[4:], p.Serial)
	binary.BigEndian.PutUint32(buf[8:], p.Size)
	binary.BigEndian.PutUint32(buf[12:], p.Sec)
	binary.BigEndian.PutUint32(buf[16:], p.Nsec)
}

func (p *Packet) decode(buf []byte) {
	p.Type = Type(buf[0])
	p.Status = txn.Status(buf[1])
	p.Null = buf[2] != 0
	p.Serial = binary.BigEndian.Uint32(buf[4:])
	p.Size = binary.BigEndian.Uint32(buf[8:])
	p.Sec = binary.BigEndian.Uint32(buf[12:])
	p.Nsec = binary.BigEndian.Uint32(buf[16:])
}

// Send writes pkt followed by data. When data is not nil pkt.Size is set to
// its length; a nil data sends the header alone.
func Send(w io.Writer, pkt *Packet, data []byte) error {
	if data != nil {
		pkt.Size = uint32(len(data))
	}

	buf := make([]byte, HeaderSize+len(data))
	pkt.encode(buf)
	copy(buf[HeaderSize:], data)

	n, err := w.Write(buf)
	if err != nil {
		return errors.Wrapf(err, "send %s", pkt.Type)
	}
	if n < len(buf) {
		return errors.Wrapf(io.ErrShortWrite, "send %s", pkt.Type)
	}
	return nil
}

// Recv reads one packet and its payload, if any.
func Recv(r io.Reader) (*Packet, []byte, error) {
	return RecvLimit(r, MaxPayload)
}

// RecvLimit is Recv with an explicit payload bound.
func RecvLimit(r io.Reader, limit uint32) (*Packet, []byte, error) {
	var hdr [HeaderSize]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		if err == io.EOF {
			return nil, nil, io.EOF
		}
		return nil, nil, errors.Wrapf(errmsg.ShortRead, "header: %v", err)
	}

	pkt := &Packet{}
	pkt.decode(hdr[:])
	if pkt.Null || pkt.Size == 0 {
		return pkt, nil, nil
	}
	if pkt.Size > limit {
		return nil, nil, errors.Wrapf(errmsg.PayloadTooLarge, "%d > %d", pkt.Size, limit)
	}

	data := make([]byte, pkt.Size)
	if _, err := io.ReadFull(r, data); err != nil {
		return nil, nil, errors.Wrapf(errmsg.ShortRead, "payload of %d bytes: %v", pkt.Size, err)
	}
	return pkt, data, nil
}
