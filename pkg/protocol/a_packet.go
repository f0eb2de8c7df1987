package protocol

import (
	"fmt"
	"time"

	"xacto/pkg/txn"
)

type Type uint8

const (
	None Type = iota
	Put
	Get
	Data
	Commit
	Reply
	Value
)

var typeNames = [...]string{"none", "put", "get", "data", "commit", "reply", "value"}

func (t Type) String() string {
	if int(t) < len(typeNames) {
		return typeNames[t]
	}
	return fmt.Sprintf("type(%d)", uint8(t))
}

// HeaderSize is the encoded size of a packet header.
const HeaderSize = 20

// MaxPayload bounds the payload Recv accepts.
const MaxPayload = 16 << 20

// Packet is the fixed-size header preceding every message. Null marks a
// payload that is absent rather than empty.
type Packet struct {
	Type   Type
	Status txn.Status
	Null   bool
	Serial uint32
	Size   uint32
	Sec    uint32
	Nsec   uint32
}

// NewPacket returns a header stamped with the current time.
func NewPacket(typ Type, status txn.Status, serial uint32) *Packet {
	now := time.Now()
	return &Packet{
		Type:   typ,
		Status: status,
		Serial: serial,
		Sec:    uint32(now.Unix()),
		Nsec:   uint32(now.Nanosecond()),
	}
}

func (p *Packet) Timestamp() time.Time {
	return time.Unix(int64(p.Sec), int64(p.Nsec))
}

func (p *Packet) String() string {
	return fmt.Sprintf("%s serial=%d status=%s null=%t size=%d", p.Type, p.Serial, p.Status, p.Null, p.Size)
}
