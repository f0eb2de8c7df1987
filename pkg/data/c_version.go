package data

import (
	"xacto/pkg/txn"
)

// Version binds a value to the transaction that wrote it. Versions of one key
// form a chain ordered oldest first; the store guards them with its bucket
// lock.
type Version struct {
	Creator *txn.Transaction
	Blob    *Blob // nil when the key had no value

	Prev *Version
	Next *Version
}

// NewVersion retains creator and takes over the caller's reference to b.
func NewVersion(creator *txn.Transaction, b *Blob) *Version {
	return &Version{
		Creator: creator.Retain("version created"),
		Blob:    b,
	}
}

// NewDetachedVersion creates a version whose creator is a fresh pending
// transaction referenced only by the version.
func NewDetachedVersion(m *txn.Manager, b *Blob) (*Version, error) {
	creator, err := m.Create()
	if err != nil {
		return nil, err
	}
	v := NewVersion(creator, b)
	creator.Release("handed to version")
	return v, nil
}

// SetBlob replaces the value, releasing the previous one.
func (v *Version) SetBlob(b *Blob) {
	v.Blob.Release("version overwritten")
	v.Blob = b
}

// Dispose unlinks v and releases its creator and value. It must be called
// once.
func (v *Version) Dispose() {
	if v.Prev != nil {
		v.Prev.Next = v.Next
	}
	if v.Next != nil {
		v.Next.Prev = v.Prev
	}
	v.Prev, v.Next = nil, nil

	v.Creator.Release("version disposed")
	v.Creator = nil
	v.Blob.Release("version disposed")
	v.Blob = nil
}
