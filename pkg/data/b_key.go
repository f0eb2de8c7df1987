package data

// Key is a lookup handle owning exactly one blob reference.
type Key struct {
	blob *Blob
	hash int
}

// NewKey takes over the caller's reference to b.
func NewKey(b *Blob) *Key {
	if b == nil {
		return nil
	}
	return &Key{blob: b, hash: Hash(b)}
}

// Dispose releases the owned blob. A key is disposed exactly once.
func (k *Key) Dispose() {
	if k == nil {
		return
	}
	if k.blob == nil {
		panic("key: disposed twice")
	}
	k.blob.Release("key disposed")
	k.blob = nil
}

func (k *Key) Blob() *Blob {
	return k.blob
}

func (k *Key) Bytes() []byte {
	return k.blob.Bytes()
}

func (k *Key) Hash() int {
	return k.hash
}

func (k *Key) String() string {
	if k == nil {
		return "<nil>"
	}
	return k.blob.String()
}

func Equal(k1, k2 *Key) bool {
	if k1 == nil && k2 == nil {
		return true
	}
	if k1 == nil || k2 == nil {
		return false
	}
	return k1.hash == k2.hash && Compare(k1.blob, k2.blob) == 0
}
