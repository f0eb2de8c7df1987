package data

import (
	"bytes"
	"fmt"
	"sync"

	"github.com/pingcap/log"
	"go.uber.org/zap"
)

// NumBuckets is the number of hash buckets keys are spread over.
const NumBuckets = 8

// Blob is an immutable byte buffer shared by reference count. A blob created
// from nil content is the null blob.
type Blob struct {
	mu      sync.Mutex
	refs    int
	content []byte
	null    bool
}

// NewBlob copies content into a blob holding one reference for the caller.
func NewBlob(content []byte) *Blob {
	b := &Blob{refs: 1}
	if content == nil {
		b.null = true
		return b
	}
	b.content = make([]byte, len(content))
	copy(b.content, content)
	return b
}

func (b *Blob) Retain(why string) *Blob {
	if b == nil {
		return nil
	}
	b.mu.Lock()
	if b.refs <= 0 {
		b.mu.Unlock()
		panic("blob: retain after free")
	}
	b.refs++
	refs := b.refs
	b.mu.Unlock()

	log.Debug("retain blob", zap.Stringer("blob", b), zap.Int("refs", refs), zap.String("why", why))
	return b
}

// Release drops one reference and reports whether it was the last one.
func (b *Blob) Release(why string) bool {
	if b == nil {
		return false
	}
	b.mu.Lock()
	if b.refs <= 0 {
		b.mu.Unlock()
		panic("blob: release with no references")
	}
	b.refs--
	refs := b.refs
	if refs == 0 {
		b.content = nil
	}
	b.mu.Unlock()

	log.Debug("release blob", zap.Int("refs", refs), zap.String("why", why))
	return refs == 0
}

// Bytes returns the content. Callers must not modify it.
func (b *Blob) Bytes() []byte {
	if b == nil {
		return nil
	}
	return b.content
}

func (b *Blob) Len() int {
	if b == nil {
		return 0
	}
	return len(b.content)
}

func (b *Blob) IsNull() bool {
	return b == nil || b.null
}

func (b *Blob) Refs() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.refs
}

func (b *Blob) String() string {
	switch {
	case b == nil:
		return "<nil>"
	case b.null:
		return "<null>"
	case len(b.content) > 32:
		return fmt.Sprintf("%q...", b.content[:32])
	default:
		return fmt.Sprintf("%q", b.content)
	}
}

// Compare orders blobs by content; 0 means equal. A nil blob never equals
// anything.
func Compare(a, b *Blob) int {
	if a == nil || b == nil {
		return -1
	}
	return bytes.Compare(a.content, b.content)
}

// Hash is the first content byte modulo NumBuckets; blobs without content
// go to bucket 0.
func Hash(b *Blob) int {
	if b == nil || len(b.content) == 0 {
		return 0
	}
	return int(b.content[0]) % NumBuckets
}
