package data

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"xacto/pkg/txn"
)

func TestVersionHoldsCreatorAndBlob(t *testing.T) {
	m := txn.NewManager()
	defer m.Stop()

	creator, err := m.Create()
	require.NoError(t, err)
	b := NewBlob([]byte("Hard disk"))

	v := NewVersion(creator, b)
	assert.Equal(t, 2, creator.Refs())

	status, err := creator.Commit(context.Background())
	require.NoError(t, err)
	assert.Equal(t, txn.Committed, status)
	assert.Equal(t, 1, m.Live())

	v.Dispose()
	assert.Equal(t, 0, m.Live())
	assert.Nil(t, v.Blob)
	assert.Nil(t, v.Creator)
}

func TestVersionDisposeUnlinks(t *testing.T) {
	m := txn.NewManager()
	defer m.Stop()

	v1, err := NewDetachedVersion(m, NewBlob([]byte("1")))
	require.NoError(t, err)
	v2, err := NewDetachedVersion(m, NewBlob([]byte("2")))
	require.NoError(t, err)
	v3, err := NewDetachedVersion(m, nil)
	require.NoError(t, err)
	v1.Next, v2.Prev = v2, v1
	v2.Next, v3.Prev = v3, v2
	assert.Equal(t, 3, m.Live())

	v2.Dispose()
	assert.Equal(t, v3, v1.Next)
	assert.Equal(t, v1, v3.Prev)
	assert.Equal(t, 2, m.Live())

	v1.Dispose()
	v3.Dispose()
	assert.Equal(t, 0, m.Live())
}

func TestDetachedVersionOwnsItsCreator(t *testing.T) {
	m := txn.NewManager()
	defer m.Stop()

	v, err := NewDetachedVersion(m, NewBlob([]byte("x")))
	require.NoError(t, err)
	assert.Equal(t, 1, v.Creator.Refs())
	assert.Equal(t, txn.Pending, v.Creator.Status())

	// the creator is freed while pending and ends up aborted
	creator := v.Creator
	v.Dispose()
	assert.Equal(t, txn.Aborted, creator.Status())
	assert.Equal(t, 0, m.Live())
}

func TestVersionSetBlobReleasesOld(t *testing.T) {
	m := txn.NewManager()
	defer m.Stop()

	old := NewBlob([]byte("old"))
	old.Retain("test")
	v, err := NewDetachedVersion(m, old)
	require.NoError(t, err)

	v.SetBlob(NewBlob([]byte("new")))
	assert.Equal(t, 1, old.Refs())
	assert.Equal(t, []byte("new"), v.Blob.Bytes())
	v.Dispose()
}
