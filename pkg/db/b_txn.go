package db

import (
	"context"

	"github.com/pkg/errors"
	"xacto/pkg/a_misc/errmsg"
	"xacto/pkg/data"
	"xacto/pkg/mvstore"
	"xacto/pkg/txn"
)

// Txn is a transaction over byte slices. Once the store aborts it every
// operation fails with errmsg.TransactionAborted.
type Txn struct {
	t     *txn.Transaction
	store *mvstore.Store
	ended bool
}

func (tx *Txn) ID() uint64 {
	return tx.t.ID()
}

func (tx *Txn) Status() txn.Status {
	return tx.t.Status()
}

// Get returns a copy of the value of key. ok is false when the key has no
// value.
func (tx *Txn) Get(key []byte) (value []byte, ok bool, err error) {
	if len(key) == 0 {
		return nil, false, errors.WithStack(errmsg.KeyIsEmpty)
	}

	status, blob, err := tx.store.Get(tx.t, data.NewKey(data.NewBlob(key)))
	if err != nil {
		return nil, false, err
	}
	if status == txn.Aborted {
		return nil, false, errors.WithStack(errmsg.TransactionAborted)
	}
	if blob == nil {
		return nil, false, nil
	}
	defer blob.Release("txn get")

	if blob.IsNull() {
		return nil, false, nil
	}
	value = make([]byte, blob.Len())
	copy(value, blob.Bytes())
	return value, true, nil
}

// Set writes value under key. A nil value stores the null value.
func (tx *Txn) Set(key, value []byte) error {
	if len(key) == 0 {
		return errors.WithStack(errmsg.KeyIsEmpty)
	}

	status, err := tx.store.Put(tx.t, data.NewKey(data.NewBlob(key)), data.NewBlob(value))
	if err != nil {
		return err
	}
	if status == txn.Aborted {
		return errors.WithStack(errmsg.TransactionAborted)
	}
	return nil
}

// Commit ends the transaction and returns its final status.
func (tx *Txn) Commit(ctx context.Context) (txn.Status, error) {
	if tx.ended {
		status := tx.t.Status()
		if status == txn.Committed {
			return status, errors.WithStack(errmsg.AlreadyCommitted)
		}
		return status, nil
	}
	tx.ended = true
	return tx.t.Commit(ctx)
}

// Abort ends the transaction; aborting an ended transaction is a no-op.
func (tx *Txn) Abort() (txn.Status, error) {
	if tx.ended {
		return tx.t.Status(), nil
	}
	tx.ended = true
	return tx.t.Abort()
}
