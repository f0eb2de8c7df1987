package db

import (
	"context"

	"github.com/pingcap/log"
	"github.com/pkg/errors"
	"go.uber.org/atomic"
	"xacto/pkg/a_misc/errmsg"
	"xacto/pkg/mvstore"
	"xacto/pkg/txn"
)

type Db struct {
	stopped atomic.Bool
	mgr     *txn.Manager
	store   *mvstore.Store
}

func New() *Db {
	mgr := txn.NewManager()

	return &Db{
		mgr:   mgr,
		store: mvstore.New(mgr),
	}
}

// Begin starts a transaction. The caller must end it with Commit or Abort.
func (db *Db) Begin() (*Txn, error) {
	if db.stopped.Load() {
		return nil, errors.WithStack(errmsg.DbStopped)
	}
	t, err := db.mgr.Create()
	if err != nil {
		return nil, err
	}
	return &Txn{t: t, store: db.store}, nil
}

// View runs fn in a transaction and commits it when fn succeeds. Read-only
// transactions commit too: the versions their reads created stay in the
// chains until a later commit supersedes them.
func (db *Db) View(ctx context.Context, fn func(txn *Txn) error) error {
	return db.run(ctx, fn)
}

func (db *Db) Update(ctx context.Context, fn func(txn *Txn) error) error {
	return db.run(ctx, fn)
}

func (db *Db) run(ctx context.Context, fn func(txn *Txn) error) error {
	newTxn, err := db.Begin()
	if err != nil {
		return err
	}

	if err := fn(newTxn); err != nil {
		if _, abortErr := newTxn.Abort(); abortErr != nil {
			return abortErr
		}
		return err
	}

	status, err := newTxn.Commit(ctx)
	if err != nil {
		return err
	}
	if status == txn.Aborted {
		return errors.WithStack(errmsg.TransactionAborted)
	}
	return nil
}

func (db *Db) Manager() *txn.Manager {
	return db.mgr
}

func (db *Db) Store() *mvstore.Store {
	return db.store
}

// Stop disposes the store and then the manager. It is idempotent.
func (db *Db) Stop() {
	if db.stopped.CompareAndSwap(false, true) {
		db.store.Stop()
		db.mgr.Stop()
		log.Info("db stopped")
	}
}
