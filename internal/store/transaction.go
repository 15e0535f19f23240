package store

import (
	"context"
	"errors"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

var errTxFinished = errors.New("transaction already finished")

type txKey struct{}

// Tx is a database transaction carried by a context. Store calls made with
// that context join it instead of using the connection pool.
type Tx struct {
	id  int64
	db  *gorm.DB
	log logrus.FieldLogger
}

// Commit commits the transaction carried by ctx, if any, and returns a
// context without it.
func Commit(ctx context.Context) (context.Context, error) {
	return finish(ctx, (*Tx).commit)
}

// Rollback aborts the transaction carried by ctx, if any, and returns a
// context without it.
func Rollback(ctx context.Context) (context.Context, error) {
	return finish(ctx, (*Tx).rollback)
}

// FromContext returns the open transaction carried by ctx, or nil.
func FromContext(ctx context.Context) *gorm.DB {
	if tx, ok := ctx.Value(txKey{}).(*Tx); ok && tx.db != nil {
		return tx.db
	}
	return nil
}

func finish(ctx context.Context, end func(*Tx) error) (context.Context, error) {
	tx, ok := ctx.Value(txKey{}).(*Tx)
	if !ok {
		return ctx, nil
	}
	return context.WithValue(ctx, txKey{}, nil), end(tx)
}

// dbFor picks the transaction carried by ctx over the pool.
func dbFor(ctx context.Context, pool *gorm.DB) *gorm.DB {
	if tx := FromContext(ctx); tx != nil {
		return tx.WithContext(ctx)
	}
	return pool.WithContext(ctx)
}

func newTransactionContext(ctx context.Context, db *gorm.DB, log logrus.FieldLogger) (context.Context, error) {
	if FromContext(ctx) != nil {
		return ctx, nil
	}

	tx := db.Session(&gorm.Session{Context: ctx}).Begin()
	if tx.Error != nil {
		return ctx, tx.Error
	}

	// txid_current is only used to correlate log lines
	var txid struct{ ID int64 }
	if tx.Dialector.Name() == "postgres" {
		tx.Raw("select txid_current() as id").Scan(&txid)
	}

	return context.WithValue(ctx, txKey{}, &Tx{id: txid.ID, db: tx, log: log}), nil
}

// withTransaction runs fn inside the transaction carried by ctx. When ctx
// has none, a transaction is opened for fn and committed when fn succeeds.
func withTransaction(ctx context.Context, db *gorm.DB, log logrus.FieldLogger, fn func(ctx context.Context) error) error {
	if FromContext(ctx) != nil {
		return fn(ctx)
	}

	txCtx, err := newTransactionContext(ctx, db, log)
	if err != nil {
		return err
	}
	if err := fn(txCtx); err != nil {
		if _, rbErr := Rollback(txCtx); rbErr != nil {
			log.WithError(rbErr).Warn("rollback failed")
		}
		return err
	}
	_, err = Commit(txCtx)
	return err
}

func (t *Tx) commit() error {
	if t.db == nil {
		return errTxFinished
	}
	if err := t.db.Commit().Error; err != nil {
		t.log.WithField("tx", t.id).Errorf("commit failed: %v", err)
		return err
	}
	t.log.WithField("tx", t.id).Debug("committed")
	t.db = nil
	return nil
}

func (t *Tx) rollback() error {
	if t.db == nil {
		return errTxFinished
	}
	if err := t.db.Rollback().Error; err != nil {
		t.log.WithField("tx", t.id).Errorf("rollback failed: %v", err)
		return err
	}
	t.log.WithField("tx", t.id).Debug("rolled back")
	t.db = nil
	return nil
}
