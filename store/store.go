package store

import (
	"context"
	"database/sql"

	"github.com/go-sql-driver/mysql"
	"github.com/golang/glog"
)

// chatStore implements interface `IChatStore` on MySQL.
type chatStore struct {
	*sql.DB
}

func NewChatStore(db *sql.DB) *chatStore {
	return &chatStore{db}
}

func (s *chatStore) withTx(ctx context.Context, exec func(ctx context.Context, tx *sql.Tx) error, opts ...*sql.TxOptions) error {
	var txOpts *sql.TxOptions
	if len(opts) == 0 {
		txOpts = &sql.TxOptions{
			Isolation: sql.LevelRepeatableRead,
			ReadOnly:  false,
		}
	} else {
		txOpts = opts[0]
	}
	tx, err := s.BeginTx(ctx, txOpts)
	if err != nil {
		return err
	}

	if err := exec(ctx, tx); err != nil {
		if err2 := tx.Rollback(); err2 != nil {
			glog.Errorf("failed to rollback: %v", err2)
		}
		return err
	}

	return tx.Commit()
}

func (s *chatStore) IsDupKeyError(err error) bool {
	if val, ok := err.(*mysql.MySQLError); ok {
		return val.Number == 1062
	}
	return false
}
