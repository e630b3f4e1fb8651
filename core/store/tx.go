package store

import (
	"context"
	"database/sql"
	"fmt"
)

// Repos groups the stores bound to one DBTX.
type Repos struct {
	Users       UsersStore
	Incidents   IncidentsStore
	Responses   ResponsesStore
	Sessions    SessionStore
	ResetTokens ResetTokensStore
	Deliveries  DeliveriesStore
}

func NewRepos(db DBTX) *Repos {
	return &Repos{
		Users:       NewUsersStore(db),
		Incidents:   NewIncidentsStore(db),
		Responses:   NewResponsesStore(db),
		Sessions:    NewSessionsStore(db),
		ResetTokens: NewResetTokensStore(db),
		Deliveries:  NewDeliveriesStore(db),
	}
}

// Transactor runs fn against stores bound to a single transaction.
type Transactor interface {
	WithinTx(ctx context.Context, fn func(r *Repos) error) error
}

type TxManager struct {
	db *sql.DB
}

func NewTxManager(db *sql.DB) *TxManager {
	return &TxManager{db: db}
}

// WithinTx commits when fn returns nil and rolls back otherwise.
func (m *TxManager) WithinTx(ctx context.Context, fn func(r *Repos) error) (err error) {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()
	if err := fn(NewRepos(tx)); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}
