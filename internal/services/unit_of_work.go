package services

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/souqly/backend/internal/models"
)

// UnitOfWork is one database transaction shared by every step of a business
// operation. Hooks registered with AfterCommit only run once the commit has
// succeeded.
type UnitOfWork struct {
	Tx          *sql.Tx
	afterCommit []func()

	// accounts holds the rows this unit of work has locked, keyed by user id.
	accounts map[int64]*models.Account
}

func (u *UnitOfWork) lockedAccount(userID int64) (*models.Account, bool) {
	a, ok := u.accounts[userID]
	return a, ok
}

func (u *UnitOfWork) rememberAccount(a *models.Account) {
	if u.accounts == nil {
		u.accounts = make(map[int64]*models.Account)
	}
	u.accounts[a.UserID] = a
}

// AfterCommit defers fn until the unit of work commits.
func (u *UnitOfWork) AfterCommit(fn func()) {
	u.afterCommit = append(u.afterCommit, fn)
}

// RunInUnitOfWork begins a transaction, runs fn, and commits once. Any error
// from fn, including a panic, rolls everything back.
func RunInUnitOfWork(ctx context.Context, db *sql.DB, fn func(uow *UnitOfWork) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin unit of work: %w", err)
	}
	defer tx.Rollback()

	uow := &UnitOfWork{Tx: tx}
	if err := fn(uow); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit unit of work: %w", err)
	}

	for _, hook := range uow.afterCommit {
		hook()
	}
	return nil
}
