package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/souqly/backend/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestLedgerService_OpenAccount(t *testing.T) {
	db, sqlMock := newMockDB(t)
	service := NewLedgerService(db, newMockAuditor(), "NGN")

	sqlMock.ExpectExec(`INSERT INTO accounts \(user_id, balance, currency, version, updated_at\) VALUES \(\$1, 0, \$2, 1, \$3\) ON CONFLICT \(user_id\) DO NOTHING`).
		WithArgs(7, "NGN", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	sqlMock.ExpectQuery(`SELECT id, user_id, balance, currency, version, updated_at FROM accounts WHERE user_id = \$1`).
		WithArgs(7).
		WillReturnRows(sqlmock.NewRows(accountColumns).AddRow(107, 7, 0, "NGN", 1, time.Now()))

	account, err := service.OpenAccount(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, int64(107), account.ID)
	assert.Equal(t, int64(0), account.Balance)
	assert.NoError(t, sqlMock.ExpectationsWereMet())
}

func TestLedgerService_GetBalance(t *testing.T) {
	db, sqlMock := newMockDB(t)
	service := NewLedgerService(db, newMockAuditor(), "NGN")

	t.Run("cached balance", func(t *testing.T) {
		sqlMock.ExpectQuery("FROM accounts WHERE user_id = ").
			WithArgs(7).
			WillReturnRows(sqlmock.NewRows(accountColumns).AddRow(107, 7, 4200, "NGN", 3, time.Now()))

		balance, err := service.GetBalance(context.Background(), 7)
		require.NoError(t, err)
		assert.Equal(t, int64(4200), balance)
	})

	t.Run("missing account", func(t *testing.T) {
		sqlMock.ExpectQuery("FROM accounts WHERE user_id = ").
			WithArgs(8).
			WillReturnRows(sqlmock.NewRows(accountColumns))

		_, err := service.GetBalance(context.Background(), 8)
		assert.ErrorIs(t, err, ErrNotFound)
	})

	assert.NoError(t, sqlMock.ExpectationsWereMet())
}

func TestLedgerService_DebitTx(t *testing.T) {
	ctx := context.Background()

	t.Run("debits and audits after commit", func(t *testing.T) {
		db, sqlMock := newMockDB(t)
		auditor := newMockAuditor()
		service := NewLedgerService(db, auditor, "NGN")

		sqlMock.ExpectBegin()
		expectLockAccount(sqlMock, 7, 5000)
		expectPost(sqlMock, 7, models.DirectionDebit, 1000, 4000, "ORD-1", 1)
		sqlMock.ExpectCommit()

		var entry *models.LedgerEntry
		err := RunInUnitOfWork(ctx, db, func(uow *UnitOfWork) error {
			var err error
			entry, err = service.DebitTx(ctx, uow, 7, 1000, "ORD-1", "Payment for order #1")
			return err
		})
		require.NoError(t, err)
		assert.Equal(t, int64(4000), entry.BalanceAfter)
		assert.Equal(t, models.DirectionDebit, entry.Direction)
		assert.Equal(t, int64(-1000), entry.Signed())
		auditor.AssertCalled(t, "LogEntry", models.DirectionDebit, int64(7), int64(1000), "ORD-1")
		assert.NoError(t, sqlMock.ExpectationsWereMet())
	})

	t.Run("insufficient funds rolls back", func(t *testing.T) {
		db, sqlMock := newMockDB(t)
		auditor := newMockAuditor()
		service := NewLedgerService(db, auditor, "NGN")

		sqlMock.ExpectBegin()
		expectLockAccount(sqlMock, 7, 500)
		sqlMock.ExpectRollback()

		err := RunInUnitOfWork(ctx, db, func(uow *UnitOfWork) error {
			_, err := service.DebitTx(ctx, uow, 7, 1000, "ORD-1", "Payment for order #1")
			return err
		})
		assert.ErrorIs(t, err, ErrInsufficientFunds)
		assert.Equal(t, KindInsufficientFunds, KindOf(err))
		auditor.AssertNotCalled(t, "LogEntry", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
		assert.NoError(t, sqlMock.ExpectationsWereMet())
	})

	t.Run("exact balance is allowed", func(t *testing.T) {
		db, sqlMock := newMockDB(t)
		service := NewLedgerService(db, newMockAuditor(), "NGN")

		sqlMock.ExpectBegin()
		expectLockAccount(sqlMock, 7, 1000)
		expectPost(sqlMock, 7, models.DirectionDebit, 1000, 0, "ORD-2", 1)
		sqlMock.ExpectCommit()

		err := RunInUnitOfWork(ctx, db, func(uow *UnitOfWork) error {
			_, err := service.DebitTx(ctx, uow, 7, 1000, "ORD-2", "Payment for order #2")
			return err
		})
		assert.NoError(t, err)
		assert.NoError(t, sqlMock.ExpectationsWereMet())
	})

	t.Run("duplicate reference", func(t *testing.T) {
		db, sqlMock := newMockDB(t)
		service := NewLedgerService(db, newMockAuditor(), "NGN")

		sqlMock.ExpectBegin()
		expectLockAccount(sqlMock, 7, 5000)
		sqlMock.ExpectQuery("INSERT INTO ledger_entries").
			WillReturnError(&pq.Error{Code: "23505", Message: "duplicate key value violates unique constraint"})
		sqlMock.ExpectRollback()

		err := RunInUnitOfWork(ctx, db, func(uow *UnitOfWork) error {
			_, err := service.DebitTx(ctx, uow, 7, 1000, "ORD-1", "Payment for order #1")
			return err
		})
		assert.ErrorIs(t, err, ErrDuplicateReference)
		assert.NoError(t, sqlMock.ExpectationsWereMet())
	})

	t.Run("non-positive amount never reaches the store", func(t *testing.T) {
		db, sqlMock := newMockDB(t)
		service := NewLedgerService(db, newMockAuditor(), "NGN")

		sqlMock.ExpectBegin()
		sqlMock.ExpectRollback()

		err := RunInUnitOfWork(ctx, db, func(uow *UnitOfWork) error {
			_, err := service.DebitTx(ctx, uow, 7, 0, "ORD-1", "zero")
			return err
		})
		assert.ErrorIs(t, err, ErrInvalidInput)
		assert.NoError(t, sqlMock.ExpectationsWereMet())
	})

	t.Run("stale version is an internal error", func(t *testing.T) {
		db, sqlMock := newMockDB(t)
		service := NewLedgerService(db, newMockAuditor(), "NGN")

		sqlMock.ExpectBegin()
		expectLockAccount(sqlMock, 7, 5000)
		sqlMock.ExpectQuery("INSERT INTO ledger_entries").
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1))
		sqlMock.ExpectExec(updateAccountSQL).
			WillReturnResult(sqlmock.NewResult(0, 0))
		sqlMock.ExpectRollback()

		err := RunInUnitOfWork(ctx, db, func(uow *UnitOfWork) error {
			_, err := service.DebitTx(ctx, uow, 7, 1000, "ORD-1", "Payment for order #1")
			return err
		})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "optimistic lock failed")
		assert.Equal(t, KindInternal, KindOf(err))
		assert.NoError(t, sqlMock.ExpectationsWereMet())
	})
}

func TestLedgerService_TransferTx(t *testing.T) {
	ctx := context.Background()

	t.Run("locks the lower user id first", func(t *testing.T) {
		db, sqlMock := newMockDB(t)
		service := NewLedgerService(db, newMockAuditor(), "NGN")

		sqlMock.ExpectBegin()
		expectLockAccount(sqlMock, 3, 200)
		expectLockAccount(sqlMock, 9, 500)
		expectPost(sqlMock, 9, models.DirectionDebit, 100, 400, "P2P-1-OUT", 1)
		expectPost(sqlMock, 3, models.DirectionCredit, 100, 300, "P2P-1-IN", 1)
		sqlMock.ExpectCommit()

		var debit, credit *models.LedgerEntry
		err := RunInUnitOfWork(ctx, db, func(uow *UnitOfWork) error {
			var err error
			debit, credit, err = service.TransferTx(ctx, uow, 9, 3, 100, "P2P-1", "rent")
			return err
		})
		require.NoError(t, err)
		assert.Equal(t, int64(400), debit.BalanceAfter)
		assert.Equal(t, int64(300), credit.BalanceAfter)
		assert.NoError(t, sqlMock.ExpectationsWereMet())
	})

	t.Run("self transfer", func(t *testing.T) {
		db, sqlMock := newMockDB(t)
		service := NewLedgerService(db, newMockAuditor(), "NGN")

		sqlMock.ExpectBegin()
		sqlMock.ExpectRollback()

		err := RunInUnitOfWork(ctx, db, func(uow *UnitOfWork) error {
			_, _, err := service.TransferTx(ctx, uow, 3, 3, 100, "P2P-1", "")
			return err
		})
		assert.ErrorIs(t, err, ErrInvalidInput)
		assert.NoError(t, sqlMock.ExpectationsWereMet())
	})

	t.Run("sender short of funds", func(t *testing.T) {
		db, sqlMock := newMockDB(t)
		service := NewLedgerService(db, newMockAuditor(), "NGN")

		sqlMock.ExpectBegin()
		expectLockAccount(sqlMock, 3, 50)
		expectLockAccount(sqlMock, 9, 0)
		sqlMock.ExpectRollback()

		err := RunInUnitOfWork(ctx, db, func(uow *UnitOfWork) error {
			_, _, err := service.TransferTx(ctx, uow, 3, 9, 100, "P2P-2", "")
			return err
		})
		assert.ErrorIs(t, err, ErrInsufficientFunds)
		assert.NoError(t, sqlMock.ExpectationsWereMet())
	})
}

func TestLedgerService_Fund(t *testing.T) {
	ctx := context.Background()

	t.Run("provider reference", func(t *testing.T) {
		db, sqlMock := newMockDB(t)
		service := NewLedgerService(db, newMockAuditor(), "NGN")

		sqlMock.ExpectBegin()
		expectLockAccount(sqlMock, 7, 0)
		expectPost(sqlMock, 7, models.DirectionCredit, 5000, 5000, "PSK-123", 1)
		sqlMock.ExpectCommit()

		entry, err := service.Fund(ctx, models.FundRequest{UserID: 7, Amount: 5000, PaymentMethod: "paystack", PaymentReference: "PSK-123"})
		require.NoError(t, err)
		assert.Equal(t, "Wallet funding via paystack", entry.Description)
		assert.NoError(t, sqlMock.ExpectationsWereMet())
	})

	t.Run("first funding opens the account", func(t *testing.T) {
		db, sqlMock := newMockDB(t)
		service := NewLedgerService(db, newMockAuditor(), "NGN")

		sqlMock.ExpectBegin()
		expectOpenAccount(sqlMock, 9)
		expectPost(sqlMock, 9, models.DirectionCredit, 2500, 2500, "PSK-9", 1)
		sqlMock.ExpectCommit()

		entry, err := service.Fund(ctx, models.FundRequest{UserID: 9, Amount: 2500, PaymentMethod: "card", PaymentReference: "PSK-9"})
		require.NoError(t, err)
		assert.Equal(t, int64(2500), entry.BalanceAfter)
		assert.NoError(t, sqlMock.ExpectationsWereMet())
	})

	t.Run("generated reference", func(t *testing.T) {
		db, sqlMock := newMockDB(t)
		service := NewLedgerService(db, newMockAuditor(), "NGN")

		sqlMock.ExpectBegin()
		expectLockAccount(sqlMock, 7, 0)
		sqlMock.ExpectQuery("INSERT INTO ledger_entries").
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1))
		sqlMock.ExpectExec(updateAccountSQL).
			WillReturnResult(sqlmock.NewResult(0, 1))
		sqlMock.ExpectCommit()

		entry, err := service.Fund(ctx, models.FundRequest{UserID: 7, Amount: 5000, PaymentMethod: "card"})
		require.NoError(t, err)
		assert.Regexp(t, `^FUND-[0-9a-f-]{36}$`, entry.Reference)
		assert.NoError(t, sqlMock.ExpectationsWereMet())
	})

	t.Run("replayed provider reference", func(t *testing.T) {
		db, sqlMock := newMockDB(t)
		service := NewLedgerService(db, newMockAuditor(), "NGN")

		sqlMock.ExpectBegin()
		expectLockAccount(sqlMock, 7, 5000)
		sqlMock.ExpectQuery("INSERT INTO ledger_entries").
			WillReturnError(&pq.Error{Code: "23505"})
		sqlMock.ExpectRollback()

		_, err := service.Fund(ctx, models.FundRequest{UserID: 7, Amount: 5000, PaymentMethod: "paystack", PaymentReference: "PSK-123"})
		assert.ErrorIs(t, err, ErrDuplicateReference)
		assert.NoError(t, sqlMock.ExpectationsWereMet())
	})

	t.Run("invalid amount", func(t *testing.T) {
		db, sqlMock := newMockDB(t)
		service := NewLedgerService(db, newMockAuditor(), "NGN")

		_, err := service.Fund(ctx, models.FundRequest{UserID: 7, Amount: -5, PaymentMethod: "card"})
		assert.ErrorIs(t, err, ErrInvalidInput)
		assert.NoError(t, sqlMock.ExpectationsWereMet())
	})
}

func TestLedgerService_GetWallet(t *testing.T) {
	db, sqlMock := newMockDB(t)
	service := NewLedgerService(db, newMockAuditor(), "NGN")
	now := time.Now()

	sqlMock.ExpectQuery("FROM accounts WHERE user_id = ").
		WithArgs(7).
		WillReturnRows(sqlmock.NewRows(accountColumns).AddRow(107, 7, 4000, "NGN", 3, now))
	sqlMock.ExpectQuery(`FROM ledger_entries WHERE account_id = \$1 ORDER BY id DESC LIMIT \$2`).
		WithArgs(107, recentEntriesLimit).
		WillReturnRows(sqlmock.NewRows([]string{"id", "account_id", "direction", "amount", "balance_after", "description", "reference", "status", "created_at"}).
			AddRow(2, 107, "DEBIT", 1000, 4000, "Payment for order #1", "ORD-1", "SUCCESS", now).
			AddRow(1, 107, "CREDIT", 5000, 5000, "Wallet funding via card", "PSK-1", "SUCCESS", now))

	wallet, err := service.GetWallet(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, int64(4000), wallet.Account.Balance)
	require.Len(t, wallet.Entries, 2)
	assert.Equal(t, "ORD-1", wallet.Entries[0].Reference)
	assert.NoError(t, sqlMock.ExpectationsWereMet())
}

func TestLedgerService_GetWallet_NoAccountYet(t *testing.T) {
	db, sqlMock := newMockDB(t)
	service := NewLedgerService(db, newMockAuditor(), "NGN")

	sqlMock.ExpectQuery("FROM accounts WHERE user_id = ").
		WithArgs(9).
		WillReturnRows(sqlmock.NewRows(accountColumns))

	wallet, err := service.GetWallet(context.Background(), 9)
	require.NoError(t, err)
	assert.Equal(t, int64(9), wallet.Account.UserID)
	assert.Equal(t, "NGN", wallet.Account.Currency)
	assert.Zero(t, wallet.Account.Balance)
	assert.Empty(t, wallet.Entries)
	assert.NoError(t, sqlMock.ExpectationsWereMet())
}

func TestLedgerService_DebitTx_NoAccountYet(t *testing.T) {
	db, sqlMock := newMockDB(t)
	service := NewLedgerService(db, newMockAuditor(), "NGN")

	sqlMock.ExpectBegin()
	expectOpenAccount(sqlMock, 9)
	sqlMock.ExpectRollback()

	err := RunInUnitOfWork(context.Background(), db, func(uow *UnitOfWork) error {
		_, err := service.DebitTx(context.Background(), uow, 9, 100, "ORD-1", "Payment for order #1")
		return err
	})
	assert.ErrorIs(t, err, ErrInsufficientFunds)
	assert.NoError(t, sqlMock.ExpectationsWereMet())
}

func TestLedgerService_Reconcile(t *testing.T) {
	reconcileColumns := []string{"id", "balance", "credits", "debits"}

	tests := []struct {
		name       string
		balance    int64
		credits    int64
		debits     int64
		consistent bool
	}{
		{"projection matches log", 4000, 5000, 1000, true},
		{"projection drifted", 4500, 5000, 1000, false},
		{"fresh account", 0, 0, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, sqlMock := newMockDB(t)
			service := NewLedgerService(db, newMockAuditor(), "NGN")

			sqlMock.ExpectQuery(`LEFT JOIN ledger_entries e ON e.account_id = a.id WHERE a.user_id = \$1`).
				WithArgs(7).
				WillReturnRows(sqlmock.NewRows(reconcileColumns).AddRow(107, tt.balance, tt.credits, tt.debits))

			r, err := service.Reconcile(context.Background(), 7)
			require.NoError(t, err)
			assert.Equal(t, tt.consistent, r.Consistent)
			assert.Equal(t, tt.credits-tt.debits, r.DerivedBalance())
			assert.NoError(t, sqlMock.ExpectationsWereMet())
		})
	}

	t.Run("unknown user", func(t *testing.T) {
		db, sqlMock := newMockDB(t)
		service := NewLedgerService(db, newMockAuditor(), "NGN")

		sqlMock.ExpectQuery("LEFT JOIN ledger_entries").
			WillReturnRows(sqlmock.NewRows(reconcileColumns))

		_, err := service.Reconcile(context.Background(), 99)
		assert.True(t, errors.Is(err, ErrNotFound))
	})
}
