package services

import (
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/souqly/backend/internal/config"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockAuditor struct {
	mock.Mock
}

func (m *MockAuditor) LogEntry(eventType string, accountUserID, amount int64, reference string) {
	m.Called(eventType, accountUserID, amount, reference)
}

func (m *MockAuditor) LogTransfer(transferID, senderID, receiverID, amount int64) {
	m.Called(transferID, senderID, receiverID, amount)
}

func (m *MockAuditor) LogTransition(vertical string, recordID int64, from, to string) {
	m.Called(vertical, recordID, from, to)
}

func (m *MockAuditor) LogError(operation, reference string, err error) {
	m.Called(operation, reference, err)
}

// newMockAuditor accepts any call. Tests assert the ones they care about.
func newMockAuditor() *MockAuditor {
	a := &MockAuditor{}
	a.On("LogEntry", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Maybe()
	a.On("LogTransfer", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Maybe()
	a.On("LogTransition", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Maybe()
	a.On("LogError", mock.Anything, mock.Anything, mock.Anything).Maybe()
	return a
}

func newMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db, mock
}

func testEscrowConfig() *config.EscrowConfig {
	return &config.EscrowConfig{
		RefundPolicy:            config.RefundPolicyFull,
		PlatformAccountUserID:   1,
		Currency:                "NGN",
		AutoRepairCommitmentFee: 5000,
		ApartmentAutoConfirm:    true,
		MaxOrderLines:           50,
		PaymentRequestTTL:       5 * time.Minute,
		IdempotencyTTL:          24 * time.Hour,
		IdempotencyLockTimeout:  65 * time.Second,
		PayoutDebtorBIC:         "SOUQNGLA",
	}
}

const (
	lockAccountSQL   = `SELECT id, user_id, balance, currency, version, updated_at FROM accounts WHERE user_id = \$1 FOR UPDATE`
	updateAccountSQL = `UPDATE accounts SET balance = \$1, version = version \+ 1, updated_at = \$2 WHERE id = \$3 AND version = \$4`
)

var accountColumns = []string{"id", "user_id", "balance", "currency", "version", "updated_at"}

// expectLockAccount scripts the row lock of the account owned by userID.
// Account ids are userID+100 throughout the tests.
func expectLockAccount(mock sqlmock.Sqlmock, userID, balance int64) {
	mock.ExpectQuery(lockAccountSQL).
		WithArgs(userID).
		WillReturnRows(sqlmock.NewRows(accountColumns).
			AddRow(userID+100, userID, balance, "NGN", 1, time.Now()))
}

// expectOpenAccount scripts the lock of a user who has no account yet: the
// empty select, the insert and the select that finds the new row.
func expectOpenAccount(mock sqlmock.Sqlmock, userID int64) {
	mock.ExpectQuery(lockAccountSQL).
		WithArgs(userID).
		WillReturnRows(sqlmock.NewRows(accountColumns))
	mock.ExpectExec(`INSERT INTO accounts \(user_id, balance, currency, version, updated_at\) VALUES \(\$1, 0, \$2, 1, \$3\) ON CONFLICT \(user_id\) DO NOTHING`).
		WithArgs(userID, "NGN", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	expectLockAccount(mock, userID, 0)
}

// expectPost scripts one ledger entry insert plus the balance update that
// follows it. version is the account version before the post.
func expectPost(mock sqlmock.Sqlmock, userID int64, direction string, amount, balanceAfter int64, reference string, version int) {
	mock.ExpectQuery("INSERT INTO ledger_entries").
		WithArgs(userID+100, direction, amount, balanceAfter, sqlmock.AnyArg(), reference, "SUCCESS", sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1))
	mock.ExpectExec(updateAccountSQL).
		WithArgs(balanceAfter, sqlmock.AnyArg(), userID+100, version).
		WillReturnResult(sqlmock.NewResult(0, 1))
}
