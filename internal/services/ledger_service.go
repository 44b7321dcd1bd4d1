package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/souqly/backend/internal/audit"
	"github.com/souqly/backend/internal/models"
)

const recentEntriesLimit = 10

const openAccountSQL = `
	INSERT INTO accounts (user_id, balance, currency, version, updated_at)
	VALUES ($1, 0, $2, 1, $3)
	ON CONFLICT (user_id) DO NOTHING`

type LedgerService struct {
	db       *sql.DB
	audit    audit.Auditor
	currency string
}

func NewLedgerService(db *sql.DB, auditor audit.Auditor, currency string) *LedgerService {
	return &LedgerService{
		db:       db,
		audit:    auditor,
		currency: currency,
	}
}

// OpenAccount creates the user's account if it does not exist yet.
func (s *LedgerService) OpenAccount(ctx context.Context, userID int64) (*models.Account, error) {
	if userID <= 0 {
		return nil, fmt.Errorf("%w: user id must be positive", ErrInvalidInput)
	}

	if _, err := s.db.ExecContext(ctx, openAccountSQL, userID, s.currency, time.Now()); err != nil {
		return nil, fmt.Errorf("open account for user %d: %w", userID, err)
	}

	return s.GetAccount(ctx, userID)
}

func (s *LedgerService) GetAccount(ctx context.Context, userID int64) (*models.Account, error) {
	var account models.Account
	err := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, balance, currency, version, updated_at
		FROM accounts
		WHERE user_id = $1`, userID).
		Scan(&account.ID, &account.UserID, &account.Balance, &account.Currency, &account.Version, &account.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: account for user %d", ErrNotFound, userID)
	}
	if err != nil {
		return nil, fmt.Errorf("get account for user %d: %w", userID, err)
	}
	return &account, nil
}

// GetBalance returns the cached balance of the user's account.
func (s *LedgerService) GetBalance(ctx context.Context, userID int64) (int64, error) {
	account, err := s.GetAccount(ctx, userID)
	if err != nil {
		return 0, err
	}
	return account.Balance, nil
}

// DebitTx takes amount out of the user's account inside uow. The account row
// stays locked until uow ends, so no concurrent debit can see the old balance.
func (s *LedgerService) DebitTx(ctx context.Context, uow *UnitOfWork, userID, amount int64, reference, description string) (*models.LedgerEntry, error) {
	if err := validatePosting(amount, reference); err != nil {
		return nil, err
	}

	account, err := s.lockAccount(ctx, uow, userID)
	if err != nil {
		return nil, err
	}

	if account.Balance < amount {
		return nil, fmt.Errorf("%w: balance %d is below %d", ErrInsufficientFunds, account.Balance, amount)
	}

	return s.post(ctx, uow, account, models.DirectionDebit, amount, reference, description)
}

// CreditTx adds amount to the user's account inside uow.
func (s *LedgerService) CreditTx(ctx context.Context, uow *UnitOfWork, userID, amount int64, reference, description string) (*models.LedgerEntry, error) {
	if err := validatePosting(amount, reference); err != nil {
		return nil, err
	}

	account, err := s.lockAccount(ctx, uow, userID)
	if err != nil {
		return nil, err
	}

	return s.post(ctx, uow, account, models.DirectionCredit, amount, reference, description)
}

// TransferTx moves amount between two accounts. Both rows are locked in user
// id order so opposite transfers cannot deadlock.
func (s *LedgerService) TransferTx(ctx context.Context, uow *UnitOfWork, fromUserID, toUserID, amount int64, reference, description string) (*models.LedgerEntry, *models.LedgerEntry, error) {
	if fromUserID == toUserID {
		return nil, nil, fmt.Errorf("%w: cannot transfer to the same account", ErrInvalidInput)
	}
	if err := validatePosting(amount, reference); err != nil {
		return nil, nil, err
	}

	if err := s.LockAccountsTx(ctx, uow, fromUserID, toUserID); err != nil {
		return nil, nil, err
	}
	fromAccount, _ := uow.lockedAccount(fromUserID)
	toAccount, _ := uow.lockedAccount(toUserID)

	if fromAccount.Balance < amount {
		return nil, nil, fmt.Errorf("%w: balance %d is below %d", ErrInsufficientFunds, fromAccount.Balance, amount)
	}

	debit, err := s.post(ctx, uow, fromAccount, models.DirectionDebit, amount, reference+"-OUT", description)
	if err != nil {
		return nil, nil, err
	}
	credit, err := s.post(ctx, uow, toAccount, models.DirectionCredit, amount, reference+"-IN", description)
	if err != nil {
		return nil, nil, err
	}
	return debit, credit, nil
}

// LockAccountsTx locks the accounts of userIDs in ascending user id order.
// Every path that touches more than one account goes through here.
func (s *LedgerService) LockAccountsTx(ctx context.Context, uow *UnitOfWork, userIDs ...int64) error {
	ids := append([]int64(nil), userIDs...)
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	for i, id := range ids {
		if i > 0 && ids[i-1] == id {
			continue
		}
		if _, err := s.lockAccount(ctx, uow, id); err != nil {
			return err
		}
	}
	return nil
}

// Fund credits externally received money to the user's wallet. A provider
// reference can only be funded once.
func (s *LedgerService) Fund(ctx context.Context, req models.FundRequest) (*models.LedgerEntry, error) {
	if req.Amount <= 0 {
		return nil, fmt.Errorf("%w: amount must be greater than 0", ErrInvalidInput)
	}

	reference := req.PaymentReference
	if reference == "" {
		reference = "FUND-" + uuid.New().String()
	}

	var entry *models.LedgerEntry
	err := RunInUnitOfWork(ctx, s.db, func(uow *UnitOfWork) error {
		var err error
		entry, err = s.CreditTx(ctx, uow, req.UserID, req.Amount, reference, "Wallet funding via "+req.PaymentMethod)
		return err
	})
	if err != nil {
		return nil, err
	}

	log.Info().Str("component", "ledger").Int64("user_id", req.UserID).Int64("amount", req.Amount).
		Str("reference", reference).Msg("wallet funded")
	return entry, nil
}

// GetWallet returns the account with its most recent entries, newest first.
// A user without an account yet sees an empty wallet; nothing is written.
func (s *LedgerService) GetWallet(ctx context.Context, userID int64) (*models.Wallet, error) {
	account, err := s.GetAccount(ctx, userID)
	if errors.Is(err, ErrNotFound) {
		return &models.Wallet{
			Account: models.Account{UserID: userID, Currency: s.currency},
			Entries: []models.LedgerEntry{},
		}, nil
	}
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, account_id, direction, amount, balance_after, description, reference, status, created_at
		FROM ledger_entries
		WHERE account_id = $1
		ORDER BY id DESC
		LIMIT $2`, account.ID, recentEntriesLimit)
	if err != nil {
		return nil, fmt.Errorf("list entries for account %d: %w", account.ID, err)
	}
	defer rows.Close()

	wallet := &models.Wallet{Account: *account, Entries: []models.LedgerEntry{}}
	for rows.Next() {
		var e models.LedgerEntry
		if err := rows.Scan(&e.ID, &e.AccountID, &e.Direction, &e.Amount, &e.BalanceAfter,
			&e.Description, &e.Reference, &e.Status, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan ledger entry: %w", err)
		}
		wallet.Entries = append(wallet.Entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list entries for account %d: %w", account.ID, err)
	}
	return wallet, nil
}

// Reconcile recomputes the balance from the entry log and compares it with
// the cached projection.
func (s *LedgerService) Reconcile(ctx context.Context, userID int64) (*models.Reconciliation, error) {
	var r models.Reconciliation
	err := s.db.QueryRowContext(ctx, `
		SELECT a.id, a.balance,
			COALESCE(SUM(CASE WHEN e.direction = 'CREDIT' THEN e.amount END), 0),
			COALESCE(SUM(CASE WHEN e.direction = 'DEBIT' THEN e.amount END), 0)
		FROM accounts a
		LEFT JOIN ledger_entries e ON e.account_id = a.id
		WHERE a.user_id = $1
		GROUP BY a.id, a.balance`, userID).
		Scan(&r.AccountID, &r.CachedBalance, &r.TotalCredits, &r.TotalDebits)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: account for user %d", ErrNotFound, userID)
	}
	if err != nil {
		return nil, fmt.Errorf("reconcile account for user %d: %w", userID, err)
	}

	r.Consistent = r.CachedBalance == r.DerivedBalance()
	if !r.Consistent {
		log.Error().Str("component", "ledger").Int64("account_id", r.AccountID).
			Int64("cached", r.CachedBalance).Int64("derived", r.DerivedBalance()).
			Msg("balance does not match entry log")
	}
	return &r, nil
}

func validatePosting(amount int64, reference string) error {
	if amount <= 0 {
		return fmt.Errorf("%w: amount must be greater than 0", ErrInvalidInput)
	}
	if reference == "" {
		return fmt.Errorf("%w: reference is required", ErrInvalidInput)
	}
	return nil
}

// lockAccount returns the row already locked by uow, or locks it now.
// lockAccount locks the user's account row for the rest of uow. A user who
// never had an account gets an empty one, opened in the same transaction.
func (s *LedgerService) lockAccount(ctx context.Context, uow *UnitOfWork, userID int64) (*models.Account, error) {
	if account, ok := uow.lockedAccount(userID); ok {
		return account, nil
	}
	if userID <= 0 {
		return nil, fmt.Errorf("%w: user id must be positive", ErrInvalidInput)
	}

	account, err := s.selectForUpdate(ctx, uow.Tx, userID)
	if errors.Is(err, sql.ErrNoRows) {
		if _, err := uow.Tx.ExecContext(ctx, openAccountSQL, userID, s.currency, time.Now()); err != nil {
			return nil, fmt.Errorf("open account for user %d: %w", userID, err)
		}
		account, err = s.selectForUpdate(ctx, uow.Tx, userID)
	}
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: account for user %d", ErrNotFound, userID)
	}
	if err != nil {
		return nil, fmt.Errorf("lock account for user %d: %w", userID, err)
	}
	uow.rememberAccount(account)
	return account, nil
}

func (s *LedgerService) selectForUpdate(ctx context.Context, tx *sql.Tx, userID int64) (*models.Account, error) {
	var account models.Account
	err := tx.QueryRowContext(ctx, `
		SELECT id, user_id, balance, currency, version, updated_at
		FROM accounts
		WHERE user_id = $1
		FOR UPDATE`, userID).
		Scan(&account.ID, &account.UserID, &account.Balance, &account.Currency, &account.Version, &account.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &account, nil
}

// post appends the entry and moves the cached balance. account must already
// be locked by the caller's transaction.
func (s *LedgerService) post(ctx context.Context, uow *UnitOfWork, account *models.Account, direction string, amount int64, reference, description string) (*models.LedgerEntry, error) {
	newBalance := account.Balance + amount
	if direction == models.DirectionDebit {
		newBalance = account.Balance - amount
	}

	entry := &models.LedgerEntry{
		AccountID:    account.ID,
		Direction:    direction,
		Amount:       amount,
		BalanceAfter: newBalance,
		Description:  description,
		Reference:    reference,
		Status:       models.EntryStatusSuccess,
		CreatedAt:    time.Now(),
	}

	if err := s.createLedgerEntry(ctx, uow.Tx, entry); err != nil {
		return nil, err
	}
	if err := s.updateAccountBalance(ctx, uow.Tx, account.ID, newBalance, account.Version); err != nil {
		return nil, err
	}

	account.Balance = newBalance
	account.Version++

	userID := account.UserID
	uow.AfterCommit(func() {
		s.audit.LogEntry(direction, userID, amount, reference)
	})
	return entry, nil
}

func (s *LedgerService) createLedgerEntry(ctx context.Context, tx *sql.Tx, entry *models.LedgerEntry) error {
	err := tx.QueryRowContext(ctx, `
		INSERT INTO ledger_entries (account_id, direction, amount, balance_after, description, reference, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id`,
		entry.AccountID, entry.Direction, entry.Amount, entry.BalanceAfter,
		entry.Description, entry.Reference, entry.Status, entry.CreatedAt).Scan(&entry.ID)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: %s", ErrDuplicateReference, entry.Reference)
	}
	if err != nil {
		return fmt.Errorf("create ledger entry %s: %w", entry.Reference, err)
	}
	return nil
}

func (s *LedgerService) updateAccountBalance(ctx context.Context, tx *sql.Tx, accountID, newBalance int64, version int) error {
	result, err := tx.ExecContext(ctx, `
		UPDATE accounts
		SET balance = $1, version = version + 1, updated_at = $2
		WHERE id = $3 AND version = $4`,
		newBalance, time.Now(), accountID, version)
	if err != nil {
		return fmt.Errorf("update balance of account %d: %w", accountID, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return fmt.Errorf("optimistic lock failed for account %d", accountID)
	}
	return nil
}
