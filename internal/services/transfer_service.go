package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/souqly/backend/internal/audit"
	"github.com/souqly/backend/internal/models"
)

// TransferService moves money directly between two wallets. Unlike escrow the
// movement is final as soon as it commits.
type TransferService struct {
	db     *sql.DB
	ledger *LedgerService
	audit  audit.Auditor
}

func NewTransferService(db *sql.DB, ledger *LedgerService, auditor audit.Auditor) *TransferService {
	return &TransferService{
		db:     db,
		ledger: ledger,
		audit:  auditor,
	}
}

// Transfer debits the sender, credits the receiver and records the transfer
// in one unit of work. A request carrying a ClientReference that was already
// used by the same sender returns the stored transfer with Replayed set.
func (s *TransferService) Transfer(ctx context.Context, req models.TransferRequest) (*models.P2PTransfer, error) {
	if req.Amount <= 0 {
		return nil, fmt.Errorf("%w: amount must be greater than 0", ErrInvalidInput)
	}
	if req.SenderID == req.ReceiverID {
		return nil, fmt.Errorf("%w: cannot transfer to yourself", ErrInvalidInput)
	}

	if req.ClientReference != "" {
		existing, err := s.findByClientReference(ctx, req.ClientReference)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			return replay(existing, req)
		}
	}

	transfer := &models.P2PTransfer{
		SenderID:    req.SenderID,
		ReceiverID:  req.ReceiverID,
		Amount:      req.Amount,
		Description: req.Description,
		Status:      models.TransferStatusSuccess,
		Metadata:    req.Metadata,
		CreatedAt:   time.Now(),
	}
	if req.ClientReference != "" {
		ref := req.ClientReference
		transfer.ClientReference = &ref
	}

	err := RunInUnitOfWork(ctx, s.db, func(uow *UnitOfWork) error {
		err := uow.Tx.QueryRowContext(ctx, `
			INSERT INTO p2p_transfers (sender_id, receiver_id, amount, description, status, client_reference, metadata, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			RETURNING id`,
			transfer.SenderID, transfer.ReceiverID, transfer.Amount, transfer.Description,
			transfer.Status, transfer.ClientReference, transfer.Metadata, transfer.CreatedAt).Scan(&transfer.ID)
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: client reference %s", ErrDuplicateReference, req.ClientReference)
		}
		if err != nil {
			return fmt.Errorf("create transfer: %w", err)
		}

		description := transfer.Description
		if description == "" {
			description = fmt.Sprintf("Transfer #%d", transfer.ID)
		}
		debit, credit, err := s.ledger.TransferTx(ctx, uow, transfer.SenderID, transfer.ReceiverID, transfer.Amount,
			fmt.Sprintf("P2P-%d", transfer.ID), description)
		if err != nil {
			return err
		}
		transfer.SenderBalance = debit.BalanceAfter
		transfer.ReceiverBalance = credit.BalanceAfter

		uow.AfterCommit(func() {
			s.audit.LogTransfer(transfer.ID, transfer.SenderID, transfer.ReceiverID, transfer.Amount)
		})
		return nil
	})

	// A concurrent request with the same client reference committed first.
	if errors.Is(err, ErrDuplicateReference) && req.ClientReference != "" {
		existing, findErr := s.findByClientReference(ctx, req.ClientReference)
		if findErr == nil && existing != nil {
			return replay(existing, req)
		}
	}
	if err != nil {
		return nil, err
	}

	log.Info().Str("component", "transfer").Int64("transfer_id", transfer.ID).Int64("sender_id", transfer.SenderID).
		Int64("receiver_id", transfer.ReceiverID).Int64("amount", transfer.Amount).Msg("transfer completed")
	return transfer, nil
}

func (s *TransferService) GetTransfer(ctx context.Context, id int64) (*models.P2PTransfer, error) {
	transfer, err := s.scanTransfer(s.db.QueryRowContext(ctx, transferQuery+` WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: transfer %d", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get transfer %d: %w", id, err)
	}
	return transfer, nil
}

const transferQuery = `
	SELECT id, sender_id, receiver_id, amount, description, status, client_reference, metadata, created_at
	FROM p2p_transfers`

func (s *TransferService) findByClientReference(ctx context.Context, clientReference string) (*models.P2PTransfer, error) {
	transfer, err := s.scanTransfer(s.db.QueryRowContext(ctx, transferQuery+` WHERE client_reference = $1`, clientReference))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find transfer %s: %w", clientReference, err)
	}
	return transfer, nil
}

func (s *TransferService) scanTransfer(row *sql.Row) (*models.P2PTransfer, error) {
	var t models.P2PTransfer
	var clientReference sql.NullString
	err := row.Scan(&t.ID, &t.SenderID, &t.ReceiverID, &t.Amount, &t.Description, &t.Status,
		&clientReference, &t.Metadata, &t.CreatedAt)
	if err != nil {
		return nil, err
	}
	if clientReference.Valid {
		t.ClientReference = &clientReference.String
	}
	return &t, nil
}

// replay returns a stored transfer for a retried request. A reference reused
// for a different transfer is rejected.
func replay(existing *models.P2PTransfer, req models.TransferRequest) (*models.P2PTransfer, error) {
	if existing.SenderID != req.SenderID || existing.ReceiverID != req.ReceiverID || existing.Amount != req.Amount {
		return nil, fmt.Errorf("%w: client reference %s belongs to another transfer", ErrDuplicateReference, req.ClientReference)
	}
	existing.Replayed = true
	return existing, nil
}
