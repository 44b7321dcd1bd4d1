package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/souqly/backend/internal/audit"
	"github.com/souqly/backend/internal/config"
	"github.com/souqly/backend/internal/models"
)

// verticalTable describes where the escrow header of a vertical lives.
// resourceColumn may be a literal 0 for verticals that hold no resource.
type verticalTable struct {
	table          string
	totalColumn    string
	resourceColumn string

	// lineItems returns the payable lines of a record.
	lineItems func(ctx context.Context, tx *sql.Tx, rec *models.EscrowRecord) ([]models.LineItem, error)
	// release frees whatever the record holds once it reaches a terminal
	// status. Nil when the vertical holds nothing.
	release func(ctx context.Context, tx *sql.Tx, rec *models.EscrowRecord, to models.Status) error
}

func (t verticalTable) headerQuery() string {
	return fmt.Sprintf(`SELECT id, user_id, %s, %s, status, created_at, updated_at FROM %s WHERE id = $1`,
		t.resourceColumn, t.totalColumn, t.table)
}

type EscrowService struct {
	db           *sql.DB
	ledger       *LedgerService
	settlement   *SettlementService
	availability *AvailabilityService
	audit        audit.Auditor
	cfg          *config.EscrowConfig
	verticals    map[models.Vertical]verticalTable
}

func NewEscrowService(db *sql.DB, ledger *LedgerService, availability *AvailabilityService, auditor audit.Auditor, cfg *config.EscrowConfig) *EscrowService {
	s := &EscrowService{
		db:           db,
		ledger:       ledger,
		settlement:   NewSettlementService(ledger),
		availability: availability,
		audit:        auditor,
		cfg:          cfg,
	}
	s.verticals = map[models.Vertical]verticalTable{
		models.VerticalOrder: {
			table: "orders", totalColumn: "total", resourceColumn: "0",
			lineItems: orderLineItems, release: releaseOrderStock,
		},
		models.VerticalRide: {
			table: "rides", totalColumn: "fare", resourceColumn: "rider_id",
			lineItems: rideLineItems, release: releaseRider,
		},
		models.VerticalFoodOrder: {
			table: "food_orders", totalColumn: "total", resourceColumn: "vendor_id",
			lineItems: foodOrderLineItems,
		},
		models.VerticalApartmentBooking: {
			table: "apartment_bookings", totalColumn: "total_price", resourceColumn: "apartment_id",
			lineItems: apartmentLineItems,
		},
		models.VerticalServiceBooking: {
			table: "service_bookings", totalColumn: "amount", resourceColumn: "service_id",
			lineItems: serviceLineItems,
		},
	}
	return s
}

// CreateTransaction opens an escrow of the given vertical. payload must be the
// request type of that vertical.
func (s *EscrowService) CreateTransaction(ctx context.Context, vertical models.Vertical, payerID int64, payload any) (*models.EscrowRecord, error) {
	switch req := payload.(type) {
	case models.OrderRequest:
		if vertical != models.VerticalOrder {
			break
		}
		req.UserID = payerID
		order, err := s.PlaceOrder(ctx, req)
		if err != nil {
			return nil, err
		}
		return &models.EscrowRecord{Vertical: vertical, ID: order.ID, PayerID: payerID, Total: order.Total, Status: order.Status, CreatedAt: order.CreatedAt, UpdatedAt: order.CreatedAt}, nil
	case models.RideRequest:
		if vertical != models.VerticalRide {
			break
		}
		req.UserID = payerID
		ride, err := s.BookRide(ctx, req)
		if err != nil {
			return nil, err
		}
		return &models.EscrowRecord{Vertical: vertical, ID: ride.ID, PayerID: payerID, ResourceID: ride.RiderID, Total: ride.Fare, Status: ride.Status, CreatedAt: ride.CreatedAt, UpdatedAt: ride.CreatedAt}, nil
	case models.ApartmentBookingRequest:
		if vertical != models.VerticalApartmentBooking {
			break
		}
		req.UserID = payerID
		res, err := s.BookApartment(ctx, req)
		if err != nil {
			return nil, err
		}
		return &models.EscrowRecord{Vertical: vertical, ID: res.ID, PayerID: payerID, ResourceID: res.ApartmentID, Total: res.TotalPrice, Status: res.Status, CreatedAt: res.CreatedAt, UpdatedAt: res.CreatedAt}, nil
	case models.FoodOrderRequest:
		if vertical != models.VerticalFoodOrder {
			break
		}
		req.UserID = payerID
		order, err := s.PlaceFoodOrder(ctx, req)
		if err != nil {
			return nil, err
		}
		return &models.EscrowRecord{Vertical: vertical, ID: order.ID, PayerID: payerID, ResourceID: order.VendorID, Total: order.Total, Status: order.Status, CreatedAt: order.CreatedAt, UpdatedAt: order.CreatedAt}, nil
	case models.ServiceBookingRequest:
		if vertical != models.VerticalServiceBooking {
			break
		}
		req.UserID = payerID
		booking, err := s.BookService(ctx, req)
		if err != nil {
			return nil, err
		}
		return &models.EscrowRecord{Vertical: vertical, ID: booking.ID, PayerID: payerID, ResourceID: booking.ServiceID, Total: booking.Amount, Status: booking.Status, CreatedAt: booking.CreatedAt, UpdatedAt: booking.CreatedAt}, nil
	}
	return nil, fmt.Errorf("%w: %T cannot create a %s", ErrInvalidInput, payload, vertical)
}

// AdvanceStatus moves a record along its lifecycle. Terminal statuses first
// release held resources; the settling status then pays the payees and
// CANCELLED applies the refund policy. Everything happens in one unit of work.
func (s *EscrowService) AdvanceStatus(ctx context.Context, vertical models.Vertical, id int64, to models.Status) (*models.EscrowRecord, error) {
	lc, ok := LifecycleFor(vertical)
	if !ok {
		return nil, fmt.Errorf("%w: unknown vertical %q", ErrInvalidInput, vertical)
	}
	if !lc.Knows(to) {
		return nil, fmt.Errorf("%w: %s is not a %s status", ErrInvalidInput, to, vertical)
	}
	vt := s.verticals[vertical]

	var rec *models.EscrowRecord
	err := RunInUnitOfWork(ctx, s.db, func(uow *UnitOfWork) error {
		var err error
		rec, err = s.lockRecord(ctx, uow.Tx, vertical, id)
		if err != nil {
			return err
		}
		from := rec.Status
		if err := lc.Validate(id, from, to); err != nil {
			return err
		}

		// Resource rows are locked before account rows, the same order the
		// create paths use.
		if lc.IsTerminal(to) && vt.release != nil {
			if err := vt.release(ctx, uow.Tx, rec, to); err != nil {
				return err
			}
		}

		switch to {
		case lc.Settles:
			items, err := vt.lineItems(ctx, uow.Tx, rec)
			if err != nil {
				return err
			}
			plan, err := s.settlement.SettleTx(ctx, uow, rec, items)
			if err != nil {
				return err
			}
			rec.Settlement = plan
		case models.StatusCancelled:
			if err := s.refundTx(ctx, uow, rec); err != nil {
				return err
			}
		}

		now := time.Now()
		if err := appendTransition(ctx, uow.Tx, vertical, id, from, to, now); err != nil {
			return err
		}
		if err := s.updateStatus(ctx, uow.Tx, vt, id, to, now); err != nil {
			return err
		}
		rec.Status = to
		rec.UpdatedAt = now

		uow.AfterCommit(func() {
			s.audit.LogTransition(string(vertical), id, string(from), string(to))
		})
		return nil
	})
	if err != nil {
		if KindOf(err) == KindInternal {
			s.audit.LogError("advance_status", fmt.Sprintf("%s-%d", referencePrefix(vertical), id), err)
		}
		return nil, err
	}

	log.Info().Str("component", "escrow").Str("vertical", string(vertical)).Int64("id", id).
		Str("status", string(to)).Msg("status advanced")
	return rec, nil
}

// Complete moves a record to its settling status.
func (s *EscrowService) Complete(ctx context.Context, vertical models.Vertical, id int64) (*models.EscrowRecord, error) {
	lc, ok := LifecycleFor(vertical)
	if !ok {
		return nil, fmt.Errorf("%w: unknown vertical %q", ErrInvalidInput, vertical)
	}
	return s.AdvanceStatus(ctx, vertical, id, lc.Settles)
}

func (s *EscrowService) Cancel(ctx context.Context, vertical models.Vertical, id int64) (*models.EscrowRecord, error) {
	return s.AdvanceStatus(ctx, vertical, id, models.StatusCancelled)
}

// GetRecord reads an escrow header without locking it.
func (s *EscrowService) GetRecord(ctx context.Context, vertical models.Vertical, id int64) (*models.EscrowRecord, error) {
	vt, ok := s.verticals[vertical]
	if !ok {
		return nil, fmt.Errorf("%w: unknown vertical %q", ErrInvalidInput, vertical)
	}
	return scanRecord(s.db.QueryRowContext(ctx, vt.headerQuery(), id), vertical, id)
}

// GetTransitions lists the status history of a record, oldest first.
func (s *EscrowService) GetTransitions(ctx context.Context, vertical models.Vertical, id int64) ([]models.Transition, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT vertical, record_id, from_status, to_status, created_at
		FROM escrow_transitions
		WHERE vertical = $1 AND record_id = $2
		ORDER BY id`, string(vertical), id)
	if err != nil {
		return nil, fmt.Errorf("list transitions of %s %d: %w", vertical, id, err)
	}
	defer rows.Close()

	transitions := []models.Transition{}
	for rows.Next() {
		var t models.Transition
		if err := rows.Scan(&t.Vertical, &t.RecordID, &t.FromStatus, &t.ToStatus, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan transition: %w", err)
		}
		transitions = append(transitions, t)
	}
	return transitions, rows.Err()
}

func (s *EscrowService) lockRecord(ctx context.Context, tx *sql.Tx, vertical models.Vertical, id int64) (*models.EscrowRecord, error) {
	vt := s.verticals[vertical]
	return scanRecord(tx.QueryRowContext(ctx, vt.headerQuery()+" FOR UPDATE", id), vertical, id)
}

func scanRecord(row *sql.Row, vertical models.Vertical, id int64) (*models.EscrowRecord, error) {
	rec := &models.EscrowRecord{Vertical: vertical}
	err := row.Scan(&rec.ID, &rec.PayerID, &rec.ResourceID, &rec.Total, &rec.Status, &rec.CreatedAt, &rec.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s %d", ErrNotFound, vertical, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get %s %d: %w", vertical, id, err)
	}
	return rec, nil
}

// holdTx debits the escrowed total from the payer. Free records hold nothing
// and post no entry.
func (s *EscrowService) holdTx(ctx context.Context, uow *UnitOfWork, payerID, total int64, reference, description string) error {
	if total == 0 {
		return nil
	}
	_, err := s.ledger.DebitTx(ctx, uow, payerID, total, reference, description)
	return err
}

// refundTx returns the escrowed total according to the configured policy.
func (s *EscrowService) refundTx(ctx context.Context, uow *UnitOfWork, rec *models.EscrowRecord) error {
	if rec.Total <= 0 {
		return nil
	}

	prefix := referencePrefix(rec.Vertical)
	if s.cfg.RefundPolicy == config.RefundPolicyForfeit {
		reference := fmt.Sprintf("%s-FORFEIT-%d", prefix, rec.ID)
		description := fmt.Sprintf("Forfeited escrow of cancelled %s #%d", rec.Vertical, rec.ID)
		_, err := s.ledger.CreditTx(ctx, uow, s.cfg.PlatformAccountUserID, rec.Total, reference, description)
		return err
	}

	reference := fmt.Sprintf("%s-REFUND-%d", prefix, rec.ID)
	description := fmt.Sprintf("Refund for cancelled %s #%d", rec.Vertical, rec.ID)
	_, err := s.ledger.CreditTx(ctx, uow, rec.PayerID, rec.Total, reference, description)
	return err
}

func (s *EscrowService) updateStatus(ctx context.Context, tx *sql.Tx, vt verticalTable, id int64, status models.Status, now time.Time) error {
	query := fmt.Sprintf(`UPDATE %s SET status = $1, updated_at = $2 WHERE id = $3`, vt.table)
	if _, err := tx.ExecContext(ctx, query, string(status), now, id); err != nil {
		return fmt.Errorf("update status of %s %d: %w", vt.table, id, err)
	}
	return nil
}

func appendTransition(ctx context.Context, tx *sql.Tx, vertical models.Vertical, id int64, from, to models.Status, now time.Time) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO escrow_transitions (vertical, record_id, from_status, to_status, created_at)
		VALUES ($1, $2, $3, $4, $5)`,
		string(vertical), id, string(from), string(to), now)
	if err != nil {
		return fmt.Errorf("record transition of %s %d: %w", vertical, id, err)
	}
	return nil
}

// singlePayee builds the one line of a vertical whose whole total goes to the
// vendor found by query.
func singlePayee(ctx context.Context, tx *sql.Tx, query string, rec *models.EscrowRecord) ([]models.LineItem, error) {
	var payeeID int64
	err := tx.QueryRowContext(ctx, query, rec.ResourceID).Scan(&payeeID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: payee of %s %d", ErrNotFound, rec.Vertical, rec.ID)
	}
	if err != nil {
		return nil, fmt.Errorf("get payee of %s %d: %w", rec.Vertical, rec.ID, err)
	}
	return []models.LineItem{{PayeeID: payeeID, Amount: rec.Total, Fulfilled: true}}, nil
}
