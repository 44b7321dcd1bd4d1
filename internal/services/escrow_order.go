package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/souqly/backend/internal/models"
)

type lockedProduct struct {
	models.Product
	payeeID  int64
	verified bool
}

// PlaceOrder reserves stock across any number of vendors and escrows the
// order total from the buyer.
func (s *EscrowService) PlaceOrder(ctx context.Context, req models.OrderRequest) (*models.Order, error) {
	if len(req.Items) == 0 {
		return nil, fmt.Errorf("%w: order has no items", ErrInvalidInput)
	}
	if s.cfg.MaxOrderLines > 0 && len(req.Items) > s.cfg.MaxOrderLines {
		return nil, fmt.Errorf("%w: order has more than %d items", ErrInvalidInput, s.cfg.MaxOrderLines)
	}

	wanted := make(map[int64]int)
	for _, item := range req.Items {
		if item.Quantity <= 0 {
			return nil, fmt.Errorf("%w: quantity of product %d must be greater than 0", ErrInvalidInput, item.ProductID)
		}
		wanted[item.ProductID] += item.Quantity
	}
	productIDs := make([]int64, 0, len(wanted))
	for id := range wanted {
		productIDs = append(productIDs, id)
	}
	sort.Slice(productIDs, func(i, j int) bool { return productIDs[i] < productIDs[j] })

	order := &models.Order{
		UserID:            req.UserID,
		Status:            models.StatusPending,
		DeliveryAddressID: req.DeliveryAddressID,
		CreatedAt:         time.Now(),
	}

	err := RunInUnitOfWork(ctx, s.db, func(uow *UnitOfWork) error {
		products := make(map[int64]*lockedProduct, len(productIDs))
		for _, id := range productIDs {
			p, err := lockProduct(ctx, uow.Tx, id)
			if err != nil {
				return err
			}
			if !p.verified {
				return fmt.Errorf("%w: vendor of product %d is not verified", ErrResourceUnavailable, id)
			}
			if p.Stock < wanted[id] {
				return fmt.Errorf("%w: product %d has %d left, %d requested", ErrInsufficientStock, id, p.Stock, wanted[id])
			}
			products[id] = p
		}

		for _, id := range productIDs {
			if _, err := uow.Tx.ExecContext(ctx, `UPDATE products SET stock = stock - $1 WHERE id = $2`, wanted[id], id); err != nil {
				return fmt.Errorf("reserve stock of product %d: %w", id, err)
			}
		}

		order.Items = make([]models.OrderItem, 0, len(req.Items))
		for _, item := range req.Items {
			p := products[item.ProductID]
			line := models.OrderItem{
				ProductID: p.ID,
				VendorID:  p.VendorID,
				Quantity:  item.Quantity,
				UnitPrice: p.Price,
				Fulfilled: true,
			}
			order.Total += line.LineTotal()
			order.Items = append(order.Items, line)
		}

		err := uow.Tx.QueryRowContext(ctx, `
			INSERT INTO orders (user_id, total, status, delivery_address_id, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $5)
			RETURNING id`,
			order.UserID, order.Total, string(order.Status), order.DeliveryAddressID, order.CreatedAt).Scan(&order.ID)
		if err != nil {
			return fmt.Errorf("create order: %w", err)
		}

		for i := range order.Items {
			line := &order.Items[i]
			line.OrderID = order.ID
			err := uow.Tx.QueryRowContext(ctx, `
				INSERT INTO order_items (order_id, product_id, vendor_id, quantity, unit_price, fulfilled)
				VALUES ($1, $2, $3, $4, $5, $6)
				RETURNING id`,
				line.OrderID, line.ProductID, line.VendorID, line.Quantity, line.UnitPrice, line.Fulfilled).Scan(&line.ID)
			if err != nil {
				return fmt.Errorf("create order item: %w", err)
			}
		}

		return s.holdTx(ctx, uow, order.UserID, order.Total,
			fmt.Sprintf("ORD-%d", order.ID), fmt.Sprintf("Payment for order #%d", order.ID))
	})
	if err != nil {
		return nil, err
	}

	log.Info().Str("component", "escrow").Int64("order_id", order.ID).Int64("user_id", order.UserID).
		Int64("total", order.Total).Int("items", len(order.Items)).Msg("order placed")
	return order, nil
}

// MarkItemUnfulfilled flags one line of a live order as not delivered and
// puts its quantity back in stock. The line is refunded to the buyer when the
// order completes. Marking an already unfulfilled line is a no-op.
func (s *EscrowService) MarkItemUnfulfilled(ctx context.Context, orderID, itemID int64) (*models.OrderItem, error) {
	lc, _ := LifecycleFor(models.VerticalOrder)

	var item models.OrderItem
	err := RunInUnitOfWork(ctx, s.db, func(uow *UnitOfWork) error {
		rec, err := s.lockRecord(ctx, uow.Tx, models.VerticalOrder, orderID)
		if err != nil {
			return err
		}
		if lc.IsTerminal(rec.Status) {
			return fmt.Errorf("%w: order %d is %s", ErrInvalidState, orderID, rec.Status)
		}

		err = uow.Tx.QueryRowContext(ctx, `
			SELECT id, order_id, product_id, vendor_id, quantity, unit_price, fulfilled
			FROM order_items
			WHERE id = $1 AND order_id = $2
			FOR UPDATE`, itemID, orderID).
			Scan(&item.ID, &item.OrderID, &item.ProductID, &item.VendorID, &item.Quantity, &item.UnitPrice, &item.Fulfilled)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%w: item %d of order %d", ErrNotFound, itemID, orderID)
		}
		if err != nil {
			return fmt.Errorf("get item %d of order %d: %w", itemID, orderID, err)
		}
		if !item.Fulfilled {
			return nil
		}

		if _, err := uow.Tx.ExecContext(ctx, `UPDATE order_items SET fulfilled = false WHERE id = $1`, itemID); err != nil {
			return fmt.Errorf("mark item %d unfulfilled: %w", itemID, err)
		}
		if _, err := uow.Tx.ExecContext(ctx, `UPDATE products SET stock = stock + $1 WHERE id = $2`, item.Quantity, item.ProductID); err != nil {
			return fmt.Errorf("restock product %d: %w", item.ProductID, err)
		}
		item.Fulfilled = false
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func lockProduct(ctx context.Context, tx *sql.Tx, id int64) (*lockedProduct, error) {
	var p lockedProduct
	err := tx.QueryRowContext(ctx, `
		SELECT p.id, p.vendor_id, p.name, p.price, p.stock, v.user_id, v.is_verified
		FROM products p
		JOIN vendors v ON v.id = p.vendor_id
		WHERE p.id = $1
		FOR UPDATE OF p`, id).
		Scan(&p.ID, &p.VendorID, &p.Name, &p.Price, &p.Stock, &p.payeeID, &p.verified)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: product %d", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("lock product %d: %w", id, err)
	}
	return &p, nil
}

// orderLineItems pays each line to the account owner of its vendor.
func orderLineItems(ctx context.Context, tx *sql.Tx, rec *models.EscrowRecord) ([]models.LineItem, error) {
	rows, err := tx.QueryContext(ctx, `
		SELECT v.user_id, oi.quantity * oi.unit_price, oi.fulfilled
		FROM order_items oi
		JOIN vendors v ON v.id = oi.vendor_id
		WHERE oi.order_id = $1
		ORDER BY oi.id`, rec.ID)
	if err != nil {
		return nil, fmt.Errorf("list items of order %d: %w", rec.ID, err)
	}
	defer rows.Close()

	var items []models.LineItem
	for rows.Next() {
		var item models.LineItem
		if err := rows.Scan(&item.PayeeID, &item.Amount, &item.Fulfilled); err != nil {
			return nil, fmt.Errorf("scan item of order %d: %w", rec.ID, err)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// releaseOrderStock restocks the still-fulfilled lines of a cancelled order.
// Unfulfilled lines were restocked when they were marked.
func releaseOrderStock(ctx context.Context, tx *sql.Tx, rec *models.EscrowRecord, to models.Status) error {
	if to != models.StatusCancelled {
		return nil
	}
	_, err := tx.ExecContext(ctx, `
		UPDATE products p
		SET stock = p.stock + r.quantity
		FROM (
			SELECT product_id, SUM(quantity) AS quantity
			FROM order_items
			WHERE order_id = $1 AND fulfilled
			GROUP BY product_id
		) r
		WHERE p.id = r.product_id`, rec.ID)
	if err != nil {
		return fmt.Errorf("restock order %d: %w", rec.ID, err)
	}
	return nil
}
