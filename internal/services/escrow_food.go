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

// PlaceFoodOrder escrows an order of menu items from a single restaurant.
func (s *EscrowService) PlaceFoodOrder(ctx context.Context, req models.FoodOrderRequest) (*models.FoodOrder, error) {
	if len(req.Items) == 0 {
		return nil, fmt.Errorf("%w: food order has no items", ErrInvalidInput)
	}
	for _, item := range req.Items {
		if item.Quantity <= 0 {
			return nil, fmt.Errorf("%w: quantity of menu item %d must be greater than 0", ErrInvalidInput, item.MenuID)
		}
	}

	order := &models.FoodOrder{
		UserID:            req.UserID,
		VendorID:          req.VendorID,
		Status:            models.StatusPending,
		DeliveryAddressID: req.DeliveryAddressID,
		CreatedAt:         time.Now(),
	}

	err := RunInUnitOfWork(ctx, s.db, func(uow *UnitOfWork) error {
		var vendor models.Vendor
		err := uow.Tx.QueryRowContext(ctx, `
			SELECT id, user_id, is_verified
			FROM vendors
			WHERE id = $1
			FOR SHARE`, req.VendorID).
			Scan(&vendor.ID, &vendor.UserID, &vendor.IsVerified)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%w: vendor %d", ErrNotFound, req.VendorID)
		}
		if err != nil {
			return fmt.Errorf("get vendor %d: %w", req.VendorID, err)
		}
		if !vendor.IsVerified {
			return fmt.Errorf("%w: vendor %d is not verified", ErrResourceUnavailable, vendor.ID)
		}

		menus, err := loadMenuItems(ctx, uow.Tx, req.Items)
		if err != nil {
			return err
		}

		order.Items = make([]models.FoodOrderItem, 0, len(req.Items))
		for _, item := range req.Items {
			menu := menus[item.MenuID]
			if menu.VendorID != vendor.ID {
				return fmt.Errorf("%w: menu item %d does not belong to vendor %d", ErrInvalidInput, menu.ID, vendor.ID)
			}
			if !menu.IsAvailable {
				return fmt.Errorf("%w: menu item %d is not available", ErrResourceUnavailable, menu.ID)
			}
			line := models.FoodOrderItem{MenuID: menu.ID, Quantity: item.Quantity, UnitPrice: menu.Price}
			order.Total += int64(line.Quantity) * line.UnitPrice
			order.Items = append(order.Items, line)
		}

		err = uow.Tx.QueryRowContext(ctx, `
			INSERT INTO food_orders (user_id, vendor_id, total, status, delivery_address_id, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $6)
			RETURNING id`,
			order.UserID, order.VendorID, order.Total, string(order.Status), order.DeliveryAddressID, order.CreatedAt).Scan(&order.ID)
		if err != nil {
			return fmt.Errorf("create food order: %w", err)
		}

		for i := range order.Items {
			line := &order.Items[i]
			line.FoodOrderID = order.ID
			err := uow.Tx.QueryRowContext(ctx, `
				INSERT INTO food_order_items (food_order_id, menu_id, quantity, unit_price)
				VALUES ($1, $2, $3, $4)
				RETURNING id`,
				line.FoodOrderID, line.MenuID, line.Quantity, line.UnitPrice).Scan(&line.ID)
			if err != nil {
				return fmt.Errorf("create food order item: %w", err)
			}
		}

		return s.holdTx(ctx, uow, order.UserID, order.Total,
			fmt.Sprintf("FOOD-%d", order.ID), fmt.Sprintf("Payment for food order #%d", order.ID))
	})
	if err != nil {
		return nil, err
	}

	log.Info().Str("component", "escrow").Int64("food_order_id", order.ID).Int64("vendor_id", order.VendorID).
		Int64("total", order.Total).Msg("food order placed")
	return order, nil
}

func loadMenuItems(ctx context.Context, tx *sql.Tx, items []models.FoodOrderItemRequest) (map[int64]models.MenuItem, error) {
	ids := make([]int64, 0, len(items))
	seen := make(map[int64]bool)
	for _, item := range items {
		if !seen[item.MenuID] {
			seen[item.MenuID] = true
			ids = append(ids, item.MenuID)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	menus := make(map[int64]models.MenuItem, len(ids))
	for _, id := range ids {
		var m models.MenuItem
		err := tx.QueryRowContext(ctx, `
			SELECT id, vendor_id, name, price, is_available
			FROM menus
			WHERE id = $1`, id).
			Scan(&m.ID, &m.VendorID, &m.Name, &m.Price, &m.IsAvailable)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: menu item %d", ErrNotFound, id)
		}
		if err != nil {
			return nil, fmt.Errorf("get menu item %d: %w", id, err)
		}
		menus[id] = m
	}
	return menus, nil
}

func foodOrderLineItems(ctx context.Context, tx *sql.Tx, rec *models.EscrowRecord) ([]models.LineItem, error) {
	rows, err := tx.QueryContext(ctx, `
		SELECT v.user_id, fi.quantity * fi.unit_price
		FROM food_order_items fi
		JOIN food_orders fo ON fo.id = fi.food_order_id
		JOIN vendors v ON v.id = fo.vendor_id
		WHERE fi.food_order_id = $1
		ORDER BY fi.id`, rec.ID)
	if err != nil {
		return nil, fmt.Errorf("list items of food order %d: %w", rec.ID, err)
	}
	defer rows.Close()

	var items []models.LineItem
	for rows.Next() {
		item := models.LineItem{Fulfilled: true}
		if err := rows.Scan(&item.PayeeID, &item.Amount); err != nil {
			return nil, fmt.Errorf("scan item of food order %d: %w", rec.ID, err)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}
