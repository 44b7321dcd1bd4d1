package models

import "time"

type MenuItem struct {
	ID          int64  `json:"id" db:"id"`
	VendorID    int64  `json:"vendor_id" db:"vendor_id"`
	Name        string `json:"name" db:"name"`
	Price       int64  `json:"price" db:"price"`
	IsAvailable bool   `json:"is_available" db:"is_available"`
}

type FoodOrder struct {
	ID                int64           `json:"id" db:"id"`
	UserID            int64           `json:"user_id" db:"user_id"`
	VendorID          int64           `json:"vendor_id" db:"vendor_id"`
	Total             int64           `json:"total" db:"total"`
	Status            Status          `json:"status" db:"status"`
	DeliveryAddressID int64           `json:"delivery_address_id" db:"delivery_address_id"`
	Items             []FoodOrderItem `json:"items"`
	CreatedAt         time.Time       `json:"created_at" db:"created_at"`
}

type FoodOrderItem struct {
	ID          int64 `json:"id" db:"id"`
	FoodOrderID int64 `json:"food_order_id" db:"food_order_id"`
	MenuID      int64 `json:"menu_id" db:"menu_id"`
	Quantity    int   `json:"quantity" db:"quantity"`
	UnitPrice   int64 `json:"unit_price" db:"unit_price"`
}

type FoodOrderItemRequest struct {
	MenuID   int64 `json:"menuId" validate:"required,gt=0"`
	Quantity int   `json:"quantity" validate:"required,gt=0"`
}

type FoodOrderRequest struct {
	UserID            int64                  `json:"-"`
	VendorID          int64                  `json:"vendorId" validate:"required,gt=0"`
	Items             []FoodOrderItemRequest `json:"items" validate:"required,min=1,dive"`
	DeliveryAddressID int64                  `json:"deliveryAddressId" validate:"required,gt=0"`
}
