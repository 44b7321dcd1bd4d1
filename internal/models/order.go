package models

import "time"

// Product is a stock-keeping item sold by a vendor.
type Product struct {
	ID       int64  `json:"id" db:"id"`
	VendorID int64  `json:"vendor_id" db:"vendor_id"`
	Name     string `json:"name" db:"name"`
	Price    int64  `json:"price" db:"price"`
	Stock    int    `json:"stock" db:"stock"`
}

// Order is a multi-vendor e-commerce purchase.
type Order struct {
	ID                int64       `json:"id" db:"id"`
	UserID            int64       `json:"user_id" db:"user_id"`
	Total             int64       `json:"total" db:"total"`
	Status            Status      `json:"status" db:"status"`
	DeliveryAddressID int64       `json:"delivery_address_id" db:"delivery_address_id"`
	Items             []OrderItem `json:"items"`
	CreatedAt         time.Time   `json:"created_at" db:"created_at"`
}

// OrderItem is one product line. Unit price is frozen at purchase time.
type OrderItem struct {
	ID        int64 `json:"id" db:"id"`
	OrderID   int64 `json:"order_id" db:"order_id"`
	ProductID int64 `json:"product_id" db:"product_id"`
	VendorID  int64 `json:"vendor_id" db:"vendor_id"`
	Quantity  int   `json:"quantity" db:"quantity"`
	UnitPrice int64 `json:"unit_price" db:"unit_price"`
	Fulfilled bool  `json:"fulfilled" db:"fulfilled"`
}

// LineTotal is quantity times unit price.
func (i OrderItem) LineTotal() int64 {
	return int64(i.Quantity) * i.UnitPrice
}

type OrderItemRequest struct {
	ProductID int64 `json:"productId" validate:"required,gt=0"`
	Quantity  int   `json:"quantity" validate:"required,gt=0"`
}

type OrderRequest struct {
	UserID            int64              `json:"-"`
	Items             []OrderItemRequest `json:"items" validate:"required,min=1,dive"`
	DeliveryAddressID int64              `json:"deliveryAddressId" validate:"required,gt=0"`
}
