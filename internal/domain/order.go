package domain

import "time"

// OrderSide is the direction of a limit order.
type OrderSide string

const (
	SideBuy  OrderSide = "BUY"
	SideSell OrderSide = "SELL"
)

// OrderStatus mirrors the exchange order lifecycle.
type OrderStatus string

const (
	OrderNew       OrderStatus = "NEW"
	OrderFilled    OrderStatus = "FILLED"
	OrderCancelled OrderStatus = "CANCELED"
	OrderRejected  OrderStatus = "REJECTED"
)

// Terminal reports whether the order can no longer change.
func (s OrderStatus) Terminal() bool {
	return s == OrderFilled || s == OrderCancelled || s == OrderRejected
}

// OrderRequest is a limit order the driver wants placed.
type OrderRequest struct {
	ClientID string
	Symbol   string
	Side     OrderSide
	Price    float64
	Quantity float64
}

// Order is the exchange's view of a placed limit order.
type Order struct {
	ID          string      `json:"id"`
	ClientID    string      `json:"client_id"`
	Symbol      string      `json:"symbol"`
	Side        OrderSide   `json:"side"`
	Price       float64     `json:"price"`
	Quantity    float64     `json:"quantity"`
	Status      OrderStatus `json:"status"`
	FilledPrice float64     `json:"filled_price"`
	FilledQty   float64     `json:"filled_qty"`
	Fee         float64     `json:"fee"` // quote asset
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
}

// Balance is the free and locked amount of one asset.
type Balance struct {
	Asset  string  `json:"asset"`
	Free   float64 `json:"free"`
	Locked float64 `json:"locked"`
}

// Total is free plus locked.
func (b Balance) Total() float64 { return b.Free + b.Locked }
