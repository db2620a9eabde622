package orders

import (
	"strconv"
)

// Order statuses accepted by the backend.
const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusOnHold     = "on-hold"
	StatusCompleted  = "completed"
	StatusCancelled  = "cancelled"
	StatusRefunded   = "refunded"
	StatusFailed     = "failed"
)

var validStatuses = map[string]bool{
	StatusPending:    true,
	StatusProcessing: true,
	StatusOnHold:     true,
	StatusCompleted:  true,
	StatusCancelled:  true,
	StatusRefunded:   true,
	StatusFailed:     true,
}

// ValidStatus reports whether s is a known order status.
func ValidStatus(s string) bool {
	return validStatuses[s]
}

// StoreRef is the vendor reference embedded in Dokan orders and products.
type StoreRef struct {
	ID   int    `json:"id"`
	Name string `json:"name,omitempty"`
}

// LineItem is one order position.
type LineItem struct {
	ID        int    `json:"id"`
	ProductID int    `json:"product_id"`
	Name      string `json:"name"`
	Quantity  int    `json:"quantity"`
	Total     string `json:"total"`
}

// Order is a marketplace order.
type Order struct {
	ID          int        `json:"id"`
	Status      string     `json:"status"`
	Currency    string     `json:"currency"`
	Total       string     `json:"total"`
	DateCreated string     `json:"date_created"`
	CustomerID  int        `json:"customer_id"`
	Store       *StoreRef  `json:"store,omitempty"`
	SellerID    int        `json:"seller_id,omitempty"`
	LineItems   []LineItem `json:"line_items,omitempty"`
}

// VendorID returns the owning vendor, or "" if the order carries none.
func (o Order) VendorID() string {
	switch {
	case o.Store != nil && o.Store.ID != 0:
		return strconv.Itoa(o.Store.ID)
	case o.SellerID != 0:
		return strconv.Itoa(o.SellerID)
	default:
		return ""
	}
}

// OrderPage is one page of a vendor's orders.
type OrderPage struct {
	Orders     []Order `json:"orders"`
	Page       int     `json:"page"`
	Total      int     `json:"total"`
	TotalPages int     `json:"total_pages"`
}

// OrderNote is a note attached to an order.
type OrderNote struct {
	ID           int    `json:"id"`
	Note         string `json:"note"`
	CustomerNote bool   `json:"customer_note"`
	DateCreated  string `json:"date_created,omitempty"`
}

// Store is a Dokan vendor store.
type Store struct {
	ID        int    `json:"id"`
	StoreName string `json:"store_name"`
	Email     string `json:"email,omitempty"`
	Enabled   bool   `json:"enabled"`
}

// Product is the subset of product fields the gateway mutates.
type Product struct {
	ID            int       `json:"id"`
	Name          string    `json:"name"`
	ManageStock   bool      `json:"manage_stock"`
	StockQuantity *int      `json:"stock_quantity"`
	StockStatus   string    `json:"stock_status,omitempty"`
	Store         *StoreRef `json:"store,omitempty"`
}

// VendorID returns the store owning the product, or "" if it carries none.
func (p Product) VendorID() string {
	if p.Store == nil || p.Store.ID == 0 {
		return ""
	}
	return strconv.Itoa(p.Store.ID)
}

// ListOptions filters a vendor order listing.
type ListOptions struct {
	Page    int
	PerPage int
	Status  string
}
