package models

import "time"

// Category groups products in the catalog.
type Category struct {
	ID        int64     `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Product represents a catalog product. Price is in the smallest
// currency unit. Stock is only mutated by the settlement engine.
type Product struct {
	ID         int64     `db:"id" json:"id"`
	Name       string    `db:"name" json:"name"`
	Price      int64     `db:"price" json:"price"`
	Stock      int       `db:"stock" json:"stock"`
	CategoryID int64     `db:"category_id" json:"category_id"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time `db:"updated_at" json:"updated_at"`
}

// Customer is an optional party on an order.
type Customer struct {
	ID        int64     `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	Phone     string    `db:"phone" json:"phone"`
	Email     string    `db:"email" json:"email"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// User is a staff account that can place orders.
type User struct {
	ID           int64     `db:"id" json:"id"`
	Name         string    `db:"name" json:"name"`
	Email        string    `db:"email" json:"email"`
	PasswordHash string    `db:"password_hash" json:"-"`
	Role         string    `db:"role" json:"role"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}

// User roles
const (
	RoleAdmin   = "admin"
	RoleCashier = "cashier"
	RoleManager = "manager"
)

// Order is a committed settlement. Total always equals the sum of its
// line subtotals; an order with zero lines is never created.
type Order struct {
	ID         int64       `db:"id" json:"id"`
	Total      int64       `db:"total" json:"total"`
	CustomerID *int64      `db:"customer_id" json:"customer_id,omitempty"`
	UserID     int64       `db:"user_id" json:"user_id"`
	CreatedAt  time.Time   `db:"created_at" json:"created_at"`
	Lines      []OrderLine `db:"-" json:"lines,omitempty"`
}

// OrderLine captures the unit price at settlement time, so historic
// orders are insulated from later price changes.
type OrderLine struct {
	ID        int64 `db:"id" json:"id"`
	OrderID   int64 `db:"order_id" json:"order_id"`
	ProductID int64 `db:"product_id" json:"product_id"`
	Quantity  int   `db:"quantity" json:"quantity"`
	Subtotal  int64 `db:"subtotal" json:"subtotal"`
}

// AuditEntry is an append-only record of a significant action.
type AuditEntry struct {
	ID        int64     `db:"id" json:"id"`
	Action    string    `db:"action" json:"action"`
	Entity    string    `db:"entity" json:"entity"`
	UserID    int64     `db:"user_id" json:"user_id"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Audit actions
const (
	AuditOrderCreated    = "ORDER_CREATED"
	AuditOrderReversed   = "ORDER_REVERSED"
	AuditProductCreated  = "PRODUCT_CREATED"
	AuditProductUpdated  = "PRODUCT_UPDATED"
	AuditProductDeleted  = "PRODUCT_DELETED"
	AuditCustomerCreated = "CUSTOMER_CREATED"
	AuditUserCreated     = "USER_CREATED"
)

// Audit entities
const (
	EntityOrder    = "order"
	EntityProduct  = "product"
	EntityCustomer = "customer"
	EntityUser     = "user"
)
