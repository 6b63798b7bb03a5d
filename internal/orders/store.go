package orders

import (
	"context"
	"errors"
)

var (
	ErrTenantNotFound    = errors.New("tenant not found")
	ErrProductNotFound   = errors.New("product not found")
	ErrOrderNotFound     = errors.New("order not found")
	ErrOrderConflict     = errors.New("open order already exists for key")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrDuplicateCode     = errors.New("product code already exists")
)

// Store is the relational state the engine reads and mutates. Updates are
// unconditional; the only uniqueness the engine relies on is the open
// order key (CreateOrder returns ErrOrderConflict).
type Store interface {
	TenantBotPhone(ctx context.Context, tenantID string) (string, error)

	FindActiveProductByCode(ctx context.Context, tenantID, code string) (*Product, error)
	DecrementStock(ctx context.Context, productID string, qty int) error

	FindOpenOrder(ctx context.Context, key Key) (*Order, error)
	CreateOrder(ctx context.Context, o *Order) error
	CreateCart(ctx context.Context, c *Cart) error
	// LinkCart sets the order's cart when it has none and returns the
	// cart the order ends up with.
	LinkCart(ctx context.Context, orderID, cartID string) (string, error)
	UpsertCartItem(ctx context.Context, cartID, productID string, qty int, unitPrice Cents) (*CartItem, error)
	RecalculateOrderTotal(ctx context.Context, orderID string) (Cents, error)

	UpsertCustomerGroup(ctx context.Context, g CustomerGroup) error

	GetOrder(ctx context.Context, tenantID, orderID string) (*Order, error)
	// MarkOrderPaid flags the order paid, closes its cart and claims the
	// payment confirmation. claimed is true for exactly one caller.
	MarkOrderPaid(ctx context.Context, tenantID, orderID string) (o *Order, claimed bool, err error)
}
