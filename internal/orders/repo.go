package orders

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Repo struct{ DB *pgxpool.Pool }

var _ Store = (*Repo)(nil)

func (r *Repo) TenantBotPhone(ctx context.Context, tenantID string) (string, error) {
	var p *string
	err := r.DB.QueryRow(ctx, `SELECT bot_phone FROM tenants WHERE id=$1`, tenantID).Scan(&p)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrTenantNotFound
		}
		return "", fmt.Errorf("repository: select tenant %s: %w", tenantID, err)
	}
	if p == nil {
		return "", nil
	}
	return *p, nil
}

const productColumns = `id, tenant_id, code, name, price_cents, stock, is_active, sale_type, created_at, updated_at`

func scanProduct(row pgx.Row) (*Product, error) {
	var p Product
	err := row.Scan(&p.ID, &p.TenantID, &p.Code, &p.Name, &p.PriceCents, &p.Stock, &p.IsActive, &p.SaleType, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *Repo) FindActiveProductByCode(ctx context.Context, tenantID, code string) (*Product, error) {
	p, err := scanProduct(r.DB.QueryRow(ctx, `
		SELECT `+productColumns+`
		FROM products
		WHERE tenant_id=$1 AND upper(code)=upper($2) AND is_active`, tenantID, code))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrProductNotFound
		}
		return nil, fmt.Errorf("repository: select product %s: %w", code, err)
	}
	return p, nil
}

// DecrementStock never takes stock below zero.
func (r *Repo) DecrementStock(ctx context.Context, productID string, qty int) error {
	ct, err := r.DB.Exec(ctx, `
		UPDATE products SET stock = stock - $2, updated_at = now()
		WHERE id=$1 AND stock >= $2`, productID, qty)
	if err != nil {
		return fmt.Errorf("repository: decrement stock %s: %w", productID, err)
	}
	if ct.RowsAffected() != 1 {
		return ErrInsufficientStock
	}
	return nil
}

func (r *Repo) CreateProduct(ctx context.Context, p *Product) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	err := r.DB.QueryRow(ctx, `
		INSERT INTO products(id, tenant_id, code, name, price_cents, stock, is_active, sale_type)
		VALUES ($1,$2,upper($3),$4,$5,$6,$7,$8)
		RETURNING code, created_at, updated_at`,
		p.ID, p.TenantID, p.Code, p.Name, p.PriceCents, p.Stock, p.IsActive, p.SaleType,
	).Scan(&p.Code, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return ErrDuplicateCode
		}
		return fmt.Errorf("repository: insert product: %w", err)
	}
	return nil
}

func (r *Repo) ListProducts(ctx context.Context, tenantID string) ([]Product, error) {
	rows, err := r.DB.Query(ctx, `SELECT `+productColumns+` FROM products WHERE tenant_id=$1 ORDER BY code`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("repository: list products: %w", err)
	}
	defer rows.Close()

	out := make([]Product, 0)
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("repository: scan product: %w", err)
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

const orderColumns = `id, tenant_id, COALESCE(cart_id::text, ''), customer_phone, event_type, event_date,
	total_cents, is_paid, paid_at, payment_confirmation_sent, COALESCE(observation, ''), created_at, updated_at`

func scanOrder(row pgx.Row) (*Order, error) {
	var o Order
	err := row.Scan(&o.ID, &o.TenantID, &o.CartID, &o.CustomerPhone, &o.EventType, &o.EventDate,
		&o.TotalCents, &o.IsPaid, &o.PaidAt, &o.PaymentConfirmationSent, &o.Observation, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &o, nil
}

func (r *Repo) FindOpenOrder(ctx context.Context, k Key) (*Order, error) {
	o, err := scanOrder(r.DB.QueryRow(ctx, `
		SELECT `+orderColumns+`
		FROM orders
		WHERE tenant_id=$1 AND customer_phone=$2 AND event_date=$3 AND event_type=$4 AND NOT is_paid
		ORDER BY created_at
		LIMIT 1`, k.TenantID, k.CustomerPhone, dateArg(k.EventDate), k.EventType))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("repository: select open order: %w", err)
	}
	return o, nil
}

// CreateOrder inserts o unless another unpaid order holds the same key.
func (r *Repo) CreateOrder(ctx context.Context, o *Order) error {
	if o.ID == "" {
		o.ID = uuid.NewString()
	}
	err := r.DB.QueryRow(ctx, `
		INSERT INTO orders(id, tenant_id, customer_phone, event_type, event_date, total_cents, is_paid)
		VALUES ($1,$2,$3,$4,$5,$6,false)
		ON CONFLICT (tenant_id, customer_phone, event_date, event_type) WHERE NOT is_paid DO NOTHING
		RETURNING created_at, updated_at`,
		o.ID, o.TenantID, o.CustomerPhone, o.EventType, dateArg(o.EventDate), o.TotalCents,
	).Scan(&o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrOrderConflict
		}
		return fmt.Errorf("repository: insert order: %w", err)
	}
	return nil
}

func (r *Repo) CreateCart(ctx context.Context, c *Cart) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.Status == "" {
		c.Status = CartOpen
	}
	err := r.DB.QueryRow(ctx, `
		INSERT INTO carts(id, tenant_id, customer_phone, event_type, event_date, status, whatsapp_group_name)
		VALUES ($1,$2,$3,$4,$5,$6,NULLIF($7,''))
		RETURNING created_at`,
		c.ID, c.TenantID, c.CustomerPhone, c.EventType, dateArg(c.EventDate), c.Status, c.WhatsAppGroupName,
	).Scan(&c.CreatedAt)
	if err != nil {
		return fmt.Errorf("repository: insert cart: %w", err)
	}
	return nil
}

func (r *Repo) LinkCart(ctx context.Context, orderID, cartID string) (string, error) {
	var linked string
	err := r.DB.QueryRow(ctx, `
		UPDATE orders SET cart_id = COALESCE(cart_id, $2), updated_at = now()
		WHERE id=$1
		RETURNING cart_id::text`, orderID, cartID).Scan(&linked)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrOrderNotFound
		}
		return "", fmt.Errorf("repository: link cart to order %s: %w", orderID, err)
	}
	return linked, nil
}

// UpsertCartItem adds qty to the (cart, product) line, creating it when
// missing, and refreshes the unit price.
func (r *Repo) UpsertCartItem(ctx context.Context, cartID, productID string, qty int, unitPrice Cents) (*CartItem, error) {
	it := CartItem{CartID: cartID, ProductID: productID}
	err := r.DB.QueryRow(ctx, `
		INSERT INTO cart_items(id, cart_id, product_id, qty, unit_price_cents)
		VALUES ($1,$2,$3,$4,$5)
		ON CONFLICT (cart_id, product_id) DO UPDATE
		SET qty = cart_items.qty + EXCLUDED.qty,
		    unit_price_cents = EXCLUDED.unit_price_cents,
		    updated_at = now()
		RETURNING id, qty, unit_price_cents`,
		uuid.NewString(), cartID, productID, qty, unitPrice,
	).Scan(&it.ID, &it.Qty, &it.UnitPriceCents)
	if err != nil {
		return nil, fmt.Errorf("repository: upsert cart item: %w", err)
	}
	return &it, nil
}

// RecalculateOrderTotal sets the order total to the sum of its cart lines.
func (r *Repo) RecalculateOrderTotal(ctx context.Context, orderID string) (Cents, error) {
	var total Cents
	err := r.DB.QueryRow(ctx, `
		UPDATE orders o
		SET total_cents = COALESCE((
			SELECT SUM(ci.qty * ci.unit_price_cents) FROM cart_items ci WHERE ci.cart_id = o.cart_id
		), 0)::bigint,
		    updated_at = now()
		WHERE o.id=$1
		RETURNING o.total_cents`, orderID).Scan(&total)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrOrderNotFound
		}
		return 0, fmt.Errorf("repository: recalculate total %s: %w", orderID, err)
	}
	return total, nil
}

func (r *Repo) UpsertCustomerGroup(ctx context.Context, g CustomerGroup) error {
	_, err := r.DB.Exec(ctx, `
		INSERT INTO customer_groups(tenant_id, group_id, customer_phone, group_name)
		VALUES ($1,$2,$3,$4)
		ON CONFLICT (tenant_id, group_id, customer_phone) DO UPDATE
		SET group_name = COALESCE(NULLIF(EXCLUDED.group_name, ''), customer_groups.group_name),
		    updated_at = now()`,
		g.TenantID, g.GroupID, g.CustomerPhone, g.GroupName)
	if err != nil {
		return fmt.Errorf("repository: upsert customer group: %w", err)
	}
	return nil
}

func (r *Repo) GetOrder(ctx context.Context, tenantID, orderID string) (*Order, error) {
	o, err := scanOrder(r.DB.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE tenant_id=$1 AND id=$2`, tenantID, orderID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("repository: select order %s: %w", orderID, err)
	}
	if o.CartID == "" {
		o.Items = []CartItem{}
		return o, nil
	}

	rows, err := r.DB.Query(ctx, `
		SELECT ci.id, ci.cart_id, ci.product_id, p.code, p.name, ci.qty, ci.unit_price_cents
		FROM cart_items ci
		JOIN products p ON p.id = ci.product_id
		WHERE ci.cart_id=$1
		ORDER BY ci.created_at`, o.CartID)
	if err != nil {
		return nil, fmt.Errorf("repository: select items of order %s: %w", orderID, err)
	}
	defer rows.Close()

	o.Items = make([]CartItem, 0)
	for rows.Next() {
		var it CartItem
		if err := rows.Scan(&it.ID, &it.CartID, &it.ProductID, &it.ProductCode, &it.ProductName, &it.Qty, &it.UnitPriceCents); err != nil {
			return nil, fmt.Errorf("repository: scan item of order %s: %w", orderID, err)
		}
		o.Items = append(o.Items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("repository: iterate items of order %s: %w", orderID, err)
	}
	return o, nil
}

func (r *Repo) MarkOrderPaid(ctx context.Context, tenantID, orderID string) (o *Order, claimed bool, err error) {
	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, false, fmt.Errorf("repository: begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	o, err = scanOrder(tx.QueryRow(ctx, `
		UPDATE orders
		SET is_paid = true, paid_at = COALESCE(paid_at, now()), updated_at = now()
		WHERE tenant_id=$1 AND id=$2
		RETURNING `+orderColumns, tenantID, orderID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, false, ErrOrderNotFound
		}
		return nil, false, fmt.Errorf("repository: mark order %s paid: %w", orderID, err)
	}

	if o.CartID != "" {
		if _, err = tx.Exec(ctx, `UPDATE carts SET status=$2, updated_at=now() WHERE id=$1`, o.CartID, CartClosed); err != nil {
			return nil, false, fmt.Errorf("repository: close cart %s: %w", o.CartID, err)
		}
	}

	ct, err := tx.Exec(ctx, `
		UPDATE orders SET payment_confirmation_sent = true
		WHERE id=$1 AND NOT payment_confirmation_sent`, orderID)
	if err != nil {
		return nil, false, fmt.Errorf("repository: claim payment confirmation %s: %w", orderID, err)
	}
	claimed = ct.RowsAffected() == 1
	o.PaymentConfirmationSent = true

	if err = tx.Commit(ctx); err != nil {
		return nil, false, fmt.Errorf("repository: commit: %w", err)
	}
	return o, claimed, nil
}

// dateArg strips the clock and zone from a calendar day before it is
// encoded as a DATE.
func dateArg(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
