package orders_test

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/ariefcatur/go-live-orders/internal/orders"
)

// memStore is an in-memory orders.Store with the same uniqueness rules as
// the Postgres schema.
type memStore struct {
	mu sync.Mutex

	botPhones map[string]string
	products  map[string]*orders.Product
	orders    []*orders.Order
	carts     map[string]*orders.Cart
	items     []*orders.CartItem
	groups    map[string]orders.CustomerGroup
	seq       int

	// fault injection
	upsertErr    map[string]error // by product id
	decrementErr error
	groupErr     error
	// beforeCreateOrder runs without the lock, before the insert.
	beforeCreateOrder func(o *orders.Order)
}

var _ orders.Store = (*memStore)(nil)

func newMemStore() *memStore {
	return &memStore{
		botPhones: map[string]string{},
		products:  map[string]*orders.Product{},
		carts:     map[string]*orders.Cart{},
		groups:    map[string]orders.CustomerGroup{},
		upsertErr: map[string]error{},
	}
}

func (m *memStore) nextID(prefix string) string {
	m.seq++
	return fmt.Sprintf("%s-%d", prefix, m.seq)
}

func (m *memStore) addTenant(id, bot string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.botPhones[id] = bot
}

func (m *memStore) addProduct(p orders.Product) *orders.Product {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p.ID == "" {
		p.ID = m.nextID("prod")
	}
	p.IsActive = true
	m.products[p.ID] = &p
	return &p
}

func (m *memStore) product(id string) orders.Product {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.products[id]
}

func (m *memStore) setPrice(id string, c orders.Cents) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.products[id].PriceCents = c
}

func (m *memStore) allOrders() []orders.Order {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]orders.Order, 0, len(m.orders))
	for _, o := range m.orders {
		out = append(out, *o)
	}
	return out
}

func (m *memStore) itemsOf(cartID string) []orders.CartItem {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []orders.CartItem
	for _, it := range m.items {
		if it.CartID == cartID {
			out = append(out, *it)
		}
	}
	return out
}

func (m *memStore) TenantBotPhone(_ context.Context, tenantID string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	bot, ok := m.botPhones[tenantID]
	if !ok {
		return "", orders.ErrTenantNotFound
	}
	return bot, nil
}

func (m *memStore) FindActiveProductByCode(_ context.Context, tenantID, code string) (*orders.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.products {
		if p.TenantID == tenantID && p.IsActive && strings.EqualFold(p.Code, code) {
			cp := *p
			return &cp, nil
		}
	}
	return nil, orders.ErrProductNotFound
}

func (m *memStore) DecrementStock(_ context.Context, productID string, qty int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.decrementErr != nil {
		return m.decrementErr
	}
	p := m.products[productID]
	if p.Stock < qty {
		return orders.ErrInsufficientStock
	}
	p.Stock -= qty
	return nil
}

func sameKey(o *orders.Order, k orders.Key) bool {
	return o.TenantID == k.TenantID && o.CustomerPhone == k.CustomerPhone &&
		o.EventDate.Equal(k.EventDate) && o.EventType == k.EventType && !o.IsPaid
}

func (m *memStore) FindOpenOrder(_ context.Context, k orders.Key) (*orders.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, o := range m.orders {
		if sameKey(o, k) {
			cp := *o
			return &cp, nil
		}
	}
	return nil, orders.ErrOrderNotFound
}

func (m *memStore) CreateOrder(_ context.Context, o *orders.Order) error {
	if hook := m.beforeCreateOrder; hook != nil {
		m.beforeCreateOrder = nil
		hook(o)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	k := orders.Key{TenantID: o.TenantID, CustomerPhone: o.CustomerPhone, EventDate: o.EventDate, EventType: o.EventType}
	for _, existing := range m.orders {
		if sameKey(existing, k) {
			return orders.ErrOrderConflict
		}
	}
	o.ID = m.nextID("order")
	cp := *o
	m.orders = append(m.orders, &cp)
	return nil
}

func (m *memStore) CreateCart(_ context.Context, c *orders.Cart) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c.ID = m.nextID("cart")
	cp := *c
	m.carts[c.ID] = &cp
	return nil
}

func (m *memStore) LinkCart(_ context.Context, orderID, cartID string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, o := range m.orders {
		if o.ID == orderID {
			if o.CartID == "" {
				o.CartID = cartID
			}
			return o.CartID, nil
		}
	}
	return "", orders.ErrOrderNotFound
}

func (m *memStore) UpsertCartItem(_ context.Context, cartID, productID string, qty int, unitPrice orders.Cents) (*orders.CartItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.upsertErr[productID]; err != nil {
		return nil, err
	}
	for _, it := range m.items {
		if it.CartID == cartID && it.ProductID == productID {
			it.Qty += qty
			it.UnitPriceCents = unitPrice
			cp := *it
			return &cp, nil
		}
	}
	it := &orders.CartItem{ID: m.nextID("item"), CartID: cartID, ProductID: productID, Qty: qty, UnitPriceCents: unitPrice}
	m.items = append(m.items, it)
	cp := *it
	return &cp, nil
}

func (m *memStore) RecalculateOrderTotal(_ context.Context, orderID string) (orders.Cents, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, o := range m.orders {
		if o.ID != orderID {
			continue
		}
		var total orders.Cents
		for _, it := range m.items {
			if o.CartID != "" && it.CartID == o.CartID {
				total += it.LineTotal()
			}
		}
		o.TotalCents = total
		return total, nil
	}
	return 0, orders.ErrOrderNotFound
}

func (m *memStore) UpsertCustomerGroup(_ context.Context, g orders.CustomerGroup) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.groupErr != nil {
		return m.groupErr
	}
	key := g.TenantID + "|" + g.GroupID + "|" + g.CustomerPhone
	if prev, ok := m.groups[key]; ok && g.GroupName == "" {
		g.GroupName = prev.GroupName
	}
	m.groups[key] = g
	return nil
}

func (m *memStore) GetOrder(_ context.Context, tenantID, orderID string) (*orders.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, o := range m.orders {
		if o.ID == orderID && o.TenantID == tenantID {
			cp := *o
			return &cp, nil
		}
	}
	return nil, orders.ErrOrderNotFound
}

func (m *memStore) MarkOrderPaid(_ context.Context, tenantID, orderID string) (*orders.Order, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, o := range m.orders {
		if o.ID != orderID || o.TenantID != tenantID {
			continue
		}
		o.IsPaid = true
		if c, ok := m.carts[o.CartID]; ok {
			c.Status = orders.CartClosed
		}
		claimed := !o.PaymentConfirmationSent
		o.PaymentConfirmationSent = true
		cp := *o
		return &cp, claimed, nil
	}
	return nil, false, orders.ErrOrderNotFound
}
