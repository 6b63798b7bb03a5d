package orders

import "time"

type EventType string

const (
	EventLive  EventType = "LIVE"
	EventBazar EventType = "BAZAR"
)

func (e EventType) Valid() bool { return e == EventLive || e == EventBazar }

type CartStatus string

const (
	CartOpen   CartStatus = "OPEN"
	CartClosed CartStatus = "CLOSED"
)

type Product struct {
	ID         string    `json:"id"`
	TenantID   string    `json:"tenant_id"`
	Code       string    `json:"code"`
	Name       string    `json:"name"`
	PriceCents Cents     `json:"price_cents"`
	Stock      int       `json:"stock"`
	IsActive   bool      `json:"is_active"`
	SaleType   EventType `json:"sale_type"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

type Cart struct {
	ID                string     `json:"id"`
	TenantID          string     `json:"tenant_id"`
	CustomerPhone     string     `json:"customer_phone"`
	EventType         EventType  `json:"event_type"`
	EventDate         time.Time  `json:"event_date"`
	Status            CartStatus `json:"status"`
	WhatsAppGroupName string     `json:"whatsapp_group_name,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
}

type Order struct {
	ID                      string     `json:"id"`
	TenantID                string     `json:"tenant_id"`
	CartID                  string     `json:"cart_id,omitempty"`
	CustomerPhone           string     `json:"customer_phone"`
	EventType               EventType  `json:"event_type"`
	EventDate               time.Time  `json:"event_date"`
	TotalCents              Cents      `json:"total_cents"`
	IsPaid                  bool       `json:"is_paid"`
	PaidAt                  *time.Time `json:"paid_at,omitempty"`
	PaymentConfirmationSent bool       `json:"payment_confirmation_sent"`
	Observation             string     `json:"observation,omitempty"`
	Items                   []CartItem `json:"items,omitempty"`
	CreatedAt               time.Time  `json:"created_at"`
	UpdatedAt               time.Time  `json:"updated_at"`
}

type CartItem struct {
	ID             string `json:"id"`
	CartID         string `json:"cart_id"`
	ProductID      string `json:"product_id"`
	ProductCode    string `json:"product_code,omitempty"`
	ProductName    string `json:"product_name,omitempty"`
	Qty            int    `json:"qty"`
	UnitPriceCents Cents  `json:"unit_price_cents"`
}

func (it CartItem) LineTotal() Cents { return it.UnitPriceCents.Mul(it.Qty) }

// Key identifies the working order of a customer: one unpaid order per
// tenant, phone, calendar day and event type.
type Key struct {
	TenantID      string
	CustomerPhone string
	EventDate     time.Time
	EventType     EventType
}

type CustomerGroup struct {
	TenantID      string
	GroupID       string
	CustomerPhone string
	GroupName     string
}

type GroupMeta struct {
	ID   string `json:"id" validate:"required"`
	Name string `json:"name"`
}

// InboundMessage is a customer text as received from a group or chat.
type InboundMessage struct {
	TenantID      string     `json:"tenant_id"`
	MessageID     string     `json:"message_id,omitempty"`
	CustomerPhone string     `json:"customer_phone"`
	Text          string     `json:"text"`
	Group         *GroupMeta `json:"group,omitempty"`
}

type ProductSummary struct {
	ID         string    `json:"id"`
	Code       string    `json:"code"`
	Name       string    `json:"name"`
	PriceCents Cents     `json:"price_cents"`
	SaleType   EventType `json:"sale_type"`
}

// CodeResult reports what happened to one code of a message.
type CodeResult struct {
	Code     string          `json:"code"`
	Success  bool            `json:"success"`
	Product  *ProductSummary `json:"product,omitempty"`
	OrderID  string          `json:"order_id,omitempty"`
	Quantity int             `json:"quantity,omitempty"`
	Total    Cents           `json:"total,omitempty"`
	Error    string          `json:"error,omitempty"`
}
