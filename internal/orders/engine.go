package orders

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ariefcatur/go-live-orders/internal/phone"
	"github.com/rs/zerolog/log"
)

// Per-code failure messages shown in the admin history.
const (
	MsgProductNotFound = "Produto não encontrado"
	MsgOutOfStock      = "Produto sem estoque"
	MsgOrderFailed     = "Erro ao registrar pedido"
)

// Notifier delivers a text to a customer. recipient is in send form.
type Notifier interface {
	Notify(ctx context.Context, tenantID, recipient, body string) error
}

// Events receives domain events after they are committed. Optional.
type Events interface {
	ItemAdded(ctx context.Context, tenantID string, p ItemAddedPayload)
	PaymentConfirmed(ctx context.Context, tenantID string, p PaymentConfirmedPayload)
}

type Engine struct {
	Store    Store
	Notifier Notifier
	Events   Events
	Clock    Clock
	Phones   phone.Policy
}

func NewEngine(store Store, notifier Notifier, clock Clock) *Engine {
	return &Engine{Store: store, Notifier: notifier, Clock: clock, Phones: phone.DefaultPolicy}
}

// ProcessInboundMessage turns the product codes in a customer message into
// order lines. Each code succeeds or fails on its own; the returned error is
// only set when nothing was processed.
func (e *Engine) ProcessInboundMessage(ctx context.Context, msg InboundMessage) ([]CodeResult, error) {
	customer := phone.ToStorageForm(msg.CustomerPhone)
	logger := log.With().Str("tenant_id", msg.TenantID).Str("customer", customer).Str("message_id", msg.MessageID).Logger()

	bot, err := e.Store.TenantBotPhone(ctx, msg.TenantID)
	if err != nil {
		return nil, fmt.Errorf("engine: resolve tenant: %w", err)
	}
	if bot != "" && phone.Equal(bot, customer) {
		logger.Debug().Msg("engine: ignoring message from own number")
		return nil, nil
	}

	codes := ExtractCodes(msg.Text)
	if len(codes) == 0 {
		return nil, nil
	}

	today := e.Clock.Today()
	groupName := ""
	if msg.Group != nil {
		groupName = msg.Group.Name
	}

	results := make([]CodeResult, 0, len(codes))
	for _, code := range codes {
		res := e.processCode(ctx, msg.TenantID, customer, groupName, code, today)
		if !res.Success {
			logger.Info().Str("code", code).Str("reason", res.Error).Msg("engine: code not added")
		}
		results = append(results, res)
	}

	if msg.Group != nil && msg.Group.ID != "" {
		err := e.Store.UpsertCustomerGroup(ctx, CustomerGroup{
			TenantID:      msg.TenantID,
			GroupID:       msg.Group.ID,
			CustomerPhone: customer,
			GroupName:     msg.Group.Name,
		})
		if err != nil {
			logger.Warn().Err(err).Str("group_id", msg.Group.ID).Msg("engine: failed to record customer group")
		}
	}

	return results, nil
}

func (e *Engine) processCode(ctx context.Context, tenantID, customer, groupName, code string, today time.Time) CodeResult {
	res := CodeResult{Code: code}
	logger := log.With().Str("tenant_id", tenantID).Str("customer", customer).Str("code", code).Logger()

	p, err := e.Store.FindActiveProductByCode(ctx, tenantID, code)
	if err != nil {
		if errors.Is(err, ErrProductNotFound) {
			res.Error = MsgProductNotFound
			return res
		}
		logger.Error().Err(err).Msg("engine: product lookup failed")
		res.Error = MsgOrderFailed
		return res
	}
	res.Product = &ProductSummary{ID: p.ID, Code: p.Code, Name: p.Name, PriceCents: p.PriceCents, SaleType: p.SaleType}

	if p.Stock <= 0 {
		res.Error = MsgOutOfStock
		return res
	}

	key := Key{TenantID: tenantID, CustomerPhone: customer, EventDate: today, EventType: p.SaleType}
	order, err := e.resolveOrder(ctx, key, p.PriceCents)
	if err != nil {
		logger.Error().Err(err).Msg("engine: failed to resolve order")
		res.Error = MsgOrderFailed
		return res
	}
	res.OrderID = order.ID

	cartID, err := e.ensureCart(ctx, order, groupName)
	if err != nil {
		logger.Error().Err(err).Str("order_id", order.ID).Msg("engine: failed to create cart")
		res.Error = MsgOrderFailed
		return res
	}

	item, err := e.Store.UpsertCartItem(ctx, cartID, p.ID, 1, p.PriceCents)
	if err != nil {
		logger.Error().Err(err).Str("order_id", order.ID).Msg("engine: failed to add cart item")
		res.Error = MsgOrderFailed
		return res
	}

	total, err := e.Store.RecalculateOrderTotal(ctx, order.ID)
	if err != nil {
		logger.Error().Err(err).Str("order_id", order.ID).Msg("engine: failed to update order total")
		res.Error = MsgOrderFailed
		return res
	}

	res.Success = true
	res.Quantity = item.Qty
	res.Total = total

	// The sale stands even when stock or notification updates fail.
	if err := e.Store.DecrementStock(ctx, p.ID, 1); err != nil {
		logger.Warn().Err(err).Str("product_id", p.ID).Msg("engine: failed to decrement stock")
	}

	if e.Notifier != nil {
		body := ItemAddedText(p, item, total)
		if err := e.Notifier.Notify(ctx, tenantID, e.Phones.SendForm(customer), body); err != nil {
			logger.Warn().Err(err).Str("order_id", order.ID).Msg("engine: failed to notify customer")
		}
	}

	if e.Events != nil {
		e.Events.ItemAdded(ctx, tenantID, ItemAddedPayload{
			OrderID:        order.ID,
			CartID:         cartID,
			CustomerPhone:  customer,
			EventType:      p.SaleType,
			EventDate:      today.Format(time.DateOnly),
			ProductID:      p.ID,
			Code:           p.Code,
			Qty:            item.Qty,
			UnitPriceCents: item.UnitPriceCents,
			TotalCents:     total,
		})
	}

	logger.Info().Str("order_id", order.ID).Int("qty", item.Qty).Int64("total_cents", int64(total)).Msg("engine: item added")
	return res
}

// resolveOrder finds the open order for key or creates it. When a
// concurrent message creates the same order first, its row is used.
func (e *Engine) resolveOrder(ctx context.Context, key Key, price Cents) (*Order, error) {
	o, err := e.Store.FindOpenOrder(ctx, key)
	if err == nil {
		return o, nil
	}
	if !errors.Is(err, ErrOrderNotFound) {
		return nil, err
	}

	o = &Order{
		TenantID:      key.TenantID,
		CustomerPhone: key.CustomerPhone,
		EventType:     key.EventType,
		EventDate:     key.EventDate,
		TotalCents:    price,
	}
	err = e.Store.CreateOrder(ctx, o)
	if err == nil {
		return o, nil
	}
	if !errors.Is(err, ErrOrderConflict) {
		return nil, err
	}

	log.Info().Str("tenant_id", key.TenantID).Str("customer", key.CustomerPhone).Msg("engine: order created concurrently, merging")
	return e.Store.FindOpenOrder(ctx, key)
}

func (e *Engine) ensureCart(ctx context.Context, o *Order, groupName string) (string, error) {
	if o.CartID != "" {
		return o.CartID, nil
	}
	c := &Cart{
		TenantID:          o.TenantID,
		CustomerPhone:     o.CustomerPhone,
		EventType:         o.EventType,
		EventDate:         o.EventDate,
		Status:            CartOpen,
		WhatsAppGroupName: groupName,
	}
	if err := e.Store.CreateCart(ctx, c); err != nil {
		return "", err
	}
	linked, err := e.Store.LinkCart(ctx, o.ID, c.ID)
	if err != nil {
		return "", err
	}
	o.CartID = linked
	return linked, nil
}

// MarkOrderPaid records a confirmed payment and sends the confirmation
// message the first time only.
func (e *Engine) MarkOrderPaid(ctx context.Context, tenantID, orderID, paymentRef string) (*Order, error) {
	o, claimed, err := e.Store.MarkOrderPaid(ctx, tenantID, orderID)
	if err != nil {
		return nil, err
	}
	log.Info().Str("tenant_id", tenantID).Str("order_id", orderID).Bool("notify", claimed).Msg("engine: order paid")
	if !claimed {
		return o, nil
	}

	if e.Notifier != nil {
		if err := e.Notifier.Notify(ctx, tenantID, e.Phones.SendForm(o.CustomerPhone), PaymentConfirmedText(o)); err != nil {
			log.Warn().Err(err).Str("tenant_id", tenantID).Str("order_id", orderID).Msg("engine: failed to send payment confirmation")
		}
	}
	if e.Events != nil {
		e.Events.PaymentConfirmed(ctx, tenantID, PaymentConfirmedPayload{OrderID: o.ID, PaymentRef: paymentRef, TotalCents: o.TotalCents})
	}
	return o, nil
}
