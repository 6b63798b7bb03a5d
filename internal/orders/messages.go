package orders

import (
	"fmt"
	"strings"
)

// ItemAddedText is the confirmation sent after a code is added to an order.
func ItemAddedText(p *Product, item *CartItem, total Cents) string {
	var b strings.Builder
	b.WriteString("✅ *Item adicionado ao seu pedido!*\n\n")
	fmt.Fprintf(&b, "🛍️ %s\n", p.Name)
	fmt.Fprintf(&b, "🔖 Código: %s\n", p.Code)
	fmt.Fprintf(&b, "🔢 Quantidade: %d\n", item.Qty)
	fmt.Fprintf(&b, "💰 Valor unitário: %s\n", item.UnitPriceCents.BRL())
	fmt.Fprintf(&b, "💵 Subtotal: %s\n", item.LineTotal().BRL())
	fmt.Fprintf(&b, "\n🧾 Total do pedido: %s", total.BRL())
	return b.String()
}

// PaymentConfirmedText is sent once when an order is marked paid.
func PaymentConfirmedText(o *Order) string {
	var b strings.Builder
	b.WriteString("🎉 *Pagamento confirmado!*\n\n")
	fmt.Fprintf(&b, "Pedido: %s\n", shortID(o.ID))
	fmt.Fprintf(&b, "Valor: %s\n", o.TotalCents.BRL())
	b.WriteString("\nObrigado pela compra! Em breve enviaremos os detalhes da entrega.")
	return b.String()
}

func shortID(id string) string {
	if len(id) > 8 {
		return strings.ToUpper(id[:8])
	}
	return strings.ToUpper(id)
}
