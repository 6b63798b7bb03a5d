package orders

const (
	TopicInboundMessage    = "whatsapp.inbound.message"
	TopicItemAdded         = "order.item.added"
	TopicPaymentConfirmed  = "order.payment.confirmed"
	TopicOutboundRequested = "whatsapp.outbound.requested"
)

// Partition key = tenant:phone so all messages of one customer are
// consumed in order by a single worker.
func CustomerPartitionKey(tenantID, phone string) []byte {
	return []byte(tenantID + ":" + phone)
}

func PartitionKey(orderID string) []byte { return []byte(orderID) }
