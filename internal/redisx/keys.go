package redisx

import (
	"fmt"
	"time"
)

const (
	// Inbound customer message already reconciled: dedup:inbound:{tenant_id}:{message_id}
	KeyDedupInbound = "dedup:inbound:%s:%s"

	// Outbound request already queued: dedup:outbound:{event_id}
	KeyDedupOutbound = "dedup:outbound:%s"
)

var TTLDedup = 48 * time.Hour

func InboundKey(tenantID, messageID string) string {
	return fmt.Sprintf(KeyDedupInbound, tenantID, messageID)
}

func OutboundKey(eventID string) string {
	return fmt.Sprintf(KeyDedupOutbound, eventID)
}
