package kafka

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLaneIsStablePerKey(t *testing.T) {
	a := lane([]byte("tenant-1:31999990000"), 8)
	for i := 0; i < 10; i++ {
		assert.Equal(t, a, lane([]byte("tenant-1:31999990000"), 8))
	}
	assert.Equal(t, 0, lane(nil, 1))
	for _, k := range []string{"a", "b", "c", "tenant-2:1199"} {
		l := lane([]byte(k), 4)
		assert.True(t, l >= 0 && l < 4)
	}
}

func TestUnwrapPayload(t *testing.T) {
	type payload struct {
		OrderID string `json:"order_id"`
	}
	p, err := UnwrapPayload[payload](json.RawMessage(`{"order_id":"o-1"}`))
	require.NoError(t, err)
	assert.Equal(t, "o-1", p.OrderID)

	_, err = UnwrapPayload[payload](json.RawMessage(`{`))
	assert.ErrorContains(t, err, "decode payload")
}

func TestEventHeaders(t *testing.T) {
	h := EventHeaders("ItemAdded", 1)
	require.Len(t, h, 2)
	assert.Equal(t, "x-event-type", h[0].Key)
	assert.Equal(t, []byte("ItemAdded"), h[0].Value)
	assert.Equal(t, []byte("1"), h[1].Value)
}
