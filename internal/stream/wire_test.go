package stream

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lobstream/internal/statemachine"
)

func TestDecodeSnapshot(t *testing.T) {
	raw := []byte(`{
		"sequence_num": 10,
		"events": [{
			"type": "snapshot",
			"product_id": "BTC-USD",
			"updates": [
				{"side": "bid", "price_level": "100", "new_quantity": "1"},
				{"side": "offer", "price_level": "101", "new_quantity": "3"}
			]
		}]
	}`)

	evt, err := decode(raw, time.Unix(0, 0))
	require.NoError(t, err)
	assert.Equal(t, statemachine.EventSnapshot, evt.Type)
	assert.Equal(t, "BTC-USD", evt.Symbol)
	assert.EqualValues(t, 10, evt.Sequence)
	require.Len(t, evt.Updates, 2)
	assert.Equal(t, statemachine.SideBid, evt.Updates[0].Side)
	assert.Equal(t, "100", evt.Updates[0].Price)
}

func TestDecodeRejectsEmptyEvents(t *testing.T) {
	_, err := decode([]byte(`{"events": []}`), time.Unix(0, 0))
	var malformed *statemachine.MalformedEvent
	require.ErrorAs(t, err, &malformed)
}

func TestDecodeRejectsUnknownSide(t *testing.T) {
	raw := []byte(`{"events": [{"type": "update", "product_id": "X", "updates": [{"side": "buy", "price_level": "1", "new_quantity": "1"}]}]}`)
	_, err := decode(raw, time.Unix(0, 0))
	var malformed *statemachine.MalformedEvent
	require.ErrorAs(t, err, &malformed)
}

func TestDecodeRejectsInvalidJSON(t *testing.T) {
	_, err := decode([]byte(`not json`), time.Unix(0, 0))
	var malformed *statemachine.MalformedEvent
	require.ErrorAs(t, err, &malformed)
}

func TestBackoffDelayCapsAtMax(t *testing.T) {
	base := time.Second
	max := 60 * time.Second

	assert.Equal(t, time.Second, backoffDelay(1, base, max))
	assert.Equal(t, 2*time.Second, backoffDelay(2, base, max))
	assert.Equal(t, 4*time.Second, backoffDelay(3, base, max))
	assert.Equal(t, max, backoffDelay(10, base, max))
}

func TestSubscribeMessageShape(t *testing.T) {
	raw, err := subscribeMessage("level2", []string{"BTC-USD", "ETH-USD"})
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"type":"subscribe"`)
	assert.Contains(t, string(raw), `"channel":"level2"`)
	assert.Contains(t, string(raw), `"BTC-USD"`)
}
