package kraken

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crossfeed/arbiscan/internal/domain"
	"github.com/crossfeed/arbiscan/internal/exchange"
)

func TestRestPair(t *testing.T) {
	assert.Equal(t, "XXBTZUSD", RestPair("BTC"))
	assert.Equal(t, "XXBTZUSD", RestPair("btc"))
	assert.Equal(t, "ETHUSD", RestPair("ETH"))
}

func TestParseDepth(t *testing.T) {
	body := []byte(`{
		"error": [],
		"result": {
			"XXBTZUSD": {
				"asks": [["30000.5", "1.25", 1700000000], ["30001.0", "0.5", 1700000001]],
				"bids": [["29999.1", "2.0", 1700000000], ["29998.0", "1.0", 1700000001]]
			}
		}
	}`)

	up, err := parseDepth("BTC", body)
	require.NoError(t, err)

	assert.Equal(t, Name, up.Exchange)
	assert.Equal(t, "BTC", up.Symbol)
	assert.Equal(t, domain.UpdateSnapshot, up.Type)

	require.Len(t, up.Asks, 2)
	assert.Equal(t, "30000.5", up.Asks[0].Price.String())
	assert.Equal(t, "1.25", up.Asks[0].Quantity.String())

	require.Len(t, up.Bids, 2)
	assert.Equal(t, "29999.1", up.Bids[0].Price.String())
}

func TestParseDepthAPIError(t *testing.T) {
	body := []byte(`{"error": ["EQuery:Unknown asset pair"], "result": {}}`)

	_, err := parseDepth("NOPE", body)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Unknown asset pair")
}

func TestParseDepthMalformed(t *testing.T) {
	_, err := parseDepth("BTC", []byte(`{"error": [], "result": {"XXBTZUSD": {"asks": [["x", "1"]], "bids": []}}}`))
	require.ErrorIs(t, err, exchange.ErrMalformedPayload)

	_, err = parseDepth("BTC", []byte(`not json`))
	require.ErrorIs(t, err, exchange.ErrMalformedPayload)
}

func TestParseBookMessageSnapshot(t *testing.T) {
	msg := []byte(`{
		"channel": "book",
		"type": "snapshot",
		"data": [{
			"symbol": "BTC/USD",
			"bids": [{"price": 29999.1, "qty": 2.0}],
			"asks": [{"price": 30000.5, "qty": 1.25}],
			"checksum": 123456,
			"timestamp": "2024-05-01T12:00:00.000000Z"
		}]
	}`)

	up, ok, err := parseBookMessage(msg)
	require.NoError(t, err)
	require.True(t, ok)

	assert.Equal(t, Name, up.Exchange)
	assert.Equal(t, "BTC", up.Symbol)
	assert.Equal(t, domain.UpdateSnapshot, up.Type)
	require.Len(t, up.Bids, 1)
	assert.Equal(t, "29999.1", up.Bids[0].Price.String())
	assert.Equal(t, 2024, up.Timestamp.Year())
}

func TestParseBookMessageUpdateWithRemoval(t *testing.T) {
	msg := []byte(`{
		"channel": "book",
		"type": "update",
		"data": [{
			"symbol": "BTC/USD",
			"bids": [{"price": 29999.1, "qty": 0}],
			"asks": [],
			"timestamp": "2024-05-01T12:00:01.000000Z"
		}]
	}`)

	up, ok, err := parseBookMessage(msg)
	require.NoError(t, err)
	require.True(t, ok)

	assert.Equal(t, domain.UpdateDelta, up.Type)
	require.Len(t, up.Bids, 1)
	assert.True(t, up.Bids[0].Quantity.IsZero())
}

func TestParseBookMessageIgnoresOtherChannels(t *testing.T) {
	for _, msg := range []string{
		`{"channel": "heartbeat"}`,
		`{"channel": "status", "type": "update", "data": [{"system": "online"}]}`,
		`{"method": "subscribe", "success": true}`,
	} {
		_, ok, err := parseBookMessage([]byte(msg))
		require.NoError(t, err)
		assert.False(t, ok, "message should be skipped: %s", msg)
	}
}
