package bybit

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crossfeed/arbiscan/internal/domain"
	"github.com/crossfeed/arbiscan/internal/exchange"
)

func TestPair(t *testing.T) {
	assert.Equal(t, "BTCUSDT", Pair("BTC"))
	assert.Equal(t, "ETHUSDT", Pair("eth"))
	assert.Equal(t, "BTC", assetFromPair("BTCUSDT"))
}

func TestParseOrderbook(t *testing.T) {
	body := []byte(`{
		"retCode": 0,
		"retMsg": "OK",
		"result": {
			"s": "BTCUSDT",
			"a": [["30001.5", "0.4"], ["30002.0", "1.1"]],
			"b": [["29998.2", "0.9"]],
			"u": 18521,
			"ts": 1714564800000
		}
	}`)

	up, err := parseOrderbook("BTC", body)
	require.NoError(t, err)

	assert.Equal(t, Name, up.Exchange)
	assert.Equal(t, "BTC", up.Symbol)
	assert.Equal(t, domain.UpdateSnapshot, up.Type)
	assert.Equal(t, int64(18521), up.Sequence)
	assert.Equal(t, int64(1714564800000), up.Timestamp.UnixMilli())

	require.Len(t, up.Asks, 2)
	assert.Equal(t, "30001.5", up.Asks[0].Price.String())
	require.Len(t, up.Bids, 1)
	assert.Equal(t, "0.9", up.Bids[0].Quantity.String())
}

func TestParseOrderbookAPIError(t *testing.T) {
	body := []byte(`{"retCode": 10001, "retMsg": "params error: Symbol Invalid", "result": {}}`)

	_, err := parseOrderbook("NOPE", body)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Symbol Invalid")
}

func TestParseOrderbookMalformed(t *testing.T) {
	_, err := parseOrderbook("BTC", []byte(`{"retCode": 0, "result": {"b": [["bad", "1"]], "a": []}}`))
	require.ErrorIs(t, err, exchange.ErrMalformedPayload)
}

func TestParseTopicMessageSnapshotThenDelta(t *testing.T) {
	snap := []byte(`{
		"topic": "orderbook.50.BTCUSDT",
		"type": "snapshot",
		"ts": 1714564800000,
		"data": {
			"s": "BTCUSDT",
			"b": [["29998.2", "0.9"]],
			"a": [["30001.5", "0.4"]],
			"u": 100
		}
	}`)

	up, ok, err := parseTopicMessage(snap)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, domain.UpdateSnapshot, up.Type)
	assert.Equal(t, "BTC", up.Symbol)
	assert.Equal(t, int64(100), up.Sequence)

	delta := []byte(`{
		"topic": "orderbook.50.BTCUSDT",
		"type": "delta",
		"ts": 1714564801000,
		"data": {
			"s": "BTCUSDT",
			"b": [["29998.2", "0"]],
			"a": [],
			"u": 101
		}
	}`)

	up, ok, err = parseTopicMessage(delta)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, domain.UpdateDelta, up.Type)
	assert.Equal(t, int64(101), up.Sequence)
	require.Len(t, up.Bids, 1)
	assert.True(t, up.Bids[0].Quantity.IsZero())
}

func TestParseTopicMessageIgnoresControlFrames(t *testing.T) {
	for _, msg := range []string{
		`{"op": "pong", "success": true}`,
		`{"op": "subscribe", "success": true, "conn_id": "abc"}`,
		`{"topic": "tickers.BTCUSDT", "type": "snapshot", "data": {}}`,
	} {
		_, ok, err := parseTopicMessage([]byte(msg))
		require.NoError(t, err)
		assert.False(t, ok, "frame should be skipped: %s", msg)
	}
}
