package kucoin

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crossfeed/arbiscan/internal/domain"
	"github.com/crossfeed/arbiscan/internal/exchange"
)

func TestPair(t *testing.T) {
	assert.Equal(t, "BTC-USDT", Pair("BTC"))
	assert.Equal(t, "LTC-USDT", Pair("ltc"))
}

func TestParsePartBook(t *testing.T) {
	body := []byte(`{
		"code": "200000",
		"data": {
			"time": 1714564800000,
			"sequence": "3262786978",
			"bids": [["29998.2", "0.9"], ["29997.0", "2.5"]],
			"asks": [["30001.5", "0.4"]]
		}
	}`)

	up, err := parsePartBook("BTC", body)
	require.NoError(t, err)

	assert.Equal(t, Name, up.Exchange)
	assert.Equal(t, "BTC", up.Symbol)
	assert.Equal(t, domain.UpdateSnapshot, up.Type)
	assert.Equal(t, int64(3262786978), up.Sequence)
	assert.Equal(t, int64(1714564800000), up.Timestamp.UnixMilli())

	require.Len(t, up.Bids, 2)
	assert.Equal(t, "29998.2", up.Bids[0].Price.String())
	require.Len(t, up.Asks, 1)
	assert.Equal(t, "0.4", up.Asks[0].Quantity.String())
}

func TestParsePartBookAPIError(t *testing.T) {
	body := []byte(`{"code": "400100", "data": {}}`)

	_, err := parsePartBook("NOPE", body)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "400100")
}

func TestParsePartBookMalformed(t *testing.T) {
	_, err := parsePartBook("BTC", []byte(`{"code": "200000", "data": {"bids": [["x", "1"]], "asks": []}}`))
	require.ErrorIs(t, err, exchange.ErrMalformedPayload)

	_, err = parsePartBook("BTC", []byte(`<html>`))
	require.ErrorIs(t, err, exchange.ErrMalformedPayload)
}
