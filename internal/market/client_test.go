package market_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/irancrypto/marketbot/internal/market"
	"github.com/irancrypto/marketbot/internal/setup/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newClient(t *testing.T, handler http.Handler) *market.Client {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	return market.NewClient(&config.Market{
		BaseURL: srv.URL,
		APIKey:  "test-key",
	}, zap.NewNop())
}

func TestPopularSendsBearerAndLimit(t *testing.T) {
	t.Parallel()

	var gotAuth, gotLimit string

	client := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotLimit = r.URL.Query().Get("limit")
		w.Write([]byte(`[{"name":"Bitcoin","symbol":"BTC","volume":5000000000}]`))
	}))

	coins, err := client.Popular(t.Context(), 10)
	require.NoError(t, err)
	require.Len(t, coins, 1)
	assert.Equal(t, "Bearer test-key", gotAuth)
	assert.Equal(t, "10", gotLimit)
	assert.Equal(t, "BTC", coins[0].Symbol)
}

func TestExchangesDecodesRanking(t *testing.T) {
	t.Parallel()

	var gotPath string

	client := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.Write([]byte(`[
			{"name":"Nobitex","nameFa":"نوبیتکس","volume":900000000},
			{"name":"Wallex","nameFa":"والکس","volume":400000000}
		]`))
	}))

	exchanges, err := client.Exchanges(t.Context(), 5)
	require.NoError(t, err)
	require.Len(t, exchanges, 2)
	assert.Equal(t, "/exchanges", gotPath)
	assert.Equal(t, "نوبیتکس", exchanges[0].NameFa)
	assert.InDelta(t, 9e8, exchanges[0].Volume, 0.1)
}

func TestRecapQueriesCarryKindAndInterval(t *testing.T) {
	t.Parallel()

	var gotQueries []string

	client := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQueries = append(gotQueries, r.URL.RawQuery)
		w.Write([]byte(`[]`))
	}))

	_, err := client.CoinRecap(t.Context(), market.IntervalWeekly, 10)
	require.NoError(t, err)

	_, err = client.ExchangeRecap(t.Context(), market.IntervalMonthly, 10)
	require.NoError(t, err)

	require.Len(t, gotQueries, 2)
	assert.Contains(t, gotQueries[0], "type=coin")
	assert.Contains(t, gotQueries[0], "interval=weekly")
	assert.Contains(t, gotQueries[1], "type=exchange")
	assert.Contains(t, gotQueries[1], "interval=monthly")
}

func TestRequestsRequireAPIKey(t *testing.T) {
	t.Parallel()

	client := market.NewClient(&config.Market{BaseURL: "http://127.0.0.1:1"}, zap.NewNop())

	_, err := client.Popular(t.Context(), 10)
	assert.ErrorIs(t, err, market.ErrMissingAPIKey)
}

func TestInvalidResponseBodyFails(t *testing.T) {
	t.Parallel()

	client := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`not json`))
	}))

	_, err := client.Exchanges(t.Context(), 5)
	assert.Error(t, err)
}
