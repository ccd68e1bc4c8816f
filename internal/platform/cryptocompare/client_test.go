package cryptocompare

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/chainarb/internal/domain"
)

func TestUSDPrice(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/data/price", r.URL.Path)
		assert.Equal(t, "WETH", r.URL.Query().Get("fsym"))
		assert.Equal(t, "USD", r.URL.Query().Get("tsyms"))
		assert.Equal(t, "Apikey secret", r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`{"USD":3012.55}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL+"/", "secret")
	p, err := c.USDPrice(context.Background(), "weth")
	require.NoError(t, err)
	assert.Equal(t, 3012.55, p)
}

func TestUSDPrice_Unavailable(t *testing.T) {
	cases := map[string]struct {
		status int
		body   string
	}{
		"missing field":  {http.StatusOK, `{"EUR":1}`},
		"zero":           {http.StatusOK, `{"USD":0}`},
		"negative":       {http.StatusOK, `{"USD":-2}`},
		"string value":   {http.StatusOK, `{"USD":"3000"}`},
		"api error":      {http.StatusOK, `{"Response":"Error","Message":"fsym param is invalid"}`},
		"server failure": {http.StatusBadGateway, `bad gateway`},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			}))
			defer srv.Close()

			_, err := NewClient(srv.URL, "").USDPrice(context.Background(), "ETH")
			require.Error(t, err)
			assert.ErrorIs(t, err, domain.ErrPriceUnavailable)
		})
	}
}

func TestUSDPrice_TransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := NewClient(url, "").USDPrice(context.Background(), "ETH")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrPriceUnavailable)
}
