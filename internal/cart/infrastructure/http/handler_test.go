package http

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmehra2102/commerce-backoffice/internal/cart/application"
	couponapp "github.com/dmehra2102/commerce-backoffice/internal/coupon/application"
	"github.com/dmehra2102/commerce-backoffice/internal/storage/memory"
	"github.com/dmehra2102/commerce-backoffice/pkg/httpx"
)

type defaults struct{}

func (defaults) Int(_ context.Context, _ string, def int) int          { return def }
func (defaults) String(_ context.Context, _ string, def string) string { return def }

type cartBody struct {
	ID        int64   `json:"id"`
	SessionID *string `json:"session_id"`
	UserID    *int64  `json:"user_id"`
	ItemCount int     `json:"item_count"`
	Items     []struct {
		Qty int `json:"qty"`
	} `json:"items"`
}

func newServer(t *testing.T) (*httptest.Server, int64) {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := memory.NewStore()
	catalog := memory.NewCatalogRepository(store)
	coupons := couponapp.NewService(log, memory.NewCouponRepository(store))
	svc := application.NewService(log, store, memory.NewCartRepository(store), catalog, coupons, defaults{})

	p := catalog.AddProduct(context.Background(), "Mug", "MUG-1", decimal.NewFromInt(12), 5)

	r := chi.NewRouter()
	NewHandler(log, svc).Routes(r)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv, p.ID
}

func do(t *testing.T, method, url, body string, headers map[string]string) (*http.Response, cartBody) {
	t.Helper()
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	require.NoError(t, err)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	res, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer res.Body.Close()

	var c cartBody
	if res.StatusCode < 300 {
		require.NoError(t, json.NewDecoder(res.Body).Decode(&c))
	}
	return res, c
}

func TestGuestGetsSessionAndKeepsCart(t *testing.T) {
	srv, productID := newServer(t)

	res, c := do(t, http.MethodPost, srv.URL+"/cart/items", `{"product_id":`+itoa(productID)+`,"qty":2}`, nil)
	require.Equal(t, http.StatusCreated, res.StatusCode)
	session := res.Header.Get(httpx.SessionHeader)
	require.Len(t, session, 26)
	require.NotNil(t, c.SessionID)
	assert.Equal(t, session, *c.SessionID)
	assert.Equal(t, 2, c.ItemCount)

	var cookie bool
	for _, ck := range res.Cookies() {
		if ck.Name == httpx.SessionCookie && ck.Value == session {
			cookie = true
		}
	}
	assert.True(t, cookie)

	res, again := do(t, http.MethodPost, srv.URL+"/cart/items", `{"product_id":`+itoa(productID)+`,"qty":1}`,
		map[string]string{httpx.SessionHeader: session})
	require.Equal(t, http.StatusCreated, res.StatusCode)
	assert.Equal(t, c.ID, again.ID)
	require.Len(t, again.Items, 1)
	assert.Equal(t, 3, again.Items[0].Qty)
}

func TestUserCartHasNoSession(t *testing.T) {
	srv, _ := newServer(t)

	res, c := do(t, http.MethodGet, srv.URL+"/cart", "", map[string]string{httpx.UserHeader: "5"})
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Empty(t, res.Header.Get(httpx.SessionHeader))
	require.NotNil(t, c.UserID)
	assert.Equal(t, int64(5), *c.UserID)
	assert.Nil(t, c.SessionID)
}

func TestAddItemRejectsBadInput(t *testing.T) {
	srv, _ := newServer(t)

	res, _ := do(t, http.MethodPost, srv.URL+"/cart/items", `{"product_id":0,"qty":1}`, nil)
	assert.Equal(t, http.StatusUnprocessableEntity, res.StatusCode)

	res, _ = do(t, http.MethodPost, srv.URL+"/cart/items", `{"product_id":`, nil)
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)

	res, _ = do(t, http.MethodPost, srv.URL+"/cart/items", `{"product_id":999,"qty":1}`, map[string]string{httpx.UserHeader: "5"})
	assert.Equal(t, http.StatusNotFound, res.StatusCode)
}

func itoa(n int64) string {
	b, _ := json.Marshal(n)
	return string(b)
}
