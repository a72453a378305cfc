package shopify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"shopdash/internal/cache"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type upstream struct {
	srv   *httptest.Server
	calls int32
}

func newUpstream(t *testing.T, status int, body string) *upstream {
	t.Helper()
	u := &upstream{}
	u.srv = httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&u.calls, 1)
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/admin/api/2024-04/graphql.json", r.URL.Path)
		assert.Equal(t, "shpat_test", r.Header.Get("X-Shopify-Access-Token"))

		var req map[string]any
		b, _ := io.ReadAll(r.Body)
		assert.NoError(t, json.Unmarshal(b, &req))
		assert.Contains(t, req, "query")

		w.Header().Set("content-type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(u.srv.Close)
	return u
}

func (u *upstream) client() *Client {
	return NewClient(EnvSource{ShopDomain: u.srv.URL, AccessToken: "shpat_test"}, ClientOptions{
		RequestsPerSecond: 1000,
		HTTPClient:        u.srv.Client(),
	})
}

func TestCredentials_Endpoint(t *testing.T) {
	c := Credentials{ShopDomain: "https://demo.myshopify.com/", APIVersion: ""}
	assert.Equal(t, "https://demo.myshopify.com/admin/api/2024-04/graphql.json", c.Endpoint())

	c = Credentials{ShopDomain: "http://demo.myshopify.com", APIVersion: "2025-01"}
	assert.Equal(t, "https://demo.myshopify.com/admin/api/2025-01/graphql.json", c.Endpoint())
}

func TestClient_ForwardReturnsUpstreamBodyVerbatim(t *testing.T) {
	body := `{"data":{"shop":{"name":"Demo"}},"extensions":{"cost":{}}}`
	u := newUpstream(t, http.StatusOK, body)

	raw, status, err := u.client().Forward(context.Background(), []byte(`{"query":"{ shop { name } }"}`))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, body, string(raw))
}

func TestClient_MissingCredentials(t *testing.T) {
	c := NewClient(EnvSource{ShopDomain: "demo.myshopify.com"}, ClientOptions{})

	_, _, err := c.Forward(context.Background(), []byte(`{}`))
	assert.ErrorIs(t, err, ErrMissingCredentials)

	_, err = c.Post(context.Background(), ProductsQuery, nil)
	assert.ErrorIs(t, err, ErrMissingCredentials)
}

func TestClient_PostGraphQLErrors(t *testing.T) {
	u := newUpstream(t, http.StatusOK, `{"errors":[{"message":"Throttled","extensions":{"code":"THROTTLED"}}]}`)

	_, err := u.client().Post(context.Background(), ProductsQuery, map[string]any{"first": 1})
	var qe *QueryError
	require.True(t, errors.As(err, &qe))
	assert.Equal(t, []string{"Throttled (THROTTLED)"}, qe.Messages)
	assert.Contains(t, err.Error(), "Throttled")
}

func TestClient_PostNon2xx(t *testing.T) {
	u := newUpstream(t, http.StatusBadGateway, `upstream exploded`)

	_, err := u.client().Post(context.Background(), ProductsQuery, nil)
	var qe *QueryError
	require.True(t, errors.As(err, &qe))
	assert.Equal(t, http.StatusBadGateway, qe.Status)
	assert.Equal(t, []string{"upstream exploded"}, qe.Messages)
}

func TestClient_PostUndecodableBody(t *testing.T) {
	u := newUpstream(t, http.StatusOK, `<html>`)

	_, err := u.client().Post(context.Background(), ProductsQuery, nil)
	var qe *QueryError
	require.True(t, errors.As(err, &qe))
	assert.Error(t, qe.Err)
}

const productsPage = `{"data":{"products":{
	"edges":[
		{"cursor":"c1","node":{"id":"gid://shopify/Product/1","title":"Mug","variants":{"edges":[{"node":{"id":"v1","price":"10.00","inventoryQuantity":5}}]}}}
	],
	"pageInfo":{"hasNextPage":true,"endCursor":"c1"}
}}}`

func TestExecutor_ProductsReadThroughCache(t *testing.T) {
	u := newUpstream(t, http.StatusOK, productsPage)
	exec := NewExecutor(u.client(), cache.New(cache.NewMemoryStore(), time.Minute))
	ctx := context.Background()

	conn, err := exec.Products(ctx, ProductsVars{First: 20})
	require.NoError(t, err)
	require.Len(t, conn.Edges, 1)
	assert.Equal(t, "c1", conn.Edges[0].Cursor)
	assert.Equal(t, "Mug", conn.Edges[0].Node.Title)
	require.Len(t, conn.Edges[0].Node.Variants, 1)
	assert.Equal(t, 5, *conn.Edges[0].Node.Variants[0].InventoryQuantity)
	assert.True(t, conn.PageInfo.HasNextPage)

	_, err = exec.Products(ctx, ProductsVars{First: 20})
	require.NoError(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&u.calls), "second identical query is served from cache")

	after := "c1"
	_, err = exec.Products(ctx, ProductsVars{First: 20, After: &after})
	require.NoError(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(&u.calls))

	require.NoError(t, exec.InvalidateAll(ctx))
	_, err = exec.Products(ctx, ProductsVars{First: 20})
	require.NoError(t, err)
	assert.Equal(t, int32(3), atomic.LoadInt32(&u.calls))
}

func TestExecutor_FailuresAreNotCached(t *testing.T) {
	u := newUpstream(t, http.StatusOK, `{"errors":[{"message":"boom"}]}`)
	exec := NewExecutor(u.client(), cache.New(cache.NewMemoryStore(), time.Minute))

	_, err := exec.Orders(context.Background(), OrdersVars{First: 100})
	require.Error(t, err)
	_, err = exec.Orders(context.Background(), OrdersVars{First: 100})
	require.Error(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(&u.calls))
}

func TestExecutor_OrdersWithoutCache(t *testing.T) {
	u := newUpstream(t, http.StatusOK, `{"data":{"orders":{"edges":[
		{"cursor":"o1","node":{"id":"gid://shopify/Order/1","lineItems":{"edges":[
			{"node":{"title":"Mug","quantity":2,"variant":{"id":"v1","product":{"id":"gid://shopify/Product/1","title":"Mug"}},
			 "discountedUnitPriceSet":{"shopMoney":{"amount":"10.00","currencyCode":"USD"}}}}
		]}}}
	],"pageInfo":{"hasNextPage":false,"endCursor":null}}}}`)
	exec := NewExecutor(u.client(), nil)

	conn, err := exec.Orders(context.Background(), OrdersVars{First: 100})
	require.NoError(t, err)
	require.Len(t, conn.Edges, 1)
	li := conn.Edges[0].Node.LineItems
	require.Len(t, li, 1)
	assert.Equal(t, "gid://shopify/Product/1", li[0].Variant.Product.ID)
	assert.Equal(t, "10.00", li[0].DiscountedUnitPriceSet.ShopMoney.Amount)
	assert.Nil(t, conn.PageInfo.EndCursor)
}
