package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"shopdash/internal/alerts"
	"shopdash/internal/analytics"
	"shopdash/internal/export"
	"shopdash/internal/paging"
	"shopdash/internal/shopify"

	"github.com/aws/aws-lambda-go/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	mu           sync.Mutex
	productPages map[string]*shopify.ProductConnection
	productErrs  map[string]error
	orders       *shopify.OrderConnection
	ordersErr    error
	orderVars    []shopify.OrdersVars
	productCalls int
	invalidated  int
}

func after(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

func (f *fakeSource) Products(_ context.Context, v shopify.ProductsVars) (*shopify.ProductConnection, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.productCalls++
	if err := f.productErrs[after(v.After)]; err != nil {
		return nil, err
	}
	return f.productPages[after(v.After)], nil
}

func (f *fakeSource) Orders(_ context.Context, v shopify.OrdersVars) (*shopify.OrderConnection, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.orderVars = append(f.orderVars, v)
	if f.ordersErr != nil {
		return nil, f.ordersErr
	}
	return f.orders, nil
}

func (f *fakeSource) InvalidateAll(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.invalidated++
	return nil
}

func qty(n int) *int       { return &n }
func str(s string) *string { return &s }

func productEdge(cursor, id, title, price string, q *int) paging.Edge[shopify.Product] {
	return paging.Edge[shopify.Product]{
		Cursor: cursor,
		Node: shopify.Product{
			ID:       id,
			Title:    title,
			Variants: shopify.NodeList[shopify.ProductVariant]{{ID: id + "/v1", Title: "Default Title", Price: price, InventoryQuantity: q}},
		},
	}
}

func lineItem(productID, title string, quantity int, amount string) shopify.LineItem {
	li := shopify.LineItem{Title: title, Quantity: quantity}
	li.DiscountedUnitPriceSet.ShopMoney.Amount = amount
	if productID != "" {
		li.Variant = &shopify.LineItemVariant{ID: productID + "/v1", Product: &shopify.LineItemProduct{ID: productID, Title: title}}
	}
	return li
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		productPages: map[string]*shopify.ProductConnection{
			"": {
				Edges: []paging.Edge[shopify.Product]{
					productEdge("c1", "gid://shopify/Product/1", "Mug", "10", qty(5)),
				},
				PageInfo: paging.PageInfo{HasNextPage: true, EndCursor: str("c1")},
			},
			"c1": {
				Edges: []paging.Edge[shopify.Product]{
					productEdge("c2", "gid://shopify/Product/2", "Tee", "5", qty(20)),
				},
				PageInfo: paging.PageInfo{HasNextPage: false, EndCursor: str("c2")},
			},
		},
		productErrs: map[string]error{},
		orders: &shopify.OrderConnection{
			Edges: []paging.Edge[shopify.Order]{{
				Cursor: "o1",
				Node: shopify.Order{ID: "gid://shopify/Order/1", LineItems: shopify.NodeList[shopify.LineItem]{
					lineItem("gid://shopify/Product/1", "Mug", 2, "10.00"),
					lineItem("", "Gift Wrap", 1, "3.00"),
				}},
			}},
		},
	}
}

type fakeUploader struct {
	name string
	data []byte
	err  error
}

func (f *fakeUploader) Upload(_ context.Context, name, _ string, data []byte, _ time.Time) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.name, f.data = name, data
	return "exports/dt=2024-03-31/" + name, nil
}

func (f *fakeUploader) Bucket() string { return "exports-bucket" }

type fakeNotifier struct {
	listing   []analytics.InventoryItem
	threshold int
	err       error
}

func (f *fakeNotifier) NotifyLowStock(_ context.Context, _ string, listing []analytics.InventoryItem, threshold int) (alerts.Result, error) {
	if f.err != nil {
		return alerts.Result{}, f.err
	}
	f.listing, f.threshold = listing, threshold
	return alerts.Result{MessageID: "m-1", LowStock: len(analytics.LowStockRows(listing)), Published: true}, nil
}

func newDashboard(src *fakeSource, up Uploader, n LowStockNotifier) *Dashboard {
	d := NewDashboard(src, up, n, DashboardOptions{ShopDomain: "demo.myshopify.com", PageSize: 1, MaxPages: 5})
	d.now = func() time.Time { return time.Date(2024, 3, 31, 12, 0, 0, 0, time.UTC) }
	return d
}

func get(path string, query map[string]string) events.APIGatewayV2HTTPRequest {
	req := apiReq("GET", path, "")
	req.QueryStringParameters = query
	return req
}

func decode(t *testing.T, resp events.APIGatewayV2HTTPResponse) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal([]byte(resp.Body), &out))
	return out
}

func TestDashboard_Summary(t *testing.T) {
	src := newFakeSource()
	d := newDashboard(src, nil, nil)

	resp, err := d.Handle(context.Background(), get("/dashboard/summary", nil))
	require.NoError(t, err)
	require.Equal(t, 200, resp.StatusCode, resp.Body)

	var body struct {
		Window    windowJSON                          `json:"window"`
		Inventory Section[analytics.InventorySummary] `json:"inventory"`
		Sales     Section[[]analytics.ProductSale]    `json:"sales"`
		Top       Section[[]analytics.TitleQuantity]  `json:"topProducts"`
	}
	require.NoError(t, json.Unmarshal([]byte(resp.Body), &body))

	assert.Equal(t, "150", body.Inventory.Data.TotalInventoryValue.String())
	assert.Equal(t, 1, body.Inventory.Data.LowStockCount)
	assert.Equal(t, 2, body.Inventory.Data.ProductsFetched)
	assert.Empty(t, body.Inventory.Error)

	require.Len(t, body.Sales.Data, 1)
	assert.Equal(t, "gid://shopify/Product/1", body.Sales.Data[0].ProductID)
	assert.Equal(t, "20", body.Sales.Data[0].TotalRevenue.String())

	assert.Equal(t, []analytics.TitleQuantity{{ProductTitle: "Mug", Quantity: 2}, {ProductTitle: "Gift Wrap", Quantity: 1}}, body.Top.Data)
	assert.Equal(t, windowJSON{Start: "2024-03-02", End: "2024-03-31"}, body.Window)

	require.Len(t, src.orderVars, 1)
	assert.Equal(t, "processed_at:>=2024-03-02 AND processed_at:<=2024-03-31", *shopify.OrdersFilter(src.orderVars[0].Window))
}

func TestDashboard_SummaryInitialLoadFailure(t *testing.T) {
	src := newFakeSource()
	src.productErrs[""] = errors.New("shopify down")
	d := newDashboard(src, nil, nil)

	resp, err := d.Handle(context.Background(), get("/dashboard/summary", nil))
	require.NoError(t, err)
	assert.Equal(t, 502, resp.StatusCode)
	body := decode(t, resp)
	assert.Contains(t, body["error"], "shopify down")
	assert.Equal(t, false, body["retryable"])
}

func TestDashboard_SummaryBadParams(t *testing.T) {
	d := newDashboard(newFakeSource(), nil, nil)

	resp, _ := d.Handle(context.Background(), get("/dashboard/summary", map[string]string{"threshold": "-1"}))
	assert.Equal(t, 400, resp.StatusCode)

	resp, _ = d.Handle(context.Background(), get("/dashboard/summary", map[string]string{"start": "2024-02-01", "end": "2024-01-01"}))
	assert.Equal(t, 400, resp.StatusCode)
}

func TestDashboard_ProductsThenMore(t *testing.T) {
	src := newFakeSource()
	d := newDashboard(src, nil, nil)
	ctx := context.Background()

	resp, err := d.Handle(ctx, get("/dashboard/products", nil))
	require.NoError(t, err)
	require.Equal(t, 200, resp.StatusCode)
	var first productsResponse
	require.NoError(t, json.Unmarshal([]byte(resp.Body), &first))
	require.Len(t, first.Products, 1)
	assert.True(t, first.PageInfo.HasNextPage)
	require.Len(t, first.Inventory.Data, 1)
	assert.True(t, first.Inventory.Data[0].LowStock)

	resp, err = d.Handle(ctx, apiReq("POST", "/dashboard/products/more", ""))
	require.NoError(t, err)
	require.Equal(t, 200, resp.StatusCode)
	var more productsResponse
	require.NoError(t, json.Unmarshal([]byte(resp.Body), &more))
	assert.Len(t, more.Products, 2)
	assert.False(t, more.PageInfo.HasNextPage)
	assert.Equal(t, "gid://shopify/Product/1/v1", more.Inventory.Data[0].VariantID, "lowest stock first")
}

func TestDashboard_LoadMoreFailureKeepsPriorData(t *testing.T) {
	src := newFakeSource()
	src.productErrs["c1"] = errors.New("timeout")
	d := newDashboard(src, nil, nil)
	ctx := context.Background()

	_, err := d.Handle(ctx, get("/dashboard/products", nil))
	require.NoError(t, err)

	resp, err := d.Handle(ctx, apiReq("POST", "/dashboard/products/more", ""))
	require.NoError(t, err)
	assert.Equal(t, 502, resp.StatusCode)
	var body productsResponse
	require.NoError(t, json.Unmarshal([]byte(resp.Body), &body))
	assert.True(t, body.Retryable)
	assert.Contains(t, body.Error, "timeout")
	assert.Len(t, body.Products, 1, "prior data stays visible")

	delete(src.productErrs, "c1")
	resp, err = d.Handle(ctx, apiReq("POST", "/dashboard/products/more", ""))
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)
}

func TestDashboard_Sales(t *testing.T) {
	src := newFakeSource()
	d := newDashboard(src, nil, nil)

	resp, err := d.Handle(context.Background(), get("/dashboard/sales", nil))
	require.NoError(t, err)
	require.Equal(t, 200, resp.StatusCode)
	body := decode(t, resp)
	assert.Equal(t, float64(1), body["ordersFetched"])
	assert.True(t, src.orderVars[0].Window.IsZero(), "sales are unbounded unless a window is given")

	src.ordersErr = errors.New("boom")
	resp, _ = d.Handle(context.Background(), get("/dashboard/sales", map[string]string{"start": "2023-01-01"}))
	assert.Equal(t, 502, resp.StatusCode)
}

func TestDashboard_SalesQuantities(t *testing.T) {
	src := newFakeSource()
	d := newDashboard(src, nil, nil)

	resp, err := d.Handle(context.Background(), get("/dashboard/sales/quantities", map[string]string{"top": "1"}))
	require.NoError(t, err)
	require.Equal(t, 200, resp.StatusCode)

	var body struct {
		Quantities Section[[]analytics.TitleQuantity] `json:"quantities"`
	}
	require.NoError(t, json.Unmarshal([]byte(resp.Body), &body))
	assert.Equal(t, []analytics.TitleQuantity{{ProductTitle: "Mug", Quantity: 2}}, body.Quantities.Data)

	resp, _ = d.Handle(context.Background(), get("/dashboard/sales/quantities", map[string]string{"top": "zero"}))
	assert.Equal(t, 400, resp.StatusCode)
}

func TestDashboard_ExportCSV(t *testing.T) {
	d := newDashboard(newFakeSource(), nil, nil)

	resp, err := d.Handle(context.Background(), get("/dashboard/sales/export", nil))
	require.NoError(t, err)
	require.Equal(t, 200, resp.StatusCode)
	assert.Equal(t, `attachment; filename="product_sales_summary_20240331_120000.csv"`, resp.Headers["content-disposition"])
	assert.True(t, strings.HasPrefix(resp.Body, "Product ID,Product Title,Quantity Sold,Total Revenue\n1,Mug,2,20.00\n"))
}

func TestDashboard_ExportNoSales(t *testing.T) {
	src := newFakeSource()
	src.orders = &shopify.OrderConnection{}
	d := newDashboard(src, nil, nil)

	resp, err := d.Handle(context.Background(), get("/dashboard/sales/export", nil))
	require.NoError(t, err)
	assert.Equal(t, 404, resp.StatusCode)
	assert.Equal(t, "No sales data available to export.", errorOf(t, resp))
}

func TestDashboard_ExportParquet(t *testing.T) {
	d := newDashboard(newFakeSource(), nil, nil)
	resp, _ := d.Handle(context.Background(), get("/dashboard/sales/export", map[string]string{"format": "parquet"}))
	assert.Equal(t, 503, resp.StatusCode)

	up := &fakeUploader{}
	d = newDashboard(newFakeSource(), up, nil)
	resp, err := d.Handle(context.Background(), get("/dashboard/sales/export", map[string]string{"format": "parquet"}))
	require.NoError(t, err)
	require.Equal(t, 200, resp.StatusCode, resp.Body)
	body := decode(t, resp)
	assert.Equal(t, "exports-bucket", body["bucket"])
	assert.Equal(t, "exports/dt=2024-03-31/"+up.name, body["key"])
	assert.Equal(t, "PAR1", string(up.data[:4]))

	up.err = export.ErrNoBucket
	resp, _ = d.Handle(context.Background(), get("/dashboard/sales/export", map[string]string{"format": "parquet"}))
	assert.Equal(t, 503, resp.StatusCode)

	resp, _ = d.Handle(context.Background(), get("/dashboard/sales/export", map[string]string{"format": "xlsx"}))
	assert.Equal(t, 400, resp.StatusCode)
}

func TestDashboard_LowStockAlert(t *testing.T) {
	resp, _ := newDashboard(newFakeSource(), nil, nil).Handle(context.Background(), apiReq("POST", "/dashboard/alerts/low-stock", ""))
	assert.Equal(t, 503, resp.StatusCode)

	n := &fakeNotifier{}
	d := newDashboard(newFakeSource(), nil, n)
	req := apiReq("POST", "/dashboard/alerts/low-stock", "")
	req.QueryStringParameters = map[string]string{"threshold": "25"}

	resp, err := d.Handle(context.Background(), req)
	require.NoError(t, err)
	require.Equal(t, 200, resp.StatusCode)
	assert.Equal(t, 25, n.threshold)
	assert.Len(t, n.listing, 2)
	assert.Equal(t, float64(2), decode(t, resp)["lowStock"])

	n.err = alerts.ErrNoTopic
	resp, _ = d.Handle(context.Background(), req)
	assert.Equal(t, 503, resp.StatusCode)
}

func TestDashboard_InvalidateRefetches(t *testing.T) {
	src := newFakeSource()
	d := newDashboard(src, nil, nil)
	ctx := context.Background()

	_, err := d.Handle(ctx, get("/dashboard/products", nil))
	require.NoError(t, err)
	_, err = d.Handle(ctx, get("/dashboard/products", nil))
	require.NoError(t, err)
	assert.Equal(t, 1, src.productCalls)

	resp, err := d.Handle(ctx, apiReq("POST", "/dashboard/cache/invalidate", ""))
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)
	assert.Equal(t, 1, src.invalidated)

	_, err = d.Handle(ctx, get("/dashboard/products", nil))
	require.NoError(t, err)
	assert.Equal(t, 2, src.productCalls)
}

func TestDashboard_Routing(t *testing.T) {
	d := newDashboard(newFakeSource(), nil, nil)

	resp, _ := d.Handle(context.Background(), get("/dashboard/nope", nil))
	assert.Equal(t, 404, resp.StatusCode)

	resp, _ = d.Handle(context.Background(), apiReq("DELETE", "/dashboard/summary", ""))
	assert.Equal(t, 405, resp.StatusCode)
}

func TestDashboard_SummaryRefetchesAfterMaxAge(t *testing.T) {
	src := newFakeSource()
	now := time.Date(2024, 3, 31, 12, 0, 0, 0, time.UTC)
	d := NewDashboard(src, nil, nil, DashboardOptions{PageSize: 1, MaxPages: 5, MaxAge: time.Minute})
	d.now = func() time.Time { return now }
	ctx := context.Background()

	inventoryValue := func() string {
		resp, err := d.Handle(ctx, get("/dashboard/summary", nil))
		require.NoError(t, err)
		require.Equal(t, 200, resp.StatusCode, resp.Body)
		var body struct {
			Inventory Section[analytics.InventorySummary] `json:"inventory"`
		}
		require.NoError(t, json.Unmarshal([]byte(resp.Body), &body))
		return body.Inventory.Data.TotalInventoryValue.String()
	}

	assert.Equal(t, "150", inventoryValue())
	assert.Equal(t, 2, src.productCalls)

	src.mu.Lock()
	src.productPages["c1"] = &shopify.ProductConnection{
		Edges: []paging.Edge[shopify.Product]{
			productEdge("c2", "gid://shopify/Product/2", "Tee", "5", qty(500)),
		},
		PageInfo: paging.PageInfo{HasNextPage: false, EndCursor: str("c2")},
	}
	src.mu.Unlock()

	assert.Equal(t, "150", inventoryValue(), "pages are reused while fresh")
	assert.Equal(t, 2, src.productCalls)

	now = now.Add(2 * time.Minute)
	assert.Equal(t, "2550", inventoryValue())
	assert.Equal(t, 4, src.productCalls)
}

func TestDashboard_OrderWindowsAreBounded(t *testing.T) {
	src := newFakeSource()
	d := NewDashboard(src, nil, nil, DashboardOptions{PageSize: 1, MaxPages: 5, MaxWindows: 3})
	d.now = func() time.Time { return time.Date(2024, 3, 31, 12, 0, 0, 0, time.UTC) }
	ctx := context.Background()

	day := time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 50; i++ {
		start := day.AddDate(0, 0, i).Format("2006-01-02")
		resp, err := d.Handle(ctx, get("/dashboard/sales", map[string]string{"start": start}))
		require.NoError(t, err)
		require.Equal(t, 200, resp.StatusCode)
	}
	assert.Equal(t, 3, d.orders.Len())
	assert.Len(t, src.orderVars, 50)

	resp, err := d.Handle(ctx, get("/dashboard/sales", map[string]string{"start": "2023-01-01"}))
	require.NoError(t, err)
	require.Equal(t, 200, resp.StatusCode)
	assert.Len(t, src.orderVars, 51, "an evicted window is fetched again")

	resp, err = d.Handle(ctx, get("/dashboard/sales", map[string]string{"start": "2023-01-01"}))
	require.NoError(t, err)
	require.Equal(t, 200, resp.StatusCode)
	assert.Len(t, src.orderVars, 51, "a held window is reused")
}
