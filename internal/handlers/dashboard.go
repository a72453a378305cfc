package handlers

import (
	"bytes"
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"shopdash/internal/alerts"
	"shopdash/internal/analytics"
	"shopdash/internal/collection"
	"shopdash/internal/export"
	"shopdash/internal/logger"
	"shopdash/internal/paging"
	"shopdash/internal/shopify"

	"github.com/aws/aws-lambda-go/events"
	"golang.org/x/sync/errgroup"
)

const (
	defaultChartDays = 30
	defaultTopTitles = 10
	defaultMaxAge    = 5 * time.Minute
)

// Source is the query side the dashboard reads from; *shopify.Executor.
type Source interface {
	Products(ctx context.Context, v shopify.ProductsVars) (*shopify.ProductConnection, error)
	Orders(ctx context.Context, v shopify.OrdersVars) (*shopify.OrderConnection, error)
	InvalidateAll(ctx context.Context) error
}

type Uploader interface {
	Upload(ctx context.Context, name, contentType string, data []byte, now time.Time) (string, error)
	Bucket() string
}

type LowStockNotifier interface {
	NotifyLowStock(ctx context.Context, shop string, listing []analytics.InventoryItem, threshold int) (alerts.Result, error)
}

type DashboardOptions struct {
	ShopDomain        string
	PageSize          int
	OrdersPageSize    int
	MaxPages          int
	LowStockThreshold int

	// MaxAge bounds how long fetched pages are reused before the first page
	// is fetched again.
	MaxAge time.Duration

	// MaxWindows caps the order date windows held at once.
	MaxWindows int
}

type Dashboard struct {
	source   Source
	uploader Uploader
	notifier LowStockNotifier
	opts     DashboardOptions

	products *collection.Loader[shopify.Product]
	orders   *collection.Registry[shopify.Order]
	now      func() time.Time
}

// NewDashboard wires the dashboard API. uploader and notifier may be nil;
// the routes that need them then answer 503.
func NewDashboard(source Source, uploader Uploader, notifier LowStockNotifier, opts DashboardOptions) *Dashboard {
	if opts.PageSize <= 0 {
		opts.PageSize = 20
	}
	if opts.OrdersPageSize <= 0 {
		opts.OrdersPageSize = 100
	}
	if opts.MaxPages <= 0 {
		opts.MaxPages = 5
	}
	if opts.LowStockThreshold <= 0 {
		opts.LowStockThreshold = analytics.DefaultLowStockThreshold
	}
	if opts.MaxAge <= 0 {
		opts.MaxAge = defaultMaxAge
	}
	if opts.MaxWindows <= 0 {
		opts.MaxWindows = collection.DefaultMaxEntries
	}

	d := &Dashboard{
		source:   source,
		uploader: uploader,
		notifier: notifier,
		opts:     opts,
		now:      time.Now,
	}
	loaderOpts := []collection.Option{
		collection.WithMaxAge(opts.MaxAge),
		collection.WithClock(func() time.Time { return d.now() }),
	}
	d.orders = collection.NewRegistry[shopify.Order](opts.MaxWindows, loaderOpts...)
	d.products = collection.NewLoader(func(ctx context.Context, after *string) (*paging.Connection[shopify.Product], error) {
		return source.Products(ctx, shopify.ProductsVars{First: opts.PageSize, After: after})
	}, loaderOpts...)
	return d
}

func (d *Dashboard) ordersLoader(w shopify.DateWindow) *collection.Loader[shopify.Order] {
	first := d.opts.OrdersPageSize
	return d.orders.Loader(w.Key(), func(ctx context.Context, after *string) (*paging.Connection[shopify.Order], error) {
		return d.source.Orders(ctx, shopify.OrdersVars{First: first, After: after, Window: w})
	})
}

func (d *Dashboard) Handle(ctx context.Context, req events.APIGatewayV2HTTPRequest) (events.APIGatewayV2HTTPResponse, error) {
	method := req.RequestContext.HTTP.Method
	switch req.RawPath {
	case "/dashboard/summary":
		if method == "GET" {
			return d.summary(ctx, req)
		}
	case "/dashboard/products":
		if method == "GET" {
			return d.productsPage(ctx, req)
		}
	case "/dashboard/products/more":
		if method == "POST" {
			return d.productsMore(ctx, req)
		}
	case "/dashboard/sales":
		if method == "GET" {
			return d.sales(ctx, req)
		}
	case "/dashboard/sales/quantities":
		if method == "GET" {
			return d.salesQuantities(ctx, req)
		}
	case "/dashboard/sales/export":
		if method == "GET" {
			return d.salesExport(ctx, req)
		}
	case "/dashboard/alerts/low-stock":
		if method == "POST" {
			return d.lowStockAlert(ctx, req)
		}
	case "/dashboard/cache/invalidate":
		if method == "POST" {
			return d.invalidate(ctx, req)
		}
	default:
		return errResp(404, "not found")
	}
	return errResp(405, "method not allowed")
}

type windowJSON struct {
	Start string `json:"start,omitempty"`
	End   string `json:"end,omitempty"`
}

func toWindowJSON(w shopify.DateWindow) windowJSON {
	var out windowJSON
	if !w.Start.IsZero() {
		out.Start = w.Start.Format("2006-01-02")
	}
	if !w.End.IsZero() {
		out.End = w.End.Format("2006-01-02")
	}
	return out
}

// window reads start/end. When both are absent and defaultDays > 0 the last
// defaultDays days are used; otherwise the window is unbounded.
func (d *Dashboard) window(req events.APIGatewayV2HTTPRequest, defaultDays int) (shopify.DateWindow, error) {
	start := req.QueryStringParameters["start"]
	end := req.QueryStringParameters["end"]
	if strings.TrimSpace(start) == "" && strings.TrimSpace(end) == "" && defaultDays > 0 {
		return shopify.LastDays(d.now(), defaultDays), nil
	}
	return shopify.ParseDateWindow(start, end)
}

func (d *Dashboard) threshold(req events.APIGatewayV2HTTPRequest) (int, error) {
	v := strings.TrimSpace(req.QueryStringParameters["threshold"])
	if v == "" {
		return d.opts.LowStockThreshold, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, errors.New("threshold must be a non-negative integer")
	}
	return n, nil
}

func positiveInt(v string, def int) (int, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 0, errors.New("must be a positive integer")
	}
	return n, nil
}

func loadFailed(ctx context.Context, what string, err error) (events.APIGatewayV2HTTPResponse, error) {
	logger.Error(ctx).Err(err).Str("collection", what).Msg("initial load failed")
	return jsonResp(502, map[string]any{
		"error":     "Failed to load " + what + " data: " + err.Error(),
		"retryable": false,
	})
}

type summaryResponse struct {
	Window          windowJSON                          `json:"window"`
	Inventory       Section[analytics.InventorySummary] `json:"inventory"`
	Sales           Section[[]analytics.ProductSale]    `json:"sales"`
	TopProducts     Section[[]analytics.TitleQuantity]  `json:"topProducts"`
	HasMoreProducts bool                                `json:"hasMoreProducts"`
	HasMoreOrders   bool                                `json:"hasMoreOrders"`
}

func (d *Dashboard) summary(ctx context.Context, req events.APIGatewayV2HTTPRequest) (events.APIGatewayV2HTTPResponse, error) {
	threshold, err := d.threshold(req)
	if err != nil {
		return errResp(400, err.Error())
	}
	w, err := d.window(req, defaultChartDays)
	if err != nil {
		return errResp(400, err.Error())
	}

	ordersLoader := d.ordersLoader(w)
	var (
		products paging.Connection[shopify.Product]
		orders   paging.Connection[shopify.Order]
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		products, err = d.products.LoadPages(gctx, d.opts.MaxPages)
		if errors.Is(err, collection.ErrContinuation) {
			logger.Warn(ctx).Err(err).Msg("products truncated")
			return nil
		}
		return err
	})
	g.Go(func() error {
		var err error
		orders, err = ordersLoader.LoadPages(gctx, d.opts.MaxPages)
		if errors.Is(err, collection.ErrContinuation) {
			logger.Warn(ctx).Err(err).Msg("orders truncated")
			return nil
		}
		return err
	})
	if err := g.Wait(); err != nil {
		return loadFailed(ctx, "dashboard", err)
	}

	productNodes := paging.Nodes(products.Edges)
	orderNodes := paging.Nodes(orders.Edges)

	resp := summaryResponse{
		Window: toWindowJSON(w),
		Inventory: guard(ctx, "inventory", analytics.InventorySummary{Threshold: threshold}, func() analytics.InventorySummary {
			return analytics.SummarizeInventory(productNodes, threshold)
		}),
		Sales: guard(ctx, "sales", []analytics.ProductSale{}, func() []analytics.ProductSale {
			return analytics.ProductSales(orderNodes)
		}),
		TopProducts: guard(ctx, "topProducts", []analytics.TitleQuantity{}, func() []analytics.TitleQuantity {
			return analytics.TopTitles(analytics.QuantityByProductTitle(orderNodes), defaultTopTitles)
		}),
		HasMoreProducts: products.PageInfo.HasNextPage,
		HasMoreOrders:   orders.PageInfo.HasNextPage,
	}
	return jsonResp(200, resp)
}

type productsResponse struct {
	Products  []shopify.Product                  `json:"products"`
	PageInfo  paging.PageInfo                    `json:"pageInfo"`
	Inventory Section[[]analytics.InventoryItem] `json:"inventory"`
	Threshold int                                `json:"threshold"`
	Error     string                             `json:"error,omitempty"`
	Retryable bool                               `json:"retryable,omitempty"`
}

func (d *Dashboard) productsBody(ctx context.Context, conn paging.Connection[shopify.Product], threshold int) productsResponse {
	nodes := paging.Nodes(conn.Edges)
	return productsResponse{
		Products: nodes,
		PageInfo: conn.PageInfo,
		Inventory: guard(ctx, "inventory", []analytics.InventoryItem{}, func() []analytics.InventoryItem {
			return analytics.InventoryListing(nodes, threshold)
		}),
		Threshold: threshold,
	}
}

func (d *Dashboard) productsPage(ctx context.Context, req events.APIGatewayV2HTTPRequest) (events.APIGatewayV2HTTPResponse, error) {
	threshold, err := d.threshold(req)
	if err != nil {
		return errResp(400, err.Error())
	}
	conn, err := d.products.Load(ctx)
	if err != nil {
		return loadFailed(ctx, "inventory", err)
	}
	return jsonResp(200, d.productsBody(ctx, conn, threshold))
}

func (d *Dashboard) productsMore(ctx context.Context, req events.APIGatewayV2HTTPRequest) (events.APIGatewayV2HTTPResponse, error) {
	threshold, err := d.threshold(req)
	if err != nil {
		return errResp(400, err.Error())
	}
	conn, err := d.products.LoadMore(ctx)
	switch {
	case errors.Is(err, collection.ErrContinuation):
		logger.Warn(ctx).Err(err).Msg("load more products failed")
		body := d.productsBody(ctx, conn, threshold)
		body.Error = "Failed to load more products: " + err.Error()
		body.Retryable = true
		return jsonResp(502, body)
	case err != nil:
		return loadFailed(ctx, "inventory", err)
	}
	return jsonResp(200, d.productsBody(ctx, conn, threshold))
}

func (d *Dashboard) loadOrders(ctx context.Context, w shopify.DateWindow) ([]shopify.Order, bool, error) {
	conn, err := d.ordersLoader(w).LoadPages(ctx, d.opts.MaxPages)
	if errors.Is(err, collection.ErrContinuation) {
		logger.Warn(ctx).Err(err).Str("window", w.Key()).Msg("orders truncated")
		err = nil
	}
	if err != nil {
		return nil, false, err
	}
	return paging.Nodes(conn.Edges), conn.PageInfo.HasNextPage, nil
}

func (d *Dashboard) sales(ctx context.Context, req events.APIGatewayV2HTTPRequest) (events.APIGatewayV2HTTPResponse, error) {
	w, err := d.window(req, 0)
	if err != nil {
		return errResp(400, err.Error())
	}
	orders, hasMore, err := d.loadOrders(ctx, w)
	if err != nil {
		return loadFailed(ctx, "order", err)
	}
	return jsonResp(200, map[string]any{
		"window":        toWindowJSON(w),
		"ordersFetched": len(orders),
		"hasMore":       hasMore,
		"sales": guard(ctx, "sales", []analytics.ProductSale{}, func() []analytics.ProductSale {
			return analytics.ProductSales(orders)
		}),
	})
}

func (d *Dashboard) salesQuantities(ctx context.Context, req events.APIGatewayV2HTTPRequest) (events.APIGatewayV2HTTPResponse, error) {
	w, err := d.window(req, defaultChartDays)
	if err != nil {
		return errResp(400, err.Error())
	}
	top, err := positiveInt(req.QueryStringParameters["top"], defaultTopTitles)
	if err != nil {
		return errResp(400, "top "+err.Error())
	}
	orders, hasMore, err := d.loadOrders(ctx, w)
	if err != nil {
		return loadFailed(ctx, "sales", err)
	}
	return jsonResp(200, map[string]any{
		"window":  toWindowJSON(w),
		"hasMore": hasMore,
		"quantities": guard(ctx, "quantities", []analytics.TitleQuantity{}, func() []analytics.TitleQuantity {
			return analytics.TopTitles(analytics.QuantityByProductTitle(orders), top)
		}),
	})
}

func (d *Dashboard) salesExport(ctx context.Context, req events.APIGatewayV2HTTPRequest) (events.APIGatewayV2HTTPResponse, error) {
	format := strings.ToLower(strings.TrimSpace(req.QueryStringParameters["format"]))
	if format == "" {
		format = "csv"
	}
	if format != "csv" && format != "parquet" {
		return errResp(400, "format must be csv or parquet")
	}
	w, err := d.window(req, 0)
	if err != nil {
		return errResp(400, err.Error())
	}
	orders, _, err := d.loadOrders(ctx, w)
	if err != nil {
		return loadFailed(ctx, "order", err)
	}
	sales := analytics.ProductSales(orders)
	now := d.now()

	if format == "csv" {
		var buf bytes.Buffer
		if err := export.WriteProductSalesCSV(&buf, sales); err != nil {
			if errors.Is(err, export.ErrNoSales) {
				return errResp(404, "No sales data available to export.")
			}
			return errResp(500, "failed to write csv")
		}
		return attachmentResp("text/csv; charset=utf-8", export.ExportFilename(now), buf.Bytes())
	}

	if d.uploader == nil {
		return errResp(503, "parquet export not configured")
	}
	wj := toWindowJSON(w)
	data, err := export.ProductSalesParquet(export.ProductSaleRows(sales, wj.Start, wj.End))
	if err != nil {
		if errors.Is(err, export.ErrNoSales) {
			return errResp(404, "No sales data available to export.")
		}
		logger.Error(ctx).Err(err).Msg("parquet encode failed")
		return errResp(500, "failed to write parquet")
	}
	key, err := d.uploader.Upload(ctx, export.ParquetFilename(now), "application/octet-stream", data, now)
	if err != nil {
		if errors.Is(err, export.ErrNoBucket) {
			return errResp(503, "parquet export not configured")
		}
		logger.Error(ctx).Err(err).Msg("parquet upload failed")
		return errResp(500, "failed to upload export")
	}
	return jsonResp(200, map[string]any{
		"bucket": d.uploader.Bucket(),
		"key":    key,
		"rows":   len(sales),
	})
}

func (d *Dashboard) lowStockAlert(ctx context.Context, req events.APIGatewayV2HTTPRequest) (events.APIGatewayV2HTTPResponse, error) {
	if d.notifier == nil {
		return errResp(503, "low stock alerts not configured")
	}
	threshold, err := d.threshold(req)
	if err != nil {
		return errResp(400, err.Error())
	}
	conn, err := d.products.LoadPages(ctx, d.opts.MaxPages)
	if err != nil && !errors.Is(err, collection.ErrContinuation) {
		return loadFailed(ctx, "inventory", err)
	}

	listing := analytics.InventoryListing(paging.Nodes(conn.Edges), threshold)
	res, err := d.notifier.NotifyLowStock(ctx, d.opts.ShopDomain, listing, threshold)
	if err != nil {
		if errors.Is(err, alerts.ErrNoTopic) {
			return errResp(503, "low stock alerts not configured")
		}
		logger.Error(ctx).Err(err).Msg("low stock publish failed")
		return errResp(502, "failed to publish low stock alert")
	}
	return jsonResp(200, res)
}

func (d *Dashboard) invalidate(ctx context.Context, _ events.APIGatewayV2HTTPRequest) (events.APIGatewayV2HTTPResponse, error) {
	d.products.Reset()
	d.orders.ResetAll()
	if err := d.source.InvalidateAll(ctx); err != nil {
		logger.Error(ctx).Err(err).Msg("cache invalidate failed")
		return errResp(500, "failed to invalidate cache")
	}
	return jsonResp(200, map[string]any{"ok": true})
}
