package shopify

import (
	"context"

	"shopdash/internal/cache"
)

// Executor runs the dashboard's named queries, read through the shared cache
// when one is configured.
type Executor struct {
	client *Client
	cache  *cache.Cache
}

func NewExecutor(client *Client, c *cache.Cache) *Executor {
	return &Executor{client: client, cache: c}
}

type productsData struct {
	Products ProductConnection `json:"products"`
}

type ordersData struct {
	Orders OrderConnection `json:"orders"`
}

func (e *Executor) Products(ctx context.Context, v ProductsVars) (*ProductConnection, error) {
	resp, err := execute[productsData](ctx, e, ProductsQuery, v.variables())
	if err != nil {
		return nil, err
	}
	return &resp.Data.Products, nil
}

func (e *Executor) Orders(ctx context.Context, v OrdersVars) (*OrderConnection, error) {
	resp, err := execute[ordersData](ctx, e, OrdersQuery, v.variables())
	if err != nil {
		return nil, err
	}
	return &resp.Data.Orders, nil
}

// InvalidateAll drops every cached page so the next call hits Shopify.
func (e *Executor) InvalidateAll(ctx context.Context) error {
	if e.cache == nil {
		return nil
	}
	return e.cache.InvalidateAll(ctx)
}

func execute[T any](ctx context.Context, e *Executor, query string, vars map[string]any) (*GraphQLResponse[T], error) {
	load := func(ctx context.Context) ([]byte, error) {
		return e.client.Post(ctx, query, vars)
	}

	var (
		raw []byte
		err error
	)
	if e.cache != nil {
		raw, _, err = e.cache.GetOrLoad(ctx, cache.Key(query, vars), load)
	} else {
		raw, err = load(ctx)
	}
	if err != nil {
		return nil, err
	}

	resp, err := DecodeGraphQL[T](raw)
	if err != nil {
		return nil, &QueryError{Err: err}
	}
	return resp, nil
}
