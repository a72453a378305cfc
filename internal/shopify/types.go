package shopify

import (
	"bytes"
	"encoding/json"

	"shopdash/internal/paging"
)

// Money amounts arrive as decimal strings and are parsed only when summed.
type Money struct {
	Amount       string `json:"amount"`
	CurrencyCode string `json:"currencyCode"`
}

type MoneyBag struct {
	ShopMoney Money `json:"shopMoney"`
}

// ProductVariant.InventoryQuantity is nil when inventory is not tracked,
// which is not the same as a tracked zero.
type ProductVariant struct {
	ID                string  `json:"id"`
	Title             string  `json:"title"`
	Price             string  `json:"price"`
	SKU               *string `json:"sku"`
	InventoryQuantity *int    `json:"inventoryQuantity"`
}

type Product struct {
	ID       string                   `json:"id"`
	Title    string                   `json:"title"`
	Handle   string                   `json:"handle"`
	Variants NodeList[ProductVariant] `json:"variants"`
}

type LineItemProduct struct {
	ID     string `json:"id"`
	Title  string `json:"title"`
	Handle string `json:"handle"`
}

type LineItemVariant struct {
	ID      string           `json:"id"`
	Title   string           `json:"title"`
	SKU     *string          `json:"sku"`
	Product *LineItemProduct `json:"product"`
}

// LineItem.Variant is nil once the variant or product was deleted after the
// order was placed.
type LineItem struct {
	Title                  string           `json:"title"`
	Quantity               int              `json:"quantity"`
	Variant                *LineItemVariant `json:"variant"`
	DiscountedUnitPriceSet MoneyBag         `json:"discountedUnitPriceSet"`
}

type Order struct {
	ID          string             `json:"id"`
	Name        string             `json:"name"`
	ProcessedAt string             `json:"processedAt"`
	LineItems   NodeList[LineItem] `json:"lineItems"`
}

type ProductConnection = paging.Connection[Product]
type OrderConnection = paging.Connection[Order]

// NodeList is a nested GraphQL connection flattened to its nodes.
// It decodes {"edges":[{"node":...}]}, {"nodes":[...]} or a plain array and
// always encodes as a plain array.
type NodeList[T any] []T

func (l *NodeList[T]) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*l = nil
		return nil
	}

	if b[0] == '[' {
		var items []T
		if err := json.Unmarshal(b, &items); err != nil {
			return err
		}
		*l = items
		return nil
	}

	var wire struct {
		Edges []struct {
			Node T `json:"node"`
		} `json:"edges"`
		Nodes []T `json:"nodes"`
	}
	if err := json.Unmarshal(b, &wire); err != nil {
		return err
	}

	if wire.Edges != nil {
		items := make([]T, 0, len(wire.Edges))
		for _, e := range wire.Edges {
			items = append(items, e.Node)
		}
		*l = items
		return nil
	}
	*l = wire.Nodes
	return nil
}
