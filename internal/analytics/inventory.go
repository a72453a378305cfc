package analytics

import (
	"sort"

	"shopdash/internal/shopify"

	"github.com/shopspring/decimal"
)

const DefaultLowStockThreshold = 10

// TotalInventoryValue sums price * quantity over every variant. Unparseable
// prices and untracked or non-positive quantities contribute nothing.
func TotalInventoryValue(products []shopify.Product) decimal.Decimal {
	total := decimal.Zero
	for _, p := range products {
		for _, v := range p.Variants {
			if v.InventoryQuantity == nil || *v.InventoryQuantity <= 0 {
				continue
			}
			price, ok := ParseAmount(v.Price)
			if !ok {
				continue
			}
			total = total.Add(price.Mul(decimal.NewFromInt(int64(*v.InventoryQuantity))))
		}
	}
	return total
}

// CountLowInventory counts products whose summed variant quantity is at or
// below threshold. A product id is counted at most once. Products with no
// tracked stock sum to zero and so count as low.
func CountLowInventory(products []shopify.Product, threshold int) int {
	counted := make(map[string]struct{}, len(products))
	n := 0
	for _, p := range products {
		if _, dup := counted[p.ID]; dup {
			continue
		}
		sum := 0
		for _, v := range p.Variants {
			if v.InventoryQuantity != nil {
				sum += *v.InventoryQuantity
			}
		}
		if sum <= threshold {
			counted[p.ID] = struct{}{}
			n++
		}
	}
	return n
}

type InventoryItem struct {
	ProductID         string  `json:"productId"`
	ProductTitle      string  `json:"productTitle"`
	VariantID         string  `json:"variantId"`
	VariantTitle      string  `json:"variantTitle"`
	SKU               *string `json:"sku"`
	InventoryQuantity *int    `json:"inventoryQuantity"`
	Tracked           bool    `json:"tracked"`
	LowStock          bool    `json:"lowStock"`
}

// InventoryListing flattens products to one row per variant, lowest stock
// first with untracked variants at the end.
func InventoryListing(products []shopify.Product, threshold int) []InventoryItem {
	rows := make([]InventoryItem, 0, len(products))
	for _, p := range products {
		for _, v := range p.Variants {
			tracked := v.InventoryQuantity != nil
			rows = append(rows, InventoryItem{
				ProductID:         p.ID,
				ProductTitle:      p.Title,
				VariantID:         v.ID,
				VariantTitle:      v.Title,
				SKU:               v.SKU,
				InventoryQuantity: v.InventoryQuantity,
				Tracked:           tracked,
				LowStock:          tracked && *v.InventoryQuantity <= threshold,
			})
		}
	}

	sort.SliceStable(rows, func(i, j int) bool {
		a, b := rows[i].InventoryQuantity, rows[j].InventoryQuantity
		switch {
		case a == nil:
			return false
		case b == nil:
			return true
		default:
			return *a < *b
		}
	})
	return rows
}

func LowStockRows(rows []InventoryItem) []InventoryItem {
	out := make([]InventoryItem, 0)
	for _, r := range rows {
		if r.LowStock {
			out = append(out, r)
		}
	}
	return out
}

type InventorySummary struct {
	TotalInventoryValue decimal.Decimal `json:"totalInventoryValue"`
	LowStockCount       int             `json:"lowStockCount"`
	ProductsFetched     int             `json:"productsFetched"`
	Threshold           int             `json:"threshold"`
}

func SummarizeInventory(products []shopify.Product, threshold int) InventorySummary {
	return InventorySummary{
		TotalInventoryValue: TotalInventoryValue(products),
		LowStockCount:       CountLowInventory(products, threshold),
		ProductsFetched:     len(products),
		Threshold:           threshold,
	}
}
