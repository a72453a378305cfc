package analytics

import (
	"sort"

	"shopdash/internal/paging"
	"shopdash/internal/shopify"

	"github.com/shopspring/decimal"
)

const UnknownProductTitle = "Unknown Product"

type ProductSale struct {
	ProductID         string          `json:"productId"`
	ProductTitle      string          `json:"productTitle"`
	TotalQuantitySold int             `json:"totalQuantitySold"`
	TotalRevenue      decimal.Decimal `json:"totalRevenue"`
}

// ProductSales groups line items by product id, highest revenue first.
// Line items without a product, or whose unit amount does not parse, are
// left out entirely.
func ProductSales(orders []shopify.Order) []ProductSale {
	byID := paging.NewOrderedMap[string, ProductSale](len(orders))
	for _, o := range orders {
		for _, li := range o.LineItems {
			if li.Variant == nil || li.Variant.Product == nil {
				continue
			}
			unit, ok := ParseAmount(li.DiscountedUnitPriceSet.ShopMoney.Amount)
			if !ok {
				continue
			}
			prod := li.Variant.Product

			row, seen := byID.Get(prod.ID)
			if !seen {
				row = ProductSale{ProductID: prod.ID, ProductTitle: prod.Title, TotalRevenue: decimal.Zero}
			}
			row.TotalQuantitySold += li.Quantity
			row.TotalRevenue = row.TotalRevenue.Add(unit.Mul(decimal.NewFromInt(int64(li.Quantity))))
			byID.Set(prod.ID, row)
		}
	}

	rows := byID.Values()
	sort.SliceStable(rows, func(i, j int) bool {
		return rows[i].TotalRevenue.GreaterThan(rows[j].TotalRevenue)
	})
	return rows
}

type TitleQuantity struct {
	ProductTitle string `json:"productTitle"`
	Quantity     int    `json:"quantity"`
}

// QuantityByProductTitle sums quantities per display title, largest first.
// Different products sharing a title share a row.
func QuantityByProductTitle(orders []shopify.Order) []TitleQuantity {
	byTitle := paging.NewOrderedMap[string, int](0)
	for _, o := range orders {
		for _, li := range o.LineItems {
			title := displayTitle(li)
			n, _ := byTitle.Get(title)
			byTitle.Set(title, n+li.Quantity)
		}
	}

	rows := make([]TitleQuantity, 0, byTitle.Len())
	for _, t := range byTitle.Keys() {
		n, _ := byTitle.Get(t)
		rows = append(rows, TitleQuantity{ProductTitle: t, Quantity: n})
	}
	sort.SliceStable(rows, func(i, j int) bool {
		return rows[i].Quantity > rows[j].Quantity
	})
	return rows
}

func displayTitle(li shopify.LineItem) string {
	if li.Variant != nil && li.Variant.Product != nil && li.Variant.Product.Title != "" {
		return li.Variant.Product.Title
	}
	if li.Title != "" {
		return li.Title
	}
	return UnknownProductTitle
}

// TopTitles returns at most n leading rows. n <= 0 returns everything.
func TopTitles(rows []TitleQuantity, n int) []TitleQuantity {
	if n <= 0 || n >= len(rows) {
		return rows
	}
	return rows[:n]
}
